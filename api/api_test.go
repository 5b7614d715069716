package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkgate/linkgate/gate"
	"github.com/linkgate/linkgate/store/memory"
)

type fakeShortener struct {
	url string
	err error
}

func (f fakeShortener) Shorten(ctx context.Context, destination string) (string, error) {
	return f.url, f.err
}

func newTestHandler(t *testing.T, svcOpts []gate.Option, apiOpts ...Option) http.Handler {
	t.Helper()
	svc := gate.NewService(memory.NewStore(), svcOpts...)
	a := New(svc, apiOpts...)
	r := chi.NewRouter()
	r.Mount("/api/v1", a.Router())
	return r
}

func doRequest(t *testing.T, h http.Handler, method, target, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr + ":12345"
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// begin runs POST /sessions and returns the token plus the path+query of
// the verify link (the link embeds the request host, which the recorder
// does not serve).
func begin(t *testing.T, h http.Handler, remoteAddr string) (token, verifyPath string) {
	t.Helper()
	rec := doRequest(t, h, http.MethodPost, "/api/v1/sessions", remoteAddr)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode[BeginSessionResponse](t, rec)

	u, err := url.Parse(body.URL)
	require.NoError(t, err)
	return body.Token, u.Path + "?" + u.RawQuery
}

func verify(t *testing.T, h http.Handler, verifyPath, remoteAddr string) string {
	t.Helper()
	rec := doRequest(t, h, http.MethodGet, verifyPath, remoteAddr)
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[VerifyResponse](t, rec).Key
}

func TestBeginSession(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/sessions", "1.2.3.4")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode[BeginSessionResponse](t, rec)
	assert.NotEmpty(t, body.Token)
	assert.False(t, body.Shortened)
	assert.Contains(t, body.URL, "/api/v1/verify?")
	assert.Contains(t, body.URL, "token="+body.Token)
	assert.Contains(t, body.URL, "proof=")
	assert.WithinDuration(t, time.Now().Add(gate.DefaultTTL), body.ExpiresAt, time.Minute)
}

func TestFullLifecycle(t *testing.T) {
	h := newTestHandler(t, nil)

	token, verifyPath := begin(t, h, "1.2.3.4")
	key := verify(t, h, verifyPath, "1.2.3.4")
	require.NotEmpty(t, key)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/sessions/"+token+"/key", "1.2.3.4")
	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decode[FetchKeyResponse](t, rec)
	assert.Equal(t, key, fetched.Key)
	assert.True(t, fetched.ExpiresAt.Equal(fetched.CreatedAt.Add(gate.DefaultTTL)))

	rec = doRequest(t, h, http.MethodGet, "/api/v1/keys/"+key, "1.2.3.4")
	require.Equal(t, http.StatusOK, rec.Code)
	checked := decode[CheckKeyResponse](t, rec)
	assert.True(t, checked.Valid)
	assert.Equal(t, uint64(1), checked.CheckCount)
}

func TestVerifyIsIdempotent(t *testing.T) {
	h := newTestHandler(t, nil)

	_, verifyPath := begin(t, h, "1.2.3.4")
	key1 := verify(t, h, verifyPath, "1.2.3.4")
	key2 := verify(t, h, verifyPath, "1.2.3.4")
	assert.Equal(t, key1, key2)
}

func TestVerifyMissingParams(t *testing.T) {
	h := newTestHandler(t, nil)

	for _, target := range []string{
		"/api/v1/verify",
		"/api/v1/verify?token=abc",
		"/api/v1/verify?proof=abc",
	} {
		rec := doRequest(t, h, http.MethodGet, target, "1.2.3.4")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "target %s", target)
	}
}

func TestVerifyWrongProof(t *testing.T) {
	h := newTestHandler(t, nil)

	token, _ := begin(t, h, "1.2.3.4")
	rec := doRequest(t, h, http.MethodGet, "/api/v1/verify?token="+token+"&proof=wrong", "1.2.3.4")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVerifyUnknownToken(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/verify?token=nope&proof=nope", "1.2.3.4")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFetchKeyBeforeVerify(t *testing.T) {
	h := newTestHandler(t, nil)

	token, _ := begin(t, h, "1.2.3.4")
	rec := doRequest(t, h, http.MethodGet, "/api/v1/sessions/"+token+"/key", "1.2.3.4")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestFetchKeyUnknownToken(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/sessions/no-such-token/key", "1.2.3.4")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckKeyUnknown(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/keys/NOSUCHKEY", "1.2.3.4")
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.NotEmpty(t, body.Error)
}

func TestCheckKeyNormalizesInput(t *testing.T) {
	h := newTestHandler(t, nil)

	_, verifyPath := begin(t, h, "1.2.3.4")
	key := verify(t, h, verifyPath, "1.2.3.4")

	// Keys are case-insensitive on the wire.
	rec := doRequest(t, h, http.MethodGet, "/api/v1/keys/"+strings.ToLower(key), "1.2.3.4")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckKeyDeviceLimit(t *testing.T) {
	h := newTestHandler(t, nil)

	_, verifyPath := begin(t, h, "1.2.3.4")
	key := verify(t, h, verifyPath, "1.2.3.4")

	for _, addr := range []string{"1.2.3.4", "5.6.7.8", "9.9.9.9"} {
		rec := doRequest(t, h, http.MethodGet, "/api/v1/keys/"+key, addr)
		require.Equal(t, http.StatusOK, rec.Code, "address %s", addr)
	}

	rec := doRequest(t, h, http.MethodGet, "/api/v1/keys/"+key, "1.1.1.1")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCheckKeyRateLimited(t *testing.T) {
	h := newTestHandler(t, []gate.Option{
		gate.WithKeyLimit(1, time.Minute),
		gate.WithAddressLimit(1000, time.Minute),
	})

	_, verifyPath := begin(t, h, "1.2.3.4")
	key := verify(t, h, verifyPath, "1.2.3.4")

	rec := doRequest(t, h, http.MethodGet, "/api/v1/keys/"+key, "1.2.3.4")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/keys/"+key, "1.2.3.4")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestCheckKeyExpiredReturnsGone(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h := newTestHandler(t, []gate.Option{
		gate.WithClock(func() time.Time { return now }),
	})

	_, verifyPath := begin(t, h, "1.2.3.4")
	key := verify(t, h, verifyPath, "1.2.3.4")

	now = now.Add(25 * time.Hour)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/keys/"+key, "1.2.3.4")
	require.Equal(t, http.StatusGone, rec.Code)

	// The expired session was reclaimed; afterwards the key is unknown.
	rec = doRequest(t, h, http.MethodGet, "/api/v1/keys/"+key, "1.2.3.4")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBeginWithShortener(t *testing.T) {
	h := newTestHandler(t, nil, WithShortener(fakeShortener{url: "https://sho.rt/x1"}))

	rec := doRequest(t, h, http.MethodPost, "/api/v1/sessions", "1.2.3.4")
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode[BeginSessionResponse](t, rec)
	assert.True(t, body.Shortened)
	assert.Equal(t, "https://sho.rt/x1", body.URL)
}

func TestBeginShortenerFallback(t *testing.T) {
	h := newTestHandler(t, nil, WithShortener(fakeShortener{err: context.DeadlineExceeded}))

	rec := doRequest(t, h, http.MethodPost, "/api/v1/sessions", "1.2.3.4")
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode[BeginSessionResponse](t, rec)
	assert.False(t, body.Shortened)
	assert.Contains(t, body.URL, "/api/v1/verify?")
}

func TestBeginUsesConfiguredBaseURL(t *testing.T) {
	h := newTestHandler(t, nil, WithBaseURL("https://keys.example.com"))

	rec := doRequest(t, h, http.MethodPost, "/api/v1/sessions", "1.2.3.4")
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode[BeginSessionResponse](t, rec)
	assert.Contains(t, body.URL, "https://keys.example.com/api/v1/verify?")
}

func TestOpenAPISpecServed(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/openapi.yaml", "1.2.3.4")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "openapi:")
}

func TestDocsServed(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/docs", "1.2.3.4")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/redoc", "1.2.3.4")
	require.Equal(t, http.StatusOK, rec.Code)
}
