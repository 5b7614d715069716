// Package shortener wraps the external link-shortening provider that
// gates the verification redirect. The credential lifecycle never depends
// on the provider succeeding: callers fall back to the direct verify URL
// when it is unavailable.
package shortener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/awnumar/memguard"
)

// ErrUnavailable is returned when the provider cannot produce a short
// URL — network failure, non-2xx status, or an error payload.
var ErrUnavailable = errors.New("shortening provider unavailable")

// Client shortens a verification destination URL.
type Client interface {
	Shorten(ctx context.Context, destination string) (string, error)
}

// HTTPClient calls a link4m-style shortening API:
//
//	GET <endpoint>?api=<key>&url=<destination>
//
// responding {"status":"success","shortenedUrl":"..."}.
//
// The API key lives in a memguard enclave and is only held in plaintext
// for the duration of one request.
type HTTPClient struct {
	endpoint string
	apiKey   *memguard.Enclave
	client   *http.Client
}

var _ Client = (*HTTPClient)(nil)

// New creates a client for the given endpoint. The enclave must contain
// the provider API key.
func New(endpoint string, apiKey *memguard.Enclave) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type shortenResponse struct {
	Status       string `json:"status"`
	ShortenedURL string `json:"shortenedUrl"`
	Message      string `json:"message"`
}

// Shorten returns a short URL redirecting to destination.
func (c *HTTPClient) Shorten(ctx context.Context, destination string) (string, error) {
	keyBuf, err := c.apiKey.Open()
	if err != nil {
		return "", fmt.Errorf("opening api key enclave: %w", err)
	}
	defer keyBuf.Destroy()

	q := url.Values{}
	q.Set("api", keyBuf.String())
	q.Set("url", destination)
	reqURL := c.endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("building shorten request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body shortenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	if body.Status != "success" || body.ShortenedURL == "" {
		return "", fmt.Errorf("%w: provider returned %q", ErrUnavailable, body.Status)
	}
	return body.ShortenedURL, nil
}
