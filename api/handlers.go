package api

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/linkgate/linkgate/internal/util"
)

// BeginSession starts a new credential lifecycle: it creates a session,
// builds the verify URL carrying token and proof, and asks the shortening
// provider to gate it. Provider failure never fails the request — the
// direct verify URL is returned instead (the lifecycle does not depend on
// the shortener).
func (a *API) BeginSession(w http.ResponseWriter, r *http.Request) {
	addr := a.extractClientIP(r)

	res, err := a.svc.Begin(addr)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	destination := a.verifyURL(r, res.Token, res.Proof)
	link := destination
	shortened := false
	if a.shortener != nil {
		short, err := a.shortener.Shorten(r.Context(), destination)
		if err != nil {
			a.audit.log(AuditShortenerFallback, r, errAttr(err))
		} else {
			link = short
			shortened = true
		}
	}

	a.audit.log(AuditSessionCreated, r, slog.Bool("shortened", shortened))
	writeJSON(w, http.StatusCreated, BeginSessionResponse{
		Token:     res.Token,
		URL:       link,
		Shortened: shortened,
		ExpiresAt: res.ExpiresAt,
	})
}

// Verify is the landing handler for the external redirect. It completes
// verification and returns the issued key.
func (a *API) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	proof := r.URL.Query().Get("proof")
	if token == "" || proof == "" {
		writeError(w, http.StatusBadRequest, "token and proof are required")
		return
	}

	addr := a.extractClientIP(r)
	key, expiresAt, err := a.svc.CompleteVerification(token, proof, addr)
	if err != nil {
		a.audit.log(AuditVerifyRejected, r, errAttr(err))
		a.mapError(w, r, err)
		return
	}

	a.audit.log(AuditSessionVerified, r)
	writeJSON(w, http.StatusOK, VerifyResponse{Key: key, ExpiresAt: expiresAt})
}

// FetchKey returns the issued key for a verified session.
func (a *API) FetchKey(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	key, createdAt, expiresAt, err := a.svc.FetchKey(token)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	a.audit.log(AuditKeyFetched, r)
	writeJSON(w, http.StatusOK, FetchKeyResponse{
		Key:       key,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	})
}

// CheckKey validates a key presented by the credential holder's client.
func (a *API) CheckKey(w http.ResponseWriter, r *http.Request) {
	key := util.NormalizeKey(chi.URLParam(r, "key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	addr := a.extractClientIP(r)
	res, err := a.svc.CheckKey(key, addr)
	if err != nil {
		a.audit.log(AuditKeyCheckRejected, r, errAttr(err))
		a.mapError(w, r, err)
		return
	}

	a.audit.log(AuditKeyChecked, r, slog.Uint64("check_count", res.CheckCount))
	writeJSON(w, http.StatusOK, CheckKeyResponse{
		Valid:      true,
		ExpiresAt:  res.ExpiresAt,
		CheckCount: res.CheckCount,
	})
}

// verifyURL builds the destination the redirect must land on. The base
// URL comes from configuration when set, otherwise from the request.
func (a *API) verifyURL(r *http.Request, token, proof string) string {
	base := a.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	q := url.Values{}
	q.Set("token", token)
	q.Set("proof", proof)
	return base + "/api/v1/verify?" + q.Encode()
}
