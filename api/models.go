package api

import "time"

// ErrorResponse is the JSON body for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// BeginSessionResponse is returned from POST /sessions. URL is the link
// the client must follow to verify; Shortened reports whether the
// provider produced it or the direct verify URL was used as fallback.
type BeginSessionResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	Shortened bool      `json:"shortened"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyResponse is returned from GET /verify when the redirect lands
// back with a valid token and proof.
type VerifyResponse struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FetchKeyResponse is returned from GET /sessions/{token}/key.
type FetchKeyResponse struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CheckKeyResponse is returned from GET /keys/{key}.
type CheckKeyResponse struct {
	Valid      bool      `json:"valid"`
	ExpiresAt  time.Time `json:"expires_at"`
	CheckCount uint64    `json:"check_count"`
}
