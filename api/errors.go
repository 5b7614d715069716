package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/linkgate/linkgate/gate"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// mapError translates engine errors into HTTP responses. Every sentinel
// is an expected, user-facing condition; anything else is a storage
// failure and surfaces as a generic 500 (the detail goes to the log, not
// the client).
func (a *API) mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gate.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, gate.ErrExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, gate.ErrNotVerified):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, gate.ErrInvalidProof):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, gate.ErrDeviceLimitExceeded):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, gate.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		a.audit.log(AuditStoreFailure, r, errAttr(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
