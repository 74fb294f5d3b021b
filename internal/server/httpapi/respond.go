package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/keyfold/keyfold/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON renders v with the given status. Encoding failures at this
// point can only be programming errors, so they are ignored.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the sentinel wrapped inside err to an HTTP status. The
// response body carries only the generic class message; specifics stay in
// the server log.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrBadRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad request"})
	case errors.Is(err, common.ErrUnauthorized),
		errors.Is(err, common.ErrAccountNotFound),
		errors.Is(err, common.ErrResourceNotFound),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// decodeBody parses a JSON request body into dst, classifying malformed
// input as a bad request.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return common.ErrBadRequest
	}
	return nil
}
