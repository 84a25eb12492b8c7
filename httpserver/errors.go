package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type errorClass struct {
	err    error
	status int
	code   string
}

// errorClasses is checked in order; the first match wins.
var errorClasses = []errorClass{
	{interfaces.ErrRejected, http.StatusConflict, "rejected"},
	{interfaces.ErrSessionExpired, http.StatusUnauthorized, "session_expired"},
	{interfaces.ErrSigning, http.StatusUnauthorized, "signing"},
	{interfaces.ErrSessionNotFound, http.StatusUnauthorized, "no_session"},
	{interfaces.ErrInvalidCredential, http.StatusBadRequest, "invalid_credential"},
	{interfaces.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{interfaces.ErrInvalidAddress, http.StatusBadRequest, "invalid_address"},
	{interfaces.ErrInvalidLocationURI, http.StatusBadRequest, "invalid_argument"},
	{interfaces.ErrContentTooLarge, http.StatusRequestEntityTooLarge, "too_large"},
	{interfaces.ErrObjectNotFound, http.StatusNotFound, "not_found"},
	{interfaces.ErrContentNotFound, http.StatusNotFound, "not_found"},
	{interfaces.ErrTransactionNotFound, http.StatusNotFound, "not_found"},
	{interfaces.ErrSaltUnavailable, http.StatusBadGateway, "salt_unavailable"},
	{interfaces.ErrProofUnavailable, http.StatusBadGateway, "proof_unavailable"},
	{interfaces.ErrNetwork, http.StatusBadGateway, "network"},
	{interfaces.ErrBackendUnavailable, http.StatusBadGateway, "backend_unavailable"},
	{interfaces.ErrConfiguration, http.StatusInternalServerError, "configuration"},
}

// statusFor maps a classified error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err, "method", r.Method, "path", r.URL.Path)
	} else {
		h.log.Debug("Request refused", "err", err, "method", r.Method, "path", r.URL.Path, "status", status)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}
