// internal/api/respond.go
//
// JSON envelope helpers and the error taxonomy mapping.
//
// Context
// -------
// Every error leaves this service as `{error, message}` plus an optional
// `hint` (subscribe URL) or `remaining` (rate-limit quota), with the
// status code implied by the taxonomy:
//
//	invalid_input          400
//	not_logged_in          401
//	subscription_required  403, admin_required 403, csrf_required 403
//	not_found              404
//	rate_limited           429
//	storage_unavailable    500
//	provider_unavailable   502
//
// Handlers translate sentinel errors from the stores through fromError;
// unknown errors deliberately collapse into storage_unavailable so no
// internal detail leaks to the caller.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/siteforge/siteforge/internal/siteconfig"
)

// apiError is the wire shape of a failure.
type apiError struct {
	status  int
	Code    string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func errInvalidInput(msg string) apiError {
	return apiError{status: http.StatusBadRequest, Code: "invalid_input", Message: msg}
}

func errNotFound() apiError {
	return apiError{status: http.StatusNotFound, Code: "not_found", Message: "no such record"}
}

func errNotLoggedIn() apiError {
	return apiError{status: http.StatusUnauthorized, Code: "not_logged_in",
		Message: "authentication required"}
}

func errForbidden(code, msg, hint string) apiError {
	return apiError{status: http.StatusForbidden, Code: code, Message: msg, Hint: hint}
}

func errRateLimited() apiError {
	return apiError{status: http.StatusTooManyRequests, Code: "rate_limited",
		Message: "write quota exhausted for this window"}
}

func errStorage() apiError {
	return apiError{status: http.StatusInternalServerError, Code: "storage_unavailable",
		Message: "temporary storage failure, try again later"}
}

func errProvider(msg string) apiError {
	return apiError{status: http.StatusBadGateway, Code: "provider_unavailable", Message: msg}
}

// fromError maps store sentinels onto the taxonomy.
func fromError(err error) apiError {
	switch {
	case errors.Is(err, siteconfig.ErrInvalidInput):
		return errInvalidInput(err.Error())
	case errors.Is(err, siteconfig.ErrNotFound):
		return errNotFound()
	default:
		zap.L().Error("storage error", zap.Error(err))
		return errStorage()
	}
}

// writeJSON emits v with the given status.  Encoding failures are logged;
// at that point the status line is already gone.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("response encode failed", zap.Error(err))
	}
}

// writeRawJSON emits pre-serialized JSON (the stored document) verbatim.
func writeRawJSON(w http.ResponseWriter, status int, doc []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(doc)
}

func writeError(w http.ResponseWriter, e apiError) {
	writeJSON(w, e.status, e)
}
