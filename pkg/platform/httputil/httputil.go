// Package httputil translates domain errors into HTTP responses.
//
// The mapping from error code to status is the single place transport learns
// about the error taxonomy; handlers never pick statuses by hand.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "attest/pkg/domain-errors"
)

var codeStatus = map[dErrors.Code]int{
	dErrors.CodeBadRequest:         http.StatusBadRequest,
	dErrors.CodeInvalidInput:       http.StatusBadRequest,
	dErrors.CodeValidation:         http.StatusUnprocessableEntity,
	dErrors.CodeUnauthorized:       http.StatusUnauthorized,
	dErrors.CodeForbidden:          http.StatusForbidden,
	dErrors.CodeNotFound:           http.StatusNotFound,
	dErrors.CodeConflict:           http.StatusConflict,
	dErrors.CodeInvalidState:       http.StatusConflict,
	dErrors.CodeSealedImmutable:    http.StatusConflict,
	dErrors.CodeGone:               http.StatusGone,
	dErrors.CodeUnavailable:        http.StatusServiceUnavailable,
	dErrors.CodeTimeout:            http.StatusGatewayTimeout,
	dErrors.CodeInvariantViolation: http.StatusConflict,
	dErrors.CodeInternal:           http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for an error's code. Unknown errors are 500.
func StatusFor(err error) int {
	if status, ok := codeStatus[dErrors.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError writes a coded error as JSON. Internal errors omit the
// description so infrastructure details never reach callers.
func WriteError(w http.ResponseWriter, err error) {
	body := errorBody{
		Error:            string(dErrors.CodeOf(err)),
		ErrorDescription: dErrors.MessageOf(err),
	}
	WriteJSON(w, StatusFor(err), body)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
