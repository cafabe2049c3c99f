// Package httpjson writes JSON responses and the coded error envelope used
// by every handler.
package httpjson

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "vaultbridge/pkg/domain-errors"
)

// Write encodes v as JSON with the given status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteError maps a coded domain error to its HTTP status and envelope.
// Unknown errors surface as internal without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	message := ""
	var de *dErrors.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	Write(w, dErrors.ToHTTPStatus(code), errorEnvelope{
		Error:   string(code),
		Message: message,
	})
}
