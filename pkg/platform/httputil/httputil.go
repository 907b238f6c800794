// Package httputil writes stampgate's JSON responses and decodes request
// bodies into domain request types.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "stampgate/pkg/domain-errors"
)

type errorMapping struct {
	status int
	wire   string
}

var errorMappings = map[dErrors.Code]errorMapping{
	dErrors.CodeBadRequest:       {http.StatusBadRequest, "bad_request"},
	dErrors.CodeValidation:       {http.StatusBadRequest, "validation_error"},
	dErrors.CodeUnauthorized:     {http.StatusUnauthorized, "unauthorized"},
	dErrors.CodePayloadTooLarge:  {http.StatusRequestEntityTooLarge, "payload_too_large"},
	dErrors.CodeUnsupportedMedia: {http.StatusUnsupportedMediaType, "invalid_content_type"},
}

var internalMapping = errorMapping{http.StatusInternalServerError, "internal_error"}

// ErrorBody is the envelope for every non-2xx response.
type ErrorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent, an encoding error cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError writes err as an ErrorBody. Only domain errors expose their
// message; anything else becomes an opaque internal_error.
func WriteError(w http.ResponseWriter, err error) {
	domainErr, ok := dErrors.As(err)
	if !ok {
		WriteJSON(w, internalMapping.status, ErrorBody{Error: internalMapping.wire})
		return
	}
	m, known := errorMappings[domainErr.Code]
	if !known {
		m = internalMapping
	}
	WriteJSON(w, m.status, ErrorBody{Error: m.wire, Description: domainErr.Message})
}
