package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "stampgate/pkg/domain-errors"
)

// MaxBodyBytes caps inbound JSON bodies. Verification payloads are small maps of proofs.
const MaxBodyBytes = 64 << 10

// Decode reads one JSON document from r's body into a new T. On failure it
// writes the error response, logs with logAttrs, and returns false.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, logAttrs ...any) (*T, bool) {
	var req T
	if err := decodeBody(w, r, &req); err != nil {
		logger.WarnContext(r.Context(), "failed to decode request body", append(logAttrs, "error", err)...)
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	err := dec.Decode(dst)
	if err == nil {
		if _, trailing := dec.Token(); trailing != io.EOF {
			return dErrors.New(dErrors.CodeBadRequest, "request body must hold a single JSON object")
		}
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return dErrors.Newf(dErrors.CodePayloadTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
	}
	return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
}

// Preparable request types normalize themselves before validating.
type Preparable interface {
	Normalize()
	Validate() error
}

// DecodeAndPrepare decodes, normalizes and validates. Validation failures
// without a domain code are reported as validation_error.
func DecodeAndPrepare[T any, PT interface {
	*T
	Preparable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, logAttrs ...any) (*T, bool) {
	req, ok := Decode[T](w, r, logger, logAttrs...)
	if !ok {
		return nil, false
	}

	p := PT(req)
	p.Normalize()
	if err := p.Validate(); err != nil {
		logger.WarnContext(r.Context(), "invalid request", append(logAttrs, "error", err)...)
		if _, isDomain := dErrors.As(err); !isDomain {
			err = dErrors.New(dErrors.CodeValidation, err.Error())
		}
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
