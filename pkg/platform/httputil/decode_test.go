package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "stampgate/pkg/domain-errors"
)

type proofRequest struct {
	Type   string            `json:"type"`
	Proofs map[string]string `json:"proofs"`
}

func (r *proofRequest) Normalize() {
	r.Type = strings.TrimSpace(r.Type)
}

func (r *proofRequest) Validate() error {
	switch {
	case r.Type == "":
		return errors.New("type is required")
	case r.Type == "Twitter":
		return dErrors.New(dErrors.CodeBadRequest, "retired type")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/v1/verify", bytes.NewBufferString(body))
}

func TestDecode(t *testing.T) {
	t.Run("decodes body", func(t *testing.T) {
		w := httptest.NewRecorder()
		result, ok := Decode[proofRequest](w, post(`{"type":"Facebook","proofs":{"accessToken":"x"}}`+"\n"), discardLogger())

		require.True(t, ok)
		assert.Equal(t, "Facebook", result.Type)
		assert.Equal(t, "x", result.Proofs["accessToken"])
	})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"malformed JSON", `{nope`, http.StatusBadRequest, "bad_request"},
		{"empty body", ``, http.StatusBadRequest, "bad_request"},
		{"two documents", `{"type":"A"}{"type":"B"}`, http.StatusBadRequest, "bad_request"},
		{"oversized body", `{"type":"` + strings.Repeat("a", MaxBodyBytes) + `"}`, http.StatusRequestEntityTooLarge, "payload_too_large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			result, ok := Decode[proofRequest](w, post(tt.body), discardLogger(), "request_id", "req-1")

			assert.False(t, ok)
			assert.Nil(t, result)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, errorBody(t, w).Error)
		})
	}
}

func TestDecodeAndPrepare(t *testing.T) {
	t.Run("normalizes before validating", func(t *testing.T) {
		w := httptest.NewRecorder()
		result, ok := DecodeAndPrepare[proofRequest](w, post(`{"type":"  Facebook "}`), discardLogger())

		require.True(t, ok)
		assert.Equal(t, "Facebook", result.Type)
	})

	t.Run("plain validation error maps to validation_error", func(t *testing.T) {
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[proofRequest](w, post(`{"type":"   "}`), discardLogger())

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, ErrorBody{Error: "validation_error", Description: "type is required"}, errorBody(t, w))
	})

	t.Run("domain error code is preserved", func(t *testing.T) {
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[proofRequest](w, post(`{"type":"Twitter"}`), discardLogger())

		assert.False(t, ok)
		assert.Equal(t, "bad_request", errorBody(t, w).Error)
	})
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		want       ErrorBody
	}{
		{"validation", dErrors.New(dErrors.CodeValidation, "types is required"), http.StatusBadRequest, ErrorBody{"validation_error", "types is required"}},
		{"unauthorized", dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"), http.StatusUnauthorized, ErrorBody{"unauthorized", "invalid or expired token"}},
		{"unsupported media", dErrors.New(dErrors.CodeUnsupportedMedia, ""), http.StatusUnsupportedMediaType, ErrorBody{Error: "invalid_content_type"}},
		{"unknown code", &dErrors.Error{Code: "teapot", Message: "short and stout"}, http.StatusInternalServerError, ErrorBody{"internal_error", "short and stout"}},
		{"plain error hides message", errors.New("dial tcp: connection refused"), http.StatusInternalServerError, ErrorBody{Error: "internal_error"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, tt.want, errorBody(t, w))
		})
	}
}
