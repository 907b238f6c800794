package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stampgate/pkg/platform/circuit"
)

func serve(t *testing.T, h *Handler, path string) (*httptest.ResponseRecorder, ReadinessResponse) {
	t.Helper()
	r := chi.NewRouter()
	h.Register(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestReadiness(t *testing.T) {
	t.Run("all up", func(t *testing.T) {
		h := New()
		h.RegisterCheck("registry", func() error { return nil })

		w, body := serve(t, h, "/health/ready")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ready", body.Status)
		assert.Equal(t, "up", body.Checks["registry"])
	})

	t.Run("open circuit is degraded", func(t *testing.T) {
		b := circuit.New("github", circuit.WithFailureThreshold(1))
		b.Record(true)

		h := New()
		h.RegisterCheck("github", BreakerCheck(b))
		h.RegisterCheck("registry", func() error { return nil })

		w, body := serve(t, h, "/health/ready")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "degraded", body.Status)
		assert.Contains(t, body.Checks["github"], "circuit open")
	})

	t.Run("hard failure wins", func(t *testing.T) {
		b := circuit.New("github", circuit.WithFailureThreshold(1))
		b.Record(true)

		h := New()
		h.RegisterCheck("github", BreakerCheck(b))
		h.RegisterCheck("registry", func() error { return errors.New("no providers registered") })

		w, body := serve(t, h, "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "not_ready", body.Status)
		assert.Equal(t, "down: no providers registered", body.Checks["registry"])
	})
}

func TestLivenessAndStatus(t *testing.T) {
	h := New()
	r := chi.NewRouter()
	h.Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.JSONEq(t, `{"status":"alive"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var status StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, Version, status.Version)
}
