// Package health serves liveness, readiness and status probes.
package health

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"stampgate/pkg/platform/circuit"
	"stampgate/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

// ErrDegraded marks a check whose failure leaves the service answering, only
// with negative results for some condition types.
var ErrDegraded = errors.New("degraded")

// CheckFunc returns nil when healthy. Errors wrapping ErrDegraded downgrade
// readiness to "degraded" instead of failing it.
type CheckFunc func() error

// BreakerCheck reports an open circuit as degraded.
func BreakerCheck(b *circuit.Breaker) CheckFunc {
	return func() error {
		if st := b.State(); st != circuit.Closed {
			return fmt.Errorf("%w: circuit %s", ErrDegraded, st)
		}
		return nil
	}
}

type Handler struct {
	startTime time.Time
	now       func() time.Time

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

func New() *Handler {
	return &Handler{
		startTime: time.Now(),
		now:       time.Now,
		checks:    make(map[string]CheckFunc),
	}
}

// RegisterCheck adds a named readiness check.
func (h *Handler) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Register mounts health check routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

type LivenessResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs every check. A hard failure answers 503; degraded
// checks still answer 200.
func (h *Handler) HandleReadiness(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checks := maps.Clone(h.checks)
	h.mu.RUnlock()

	response := ReadinessResponse{Status: "ready", Checks: make(map[string]string, len(checks))}
	status := http.StatusOK
	for name, check := range checks {
		err := check()
		switch {
		case err == nil:
			response.Checks[name] = "up"
		case errors.Is(err, ErrDegraded):
			response.Checks[name] = err.Error()
			if status == http.StatusOK {
				response.Status = "degraded"
			}
		default:
			response.Checks[name] = "down: " + err.Error()
			response.Status = "not_ready"
			status = http.StatusServiceUnavailable
		}
	}

	httputil.WriteJSON(w, status, response)
}

type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	now := h.now()
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:        "healthy",
		Version:       Version,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Timestamp:     now.UTC().Format(time.RFC3339),
	})
}
