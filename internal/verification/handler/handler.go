package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stampgate/internal/verification/models"
	"stampgate/internal/verification/providers"
	"stampgate/pkg/platform/httputil"
	"stampgate/pkg/platform/middleware/auth"
	"stampgate/pkg/platform/middleware/request"
)

// VerificationService defines the operations used by the handler.
type VerificationService interface {
	Verify(ctx context.Context, payload models.RequestPayload) (models.VerifiedPayload, error)
	VerifyBatch(ctx context.Context, req models.BatchRequest) ([]models.TypedResult, error)
}

// ProviderLister reports the registered condition types.
type ProviderLister interface {
	Types() []providers.ConditionType
}

// Handler serves the verification API.
type Handler struct {
	service  VerificationService
	registry ProviderLister
	logger   *slog.Logger
}

func New(service VerificationService, registry ProviderLister, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		registry: registry,
		logger:   logger,
	}
}

// Register mounts the handler routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/verify", h.HandleVerify)
	r.Post("/verify/batch", h.HandleVerifyBatch)
	r.Get("/providers", h.HandleProviders)
}

// BatchResponse wraps batch results.
type BatchResponse struct {
	Results []models.TypedResult `json:"results"`
}

// ProvidersResponse lists the condition types this deployment verifies.
type ProvidersResponse struct {
	Types []string `json:"types"`
}

// HandleVerify handles POST /verify. A negative verification is still a 200:
// the decision lives in the body.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	payload, ok := httputil.DecodeAndPrepare[models.RequestPayload](w, r, h.logger, "request_id", requestID)
	if !ok {
		return
	}

	result, err := h.service.Verify(ctx, *payload)
	if err != nil {
		h.logger.WarnContext(ctx, "verification rejected",
			"request_id", requestID,
			"caller", auth.GetCaller(ctx),
			"type", payload.Type,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleVerifyBatch handles POST /verify/batch.
func (h *Handler) HandleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.BatchRequest](w, r, h.logger, "request_id", requestID)
	if !ok {
		return
	}

	results, err := h.service.VerifyBatch(ctx, *req)
	if err != nil {
		h.logger.WarnContext(ctx, "batch verification rejected",
			"request_id", requestID,
			"caller", auth.GetCaller(ctx),
			"size", len(req.Types),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, BatchResponse{Results: results})
}

// HandleProviders handles GET /providers.
func (h *Handler) HandleProviders(w http.ResponseWriter, _ *http.Request) {
	registered := h.registry.Types()
	types := make([]string, len(registered))
	for i, t := range registered {
		types[i] = string(t)
	}
	httputil.WriteJSON(w, http.StatusOK, ProvidersResponse{Types: types})
}
