// Package service is the entry point for verification requests. It owns the
// lifecycle of the per-request provider Context.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gowebpki/jcs"

	"stampgate/internal/verification/metrics"
	"stampgate/internal/verification/models"
	"stampgate/internal/verification/providers"
	"stampgate/internal/verification/tracer"
)

// Dispatcher runs payloads against registered providers.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload models.RequestPayload, pc *providers.Context) models.VerifiedPayload
	DispatchAll(ctx context.Context, payloads []models.RequestPayload, pc *providers.Context) []models.VerifiedPayload
}

type Service struct {
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	tracer     tracer.Tracer
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics records batch sizes and exchange cache activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(dispatcher Dispatcher, opts ...Option) *Service {
	s := &Service{
		dispatcher: dispatcher,
		tracer:     tracer.NewNoop(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify checks the payload shape and verifies it with a fresh Context.
// Shape errors are returned as CodeValidation domain errors; every other
// outcome is expressed in the VerifiedPayload.
func (s *Service) Verify(ctx context.Context, payload models.RequestPayload) (models.VerifiedPayload, error) {
	payload.Normalize()
	if err := payload.Validate(); err != nil {
		return models.VerifiedPayload{}, err
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify, tracer.String(tracer.AttrConditionType, payload.Type))
	pc := s.newContext()
	result := s.dispatcher.Dispatch(ctx, payload, pc)
	span.SetAttributes(
		tracer.Bool(tracer.AttrValid, result.Valid),
		tracer.Int64(tracer.AttrCacheEntries, int64(pc.Len())),
	)
	span.End(nil)

	s.logRecord(ctx, payload.Type, payload.Address, result)
	return result, nil
}

// VerifyBatch verifies every type in req against one shared Context, so
// exchanges such as an OAuth code or a stake lookup happen once per batch.
func (s *Service) VerifyBatch(ctx context.Context, req models.BatchRequest) ([]models.TypedResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerifyBatch, tracer.Int64(tracer.AttrBatchSize, int64(len(req.Types))))
	pc := s.newContext()
	payloads := req.Payloads()
	results := s.dispatcher.DispatchAll(ctx, payloads, pc)
	span.SetAttributes(tracer.Int64(tracer.AttrCacheEntries, int64(pc.Len())))
	span.End(nil)

	if s.metrics != nil {
		s.metrics.ObserveBatch(len(payloads))
	}

	out := make([]models.TypedResult, len(results))
	for i, r := range results {
		out[i] = models.TypedResult{Type: payloads[i].Type, VerifiedPayload: r}
		s.logRecord(ctx, payloads[i].Type, req.Address, r)
	}
	s.logger.InfoContext(ctx, "batch verified",
		"size", len(payloads),
		"exchanges", pc.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (s *Service) newContext() *providers.Context {
	if s.metrics == nil {
		return providers.NewContext()
	}
	return providers.NewContext(providers.WithCacheObserver(s.metrics))
}

// logRecord logs a digest of a positive record. Record values are never logged.
func (s *Service) logRecord(ctx context.Context, conditionType, address string, result models.VerifiedPayload) {
	if !result.Valid {
		return
	}
	digest, err := RecordDigest(conditionType, address, result.Record)
	if err != nil {
		s.logger.WarnContext(ctx, "record digest failed", "type", conditionType, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "record issued", "type", conditionType, "record_digest", digest)
}

// RecordDigest is the hex SHA-256 of the canonical JSON (RFC 8785) of the
// record together with its type and address. Equal records hash equally
// regardless of map ordering.
func RecordDigest(conditionType, address string, record map[string]string) (string, error) {
	raw, err := json.Marshal(struct {
		Type    string            `json:"type"`
		Address string            `json:"address,omitempty"`
		Record  map[string]string `json:"record"`
	}{conditionType, address, record})
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
