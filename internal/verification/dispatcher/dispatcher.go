// Package dispatcher routes verification payloads to providers.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"stampgate/internal/verification/metrics"
	"stampgate/internal/verification/models"
	"stampgate/internal/verification/providers"
	"stampgate/internal/verification/tracer"
)

const (
	DefaultMaxConcurrency = 8

	errInternal = "internal error"

	// unknownTypeLabel keeps arbitrary client-supplied types out of metric labels.
	unknownTypeLabel = "unknown"
)

// Dispatcher looks up the provider for a payload, checks its proofs and runs it.
// It never makes an external call for an unknown type or missing proof.
type Dispatcher struct {
	registry       *providers.Registry
	maxConcurrency int
	metrics        *metrics.Metrics
	tracer         tracer.Tracer
	logger         *slog.Logger
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = t
	}
}

// WithMaxConcurrency bounds how many providers of one batch run at once.
func WithMaxConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxConcurrency = n
		}
	}
}

func New(registry *providers.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:       registry,
		maxConcurrency: DefaultMaxConcurrency,
		tracer:         tracer.NewNoop(),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch verifies one payload against the provider registered for its type.
func (d *Dispatcher) Dispatch(ctx context.Context, payload models.RequestPayload, pc *providers.Context) models.VerifiedPayload {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, tracer.SpanDispatch, tracer.String(tracer.AttrConditionType, payload.Type))

	label, result := d.dispatch(ctx, payload, pc, span)

	outcome := metrics.Result(result.Valid, result.Errors)
	span.SetAttributes(tracer.Bool(tracer.AttrValid, result.Valid), tracer.String(tracer.AttrResult, outcome))
	span.End(nil)
	if d.metrics != nil {
		d.metrics.ObserveVerification(label, outcome, time.Since(start))
	}
	d.logger.InfoContext(ctx, "verification completed",
		"type", label,
		"result", outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, payload models.RequestPayload, pc *providers.Context, span tracer.Span) (string, models.VerifiedPayload) {
	p, ok := d.registry.Get(providers.ConditionType(payload.Type))
	if !ok {
		return unknownTypeLabel, models.Invalid(providers.ErrUnknownType.Error())
	}
	label := string(p.Type())

	for _, name := range p.RequiredProofs() {
		if payload.Proof(name) == "" {
			return label, models.Invalid(providers.MissingProof(name))
		}
	}

	return label, d.invoke(ctx, p, payload, pc, span)
}

// invoke runs the provider and turns a panic into a negative result.
func (d *Dispatcher) invoke(ctx context.Context, p providers.Provider, payload models.RequestPayload, pc *providers.Context, span tracer.Span) (result models.VerifiedPayload) {
	defer func() {
		if r := recover(); r != nil {
			span.AddEvent(tracer.EventProviderPanic)
			d.logger.ErrorContext(ctx, "provider panicked",
				"type", string(p.Type()),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			result = models.Invalid(errInternal)
		}
	}()
	result = p.Verify(ctx, payload, pc)
	if !result.Valid {
		// Never hand a record back with a negative result.
		result.Record = nil
	}
	return result
}

// DispatchAll verifies payloads concurrently against a shared Context.
// Results are returned in input order.
func (d *Dispatcher) DispatchAll(ctx context.Context, payloads []models.RequestPayload, pc *providers.Context) []models.VerifiedPayload {
	results := make([]models.VerifiedPayload, len(payloads))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxConcurrency)
	for i, payload := range payloads {
		g.Go(func() error {
			// Each goroutine writes only its own slot.
			results[i] = d.Dispatch(ctx, payload, pc)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
