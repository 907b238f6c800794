// Package tracer is the span API used by the dispatcher and service.
// Callers depend on Tracer only; OTelTracer backs it in the server and
// Noop or Recorder in tests.
package tracer

import (
	"context"
	"sync"
)

// Span names.
const (
	SpanVerify      = "verification.verify"
	SpanVerifyBatch = "verification.batch"
	SpanDispatch    = "verification.dispatch"
)

// Attribute keys. Proof values never become attributes.
const (
	AttrConditionType = "condition.type"
	AttrValid         = "verification.valid"
	AttrResult        = "verification.result"
	AttrBatchSize     = "batch.size"
	AttrCacheEntries  = "exchange_cache.entries"
)

const EventProviderPanic = "provider.panic"

// Span is an active span. End must be called exactly once; a non-nil err
// marks the span failed.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer starts spans. Implementations are safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a span attribute restricted to string, bool and int64 values.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute { return Attribute{Key: key, Value: value} }

func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }

func Int64(key string, value int64) Attribute { return Attribute{Key: key, Value: value} }

// Noop discards everything.
type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) Start(ctx context.Context, _ string, _ ...Attribute) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error)                     {}
func (noopSpan) SetAttributes(...Attribute)    {}
func (noopSpan) AddEvent(string, ...Attribute) {}

// RecordedSpan is a finished span captured by Recorder.
type RecordedSpan struct {
	Name       string
	Attributes map[string]any
	Events     []string
	Err        error
}

// Recorder keeps finished spans in memory for assertions.
type Recorder struct {
	mu    sync.Mutex
	spans []RecordedSpan
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	s := &recorderSpan{rec: r, span: RecordedSpan{Name: name, Attributes: map[string]any{}}}
	s.SetAttributes(attrs...)
	return ctx, s
}

// Spans returns the finished spans named name, in completion order.
func (r *Recorder) Spans(name string) []RecordedSpan {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RecordedSpan
	for _, s := range r.spans {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

type recorderSpan struct {
	rec  *Recorder
	mu   sync.Mutex
	span RecordedSpan
}

func (s *recorderSpan) End(err error) {
	s.mu.Lock()
	s.span.Err = err
	done := s.span
	s.mu.Unlock()

	s.rec.mu.Lock()
	s.rec.spans = append(s.rec.spans, done)
	s.rec.mu.Unlock()
}

func (s *recorderSpan) SetAttributes(attrs ...Attribute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range attrs {
		s.span.Attributes[a.Key] = a.Value
	}
}

func (s *recorderSpan) AddEvent(name string, _ ...Attribute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.span.Events = append(s.span.Events, name)
}

var (
	_ Tracer = Noop{}
	_ Tracer = (*Recorder)(nil)
	_ Tracer = (*OTelTracer)(nil)
)
