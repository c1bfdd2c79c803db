package tracing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nymtech/nym-sub006/internal/shared/id"
)

type (
	TraceID = id.TraceID
	SpanID  = id.SpanID
)

// Carrier keys; the host HTTP surface uses the same names as headers
const (
	TraceHeader = "X-Trace-ID"
	SpanHeader  = "X-Span-ID"
)

const spanBuffer = 1024

// Span is one traced operation
type Span struct {
	TraceID  TraceID
	SpanID   SpanID
	ParentID SpanID
	Name     string

	start  time.Time
	tracer *Tracer

	mu      sync.Mutex
	elapsed time.Duration
	tags    map[string]string
	status  string
	err     error
}

// Tracer logs completed spans through zap from a single collector
// goroutine, so callers never block on logging
type Tracer struct {
	service string
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	spans  chan *Span
	done   chan struct{}
	once   sync.Once
}

// New creates a tracer for service and starts its collector
func New(service string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		service: service,
		logger:  logger.Named("trace"),
		spans:   make(chan *Span, spanBuffer),
		done:    make(chan struct{}),
	}
	go t.collect()
	return t
}

type spanContext struct {
	trace TraceID
	span  SpanID
}

type ctxKey struct{}

func fromContext(ctx context.Context) spanContext {
	sc, _ := ctx.Value(ctxKey{}).(spanContext)
	return sc
}

// StartSpan opens a span, joining the trace carried by ctx if any
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	parent := fromContext(ctx)
	traceID := parent.trace
	if traceID == "" {
		traceID = id.NewTraceID()
	}

	span := &Span{
		TraceID:  traceID,
		SpanID:   id.NewSpanID(),
		ParentID: parent.span,
		Name:     name,
		start:    time.Now(),
		tracer:   t,
	}
	return span, context.WithValue(ctx, ctxKey{}, spanContext{trace: traceID, span: span.SpanID})
}

// Trace runs fn inside a span named name and submits it when fn returns
func (t *Tracer) Trace(ctx context.Context, name string, fn func(ctx context.Context, span *Span) error) error {
	span, ctx := t.StartSpan(ctx, name)
	err := fn(ctx, span)
	if err != nil {
		span.SetError(err)
	}
	span.Done()
	return err
}

// SetTag attaches a key/value to the span
func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tags == nil {
		s.tags = make(map[string]string)
	}
	s.tags[key] = value
}

// SetStatus sets the outcome label
func (s *Span) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// SetError records err; the status becomes "error" unless one is set
func (s *Span) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	if s.status == "" {
		s.status = "error"
	}
}

// Done ends the span and hands it to its tracer
func (s *Span) Done() {
	s.mu.Lock()
	if s.elapsed == 0 {
		s.elapsed = time.Since(s.start)
	}
	s.mu.Unlock()
	s.tracer.submit(s)
}

func (t *Tracer) submit(span *Span) {
	if t == nil {
		return
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}

	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", span.TraceID.String()),
			zap.String("operation", span.Name),
		)
	}
}

func (t *Tracer) collect() {
	defer close(t.done)
	for span := range t.spans {
		t.log(span)
	}
}

func (t *Tracer) log(span *Span) {
	span.mu.Lock()
	defer span.mu.Unlock()

	fields := make([]zap.Field, 0, 6+len(span.tags))
	fields = append(fields,
		zap.String("service", t.service),
		zap.String("operation", span.Name),
		zap.String("trace_id", span.TraceID.String()),
		zap.String("span_id", span.SpanID.String()),
		zap.Duration("duration", span.elapsed),
	)
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", span.ParentID.String()))
	}
	if span.status != "" {
		fields = append(fields, zap.String("status", span.status))
	}
	for k, v := range span.tags {
		fields = append(fields, zap.String("tag."+k, v))
	}

	if span.err != nil {
		t.logger.Warn("span completed with error", append(fields, zap.Error(span.err))...)
		return
	}
	t.logger.Debug("span completed", fields...)
}

// Close stops accepting spans and waits until buffered ones are logged
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.mu.Lock()
		t.closed = true
		close(t.spans)
		t.mu.Unlock()
		<-t.done
	})
}

// InjectTraceContext writes the trace context of ctx into carrier
func InjectTraceContext(ctx context.Context, carrier map[string]string) {
	sc := fromContext(ctx)
	if sc.trace != "" {
		carrier[TraceHeader] = sc.trace.String()
	}
	if sc.span != "" {
		carrier[SpanHeader] = sc.span.String()
	}
}

// ExtractTraceContext returns ctx joined to the trace carried in carrier.
// A carrier without a trace id leaves ctx unchanged.
func ExtractTraceContext(ctx context.Context, carrier map[string]string) context.Context {
	traceID := carrier[TraceHeader]
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, spanContext{
		trace: TraceID(traceID),
		span:  SpanID(carrier[SpanHeader]),
	})
}

// GetTraceID returns the trace id carried by ctx
func GetTraceID(ctx context.Context) TraceID {
	return fromContext(ctx).trace
}

// GetSpanID returns the current span id carried by ctx
func GetSpanID(ctx context.Context) SpanID {
	return fromContext(ctx).span
}
