package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedTracer() (*Tracer, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return New("test", zap.New(core)), logs
}

func TestStartSpanPropagation(t *testing.T) {
	tracer, _ := newObservedTracer()
	defer tracer.Close()

	parent, ctx := tracer.StartSpan(context.Background(), "parent")
	child, childCtx := tracer.StartSpan(ctx, "child")

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(childCtx))
	assert.Equal(t, parent.TraceID, GetTraceID(childCtx))
}

func TestCarrierRoundTrip(t *testing.T) {
	tracer, _ := newObservedTracer()
	defer tracer.Close()

	span, ctx := tracer.StartSpan(context.Background(), "client")

	carrier := map[string]string{}
	InjectTraceContext(ctx, carrier)
	require.Equal(t, span.TraceID.String(), carrier[TraceHeader])

	remote := ExtractTraceContext(context.Background(), carrier)
	server, _ := tracer.StartSpan(remote, "server")
	assert.Equal(t, span.TraceID, server.TraceID)
	assert.Equal(t, span.SpanID, server.ParentID)
}

func TestTraceLogsOnClose(t *testing.T) {
	tracer, logs := newObservedTracer()

	err := tracer.Trace(context.Background(), "ok", func(ctx context.Context, span *Span) error {
		span.SetTag("method", "mixFetch")
		return nil
	})
	require.NoError(t, err)

	failure := errors.New("session lost")
	err = tracer.Trace(context.Background(), "fails", func(ctx context.Context, span *Span) error {
		return failure
	})
	require.ErrorIs(t, err, failure)

	tracer.Close()
	tracer.Close()

	assert.Equal(t, 1, logs.FilterMessage("span completed").Len())
	assert.Equal(t, 1, logs.FilterMessage("span completed with error").Len())

	// submissions after close are dropped silently
	span, _ := tracer.StartSpan(context.Background(), "late")
	assert.NotPanics(t, span.Done)
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer
	err := tracer.Trace(context.Background(), "noop", func(ctx context.Context, span *Span) error {
		assert.NotEmpty(t, span.SpanID)
		return nil
	})
	assert.NoError(t, err)
	tracer.Close()
}

func TestHTTPMiddlewareEchoesTrace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, _ := newObservedTracer()
	defer tracer.Close()

	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/healthz", func(c *gin.Context) {
		assert.Equal(t, TraceID("trace_abc"), GetTraceID(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(TraceHeader, "trace_abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "trace_abc", rec.Header().Get(TraceHeader))
	assert.NotEmpty(t, rec.Header().Get(SpanHeader))
}

func TestExtractWithoutTraceKeepsContext(t *testing.T) {
	tracer, _ := newObservedTracer()
	defer tracer.Close()

	_, ctx := tracer.StartSpan(context.Background(), "local")
	joined := ExtractTraceContext(ctx, map[string]string{SpanHeader: "span_x"})
	assert.Equal(t, GetTraceID(ctx), GetTraceID(joined))
	assert.Equal(t, GetSpanID(ctx), GetSpanID(joined))
}

func TestSpanFieldsLogged(t *testing.T) {
	tracer, logs := newObservedTracer()

	parent, ctx := tracer.StartSpan(context.Background(), "parent")
	_ = tracer.Trace(ctx, "rpc.client.mixFetch", func(ctx context.Context, span *Span) error {
		span.SetTag("call_id", "call_1")
		span.SetStatus("ok")
		return nil
	})
	tracer.Close()

	entries := logs.FilterMessage("span completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "test", fields["service"])
	assert.Equal(t, "rpc.client.mixFetch", fields["operation"])
	assert.Equal(t, parent.SpanID.String(), fields["parent_id"])
	assert.Equal(t, "ok", fields["status"])
	assert.Equal(t, "call_1", fields["tag.call_id"])
}
