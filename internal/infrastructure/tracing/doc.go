/*
Package tracing provides lightweight call tracing across the sandbox boundary.

# Overview

A fetch crosses several hops: the public client, the RPC channel, the sandbox
host, the primary module, and the mixnet itself. Each hop opens a span; the
trace context travels inside RPC frames so host-side spans join the caller's
trace. Completed spans are buffered and logged through zap.

# Usage

	tracer := tracing.New("mixfetch-client", logger)
	defer tracer.Close()

	err := tracer.Trace(ctx, "mixFetch", func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("url", target)
		return call(ctx)
	})

	// Propagate over a frame
	carrier := map[string]string{}
	tracing.InjectTraceContext(ctx, carrier)

	// Host HTTP surface
	router.Use(tracing.HTTPMiddleware(tracer))

# Trace Format

Carriers use two keys, matching the HTTP header names:
- X-Trace-ID: identifier for the whole fetch
- X-Span-ID: identifier for the calling operation

A nil *Tracer is valid; spans are created but never submitted.
*/
package tracing
