/*
Package monitoring provides Prometheus metrics for the mixnet fetch bridge.

# Overview

Metrics cover both sides of the sandbox boundary: RPC calls issued and served,
response body decode strategies, staged blobs, session state transitions,
module faults, and the HTTP surface of a standalone sandbox host.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	// Add middleware to the host router
	router.Use(monitoring.Middleware(metrics))

	// Time an RPC call
	timer := monitoring.NewTimer(metrics, "client", "mixFetch")
	// ... perform call ...
	timer.Stop("ok")

A nil *Metrics is valid and records nothing, so components can be built
without metrics in tests.

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
