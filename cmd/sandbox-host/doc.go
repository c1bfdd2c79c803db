// Package main runs a standalone sandbox host.
//
// The host loads the primary and secondary mixnet modules into their
// sandbox and exposes it to remote clients:
//
//	GET /rpc        websocket RPC (setupMixFetch, mixFetch, disconnectMixFetch)
//	GET /blobs/:id  staged response bodies, released once served
//	GET /healthz    lifecycle state
//	GET /metrics    prometheus metrics
//
// Configuration:
//   - Environment variables (MIXFETCH_*, LOG_*)
//   - CLI flags (override env vars)
//
// Usage:
//
//	MIXFETCH_PRIMARY_MODULE=./mix_fetch.js \
//	MIXFETCH_SECONDARY_MODULE=./go_conn.js \
//	./sandbox-host -addr 127.0.0.1:8686
//
//	# Development mode (colored logs, debug level, gin debug routes)
//	./sandbox-host -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
