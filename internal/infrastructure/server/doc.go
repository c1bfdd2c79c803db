// Package server provides the gin HTTP server shared by the sandbox host
// endpoints: recovery, tracing, request metrics, CORS and optional per-IP
// rate limiting, plus graceful shutdown.
package server
