// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// Every bridge component takes a *zap.Logger; components name themselves with
// Named ("sandbox", "loader", "rpc.server", ...) so a single sandbox session can
// be followed across the caller and the sandbox side by its sandbox_id field.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("sandbox loaded", zap.String("sandbox_id", sid.String()))
//	logger.Error("module fault", zap.Error(err))
package logging
