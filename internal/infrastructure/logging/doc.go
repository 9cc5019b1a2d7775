// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans
//
// Components never build their own logger. They receive a *zap.Logger from
// the server wiring, usually narrowed with Named, and fall back to a no-op
// logger via Or when none is given.
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	logger.Info("session created", zap.String("id", sid), zap.Int("pid", pid))
package logging
