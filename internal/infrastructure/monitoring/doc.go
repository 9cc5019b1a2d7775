/*
Package monitoring provides Prometheus metrics for the copper server.

# Overview

Metrics tracks HTTP traffic, the session registry, the extension asset cache,
hub registration attempts and proxied DevTools WebSocket connections. Each
Metrics owns its own registry, so several servers (or tests) can coexist in
one process.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "session", "create")
	// ... perform operation ...
	timer.Stop("success")

All recording methods are safe on a nil *Metrics, which lets domain packages
treat metrics as optional.
*/
package monitoring
