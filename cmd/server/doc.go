// Package main is the entry point for the Copper server.
//
// Copper launches headless Chrome instances on demand and exposes them
// through a WebDriver-style session API. Each session's DevTools endpoint is
// proxied over WebSocket, so clients never talk to the browser port
// directly.
//
// In node mode the server registers itself with a hub after it starts
// listening and deregisters on shutdown.
//
// Configuration:
//   - Defaults for local use
//   - Optional YAML or TOML file named by COPPER_CONFIG
//   - Environment variables (12-factor)
//   - CLI flags (override everything else)
//
// Usage:
//
//	# Standalone
//	./server -port 9115
//
//	# Register with a hub at HUB_HOST:HUB_PORT
//	./server -mode node
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: stop serving, kill every browser, leave the hub
package main
