// Package config provides 12-factor configuration management for the copper server.
//
// Configuration is assembled in three layers: built-in defaults, an optional
// YAML or TOML file named by COPPER_CONFIG, and environment variables. CLI
// flags in cmd/server override the result.
//
// Configuration Sections:
//   - Server: HTTP listener (port, host, routes prefix, body limit)
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting, with an optional node-wide cap
//   - Session: extended-protocol switch, extension cache dir, default launch options
//   - Node: hub address and join/leave retry policy
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("listening on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, ROUTES_PREFIX, BODY_LIMIT
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - RATE_LIMIT_GLOBAL_RPS, RATE_LIMIT_GLOBAL_BURST
//   - ENABLE_W3C_PROTOCOL, EXTENSIONS_DIR, CHROME_PATH, CHROME_FLAGS, CHROME_HEADLESS
//   - NODE_ENABLED, NODE_HOST, HUB_HOST, HUB_PORT
//   - REGISTER_RETRIES, REGISTER_INTERVAL, DEREGISTER_RETRIES, DEREGISTER_INTERVAL
package config
