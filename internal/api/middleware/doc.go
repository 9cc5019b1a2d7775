// Package middleware holds the gin middleware shared by every route: CORS,
// rate limiting and request body limits.
package middleware
