// Package http maps the session routes onto the registry.
//
// Responses keep the JSON Wire Protocol envelope ({"status":0,"value":...})
// that WebDriver clients expect. Failures are written as
// {"error": kind, "message": text} with the status taken from apperr.
package http
