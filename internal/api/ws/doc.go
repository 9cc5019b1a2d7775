// Package ws tunnels WebSocket clients to a session's DevTools endpoint.
//
// The proxy only consults the session registry to resolve the debugger
// address. Once both sides are connected, frames are relayed verbatim until
// either peer closes.
package ws
