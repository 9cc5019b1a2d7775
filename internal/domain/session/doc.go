// Package session provides the registry of live browser sessions.
//
// A session owns one launched Chrome process. Creating a session selects the
// request's capabilities, unpacks bundled extensions through the asset cache,
// launches the browser, reads its DevTools metadata and, when W3C support is
// on, attaches an automation client. Only fully initialized sessions are ever
// visible to readers; any failure after launch kills the process before the
// error is returned.
//
// Capability precedence (exactly one source is used, never merged):
//  1. capabilities.alwaysMatch
//  2. capabilities.firstMatch[0]
//  3. desiredCapabilities
//  4. {browserName: "chrome"}
//
// Example Usage:
//
//	mgr := session.NewManager(launcher, fetcher, cache, logger, session.Options{})
//	s, err := mgr.Create(ctx, session.CreateRequest{})
//	addr, err := mgr.DebugAddress(s.ID.String())
//	err = mgr.Remove(ctx, s.ID.String())
package session
