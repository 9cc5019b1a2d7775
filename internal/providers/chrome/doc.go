// Package chrome launches and inspects local Chrome processes.
//
// Components:
//   - Launcher: starts Chrome through go-rod's launcher, one process per session
//   - Fetcher: reads /json/version from a running browser's DevTools endpoint
//   - Automation: attaches a go-rod client to the browser's first page
//
// Launches go through a circuit breaker, so a missing or crashing binary fails
// fast instead of spawning a process per request.
package chrome
