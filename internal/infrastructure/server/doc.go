// Package server assembles the HTTP engine and drives the process
// lifecycle.
//
// Start listens, serves, and then joins the hub when node mode is on. Stop
// runs the reverse: stop accepting requests, kill every live browser, then
// leave the hub.
package server
