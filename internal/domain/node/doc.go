// Package node keeps this server registered with a grid hub.
//
// Join posts the node descriptor to http://{hub}/grid/node and Leave deletes
// it again. Each call is attempted once plus a configured number of retries,
// with a fixed pause between attempts. Running out of retries yields a
// RegistrationFailed error; the caller decides whether that is fatal.
//
//	unregistered --Join--> registering --ok--> registered
//	registered --Leave--> deregistering --ok--> unregistered
//
// A failed Join returns to unregistered, a failed Leave stays registered.
package node
