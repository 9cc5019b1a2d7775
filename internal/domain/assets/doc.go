// Package assets provides a content-addressed cache for browser extensions
// shipped inside session requests.
//
// Payloads are keyed by the SHA-256 of their decoded bytes. The first request
// for a checksum extracts the archive into a fresh directory under the cache
// root; every later request, and every request racing the first one, gets the
// same directory back. A failed extraction is not remembered, so the next
// request for that checksum tries again.
//
// Supported payloads: zip, Chrome CRX (v2 and v3), and tar optionally
// compressed with gzip or zstd.
package assets
