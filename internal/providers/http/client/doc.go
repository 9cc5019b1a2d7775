// Package client provides the outbound HTTP client used to talk to Chrome's
// DevTools endpoint and to the grid hub.
//
// Built on go-resty/resty over a hashicorp/go-retryablehttp transport:
//   - transport-level retries for connection errors and 5xx, off by default
//   - sonic for JSON bodies
//   - optional rate limiting and circuit breaking
//   - trace headers propagated from the request context
//
// Example Usage:
//
//	c := client.New(client.Options{Timeout: 5 * time.Second, TransportRetries: 10})
//	var out Version
//	_, err := c.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
//		return req.SetResult(&out).Get(url)
//	})
package client
