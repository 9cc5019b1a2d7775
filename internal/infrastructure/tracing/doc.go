/*
Package tracing provides lightweight request tracing for the copper server.

Every HTTP request gets a span whose trace id is either continued from the
X-Trace-ID header or freshly generated. The ids are echoed back in response
headers and propagated on outbound hub calls through Inject, so a node
registration can be correlated with the hub's logs.

Finished spans are buffered (1000 entries) and written to the zap logger by a
single collector goroutine. When the buffer is full spans are dropped with a
warning rather than blocking the request path.

	tracer := tracing.New("copper", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))
*/
package tracing
