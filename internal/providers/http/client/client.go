package client

import (
	"context"
	"fmt"
	"time"

	"github.com/GriffinCanCode/copper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/copper/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/copper/internal/infrastructure/tracing"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const userAgent = "copper/1.0"

// Options configures a Client
type Options struct {
	// Timeout bounds a single request including transport retries
	Timeout time.Duration
	// TransportRetries is the number of retries performed by the transport
	// on connection errors and 5xx responses; zero disables them
	TransportRetries int
	RetryWaitMin     time.Duration
	RetryWaitMax     time.Duration
	// RateLimit caps outbound requests per second; zero means unlimited
	RateLimit float64
	// Breaker guards calls made through Do; nil disables it
	Breaker *resilience.Breaker
	Logger  *zap.Logger
}

// Client wraps resty with a retrying transport, sonic JSON, rate limiting and
// an optional circuit breaker
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker
}

// New creates an HTTP client
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryWaitMin == 0 {
		opts.RetryWaitMin = 50 * time.Millisecond
	}
	if opts.RetryWaitMax == 0 {
		opts.RetryWaitMax = time.Second
	}
	opts.Logger = logging.Or(opts.Logger)

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.TransportRetries
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Logger = leveledLogger{opts.Logger.Sugar()}
	// hand the last response back to the caller instead of a synthetic error
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	restyClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		tracing.Inject(req.Context(), req.Header)
		return nil
	})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		Resty:   restyClient,
		Limiter: limiter,
		Breaker: opts.Breaker,
	}
}

// Request creates a new request bound to ctx once the rate limiter admits it
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}
	return c.Resty.R().SetContext(ctx), nil
}

// Do executes fn, through the breaker when one is configured. Non-2xx
// responses are reported as *StatusError.
func (c *Client) Do(ctx context.Context, fn func(req *resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	call := func(ctx context.Context) (*resty.Response, error) {
		req, err := c.Request(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := fn(req)
		if err != nil {
			return resp, err
		}
		if resp.IsError() {
			return resp, &StatusError{Code: resp.StatusCode(), Body: truncate(resp.String(), 256)}
		}
		return resp, nil
	}

	if c.Breaker == nil {
		return call(ctx)
	}
	return resilience.Execute(ctx, c.Breaker, call)
}

// StatusError reports a response outside the 2xx range
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
