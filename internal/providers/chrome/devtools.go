package chrome

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/GriffinCanCode/copper/internal/domain/session"
	"github.com/GriffinCanCode/copper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/copper/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/copper/internal/providers/http/client"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Fetcher reads DevTools metadata over HTTP
type Fetcher struct {
	host string
	http *client.Client
}

// FetcherOptions tunes the metadata client
type FetcherOptions struct {
	Timeout          time.Duration
	TransportRetries int
	RetryWaitMin     time.Duration
	RetryWaitMax     time.Duration
	// RateLimit caps metadata requests per second across all browsers
	RateLimit float64
	// TripAfter opens the breaker after this many consecutive failed fetches
	TripAfter uint32
	Cooldown  time.Duration
}

// DefaultFetcherOptions returns the options NewFetcher uses. The endpoint can
// refuse connections for a moment after launch, so the transport retries.
func DefaultFetcherOptions() FetcherOptions {
	return FetcherOptions{
		Timeout:          10 * time.Second,
		TransportRetries: 10,
		RetryWaitMin:     50 * time.Millisecond,
		RetryWaitMax:     500 * time.Millisecond,
		RateLimit:        50,
		TripAfter:        5,
		Cooldown:         10 * time.Second,
	}
}

// NewFetcher creates a fetcher for browsers listening on 127.0.0.1
func NewFetcher(log *zap.Logger) *Fetcher {
	return NewFetcherWithOptions(DefaultFetcherOptions(), log)
}

// NewFetcherWithOptions creates a fetcher whose calls are rate limited and
// guarded by a "devtools-metadata" breaker. A Chrome build that starts but
// never serves DevTools trips it, and creates fail fast until it cools down.
func NewFetcherWithOptions(opts FetcherOptions, log *zap.Logger) *Fetcher {
	log = logging.Or(log)
	tripAfter := opts.TripAfter
	if tripAfter == 0 {
		tripAfter = 1
	}
	breaker := resilience.New("devtools-metadata", resilience.Settings{
		Cooldown: opts.Cooldown,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Fetcher{
		host: "127.0.0.1",
		http: client.New(client.Options{
			Timeout:          opts.Timeout,
			TransportRetries: opts.TransportRetries,
			RetryWaitMin:     opts.RetryWaitMin,
			RetryWaitMax:     opts.RetryWaitMax,
			RateLimit:        opts.RateLimit,
			Breaker:          breaker,
			Logger:           log,
		}),
	}
}

// VersionURL is the metadata endpoint for a browser on port
func (f *Fetcher) VersionURL(port int) string {
	return "http://" + net.JoinHostPort(f.host, strconv.Itoa(port)) + "/json/version"
}

// Fetch implements session.MetadataFetcher
func (f *Fetcher) Fetch(ctx context.Context, port int) (session.Metadata, error) {
	resp, err := f.http.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetHeader("Accept", "application/json").Get(f.VersionURL(port))
	})
	if err != nil {
		return session.Metadata{}, err
	}

	var meta session.Metadata
	if err := sonic.Unmarshal(resp.Body(), &meta); err != nil {
		return session.Metadata{}, fmt.Errorf("decode /json/version: %w", err)
	}
	return meta, nil
}
