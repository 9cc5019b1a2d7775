package chrome

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/copper/internal/domain/session"
	"github.com/GriffinCanCode/copper/internal/infrastructure/resilience"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fakeChrome = "/opt/chrome/chrome"

func TestConfigureFlags(t *testing.T) {
	headless := false
	rl, err := Configure(session.LaunchOptions{
		ChromePath:  fakeChrome,
		ChromeFlags: []string{"--window-size=1280,720", "--mute-audio"},
		Headless:    &headless,
		Port:        9333,
		StartingURL: "about:blank",
	})
	require.NoError(t, err)

	assert.Equal(t, "1280,720", rl.Get("window-size"))
	assert.True(t, rl.Has("mute-audio"))
	assert.False(t, rl.Has(flags.Headless))
	assert.Equal(t, "9333", rl.Get(flags.RemoteDebuggingPort))
	assert.Equal(t, []string{"about:blank"}, rl.Flags[flags.Arguments])
}

func TestConfigureExtensions(t *testing.T) {
	rl, err := Configure(session.LaunchOptions{
		ChromePath:  fakeChrome,
		ChromeFlags: []string{"--disable-extensions", "--load-extension=/opt/base"},
		Extensions:  []string{"/tmp/ext/A", "/tmp/ext/B"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"/opt/base", "/tmp/ext/A", "/tmp/ext/B"}, rl.Flags[flagLoadExtension])
	assert.False(t, rl.Has(flagDisableExtensions))
}

func TestConfigureIgnoreDefaultFlags(t *testing.T) {
	rl, err := Configure(session.LaunchOptions{
		ChromePath:         fakeChrome,
		ChromeFlags:        []string{"--headless=new"},
		IgnoreDefaultFlags: true,
	})
	require.NoError(t, err)

	for name := range rl.Flags {
		if strings.HasPrefix(string(name), "rod-") || requiredFlags[name] {
			continue
		}
		assert.Equal(t, flags.Headless, name, "unexpected default flag %q kept", name)
	}
	assert.Equal(t, "new", rl.Get(flags.Headless))
	assert.True(t, rl.Has(flags.UserDataDir))
}

func TestConfigureArgsOverrideRunsHeaded(t *testing.T) {
	opts := session.ResolveLaunchOptions(
		session.LaunchOptions{ChromePath: fakeChrome, Headless: boolPtr(true)},
		session.CreateRequest{},
		session.Capabilities{GoogChromeOptions: &session.ChromeCapability{Args: []string{"--mute-audio"}}},
	)
	rl, err := Configure(opts)
	require.NoError(t, err)

	assert.False(t, rl.Has(flags.Headless))
	assert.True(t, rl.Has(flags.Flag("mute-audio")))
}

func boolPtr(b bool) *bool { return &b }

func TestPortFromControlURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "ws://127.0.0.1:37519/devtools/browser/3b0e", want: 37519},
		{raw: "ws://[::1]:9222/devtools/browser/x", want: 9222},
		{raw: "ws://localhost/devtools/browser/x", wantErr: true},
		{raw: "::not a url", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			port, err := portFromControlURL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, port)
		})
	}
}

func newFetcherFor(t *testing.T, handler http.HandlerFunc) (*Fetcher, int) {
	return newFetcherWith(t, DefaultFetcherOptions(), handler)
}

func newFetcherWith(t *testing.T, opts FetcherOptions, handler http.HandlerFunc) (*Fetcher, int) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	f := NewFetcherWithOptions(opts, zap.NewNop())
	f.host = host
	return f, port
}

func TestFetcherDecodesVersion(t *testing.T) {
	f, port := newFetcherFor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/version", r.URL.Path)
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		_, _ = w.Write([]byte(`{
			"Browser": "HeadlessChrome/120.0.6099.109",
			"Protocol-Version": "1.3",
			"User-Agent": "Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/120.0.6099.109",
			"V8-Version": "12.0.267.8",
			"WebKit-Version": "537.36 (@3c1d7b8)",
			"webSocketDebuggerUrl": "ws://127.0.0.1:9222/devtools/browser/5d3e"
		}`))
	})

	meta, err := f.Fetch(context.Background(), port)
	require.NoError(t, err)

	assert.Equal(t, "HeadlessChrome/120.0.6099.109", meta.Browser)
	assert.Equal(t, "1.3", meta.ProtocolVersion)
	assert.Equal(t, "12.0.267.8", meta.V8Version)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/5d3e", meta.WebSocketDebuggerURL)
}

func TestFetcherRetriesWhileBrowserStarts(t *testing.T) {
	var calls atomic.Int32
	f, port := newFetcherFor(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"Chrome/120","webSocketDebuggerUrl":"ws://x:1/devtools/browser/y"}`))
	})

	meta, err := f.Fetch(context.Background(), port)
	require.NoError(t, err)
	assert.Equal(t, "Chrome/120", meta.Browser)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetcherRejectsGarbage(t *testing.T) {
	f, port := newFetcherFor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not devtools</html>"))
	})

	_, err := f.Fetch(context.Background(), port)
	assert.Error(t, err)
}

func TestLaunchHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLauncher(nil).Launch(ctx, session.LaunchOptions{ChromePath: fakeChrome})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetcherBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	opts := DefaultFetcherOptions()
	opts.TransportRetries = 0
	opts.TripAfter = 2
	opts.Cooldown = time.Minute
	f, port := newFetcherWith(t, opts, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), port)
		require.Error(t, err)
		assert.NotErrorIs(t, err, resilience.ErrCircuitOpen)
	}

	_, err := f.Fetch(context.Background(), port)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, resilience.StateOpen, f.http.Breaker.State())
}

func TestFetcherIsRateLimited(t *testing.T) {
	opts := DefaultFetcherOptions()
	opts.RateLimit = 5
	f := NewFetcherWithOptions(opts, nil)

	require.NotNil(t, f.http.Limiter)
	assert.InDelta(t, 5.0, float64(f.http.Limiter.Limit()), 0.001)
	require.NotNil(t, f.http.Breaker)
}
