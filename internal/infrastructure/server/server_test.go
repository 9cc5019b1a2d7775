package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/copper/internal/domain/session"
	"github.com/GriffinCanCode/copper/internal/infrastructure/config"
	"github.com/GriffinCanCode/copper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/copper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/copper/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/copper/internal/shared/apperr"
)

// events records lifecycle calls in order.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, name)
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

type fakeSessions struct {
	events *events
}

func (f *fakeSessions) Create(context.Context, session.CreateRequest) (session.Serialized, error) {
	return session.Serialized{}, apperr.SessionCreationFailed(errors.New("no browser in tests"))
}

func (f *fakeSessions) Get(rawID string) (session.Serialized, error) {
	return session.Serialized{}, apperr.SessionNotFound(rawID)
}

func (f *fakeSessions) DebugAddress(rawID string) (string, error) {
	return "", apperr.SessionNotFound(rawID)
}

func (f *fakeSessions) List() []session.Serialized { return []session.Serialized{} }

func (f *fakeSessions) Remove(_ context.Context, rawID string) error {
	return apperr.SessionNotFound(rawID)
}

func (f *fakeSessions) W3CEnabled() bool { return false }

func (f *fakeSessions) RemoveAll(context.Context) { f.events.add("removeAll") }

type fakeRegistrar struct {
	events   *events
	joinErr  error
	leaveErr error
	// onJoin runs inside Join, while the server is already serving
	onJoin func()
	// leaveCtx is the context Leave was called with
	leaveCtx context.Context
}

func (r *fakeRegistrar) Join(context.Context) error {
	r.events.add("join")
	if r.onJoin != nil {
		r.onJoin()
	}
	return r.joinErr
}

func (r *fakeRegistrar) Leave(ctx context.Context) error {
	r.events.add("leave")
	r.leaveCtx = ctx
	return r.leaveErr
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	return cfg
}

func newTestServer(cfg *config.Config, ev *events, registrar Registrar) *Server {
	deps := Deps{
		Config:    cfg,
		Logger:    logging.NewNop(),
		Metrics:   monitoring.NewMetrics(),
		Tracer:    tracing.New("copper-test", nil),
		Sessions:  &fakeSessions{events: ev},
		Registrar: registrar,
	}
	return New(deps)
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestStandaloneLifecycle(t *testing.T) {
	ev := &events{}
	srv := newTestServer(testConfig(), ev, nil)

	require.NoError(t, srv.Start(context.Background()))
	base := "http://" + srv.Addr()

	status, body := get(t, base+"/status")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Copper Is Ready")

	status, body = get(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "copper_http_requests_total")

	status, _ = get(t, base+"/session/nope")
	assert.Equal(t, http.StatusNotFound, status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	assert.Equal(t, []string{"removeAll"}, ev.list())
	_, err := http.Get(base + "/status")
	assert.Error(t, err)
}

func TestNodeJoinsAfterListening(t *testing.T) {
	ev := &events{}
	reg := &fakeRegistrar{events: ev}
	srv := newTestServer(testConfig(), ev, reg)

	var joinStatus int
	reg.onJoin = func() {
		resp, err := http.Get("http://" + srv.Addr() + "/status")
		if err == nil {
			joinStatus = resp.StatusCode
			resp.Body.Close()
		}
	}

	require.NoError(t, srv.Start(context.Background()))
	assert.Equal(t, http.StatusOK, joinStatus, "server must serve before joining the hub")

	require.NoError(t, srv.Stop(context.Background()))
	assert.Equal(t, []string{"join", "removeAll", "leave"}, ev.list())
}

func TestStartFailsWhenJoinFails(t *testing.T) {
	ev := &events{}
	joinErr := apperr.RegistrationFailed("join", 6, errors.New("connection refused"))
	srv := newTestServer(testConfig(), ev, &fakeRegistrar{events: ev, joinErr: joinErr})

	err := srv.Start(context.Background())
	require.ErrorIs(t, err, joinErr)
	assert.True(t, apperr.Is(err, apperr.KindRegistrationFailed))

	_, getErr := http.Get("http://" + srv.Addr() + "/status")
	assert.Error(t, getErr, "server should be shut down after a failed join")
}

func TestStopReturnsLeaveFailureAfterTeardown(t *testing.T) {
	ev := &events{}
	leaveErr := errors.New("hub gone")
	srv := newTestServer(testConfig(), ev, &fakeRegistrar{events: ev, leaveErr: leaveErr})

	require.NoError(t, srv.Start(context.Background()))

	err := srv.Stop(context.Background())
	assert.ErrorIs(t, err, leaveErr)
	assert.Equal(t, []string{"join", "removeAll", "leave"}, ev.list())
}

func TestLeaveOutlivesExpiredShutdownContext(t *testing.T) {
	ev := &events{}
	reg := &fakeRegistrar{events: ev}
	cfg := testConfig()
	cfg.Node.DeregisterRetries = 2
	cfg.Node.DeregisterInterval = config.Duration{Duration: time.Second}
	srv := newTestServer(cfg, ev, reg)

	require.NoError(t, srv.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, srv.Stop(ctx))

	require.NotNil(t, reg.leaveCtx)
	deadline, ok := reg.leaveCtx.Deadline()
	require.True(t, ok, "leave should run under its own deadline")
	// three attempts of 10s plus two 1s pauses
	assert.Equal(t, 32*time.Second, srv.leaveTimeout)
	assert.WithinDuration(t, time.Now().Add(32*time.Second), deadline, 5*time.Second)
	assert.Equal(t, []string{"join", "removeAll", "leave"}, ev.list())
}

func TestRateLimitsOverlayDefaults(t *testing.T) {
	perIP, global := rateLimits(config.RateLimitConfig{RequestsPerSecond: 7})
	assert.Equal(t, 7, perIP.RequestsPerSecond)
	assert.Equal(t, 200, perIP.Burst)
	assert.Equal(t, time.Minute, perIP.IdleTTL)
	assert.Zero(t, global.RequestsPerSecond)

	_, global = rateLimits(config.RateLimitConfig{GlobalRequestsPerSecond: 50})
	assert.Equal(t, 50, global.RequestsPerSecond)
	assert.Equal(t, 50, global.Burst)
}

func TestGlobalRateLimitMounted(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.GlobalRequestsPerSecond = 1
	cfg.RateLimit.GlobalBurst = 1
	srv := newTestServer(cfg, &events{}, nil)

	first := httptest.NewRecorder()
	srv.Handler().ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	// a different client still hits the node-wide cap
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	second := httptest.NewRecorder()
	srv.Handler().ServeHTTP(second, req)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRoutesPrefixMounted(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RoutesPrefix = "wd/hub/"
	srv := newTestServer(cfg, &events{}, nil)

	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop(context.Background())
	base := "http://" + srv.Addr()

	status, _ := get(t, base+"/wd/hub/status")
	assert.Equal(t, http.StatusOK, status)
	status, _ = get(t, base+"/status")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestNormalizePrefix(t *testing.T) {
	tests := map[string]string{
		"":         "",
		"/":        "",
		"wd/hub":   "/wd/hub",
		"/wd/hub/": "/wd/hub",
		" /api ":   "/api",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePrefix(in), "prefix %q", in)
	}
}

func TestNodeConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = "9115"
	cfg.Node.Host = "10.0.0.5"

	nc, err := nodeConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 9115, nc.Port)
	assert.Equal(t, "10.0.0.5", nc.Host)
	assert.Equal(t, "http://localhost:4444/grid/node", nc.HubURL())
	assert.Equal(t, 5*time.Second, nc.RegisterInterval)

	cfg.Server.Port = "http"
	_, err = nodeConfig(cfg)
	assert.Error(t, err)
}

func TestNewServerStandalone(t *testing.T) {
	cfg := testConfig()
	cfg.Session.ExtensionsDir = t.TempDir()

	srv, err := NewServer(cfg, logging.NewNop())
	require.NoError(t, err)
	assert.Nil(t, srv.registrar)
	assert.NotNil(t, srv.Handler())
}
