package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/copper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/copper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/copper/internal/shared/apperr"
	"github.com/GriffinCanCode/copper/internal/shared/id"
	"go.uber.org/zap"
)

// Options configures a Manager
type Options struct {
	// EnableW3C attaches an automation handle to every new session
	EnableW3C bool
	// Defaults are the launch options used when a request carries none
	Defaults LaunchOptions
}

// Manager is the registry of live sessions
type Manager struct {
	launcher Launcher
	fetcher  MetadataFetcher
	assets   AssetResolver
	attacher Attacher
	opts     Options
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu       sync.RWMutex
	sessions map[id.SessionID]*entry // Protected by mu
	seq      uint64                  // Protected by mu
}

// NewManager creates a session registry
func NewManager(launcher Launcher, fetcher MetadataFetcher, assets AssetResolver, log *zap.Logger, opts Options) *Manager {
	log = logging.Or(log)
	return &Manager{
		launcher: launcher,
		fetcher:  fetcher,
		assets:   assets,
		opts:     opts,
		logger:   log,
		sessions: make(map[id.SessionID]*entry),
	}
}

// WithAttacher sets the automation client used when W3C support is on
func (m *Manager) WithAttacher(a Attacher) *Manager {
	m.attacher = a
	return m
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// W3CEnabled reports whether extended protocol support is on
func (m *Manager) W3CEnabled() bool {
	return m.opts.EnableW3C
}

// Create launches a browser for req and registers it. Once started a create
// runs to completion even if ctx is cancelled; ctx only carries values.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (Serialized, error) {
	ctx = context.WithoutCancel(ctx)
	timer := monitoring.NewTimer(m.metrics, "session", "create")
	sid := id.NewSessionID()

	e, err := m.start(ctx, sid, req)
	if err != nil {
		timer.Stop("failure")
		m.metrics.IncSessionsFailed()
		m.logger.Error("error creating a session", zap.String("id", sid.String()), zap.Error(err))
		return Serialized{}, apperr.SessionCreationFailed(err)
	}

	m.mu.Lock()
	m.seq++
	e.seq = m.seq
	m.sessions[sid] = e
	count := len(m.sessions)
	m.mu.Unlock()

	timer.Stop("success")
	m.metrics.IncSessionsCreated()
	m.metrics.SetSessionsActive(count)

	s := e.serialize()
	m.logger.Info("session created",
		zap.String("id", sid.String()),
		zap.Int("pid", s.PID),
		zap.Int("port", s.Port),
		zap.String("browser", s.Browser))
	return s, nil
}

// start runs the create sequence without touching the registry. A launched
// process is killed on every failure path.
func (m *Manager) start(ctx context.Context, sid id.SessionID, req CreateRequest) (_ *entry, err error) {
	caps, source := SelectCapabilities(req)
	opts := ResolveLaunchOptions(m.opts.Defaults, req, caps)

	m.logger.Debug("creating session",
		zap.String("id", sid.String()),
		zap.String("capabilities", string(source)))

	if chrome := caps.Chrome(); chrome != nil && len(chrome.Extensions) > 0 {
		if m.assets == nil {
			return nil, errors.New("extensions requested but no asset cache configured")
		}
		opts.Extensions, err = m.assets.ResolveAll(ctx, chrome.Extensions)
		if err != nil {
			return nil, fmt.Errorf("resolve extensions: %w", err)
		}
	}

	proc, err := m.launcher.Launch(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if err != nil {
			if kerr := proc.Kill(); kerr != nil {
				m.logger.Warn("failed to kill browser after failed create",
					zap.String("id", sid.String()),
					zap.Int("pid", proc.PID()),
					zap.Error(kerr))
			}
		}
	}()

	meta, err := m.fetcher.Fetch(ctx, proc.Port())
	if err != nil {
		return nil, fmt.Errorf("fetch browser metadata: %w", err)
	}
	if meta.WebSocketDebuggerURL == "" {
		return nil, errors.New("browser reported no debugger url")
	}

	e := &entry{
		id:       sid,
		process:  proc,
		debugURL: meta.WebSocketDebuggerURL,
		info:     meta.Info,
	}

	if m.opts.EnableW3C && m.attacher != nil {
		e.automation, err = m.attacher.Attach(ctx, meta.WebSocketDebuggerURL)
		if err != nil {
			return nil, fmt.Errorf("attach automation: %w", err)
		}
	}

	return e, nil
}

// Get returns the serialized session for rawID
func (m *Manager) Get(rawID string) (Serialized, error) {
	e, err := m.lookup(rawID)
	if err != nil {
		return Serialized{}, err
	}
	return e.serialize(), nil
}

// DebugAddress returns the browser's DevTools WebSocket URL for rawID
func (m *Manager) DebugAddress(rawID string) (string, error) {
	e, err := m.lookup(rawID)
	if err != nil {
		return "", err
	}
	return e.debugURL, nil
}

// List returns a snapshot of all sessions, oldest first
func (m *Manager) List() []Serialized {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	out := make([]Serialized, len(entries))
	for i, e := range entries {
		out[i] = e.serialize()
	}
	return out
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Remove unregisters the session and tears down its browser. Cleanup
// failures are logged, never returned.
func (m *Manager) Remove(ctx context.Context, rawID string) error {
	sid := id.NormalizeSessionID(rawID)

	m.mu.Lock()
	e, ok := m.sessions[sid]
	delete(m.sessions, sid)
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return apperr.SessionNotFound(rawID)
	}

	m.teardown(e)
	m.metrics.IncSessionsRemoved()
	m.metrics.SetSessionsActive(count)
	m.logger.Info("session removed", zap.String("id", sid.String()), zap.Int("pid", e.process.PID()))
	return nil
}

// RemoveAll tears down every live session
func (m *Manager) RemoveAll(ctx context.Context) {
	m.mu.Lock()
	entries := m.sessions
	m.sessions = make(map[id.SessionID]*entry)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			m.teardown(e)
			m.metrics.IncSessionsRemoved()
		}(e)
	}
	wg.Wait()

	m.metrics.SetSessionsActive(0)
	if len(entries) > 0 {
		m.logger.Info("removed all sessions", zap.Int("count", len(entries)))
	}
}

func (m *Manager) teardown(e *entry) {
	if e.automation != nil {
		if err := e.automation.Close(); err != nil {
			m.logger.Error("error detaching automation handle", zap.String("id", e.id.String()), zap.Error(err))
		}
	}
	if err := e.process.Kill(); err != nil {
		m.logger.Error("error removing a session", zap.String("id", e.id.String()), zap.Error(err))
	}
}

func (m *Manager) lookup(rawID string) (*entry, error) {
	sid := id.NormalizeSessionID(rawID)

	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[sid]
	if !ok {
		return nil, apperr.SessionNotFound(rawID)
	}
	return e, nil
}
