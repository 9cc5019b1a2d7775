package chrome

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/copper/internal/domain/session"
	"github.com/GriffinCanCode/copper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/copper/internal/infrastructure/resilience"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"go.uber.org/zap"
)

const (
	flagLoadExtension     flags.Flag = "load-extension"
	flagDisableExtensions flags.Flag = "disable-extensions"

	cleanupTimeout = 5 * time.Second
)

// ErrChromeNotFound is returned when no binary is configured or on PATH
var ErrChromeNotFound = errors.New("chrome executable not found")

// flags the launcher needs regardless of IgnoreDefaultFlags
var requiredFlags = map[flags.Flag]bool{
	flags.UserDataDir:         true,
	flags.RemoteDebuggingPort: true,
}

// Launcher starts Chrome processes with go-rod
type Launcher struct {
	logger  *zap.Logger
	breaker *resilience.Breaker
}

// NewLauncher creates a launcher guarded by a circuit breaker
func NewLauncher(log *zap.Logger) *Launcher {
	log = logging.Or(log)
	breaker := resilience.New("chrome-launch", resilience.Settings{
		Cooldown: 10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Launcher{logger: log, breaker: breaker}
}

// Launch implements session.Launcher
func (l *Launcher) Launch(ctx context.Context, opts session.LaunchOptions) (session.Process, error) {
	return resilience.Execute(ctx, l.breaker, func(ctx context.Context) (session.Process, error) {
		return l.launch(ctx, opts)
	})
}

func (l *Launcher) launch(ctx context.Context, opts session.LaunchOptions) (session.Process, error) {
	rl, err := Configure(opts)
	if err != nil {
		return nil, err
	}

	// the browser outlives the request that created it
	rl = rl.Context(context.WithoutCancel(ctx))

	type result struct {
		url string
		err error
	}
	done := make(chan result, 1)
	go func() {
		u, err := rl.Launch()
		done <- result{u, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		go func() {
			<-done
			abort(rl)
		}()
		return nil, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		abort(rl)
		return nil, fmt.Errorf("start chrome: %w", res.err)
	}

	port, err := portFromControlURL(res.url)
	if err != nil {
		abort(rl)
		return nil, err
	}

	proc := &process{launcher: rl, pid: rl.PID(), port: port, logger: l.logger}
	l.logger.Debug("chrome launched",
		zap.Int("pid", proc.pid),
		zap.Int("port", port),
		zap.Int("extensions", len(opts.Extensions)))
	return proc, nil
}

// Configure translates launch options into a go-rod launcher
func Configure(opts session.LaunchOptions) (*launcher.Launcher, error) {
	rl := launcher.New()

	bin := opts.ChromePath
	if bin == "" {
		found, ok := launcher.LookPath()
		if !ok {
			return nil, ErrChromeNotFound
		}
		bin = found
	}
	rl = rl.Bin(bin)

	if opts.IgnoreDefaultFlags {
		for name := range rl.Flags {
			if !requiredFlags[name] && !strings.HasPrefix(string(name), "rod-") {
				rl = rl.Delete(name)
			}
		}
	}
	if opts.Headless != nil {
		rl = rl.Headless(*opts.Headless)
	}
	if opts.UserDataDir != "" {
		rl = rl.UserDataDir(opts.UserDataDir).KeepUserDataDir()
	}
	if opts.Port != 0 {
		rl = rl.Set(flags.RemoteDebuggingPort, strconv.Itoa(opts.Port))
	}

	for _, raw := range opts.ChromeFlags {
		name, value, hasValue := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			rl = rl.Set(flags.Flag(name), value)
		} else {
			rl = rl.Set(flags.Flag(name))
		}
	}

	if len(opts.Extensions) > 0 {
		exts := append(rl.Flags[flagLoadExtension], opts.Extensions...)
		rl = rl.Set(flagLoadExtension, exts...).Delete(flagDisableExtensions)
	}

	if opts.StartingURL != "" {
		rl = rl.Set(flags.Arguments, opts.StartingURL)
	}

	return rl, nil
}

// abort kills a half-started browser. PID 0 would signal our own process group.
func abort(rl *launcher.Launcher) {
	if rl.PID() > 0 {
		rl.Kill()
	}
}

func portFromControlURL(raw string) (int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("parse control url: %w", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return 0, fmt.Errorf("control url %q has no port", raw)
	}
	return port, nil
}

// process is a running Chrome owned by one session
type process struct {
	launcher *launcher.Launcher
	pid      int
	port     int
	logger   *zap.Logger

	once    sync.Once
	killErr error
}

func (p *process) PID() int  { return p.pid }
func (p *process) Port() int { return p.port }

// Kill stops the browser and removes its temporary profile
func (p *process) Kill() error {
	p.once.Do(func() {
		p.launcher.Kill()

		done := make(chan struct{})
		go func() {
			p.launcher.Cleanup()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(cleanupTimeout):
			p.killErr = fmt.Errorf("chrome pid %d did not exit within %s", p.pid, cleanupTimeout)
		}
	})
	return p.killErr
}
