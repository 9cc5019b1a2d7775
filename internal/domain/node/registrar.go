package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/GriffinCanCode/copper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/copper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/copper/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/copper/internal/providers/http/client"
	"github.com/GriffinCanCode/copper/internal/shared/apperr"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// State is the node's hub membership
type State int

const (
	StateUnregistered State = iota
	StateRegistering
	StateRegistered
	StateDeregistering
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	case StateDeregistering:
		return "deregistering"
	default:
		return "unknown"
	}
}

// ErrInProgress is returned when a join or leave is already running
var ErrInProgress = errors.New("node registration already in progress")

const (
	opJoin  = "join"
	opLeave = "leave"
)

// Descriptor is the node configuration advertised to the hub
type Descriptor struct {
	Host                 string `json:"host"`
	Port                 int    `json:"port"`
	HubHost              string `json:"hubHost"`
	HubPort              int    `json:"hubPort"`
	RegisterRetries      int    `json:"registerRetries"`
	RegisterIntervalMS   int64  `json:"registerInterval"`
	DeregisterRetries    int    `json:"deregisterRetries"`
	DeregisterIntervalMS int64  `json:"deregisterInterval"`
}

// Config configures a Registrar
type Config struct {
	Host               string
	Port               int
	HubHost            string
	HubPort            int
	RegisterRetries    int
	RegisterInterval   time.Duration
	DeregisterRetries  int
	DeregisterInterval time.Duration
	// Timeout bounds a single hub call
	Timeout time.Duration
}

// Descriptor returns the payload sent to the hub
func (c Config) Descriptor() Descriptor {
	return Descriptor{
		Host:                 c.Host,
		Port:                 c.Port,
		HubHost:              c.HubHost,
		HubPort:              c.HubPort,
		RegisterRetries:      c.RegisterRetries,
		RegisterIntervalMS:   c.RegisterInterval.Milliseconds(),
		DeregisterRetries:    c.DeregisterRetries,
		DeregisterIntervalMS: c.DeregisterInterval.Milliseconds(),
	}
}

// DefaultTimeout bounds a single hub call when Config.Timeout is unset
const DefaultTimeout = 10 * time.Second

// LeaveBudget is the longest a full deregistration can take: every attempt
// running to its timeout plus the pauses between attempts.
func (c Config) LeaveBudget() time.Duration {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	retries := c.DeregisterRetries
	if retries < 0 {
		retries = 0
	}
	return time.Duration(retries+1)*timeout + time.Duration(retries)*c.DeregisterInterval
}

// HubURL is the registration endpoint
func (c Config) HubURL() string {
	return "http://" + net.JoinHostPort(c.HubHost, strconv.Itoa(c.HubPort)) + "/grid/node"
}

type payload struct {
	Config Descriptor `json:"config"`
}

// Registrar drives join/leave calls against the hub
type Registrar struct {
	cfg     Config
	http    *client.Client
	logger  *zap.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	sleep   func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state State
}

// NewRegistrar creates a registrar in the unregistered state
func NewRegistrar(cfg Config, log *zap.Logger) *Registrar {
	log = logging.Or(log)
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Registrar{
		cfg:    cfg,
		http:   client.New(client.Options{Timeout: cfg.Timeout, Logger: log}),
		logger: log,
		sleep:  sleepContext,
	}
}

// WithMetrics adds metrics tracking to the registrar
func (r *Registrar) WithMetrics(metrics *monitoring.Metrics) *Registrar {
	r.metrics = metrics
	return r
}

// WithTracer traces hub calls and propagates trace headers
func (r *Registrar) WithTracer(tracer *tracing.Tracer) *Registrar {
	r.tracer = tracer
	return r
}

// State returns the current membership state
func (r *Registrar) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Join registers with the hub using the configured retry policy
func (r *Registrar) Join(ctx context.Context) error {
	return r.JoinWithRetries(ctx, r.cfg.RegisterRetries)
}

// JoinWithRetries registers with the hub, attempting at most retries+1 calls
func (r *Registrar) JoinWithRetries(ctx context.Context, retries int) error {
	if err := r.transition(StateRegistering); err != nil {
		return err
	}

	err := r.run(ctx, opJoin, resty.MethodPost, retries, r.cfg.RegisterInterval)
	if err != nil {
		r.setState(StateUnregistered)
		return err
	}

	r.setState(StateRegistered)
	r.logger.Info("node registered", zap.String("hub", r.cfg.HubURL()))
	return nil
}

// Leave deregisters from the hub using the configured retry policy
func (r *Registrar) Leave(ctx context.Context) error {
	return r.LeaveWithRetries(ctx, r.cfg.DeregisterRetries)
}

// LeaveWithRetries deregisters from the hub, attempting at most retries+1
// calls. Leaving while unregistered is a no-op.
func (r *Registrar) LeaveWithRetries(ctx context.Context, retries int) error {
	r.mu.Lock()
	if r.state == StateUnregistered {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := r.transition(StateDeregistering); err != nil {
		return err
	}

	err := r.run(ctx, opLeave, resty.MethodDelete, retries, r.cfg.DeregisterInterval)
	if err != nil {
		r.setState(StateRegistered)
		return err
	}

	r.setState(StateUnregistered)
	r.logger.Info("node deregistered", zap.String("hub", r.cfg.HubURL()))
	return nil
}

func (r *Registrar) transition(to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRegistering || r.state == StateDeregistering {
		return ErrInProgress
	}
	r.state = to
	return nil
}

func (r *Registrar) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// run issues the call until it succeeds or retries are exhausted
func (r *Registrar) run(ctx context.Context, op, method string, retries int, interval time.Duration) error {
	if retries < 0 {
		retries = 0
	}

	if r.tracer != nil {
		var span *tracing.Span
		span, ctx = r.tracer.StartSpan(ctx, "node."+op)
		span.SetTag("hub", r.cfg.HubURL())
		defer func() {
			span.Finish()
			r.tracer.Submit(span)
		}()
	}

	timer := monitoring.NewTimer(r.metrics, "node", op)
	body := payload{Config: r.cfg.Descriptor()}
	attempts := retries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = r.call(ctx, method, body)
		if lastErr == nil {
			r.metrics.RecordRegistrationAttempt(op, "success")
			timer.Stop("success")
			return nil
		}
		r.metrics.RecordRegistrationAttempt(op, "failure")

		remaining := attempts - attempt
		if remaining == 0 {
			break
		}

		r.logger.Error(fmt.Sprintf("error during node %s, retrying", op),
			zap.Int("attempt", attempt),
			zap.Int("retries_left", remaining),
			zap.Duration("interval", interval),
			zap.Error(lastErr))

		if err := r.sleep(ctx, interval); err != nil {
			lastErr = errors.Join(lastErr, err)
			attempts = attempt
			break
		}
	}

	timer.Stop("failure")
	return apperr.RegistrationFailed(op, attempts, lastErr)
}

func (r *Registrar) call(ctx context.Context, method string, body payload) error {
	_, err := r.http.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Execute(method, r.cfg.HubURL())
	})
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
