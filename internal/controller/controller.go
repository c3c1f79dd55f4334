package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ahmadhassan44/random-walk/internal/coordinator"
	"github.com/ahmadhassan44/random-walk/internal/logging"
	"github.com/ahmadhassan44/random-walk/internal/metrics"
	"github.com/ahmadhassan44/random-walk/internal/transport"
	"github.com/ahmadhassan44/random-walk/pkg/config"
	"github.com/ahmadhassan44/random-walk/pkg/protocol"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Controller wires one run: completion channel, coordinator and launcher.
type Controller struct {
	cfg       *config.Config
	out       io.Writer
	errOut    io.Writer
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	estimator *StepEstimator

	// newLauncher is replaceable in tests.
	newLauncher func(ctx context.Context, env launchEnv) (Launcher, func(context.Context) error, error)
}

// Option configures the controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithOutput sets where walker and controller status lines go.
func WithOutput(out io.Writer) Option {
	return func(c *Controller) {
		c.out = out
	}
}

// WithErrorOutput sets where out-of-process walkers' stderr goes.
func WithErrorOutput(w io.Writer) Option {
	return func(c *Controller) {
		c.errOut = w
	}
}

// WithRegistry sets the prometheus registry metrics are registered on.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(c *Controller) {
		c.registry = reg
	}
}

// New creates a controller for cfg.
func New(cfg *config.Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg,
		out:       io.Discard,
		errOut:    io.Discard,
		logger:    logging.NewNop(),
		estimator: NewStepEstimator(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = prometheus.NewRegistry()
	}
	c.metrics = metrics.New(c.registry)
	c.newLauncher = c.defaultLauncher
	return c
}

// launchEnv is what a launcher needs from the transport side of a run.
type launchEnv struct {
	out       io.Writer
	newSender func(id int) transport.Sender
}

// Run executes one full run and prints the summary line exactly once, after
// every walker has signalled.
func (c *Controller) Run(ctx context.Context) (coordinator.Tally, error) {
	cfg := c.cfg
	if err := cfg.Validate(); err != nil {
		return coordinator.Tally{}, err
	}

	logger := logging.Component(c.logger, "controller")
	out := newLineWriter(c.out)
	expected := cfg.Walkers()

	timeout, auto, err := config.ParseTimeout(cfg.Timeout)
	if err != nil {
		return coordinator.Tally{}, err
	}
	if auto {
		timeout = c.estimator.SuggestTimeout(cfg.Walker, cfg.Launcher)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	runID := uuid.NewString()

	logger.Info("starting run",
		"run_id", runID,
		"walkers", expected,
		"domain_bound", cfg.Walker.DomainBound,
		"step_budget", cfg.Walker.StepBudget,
		"expected_steps", c.estimator.ExpectedSteps(cfg.Walker),
		"launcher", cfg.Launcher,
		"transport", cfg.Transport,
		"timeout", timeout,
		"seed", seed)

	if expected == 0 {
		tally, err := (&coordinator.Coordinator{Logger: c.logger, Metrics: c.metrics}).Wait(ctx)
		if err != nil {
			return tally, err
		}
		return tally, coordinator.Report(out, tally)
	}

	coord := &coordinator.Coordinator{
		Expected: expected,
		Timeout:  timeout,
		Logger:   c.logger,
		Metrics:  c.metrics,
	}

	ch, err := c.openChannel(ctx, runID, expected, coord)
	if err != nil {
		return coordinator.Tally{}, err
	}
	defer ch.close()
	coord.Inbox = ch.inbox

	if cfg.MetricsAddr != "" && cfg.Transport != config.TransportHTTP {
		stop, err := c.serveMetrics(cfg.MetricsAddr)
		if err != nil {
			return coordinator.Tally{}, err
		}
		defer stop()
	}

	launcher, cleanup, err := c.newLauncher(ctx, launchEnv{out: out, newSender: ch.newSender})
	if err != nil {
		return coordinator.Tally{}, err
	}
	if cleanup != nil {
		defer func() {
			if err := cleanup(context.Background()); err != nil {
				logger.Warn("launcher cleanup failed", "error", err)
			}
		}()
	}

	spec := LaunchSpec{
		IDs:        walkerIDs(expected),
		Walker:     cfg.Walker,
		Seed:       seed,
		RunID:      runID,
		Transport:  cfg.Transport,
		SignalAddr: ch.addr,
	}

	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if err := launcher.Launch(waitCtx, spec); err != nil {
		return coordinator.Tally{}, fmt.Errorf("launch walkers: %w", err)
	}

	// A walker that dies without signalling would hang the wait forever.
	walkersDone := make(chan error, 1)
	go func() {
		err := launcher.Wait()
		if err != nil {
			cancel(err)
		}
		walkersDone <- err
	}()

	tally, err := coord.Wait(waitCtx)
	if err != nil {
		if cause := context.Cause(waitCtx); cause != nil && !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
			return tally, fmt.Errorf("%w (walker failure: %v)", err, cause)
		}
		return tally, err
	}

	if err := coordinator.Report(out, tally); err != nil {
		return tally, err
	}
	if err := <-walkersDone; err != nil {
		logger.Warn("walker exited with error after signalling", "error", err)
	}
	return tally, nil
}

// channel is the receive side of a run plus what walkers need to reach it.
type channel struct {
	inbox     transport.Receiver
	newSender func(id int) transport.Sender
	addr      string
	close     func()
}

func (c *Controller) openChannel(ctx context.Context, runID string, expected int, coord *coordinator.Coordinator) (*channel, error) {
	cfg := c.cfg
	logger := logging.Component(c.logger, "controller")

	switch cfg.Transport {
	case config.TransportLocal:
		local := transport.NewLocal(expected)
		return &channel{
			inbox: local,
			newSender: func(id int) transport.Sender {
				return local.Sender(fmt.Sprintf("walker-%d", id))
			},
			close: func() { local.Close() },
		}, nil

	case config.TransportHTTP:
		srv := transport.NewServer(expected,
			transport.WithLogger(c.logger),
			transport.WithMetricsHandler(promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})),
			transport.WithStatus(func() protocol.BarrierStatus {
				t := coord.Progress()
				return protocol.BarrierStatus{
					RunID:     runID,
					Status:    t.Status().String(),
					Expected:  t.Expected,
					Completed: t.Completed,
					Dropped:   t.Dropped,
				}
			}),
		)
		if err := srv.Listen(cfg.SignalAddr); err != nil {
			return nil, err
		}
		addr := srv.Addr()
		if cfg.Launcher == config.LauncherDocker && isLoopback(addr) {
			logger.Warn("signal endpoint is loopback-only; containers may not reach it", "addr", addr)
		}
		return &channel{
			inbox: srv,
			newSender: func(id int) transport.Sender {
				return transport.NewClient(addr, nil)
			},
			addr: addr,
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			},
		}, nil

	case config.TransportRedis:
		q, err := transport.DialRedis(ctx, cfg.RedisAddr, runID)
		if err != nil {
			return nil, err
		}
		return &channel{
			inbox: q,
			newSender: func(id int) transport.Sender {
				return q
			},
			addr: cfg.RedisAddr,
			close: func() {
				if err := q.Purge(context.Background()); err != nil {
					logger.Warn("failed to purge signal list", "key", q.Key(), "error", err)
				}
				q.Close()
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

func (c *Controller) defaultLauncher(ctx context.Context, env launchEnv) (Launcher, func(context.Context) error, error) {
	cfg := c.cfg
	switch cfg.Launcher {
	case config.LauncherGoroutine:
		return &GoroutineLauncher{
			NewSender: env.newSender,
			Out:       env.out,
			Logger:    c.logger,
			Metrics:   c.metrics,
		}, nil, nil

	case config.LauncherProcess:
		return &ProcessLauncher{
			Bin:    cfg.WalkerBin,
			Stdout: env.out,
			Stderr: c.errOut,
			Logger: c.logger,
		}, nil, nil

	case config.LauncherDocker:
		d, err := NewDockerLauncher(cfg.WalkerImage, c.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("docker launcher: %w", err)
		}
		if err := d.CheckConnectivity(ctx); err != nil {
			d.Close()
			return nil, nil, err
		}
		return d, func(ctx context.Context) error {
			defer d.Close()
			return d.Cleanup(ctx)
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown launcher %q", cfg.Launcher)
}

// serveMetrics exposes the registry on addr until the returned stop is called.
func (c *Controller) serveMetrics(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go srv.Serve(ln)

	logging.Component(c.logger, "controller").Info("serving metrics", "addr", ln.Addr().String())
	return func() { srv.Close() }, nil
}

// Registry exposes the run's metrics.
func (c *Controller) Registry() *prometheus.Registry {
	return c.registry
}

func walkerIDs(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return host == "localhost" || (ip != nil && ip.IsLoopback())
}
