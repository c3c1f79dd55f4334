package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ahmadhassan44/random-walk/internal/logging"
	"github.com/ahmadhassan44/random-walk/internal/transport"
	"github.com/ahmadhassan44/random-walk/internal/walker"
	"github.com/ahmadhassan44/random-walk/pkg/config"
	"github.com/spf13/cobra"
)

type options struct {
	id         int
	transport  string
	signalAddr string
	redisAddr  string
	runID      string
	seed       uint64
	logLevel   string
	logFormat  string
}

// Container images pass everything through the environment.
func envOptions() options {
	o := options{
		transport:  os.Getenv("RANDWALK_TRANSPORT"),
		signalAddr: os.Getenv("RANDWALK_SIGNAL_ADDR"),
		redisAddr:  os.Getenv("RANDWALK_REDIS_ADDR"),
		runID:      os.Getenv("RANDWALK_RUN_ID"),
		logLevel:   "info",
		logFormat:  "text",
	}
	if o.transport == "" {
		o.transport = config.TransportHTTP
	}
	if id, err := strconv.Atoi(os.Getenv("WALKER_ID")); err == nil {
		o.id = id
	}
	if seed, err := strconv.ParseUint(os.Getenv("RANDWALK_SEED"), 10, 64); err == nil {
		o.seed = seed
	}
	return o
}

func boundsArgs(args []string) []string {
	if len(args) == 0 {
		bound, budget := os.Getenv("DOMAIN_BOUND"), os.Getenv("STEP_BUDGET")
		if bound != "" && budget != "" {
			return []string{bound, budget}
		}
	}
	return args
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := envOptions()
	var wc config.WalkerConfig

	cmd := &cobra.Command{
		Use:   "walker <domain_bound> <step_budget>",
		Short: "Run one random walker and signal its completion",
		Args: func(cmd *cobra.Command, args []string) error {
			var err error
			wc, err = config.ParseBounds(boundsArgs(args))
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			if opts.id < 1 {
				return fmt.Errorf("%w: walker id must be >= 1, got %d", config.ErrUsage, opts.id)
			}

			level, err := logging.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			logger := logging.New(level, opts.logFormat, stderr)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sender, closeSender, err := dialSender(ctx, opts)
			if err != nil {
				return err
			}
			defer closeSender()

			seed := opts.seed
			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}

			w := &walker.Walker{
				ID:     opts.id,
				Config: wc,
				Seed:   seed,
				Out:    stdout,
				Logger: logger,
			}
			_, err = w.Run(ctx, sender)
			return err
		},
	}
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.IntVar(&opts.id, "id", opts.id, "Walker id, 1-based (env WALKER_ID)")
	flags.StringVar(&opts.transport, "transport", opts.transport, "Completion channel: http or redis")
	flags.StringVar(&opts.signalAddr, "signal-addr", opts.signalAddr, "Controller signal endpoint, or the Redis address for the redis transport")
	flags.StringVar(&opts.redisAddr, "redis-addr", opts.redisAddr, "Redis address (overrides --signal-addr for redis)")
	flags.StringVar(&opts.runID, "run-id", opts.runID, "Run the signal belongs to")
	flags.Uint64Var(&opts.seed, "seed", opts.seed, "Run seed (0 derives one from the clock)")
	flags.StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", opts.logFormat, "Log format: text or json")

	return cmd
}

// dialSender connects to the controller's completion channel.
func dialSender(ctx context.Context, opts options) (transport.Sender, func(), error) {
	switch opts.transport {
	case config.TransportHTTP:
		if opts.signalAddr == "" {
			return nil, nil, fmt.Errorf("%w: --signal-addr is required for the http transport", config.ErrUsage)
		}
		return transport.NewClient(opts.signalAddr, nil), func() {}, nil

	case config.TransportRedis:
		addr := opts.redisAddr
		if addr == "" {
			addr = opts.signalAddr
		}
		if addr == "" || opts.runID == "" {
			return nil, nil, fmt.Errorf("%w: the redis transport needs an address and --run-id", config.ErrUsage)
		}
		q, err := transport.DialRedis(ctx, addr, opts.runID)
		if err != nil {
			return nil, nil, err
		}
		return q, func() { q.Close() }, nil
	}
	return nil, nil, fmt.Errorf("%w: walker processes cannot use transport %q", config.ErrUsage, opts.transport)
}
