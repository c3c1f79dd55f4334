package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahmadhassan44/random-walk/internal/controller"
	"github.com/ahmadhassan44/random-walk/internal/logging"
	"github.com/ahmadhassan44/random-walk/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cfg := config.LoadConfig()
	var (
		configPath string
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:   "controller <domain_bound> <step_budget>",
		Short: "Run a pool of random walkers and wait until all of them finish",
		Long: `controller starts pool-size - 1 independent 1-D random walkers, waits for
exactly one completion signal from each of them, and prints a summary.

Walkers stop when |position| > domain_bound or after step_budget steps.`,
		Args: func(cmd *cobra.Command, args []string) error {
			wc, err := config.ParseBounds(args)
			if err != nil {
				return err
			}
			cfg.Walker = wc
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Arguments are fine; further errors are not usage problems.
			cmd.SilenceUsage = true

			if configPath != "" {
				if err := loadFile(cmd.Flags(), cfg, configPath); err != nil {
					return err
				}
			}

			level, err := logging.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logger := logging.New(level, logFormat, stderr)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctrl := controller.New(cfg,
				controller.WithLogger(logger),
				controller.WithOutput(stdout),
				controller.WithErrorOutput(stderr),
			)
			_, err = ctrl.Run(ctx)
			return err
		},
	}
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.IntVar(&cfg.PoolSize, "pool-size", cfg.PoolSize, "Units in the pool including the controller (walkers = pool-size - 1)")
	flags.StringVar(&cfg.Launcher, "launcher", cfg.Launcher, "How walkers run: goroutine, process or docker")
	flags.StringVar(&cfg.Transport, "transport", cfg.Transport, "Completion channel: local, http or redis")
	flags.StringVar(&cfg.SignalAddr, "signal-addr", cfg.SignalAddr, "Listen address for the http transport")
	flags.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the redis transport")
	flags.StringVar(&cfg.Timeout, "timeout", cfg.Timeout, `Barrier timeout: "none", "auto" or a duration`)
	flags.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Run seed (0 derives one from the clock)")
	flags.StringVar(&cfg.WalkerBin, "walker-bin", cfg.WalkerBin, "Walker executable for the process launcher")
	flags.StringVar(&cfg.WalkerImage, "walker-image", cfg.WalkerImage, "Walker image for the docker launcher")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve /metrics on this address")
	flags.StringVar(&configPath, "config", "", "YAML config file")
	flags.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	return cmd
}

// loadFile overlays the YAML file on cfg while keeping explicitly set flags.
func loadFile(flags *pflag.FlagSet, cfg *config.Config, path string) error {
	changed := map[string]string{}
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	walker := cfg.Walker
	if err := cfg.LoadFile(path); err != nil {
		return err
	}
	// Positional bounds always win over the file.
	cfg.Walker = walker

	for name, val := range changed {
		if err := flags.Set(name, val); err != nil {
			return err
		}
	}
	return nil
}
