package controller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ahmadhassan44/random-walk/internal/metrics"
	"github.com/ahmadhassan44/random-walk/internal/transport"
	"github.com/ahmadhassan44/random-walk/internal/walker"
	"github.com/ahmadhassan44/random-walk/pkg/config"
	"golang.org/x/sync/errgroup"
)

// LaunchSpec describes the walkers one run needs.
type LaunchSpec struct {
	IDs    []int
	Walker config.WalkerConfig
	Seed   uint64
	RunID  string

	// Transport and SignalAddr tell out-of-process walkers where to report.
	Transport  string
	SignalAddr string
}

// Launcher starts walkers. Launch returns once every walker has been started;
// it does not wait for them to finish.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) error
	// Wait blocks until every started walker has exited.
	Wait() error
}

// GoroutineLauncher runs walkers in-process, each with its own send handle.
type GoroutineLauncher struct {
	NewSender func(id int) transport.Sender
	Out       io.Writer
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	g *errgroup.Group
}

func (l *GoroutineLauncher) Launch(ctx context.Context, spec LaunchSpec) error {
	if l.NewSender == nil {
		return fmt.Errorf("goroutine launcher has no sender")
	}

	l.g = &errgroup.Group{}
	for _, id := range spec.IDs {
		w := &walker.Walker{
			ID:      id,
			Config:  spec.Walker,
			Seed:    spec.Seed,
			Out:     l.Out,
			Logger:  l.Logger,
			Metrics: l.Metrics,
		}
		sender := l.NewSender(id)
		l.g.Go(func() error {
			_, err := w.Run(ctx, sender)
			return err
		})
	}
	return nil
}

func (l *GoroutineLauncher) Wait() error {
	if l.g == nil {
		return nil
	}
	return l.g.Wait()
}

// lineWriter serialises writes so concurrent walkers never interleave lines.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{w: w}
}

func (lw *lineWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
