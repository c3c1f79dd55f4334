package walker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ahmadhassan44/random-walk/internal/logging"
	"github.com/ahmadhassan44/random-walk/internal/metrics"
	"github.com/ahmadhassan44/random-walk/internal/transport"
	"github.com/ahmadhassan44/random-walk/pkg/config"
	"github.com/ahmadhassan44/random-walk/pkg/protocol"
)

// Walker is one walker unit: it walks once, reports once, and signals once.
type Walker struct {
	ID     int
	Config config.WalkerConfig
	Seed   uint64

	// Out receives the status line.
	Out     io.Writer
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Run walks to termination, prints the status line and sends exactly one
// completion signal. The signal is the final action; Run returns its error.
func (w *Walker) Run(ctx context.Context, sender transport.Sender) (State, error) {
	logger := logging.Component(w.Logger, "walker").With("walker_id", w.ID)

	start := time.Now()
	st := Walk(w.Config, NewRand(w.Seed, w.ID))
	w.Metrics.ObserveSteps(st.StepsTaken)

	logger.Debug("walk finished",
		"steps", st.StepsTaken,
		"position", st.Position,
		"exited", st.Exited(w.Config),
		"duration", time.Since(start))

	if w.Out != nil {
		if _, err := fmt.Fprintf(w.Out, "Walker %d: finished in %d steps.\n", w.ID, st.StepsTaken); err != nil {
			logger.Warn("failed to write status line", "error", err)
		}
	}

	if err := sender.Send(ctx, protocol.NewCompletionSignal(w.ID)); err != nil {
		return st, fmt.Errorf("walker %d: send completion signal: %w", w.ID, err)
	}
	return st, nil
}
