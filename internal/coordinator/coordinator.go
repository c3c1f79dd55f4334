// Package coordinator counts walker completion signals until every walker
// has reported.
//
// The wait has two states. WAITING holds while fewer than Expected signals
// have been counted; DONE is terminal and is entered the moment the count
// reaches Expected (immediately when Expected is zero). Only well-formed
// signals from walkers that have not reported yet advance the count;
// everything else is dropped with a diagnostic.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ahmadhassan44/random-walk/internal/logging"
	"github.com/ahmadhassan44/random-walk/internal/metrics"
	"github.com/ahmadhassan44/random-walk/internal/transport"
	"github.com/ahmadhassan44/random-walk/pkg/protocol"
)

// ErrBarrierIncomplete matches every *IncompleteError.
var ErrBarrierIncomplete = errors.New("barrier incomplete")

// IncompleteError reports a wait that ended before every signal arrived.
type IncompleteError struct {
	Received int
	Expected int
	Cause    error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("barrier incomplete: %d of %d signals received: %v", e.Received, e.Expected, e.Cause)
}

func (e *IncompleteError) Is(target error) bool {
	return target == ErrBarrierIncomplete
}

func (e *IncompleteError) Unwrap() error {
	return e.Cause
}

// Tally is the coordinator's count.
type Tally struct {
	Expected  int
	Completed int
	Dropped   int

	// Arrivals lists walker ids in the order their signals were counted.
	Arrivals []int
}

// Status derives the barrier state from the count.
func (t Tally) Status() protocol.Status {
	if t.Completed == t.Expected {
		return protocol.StatusDone
	}
	return protocol.StatusWaiting
}

// Coordinator drains Inbox until Expected distinct walkers have signalled.
type Coordinator struct {
	Expected int
	Inbox    transport.Receiver

	// Timeout bounds the whole wait; zero waits forever.
	Timeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	mu       sync.Mutex
	progress Tally
}

// Wait blocks until the barrier is satisfied, the timeout passes or ctx is
// done. A partial wait returns the tally so far and an *IncompleteError.
func (c *Coordinator) Wait(ctx context.Context) (Tally, error) {
	logger := logging.Component(c.Logger, "coordinator")

	tally := Tally{Expected: c.Expected}
	c.publish(tally)
	c.Metrics.Expect(c.Expected)

	if c.Expected <= 0 {
		logger.Debug("no walkers to wait for")
		return tally, nil
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	start := time.Now()
	seen := make(map[int]bool, c.Expected)

	for tally.Completed < tally.Expected {
		msg, err := c.Inbox.Receive(ctx)
		if err != nil {
			logger.Error("wait aborted", "completed", tally.Completed, "expected", tally.Expected, "error", err)
			return tally, &IncompleteError{Received: tally.Completed, Expected: tally.Expected, Cause: err}
		}

		sig, reason := c.accept(msg, seen)
		if reason != "" {
			tally.Dropped++
			c.Metrics.Dropped(reason)
			logger.Warn("dropped message", "reason", reason, "source", msg.Source, "size", len(msg.Body))
			c.publish(tally)
			continue
		}

		seen[sig.WalkerID] = true
		tally.Completed++
		tally.Arrivals = append(tally.Arrivals, sig.WalkerID)
		c.Metrics.Received(tally.Expected - tally.Completed)
		c.publish(tally)

		logger.Debug("walker finished", "walker_id", sig.WalkerID, "completed", tally.Completed, "expected", tally.Expected)
	}

	c.Metrics.BarrierDone(time.Since(start).Seconds())
	logger.Info("all walkers finished", "expected", tally.Expected, "dropped", tally.Dropped, "duration", time.Since(start))
	return tally, nil
}

// accept validates msg and returns the drop reason, empty when it counts.
func (c *Coordinator) accept(msg protocol.Message, seen map[int]bool) (protocol.CompletionSignal, string) {
	sig, err := protocol.Decode(msg.Body)
	if err != nil {
		return sig, metrics.ReasonMalformed
	}
	if sig.WalkerID < 1 || sig.WalkerID > c.Expected {
		return sig, metrics.ReasonOutOfRange
	}
	if seen[sig.WalkerID] {
		return sig, metrics.ReasonDuplicate
	}
	return sig, ""
}

func (c *Coordinator) publish(t Tally) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = Tally{Expected: t.Expected, Completed: t.Completed, Dropped: t.Dropped}
}

// Progress is a snapshot of the running count, safe to call concurrently
// with Wait.
func (c *Coordinator) Progress() Tally {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Report writes the summary line for a satisfied barrier.
func Report(w io.Writer, t Tally) error {
	if t.Status() != protocol.StatusDone {
		return fmt.Errorf("report before barrier: %d of %d signals", t.Completed, t.Expected)
	}
	_, err := fmt.Fprintf(w, "Controller: All %d walkers have finished.\n", t.Expected)
	return err
}
