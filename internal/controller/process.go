package controller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/ahmadhassan44/random-walk/internal/logging"
	"golang.org/x/sync/errgroup"
)

// ProcessLauncher runs every walker as its own OS process.
type ProcessLauncher struct {
	// Bin is the walker executable.
	Bin    string
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	cmds []*exec.Cmd
}

// DefaultWalkerBin looks for the walker binary next to the running executable.
func DefaultWalkerBin() string {
	self, err := os.Executable()
	if err != nil {
		return "walker"
	}
	return filepath.Join(filepath.Dir(self), "walker")
}

func (l *ProcessLauncher) Launch(ctx context.Context, spec LaunchSpec) error {
	logger := logging.Component(l.Logger, "process-launcher")
	bin := l.Bin
	if bin == "" {
		bin = DefaultWalkerBin()
	}

	for _, id := range spec.IDs {
		cmd := exec.CommandContext(ctx, bin, walkerArgs(spec, id)...)
		cmd.Env = append(os.Environ(), fmt.Sprintf("WALKER_ID=%d", id))
		cmd.Stdout = l.Stdout
		cmd.Stderr = l.Stderr

		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start walker %d: %w", id, err)
		}
		logger.Debug("walker started", "walker_id", id, "pid", cmd.Process.Pid)
		l.cmds = append(l.cmds, cmd)
	}
	return nil
}

func (l *ProcessLauncher) Wait() error {
	var g errgroup.Group
	for _, cmd := range l.cmds {
		g.Go(func() error {
			if err := cmd.Wait(); err != nil {
				return fmt.Errorf("walker process %d: %w", cmd.Process.Pid, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// walkerArgs is the walker command line for id.
func walkerArgs(spec LaunchSpec, id int) []string {
	return []string{
		strconv.Itoa(spec.Walker.DomainBound),
		strconv.Itoa(spec.Walker.StepBudget),
		"--id", strconv.Itoa(id),
		"--transport", spec.Transport,
		"--signal-addr", spec.SignalAddr,
		"--run-id", spec.RunID,
		"--seed", strconv.FormatUint(spec.Seed, 10),
	}
}
