package controller

import (
	"time"

	"github.com/ahmadhassan44/random-walk/pkg/config"
)

// StepEstimator predicts walk lengths and turns them into barrier timeouts.
type StepEstimator struct {
	// startup covers process or container spawn before the first step.
	stepsPerSecond float64
	startup        map[string]time.Duration
	floor          time.Duration
}

func NewStepEstimator() *StepEstimator {
	return &StepEstimator{
		stepsPerSecond: 10_000_000,
		startup: map[string]time.Duration{
			config.LauncherGoroutine: 0,
			config.LauncherProcess:   5 * time.Second,
			config.LauncherDocker:    60 * time.Second,
		},
		floor: 10 * time.Second,
	}
}

// ExpectedSteps is the mean number of steps a walker takes. A symmetric walk
// from the origin first leaves [-b, b] after (b+1)^2 steps on average; the
// budget caps it.
func (e *StepEstimator) ExpectedSteps(cfg config.WalkerConfig) int64 {
	exit := int64(cfg.DomainBound+1) * int64(cfg.DomainBound+1)
	if budget := int64(cfg.StepBudget); budget < exit {
		return budget
	}
	return exit
}

// SuggestTimeout bounds the wait by the worst case (every walker spending its
// whole budget) plus launcher startup, with generous headroom.
func (e *StepEstimator) SuggestTimeout(cfg config.WalkerConfig, launcher string) time.Duration {
	walk := time.Duration(float64(cfg.StepBudget) / e.stepsPerSecond * float64(time.Second))
	timeout := 2*walk + e.startup[launcher]
	if timeout < e.floor {
		timeout = e.floor
	}
	return timeout
}
