package walker

import (
	"math/rand/v2"

	"github.com/ahmadhassan44/random-walk/pkg/config"
)

// State is owned by one walker for the lifetime of its walk.
type State struct {
	Position   int
	StepsTaken int
}

// Walk runs a 1-D random walk from the origin until the walker leaves
// [-DomainBound, DomainBound] or has spent StepBudget steps.
func Walk(cfg config.WalkerConfig, rng *rand.Rand) State {
	var st State
	for abs(st.Position) <= cfg.DomainBound && st.StepsTaken < cfg.StepBudget {
		if rng.IntN(2) == 0 {
			st.Position--
		} else {
			st.Position++
		}
		st.StepsTaken++
	}
	return st
}

// Exited reports whether the walk ended by leaving the domain.
func (s State) Exited(cfg config.WalkerConfig) bool {
	return abs(s.Position) > cfg.DomainBound
}

// NewRand returns the random stream for walker id under run seed. Distinct
// ids always get distinct streams.
func NewRand(seed uint64, id int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(id)))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
