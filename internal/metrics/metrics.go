package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons recorded on SignalsDropped.
const (
	ReasonMalformed  = "malformed"
	ReasonDuplicate  = "duplicate"
	ReasonOutOfRange = "out_of_range"
)

// Metrics groups the collectors shared by walkers and the coordinator.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	WalkerSteps     prometheus.Histogram
	SignalsReceived prometheus.Counter
	SignalsDropped  *prometheus.CounterVec
	Outstanding     prometheus.Gauge
	BarrierSeconds  prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WalkerSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "randwalk_walker_steps",
			Help:    "Steps taken by each walker before stopping",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		SignalsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "randwalk_signals_received_total",
			Help: "Completion signals counted by the coordinator",
		}),
		SignalsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "randwalk_signals_dropped_total",
				Help: "Inbound messages rejected by the coordinator",
			},
			[]string{"reason"},
		),
		Outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "randwalk_walkers_outstanding",
			Help: "Walkers the coordinator is still waiting for",
		}),
		BarrierSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "randwalk_barrier_seconds",
			Help:    "Time from the start of the wait until the barrier was satisfied",
			Buckets: prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(m.WalkerSteps, m.SignalsReceived, m.SignalsDropped, m.Outstanding, m.BarrierSeconds)
	}
	return m
}

func (m *Metrics) ObserveSteps(steps int) {
	if m == nil {
		return
	}
	m.WalkerSteps.Observe(float64(steps))
}

func (m *Metrics) Received(outstanding int) {
	if m == nil {
		return
	}
	m.SignalsReceived.Inc()
	m.Outstanding.Set(float64(outstanding))
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.SignalsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Expect(n int) {
	if m == nil {
		return
	}
	m.Outstanding.Set(float64(n))
}

func (m *Metrics) BarrierDone(seconds float64) {
	if m == nil {
		return
	}
	m.BarrierSeconds.Observe(seconds)
}
