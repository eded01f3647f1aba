// Package metrics exposes game counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "polyhex"

type Metrics struct {
	sessionsStarted   prometheus.Counter
	sessionsCompleted *prometheus.CounterVec
	moves             *prometheus.CounterVec
	boardGeneration   prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions paired and started.",
		}),
		sessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Sessions completed, by outcome.",
		}, []string{"outcome"}),
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_total",
			Help:      "Moves submitted, by result.",
		}, []string{"result"}),
		boardGeneration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "board_generation_seconds",
			Help:      "Time spent generating a board layout.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}

	reg.MustRegister(m.sessionsStarted, m.sessionsCompleted, m.moves, m.boardGeneration)

	return m
}

func (that *Metrics) SessionStarted() {
	that.sessionsStarted.Inc()
}

func (that *Metrics) SessionCompleted(outcome string) {
	that.sessionsCompleted.WithLabelValues(outcome).Inc()
}

// Move counts a move as "accepted" or by its rejection kind.
func (that *Metrics) Move(result string) {
	that.moves.WithLabelValues(result).Inc()
}

func (that *Metrics) BoardGenerated(elapsed time.Duration) {
	that.boardGeneration.Observe(elapsed.Seconds())
}
