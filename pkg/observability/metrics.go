package observability

import (
	"context"
	"fmt"

	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pidtune"

// Metrics holds the Prometheus collectors of a tuning session.
type Metrics struct {
	Trials       *prometheus.CounterVec
	TrialSeconds *prometheus.HistogramVec
	Divisor      *prometheus.GaugeVec
	Transitions  *prometheus.CounterVec
	GainWrites   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Trials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trials_total",
				Help:      "Total number of trials by outcome",
			},
			[]string{"axis", "outcome"},
		),
		TrialSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trial_duration_seconds",
				Help:      "Time from move start to trace retrieval",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
			},
			[]string{"axis"},
		),
		Divisor: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "record_rate_divisor",
				Help:      "Record rate divisor of the last trial",
			},
			[]string{"axis"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Trial state machine transitions by target state",
			},
			[]string{"axis", "state"},
		),
		GainWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gain_writes_total",
				Help:      "Gain writes by parameter and result",
			},
			[]string{"axis", "param", "result"},
		),
	}

	for _, c := range []prometheus.Collector{m.Trials, m.TrialSeconds, m.Divisor, m.Transitions, m.GainWrites} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

// Hooks returns the hooks that feed the collectors.
func (m *Metrics) Hooks() domain.TrialHooks {
	return domain.TrialHooks{
		OnStateChange: func(_ context.Context, e *domain.StateEvent) {
			m.Transitions.WithLabelValues(e.Axis, string(e.To)).Inc()
		},
		OnTrialComplete: func(_ context.Context, e *domain.TrialEvent) {
			m.Trials.WithLabelValues(e.Axis, string(e.Outcome)).Inc()
			m.TrialSeconds.WithLabelValues(e.Axis).Observe(e.Elapsed.Seconds())
			m.Divisor.WithLabelValues(e.Axis).Set(float64(e.Divisor))
		},
		OnGainWrite: func(_ context.Context, e *domain.GainEvent) {
			m.GainWrites.WithLabelValues(e.Axis, e.Param.String(), gainResult(e)).Inc()
		},
	}
}

// Init pre-creates the per-outcome series of axis so they read 0 before the first trial.
func (m *Metrics) Init(axis string) {
	for _, o := range domain.Outcomes {
		m.Trials.WithLabelValues(axis, string(o))
	}
}

func gainResult(e *domain.GainEvent) string {
	switch {
	case e.Err == nil:
		return "accepted"
	case e.Rejected:
		return "rejected"
	default:
		return "failed"
	}
}
