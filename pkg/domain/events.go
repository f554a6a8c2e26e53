package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStateChange   EventType = "state_change"
	EventTrialComplete EventType = "trial_complete"
	EventGainWrite     EventType = "gain_write"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Axis      string    `json:"axis"`
}

// StateEvent is emitted on every trial state transition.
type StateEvent struct {
	EventBase
	From TrialState `json:"from"`
	To   TrialState `json:"to"`
}

// TrialEvent is emitted once a trial has retrieved its trace.
type TrialEvent struct {
	EventBase
	Distance  float64       `json:"distance"`
	Outcome   Outcome       `json:"outcome"`
	Divisor   int           `json:"divisor"`
	Estimated time.Duration `json:"estimated"`
	Elapsed   time.Duration `json:"elapsed"`
}

// GainEvent is emitted after an operator attempted to write a gain.
type GainEvent struct {
	EventBase
	Param    ParamID `json:"param"`
	Value    float64 `json:"value"`
	Rejected bool    `json:"rejected,omitempty"`
	Err      error   `json:"-"`
}

// TrialHooks defines callbacks for trial observability. Nil callbacks are skipped.
type TrialHooks struct {
	OnStateChange   func(context.Context, *StateEvent)
	OnTrialComplete func(context.Context, *TrialEvent)
	OnGainWrite     func(context.Context, *GainEvent)
}

// Merge returns hooks that call h first and then other.
func (h TrialHooks) Merge(other TrialHooks) TrialHooks {
	return TrialHooks{
		OnStateChange:   chain(h.OnStateChange, other.OnStateChange),
		OnTrialComplete: chain(h.OnTrialComplete, other.OnTrialComplete),
		OnGainWrite:     chain(h.OnGainWrite, other.OnGainWrite),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
