package runner

import (
	"log/slog"

	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/aretw0/pidtune/pkg/ports"
	"github.com/aretw0/pidtune/pkg/sinks"
)

// DefaultDistance is the pending move distance of a new session, in meters.
const DefaultDistance = 1e-3

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithHandler configures the operator IOHandler.
func WithHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithSinks configures where trial reports are published.
func WithSinks(s ...ports.ReportSink) Option {
	return func(r *Runner) {
		r.Sink = sinks.Multi(s...)
	}
}

// WithDisplayUnit sets the unit distances are shown and entered in.
func WithDisplayUnit(u DisplayUnit) Option {
	return func(r *Runner) {
		if u.Meters > 0 {
			r.Unit = u
		}
	}
}

// WithInitialDistance sets the first pending move distance, in meters.
func WithInitialDistance(m float64) Option {
	return func(r *Runner) {
		r.Session.Distance = m
	}
}

// WithInterceptor configures the move policy middleware.
func WithInterceptor(interceptor MoveInterceptor) Option {
	return func(r *Runner) {
		r.Interceptor = interceptor
	}
}

// WithHooks registers observability hooks for gain writes.
// Trial hooks belong to the session.Manager.
func WithHooks(hooks domain.TrialHooks) Option {
	return func(r *Runner) {
		r.Hooks = hooks
	}
}
