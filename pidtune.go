package pidtune

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/pidtune/internal/logging"
	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/aretw0/pidtune/pkg/ports"
	"github.com/aretw0/pidtune/pkg/runner"
	"github.com/aretw0/pidtune/pkg/session"
)

// Version is the release of the tool. Overridden at build time with -ldflags.
var Version = "0.1.0-dev"

// Tuner is the high-level entry point for the pidtune library.
// It wraps a session manager and provides a simplified API for consumers.
type Tuner struct {
	ctrl        ports.AxisController
	manager     *session.Manager
	logger      *slog.Logger
	hooks       domain.TrialHooks
	sessionOpts []session.Option
	runnerOpts  []runner.Option
	trials      int
}

// Option defines a functional option for configuring the Tuner.
type Option func(*Tuner)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tuner) {
		t.logger = logger
	}
}

// WithHooks registers observability hooks for trials and gain writes.
func WithHooks(hooks domain.TrialHooks) Option {
	return func(t *Tuner) {
		t.hooks = hooks
	}
}

// WithSessionOptions passes options to the session manager (clock, margin, recording slots...).
func WithSessionOptions(opts ...session.Option) Option {
	return func(t *Tuner) {
		t.sessionOpts = append(t.sessionOpts, opts...)
	}
}

// WithRunnerOptions passes options to the operator loop started by Interactive.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(t *Tuner) {
		t.runnerOpts = append(t.runnerOpts, opts...)
	}
}

// New creates a Tuner for axis on ctrl. The caller keeps ownership of ctrl.
func New(ctrl ports.AxisController, axis domain.Axis, opts ...Option) *Tuner {
	t := &Tuner{
		ctrl:   ctrl,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	sessionOpts := append([]session.Option{
		session.WithLogger(t.logger),
		session.WithHooks(t.hooks),
	}, t.sessionOpts...)
	t.manager = session.NewManager(ctrl, axis, sessionOpts...)
	return t
}

// Manager exposes the underlying session manager.
func (t *Tuner) Manager() *session.Manager {
	return t.manager
}

// Prepare pins the motion profile and binds the recorder. Trial calls it when needed.
func (t *Tuner) Prepare(ctx context.Context) error {
	return t.manager.Prepare(ctx)
}

// Gains reads the current gains from the controller.
func (t *Tuner) Gains(ctx context.Context) (domain.Gains, error) {
	return ports.ReadGains(ctx, t.ctrl, t.manager.Axis())
}

// SetGain writes one gain slot.
func (t *Tuner) SetGain(ctx context.Context, id domain.ParamID, value float64) error {
	if !id.IsGain() {
		return fmt.Errorf("parameter %s is not a gain: %w", id, domain.ErrRejectedValue)
	}
	err := t.ctrl.SetParameter(ctx, t.manager.Axis(), id, value)
	if t.hooks.OnGainWrite != nil {
		t.hooks.OnGainWrite(ctx, &domain.GainEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventGainWrite, Axis: t.manager.Axis().ID},
			Param:     id,
			Value:     value,
			Rejected:  errors.Is(err, domain.ErrRejectedValue),
			Err:       err,
		})
	}
	return ports.WrapOp("SetParameter", t.manager.Axis(), err)
}

// Trial runs one recorded move of distance meters and returns its report.
// Timeouts and controller faults are outcomes of the report, not errors.
func (t *Tuner) Trial(ctx context.Context, distance float64) (*ports.TrialReport, error) {
	gains, err := t.Gains(ctx)
	if err != nil && domain.IsFatal(err) {
		return nil, err
	}
	res, err := t.manager.Run(ctx, distance)
	if err != nil {
		return nil, err
	}
	t.trials++
	return t.manager.Report(res, t.trials, gains), nil
}

// Interactive runs the operator trial loop until the operator quits.
func (t *Tuner) Interactive(ctx context.Context) error {
	opts := append([]runner.Option{
		runner.WithLogger(t.logger),
		runner.WithHooks(t.hooks),
	}, t.runnerOpts...)
	return runner.New(t.ctrl, t.manager, opts...).Run(ctx)
}
