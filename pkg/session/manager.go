package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/pidtune/internal/logging"
	"github.com/aretw0/pidtune/pkg/clock"
	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/aretw0/pidtune/pkg/ports"
	"github.com/aretw0/pidtune/pkg/profile"
	"github.com/aretw0/pidtune/pkg/trace"
)

const (
	// DefaultPollInterval is the on-target polling period.
	DefaultPollInterval = 20 * time.Millisecond
	// DefaultMargin is added to the recorder window and to the timeout budget.
	DefaultMargin = time.Second
	// DefaultStopTimeout bounds a Stop request.
	DefaultStopTimeout = 2 * time.Second
)

// Manager runs recorded moves on one axis. It is not safe for concurrent use:
// a trial must complete before the next one starts.
type Manager struct {
	ctrl   ports.AxisController
	axis   domain.Axis
	clock  clock.Clock
	logger *slog.Logger
	hooks  domain.TrialHooks

	pollInterval time.Duration
	margin       time.Duration
	stopTimeout  time.Duration
	fallback     domain.MotionProfile
	recording    domain.RecordingConfig

	// Session state, set by Prepare.
	prepared bool
	profile  domain.MotionProfile
	limits   domain.RecorderLimits
	state    domain.TrialState
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock replaces the wall clock used for polling and draining.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithPollInterval sets the on-target polling period.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithMargin sets the fixed safety margin of the recorder window and timeout.
func WithMargin(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.margin = d
		}
	}
}

// WithStopTimeout bounds how long a Stop request may take.
func WithStopTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.stopTimeout = d
		}
	}
}

// WithDefaultProfile sets the motion profile used when the controller does not expose its own.
func WithDefaultProfile(p domain.MotionProfile) Option {
	return func(m *Manager) {
		if p.Valid() {
			m.fallback = p
		}
	}
}

// WithRecordingConfig overrides the recorder slot mapping.
func WithRecordingConfig(cfg domain.RecordingConfig) Option {
	return func(m *Manager) {
		m.recording = cfg
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.TrialHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// NewManager creates a session manager for axis on ctrl.
func NewManager(ctrl ports.AxisController, axis domain.Axis, opts ...Option) *Manager {
	m := &Manager{
		ctrl:         ctrl,
		axis:         axis,
		clock:        clock.Real(),
		logger:       logging.NewNop(),
		pollInterval: DefaultPollInterval,
		margin:       DefaultMargin,
		stopTimeout:  DefaultStopTimeout,
		fallback:     domain.DefaultMotionProfile(),
		recording:    domain.DefaultRecordingConfig(),
		state:        domain.StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("axis", axis.String())
	return m
}

// Axis returns the axis driven by the manager.
func (m *Manager) Axis() domain.Axis { return m.axis }

// Profile returns the motion profile pinned by Prepare.
func (m *Manager) Profile() domain.MotionProfile { return m.profile }

// Limits returns the recorder limits read by Prepare.
func (m *Manager) Limits() domain.RecorderLimits { return m.limits }

// State returns the current trial state.
func (m *Manager) State() domain.TrialState { return m.state }

// Prepare reads and pins the motion profile, binds the recorder slots and reads
// the recorder limits. Unreadable profile values fall back to the default profile;
// any communication failure is returned.
func (m *Manager) Prepare(ctx context.Context) error {
	if err := m.recording.Validate(); err != nil {
		return err
	}

	p, err := m.readProfile(ctx)
	if err != nil {
		return err
	}

	// Pin the profile so the duration estimates stay valid for the whole session.
	if err := m.ctrl.SetClosedLoopVelocity(ctx, m.axis, p.Velocity); err != nil {
		return ports.WrapOp("SetClosedLoopVelocity", m.axis, err)
	}
	if err := m.ctrl.SetClosedLoopAcceleration(ctx, m.axis, p.Acceleration); err != nil {
		return ports.WrapOp("SetClosedLoopAcceleration", m.axis, err)
	}
	if err := m.ctrl.SetClosedLoopDeceleration(ctx, m.axis, p.Acceleration); err != nil {
		return ports.WrapOp("SetClosedLoopDeceleration", m.axis, err)
	}

	for _, s := range m.recording.Slots {
		if err := m.ctrl.SetRecordingConfig(ctx, m.axis, s.Slot, s.Source); err != nil {
			return ports.WrapOp("SetRecordingConfig", m.axis, err)
		}
	}

	limits, err := m.ctrl.RecorderLimits(ctx)
	if err != nil {
		return ports.WrapOp("RecorderLimits", m.axis, err)
	}
	if !limits.Valid() {
		return fmt.Errorf("controller reported unusable recorder limits: %+v", limits)
	}

	m.profile = p
	m.limits = limits
	m.prepared = true
	m.logger.Info("Session prepared",
		"velocity", p.Velocity,
		"acceleration", p.Acceleration,
		"buffer_length", limits.BufferLength,
		"base_cycle", limits.BaseCycle,
	)
	return nil
}

func (m *Manager) readProfile(ctx context.Context) (domain.MotionProfile, error) {
	p := m.fallback

	v, err := m.ctrl.ClosedLoopVelocity(ctx, m.axis)
	if v, err = m.optional(err, "velocity", v); err != nil {
		return p, err
	}
	if v > 0 {
		p.Velocity = v
	}

	a, err := m.ctrl.ClosedLoopAcceleration(ctx, m.axis)
	if a, err = m.optional(err, "acceleration", a); err != nil {
		return p, err
	}
	if a > 0 {
		p.Acceleration = a
	}
	return p, nil
}

// optional turns a failed profile read into "use the default", except for transport failures.
func (m *Manager) optional(err error, name string, v float64) (float64, error) {
	if err == nil {
		if v <= 0 {
			m.logger.Warn("Controller reported a non-positive value, using default", "param", name, "value", v)
		}
		return v, nil
	}
	if domain.IsFatal(err) {
		return 0, ports.WrapOp("read "+name, m.axis, err)
	}
	m.logger.Warn("Cannot read motion profile, using default", "param", name, "err", err)
	return 0, nil
}

// Result describes one completed trial.
type Result struct {
	Distance float64
	Outcome  domain.Outcome
	// Fault is the controller fault that ended the move when Outcome is OutcomeControllerError.
	Fault error
	// Trace is the raw recorder buffer, in native units.
	Trace domain.SampleTrace

	Divisor   int
	Estimated time.Duration
	Recording time.Duration
	Timeout   time.Duration
	StartedAt time.Time
	Elapsed   time.Duration
}

// Run performs one recorded move of distance meters.
//
// How the motion ended is reported in Result.Outcome. An error is returned only when
// no trace could be obtained; domain.IsFatal tells whether the session must end.
func (m *Manager) Run(ctx context.Context, distance float64) (*Result, error) {
	if !m.prepared {
		if err := m.Prepare(ctx); err != nil {
			return nil, err
		}
	}
	if m.state != domain.StateIdle {
		return nil, fmt.Errorf("trial already in progress (state %s)", m.state)
	}

	res := &Result{Distance: distance}

	// Idle -> Armed
	res.Estimated = profile.Estimate(distance, m.profile)
	res.Divisor = profile.RecordRate(res.Estimated, m.margin, m.limits)
	res.Recording = profile.RecordingDuration(m.limits, res.Divisor)
	res.Timeout = profile.TimeoutBudget(res.Recording, m.margin)
	if err := m.ctrl.SetRecordRate(ctx, res.Divisor); err != nil {
		return nil, m.abort(ctx, ports.WrapOp("SetRecordRate", m.axis, err))
	}
	m.transition(ctx, domain.StateArmed)

	// Armed -> Moving
	if err := m.ctrl.MoveRelativeRecorded(ctx, m.axis, distance); err != nil {
		return nil, m.abort(ctx, ports.WrapOp("MoveRelativeRecorded", m.axis, err))
	}
	res.StartedAt = m.clock.Now()
	m.transition(ctx, domain.StateMoving)
	m.logger.Debug("Move started",
		"distance", distance,
		"estimated", res.Estimated,
		"divisor", res.Divisor,
		"recording", res.Recording,
		"timeout", res.Timeout,
	)

	// Moving -> Draining
	outcome, fault, err := m.waitOnTarget(ctx, res.StartedAt.Add(res.Timeout))
	if err != nil {
		return nil, m.abort(ctx, err)
	}
	res.Outcome = outcome
	res.Fault = fault
	m.transition(ctx, domain.StateDraining)

	// The recorder keeps sampling whatever the axis does: give it its full window.
	if err := m.clock.Sleep(ctx, res.StartedAt.Add(res.Recording).Sub(m.clock.Now())); err != nil {
		return nil, m.abort(ctx, err)
	}
	data, err := m.ctrl.RecordedData(ctx)
	if err != nil {
		return nil, m.abort(ctx, ports.WrapOp("RecordedData", m.axis, err))
	}
	if len(data) != m.limits.BufferLength {
		m.logger.Warn("Recorded trace length differs from buffer length",
			"samples", len(data), "buffer_length", m.limits.BufferLength)
	}
	res.Trace = data
	res.Elapsed = m.clock.Now().Sub(res.StartedAt)

	m.transition(ctx, domain.StateComplete)
	if m.hooks.OnTrialComplete != nil {
		m.hooks.OnTrialComplete(ctx, &domain.TrialEvent{
			EventBase: m.event(domain.EventTrialComplete),
			Distance:  distance,
			Outcome:   res.Outcome,
			Divisor:   res.Divisor,
			Estimated: res.Estimated,
			Elapsed:   res.Elapsed,
		})
	}
	m.transition(ctx, domain.StateIdle)
	return res, nil
}

// Process converts the raw trace of res into a timestamped physical-unit report.
func (m *Manager) Process(res *Result) *trace.Report {
	return trace.Process(res.Trace, res.Divisor, m.limits.BaseCycle, m.axis.UnitFactor)
}

// Report builds the sink report of trial number n, run with the given gains.
func (m *Manager) Report(res *Result, n int, gains domain.Gains) *ports.TrialReport {
	report := &ports.TrialReport{
		Trial:     n,
		StartedAt: res.StartedAt,
		Axis:      m.axis,
		Gains:     gains,
		Distance:  res.Distance,
		Outcome:   res.Outcome,
		Divisor:   res.Divisor,
		Estimated: res.Estimated,
		Recording: res.Recording,
		Elapsed:   res.Elapsed,
		Trace:     m.Process(res),
	}
	if res.Fault != nil {
		report.Fault = res.Fault.Error()
	}
	return report
}

// waitOnTarget polls until the axis is on target, faults, or the deadline passes.
func (m *Manager) waitOnTarget(ctx context.Context, deadline time.Time) (outcome domain.Outcome, fault error, err error) {
	for {
		var on bool
		on, err = m.ctrl.IsOnTarget(ctx, m.axis)
		switch {
		case errors.Is(err, domain.ErrControllerFault):
			// The fault already halted the axis: no stop, no retry.
			m.logger.Warn("Controller fault during move", "err", err)
			return domain.OutcomeControllerError, ports.WrapOp("IsOnTarget", m.axis, err), nil
		case err != nil:
			return "", nil, ports.WrapOp("IsOnTarget", m.axis, err)
		case on:
			return domain.OutcomeOnTarget, nil, nil
		}

		if !m.clock.Now().Before(deadline) {
			m.logger.Warn("Move did not reach target in time, stopping axis")
			m.stop(ctx)
			return domain.OutcomeTimeout, nil, nil
		}

		if err := m.clock.Sleep(ctx, m.pollInterval); err != nil {
			m.stop(ctx)
			return "", nil, err
		}
	}
}

// stop requests a halt, bounded by the stop timeout even if ctx is already cancelled.
func (m *Manager) stop(ctx context.Context) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.stopTimeout)
	defer cancel()
	if err := m.ctrl.Stop(sctx, m.axis); err != nil {
		m.logger.Warn("Stop request failed", "err", err)
	}
}

func (m *Manager) abort(ctx context.Context, err error) error {
	m.transition(ctx, domain.StateIdle)
	return err
}

func (m *Manager) transition(ctx context.Context, to domain.TrialState) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	if m.hooks.OnStateChange != nil {
		m.hooks.OnStateChange(ctx, &domain.StateEvent{
			EventBase: m.event(domain.EventStateChange),
			From:      from,
			To:        to,
		})
	}
}

func (m *Manager) event(t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: m.clock.Now(), Type: t, Axis: m.axis.ID}
}
