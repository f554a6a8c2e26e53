// Package sim provides a simulated closed-loop motion axis implementing ports.AxisController.
//
// The axis follows a trapezoidal set-point through a PID loop acting on a damped mass.
// A move is simulated in full when it starts; the configured clock then decides how much
// of it has "happened" when the axis is polled, so the simulation runs equally well on
// wall-clock time (--driver sim) and on a virtual clock (tests).
package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aretw0/pidtune/pkg/clock"
	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/aretw0/pidtune/pkg/ports"
)

const (
	// DefaultBufferLength is the recorder depth of the simulated controller.
	DefaultBufferLength = 1024
	// DefaultBaseCycle is the simulated servo cycle.
	DefaultBaseCycle = 100 * time.Microsecond
	// MaxGain is the largest gain value the simulated controller accepts.
	MaxGain = 1e6

	// settleHorizon is how long after the recorder window the simulation keeps looking for on-target.
	settleHorizon = 10 * time.Second
	// settleDwell is how long the axis must stay inside the tolerance to be on target.
	settleDwell = 50 * time.Millisecond
	// minTolerance is the smallest on-target window, in meters.
	minTolerance = 10e-9
)

// DefaultGains is a stable tuning of the simulated plant.
var DefaultGains = domain.Gains{P: 400, I: 2000, D: 40}

// DefaultProfile is the closed-loop motion profile the simulated controller starts with.
var DefaultProfile = domain.MotionProfile{Velocity: 2e-3, Acceleration: 3e-3}

// Controller is a simulated motion controller. Safe for concurrent use.
type Controller struct {
	mu      sync.Mutex
	clock   clock.Clock
	limits  domain.RecorderLimits
	plant   plant
	gains   domain.Gains
	profile domain.MotionProfile

	exposeProfile bool
	tolerance     float64

	onTargetAfter time.Duration
	neverOnTarget bool
	faultAfter    int
	failures      map[string]error

	axes    map[string]*axisState
	slots   map[int]domain.RecordSource
	divisor int
	last    *trial
	closed  bool
	calls   map[string]int
}

type axisState struct {
	params   map[domain.ParamID]float64
	profile  domain.MotionProfile
	decel    float64
	position float64 // m
}

// trial is the outcome of the simulation of one move.
type trial struct {
	axis     domain.Axis
	state    *axisState
	mv       move
	divisor  int
	settle   int // first on-target step, -1 if never
	fault    int // first faulted step, -1 if never
	final    float64
	recorded domain.SampleTrace
	polls    int
}

// Option configures the simulated controller.
type Option func(*Controller)

// WithClock sets the clock used to time moves.
func WithClock(c clock.Clock) Option {
	return func(s *Controller) {
		s.clock = c
	}
}

// WithRecorder sets the recorder buffer length and servo cycle.
func WithRecorder(limits domain.RecorderLimits) Option {
	return func(s *Controller) {
		if limits.Valid() {
			s.limits = limits
		}
	}
}

// WithGains sets the initial PID gains of every axis.
func WithGains(g domain.Gains) Option {
	return func(s *Controller) {
		s.gains = g
	}
}

// WithProfile sets the initial closed-loop velocity and acceleration of every axis.
func WithProfile(p domain.MotionProfile) Option {
	return func(s *Controller) {
		s.profile = p
	}
}

// WithoutProfile makes velocity and acceleration reads fail with ErrParameterUnavailable.
func WithoutProfile() Option {
	return func(s *Controller) {
		s.exposeProfile = false
	}
}

// WithOnTargetAfter makes every move report on-target d after it starts.
func WithOnTargetAfter(d time.Duration) Option {
	return func(s *Controller) {
		s.onTargetAfter = d
	}
}

// WithNeverOnTarget makes every move run until stopped.
func WithNeverOnTarget() Option {
	return func(s *Controller) {
		s.neverOnTarget = true
	}
}

// WithFaultAfterPolls makes the n-th on-target poll of every move report a controller fault.
func WithFaultAfterPolls(n int) Option {
	return func(s *Controller) {
		s.faultAfter = n
	}
}

// WithTolerance sets the on-target window in meters.
// By default it is 0.1% of the move distance, and never less than 10 nm.
func WithTolerance(m float64) Option {
	return func(s *Controller) {
		s.tolerance = m
	}
}

// New creates a simulated controller.
func New(opts ...Option) *Controller {
	s := &Controller{
		clock:         clock.Real(),
		limits:        domain.RecorderLimits{BufferLength: DefaultBufferLength, BaseCycle: DefaultBaseCycle},
		plant:         plant{damping: 5, maxAccel: 50, faultLimit: 5e-3},
		gains:         DefaultGains,
		profile:       DefaultProfile,
		exposeProfile: true,
		failures:      make(map[string]error),
		axes:          make(map[string]*axisState),
		slots:         make(map[int]domain.RecordSource),
		divisor:       1,
		calls:         make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.AxisController = (*Controller)(nil)

// Fail makes every later call of op (a method name, e.g. "IsOnTarget") return err.
// A nil err clears the failure.
func (s *Controller) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls returns how many times op has been called.
func (s *Controller) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Position returns the current actual position of axis, in meters.
func (s *Controller) Position(axis domain.Axis) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.axis(axis).position
}

// enter records a call of op and returns the error it must fail with, if any.
// Callers hold s.mu.
func (s *Controller) enter(op string) error {
	s.calls[op]++
	if s.closed {
		return fmt.Errorf("%s: connection closed: %w", op, domain.ErrCommunication)
	}
	return s.failures[op]
}

func (s *Controller) axis(a domain.Axis) *axisState {
	st, ok := s.axes[a.ID]
	if !ok {
		st = &axisState{
			params: map[domain.ParamID]float64{
				domain.ParamP: s.gains.P,
				domain.ParamI: s.gains.I,
				domain.ParamD: s.gains.D,
			},
			profile: s.profile,
			decel:   s.profile.Acceleration,
		}
		s.axes[a.ID] = st
	}
	return st
}

func (s *Controller) SetRecordingConfig(_ context.Context, _ domain.Axis, slot int, source domain.RecordSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SetRecordingConfig"); err != nil {
		return err
	}
	if slot < 1 || slot > domain.MaxRecordingSlots {
		return fmt.Errorf("recorder slot %d: %w", slot, domain.ErrRejectedValue)
	}
	if source != domain.SourceCommandedPosition && source != domain.SourceActualPosition {
		return fmt.Errorf("record source %d: %w", source, domain.ErrRejectedValue)
	}
	s.slots[slot] = source
	return nil
}

func (s *Controller) ClosedLoopVelocity(_ context.Context, axis domain.Axis) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ClosedLoopVelocity"); err != nil {
		return 0, err
	}
	if !s.exposeProfile {
		return 0, domain.ErrParameterUnavailable
	}
	return s.axis(axis).profile.Velocity, nil
}

func (s *Controller) ClosedLoopAcceleration(_ context.Context, axis domain.Axis) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ClosedLoopAcceleration"); err != nil {
		return 0, err
	}
	if !s.exposeProfile {
		return 0, domain.ErrParameterUnavailable
	}
	return s.axis(axis).profile.Acceleration, nil
}

func (s *Controller) SetClosedLoopVelocity(_ context.Context, axis domain.Axis, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SetClosedLoopVelocity"); err != nil {
		return err
	}
	if !(v > 0) {
		return fmt.Errorf("velocity %g: %w", v, domain.ErrRejectedValue)
	}
	s.axis(axis).profile.Velocity = v
	return nil
}

func (s *Controller) SetClosedLoopAcceleration(_ context.Context, axis domain.Axis, a float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SetClosedLoopAcceleration"); err != nil {
		return err
	}
	if !(a > 0) {
		return fmt.Errorf("acceleration %g: %w", a, domain.ErrRejectedValue)
	}
	s.axis(axis).profile.Acceleration = a
	return nil
}

// SetClosedLoopDeceleration stores the deceleration. The simulated set-point is symmetric
// and always decelerates at the acceleration value.
func (s *Controller) SetClosedLoopDeceleration(_ context.Context, axis domain.Axis, a float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SetClosedLoopDeceleration"); err != nil {
		return err
	}
	if !(a > 0) {
		return fmt.Errorf("deceleration %g: %w", a, domain.ErrRejectedValue)
	}
	s.axis(axis).decel = a
	return nil
}

func (s *Controller) RecorderLimits(context.Context) (domain.RecorderLimits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RecorderLimits"); err != nil {
		return domain.RecorderLimits{}, err
	}
	return s.limits, nil
}

func (s *Controller) SetRecordRate(_ context.Context, divisor int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SetRecordRate"); err != nil {
		return err
	}
	if divisor < 1 {
		return fmt.Errorf("record rate %d: %w", divisor, domain.ErrRejectedValue)
	}
	s.divisor = divisor
	return nil
}

// MoveRelativeRecorded simulates the whole move and its recording, then returns.
func (s *Controller) MoveRelativeRecorded(_ context.Context, axis domain.Axis, distance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MoveRelativeRecorded"); err != nil {
		return err
	}
	if math.IsNaN(distance) || math.IsInf(distance, 0) {
		return fmt.Errorf("distance %g: %w", distance, domain.ErrRejectedValue)
	}
	st := s.axis(axis)
	t := &trial{
		axis:  axis,
		state: st,
		mv: move{
			start:    s.clock.Now(),
			from:     st.position,
			distance: distance,
			profile:  st.profile,
			gains: domain.Gains{
				P: st.params[domain.ParamP],
				I: st.params[domain.ParamI],
				D: st.params[domain.ParamD],
			},
			cycle:    s.limits.BaseCycle,
			stopStep: -1,
		},
		divisor: s.divisor,
	}
	s.simulate(t)
	s.last = t
	return nil
}

// simulate runs t.mv over the recorder window plus the settle horizon and fills in the
// recorded trace, the first on-target and faulted steps, and the final position.
func (s *Controller) simulate(t *trial) {
	window := s.limits.BufferLength * t.divisor
	steps := window + int(settleHorizon/s.limits.BaseCycle)
	tol := s.tolerance
	if tol <= 0 {
		tol = math.Max(minTolerance, 1e-3*math.Abs(t.mv.distance))
	}
	target := t.mv.from + t.mv.distance
	reachStep := int(math.Ceil(setpointDuration(t.mv.distance, t.mv.profile).Seconds() / t.mv.cycle.Seconds()))

	dwell := max(1, int(settleDwell/t.mv.cycle))

	t.settle, t.fault = -1, -1
	t.recorded = make(domain.SampleTrace, 0, s.limits.BufferLength)
	inside := 0
	pl := s.plant
	pl.run(t.mv, steps, func(step int, r stepResult) bool {
		if step < window && step%t.divisor == 0 {
			t.recorded = append(t.recorded, s.record(t.axis, r))
		}
		t.final = r.actual
		if r.faulted {
			if t.fault < 0 {
				t.fault = step
			}
		} else if t.settle < 0 && t.mv.stopStep < 0 && step >= reachStep {
			if math.Abs(r.actual-target) < tol {
				inside++
			} else {
				inside = 0
			}
			if inside >= dwell {
				t.settle = step
			}
		}
		// Past the window only the settle search needs more steps.
		return step < window || (t.settle < 0 && t.fault < 0)
	})
	t.state.position = t.final
}

// record maps one servo cycle onto the configured recorder slots, in native units.
func (s *Controller) record(axis domain.Axis, r stepResult) domain.SamplePair {
	var p domain.SamplePair
	for _, src := range s.slots {
		switch src {
		case domain.SourceCommandedPosition:
			p.Commanded = axis.ToNative(r.commanded)
		case domain.SourceActualPosition:
			p.Actual = axis.ToNative(r.actual)
		}
	}
	return p
}

func (s *Controller) step(t *trial) int {
	elapsed := s.clock.Now().Sub(t.mv.start)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / t.mv.cycle)
}

func (s *Controller) IsOnTarget(_ context.Context, axis domain.Axis) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("IsOnTarget"); err != nil {
		return false, err
	}
	t := s.last
	if t == nil || t.axis.ID != axis.ID {
		return true, nil
	}
	t.polls++
	step := s.step(t)

	if s.faultAfter > 0 && t.polls >= s.faultAfter {
		if t.fault < 0 {
			t.fault = step
			s.halt(t, step)
		}
		return false, fmt.Errorf("servo loop tripped at %s: %w", time.Duration(step)*t.mv.cycle, domain.ErrControllerFault)
	}
	if t.fault >= 0 && step >= t.fault {
		return false, fmt.Errorf("following error limit exceeded: %w", domain.ErrControllerFault)
	}

	switch {
	case s.neverOnTarget:
		return false, nil
	case s.onTargetAfter > 0:
		return s.clock.Now().Sub(t.mv.start) >= s.onTargetAfter, nil
	default:
		return t.settle >= 0 && step >= t.settle, nil
	}
}

// Stop freezes the set-point of the current move where it is now.
func (s *Controller) Stop(_ context.Context, axis domain.Axis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Stop"); err != nil {
		return err
	}
	t := s.last
	if t == nil || t.axis.ID != axis.ID || t.mv.stopStep >= 0 {
		return nil
	}
	s.halt(t, s.step(t))
	return nil
}

// halt re-simulates t with the set-point frozen from step on.
func (s *Controller) halt(t *trial, step int) {
	fault := t.fault
	t.mv.stopStep = step
	s.simulate(t)
	if fault >= 0 && (t.fault < 0 || fault < t.fault) {
		t.fault = fault
	}
}

func (s *Controller) RecordedData(context.Context) (domain.SampleTrace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RecordedData"); err != nil {
		return nil, err
	}
	if s.last == nil {
		return domain.SampleTrace{}, nil
	}
	out := make(domain.SampleTrace, len(s.last.recorded))
	copy(out, s.last.recorded)
	return out, nil
}

func (s *Controller) Parameter(_ context.Context, axis domain.Axis, id domain.ParamID) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Parameter"); err != nil {
		return 0, err
	}
	v, ok := s.axis(axis).params[id]
	if !ok {
		return 0, fmt.Errorf("parameter %s: %w", id, domain.ErrParameterUnavailable)
	}
	return v, nil
}

// SetParameter writes a parameter. Gains must lie within [0, MaxGain].
func (s *Controller) SetParameter(_ context.Context, axis domain.Axis, id domain.ParamID, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SetParameter"); err != nil {
		return err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("parameter %s = %g: %w", id, value, domain.ErrRejectedValue)
	}
	if id.IsGain() && (value < 0 || value > MaxGain) {
		return fmt.Errorf("parameter %s = %g out of range [0, %g]: %w", id, value, MaxGain, domain.ErrRejectedValue)
	}
	s.axis(axis).params[id] = value
	return nil
}

// Close marks the connection closed. Every later call fails with ErrCommunication.
func (s *Controller) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
