package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/pidtune/internal/logging"
	"github.com/aretw0/pidtune/pkg/adapters/sim"
	"github.com/aretw0/pidtune/pkg/clock"
	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAxis = domain.Axis{ID: "1", Name: "x", UnitFactor: 1e-6}

// scenarioLimits is a 1024-sample recorder on a 50µs servo cycle.
var scenarioLimits = domain.RecorderLimits{BufferLength: 1024, BaseCycle: 50 * time.Microsecond}

func newTestManager(t *testing.T, simOpts []sim.Option, opts ...Option) (*Manager, *sim.Controller, *clock.Virtual) {
	t.Helper()
	vc := clock.NewVirtual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctrl := sim.New(append([]sim.Option{sim.WithClock(vc), sim.WithRecorder(scenarioLimits)}, simOpts...)...)
	t.Cleanup(func() { _ = ctrl.Close() })
	m := NewManager(ctrl, testAxis, append([]Option{WithClock(vc)}, opts...)...)
	return m, ctrl, vc
}

func TestManager_OnTarget(t *testing.T) {
	m, ctrl, _ := newTestManager(t, []sim.Option{sim.WithOnTargetAfter(1200 * time.Millisecond)})

	res, err := m.Run(context.Background(), 1e-3)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeOnTarget, res.Outcome)
	assert.NoError(t, res.Fault)
	assert.Len(t, res.Trace, scenarioLimits.BufferLength)
	assert.Equal(t, 65, res.Divisor)
	assert.Equal(t, 3328*time.Millisecond, res.Recording)
	assert.Equal(t, res.Recording, res.Elapsed, "the trace is read once the recorder window is over")
	assert.GreaterOrEqual(t, res.Recording, 2*res.Estimated+DefaultMargin)
	assert.Equal(t, 2*res.Recording+DefaultMargin, res.Timeout)
	assert.Equal(t, 0, ctrl.Calls("Stop"))
	assert.Equal(t, domain.StateIdle, m.State())
}

func TestManager_Timeout(t *testing.T) {
	m, ctrl, _ := newTestManager(t, []sim.Option{sim.WithNeverOnTarget()})
	ctx := context.Background()

	res, err := m.Run(ctx, 1e-3)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTimeout, res.Outcome)
	assert.Equal(t, 1, ctrl.Calls("Stop"), "stop is requested exactly once")
	assert.GreaterOrEqual(t, res.Elapsed, res.Timeout)
	assert.Len(t, res.Trace, scenarioLimits.BufferLength, "the recorder is drained after a timeout")

	// The manager is ready for the next trial.
	assert.Equal(t, domain.StateIdle, m.State())
	res, err = m.Run(ctx, 1e-3)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTimeout, res.Outcome)
	assert.Equal(t, 2, ctrl.Calls("Stop"))
}

func TestManager_ControllerFault(t *testing.T) {
	m, ctrl, _ := newTestManager(t, []sim.Option{sim.WithFaultAfterPolls(3)})

	res, err := m.Run(context.Background(), 1e-3)
	require.NoError(t, err, "a controller fault ends the trial, not the session")

	assert.Equal(t, domain.OutcomeControllerError, res.Outcome)
	assert.ErrorIs(t, res.Fault, domain.ErrControllerFault)
	assert.Equal(t, 3, ctrl.Calls("IsOnTarget"), "no retry after a fault")
	assert.Equal(t, 0, ctrl.Calls("Stop"))
	assert.Len(t, res.Trace, scenarioLimits.BufferLength)
}

func TestManager_ProfileFallback(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, slog.LevelDebug)
	m, ctrl, _ := newTestManager(t, []sim.Option{sim.WithoutProfile()}, WithLogger(logger))

	require.NoError(t, m.Prepare(context.Background()))
	assert.Equal(t, domain.DefaultMotionProfile(), m.Profile())
	assert.Equal(t, scenarioLimits, m.Limits())
	assert.Equal(t, 1, ctrl.Calls("SetClosedLoopVelocity"))
	assert.Equal(t, 1, ctrl.Calls("SetClosedLoopAcceleration"))
	assert.Equal(t, 1, ctrl.Calls("SetClosedLoopDeceleration"))
	assert.Equal(t, 2, ctrl.Calls("SetRecordingConfig"))
	assert.Contains(t, buf.String(), "using default")
	assert.Contains(t, buf.String(), "axis=")
}

func TestManager_CustomFallbackProfile(t *testing.T) {
	fallback := domain.MotionProfile{Velocity: 5e-3, Acceleration: 1e-2}
	m, _, _ := newTestManager(t, []sim.Option{sim.WithoutProfile()}, WithDefaultProfile(fallback))

	require.NoError(t, m.Prepare(context.Background()))
	assert.Equal(t, fallback, m.Profile())
}

func TestManager_ProfileFromController(t *testing.T) {
	m, _, _ := newTestManager(t, nil)

	require.NoError(t, m.Prepare(context.Background()))
	assert.Equal(t, sim.DefaultProfile, m.Profile())
}

func TestManager_CommunicationErrorIsFatal(t *testing.T) {
	t.Run("During Prepare", func(t *testing.T) {
		m, ctrl, _ := newTestManager(t, nil)
		ctrl.Fail("ClosedLoopVelocity", fmt.Errorf("link down: %w", domain.ErrCommunication))

		err := m.Prepare(context.Background())
		require.Error(t, err)
		assert.True(t, domain.IsFatal(err))
	})

	t.Run("While Moving", func(t *testing.T) {
		m, ctrl, _ := newTestManager(t, nil)
		ctrl.Fail("IsOnTarget", fmt.Errorf("link down: %w", domain.ErrCommunication))

		res, err := m.Run(context.Background(), 1e-3)
		require.Error(t, err)
		assert.Nil(t, res)
		assert.True(t, domain.IsFatal(err))

		var opErr *domain.OpError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, "IsOnTarget", opErr.Op)
		assert.Equal(t, domain.StateIdle, m.State())
	})
}

func TestManager_InvalidRecordingConfig(t *testing.T) {
	m, _, _ := newTestManager(t, nil, WithRecordingConfig(domain.RecordingConfig{
		Slots: []domain.RecordingSlot{{Slot: 1, Source: domain.SourceActualPosition}},
	}))

	assert.Error(t, m.Prepare(context.Background()))
}

func TestManager_Hooks(t *testing.T) {
	var states []domain.TrialState
	var trials []*domain.TrialEvent
	hooks := domain.TrialHooks{
		OnStateChange: func(_ context.Context, e *domain.StateEvent) {
			states = append(states, e.To)
		},
		OnTrialComplete: func(_ context.Context, e *domain.TrialEvent) {
			trials = append(trials, e)
		},
	}
	m, _, _ := newTestManager(t, []sim.Option{sim.WithOnTargetAfter(time.Second)}, WithHooks(hooks))

	_, err := m.Run(context.Background(), -2e-4)
	require.NoError(t, err)

	assert.Equal(t, []domain.TrialState{
		domain.StateArmed,
		domain.StateMoving,
		domain.StateDraining,
		domain.StateComplete,
		domain.StateIdle,
	}, states)
	require.Len(t, trials, 1)
	assert.Equal(t, domain.OutcomeOnTarget, trials[0].Outcome)
	assert.Equal(t, -2e-4, trials[0].Distance)
	assert.Equal(t, "1", trials[0].Axis)
}

func TestManager_CancelWhileMoving(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hooks := domain.TrialHooks{
		OnStateChange: func(_ context.Context, e *domain.StateEvent) {
			if e.To == domain.StateMoving {
				cancel()
			}
		},
	}
	m, ctrl, _ := newTestManager(t, []sim.Option{sim.WithNeverOnTarget()}, WithHooks(hooks))

	_, err := m.Run(ctx, 1e-3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ctrl.Calls("Stop"), "the axis is stopped on cancellation")
	assert.Equal(t, domain.StateIdle, m.State())
}

func TestManager_Process(t *testing.T) {
	m, _, _ := newTestManager(t, []sim.Option{sim.WithOnTargetAfter(time.Second)})

	res, err := m.Run(context.Background(), 100e-6)
	require.NoError(t, err)

	report := m.Process(res)
	assert.Equal(t, scenarioLimits.BufferLength, report.Len)
	assert.Equal(t, time.Duration(res.Divisor)*scenarioLimits.BaseCycle, report.Period)

	var last float64
	for s := range report.Samples() {
		last = s.Commanded
	}
	assert.InDelta(t, 100e-6, last, 1e-9)
}
