package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/pidtune/pkg/adapters/sim"
	"github.com/aretw0/pidtune/pkg/clock"
	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/aretw0/pidtune/pkg/ports"
	"github.com/aretw0/pidtune/pkg/session"
	"github.com/aretw0/pidtune/pkg/sinks"
	"github.com/aretw0/pidtune/pkg/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testAxis = domain.Axis{ID: "1", Name: "x", UnitFactor: 1e-6}

// mockController is a testify mock of ports.AxisController.
type mockController struct {
	mock.Mock
}

func (m *mockController) SetRecordingConfig(ctx context.Context, axis domain.Axis, slot int, source domain.RecordSource) error {
	return m.Called(ctx, axis, slot, source).Error(0)
}

func (m *mockController) ClosedLoopVelocity(ctx context.Context, axis domain.Axis) (float64, error) {
	args := m.Called(ctx, axis)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockController) ClosedLoopAcceleration(ctx context.Context, axis domain.Axis) (float64, error) {
	args := m.Called(ctx, axis)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockController) SetClosedLoopVelocity(ctx context.Context, axis domain.Axis, v float64) error {
	return m.Called(ctx, axis, v).Error(0)
}

func (m *mockController) SetClosedLoopAcceleration(ctx context.Context, axis domain.Axis, a float64) error {
	return m.Called(ctx, axis, a).Error(0)
}

func (m *mockController) SetClosedLoopDeceleration(ctx context.Context, axis domain.Axis, a float64) error {
	return m.Called(ctx, axis, a).Error(0)
}

func (m *mockController) RecorderLimits(ctx context.Context) (domain.RecorderLimits, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.RecorderLimits), args.Error(1)
}

func (m *mockController) SetRecordRate(ctx context.Context, divisor int) error {
	return m.Called(ctx, divisor).Error(0)
}

func (m *mockController) MoveRelativeRecorded(ctx context.Context, axis domain.Axis, distance float64) error {
	return m.Called(ctx, axis, distance).Error(0)
}

func (m *mockController) IsOnTarget(ctx context.Context, axis domain.Axis) (bool, error) {
	args := m.Called(ctx, axis)
	return args.Bool(0), args.Error(1)
}

func (m *mockController) Stop(ctx context.Context, axis domain.Axis) error {
	return m.Called(ctx, axis).Error(0)
}

func (m *mockController) RecordedData(ctx context.Context) (domain.SampleTrace, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.SampleTrace), args.Error(1)
}

func (m *mockController) Parameter(ctx context.Context, axis domain.Axis, id domain.ParamID) (float64, error) {
	args := m.Called(ctx, axis, id)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockController) SetParameter(ctx context.Context, axis domain.Axis, id domain.ParamID, value float64) error {
	return m.Called(ctx, axis, id, value).Error(0)
}

func (m *mockController) Close() error {
	return m.Called().Error(0)
}

// expectPrepare registers the calls session preparation makes.
func expectPrepare(m *mockController) {
	m.On("ClosedLoopVelocity", mock.Anything, testAxis).Return(2e-3, nil)
	m.On("ClosedLoopAcceleration", mock.Anything, testAxis).Return(3e-3, nil)
	m.On("SetClosedLoopVelocity", mock.Anything, testAxis, 2e-3).Return(nil)
	m.On("SetClosedLoopAcceleration", mock.Anything, testAxis, 3e-3).Return(nil)
	m.On("SetClosedLoopDeceleration", mock.Anything, testAxis, 3e-3).Return(nil)
	m.On("SetRecordingConfig", mock.Anything, testAxis, mock.Anything, mock.Anything).Return(nil)
	m.On("RecorderLimits", mock.Anything).Return(domain.RecorderLimits{BufferLength: 1024, BaseCycle: 50 * time.Microsecond}, nil)
	m.On("Parameter", mock.Anything, testAxis, domain.ParamI).Return(40.0, nil)
	m.On("Parameter", mock.Anything, testAxis, domain.ParamD).Return(4.0, nil)
}

func newMockRunner(ctrl *mockController, input string, opts ...Option) (*Runner, *bytes.Buffer) {
	out := &bytes.Buffer{}
	opts = append([]Option{WithHandler(NewTextHandler(strings.NewReader(input), out))}, opts...)
	return New(ctrl, session.NewManager(ctrl, testAxis), opts...), out
}

func TestRunner_GainAccepted(t *testing.T) {
	ctrl := &mockController{}
	expectPrepare(ctrl)
	ctrl.On("Parameter", mock.Anything, testAxis, domain.ParamP).Return(400.0, nil).Once()
	ctrl.On("Parameter", mock.Anything, testAxis, domain.ParamP).Return(30.0, nil)
	ctrl.On("SetParameter", mock.Anything, testAxis, domain.ParamP, 30.0).Return(nil).Once()

	var events []*domain.GainEvent
	r, out := newMockRunner(ctrl, "P\n30\nq\n", WithHooks(domain.TrialHooks{
		OnGainWrite: func(_ context.Context, e *domain.GainEvent) { events = append(events, e) },
	}))

	require.NoError(t, r.Run(context.Background()))

	ctrl.AssertExpectations(t)
	lines := strings.Split(out.String(), "\n")
	assert.Contains(t, lines[0], "P=400 I=40 D=4")
	assert.Contains(t, out.String(), "P=30 I=40 D=4", "the accepted value is read back from the controller")
	require.Len(t, events, 1)
	assert.Equal(t, domain.ParamP, events[0].Param)
	assert.False(t, events[0].Rejected)
}

func TestRunner_GainRejected(t *testing.T) {
	ctrl := &mockController{}
	expectPrepare(ctrl)
	ctrl.On("Parameter", mock.Anything, testAxis, domain.ParamP).Return(400.0, nil)
	ctrl.On("SetParameter", mock.Anything, testAxis, domain.ParamP, 30.0).
		Return(fmt.Errorf("out of range: %w", domain.ErrRejectedValue)).Once()

	var events []*domain.GainEvent
	r, out := newMockRunner(ctrl, "p\n30\nq\n", WithHooks(domain.TrialHooks{
		OnGainWrite: func(_ context.Context, e *domain.GainEvent) { events = append(events, e) },
	}))

	require.NoError(t, r.Run(context.Background()), "a rejected value does not end the session")

	ctrl.AssertExpectations(t)
	assert.NotContains(t, out.String(), "P=30 ")
	assert.Equal(t, 2, strings.Count(out.String(), "P=400 I=40 D=4"))
	assert.Contains(t, out.String(), "! Cannot set P to 30")
	assert.Contains(t, out.String(), "SetParameter (axis 1)")
	require.Len(t, events, 1)
	assert.True(t, events[0].Rejected)
}

func TestRunner_InvalidGainValue(t *testing.T) {
	ctrl := &mockController{}
	expectPrepare(ctrl)
	ctrl.On("Parameter", mock.Anything, testAxis, domain.ParamP).Return(400.0, nil)

	r, out := newMockRunner(ctrl, "D\nthirty\nQ\n")
	require.NoError(t, r.Run(context.Background()))

	ctrl.AssertNotCalled(t, "SetParameter", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Contains(t, out.String(), "Invalid value")
}

func TestRunner_CommandNotUnderstood(t *testing.T) {
	ctrl := &mockController{}
	expectPrepare(ctrl)
	ctrl.On("Parameter", mock.Anything, testAxis, domain.ParamP).Return(400.0, nil)

	r, out := newMockRunner(ctrl, "x\nrun\nQ\n")
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 2, strings.Count(out.String(), "Command not understood"))
	ctrl.AssertNotCalled(t, "MoveRelativeRecorded", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunner_EndOfInput(t *testing.T) {
	ctrl := &mockController{}
	expectPrepare(ctrl)
	ctrl.On("Parameter", mock.Anything, testAxis, domain.ParamP).Return(400.0, nil)

	r, _ := newMockRunner(ctrl, "")
	assert.ErrorIs(t, r.Run(context.Background()), io.EOF)
}

func TestRunner_Help(t *testing.T) {
	ctrl := &mockController{}
	expectPrepare(ctrl)
	ctrl.On("Parameter", mock.Anything, testAxis, domain.ParamP).Return(400.0, nil)

	r, out := newMockRunner(ctrl, "?\nq\n")
	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "Quit and release the controller")
}

// simulated wires a runner to a simulated controller on a virtual clock.
func simulated(t *testing.T, input string, simOpts []sim.Option, opts ...Option) (*Runner, *sim.Controller, *bytes.Buffer) {
	t.Helper()
	vc := clock.NewVirtual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctrl := sim.New(append([]sim.Option{
		sim.WithClock(vc),
		sim.WithRecorder(domain.RecorderLimits{BufferLength: 1024, BaseCycle: 50 * time.Microsecond}),
	}, simOpts...)...)
	t.Cleanup(func() { _ = ctrl.Close() })

	out := &bytes.Buffer{}
	mgr := session.NewManager(ctrl, testAxis, session.WithClock(vc))
	opts = append([]Option{WithHandler(NewTextHandler(strings.NewReader(input), out))}, opts...)
	return New(ctrl, mgr, opts...), ctrl, out
}

func TestRunner_TrialsPublishReports(t *testing.T) {
	var reports []*ports.TrialReport
	var lengths []int
	collect := sinks.Func(func(_ context.Context, r *ports.TrialReport) error {
		reports = append(reports, r)
		lengths = append(lengths, len(trace.Collect(r.Trace.Samples())))
		return nil
	})

	r, ctrl, out := simulated(t, "\nM\n100\n\nQ\n",
		[]sim.Option{sim.WithOnTargetAfter(time.Second)},
		WithSinks(collect),
	)
	require.NoError(t, r.Run(context.Background()))

	require.Len(t, reports, 2)
	assert.Equal(t, 2, r.Session.Trials)
	assert.Equal(t, []int{1024, 1024}, lengths)
	assert.InDelta(t, 1e-3, reports[0].Distance, 1e-12)
	assert.InDelta(t, 100e-6, reports[1].Distance, 1e-12)
	assert.Equal(t, domain.OutcomeOnTarget, reports[0].Outcome)
	assert.Equal(t, sim.DefaultGains, reports[0].Gains)
	assert.Equal(t, 2, ctrl.Calls("MoveRelativeRecorded"))

	assert.Contains(t, out.String(), "distance=1000 µm")
	assert.Contains(t, out.String(), "distance=100 µm")
	assert.Contains(t, out.String(), "Trial 1: on_target")
}

func TestRunner_TimeoutKeepsLooping(t *testing.T) {
	r, ctrl, out := simulated(t, "\n\nq\n", []sim.Option{sim.WithNeverOnTarget()})

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 2, ctrl.Calls("Stop"))
	assert.Equal(t, 2, strings.Count(out.String(), ": timeout after"))
}

func TestRunner_ControllerFaultKeepsLooping(t *testing.T) {
	r, ctrl, out := simulated(t, "\nq\n", []sim.Option{sim.WithFaultAfterPolls(2)})

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 0, ctrl.Calls("Stop"))
	assert.Contains(t, out.String(), "controller_error")
	assert.Contains(t, out.String(), "! Controller fault")
}

func TestRunner_CommunicationErrorIsFatal(t *testing.T) {
	t.Run("Gain Write", func(t *testing.T) {
		r, ctrl, _ := simulated(t, "P\n30\nq\n", nil)
		ctrl.Fail("SetParameter", fmt.Errorf("broken pipe: %w", domain.ErrCommunication))

		err := r.Run(context.Background())
		require.Error(t, err)
		assert.True(t, domain.IsFatal(err))
	})

	t.Run("Trial", func(t *testing.T) {
		r, ctrl, _ := simulated(t, "\nq\n", nil)
		ctrl.Fail("IsOnTarget", fmt.Errorf("broken pipe: %w", domain.ErrCommunication))

		err := r.Run(context.Background())
		require.Error(t, err)
		assert.True(t, domain.IsFatal(err))
		assert.Equal(t, 0, r.Session.Trials)
	})
}

func TestRunner_SinkFailureIsReported(t *testing.T) {
	failing := sinks.Func(func(context.Context, *ports.TrialReport) error {
		return fmt.Errorf("disk full")
	})
	r, _, out := simulated(t, "\nq\n", []sim.Option{sim.WithOnTargetAfter(time.Second)}, WithSinks(failing))

	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "! Cannot publish trial report: disk full")
}

func TestRunner_DisplayUnit(t *testing.T) {
	var got float64
	collect := sinks.Func(func(_ context.Context, r *ports.TrialReport) error {
		got = r.Distance
		return nil
	})
	r, _, out := simulated(t, "m\n-0.25\n\nq\n", []sim.Option{sim.WithOnTargetAfter(time.Second)},
		WithDisplayUnit(Millimeter), WithInitialDistance(2e-3), WithSinks(collect))

	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "distance=2 mm")
	assert.Contains(t, out.String(), "distance=-0.25 mm")
	assert.InDelta(t, -0.25e-3, got, 1e-15)
}
