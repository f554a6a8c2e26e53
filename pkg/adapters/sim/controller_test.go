package sim

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/pidtune/pkg/clock"
	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/aretw0/pidtune/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAxis = domain.Axis{ID: "1", Name: "x", UnitFactor: 1e-6}

func newTestController(t *testing.T, opts ...Option) (*Controller, *clock.Virtual) {
	t.Helper()
	vc := clock.NewVirtual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	opts = append([]Option{
		WithClock(vc),
		WithRecorder(domain.RecorderLimits{BufferLength: 1000, BaseCycle: 100 * time.Microsecond}),
	}, opts...)
	ctrl := New(opts...)
	ctx := context.Background()
	require.NoError(t, ctrl.SetRecordingConfig(ctx, testAxis, 1, domain.SourceCommandedPosition))
	require.NoError(t, ctrl.SetRecordingConfig(ctx, testAxis, 2, domain.SourceActualPosition))
	return ctrl, vc
}

func TestController_Contract(t *testing.T) {
	ports.RunAxisControllerContract(t, testAxis, func(t *testing.T) ports.AxisController {
		return New()
	})
}

func TestController_SettlesOnTarget(t *testing.T) {
	ctx := context.Background()
	ctrl, vc := newTestController(t)
	require.NoError(t, ctrl.SetRecordRate(ctx, 20))

	require.NoError(t, ctrl.MoveRelativeRecorded(ctx, testAxis, 100e-6))

	on, err := ctrl.IsOnTarget(ctx, testAxis)
	require.NoError(t, err)
	assert.False(t, on, "cannot be on target when the move just started")

	var settled time.Duration
	for elapsed := time.Duration(0); elapsed < 10*time.Second; elapsed += 20 * time.Millisecond {
		vc.Advance(20 * time.Millisecond)
		on, err = ctrl.IsOnTarget(ctx, testAxis)
		require.NoError(t, err)
		if on {
			settled = elapsed
			break
		}
	}
	require.True(t, on, "axis never settled")
	// The set-point alone needs 2*sqrt(d/a) = 365ms.
	assert.Greater(t, settled, 300*time.Millisecond)
	assert.InDelta(t, 100e-6, ctrl.Position(testAxis), 1e-7)
}

func TestController_RecordedTrace(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)
	require.NoError(t, ctrl.SetRecordRate(ctx, 20))
	require.NoError(t, ctrl.MoveRelativeRecorded(ctx, testAxis, 100e-6))

	data, err := ctrl.RecordedData(ctx)
	require.NoError(t, err)
	require.Len(t, data, 1000)

	// Native units: micrometers.
	assert.InDelta(t, 0, data[0].Commanded, 1e-9)
	assert.InDelta(t, 100, data[len(data)-1].Commanded, 1e-6)
	assert.InDelta(t, 100, data[len(data)-1].Actual, 0.5)

	for i := 1; i < len(data); i++ {
		assert.GreaterOrEqual(t, data[i].Commanded, data[i-1].Commanded-1e-9, "set-point of a positive move never goes back (sample %d)", i)
	}
}

func TestController_ConsecutiveMovesAccumulate(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)
	require.NoError(t, ctrl.SetRecordRate(ctx, 20))

	require.NoError(t, ctrl.MoveRelativeRecorded(ctx, testAxis, 100e-6))
	require.NoError(t, ctrl.MoveRelativeRecorded(ctx, testAxis, -40e-6))

	data, err := ctrl.RecordedData(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100, data[0].Commanded, 0.5)
	assert.InDelta(t, 60, data[len(data)-1].Commanded, 0.5)
	assert.InDelta(t, 60e-6, ctrl.Position(testAxis), 1e-7)
}

func TestController_StopFreezesSetpoint(t *testing.T) {
	ctx := context.Background()
	ctrl, vc := newTestController(t, WithNeverOnTarget())
	require.NoError(t, ctrl.SetRecordRate(ctx, 20))
	require.NoError(t, ctrl.MoveRelativeRecorded(ctx, testAxis, 1e-3))

	vc.Advance(100 * time.Millisecond)
	on, err := ctrl.IsOnTarget(ctx, testAxis)
	require.NoError(t, err)
	assert.False(t, on)
	require.NoError(t, ctrl.Stop(ctx, testAxis))
	require.NoError(t, ctrl.Stop(ctx, testAxis), "a second stop is harmless")

	data, err := ctrl.RecordedData(ctx)
	require.NoError(t, err)
	require.Len(t, data, 1000)

	// After 100ms at 3mm/s² the set-point is at 0.5*a*t² = 15µm and stays there.
	last := data[len(data)-1].Commanded
	assert.InDelta(t, 15, last, 0.1)
	assert.Equal(t, last, data[len(data)/2].Commanded)
	assert.Equal(t, 2, ctrl.Calls("Stop"))
}

func TestController_ForcedOnTarget(t *testing.T) {
	ctx := context.Background()
	ctrl, vc := newTestController(t, WithOnTargetAfter(500*time.Millisecond))
	require.NoError(t, ctrl.MoveRelativeRecorded(ctx, testAxis, 1e-3))

	vc.Advance(499 * time.Millisecond)
	on, err := ctrl.IsOnTarget(ctx, testAxis)
	require.NoError(t, err)
	assert.False(t, on)

	vc.Advance(time.Millisecond)
	on, err = ctrl.IsOnTarget(ctx, testAxis)
	require.NoError(t, err)
	assert.True(t, on)
}

func TestController_FaultAfterPolls(t *testing.T) {
	ctx := context.Background()
	ctrl, vc := newTestController(t, WithFaultAfterPolls(3))
	require.NoError(t, ctrl.MoveRelativeRecorded(ctx, testAxis, 1e-3))

	for i := 0; i < 2; i++ {
		vc.Advance(20 * time.Millisecond)
		_, err := ctrl.IsOnTarget(ctx, testAxis)
		require.NoError(t, err)
	}
	vc.Advance(20 * time.Millisecond)
	_, err := ctrl.IsOnTarget(ctx, testAxis)
	assert.ErrorIs(t, err, domain.ErrControllerFault)
	assert.False(t, domain.IsFatal(err))

	data, err := ctrl.RecordedData(ctx)
	require.NoError(t, err)
	assert.Len(t, data, 1000, "the recorder keeps running after a fault")
}

func TestController_UnstableGainsFault(t *testing.T) {
	ctx := context.Background()
	ctrl, vc := newTestController(t)
	require.NoError(t, ctrl.SetParameter(ctx, testAxis, domain.ParamD, 0))
	require.NoError(t, ctrl.SetParameter(ctx, testAxis, domain.ParamI, MaxGain))
	require.NoError(t, ctrl.SetRecordRate(ctx, 10))
	require.NoError(t, ctrl.MoveRelativeRecorded(ctx, testAxis, 1e-3))

	var err error
	for i := 0; i < 100 && err == nil; i++ {
		vc.Advance(20 * time.Millisecond)
		_, err = ctrl.IsOnTarget(ctx, testAxis)
	}
	assert.ErrorIs(t, err, domain.ErrControllerFault)
}

func TestController_GainValidation(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)

	gains, err := ports.ReadGains(ctx, ctrl, testAxis)
	require.NoError(t, err)
	assert.Equal(t, DefaultGains, gains)

	require.NoError(t, ctrl.SetParameter(ctx, testAxis, domain.ParamP, 30))
	assert.ErrorIs(t, ctrl.SetParameter(ctx, testAxis, domain.ParamP, -1), domain.ErrRejectedValue)
	assert.ErrorIs(t, ctrl.SetParameter(ctx, testAxis, domain.ParamP, 2*MaxGain), domain.ErrRejectedValue)

	p, err := ctrl.Parameter(ctx, testAxis, domain.ParamP)
	require.NoError(t, err)
	assert.Equal(t, 30.0, p)

	_, err = ctrl.Parameter(ctx, testAxis, domain.ParamID(0x413))
	assert.ErrorIs(t, err, domain.ErrParameterUnavailable)
}

func TestController_WithoutProfile(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t, WithoutProfile())

	_, err := ctrl.ClosedLoopVelocity(ctx, testAxis)
	assert.ErrorIs(t, err, domain.ErrParameterUnavailable)
	_, err = ctrl.ClosedLoopAcceleration(ctx, testAxis)
	assert.ErrorIs(t, err, domain.ErrParameterUnavailable)
	assert.NoError(t, ctrl.SetClosedLoopVelocity(ctx, testAxis, 1e-3))
}

func TestController_InjectedFailure(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)

	ctrl.Fail("RecordedData", domain.ErrCommunication)
	_, err := ctrl.RecordedData(ctx)
	assert.ErrorIs(t, err, domain.ErrCommunication)

	ctrl.Fail("RecordedData", nil)
	_, err = ctrl.RecordedData(ctx)
	assert.NoError(t, err)
}
