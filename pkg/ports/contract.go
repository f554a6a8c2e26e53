package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/aretw0/pidtune/pkg/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunAxisControllerContract runs a suite of tests to verify that an AxisController
// implementation adheres to the defined interface contract.
// newController is called once per subtest and must return a freshly opened controller
// whose axis accepts PID gains in [0, 1e6].
func RunAxisControllerContract(t *testing.T, axis domain.Axis, newController func(t *testing.T) AxisController) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t.Run("Recording Config Is Idempotent", func(t *testing.T) {
		ctrl := newController(t)
		defer ctrl.Close()

		for i := 0; i < 2; i++ {
			require.NoError(t, ctrl.SetRecordingConfig(ctx, axis, 1, domain.SourceCommandedPosition))
			require.NoError(t, ctrl.SetRecordingConfig(ctx, axis, 2, domain.SourceActualPosition))
		}
	})

	t.Run("Gains Round Trip", func(t *testing.T) {
		ctrl := newController(t)
		defer ctrl.Close()

		require.NoError(t, ctrl.SetParameter(ctx, axis, domain.ParamP, 123.5))
		gains, err := ReadGains(ctx, ctrl, axis)
		require.NoError(t, err)
		assert.InDelta(t, 123.5, gains.P, 1e-9)
	})

	t.Run("Rejected Gain", func(t *testing.T) {
		ctrl := newController(t)
		defer ctrl.Close()

		before, err := ctrl.Parameter(ctx, axis, domain.ParamI)
		require.NoError(t, err)

		err = ctrl.SetParameter(ctx, axis, domain.ParamI, -1)
		assert.ErrorIs(t, err, domain.ErrRejectedValue)
		assert.False(t, domain.IsFatal(err), "a rejected value must not end the session")

		after, err := ctrl.Parameter(ctx, axis, domain.ParamI)
		require.NoError(t, err)
		assert.Equal(t, before, after, "a rejected write must leave the slot untouched")
	})

	t.Run("Profile Pinning", func(t *testing.T) {
		ctrl := newController(t)
		defer ctrl.Close()

		require.NoError(t, ctrl.SetClosedLoopVelocity(ctx, axis, 1.5e-3))
		require.NoError(t, ctrl.SetClosedLoopAcceleration(ctx, axis, 2.5e-3))
		require.NoError(t, ctrl.SetClosedLoopDeceleration(ctx, axis, 2.5e-3))

		v, err := ctrl.ClosedLoopVelocity(ctx, axis)
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrParameterUnavailable)
			return
		}
		assert.InDelta(t, 1.5e-3, v, 1e-12)
		a, err := ctrl.ClosedLoopAcceleration(ctx, axis)
		require.NoError(t, err)
		assert.InDelta(t, 2.5e-3, a, 1e-12)
	})

	t.Run("Recorded Move", func(t *testing.T) {
		ctrl := newController(t)
		defer ctrl.Close()

		require.NoError(t, ctrl.SetRecordingConfig(ctx, axis, 1, domain.SourceCommandedPosition))
		require.NoError(t, ctrl.SetRecordingConfig(ctx, axis, 2, domain.SourceActualPosition))
		limits, err := ctrl.RecorderLimits(ctx)
		require.NoError(t, err)
		require.True(t, limits.Valid(), "limits %+v", limits)
		require.NoError(t, ctrl.SetRecordRate(ctx, 1))

		require.NoError(t, ctrl.MoveRelativeRecorded(ctx, axis, 10e-6))
		_, err = ctrl.IsOnTarget(ctx, axis)
		require.NoError(t, err)
		require.NoError(t, ctrl.Stop(ctx, axis))

		data, err := ctrl.RecordedData(ctx)
		require.NoError(t, err)
		assert.Len(t, data, limits.BufferLength)
	})

	t.Run("Closed Connection", func(t *testing.T) {
		ctrl := newController(t)
		require.NoError(t, ctrl.Close())

		_, err := ctrl.IsOnTarget(ctx, axis)
		assert.ErrorIs(t, err, domain.ErrCommunication)
		assert.True(t, domain.IsFatal(err))
	})
}

// RunJournalContract runs a suite of tests to verify that a Journal implementation
// adheres to the defined interface contract. The journal must start empty.
func RunJournalContract(t *testing.T, journal Journal) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	entry := func(n int) JournalEntry {
		return JournalEntry{
			Trial:     n,
			StartedAt: base.Add(time.Duration(n) * time.Minute),
			Axis:      "1",
			Gains:     domain.Gains{P: float64(100 * n), I: 2, D: 3},
			Distance:  1e-3,
			Outcome:   domain.OutcomeOnTarget,
			Divisor:   65,
			Estimated: 1155 * time.Millisecond,
			Recording: 3328 * time.Millisecond,
			Stats:     trace.Stats{Count: 1024, MaxAbsError: 2e-6, RMSError: 1e-6, FinalError: -1e-8},
		}
	}

	t.Run("Empty", func(t *testing.T) {
		entries, err := journal.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("Append and List", func(t *testing.T) {
		// Appended out of order: List sorts by start time.
		require.NoError(t, journal.Append(ctx, entry(2)))
		require.NoError(t, journal.Append(ctx, entry(1)))

		entries, err := journal.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, 1, entries[0].Trial)
		assert.Equal(t, 2, entries[1].Trial)

		want := entry(1)
		got := entries[0]
		assert.True(t, want.StartedAt.Equal(got.StartedAt), "started_at %s != %s", got.StartedAt, want.StartedAt)
		assert.Equal(t, want.Gains, got.Gains)
		assert.Equal(t, want.Outcome, got.Outcome)
		assert.Equal(t, want.Divisor, got.Divisor)
		assert.Equal(t, want.Recording, got.Recording)
		assert.Equal(t, want.Stats, got.Stats)
	})

	t.Run("Fault Preserved", func(t *testing.T) {
		e := entry(3)
		e.Outcome = domain.OutcomeControllerError
		e.Fault = fmt.Sprintf("IsOnTarget (axis 1): %v", domain.ErrControllerFault)
		require.NoError(t, journal.Append(ctx, e))

		entries, err := journal.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, domain.OutcomeControllerError, entries[2].Outcome)
		assert.Equal(t, e.Fault, entries[2].Fault)
	})
}
