package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/pidtune/pkg/domain"
)

// AxisController is the capability set the tuning core requires from a motion-controller driver.
//
// Distances, velocities and accelerations are physical units (meters, m/s, m/s²); the driver
// converts them with the axis unit factor. Recorded traces are returned in native units.
//
// Failure kinds are reported by wrapping the domain sentinels:
// ErrParameterUnavailable, ErrRejectedValue, ErrControllerFault and ErrCommunication.
type AxisController interface {
	// SetRecordingConfig binds a recorder slot to a signal. Idempotent.
	SetRecordingConfig(ctx context.Context, axis domain.Axis, slot int, source domain.RecordSource) error

	// ClosedLoopVelocity returns the configured velocity, or ErrParameterUnavailable.
	ClosedLoopVelocity(ctx context.Context, axis domain.Axis) (float64, error)
	// ClosedLoopAcceleration returns the configured acceleration, or ErrParameterUnavailable.
	ClosedLoopAcceleration(ctx context.Context, axis domain.Axis) (float64, error)

	SetClosedLoopVelocity(ctx context.Context, axis domain.Axis, v float64) error
	SetClosedLoopAcceleration(ctx context.Context, axis domain.Axis, a float64) error
	SetClosedLoopDeceleration(ctx context.Context, axis domain.Axis, a float64) error

	// RecorderLimits returns the recorder buffer length and base cycle.
	RecorderLimits(ctx context.Context) (domain.RecorderLimits, error)
	// SetRecordRate sets the sample decimation applied to the base cycle.
	SetRecordRate(ctx context.Context, divisor int) error

	// MoveRelativeRecorded starts a relative move with recording armed and returns immediately.
	MoveRelativeRecorded(ctx context.Context, axis domain.Axis, distance float64) error
	// IsOnTarget polls without blocking. ErrControllerFault is distinct from "not yet".
	IsOnTarget(ctx context.Context, axis domain.Axis) (bool, error)
	// Stop requests an immediate halt. Best effort, bounded by ctx.
	Stop(ctx context.Context, axis domain.Axis) error
	// RecordedData returns the buffer filled during the last recorded move.
	RecordedData(ctx context.Context) (domain.SampleTrace, error)

	Parameter(ctx context.Context, axis domain.Axis, id domain.ParamID) (float64, error)
	// SetParameter writes a parameter slot, or fails with ErrRejectedValue.
	SetParameter(ctx context.Context, axis domain.Axis, id domain.ParamID, value float64) error

	// Close releases the controller connection.
	Close() error
}

// ReadGains reads the three PID slots of axis from the controller.
func ReadGains(ctx context.Context, ctrl AxisController, axis domain.Axis) (domain.Gains, error) {
	var g domain.Gains
	for _, id := range domain.GainParams {
		v, err := ctrl.Parameter(ctx, axis, id)
		if err != nil {
			return domain.Gains{}, fmt.Errorf("failed to read gain %s: %w", id, err)
		}
		g.Set(id, v)
	}
	return g, nil
}

// WrapOp attaches the operation name and axis to err, keeping it matchable with errors.Is.
// Errors that are already an *domain.OpError are returned untouched.
func WrapOp(op string, axis domain.Axis, err error) error {
	if err == nil {
		return nil
	}
	var opErr *domain.OpError
	if errors.As(err, &opErr) {
		return err
	}
	return &domain.OpError{Op: op, Axis: axis.ID, Err: err}
}
