package domain

import "time"

// MotionProfile holds the closed-loop velocity (m/s) and acceleration (m/s²) of an axis.
// It is read once when a session starts and then pinned onto the controller.
type MotionProfile struct {
	Velocity     float64 `json:"velocity" mapstructure:"velocity"`
	Acceleration float64 `json:"acceleration" mapstructure:"acceleration"`
}

// DefaultMotionProfile is the conservative fallback used when the controller does not expose its profile.
func DefaultMotionProfile() MotionProfile {
	return MotionProfile{Velocity: 1e-3, Acceleration: 1e-3}
}

// Valid reports whether both bounds are strictly positive.
func (p MotionProfile) Valid() bool {
	return p.Velocity > 0 && p.Acceleration > 0
}

// RecorderLimits describes the controller's data recorder.
type RecorderLimits struct {
	// BufferLength is the number of samples recorded per slot.
	BufferLength int `json:"buffer_length"`

	// BaseCycle is the controller servo cycle; one sample is taken every BaseCycle×divisor.
	BaseCycle time.Duration `json:"base_cycle"`
}

// Window returns the time covered by a full buffer at the given record-rate divisor.
func (l RecorderLimits) Window(divisor int) time.Duration {
	return time.Duration(l.BufferLength) * l.BaseCycle * time.Duration(divisor)
}

// Valid reports whether the limits can be used to size a recording.
func (l RecorderLimits) Valid() bool {
	return l.BufferLength > 0 && l.BaseCycle > 0
}
