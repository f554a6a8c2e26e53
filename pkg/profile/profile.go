// Package profile estimates move durations and sizes the recorder window.
package profile

import (
	"math"
	"time"

	"github.com/aretw0/pidtune/pkg/domain"
)

// EstimateDuration returns how long a move of distance meters takes with the given
// velocity (m/s) and acceleration (m/s²), assuming equal acceleration and deceleration.
//
// A move long enough to reach cruise speed follows a trapezoidal profile
// (accelerate, cruise, decelerate): v/a + |d|/v. A shorter one follows a triangular
// profile: 2·sqrt(|d|/a). Both agree at the boundary |d| = v²/a.
func EstimateDuration(distance, velocity, acceleration float64) time.Duration {
	d := math.Abs(distance)
	if velocity <= 0 || acceleration <= 0 {
		return 0
	}

	var secs float64
	if d >= velocity*velocity/acceleration {
		secs = velocity/acceleration + d/velocity
	} else {
		secs = 2 * math.Sqrt(d/acceleration)
	}
	return seconds(secs)
}

// Estimate is EstimateDuration for a motion profile.
func Estimate(distance float64, p domain.MotionProfile) time.Duration {
	return EstimateDuration(distance, p.Velocity, p.Acceleration)
}

// RecordRate returns the smallest divisor (at least 1) for which a full recorder buffer
// covers twice the estimated move plus margin.
func RecordRate(estimated, margin time.Duration, limits domain.RecorderLimits) int {
	base := limits.Window(1)
	if base <= 0 {
		return 1
	}
	need := 2*estimated + margin
	div := int(math.Ceil(float64(need) / float64(base)))
	// Integer check guards against float rounding leaving the window one tick short.
	for limits.Window(div) < need {
		div++
	}
	return max(div, 1)
}

// RecordingDuration is the time needed to fill the recorder at the given divisor.
func RecordingDuration(limits domain.RecorderLimits, divisor int) time.Duration {
	return limits.Window(divisor)
}

// TimeoutBudget is the time after the move starts past which a trial is declared timed out.
func TimeoutBudget(recording, margin time.Duration) time.Duration {
	return 2*recording + margin
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Ceil(s * float64(time.Second)))
}
