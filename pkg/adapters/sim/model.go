package sim

import (
	"math"
	"time"

	"github.com/aretw0/pidtune/pkg/domain"
)

// plant describes the simulated mechanics: a damped mass driven by a PID loop
// whose output is an acceleration (m/s²), saturated at maxAccel.
type plant struct {
	damping    float64 // 1/s
	maxAccel   float64 // m/s²
	faultLimit float64 // following error (m) that trips a fault
}

// move is one simulated relative move.
type move struct {
	start    time.Time
	from     float64 // m
	distance float64 // m
	profile  domain.MotionProfile
	gains    domain.Gains
	cycle    time.Duration

	// stopStep freezes the set-point from that cycle on. -1 when not stopped.
	stopStep int
}

// stepResult is the state of the loop after one servo cycle.
type stepResult struct {
	commanded float64
	actual    float64
	faulted   bool
}

// setpoint returns the trapezoidal (or triangular) commanded offset at time t.
func setpoint(t, distance float64, p domain.MotionProfile) float64 {
	d := math.Abs(distance)
	if d == 0 || t <= 0 {
		return 0
	}
	dir := math.Copysign(1, distance)
	v, a := p.Velocity, p.Acceleration

	tAcc := v / a
	if d < v*v/a {
		// Triangular: never reaches cruise speed.
		tAcc = math.Sqrt(d / a)
		v = a * tAcc
	}
	dAcc := 0.5 * a * tAcc * tAcc
	tCruise := (d - 2*dAcc) / v
	total := 2*tAcc + tCruise

	switch {
	case t >= total:
		return dir * d
	case t < tAcc:
		return dir * 0.5 * a * t * t
	case t < tAcc+tCruise:
		return dir * (dAcc + v*(t-tAcc))
	default:
		r := total - t
		return dir * (d - 0.5*a*r*r)
	}
}

// setpointDuration returns how long the set-point takes to cover distance.
func setpointDuration(distance float64, p domain.MotionProfile) time.Duration {
	d := math.Abs(distance)
	if d == 0 {
		return 0
	}
	v, a := p.Velocity, p.Acceleration
	var secs float64
	if d < v*v/a {
		secs = 2 * math.Sqrt(d/a)
	} else {
		secs = v/a + d/v
	}
	return time.Duration(math.Ceil(secs * float64(time.Second)))
}

// run simulates steps servo cycles of mv and calls visit after each of them.
// visit returning false stops the simulation early.
func (pl plant) run(mv move, steps int, visit func(step int, r stepResult) bool) {
	dt := mv.cycle.Seconds()
	var x, v, integ, prevErr float64
	var frozen float64
	isFrozen, faulted := false, false

	for step := 0; step < steps; step++ {
		t := float64(step) * dt
		var cmd float64
		switch {
		case isFrozen:
			cmd = frozen
		case mv.stopStep >= 0 && step >= mv.stopStep:
			frozen = setpoint(t, mv.distance, mv.profile)
			isFrozen = true
			cmd = frozen
		default:
			cmd = setpoint(t, mv.distance, mv.profile)
		}

		if !faulted {
			e := cmd - x
			integ += e * dt
			deriv := 0.0
			if step > 0 {
				deriv = (e - prevErr) / dt
			}
			prevErr = e
			u := mv.gains.P*e + mv.gains.I*integ + mv.gains.D*deriv
			u = math.Max(-pl.maxAccel, math.Min(pl.maxAccel, u))
			v += (u - pl.damping*v) * dt
			x += v * dt

			if math.Abs(cmd-x) > pl.faultLimit || math.IsNaN(x) {
				// Servo trips: the axis stays where it is.
				faulted = true
				isFrozen = true
				frozen = cmd
				if math.IsNaN(x) {
					x = 0
				}
			}
		}

		if !visit(step, stepResult{commanded: mv.from + cmd, actual: mv.from + x, faulted: faulted}) {
			return
		}
	}
}
