package trace

import (
	"iter"
	"math"
	"time"
)

// Stats summarises the position error of a trace.
type Stats struct {
	Count       int           `json:"count"`
	Duration    time.Duration `json:"duration"`
	MaxAbsError float64       `json:"max_abs_error"`
	RMSError    float64       `json:"rms_error"`
	FinalError  float64       `json:"final_error"`
	// Overshoot is how far the actual position went past the final commanded position,
	// in the direction of the move. Zero when it never did.
	Overshoot float64 `json:"overshoot"`
}

// Accumulator computes Stats incrementally so a sink can summarise while it streams samples.
type Accumulator struct {
	count   int
	first   Sample
	last    Sample
	maxAbs  float64
	sumSq   float64
	actuals []float64
}

// Add folds one sample into the summary.
func (a *Accumulator) Add(s Sample) {
	if a.count == 0 {
		a.first = s
	}
	a.count++
	a.last = s
	if e := math.Abs(s.Error); e > a.maxAbs {
		a.maxAbs = e
	}
	a.sumSq += s.Error * s.Error
	a.actuals = append(a.actuals, s.Actual)
}

// Stats returns the summary of all samples added so far.
func (a *Accumulator) Stats() Stats {
	if a.count == 0 {
		return Stats{}
	}
	st := Stats{
		Count:       a.count,
		Duration:    a.last.Time,
		MaxAbsError: a.maxAbs,
		RMSError:    math.Sqrt(a.sumSq / float64(a.count)),
		FinalError:  a.last.Error,
	}

	target := a.last.Commanded
	dir := math.Copysign(1, target-a.first.Commanded)
	if target == a.first.Commanded {
		return st
	}
	for _, act := range a.actuals {
		if over := (act - target) * dir; over > st.Overshoot {
			st.Overshoot = over
		}
	}
	return st
}

// Summarize consumes seq and returns its Stats.
func Summarize(seq iter.Seq[Sample]) Stats {
	var acc Accumulator
	for s := range seq {
		acc.Add(s)
	}
	return acc.Stats()
}
