// Package trace turns a raw recorder buffer into a timestamped, physical-unit
// sequence that reporting sinks can consume. It performs no I/O.
package trace

import (
	"iter"
	"sync/atomic"
	"time"

	"github.com/aretw0/pidtune/pkg/domain"
)

// Sample is one recorder tick converted to physical units (meters).
type Sample struct {
	Index     int           `json:"index"`
	Time      time.Duration `json:"time"`
	Commanded float64       `json:"commanded"`
	Actual    float64       `json:"actual"`
	// Error is Actual - Commanded.
	Error float64 `json:"error"`
}

// Report is the processed trace of one trial.
// Its samples can be iterated exactly once.
type Report struct {
	// Period is the spacing between two samples.
	Period time.Duration
	// Len is the number of samples the sequence yields.
	Len int

	gen      func(yield func(Sample) bool)
	consumed atomic.Bool
}

// Process builds a Report from the raw buffer of a trial. Timestamps start at 0 and are
// spaced baseCycle×divisor apart; positions are converted with unitFactor (meters per native unit).
func Process(raw domain.SampleTrace, divisor int, baseCycle time.Duration, unitFactor float64) *Report {
	if divisor < 1 {
		divisor = 1
	}
	period := baseCycle * time.Duration(divisor)
	return &Report{
		Period: period,
		Len:    len(raw),
		gen: func(yield func(Sample) bool) {
			for i, p := range raw {
				cmd := p.Commanded * unitFactor
				act := p.Actual * unitFactor
				s := Sample{
					Index:     i,
					Time:      time.Duration(i) * period,
					Commanded: cmd,
					Actual:    act,
					Error:     act - cmd,
				}
				if !yield(s) {
					return
				}
			}
		},
	}
}

// FromSamples wraps already processed samples in a new single-use Report.
func FromSamples(period time.Duration, samples []Sample) *Report {
	return &Report{
		Period: period,
		Len:    len(samples),
		gen: func(yield func(Sample) bool) {
			for _, s := range samples {
				if !yield(s) {
					return
				}
			}
		},
	}
}

// Samples returns the lazy sample sequence. Only the first iteration yields values;
// later iterations, including after an early break, yield nothing.
func (r *Report) Samples() iter.Seq[Sample] {
	return func(yield func(Sample) bool) {
		if r == nil || r.gen == nil || !r.consumed.CompareAndSwap(false, true) {
			return
		}
		gen := r.gen
		r.gen = nil
		gen(yield)
	}
}

// Consumed reports whether the sample sequence has already been iterated.
func (r *Report) Consumed() bool {
	return r.consumed.Load()
}

// Duration is the time covered by the trace.
func (r *Report) Duration() time.Duration {
	return time.Duration(r.Len) * r.Period
}

// Collect drains the sequence into a slice.
func Collect(seq iter.Seq[Sample]) []Sample {
	var out []Sample
	for s := range seq {
		out = append(out, s)
	}
	return out
}
