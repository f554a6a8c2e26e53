package domain

import "fmt"

// ParamID identifies a controller parameter slot.
type ParamID uint32

// PID gain parameter slots. Vendors may expose further slots with other ids.
const (
	ParamP ParamID = 1
	ParamI ParamID = 2
	ParamD ParamID = 3
)

// GainParams lists the PID slots in display order.
var GainParams = []ParamID{ParamP, ParamI, ParamD}

// String returns the operator letter for the PID slots and a hex id otherwise.
func (p ParamID) String() string {
	switch p {
	case ParamP:
		return "P"
	case ParamI:
		return "I"
	case ParamD:
		return "D"
	default:
		return fmt.Sprintf("0x%X", uint32(p))
	}
}

// IsGain reports whether p is one of the PID slots.
func (p ParamID) IsGain() bool {
	return p >= ParamP && p <= ParamD
}

// ParseGainParam maps an operator letter (P, I or D, any case) to its slot.
func ParseGainParam(s string) (ParamID, bool) {
	switch s {
	case "P", "p":
		return ParamP, true
	case "I", "i":
		return ParamI, true
	case "D", "d":
		return ParamD, true
	}
	return 0, false
}

// Gains is the PID triple of an axis as last read from the controller.
// The controller is the source of truth: gains are re-read, never cached between trials.
type Gains struct {
	P float64 `json:"p"`
	I float64 `json:"i"`
	D float64 `json:"d"`
}

// Get returns the gain stored in the given slot.
func (g Gains) Get(id ParamID) (float64, bool) {
	switch id {
	case ParamP:
		return g.P, true
	case ParamI:
		return g.I, true
	case ParamD:
		return g.D, true
	}
	return 0, false
}

// Set stores v in the given slot. It reports false for non-PID slots.
func (g *Gains) Set(id ParamID, v float64) bool {
	switch id {
	case ParamP:
		g.P = v
	case ParamI:
		g.I = v
	case ParamD:
		g.D = v
	default:
		return false
	}
	return true
}

func (g Gains) String() string {
	return fmt.Sprintf("P=%g I=%g D=%g", g.P, g.I, g.D)
}
