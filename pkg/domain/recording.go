package domain

import "fmt"

// MaxRecordingSlots is the number of recorder slots the tool configures at most.
const MaxRecordingSlots = 8

// RecordSource is the signal a recorder slot samples.
type RecordSource int

const (
	SourceCommandedPosition RecordSource = 1
	SourceActualPosition    RecordSource = 2
)

func (s RecordSource) String() string {
	switch s {
	case SourceCommandedPosition:
		return "commanded_position"
	case SourceActualPosition:
		return "actual_position"
	default:
		return "unknown"
	}
}

// RecordingSlot binds one recorder slot (1-based) to a source signal.
type RecordingSlot struct {
	Slot   int          `json:"slot" mapstructure:"slot"`
	Source RecordSource `json:"source" mapstructure:"source"`
}

// RecordingConfig maps recorder slots to the signals of a trace. Fixed for a session.
type RecordingConfig struct {
	Slots []RecordingSlot `json:"slots" mapstructure:"slots"`
}

// DefaultRecordingConfig records the commanded position in slot 1 and the actual position in slot 2.
func DefaultRecordingConfig() RecordingConfig {
	return RecordingConfig{Slots: []RecordingSlot{
		{Slot: 1, Source: SourceCommandedPosition},
		{Slot: 2, Source: SourceActualPosition},
	}}
}

// SamplePair is one recorder tick, in controller native units.
type SamplePair struct {
	Commanded float64 `json:"commanded"`
	Actual    float64 `json:"actual"`
}

// SampleTrace is the ordered content of the recorder buffer after one move.
type SampleTrace []SamplePair

// Validate checks slot numbers and that both position signals are recorded.
func (c RecordingConfig) Validate() error {
	if len(c.Slots) == 0 || len(c.Slots) > MaxRecordingSlots {
		return fmt.Errorf("recording config: expected 1 to %d slots, got %d", MaxRecordingSlots, len(c.Slots))
	}
	seen := make(map[int]bool, len(c.Slots))
	var commanded, actual bool
	for _, s := range c.Slots {
		if s.Slot < 1 || s.Slot > MaxRecordingSlots {
			return fmt.Errorf("recording config: slot %d out of range 1..%d", s.Slot, MaxRecordingSlots)
		}
		if seen[s.Slot] {
			return fmt.Errorf("recording config: slot %d bound twice", s.Slot)
		}
		seen[s.Slot] = true
		switch s.Source {
		case SourceCommandedPosition:
			commanded = true
		case SourceActualPosition:
			actual = true
		default:
			return fmt.Errorf("recording config: slot %d has unknown source %d", s.Slot, s.Source)
		}
	}
	if !commanded || !actual {
		return fmt.Errorf("recording config: both commanded and actual position must be recorded")
	}
	return nil
}
