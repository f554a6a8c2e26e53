package domain

// TrialState is the position of a trial in the recording state machine.
type TrialState string

const (
	StateIdle     TrialState = "idle"     // No move in progress
	StateArmed    TrialState = "armed"    // Record rate computed and applied
	StateMoving   TrialState = "moving"   // Move issued, polling for on-target
	StateDraining TrialState = "draining" // Waiting for the recorder window to close
	StateComplete TrialState = "complete" // Trace retrieved
)

// Outcome is how the motion part of a trial ended.
type Outcome string

const (
	OutcomeOnTarget        Outcome = "on_target"
	OutcomeTimeout         Outcome = "timeout"
	OutcomeControllerError Outcome = "controller_error"
)

// Outcomes lists every outcome, for metric label initialisation.
var Outcomes = []Outcome{OutcomeOnTarget, OutcomeTimeout, OutcomeControllerError}
