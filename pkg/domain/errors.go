package domain

import "errors"

// ErrParameterUnavailable is returned when the controller does not expose a parameter.
// Callers substitute a default instead of failing.
var ErrParameterUnavailable = errors.New("parameter unavailable")

// ErrRejectedValue is returned when the controller refuses a parameter write (e.g. out of range).
var ErrRejectedValue = errors.New("value rejected by controller")

// ErrControllerFault is returned when the controller reports an internal fault condition.
// It ends the current trial, not the session.
var ErrControllerFault = errors.New("controller fault")

// ErrCommunication is returned on transport failure. It is fatal for the session.
var ErrCommunication = errors.New("communication error")

// OpError records the controller operation that failed and on which axis.
type OpError struct {
	Op   string
	Axis string
	Err  error
}

func (e *OpError) Error() string {
	if e.Axis == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " (axis " + e.Axis + "): " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// IsFatal reports whether err must end the tuning session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrCommunication)
}
