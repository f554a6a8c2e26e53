package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/pidtune/internal/config"
	"github.com/aretw0/pidtune/pkg/domain"
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitUsage         = 127
	ExitFailure       = 128
	ExitCommunication = 129
)

// UsageError is an invalid invocation: bad flags, arguments or configuration.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return "usage: " + e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// Usagef builds a UsageError.
func Usagef(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// ExitCode maps the error a command returned to the process exit code.
// End of operator input and interruption by signal are normal exits.
func ExitCode(err error) int {
	var usage *UsageError
	switch {
	case err == nil, isInterrupted(err):
		return ExitOK
	case errors.As(err, &usage), errors.Is(err, config.ErrInvalid):
		return ExitUsage
	case domain.IsFatal(err):
		return ExitCommunication
	default:
		return ExitFailure
	}
}

func isInterrupted(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, context.Canceled)
}
