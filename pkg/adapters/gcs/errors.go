package gcs

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/aretw0/pidtune/pkg/domain"
)

// Controller error codes, as returned by ERR?.
const (
	CodeNoError           = 0
	CodeSyntax            = 1
	CodeUnknownCommand    = 2
	CodeServoOff          = 5
	CodePositionLimit     = 7
	CodeStopped           = 10
	CodeInvalidAxis       = 15
	CodeOutOfRange        = 17
	CodeUnknownParameter  = 54
	CodeWrongPassword     = 56
	CodeMotionError       = 1024
	CodeRecorderNotActive = 1053
)

// Error is a non-zero error code reported by the controller.
type Error struct {
	Code    int
	Command string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%q: controller error %d: %v", e.Command, e.Code, e.Unwrap())
}

// Unwrap maps the code onto the domain failure kinds.
func (e *Error) Unwrap() error {
	switch e.Code {
	case CodeSyntax, CodePositionLimit, CodeOutOfRange, CodeWrongPassword:
		return domain.ErrRejectedValue
	case CodeUnknownCommand, CodeInvalidAxis, CodeUnknownParameter, CodeRecorderNotActive:
		return domain.ErrParameterUnavailable
	default:
		return domain.ErrControllerFault
	}
}

// errReadTimeout is returned by serial ports when nothing arrived within the read timeout.
var errReadTimeout error = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string   { return "read timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func communication(cmd string, err error) error {
	return fmt.Errorf("%q: %w: %w", cmd, domain.ErrCommunication, err)
}
