package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/aretw0/pidtune/internal/config"
	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"end of input", fmt.Errorf("input: %w", io.EOF), ExitOK},
		{"interrupted", context.Canceled, ExitOK},
		{"usage", Usagef("unknown driver %q", "x"), ExitUsage},
		{"config", fmt.Errorf("%w: bad", config.ErrInvalid), ExitUsage},
		{"transport", &domain.OpError{Op: "IsOnTarget", Axis: "1", Err: domain.ErrCommunication}, ExitCommunication},
		{"other", errors.New("boom"), ExitFailure},
		{"fault", domain.ErrControllerFault, ExitFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}
