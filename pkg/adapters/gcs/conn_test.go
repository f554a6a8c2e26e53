package gcs

import (
	"testing"

	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValue(t *testing.T) {
	v, err := parseKeyValue("SPA? 1 0xE000200", "1 0x0E000200=5e-05", "1 0xE000200")
	require.NoError(t, err)
	assert.Equal(t, 5e-05, v)

	_, err = parseKeyValue("VEL? 1", "2=1.5", "1")
	assert.ErrorIs(t, err, domain.ErrCommunication)

	_, err = parseKeyValue("VEL? 1", "garbage", "1")
	assert.ErrorIs(t, err, domain.ErrCommunication)
}

func TestParseArray(t *testing.T) {
	rows, err := parseArray([]string{
		"# TYPE = 1",
		"# END_HEADER",
		"0 0",
		"1.5\t1.25",
	}, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0}, {1.5, 1.25}}, rows)

	_, err = parseArray([]string{"1 2 3"}, 2)
	assert.Error(t, err)
}

func TestErrorMapping(t *testing.T) {
	cases := map[int]error{
		CodeOutOfRange:       domain.ErrRejectedValue,
		CodeUnknownCommand:   domain.ErrParameterUnavailable,
		CodeUnknownParameter: domain.ErrParameterUnavailable,
		CodeMotionError:      domain.ErrControllerFault,
		CodeServoOff:         domain.ErrControllerFault,
	}
	for code, want := range cases {
		err := &Error{Code: code, Command: "X"}
		assert.ErrorIs(t, err, want, "code %d", code)
		assert.False(t, domain.IsFatal(err))
	}
}
