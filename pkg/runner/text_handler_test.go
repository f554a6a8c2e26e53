package runner

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextHandler_Output(t *testing.T) {
	out := &bytes.Buffer{}
	handler := NewTextHandler(strings.NewReader(""), out)
	ctx := context.Background()

	require.NoError(t, handler.Output(ctx, "P=400 I=2000 D=40\n"))
	require.NoError(t, handler.SystemOutput(ctx, "Cannot set P: value rejected"))

	assert.Equal(t, "P=400 I=2000 D=40\n! Cannot set P: value rejected\n", out.String())
}

func TestTextHandler_Render(t *testing.T) {
	out := &bytes.Buffer{}
	handler := NewTextHandler(strings.NewReader(""), out, WithTextHandlerRenderer(func(s string) (string, error) {
		return "Rendered: " + s, nil
	}))

	require.NoError(t, handler.Render(context.Background(), "# Help"))
	assert.Equal(t, "Rendered: # Help\n", out.String())
}

func TestTextHandler_Input(t *testing.T) {
	out := &bytes.Buffer{}
	handler := NewTextHandler(strings.NewReader("  p  \n\n\x1b30\nq"), out)
	ctx := context.Background()

	for _, want := range []string{"p", "", "30", "q"} {
		got, err := handler.Input(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := handler.Input(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, strings.Repeat(Prompt, 5), out.String())
}

func TestTextHandler_InputCancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	handler := NewTextHandler(r, &bytes.Buffer{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := handler.Input(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
