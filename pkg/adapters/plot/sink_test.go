package plot_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/pidtune/pkg/adapters/plot"
	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/aretw0/pidtune/pkg/ports"
	"github.com/aretw0/pidtune/pkg/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_WritesPNG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	s := plot.New(dir, plot.WithSize(4, 3), plot.WithDPI(72))

	raw := make(domain.SampleTrace, 200)
	for i := range raw {
		target := min(float64(i), 100)
		raw[i] = domain.SamplePair{Commanded: target, Actual: target * 0.98}
	}
	report := &ports.TrialReport{
		Trial:   7,
		Axis:    domain.Axis{ID: "1", UnitFactor: 1e-6},
		Outcome: domain.OutcomeOnTarget,
		Trace:   trace.Process(raw, 4, 100*time.Microsecond, 1e-6),
	}

	require.NoError(t, s.Publish(context.Background(), report))

	path := s.Path(report)
	assert.Equal(t, "trial-007-axis-1.png", filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "not a PNG file")
}

func TestSink_SkipsEmptyTrace(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	s := plot.New(dir)

	report := &ports.TrialReport{Trial: 1, Axis: domain.Axis{ID: "1"}, Outcome: domain.OutcomeControllerError}
	require.NoError(t, s.Publish(context.Background(), report))

	report.Trace = trace.Process(nil, 1, time.Millisecond, 1)
	require.NoError(t, s.Publish(context.Background(), report))

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
