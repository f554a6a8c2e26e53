package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/pidtune/internal/logging"
	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	m.Init("1")

	hooks := m.Hooks()
	ctx := context.Background()
	base := domain.EventBase{Axis: "1"}

	hooks.OnStateChange(ctx, &domain.StateEvent{EventBase: base, From: domain.StateIdle, To: domain.StateArmed})
	hooks.OnTrialComplete(ctx, &domain.TrialEvent{EventBase: base, Outcome: domain.OutcomeTimeout, Divisor: 65, Elapsed: 8 * time.Second})
	hooks.OnTrialComplete(ctx, &domain.TrialEvent{EventBase: base, Outcome: domain.OutcomeOnTarget, Divisor: 12, Elapsed: time.Second})
	hooks.OnGainWrite(ctx, &domain.GainEvent{EventBase: base, Param: domain.ParamP, Value: 30})
	hooks.OnGainWrite(ctx, &domain.GainEvent{EventBase: base, Param: domain.ParamP, Value: -1, Rejected: true, Err: domain.ErrRejectedValue})
	hooks.OnGainWrite(ctx, &domain.GainEvent{EventBase: base, Param: domain.ParamI, Value: 1, Err: errors.New("timeout")})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Trials.WithLabelValues("1", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Trials.WithLabelValues("1", "on_target")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Trials.WithLabelValues("1", "controller_error")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.Divisor.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("1", "armed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GainWrites.WithLabelValues("1", "P", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GainWrites.WithLabelValues("1", "P", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GainWrites.WithLabelValues("1", "I", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TrialSeconds))
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	hooks := LogHooks(logging.NewWithWriter(&buf, slog.LevelInfo))
	ctx := context.Background()
	base := domain.EventBase{Axis: "1"}

	hooks.OnStateChange(ctx, &domain.StateEvent{EventBase: base, From: domain.StateIdle, To: domain.StateArmed})
	assert.Empty(t, buf.String(), "state changes are debug only")

	hooks.OnTrialComplete(ctx, &domain.TrialEvent{EventBase: base, Outcome: domain.OutcomeOnTarget})
	hooks.OnGainWrite(ctx, &domain.GainEvent{EventBase: base, Param: domain.ParamD, Rejected: true, Err: domain.ErrRejectedValue})

	out := buf.String()
	assert.Contains(t, out, "trial_complete")
	assert.Contains(t, out, "outcome=on_target")
	assert.Contains(t, out, "param=D")
	assert.Contains(t, out, "rejected=true")
}
