package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/pidtune/pkg/domain"
)

// LogHooks returns hooks that log every trial event at debug level,
// and trial completions at info level.
func LogHooks(logger *slog.Logger) domain.TrialHooks {
	return domain.TrialHooks{
		OnStateChange: func(ctx context.Context, e *domain.StateEvent) {
			logger.DebugContext(ctx, "trial_state",
				"axis", e.Axis,
				"from", e.From,
				"to", e.To,
			)
		},
		OnTrialComplete: func(ctx context.Context, e *domain.TrialEvent) {
			logger.InfoContext(ctx, "trial_complete",
				"axis", e.Axis,
				"distance", e.Distance,
				"outcome", e.Outcome,
				"divisor", e.Divisor,
				"estimated", e.Estimated,
				"elapsed", e.Elapsed,
			)
		},
		OnGainWrite: func(ctx context.Context, e *domain.GainEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "gain_write",
					"axis", e.Axis,
					"param", e.Param.String(),
					"value", e.Value,
					"rejected", e.Rejected,
					"err", e.Err,
				)
				return
			}
			logger.DebugContext(ctx, "gain_write",
				"axis", e.Axis,
				"param", e.Param.String(),
				"value", e.Value,
			)
		},
	}
}
