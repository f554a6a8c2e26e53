package runner

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// MoveInterceptor is a middleware that can block a trial before the axis moves.
// It returns true if the move should proceed.
type MoveInterceptor func(ctx context.Context, distance float64) (bool, error)

// MultiInterceptor chains multiple interceptors. The first refusal wins.
func MultiInterceptor(interceptors ...MoveInterceptor) MoveInterceptor {
	return func(ctx context.Context, distance float64) (bool, error) {
		for _, interceptor := range interceptors {
			allowed, err := interceptor(ctx, distance)
			if err != nil {
				return false, err
			}
			if !allowed {
				return false, nil
			}
		}
		return true, nil
	}
}

// ConfirmationMiddleware asks the operator to confirm moves longer than limit meters.
// unit is used to show the distance the way the operator entered it.
func ConfirmationMiddleware(handler IOHandler, limit float64, unit DisplayUnit) MoveInterceptor {
	return func(ctx context.Context, distance float64) (bool, error) {
		if math.Abs(distance) <= limit {
			return true, nil
		}
		msg := fmt.Sprintf("Move of %s exceeds %s. Proceed? [y/N]", unit.Format(distance), unit.Format(limit))
		if err := handler.SystemOutput(ctx, msg); err != nil {
			return false, err
		}
		input, err := handler.Input(ctx)
		if err != nil {
			return false, err
		}
		input = strings.TrimSpace(strings.ToLower(input))
		return input == "y" || input == "yes", nil
	}
}

// TravelLimitMiddleware refuses any move longer than limit meters.
func TravelLimitMiddleware(handler IOHandler, limit float64, unit DisplayUnit) MoveInterceptor {
	return func(ctx context.Context, distance float64) (bool, error) {
		if math.Abs(distance) <= limit {
			return true, nil
		}
		return false, handler.SystemOutput(ctx, fmt.Sprintf("Move of %s refused: travel limit is %s", unit.Format(distance), unit.Format(limit)))
	}
}

// AutoApproveMiddleware allows everything.
func AutoApproveMiddleware() MoveInterceptor {
	return func(context.Context, float64) (bool, error) {
		return true, nil
	}
}
