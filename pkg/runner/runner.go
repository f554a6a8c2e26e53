package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/pidtune/internal/logging"
	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/aretw0/pidtune/pkg/ports"
	"github.com/aretw0/pidtune/pkg/session"
)

// HelpText is the operator help, in markdown.
const HelpText = `# pidtune

| Input | Action |
|---|---|
| *(empty line)* | Run a recorded move of the pending distance |
| ` + "`P` `I` `D`" + ` | Enter a new proportional, integral or derivative gain |
| ` + "`M`" + ` | Enter a new move distance |
| ` + "`?`" + ` | Show this help |
| ` + "`Q`" + ` | Quit and release the controller |

Gains are read back from the controller before every prompt: a value the controller
rejected is never shown. Each move records commanded and actual position for the whole
recorder window, whatever its outcome.
`

// Session is the operator state carried from one iteration to the next.
type Session struct {
	// Distance is the pending relative move, in meters.
	Distance float64
	// Trials counts the trials run so far.
	Trials int
}

// Runner drives the operator trial loop of one axis.
// It is single-threaded: a trial runs to completion before the next command is read.
type Runner struct {
	// Handler is the strategy for operator IO. Defaults to a TextHandler on Stdin/Stdout.
	Handler IOHandler

	// Interceptor decides whether a trial may move the axis. Defaults to AutoApprove.
	Interceptor MoveInterceptor

	// Logger is used for internal debug logging.
	Logger *slog.Logger

	// Sink receives the report of every completed trial. Optional.
	Sink ports.ReportSink

	// Hooks receives gain write events.
	Hooks domain.TrialHooks

	// Unit is the display unit of distances.
	Unit DisplayUnit

	Session Session

	ctrl    ports.AxisController
	manager *session.Manager
}

// New creates a Runner for the axis of manager, on ctrl.
func New(ctrl ports.AxisController, manager *session.Manager, opts ...Option) *Runner {
	r := &Runner{
		Logger:  logging.NewNop(),
		Unit:    Micrometer,
		Session: Session{Distance: DefaultDistance},
		ctrl:    ctrl,
		manager: manager,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Handler == nil {
		r.Handler = NewTextHandler(nil, nil)
	}
	if r.Interceptor == nil {
		r.Interceptor = AutoApproveMiddleware()
	}
	return r
}

// Run executes the trial loop until the operator quits.
//
// It returns nil on Q. It returns an error when the controller link fails
// (domain.IsFatal), when ctx is done, or when operator input ends (io.EOF).
func (r *Runner) Run(ctx context.Context) error {
	if err := r.manager.Prepare(ctx); err != nil {
		return fmt.Errorf("failed to prepare session: %w", err)
	}
	axis := r.manager.Axis()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// The controller is the source of truth: gains are never cached.
		gains, err := ports.ReadGains(ctx, r.ctrl, axis)
		if err != nil {
			if domain.IsFatal(err) {
				return err
			}
			r.report(ctx, "Cannot read gains: %v", err)
		}
		if err := r.Handler.Output(ctx, r.status(axis, gains, err == nil)); err != nil {
			return fmt.Errorf("output error: %w", err)
		}

		line, err := r.Handler.Input(ctx)
		if err != nil {
			return r.inputError(ctx, err)
		}

		quit, err := r.dispatch(ctx, axis, line)
		if err != nil {
			return err
		}
		if quit {
			r.Logger.Debug("Operator quit", "trials", r.Session.Trials)
			return nil
		}
	}
}

// dispatch executes one operator command. Only fatal errors are returned.
func (r *Runner) dispatch(ctx context.Context, axis domain.Axis, line string) (quit bool, err error) {
	cmd := strings.ToUpper(strings.TrimSpace(line))
	if id, ok := domain.ParseGainParam(cmd); ok {
		return false, r.editGain(ctx, axis, id)
	}
	switch cmd {
	case "":
		return false, r.trial(ctx, axis)
	case "M":
		return false, r.editDistance(ctx)
	case "?", "H":
		return false, r.Handler.Render(ctx, HelpText)
	case "Q":
		return true, nil
	default:
		r.report(ctx, "Command not understood: %q", line)
		return false, nil
	}
}

func (r *Runner) status(axis domain.Axis, gains domain.Gains, known bool) string {
	g := "P=? I=? D=?"
	if known {
		g = gains.String()
	}
	return fmt.Sprintf("Axis %s  %s  distance=%s", axis, g, r.Unit.Format(r.Session.Distance))
}

func (r *Runner) editGain(ctx context.Context, axis domain.Axis, id domain.ParamID) error {
	v, ok, err := r.promptNumber(ctx, fmt.Sprintf("New %s value:", id))
	if err != nil || !ok {
		return err
	}

	err = r.ctrl.SetParameter(ctx, axis, id, v)
	if r.Hooks.OnGainWrite != nil {
		r.Hooks.OnGainWrite(ctx, &domain.GainEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventGainWrite, Axis: axis.ID},
			Param:     id,
			Value:     v,
			Rejected:  errors.Is(err, domain.ErrRejectedValue),
			Err:       err,
		})
	}
	if err != nil {
		err = ports.WrapOp("SetParameter", axis, err)
		if domain.IsFatal(err) {
			return err
		}
		r.report(ctx, "Cannot set %s to %g: %v", id, v, err)
		return nil
	}
	r.Logger.Info("Gain written", "param", id.String(), "value", v)
	return nil
}

func (r *Runner) editDistance(ctx context.Context) error {
	v, ok, err := r.promptNumber(ctx, fmt.Sprintf("New distance [%s]:", r.Unit.Name))
	if err != nil || !ok {
		return err
	}
	r.Session.Distance = r.Unit.ToMeters(v)
	r.Logger.Debug("Distance changed", "distance", r.Session.Distance)
	return nil
}

// promptNumber asks for a value. ok is false when the operator entered nothing usable.
func (r *Runner) promptNumber(ctx context.Context, label string) (v float64, ok bool, err error) {
	if err := r.Handler.Output(ctx, label); err != nil {
		return 0, false, fmt.Errorf("output error: %w", err)
	}
	line, err := r.Handler.Input(ctx)
	if err != nil {
		return 0, false, r.inputError(ctx, err)
	}
	if strings.TrimSpace(line) == "" {
		return 0, false, nil
	}
	v, err = ParseNumber(line)
	if err != nil {
		r.report(ctx, "Invalid value: %v", err)
		return 0, false, nil
	}
	return v, true, nil
}

// trial runs one recorded move of the pending distance and publishes its report.
func (r *Runner) trial(ctx context.Context, axis domain.Axis) error {
	distance := r.Session.Distance
	allowed, err := r.Interceptor(ctx, distance)
	if err != nil {
		return r.inputError(ctx, err)
	}
	if !allowed {
		r.report(ctx, "Move cancelled")
		return nil
	}

	// Gains are recorded with the trial as they were when it ran.
	gains, err := ports.ReadGains(ctx, r.ctrl, axis)
	if err != nil && domain.IsFatal(err) {
		return err
	}

	res, err := r.manager.Run(ctx, distance)
	if err != nil {
		if domain.IsFatal(err) || ctx.Err() != nil {
			return err
		}
		r.report(ctx, "Trial failed: %v", err)
		return nil
	}
	r.Session.Trials++

	summary := fmt.Sprintf("Trial %d: %s after %s (estimated %s, divisor %d, %d samples)",
		r.Session.Trials, res.Outcome, res.Elapsed.Round(time.Millisecond),
		res.Estimated.Round(time.Millisecond), res.Divisor, len(res.Trace))
	if err := r.Handler.Output(ctx, summary); err != nil {
		return fmt.Errorf("output error: %w", err)
	}
	if res.Fault != nil {
		r.report(ctx, "Controller fault: %v", res.Fault)
	}

	if r.Sink == nil {
		return nil
	}
	report := r.manager.Report(res, r.Session.Trials, gains)
	if err := r.Sink.Publish(ctx, report); err != nil {
		r.Logger.Warn("Report sink failed", "trial", report.Trial, "err", err)
		r.report(ctx, "Cannot publish trial report: %v", err)
	}
	return nil
}

func (r *Runner) inputError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		r.Logger.Debug("Runner input: context cancelled", "err", ctx.Err())
		return ctx.Err()
	}
	if errors.Is(err, io.EOF) {
		return err
	}
	return fmt.Errorf("input error: %w", err)
}

// report shows a recoverable failure to the operator.
func (r *Runner) report(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if err := r.Handler.SystemOutput(ctx, msg); err != nil {
		r.Logger.Warn("Cannot report to operator", "msg", msg, "err", err)
	}
}
