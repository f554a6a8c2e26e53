package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/pidtune/internal/config"
	"github.com/aretw0/pidtune/internal/presentation/tui"
	"github.com/aretw0/pidtune/pkg/adapters/console"
	httpAdapter "github.com/aretw0/pidtune/pkg/adapters/http"
	"github.com/aretw0/pidtune/pkg/adapters/plot"
	"github.com/aretw0/pidtune/pkg/observability"
	"github.com/aretw0/pidtune/pkg/ports"
	"github.com/aretw0/pidtune/pkg/runner"
	"github.com/aretw0/pidtune/pkg/session"
	"github.com/aretw0/pidtune/pkg/sinks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Options configures one tuning session.
type Options struct {
	Config  config.Config
	Debug   bool
	Version string

	// In and Out are the operator console. They default to Stdin and Stdout.
	In  io.Reader
	Out io.Writer

	// Controller replaces the configured driver when set. RunSession still closes it.
	Controller ports.AxisController
}

// RunSession opens the controller, runs the operator trial loop until it ends and
// releases the controller on every path.
func RunSession(ctx context.Context, opts Options) error {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	in, out := opts.In, opts.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	interactive := isTerminal(in) && isTerminal(out) && !cfg.Output.JSON

	logger, err := createLogger(cfg.Log.Level, opts.Debug)
	if err != nil {
		return err
	}
	axis, _ := cfg.DomainAxis()
	unit, _ := cfg.Unit()

	sigCtx := NewSignalContext(ctx)
	defer sigCtx.Cancel()

	journal, closeJournal := openJournal(cfg.Journal)
	defer func() {
		if err := closeJournal(); err != nil {
			logger.Warn("Failed to close journal", "err", err)
		}
	}()

	if cfg.Lock.Enabled {
		unlock, err := acquireLock(sigCtx, cfg, journal)
		if err != nil {
			return err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(sigCtx)); err != nil {
				logger.Warn("Failed to release controller lock", "err", err)
			}
		}()
	}

	ctrl := opts.Controller
	if ctrl == nil {
		if ctrl, err = openController(cfg, logger); err != nil {
			return fmt.Errorf("failed to open controller: %w", err)
		}
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			logger.Warn("Failed to close controller", "err", err)
		}
	}()

	// Observability
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return err
	}
	metrics.Init(axis.ID)
	hooks := metrics.Hooks()
	if opts.Debug {
		hooks = hooks.Merge(observability.LogHooks(logger))
	}

	manager := session.NewManager(ctrl, axis,
		session.WithLogger(logger),
		session.WithPollInterval(cfg.Session.PollInterval),
		session.WithMargin(cfg.Session.Margin),
		session.WithStopTimeout(cfg.Session.StopTimeout),
		session.WithDefaultProfile(cfg.Session.DefaultProfile),
		session.WithRecordingConfig(cfg.RecordingConfig()),
		session.WithHooks(hooks),
	)

	// Operator IO
	var handler runner.IOHandler
	if cfg.Output.JSON {
		handler = runner.NewJSONHandler(in, out)
	} else {
		var textOpts []runner.TextHandlerOption
		if interactive {
			textOpts = append(textOpts, runner.WithTextHandlerRenderer(tui.NewRenderer()))
		}
		handler = runner.NewTextHandler(in, out, textOpts...)
	}

	// Reporting
	var reportSinks []ports.ReportSink
	if cfg.Output.JSON {
		reportSinks = append(reportSinks, jsonSink(handler))
	} else {
		reportSinks = append(reportSinks, console.New(out, console.WithUnit(unit), console.WithSamples(cfg.Output.Samples)))
	}
	if cfg.Output.PlotDir != "" {
		reportSinks = append(reportSinks, plot.New(cfg.Output.PlotDir, plot.WithUnit(unit), plot.WithLogger(logger)))
	}
	if journal != nil {
		reportSinks = append(reportSinks, sinks.Journal(journal))
	}

	serveDone := make(chan error, 1)
	serveCtx, stopServe := context.WithCancel(sigCtx)
	if cfg.Output.HTTPAddr != "" {
		serverOpts := []httpAdapter.Option{httpAdapter.WithLogger(logger), httpAdapter.WithGatherer(reg)}
		if journal != nil {
			serverOpts = append(serverOpts, httpAdapter.WithJournal(journal))
		}
		server := httpAdapter.NewServer(serverOpts...)
		reportSinks = append(reportSinks, server)
		go func() { serveDone <- server.Serve(serveCtx, cfg.Output.HTTPAddr) }()
	} else {
		serveDone <- nil
	}
	defer func() {
		stopServe()
		if err := <-serveDone; err != nil {
			logger.Warn("HTTP server failed", "err", err)
		}
	}()

	// Move policy
	var interceptors []runner.MoveInterceptor
	if cfg.Display.MaxTravel > 0 {
		interceptors = append(interceptors, runner.TravelLimitMiddleware(handler, unit.ToMeters(cfg.Display.MaxTravel), unit))
	}
	if cfg.Display.ConfirmAbove > 0 {
		interceptors = append(interceptors, runner.ConfirmationMiddleware(handler, unit.ToMeters(cfg.Display.ConfirmAbove), unit))
	}

	runnerOpts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithHandler(handler),
		runner.WithSinks(reportSinks...),
		runner.WithDisplayUnit(unit),
		runner.WithInitialDistance(unit.ToMeters(cfg.Display.Distance)),
		runner.WithHooks(hooks),
	}
	if len(interceptors) > 0 {
		runnerOpts = append(runnerOpts, runner.WithInterceptor(runner.MultiInterceptor(interceptors...)))
	}

	if interactive && cfg.Display.Banner {
		tui.PrintBanner(out, opts.Version)
	}
	logger.Info("Session started", "axis", axis.String(), "driver", cfg.Controller.Driver)

	runErr := runner.New(ctrl, manager, runnerOpts...).Run(sigCtx)

	if sigCtx.Err() != nil && runErr == nil {
		runErr = sigCtx.Err()
	}
	return handleExecutionError(sigCtx, runErr, handler, logger)
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && tui.IsTerminal(f)
}

// handleExecutionError reports how the session ended. Interruptions and end of input are
// normal ends; everything else is returned.
func handleExecutionError(ctx *SignalContext, err error, handler runner.IOHandler, logger *slog.Logger) error {
	if err == nil {
		logger.Info("Session finished")
		return nil
	}
	if !isInterrupted(err) {
		return err
	}
	msg := "End of input, controller released."
	if errors.Is(err, context.Canceled) {
		msg = "Interrupted, controller released."
		if sig := ctx.Signal(); sig != nil {
			msg = fmt.Sprintf("Interrupted by %v, controller released.", sig)
		}
	}
	_ = handler.SystemOutput(context.WithoutCancel(ctx), msg)
	logger.Info("Session finished", "reason", err)
	return nil
}
