package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/pidtune/internal/config"
	"github.com/aretw0/pidtune/internal/logging"
	"github.com/aretw0/pidtune/pkg/adapters/gcs"
	"github.com/aretw0/pidtune/pkg/adapters/memory"
	"github.com/aretw0/pidtune/pkg/adapters/redis"
	"github.com/aretw0/pidtune/pkg/adapters/sim"
	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/aretw0/pidtune/pkg/ports"
	"github.com/aretw0/pidtune/pkg/runner"
	"github.com/aretw0/pidtune/pkg/sinks"
	"github.com/aretw0/pidtune/pkg/trace"
)

// createLogger configures the application logger.
// Debug mode overrides the configured level.
func createLogger(level string, debug bool) (*slog.Logger, error) {
	if debug {
		return logging.New(slog.LevelDebug), nil
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, &UsageError{Err: err}
	}
	return logging.New(lvl), nil
}

// openController connects the configured driver.
func openController(cfg config.Config, logger *slog.Logger) (ports.AxisController, error) {
	switch cfg.Controller.Driver {
	case config.DriverGCS:
		opts := []gcs.Option{
			gcs.WithLogger(logger),
			gcs.WithTimeout(cfg.Controller.Timeout),
		}
		if r := cfg.Controller.Recorder; r != nil {
			opts = append(opts, gcs.WithRecorderLimits(domain.RecorderLimits{BufferLength: r.BufferLength, BaseCycle: r.BaseCycle}))
		}
		return gcs.Open(cfg.Controller.Address, cfg.Controller.Baud, opts...)
	default:
		var opts []sim.Option
		if r := cfg.Controller.Recorder; r != nil {
			opts = append(opts, sim.WithRecorder(domain.RecorderLimits{BufferLength: r.BufferLength, BaseCycle: r.BaseCycle}))
		}
		return sim.New(opts...), nil
	}
}

// controllerKey names the controller for locking.
func controllerKey(cfg config.Config) string {
	if cfg.Controller.Driver == config.DriverSim {
		return "sim"
	}
	return cfg.Controller.Address
}

// openJournal returns the configured journal, or nil when journaling is off.
func openJournal(cfg config.JournalConfig) (ports.Journal, func() error) {
	switch cfg.Backend {
	case config.JournalRedis:
		j := redis.New(cfg.Address, cfg.Password, cfg.DB, redis.WithPrefix(cfg.Prefix), redis.WithTTL(cfg.TTL))
		return j, j.Close
	case config.JournalMemory:
		return memory.NewJournal(), func() error { return nil }
	default:
		return nil, func() error { return nil }
	}
}

// acquireLock takes the controller lock, waiting at most cfg.Lock.Wait for another
// instance to release it. The lock lives in redis when the journal does.
func acquireLock(ctx context.Context, cfg config.Config, journal ports.Journal) (ports.UnlockFunc, error) {
	var locker ports.ControllerLocker = memory.NewLocker()
	if rj, ok := journal.(*redis.Journal); ok {
		locker = redis.NewLocker(rj.Client(), cfg.Journal.Prefix)
	}

	waitCtx, cancel := context.WithTimeout(ctx, max(cfg.Lock.Wait, time.Millisecond))
	defer cancel()
	unlock, err := locker.Lock(waitCtx, controllerKey(cfg), cfg.Lock.TTL)
	if err != nil {
		return nil, fmt.Errorf("controller %s is in use by another session: %w", controllerKey(cfg), err)
	}
	return unlock, nil
}

// jsonSink emits the trial summary as an output message, so scripted sessions stay JSON-Lines.
func jsonSink(handler runner.IOHandler) ports.ReportSink {
	return sinks.Func(func(ctx context.Context, report *ports.TrialReport) error {
		var stats trace.Stats
		if report.Trace != nil {
			stats = trace.Summarize(report.Trace.Samples())
		}
		data, err := json.Marshal(report.Entry(stats))
		if err != nil {
			return err
		}
		return handler.Output(ctx, string(data))
	})
}
