// Package config loads the pidtune configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/aretw0/pidtune/pkg/runner"
	"github.com/aretw0/pidtune/pkg/session"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration errors. The CLI reports them as invalid invocations.
var ErrInvalid = errors.New("invalid configuration")

// Driver names.
const (
	DriverSim = "sim"
	DriverGCS = "gcs"
)

// Journal backends.
const (
	JournalNone   = ""
	JournalMemory = "memory"
	JournalRedis  = "redis"
)

// Config is the complete tool configuration.
type Config struct {
	Controller ControllerConfig `mapstructure:"controller"`
	Axis       AxisConfig       `mapstructure:"axis"`
	Session    SessionConfig    `mapstructure:"session"`
	Display    DisplayConfig    `mapstructure:"display"`
	Output     OutputConfig     `mapstructure:"output"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Lock       LockConfig       `mapstructure:"lock"`
	Log        LogConfig        `mapstructure:"log"`
}

type ControllerConfig struct {
	// Driver is "sim" or "gcs".
	Driver string `mapstructure:"driver"`
	// Address is a serial device or "tcp://host:port".
	Address string        `mapstructure:"address"`
	Baud    int           `mapstructure:"baud"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Recorder overrides the recorder limits when the controller does not report them.
	Recorder *RecorderConfig `mapstructure:"recorder"`
}

type RecorderConfig struct {
	BufferLength int           `mapstructure:"buffer_length"`
	BaseCycle    time.Duration `mapstructure:"base_cycle"`
}

type AxisConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
	// UnitFactor is the length in meters of one native controller unit.
	UnitFactor float64 `mapstructure:"unit_factor"`
}

type SessionConfig struct {
	PollInterval   time.Duration          `mapstructure:"poll_interval"`
	Margin         time.Duration          `mapstructure:"margin"`
	StopTimeout    time.Duration          `mapstructure:"stop_timeout"`
	DefaultProfile domain.MotionProfile   `mapstructure:"default_profile"`
	Recording      domain.RecordingConfig `mapstructure:"recording"`
}

type DisplayConfig struct {
	// Unit is nm, um, mm or m.
	Unit string `mapstructure:"unit"`
	// Distance is the initial move distance, in display units.
	Distance float64 `mapstructure:"distance"`
	// ConfirmAbove asks before moves longer than this, in display units. 0 disables.
	ConfirmAbove float64 `mapstructure:"confirm_above"`
	// MaxTravel refuses moves longer than this, in display units. 0 disables.
	MaxTravel float64 `mapstructure:"max_travel"`
	Banner    bool    `mapstructure:"banner"`
}

type OutputConfig struct {
	JSON    bool   `mapstructure:"json"`
	Samples bool   `mapstructure:"samples"`
	PlotDir string `mapstructure:"plot_dir"`
	// HTTPAddr serves the latest trial and metrics when set, e.g. ":9090".
	HTTPAddr string `mapstructure:"http_addr"`
}

type JournalConfig struct {
	Backend  string        `mapstructure:"backend"`
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LockConfig guards the controller against a second tool instance. It needs the redis journal
// backend to span hosts; otherwise the lock is process-local.
type LockConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	Wait    time.Duration `mapstructure:"wait"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Controller: ControllerConfig{
			Driver:  DriverSim,
			Baud:    115200,
			Timeout: 2 * time.Second,
		},
		Axis: AxisConfig{
			ID:         "1",
			UnitFactor: 1e-3,
		},
		Session: SessionConfig{
			PollInterval:   session.DefaultPollInterval,
			Margin:         session.DefaultMargin,
			StopTimeout:    session.DefaultStopTimeout,
			DefaultProfile: domain.DefaultMotionProfile(),
		},
		Display: DisplayConfig{
			Unit:     "um",
			Distance: 1000,
			Banner:   true,
		},
		Journal: JournalConfig{
			Address: "localhost:6379",
			Prefix:  "pidtune:",
			TTL:     30 * 24 * time.Hour,
		},
		Lock: LockConfig{
			TTL:  time.Hour,
			Wait: 5 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}
	return cfg, nil
}

// Decode merges a YAML document into cfg. Keys absent from the document keep their value.
func Decode(data []byte, cfg *Config) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse yaml: %w", err)
	}
	if raw == nil {
		return nil
	}
	if _, ok := digMap(raw, "session", "recording"); ok {
		// A recording section replaces the default slots instead of merging into them.
		cfg.Session.Recording = domain.RecordingConfig{}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToRecordSource,
		),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

func digMap(m map[string]any, keys ...string) (any, bool) {
	var cur any = m
	for _, k := range keys {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = mm[k]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// stringToRecordSource accepts "commanded" and "actual" for recorder slot sources.
func stringToRecordSource(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(domain.RecordSource(0)) {
		return data, nil
	}
	switch strings.ToLower(data.(string)) {
	case "commanded", "commanded_position":
		return domain.SourceCommandedPosition, nil
	case "actual", "actual_position":
		return domain.SourceActualPosition, nil
	}
	return nil, fmt.Errorf("unknown record source %q", data)
}

// DomainAxis returns the configured axis.
func (c Config) DomainAxis() (domain.Axis, error) {
	return domain.NewAxis(c.Axis.ID, c.Axis.Name, c.Axis.UnitFactor)
}

// Unit returns the display unit.
func (c Config) Unit() (runner.DisplayUnit, error) {
	return runner.ParseDisplayUnit(c.Display.Unit)
}

// RecordingConfig returns the recorder slots, defaulting to commanded in 1 and actual in 2.
func (c Config) RecordingConfig() domain.RecordingConfig {
	if len(c.Session.Recording.Slots) == 0 {
		return domain.DefaultRecordingConfig()
	}
	return c.Session.Recording
}

// Validate reports every problem at once, wrapped in ErrInvalid.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.Controller.Driver {
	case DriverSim:
	case DriverGCS:
		check(c.Controller.Address != "", "controller.address is required for the gcs driver")
	default:
		check(false, "controller.driver %q: want sim or gcs", c.Controller.Driver)
	}
	check(c.Controller.Timeout > 0, "controller.timeout must be positive")
	if r := c.Controller.Recorder; r != nil {
		check(r.BufferLength > 0 && r.BaseCycle > 0, "controller.recorder needs a positive buffer_length and base_cycle")
	}

	if _, err := c.DomainAxis(); err != nil {
		errs = append(errs, err)
	}

	check(c.Session.PollInterval > 0, "session.poll_interval must be positive")
	check(c.Session.Margin >= 0, "session.margin must not be negative")
	check(c.Session.StopTimeout > 0, "session.stop_timeout must be positive")
	check(c.Session.DefaultProfile.Valid(), "session.default_profile needs a positive velocity and acceleration")
	if err := c.RecordingConfig().Validate(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.Unit(); err != nil {
		errs = append(errs, err)
	}
	check(c.Display.Distance != 0, "display.distance must not be zero")
	check(c.Display.ConfirmAbove >= 0, "display.confirm_above must not be negative")
	check(c.Display.MaxTravel >= 0, "display.max_travel must not be negative")

	switch c.Journal.Backend {
	case JournalNone, JournalMemory:
	case JournalRedis:
		check(c.Journal.Address != "", "journal.address is required for the redis backend")
	default:
		check(false, "journal.backend %q: want memory or redis", c.Journal.Backend)
	}
	check(c.Journal.TTL >= 0, "journal.ttl must not be negative")
	if c.Lock.Enabled {
		check(c.Lock.TTL > 0, "lock.ttl must be positive")
		check(c.Lock.Wait >= 0, "lock.wait must not be negative")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
