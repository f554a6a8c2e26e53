package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/pidtune/internal/logging"
	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/aretw0/pidtune/pkg/ports"
)

// DefaultTimeout bounds the wait for one answer.
const DefaultTimeout = 2 * time.Second

// Controller-level parameters holding the recorder limits.
const (
	ParamServoCycle     domain.ParamID = 0x0E000200 // seconds
	ParamRecorderLength domain.ParamID = 0x16000200 // points per table
)

// Controller implements ports.AxisController over a GCS connection.
type Controller struct {
	mu      sync.Mutex
	conn    *conn
	logger  *slog.Logger
	timeout time.Duration
	limits  *domain.RecorderLimits
	tables  map[int]domain.RecordSource
	moved   bool
	closed  bool
}

type Option func(*Controller)

// WithLogger configures the logger. Commands are logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithTimeout sets how long to wait for one answer.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRecorderLimits skips querying the recorder limits, for controllers that do not
// expose them as parameters.
func WithRecorderLimits(l domain.RecorderLimits) Option {
	return func(c *Controller) {
		c.limits = &l
	}
}

// New creates a controller driver over an open connection. The driver owns rwc.
func New(rwc io.ReadWriteCloser, opts ...Option) *Controller {
	c := &Controller{
		logger:  logging.NewNop(),
		timeout: DefaultTimeout,
		tables:  make(map[int]domain.RecordSource),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.conn = newConn(rwc, c.timeout, c.logger)
	return c
}

// Open dials address (see Dial) and returns a driver for it.
func Open(address string, baud int, opts ...Option) (*Controller, error) {
	probe := &Controller{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(probe)
	}
	rwc, err := Dial(address, baud, probe.timeout)
	if err != nil {
		return nil, err
	}
	return New(rwc, opts...), nil
}

var _ ports.AxisController = (*Controller)(nil)

// lock serialises exchanges and fails once the connection is closed.
func (c *Controller) lock(op string) (unlock func(), err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: connection closed: %w", op, domain.ErrCommunication)
	}
	return c.mu.Unlock, nil
}

func (c *Controller) exec(ctx context.Context, op, cmd string) error {
	unlock, err := c.lock(op)
	if err != nil {
		return err
	}
	defer unlock()
	return c.conn.command(ctx, cmd)
}

// queryValue sends cmd and parses a "<key>=<value>" answer.
func (c *Controller) queryValue(ctx context.Context, op, cmd, key string) (float64, error) {
	unlock, err := c.lock(op)
	if err != nil {
		return 0, err
	}
	defer unlock()

	lines, err := c.conn.query(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return parseKeyValue(cmd, lines[0], key)
}

func parseKeyValue(cmd, line, key string) (float64, error) {
	k, v, ok := strings.Cut(line, "=")
	if !ok || !sameKey(k, key) {
		return 0, communication(cmd, fmt.Errorf("unexpected answer %q", line))
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, communication(cmd, fmt.Errorf("unexpected answer %q", line))
	}
	return f, nil
}

// sameKey compares answer keys field by field; numeric fields compare by value so
// "0x0E000200" matches "0xE000200".
func sameKey(a, b string) bool {
	fa, fb := strings.Fields(a), strings.Fields(b)
	if len(fa) != len(fb) {
		return false
	}
	for i := range fa {
		if strings.EqualFold(fa[i], fb[i]) {
			continue
		}
		na, errA := strconv.ParseUint(fa[i], 0, 32)
		nb, errB := strconv.ParseUint(fb[i], 0, 32)
		if errA != nil || errB != nil || na != nb {
			return false
		}
	}
	return true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func positive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%s %g must be positive: %w", name, v, domain.ErrRejectedValue)
	}
	return nil
}

func (c *Controller) SetRecordingConfig(ctx context.Context, axis domain.Axis, slot int, source domain.RecordSource) error {
	if slot < 1 || slot > domain.MaxRecordingSlots {
		return fmt.Errorf("recorder table %d: %w", slot, domain.ErrRejectedValue)
	}
	if err := c.exec(ctx, "SetRecordingConfig", fmt.Sprintf("DRC %d %s %d", slot, axis.ID, int(source))); err != nil {
		return err
	}
	c.mu.Lock()
	c.tables[slot] = source
	c.mu.Unlock()
	return nil
}

func (c *Controller) ClosedLoopVelocity(ctx context.Context, axis domain.Axis) (float64, error) {
	v, err := c.queryValue(ctx, "ClosedLoopVelocity", "VEL? "+axis.ID, axis.ID)
	if err != nil {
		return 0, err
	}
	return axis.ToPhysical(v), nil
}

func (c *Controller) ClosedLoopAcceleration(ctx context.Context, axis domain.Axis) (float64, error) {
	a, err := c.queryValue(ctx, "ClosedLoopAcceleration", "ACC? "+axis.ID, axis.ID)
	if err != nil {
		return 0, err
	}
	return axis.ToPhysical(a), nil
}

func (c *Controller) SetClosedLoopVelocity(ctx context.Context, axis domain.Axis, v float64) error {
	if err := positive("velocity", v); err != nil {
		return err
	}
	return c.exec(ctx, "SetClosedLoopVelocity", fmt.Sprintf("VEL %s %s", axis.ID, formatFloat(axis.ToNative(v))))
}

func (c *Controller) SetClosedLoopAcceleration(ctx context.Context, axis domain.Axis, a float64) error {
	if err := positive("acceleration", a); err != nil {
		return err
	}
	return c.exec(ctx, "SetClosedLoopAcceleration", fmt.Sprintf("ACC %s %s", axis.ID, formatFloat(axis.ToNative(a))))
}

func (c *Controller) SetClosedLoopDeceleration(ctx context.Context, axis domain.Axis, a float64) error {
	if err := positive("deceleration", a); err != nil {
		return err
	}
	return c.exec(ctx, "SetClosedLoopDeceleration", fmt.Sprintf("DEC %s %s", axis.ID, formatFloat(axis.ToNative(a))))
}

// RecorderLimits reads the servo cycle time and the recorder length once, then caches them.
func (c *Controller) RecorderLimits(ctx context.Context) (domain.RecorderLimits, error) {
	c.mu.Lock()
	cached := c.limits
	c.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	cycle, err := c.queryValue(ctx, "RecorderLimits", fmt.Sprintf("SPA? 1 0x%X", uint32(ParamServoCycle)), fmt.Sprintf("1 0x%X", uint32(ParamServoCycle)))
	if err != nil {
		return domain.RecorderLimits{}, err
	}
	length, err := c.queryValue(ctx, "RecorderLimits", fmt.Sprintf("SPA? 1 0x%X", uint32(ParamRecorderLength)), fmt.Sprintf("1 0x%X", uint32(ParamRecorderLength)))
	if err != nil {
		return domain.RecorderLimits{}, err
	}
	limits := domain.RecorderLimits{
		BufferLength: int(length),
		BaseCycle:    time.Duration(math.Round(cycle * float64(time.Second))),
	}
	if !limits.Valid() {
		return domain.RecorderLimits{}, fmt.Errorf("recorder limits %+v: %w", limits, domain.ErrParameterUnavailable)
	}

	c.mu.Lock()
	c.limits = &limits
	c.mu.Unlock()
	return limits, nil
}

func (c *Controller) SetRecordRate(ctx context.Context, divisor int) error {
	if divisor < 1 {
		return fmt.Errorf("record rate divisor %d: %w", divisor, domain.ErrRejectedValue)
	}
	return c.exec(ctx, "SetRecordRate", fmt.Sprintf("RTR %d", divisor))
}

// MoveRelativeRecorded arms the recorder on the next motion command, then starts the move.
func (c *Controller) MoveRelativeRecorded(ctx context.Context, axis domain.Axis, distance float64) error {
	unlock, err := c.lock("MoveRelativeRecorded")
	if err != nil {
		return err
	}
	defer unlock()

	if err := c.conn.command(ctx, "DRT 0 1 0"); err != nil {
		return err
	}
	if err := c.conn.command(ctx, fmt.Sprintf("MVR %s %s", axis.ID, formatFloat(axis.ToNative(distance)))); err != nil {
		return err
	}
	c.moved = true
	return nil
}

// IsOnTarget reads ONT? and then the error code, so a motion error raised during the move
// is reported as ErrControllerFault rather than "not yet".
func (c *Controller) IsOnTarget(ctx context.Context, axis domain.Axis) (bool, error) {
	unlock, err := c.lock("IsOnTarget")
	if err != nil {
		return false, err
	}
	defer unlock()

	cmd := "ONT? " + axis.ID
	lines, err := c.conn.query(ctx, cmd)
	if err != nil {
		return false, err
	}
	v, err := parseKeyValue(cmd, lines[0], axis.ID)
	if err != nil {
		return false, err
	}
	code, err := c.conn.errorCode(ctx)
	if err != nil {
		return false, err
	}
	if code != CodeNoError {
		return false, &Error{Code: code, Command: cmd}
	}
	return v != 0, nil
}

// Stop halts all axes. The "stopped by command" code it leaves behind is cleared.
func (c *Controller) Stop(ctx context.Context, axis domain.Axis) error {
	err := c.exec(ctx, "Stop", "STP")
	var gcsErr *Error
	if errors.As(err, &gcsErr) && gcsErr.Code == CodeStopped {
		return nil
	}
	return err
}

// RecordedData reads the bound recorder tables of the last move.
func (c *Controller) RecordedData(ctx context.Context) (domain.SampleTrace, error) {
	limits, err := c.RecorderLimits(ctx)
	if err != nil {
		return nil, err
	}

	unlock, err := c.lock("RecordedData")
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !c.moved {
		return domain.SampleTrace{}, nil
	}
	tables := slices.Sorted(func(yield func(int) bool) {
		for t := range c.tables {
			if !yield(t) {
				return
			}
		}
	})
	commanded, actual := -1, -1
	for i, t := range tables {
		switch c.tables[t] {
		case domain.SourceCommandedPosition:
			commanded = i
		case domain.SourceActualPosition:
			actual = i
		}
	}
	if commanded < 0 || actual < 0 {
		return nil, fmt.Errorf("recorder tables for both positions must be configured: %w", domain.ErrParameterUnavailable)
	}

	ids := make([]string, len(tables))
	for i, t := range tables {
		ids[i] = strconv.Itoa(t)
	}
	cmd := fmt.Sprintf("DRR? 1 %d %s", limits.BufferLength, strings.Join(ids, " "))
	lines, err := c.conn.query(ctx, cmd)
	if err != nil {
		return nil, err
	}
	rows, err := parseArray(lines, len(tables))
	if err != nil {
		return nil, communication(cmd, err)
	}

	out := make(domain.SampleTrace, len(rows))
	for i, row := range rows {
		out[i] = domain.SamplePair{Commanded: row[commanded], Actual: row[actual]}
	}
	return out, nil
}

// parseArray decodes the GCS array format: "#" header lines, then one row of columns per line.
func parseArray(lines []string, columns int) ([][]float64, error) {
	var rows [][]float64
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != columns {
			return nil, fmt.Errorf("data row %d: expected %d columns, got %q", len(rows), columns, line)
		}
		row := make([]float64, columns)
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("data row %d: %w", len(rows), err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *Controller) Parameter(ctx context.Context, axis domain.Axis, id domain.ParamID) (float64, error) {
	key := fmt.Sprintf("%s 0x%X", axis.ID, uint32(id))
	return c.queryValue(ctx, "Parameter", "SPA? "+key, key)
}

func (c *Controller) SetParameter(ctx context.Context, axis domain.Axis, id domain.ParamID, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("parameter %s = %g: %w", id, value, domain.ErrRejectedValue)
	}
	return c.exec(ctx, "SetParameter", fmt.Sprintf("SPA %s 0x%X %s", axis.ID, uint32(id), formatFloat(value)))
}

// Close releases the connection. Later calls fail with ErrCommunication.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.conn.rwc.Close(); err != nil {
		return fmt.Errorf("close: %w: %w", domain.ErrCommunication, err)
	}
	return nil
}
