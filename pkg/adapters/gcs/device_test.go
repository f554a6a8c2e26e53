package gcs_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aretw0/pidtune/pkg/adapters/gcs"
	"github.com/aretw0/pidtune/pkg/adapters/sim"
	"github.com/aretw0/pidtune/pkg/domain"
)

// device emulates a GCS controller on one end of a pipe, backed by a simulated axis.
// Positions, velocities and accelerations travel in native units of axis.
type device struct {
	ctrl *sim.Controller
	axis domain.Axis
	conn net.Conn
	w    *bufio.Writer

	mu   sync.Mutex
	log  []string
	code int
}

// startDevice returns the driver end of a pipe served by a new device.
func startDevice(t *testing.T, ctrl *sim.Controller, axis domain.Axis) (net.Conn, *device) {
	t.Helper()
	client, server := net.Pipe()
	d := &device{ctrl: ctrl, axis: axis, conn: server, w: bufio.NewWriter(server)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.serve()
	}()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
		<-done
	})
	return client, d
}

func (d *device) commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.log...)
}

func (d *device) serve() {
	r := bufio.NewReader(d.conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		d.mu.Lock()
		d.log = append(d.log, line)
		d.mu.Unlock()

		answer := d.handle(strings.Fields(line))
		if len(answer) == 0 {
			continue
		}
		for i, a := range answer {
			if i < len(answer)-1 {
				a += " "
			}
			d.w.WriteString(a + "\n")
		}
		if d.w.Flush() != nil {
			return
		}
	}
}

func (d *device) fail(err error) {
	if err == nil || d.code != 0 {
		return
	}
	switch {
	case errors.Is(err, domain.ErrRejectedValue):
		d.code = gcs.CodeOutOfRange
	case errors.Is(err, domain.ErrParameterUnavailable):
		d.code = gcs.CodeUnknownParameter
	default:
		d.code = gcs.CodeMotionError
	}
}

func number(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// handle executes one command and returns the answer lines, if any.
func (d *device) handle(f []string) []string {
	ctx := context.Background()
	if len(f) == 0 {
		return nil
	}
	switch f[0] {
	case "ERR?":
		code := d.code
		d.code = 0
		return []string{strconv.Itoa(code)}
	case "DRC":
		slot, _ := strconv.Atoi(f[1])
		src, _ := strconv.Atoi(f[3])
		d.fail(d.ctrl.SetRecordingConfig(ctx, d.axis, slot, domain.RecordSource(src)))
	case "RTR":
		div, _ := strconv.Atoi(f[1])
		d.fail(d.ctrl.SetRecordRate(ctx, div))
	case "DRT":
	case "VEL", "ACC", "DEC":
		v := d.axis.ToPhysical(number(f[2]))
		switch f[0] {
		case "VEL":
			d.fail(d.ctrl.SetClosedLoopVelocity(ctx, d.axis, v))
		case "ACC":
			d.fail(d.ctrl.SetClosedLoopAcceleration(ctx, d.axis, v))
		default:
			d.fail(d.ctrl.SetClosedLoopDeceleration(ctx, d.axis, v))
		}
	case "VEL?", "ACC?":
		read := d.ctrl.ClosedLoopVelocity
		if f[0] == "ACC?" {
			read = d.ctrl.ClosedLoopAcceleration
		}
		v, err := read(ctx, d.axis)
		if err != nil {
			d.fail(err)
			return nil
		}
		return []string{f[1] + "=" + format(d.axis.ToNative(v))}
	case "MVR":
		d.fail(d.ctrl.MoveRelativeRecorded(ctx, d.axis, d.axis.ToPhysical(number(f[2]))))
	case "ONT?":
		on, err := d.ctrl.IsOnTarget(ctx, d.axis)
		d.fail(err)
		v := 0
		if on {
			v = 1
		}
		return []string{fmt.Sprintf("%s=%d", f[1], v)}
	case "STP":
		d.fail(d.ctrl.Stop(ctx, d.axis))
		d.code = gcs.CodeStopped
	case "SPA?":
		id, _ := strconv.ParseUint(f[2], 0, 32)
		limits, _ := d.ctrl.RecorderLimits(ctx)
		key := f[1] + " " + f[2]
		switch domain.ParamID(id) {
		case gcs.ParamServoCycle:
			return []string{key + "=" + format(limits.BaseCycle.Seconds())}
		case gcs.ParamRecorderLength:
			return []string{key + "=" + strconv.Itoa(limits.BufferLength)}
		}
		v, err := d.ctrl.Parameter(ctx, d.axis, domain.ParamID(id))
		if err != nil {
			d.fail(err)
			return nil
		}
		return []string{key + "=" + format(v)}
	case "SPA":
		id, _ := strconv.ParseUint(f[2], 0, 32)
		d.fail(d.ctrl.SetParameter(ctx, d.axis, domain.ParamID(id), number(f[3])))
	case "DRR?":
		data, err := d.ctrl.RecordedData(ctx)
		if err != nil {
			d.fail(err)
			return nil
		}
		out := []string{"# TYPE = 1", fmt.Sprintf("# NDATA = %d", len(data)), "# END_HEADER"}
		for _, p := range data {
			// Tables 1 and 2 hold the commanded and actual positions.
			out = append(out, format(p.Commanded)+" "+format(p.Actual))
		}
		return out
	default:
		d.code = gcs.CodeUnknownCommand
	}
	return nil
}
