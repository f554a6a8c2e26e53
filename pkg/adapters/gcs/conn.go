package gcs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

type deadliner interface {
	SetDeadline(t time.Time) error
}

// conn is the line layer. It is not safe for concurrent use; Controller serialises access.
type conn struct {
	rwc     io.ReadWriteCloser
	r       *bufio.Reader
	timeout time.Duration
	logger  *slog.Logger
}

func newConn(rwc io.ReadWriteCloser, timeout time.Duration, logger *slog.Logger) *conn {
	return &conn{
		rwc:     rwc,
		r:       bufio.NewReader(rwc),
		timeout: timeout,
		logger:  logger,
	}
}

// arm applies the earliest of the context deadline and the read timeout, when the
// transport supports deadlines. Serial ports use their own read timeout instead.
func (c *conn) arm(ctx context.Context) {
	d, ok := c.rwc.(deadliner)
	if !ok {
		return
	}
	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = d.SetDeadline(deadline)
}

func (c *conn) send(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.arm(ctx)
	c.logger.Debug("gcs send", "cmd", cmd)
	if _, err := io.WriteString(c.rwc, cmd+"\n"); err != nil {
		return communication(cmd, err)
	}
	return nil
}

// readAnswer reads one answer. Lines of a multi-line answer end with a space, except the last.
func (c *conn) readAnswer(ctx context.Context) ([]string, error) {
	c.arm(ctx)
	var lines []string
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		more := strings.HasSuffix(line, " ")
		lines = append(lines, strings.TrimRight(line, " "))
		if !more {
			return lines, nil
		}
	}
}

func (c *conn) query(ctx context.Context, cmd string) ([]string, error) {
	if err := c.send(ctx, cmd); err != nil {
		return nil, err
	}
	lines, err := c.readAnswer(ctx)
	if err == nil {
		c.logger.Debug("gcs answer", "cmd", cmd, "lines", len(lines))
		return lines, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !isTimeout(err) {
		return nil, communication(cmd, err)
	}

	// Unknown queries get no answer: ask the controller why.
	code, codeErr := c.errorCode(ctx)
	if codeErr != nil {
		return nil, communication(cmd, errors.Join(err, codeErr))
	}
	if code != CodeNoError {
		return nil, &Error{Code: code, Command: cmd}
	}
	return nil, communication(cmd, err)
}

func (c *conn) errorCode(ctx context.Context) (int, error) {
	if err := c.send(ctx, "ERR?"); err != nil {
		return 0, err
	}
	lines, err := c.readAnswer(ctx)
	if err != nil {
		return 0, communication("ERR?", err)
	}
	var code int
	if _, err := fmt.Sscan(lines[0], &code); err != nil {
		return 0, communication("ERR?", fmt.Errorf("malformed answer %q", lines[0]))
	}
	return code, nil
}

// command sends cmd and reports the error code it left behind.
func (c *conn) command(ctx context.Context, cmd string) error {
	if err := c.send(ctx, cmd); err != nil {
		return err
	}
	code, err := c.errorCode(ctx)
	if err != nil {
		return err
	}
	if code != CodeNoError {
		return &Error{Code: code, Command: cmd}
	}
	return nil
}
