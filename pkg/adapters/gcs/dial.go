package gcs

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/aretw0/pidtune/pkg/domain"
	"go.bug.st/serial"
)

// DefaultBaud is the factory setting of most GCS controllers.
const DefaultBaud = 115200

// Dial opens the transport to a controller. "tcp://host:port" addresses use TCP
// (port 50000 for PI controllers); anything else is a serial device path or port name.
func Dial(address string, baud int, timeout time.Duration) (io.ReadWriteCloser, error) {
	if host, ok := strings.CutPrefix(address, "tcp://"); ok {
		conn, err := net.DialTimeout("tcp", host, timeout)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w: %w", address, domain.ErrCommunication, err)
		}
		return conn, nil
	}

	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(address, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", address, domain.ErrCommunication, err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("open %s: %w: %w", address, domain.ErrCommunication, err)
	}
	return serialPort{port}, nil
}

// Ports lists the serial ports of the host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// serialPort reports an expired read timeout as an error; the serial package returns (0, nil).
type serialPort struct {
	serial.Port
}

func (p serialPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if n == 0 && err == nil {
		return 0, errReadTimeout
	}
	return n, err
}
