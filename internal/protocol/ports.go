package protocol

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultBaud is the rate the device streams screen updates at.
const DefaultBaud = 38400

// readTimeout bounds a single port read. A timeout is "no data this tick",
// not an error.
const readTimeout = 500 * time.Millisecond

// ErrConnectionLost reports that the serial device went away mid-stream.
var ErrConnectionLost = errors.New("serial connection lost")

// PortInfo describes an enumerated serial port.
type PortInfo struct {
	Name        string
	Description string
	IsUSB       bool
}

// ListPorts enumerates serial ports, USB devices first.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	var usb, other []PortInfo
	for _, d := range details {
		info := PortInfo{Name: d.Name, IsUSB: d.IsUSB}
		if d.IsUSB {
			info.Description = strings.TrimSpace(d.Product)
			if info.Description == "" {
				info.Description = fmt.Sprintf("USB %s:%s", d.VID, d.PID)
			}
			usb = append(usb, info)
			continue
		}
		other = append(other, info)
	}
	return append(usb, other...), nil
}

// Port is a readable serial connection.
type Port struct {
	inner serial.Port
}

// OpenPort opens a serial port for reading screen updates.
func OpenPort(name string, baud int) (*Port, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	// macOS exposes both cu.* and tty.*; the device only streams on tty.*.
	if strings.HasPrefix(name, "/dev/cu.") {
		name = "/dev/tty." + strings.TrimPrefix(name, "/dev/cu.")
	}
	inner, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	if err := inner.SetReadTimeout(readTimeout); err != nil {
		if cerr := inner.Close(); cerr != nil {
			// Best-effort close on setup failure.
			_ = cerr
		}
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	return &Port{inner: inner}, nil
}

// Read implements io.Reader. A read timeout returns (0, nil); a device
// disappearance returns ErrConnectionLost.
func (p *Port) Read(b []byte) (int, error) {
	n, err := p.inner.Read(b)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, ErrConnectionLost
		}
		return n, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return n, nil
}

// Close closes the underlying port.
func (p *Port) Close() error {
	return p.inner.Close()
}
