// Package transport owns the serial line: opening the character device,
// configuring it for the fixed baud the peripherals expect, and blocking
// reads/writes with timeouts (spec §4.1 Transport).
package transport

import (
	"context"
	"fmt"
	"os"
	"time"

	serial "github.com/daedaluz/goserial"

	"github.com/ocx/ssp-bridge/internal/sspproto"
)

// Serial wraps a character device opened for 9600 8N1 communication with
// the cash-handling peripherals.
type Serial struct {
	port *serial.Port
	path string
}

// Open validates that path names a character device, opens it in raw mode
// at 9600 8N1, and returns a ready-to-use Serial.
//
// Errors are the sentinels named in spec §4.1: DeviceNotFound,
// NotACharacterDevice, OpenFailed.
func Open(path string) (*Serial, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", sspproto.ErrDeviceNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", sspproto.ErrOpenFailed, path, err)
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return nil, fmt.Errorf("%w: %s", sspproto.ErrNotCharacterDevice, path)
	}

	port, err := serial.Open(path, serial.NewOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", sspproto.ErrOpenFailed, path, err)
	}
	s := &Serial{port: port, path: path}
	if err := s.configure(); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: %s: %v", sspproto.ErrOpenFailed, path, err)
	}
	return s, nil
}

func (s *Serial) configure() error {
	attrs, err := s.port.GetAttr()
	if err != nil {
		return fmt.Errorf("reading termios: %w", err)
	}
	attrs.MakeRaw()
	attrs.SetSpeed(serial.B9600)
	attrs.Cflag |= serial.CREAD | serial.CLOCAL
	attrs.Cflag &^= serial.CSTOPB | serial.PARENB
	if err := s.port.SetAttr(serial.TCSANOW, attrs); err != nil {
		return fmt.Errorf("setting termios: %w", err)
	}
	return nil
}

// Write blocks until the given bytes are drained onto the wire (spec §4.1:
// "writes block until drained").
func (s *Serial) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// Read blocks for up to timeout waiting for data, returning
// sspproto.ErrReadTimeout if none arrives in time.
func (s *Serial) Read(ctx context.Context, maxBytes int, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, maxBytes)
	n, err := s.port.ReadTimeout(buf, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sspproto.ErrReadTimeout, err)
	}
	if n == 0 {
		return nil, sspproto.ErrReadTimeout
	}
	return buf[:n], nil
}

// Close releases the underlying file descriptor.
func (s *Serial) Close() error {
	return s.port.Close()
}

// Path returns the device path this Serial was opened against, for
// logging.
func (s *Serial) Path() string { return s.path }
