// Package serialport owns the lifecycle of the serial connection to the
// display device. The transport is inherently unreliable (cable unplugged,
// device busy, timeouts), so every fault is absorbed here and surfaced to the
// caller only as "not ready"; pacing of retries is left to the caller.
package serialport

import (
	"sync"
	"time"

	"codeberg.org/mutker/hwmond/internal/config"
	"codeberg.org/mutker/hwmond/internal/errors"
	"codeberg.org/mutker/hwmond/internal/logger"
	"go.bug.st/serial"
)

const readTimeout = 500 * time.Millisecond

// Port is the subset of serial port behavior the connection manager needs.
type Port interface {
	SetReadTimeout(timeout time.Duration) error
	Write(p []byte) (n int, err error)
	Close() error
}

// allow tests to override the port constructor
var openPort = func(name string, mode *serial.Mode) (Port, error) {
	return serial.Open(name, mode)
}

// Conn manages a single serial connection. It is safe for use by the worker
// goroutine and a shutting-down control path concurrently; Close is
// idempotent.
type Conn struct {
	name string
	mode *serial.Mode

	mu       sync.Mutex
	port     Port
	failures int
}

func New(cfg *config.Config) *Conn {
	return &Conn{
		name: cfg.Port,
		mode: &serial.Mode{
			BaudRate: cfg.BaudRate,
			DataBits: cfg.DataBits,
			Parity:   parityMode(cfg.Parity),
			StopBits: stopBitsMode(cfg.StopBits),
		},
	}
}

// EnsureOpen opens the port with the configured framing if it is not open
// yet. An open failure is an expected condition: it is counted, logged and
// reported as not-ready, never escalated.
func (c *Conn) EnsureOpen() bool {
	errFactory := errors.New()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port != nil {
		return true
	}

	port, err := openPort(c.name, c.mode)
	if err != nil {
		c.failures++
		logger.Debug().
			Err(errFactory.Wrap(ErrOpenFailed, err)).
			Str("port", c.name).
			Int("consecutive_failures", c.failures).
			Msg("Serial port unavailable")

		return false
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		closeDiscard(port, c.name)
		c.failures++
		logger.Debug().
			Err(errFactory.Wrap(ErrOpenFailed, err)).
			Str("port", c.name).
			Msg("Failed to configure serial port")

		return false
	}

	c.port = port
	c.failures = 0
	logger.Info().
		Str("port", c.name).
		Int("baudrate", c.mode.BaudRate).
		Msg("Serial port opened")

	return true
}

// Send writes the whole payload to the open port. A write failure, including
// a timeout from an idle device, is returned for the caller to treat as
// recoverable. The write runs outside the connection lock: a write can wedge
// indefinitely on a flow-controlled device, and closing the handle from
// Recover or Close is what unblocks it, so those must not queue behind the
// write. The interrupted write then surfaces here as an ordinary failure.
func (c *Conn) Send(payload []byte) error {
	errFactory := errors.New()

	c.mu.Lock()
	port := c.port
	c.mu.Unlock()

	if port == nil {
		return errFactory.New(ErrNotOpen)
	}

	written := 0
	for written < len(payload) {
		n, err := port.Write(payload[written:])
		if err != nil {
			c.recordFailure()
			return errFactory.Wrap(ErrWriteFailed, err)
		}
		if n == 0 {
			c.recordFailure()
			return errFactory.WithMessage(ErrWriteFailed, "short write")
		}
		written += n
	}

	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()

	return nil
}

func (c *Conn) recordFailure() {
	c.mu.Lock()
	c.failures++
	c.mu.Unlock()
}

// Recover closes the port after an I/O failure so the next EnsureOpen starts
// from a fresh handle. Close errors are logged and discarded; the port is
// already presumed unhealthy.
func (c *Conn) Recover() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return
	}

	closeDiscard(c.port, c.name)
	c.port = nil
	logger.Debug().Str("port", c.name).Msg("Serial port closed for recovery")
}

// Close releases the port. Safe to call on an already-closed connection and
// safe against a worker that has not observed shutdown yet.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return
	}

	closeDiscard(c.port, c.name)
	c.port = nil
}

// IsOpen reports whether the transport currently holds an open port.
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.port != nil
}

// Failures returns the count of consecutive failures since the last success.
func (c *Conn) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.failures
}

func closeDiscard(port Port, name string) {
	if err := port.Close(); err != nil {
		logger.Warn().Err(err).Str("port", name).Msg("Failed to close serial port")
	}
}

func parityMode(parity string) serial.Parity {
	switch parity {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

func stopBitsMode(stopBits string) serial.StopBits {
	switch stopBits {
	case "onepointfive":
		return serial.OnePointFiveStopBits
	case "two":
		return serial.TwoStopBits
	default:
		return serial.OneStopBit
	}
}
