// Package monitor drives the sampling and transmission loop: one worker
// goroutine that keeps the serial transport open, samples hardware telemetry
// and streams one frame per cycle until stopped.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/hwmond/internal/config"
	"codeberg.org/mutker/hwmond/internal/errors"
	"codeberg.org/mutker/hwmond/internal/frame"
	"codeberg.org/mutker/hwmond/internal/logger"
	"codeberg.org/mutker/hwmond/internal/sensors"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultStopWait     = 5 * time.Second
)

// Transport is the connection manager contract the loop drives.
type Transport interface {
	EnsureOpen() bool
	Send(payload []byte) error
	Recover()
	Close()
}

// Monitor owns the single worker goroutine. Start and Stop may be called
// from an interactive entry point or a service manager callback; both
// converge on the same behavior.
type Monitor struct {
	conn   Transport
	source sensors.Source

	pollInterval time.Duration
	backoff      time.Duration
	stopWait     time.Duration

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg *config.Config, conn Transport, source sensors.Source) *Monitor {
	return &Monitor{
		conn:         conn,
		source:       source,
		pollInterval: defaultPollInterval,
		backoff:      time.Duration(cfg.Interval) * time.Millisecond,
		stopWait:     defaultStopWait,
	}
}

// Start launches the worker. At most one worker runs per monitor; starting a
// running monitor is an error.
func (m *Monitor) Start(ctx context.Context) error {
	errFactory := errors.New()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running.Load() {
		return errFactory.New(errors.ErrAlreadyRunning)
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running.Store(true)

	go m.run(ctx, m.done)

	logger.Info().Msg("Monitoring started")

	return nil
}

// Stop signals the worker, waits up to the stop bound for it to exit, then
// releases the transport and the sensor source. Teardown proceeds even if
// the worker missed the bound; shutdown is best-effort, and both closes are
// safe against a worker that has not exited yet. Stop is idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return
	}

	m.running.Store(false)
	m.cancel()
	m.cancel = nil

	select {
	case <-m.done:
	case <-time.After(m.stopWait):
		logger.Warn().Msg("Worker did not exit in time, tearing down anyway")
	}

	m.conn.Close()
	if err := m.source.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close sensor source")
	}

	logger.Info().Msg("Monitoring stopped")
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for m.running.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !m.conn.EnsureOpen() {
			// Fast poll so the loop reacts quickly once the device
			// becomes available.
			if !sleep(ctx, m.pollInterval) {
				return
			}
			continue
		}

		if err := m.cycle(); err != nil {
			var appErr errors.Error
			if errors.As(err, &appErr) {
				logger.ErrorWithCode(appErr).Msg("Cycle failed")
			} else {
				logger.Error().Err(err).Msg("Cycle failed")
			}
			m.conn.Recover()
			// The configured interval paces retries after a failure
			// only; the steady-state cadence is the short poll below.
			if !sleep(ctx, m.backoff) {
				return
			}
			continue
		}

		if !sleep(ctx, m.pollInterval) {
			return
		}
	}
}

// cycle samples the hardware and transmits exactly one frame, or none on
// error.
func (m *Monitor) cycle() error {
	errFactory := errors.New()

	if err := m.source.Refresh(); err != nil {
		return errFactory.Wrap(errors.ErrOperationFailed, err)
	}

	payload := frame.Encode(time.Now(), m.source.Snapshot())

	return m.conn.Send(payload)
}

// sleep waits for d unless the context is cancelled first; it reports
// whether the loop should keep going.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
