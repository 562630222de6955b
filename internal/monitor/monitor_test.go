package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/hwmond/internal/config"
	"codeberg.org/mutker/hwmond/internal/errors"
	"codeberg.org/mutker/hwmond/internal/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu       sync.Mutex
	ready    bool
	sendErr  error
	ensures  int
	sends    int
	recovers int
	closes   int
	payloads [][]byte
}

func (f *fakeTransport) EnsureOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensures++

	return f.ready
}

func (f *fakeTransport) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	if f.sendErr != nil {
		return f.sendErr
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	f.payloads = append(f.payloads, buf)

	return nil
}

func (f *fakeTransport) Recover() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recovers++
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
}

func (f *fakeTransport) counts() (ensures, sends, recovers, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.ensures, f.sends, f.recovers, f.closes
}

type fakeSource struct {
	mu         sync.Mutex
	readings   []sensors.Reading
	refreshErr error
	refreshes  int
	closes     int
}

func (f *fakeSource) Refresh() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++

	return f.refreshErr
}

func (f *fakeSource) Snapshot() []sensors.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.readings
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++

	return nil
}

func newTestMonitor(transport *fakeTransport, source *fakeSource) *Monitor {
	m := New(&config.Config{Interval: 1000}, transport, source)
	m.pollInterval = time.Millisecond
	// Keep the error backoff far above the test horizon so the pacing
	// asymmetry is observable.
	m.backoff = time.Minute
	m.stopWait = time.Second

	return m
}

func TestNoSendWhileTransportNotReady(t *testing.T) {
	transport := &fakeTransport{ready: false}
	source := &fakeSource{}
	m := newTestMonitor(transport, source)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	// The loop keeps retrying EnsureOpen at the fast-poll interval and
	// never samples or sends.
	assert.Eventually(t, func() bool {
		ensures, _, _, _ := transport.counts()
		return ensures >= 5
	}, time.Second, time.Millisecond)

	_, sends, _, _ := transport.counts()
	assert.Zero(t, sends)
	source.mu.Lock()
	assert.Zero(t, source.refreshes)
	source.mu.Unlock()
}

func TestSendFailureRecoversAndBacksOff(t *testing.T) {
	errFactory := errors.New()
	transport := &fakeTransport{ready: true, sendErr: errFactory.WithMessage(errors.ErrInternal, "write timed out")}
	source := &fakeSource{}
	m := newTestMonitor(transport, source)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.Eventually(t, func() bool {
		_, _, recovers, _ := transport.counts()
		return recovers == 1
	}, time.Second, time.Millisecond)

	// With the backoff far above the test horizon there is no second
	// attempt; the failure throttles the loop.
	time.Sleep(50 * time.Millisecond)
	_, sends, recovers, _ := transport.counts()
	assert.Equal(t, 1, sends)
	assert.Equal(t, 1, recovers)
}

func TestRefreshFailureAbandonsFrame(t *testing.T) {
	errFactory := errors.New()
	transport := &fakeTransport{ready: true}
	source := &fakeSource{refreshErr: errFactory.New(sensors.ErrRefreshFailed)}
	m := newTestMonitor(transport, source)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.Eventually(t, func() bool {
		_, _, recovers, _ := transport.counts()
		return recovers == 1
	}, time.Second, time.Millisecond)

	// No frame was transmitted for the failed cycle.
	_, sends, _, _ := transport.counts()
	assert.Zero(t, sends)
}

func TestSteadyStateUsesFastPoll(t *testing.T) {
	transport := &fakeTransport{ready: true}
	source := &fakeSource{readings: []sensors.Reading{
		{Category: sensors.CategoryCPU, Kind: sensors.KindTemperature, Name: "Core 0", Value: 42.5, Valid: true},
	}}
	m := newTestMonitor(transport, source)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	// Many cycles complete despite the one-minute backoff: the configured
	// interval does not pace the success path.
	assert.Eventually(t, func() bool {
		_, sends, _, _ := transport.counts()
		return sends >= 10
	}, time.Second, time.Millisecond)

	transport.mu.Lock()
	payload := string(transport.payloads[0])
	transport.mu.Unlock()
	assert.Contains(t, payload, "CPU_TEMP:Core 0:42.5C\n")
	assert.Contains(t, payload, "END\n")
}

func TestStartTwiceFails(t *testing.T) {
	transport := &fakeTransport{ready: true}
	m := newTestMonitor(transport, &fakeSource{})

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	err := m.Start(context.Background())

	require.Error(t, err)
	var appErr errors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, errors.ErrAlreadyRunning, appErr.Code())
}

func TestStopIsIdempotent(t *testing.T) {
	transport := &fakeTransport{ready: true}
	source := &fakeSource{}
	m := newTestMonitor(transport, source)

	require.NoError(t, m.Start(context.Background()))

	m.Stop()
	m.Stop()

	_, _, _, closes := transport.counts()
	assert.Equal(t, 1, closes)
	source.mu.Lock()
	assert.Equal(t, 1, source.closes)
	source.mu.Unlock()
}

func TestStopAfterWorkerAlreadyExited(t *testing.T) {
	transport := &fakeTransport{ready: true}
	m := newTestMonitor(transport, &fakeSource{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))

	// Kill the worker from outside, then stop. The wait bound must not be
	// exhausted.
	cancel()
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return within the wait bound")
	}
}

func TestRestartAfterStop(t *testing.T) {
	transport := &fakeTransport{ready: true}
	m := newTestMonitor(transport, &fakeSource{})

	require.NoError(t, m.Start(context.Background()))
	m.Stop()

	require.NoError(t, m.Start(context.Background()))
	m.Stop()
}
