// Package sensors provides a read-only view of hardware telemetry. Each
// provider refreshes its sensor values in place and exposes them as an
// immutable snapshot of readings for the cycle.
package sensors

import (
	"codeberg.org/mutker/hwmond/internal/errors"
	"codeberg.org/mutker/hwmond/internal/logger"
)

// Category identifies the hardware unit a reading belongs to.
type Category uint8

const (
	CategoryCPU Category = iota
	CategoryGPU
)

func (c Category) String() string {
	if c == CategoryGPU {
		return "gpu"
	}
	return "cpu"
}

// Kind identifies what a sensor measures.
type Kind uint8

const (
	KindTemperature Kind = iota
	KindLoad
)

func (k Kind) String() string {
	if k == KindLoad {
		return "load"
	}
	return "temperature"
}

// Reading is one sensor value sampled during a cycle. Valid is false when the
// sensor had no current value; such readings are omitted downstream, never
// treated as zero.
type Reading struct {
	Category Category
	Kind     Kind
	Name     string
	Value    float64
	Valid    bool
}

// Source provides fresh sensor values each cycle. Refresh updates all values
// in place; Snapshot returns the readings from the most recent refresh in a
// stable enumeration order.
type Source interface {
	Refresh() error
	Snapshot() []Reading
	Close() error
}

type multiSource struct {
	providers []Source
}

// Detect assembles a source from the providers available on this machine.
// A provider that cannot be constructed is skipped with a warning; detection
// fails only when no provider is usable at all.
func Detect() (Source, error) {
	errFactory := errors.New()

	var providers []Source

	cpu, err := newHwmonSource()
	if err != nil {
		logger.Warn().Err(err).Msg("CPU sensors unavailable")
	} else {
		providers = append(providers, cpu)
	}

	gpu, err := newNVMLSource()
	if err != nil {
		logger.Warn().Err(err).Msg("GPU sensors unavailable")
	} else {
		providers = append(providers, gpu)
	}

	if len(providers) == 0 {
		return nil, errFactory.New(ErrNoSensors)
	}

	return &multiSource{providers: providers}, nil
}

func (m *multiSource) Refresh() error {
	errFactory := errors.New()

	for _, provider := range m.providers {
		if err := provider.Refresh(); err != nil {
			return errFactory.Wrap(ErrRefreshFailed, err)
		}
	}

	return nil
}

func (m *multiSource) Snapshot() []Reading {
	var readings []Reading
	for _, provider := range m.providers {
		readings = append(readings, provider.Snapshot()...)
	}

	return readings
}

func (m *multiSource) Close() error {
	errFactory := errors.New()

	var firstErr error
	for _, provider := range m.providers {
		if err := provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, firstErr)
	}

	return nil
}
