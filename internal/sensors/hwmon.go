package sensors

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/hwmond/internal/errors"
)

// allow tests to point discovery at a fake sysfs/procfs
var (
	hwmonRoot    = "/sys/class/hwmon"
	procStatPath = "/proc/stat"
)

// chips that report CPU package or core temperatures
var cpuChips = map[string]bool{
	"coretemp":    true,
	"k10temp":     true,
	"zenpower":    true,
	"cpu_thermal": true,
}

type tempInput struct {
	name string
	path string
}

// hwmonSource reads CPU temperatures from sysfs hwmon chips and aggregate
// CPU load from /proc/stat.
type hwmonSource struct {
	temps []tempInput

	prevBusy  uint64
	prevTotal uint64
	hasPrev   bool

	readings []Reading
}

func newHwmonSource() (*hwmonSource, error) {
	errFactory := errors.New()

	dirs, err := filepath.Glob(filepath.Join(hwmonRoot, "hwmon*"))
	if err != nil {
		return nil, errFactory.Wrap(ErrNoSensors, err)
	}

	var temps []tempInput
	for _, dir := range dirs {
		chip, err := readTrimmed(filepath.Join(dir, "name"))
		if err != nil || !cpuChips[chip] {
			continue
		}

		inputs, _ := filepath.Glob(filepath.Join(dir, "temp*_input"))
		for _, input := range inputs {
			name, err := readTrimmed(strings.TrimSuffix(input, "_input") + "_label")
			if err != nil || name == "" {
				name = strings.TrimSuffix(filepath.Base(input), "_input")
			}
			temps = append(temps, tempInput{name: name, path: input})
		}
	}

	if len(temps) == 0 {
		if _, err := os.Stat(procStatPath); err != nil {
			return nil, errFactory.New(ErrNoSensors)
		}
	}

	return &hwmonSource{temps: temps}, nil
}

func (s *hwmonSource) Refresh() error {
	readings := make([]Reading, 0, len(s.temps)+1)

	for _, sensor := range s.temps {
		reading := Reading{
			Category: CategoryCPU,
			Kind:     KindTemperature,
			Name:     sensor.name,
		}
		if raw, err := readTrimmed(sensor.path); err == nil {
			// Values are reported in millidegrees Celsius.
			if milli, err := strconv.ParseFloat(raw, 64); err == nil {
				reading.Value = milli / 1000
				reading.Valid = true
			}
		}
		readings = append(readings, reading)
	}

	load := Reading{
		Category: CategoryCPU,
		Kind:     KindLoad,
		Name:     "Total",
	}
	if busy, total, err := readCPUTimes(); err == nil {
		// Load is a delta between refreshes; the first sample has no
		// reference point and stays absent.
		if s.hasPrev && total > s.prevTotal {
			load.Value = float64(busy-s.prevBusy) / float64(total-s.prevTotal) * 100
			load.Valid = true
		}
		s.prevBusy = busy
		s.prevTotal = total
		s.hasPrev = true
	}
	readings = append(readings, load)

	s.readings = readings

	return nil
}

func (s *hwmonSource) Snapshot() []Reading {
	snapshot := make([]Reading, len(s.readings))
	copy(snapshot, s.readings)

	return snapshot
}

func (*hwmonSource) Close() error {
	return nil
}

func readCPUTimes() (busy, total uint64, err error) {
	data, err := os.ReadFile(procStatPath)
	if err != nil {
		return 0, 0, err
	}

	line, _, _ := strings.Cut(string(data), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, os.ErrInvalid
	}

	var idle uint64
	for i, field := range fields[1:] {
		value, parseErr := strconv.ParseUint(field, 10, 64)
		if parseErr != nil {
			return 0, 0, parseErr
		}
		total += value
		// fields 4 and 5 are idle and iowait
		if i == 3 || i == 4 {
			idle += value
		}
	}

	return total - idle, total, nil
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}
