package sensors

import (
	"codeberg.org/mutker/hwmond/internal/errors"
	"codeberg.org/mutker/hwmond/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlSource reads temperature and utilization of the first NVIDIA GPU.
type nvmlSource struct {
	device   nvml.Device
	readings []Reading
}

func newNVMLSource() (*nvmlSource, error) {
	errFactory := errors.New()

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, errFactory.Wrap(ErrGPUInitFailed, newNVMLError(ret))
	}

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS || count == 0 {
		_ = nvml.Shutdown()
		return nil, errFactory.Wrap(ErrGPUDeviceNotFound, newNVMLError(ret))
	}

	device, ret := nvml.DeviceGetHandleByIndex(0)
	if ret != nvml.SUCCESS {
		_ = nvml.Shutdown()
		return nil, errFactory.Wrap(ErrGPUDeviceNotFound, newNVMLError(ret))
	}

	if name, ret := device.GetName(); ret == nvml.SUCCESS {
		logger.Info().Msgf("Detected GPU: %v", name)
	}

	return &nvmlSource{device: device}, nil
}

func (s *nvmlSource) Refresh() error {
	// A failed read means the sensor has no current value this cycle, not a
	// dead source.
	temp, tempRet := s.device.GetTemperature(nvml.TEMPERATURE_GPU)
	util, utilRet := s.device.GetUtilizationRates()

	s.readings = []Reading{
		{
			Category: CategoryGPU,
			Kind:     KindTemperature,
			Name:     "Core",
			Value:    float64(temp),
			Valid:    tempRet == nvml.SUCCESS,
		},
		{
			Category: CategoryGPU,
			Kind:     KindLoad,
			Name:     "Core",
			Value:    float64(util.Gpu),
			Valid:    utilRet == nvml.SUCCESS,
		},
	}

	return nil
}

func (s *nvmlSource) Snapshot() []Reading {
	snapshot := make([]Reading, len(s.readings))
	copy(snapshot, s.readings)

	return snapshot
}

func (s *nvmlSource) Close() error {
	errFactory := errors.New()

	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return errFactory.Wrap(ErrGPUShutdownFailed, newNVMLError(ret))
	}

	return nil
}
