package sensors

import (
	"codeberg.org/mutker/hwmond/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	ErrNoSensors     = errors.ErrorCode("sensors_unavailable")
	ErrRefreshFailed = errors.ErrorCode("sensors_refresh_failed")

	ErrGPUInitFailed     = errors.ErrorCode("gpu_init_failed")
	ErrGPUDeviceNotFound = errors.ErrorCode("gpu_device_not_found")
	ErrGPUShutdownFailed = errors.ErrorCode("gpu_shutdown_failed")
)

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e *nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}
