package serialport

import "codeberg.org/mutker/hwmond/internal/errors"

const (
	ErrOpenFailed  = errors.ErrorCode("serial_open_failed")
	ErrNotOpen     = errors.ErrorCode("serial_port_not_open")
	ErrWriteFailed = errors.ErrorCode("serial_write_failed")
)
