package logger

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/hwmond/internal/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()

	orig := log
	buf := &bytes.Buffer{}
	log = zerolog.New(buf)
	t.Cleanup(func() { log = orig })

	return buf
}

func TestErrorWithCodeEmitsCodeAndCause(t *testing.T) {
	buf := captureOutput(t)
	errFactory := errors.New()

	err := errFactory.Wrap(errors.ErrOperationFailed, assert.AnError)
	ErrorWithCode(err).Msg("Cycle failed")

	out := buf.String()
	assert.Contains(t, out, `"error_code":"operation_failed"`)
	assert.Contains(t, out, assert.AnError.Error())
	assert.Contains(t, out, "Cycle failed")
}

func TestErrorWithCodeWithoutCause(t *testing.T) {
	buf := captureOutput(t)
	errFactory := errors.New()

	ErrorWithCode(errFactory.New(errors.ErrAlreadyRunning)).Send()

	out := buf.String()
	assert.Contains(t, out, `"error_code":"already_running"`)
	assert.NotContains(t, out, `"error":`)
}
