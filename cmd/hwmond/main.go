package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/hwmond/internal/config"
	"codeberg.org/mutker/hwmond/internal/errors"
	"codeberg.org/mutker/hwmond/internal/logger"
	"codeberg.org/mutker/hwmond/internal/monitor"
	"codeberg.org/mutker/hwmond/internal/pid"
	"codeberg.org/mutker/hwmond/internal/sensors"
	"codeberg.org/mutker/hwmond/internal/serialport"
)

var (
	cfg *config.Config
	mon *monitor.Monitor
)

func init() {
	cfg = config.Load()
	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().
		Str("port", cfg.Port).
		Int("baudrate", cfg.BaudRate).
		Int("interval_ms", cfg.Interval).
		Msg("Config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		fatal(err, "Failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	// Startup construction failures are the only fatal errors; everything
	// inside the loop is retried.
	source, err := sensors.Detect()
	if err != nil {
		fatal(err, "Failed to initialize hardware sensors")
	}

	mon = monitor.New(cfg, serialport.New(cfg), source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mon.Start(ctx); err != nil {
		fatal(err, "Failed to start monitoring")
	}

	waitForSignal()
	mon.Stop()
	logger.Info().Msg("Exiting...")
}

func fatal(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.FatalWithCode(appErr).Msg(msg)
		return
	}
	logger.Fatal().Err(err).Msg(msg)
}

func waitForSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
}
