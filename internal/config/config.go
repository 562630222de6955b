package config

import (
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Defaults applied whenever a setting is missing or unparsable.
const (
	DefaultPort     = "/dev/ttyUSB0"
	DefaultBaudRate = 9600
	DefaultDataBits = 8
	DefaultParity   = "none"
	DefaultStopBits = "one"
	DefaultInterval = 1000
)

// Config holds the daemon settings. It is loaded once at startup and never
// mutated afterwards.
type Config struct {
	// Port is the serial device the telemetry frames are written to.
	Port string
	// BaudRate, DataBits, Parity and StopBits describe the serial framing.
	// Parity is one of none/odd/even/mark/space, StopBits one of
	// one/onepointfive/two.
	BaudRate int
	DataBits int
	Parity   string
	StopBits string
	// Interval is the delay in milliseconds before retrying after a failed
	// cycle. The steady-state cadence between successful cycles is a fixed
	// short poll, not this value.
	Interval int
	Debug    bool
	Verbose  bool
}

// Load reads settings from flags and the config file. A missing or malformed
// entry falls back to its default; bad configuration never fails startup.
func Load() *Config {
	config := &Config{
		Port:     DefaultPort,
		BaudRate: DefaultBaudRate,
		DataBits: DefaultDataBits,
		Parity:   DefaultParity,
		StopBits: DefaultStopBits,
		Interval: DefaultInterval,
	}

	fs := pflag.NewFlagSet("hwmond", pflag.ContinueOnError)
	configFile := fs.String("config", "", "Path to config file")
	fs.String("port", config.Port, "Serial port device")
	fs.Int("baudrate", config.BaudRate, "Serial baud rate")
	fs.Int("interval", config.Interval, "Retry interval after errors (ms)")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	if err := fs.Parse(os.Args[1:]); err != nil {
		// Unknown flags are not a startup failure either.
		fs = pflag.NewFlagSet("hwmond", pflag.ContinueOnError)
	}

	v := viper.New()
	v.SetConfigName("hwmond.conf")
	v.SetConfigType("toml")
	v.AddConfigPath("/etc")
	if path := os.Getenv("HWMOND_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}
	if *configFile != "" {
		v.SetConfigFile(*configFile)
	}

	// A missing or unreadable file leaves every setting at its default.
	_ = v.ReadInConfig()

	// Command line flags override config file values
	fs.Visit(func(f *pflag.Flag) {
		v.Set(f.Name, f.Value.String())
	})

	config.Port = stringSetting(v, "port", config.Port)
	config.BaudRate = positiveSetting(v, "baudrate", config.BaudRate)
	config.DataBits = positiveSetting(v, "databits", config.DataBits)
	config.Parity = enumSetting(v, "parity", config.Parity,
		"none", "odd", "even", "mark", "space")
	config.StopBits = enumSetting(v, "stopbits", config.StopBits,
		"one", "onepointfive", "two")
	config.Interval = positiveSetting(v, "interval", config.Interval)
	config.Debug = v.GetBool("debug")
	config.Verbose = v.GetBool("verbose")

	return config
}

func stringSetting(v *viper.Viper, key, fallback string) string {
	if !v.IsSet(key) {
		return fallback
	}
	if value := strings.TrimSpace(v.GetString(key)); value != "" {
		return value
	}

	return fallback
}

func positiveSetting(v *viper.Viper, key string, fallback int) int {
	if !v.IsSet(key) {
		return fallback
	}
	// GetInt yields 0 for unparsable values, which falls through here.
	if value := v.GetInt(key); value > 0 {
		return value
	}

	return fallback
}

func enumSetting(v *viper.Viper, key, fallback string, allowed ...string) string {
	if !v.IsSet(key) {
		return fallback
	}

	value := strings.ToLower(strings.TrimSpace(v.GetString(key)))
	for _, candidate := range allowed {
		if value == candidate {
			return value
		}
	}

	return fallback
}
