package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the application configuration
type Config struct {
	// SerialPort is the path to the module's serial port (e.g. "/dev/serial0")
	SerialPort string `toml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the module
	BaudRate int `toml:"baud_rate"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `toml:"log_level"`
	// ResponseTimeout bounds a command's synchronous reply
	ResponseTimeout time.Duration `toml:"-"`
	// EventTimeout bounds asynchronous send/receive events
	EventTimeout time.Duration `toml:"-"`
	// JoinTimeout bounds OTAA join completion
	JoinTimeout time.Duration `toml:"-"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.SerialPort = "/dev/serial0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.ResponseTimeout = 5 * time.Second
		c.EventTimeout = 5 * time.Minute
		c.JoinTimeout = 5 * time.Minute
		return nil
	}
}

// WithFile merges values from a TOML configuration file. A missing path is
// not an error; an unreadable or invalid file is.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil
		}
		if _, err := toml.DecodeFile(path, c); err != nil {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv merges values from LORAGW_* environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if v := os.Getenv("LORAGW_SERIAL_PORT"); v != "" {
			c.SerialPort = v
		}
		if v := os.Getenv("LORAGW_BAUD_RATE"); v != "" {
			rate, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("LORAGW_BAUD_RATE: %w", err)
			}
			c.BaudRate = rate
		}
		if v := os.Getenv("LORAGW_LOG_LEVEL"); v != "" {
			c.LogLevel = v
		}
		return nil
	}
}

// WithFlags merges values from explicitly set command line flags
func WithFlags(fs *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				var rate int
				rate, err = strconv.Atoi(f.Value.String())
				if err != nil {
					return
				}
				c.BaudRate = rate
			case "log-level":
				c.LogLevel = f.Value.String()
			case "timeout":
				c.ResponseTimeout, err = time.ParseDuration(f.Value.String())
			case "event-timeout":
				c.EventTimeout, err = time.ParseDuration(f.Value.String())
			case "join-timeout":
				c.JoinTimeout, err = time.ParseDuration(f.Value.String())
			}
		})
		return err
	}
}
