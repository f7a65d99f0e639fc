package rak811

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Resetter drives the module's hardware reset line. The RAK811 needs a
// hard reset after a module restart; how the line is wired (GPIO pin,
// relay, nothing at all on an emulator) is the caller's business.
type Resetter interface {
	HardReset(ctx context.Context) error
}

// Config holds the session configuration settings.
type Config struct {
	dialer   Dialer
	resetter Resetter
	// responseTimeout bounds the synchronous OK/ERROR reply of a command.
	// The module typically answers in under 1.5 seconds.
	responseTimeout time.Duration
	// eventTimeout bounds the asynchronous follow-up of send operations.
	// With high spreading factors the module may defer transmissions to
	// respect the duty cycle, so this is generous.
	eventTimeout time.Duration
	// joinTimeout bounds the asynchronous completion of an OTAA join.
	joinTimeout time.Duration
	// eventSettle is how long the line must stay quiet before an event
	// burst is considered complete.
	eventSettle time.Duration
	initTimeout time.Duration
	logger      *slog.Logger
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.responseTimeout == 0 {
		c.responseTimeout = 5 * time.Second
	}
	if c.eventTimeout == 0 {
		c.eventTimeout = 5 * time.Minute
	}
	if c.joinTimeout == 0 {
		c.joinTimeout = 5 * time.Minute
	}
	if c.eventSettle == 0 {
		c.eventSettle = 100 * time.Millisecond
	}
	if c.initTimeout == 0 {
		c.initTimeout = 30 * time.Second
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

func (b *ConfigBuilder) WithResetter(r Resetter) *ConfigBuilder {
	b.config.resetter = r
	return b
}

func (b *ConfigBuilder) WithResponseTimeout(d time.Duration) *ConfigBuilder {
	b.config.responseTimeout = d
	return b
}

func (b *ConfigBuilder) WithEventTimeout(d time.Duration) *ConfigBuilder {
	b.config.eventTimeout = d
	return b
}

func (b *ConfigBuilder) WithJoinTimeout(d time.Duration) *ConfigBuilder {
	b.config.joinTimeout = d
	return b
}

func (b *ConfigBuilder) WithEventSettle(d time.Duration) *ConfigBuilder {
	b.config.eventSettle = d
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.initTimeout = d
	return b
}

// WithLogger enables raw line tracing at debug level.
func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.config.validate(); err != nil {
		return Config{}, err
	}
	config := b.config
	config.setDefaults()
	return config, nil
}
