package app

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"
)

// Config holds all configurable parameters for the application.
type Config struct {
	RootDir   string
	Port      int
	TraceSize int
	LogLevel  string
	LogFormat string // "text" or "json"

	RateLimiterTTL  time.Duration
	WatcherDebounce time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Engine string // "" = jsonata, "expr"

	PlatformURL      string
	PlatformTenant   string
	PlatformUser     string
	PlatformPassword string
	PlatformTimeout  time.Duration
	SendRate         float64 // requests per second per target API, 0 = unlimited
	SendBurst        int

	BrokerURL      string
	BrokerClientID string
	BrokerUser     string
	BrokerPassword string
	Workers        int
	QueueSize      int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		RootDir:   "./mappings",
		Port:      8080,
		TraceSize: 200,
		LogLevel:  "info",
		LogFormat: "text",

		RateLimiterTTL:  10 * time.Minute,
		WatcherDebounce: 500 * time.Millisecond,

		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,

		PlatformTimeout: 30 * time.Second,
		SendBurst:       10,

		BrokerClientID: "mapforge",
		Workers:        4,
		QueueSize:      100,
	}
}

var brokerSchemes = []string{"tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss"}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.RootDir == "" {
		errs = append(errs, errors.New("root directory is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("queue size must not be negative, got %d", c.QueueSize))
	}
	if c.SendRate < 0 {
		errs = append(errs, fmt.Errorf("send rate must not be negative, got %g", c.SendRate))
	}
	if c.PlatformURL != "" {
		if u, err := url.Parse(c.PlatformURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("platform URL %q must be an absolute http(s) URL", c.PlatformURL))
		}
	}
	if c.BrokerURL != "" {
		if u, err := url.Parse(c.BrokerURL); err != nil || !slices.Contains(brokerSchemes, u.Scheme) || u.Host == "" {
			errs = append(errs, fmt.Errorf("broker URL %q must be one of %v with a host", c.BrokerURL, brokerSchemes))
		}
	}
	return errors.Join(errs...)
}
