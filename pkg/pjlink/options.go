package pjlink

import (
	"errors"
	"log/slog"
	"time"
)

// Option configures a Session or a Fleet.
type Option func(*options) error

// options holds resolved configuration shared by sessions.
type options struct {
	connectTimeout time.Duration
	readTimeout    time.Duration
	logger         *slog.Logger
}

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		connectTimeout: 5 * time.Second,
		readTimeout:    2 * time.Second,
		logger:         nil,
	}
}

func resolveOptions(opts []Option) (*options, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithConnectTimeout sets the timeout for establishing a connection.
// Default is 5 seconds.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d <= 0 {
			return errors.New("connect timeout must be positive")
		}
		c.connectTimeout = d
		return nil
	}
}

// WithReadTimeout sets the timeout for waiting for a response line.
// Default is 2 seconds.
func WithReadTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d <= 0 {
			return errors.New("read timeout must be positive")
		}
		c.readTimeout = d
		return nil
	}
}

// WithLogger sets a structured logger for debug and error logging.
// By default, no logging is performed.
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		c.logger = logger
		return nil
	}
}
