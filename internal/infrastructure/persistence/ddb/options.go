package ddb

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// Option is a functional option for configuring a Table.
type Option func(*Options)

// Options holds the configuration for a Table.
type Options struct {
	timeout        time.Duration
	createWaitTime time.Duration
	logger         *zap.Logger
}

func newOptions() *Options {
	return &Options{
		timeout:        5 * time.Second,
		createWaitTime: 2 * time.Minute,
		logger:         zap.NewNop(),
	}
}

func (o *Options) validate() error {
	if o.timeout <= 0 {
		return errors.New("timeout must be greater than zero")
	}
	if o.createWaitTime <= 0 {
		return errors.New("create wait time must be greater than zero")
	}
	if o.logger == nil {
		return errors.New("logger must not be nil")
	}
	return nil
}

// WithTimeout bounds every call to DynamoDB. The default is 5 seconds.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.timeout = d
	}
}

// WithCreateWaitTime bounds how long EnsureTable waits for a new table to
// become active. The default is 2 minutes.
func WithCreateWaitTime(d time.Duration) Option {
	return func(o *Options) {
		o.createWaitTime = d
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}
