package persistence

import "go.uber.org/zap"

// ChainConfig selects the decorators applied by Decorate.
type ChainConfig struct {
	TableName     string
	EnableRetries bool
	Retry         RetryConfig
	EnableBreaker bool
	Breaker       BreakerConfig
	Recorder      Recorder
}

// Decorate applies the configured decorators to base.
// Order: Base -> Retry -> Circuit Breaker -> Instrumentation
func Decorate(base Table, config ChainConfig, logger *zap.Logger) Table {
	decorated := base

	if config.EnableRetries {
		decorated = NewRetryTable(decorated, config.Retry, logger)
		logger.Debug("Applied retry decorator to table")
	}
	if config.EnableBreaker {
		decorated = NewBreakerTable(decorated, config.Breaker, logger)
		logger.Debug("Applied circuit breaker decorator to table")
	}
	return NewInstrumentedTable(decorated, config.TableName, config.Recorder, logger)
}
