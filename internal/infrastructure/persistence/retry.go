package persistence

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// RetryConfig configures retry behavior for storage calls.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns the production retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// RetryTable retries STORAGE_UNAVAILABLE failures with exponential backoff
// and jitter. Writes whose outcome depends on the previous state (create-only
// puts, updates requiring absent attributes, deletes reporting what they
// removed) are never retried: a lost response would turn a success into a
// false conflict.
type RetryTable struct {
	inner  Table
	config RetryConfig
	logger *zap.Logger
}

var _ Table = (*RetryTable)(nil)

func NewRetryTable(inner Table, config RetryConfig, logger *zap.Logger) *RetryTable {
	return &RetryTable{inner: inner, config: config, logger: logger.Named("retry_table")}
}

func (r *RetryTable) Get(ctx context.Context, key Key) (Item, error) {
	return withRetry(ctx, r, "Get", true, func() (Item, error) {
		return r.inner.Get(ctx, key)
	})
}

func (r *RetryTable) Put(ctx context.Context, item Item, cond Condition) error {
	_, err := withRetry(ctx, r, "Put", !cond.RequireNotExists && len(cond.RequireAbsent) == 0, func() (struct{}, error) {
		return struct{}{}, r.inner.Put(ctx, item, cond)
	})
	return err
}

func (r *RetryTable) Delete(ctx context.Context, key Key) (bool, error) {
	return withRetry(ctx, r, "Delete", false, func() (bool, error) {
		return r.inner.Delete(ctx, key)
	})
}

func (r *RetryTable) Update(ctx context.Context, key Key, u Update, cond Condition) (Item, error) {
	return withRetry(ctx, r, "Update", !cond.RequireNotExists && len(cond.RequireAbsent) == 0, func() (Item, error) {
		return r.inner.Update(ctx, key, u, cond)
	})
}

func (r *RetryTable) QueryPartition(ctx context.Context, pk, skPrefix string) ([]Item, error) {
	return withRetry(ctx, r, "QueryPartition", true, func() ([]Item, error) {
		return r.inner.QueryPartition(ctx, pk, skPrefix)
	})
}

func (r *RetryTable) QueryIndex(ctx context.Context, q IndexQuery) ([]Item, error) {
	return withRetry(ctx, r, "QueryIndex", true, func() ([]Item, error) {
		return r.inner.QueryIndex(ctx, q)
	})
}

// EnsureTable waits on its own; it is passed straight through.
func (r *RetryTable) EnsureTable(ctx context.Context) (bool, error) {
	return r.inner.EnsureTable(ctx)
}

func (r *RetryTable) Ping(ctx context.Context) error {
	_, err := withRetry(ctx, r, "Ping", true, func() (struct{}, error) {
		return struct{}{}, r.inner.Ping(ctx)
	})
	return err
}

func withRetry[T any](ctx context.Context, r *RetryTable, operation string, idempotent bool, fn func() (T, error)) (T, error) {
	maxRetries := r.config.MaxRetries
	if !idempotent {
		maxRetries = 0
	}

	var (
		result T
		err    error
	)
	for attempt := 0; ; attempt++ {
		result, err = fn()
		if err == nil {
			if attempt > 0 {
				r.logger.Info("operation succeeded after retry",
					zap.String("operation", operation),
					zap.Int("attempt", attempt))
			}
			return result, nil
		}
		if attempt >= maxRetries || !appErrors.IsStorageUnavailable(err) {
			return result, err
		}

		delay := r.delay(attempt)
		r.logger.Warn("retrying operation",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return result, appErrors.NewStorageUnavailable(fmt.Sprintf("%s cancelled during retry", operation), ctx.Err())
		}
	}
}

func (r *RetryTable) delay(attempt int) time.Duration {
	base := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt))
	if limit := float64(r.config.MaxDelay); limit > 0 && base > limit {
		base = limit
	}
	jitter := r.config.JitterFactor * base * (rand.Float64()*2 - 1)
	if d := base + jitter; d > 0 {
		return time.Duration(d)
	}
	return 0
}
