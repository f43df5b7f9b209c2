package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// BreakerConfig configures the circuit breaker around the table.
type BreakerConfig struct {
	Name string
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
	// Interval clears the closed-state counts. Zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// FailureRatio and MinRequests decide when to trip.
	FailureRatio float64
	MinRequests  uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "dynamodb",
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  10,
	}
}

// BreakerTable stops calling the table while it keeps failing. Only
// STORAGE_UNAVAILABLE errors count as failures; a missing item or a failed
// condition means the table answered.
type BreakerTable struct {
	inner Table
	cb    *gobreaker.CircuitBreaker
}

var _ Table = (*BreakerTable)(nil)

func NewBreakerTable(inner Table, config BreakerConfig, logger *zap.Logger) *BreakerTable {
	logger = logger.Named("breaker_table")
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !appErrors.IsStorageUnavailable(err)
		},
	}
	return &BreakerTable{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State exposes the breaker state for health reporting.
func (b *BreakerTable) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerTable) Get(ctx context.Context, key Key) (Item, error) {
	return guarded(b, func() (Item, error) { return b.inner.Get(ctx, key) })
}

func (b *BreakerTable) Put(ctx context.Context, item Item, cond Condition) error {
	_, err := guarded(b, func() (struct{}, error) { return struct{}{}, b.inner.Put(ctx, item, cond) })
	return err
}

func (b *BreakerTable) Delete(ctx context.Context, key Key) (bool, error) {
	return guarded(b, func() (bool, error) { return b.inner.Delete(ctx, key) })
}

func (b *BreakerTable) Update(ctx context.Context, key Key, u Update, cond Condition) (Item, error) {
	return guarded(b, func() (Item, error) { return b.inner.Update(ctx, key, u, cond) })
}

func (b *BreakerTable) QueryPartition(ctx context.Context, pk, skPrefix string) ([]Item, error) {
	return guarded(b, func() ([]Item, error) { return b.inner.QueryPartition(ctx, pk, skPrefix) })
}

func (b *BreakerTable) QueryIndex(ctx context.Context, q IndexQuery) ([]Item, error) {
	return guarded(b, func() ([]Item, error) { return b.inner.QueryIndex(ctx, q) })
}

func (b *BreakerTable) EnsureTable(ctx context.Context) (bool, error) {
	return b.inner.EnsureTable(ctx)
}

// Ping bypasses the breaker so health checks see the real table.
func (b *BreakerTable) Ping(ctx context.Context) error {
	return b.inner.Ping(ctx)
}

func guarded[T any](b *BreakerTable, fn func() (T, error)) (T, error) {
	var zero T
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, appErrors.NewStorageUnavailable("storage circuit "+b.cb.Name()+" is "+b.cb.State().String(), err)
	}
	if out == nil {
		return zero, err
	}
	return out.(T), err
}
