package persistence

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Recorder receives one observation per storage call.
type Recorder interface {
	RecordDBOperation(operation, table, status string, d time.Duration)
}

// InstrumentedTable logs, times and traces every call.
type InstrumentedTable struct {
	inner     Table
	tableName string
	recorder  Recorder
	tracer    trace.Tracer
	logger    *zap.Logger
}

var _ Table = (*InstrumentedTable)(nil)

// NewInstrumentedTable wraps inner. recorder may be nil.
func NewInstrumentedTable(inner Table, tableName string, recorder Recorder, logger *zap.Logger) *InstrumentedTable {
	return &InstrumentedTable{
		inner:     inner,
		tableName: tableName,
		recorder:  recorder,
		tracer:    otel.Tracer("lumina/persistence"),
		logger:    logger.Named("table"),
	}
}

func (t *InstrumentedTable) Get(ctx context.Context, key Key) (Item, error) {
	return observe(ctx, t, "Get", key.String(), func(ctx context.Context) (Item, error) {
		return t.inner.Get(ctx, key)
	})
}

func (t *InstrumentedTable) Put(ctx context.Context, item Item, cond Condition) error {
	_, err := observe(ctx, t, "Put", KeyOf(item).String(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.inner.Put(ctx, item, cond)
	})
	return err
}

func (t *InstrumentedTable) Delete(ctx context.Context, key Key) (bool, error) {
	return observe(ctx, t, "Delete", key.String(), func(ctx context.Context) (bool, error) {
		return t.inner.Delete(ctx, key)
	})
}

func (t *InstrumentedTable) Update(ctx context.Context, key Key, u Update, cond Condition) (Item, error) {
	return observe(ctx, t, "Update", key.String(), func(ctx context.Context) (Item, error) {
		return t.inner.Update(ctx, key, u, cond)
	})
}

func (t *InstrumentedTable) QueryPartition(ctx context.Context, pk, skPrefix string) ([]Item, error) {
	return observe(ctx, t, "QueryPartition", pk+"|"+skPrefix, func(ctx context.Context) ([]Item, error) {
		return t.inner.QueryPartition(ctx, pk, skPrefix)
	})
}

func (t *InstrumentedTable) QueryIndex(ctx context.Context, q IndexQuery) ([]Item, error) {
	return observe(ctx, t, "QueryIndex", q.IndexName+"|"+q.HashValue, func(ctx context.Context) ([]Item, error) {
		return t.inner.QueryIndex(ctx, q)
	})
}

func (t *InstrumentedTable) EnsureTable(ctx context.Context) (bool, error) {
	return observe(ctx, t, "EnsureTable", t.tableName, t.inner.EnsureTable)
}

func (t *InstrumentedTable) Ping(ctx context.Context) error {
	_, err := observe(ctx, t, "Ping", t.tableName, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.inner.Ping(ctx)
	})
	return err
}

func observe[T any](ctx context.Context, t *InstrumentedTable, operation, target string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := t.tracer.Start(ctx, "dynamodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "dynamodb"),
			attribute.String("db.name", t.tableName),
			attribute.String("db.operation", operation),
		))
	defer span.End()

	start := time.Now()
	result, err := fn(ctx)
	elapsed := time.Since(start)

	status := outcome(err)
	if t.recorder != nil {
		t.recorder.RecordDBOperation(operation, t.tableName, status, elapsed)
	}
	span.SetAttributes(attribute.String("db.outcome", status))

	if status == "error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.logger.Warn("storage call failed",
			zap.String("operation", operation),
			zap.String("target", target),
			zap.Duration("duration", elapsed),
			zap.Error(err))
	} else {
		t.logger.Debug("storage call",
			zap.String("operation", operation),
			zap.String("target", target),
			zap.String("outcome", status),
			zap.Duration("duration", elapsed))
	}
	return result, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrItemNotFound):
		return "not_found"
	case errors.Is(err, ErrConditionFailed):
		return "condition_failed"
	default:
		return "error"
	}
}
