package ddb

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/infrastructure/persistence"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// translate maps a DynamoDB SDK error onto the storage error taxonomy.
// Conditional check failures become persistence.ErrConditionFailed; request
// shape errors are INTERNAL; everything else is STORAGE_UNAVAILABLE.
func (t *Table) translate(op string, err error) error {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return persistence.ErrConditionFailed
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		t.opts.logger.Warn("DynamoDB call timed out", zap.String("operation", op), zap.String("table", t.tableName), zap.Error(err))
		return appErrors.NewStorageUnavailable(op+" timed out", err)
	}

	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		t.opts.logger.Error("DynamoDB table or index missing", zap.String("operation", op), zap.String("table", t.tableName), zap.Error(err))
		return appErrors.NewStorageUnavailable(op+": table "+t.tableName+" not found", err)
	}

	if isRequestError(err) {
		t.opts.logger.Error("DynamoDB rejected request", zap.String("operation", op), zap.String("table", t.tableName), zap.Error(err))
		return appErrors.NewInternal(op+" rejected", err)
	}

	if isThrottle(err) {
		t.opts.logger.Warn("DynamoDB throttled", zap.String("operation", op), zap.String("table", t.tableName), zap.Error(err))
		return appErrors.NewStorageUnavailable(op+" throttled", err)
	}

	t.opts.logger.Warn("DynamoDB call failed", zap.String("operation", op), zap.String("table", t.tableName), zap.Error(err))
	return appErrors.NewStorageUnavailable(op+" failed", err)
}

// isRequestError reports errors caused by the request itself, which will fail
// again on retry.
func isRequestError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ValidationException", "SerializationException", "AccessDeniedException", "UnrecognizedClientException":
		return true
	}
	return false
}

// isThrottle reports capacity errors.
func isThrottle(err error) bool {
	var (
		throughput *types.ProvisionedThroughputExceededException
		limit      *types.RequestLimitExceeded
	)
	if errors.As(err, &throughput) || errors.As(err, &limit) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "Throttling":
			return true
		}
	}
	return false
}
