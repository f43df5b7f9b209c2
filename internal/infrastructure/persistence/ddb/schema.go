package ddb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/infrastructure/persistence"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// CreateTableInput describes the table. Only attributes used as keys in the
// table or an index are declared.
func CreateTableInput(tableName string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(persistence.PartitionKey), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(persistence.SortKey), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(persistence.PartitionKey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(persistence.SortKey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(persistence.TargetTypeAttribute), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(persistence.TargetIDAttribute), AttributeType: types.ScalarAttributeTypeS},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(persistence.IndexSortKey),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String(persistence.SortKey), KeyType: types.KeyTypeHash},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
			{
				IndexName: aws.String(persistence.IndexSubmissionTarget),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String(persistence.TargetTypeAttribute), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String(persistence.TargetIDAttribute), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}

// EnsureTable probes for the table with DescribeTable and only creates it when
// the probe reports it missing. An existing table is checked against the
// expected schema instead.
func (t *Table) EnsureTable(ctx context.Context) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, t.opts.timeout)
	out, err := t.client.DescribeTable(probeCtx, &dynamodb.DescribeTableInput{TableName: aws.String(t.tableName)})
	cancel()

	if err == nil {
		if err := verifySchema(out.Table); err != nil {
			return false, appErrors.NewInternal("table "+t.tableName+" has an unexpected schema", err)
		}
		return false, nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return false, t.translate("DescribeTable", err)
	}

	t.opts.logger.Info("Creating DynamoDB table", zap.String("table", t.tableName))

	createCtx, cancel := context.WithTimeout(ctx, t.opts.timeout)
	_, err = t.client.CreateTable(createCtx, CreateTableInput(t.tableName))
	cancel()
	if err != nil {
		return false, t.translate("CreateTable", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(t.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.tableName)}, t.opts.createWaitTime); err != nil {
		return true, appErrors.NewStorageUnavailable("waiting for table "+t.tableName, err)
	}
	return true, nil
}

func verifySchema(table *types.TableDescription) error {
	if table == nil {
		return errors.New("no table description")
	}
	if len(table.KeySchema) != 2 {
		return fmt.Errorf("expected composite primary key, got %d key elements", len(table.KeySchema))
	}
	if got := aws.ToString(table.KeySchema[0].AttributeName); got != persistence.PartitionKey {
		return fmt.Errorf("partition key is %s, expected %s", got, persistence.PartitionKey)
	}
	if got := aws.ToString(table.KeySchema[1].AttributeName); got != persistence.SortKey {
		return fmt.Errorf("sort key is %s, expected %s", got, persistence.SortKey)
	}
	if err := verifySecondaryIndex(table, persistence.IndexSortKey, persistence.SortKey, ""); err != nil {
		return err
	}
	return verifySecondaryIndex(table, persistence.IndexSubmissionTarget, persistence.TargetTypeAttribute, persistence.TargetIDAttribute)
}

func verifySecondaryIndex(table *types.TableDescription, indexName, hashKey, rangeKey string) error {
	for _, index := range table.GlobalSecondaryIndexes {
		if aws.ToString(index.IndexName) != indexName {
			continue
		}
		if len(index.KeySchema) == 0 || aws.ToString(index.KeySchema[0].AttributeName) != hashKey {
			return fmt.Errorf("global secondary index %s must be hashed on %s", indexName, hashKey)
		}
		if rangeKey != "" && (len(index.KeySchema) != 2 || aws.ToString(index.KeySchema[1].AttributeName) != rangeKey) {
			return fmt.Errorf("global secondary index %s must have range key %s", indexName, rangeKey)
		}
		if index.Projection == nil || index.Projection.ProjectionType != types.ProjectionTypeAll {
			return fmt.Errorf("global secondary index %s must project all attributes", indexName)
		}
		return nil
	}
	return fmt.Errorf("global secondary index %s not found", indexName)
}
