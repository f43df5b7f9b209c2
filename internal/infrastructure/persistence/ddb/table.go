// Package ddb implements persistence.Table on Amazon DynamoDB using the AWS
// SDK for Go v2.
package ddb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/newtheatre/lumina/internal/infrastructure/persistence"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// API is the subset of the DynamoDB client used by Table. Tests inject a mock.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Table is the DynamoDB implementation of persistence.Table. It is safe for
// concurrent use; the only state is the shared client.
type Table struct {
	client    API
	tableName string
	opts      *Options
}

var _ persistence.Table = (*Table)(nil)

// NewTable creates a Table for tableName.
func NewTable(client API, tableName string, opts ...Option) (*Table, error) {
	options := newOptions()
	for _, o := range opts {
		o(options)
	}
	if err := options.validate(); err != nil {
		return nil, fmt.Errorf("invalid DynamoDB options: %w", err)
	}
	if client == nil {
		return nil, errors.New("DynamoDB client is required")
	}
	if tableName == "" {
		return nil, errors.New("table name is required")
	}
	return &Table{client: client, tableName: tableName, opts: options}, nil
}

// Name returns the physical table name.
func (t *Table) Name() string {
	return t.tableName
}

func (t *Table) Get(ctx context.Context, key persistence.Key) (persistence.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, t.opts.timeout)
	defer cancel()

	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.tableName),
		Key:       key.KeyItem(),
	})
	if err != nil {
		return nil, t.translate("GetItem", err)
	}
	if len(out.Item) == 0 {
		return nil, persistence.ErrItemNotFound
	}
	return out.Item, nil
}

func (t *Table) Put(ctx context.Context, item persistence.Item, cond persistence.Condition) error {
	input := &dynamodb.PutItemInput{
		TableName: aws.String(t.tableName),
		Item:      item,
	}
	if !cond.IsZero() {
		c, ok := buildCondition(cond)
		if ok {
			expr, err := expression.NewBuilder().WithCondition(c).Build()
			if err != nil {
				return appErrors.NewInternal("build put condition", err)
			}
			input.ConditionExpression = expr.Condition()
			input.ExpressionAttributeNames = expr.Names()
			input.ExpressionAttributeValues = expr.Values()
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.timeout)
	defer cancel()

	if _, err := t.client.PutItem(ctx, input); err != nil {
		return t.translate("PutItem", err)
	}
	return nil
}

func (t *Table) Delete(ctx context.Context, key persistence.Key) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.opts.timeout)
	defer cancel()

	// ALL_OLD returns the removed item, which is how we know something was deleted.
	out, err := t.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(t.tableName),
		Key:          key.KeyItem(),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, t.translate("DeleteItem", err)
	}
	return len(out.Attributes) > 0, nil
}

func (t *Table) Update(ctx context.Context, key persistence.Key, u persistence.Update, cond persistence.Condition) (persistence.Item, error) {
	if len(u.Set) == 0 && len(u.Remove) == 0 {
		return nil, appErrors.NewInternal("empty update for "+key.String(), nil)
	}

	var update expression.UpdateBuilder
	for name, v := range u.Set {
		update = update.Set(expression.Name(name), expression.Value(v))
	}
	for _, name := range u.Remove {
		update = update.Remove(expression.Name(name))
	}
	builder := expression.NewBuilder().WithUpdate(update)
	if c, ok := buildCondition(cond); ok {
		builder = builder.WithCondition(c)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, appErrors.NewInternal("build update expression", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.timeout)
	defer cancel()

	out, err := t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.tableName),
		Key:                       key.KeyItem(),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, t.translate("UpdateItem", err)
	}
	return out.Attributes, nil
}

func (t *Table) QueryPartition(ctx context.Context, pk, skPrefix string) ([]persistence.Item, error) {
	keyCond := expression.Key(persistence.PartitionKey).Equal(expression.Value(pk))
	if skPrefix != "" {
		keyCond = keyCond.And(expression.Key(persistence.SortKey).BeginsWith(skPrefix))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, appErrors.NewInternal("build partition query", err)
	}
	return t.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(t.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
}

func (t *Table) QueryIndex(ctx context.Context, q persistence.IndexQuery) ([]persistence.Item, error) {
	keyCond := expression.Key(q.HashAttribute).Equal(expression.Value(q.HashValue))
	if q.RangeAttribute != "" {
		keyCond = keyCond.And(expression.Key(q.RangeAttribute).Equal(expression.Value(q.RangeValue)))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, appErrors.NewInternal("build index query", err)
	}
	return t.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(t.tableName),
		IndexName:                 aws.String(q.IndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
}

// query reads every page. The timeout covers the whole scan of pages.
func (t *Table) query(ctx context.Context, input *dynamodb.QueryInput) ([]persistence.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, t.opts.timeout)
	defer cancel()

	var items []persistence.Item
	paginator := dynamodb.NewQueryPaginator(t.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, t.translate("Query", err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func (t *Table) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.opts.timeout)
	defer cancel()

	if _, err := t.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.tableName)}); err != nil {
		return t.translate("DescribeTable", err)
	}
	return nil
}

func buildCondition(cond persistence.Condition) (expression.ConditionBuilder, bool) {
	var conds []expression.ConditionBuilder
	if cond.RequireExists {
		conds = append(conds, expression.AttributeExists(expression.Name(persistence.PartitionKey)))
	}
	if cond.RequireNotExists {
		conds = append(conds,
			expression.AttributeNotExists(expression.Name(persistence.PartitionKey)),
			expression.AttributeNotExists(expression.Name(persistence.SortKey)))
	}
	for _, name := range cond.RequireAbsent {
		conds = append(conds, expression.AttributeNotExists(expression.Name(name)))
	}

	switch len(conds) {
	case 0:
		return expression.ConditionBuilder{}, false
	case 1:
		return conds[0], true
	default:
		return expression.And(conds[0], conds[1], conds[2:]...), true
	}
}
