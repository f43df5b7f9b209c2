package ddb

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtheatre/lumina/internal/infrastructure/persistence"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// mockAPI is a mock implementation of API for testing.
type mockAPI struct {
	getItemFunc       func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	putItemFunc       func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	deleteItemFunc    func(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	updateItemFunc    func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	queryFunc         func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	describeTableFunc func(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	createTableFunc   func(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

func (m *mockAPI) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getItemFunc != nil {
		return m.getItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockAPI) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putItemFunc != nil {
		return m.putItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockAPI) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.deleteItemFunc != nil {
		return m.deleteItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockAPI) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if m.updateItemFunc != nil {
		return m.updateItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockAPI) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, params, optFns...)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockAPI) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.describeTableFunc != nil {
		return m.describeTableFunc(ctx, params, optFns...)
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func (m *mockAPI) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if m.createTableFunc != nil {
		return m.createTableFunc(ctx, params, optFns...)
	}
	return &dynamodb.CreateTableOutput{}, nil
}

const testTable = "LuminaMember-test"

func newTestTable(t *testing.T, api API) *Table {
	t.Helper()
	table, err := NewTable(api, testTable, WithTimeout(time.Second))
	require.NoError(t, err)
	return table
}

var fredKey = persistence.Key{PartitionKey: "fred_bloggs", SortKey: persistence.SortKeyProfile}

func TestNewTableValidation(t *testing.T) {
	_, err := NewTable(nil, testTable)
	assert.Error(t, err)

	_, err = NewTable(&mockAPI{}, "")
	assert.Error(t, err)

	_, err = NewTable(&mockAPI{}, testTable, WithTimeout(0))
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		api := &mockAPI{
			getItemFunc: func(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
				assert.Equal(t, testTable, aws.ToString(params.TableName))
				assert.Equal(t, fredKey, persistence.KeyOf(params.Key))
				return &dynamodb.GetItemOutput{Item: fredKey.KeyItem()}, nil
			},
		}
		item, err := newTestTable(t, api).Get(context.Background(), fredKey)
		require.NoError(t, err)
		assert.Equal(t, fredKey, persistence.KeyOf(item))
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := newTestTable(t, &mockAPI{}).Get(context.Background(), fredKey)
		assert.ErrorIs(t, err, persistence.ErrItemNotFound)
	})

	t.Run("CallIsBounded", func(t *testing.T) {
		api := &mockAPI{
			getItemFunc: func(ctx context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
				_, ok := ctx.Deadline()
				assert.True(t, ok, "every call should carry a deadline")
				return nil, context.DeadlineExceeded
			},
		}
		_, err := newTestTable(t, api).Get(context.Background(), fredKey)
		assert.True(t, appErrors.IsStorageUnavailable(err))
	})
}

func TestPutCondition(t *testing.T) {
	t.Run("Unconditional", func(t *testing.T) {
		api := &mockAPI{
			putItemFunc: func(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
				assert.Nil(t, params.ConditionExpression)
				return &dynamodb.PutItemOutput{}, nil
			},
		}
		require.NoError(t, newTestTable(t, api).Put(context.Background(), fredKey.KeyItem(), persistence.Condition{}))
	})

	t.Run("CreateOnly", func(t *testing.T) {
		api := &mockAPI{
			putItemFunc: func(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
				require.NotNil(t, params.ConditionExpression)
				assert.Contains(t, *params.ConditionExpression, "attribute_not_exists")
				names := make([]string, 0, len(params.ExpressionAttributeNames))
				for _, n := range params.ExpressionAttributeNames {
					names = append(names, n)
				}
				assert.ElementsMatch(t, []string{"pk", "sk"}, names)
				return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
			},
		}
		err := newTestTable(t, api).Put(context.Background(), fredKey.KeyItem(), persistence.Condition{RequireNotExists: true})
		assert.ErrorIs(t, err, persistence.ErrConditionFailed)
	})
}

func TestDeleteAsksForOldValues(t *testing.T) {
	tests := []struct {
		name     string
		old      map[string]types.AttributeValue
		expected bool
	}{
		{"ItemRemoved", fredKey.KeyItem(), true},
		{"NothingThere", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{
				deleteItemFunc: func(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
					assert.Equal(t, types.ReturnValueAllOld, params.ReturnValues)
					return &dynamodb.DeleteItemOutput{Attributes: tt.old}, nil
				},
			}
			deleted, err := newTestTable(t, api).Delete(context.Background(), fredKey)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, deleted)
		})
	}
}

func TestUpdate(t *testing.T) {
	t.Run("BuildsExpressions", func(t *testing.T) {
		api := &mockAPI{
			updateItemFunc: func(_ context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
				require.NotNil(t, params.UpdateExpression)
				assert.True(t, strings.HasPrefix(*params.UpdateExpression, "SET"), *params.UpdateExpression)
				assert.Contains(t, *params.UpdateExpression, "REMOVE")
				require.NotNil(t, params.ConditionExpression)
				assert.Contains(t, *params.ConditionExpression, "attribute_exists")
				assert.Contains(t, *params.ConditionExpression, "attribute_not_exists")
				assert.Equal(t, types.ReturnValueAllNew, params.ReturnValues)
				return &dynamodb.UpdateItemOutput{Attributes: fredKey.KeyItem()}, nil
			},
		}
		item, err := newTestTable(t, api).Update(context.Background(), fredKey, persistence.Update{
			Set:    map[string]interface{}{"email_verified_at": "2024-01-01T00:00:00Z"},
			Remove: []string{"phone"},
		}, persistence.Condition{RequireExists: true, RequireAbsent: []string{"email_verified_at"}})
		require.NoError(t, err)
		assert.Equal(t, fredKey, persistence.KeyOf(item))
	})

	t.Run("EmptyUpdateRejected", func(t *testing.T) {
		_, err := newTestTable(t, &mockAPI{}).Update(context.Background(), fredKey, persistence.Update{}, persistence.Condition{})
		assert.True(t, appErrors.IsInternal(err))
	})

	t.Run("ConditionFailure", func(t *testing.T) {
		api := &mockAPI{
			updateItemFunc: func(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
				return nil, &types.ConditionalCheckFailedException{}
			},
		}
		_, err := newTestTable(t, api).Update(context.Background(), fredKey,
			persistence.Update{Set: map[string]interface{}{"name": "Fred"}}, persistence.Condition{RequireExists: true})
		assert.ErrorIs(t, err, persistence.ErrConditionFailed)
	})
}

func TestQueryPartitionPaginates(t *testing.T) {
	calls := 0
	api := &mockAPI{
		queryFunc: func(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			calls++
			assert.Nil(t, params.IndexName)
			require.NotNil(t, params.KeyConditionExpression)
			assert.Contains(t, *params.KeyConditionExpression, "begins_with")

			if params.ExclusiveStartKey == nil {
				return &dynamodb.QueryOutput{
					Items:            []map[string]types.AttributeValue{persistence.Key{PartitionKey: "fred_bloggs", SortKey: "submission/101"}.KeyItem()},
					LastEvaluatedKey: persistence.Key{PartitionKey: "fred_bloggs", SortKey: "submission/101"}.KeyItem(),
				}, nil
			}
			return &dynamodb.QueryOutput{
				Items: []map[string]types.AttributeValue{persistence.Key{PartitionKey: "fred_bloggs", SortKey: "submission/102"}.KeyItem()},
			}, nil
		},
	}

	items, err := newTestTable(t, api).QueryPartition(context.Background(), "fred_bloggs", persistence.SortKeySubmissionPrefix)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, calls)
}

func TestQueryIndex(t *testing.T) {
	api := &mockAPI{
		queryFunc: func(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			assert.Equal(t, persistence.IndexSubmissionTarget, aws.ToString(params.IndexName))
			names := make([]string, 0, len(params.ExpressionAttributeNames))
			for _, n := range params.ExpressionAttributeNames {
				names = append(names, n)
			}
			assert.ElementsMatch(t, []string{"target_type", "target_id"}, names)
			return &dynamodb.QueryOutput{}, nil
		},
	}
	items, err := newTestTable(t, api).QueryIndex(context.Background(), persistence.TargetQuery("show", "00_01/romeo_and_juliet"))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestErrorTranslation(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"Throughput", &types.ProvisionedThroughputExceededException{}, appErrors.IsStorageUnavailable},
		{"InternalServerError", &types.InternalServerError{}, appErrors.IsStorageUnavailable},
		{"MissingTable", &types.ResourceNotFoundException{}, appErrors.IsStorageUnavailable},
		{"Timeout", context.DeadlineExceeded, appErrors.IsStorageUnavailable},
		{"Network", errors.New("connection reset by peer"), appErrors.IsStorageUnavailable},
		{"Validation", &smithy.GenericAPIError{Code: "ValidationException", Message: "bad key"}, appErrors.IsInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{
				getItemFunc: func(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
					return nil, tt.err
				},
			}
			_, err := newTestTable(t, api).Get(context.Background(), fredKey)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func validDescription() *types.TableDescription {
	in := CreateTableInput(testTable)
	desc := &types.TableDescription{
		TableName:   in.TableName,
		KeySchema:   in.KeySchema,
		TableStatus: types.TableStatusActive,
	}
	for _, gsi := range in.GlobalSecondaryIndexes {
		desc.GlobalSecondaryIndexes = append(desc.GlobalSecondaryIndexes, types.GlobalSecondaryIndexDescription{
			IndexName:   gsi.IndexName,
			KeySchema:   gsi.KeySchema,
			Projection:  gsi.Projection,
			IndexStatus: types.IndexStatusActive,
		})
	}
	return desc
}

func TestEnsureTable(t *testing.T) {
	t.Run("ExistingTableIsNotRecreated", func(t *testing.T) {
		api := &mockAPI{
			describeTableFunc: func(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
				return &dynamodb.DescribeTableOutput{Table: validDescription()}, nil
			},
			createTableFunc: func(context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
				t.Fatal("CreateTable must not be called for an existing table")
				return nil, nil
			},
		}
		created, err := newTestTable(t, api).EnsureTable(context.Background())
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("ExistingTableWithWrongIndex", func(t *testing.T) {
		desc := validDescription()
		desc.GlobalSecondaryIndexes = desc.GlobalSecondaryIndexes[:1]
		api := &mockAPI{
			describeTableFunc: func(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
				return &dynamodb.DescribeTableOutput{Table: desc}, nil
			},
		}
		_, err := newTestTable(t, api).EnsureTable(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), persistence.IndexSubmissionTarget)
	})

	t.Run("MissingTableIsCreated", func(t *testing.T) {
		describes := 0
		api := &mockAPI{
			describeTableFunc: func(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
				describes++
				if describes == 1 {
					return nil, &types.ResourceNotFoundException{Message: aws.String("no table")}
				}
				return &dynamodb.DescribeTableOutput{Table: validDescription()}, nil
			},
			createTableFunc: func(_ context.Context, params *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
				assert.Equal(t, types.BillingModePayPerRequest, params.BillingMode)
				require.Len(t, params.GlobalSecondaryIndexes, 2)
				for _, gsi := range params.GlobalSecondaryIndexes {
					assert.Equal(t, types.ProjectionTypeAll, gsi.Projection.ProjectionType)
				}
				return &dynamodb.CreateTableOutput{}, nil
			},
		}
		created, err := newTestTable(t, api).EnsureTable(context.Background())
		require.NoError(t, err)
		assert.True(t, created)
	})

	t.Run("ProbeFailureIsNotTreatedAsMissing", func(t *testing.T) {
		api := &mockAPI{
			describeTableFunc: func(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
				return nil, &types.InternalServerError{}
			},
			createTableFunc: func(context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
				t.Fatal("CreateTable must not be called when the probe fails")
				return nil, nil
			},
		}
		_, err := newTestTable(t, api).EnsureTable(context.Background())
		assert.True(t, appErrors.IsStorageUnavailable(err))
	})
}
