// Package persistence defines the single-table storage contract shared by the
// DynamoDB and in-memory implementations, plus decorators that add
// resilience and instrumentation around any Table.
package persistence

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute and index names of the persisted schema. Changing any of these
// breaks existing tables.
const (
	// PartitionKey is the hash key attribute of the table.
	PartitionKey = "pk"
	// SortKey is the range key attribute of the table.
	SortKey = "sk"

	// SortKeyProfile marks the member profile item.
	SortKeyProfile = "profile"
	// SortKeySubmissionPrefix prefixes every submission sort key. It must never
	// match SortKeyProfile.
	SortKeySubmissionPrefix = "submission/"

	// IndexSortKey is keyed on the sort key alone.
	IndexSortKey = "gsi_sk"
	// IndexSubmissionTarget is keyed on (target_type, target_id).
	IndexSubmissionTarget = "gsi_submission_target"

	TargetTypeAttribute = "target_type"
	TargetIDAttribute   = "target_id"
)

var (
	// ErrItemNotFound is returned by Get when no item has the key.
	ErrItemNotFound = errors.New("item not found")
	// ErrConditionFailed is returned when a write condition does not hold.
	ErrConditionFailed = errors.New("condition check failed")
)

// Item is a single table item in DynamoDB attribute form.
type Item = map[string]types.AttributeValue

// Key addresses one item.
type Key struct {
	PartitionKey string
	SortKey      string
}

// Condition guards a write. The zero value means unconditional.
type Condition struct {
	// RequireExists fails the write unless an item with the key exists.
	RequireExists bool
	// RequireNotExists fails the write if an item with the key exists.
	RequireNotExists bool
	// RequireAbsent lists attributes that must not be set on the current item.
	RequireAbsent []string
}

// IsZero reports whether c places no constraint on the write.
func (c Condition) IsZero() bool {
	return !c.RequireExists && !c.RequireNotExists && len(c.RequireAbsent) == 0
}

// Update describes a partial item update. Set values are plain Go values
// marshalled with attributevalue, so records with dynamodbav tags work.
type Update struct {
	Set    map[string]interface{}
	Remove []string
}

// IndexQuery is an equality query against a global secondary index.
type IndexQuery struct {
	IndexName     string
	HashAttribute string
	HashValue     string
	// RangeAttribute is optional. When set RangeValue must match exactly.
	RangeAttribute string
	RangeValue     string
}

// SortKeyQuery matches items in Index A by their sort key.
func SortKeyQuery(sortKey string) IndexQuery {
	return IndexQuery{IndexName: IndexSortKey, HashAttribute: SortKey, HashValue: sortKey}
}

// TargetQuery matches submissions in Index B by target.
func TargetQuery(targetType, targetID string) IndexQuery {
	return IndexQuery{
		IndexName:      IndexSubmissionTarget,
		HashAttribute:  TargetTypeAttribute,
		HashValue:      targetType,
		RangeAttribute: TargetIDAttribute,
		RangeValue:     targetID,
	}
}

// Table is a single logical table addressed by (pk, sk) with two global
// secondary indexes. Every method is one network round trip (queries may
// page) and fails with a STORAGE_UNAVAILABLE AppError on transient
// infrastructure failure.
type Table interface {
	Get(ctx context.Context, key Key) (Item, error)
	// Put overwrites the whole item.
	Put(ctx context.Context, item Item, cond Condition) error
	// Delete reports whether an item was actually removed.
	Delete(ctx context.Context, key Key) (bool, error)
	// Update applies u and returns the item as it is after the update.
	Update(ctx context.Context, key Key, u Update, cond Condition) (Item, error)
	// QueryPartition returns every item in partition pk whose sort key
	// begins with skPrefix.
	QueryPartition(ctx context.Context, pk, skPrefix string) ([]Item, error)
	QueryIndex(ctx context.Context, q IndexQuery) ([]Item, error)
	// EnsureTable creates the table if an existence probe finds none. It
	// reports whether the table was created.
	EnsureTable(ctx context.Context) (bool, error)
	Ping(ctx context.Context) error
}

// StringAttr reads a string attribute, returning "" when absent or not a string.
func StringAttr(item Item, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// KeyOf extracts the primary key of item.
func KeyOf(item Item) Key {
	return Key{PartitionKey: StringAttr(item, PartitionKey), SortKey: StringAttr(item, SortKey)}
}

// KeyItem is the attribute form of a key.
func (k Key) KeyItem() Item {
	return Item{
		PartitionKey: &types.AttributeValueMemberS{Value: k.PartitionKey},
		SortKey:      &types.AttributeValueMemberS{Value: k.SortKey},
	}
}

func (k Key) String() string {
	return k.PartitionKey + "|" + k.SortKey
}
