// Package memory is an in-process persistence.Table used by tests and local
// development. It mirrors the DynamoDB semantics the repository relies on:
// whole-item puts, conditional writes, delete confirmation and sparse indexes.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/newtheatre/lumina/internal/infrastructure/persistence"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// Table holds items in a map guarded by a RWMutex, giving the same per-item
// atomicity as DynamoDB.
type Table struct {
	mu      sync.RWMutex
	items   map[persistence.Key]persistence.Item
	created bool
}

// NewTable returns an empty table that already exists.
func NewTable() *Table {
	return &Table{items: make(map[persistence.Key]persistence.Item), created: true}
}

// NewUncreatedTable returns a table that reports as missing until EnsureTable runs.
func NewUncreatedTable() *Table {
	return &Table{items: make(map[persistence.Key]persistence.Item)}
}

var _ persistence.Table = (*Table)(nil)

func (t *Table) Get(ctx context.Context, key persistence.Key) (persistence.Item, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	item, ok := t.items[key]
	if !ok {
		return nil, persistence.ErrItemNotFound
	}
	return cloneItem(item), nil
}

func (t *Table) Put(ctx context.Context, item persistence.Item, cond persistence.Condition) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	key := persistence.KeyOf(item)
	t.mu.Lock()
	defer t.mu.Unlock()

	if !check(t.items[key], cond) {
		return persistence.ErrConditionFailed
	}
	t.items[key] = cloneItem(item)
	return nil
}

func (t *Table) Delete(ctx context.Context, key persistence.Key) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.items[key]; !ok {
		return false, nil
	}
	delete(t.items, key)
	return true, nil
}

func (t *Table) Update(ctx context.Context, key persistence.Key, u persistence.Update, cond persistence.Condition) (persistence.Item, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.items[key]
	if !check(current, cond) {
		return nil, persistence.ErrConditionFailed
	}

	next := cloneItem(current)
	if next == nil {
		next = key.KeyItem()
	}
	for name, v := range u.Set {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, appErrors.NewInternal("marshal update value "+name, err)
		}
		next[name] = av
	}
	for _, name := range u.Remove {
		delete(next, name)
	}
	t.items[key] = next
	return cloneItem(next), nil
}

func (t *Table) QueryPartition(ctx context.Context, pk, skPrefix string) ([]persistence.Item, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []persistence.Item
	for key, item := range t.items {
		if key.PartitionKey == pk && strings.HasPrefix(key.SortKey, skPrefix) {
			out = append(out, cloneItem(item))
		}
	}
	sortItems(out)
	return out, nil
}

func (t *Table) QueryIndex(ctx context.Context, q persistence.IndexQuery) ([]persistence.Item, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []persistence.Item
	for _, item := range t.items {
		// Items without the index key attributes are not in the index.
		hash, ok := item[q.HashAttribute].(*types.AttributeValueMemberS)
		if !ok || hash.Value != q.HashValue {
			continue
		}
		if q.RangeAttribute != "" {
			rng, ok := item[q.RangeAttribute].(*types.AttributeValueMemberS)
			if !ok || rng.Value != q.RangeValue {
				continue
			}
		}
		out = append(out, cloneItem(item))
	}
	sortItems(out)
	return out, nil
}

func (t *Table) EnsureTable(ctx context.Context) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.created {
		return false, nil
	}
	t.created = true
	return true, nil
}

func (t *Table) Ping(ctx context.Context) error {
	return ctxErr(ctx)
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return appErrors.NewStorageUnavailable("memory table", err)
	}
	return nil
}

// Len returns the number of stored items.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

func check(current persistence.Item, cond persistence.Condition) bool {
	if cond.RequireExists && current == nil {
		return false
	}
	if cond.RequireNotExists && current != nil {
		return false
	}
	for _, name := range cond.RequireAbsent {
		if _, ok := current[name]; ok {
			return false
		}
	}
	return true
}

func sortItems(items []persistence.Item) {
	sort.Slice(items, func(i, j int) bool {
		a, b := persistence.KeyOf(items[i]), persistence.KeyOf(items[j])
		if a.PartitionKey != b.PartitionKey {
			return a.PartitionKey < b.PartitionKey
		}
		return a.SortKey < b.SortKey
	})
}

func cloneItem(item persistence.Item) persistence.Item {
	if item == nil {
		return nil
	}
	out := make(persistence.Item, len(item))
	for k, v := range item {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v types.AttributeValue) types.AttributeValue {
	switch tv := v.(type) {
	case *types.AttributeValueMemberM:
		return &types.AttributeValueMemberM{Value: cloneItem(tv.Value)}
	case *types.AttributeValueMemberL:
		l := make([]types.AttributeValue, len(tv.Value))
		for i, e := range tv.Value {
			l[i] = cloneValue(e)
		}
		return &types.AttributeValueMemberL{Value: l}
	case *types.AttributeValueMemberSS:
		return &types.AttributeValueMemberSS{Value: append([]string(nil), tv.Value...)}
	case *types.AttributeValueMemberS:
		return &types.AttributeValueMemberS{Value: tv.Value}
	case *types.AttributeValueMemberN:
		return &types.AttributeValueMemberN{Value: tv.Value}
	case *types.AttributeValueMemberBOOL:
		return &types.AttributeValueMemberBOOL{Value: tv.Value}
	default:
		return v
	}
}
