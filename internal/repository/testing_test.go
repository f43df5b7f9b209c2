package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/domain"
	"github.com/newtheatre/lumina/internal/infrastructure/persistence"
	"github.com/newtheatre/lumina/internal/infrastructure/persistence/memory"
)

var (
	fixedNow = time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)
	fredAnon = uuid.MustParse("c0286cf1-15cc-4e43-93de-aaca592e447b")
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func newTestRepository(t *testing.T, table persistence.Table) *Repository {
	t.Helper()
	return NewRepository(table, zap.NewNop(), WithClock(func() time.Time { return fixedNow }))
}

func romeoSubmission(owner string, number int) domain.Submission {
	return domain.Submission{
		OwnerID: owner,
		Number:  number,
		Target: domain.Target{
			Type: "show",
			ID:   "00_01/romeo_and_juliet",
			Name: "Romeo and Juliet",
		},
		URL:       "https://history.newtheatre.org.uk/shows/00_01/romeo_and_juliet",
		Message:   strPtr("I played the Nurse."),
		CreatedAt: fixedNow,
		Submitter: domain.Submitter{
			ID:       owner,
			Verified: false,
			Name:     "Fred Bloggs",
		},
		Issue: domain.IssueDetail{
			Number:    number,
			State:     domain.IssueStateOpen,
			Title:     "show/00_01/romeo_and_juliet",
			CreatedAt: fixedNow,
			UpdatedAt: fixedNow,
		},
	}
}

// countingTable counts writes made through it.
type countingTable struct {
	persistence.Table
	mu     sync.Mutex
	writes int
}

func (c *countingTable) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func (c *countingTable) inc() {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
}

func (c *countingTable) Put(ctx context.Context, item persistence.Item, cond persistence.Condition) error {
	c.inc()
	return c.Table.Put(ctx, item, cond)
}

func (c *countingTable) Delete(ctx context.Context, key persistence.Key) (bool, error) {
	c.inc()
	return c.Table.Delete(ctx, key)
}

func (c *countingTable) Update(ctx context.Context, key persistence.Key, u persistence.Update, cond persistence.Condition) (persistence.Item, error) {
	c.inc()
	return c.Table.Update(ctx, key, u, cond)
}

// vanishingTable deletes an item behind the caller's back just before the
// caller's own delete, as a concurrent writer would.
type vanishingTable struct {
	persistence.Table
	vanish persistence.Key
}

func (v *vanishingTable) Delete(ctx context.Context, key persistence.Key) (bool, error) {
	if key == v.vanish {
		if _, err := v.Table.Delete(ctx, key); err != nil {
			return false, err
		}
	}
	return v.Table.Delete(ctx, key)
}

// failingTable fails deletes with the given error.
type failingTable struct {
	persistence.Table
	deleteErr error
}

func (f *failingTable) Delete(context.Context, persistence.Key) (bool, error) {
	return false, f.deleteErr
}

func seed(t *testing.T, table *memory.Table, subs ...domain.Submission) {
	t.Helper()
	repo := newTestRepository(t, table)
	for _, s := range subs {
		if _, err := repo.PutSubmission(context.Background(), s); err != nil {
			t.Fatalf("seed %s: %v", s, err)
		}
	}
}
