package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtheatre/lumina/internal/domain"
	"github.com/newtheatre/lumina/internal/infrastructure/persistence/memory"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

func TestGetSubmissionByNumber(t *testing.T) {
	ctx := context.Background()
	table := memory.NewTable()
	seed(t, table,
		romeoSubmission("fred_bloggs", 101),
		romeoSubmission(fredAnon.String(), 102),
		romeoSubmission(domain.AnonymousOwner, 103),
	)
	repo := newTestRepository(t, table)

	for number, owner := range map[int]string{101: "fred_bloggs", 102: fredAnon.String(), 103: domain.AnonymousOwner} {
		s, err := repo.GetSubmission(ctx, number)
		require.NoError(t, err)
		assert.Equal(t, owner, s.OwnerID)
		assert.Equal(t, number, s.Number)
	}

	_, err := repo.GetSubmission(ctx, 999)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestGetSubmissionDuplicateIsInconsistent(t *testing.T) {
	table := memory.NewTable()
	seed(t, table, romeoSubmission("fred_bloggs", 101), romeoSubmission(fredAnon.String(), 101))

	_, err := newTestRepository(t, table).GetSubmission(context.Background(), 101)
	assert.True(t, appErrors.IsInconsistent(err))
	assert.True(t, appErrors.IsFatal(err))
}

func TestGetSubmissionsForMember(t *testing.T) {
	ctx := context.Background()
	table := memory.NewTable()
	seed(t, table, romeoSubmission("fred_bloggs", 101), romeoSubmission("fred_bloggs", 205), romeoSubmission("jane_doe", 300))
	repo := newTestRepository(t, table)

	_, err := repo.CreateMember(ctx, "fred_bloggs", "Fred Bloggs", "fred.bloggs@gmail.com")
	require.NoError(t, err)

	subs, err := repo.GetSubmissionsForMember(ctx, "fred_bloggs")
	require.NoError(t, err)
	numbers := []int{}
	for _, s := range subs {
		numbers = append(numbers, s.Number)
	}
	assert.ElementsMatch(t, []int{101, 205}, numbers, "profile item is not a submission")

	empty, err := repo.GetSubmissionsForMember(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestGetSubmissionsForTarget(t *testing.T) {
	ctx := context.Background()
	table := memory.NewTable()
	other := romeoSubmission("jane_doe", 300)
	other.Target = domain.Target{Type: "person", ID: "fred_bloggs", Name: "Fred Bloggs"}
	seed(t, table, romeoSubmission("fred_bloggs", 101), romeoSubmission(fredAnon.String(), 102), other)
	repo := newTestRepository(t, table)

	subs, err := repo.GetSubmissionsForTarget(ctx, "show", "00_01/romeo_and_juliet")
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	subs, err = repo.GetSubmissionsForTarget(ctx, "show", "nothing")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestPutSubmissionValidation(t *testing.T) {
	repo := newTestRepository(t, memory.NewTable())

	_, err := repo.PutSubmission(context.Background(), romeoSubmission("", 101))
	assert.True(t, appErrors.IsValidation(err))
	_, err = repo.PutSubmission(context.Background(), romeoSubmission("fred_bloggs", 0))
	assert.True(t, appErrors.IsValidation(err))
}

func TestUpdateSubmissionIssueState(t *testing.T) {
	ctx := context.Background()
	table := memory.NewTable()
	seed(t, table, romeoSubmission(fredAnon.String(), 101))
	repo := newTestRepository(t, table)

	closedAt := fixedNow.Add(72 * time.Hour)
	issue := domain.IssueDetail{
		State:     domain.IssueStateCompleted,
		Title:     "show/00_01/romeo_and_juliet",
		CreatedAt: fixedNow,
		UpdatedAt: closedAt,
		ClosedAt:  &closedAt,
		Comments:  2,
	}

	updated, err := repo.UpdateSubmissionIssueState(ctx, 101, issue)
	require.NoError(t, err)
	assert.Equal(t, fredAnon.String(), updated.OwnerID)
	assert.Equal(t, domain.IssueStateCompleted, updated.Issue.State)
	assert.Equal(t, 101, updated.Issue.Number)
	assert.Equal(t, "I played the Nurse.", *updated.Message, "rest of the item is untouched")

	got, err := repo.GetSubmission(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	_, err = repo.UpdateSubmissionIssueState(ctx, 999, issue)
	assert.True(t, appErrors.IsNotFound(err))

	issue.Number = 5
	_, err = repo.UpdateSubmissionIssueState(ctx, 101, issue)
	assert.True(t, appErrors.IsValidation(err))
}
