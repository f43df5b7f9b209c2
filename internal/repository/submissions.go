package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/domain"
	"github.com/newtheatre/lumina/internal/infrastructure/persistence"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// GetSubmission finds a submission by issue number alone, whatever its owner.
func (r *Repository) GetSubmission(ctx context.Context, number int) (domain.Submission, error) {
	items, err := r.table.QueryIndex(ctx, persistence.SortKeyQuery(submissionSortKey(number)))
	if err != nil {
		return domain.Submission{}, appErrors.Wrap(err, fmt.Sprintf("get submission %d", number))
	}

	switch len(items) {
	case 0:
		return domain.Submission{}, appErrors.NewNotFound(fmt.Sprintf("submission %d not found", number))
	case 1:
		return decodeSubmission(items[0])
	default:
		owners := make([]string, 0, len(items))
		for _, item := range items {
			owners = append(owners, persistence.KeyOf(item).PartitionKey)
		}
		r.logger.Error("issue number stored under several owners",
			zap.Int("number", number),
			zap.Strings("owners", owners),
			zap.Bool("alert", true))
		return domain.Submission{}, appErrors.NewInconsistent(
			fmt.Sprintf("submission %d stored %d times", number, len(items)))
	}
}

// GetSubmissionsForMember lists every submission in the owner's partition.
// ownerID may be a member id or an anonymous id.
func (r *Repository) GetSubmissionsForMember(ctx context.Context, ownerID string) ([]domain.Submission, error) {
	items, err := r.table.QueryPartition(ctx, ownerID, persistence.SortKeySubmissionPrefix)
	if err != nil {
		return nil, appErrors.Wrap(err, "list submissions of "+ownerID)
	}
	return decodeSubmissions(items)
}

func (r *Repository) GetSubmissionsForTarget(ctx context.Context, targetType, targetID string) ([]domain.Submission, error) {
	items, err := r.table.QueryIndex(ctx, persistence.TargetQuery(targetType, targetID))
	if err != nil {
		return nil, appErrors.Wrap(err, fmt.Sprintf("list submissions for %s/%s", targetType, targetID))
	}
	return decodeSubmissions(items)
}

// PutSubmission stores s under its owner, replacing any previous copy.
func (r *Repository) PutSubmission(ctx context.Context, s domain.Submission) (domain.Submission, error) {
	if s.OwnerID == "" || s.Number <= 0 {
		return domain.Submission{}, appErrors.NewValidation("submission needs an owner and a positive issue number")
	}
	item, err := encodeSubmission(s)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := r.table.Put(ctx, item, persistence.Condition{}); err != nil {
		return domain.Submission{}, appErrors.Wrap(err, "put "+s.String())
	}
	return s, nil
}

// UpdateSubmissionIssueState replaces the cached issue snapshot. Concurrent
// updates are last writer wins.
func (r *Repository) UpdateSubmissionIssueState(ctx context.Context, number int, issue domain.IssueDetail) (domain.Submission, error) {
	if issue.Number == 0 {
		issue.Number = number
	}
	if issue.Number != number {
		return domain.Submission{}, appErrors.NewValidation(
			fmt.Sprintf("issue %d cannot update submission %d", issue.Number, number))
	}
	if _, err := domain.ParseIssueState(string(issue.State)); err != nil {
		return domain.Submission{}, appErrors.NewValidation(err.Error())
	}

	// The submission can move owner between lookup and write; look it up
	// again once if that happens.
	for attempt := 0; ; attempt++ {
		current, err := r.GetSubmission(ctx, number)
		if err != nil {
			return domain.Submission{}, err
		}

		item, err := r.table.Update(ctx, submissionKey(current.OwnerID, number),
			persistence.Update{Set: map[string]interface{}{githubIssueAttribute: encodeIssue(issue)}},
			persistence.Condition{RequireExists: true},
		)
		if errors.Is(err, persistence.ErrConditionFailed) {
			if attempt == 0 {
				continue
			}
			return domain.Submission{}, appErrors.NewNotFound(fmt.Sprintf("submission %d not found", number))
		}
		if err != nil {
			return domain.Submission{}, appErrors.Wrap(err, fmt.Sprintf("update issue of submission %d", number))
		}
		return decodeSubmission(item)
	}
}
