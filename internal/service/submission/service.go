// Package submission opens an issue for each message sent to the editors,
// stores the submission under whoever sent it and keeps the issue snapshot
// current from GitHub webhooks.
package submission

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/domain"
	"github.com/newtheatre/lumina/internal/infrastructure/github"
	"github.com/newtheatre/lumina/internal/infrastructure/messaging"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

type Store interface {
	GetSubmissionsForMember(ctx context.Context, ownerID string) ([]domain.Submission, error)
	GetSubmissionsForTarget(ctx context.Context, targetType, targetID string) ([]domain.Submission, error)
	PutSubmission(ctx context.Context, s domain.Submission) (domain.Submission, error)
	UpdateSubmissionIssueState(ctx context.Context, number int, issue domain.IssueDetail) (domain.Submission, error)
}

// Issues is the issue tracker.
type Issues interface {
	CreateIssue(ctx context.Context, title, body string) (domain.IssueDetail, error)
	Render(b github.IssueBody, historyURL string) string
	Owns(owner, repo string) bool
}

type Metrics interface {
	RecordSubmissionCreated(targetType string, verified bool)
}

// SubmitterInput identifies someone who is not logged in. ID is their
// anonymous id, if the client has one.
type SubmitterInput struct {
	ID               *uuid.UUID
	Name             string
	YearOfGraduation *int
}

type GenericInput struct {
	Submitter  *SubmitterInput
	TargetType string
	TargetID   string
	TargetName string
	TargetURL  string
	Subject    *string
	Message    string
}

type Service interface {
	ListForMember(ctx context.Context, ownerID string) ([]domain.Submission, error)
	Stats(ctx context.Context, ownerID string) (domain.SubmissionStats, error)
	ListForTarget(ctx context.Context, targetType, targetID string) ([]domain.Submission, error)
	// CreateGeneric needs exactly one of member and in.Submitter.
	CreateGeneric(ctx context.Context, member *domain.Member, in GenericInput) (domain.Submission, error)
	ApplyIssueChange(ctx context.Context, change github.IssueChange) error
}

type service struct {
	store      Store
	issues     Issues
	publisher  messaging.Publisher
	metrics    Metrics
	historyURL string
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(store Store, issues Issues, publisher messaging.Publisher, metrics Metrics, historyURL string, logger *zap.Logger) Service {
	return &service{
		store:      store,
		issues:     issues,
		publisher:  publisher,
		metrics:    metrics,
		historyURL: historyURL,
		logger:     logger.Named("submission_service"),
		now:        time.Now,
	}
}

// newestFirst orders by creation time, then issue number.
func newestFirst(subs []domain.Submission) []domain.Submission {
	sort.SliceStable(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.After(subs[j].CreatedAt)
		}
		return subs[i].Number > subs[j].Number
	})
	return subs
}

func (s *service) ListForMember(ctx context.Context, ownerID string) ([]domain.Submission, error) {
	subs, err := s.store.GetSubmissionsForMember(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return newestFirst(subs), nil
}

func (s *service) Stats(ctx context.Context, ownerID string) (domain.SubmissionStats, error) {
	subs, err := s.store.GetSubmissionsForMember(ctx, ownerID)
	if err != nil {
		return domain.SubmissionStats{}, err
	}
	return domain.SubmissionStats{Count: len(subs)}, nil
}

func (s *service) ListForTarget(ctx context.Context, targetType, targetID string) ([]domain.Submission, error) {
	subs, err := s.store.GetSubmissionsForTarget(ctx, targetType, targetID)
	if err != nil {
		return nil, err
	}
	return newestFirst(subs), nil
}

func (s *service) CreateGeneric(ctx context.Context, member *domain.Member, in GenericInput) (domain.Submission, error) {
	if member == nil && in.Submitter == nil {
		return domain.Submission{}, appErrors.NewValidation("You must either provide a submitter or authenticate as a member")
	}
	if member != nil && in.Submitter != nil {
		return domain.Submission{}, appErrors.NewValidation("You must not provide a submitter if you are authenticated")
	}

	var (
		owner     string
		submitter domain.Submitter
		body      = github.IssueBody{
			TargetType: in.TargetType,
			TargetID:   in.TargetID,
			TargetURL:  in.TargetURL,
			Message:    in.Message,
		}
	)
	if member != nil {
		owner = member.ID
		submitter = member.ToSubmitter()
		body.Verified = true
		body.SubmitterID = member.ID
		body.SubmitterName = member.Name
	} else {
		owner = domain.AnonymousOwner
		if in.Submitter.ID != nil && *in.Submitter.ID != uuid.Nil {
			owner = in.Submitter.ID.String()
		}
		submitter = domain.Submitter{
			ID:               owner,
			Name:             in.Submitter.Name,
			YearOfGraduation: in.Submitter.YearOfGraduation,
		}
		body.SubmitterName = in.Submitter.Name
	}

	title := fmt.Sprintf("%s/%s", in.TargetType, in.TargetID)
	if in.Subject != nil && *in.Subject != "" {
		title = *in.Subject
	}

	issue, err := s.issues.CreateIssue(ctx, title, s.issues.Render(body, s.historyURL))
	if err != nil {
		return domain.Submission{}, err
	}

	message := in.Message
	stored, err := s.store.PutSubmission(ctx, domain.Submission{
		OwnerID:   owner,
		Number:    issue.Number,
		Target:    domain.Target{Type: in.TargetType, ID: in.TargetID, Name: in.TargetName},
		URL:       in.TargetURL,
		Subject:   in.Subject,
		Message:   &message,
		CreatedAt: s.now().UTC(),
		Submitter: submitter,
		Issue:     issue,
	})
	if err != nil {
		// The issue exists without a submission; an editor can still act
		// on it.
		s.logger.Error("Issue opened but submission not stored",
			zap.Int("issue", issue.Number),
			zap.String("owner_id", owner),
			zap.Bool("alert", true),
			zap.Error(err))
		return domain.Submission{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordSubmissionCreated(in.TargetType, submitter.Verified)
	}
	if err := s.publisher.Publish(ctx, domain.NewEvent(domain.EventSubmissionCreated, owner, map[string]interface{}{
		"number":      stored.Number,
		"target_type": stored.Target.Type,
		"target_id":   stored.Target.ID,
	})); err != nil {
		s.logger.Warn("Event not published", zap.String("event_type", domain.EventSubmissionCreated), zap.Error(err))
	}
	return stored, nil
}

// ApplyIssueChange refreshes the stored snapshot of an issue. Issues from
// other repositories and issues without a submission are ignored.
func (s *service) ApplyIssueChange(ctx context.Context, change github.IssueChange) error {
	if !s.issues.Owns(change.Owner, change.Repo) {
		s.logger.Info("Ignoring webhook for another repository", zap.String("repo", change.Owner+"/"+change.Repo))
		return nil
	}
	switch change.Action {
	case "opened", "edited", "closed", "reopened":
	default:
		s.logger.Debug("Ignoring issue action", zap.String("action", change.Action))
		return nil
	}

	detail, err := github.IssueDetailFrom(change.Issue)
	if err != nil {
		return appErrors.NewValidation("unusable issue in webhook: " + err.Error())
	}

	updated, err := s.store.UpdateSubmissionIssueState(ctx, detail.Number, detail)
	if appErrors.IsNotFound(err) {
		s.logger.Info("Webhook for an issue with no submission", zap.Int("issue", detail.Number), zap.String("action", change.Action))
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, domain.NewEvent(domain.EventSubmissionIssueUpdate, updated.OwnerID, map[string]interface{}{
		"number": updated.Number,
		"state":  string(updated.Issue.State),
	})); err != nil {
		s.logger.Warn("Event not published", zap.String("event_type", domain.EventSubmissionIssueUpdate), zap.Error(err))
	}
	return nil
}
