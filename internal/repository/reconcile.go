package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/domain"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// MoveAnonymousSubmissionsToMember refiles every submission made under
// anonID to memberID. Each one is written under the member before the
// anonymous copy is deleted, so a failure part way leaves a duplicate rather
// than a loss, and running the move again finishes the job.
//
// On error the submissions moved so far are returned with it. A delete that
// finds nothing to remove aborts with a RECONCILIATION_INTEGRITY error.
func (r *Repository) MoveAnonymousSubmissionsToMember(ctx context.Context, memberID string, anonID uuid.UUID) ([]domain.Submission, error) {
	anonOwner := anonID.String()
	if memberID == "" || memberID == domain.AnonymousOwner || memberID == anonOwner {
		return nil, appErrors.NewValidation(fmt.Sprintf("cannot move submissions of %s to %q", anonOwner, memberID))
	}

	pending, err := r.GetSubmissionsForMember(ctx, anonOwner)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return []domain.Submission{}, nil
	}

	logger := r.logger.With(zap.String("member_id", memberID), zap.String("anonymous_id", anonOwner))
	moved := make([]domain.Submission, 0, len(pending))

	for _, s := range pending {
		target, err := r.PutSubmission(ctx, s.WithOwner(memberID))
		if err != nil {
			return moved, err
		}

		deleted, err := r.table.Delete(ctx, submissionKey(anonOwner, s.Number))
		if err != nil {
			return moved, appErrors.Wrap(err, fmt.Sprintf("delete anonymous copy of submission %d", s.Number))
		}
		if !deleted {
			logger.Error("anonymous submission vanished during move",
				zap.Int("number", s.Number),
				zap.Int("moved", len(moved)),
				zap.Bool("alert", true))
			return moved, appErrors.NewReconciliationIntegrity(
				fmt.Sprintf("submission %d was copied to %s but its anonymous copy under %s was already gone", s.Number, memberID, anonOwner))
		}
		moved = append(moved, target)
	}

	logger.Info("moved anonymous submissions", zap.Int("count", len(moved)))
	return moved, nil
}
