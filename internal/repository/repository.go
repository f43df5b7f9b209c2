// Package repository maps members and submissions onto the single table and
// implements the anonymous-to-member submission move.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/domain"
	"github.com/newtheatre/lumina/internal/infrastructure/persistence"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// Repository is built once per process and shared. It holds no state of its
// own beyond the table handle.
type Repository struct {
	table  persistence.Table
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

func NewRepository(table persistence.Table, logger *zap.Logger, opts ...Option) *Repository {
	r := &Repository{
		table:  table,
		logger: logger.Named("repository"),
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Table exposes the underlying table for health checks and table setup.
func (r *Repository) Table() persistence.Table {
	return r.table
}

// CreateMember stores a new, unverified member created now.
func (r *Repository) CreateMember(ctx context.Context, id, name, email string) (domain.Member, error) {
	now := r.now().UTC()
	return r.InsertMember(ctx, domain.Member{
		ID:        id,
		Name:      name,
		Email:     email,
		CreatedAt: &now,
	})
}

// InsertMember stores m only if no member has its id.
func (r *Repository) InsertMember(ctx context.Context, m domain.Member) (domain.Member, error) {
	if m.ID == "" {
		return domain.Member{}, appErrors.NewValidation("member id is required")
	}
	item, err := encodeMember(m)
	if err != nil {
		return domain.Member{}, err
	}

	err = r.table.Put(ctx, item, persistence.Condition{RequireNotExists: true})
	if errors.Is(err, persistence.ErrConditionFailed) {
		return domain.Member{}, appErrors.NewAlreadyExists(fmt.Sprintf("member %s already exists", m.ID))
	}
	if err != nil {
		return domain.Member{}, appErrors.Wrap(err, "insert member "+m.ID)
	}

	r.logger.Info("member created", zap.String("member_id", m.ID))
	return m, nil
}

func (r *Repository) GetMember(ctx context.Context, id string) (domain.Member, error) {
	item, err := r.table.Get(ctx, memberKey(id))
	if errors.Is(err, persistence.ErrItemNotFound) {
		return domain.Member{}, appErrors.NewNotFound(fmt.Sprintf("member %s not found", id))
	}
	if err != nil {
		return domain.Member{}, appErrors.Wrap(err, "get member "+id)
	}
	return decodeMember(item)
}

// PutMember overwrites the whole profile.
func (r *Repository) PutMember(ctx context.Context, m domain.Member) (domain.Member, error) {
	item, err := encodeMember(m)
	if err != nil {
		return domain.Member{}, err
	}
	if err := r.table.Put(ctx, item, persistence.Condition{}); err != nil {
		return domain.Member{}, appErrors.Wrap(err, "put member "+m.ID)
	}
	return m, nil
}

// SetMemberEmailVerified stamps the verification time. Verification never
// moves: a member that is already verified keeps the original timestamp.
func (r *Repository) SetMemberEmailVerified(ctx context.Context, id string) error {
	_, err := r.table.Update(ctx, memberKey(id),
		persistence.Update{Set: map[string]interface{}{"email_verified_at": formatTime(r.now())}},
		persistence.Condition{RequireExists: true, RequireAbsent: []string{"email_verified_at"}},
	)
	if err == nil {
		r.logger.Info("member email verified", zap.String("member_id", id))
		return nil
	}
	if !errors.Is(err, persistence.ErrConditionFailed) {
		return appErrors.Wrap(err, "verify member "+id)
	}

	// Either the member is missing or already verified.
	if _, err := r.GetMember(ctx, id); err != nil {
		return err
	}
	return nil
}

// RemoveMemberAnonymousID drops anonID from the member's pending list.
func (r *Repository) RemoveMemberAnonymousID(ctx context.Context, id string, anonID uuid.UUID) (domain.Member, error) {
	m, err := r.GetMember(ctx, id)
	if err != nil {
		return domain.Member{}, err
	}
	if !m.HasAnonymousID(anonID) {
		return m, nil
	}

	remaining := make([]string, 0, len(m.AnonymousIDs))
	for _, a := range m.AnonymousIDs {
		if a != anonID {
			remaining = append(remaining, a.String())
		}
	}
	update := persistence.Update{Remove: []string{"anonymous_ids"}}
	if len(remaining) > 0 {
		update = persistence.Update{Set: map[string]interface{}{"anonymous_ids": remaining}}
	}
	return r.updateMember(ctx, id, update)
}

// UpdateMemberProfile replaces the editable profile fields. A nil phone or
// consent removes the attribute.
func (r *Repository) UpdateMemberProfile(ctx context.Context, id string, phone *string, consent *domain.Consent) (domain.Member, error) {
	update := persistence.Update{Set: map[string]interface{}{}}
	if phone != nil {
		update.Set["phone"] = *phone
	} else {
		update.Remove = append(update.Remove, "phone")
	}
	if consent != nil {
		update.Set["consent"] = consentRecord{
			News:     formatOptionalTime(consent.News),
			Network:  formatOptionalTime(consent.Network),
			Members:  formatOptionalTime(consent.Members),
			Students: formatOptionalTime(consent.Students),
		}
	} else {
		update.Remove = append(update.Remove, "consent")
	}
	return r.updateMember(ctx, id, update)
}

func (r *Repository) updateMember(ctx context.Context, id string, update persistence.Update) (domain.Member, error) {
	item, err := r.table.Update(ctx, memberKey(id), update, persistence.Condition{RequireExists: true})
	if errors.Is(err, persistence.ErrConditionFailed) {
		return domain.Member{}, appErrors.NewNotFound(fmt.Sprintf("member %s not found", id))
	}
	if err != nil {
		return domain.Member{}, appErrors.Wrap(err, "update member "+id)
	}
	return decodeMember(item)
}

// DeleteMember removes the profile. Deleting a missing member succeeds.
// Submissions stay where they are.
func (r *Repository) DeleteMember(ctx context.Context, id string) error {
	deleted, err := r.table.Delete(ctx, memberKey(id))
	if err != nil {
		return appErrors.Wrap(err, "delete member "+id)
	}
	r.logger.Info("member deleted", zap.String("member_id", id), zap.Bool("existed", deleted))
	return nil
}
