// Package member implements registration, login links and the member's own
// profile. Reading a profile is also when anonymous submissions are
// reconciled into the member's partition.
package member

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/domain"
	"github.com/newtheatre/lumina/internal/infrastructure/messaging"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// Store is the slice of the repository the service needs.
type Store interface {
	InsertMember(ctx context.Context, m domain.Member) (domain.Member, error)
	GetMember(ctx context.Context, id string) (domain.Member, error)
	SetMemberEmailVerified(ctx context.Context, id string) error
	RemoveMemberAnonymousID(ctx context.Context, id string, anonID uuid.UUID) (domain.Member, error)
	UpdateMemberProfile(ctx context.Context, id string, phone *string, consent *domain.Consent) (domain.Member, error)
	DeleteMember(ctx context.Context, id string) error
	MoveAnonymousSubmissionsToMember(ctx context.Context, memberID string, anonID uuid.UUID) ([]domain.Submission, error)
}

// LinkIssuer mints login links.
type LinkIssuer interface {
	AuthURL(memberID string) (string, error)
}

type Metrics interface {
	RecordMemberRegistered()
	RecordSubmissionsReconciled(n int)
}

type RegisterInput struct {
	ID               string
	AnonymousID      uuid.UUID
	Name             string
	Email            string
	YearOfGraduation *int
	Consent          domain.ConsentFlags
}

type UpdateInput struct {
	Phone   *string
	Consent domain.ConsentFlags
}

// Public is what anyone may learn about a member id.
type Public struct {
	ID          string `json:"id"`
	MaskedEmail string `json:"masked_email"`
}

type Service interface {
	Register(ctx context.Context, in RegisterInput) error
	SendLoginLink(ctx context.Context, id string) error
	Check(ctx context.Context, id string) (Public, error)
	// Resolve loads the member a token names.
	Resolve(ctx context.Context, tokenMemberID string) (domain.Member, error)
	Read(ctx context.Context, tokenMemberID, id string) (domain.Member, error)
	Update(ctx context.Context, tokenMemberID, id string, in UpdateInput) (domain.Member, error)
	Delete(ctx context.Context, tokenMemberID, id string) error
}

type service struct {
	store     Store
	links     LinkIssuer
	mailer    messaging.Mailer
	publisher messaging.Publisher
	metrics   Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the member service. metrics may be nil.
func NewService(store Store, links LinkIssuer, mailer messaging.Mailer, publisher messaging.Publisher, metrics Metrics, logger *zap.Logger) Service {
	return &service{
		store:     store,
		links:     links,
		mailer:    mailer,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.Named("member_service"),
		now:       time.Now,
	}
}

func (s *service) Register(ctx context.Context, in RegisterInput) error {
	if in.ID == "" || in.ID == domain.AnonymousOwner {
		return appErrors.NewValidation("invalid member id")
	}
	// UUIDs own anonymous submissions; a member partition must never be one.
	if _, err := uuid.Parse(in.ID); err == nil {
		return appErrors.NewValidation("member id must not be a UUID")
	}
	if in.AnonymousID == uuid.Nil {
		return appErrors.NewValidation("anonymous id is required")
	}
	now := s.now().UTC()

	m, err := s.store.InsertMember(ctx, domain.Member{
		ID:               in.ID,
		Name:             in.Name,
		Email:            in.Email,
		YearOfGraduation: in.YearOfGraduation,
		CreatedAt:        &now,
		Consent:          domain.ConsentFromFlags(in.Consent, now),
		AnonymousIDs:     []uuid.UUID{in.AnonymousID},
	})
	if err != nil {
		if appErrors.IsAlreadyExists(err) {
			return appErrors.NewAlreadyExists("Member already exists")
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordMemberRegistered()
	}
	s.publish(ctx, domain.NewEvent(domain.EventMemberRegistered, m.ID, nil))

	// The member is stored even if the email fails; the login endpoint
	// sends a fresh link.
	return s.sendLink(ctx, m, messaging.SubjectRegistration, messaging.RenderRegistration)
}

func (s *service) SendLoginLink(ctx context.Context, id string) error {
	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return appErrors.NewNotFound("Member not found")
		}
		return err
	}
	return s.sendLink(ctx, m, messaging.SubjectLogin, messaging.RenderLogin)
}

func (s *service) sendLink(ctx context.Context, m domain.Member, subject string, render func(name, authURL string) (messaging.Body, error)) error {
	link, err := s.links.AuthURL(m.ID)
	if err != nil {
		return appErrors.NewInternal("mint login link", err)
	}
	body, err := render(m.Name, link)
	if err != nil {
		return appErrors.NewInternal("render email", err)
	}
	return s.mailer.Send(ctx, messaging.Email{
		To:      []mail.Address{{Name: m.Name, Address: m.Email}},
		Subject: subject,
		Body:    body,
	})
}

func (s *service) Check(ctx context.Context, id string) (Public, error) {
	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return Public{}, appErrors.NewNotFound("Member not found")
		}
		return Public{}, err
	}
	masked, err := domain.MaskEmail(m.Email)
	if err != nil {
		return Public{}, appErrors.NewInternal("stored email of "+id+" cannot be masked", err)
	}
	return Public{ID: m.ID, MaskedEmail: masked}, nil
}

func (s *service) Resolve(ctx context.Context, tokenMemberID string) (domain.Member, error) {
	m, err := s.store.GetMember(ctx, tokenMemberID)
	if appErrors.IsNotFound(err) {
		return domain.Member{}, appErrors.NewUnauthorized("Member no longer exists")
	}
	return m, err
}

func (s *service) self(ctx context.Context, tokenMemberID, id, verb string) (domain.Member, error) {
	m, err := s.Resolve(ctx, tokenMemberID)
	if err != nil {
		return domain.Member{}, err
	}
	if m.ID != id {
		return domain.Member{}, appErrors.NewForbidden(fmt.Sprintf("You cannot %s another member", verb))
	}
	return m, nil
}

// Read returns the member's private view. Opening a login link is proof of
// the email address, so the first read verifies it; every read also moves
// any submissions still filed under the member's anonymous ids.
func (s *service) Read(ctx context.Context, tokenMemberID, id string) (domain.Member, error) {
	m, err := s.self(ctx, tokenMemberID, id, "read")
	if err != nil {
		return domain.Member{}, err
	}

	changed := false
	if !m.EmailVerified() {
		if err := s.store.SetMemberEmailVerified(ctx, m.ID); err != nil {
			return domain.Member{}, err
		}
		changed = true
	}

	reconciled, err := s.reconcile(ctx, m)
	if err != nil {
		return domain.Member{}, err
	}
	if changed || reconciled {
		return s.store.GetMember(ctx, m.ID)
	}
	return m, nil
}

// reconcile drains each anonymous id in turn. An id is only forgotten once
// its partition is empty, so a transient failure leaves it for the next
// read. Integrity failures are returned.
func (s *service) reconcile(ctx context.Context, m domain.Member) (bool, error) {
	changed := false
	for _, anonID := range m.AnonymousIDs {
		moved, err := s.store.MoveAnonymousSubmissionsToMember(ctx, m.ID, anonID)
		if len(moved) > 0 {
			changed = true
			if s.metrics != nil {
				s.metrics.RecordSubmissionsReconciled(len(moved))
			}
			numbers := make([]int, len(moved))
			for i, sub := range moved {
				numbers[i] = sub.Number
			}
			s.publish(ctx, domain.NewEvent(domain.EventSubmissionsReconciled, m.ID, map[string]interface{}{
				"anonymous_id": anonID.String(),
				"numbers":      numbers,
			}))
		}
		if err != nil {
			if appErrors.IsRetryable(err) {
				s.logger.Warn("Reconciliation interrupted, will resume on next read",
					zap.String("member_id", m.ID),
					zap.String("anonymous_id", anonID.String()),
					zap.Int("moved", len(moved)),
					zap.Error(err))
				continue
			}
			return changed, err
		}

		if _, err := s.store.RemoveMemberAnonymousID(ctx, m.ID, anonID); err != nil {
			s.logger.Warn("Could not forget reconciled anonymous id",
				zap.String("member_id", m.ID),
				zap.String("anonymous_id", anonID.String()),
				zap.Error(err))
			continue
		}
		changed = true
	}
	return changed, nil
}

func (s *service) Update(ctx context.Context, tokenMemberID, id string, in UpdateInput) (domain.Member, error) {
	m, err := s.self(ctx, tokenMemberID, id, "update")
	if err != nil {
		return domain.Member{}, err
	}
	return s.store.UpdateMemberProfile(ctx, m.ID, in.Phone, m.Consent.Merge(in.Consent, s.now().UTC()))
}

func (s *service) Delete(ctx context.Context, tokenMemberID, id string) error {
	m, err := s.self(ctx, tokenMemberID, id, "delete")
	if err != nil {
		return err
	}
	if err := s.store.DeleteMember(ctx, m.ID); err != nil {
		return err
	}
	s.publish(ctx, domain.NewEvent(domain.EventMemberDeleted, m.ID, nil))
	return nil
}

// publish is best effort. Events are notifications; the write they
// describe has already happened.
func (s *service) publish(ctx context.Context, e domain.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("Event not published", zap.String("event_type", e.Type), zap.String("subject", e.Subject), zap.Error(err))
	}
}
