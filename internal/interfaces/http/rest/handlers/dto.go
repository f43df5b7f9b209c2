package handlers

import (
	"time"

	"github.com/google/uuid"

	"github.com/newtheatre/lumina/internal/domain"
	"github.com/newtheatre/lumina/internal/service/member"
	"github.com/newtheatre/lumina/internal/service/submission"
)

type RegisterMemberRequest struct {
	AnonymousID      uuid.UUID           `json:"anonymous_id" validate:"required"`
	FullName         string              `json:"full_name" validate:"required,max=200"`
	Email            string              `json:"email" validate:"required,email,max=254"`
	YearOfGraduation *int                `json:"year_of_graduation" validate:"omitempty,min=1900,max=2100"`
	Consent          domain.ConsentFlags `json:"consent"`
}

func (r RegisterMemberRequest) toInput(id string) member.RegisterInput {
	return member.RegisterInput{
		ID:               id,
		AnonymousID:      r.AnonymousID,
		Name:             r.FullName,
		Email:            r.Email,
		YearOfGraduation: r.YearOfGraduation,
		Consent:          r.Consent,
	}
}

type UpdateMemberRequest struct {
	Phone   *string              `json:"phone" validate:"omitempty,max=32"`
	Consent *domain.ConsentFlags `json:"consent" validate:"required"`
}

type MemberResponse struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	CreatedAt        *time.Time          `json:"created_at"`
	Email            string              `json:"email"`
	EmailVerified    bool                `json:"email_verified"`
	EmailVerifiedAt  *time.Time          `json:"email_verified_at"`
	Phone            *string             `json:"phone"`
	YearOfGraduation *int                `json:"year_of_graduation"`
	Consent          domain.ConsentFlags `json:"consent"`
	AnonymousIDs     []uuid.UUID         `json:"anonymous_ids"`
}

func newMemberResponse(m domain.Member) MemberResponse {
	return MemberResponse{
		ID:               m.ID,
		Name:             m.Name,
		CreatedAt:        m.CreatedAt,
		Email:            m.Email,
		EmailVerified:    m.EmailVerified(),
		EmailVerifiedAt:  m.EmailVerifiedAt,
		Phone:            m.Phone,
		YearOfGraduation: m.YearOfGraduation,
		Consent:          m.Consent.Flags(),
		AnonymousIDs:     m.AnonymousIDs,
	}
}

type AuthCheckResponse struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SubmitterRequest struct {
	ID               *uuid.UUID `json:"id"`
	Name             string     `json:"name" validate:"required,max=200"`
	YearOfGraduation *int       `json:"year_of_graduation" validate:"omitempty,min=1900,max=2100"`
}

type GenericSubmissionRequest struct {
	Submitter  *SubmitterRequest `json:"submitter"`
	TargetType string            `json:"target_type" validate:"required,max=64"`
	TargetID   string            `json:"target_id" validate:"required,max=256"`
	TargetName string            `json:"target_name" validate:"required,max=256"`
	TargetURL  string            `json:"target_url" validate:"required,max=512"`
	Subject    *string           `json:"subject" validate:"omitempty,max=256"`
	Message    string            `json:"message" validate:"required,max=20000"`
}

func (r GenericSubmissionRequest) toInput() submission.GenericInput {
	in := submission.GenericInput{
		TargetType: r.TargetType,
		TargetID:   r.TargetID,
		TargetName: r.TargetName,
		TargetURL:  r.TargetURL,
		Subject:    r.Subject,
		Message:    r.Message,
	}
	if r.Submitter != nil {
		in.Submitter = &submission.SubmitterInput{
			ID:               r.Submitter.ID,
			Name:             r.Submitter.Name,
			YearOfGraduation: r.Submitter.YearOfGraduation,
		}
	}
	return in
}

// SubmitterResponse leaves out the email snapshot; listings are public.
type SubmitterResponse struct {
	ID               string `json:"id"`
	Verified         bool   `json:"verified"`
	Name             string `json:"name"`
	YearOfGraduation *int   `json:"year_of_graduation"`
}

type SubmissionResponse struct {
	ID          int                `json:"id"`
	TargetType  string             `json:"target_type"`
	TargetID    string             `json:"target_id"`
	TargetName  string             `json:"target_name"`
	URL         string             `json:"url"`
	Subject     *string            `json:"subject"`
	Message     *string            `json:"message"`
	CreatedAt   time.Time          `json:"created_at"`
	Submitter   SubmitterResponse  `json:"submitter"`
	GitHubIssue domain.IssueDetail `json:"github_issue"`
}

func newSubmissionResponse(s domain.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:         s.Number,
		TargetType: s.Target.Type,
		TargetID:   s.Target.ID,
		TargetName: s.Target.Name,
		URL:        s.URL,
		Subject:    s.Subject,
		Message:    s.Message,
		CreatedAt:  s.CreatedAt,
		Submitter: SubmitterResponse{
			ID:               s.Submitter.ID,
			Verified:         s.Submitter.Verified,
			Name:             s.Submitter.Name,
			YearOfGraduation: s.Submitter.YearOfGraduation,
		},
		GitHubIssue: s.Issue,
	}
}

func newSubmissionResponses(subs []domain.Submission) []SubmissionResponse {
	out := make([]SubmissionResponse, len(subs))
	for i, s := range subs {
		out[i] = newSubmissionResponse(s)
	}
	return out
}
