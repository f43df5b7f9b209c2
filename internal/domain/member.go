package domain

import (
	"time"

	"github.com/google/uuid"
)

// Consent records when each kind of data-use consent was granted. A nil
// timestamp means consent was not given.
type Consent struct {
	News     *time.Time `json:"consent_news,omitempty"`
	Network  *time.Time `json:"consent_network,omitempty"`
	Members  *time.Time `json:"consent_members,omitempty"`
	Students *time.Time `json:"consent_students,omitempty"`
}

// ConsentFlags is the boolean view of Consent exposed to clients.
type ConsentFlags struct {
	News     bool `json:"consent_news"`
	Network  bool `json:"consent_network"`
	Members  bool `json:"consent_members"`
	Students bool `json:"consent_students"`
}

// Flags reports which consents are granted.
func (c *Consent) Flags() ConsentFlags {
	if c == nil {
		return ConsentFlags{}
	}
	return ConsentFlags{
		News:     c.News != nil,
		Network:  c.Network != nil,
		Members:  c.Members != nil,
		Students: c.Students != nil,
	}
}

// ConsentFromFlags stamps every granted flag with now.
func ConsentFromFlags(f ConsentFlags, now time.Time) *Consent {
	stamp := func(granted bool) *time.Time {
		if !granted {
			return nil
		}
		t := now
		return &t
	}
	return &Consent{
		News:     stamp(f.News),
		Network:  stamp(f.Network),
		Members:  stamp(f.Members),
		Students: stamp(f.Students),
	}
}

// Merge applies f to an existing consent record. Consents that stay granted
// keep their original timestamp; newly granted ones are stamped with now.
func (c *Consent) Merge(f ConsentFlags, now time.Time) *Consent {
	if c == nil {
		return ConsentFromFlags(f, now)
	}
	keep := func(granted bool, prev *time.Time) *time.Time {
		switch {
		case !granted:
			return nil
		case prev != nil:
			return prev
		default:
			t := now
			return &t
		}
	}
	return &Consent{
		News:     keep(f.News, c.News),
		Network:  keep(f.Network, c.Network),
		Members:  keep(f.Members, c.Members),
		Students: keep(f.Students, c.Students),
	}
}

// Member is a registered alumni network member. The ID is chosen by the
// member at registration.
type Member struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Email            string      `json:"email"`
	Phone            *string     `json:"phone,omitempty"`
	YearOfGraduation *int        `json:"year_of_graduation,omitempty"`
	CreatedAt        *time.Time  `json:"created_at,omitempty"`
	EmailVerifiedAt  *time.Time  `json:"email_verified_at,omitempty"`
	Consent          *Consent    `json:"consent,omitempty"`
	AnonymousIDs     []uuid.UUID `json:"anonymous_ids,omitempty"`
	IsAdmin          bool        `json:"is_admin"`
}

// EmailVerified reports whether the member has proven ownership of their email.
func (m Member) EmailVerified() bool {
	return m.EmailVerifiedAt != nil
}

// ToSubmitter snapshots the member as a verified submitter.
func (m Member) ToSubmitter() Submitter {
	email := m.Email
	return Submitter{
		ID:               m.ID,
		Verified:         true,
		Name:             m.Name,
		YearOfGraduation: m.YearOfGraduation,
		Email:            &email,
	}
}

// HasAnonymousID reports whether id is still pending reconciliation.
func (m Member) HasAnonymousID(id uuid.UUID) bool {
	for _, a := range m.AnonymousIDs {
		if a == id {
			return true
		}
	}
	return false
}
