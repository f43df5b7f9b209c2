package domain

import (
	"fmt"
	"time"
)

// AnonymousOwner is the partition for submissions made without any
// submitter id. Those submissions are never reconciled.
const AnonymousOwner = "ANONYMOUS"

// Submitter is a snapshot of who made a submission, captured when it was
// made and decoupled from the live Member record.
type Submitter struct {
	ID               string  `json:"id"`
	Verified         bool    `json:"verified"`
	Name             string  `json:"name"`
	YearOfGraduation *int    `json:"year_of_graduation,omitempty"`
	Email            *string `json:"email,omitempty"`
}

// Target identifies what a submission is about, e.g. a show or a person.
type Target struct {
	Type string `json:"target_type"`
	ID   string `json:"target_id"`
	Name string `json:"target_name"`
}

// Submission is a piece of content sent to the editors. Its identity is
// the number of the GitHub issue opened for it.
type Submission struct {
	OwnerID   string      `json:"owner_id"`
	Number    int         `json:"id"`
	Target    Target      `json:"target"`
	URL       string      `json:"url"`
	Subject   *string     `json:"subject,omitempty"`
	Message   *string     `json:"message,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	Submitter Submitter   `json:"submitter"`
	Issue     IssueDetail `json:"github_issue"`
}

// WithOwner returns a copy of s filed under ownerID. Nothing else changes.
func (s Submission) WithOwner(ownerID string) Submission {
	s.OwnerID = ownerID
	return s
}

func (s Submission) String() string {
	return fmt.Sprintf("submission %d (owner %s)", s.Number, s.OwnerID)
}

// SubmissionStats summarises a member's submissions.
type SubmissionStats struct {
	Count int `json:"count"`
}
