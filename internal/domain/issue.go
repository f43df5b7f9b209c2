package domain

import (
	"fmt"
	"time"
)

// IssueState is the lifecycle state of a linked GitHub issue.
type IssueState string

const (
	IssueStateOpen      IssueState = "open"
	IssueStateClosed    IssueState = "closed"
	IssueStateCompleted IssueState = "completed"
)

// ParseIssueState rejects anything other than the three stored states.
func ParseIssueState(s string) (IssueState, error) {
	switch IssueState(s) {
	case IssueStateOpen, IssueStateClosed, IssueStateCompleted:
		return IssueState(s), nil
	}
	return "", fmt.Errorf("unknown issue state %q", s)
}

// DeriveIssueState maps GitHub's state and state_reason onto IssueState.
// GitHub has no "completed" state; it is a closed issue with reason completed.
func DeriveIssueState(state, stateReason string) (IssueState, error) {
	parsed, err := ParseIssueState(state)
	if err != nil {
		return "", err
	}
	if parsed == IssueStateClosed && stateReason == "completed" {
		return IssueStateCompleted, nil
	}
	return parsed, nil
}

// IssueDetail is the cached copy of the GitHub issue linked to a submission.
type IssueDetail struct {
	Number    int        `json:"number"`
	State     IssueState `json:"state"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Comments  int        `json:"comments"`
}
