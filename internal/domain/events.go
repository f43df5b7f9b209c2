package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event types published to the event bus.
const (
	EventMemberRegistered      = "MemberRegistered"
	EventMemberDeleted         = "MemberDeleted"
	EventSubmissionCreated     = "SubmissionCreated"
	EventSubmissionIssueUpdate = "SubmissionIssueUpdated"
	EventSubmissionsReconciled = "SubmissionsReconciled"
)

// Event is something that happened to a member or submission.
type Event struct {
	ID        string                 `json:"event_id"`
	Type      string                 `json:"event_type"`
	Subject   string                 `json:"subject"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent stamps a new event with an id and the current time.
func NewEvent(eventType, subject string, data map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
