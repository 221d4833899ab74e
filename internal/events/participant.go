// Package events defines the event payloads written to the outbox and read back by the consumer.
package events

import "time"

// ParticipantUpdatedType is the event type of a committed participant edit.
const ParticipantUpdatedType = "participant.updated"

// ParticipantUpdated is emitted when a participant edit commits.
type ParticipantUpdated struct {
	EventID       string    `json:"event_id"`
	ParticipantID int64     `json:"participant_id"`
	ChangedFields []string  `json:"changed_fields"`
	UpdatedBy     string    `json:"updated_by"`
	OccurredAt    time.Time `json:"occurred_at"`
}
