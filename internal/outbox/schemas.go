package outbox

import "example.com/statsimpact/internal/events"

// eventSchemas holds the JSON schema registered for each event type.
var eventSchemas = map[string]string{
	events.ParticipantUpdatedType: participantUpdatedSchema,
}

const participantUpdatedSchema = `{
  "type": "object",
  "title": "ParticipantUpdated",
  "properties": {
    "event_id": {"type": "string"},
    "participant_id": {"type": "integer"},
    "changed_fields": {"type": "array", "items": {"type": "string"}},
    "updated_by": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "participant_id", "changed_fields", "occurred_at"],
  "additionalProperties": false
}`
