package models

import (
	"time"

	"github.com/google/uuid"
)

// Link provenance values: who created the association.
const (
	LinkedByAI     = "ai"
	LinkedByManual = "manual"
)

// IsValidLinkedBy reports whether s is a recognized linked_by value.
func IsValidLinkedBy(s string) bool {
	return s == LinkedByAI || s == LinkedByManual
}

// EmailLink associates a commitment with one source email message. At
// most one link may exist per (commitment_id, message_id) pair; links are
// immutable once created and are removed only when their commitment is
// deleted. Stored in the commitment_emails table.
type EmailLink struct {
	ID              uuid.UUID `json:"id"`
	CommitmentID    uuid.UUID `json:"commitment_id"`
	MessageID       string    `json:"message_id"`
	LinkedAt        time.Time `json:"linked_at"`
	LinkedBy        string    `json:"linked_by"`
	ConfidenceScore *float64  `json:"confidence_score,omitempty"`
	LinkReason      string    `json:"link_reason,omitempty"`
}

// CalendarEventLink associates a commitment with one source calendar
// event, keyed on (commitment_id, event_id). EventData carries a snapshot
// of the source artifact at link time. Stored in the
// commitment_calendar_events table.
type CalendarEventLink struct {
	ID              uuid.UUID      `json:"id"`
	CommitmentID    uuid.UUID      `json:"commitment_id"`
	EventID         string         `json:"event_id"`
	EventData       map[string]any `json:"event_data,omitempty"`
	LinkedAt        time.Time      `json:"linked_at"`
	LinkedBy        string         `json:"linked_by"`
	ConfidenceScore *float64       `json:"confidence_score,omitempty"`
	LinkReason      string         `json:"link_reason,omitempty"`
}
