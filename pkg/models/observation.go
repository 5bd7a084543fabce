package models

import (
	"time"

	"github.com/google/uuid"
)

// Observation is one extracted bundle of date and provenance information
// from a source artifact. A nil CommitmentID creates a new commitment;
// otherwise the date fields refine the existing one. MessageID or
// EventID, when present, is linked to the commitment afterwards.
type Observation struct {
	CommitmentID *uuid.UUID `json:"commitment_id,omitempty"`

	// Creation fields, used when CommitmentID is absent.
	Title          string `json:"title,omitempty"`
	CommitmentType string `json:"commitment_type,omitempty"`
	Timezone       string `json:"timezone,omitempty"`

	// Date observation.
	StartDate     *time.Time    `json:"start_date,omitempty"`
	EndDate       *time.Time    `json:"end_date,omitempty"`
	DateCertainty DateCertainty `json:"date_certainty,omitempty"`
	Source        string        `json:"source,omitempty"`
	// Gated drops the date overwrite when the certainty would downgrade.
	// The history entry is recorded either way.
	Gated bool `json:"gated,omitempty"`

	// Link fields.
	MessageID       string         `json:"message_id,omitempty"`
	EventID         string         `json:"event_id,omitempty"`
	EventData       map[string]any `json:"event_data,omitempty"`
	LinkedBy        string         `json:"linked_by,omitempty"`
	ConfidenceScore *float64       `json:"confidence_score,omitempty"`
	LinkReason      string         `json:"link_reason,omitempty"`
}
