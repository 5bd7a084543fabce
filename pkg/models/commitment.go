package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tetherhq/tether-engine/pkg/apperrors"
)

// Commitment status values.
const (
	CommitmentStatusActive    = "active"
	CommitmentStatusCompleted = "completed"
	CommitmentStatusCancelled = "cancelled"
)

// Common commitment type tags. The set is open-ended; the type is an
// uninterpreted label and unlisted values are allowed.
const (
	CommitmentTypeMeeting  = "meeting"
	CommitmentTypeEvent    = "event"
	CommitmentTypeProject  = "project"
	CommitmentTypeTrip     = "trip"
	CommitmentTypeDeadline = "deadline"
)

// IsValidCommitmentStatus reports whether s is a recognized status value.
func IsValidCommitmentStatus(s string) bool {
	switch s {
	case CommitmentStatusActive, CommitmentStatusCompleted, CommitmentStatusCancelled:
		return true
	}
	return false
}

// Participant is one entry in a commitment's ordered participant list.
type Participant struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// DateHistoryEntry is one record in the append-only audit trail of date
// observations. Date is a human-readable label, not a parsed timestamp.
type DateHistoryEntry struct {
	Date      string    `json:"date"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Commitment is the canonical record of a real-world temporal event or
// obligation. It is created once per real-world event and then only ever
// refined or terminally transitioned; it is never recreated.
// Stored in the commitments table.
type Commitment struct {
	ID              uuid.UUID          `json:"id"`
	Title           string             `json:"title"`
	Description     *string            `json:"description,omitempty"`
	CommitmentType  string             `json:"commitment_type"`
	Status          string             `json:"status"`
	StartDate       *time.Time         `json:"start_date,omitempty"`
	EndDate         *time.Time         `json:"end_date,omitempty"`
	Timezone        string             `json:"timezone"`
	DateCertainty   DateCertainty      `json:"date_certainty"`
	Participants    []Participant      `json:"participants"`
	Organizer       *string            `json:"organizer,omitempty"`
	Location        *string            `json:"location,omitempty"`
	MeetingLinks    []string           `json:"meeting_links"`
	AutoLinked      bool               `json:"auto_linked"`
	ConfidenceScore *float64           `json:"confidence_score,omitempty"`
	Metadata        CommitmentMetadata `json:"metadata"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// CommitmentInput enumerates every field accepted at creation. There is
// no open-ended pass-through; a field not listed here is not stored.
type CommitmentInput struct {
	Title           string
	Description     string
	CommitmentType  string
	StartDate       *time.Time
	EndDate         *time.Time
	Timezone        string
	DateCertainty   DateCertainty
	Participants    []Participant
	Organizer       string
	Location        string
	MeetingLinks    []string
	ConfidenceScore *float64
	Metadata        map[string]any
}

// NewCommitment builds a new active commitment from input, validating it.
// The returned record has an empty date history and CreatedAt == UpdatedAt.
func NewCommitment(input CommitmentInput) (*Commitment, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", apperrors.ErrValidation)
	}
	if input.StartDate != nil && input.EndDate != nil && input.EndDate.Before(*input.StartDate) {
		return nil, fmt.Errorf("%w: end_date precedes start_date", apperrors.ErrValidation)
	}

	certainty := input.DateCertainty
	if certainty == "" {
		certainty = CertaintyUnknown
	}
	if !certainty.IsValid() {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidCertainty, string(certainty))
	}

	if input.ConfidenceScore != nil && (*input.ConfidenceScore < 0 || *input.ConfidenceScore > 1) {
		return nil, fmt.Errorf("%w: confidence_score must be in [0.0, 1.0]", apperrors.ErrValidation)
	}

	timezone := input.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	participants := input.Participants
	if participants == nil {
		participants = []Participant{}
	}
	meetingLinks := input.MeetingLinks
	if meetingLinks == nil {
		meetingLinks = []string{}
	}

	now := time.Now().UTC()
	c := &Commitment{
		ID:              uuid.New(),
		Title:           input.Title,
		CommitmentType:  input.CommitmentType,
		Status:          CommitmentStatusActive,
		StartDate:       input.StartDate,
		EndDate:         input.EndDate,
		Timezone:        timezone,
		DateCertainty:   certainty,
		Participants:    participants,
		MeetingLinks:    meetingLinks,
		ConfidenceScore: input.ConfidenceScore,
		Metadata:        CommitmentMetadata{Extra: copyMetadata(input.Metadata)},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if input.Description != "" {
		c.Description = &input.Description
	}
	if input.Organizer != "" {
		c.Organizer = &input.Organizer
	}
	if input.Location != "" {
		c.Location = &input.Location
	}

	return c, nil
}

// AppendDateHistory records one date observation in the commitment's audit
// trail. The entry is always appended; dateInfo is an uninterpreted
// human-readable label and is not validated.
func (c *Commitment) AppendDateHistory(dateInfo, source string) {
	c.Metadata.DateHistory = append(c.Metadata.DateHistory, DateHistoryEntry{
		Date:      dateInfo,
		Source:    source,
		UpdatedAt: time.Now().UTC(),
	})
}

// FormatDateInfo renders the human-readable label stored in date history
// entries: the start timestamp, joined with " to " and the end timestamp
// when one is present.
func FormatDateInfo(start time.Time, end *time.Time) string {
	label := start.UTC().Format(time.RFC3339)
	if end != nil {
		label += " to " + end.UTC().Format(time.RFC3339)
	}
	return label
}

// DateUpdate is one date observation applied to an existing commitment.
// An empty DateCertainty defaults to "exact" and an empty Source to
// "update" when the update is applied.
type DateUpdate struct {
	StartDate     time.Time
	EndDate       *time.Time
	DateCertainty DateCertainty
	Source        string
}

// CommitmentFilters narrows ListCommitments queries. Zero-valued fields
// are not applied. Since and Until bound start_date inclusively.
type CommitmentFilters struct {
	Status         string
	CommitmentType string
	DateCertainty  DateCertainty
	Since          *time.Time
	Until          *time.Time
	Limit          int
	Offset         int
}

func copyMetadata(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CommitmentMetadata is the commitment's open metadata mapping with one
// reserved key. DateHistory holds the date_history log as a typed,
// append-only slice; every other key passes through Extra untouched. On
// the wire and in the database the two merge into a single JSON object.
type CommitmentMetadata struct {
	DateHistory []DateHistoryEntry
	Extra       map[string]any
}

// MarshalJSON flattens the metadata into one JSON object, writing the
// date_history key only once at least one entry exists.
func (m CommitmentMetadata) MarshalJSON() ([]byte, error) {
	merged := make(map[string]any, len(m.Extra)+1)
	for k, v := range m.Extra {
		if k == "date_history" {
			continue
		}
		merged[k] = v
	}
	if len(m.DateHistory) > 0 {
		merged["date_history"] = m.DateHistory
	}
	return json.Marshal(merged)
}

// UnmarshalJSON splits a flat metadata object back into the typed history
// log and the open remainder.
func (m *CommitmentMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = CommitmentMetadata{}
	for key, value := range raw {
		if key == "date_history" {
			if err := json.Unmarshal(value, &m.DateHistory); err != nil {
				return fmt.Errorf("failed to unmarshal date_history: %w", err)
			}
			continue
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return err
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[key] = v
	}
	return nil
}

// Scan implements sql.Scanner for reading JSONB from the database.
func (m *CommitmentMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = CommitmentMetadata{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*m = CommitmentMetadata{}
		return nil
	}

	return json.Unmarshal(bytes, m)
}

// Value implements driver.Valuer for writing JSONB to the database.
func (m CommitmentMetadata) Value() (interface{}, error) {
	return json.Marshal(m)
}
