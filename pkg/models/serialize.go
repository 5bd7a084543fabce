package models

import "time"

// SerializedCommitment is the flat, JSON-compatible rendering of a
// commitment plus the derived link counts. Timestamps render as RFC 3339
// in UTC; absent timestamps render as JSON null.
type SerializedCommitment struct {
	ID                 string             `json:"id"`
	Title              string             `json:"title"`
	Description        *string            `json:"description"`
	CommitmentType     string             `json:"commitment_type"`
	Status             string             `json:"status"`
	StartDate          *string            `json:"start_date"`
	EndDate            *string            `json:"end_date"`
	Timezone           string             `json:"timezone"`
	DateCertainty      string             `json:"date_certainty"`
	Participants       []Participant      `json:"participants"`
	Organizer          *string            `json:"organizer"`
	Location           *string            `json:"location"`
	MeetingLinks       []string           `json:"meeting_links"`
	AutoLinked         bool               `json:"auto_linked"`
	ConfidenceScore    *float64           `json:"confidence_score"`
	Metadata           CommitmentMetadata `json:"metadata"`
	EmailCount         int                `json:"email_count"`
	CalendarEventCount int                `json:"calendar_event_count"`
	CreatedAt          *string            `json:"created_at"`
	UpdatedAt          *string            `json:"updated_at"`
}

// Serialize renders the commitment with the given link counts. The counts
// are derived state owned by the link registry, so the caller supplies
// them rather than the record guessing.
func (c *Commitment) Serialize(emailCount, calendarEventCount int) *SerializedCommitment {
	participants := c.Participants
	if participants == nil {
		participants = []Participant{}
	}
	meetingLinks := c.MeetingLinks
	if meetingLinks == nil {
		meetingLinks = []string{}
	}

	return &SerializedCommitment{
		ID:                 c.ID.String(),
		Title:              c.Title,
		Description:        c.Description,
		CommitmentType:     c.CommitmentType,
		Status:             c.Status,
		StartDate:          formatTimestamp(c.StartDate),
		EndDate:            formatTimestamp(c.EndDate),
		Timezone:           c.Timezone,
		DateCertainty:      string(c.DateCertainty),
		Participants:       participants,
		Organizer:          c.Organizer,
		Location:           c.Location,
		MeetingLinks:       meetingLinks,
		AutoLinked:         c.AutoLinked,
		ConfidenceScore:    c.ConfidenceScore,
		Metadata:           c.Metadata,
		EmailCount:         emailCount,
		CalendarEventCount: calendarEventCount,
		CreatedAt:          formatTimestamp(&c.CreatedAt),
		UpdatedAt:          formatTimestamp(&c.UpdatedAt),
	}
}

// formatTimestamp renders a timestamp as RFC 3339 UTC, or nil when absent.
func formatTimestamp(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
