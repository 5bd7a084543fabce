package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tetherhq/tether-engine/pkg/apperrors"
	"github.com/tetherhq/tether-engine/pkg/database"
	"github.com/tetherhq/tether-engine/pkg/models"
)

// CalendarLinkRepository provides data access for commitment calendar
// event links, keyed on (commitment_id, event_id).
type CalendarLinkRepository interface {
	Create(ctx context.Context, link *models.CalendarEventLink) error
	ListByCommitment(ctx context.Context, commitmentID uuid.UUID) ([]*models.CalendarEventLink, error)
	CountByCommitment(ctx context.Context, commitmentID uuid.UUID) (int, error)
}

type calendarLinkRepository struct {
	db *database.DB
}

func NewCalendarLinkRepository(db *database.DB) CalendarLinkRepository {
	return &calendarLinkRepository{db: db}
}

var _ CalendarLinkRepository = (*calendarLinkRepository)(nil)

// Create inserts the link with an event payload snapshot and, for
// ai-provenance links, flags the owning commitment as auto-linked in the
// same transaction. Duplicate pairs map to ErrDuplicateLink, an
// unresolvable commitment id to ErrNotFound.
func (r *calendarLinkRepository) Create(ctx context.Context, link *models.CalendarEventLink) error {
	if link.LinkedBy == "" {
		link.LinkedBy = models.LinkedByAI
	}
	if !models.IsValidLinkedBy(link.LinkedBy) {
		return fmt.Errorf("%w: invalid linked_by %q", apperrors.ErrValidation, link.LinkedBy)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	err = tx.QueryRow(ctx, `
		INSERT INTO commitment_calendar_events (commitment_id, event_id, event_data, linked_by, confidence_score, link_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, linked_at`,
		link.CommitmentID,
		link.EventID,
		jsonbValue(link.EventData),
		link.LinkedBy,
		link.ConfidenceScore,
		nullString(link.LinkReason),
	).Scan(&link.ID, &link.LinkedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return apperrors.ErrDuplicateLink
			case "23503":
				return apperrors.ErrNotFound
			}
		}
		return fmt.Errorf("failed to create calendar event link: %w", err)
	}

	if link.LinkedBy == models.LinkedByAI {
		_, err = tx.Exec(ctx, `
			UPDATE commitments
			SET auto_linked = TRUE, updated_at = now()
			WHERE id = $1`, link.CommitmentID)
		if err != nil {
			return fmt.Errorf("failed to mark commitment auto-linked: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *calendarLinkRepository) ListByCommitment(ctx context.Context, commitmentID uuid.UUID) ([]*models.CalendarEventLink, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, commitment_id, event_id, event_data, linked_at, linked_by, confidence_score, link_reason
		FROM commitment_calendar_events
		WHERE commitment_id = $1
		ORDER BY linked_at DESC`, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar event links: %w", err)
	}
	defer rows.Close()

	var links []*models.CalendarEventLink
	for rows.Next() {
		link, err := scanCalendarEventLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calendar event links: %w", err)
	}

	return links, nil
}

func (r *calendarLinkRepository) CountByCommitment(ctx context.Context, commitmentID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM commitment_calendar_events WHERE commitment_id = $1`, commitmentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count calendar event links: %w", err)
	}

	return count, nil
}

func scanCalendarEventLink(row pgx.Row) (*models.CalendarEventLink, error) {
	var l models.CalendarEventLink
	var eventData []byte
	var reason *string

	err := row.Scan(
		&l.ID,
		&l.CommitmentID,
		&l.EventID,
		&eventData,
		&l.LinkedAt,
		&l.LinkedBy,
		&l.ConfidenceScore,
		&reason,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan calendar event link: %w", err)
	}

	if len(eventData) > 0 && string(eventData) != "null" {
		if err := jsonUnmarshal(eventData, &l.EventData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event_data: %w", err)
		}
	}
	if reason != nil {
		l.LinkReason = *reason
	}

	return &l, nil
}

// jsonbValue converts an open mapping to JSONB format for database
// insertion. Returns nil for nil/empty maps to store NULL.
func jsonbValue(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	return m
}
