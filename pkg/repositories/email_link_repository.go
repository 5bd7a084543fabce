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

// EmailLinkRepository provides data access for commitment email links.
// Links are immutable once written; the unique index on
// (commitment_id, message_id) is the only duplicate guard.
type EmailLinkRepository interface {
	Create(ctx context.Context, link *models.EmailLink) error
	ListByCommitment(ctx context.Context, commitmentID uuid.UUID) ([]*models.EmailLink, error)
	CountByCommitment(ctx context.Context, commitmentID uuid.UUID) (int, error)
}

type emailLinkRepository struct {
	db *database.DB
}

func NewEmailLinkRepository(db *database.DB) EmailLinkRepository {
	return &emailLinkRepository{db: db}
}

var _ EmailLinkRepository = (*emailLinkRepository)(nil)

// Create inserts the link and, for ai-provenance links, flags the owning
// commitment as auto-linked in the same transaction. Duplicate pairs map
// to ErrDuplicateLink, an unresolvable commitment id to ErrNotFound.
func (r *emailLinkRepository) Create(ctx context.Context, link *models.EmailLink) error {
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
		INSERT INTO commitment_emails (commitment_id, message_id, linked_by, confidence_score, link_reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, linked_at`,
		link.CommitmentID,
		link.MessageID,
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
		return fmt.Errorf("failed to create email link: %w", err)
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

func (r *emailLinkRepository) ListByCommitment(ctx context.Context, commitmentID uuid.UUID) ([]*models.EmailLink, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, commitment_id, message_id, linked_at, linked_by, confidence_score, link_reason
		FROM commitment_emails
		WHERE commitment_id = $1
		ORDER BY linked_at DESC`, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list email links: %w", err)
	}
	defer rows.Close()

	var links []*models.EmailLink
	for rows.Next() {
		link, err := scanEmailLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating email links: %w", err)
	}

	return links, nil
}

func (r *emailLinkRepository) CountByCommitment(ctx context.Context, commitmentID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM commitment_emails WHERE commitment_id = $1`, commitmentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count email links: %w", err)
	}

	return count, nil
}

func scanEmailLink(row pgx.Row) (*models.EmailLink, error) {
	var l models.EmailLink
	var reason *string

	err := row.Scan(
		&l.ID,
		&l.CommitmentID,
		&l.MessageID,
		&l.LinkedAt,
		&l.LinkedBy,
		&l.ConfidenceScore,
		&reason,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan email link: %w", err)
	}

	if reason != nil {
		l.LinkReason = *reason
	}

	return &l, nil
}
