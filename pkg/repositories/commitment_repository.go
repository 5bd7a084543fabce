package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tetherhq/tether-engine/pkg/apperrors"
	"github.com/tetherhq/tether-engine/pkg/database"
	"github.com/tetherhq/tether-engine/pkg/models"
)

// CommitmentRepository provides data access for commitment records.
type CommitmentRepository interface {
	Create(ctx context.Context, commitment *models.Commitment) error
	GetByID(ctx context.Context, commitmentID uuid.UUID) (*models.Commitment, error)
	List(ctx context.Context, filters models.CommitmentFilters) ([]*models.Commitment, int, error)
	// Refine applies a date observation unconditionally: history is
	// appended, start_date and date_certainty are overwritten, end_date
	// only when the update carries one.
	Refine(ctx context.Context, commitmentID uuid.UUID, update models.DateUpdate) error
	// RefineIfRefinement applies the observation only when the new
	// certainty does not rank below the stored one. The history entry is
	// recorded either way. Returns whether the fields were applied.
	RefineIfRefinement(ctx context.Context, commitmentID uuid.UUID, update models.DateUpdate) (bool, error)
	UpdateStatus(ctx context.Context, commitmentID uuid.UUID, status string) error
	Delete(ctx context.Context, commitmentID uuid.UUID) error
}

type commitmentRepository struct {
	db *database.DB
}

func NewCommitmentRepository(db *database.DB) CommitmentRepository {
	return &commitmentRepository{db: db}
}

var _ CommitmentRepository = (*commitmentRepository)(nil)

func (r *commitmentRepository) Create(ctx context.Context, commitment *models.Commitment) error {
	query := `
		INSERT INTO commitments (
			id, title, description, commitment_type, status,
			start_date, end_date, timezone, date_certainty,
			participants, organizer, location, meeting_links,
			auto_linked, confidence_score, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := r.db.Pool.Exec(ctx, query,
		commitment.ID,
		commitment.Title,
		commitment.Description,
		nullString(commitment.CommitmentType),
		commitment.Status,
		commitment.StartDate,
		commitment.EndDate,
		nullString(commitment.Timezone),
		string(commitment.DateCertainty),
		commitment.Participants,
		commitment.Organizer,
		commitment.Location,
		commitment.MeetingLinks,
		commitment.AutoLinked,
		commitment.ConfidenceScore,
		commitment.Metadata,
		commitment.CreatedAt,
		commitment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create commitment: %w", err)
	}

	return nil
}

func (r *commitmentRepository) GetByID(ctx context.Context, commitmentID uuid.UUID) (*models.Commitment, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, title, description, commitment_type, status,
		       start_date, end_date, timezone, date_certainty,
		       participants, organizer, location, meeting_links,
		       auto_linked, confidence_score, metadata, created_at, updated_at
		FROM commitments
		WHERE id = $1`, commitmentID)

	commitment, err := scanCommitment(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get commitment: %w", err)
	}

	return commitment, nil
}

func (r *commitmentRepository) List(ctx context.Context, filters models.CommitmentFilters) ([]*models.Commitment, int, error) {
	limit, offset := normalizePageParams(filters.Limit, filters.Offset)

	conditions := []string{}
	args := []any{}
	argIdx := 1

	if filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filters.Status)
		argIdx++
	}
	if filters.CommitmentType != "" {
		conditions = append(conditions, fmt.Sprintf("commitment_type = $%d", argIdx))
		args = append(args, filters.CommitmentType)
		argIdx++
	}
	if filters.DateCertainty != "" {
		conditions = append(conditions, fmt.Sprintf("date_certainty = $%d", argIdx))
		args = append(args, string(filters.DateCertainty))
		argIdx++
	}
	if filters.Since != nil {
		conditions = append(conditions, fmt.Sprintf("start_date >= $%d", argIdx))
		args = append(args, *filters.Since)
		argIdx++
	}
	if filters.Until != nil {
		conditions = append(conditions, fmt.Sprintf("start_date <= $%d", argIdx))
		args = append(args, *filters.Until)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM commitments %s`, where)
	var total int
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count commitments: %w", err)
	}

	// Data
	dataQuery := fmt.Sprintf(`
		SELECT id, title, description, commitment_type, status,
		       start_date, end_date, timezone, date_certainty,
		       participants, organizer, location, meeting_links,
		       auto_linked, confidence_score, metadata, created_at, updated_at
		FROM commitments
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)

	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list commitments: %w", err)
	}
	defer rows.Close()

	var commitments []*models.Commitment
	for rows.Next() {
		commitment, err := scanCommitment(rows)
		if err != nil {
			return nil, 0, err
		}
		commitments = append(commitments, commitment)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating commitments: %w", err)
	}

	return commitments, total, nil
}

func (r *commitmentRepository) Refine(ctx context.Context, commitmentID uuid.UUID, update models.DateUpdate) error {
	_, err := r.refine(ctx, commitmentID, update, false)
	return err
}

func (r *commitmentRepository) RefineIfRefinement(ctx context.Context, commitmentID uuid.UUID, update models.DateUpdate) (bool, error) {
	return r.refine(ctx, commitmentID, update, true)
}

// refine runs the read-modify-write cycle as a single transaction so the
// history append and the field overwrite commit together. The row lock
// serializes concurrent refiners on the same commitment.
func (r *commitmentRepository) refine(ctx context.Context, commitmentID uuid.UUID, update models.DateUpdate, gated bool) (bool, error) {
	certainty := update.DateCertainty
	if certainty == "" {
		certainty = models.CertaintyExact
	}
	if !certainty.IsValid() {
		return false, fmt.Errorf("%w: %q", apperrors.ErrInvalidCertainty, string(certainty))
	}

	source := update.Source
	if source == "" {
		source = "update"
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	row := tx.QueryRow(ctx, `
		SELECT id, title, description, commitment_type, status,
		       start_date, end_date, timezone, date_certainty,
		       participants, organizer, location, meeting_links,
		       auto_linked, confidence_score, metadata, created_at, updated_at
		FROM commitments
		WHERE id = $1
		FOR UPDATE`, commitmentID)

	commitment, err := scanCommitment(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, apperrors.ErrNotFound
		}
		return false, fmt.Errorf("failed to lock commitment: %w", err)
	}

	applied := true
	if gated {
		applied, err = models.IsRefinement(commitment.DateCertainty, certainty)
		if err != nil {
			return false, err
		}
	}

	commitment.AppendDateHistory(models.FormatDateInfo(update.StartDate, update.EndDate), source)
	if applied {
		start := update.StartDate
		commitment.StartDate = &start
		if update.EndDate != nil {
			commitment.EndDate = update.EndDate
		}
		commitment.DateCertainty = certainty
	}
	commitment.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx, `
		UPDATE commitments
		SET start_date = $2, end_date = $3, date_certainty = $4, metadata = $5, updated_at = $6
		WHERE id = $1`,
		commitmentID,
		commitment.StartDate,
		commitment.EndDate,
		string(commitment.DateCertainty),
		commitment.Metadata,
		commitment.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update commitment dates: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return applied, nil
}

func (r *commitmentRepository) UpdateStatus(ctx context.Context, commitmentID uuid.UUID, status string) error {
	result, err := r.db.Pool.Exec(ctx, `
		UPDATE commitments
		SET status = $2, updated_at = $3
		WHERE id = $1`,
		commitmentID, status, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update commitment status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *commitmentRepository) Delete(ctx context.Context, commitmentID uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM commitments WHERE id = $1`, commitmentID)
	if err != nil {
		return fmt.Errorf("failed to delete commitment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func scanCommitment(row pgx.Row) (*models.Commitment, error) {
	var c models.Commitment
	var commitmentType, timezone *string
	var certainty string
	var participants, meetingLinks, metadata []byte

	err := row.Scan(
		&c.ID,
		&c.Title,
		&c.Description,
		&commitmentType,
		&c.Status,
		&c.StartDate,
		&c.EndDate,
		&timezone,
		&certainty,
		&participants,
		&c.Organizer,
		&c.Location,
		&meetingLinks,
		&c.AutoLinked,
		&c.ConfidenceScore,
		&metadata,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan commitment: %w", err)
	}

	// Handle nullable string fields
	if commitmentType != nil {
		c.CommitmentType = *commitmentType
	}
	if timezone != nil {
		c.Timezone = *timezone
	}
	c.DateCertainty = models.DateCertainty(certainty)

	c.Participants = []models.Participant{}
	if len(participants) > 0 && string(participants) != "null" {
		if err := jsonUnmarshal(participants, &c.Participants); err != nil {
			return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
		}
	}
	c.MeetingLinks = []string{}
	if len(meetingLinks) > 0 && string(meetingLinks) != "null" {
		if err := jsonUnmarshal(meetingLinks, &c.MeetingLinks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal meeting_links: %w", err)
		}
	}
	if len(metadata) > 0 && string(metadata) != "null" {
		if err := jsonUnmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &c, nil
}

// nullString returns nil if the string is empty, otherwise returns the string pointer.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// jsonUnmarshal unmarshals JSONB data from the database.
func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// normalizePageParams clamps paging inputs to sane bounds.
func normalizePageParams(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
