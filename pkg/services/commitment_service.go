package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tetherhq/tether-engine/pkg/apperrors"
	"github.com/tetherhq/tether-engine/pkg/logging"
	"github.com/tetherhq/tether-engine/pkg/models"
	"github.com/tetherhq/tether-engine/pkg/repositories"
)

// CommitmentService provides operations over commitment records and
// their source links.
type CommitmentService interface {
	Create(ctx context.Context, input models.CommitmentInput) (*models.Commitment, error)
	Get(ctx context.Context, commitmentID uuid.UUID) (*models.Commitment, error)
	List(ctx context.Context, filters models.CommitmentFilters) ([]*models.Commitment, int, error)
	Serialize(ctx context.Context, commitmentID uuid.UUID) (*models.SerializedCommitment, error)
	Refine(ctx context.Context, commitmentID uuid.UUID, update models.DateUpdate) error
	RefineIfRefinement(ctx context.Context, commitmentID uuid.UUID, update models.DateUpdate) (bool, error)
	UpdateStatus(ctx context.Context, commitmentID uuid.UUID, status string) error
	Delete(ctx context.Context, commitmentID uuid.UUID) error
	LinkEmail(ctx context.Context, link *models.EmailLink) error
	LinkCalendarEvent(ctx context.Context, link *models.CalendarEventLink) error
	ListEmailLinks(ctx context.Context, commitmentID uuid.UUID) ([]*models.EmailLink, error)
	ListCalendarEventLinks(ctx context.Context, commitmentID uuid.UUID) ([]*models.CalendarEventLink, error)
}

type commitmentService struct {
	commitments repositories.CommitmentRepository
	emails      repositories.EmailLinkRepository
	calendars   repositories.CalendarLinkRepository
	cache       *serializedCache
	logger      *zap.Logger
}

// NewCommitmentService wires the repositories behind the service. A nil
// redisClient disables the serialized cache.
func NewCommitmentService(
	commitments repositories.CommitmentRepository,
	emails repositories.EmailLinkRepository,
	calendars repositories.CalendarLinkRepository,
	redisClient *redis.Client,
	cacheTTL time.Duration,
	logger *zap.Logger,
) CommitmentService {
	logger = logger.Named("commitments")
	return &commitmentService{
		commitments: commitments,
		emails:      emails,
		calendars:   calendars,
		cache:       newSerializedCache(redisClient, cacheTTL, logger),
		logger:      logger,
	}
}

var _ CommitmentService = (*commitmentService)(nil)

func (s *commitmentService) Create(ctx context.Context, input models.CommitmentInput) (*models.Commitment, error) {
	commitment, err := models.NewCommitment(input)
	if err != nil {
		return nil, err
	}

	if err := s.commitments.Create(ctx, commitment); err != nil {
		s.logger.Error("Failed to create commitment",
			zap.String("title", logging.TruncateString(input.Title, 80)),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Created commitment",
		zap.String("commitment_id", commitment.ID.String()),
		zap.String("commitment_type", commitment.CommitmentType),
		zap.String("date_certainty", string(commitment.DateCertainty)))
	return commitment, nil
}

func (s *commitmentService) Get(ctx context.Context, commitmentID uuid.UUID) (*models.Commitment, error) {
	commitment, err := s.commitments.GetByID(ctx, commitmentID)
	if err != nil {
		s.logger.Error("Failed to get commitment",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		return nil, err
	}
	if commitment == nil {
		return nil, apperrors.ErrNotFound
	}
	return commitment, nil
}

func (s *commitmentService) List(ctx context.Context, filters models.CommitmentFilters) ([]*models.Commitment, int, error) {
	if filters.Status != "" && !models.IsValidCommitmentStatus(filters.Status) {
		return nil, 0, fmt.Errorf("%w: invalid status filter %q", apperrors.ErrValidation, filters.Status)
	}
	if filters.DateCertainty != "" && !filters.DateCertainty.IsValid() {
		return nil, 0, fmt.Errorf("%w: %q", apperrors.ErrInvalidCertainty, string(filters.DateCertainty))
	}

	commitments, total, err := s.commitments.List(ctx, filters)
	if err != nil {
		s.logger.Error("Failed to list commitments", zap.Error(err))
		return nil, 0, err
	}
	return commitments, total, nil
}

func (s *commitmentService) Serialize(ctx context.Context, commitmentID uuid.UUID) (*models.SerializedCommitment, error) {
	if cached := s.cache.Get(ctx, commitmentID); cached != nil {
		return cached, nil
	}

	commitment, err := s.commitments.GetByID(ctx, commitmentID)
	if err != nil {
		s.logger.Error("Failed to get commitment",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		return nil, err
	}
	if commitment == nil {
		return nil, apperrors.ErrNotFound
	}

	emailCount, err := s.emails.CountByCommitment(ctx, commitmentID)
	if err != nil {
		s.logger.Error("Failed to count email links",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		return nil, err
	}
	calendarEventCount, err := s.calendars.CountByCommitment(ctx, commitmentID)
	if err != nil {
		s.logger.Error("Failed to count calendar event links",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		return nil, err
	}

	serialized := commitment.Serialize(emailCount, calendarEventCount)
	s.cache.Set(ctx, commitmentID, serialized)
	return serialized, nil
}

func (s *commitmentService) Refine(ctx context.Context, commitmentID uuid.UUID, update models.DateUpdate) error {
	if err := s.commitments.Refine(ctx, commitmentID, update); err != nil {
		return err
	}

	s.cache.Invalidate(ctx, commitmentID)
	return nil
}

func (s *commitmentService) RefineIfRefinement(ctx context.Context, commitmentID uuid.UUID, update models.DateUpdate) (bool, error) {
	applied, err := s.commitments.RefineIfRefinement(ctx, commitmentID, update)
	if err != nil {
		return false, err
	}

	// The history entry lands whether or not the fields moved, so the
	// cached serialization is stale either way.
	s.cache.Invalidate(ctx, commitmentID)
	return applied, nil
}

func (s *commitmentService) UpdateStatus(ctx context.Context, commitmentID uuid.UUID, status string) error {
	if !models.IsValidCommitmentStatus(status) {
		return fmt.Errorf("%w: invalid status %q", apperrors.ErrValidation, status)
	}

	if err := s.commitments.UpdateStatus(ctx, commitmentID, status); err != nil {
		return err
	}

	s.logger.Info("Updated commitment status",
		zap.String("commitment_id", commitmentID.String()),
		zap.String("status", status))
	s.cache.Invalidate(ctx, commitmentID)
	return nil
}

func (s *commitmentService) Delete(ctx context.Context, commitmentID uuid.UUID) error {
	if err := s.commitments.Delete(ctx, commitmentID); err != nil {
		return err
	}

	s.logger.Info("Deleted commitment",
		zap.String("commitment_id", commitmentID.String()))
	s.cache.Invalidate(ctx, commitmentID)
	return nil
}

func (s *commitmentService) LinkEmail(ctx context.Context, link *models.EmailLink) error {
	if err := s.emails.Create(ctx, link); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateLink) {
			s.logger.Debug("Email already linked",
				zap.String("commitment_id", link.CommitmentID.String()),
				zap.String("message_id", link.MessageID))
		} else if !errors.Is(err, apperrors.ErrNotFound) && !errors.Is(err, apperrors.ErrValidation) {
			s.logger.Error("Failed to link email",
				zap.String("commitment_id", link.CommitmentID.String()),
				zap.String("message_id", link.MessageID),
				zap.Error(err))
		}
		return err
	}

	s.cache.Invalidate(ctx, link.CommitmentID)
	return nil
}

func (s *commitmentService) LinkCalendarEvent(ctx context.Context, link *models.CalendarEventLink) error {
	if err := s.calendars.Create(ctx, link); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateLink) {
			s.logger.Debug("Calendar event already linked",
				zap.String("commitment_id", link.CommitmentID.String()),
				zap.String("event_id", link.EventID))
		} else if !errors.Is(err, apperrors.ErrNotFound) && !errors.Is(err, apperrors.ErrValidation) {
			s.logger.Error("Failed to link calendar event",
				zap.String("commitment_id", link.CommitmentID.String()),
				zap.String("event_id", link.EventID),
				zap.Error(err))
		}
		return err
	}

	s.cache.Invalidate(ctx, link.CommitmentID)
	return nil
}

func (s *commitmentService) ListEmailLinks(ctx context.Context, commitmentID uuid.UUID) ([]*models.EmailLink, error) {
	links, err := s.emails.ListByCommitment(ctx, commitmentID)
	if err != nil {
		s.logger.Error("Failed to list email links",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		return nil, err
	}
	return links, nil
}

func (s *commitmentService) ListCalendarEventLinks(ctx context.Context, commitmentID uuid.UUID) ([]*models.CalendarEventLink, error) {
	links, err := s.calendars.ListByCommitment(ctx, commitmentID)
	if err != nil {
		s.logger.Error("Failed to list calendar event links",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		return nil, err
	}
	return links, nil
}
