package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tetherhq/tether-engine/pkg/apperrors"
	"github.com/tetherhq/tether-engine/pkg/database"
	"github.com/tetherhq/tether-engine/pkg/models"
	"github.com/tetherhq/tether-engine/pkg/retry"
)

// ObservationResult reports how an observation landed.
type ObservationResult struct {
	// Commitment is the record after the observation was applied.
	Commitment *models.Commitment `json:"commitment"`
	// Created is true when the observation opened a new commitment.
	Created bool `json:"created"`
	// Applied is true when the observation's date fields are reflected
	// in the stored record. A gated refinement that was rejected leaves
	// this false; the history entry is recorded regardless.
	Applied bool `json:"applied"`
	// Linked is true when at least one new link row was written.
	Linked bool `json:"linked"`
}

// IngestService applies extracted observations to the commitment store.
// It owns the collaborator-side retry policy: transient storage failures
// are retried with backoff, everything else returns immediately. An
// already-linked artifact counts as success so redelivered observations
// stay idempotent.
type IngestService interface {
	ApplyObservation(ctx context.Context, obs models.Observation) (*ObservationResult, error)
}

type ingestService struct {
	commitments CommitmentService
	retryCfg    *retry.Config
	logger      *zap.Logger
}

func NewIngestService(commitments CommitmentService, retryCfg *retry.Config, logger *zap.Logger) IngestService {
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &ingestService{
		commitments: commitments,
		retryCfg:    retryCfg,
		logger:      logger.Named("ingest"),
	}
}

var _ IngestService = (*ingestService)(nil)

// withRetry retries fn on transient storage failures only. The
// classifier marks sentinel and validation errors non-retryable, so
// those surface on the first attempt.
func (s *ingestService) withRetry(ctx context.Context, fn func() error) error {
	return retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		return database.ClassifyRetryable(fn())
	})
}

func (s *ingestService) ApplyObservation(ctx context.Context, obs models.Observation) (*ObservationResult, error) {
	result := &ObservationResult{}

	var commitmentID uuid.UUID
	if obs.CommitmentID != nil {
		commitmentID = *obs.CommitmentID
		if obs.StartDate == nil && obs.MessageID == "" && obs.EventID == "" {
			return nil, fmt.Errorf("%w: observation carries no dates and no artifact to link", apperrors.ErrValidation)
		}

		if obs.StartDate != nil {
			update := models.DateUpdate{
				StartDate:     *obs.StartDate,
				EndDate:       obs.EndDate,
				DateCertainty: obs.DateCertainty,
				Source:        obs.Source,
			}
			if obs.Gated {
				var applied bool
				err := s.withRetry(ctx, func() error {
					var refineErr error
					applied, refineErr = s.commitments.RefineIfRefinement(ctx, commitmentID, update)
					return refineErr
				})
				if err != nil {
					return nil, err
				}
				result.Applied = applied
			} else {
				err := s.withRetry(ctx, func() error {
					return s.commitments.Refine(ctx, commitmentID, update)
				})
				if err != nil {
					return nil, err
				}
				result.Applied = true
			}
		}
	} else {
		input := models.CommitmentInput{
			Title:           obs.Title,
			CommitmentType:  obs.CommitmentType,
			StartDate:       obs.StartDate,
			EndDate:         obs.EndDate,
			Timezone:        obs.Timezone,
			DateCertainty:   obs.DateCertainty,
			ConfidenceScore: obs.ConfidenceScore,
		}
		var commitment *models.Commitment
		err := s.withRetry(ctx, func() error {
			var createErr error
			commitment, createErr = s.commitments.Create(ctx, input)
			return createErr
		})
		if err != nil {
			return nil, err
		}
		commitmentID = commitment.ID
		result.Created = true
		result.Applied = obs.StartDate != nil
	}

	if obs.MessageID != "" {
		link := &models.EmailLink{
			CommitmentID:    commitmentID,
			MessageID:       obs.MessageID,
			LinkedBy:        obs.LinkedBy,
			ConfidenceScore: obs.ConfidenceScore,
			LinkReason:      obs.LinkReason,
		}
		err := s.withRetry(ctx, func() error {
			return s.commitments.LinkEmail(ctx, link)
		})
		switch {
		case err == nil:
			result.Linked = true
		case errors.Is(err, apperrors.ErrDuplicateLink):
			s.logger.Debug("Observation email already linked",
				zap.String("commitment_id", commitmentID.String()),
				zap.String("message_id", obs.MessageID))
		default:
			return nil, err
		}
	}

	if obs.EventID != "" {
		link := &models.CalendarEventLink{
			CommitmentID:    commitmentID,
			EventID:         obs.EventID,
			EventData:       obs.EventData,
			LinkedBy:        obs.LinkedBy,
			ConfidenceScore: obs.ConfidenceScore,
			LinkReason:      obs.LinkReason,
		}
		err := s.withRetry(ctx, func() error {
			return s.commitments.LinkCalendarEvent(ctx, link)
		})
		switch {
		case err == nil:
			result.Linked = true
		case errors.Is(err, apperrors.ErrDuplicateLink):
			s.logger.Debug("Observation calendar event already linked",
				zap.String("commitment_id", commitmentID.String()),
				zap.String("event_id", obs.EventID))
		default:
			return nil, err
		}
	}

	var commitment *models.Commitment
	err := s.withRetry(ctx, func() error {
		var getErr error
		commitment, getErr = s.commitments.Get(ctx, commitmentID)
		return getErr
	})
	if err != nil {
		return nil, err
	}
	result.Commitment = commitment

	s.logger.Info("Applied observation",
		zap.String("commitment_id", commitmentID.String()),
		zap.String("source", obs.Source),
		zap.Bool("created", result.Created),
		zap.Bool("applied", result.Applied),
		zap.Bool("linked", result.Linked))
	return result, nil
}
