package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tetherhq/tether-engine/pkg/apperrors"
	"github.com/tetherhq/tether-engine/pkg/models"
	"github.com/tetherhq/tether-engine/pkg/services"
)

// ObservationsHandler accepts extracted observations and applies them
// through the ingest pipeline.
type ObservationsHandler struct {
	ingestService services.IngestService
	logger        *zap.Logger
}

// NewObservationsHandler creates a new observations handler.
func NewObservationsHandler(ingestService services.IngestService, logger *zap.Logger) *ObservationsHandler {
	return &ObservationsHandler{
		ingestService: ingestService,
		logger:        logger,
	}
}

// RegisterRoutes registers the observations handler's routes on the given mux.
func (h *ObservationsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/observations", h.Apply)
}

// Apply handles POST /api/observations
//
// Without a commitment_id the observation opens a new commitment; with one it
// refines the existing record. Either way any referenced email or calendar
// event is linked. Returns 201 when a commitment was created, 200 otherwise.
func (h *ObservationsHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var obs models.Observation
	if err := json.NewDecoder(r.Body).Decode(&obs); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.ingestService.ApplyObservation(r.Context(), obs)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "commitment_not_found", "Commitment not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to apply observation", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "apply_observation_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}

	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
