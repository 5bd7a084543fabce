package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tetherhq/tether-engine/pkg/apperrors"
	"github.com/tetherhq/tether-engine/pkg/models"
	"github.com/tetherhq/tether-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// ApiResponse is the standard envelope for all JSON endpoints.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// PaginatedResponse wraps list results with paging metadata.
type PaginatedResponse struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// CreateCommitmentRequest for POST /api/commitments
type CreateCommitmentRequest struct {
	Title           string               `json:"title"`
	Description     string               `json:"description,omitempty"`
	CommitmentType  string               `json:"commitment_type,omitempty"`
	StartDate       *time.Time           `json:"start_date,omitempty"`
	EndDate         *time.Time           `json:"end_date,omitempty"`
	Timezone        string               `json:"timezone,omitempty"`
	DateCertainty   string               `json:"date_certainty,omitempty"`
	Participants    []models.Participant `json:"participants,omitempty"`
	Organizer       string               `json:"organizer,omitempty"`
	Location        string               `json:"location,omitempty"`
	MeetingLinks    []string             `json:"meeting_links,omitempty"`
	ConfidenceScore *float64             `json:"confidence_score,omitempty"`
	Metadata        map[string]any       `json:"metadata,omitempty"`
}

// RefineCommitmentRequest for POST /api/commitments/{cid}/refine
type RefineCommitmentRequest struct {
	StartDate     *time.Time `json:"start_date"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	DateCertainty string     `json:"date_certainty,omitempty"`
	Source        string     `json:"source,omitempty"`
	Gated         bool       `json:"gated,omitempty"`
}

// RefineCommitmentResponse reports whether the date fields moved and the
// record after the update. Applied is always true for ungated refinements.
type RefineCommitmentResponse struct {
	Applied    bool               `json:"applied"`
	Commitment *models.Commitment `json:"commitment"`
}

// UpdateCommitmentStatusRequest for PATCH /api/commitments/{cid}/status
type UpdateCommitmentStatusRequest struct {
	Status string `json:"status"`
}

// LinkEmailRequest for POST /api/commitments/{cid}/emails
type LinkEmailRequest struct {
	MessageID       string   `json:"message_id"`
	LinkedBy        string   `json:"linked_by,omitempty"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`
	LinkReason      string   `json:"link_reason,omitempty"`
}

// LinkCalendarEventRequest for POST /api/commitments/{cid}/calendar-events
type LinkCalendarEventRequest struct {
	EventID         string         `json:"event_id"`
	EventData       map[string]any `json:"event_data,omitempty"`
	LinkedBy        string         `json:"linked_by,omitempty"`
	ConfidenceScore *float64       `json:"confidence_score,omitempty"`
	LinkReason      string         `json:"link_reason,omitempty"`
}

// EmailLinkListResponse for GET /api/commitments/{cid}/emails
type EmailLinkListResponse struct {
	Links []*models.EmailLink `json:"links"`
	Total int                 `json:"total"`
}

// CalendarEventLinkListResponse for GET /api/commitments/{cid}/calendar-events
type CalendarEventLinkListResponse struct {
	Links []*models.CalendarEventLink `json:"links"`
	Total int                         `json:"total"`
}

// ============================================================================
// Handler
// ============================================================================

// CommitmentsHandler handles commitment HTTP requests.
type CommitmentsHandler struct {
	commitmentService services.CommitmentService
	logger            *zap.Logger
}

// NewCommitmentsHandler creates a new commitments handler.
func NewCommitmentsHandler(commitmentService services.CommitmentService, logger *zap.Logger) *CommitmentsHandler {
	return &CommitmentsHandler{
		commitmentService: commitmentService,
		logger:            logger,
	}
}

// RegisterRoutes registers the commitments handler's routes on the given mux.
func (h *CommitmentsHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/commitments"

	mux.HandleFunc("POST "+base, h.Create)
	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("GET "+base+"/{cid}", h.Get)
	mux.HandleFunc("GET "+base+"/{cid}/serialized", h.GetSerialized)
	mux.HandleFunc("POST "+base+"/{cid}/refine", h.Refine)
	mux.HandleFunc("PATCH "+base+"/{cid}/status", h.UpdateStatus)
	mux.HandleFunc("DELETE "+base+"/{cid}", h.Delete)
	mux.HandleFunc("GET "+base+"/{cid}/emails", h.ListEmailLinks)
	mux.HandleFunc("POST "+base+"/{cid}/emails", h.LinkEmail)
	mux.HandleFunc("GET "+base+"/{cid}/calendar-events", h.ListCalendarEventLinks)
	mux.HandleFunc("POST "+base+"/{cid}/calendar-events", h.LinkCalendarEvent)
}

// Create handles POST /api/commitments
func (h *CommitmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCommitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	input := models.CommitmentInput{
		Title:           req.Title,
		Description:     req.Description,
		CommitmentType:  req.CommitmentType,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Timezone:        req.Timezone,
		DateCertainty:   models.DateCertainty(req.DateCertainty),
		Participants:    req.Participants,
		Organizer:       req.Organizer,
		Location:        req.Location,
		MeetingLinks:    req.MeetingLinks,
		ConfidenceScore: req.ConfidenceScore,
		Metadata:        req.Metadata,
	}

	commitment, err := h.commitmentService.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to create commitment", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "create_commitment_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: commitment}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/commitments
func (h *CommitmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := parseCommitmentFilters(r)

	commitments, total, err := h.commitmentService.List(r.Context(), filters)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to list commitments", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_commitments_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if commitments == nil {
		commitments = make([]*models.Commitment, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: PaginatedResponse{
			Items:  commitments,
			Total:  total,
			Limit:  filters.Limit,
			Offset: filters.Offset,
		},
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/commitments/{cid}
func (h *CommitmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	commitmentID, ok := ParseCommitmentID(w, r, h.logger)
	if !ok {
		return
	}

	commitment, err := h.commitmentService.Get(r.Context(), commitmentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "commitment_not_found", "Commitment not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to get commitment",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_commitment_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: commitment}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetSerialized handles GET /api/commitments/{cid}/serialized
func (h *CommitmentsHandler) GetSerialized(w http.ResponseWriter, r *http.Request) {
	commitmentID, ok := ParseCommitmentID(w, r, h.logger)
	if !ok {
		return
	}

	serialized, err := h.commitmentService.Serialize(r.Context(), commitmentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "commitment_not_found", "Commitment not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to serialize commitment",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "serialize_commitment_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: serialized}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Refine handles POST /api/commitments/{cid}/refine
func (h *CommitmentsHandler) Refine(w http.ResponseWriter, r *http.Request) {
	commitmentID, ok := ParseCommitmentID(w, r, h.logger)
	if !ok {
		return
	}

	var req RefineCommitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if req.StartDate == nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "start_date is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	update := models.DateUpdate{
		StartDate:     *req.StartDate,
		EndDate:       req.EndDate,
		DateCertainty: models.DateCertainty(req.DateCertainty),
		Source:        req.Source,
	}

	applied := true
	var err error
	if req.Gated {
		applied, err = h.commitmentService.RefineIfRefinement(r.Context(), commitmentID, update)
	} else {
		err = h.commitmentService.Refine(r.Context(), commitmentID, update)
	}
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
		h.logger.Error("Failed to refine commitment",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "refine_commitment_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	// Fetch the updated record to return it
	commitment, err := h.commitmentService.Get(r.Context(), commitmentID)
	if err != nil {
		h.logger.Error("Failed to get refined commitment",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_commitment_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    RefineCommitmentResponse{Applied: applied, Commitment: commitment},
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UpdateStatus handles PATCH /api/commitments/{cid}/status
func (h *CommitmentsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	commitmentID, ok := ParseCommitmentID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateCommitmentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.commitmentService.UpdateStatus(r.Context(), commitmentID, req.Status); err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "Status must be 'active', 'completed', or 'cancelled'"); err != nil {
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
		h.logger.Error("Failed to update commitment status",
			zap.String("commitment_id", commitmentID.String()),
			zap.String("status", req.Status),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "update_status_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	commitment, err := h.commitmentService.Get(r.Context(), commitmentID)
	if err != nil {
		h.logger.Error("Failed to get updated commitment",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_commitment_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: commitment}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/commitments/{cid}
func (h *CommitmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	commitmentID, ok := ParseCommitmentID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.commitmentService.Delete(r.Context(), commitmentID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "commitment_not_found", "Commitment not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to delete commitment",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "delete_commitment_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]string{"status": "deleted"}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// LinkEmail handles POST /api/commitments/{cid}/emails
func (h *CommitmentsHandler) LinkEmail(w http.ResponseWriter, r *http.Request) {
	commitmentID, ok := ParseCommitmentID(w, r, h.logger)
	if !ok {
		return
	}

	var req LinkEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if strings.TrimSpace(req.MessageID) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "message_id is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	link := &models.EmailLink{
		CommitmentID:    commitmentID,
		MessageID:       req.MessageID,
		LinkedBy:        req.LinkedBy,
		ConfidenceScore: req.ConfidenceScore,
		LinkReason:      req.LinkReason,
	}

	if err := h.commitmentService.LinkEmail(r.Context(), link); err != nil {
		h.writeLinkError(w, err, commitmentID.String(), "link_email_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: link}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListEmailLinks handles GET /api/commitments/{cid}/emails
func (h *CommitmentsHandler) ListEmailLinks(w http.ResponseWriter, r *http.Request) {
	commitmentID, ok := ParseCommitmentID(w, r, h.logger)
	if !ok {
		return
	}

	links, err := h.commitmentService.ListEmailLinks(r.Context(), commitmentID)
	if err != nil {
		h.logger.Error("Failed to list email links",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_email_links_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if links == nil {
		links = make([]*models.EmailLink, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    EmailLinkListResponse{Links: links, Total: len(links)},
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// LinkCalendarEvent handles POST /api/commitments/{cid}/calendar-events
func (h *CommitmentsHandler) LinkCalendarEvent(w http.ResponseWriter, r *http.Request) {
	commitmentID, ok := ParseCommitmentID(w, r, h.logger)
	if !ok {
		return
	}

	var req LinkCalendarEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if strings.TrimSpace(req.EventID) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "event_id is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	link := &models.CalendarEventLink{
		CommitmentID:    commitmentID,
		EventID:         req.EventID,
		EventData:       req.EventData,
		LinkedBy:        req.LinkedBy,
		ConfidenceScore: req.ConfidenceScore,
		LinkReason:      req.LinkReason,
	}

	if err := h.commitmentService.LinkCalendarEvent(r.Context(), link); err != nil {
		h.writeLinkError(w, err, commitmentID.String(), "link_calendar_event_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: link}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListCalendarEventLinks handles GET /api/commitments/{cid}/calendar-events
func (h *CommitmentsHandler) ListCalendarEventLinks(w http.ResponseWriter, r *http.Request) {
	commitmentID, ok := ParseCommitmentID(w, r, h.logger)
	if !ok {
		return
	}

	links, err := h.commitmentService.ListCalendarEventLinks(r.Context(), commitmentID)
	if err != nil {
		h.logger.Error("Failed to list calendar event links",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_calendar_event_links_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if links == nil {
		links = make([]*models.CalendarEventLink, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    CalendarEventLinkListResponse{Links: links, Total: len(links)},
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeLinkError maps link creation failures onto HTTP statuses. Duplicate
// links are a conflict rather than a server error so idempotent callers can
// detect and skip them.
func (h *CommitmentsHandler) writeLinkError(w http.ResponseWriter, err error, commitmentID, failureCode string) {
	switch {
	case errors.Is(err, apperrors.ErrDuplicateLink):
		if err := ErrorResponse(w, http.StatusConflict, "duplicate_link", "Artifact is already linked to this commitment"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
	case errors.Is(err, apperrors.ErrNotFound):
		if err := ErrorResponse(w, http.StatusNotFound, "commitment_not_found", "Commitment not found"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
	case errors.Is(err, apperrors.ErrValidation):
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
	default:
		h.logger.Error("Failed to link artifact",
			zap.String("commitment_id", commitmentID),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, failureCode, err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
	}
}

// parseCommitmentFilters reads list filters from query parameters. Malformed
// values fall back to their defaults rather than failing the request.
func parseCommitmentFilters(r *http.Request) models.CommitmentFilters {
	filters := models.CommitmentFilters{
		Status:         r.URL.Query().Get("status"),
		CommitmentType: r.URL.Query().Get("type"),
		DateCertainty:  models.DateCertainty(r.URL.Query().Get("date_certainty")),
		Limit:          50,
		Offset:         0,
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filters.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filters.Offset = n
		}
	}
	if v := r.URL.Query().Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.Since = &t
		}
	}
	if v := r.URL.Query().Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.Until = &t
		}
	}

	return filters
}
