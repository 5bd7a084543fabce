package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tetherhq/tether-engine/pkg/apperrors"
	"github.com/tetherhq/tether-engine/pkg/models"
)

// mockCommitmentService implements services.CommitmentService for handler testing.
type mockCommitmentService struct {
	commitment *models.Commitment
	serialized *models.SerializedCommitment
	list       []*models.Commitment
	total      int
	applied    bool
	emailLinks []*models.EmailLink
	eventLinks []*models.CalendarEventLink

	createErr error
	getErr    error
	listErr   error
	refineErr error
	statusErr error
	deleteErr error
	linkErr   error

	capturedInput   models.CommitmentInput
	capturedUpdate  models.DateUpdate
	capturedStatus  string
	capturedFilters models.CommitmentFilters
	capturedEmail   *models.EmailLink
	capturedEvent   *models.CalendarEventLink
	refineCalls     int
	gatedCalls      int
}

func (m *mockCommitmentService) Create(_ context.Context, input models.CommitmentInput) (*models.Commitment, error) {
	m.capturedInput = input
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.commitment, nil
}

func (m *mockCommitmentService) Get(_ context.Context, _ uuid.UUID) (*models.Commitment, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.commitment, nil
}

func (m *mockCommitmentService) List(_ context.Context, filters models.CommitmentFilters) ([]*models.Commitment, int, error) {
	m.capturedFilters = filters
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.list, m.total, nil
}

func (m *mockCommitmentService) Serialize(_ context.Context, _ uuid.UUID) (*models.SerializedCommitment, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.serialized, nil
}

func (m *mockCommitmentService) Refine(_ context.Context, _ uuid.UUID, update models.DateUpdate) error {
	m.refineCalls++
	m.capturedUpdate = update
	return m.refineErr
}

func (m *mockCommitmentService) RefineIfRefinement(_ context.Context, _ uuid.UUID, update models.DateUpdate) (bool, error) {
	m.gatedCalls++
	m.capturedUpdate = update
	if m.refineErr != nil {
		return false, m.refineErr
	}
	return m.applied, nil
}

func (m *mockCommitmentService) UpdateStatus(_ context.Context, _ uuid.UUID, status string) error {
	m.capturedStatus = status
	return m.statusErr
}

func (m *mockCommitmentService) Delete(_ context.Context, _ uuid.UUID) error {
	return m.deleteErr
}

func (m *mockCommitmentService) LinkEmail(_ context.Context, link *models.EmailLink) error {
	m.capturedEmail = link
	if m.linkErr != nil {
		return m.linkErr
	}
	link.ID = uuid.New()
	link.LinkedAt = time.Now().UTC()
	return nil
}

func (m *mockCommitmentService) LinkCalendarEvent(_ context.Context, link *models.CalendarEventLink) error {
	m.capturedEvent = link
	if m.linkErr != nil {
		return m.linkErr
	}
	link.ID = uuid.New()
	link.LinkedAt = time.Now().UTC()
	return nil
}

func (m *mockCommitmentService) ListEmailLinks(_ context.Context, _ uuid.UUID) ([]*models.EmailLink, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.emailLinks, nil
}

func (m *mockCommitmentService) ListCalendarEventLinks(_ context.Context, _ uuid.UUID) ([]*models.CalendarEventLink, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.eventLinks, nil
}

func makeCommitmentRequest(method, path string, body []byte, commitmentID uuid.UUID) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if commitmentID != uuid.Nil {
		req.SetPathValue("cid", commitmentID.String())
	}
	return req
}

func handlerTestCommitment(id uuid.UUID) *models.Commitment {
	start := time.Date(2025, 12, 15, 14, 0, 0, 0, time.UTC)
	now := time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)
	return &models.Commitment{
		ID:             id,
		Title:          "Team Offsite",
		CommitmentType: models.CommitmentTypeTrip,
		Status:         models.CommitmentStatusActive,
		StartDate:      &start,
		Timezone:       "UTC",
		DateCertainty:  models.CertaintyDay,
		Participants:   []models.Participant{},
		MeetingLinks:   []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestCommitmentsHandler_Create_Success(t *testing.T) {
	svc := &mockCommitmentService{commitment: handlerTestCommitment(uuid.New())}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	start := time.Date(2025, 12, 15, 14, 0, 0, 0, time.UTC)
	body, _ := json.Marshal(CreateCommitmentRequest{
		Title:          "Team Offsite",
		CommitmentType: "trip",
		StartDate:      &start,
		DateCertainty:  "day",
	})
	req := makeCommitmentRequest("POST", "/api/commitments", body, uuid.Nil)
	rr := httptest.NewRecorder()

	handler.Create(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)

	var resp ApiResponse
	err := json.NewDecoder(rr.Body).Decode(&resp)
	require.NoError(t, err)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "Team Offsite", data["title"])
	assert.Equal(t, "active", data["status"])

	assert.Equal(t, "Team Offsite", svc.capturedInput.Title)
	assert.Equal(t, models.CertaintyDay, svc.capturedInput.DateCertainty)
}

func TestCommitmentsHandler_Create_InvalidBody(t *testing.T) {
	svc := &mockCommitmentService{}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	req := makeCommitmentRequest("POST", "/api/commitments", []byte("{invalid json"), uuid.Nil)
	rr := httptest.NewRecorder()

	handler.Create(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCommitmentsHandler_Create_ValidationError(t *testing.T) {
	svc := &mockCommitmentService{
		createErr: fmt.Errorf("%w: title is required", apperrors.ErrValidation),
	}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	body, _ := json.Marshal(CreateCommitmentRequest{Title: ""})
	req := makeCommitmentRequest("POST", "/api/commitments", body, uuid.Nil)
	rr := httptest.NewRecorder()

	handler.Create(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCommitmentsHandler_List_Success(t *testing.T) {
	svc := &mockCommitmentService{
		list:  []*models.Commitment{handlerTestCommitment(uuid.New()), handlerTestCommitment(uuid.New())},
		total: 2,
	}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	req := makeCommitmentRequest("GET", "/api/commitments", nil, uuid.Nil)
	rr := httptest.NewRecorder()

	handler.List(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	err := json.NewDecoder(rr.Body).Decode(&resp)
	require.NoError(t, err)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	items := data["items"].([]any)
	assert.Len(t, items, 2)
	assert.Equal(t, float64(2), data["total"])
	assert.Equal(t, float64(50), data["limit"])
}

func TestCommitmentsHandler_List_QueryFilters(t *testing.T) {
	svc := &mockCommitmentService{}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	req := makeCommitmentRequest("GET", "/api/commitments", nil, uuid.Nil)
	req.URL.RawQuery = "status=active&type=meeting&date_certainty=day&since=2025-12-01T00:00:00Z&limit=10&offset=20"
	rr := httptest.NewRecorder()

	handler.List(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "active", svc.capturedFilters.Status)
	assert.Equal(t, "meeting", svc.capturedFilters.CommitmentType)
	assert.Equal(t, models.CertaintyDay, svc.capturedFilters.DateCertainty)
	require.NotNil(t, svc.capturedFilters.Since)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), svc.capturedFilters.Since.UTC())
	assert.Equal(t, 10, svc.capturedFilters.Limit)
	assert.Equal(t, 20, svc.capturedFilters.Offset)
}

func TestCommitmentsHandler_List_EmptyResult(t *testing.T) {
	svc := &mockCommitmentService{}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	req := makeCommitmentRequest("GET", "/api/commitments", nil, uuid.Nil)
	rr := httptest.NewRecorder()

	handler.List(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	err := json.NewDecoder(rr.Body).Decode(&resp)
	require.NoError(t, err)

	data := resp.Data.(map[string]any)
	items := data["items"].([]any)
	assert.Len(t, items, 0) // should be empty array, not null
}

func TestCommitmentsHandler_List_InvalidFilter(t *testing.T) {
	svc := &mockCommitmentService{listErr: apperrors.ErrInvalidCertainty}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	req := makeCommitmentRequest("GET", "/api/commitments", nil, uuid.Nil)
	req.URL.RawQuery = "date_certainty=fortnight"
	rr := httptest.NewRecorder()

	handler.List(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCommitmentsHandler_Get_Success(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{commitment: handlerTestCommitment(id)}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	req := makeCommitmentRequest("GET", fmt.Sprintf("/api/commitments/%s", id), nil, id)
	rr := httptest.NewRecorder()

	handler.Get(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	err := json.NewDecoder(rr.Body).Decode(&resp)
	require.NoError(t, err)

	data := resp.Data.(map[string]any)
	assert.Equal(t, id.String(), data["id"])
}

func TestCommitmentsHandler_Get_NotFound(t *testing.T) {
	svc := &mockCommitmentService{getErr: apperrors.ErrNotFound}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	id := uuid.New()
	req := makeCommitmentRequest("GET", fmt.Sprintf("/api/commitments/%s", id), nil, id)
	rr := httptest.NewRecorder()

	handler.Get(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCommitmentsHandler_Get_InvalidID(t *testing.T) {
	svc := &mockCommitmentService{}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	req := makeCommitmentRequest("GET", "/api/commitments/not-a-uuid", nil, uuid.Nil)
	req.SetPathValue("cid", "not-a-uuid")
	rr := httptest.NewRecorder()

	handler.Get(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCommitmentsHandler_GetSerialized_Success(t *testing.T) {
	id := uuid.New()
	commitment := handlerTestCommitment(id)
	svc := &mockCommitmentService{serialized: commitment.Serialize(2, 1)}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	req := makeCommitmentRequest("GET", fmt.Sprintf("/api/commitments/%s/serialized", id), nil, id)
	rr := httptest.NewRecorder()

	handler.GetSerialized(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	err := json.NewDecoder(rr.Body).Decode(&resp)
	require.NoError(t, err)

	data := resp.Data.(map[string]any)
	assert.Equal(t, id.String(), data["id"])
	assert.Equal(t, float64(2), data["email_count"])
	assert.Equal(t, float64(1), data["calendar_event_count"])
	assert.Equal(t, "2025-12-15T14:00:00Z", data["start_date"])
}

func TestCommitmentsHandler_Refine_Success(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{commitment: handlerTestCommitment(id)}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	start := time.Date(2025, 12, 15, 14, 0, 0, 0, time.UTC)
	body, _ := json.Marshal(RefineCommitmentRequest{
		StartDate:     &start,
		DateCertainty: "exact",
		Source:        "email-2",
	})
	req := makeCommitmentRequest("POST", fmt.Sprintf("/api/commitments/%s/refine", id), body, id)
	rr := httptest.NewRecorder()

	handler.Refine(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, svc.refineCalls)
	assert.Equal(t, 0, svc.gatedCalls)
	assert.Equal(t, models.CertaintyExact, svc.capturedUpdate.DateCertainty)
	assert.Equal(t, "email-2", svc.capturedUpdate.Source)

	var resp ApiResponse
	err := json.NewDecoder(rr.Body).Decode(&resp)
	require.NoError(t, err)

	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["applied"])
	assert.NotNil(t, data["commitment"])
}

func TestCommitmentsHandler_Refine_GatedRejection(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{commitment: handlerTestCommitment(id), applied: false}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	start := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	body, _ := json.Marshal(RefineCommitmentRequest{
		StartDate:     &start,
		DateCertainty: "month",
		Source:        "email-late",
		Gated:         true,
	})
	req := makeCommitmentRequest("POST", fmt.Sprintf("/api/commitments/%s/refine", id), body, id)
	rr := httptest.NewRecorder()

	handler.Refine(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, svc.gatedCalls)
	assert.Equal(t, 0, svc.refineCalls)

	var resp ApiResponse
	err := json.NewDecoder(rr.Body).Decode(&resp)
	require.NoError(t, err)

	data := resp.Data.(map[string]any)
	assert.Equal(t, false, data["applied"])
}

func TestCommitmentsHandler_Refine_MissingStartDate(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	body, _ := json.Marshal(RefineCommitmentRequest{DateCertainty: "day"})
	req := makeCommitmentRequest("POST", fmt.Sprintf("/api/commitments/%s/refine", id), body, id)
	rr := httptest.NewRecorder()

	handler.Refine(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0, svc.refineCalls)
}

func TestCommitmentsHandler_Refine_InvalidCertainty(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{refineErr: apperrors.ErrInvalidCertainty}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	start := time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC)
	body, _ := json.Marshal(RefineCommitmentRequest{StartDate: &start, DateCertainty: "fortnight"})
	req := makeCommitmentRequest("POST", fmt.Sprintf("/api/commitments/%s/refine", id), body, id)
	rr := httptest.NewRecorder()

	handler.Refine(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCommitmentsHandler_Refine_NotFound(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{refineErr: apperrors.ErrNotFound}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	start := time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC)
	body, _ := json.Marshal(RefineCommitmentRequest{StartDate: &start})
	req := makeCommitmentRequest("POST", fmt.Sprintf("/api/commitments/%s/refine", id), body, id)
	rr := httptest.NewRecorder()

	handler.Refine(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCommitmentsHandler_UpdateStatus_Success(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{commitment: handlerTestCommitment(id)}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	body, _ := json.Marshal(UpdateCommitmentStatusRequest{Status: "completed"})
	req := makeCommitmentRequest("PATCH", fmt.Sprintf("/api/commitments/%s/status", id), body, id)
	rr := httptest.NewRecorder()

	handler.UpdateStatus(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "completed", svc.capturedStatus)
}

func TestCommitmentsHandler_UpdateStatus_InvalidStatus(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{statusErr: fmt.Errorf("%w: invalid status", apperrors.ErrValidation)}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	body, _ := json.Marshal(UpdateCommitmentStatusRequest{Status: "done"})
	req := makeCommitmentRequest("PATCH", fmt.Sprintf("/api/commitments/%s/status", id), body, id)
	rr := httptest.NewRecorder()

	handler.UpdateStatus(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCommitmentsHandler_UpdateStatus_NotFound(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{statusErr: apperrors.ErrNotFound}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	body, _ := json.Marshal(UpdateCommitmentStatusRequest{Status: "cancelled"})
	req := makeCommitmentRequest("PATCH", fmt.Sprintf("/api/commitments/%s/status", id), body, id)
	rr := httptest.NewRecorder()

	handler.UpdateStatus(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCommitmentsHandler_Delete_Success(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	req := makeCommitmentRequest("DELETE", fmt.Sprintf("/api/commitments/%s", id), nil, id)
	rr := httptest.NewRecorder()

	handler.Delete(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	err := json.NewDecoder(rr.Body).Decode(&resp)
	require.NoError(t, err)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "deleted", data["status"])
}

func TestCommitmentsHandler_Delete_NotFound(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{deleteErr: apperrors.ErrNotFound}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	req := makeCommitmentRequest("DELETE", fmt.Sprintf("/api/commitments/%s", id), nil, id)
	rr := httptest.NewRecorder()

	handler.Delete(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCommitmentsHandler_LinkEmail_Success(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	confidence := 0.42
	body, _ := json.Marshal(LinkEmailRequest{
		MessageID:       "msg-1",
		LinkedBy:        "ai",
		ConfidenceScore: &confidence,
		LinkReason:      "mentions offsite dates",
	})
	req := makeCommitmentRequest("POST", fmt.Sprintf("/api/commitments/%s/emails", id), body, id)
	rr := httptest.NewRecorder()

	handler.LinkEmail(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	require.NotNil(t, svc.capturedEmail)
	assert.Equal(t, id, svc.capturedEmail.CommitmentID)
	assert.Equal(t, "msg-1", svc.capturedEmail.MessageID)

	var resp ApiResponse
	err := json.NewDecoder(rr.Body).Decode(&resp)
	require.NoError(t, err)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "msg-1", data["message_id"])
	assert.NotEmpty(t, data["id"])
}

func TestCommitmentsHandler_LinkEmail_Duplicate(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{linkErr: apperrors.ErrDuplicateLink}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	body, _ := json.Marshal(LinkEmailRequest{MessageID: "msg-1"})
	req := makeCommitmentRequest("POST", fmt.Sprintf("/api/commitments/%s/emails", id), body, id)
	rr := httptest.NewRecorder()

	handler.LinkEmail(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCommitmentsHandler_LinkEmail_MissingMessageID(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	body, _ := json.Marshal(LinkEmailRequest{LinkedBy: "manual"})
	req := makeCommitmentRequest("POST", fmt.Sprintf("/api/commitments/%s/emails", id), body, id)
	rr := httptest.NewRecorder()

	handler.LinkEmail(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Nil(t, svc.capturedEmail)
}

func TestCommitmentsHandler_LinkEmail_UnknownCommitment(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{linkErr: apperrors.ErrNotFound}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	body, _ := json.Marshal(LinkEmailRequest{MessageID: "msg-1"})
	req := makeCommitmentRequest("POST", fmt.Sprintf("/api/commitments/%s/emails", id), body, id)
	rr := httptest.NewRecorder()

	handler.LinkEmail(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCommitmentsHandler_ListEmailLinks_Empty(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	req := makeCommitmentRequest("GET", fmt.Sprintf("/api/commitments/%s/emails", id), nil, id)
	rr := httptest.NewRecorder()

	handler.ListEmailLinks(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	err := json.NewDecoder(rr.Body).Decode(&resp)
	require.NoError(t, err)

	data := resp.Data.(map[string]any)
	links := data["links"].([]any)
	assert.Len(t, links, 0)
	assert.Equal(t, float64(0), data["total"])
}

func TestCommitmentsHandler_LinkCalendarEvent_Success(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	body, _ := json.Marshal(LinkCalendarEventRequest{
		EventID:   "evt-9",
		EventData: map[string]any{"summary": "Offsite kickoff"},
		LinkedBy:  "manual",
	})
	req := makeCommitmentRequest("POST", fmt.Sprintf("/api/commitments/%s/calendar-events", id), body, id)
	rr := httptest.NewRecorder()

	handler.LinkCalendarEvent(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	require.NotNil(t, svc.capturedEvent)
	assert.Equal(t, "evt-9", svc.capturedEvent.EventID)
	assert.Equal(t, "Offsite kickoff", svc.capturedEvent.EventData["summary"])
}

func TestCommitmentsHandler_LinkCalendarEvent_MissingEventID(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	body, _ := json.Marshal(LinkCalendarEventRequest{LinkedBy: "ai"})
	req := makeCommitmentRequest("POST", fmt.Sprintf("/api/commitments/%s/calendar-events", id), body, id)
	rr := httptest.NewRecorder()

	handler.LinkCalendarEvent(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCommitmentsHandler_ListCalendarEventLinks_Success(t *testing.T) {
	id := uuid.New()
	svc := &mockCommitmentService{
		eventLinks: []*models.CalendarEventLink{
			{ID: uuid.New(), CommitmentID: id, EventID: "evt-1", LinkedBy: "ai"},
		},
	}
	handler := NewCommitmentsHandler(svc, zap.NewNop())

	req := makeCommitmentRequest("GET", fmt.Sprintf("/api/commitments/%s/calendar-events", id), nil, id)
	rr := httptest.NewRecorder()

	handler.ListCalendarEventLinks(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	err := json.NewDecoder(rr.Body).Decode(&resp)
	require.NoError(t, err)

	data := resp.Data.(map[string]any)
	links := data["links"].([]any)
	assert.Len(t, links, 1)
	assert.Equal(t, float64(1), data["total"])
}
