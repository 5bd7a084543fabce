//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/tetherhq/tether-engine/pkg/apperrors"
	"github.com/tetherhq/tether-engine/pkg/models"
	"github.com/tetherhq/tether-engine/pkg/testhelpers"
)

// calendarLinkTestContext holds test dependencies for calendar link repository tests.
type calendarLinkTestContext struct {
	t              *testing.T
	engineDB       *testhelpers.EngineDB
	repo           CalendarLinkRepository
	commitmentRepo CommitmentRepository
}

func setupCalendarLinkTest(t *testing.T) *calendarLinkTestContext {
	engineDB := testhelpers.GetEngineDB(t)
	return &calendarLinkTestContext{
		t:              t,
		engineDB:       engineDB,
		repo:           NewCalendarLinkRepository(engineDB.DB),
		commitmentRepo: NewCommitmentRepository(engineDB.DB),
	}
}

func (tc *calendarLinkTestContext) cleanup() {
	tc.t.Helper()
	_, _ = tc.engineDB.DB.Pool.Exec(context.Background(), "DELETE FROM commitments")
}

func (tc *calendarLinkTestContext) createCommitment(ctx context.Context, title string) *models.Commitment {
	tc.t.Helper()
	commitment, err := models.NewCommitment(models.CommitmentInput{Title: title})
	if err != nil {
		tc.t.Fatalf("failed to build commitment: %v", err)
	}
	if err := tc.commitmentRepo.Create(ctx, commitment); err != nil {
		tc.t.Fatalf("failed to create commitment: %v", err)
	}
	return commitment
}

// ============================================================================
// Create Tests
// ============================================================================

func TestCalendarLinkRepository_Create_Success(t *testing.T) {
	tc := setupCalendarLinkTest(t)
	tc.cleanup()
	ctx := context.Background()

	commitment := tc.createCommitment(ctx, "Board meeting")

	link := &models.CalendarEventLink{
		CommitmentID: commitment.ID,
		EventID:      "evt-1",
		EventData: map[string]any{
			"summary":  "Board meeting",
			"location": "HQ",
		},
		LinkedBy:   models.LinkedByManual,
		LinkReason: "user confirmed",
	}
	if err := tc.repo.Create(ctx, link); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if link.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if link.LinkedAt.IsZero() {
		t.Error("expected LinkedAt to be set")
	}

	links, err := tc.repo.ListByCommitment(ctx, commitment.ID)
	if err != nil {
		t.Fatalf("ListByCommitment failed: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if links[0].EventID != "evt-1" {
		t.Errorf("expected event_id 'evt-1', got %q", links[0].EventID)
	}
	if links[0].EventData["summary"] != "Board meeting" {
		t.Errorf("expected event data snapshot, got %v", links[0].EventData)
	}
	if links[0].LinkedBy != models.LinkedByManual {
		t.Errorf("expected linked_by 'manual', got %q", links[0].LinkedBy)
	}
}

func TestCalendarLinkRepository_Create_NilEventData(t *testing.T) {
	tc := setupCalendarLinkTest(t)
	tc.cleanup()
	ctx := context.Background()

	commitment := tc.createCommitment(ctx, "Board meeting")

	link := &models.CalendarEventLink{CommitmentID: commitment.ID, EventID: "evt-bare"}
	if err := tc.repo.Create(ctx, link); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	links, err := tc.repo.ListByCommitment(ctx, commitment.ID)
	if err != nil {
		t.Fatalf("ListByCommitment failed: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if links[0].EventData != nil {
		t.Errorf("expected nil event data, got %v", links[0].EventData)
	}
	if links[0].LinkedBy != models.LinkedByAI {
		t.Errorf("expected default linked_by 'ai', got %q", links[0].LinkedBy)
	}
}

func TestCalendarLinkRepository_Create_Duplicate(t *testing.T) {
	tc := setupCalendarLinkTest(t)
	tc.cleanup()
	ctx := context.Background()

	commitment := tc.createCommitment(ctx, "Board meeting")

	first := &models.CalendarEventLink{CommitmentID: commitment.ID, EventID: "evt-dup"}
	if err := tc.repo.Create(ctx, first); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	second := &models.CalendarEventLink{CommitmentID: commitment.ID, EventID: "evt-dup"}
	err := tc.repo.Create(ctx, second)
	if !errors.Is(err, apperrors.ErrDuplicateLink) {
		t.Errorf("expected ErrDuplicateLink, got %v", err)
	}

	count, err := tc.repo.CountByCommitment(ctx, commitment.ID)
	if err != nil {
		t.Fatalf("CountByCommitment failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one link row, got %d", count)
	}
}

func TestCalendarLinkRepository_Create_UnknownCommitment(t *testing.T) {
	tc := setupCalendarLinkTest(t)
	ctx := context.Background()

	err := tc.repo.Create(ctx, &models.CalendarEventLink{
		CommitmentID: uuid.New(),
		EventID:      "evt-orphan",
	})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCalendarLinkRepository_Create_InvalidLinkedBy(t *testing.T) {
	tc := setupCalendarLinkTest(t)
	tc.cleanup()
	ctx := context.Background()

	commitment := tc.createCommitment(ctx, "Board meeting")

	err := tc.repo.Create(ctx, &models.CalendarEventLink{
		CommitmentID: commitment.ID,
		EventID:      "evt-2",
		LinkedBy:     "sync-job",
	})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestCalendarLinkRepository_Create_AILinkSetsAutoLinked(t *testing.T) {
	tc := setupCalendarLinkTest(t)
	tc.cleanup()
	ctx := context.Background()

	commitment := tc.createCommitment(ctx, "Board meeting")

	err := tc.repo.Create(ctx, &models.CalendarEventLink{
		CommitmentID: commitment.ID,
		EventID:      "evt-ai",
		LinkedBy:     models.LinkedByAI,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	retrieved, err := tc.commitmentRepo.GetByID(ctx, commitment.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !retrieved.AutoLinked {
		t.Error("expected ai link to set auto_linked")
	}
}

// ============================================================================
// List and Count Tests
// ============================================================================

func TestCalendarLinkRepository_ListAndCount(t *testing.T) {
	tc := setupCalendarLinkTest(t)
	tc.cleanup()
	ctx := context.Background()

	commitment := tc.createCommitment(ctx, "Board meeting")

	for _, eventID := range []string{"evt-a", "evt-b"} {
		err := tc.repo.Create(ctx, &models.CalendarEventLink{CommitmentID: commitment.ID, EventID: eventID})
		if err != nil {
			t.Fatalf("Create %s failed: %v", eventID, err)
		}
	}

	links, err := tc.repo.ListByCommitment(ctx, commitment.ID)
	if err != nil {
		t.Fatalf("ListByCommitment failed: %v", err)
	}
	if len(links) != 2 {
		t.Errorf("expected 2 links, got %d", len(links))
	}

	count, err := tc.repo.CountByCommitment(ctx, commitment.ID)
	if err != nil {
		t.Fatalf("CountByCommitment failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
}
