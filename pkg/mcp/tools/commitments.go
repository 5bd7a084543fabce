// Package tools provides MCP tool implementations for tether-engine.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/tetherhq/tether-engine/pkg/models"
	"github.com/tetherhq/tether-engine/pkg/services"
)

// CommitmentToolDeps contains dependencies for commitment tools.
type CommitmentToolDeps struct {
	CommitmentService services.CommitmentService
	IngestService     services.IngestService
	Logger            *zap.Logger
}

// RegisterCommitmentTools registers commitment-related MCP tools.
func RegisterCommitmentTools(s *server.MCPServer, deps *CommitmentToolDeps) {
	registerCreateCommitmentTool(s, deps)
	registerGetCommitmentTool(s, deps)
	registerListCommitmentsTool(s, deps)
	registerRefineCommitmentDateTool(s, deps)
	registerLinkEmailTool(s, deps)
	registerLinkCalendarEventTool(s, deps)
	registerApplyObservationTool(s, deps)
}

// requireCommitmentID extracts and parses the commitment_id argument.
// A non-nil result means the argument was present but not a UUID.
func requireCommitmentID(req mcp.CallToolRequest) (uuid.UUID, *mcp.CallToolResult, error) {
	idStr, err := req.RequireString("commitment_id")
	if err != nil {
		return uuid.Nil, nil, err
	}
	commitmentID, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_commitment_id", "commitment_id must be a UUID"), nil
	}
	return commitmentID, nil, nil
}

// parseDateParam parses an optional RFC 3339 date argument. A non-nil
// result means the value was present but malformed.
func parseDateParam(req mcp.CallToolRequest, key string) (*time.Time, *mcp.CallToolResult) {
	raw := getOptionalString(req, key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, NewErrorResult("invalid_date", fmt.Sprintf("%s must be an RFC 3339 timestamp", key))
	}
	return &t, nil
}

// logToolError records a tool failure, demoting expected input errors to
// debug so that model mistakes do not page anyone.
func logToolError(logger *zap.Logger, msg string, err error) {
	if IsInputError(err) {
		logger.Debug(msg, zap.Error(err))
		return
	}
	logger.Error(msg, zap.Error(err))
}

// registerCreateCommitmentTool adds the create_commitment tool.
func registerCreateCommitmentTool(s *server.MCPServer, deps *CommitmentToolDeps) {
	tool := mcp.NewTool(
		"create_commitment",
		mcp.WithDescription(
			"Create a new commitment record. "+
				"Dates may be omitted entirely for commitments that are known to exist "+
				"but not yet scheduled; date_certainty records how precise the known dates are "+
				"(unknown, month, week, day, exact). "+
				"Returns the created commitment including its ID.",
		),
		mcp.WithString(
			"title",
			mcp.Required(),
			mcp.Description("Short human-readable title, e.g. 'Team offsite in Lisbon'"),
		),
		mcp.WithString("description", mcp.Description("Longer free-form description")),
		mcp.WithString("commitment_type", mcp.Description("Kind of commitment, e.g. 'meeting', 'trip', 'deadline'")),
		mcp.WithString("start_date", mcp.Description("Start timestamp in RFC 3339 format")),
		mcp.WithString("end_date", mcp.Description("End timestamp in RFC 3339 format")),
		mcp.WithString("timezone", mcp.Description("IANA timezone name, defaults to UTC")),
		mcp.WithString("date_certainty", mcp.Description("Date precision: unknown, month, week, day, or exact")),
		mcp.WithString("organizer", mcp.Description("Organizer identifier, usually an email address")),
		mcp.WithString("location", mcp.Description("Physical or virtual location")),
		mcp.WithNumber("confidence_score", mcp.Description("Extraction confidence between 0.0 and 1.0")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return nil, err
		}

		startDate, errResult := parseDateParam(req, "start_date")
		if errResult != nil {
			return errResult, nil
		}
		endDate, errResult := parseDateParam(req, "end_date")
		if errResult != nil {
			return errResult, nil
		}

		input := models.CommitmentInput{
			Title:          title,
			Description:    getOptionalString(req, "description"),
			CommitmentType: getOptionalString(req, "commitment_type"),
			StartDate:      startDate,
			EndDate:        endDate,
			Timezone:       getOptionalString(req, "timezone"),
			DateCertainty:  models.DateCertainty(getOptionalString(req, "date_certainty")),
			Organizer:      getOptionalString(req, "organizer"),
			Location:       getOptionalString(req, "location"),
		}
		if score, ok := getOptionalFloat(req, "confidence_score"); ok {
			input.ConfidenceScore = &score
		}

		commitment, err := deps.CommitmentService.Create(ctx, input)
		if err != nil {
			logToolError(deps.Logger, "Failed to create commitment", err)
			if result := NewSentinelErrorResult(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("failed to create commitment: %w", err)
		}

		jsonResult, err := json.Marshal(commitment)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// registerGetCommitmentTool adds the get_commitment tool. Returns the
// serialized view so the model sees link counts without extra calls.
func registerGetCommitmentTool(s *server.MCPServer, deps *CommitmentToolDeps) {
	tool := mcp.NewTool(
		"get_commitment",
		mcp.WithDescription(
			"Get a single commitment by ID in serialized form. "+
				"Includes the date history plus counts of linked emails and calendar events. "+
				"Use list_commitments to discover commitment IDs.",
		),
		mcp.WithString(
			"commitment_id",
			mcp.Required(),
			mcp.Description("UUID of the commitment"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		commitmentID, errResult, err := requireCommitmentID(req)
		if err != nil {
			return nil, err
		}
		if errResult != nil {
			return errResult, nil
		}

		serialized, err := deps.CommitmentService.Serialize(ctx, commitmentID)
		if err != nil {
			logToolError(deps.Logger, "Failed to get commitment", err)
			if result := NewSentinelErrorResult(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("failed to get commitment: %w", err)
		}

		jsonResult, err := json.Marshal(serialized)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// registerListCommitmentsTool adds the list_commitments tool.
func registerListCommitmentsTool(s *server.MCPServer, deps *CommitmentToolDeps) {
	tool := mcp.NewTool(
		"list_commitments",
		mcp.WithDescription(
			"List commitments with optional filters. "+
				"Filter by status (active, completed, cancelled), commitment_type, "+
				"date_certainty, and a start-date window. "+
				"Returns at most 'limit' records (default 50) plus the total match count.",
		),
		mcp.WithString("status", mcp.Description("Filter by status: active, completed, or cancelled")),
		mcp.WithString("commitment_type", mcp.Description("Filter by commitment type")),
		mcp.WithString("date_certainty", mcp.Description("Filter by date precision level")),
		mcp.WithString("since", mcp.Description("Only commitments starting at or after this RFC 3339 timestamp")),
		mcp.WithString("until", mcp.Description("Only commitments starting at or before this RFC 3339 timestamp")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records to return, defaults to 50")),
		mcp.WithNumber("offset", mcp.Description("Number of records to skip for pagination")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filters := models.CommitmentFilters{
			Status:         getOptionalString(req, "status"),
			CommitmentType: getOptionalString(req, "commitment_type"),
			DateCertainty:  models.DateCertainty(getOptionalString(req, "date_certainty")),
			Limit:          50,
		}

		since, errResult := parseDateParam(req, "since")
		if errResult != nil {
			return errResult, nil
		}
		filters.Since = since
		until, errResult := parseDateParam(req, "until")
		if errResult != nil {
			return errResult, nil
		}
		filters.Until = until

		if limit, ok := getOptionalFloat(req, "limit"); ok && int(limit) > 0 {
			filters.Limit = int(limit)
		}
		if offset, ok := getOptionalFloat(req, "offset"); ok && int(offset) > 0 {
			filters.Offset = int(offset)
		}

		commitments, total, err := deps.CommitmentService.List(ctx, filters)
		if err != nil {
			logToolError(deps.Logger, "Failed to list commitments", err)
			if result := NewSentinelErrorResult(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("failed to list commitments: %w", err)
		}
		if commitments == nil {
			commitments = make([]*models.Commitment, 0)
		}

		result := struct {
			Commitments []*models.Commitment `json:"commitments"`
			Total       int                  `json:"total"`
			Count       int                  `json:"count"`
		}{
			Commitments: commitments,
			Total:       total,
			Count:       len(commitments),
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// registerRefineCommitmentDateTool adds the refine_commitment_date tool.
func registerRefineCommitmentDateTool(s *server.MCPServer, deps *CommitmentToolDeps) {
	tool := mcp.NewTool(
		"refine_commitment_date",
		mcp.WithDescription(
			"Apply a date observation to an existing commitment. "+
				"Overwrites the commitment's dates and records the observation in its date history. "+
				"With gated=true the overwrite is skipped when the new certainty is lower than "+
				"the current one; the history entry is still recorded. "+
				"Returns whether the dates were applied along with the updated commitment.",
		),
		mcp.WithString(
			"commitment_id",
			mcp.Required(),
			mcp.Description("UUID of the commitment to refine"),
		),
		mcp.WithString(
			"start_date",
			mcp.Required(),
			mcp.Description("New start timestamp in RFC 3339 format"),
		),
		mcp.WithString("end_date", mcp.Description("New end timestamp in RFC 3339 format")),
		mcp.WithString("date_certainty", mcp.Description("Precision of the new dates, defaults to exact")),
		mcp.WithString("source", mcp.Description("Where the observation came from, e.g. 'email-124' or 'calendar-sync'")),
		mcp.WithBoolean("gated", mcp.Description("Skip the overwrite when it would lower date_certainty")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		commitmentID, errResult, err := requireCommitmentID(req)
		if err != nil {
			return nil, err
		}
		if errResult != nil {
			return errResult, nil
		}

		startStr, err := req.RequireString("start_date")
		if err != nil {
			return nil, err
		}
		startDate, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return NewErrorResult("invalid_date", "start_date must be an RFC 3339 timestamp"), nil
		}
		endDate, errResult := parseDateParam(req, "end_date")
		if errResult != nil {
			return errResult, nil
		}

		update := models.DateUpdate{
			StartDate:     startDate,
			EndDate:       endDate,
			DateCertainty: models.DateCertainty(getOptionalString(req, "date_certainty")),
			Source:        getOptionalString(req, "source"),
		}

		applied := true
		if gated, _ := getOptionalBool(req, "gated"); gated {
			applied, err = deps.CommitmentService.RefineIfRefinement(ctx, commitmentID, update)
		} else {
			err = deps.CommitmentService.Refine(ctx, commitmentID, update)
		}
		if err != nil {
			logToolError(deps.Logger, "Failed to refine commitment date", err)
			if result := NewSentinelErrorResult(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("failed to refine commitment date: %w", err)
		}

		commitment, err := deps.CommitmentService.Get(ctx, commitmentID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload commitment: %w", err)
		}

		result := struct {
			Applied    bool               `json:"applied"`
			Commitment *models.Commitment `json:"commitment"`
		}{
			Applied:    applied,
			Commitment: commitment,
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// registerLinkEmailTool adds the link_email tool.
func registerLinkEmailTool(s *server.MCPServer, deps *CommitmentToolDeps) {
	tool := mcp.NewTool(
		"link_email",
		mcp.WithDescription(
			"Link a source email to a commitment by message ID. "+
				"Each message links to a given commitment at most once; linking the same "+
				"message again reports a duplicate_link error without changing anything.",
		),
		mcp.WithString(
			"commitment_id",
			mcp.Required(),
			mcp.Description("UUID of the commitment"),
		),
		mcp.WithString(
			"message_id",
			mcp.Required(),
			mcp.Description("Provider message ID of the email"),
		),
		mcp.WithString("linked_by", mcp.Description("Who created the link: 'ai', 'user', or 'manual'. Defaults to 'ai'")),
		mcp.WithNumber("confidence_score", mcp.Description("Link confidence between 0.0 and 1.0")),
		mcp.WithString("link_reason", mcp.Description("Free-form explanation of why the artifact matches")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		commitmentID, errResult, err := requireCommitmentID(req)
		if err != nil {
			return nil, err
		}
		if errResult != nil {
			return errResult, nil
		}

		messageID, err := req.RequireString("message_id")
		if err != nil {
			return nil, err
		}

		link := &models.EmailLink{
			CommitmentID: commitmentID,
			MessageID:    messageID,
			LinkedBy:     getOptionalString(req, "linked_by"),
			LinkReason:   getOptionalString(req, "link_reason"),
		}
		if score, ok := getOptionalFloat(req, "confidence_score"); ok {
			link.ConfidenceScore = &score
		}

		if err := deps.CommitmentService.LinkEmail(ctx, link); err != nil {
			logToolError(deps.Logger, "Failed to link email", err)
			if result := NewSentinelErrorResult(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("failed to link email: %w", err)
		}

		jsonResult, err := json.Marshal(link)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// registerLinkCalendarEventTool adds the link_calendar_event tool.
func registerLinkCalendarEventTool(s *server.MCPServer, deps *CommitmentToolDeps) {
	tool := mcp.NewTool(
		"link_calendar_event",
		mcp.WithDescription(
			"Link a source calendar event to a commitment by event ID. "+
				"Optionally stores a snapshot of the event payload with the link. "+
				"Each event links to a given commitment at most once; linking the same "+
				"event again reports a duplicate_link error without changing anything.",
		),
		mcp.WithString(
			"commitment_id",
			mcp.Required(),
			mcp.Description("UUID of the commitment"),
		),
		mcp.WithString(
			"event_id",
			mcp.Required(),
			mcp.Description("Provider event ID of the calendar event"),
		),
		mcp.WithObject("event_data", mcp.Description("Snapshot of the source event, stored with the link")),
		mcp.WithString("linked_by", mcp.Description("Who created the link: 'ai', 'user', or 'manual'. Defaults to 'ai'")),
		mcp.WithNumber("confidence_score", mcp.Description("Link confidence between 0.0 and 1.0")),
		mcp.WithString("link_reason", mcp.Description("Free-form explanation of why the artifact matches")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		commitmentID, errResult, err := requireCommitmentID(req)
		if err != nil {
			return nil, err
		}
		if errResult != nil {
			return errResult, nil
		}

		eventID, err := req.RequireString("event_id")
		if err != nil {
			return nil, err
		}

		link := &models.CalendarEventLink{
			CommitmentID: commitmentID,
			EventID:      eventID,
			EventData:    getOptionalObject(req, "event_data"),
			LinkedBy:     getOptionalString(req, "linked_by"),
			LinkReason:   getOptionalString(req, "link_reason"),
		}
		if score, ok := getOptionalFloat(req, "confidence_score"); ok {
			link.ConfidenceScore = &score
		}

		if err := deps.CommitmentService.LinkCalendarEvent(ctx, link); err != nil {
			logToolError(deps.Logger, "Failed to link calendar event", err)
			if result := NewSentinelErrorResult(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("failed to link calendar event: %w", err)
		}

		jsonResult, err := json.Marshal(link)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// registerApplyObservationTool adds the apply_observation tool, the one-call
// ingestion path mirroring POST /api/observations.
func registerApplyObservationTool(s *server.MCPServer, deps *CommitmentToolDeps) {
	tool := mcp.NewTool(
		"apply_observation",
		mcp.WithDescription(
			"Apply one extracted observation in a single call. "+
				"Without a commitment_id a new commitment is created from the observation; "+
				"with one, the date fields refine the existing commitment. "+
				"When message_id or event_id is present the artifact is linked afterwards, "+
				"and linking an already-linked artifact is a no-op. "+
				"Transient storage failures are retried automatically. "+
				"Returns the commitment along with created/applied/linked flags.",
		),
		mcp.WithString("commitment_id", mcp.Description("Existing commitment to refine; omit to create a new one")),
		mcp.WithString("title", mcp.Description("Title for a newly created commitment")),
		mcp.WithString("commitment_type", mcp.Description("Kind of commitment for a newly created record")),
		mcp.WithString("timezone", mcp.Description("IANA timezone name for a newly created record")),
		mcp.WithString("start_date", mcp.Description("Observed start timestamp in RFC 3339 format")),
		mcp.WithString("end_date", mcp.Description("Observed end timestamp in RFC 3339 format")),
		mcp.WithString("date_certainty", mcp.Description("Precision of the observed dates")),
		mcp.WithString("source", mcp.Description("Where the observation came from")),
		mcp.WithBoolean("gated", mcp.Description("Skip the date overwrite when it would lower date_certainty")),
		mcp.WithString("message_id", mcp.Description("Email message ID to link to the commitment")),
		mcp.WithString("event_id", mcp.Description("Calendar event ID to link to the commitment")),
		mcp.WithObject("event_data", mcp.Description("Snapshot of the source calendar event, stored with the link")),
		mcp.WithString("linked_by", mcp.Description("Who created the link: 'ai', 'user', or 'manual'. Defaults to 'ai'")),
		mcp.WithNumber("confidence_score", mcp.Description("Extraction confidence between 0.0 and 1.0")),
		mcp.WithString("link_reason", mcp.Description("Free-form explanation of why the artifact matches")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		obs := models.Observation{
			Title:          getOptionalString(req, "title"),
			CommitmentType: getOptionalString(req, "commitment_type"),
			Timezone:       getOptionalString(req, "timezone"),
			DateCertainty:  models.DateCertainty(getOptionalString(req, "date_certainty")),
			Source:         getOptionalString(req, "source"),
			MessageID:      getOptionalString(req, "message_id"),
			EventID:        getOptionalString(req, "event_id"),
			EventData:      getOptionalObject(req, "event_data"),
			LinkedBy:       getOptionalString(req, "linked_by"),
			LinkReason:     getOptionalString(req, "link_reason"),
		}

		if idStr := getOptionalString(req, "commitment_id"); idStr != "" {
			commitmentID, err := uuid.Parse(idStr)
			if err != nil {
				return NewErrorResult("invalid_commitment_id", "commitment_id must be a UUID"), nil
			}
			obs.CommitmentID = &commitmentID
		}

		startDate, errResult := parseDateParam(req, "start_date")
		if errResult != nil {
			return errResult, nil
		}
		obs.StartDate = startDate
		endDate, errResult := parseDateParam(req, "end_date")
		if errResult != nil {
			return errResult, nil
		}
		obs.EndDate = endDate

		if gated, ok := getOptionalBool(req, "gated"); ok {
			obs.Gated = gated
		}
		if score, ok := getOptionalFloat(req, "confidence_score"); ok {
			obs.ConfidenceScore = &score
		}

		result, err := deps.IngestService.ApplyObservation(ctx, obs)
		if err != nil {
			logToolError(deps.Logger, "Failed to apply observation", err)
			if errRes := NewSentinelErrorResult(err); errRes != nil {
				return errRes, nil
			}
			return nil, fmt.Errorf("failed to apply observation: %w", err)
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return val
}

// getOptionalFloat extracts an optional float argument from the request.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return 0, false
	}
	val, ok := args[key].(float64)
	return val, ok
}

// getOptionalBool extracts an optional boolean argument from the request.
func getOptionalBool(req mcp.CallToolRequest, key string) (bool, bool) {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if val, ok := args[key].(bool); ok {
			return val, true
		}
	}
	return false, false
}

// getOptionalObject extracts an optional object argument from the request.
func getOptionalObject(req mcp.CallToolRequest, key string) map[string]any {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil
	}
	val, ok := args[key].(map[string]any)
	if !ok {
		return nil
	}
	return val
}
