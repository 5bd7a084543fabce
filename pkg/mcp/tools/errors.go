package tools

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tetherhq/tether-engine/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// This is used to return actionable error information to the model
// as a successful tool result, ensuring error details are visible
// rather than being swallowed by the MCP client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for recoverable/actionable errors that the model should see and
// can potentially fix (e.g., invalid parameters, resource not found).
//
// Do NOT use this for system failures (database connection errors,
// internal server errors) - those should still return Go errors.
//
// Example:
//
//	if commitment == nil {
//	    return NewErrorResult("commitment_not_found", "no commitment with that ID"), nil
//	}
func NewErrorResult(code, message string) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// NewErrorResultWithDetails creates an error result with additional context.
// The details field can contain any additional information that might help
// the model understand and respond to the error.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// NewSentinelErrorResult maps a known domain error onto a structured error
// result. Returns nil when err is not one of the recognized sentinels; the
// caller should then return the error through the MCP protocol instead.
func NewSentinelErrorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("commitment_not_found", "no commitment with that ID")
	case errors.Is(err, apperrors.ErrDuplicateLink):
		return NewErrorResult("duplicate_link", "artifact is already linked to this commitment")
	case errors.Is(err, apperrors.ErrValidation):
		return NewErrorResult("validation_error", err.Error())
	}
	return nil
}

// inputErrorPatterns are substrings that indicate an error is due to user input
// rather than a server failure. These errors should be logged at DEBUG/INFO level,
// not ERROR level, because they are expected when callers provide invalid input.
var inputErrorPatterns = []string{
	"not found",
	"validation failed",
	"duplicate link",
	"invalid input",
	"missing required",
	"cannot be empty",
}

// IsInputError returns true if the error appears to be caused by user input
// rather than a server failure. These errors should be logged at DEBUG level,
// not ERROR level.
func IsInputError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, apperrors.ErrValidation) ||
		errors.Is(err, apperrors.ErrNotFound) ||
		errors.Is(err, apperrors.ErrDuplicateLink) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range inputErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
