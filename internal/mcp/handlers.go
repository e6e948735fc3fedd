package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/saiten/internal/errors"
	"github.com/hpungsan/saiten/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	backend *ops.Backend
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(b *ops.Backend) *Handlers {
	return &Handlers{backend: b}
}

// Request types for each tool

// AssignmentRequest is the argument of tools addressing one assignment.
type AssignmentRequest struct {
	AssignmentID string `json:"assignment_id"`
}

// StudentRequest is the argument of tools addressing one student.
type StudentRequest struct {
	AssignmentID string `json:"assignment_id"`
	StudentID    string `json:"student_id"`
}

// ListRequest represents the arguments for review_list.
type ListRequest struct {
	AssignmentID string `json:"assignment_id"`
	Filter       string `json:"filter,omitempty"`
}

// SaveRequest represents the arguments for review_save.
type SaveRequest struct {
	AssignmentID string  `json:"assignment_id"`
	StudentID    string  `json:"student_id"`
	Feedback     *string `json:"feedback"`
}

// AutoCheckAllRequest represents the arguments for review_auto_check_all.
type AutoCheckAllRequest struct {
	AssignmentID string `json:"assignment_id"`
	Force        bool   `json:"force,omitempty"`
}

// ExportRequest represents the arguments for review_export.
type ExportRequest struct {
	AssignmentID string `json:"assignment_id"`
	Path         string `json:"path,omitempty"`
}

// Handler implementations

// HandleAssignments handles the review_assignments tool call.
func (h *Handlers) HandleAssignments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ListAssignments(ctx, h.backend)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleList handles the review_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(ctx, h.backend, ops.ListInput{
		AssignmentID: input.AssignmentID,
		Filter:       input.Filter,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDetail handles the review_detail tool call.
func (h *Handlers) HandleDetail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StudentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Detail(ctx, h.backend, ops.DetailInput{
		AssignmentID: input.AssignmentID,
		StudentID:    input.StudentID,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSave handles the review_save tool call.
func (h *Handlers) HandleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SaveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SaveFeedback(ctx, h.backend, ops.SaveFeedbackInput{
		AssignmentID: input.AssignmentID,
		StudentID:    input.StudentID,
		Feedback:     input.Feedback,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAutoCheck handles the review_auto_check tool call.
func (h *Handlers) HandleAutoCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StudentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.AutoCheck(ctx, h.backend, ops.AutoCheckInput{
		AssignmentID: input.AssignmentID,
		StudentID:    input.StudentID,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAutoCheckAll handles the review_auto_check_all tool call.
func (h *Handlers) HandleAutoCheckAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AutoCheckAllRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.AutoCheckAll(ctx, h.backend, ops.AutoCheckAllInput{
		AssignmentID: input.AssignmentID,
		Force:        input.Force,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAutoCheckStatus handles the review_auto_check_status tool call.
func (h *Handlers) HandleAutoCheckStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AssignmentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.AutoCheckStatus(ctx, h.backend, ops.AutoCheckStatusInput{AssignmentID: input.AssignmentID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleExport handles the review_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.backend, ops.ExportInput{
		AssignmentID: input.AssignmentID,
		Path:         input.Path,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var sErr *errors.Error
	if stderrors.As(err, &sErr) && sErr.Code != errors.ErrInternal {
		message := sErr.Message
		// Keep context added by wrapping, e.g. "B001: NOT_FOUND: ..." -> "B001: ...".
		if prefix := strings.TrimSuffix(err.Error(), sErr.Error()); prefix != err.Error() {
			message = prefix + message
		}
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": message,
			"status":  sErr.Status,
		}
		if sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
