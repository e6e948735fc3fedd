package mcp

import "github.com/mark3labs/mcp-go/mcp"

var assignmentIDParam = mcp.WithString("assignment_id",
	mcp.Required(),
	mcp.Description("Assignment id as returned by review_assignments"),
)

var studentIDParam = mcp.WithString("student_id",
	mcp.Required(),
	mcp.Description("Student id (広大ID)"),
)

var assignmentsToolDef = mcp.NewTool("review_assignments",
	mcp.WithDescription("List imported assignments with their submission counts and auto-check state."),
)

var listToolDef = mcp.NewTool("review_list",
	mcp.WithDescription("List the submitted students of an assignment in roster order, with review status and statistics."),
	assignmentIDParam,
	mcp.WithString("filter",
		mcp.Description("Restrict the list by review status"),
		mcp.Enum("all", "reviewed", "needs-review", "pending", "has-feedback"),
	),
)

var detailToolDef = mcp.NewTool("review_detail",
	mcp.WithDescription("Fetch one student's record with the submitted source code, test history and expected-file markers."),
	assignmentIDParam,
	studentIDParam,
)

var saveToolDef = mcp.NewTool("review_save",
	mcp.WithDescription("Save a feedback comment and mark the student reviewed. An empty comment marks the student reviewed with nothing to add."),
	assignmentIDParam,
	studentIDParam,
	mcp.WithString("feedback",
		mcp.Required(),
		mcp.Description("Feedback comment (Markdown)"),
	),
)

var autoCheckToolDef = mcp.NewTool("review_auto_check",
	mcp.WithDescription("Run the static check (required files and header fields) for one student that is not yet reviewed."),
	assignmentIDParam,
	studentIDParam,
)

var autoCheckAllToolDef = mcp.NewTool("review_auto_check_all",
	mcp.WithDescription("Run the static check for every student that is not reviewed. Reviewed students are skipped and never modified."),
	assignmentIDParam,
	mcp.WithBoolean("force",
		mcp.Description("Re-run even if the assignment was already checked"),
	),
)

var autoCheckStatusToolDef = mcp.NewTool("review_auto_check_status",
	mcp.WithDescription("Report whether the batch auto-check has run for an assignment, and whether one is running."),
	assignmentIDParam,
)

var exportToolDef = mcp.NewTool("review_export",
	mcp.WithDescription("Write the roster with feedback comments to a UTF-8 (BOM) CSV file for upload to the LMS."),
	assignmentIDParam,
	mcp.WithString("path",
		mcp.Description("Output path; defaults to <data dir>/exports/feedback_<name>.csv"),
	),
)
