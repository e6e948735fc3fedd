package mcp

import (
	"log/slog"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/saiten/internal/logging"
	"github.com/hpungsan/saiten/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"review_assignments": {
		def:     assignmentsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAssignments },
	},
	"review_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"review_detail": {
		def:     detailToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDetail },
	},
	"review_save": {
		def:     saveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSave },
	},
	"review_auto_check": {
		def:     autoCheckToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAutoCheck },
	},
	"review_auto_check_all": {
		def:     autoCheckAllToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAutoCheckAll },
	},
	"review_auto_check_status": {
		def:     autoCheckStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAutoCheckStatus },
	},
	"review_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
}

// AllToolNames returns all valid tool names, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with the review tools registered.
// Tools listed in the backend's DisabledTools are excluded.
func NewServer(b *ops.Backend, version string, logger *slog.Logger) *server.MCPServer {
	logger = logging.OrDiscard(logger)
	s := server.NewMCPServer(
		"saiten",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(b)

	for _, name := range ValidateDisabledTools(b.Config.DisabledTools) {
		logger.Warn("unknown tool in disabled_tools", "tool", name)
	}
	disabled := make(map[string]bool, len(b.Config.DisabledTools))
	for _, name := range b.Config.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(b *ops.Backend, version string, logger *slog.Logger) error {
	return server.ServeStdio(NewServer(b, version, logger))
}
