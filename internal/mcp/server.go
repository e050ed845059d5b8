// Package mcp provides a Model Context Protocol server for coursemd.
// It exposes the course catalog and single-course exports as MCP tools so
// an agent can read a course as one Markdown document.
package mcp

import (
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/export"
	"github.com/gorewood/coursemd/internal/format"
)

// Deps are the services the tools call.
type Deps struct {
	Exports  *export.Orchestrator
	Registry *format.Registry
	// Principal is who the agent exports as.
	Principal course.Principal
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

// NewServer creates an MCP server with all coursemd tools registered.
func NewServer(version string, deps Deps) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "coursemd",
		Version: version,
	}, nil)
	registerTools(server, deps)
	return server
}

func boolPtr(b bool) *bool {
	return &b
}

// readOnlyAnnotations marks tools that change nothing. Exports write only
// to their own staging tree, which is gone when the call returns.
func readOnlyAnnotations() *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		ReadOnlyHint:   true,
		IdempotentHint: true,
		OpenWorldHint:  boolPtr(false),
	}
}

func registerTools(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "formats",
		Description: "List the export formats: name, content type and file extension.",
		Annotations: readOnlyAnnotations(),
	}, handleFormats(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "courses",
		Description: "List the courses you may export, with their ids and display names.",
		Annotations: readOnlyAnnotations(),
	}, handleCourses(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name: "export_course",
		Description: "Export one course and return the document text. " +
			"course_id is course-v1:ORG+NUMBER+RUN or ORG/NUMBER/RUN; format defaults to markdown.",
		Annotations: readOnlyAnnotations(),
	}, handleExportCourse(deps))
}
