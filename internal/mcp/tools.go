package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/format"
)

// --- Formats tool ---

// FormatsInput is the input for the formats tool (no parameters needed).
type FormatsInput struct{}

// FormatsOutput is the output for the formats tool.
type FormatsOutput struct {
	Formats []format.Identity `json:"formats" jsonschema:"registered export formats"`
}

func handleFormats(deps Deps) mcp.ToolHandlerFor[FormatsInput, FormatsOutput] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ FormatsInput) (*mcp.CallToolResult, FormatsOutput, error) {
		return nil, FormatsOutput{Formats: deps.Registry.Identities(deps.Exports.Env())}, nil
	}
}

// --- Courses tool ---

// CoursesInput is the input for the courses tool.
type CoursesInput struct {
	Org string `json:"org,omitempty" jsonschema:"only list courses of this organization"`
}

// CourseSummary is one catalog entry.
type CourseSummary struct {
	ID          string `json:"id"           jsonschema:"course id"`
	DisplayName string `json:"display_name" jsonschema:"course title"`
}

// CoursesOutput is the output for the courses tool.
type CoursesOutput struct {
	Count   int             `json:"count"   jsonschema:"number of courses listed"`
	Courses []CourseSummary `json:"courses" jsonschema:"exportable courses ordered by id"`
}

func handleCourses(deps Deps) mcp.ToolHandlerFor[CoursesInput, CoursesOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CoursesInput) (*mcp.CallToolResult, CoursesOutput, error) {
		all, err := deps.Exports.Repository().Courses(ctx)
		if err != nil {
			return nil, CoursesOutput{}, fmt.Errorf("listing courses: %w", err)
		}
		out := CoursesOutput{Courses: []CourseSummary{}}
		for _, c := range all {
			if input.Org != "" && c.ID.Org != input.Org {
				continue
			}
			if !deps.Exports.CanExport(deps.Principal, c.ID) {
				continue
			}
			out.Courses = append(out.Courses, CourseSummary{ID: c.ID.String(), DisplayName: c.DisplayName})
		}
		out.Count = len(out.Courses)
		return nil, out, nil
	}
}

// --- Export tool ---

// ExportInput is the input for the export_course tool.
type ExportInput struct {
	CourseID string `json:"course_id"        jsonschema:"course to export"`
	Format   string `json:"format,omitempty" jsonschema:"format name (default markdown)"`
}

// ExportOutput is the output for the export_course tool.
type ExportOutput struct {
	CourseID    string `json:"course_id"    jsonschema:"exported course id"`
	Format      string `json:"format"       jsonschema:"format used"`
	Filename    string `json:"filename"     jsonschema:"suggested file name"`
	ContentType string `json:"content_type" jsonschema:"content type of the document"`
	Content     string `json:"content"      jsonschema:"the exported document"`
}

func handleExportCourse(deps Deps) mcp.ToolHandlerFor[ExportInput, ExportOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ExportInput) (*mcp.CallToolResult, ExportOutput, error) {
		if input.CourseID == "" {
			return nil, ExportOutput{}, errors.New("course_id is required")
		}
		name := input.Format
		if name == "" {
			name = format.MarkdownName
		}
		factory, err := deps.Registry.Lookup(name)
		if err != nil {
			return nil, ExportOutput{}, err
		}
		id, err := course.ParseID(input.CourseID)
		if err != nil {
			return nil, ExportOutput{}, err
		}

		res, err := deps.Exports.ExportOne(ctx, deps.Principal, factory, id)
		if err != nil {
			return nil, ExportOutput{}, err
		}
		defer func() {
			if err := res.Tree.Remove(); err != nil {
				deps.logger().Warn("removing staging tree", "path", res.Tree.Root(), "error", err)
			}
		}()

		data, err := os.ReadFile(res.Path)
		if err != nil {
			return nil, ExportOutput{}, fmt.Errorf("reading export: %w", err)
		}
		return nil, ExportOutput{
			CourseID:    id.String(),
			Format:      res.Format.Name,
			Filename:    res.Filename,
			ContentType: res.Format.ContentType,
			Content:     string(data),
		}, nil
	}
}
