package main

import (
	"github.com/spf13/cobra"

	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/transform"
)

// newCoursesCmd creates the courses command.
func newCoursesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "List the courses in the repository",
		Long: `List the courses in the repository, ordered by id.

With --principal only the courses that principal may export are listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := newPrinter(cmd)
			a, err := loadApp(cmd, printer)
			if err != nil {
				return err
			}
			all, _, err := a.catalog(cmd.Context())
			if err != nil {
				return report(printer, err)
			}

			var visible []course.Summary
			for _, c := range all {
				if a.principal == course.Anonymous || a.exports.CanExport(a.principal, c.ID) {
					visible = append(visible, c)
				}
			}

			if printer.IsJSON() {
				list := make([]map[string]any, len(visible))
				for i, c := range visible {
					list[i] = map[string]any{"id": c.ID.String(), "display_name": c.DisplayName}
				}
				return printer.WriteJSON(map[string]any{"count": len(visible), "courses": list})
			}
			if len(visible) == 0 {
				printer.Println("No courses found")
				return nil
			}
			rows := make([][]string, len(visible))
			for i, c := range visible {
				rows[i] = []string{c.ID.String(), c.DisplayName}
			}
			printer.Table([]string{"ID", "TITLE"}, rows)
			return nil
		},
	}
}

// newFormatsCmd creates the formats command.
func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the export formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := newPrinter(cmd)
			a, err := loadApp(cmd, printer)
			if err != nil {
				return err
			}
			idents := a.registry.Identities(a.exports.Env())
			if printer.IsJSON() {
				return printer.WriteJSON(idents)
			}
			rows := make([][]string, len(idents))
			for i, id := range idents {
				rows[i] = []string{id.Name, id.Extension, id.ContentType}
			}
			printer.Table([]string{"NAME", "EXT", "CONTENT TYPE"}, rows)
			return nil
		},
	}
}

// newTemplatesCmd creates the templates command.
func newTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the master templates",
		Long: `List the master templates, builtin and from templates_dir.

A file in templates_dir replaces the builtin template of the same name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := newPrinter(cmd)
			a, err := loadApp(cmd, printer)
			if err != nil {
				return err
			}
			infos := transform.ListTemplates(transform.Templates(a.cfg.TemplatesDir))
			if printer.IsJSON() {
				list := make([]map[string]any, len(infos))
				for i, info := range infos {
					list[i] = map[string]any{"name": info.Name, "description": info.Description, "file": info.Path}
				}
				return printer.WriteJSON(list)
			}
			rows := make([][]string, len(infos))
			for i, info := range infos {
				rows[i] = []string{info.Path, info.Description}
			}
			printer.Table([]string{"FILE", "DESCRIPTION"}, rows)
			return nil
		},
	}
}
