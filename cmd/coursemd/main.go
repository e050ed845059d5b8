// Package main provides the entry point for the coursemd CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/gorewood/coursemd/internal/config"
	"github.com/gorewood/coursemd/internal/envfile"
	"github.com/gorewood/coursemd/internal/output"
)

// Build info set via ldflags at build time by goreleaser.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// isJSONMode reads the --json persistent flag from the command hierarchy.
func isJSONMode(cmd *cobra.Command) bool {
	flag := cmd.Flags().Lookup("json")
	if flag == nil {
		flag = cmd.Root().PersistentFlags().Lookup("json")
	}
	return flag != nil && flag.Value.String() == "true"
}

// useColor resolves --color against TTY detection of stdout.
func useColor(cmd *cobra.Command) bool {
	mode, _ := cmd.Flags().GetString("color")
	return output.ResolveColorMode(mode, output.IsTTY(cmd.OutOrStdout()))
}

// newPrinter returns the printer every command reports through. Errors
// and warnings go to stderr in human mode.
func newPrinter(cmd *cobra.Command) *output.Printer {
	return output.NewPrinter(cmd.OutOrStdout(), isJSONMode(cmd), useColor(cmd)).
		WithStderr(cmd.ErrOrStderr())
}

// buildVersion returns the full version string including commit and date.
func buildVersion() string {
	if commit == "none" && date == "unknown" {
		return version
	}
	shortCommit := commit
	if len(commit) > 7 {
		shortCommit = commit[:7]
	}
	return fmt.Sprintf("%s (%s, %s)", version, shortCommit, date)
}

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCmd()
	err := fang.Execute(context.Background(), cmd, fang.WithVersion(buildVersion()))
	return output.GetExitCode(err)
}

// newRootCmd creates the root command for the coursemd CLI.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coursemd",
		Short: "Export Open edX courses as Markdown",
		Long: `coursemd - Export Open edX courses as single documents.

A course (its chapters, units, HTML, problems, videos, handouts, updates,
tabs and assets) is staged as OLX and rendered through templates into one
Markdown file, or into a self-contained HTML page.

  coursemd export markdown course-v1:Org+CS101+2024
  coursemd export-all html --output catalog.tar.gz
  coursemd http            # download API
  coursemd schedule        # nightly archives to S3 or a directory
  coursemd serve           # MCP server for agents

All commands support --json for structured output.`,
		Version:       buildVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if isJSONMode(cmd) {
				printer := newPrinter(cmd)
				err := output.NewUserError("no command specified. Run 'coursemd --help' for usage")
				printer.Error(err)
				return err
			}
			return cmd.Help()
		},
	}

	// Credentials for S3 and SMTP may live in env files. Variables
	// already in the environment take precedence.
	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		mode, _ := cmd.Flags().GetString("color")
		if _, err := output.ParseColorMode(mode); err != nil {
			exitErr := output.NewUserErrorWithCause(err.Error(), err)
			output.NewPrinter(cmd.OutOrStdout(), isJSONMode(cmd), false).WithStderr(cmd.ErrOrStderr()).Error(exitErr)
			return exitErr
		}
		_ = envfile.LoadAll(envfile.Paths(config.Dir())...)
		return nil
	}

	pf := cmd.PersistentFlags()
	pf.Bool("json", false, "Output in JSON format")
	pf.String("color", "auto", "Color output: auto, always or never")
	pf.String("config", "", "Config file (default $COURSEMD_CONFIG or "+config.DefaultPath()+")")
	pf.String("principal", "", "Principal to export as; empty bypasses access checks")
	pf.CountP("verbose", "v", "Log more (-v info, -vv debug)")

	lipgloss.SetHasDarkBackground(true)

	addCommandGroups(cmd)
	addCommands(cmd)
	return cmd
}

func addCommandGroups(cmd *cobra.Command) {
	cmd.AddGroup(&cobra.Group{ID: "export", Title: "Export Commands:"})
	cmd.AddGroup(&cobra.Group{ID: "catalog", Title: "Catalog Commands:"})
	cmd.AddGroup(&cobra.Group{ID: "server", Title: "Server Commands:"})
	cmd.AddGroup(&cobra.Group{ID: "admin", Title: "Admin Commands:"})
}

func addCommands(cmd *cobra.Command) {
	addGroupedCommand(cmd, newExportCmd(), "export")
	addGroupedCommand(cmd, newExportAllCmd(), "export")

	addGroupedCommand(cmd, newCoursesCmd(), "catalog")
	addGroupedCommand(cmd, newFormatsCmd(), "catalog")
	addGroupedCommand(cmd, newTemplatesCmd(), "catalog")

	addGroupedCommand(cmd, newHTTPCmd(), "server")
	addGroupedCommand(cmd, newScheduleCmd(), "server")
	addGroupedCommand(cmd, newServeCmd(), "server")

	addGroupedCommand(cmd, newConfigCmd(), "admin")
}

func addGroupedCommand(parent *cobra.Command, child *cobra.Command, groupID string) {
	child.GroupID = groupID
	parent.AddCommand(child)
}
