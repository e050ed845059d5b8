package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gorewood/coursemd/internal/archive"
	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/export"
	"github.com/gorewood/coursemd/internal/output"
)

// newExportCmd creates the export command.
func newExportCmd() *cobra.Command {
	var outFlag string

	cmd := &cobra.Command{
		Use:   "export <format> <course-id>",
		Short: "Export one course as a single document",
		Long: `Export one course as a single document.

The file is named <course>_<date>.<ext> in the current directory unless
--output is given. Use --output - to write the document to stdout.

Examples:
  coursemd export markdown course-v1:Org+CS101+2024
  coursemd export html course-v1:Org+CS101+2024 --output cs101.html
  coursemd export markdown course-v1:Org+CS101+2024 --output - | less`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, args[0], args[1], outFlag)
		},
	}

	cmd.Flags().StringVarP(&outFlag, "output", "o", "", "Output file, or - for stdout")
	return cmd
}

func runExport(cmd *cobra.Command, formatName, rawID, outFlag string) error {
	printer := newPrinter(cmd)
	a, err := loadApp(cmd, printer)
	if err != nil {
		return err
	}
	factory, err := a.lookupFormat(printer, formatName)
	if err != nil {
		return err
	}
	id, err := course.ParseID(rawID)
	if err != nil {
		return report(printer, err)
	}

	res, err := a.exportCourse(cmd.Context(), factory, id)
	if err != nil {
		return report(printer, err)
	}
	defer func() {
		if err := res.Tree.Remove(); err != nil {
			a.logger.Warn("removing staging tree", "path", res.Tree.Root(), "error", err)
		}
	}()

	if outFlag == "-" {
		return writeToStdout(cmd, printer, res)
	}
	dest := outFlag
	if dest == "" {
		dest = res.Filename
	}
	n, err := copyFile(res.Path, dest)
	if err != nil {
		return report(printer, output.NewSystemErrorWithCause(err.Error(), err))
	}

	if printer.IsJSON() {
		return printer.Success(map[string]any{
			"course_id": id.String(),
			"format":    res.Format.Name,
			"path":      dest,
			"bytes":     n,
		})
	}
	printer.Print("Exported %s as %s to %s (%d bytes)\n", id, res.Format.Name, dest, n)
	return nil
}

func writeToStdout(cmd *cobra.Command, printer *output.Printer, res *export.Result) error {
	f, err := os.Open(res.Path)
	if err != nil {
		return report(printer, err)
	}
	defer f.Close()
	if _, err := io.Copy(cmd.OutOrStdout(), f); err != nil {
		return report(printer, err)
	}
	return nil
}

// copyFile copies src to dest, creating dest's parent directories.
func copyFile(src, dest string) (int64, error) {
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", dest, err)
	}
	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("writing %s: %w", dest, err)
	}
	return n, nil
}

// newExportAllCmd creates the export-all command.
func newExportAllCmd() *cobra.Command {
	var outFlag string
	var streamFlag bool

	cmd := &cobra.Command{
		Use:   "export-all <format>",
		Short: "Export every course into one archive",
		Long: `Export every course into one tar archive, one document per course.

By default the archive is gzip compressed and named
all_courses_as_<ext>_<date>.tar.gz. --stream writes an uncompressed tar
as each course finishes, which is what the HTTP download serves.
Courses that fail to export are left out and listed as skipped.

Examples:
  coursemd export-all markdown
  coursemd export-all html --output catalog.tar.gz
  coursemd export-all markdown --stream --output - | tar t`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExportAll(cmd, args[0], outFlag, streamFlag)
		},
	}

	cmd.Flags().StringVarP(&outFlag, "output", "o", "", "Output file, or - for stdout")
	cmd.Flags().BoolVar(&streamFlag, "stream", false, "Write an uncompressed tar while exporting")
	return cmd
}

func runExportAll(cmd *cobra.Command, formatName, outFlag string, stream bool) error {
	printer := newPrinter(cmd)
	a, err := loadApp(cmd, printer)
	if err != nil {
		return err
	}
	factory, err := a.lookupFormat(printer, formatName)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	_, ids, err := a.catalog(ctx)
	if err != nil {
		return report(printer, err)
	}

	req := archive.Request{
		Principal:        a.principal,
		Factory:          factory,
		IDs:              ids,
		CheckAuthorPerms: a.principal != course.Anonymous,
	}
	ext := factory(a.exports.Env()).Identity().Extension
	dest := outFlag
	if dest == "" {
		dest = archive.ArchiveName(ext, a.exports.Now(), !stream)
	}

	var w io.Writer
	if dest == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(dest)
		if err != nil {
			return report(printer, output.NewSystemErrorWithCause(err.Error(), err))
		}
		defer f.Close()
		w = f
	}

	packager := archive.NewPackager(a.exports, a.logger)
	var sum *archive.Summary
	if stream {
		s := packager.Stream(ctx, req)
		_, err = io.Copy(w, s)
		if closeErr := s.Close(); err == nil {
			err = closeErr
		}
		got := s.Summary()
		sum = &got
	} else {
		sum, err = packager.WriteBatch(ctx, req, w)
	}
	if err != nil {
		if dest != "-" {
			_ = os.Remove(dest)
		}
		return report(printer, err)
	}
	if dest == "-" {
		return nil
	}
	return printArchiveSummary(printer, dest, sum)
}

func printArchiveSummary(printer *output.Printer, dest string, sum *archive.Summary) error {
	if printer.IsJSON() {
		return printer.Success(map[string]any{
			"path":     dest,
			"included": idStrings(sum.Included),
			"skipped":  idStrings(sum.Skipped),
		})
	}
	rows := make([][]string, 0, len(sum.Included)+len(sum.Skipped))
	for _, id := range sum.Included {
		rows = append(rows, []string{id.String(), "included"})
	}
	for _, id := range sum.Skipped {
		rows = append(rows, []string{id.String(), "skipped"})
	}
	printer.Table([]string{"COURSE", "STATUS"}, rows)
	printer.Print("\nWrote %s (%d included, %d skipped)\n", dest, len(sum.Included), len(sum.Skipped))
	if len(sum.Skipped) > 0 {
		printer.Warn("skipped: %s", strings.Join(idStrings(sum.Skipped), ", "))
	}
	return nil
}

func idStrings(ids []course.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
