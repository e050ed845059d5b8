// Package output provides structured output and error handling for the
// coursemd CLI.
//
// Every command writes through a Printer so the same command serves people
// and scripts:
//
//	color := output.ResolveColorMode(colorFlag, output.IsTTY(cmd.OutOrStdout()))
//	printer := output.NewPrinter(cmd.OutOrStdout(), jsonFlag, color).WithStderr(cmd.ErrOrStderr())
//	printer.Success(map[string]any{"message": "Exported course", "path": path})
//	printer.Table([]string{"ID", "NAME"}, rows)
//
// With --json, success values are encoded as JSON and errors become
// {"error": "message", "code": N}. Human output is styled with lipgloss and
// falls back to plain text off a terminal, with --color=never or when
// NO_COLOR is set.
//
// Errors carry their process exit code:
//
//	output.NewUserError("malformed course id")          // 1
//	output.NewSystemErrorWithCause("export failed", err) // 2
//	output.NewForbiddenError("not allowed", err)         // 3
//	output.NewNotFoundError("no such course", err)       // 4
package output
