package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/httpapi"
	coursemdmcp "github.com/gorewood/coursemd/internal/mcp"
)

// newServeCmd creates the serve command for running as an MCP server.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run as MCP server (stdio transport)",
		Long: `Run coursemd as a Model Context Protocol (MCP) server over stdio.

Agents can list formats and courses and read a course export without
touching the filesystem. Exports run as --principal.

Configure in your agent's MCP settings:
  {
    "mcpServers": {
      "coursemd": {
        "command": "coursemd",
        "args": ["serve", "--principal", "agent"]
      }
    }
  }

Available tools: formats, courses, export_course`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := newPrinter(cmd)
			a, err := loadApp(cmd, printer)
			if err != nil {
				return err
			}
			server := coursemdmcp.NewServer(buildVersion(), coursemdmcp.Deps{
				Exports:   a.exports,
				Registry:  a.registry,
				Principal: a.principal,
				Logger:    a.logger,
			})
			return server.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}

// newHTTPCmd creates the http command.
func newHTTPCmd() *cobra.Command {
	var listenFlag string

	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve course downloads over HTTP",
		Long: `Serve course downloads over HTTP until interrupted.

Routes:
  GET /formats                   registered formats
  GET /courses                   courses the caller may export
  GET /export/<format>           every course as a streamed tar archive
  GET /export/<format>/<course>  one course as a file download

Callers send an X-Api-Key header listed under http.tokens in the config.
Requests without a key run as the anonymous principal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := newPrinter(cmd)
			a, err := loadApp(cmd, printer)
			if err != nil {
				return err
			}
			addr := listenFlag
			if addr == "" {
				addr = a.cfg.HTTP.Listen
			}
			tokens := make(map[string]course.Principal, len(a.cfg.HTTP.Tokens))
			for token, p := range a.cfg.HTTP.Tokens {
				tokens[token] = course.Principal(p)
			}
			server := &httpapi.Server{
				Exports:  a.exports,
				Registry: a.registry,
				Tokens:   tokens,
				Logger:   a.logger,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			printer.Stderr("Listening on %s\n", addr)
			if err := server.ListenAndServe(ctx, addr); err != nil {
				return report(printer, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listenFlag, "listen", "", "Listen address (default http.listen from config)")
	return cmd
}
