package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gorewood/coursemd/internal/config"
	"github.com/gorewood/coursemd/internal/output"
)

// newConfigCmd creates the config command and its subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
		Long: `Inspect the configuration.

The file is --config, else $COURSEMD_CONFIG, else ` + config.DefaultPath() + `.
Values may reference the environment as ${VAR} or ${VAR:-default}; env
files (.env.local, .env and the config directory's env) are read first.`,
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigValidateCmd(), newConfigPathCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration, secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := newPrinter(cmd)
			a, err := loadApp(cmd, printer)
			if err != nil {
				return err
			}
			cfg := a.cfg
			if printer.IsJSON() {
				return printer.WriteJSON(configView(cfg))
			}
			printConfig(printer, cfg)
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := newPrinter(cmd)
			if _, err := loadApp(cmd, printer); err != nil {
				return err
			}
			return printer.Success(map[string]any{"message": "Configuration is valid", "valid": true})
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := newPrinter(cmd)
			if printer.IsJSON() {
				return printer.WriteJSON(map[string]string{"dir": config.Dir(), "file": config.DefaultPath()})
			}
			printer.Println(config.Dir())
			return nil
		},
	}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// configView is the JSON shape of config show.
func configView(cfg *config.Config) map[string]any {
	return map[string]any{
		"lms_root_url":  cfg.LMSRootURL,
		"base_url":      cfg.AssetBaseURL(),
		"temp_dir":      cfg.TempDir,
		"templates_dir": cfg.TemplatesDir,
		"courses_dir":   cfg.CoursesDir,
		"access": map[string]any{
			"allow_all": cfg.Access.AllowsAll(),
			"grants":    cfg.Access.Grants,
		},
		"http": map[string]any{
			"listen":     cfg.HTTP.Listen,
			"principals": principals(cfg),
		},
		"storage": map[string]any{
			"type":      cfg.Storage.Type,
			"dir":       cfg.Storage.Dir,
			"bucket":    cfg.Storage.Bucket,
			"prefix":    cfg.Storage.Prefix,
			"region":    cfg.Storage.Region,
			"endpoint":  cfg.Storage.Endpoint,
			"overwrite": cfg.Storage.Overwrite,
		},
		"schedule": map[string]any{
			"cron":            cfg.Schedule.Cron,
			"plugins":         cfg.Schedule.Plugins,
			"notify_on_error": cfg.Schedule.NotifyOnError,
			"smtp_addr":       cfg.Schedule.SMTP.Addr,
			"smtp_from":       cfg.Schedule.SMTP.From,
			"smtp_password":   mask(cfg.Schedule.SMTP.Password),
		},
	}
}

// principals returns the principals that have an HTTP token, sorted.
func principals(cfg *config.Config) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range cfg.HTTP.Tokens {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func printConfig(printer *output.Printer, cfg *config.Config) {
	printer.Section("Courses")
	printer.KeyValue("Repository", cfg.CoursesDir)
	printer.KeyValue("LMS root URL", orNone(cfg.LMSRootURL))
	printer.KeyValue("Asset base URL", orNone(cfg.AssetBaseURL()))
	printer.KeyValue("Templates", orNone(cfg.TemplatesDir))
	printer.KeyValue("Temp dir", orNone(cfg.TempDir))

	printer.Section("Access")
	if cfg.Access.AllowsAll() {
		printer.KeyValue("Mode", "allow all")
	} else {
		names := make([]string, 0, len(cfg.Access.Grants))
		for name := range cfg.Access.Grants {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			printer.KeyValue(name, strings.Join(cfg.Access.Grants[name], ", "))
		}
	}

	printer.Section("HTTP")
	printer.KeyValue("Listen", cfg.HTTP.Listen)
	printer.KeyValue("Principals", orNone(strings.Join(principals(cfg), ", ")))

	printer.Section("Storage")
	printer.KeyValue("Type", cfg.Storage.Type)
	switch cfg.Storage.Type {
	case config.StorageFile:
		printer.KeyValue("Dir", cfg.Storage.Dir)
	case config.StorageS3:
		printer.KeyValue("Bucket", cfg.Storage.Bucket)
		printer.KeyValue("Region", orNone(cfg.Storage.Region))
		printer.KeyValue("Endpoint", orNone(cfg.Storage.Endpoint))
	}
	printer.KeyValue("Prefix", orNone(cfg.Storage.Prefix))
	printer.KeyValue("Overwrite", fmt.Sprint(cfg.Storage.Overwrite))

	printer.Section("Schedule")
	printer.KeyValue("Cron", cfg.Schedule.Cron)
	printer.KeyValue("Formats", strings.Join(cfg.Schedule.Plugins, ", "))
	printer.KeyValue("Notify", orNone(strings.Join(cfg.Schedule.NotifyOnError, ", ")))
	if cfg.Schedule.SMTP.Addr != "" {
		printer.KeyValue("SMTP", cfg.Schedule.SMTP.Addr+" as "+cfg.Schedule.SMTP.From)
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
