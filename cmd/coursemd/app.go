package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gorewood/coursemd/internal/config"
	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/export"
	"github.com/gorewood/coursemd/internal/format"
	"github.com/gorewood/coursemd/internal/output"
	"github.com/gorewood/coursemd/internal/store"
	"github.com/gorewood/coursemd/internal/transform"
)

// app is everything a command needs, built from flags and config.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	exports   *export.Orchestrator
	registry  *format.Registry
	principal course.Principal
}

// loadApp reads the config and wires the export pipeline. Failures are
// reported through printer.
func loadApp(cmd *cobra.Command, printer *output.Printer) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		exitErr := output.NewUserErrorWithCause("loading config: "+err.Error(), err)
		printer.Error(exitErr)
		return nil, exitErr
	}
	if err := cfg.Validate(); err != nil {
		exitErr := output.NewUserErrorWithCause("invalid config: "+err.Error(), err)
		printer.Error(exitErr)
		return nil, exitErr
	}

	logger := newLogger(cmd)
	principal, _ := cmd.Flags().GetString("principal")
	a := &app{
		cfg:       cfg,
		logger:    logger,
		registry:  format.DefaultRegistry(),
		principal: course.Principal(principal),
	}
	a.exports = export.New(export.Options{
		Repo:   course.NewDirRepository(cfg.CoursesDir),
		Access: cfg.Access.Checker(),
		Env: format.Env{
			Templates: transform.Templates(cfg.TemplatesDir),
			BaseURL:   cfg.AssetBaseURL(),
		},
		TempDir: cfg.TempDir,
		Logger:  logger,
	})
	return a, nil
}

// newLogger logs to stderr. Warnings only by default; -v and -vv lower the
// level.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// lookupFormat resolves a format name, reporting unknown names.
func (a *app) lookupFormat(printer *output.Printer, name string) (format.Factory, error) {
	factory, err := a.registry.Lookup(name)
	if err != nil {
		return nil, report(printer, err)
	}
	return factory, nil
}

// exportCourse runs one export, with an access check when a principal was
// given.
func (a *app) exportCourse(ctx context.Context, factory format.Factory, id course.ID) (*export.Result, error) {
	if a.principal == course.Anonymous {
		return a.exports.Export(ctx, factory, id)
	}
	return a.exports.ExportOne(ctx, a.principal, factory, id)
}

// catalog returns every course id in the repository.
func (a *app) catalog(ctx context.Context) ([]course.Summary, []course.ID, error) {
	all, err := a.exports.Repository().Courses(ctx)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]course.ID, len(all))
	for i, c := range all {
		ids[i] = c.ID
	}
	return all, ids, nil
}

// openStore returns the delivery store the storage section describes.
func (a *app) openStore() (store.Store, error) {
	s := a.cfg.Storage
	switch s.Type {
	case config.StorageFile:
		return store.NewWithPrefix(store.NewFileSystem(s.Dir), s.Prefix), nil
	case config.StorageS3:
		return store.OpenS3(store.S3Options{
			Bucket:   s.Bucket,
			Prefix:   s.Prefix,
			Region:   s.Region,
			Endpoint: s.Endpoint,
		})
	default:
		return nil, errors.New("storage.type is none; configure file or s3 storage to deliver archives")
	}
}

// toExitError maps domain errors to exit codes.
func toExitError(err error) *output.ExitError {
	var (
		exitErr      *output.ExitError
		authErr      *export.AuthorizationError
		malformedErr *course.MalformedIdentifierError
		pluginErr    *format.PluginNotFoundError
		exportErr    *export.CourseExportError
	)
	switch {
	case errors.As(err, &exitErr):
		return exitErr
	case errors.As(err, &authErr):
		return output.NewForbiddenError(authErr.Error(), err)
	case errors.Is(err, course.ErrCourseNotFound):
		return output.NewNotFoundError(err.Error(), err)
	case errors.As(err, &malformedErr), errors.As(err, &pluginErr):
		return output.NewUserErrorWithCause(err.Error(), err)
	case errors.As(err, &exportErr):
		return output.NewSystemErrorWithCause(err.Error(), err)
	default:
		return output.NewSystemErrorWithCause(err.Error(), err)
	}
}

// report prints err with its exit code and returns the exit error.
func report(printer *output.Printer, err error) error {
	exitErr := toExitError(err)
	printer.Error(exitErr)
	return exitErr
}
