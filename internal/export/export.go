package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/format"
	"github.com/gorewood/coursemd/internal/olx"
	"github.com/gorewood/coursemd/internal/staging"
	"github.com/gorewood/coursemd/internal/xmltree"
)

// AuthorizationError reports a principal that may not export a course.
type AuthorizationError struct {
	Principal course.Principal
	CourseID  course.ID
}

func (e *AuthorizationError) Error() string {
	who := string(e.Principal)
	if who == "" {
		who = "anonymous"
	}
	return fmt.Sprintf("%s may not export course %s", who, e.CourseID)
}

// CourseExportError reports a course that was loaded but could not be
// exported.
type CourseExportError struct {
	CourseID course.ID
	Format   string
	Cause    error
}

func (e *CourseExportError) Error() string {
	return fmt.Sprintf("exporting course %s as %s: %v", e.CourseID, e.Format, e.Cause)
}

func (e *CourseExportError) Unwrap() error {
	return e.Cause
}

// Result describes a finished export.
type Result struct {
	CourseID course.ID
	Format   format.Identity
	// Path is the absolute path of output.<extension> inside Tree.
	Path string
	// Filename is the delivery name, <normalized id>_<YYYY-MM-DD>.<extension>.
	Filename string
	Tree     *staging.Tree
}

// Options configure an Orchestrator.
type Options struct {
	Repo   course.Repository
	Access course.AccessChecker
	// Env is handed to every plugin factory. Env.Now and Env.Logger default
	// to the orchestrator's own.
	Env format.Env
	// TempDir holds staging trees. Empty means the system temp directory.
	TempDir string
	Now     func() time.Time
	Logger  *slog.Logger
}

// Orchestrator runs the export pipeline. It holds no per-export state and
// is safe for concurrent use.
type Orchestrator struct {
	repo    course.Repository
	access  course.AccessChecker
	env     format.Env
	tempDir string
	now     func() time.Time
	logger  *slog.Logger
}

// New returns an orchestrator. A nil Access allows everything.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		repo:    opts.Repo,
		access:  opts.Access,
		env:     opts.Env,
		tempDir: opts.TempDir,
		now:     opts.Now,
		logger:  opts.Logger,
	}
	if o.access == nil {
		o.access = course.AllowAll{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.env.Now == nil {
		o.env.Now = o.now
	}
	if o.env.Logger == nil {
		o.env.Logger = o.logger
	}
	return o
}

// Repository returns the course repository exports read from.
func (o *Orchestrator) Repository() course.Repository {
	return o.repo
}

// Env returns the environment plugins are built with.
func (o *Orchestrator) Env() format.Env {
	return o.env
}

// Now returns the orchestrator clock's current time.
func (o *Orchestrator) Now() time.Time {
	return o.now()
}

// CanExport reports whether p may export id.
func (o *Orchestrator) CanExport(p course.Principal, id course.ID) bool {
	return o.access.CanExport(p, id)
}

// ExportOne checks access and exports id. A denied principal gets an
// *AuthorizationError and nothing is read or written.
func (o *Orchestrator) ExportOne(ctx context.Context, p course.Principal, factory format.Factory, id course.ID) (*Result, error) {
	if !o.access.CanExport(p, id) {
		return nil, &AuthorizationError{Principal: p, CourseID: id}
	}
	return o.Export(ctx, factory, id)
}

// Export runs the pipeline for id without an access check.
func (o *Orchestrator) Export(ctx context.Context, factory format.Factory, id course.ID) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := o.repo.Course(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading course %s: %w", id, err)
	}

	env := o.env
	env.CourseID = id.Normalized()
	plugin := factory(env)
	ident := plugin.Identity()
	logger := o.logger.With("course_id", id.String(), "format", ident.Name)

	tree, err := staging.Temp(o.tempDir, id.Normalized())
	if err != nil {
		return nil, &CourseExportError{CourseID: id, Format: ident.Name, Cause: err}
	}

	res, err := o.run(ctx, plugin, c, tree)
	if err != nil {
		if rmErr := tree.Remove(); rmErr != nil {
			logger.Warn("removing staging tree", "path", tree.Root(), "error", rmErr)
		}
		logger.Debug("export failed", "error", err)
		return nil, &CourseExportError{CourseID: id, Format: ident.Name, Cause: err}
	}
	logger.Info("exported course", "path", res.Path)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, plugin format.Plugin, c *course.Course, tree *staging.Tree) (*Result, error) {
	if err := olx.Write(ctx, o.repo, c, tree); err != nil {
		return nil, err
	}
	data, err := tree.ReadFile(staging.RootDocument)
	if err != nil {
		return nil, err
	}
	root, err := xmltree.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", staging.RootDocument, err)
	}

	if p, ok := plugin.(format.RootProcessor); ok {
		if err := p.ProcessRoot(root, tree); err != nil {
			return nil, fmt.Errorf("processing root: %w", err)
		}
	}
	if p, ok := plugin.(format.ExtraProcessor); ok {
		if err := p.ProcessExtra(c, tree); err != nil {
			return nil, fmt.Errorf("processing extras: %w", err)
		}
	}
	if err := plugin.PostProcess(ctx, root, tree); err != nil {
		return nil, err
	}

	ident := plugin.Identity()
	rel := staging.OutputFile(ident.Extension)
	if !tree.Exists(rel) {
		return nil, fmt.Errorf("plugin %s produced no %s", ident.Name, rel)
	}
	path, err := tree.Path(rel)
	if err != nil {
		return nil, err
	}
	return &Result{
		CourseID: c.ID,
		Format:   ident,
		Path:     path,
		Filename: Filename(c.ID, ident.Extension, o.now()),
		Tree:     tree,
	}, nil
}

// Filename returns the delivery name of a single-course export.
func Filename(id course.ID, ext string, date time.Time) string {
	return id.Normalized() + "_" + date.UTC().Format(time.DateOnly) + "." + ext
}
