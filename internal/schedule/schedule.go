// Package schedule runs unattended catalog exports. On every tick each
// configured format is exported for the whole catalog, packed into a gzip
// compressed tar and uploaded to a store under <format>/<archive name>.
//
// A failing format is reported to operators and the run moves on to the
// next one. Single courses that fail are left out of the archive by the
// packager and never cause a notification.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gorewood/coursemd/internal/archive"
	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/cron"
	"github.com/gorewood/coursemd/internal/export"
	"github.com/gorewood/coursemd/internal/format"
	"github.com/gorewood/coursemd/internal/store"
)

// Options configure a Scheduler.
type Options struct {
	Exports  *export.Orchestrator
	Registry *format.Registry
	Store    store.Store
	// Plugins are the format names exported on every run, in order.
	Plugins []string
	// Overwrite stores archives under a name without date so each run
	// replaces the previous one.
	Overwrite bool
	// LMSRootURL identifies the installation in notifications.
	LMSRootURL string
	// TempDir holds archives until they are uploaded.
	TempDir  string
	Notifier Notifier
	Logger   *slog.Logger
	// Now and After are the clock. They default to time.Now and time.After.
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// Scheduler exports the catalog on a schedule.
type Scheduler struct {
	opts     Options
	packager *archive.Packager
	logger   *slog.Logger
}

// Outcome reports what one run did for one format.
type Outcome struct {
	Plugin   string
	Key      string
	Included int
	Skipped  int
	Err      error
}

// New returns a scheduler. A nil Notifier logs notifications.
func New(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Logger: opts.Logger}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.After == nil {
		opts.After = time.After
	}
	return &Scheduler{
		opts:     opts,
		packager: archive.NewPackager(opts.Exports, opts.Logger),
		logger:   opts.Logger,
	}
}

// Run waits for every time sched fires and calls RunOnce. It returns when
// ctx is done.
func (s *Scheduler) Run(ctx context.Context, sched cron.Schedule) error {
	for {
		now := s.opts.Now()
		next, err := sched.Next(now)
		if err != nil {
			return err
		}
		s.logger.Info("next scheduled export", "at", next.Format(time.RFC3339))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.opts.After(next.Sub(now)):
		}
		s.RunOnce(ctx)
	}
}

// RunOnce exports the catalog once per configured format. Failures are
// reported through the Notifier and recorded in the outcomes.
func (s *Scheduler) RunOnce(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, 0, len(s.opts.Plugins))
	for _, plugin := range s.opts.Plugins {
		if ctx.Err() != nil {
			break
		}
		out := s.exportAll(ctx, plugin)
		if out.Err != nil {
			s.logger.Error("scheduled export failed", "format", plugin, "error", out.Err)
			s.notify(ctx, plugin, out.Err)
		} else {
			s.logger.Info("scheduled export stored", "format", plugin, "key", out.Key,
				"included", out.Included, "skipped", out.Skipped)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (s *Scheduler) exportAll(ctx context.Context, plugin string) Outcome {
	out := Outcome{Plugin: plugin}
	factory, err := s.opts.Registry.Lookup(plugin)
	if err != nil {
		out.Err = err
		return out
	}
	ext := factory(s.opts.Exports.Env()).Identity().Extension

	summaries, err := s.opts.Exports.Repository().Courses(ctx)
	if err != nil {
		out.Err = fmt.Errorf("listing courses: %w", err)
		return out
	}
	ids := make([]course.ID, len(summaries))
	for i, sum := range summaries {
		ids[i] = sum.ID
	}

	name := archive.ArchiveName(ext, s.opts.Now(), true)
	if s.opts.Overwrite {
		name = archive.ArchiveNameNoDate(ext)
	}

	if s.opts.TempDir != "" {
		if err := os.MkdirAll(s.opts.TempDir, 0o755); err != nil {
			out.Err = fmt.Errorf("creating %s: %w", s.opts.TempDir, err)
			return out
		}
	}
	dir, err := os.MkdirTemp(s.opts.TempDir, "coursemd-schedule-")
	if err != nil {
		out.Err = fmt.Errorf("creating archive directory: %w", err)
		return out
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("removing archive directory", "path", dir, "error", err)
		}
	}()

	req := archive.Request{Factory: factory, IDs: ids}
	path, sum, err := s.packager.BatchFile(ctx, req, dir, name)
	if err != nil {
		out.Err = err
		return out
	}
	out.Included, out.Skipped = len(sum.Included), len(sum.Skipped)

	out.Key = plugin + "/" + name
	if err := store.UploadFile(s.opts.Store, out.Key, path); err != nil {
		out.Err = err
	}
	return out
}

func (s *Scheduler) notify(ctx context.Context, plugin string, cause error) {
	if errors.Is(cause, context.Canceled) {
		return
	}
	subject := "Course export as " + plugin + " failed"
	body := fmt.Sprintf("Course export as %s from %s failed with error: %v", plugin, s.opts.LMSRootURL, cause)
	if err := s.opts.Notifier.Notify(ctx, subject, body); err != nil {
		s.logger.Error("sending failure notification", "format", plugin, "error", err)
	}
}
