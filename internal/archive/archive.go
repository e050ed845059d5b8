// Package archive packages several course exports into one tar archive.
//
// Two modes exist. Stream produces the archive lazily, one chunk per call,
// so an HTTP response can start before the second course is exported.
// WriteBatch writes a gzip compressed archive to a writer in one go and is
// used for files that are uploaded afterwards.
//
// Courses are processed in request order, one at a time. A course that is
// denied, missing, or fails to export is logged and left out; the archive
// stays valid either way.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/export"
	"github.com/gorewood/coursemd/internal/format"
)

// BlockSize is the tar record block size.
const BlockSize = 512

// BodyChunk is the largest body piece Stream returns per call.
const BodyChunk = 64 * 1024

// Content types of the two archive flavours.
const (
	ContentTypeTar   = "application/tar"
	ContentTypeTarGz = "application/gzip"
)

// Request selects what goes into an archive.
type Request struct {
	Principal course.Principal
	Factory   format.Factory
	IDs       []course.ID
	// CheckAuthorPerms skips courses the principal may not export. When
	// false every course is exported.
	CheckAuthorPerms bool
}

// Summary lists which courses made it into an archive.
type Summary struct {
	Included []course.ID
	Skipped  []course.ID
}

// Packager builds archives from exports.
type Packager struct {
	exports *export.Orchestrator
	logger  *slog.Logger
}

// NewPackager returns a packager exporting through o. A nil logger discards.
func NewPackager(o *export.Orchestrator, logger *slog.Logger) *Packager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Packager{exports: o, logger: logger}
}

// ArchiveName returns all_courses_as_<ext>_<YYYY-MM-DD>.tar, with a .gz
// suffix when compressed.
func ArchiveName(ext string, date time.Time, compressed bool) string {
	name := "all_courses_as_" + ext + "_" + date.UTC().Format(time.DateOnly) + ".tar"
	if compressed {
		name += ".gz"
	}
	return name
}

// ArchiveNameNoDate returns all_courses_as_<ext>.tar.gz, the stable name
// used when stored archives overwrite each other.
func ArchiveNameNoDate(ext string) string {
	return "all_courses_as_" + ext + ".tar.gz"
}

// exportItem exports one course of a batch. It returns a nil result
// without error when the course is skipped.
func (p *Packager) exportItem(ctx context.Context, req Request, id course.ID) (*export.Result, error) {
	var (
		res *export.Result
		err error
	)
	if req.CheckAuthorPerms {
		res, err = p.exports.ExportOne(ctx, req.Principal, req.Factory, id)
	} else {
		res, err = p.exports.Export(ctx, req.Factory, id)
	}
	if err == nil {
		return res, nil
	}

	var (
		authErr   *export.AuthorizationError
		exportErr *export.CourseExportError
	)
	switch {
	case errors.As(err, &authErr):
		p.logger.Info("skipping course: not authorized", "course_id", id.String(), "principal", string(req.Principal))
	case errors.Is(err, course.ErrCourseNotFound):
		p.logger.Warn("skipping course: not found", "course_id", id.String())
	case errors.As(err, &exportErr):
		p.logger.Warn("skipping course: export failed", "course_id", id.String(), "error", exportErr.Cause)
	default:
		return nil, err
	}
	return nil, nil
}

func header(res *export.Result, size int64, modTime time.Time) *tar.Header {
	return &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     res.Filename,
		Mode:     0o644,
		Size:     size,
		ModTime:  modTime.Truncate(time.Second),
	}
}

// padding returns the zero bytes needed after a body of size bytes.
func padding(size int64) int64 {
	if rem := size % BlockSize; rem != 0 {
		return BlockSize - rem
	}
	return 0
}

// WriteBatch writes a gzip compressed tar of every exportable course in req
// to w. Each staging tree is removed right after its file was added.
func (p *Packager) WriteBatch(ctx context.Context, req Request, w io.Writer) (*Summary, error) {
	zw := gzip.NewWriter(w)
	tw := tar.NewWriter(zw)
	sum := &Summary{}

	for _, id := range req.IDs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res, err := p.exportItem(ctx, req, id)
		if err != nil {
			return sum, err
		}
		if res == nil {
			sum.Skipped = append(sum.Skipped, id)
			continue
		}
		err = p.addFile(tw, res)
		if rmErr := res.Tree.Remove(); rmErr != nil {
			p.logger.Warn("removing staging tree", "path", res.Tree.Root(), "error", rmErr)
		}
		if err != nil {
			return sum, err
		}
		sum.Included = append(sum.Included, id)
	}

	if err := tw.Close(); err != nil {
		return sum, fmt.Errorf("closing tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return sum, fmt.Errorf("closing gzip: %w", err)
	}
	return sum, nil
}

func (p *Packager) addFile(tw *tar.Writer, res *export.Result) error {
	f, err := os.Open(res.Path)
	if err != nil {
		return fmt.Errorf("opening export of %s: %w", res.CourseID, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat export of %s: %w", res.CourseID, err)
	}
	if err := tw.WriteHeader(header(res, info.Size(), p.exports.Now())); err != nil {
		return fmt.Errorf("writing tar header for %s: %w", res.Filename, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("writing %s: %w", res.Filename, err)
	}
	return nil
}

// BatchFile writes WriteBatch output to dir/name and returns its path. The
// file is removed again when the batch fails.
func (p *Packager) BatchFile(ctx context.Context, req Request, dir, name string) (string, *Summary, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", nil, fmt.Errorf("creating %s: %w", path, err)
	}
	sum, err := p.WriteBatch(ctx, req, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("closing %s: %w", path, closeErr)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", sum, err
	}
	return path, sum, nil
}
