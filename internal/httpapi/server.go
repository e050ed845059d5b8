// Package httpapi serves course exports over HTTP.
//
// Routes:
//
//	GET /formats                   registered formats, JSON
//	GET /courses                   courses the caller may export, JSON
//	GET /export/:format            every course, streamed as a tar archive
//	GET /export/:format/*course    one course as a single file download
//
// Callers identify themselves with an X-Api-Key header which maps to a
// principal. Requests without a key run as the anonymous principal.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/gorewood/coursemd/internal/archive"
	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/export"
	"github.com/gorewood/coursemd/internal/format"
)

// Server holds the export HTTP API. Set the fields, then call Handler or
// ListenAndServe. Do not change fields afterwards.
type Server struct {
	Exports  *export.Orchestrator
	Registry *format.Registry
	// Tokens maps X-Api-Key values to principals.
	Tokens map[string]course.Principal
	Logger *slog.Logger
}

type ctxKey int

const (
	principalKey ctxKey = iota
	loggerKey
)

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	routes := []struct {
		method  string
		route   string
		handler httprouter.Handle
	}{
		{"GET", "/formats", s.FormatsHandler},
		{"GET", "/courses", s.CoursesHandler},
		{"GET", "/export/:format", s.ExportHandler},
		{"GET", "/export/:format/*course", s.ExportHandler},
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method, route.route, s.logWrapper(s.authWrapper(route.handler)))
	}
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down,
// letting running downloads finish for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger().Info("listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func principal(r *http.Request) course.Principal {
	p, _ := r.Context().Value(principalKey).(course.Principal)
	return p
}

// FormatsHandler lists the registered formats.
func (s *Server) FormatsHandler(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, s.Registry.Identities(s.Exports.Env()))
}

type courseEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// CoursesHandler lists the courses the caller may export.
func (s *Server) CoursesHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	all, err := s.Exports.Repository().Courses(r.Context())
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	p := principal(r)
	out := []courseEntry{}
	for _, c := range all {
		if s.Exports.CanExport(p, c.ID) {
			out = append(out, courseEntry{ID: c.ID.String(), DisplayName: c.DisplayName})
		}
	}
	writeJSON(w, out)
}

// ExportHandler exports one course, or every course the caller may
// export when no course id is given.
func (s *Server) ExportHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	factory, err := s.Registry.Lookup(ps.ByName("format"))
	if err != nil {
		s.fail(w, r, http.StatusNotFound, err)
		return
	}

	raw := strings.Trim(ps.ByName("course"), "/")
	if raw == "" {
		s.exportAll(w, r, factory)
		return
	}
	id, err := course.ParseID(raw)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	s.exportOne(w, r, factory, id)
}

func (s *Server) exportOne(w http.ResponseWriter, r *http.Request, factory format.Factory, id course.ID) {
	res, err := s.Exports.ExportOne(r.Context(), principal(r), factory, id)
	if err != nil {
		s.fail(w, r, statusFor(err), err)
		return
	}
	logger := requestLogger(r, s.logger())
	defer func() {
		if err := res.Tree.Remove(); err != nil {
			logger.Warn("removing staging tree", "path", res.Tree.Root(), "error", err)
		}
	}()

	f, err := os.Open(res.Path)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", res.Format.ContentType)
	h.Set("Content-Disposition", attachment(res.Filename))
	h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	if _, err := io.Copy(w, f); err != nil {
		logger.Warn("sending export", "course_id", id.String(), "error", err)
	}
}

func (s *Server) exportAll(w http.ResponseWriter, r *http.Request, factory format.Factory) {
	ctx := r.Context()
	all, err := s.Exports.Repository().Courses(ctx)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	ids := make([]course.ID, len(all))
	for i, c := range all {
		ids[i] = c.ID
	}

	logger := requestLogger(r, s.logger())
	ext := factory(s.Exports.Env()).Identity().Extension
	stream := archive.NewPackager(s.Exports, logger).Stream(ctx, archive.Request{
		Principal:        principal(r),
		Factory:          factory,
		IDs:              ids,
		CheckAuthorPerms: true,
	})
	defer stream.Close()

	h := w.Header()
	h.Set("Content-Type", archive.ContentTypeTar)
	h.Set("Content-Disposition", attachment(archive.ArchiveName(ext, s.Exports.Now(), false)))
	flusher, _ := w.(http.Flusher)
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Headers are gone; all that is left is to cut the response.
			logger.Error("streaming archive", "error", err)
			return
		}
		if _, err := w.Write(chunk); err != nil {
			logger.Warn("client went away", "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	sum := stream.Summary()
	logger.Info("sent archive", "included", len(sum.Included), "skipped", len(sum.Skipped))
}

// statusFor maps export errors to response codes.
func statusFor(err error) int {
	var (
		authErr      *export.AuthorizationError
		malformedErr *course.MalformedIdentifierError
		notFoundErr  *format.PluginNotFoundError
	)
	switch {
	case errors.As(err, &authErr):
		return http.StatusForbidden
	case errors.As(err, &malformedErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr), errors.Is(err, course.ErrCourseNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func attachment(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	logger := requestLogger(r, s.logger())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		logger.Info("request refused", "path", r.URL.Path, "status", status, "error", err)
	}
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	http.Error(w, msg, status)
}
