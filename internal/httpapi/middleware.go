package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/gorewood/coursemd/internal/course"
)

// RequestIDHeader carries the id every response is tagged with.
const RequestIDHeader = "X-Request-Id"

// statusWriter remembers the status code and byte count of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// logWrapper tags the request with an id and logs it once it is done.
func (s *Server) logWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := uuid.NewString()
		logger := s.logger().With("request_id", id)
		w.Header().Set(RequestIDHeader, id)

		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		ctx := context.WithValue(r.Context(), loggerKey, logger)
		handler(sw, r.WithContext(ctx), ps)

		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"bytes", sw.bytes,
			"duration", time.Since(start),
		)
	}
}

// authWrapper resolves the X-Api-Key header to a principal. An unknown key
// is rejected; a missing one runs as the anonymous principal.
func (s *Server) authWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		p := course.Anonymous
		if token := r.Header.Get("X-Api-Key"); token != "" {
			known, ok := s.Tokens[token]
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			p = known
		}
		ctx := context.WithValue(r.Context(), principalKey, p)
		handler(w, r.WithContext(ctx), ps)
	}
}

func requestLogger(r *http.Request, fallback *slog.Logger) *slog.Logger {
	if l, ok := r.Context().Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return fallback
}
