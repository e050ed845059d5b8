package schedule

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/cron"
	"github.com/gorewood/coursemd/internal/export"
	"github.com/gorewood/coursemd/internal/format"
	"github.com/gorewood/coursemd/internal/store"
	"github.com/gorewood/coursemd/internal/transform"
)

var runDate = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type notification struct {
	subject string
	body    string
}

type recorder struct {
	mu   sync.Mutex
	sent []notification
}

func (r *recorder) Notify(_ context.Context, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, notification{subject, body})
	return nil
}

type brokenStore struct {
	store.Store
}

func (brokenStore) Create(key string) (io.WriteCloser, error) {
	return nil, errors.New("bucket unavailable")
}

func newScheduler(t *testing.T, st store.Store, plugins ...string) (*Scheduler, *recorder, string) {
	t.Helper()
	repo := course.NewMemoryRepository(
		&course.Course{ID: course.MustParseID("course-v1:Org+A+1"), DisplayName: "Alpha"},
		&course.Course{ID: course.MustParseID("course-v1:Org+B+1"), DisplayName: "Bravo"},
	)
	clock := func() time.Time { return runDate }
	tmp := t.TempDir()
	rec := &recorder{}
	s := New(Options{
		Exports: export.New(export.Options{
			Repo:    repo,
			Env:     format.Env{Templates: transform.Builtin()},
			TempDir: tmp,
			Now:     clock,
		}),
		Registry:   format.DefaultRegistry(),
		Store:      st,
		Plugins:    plugins,
		LMSRootURL: "https://lms.example.com",
		TempDir:    tmp,
		Notifier:   rec,
		Now:        clock,
	})
	return s, rec, tmp
}

func TestRunOnceStoresArchives(t *testing.T) {
	st := store.NewMemory()
	s, rec, tmp := newScheduler(t, st, format.MarkdownName, format.HTMLName)

	outcomes := s.RunOnce(context.Background())
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	for _, out := range outcomes {
		if out.Err != nil || out.Included != 2 || out.Skipped != 0 {
			t.Errorf("outcome %+v", out)
		}
	}
	keys, _ := st.ListPrefix("")
	want := []string{
		"html/all_courses_as_html_2024-06-01.tar.gz",
		"markdown/all_courses_as_md_2024-06-01.tar.gz",
	}
	if !slices.Equal(keys, want) {
		t.Errorf("stored keys = %v, want %v", keys, want)
	}
	if len(rec.sent) != 0 {
		t.Errorf("unexpected notifications: %v", rec.sent)
	}

	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Errorf("%d entries left in temp dir", len(entries))
	}
}

func TestRunOnceOverwrite(t *testing.T) {
	st := store.NewMemory()
	s, _, _ := newScheduler(t, st, format.MarkdownName)
	s.opts.Overwrite = true

	out := s.RunOnce(context.Background())
	if out[0].Key != "markdown/all_courses_as_md.tar.gz" {
		t.Errorf("key = %q", out[0].Key)
	}
}

func TestRunOnceNotifiesAndContinues(t *testing.T) {
	st := store.NewMemory()
	s, rec, _ := newScheduler(t, st, "pdf", format.MarkdownName)

	outcomes := s.RunOnce(context.Background())
	var notFound *format.PluginNotFoundError
	if !errors.As(outcomes[0].Err, &notFound) {
		t.Errorf("pdf outcome error = %v, want PluginNotFoundError", outcomes[0].Err)
	}
	if outcomes[1].Err != nil {
		t.Errorf("markdown outcome error = %v", outcomes[1].Err)
	}

	if len(rec.sent) != 1 {
		t.Fatalf("got %d notifications, want 1", len(rec.sent))
	}
	n := rec.sent[0]
	if n.subject != "Course export as pdf failed" {
		t.Errorf("subject = %q", n.subject)
	}
	if !strings.HasPrefix(n.body, "Course export as pdf from https://lms.example.com failed with error: ") {
		t.Errorf("body = %q", n.body)
	}
}

func TestRunOnceUploadFailure(t *testing.T) {
	s, rec, _ := newScheduler(t, brokenStore{store.NewMemory()}, format.MarkdownName)

	out := s.RunOnce(context.Background())
	if out[0].Err == nil || !strings.Contains(out[0].Err.Error(), "bucket unavailable") {
		t.Errorf("error = %v", out[0].Err)
	}
	if len(rec.sent) != 1 {
		t.Errorf("got %d notifications, want 1", len(rec.sent))
	}
}

func TestRunWaitsForSchedule(t *testing.T) {
	st := store.NewMemory()
	s, _, _ := newScheduler(t, st, format.MarkdownName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var waits []time.Duration
	s.opts.After = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		if len(waits) > 1 {
			cancel()
			return nil
		}
		ch := make(chan time.Time, 1)
		ch <- runDate.Add(d)
		return ch
	}

	err := s.Run(ctx, cron.MustParse("0 9 * * *"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if len(waits) != 2 || waits[0] != time.Hour {
		t.Errorf("waits = %v, want first wait of 1h", waits)
	}
	if keys, _ := st.ListPrefix("markdown/"); len(keys) != 1 {
		t.Errorf("stored keys = %v", keys)
	}
}

func TestSMTPNotifier(t *testing.T) {
	n := NewSMTPNotifier("mail.example.com:587", "exports@example.com",
		[]string{"ops@example.com", "dev@example.com"}, "user", "secret")
	n.now = func() time.Time { return runDate }

	var (
		gotAddr string
		gotAuth smtp.Auth
		gotTo   []string
		gotMsg  string
	)
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
		return nil
	}

	if err := n.Notify(context.Background(), "Course export as md failed", "line one\nline two"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotAddr != "mail.example.com:587" || gotAuth == nil || len(gotTo) != 2 {
		t.Errorf("send(%q, %v, %v)", gotAddr, gotAuth, gotTo)
	}
	for _, want := range []string{
		"From: exports@example.com\r\n",
		"To: ops@example.com, dev@example.com\r\n",
		"Subject: Course export as md failed\r\n",
		"\r\n\r\nline one\r\nline two\r\n",
	} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q:\n%s", want, gotMsg)
		}
	}
}

func TestSMTPNotifierWithoutRecipients(t *testing.T) {
	n := NewSMTPNotifier("mail.example.com:25", "exports@example.com", nil, "", "")
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Error("send called without recipients")
		return nil
	}
	if err := n.Notify(context.Background(), "s", "b"); err != nil {
		t.Errorf("Notify: %v", err)
	}
}

func TestSMTPNotifierSendError(t *testing.T) {
	n := NewSMTPNotifier("mail.example.com:25", "exports@example.com", []string{"ops@example.com"}, "", "")
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	err := n.Notify(context.Background(), "s", "b")
	if err == nil || !strings.Contains(err.Error(), "mail.example.com:25") {
		t.Errorf("Notify error = %v", err)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	if err := n.Notify(context.Background(), "Course export as md failed", "details"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "Course export as md failed") || !strings.Contains(out, "body=details") {
		t.Errorf("log output = %q", out)
	}
}
