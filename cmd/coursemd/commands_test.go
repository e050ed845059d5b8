package main

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/gorewood/coursemd/internal/output"
)

func tarNames(t *testing.T, r io.Reader) []string {
	t.Helper()
	tr := tar.NewReader(r)
	var names []string
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names
		}
		if err != nil {
			t.Fatalf("reading tar: %v", err)
		}
		names = append(names, hdr.Name)
	}
}

func TestExportCommand(t *testing.T) {
	cfg := fixture(t, "")
	dest := filepath.Join(t.TempDir(), "out", "cs101.md")

	out, _, err := execute(t, "--config", cfg, "export", "markdown", "course-v1:Org+CS101+2024", "--output", dest)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# Intro to Computing\n") {
		t.Errorf("document = %q", data)
	}
	if !strings.Contains(out, dest) {
		t.Errorf("output should name the file: %q", out)
	}
}

func TestExportCommandStdout(t *testing.T) {
	cfg := fixture(t, "")
	out, _, err := execute(t, "--config", cfg, "export", "html", "course-v1:Org+CS101+2024", "--output", "-")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "<html") || !strings.Contains(out, "Intro to Computing") {
		t.Errorf("stdout is not the html document: %.200q", out)
	}
}

func TestExportCommandJSON(t *testing.T) {
	cfg := fixture(t, "")
	dest := filepath.Join(t.TempDir(), "cs101.md")
	out, _, err := execute(t, "--config", cfg, "--json", "--principal", "alice",
		"export", "markdown", "course-v1:Org+CS101+2024", "-o", dest)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output should be valid JSON: %v\n%s", err, out)
	}
	if result["course_id"] != "course-v1:Org+CS101+2024" || result["format"] != "markdown" || result["path"] != dest {
		t.Errorf("result = %v", result)
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if result["bytes"] != float64(info.Size()) {
		t.Errorf("bytes = %v, file has %d", result["bytes"], info.Size())
	}
}

func TestExportCommandErrors(t *testing.T) {
	cfg := fixture(t, "")
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown format", []string{"export", "pdf", "course-v1:Org+CS101+2024"}, output.ExitUserError},
		{"malformed id", []string{"export", "markdown", "not-a-course"}, output.ExitUserError},
		{"missing course", []string{"export", "markdown", "course-v1:Org+Gone+1"}, output.ExitNotFound},
		{"forbidden", []string{"--principal", "alice", "export", "markdown", "course-v1:Secret+X+1"}, output.ExitForbidden},
		{"missing args", []string{"export", "markdown"}, output.ExitUserError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", cfg}, tt.args...)
			_, _, err := execute(t, append(args, "--output", filepath.Join(t.TempDir(), "x"))...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := output.GetExitCode(err); got != tt.want {
				t.Errorf("exit code = %d, want %d (%v)", got, tt.want, err)
			}
		})
	}
}

func TestExportAllCommand(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		want      string
	}{
		{"everything", "", "course-v1:Org+CS101+2024_,course-v1:Secret+X+1_"},
		{"alice", "alice", "course-v1:Org+CS101+2024_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fixture(t, "")
			dest := filepath.Join(t.TempDir(), "all.tar.gz")
			if _, _, err := execute(t, "--config", cfg, "--principal", tt.principal, "export-all", "markdown", "-o", dest); err != nil {
				t.Fatalf("export-all: %v", err)
			}

			f, err := os.Open(dest)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			zr, err := gzip.NewReader(f)
			if err != nil {
				t.Fatal(err)
			}
			names := tarNames(t, zr)
			var prefixes []string
			for _, n := range names {
				prefix, _, _ := strings.Cut(n, "_")
				prefixes = append(prefixes, prefix+"_")
				if !strings.HasSuffix(n, ".md") {
					t.Errorf("entry %q is not markdown", n)
				}
			}
			if got := strings.Join(prefixes, ","); got != tt.want {
				t.Errorf("entries = %v, want %s", names, tt.want)
			}
		})
	}
}

func TestExportAllStream(t *testing.T) {
	cfg := fixture(t, "")
	out, _, err := execute(t, "--config", cfg, "export-all", "html", "--stream", "--output", "-")
	if err != nil {
		t.Fatalf("export-all --stream: %v", err)
	}
	if names := tarNames(t, strings.NewReader(out)); len(names) != 2 {
		t.Errorf("entries = %v", names)
	}
}

func TestCoursesCommand(t *testing.T) {
	cfg := fixture(t, "")
	out, _, err := execute(t, "--config", cfg, "--json", "--principal", "alice", "courses")
	if err != nil {
		t.Fatalf("courses: %v", err)
	}
	var result struct {
		Count   int `json:"count"`
		Courses []struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"courses"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output should be valid JSON: %v\n%s", err, out)
	}
	if result.Count != 1 || result.Courses[0].ID != "course-v1:Org+CS101+2024" {
		t.Errorf("courses = %+v", result)
	}

	out, _, err = execute(t, "--config", cfg, "courses")
	if err != nil {
		t.Fatalf("courses: %v", err)
	}
	if !strings.Contains(out, "Intro to Computing") || !strings.Contains(out, "Hidden") {
		t.Errorf("table = %q", out)
	}
}

func TestFormatsCommand(t *testing.T) {
	cfg := fixture(t, "")
	out, _, err := execute(t, "--config", cfg, "formats")
	if err != nil {
		t.Fatalf("formats: %v", err)
	}
	for _, want := range []string{"html", "markdown", "text/markdown"} {
		if !strings.Contains(out, want) {
			t.Errorf("formats output should contain %q: %q", want, out)
		}
	}
}

func TestTemplatesCommand(t *testing.T) {
	cfg := fixture(t, "")
	out, _, err := execute(t, "--config", cfg, "--json", "templates")
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	var list []map[string]string
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("output should be valid JSON: %v\n%s", err, out)
	}
	found := false
	for _, tmpl := range list {
		if tmpl["file"] == "markdown.tmpl" {
			found = true
		}
	}
	if !found {
		t.Errorf("markdown.tmpl not listed: %v", list)
	}
}

func TestScheduleOnce(t *testing.T) {
	storeDir := t.TempDir()
	cfg := fixture(t, "storage:\n  type: file\n  dir: "+storeDir+"\n  prefix: exports\n  overwrite: true\n"+
		"schedule:\n  plugins: [markdown, pdf]\n")

	out, _, err := execute(t, "--config", cfg, "--json", "schedule", "--once")
	if got := output.GetExitCode(err); got != output.ExitSystemError {
		t.Errorf("exit code = %d, want %d for the failed pdf run", got, output.ExitSystemError)
	}

	var result struct {
		Outcomes []map[string]any `json:"outcomes"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output should be valid JSON: %v\n%s", err, out)
	}
	if len(result.Outcomes) != 2 || result.Outcomes[0]["key"] != "markdown/all_courses_as_md.tar.gz" {
		t.Errorf("outcomes = %v", result.Outcomes)
	}
	if _, ok := result.Outcomes[1]["error"]; !ok {
		t.Errorf("pdf outcome should carry an error: %v", result.Outcomes[1])
	}
	if _, err := os.Stat(filepath.Join(storeDir, "exports", "markdown", "all_courses_as_md.tar.gz")); err != nil {
		t.Errorf("archive not stored: %v", err)
	}
}

func TestScheduleRequiresStorage(t *testing.T) {
	cfg := fixture(t, "")
	_, _, err := execute(t, "--config", cfg, "schedule", "--once")
	if got := output.GetExitCode(err); got != output.ExitUserError {
		t.Errorf("exit code = %d, want %d", got, output.ExitUserError)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	t.Setenv("COURSEMD_TEST_SMTP", "hunter2")
	cfg := fixture(t, "schedule:\n  smtp:\n    addr: mail:25\n    from: a@example.com\n    password: ${COURSEMD_TEST_SMTP}\n"+
		"http:\n  tokens:\n    tok-123: alice\n")

	out, _, err := execute(t, "--config", cfg, "--json", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "hunter2") || strings.Contains(out, "tok-123") {
		t.Errorf("secrets leaked: %s", out)
	}
	if !strings.Contains(out, `"smtp_password": "********"`) || !strings.Contains(out, `"alice"`) {
		t.Errorf("config show = %s", out)
	}

	out, _, err = execute(t, "--config", cfg, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "hunter2") || !strings.Contains(out, "Schedule") {
		t.Errorf("config show = %s", out)
	}
}

func TestConfigValidate(t *testing.T) {
	out, _, err := execute(t, "--config", fixture(t, ""), "config", "validate")
	if err != nil || !strings.Contains(out, "valid") {
		t.Errorf("validate = %q, %v", out, err)
	}

	_, _, err = execute(t, "--config", fixture(t, "schedule:\n  cron: \"61 * * * *\"\n"), "config", "validate")
	if output.GetExitCode(err) != output.ExitUserError {
		t.Errorf("validate accepted a bad cron: %v", err)
	}
}

func TestNewServeCmd(t *testing.T) {
	cmd := newServeCmd()
	if cmd.Use != "serve" {
		t.Errorf("Use = %q, want %q", cmd.Use, "serve")
	}
	if cmd.RunE == nil {
		t.Error("RunE is nil")
	}
}
