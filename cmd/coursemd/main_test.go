package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/output"
)

// fixture writes a config pointing at a courses directory holding two
// courses and returns the config path. Only alice may export Org courses.
func fixture(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	courses := filepath.Join(dir, "courses")
	for _, c := range []*course.Course{
		{
			ID:          course.MustParseID("course-v1:Org+CS101+2024"),
			DisplayName: "Intro to Computing",
			Chapters: []*course.Node{{
				Category: course.CategoryChapter, URLName: "week1", DisplayName: "Week 1",
			}},
		},
		{
			ID:          course.MustParseID("course-v1:Secret+X+1"),
			DisplayName: "Hidden",
			Chapters: []*course.Node{{
				Category: course.CategoryChapter, URLName: "w", DisplayName: "W",
			}},
		},
	} {
		if err := course.WriteCourseFile(courses, c); err != nil {
			t.Fatal(err)
		}
	}

	tmp := filepath.Join(dir, "tmp")
	cfg := "courses_dir: " + courses + "\n" +
		"temp_dir: " + tmp + "\n" +
		"access:\n  allow_all: false\n  grants:\n    alice: [\"course-v1:Org+*\"]\n" +
		extra
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COURSEMD_CONFIG_HOME", dir)
	return path
}

// execute runs the root command and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_Version(t *testing.T) {
	version = "1.2.3"

	out, _, err := execute(t, "--version")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "1.2.3") {
		t.Errorf("--version output should contain version: %q", out)
	}
	if !strings.Contains(out, "coursemd") {
		t.Errorf("--version output should contain 'coursemd': %q", out)
	}
}

func TestRootCommand_Help(t *testing.T) {
	out, _, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, expected := range []string{"coursemd", "Usage:", "--json", "--principal", "export-all", "schedule"} {
		if !strings.Contains(out, expected) {
			t.Errorf("--help output should contain %q", expected)
		}
	}
}

func TestRootCommand_JSONFlag_NoSubcommand(t *testing.T) {
	out, _, err := execute(t, "--json")
	if err == nil {
		t.Fatal("expected error when running with --json but no subcommand")
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output should be valid JSON: %v\nOutput: %s", err, out)
	}
	if _, ok := result["error"]; !ok {
		t.Errorf("JSON output should contain 'error' field: %s", out)
	}
	if result["code"] != float64(output.ExitUserError) {
		t.Errorf("code = %v, want %d", result["code"], output.ExitUserError)
	}
}

func TestBuildVersion(t *testing.T) {
	version, commit, date = "1.0.0", "0123456789abcdef", "2024-06-01"
	t.Cleanup(func() { version, commit, date = "dev", "none", "unknown" })

	if got := buildVersion(); got != "1.0.0 (0123456, 2024-06-01)" {
		t.Errorf("buildVersion() = %q", got)
	}
}

func TestInvalidConfigIsUserError(t *testing.T) {
	path := fixture(t, "storage:\n  type: ftp\n")
	_, stderr, err := execute(t, "--config", path, "courses")
	if got := output.GetExitCode(err); got != output.ExitUserError {
		t.Errorf("exit code = %d, want %d (err %v)", got, output.ExitUserError, err)
	}
	if !strings.Contains(stderr, "storage.type") {
		t.Errorf("stderr = %q", stderr)
	}
}
