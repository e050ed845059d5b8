package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestPrinter_JSON_Success(t *testing.T) {
	var buf bytes.Buffer
	printer := NewPrinter(&buf, true, true)

	err := printer.Success(map[string]any{
		"course_id": "course-v1:Org+CS101+2024",
		"bytes":     1234,
	})
	if err != nil {
		t.Fatalf("Success() error = %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse JSON: %v\nOutput: %s", err, buf.String())
	}
	if result["course_id"] != "course-v1:Org+CS101+2024" || result["bytes"] != float64(1234) {
		t.Errorf("result = %v", result)
	}
	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("JSON output must not be styled: %q", buf.String())
	}
}

func TestPrinter_JSON_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantMsg  string
		wantCode int
	}{
		{"exit error", NewNotFoundError("no such course", nil), "no such course", ExitNotFound},
		{"plain error", errors.New("accepts 2 arg(s)"), "accepts 2 arg(s)", ExitUserError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			NewPrinter(&out, true, false).WithStderr(&errOut).Error(tt.err)

			var result map[string]any
			if err := json.Unmarshal(out.Bytes(), &result); err != nil {
				t.Fatalf("Failed to parse JSON: %v\nOutput: %s", err, out.String())
			}
			if result["error"] != tt.wantMsg || result["code"] != float64(tt.wantCode) {
				t.Errorf("result = %v", result)
			}
			if errOut.Len() != 0 {
				t.Errorf("JSON errors belong on stdout, stderr got %q", errOut.String())
			}
		})
	}
}

func TestPrinter_Human_Success(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{"message", map[string]any{"message": "Configuration is valid", "valid": true}, "Configuration is valid\n"},
		{"sorted keys", map[string]any{"skipped": 1, "included": 3, "path": "all.tar.gz"}, "included: 3\npath: all.tar.gz\nskipped: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewPrinter(&buf, false, false).Success(tt.data); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestPrinter_Human_ErrorAndWarnGoToStderr(t *testing.T) {
	var out, errOut bytes.Buffer
	printer := NewPrinter(&out, false, false).WithStderr(&errOut)

	printer.Error(NewForbiddenError("alice may not export course-v1:Secret+X+1", nil))
	printer.Warn("skipped %d courses", 2)
	printer.Stderr("Listening on %s\n", ":8080")

	if out.Len() != 0 {
		t.Errorf("stdout = %q, want empty", out.String())
	}
	want := "Error: alice may not export course-v1:Secret+X+1\nWarning: skipped 2 courses\nListening on :8080\n"
	if errOut.String() != want {
		t.Errorf("stderr = %q, want %q", errOut.String(), want)
	}
}

func TestPrinter_JSON_DropsHints(t *testing.T) {
	var out, errOut bytes.Buffer
	NewPrinter(&out, true, false).WithStderr(&errOut).Stderr("progress")
	if out.Len()+errOut.Len() != 0 {
		t.Errorf("hint written in JSON mode: %q %q", out.String(), errOut.String())
	}
}

func TestPrinter_Table(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, false, false).Table(
		[]string{"ID", "TITLE"},
		[][]string{
			{"course-v1:Org+A+1", "Alpha"},
			{"course-v1:Org+Zürich+1", "Données et société"},
			{"short", "extra", "ignored"},
		},
	)

	want := strings.Join([]string{
		"ID                      TITLE",
		"course-v1:Org+A+1       Alpha",
		"course-v1:Org+Zürich+1  Données et société",
		"short                   extra",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("table =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestPrinter_TableWithoutHeaders(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, false, false).Table(nil, [][]string{{"x"}})
	if buf.Len() != 0 {
		t.Errorf("output = %q, want nothing", buf.String())
	}
}

func TestPrinter_SectionAndKeyValue(t *testing.T) {
	var buf bytes.Buffer
	printer := NewPrinter(&buf, false, false)
	printer.Section("Storage")
	printer.KeyValue("Type", "s3")

	want := "\nStorage\n───────\nType: s3\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
