package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/gorewood/coursemd/internal/course"
)

const sampleConfig = `
lms_root_url: https://lms.example.com
temp_dir: ${COURSEMD_TEST_TMP:-/var/tmp/coursemd}
courses_dir: /srv/courses
access:
  grants:
    alice: ["course-v1:Org+*"]
    ops: ["*"]
http:
  listen: ":9000"
  tokens:
    secret-token: alice
storage:
  type: s3
  bucket: exports
  prefix: coursemd
  region: eu-west-1
  overwrite: true
schedule:
  cron: "0 3 * * *"
  plugins: [markdown, html]
  notify_on_error: [ops@example.com]
  smtp:
    addr: mail.example.com:587
    from: coursemd@example.com
    password: ${COURSEMD_TEST_SMTP_PASSWORD}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	t.Setenv("COURSEMD_TEST_TMP", "")
	t.Setenv("COURSEMD_TEST_SMTP_PASSWORD", "hunter2")

	cfg, err := LoadFile(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.TempDir != "/var/tmp/coursemd" {
		t.Errorf("TempDir = %q, want default from expansion", cfg.TempDir)
	}
	if cfg.Schedule.SMTP.Password != "hunter2" {
		t.Errorf("SMTP password = %q", cfg.Schedule.SMTP.Password)
	}
	if !slices.Equal(cfg.Schedule.Plugins, []string{"markdown", "html"}) {
		t.Errorf("Plugins = %v", cfg.Schedule.Plugins)
	}
	if cfg.Storage.Type != StorageS3 || !cfg.Storage.Overwrite || cfg.Storage.Bucket != "exports" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.HTTP.Listen != ":9000" || cfg.HTTP.Tokens["secret-token"] != "alice" {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.AssetBaseURL() != "https://lms.example.com" {
		t.Errorf("AssetBaseURL = %q", cfg.AssetBaseURL())
	}

	acl := cfg.Access.Checker()
	if !acl.CanExport("alice", course.MustParseID("course-v1:Org+CS101+2024")) {
		t.Error("alice denied an Org course")
	}
	if acl.CanExport("alice", course.MustParseID("course-v1:Other+X+1")) {
		t.Error("alice allowed a foreign course")
	}
}

func TestParseEmptyIsDefault(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
	if _, ok := cfg.Access.Checker().(course.AllowAll); !ok {
		t.Error("default access is not allow-all")
	}
}

func TestAccessChecker(t *testing.T) {
	foreign := course.MustParseID("course-v1:Other+X+1")
	tests := []struct {
		name        string
		yaml        string
		wantForeign bool
	}{
		{"grants alone restrict", "access:\n  grants:\n    alice: [\"course-v1:Org+*\"]\n", false},
		{"explicit deny with grants", "access:\n  allow_all: false\n  grants:\n    alice: [\"course-v1:Org+*\"]\n", false},
		{"explicit deny without grants", "access:\n  allow_all: false\n", false},
		{"no access section", "", true},
		{"explicit allow", "access:\n  allow_all: true\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			checker := cfg.Access.Checker()
			if got := checker.CanExport("mallory", foreign); got != tt.wantForeign {
				t.Errorf("CanExport(mallory, %s) = %v, want %v", foreign, got, tt.wantForeign)
			}
			if got := checker.CanExport("alice", foreign); got != tt.wantForeign {
				t.Errorf("CanExport(alice, %s) = %v, want %v", foreign, got, tt.wantForeign)
			}
		})
	}
}

func TestParseUnknownKey(t *testing.T) {
	if _, err := Parse([]byte("storage:\n  kind: s3\n")); err == nil {
		t.Error("Parse accepted an unknown key")
	}
}

func TestLoadFallbacks(t *testing.T) {
	home := t.TempDir()
	t.Setenv("COURSEMD_CONFIG_HOME", home)
	t.Setenv("COURSEMD_CONFIG", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load without any file: %v", err)
	}
	if cfg.CoursesDir != filepath.Join(home, "courses") {
		t.Errorf("CoursesDir = %q", cfg.CoursesDir)
	}

	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("lms_root_url: https://home.example.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if cfg, _ := Load(""); cfg.LMSRootURL != "https://home.example.com" {
		t.Errorf("default file not read: %q", cfg.LMSRootURL)
	}

	t.Setenv("COURSEMD_CONFIG", writeConfig(t, "lms_root_url: https://env.example.com\n"))
	if cfg, _ := Load(""); cfg.LMSRootURL != "https://env.example.com" {
		t.Errorf("$COURSEMD_CONFIG not read: %q", cfg.LMSRootURL)
	}

	if _, err := Load(filepath.Join(home, "missing.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load(explicit missing) error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad storage type", func(c *Config) { c.Storage.Type = "ftp" }, `unknown type "ftp"`},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = StorageS3 }, "storage.bucket"},
		{"file without dir", func(c *Config) { c.Storage.Type = StorageFile }, "storage.dir"},
		{"bad cron", func(c *Config) { c.Schedule.Cron = "0 25 * * *" }, "schedule.cron"},
		{"relative url", func(c *Config) { c.LMSRootURL = "lms.example.com" }, "lms_root_url"},
		{"bad grant", func(c *Config) { c.Access.Grants = map[string][]string{"bob": {"[x"}} }, "bad pattern"},
		{"allow all with grants", func(c *Config) {
			allow := true
			c.Access.AllowAll = &allow
			c.Access.Grants = map[string][]string{"bob": {"*"}}
		}, "contradicts"},
		{"notify without smtp", func(c *Config) { c.Schedule.NotifyOnError = []string{"ops@example.com"} }, "schedule.smtp"},
		{"empty principal", func(c *Config) { c.HTTP.Tokens = map[string]string{"t": ""} }, "http.tokens"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
