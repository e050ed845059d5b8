package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/cron"
)

// Storage types.
const (
	StorageNone = "none"
	StorageFile = "file"
	StorageS3   = "s3"
)

// Config is the coursemd configuration. It is built once at startup and
// handed to constructors.
type Config struct {
	// LMSRootURL is the public root of the LMS. Asset links and operator
	// notifications refer to it.
	LMSRootURL string `yaml:"lms_root_url"`

	// BaseURL prefixes asset links in rendered documents. Empty means
	// LMSRootURL; the html format inlines images when both are empty.
	BaseURL string `yaml:"base_url"`

	// TempDir holds staging trees and archives. Empty means the system
	// temp directory.
	TempDir string `yaml:"temp_dir"`

	// TemplatesDir overrides the builtin templates file by file.
	TemplatesDir string `yaml:"templates_dir"`

	// CoursesDir is the course repository root.
	CoursesDir string `yaml:"courses_dir"`

	Access   AccessConfig   `yaml:"access"`
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// AccessConfig decides who may export what.
type AccessConfig struct {
	// AllowAll grants every principal every course. Unset, it is true only
	// when Grants is empty.
	AllowAll *bool `yaml:"allow_all"`

	// Grants maps principals to glob patterns over normalized course ids.
	Grants map[string][]string `yaml:"grants"`
}

// HTTPConfig configures the download server.
type HTTPConfig struct {
	Listen string `yaml:"listen"`

	// Tokens maps X-Api-Key values to principals.
	Tokens map[string]string `yaml:"tokens"`
}

// StorageConfig selects where scheduled archives are delivered.
type StorageConfig struct {
	// Type is one of none, file or s3.
	Type string `yaml:"type"`

	// Dir is the root of a file store.
	Dir string `yaml:"dir"`

	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`

	// Overwrite stores archives without a date in their name.
	Overwrite bool `yaml:"overwrite"`
}

// ScheduleConfig configures unattended exports.
type ScheduleConfig struct {
	// Cron is a five field expression in UTC.
	Cron string `yaml:"cron"`

	// Plugins are the format names exported on every run.
	Plugins []string `yaml:"plugins"`

	// NotifyOnError lists the addresses mailed when a format fails.
	NotifyOnError []string `yaml:"notify_on_error"`

	SMTP SMTPConfig `yaml:"smtp"`
}

// SMTPConfig is the mail relay for notifications.
type SMTPConfig struct {
	Addr     string `yaml:"addr"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	courses := "courses"
	if dir := Dir(); dir != "" {
		courses = filepath.Join(dir, "courses")
	}
	return &Config{
		CoursesDir: courses,
		HTTP:       HTTPConfig{Listen: "127.0.0.1:8080"},
		Storage:    StorageConfig{Type: StorageNone},
		Schedule: ScheduleConfig{
			Cron:    "@daily",
			Plugins: []string{"markdown"},
		},
	}
}

// Load reads the configuration file at path. An empty path falls back to
// $COURSEMD_CONFIG and then DefaultPath. Only a missing default file is
// tolerated; it yields Default.
func Load(path string) (*Config, error) {
	explicit := true
	if path == "" {
		path = os.Getenv("COURSEMD_CONFIG")
	}
	if path == "" {
		path, explicit = DefaultPath(), false
	}
	if path == "" {
		return Default(), nil
	}

	cfg, err := LoadFile(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadFile reads path over Default. Unknown keys are errors.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and expands ${VAR} and ${VAR:-default}
// in paths and credentials.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

func (c *Config) expandVariables() {
	for _, p := range []*string{
		&c.LMSRootURL,
		&c.BaseURL,
		&c.TempDir,
		&c.TemplatesDir,
		&c.CoursesDir,
		&c.Storage.Dir,
		&c.Storage.Bucket,
		&c.Storage.Endpoint,
		&c.Schedule.SMTP.Addr,
		&c.Schedule.SMTP.Username,
		&c.Schedule.SMTP.Password,
	} {
		*p = expandVars(*p)
	}
}

// AssetBaseURL is the prefix for asset links in rendered documents.
func (c *Config) AssetBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return c.LMSRootURL
}

// AllowsAll reports whether the section grants every course to everyone.
func (a AccessConfig) AllowsAll() bool {
	if a.AllowAll != nil {
		return *a.AllowAll
	}
	return len(a.Grants) == 0
}

// Checker returns the access policy the section describes.
func (a AccessConfig) Checker() course.AccessChecker {
	if a.AllowsAll() {
		return course.AllowAll{}
	}
	acl := make(course.ACL, len(a.Grants))
	for principal, patterns := range a.Grants {
		acl[course.Principal(principal)] = patterns
	}
	return acl
}

// CronSchedule parses the schedule expression.
func (s ScheduleConfig) CronSchedule() (cron.Schedule, error) {
	return cron.Parse(s.Cron)
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	for name, raw := range map[string]string{"lms_root_url": c.LMSRootURL, "base_url": c.BaseURL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s: %q is not an absolute URL", name, raw))
		}
	}
	if c.CoursesDir == "" {
		errs = append(errs, errors.New("courses_dir is required"))
	}

	if c.Access.AllowAll != nil && *c.Access.AllowAll && len(c.Access.Grants) > 0 {
		errs = append(errs, errors.New("access: allow_all: true contradicts access.grants"))
	}
	for principal, patterns := range c.Access.Grants {
		for _, p := range patterns {
			if _, err := path.Match(p, ""); err != nil {
				errs = append(errs, fmt.Errorf("access.grants.%s: bad pattern %q", principal, p))
			}
		}
	}
	for token, principal := range c.HTTP.Tokens {
		if token == "" || principal == "" {
			errs = append(errs, errors.New("http.tokens: tokens and principals must not be empty"))
			break
		}
	}

	switch c.Storage.Type {
	case StorageNone:
	case StorageFile:
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for file storage"))
		}
	case StorageS3:
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type: unknown type %q (want none, file or s3)", c.Storage.Type))
	}

	if _, err := c.Schedule.CronSchedule(); err != nil {
		errs = append(errs, fmt.Errorf("schedule.cron: %w", err))
	}
	if len(c.Schedule.NotifyOnError) > 0 && (c.Schedule.SMTP.Addr == "" || c.Schedule.SMTP.From == "") {
		errs = append(errs, errors.New("schedule.smtp.addr and schedule.smtp.from are required with notify_on_error"))
	}

	return errors.Join(errs...)
}
