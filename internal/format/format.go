// Package format defines export format plugins and the registry that maps
// format names to plugin factories.
//
// A plugin receives the course root document and the staging tree filled by
// the base export pass, and must leave its result at output.<extension> in
// that tree.
package format

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/resolve"
	"github.com/gorewood/coursemd/internal/staging"
	"github.com/gorewood/coursemd/internal/transform"
	"github.com/gorewood/coursemd/internal/xmltree"
)

// Identity names a format and describes the file it produces.
type Identity struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Extension   string `json:"extension"`
}

// Plugin converts a staged course into a single output document.
type Plugin interface {
	Identity() Identity
	PostProcess(ctx context.Context, root *xmltree.Node, tree *staging.Tree) error
}

// RootProcessor is implemented by plugins that adjust the root document
// after the base pass and before PostProcess.
type RootProcessor interface {
	ProcessRoot(root *xmltree.Node, tree *staging.Tree) error
}

// ExtraProcessor is implemented by plugins that need extra course data in
// the tree before PostProcess.
type ExtraProcessor interface {
	ProcessExtra(c *course.Course, tree *staging.Tree) error
}

// Env is what a factory gets to build a plugin instance.
type Env struct {
	// Templates holds the master templates and their imports.
	Templates fs.FS
	// BaseURL prefixes course-relative links. Empty keeps them relative.
	BaseURL string
	// CourseID is the normalized id of the course being exported.
	CourseID string
	// Now stamps the export. Nil means time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

// Factory builds a fresh plugin for one export.
type Factory func(env Env) Plugin

// PluginNotFoundError is returned by Lookup for unregistered names.
type PluginNotFoundError struct {
	Name      string
	Available []string
}

func (e *PluginNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown format %q", e.Name)
	}
	return fmt.Sprintf("unknown format %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// Registry maps format names to factories. It is filled at startup and read
// concurrently afterwards.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the built-in formats.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(MarkdownName, NewMarkdown)
	_ = r.Register(HTMLName, NewHTML)
	return r
}

// Register adds a factory. Names are unique.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("registering format %q: name and factory are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("format %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &PluginNotFoundError{Name: name, Available: r.Names()}
	}
	return f, nil
}

// Names returns the registered format names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Identities builds one plugin per registered name and reports its identity.
func (r *Registry) Identities(env Env) []Identity {
	var out []Identity
	for _, name := range r.Names() {
		f, err := r.Lookup(name)
		if err != nil {
			continue
		}
		out = append(out, f(env).Identity())
	}
	return out
}

// renderMarkdown runs the markdown master template over the staged course.
func renderMarkdown(env Env, root *xmltree.Node, tree *staging.Tree) (string, error) {
	logger := env.logger()
	set := resolve.NewDefaultSet(tree, env.Templates, logger)
	engine, err := transform.New(set, resolve.SchemeTemplate+MarkdownName+".tmpl", transform.Params{
		BaseURL:  env.BaseURL,
		Now:      env.now(),
		CourseID: env.CourseID,
	}, logger)
	if err != nil {
		return "", err
	}
	return engine.Transform(root)
}
