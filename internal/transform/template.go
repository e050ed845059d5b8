package transform

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates
var builtinFS embed.FS

// Template is a template source with its frontmatter metadata.
type Template struct {
	// Metadata from frontmatter
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Imports     []string `yaml:"imports,omitempty"`

	// Template content (after frontmatter)
	Content string `yaml:"-"`
}

// Builtin returns the templates shipped with the binary.
func Builtin() fs.FS {
	sub, err := fs.Sub(builtinFS, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Templates returns the template filesystem for a configured override
// directory. Resolution order: override dir → built-in.
func Templates(overrideDir string) fs.FS {
	if overrideDir == "" {
		return Builtin()
	}
	return layered{os.DirFS(overrideDir), Builtin()}
}

type layered []fs.FS

func (l layered) Open(name string) (fs.File, error) {
	var firstErr error
	for _, fsys := range l {
		f, err := fsys.Open(name)
		if err == nil {
			return f, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return nil, firstErr
}

// ReadDir merges the listings of every layer; earlier layers shadow later
// ones.
func (l layered) ReadDir(name string) ([]fs.DirEntry, error) {
	seen := make(map[string]bool)
	var out []fs.DirEntry
	found := false
	for _, fsys := range l {
		entries, err := fs.ReadDir(fsys, name)
		if err != nil {
			continue
		}
		found = true
		for _, e := range entries {
			if !seen[e.Name()] {
				seen[e.Name()] = true
				out = append(out, e)
			}
		}
	}
	if !found {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// ParseTemplate parses a template from raw content with YAML frontmatter.
// When the frontmatter names no template, the base of fallbackName without
// extension is used.
func ParseTemplate(raw, fallbackName string) (*Template, error) {
	frontmatter, content := splitFrontmatter(raw)

	var tmpl Template
	if frontmatter != "" {
		if err := yaml.Unmarshal([]byte(frontmatter), &tmpl); err != nil {
			return nil, fmt.Errorf("invalid frontmatter in %s: %w", fallbackName, err)
		}
	}
	if tmpl.Name == "" {
		base := path.Base(fallbackName)
		tmpl.Name = strings.TrimSuffix(base, path.Ext(base))
	}
	if tmpl.Name == "" || tmpl.Name == "." {
		return nil, errors.New("template has no name")
	}

	tmpl.Content = content
	return &tmpl, nil
}

// splitFrontmatter separates YAML frontmatter from content.
// Frontmatter is delimited by --- at the start and end.
func splitFrontmatter(raw string) (frontmatter, content string) {
	trimmed := strings.TrimLeft(raw, " \t\r\n")
	if !strings.HasPrefix(trimmed, "---") {
		return "", raw
	}

	rest := trimmed[3:]
	before, after, ok := strings.Cut(rest, "\n---")
	if !ok {
		return "", raw
	}
	// Drop the remainder of the closing delimiter line.
	if _, body, found := strings.Cut(after, "\n"); found {
		after = body
	} else {
		after = ""
	}
	return strings.TrimSpace(before), after
}

// TemplateInfo describes an available master template.
type TemplateInfo struct {
	Name        string
	Description string
	Path        string
}

// ListTemplates returns the master templates (top-level *.tmpl files) in fsys.
func ListTemplates(fsys fs.FS) []TemplateInfo {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil
	}
	var out []TemplateInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmpl") {
			continue
		}
		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			continue
		}
		tmpl, err := ParseTemplate(string(data), entry.Name())
		if err != nil {
			continue
		}
		out = append(out, TemplateInfo{Name: tmpl.Name, Description: tmpl.Description, Path: entry.Name()})
	}
	return out
}
