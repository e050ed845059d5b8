// Package transform renders a staged course into a single document by
// executing a master template over the course root document.
//
// Templates are text/template sources with YAML frontmatter. The master
// template lists the sub-templates it needs under "imports"; every import
// and every document a template asks for is fetched through the resolver
// set, so a template reaches the staging tree and the template directory
// only through virtual references.
package transform

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/gorewood/coursemd/internal/resolve"
	"github.com/gorewood/coursemd/internal/xmltree"
)

// ErrTemplateNotFound is returned when the master template or one of its
// imports cannot be resolved.
var ErrTemplateNotFound = errors.New("template not found")

// Params are the ambient values every template can read.
type Params struct {
	// BaseURL prefixes asset links, e.g. "https://lms.example.com".
	BaseURL string
	// Now is the export timestamp.
	Now time.Time
	// CourseID is the normalized course id.
	CourseID string
}

// Data is the value templates execute against.
type Data struct {
	Root     *xmltree.Node
	BaseURL  string
	Now      time.Time
	CourseID string
}

// Engine executes one master template. It is bound to a single staging
// tree through its resolver set and is not safe for concurrent use.
type Engine struct {
	resolvers *resolve.Set
	params    Params
	logger    *slog.Logger
	master    *Template
	tmpl      *template.Template
}

// New loads the master template addressed by ref (normally
// "pylocal:<format>.tmpl") together with its imports.
func New(resolvers *resolve.Set, ref string, params Params, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Engine{resolvers: resolvers, params: params, logger: logger}

	master, err := e.load(ref)
	if err != nil {
		return nil, err
	}
	e.master = master

	root := template.New(master.Name).Funcs(e.funcs())
	for _, imp := range master.Imports {
		sub, err := e.load(imp)
		if err != nil {
			return nil, err
		}
		if _, err := root.New(sub.Name).Parse(sub.Content); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", imp, err)
		}
	}
	if _, err := root.Parse(master.Content); err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", ref, err)
	}
	e.tmpl = root
	return e, nil
}

// Name returns the master template name.
func (e *Engine) Name() string {
	return e.master.Name
}

func (e *Engine) load(ref string) (*Template, error) {
	res := e.resolvers.Resolve(ref)
	if res.Kind != resolve.Found {
		return nil, fmt.Errorf("%s: %w", ref, ErrTemplateNotFound)
	}
	_, name, _ := strings.Cut(ref, ":")
	return ParseTemplate(res.Doc.TextContent(), name)
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Transform executes the master template over root and returns the
// normalized document text.
func (e *Engine) Transform(root *xmltree.Node) (string, error) {
	data := Data{
		Root:     root,
		BaseURL:  e.params.BaseURL,
		Now:      e.params.Now,
		CourseID: e.params.CourseID,
	}
	var sb strings.Builder
	if err := e.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", e.master.Name, err)
	}
	return normalize(sb.String()), nil
}

// normalize trims trailing blanks from every line, collapses runs of blank
// lines and ends the document with a single newline.
func normalize(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	out = strings.TrimSpace(out)
	if out == "" {
		return ""
	}
	return out + "\n"
}
