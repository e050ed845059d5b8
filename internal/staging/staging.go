// Package staging manages the intermediate directory tree a course is
// serialized into before a format plugin transforms it.
//
// The relative paths below are a contract shared by the serializer, the
// virtual document resolvers and the templates:
//
//	course.xml                  root document
//	<category>/<url_name>.xml   one file per block with its own data
//	html/<url_name>.html        html leaf bodies
//	about/overview.html
//	info/updates.json
//	info/handouts.html
//	policies/assets.json
//	policies/course/policy.json
//	tabs/<slug>.html
//	static/<filename>
//	output.<extension>          produced by the format plugin
package staging

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Layout paths, relative to the tree root, always slash separated.
const (
	RootDocument    = "course.xml"
	OverviewFile    = "about/overview.html"
	UpdatesManifest = "info/updates.json"
	HandoutsFile    = "info/handouts.html"
	AssetsManifest  = "policies/assets.json"
	PolicyFile      = "policies/course/policy.json"
	TabsDir         = "tabs"
	StaticDir       = "static"
)

// ErrOutsideTree is returned for paths that would escape the tree root.
var ErrOutsideTree = errors.New("path escapes staging tree")

// Tree is an exclusive per-export working directory.
type Tree struct {
	root string
}

// New creates a fresh tree at <parent>/<name>. parent must exist; name is
// normally a normalized course id.
func New(parent, name string) (*Tree, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid staging tree name %q", name)
	}
	root := filepath.Join(parent, name)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging tree %s: %w", root, err)
	}
	return &Tree{root: root}, nil
}

// Temp creates a tree with a unique name starting with prefix under parent,
// so concurrent exports of the same course never share a directory. An
// empty parent means the system temp directory.
func Temp(parent, prefix string) (*Tree, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, fmt.Errorf("creating staging parent %s: %w", parent, err)
		}
	}
	root, err := os.MkdirTemp(parent, prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("creating staging tree: %w", err)
	}
	return &Tree{root: root}, nil
}

// Root returns the tree's absolute directory.
func (t *Tree) Root() string {
	return t.root
}

// Path maps a slash-separated relative path onto the filesystem, refusing
// anything that would leave the tree.
func (t *Tree) Path(rel string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(rel, `\`, "/"))
	if clean == "/" || strings.Contains(rel, "\x00") {
		return "", fmt.Errorf("%q: %w", rel, ErrOutsideTree)
	}
	if path.Clean(rel) != strings.TrimPrefix(clean, "/") {
		return "", fmt.Errorf("%q: %w", rel, ErrOutsideTree)
	}
	return filepath.Join(t.root, filepath.FromSlash(clean[1:])), nil
}

// WriteFile writes data to rel, creating parent directories.
func (t *Tree) WriteFile(rel string, data []byte) error {
	p, err := t.Path(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}

// ReadFile reads rel. A missing file yields an error matching fs.ErrNotExist.
func (t *Tree) ReadFile(rel string) ([]byte, error) {
	p, err := t.Path(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Exists reports whether rel names a regular file in the tree.
func (t *Tree) Exists(rel string) bool {
	p, err := t.Path(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes the tree and everything under it.
func (t *Tree) Remove() error {
	return os.RemoveAll(t.root)
}

// OutputFile returns the relative path of the plugin output for ext.
func OutputFile(ext string) string {
	return "output." + ext
}

// BlockFile returns the relative path of a block's own document.
func BlockFile(category, urlName string) string {
	return category + "/" + urlName + ".xml"
}

// TabFile returns the relative path of a static tab body.
func TabFile(slug string) string {
	return TabsDir + "/" + slug + ".html"
}
