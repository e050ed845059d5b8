package resolve

import (
	"bytes"
	"encoding/json"
	"io/fs"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/gorewood/coursemd/internal/staging"
	"github.com/gorewood/coursemd/internal/xmltree"
)

// Scheme prefixes of the built-in resolvers.
const (
	SchemeStaged   = "tmpfs:"
	SchemeTemplate = "pylocal:"
	SchemeAssets   = "assets:"
	SchemeTabs     = "tabs:"
	SchemeUpdates  = "updates:"
	SchemeAssetURL = "asseturl:"
)

// HTMLRoot is the element name wrapping parsed HTML fragments.
const HTMLRoot = "body"

// fragmentRoot is the element name wrapping generated fragments.
const fragmentRoot = "xml"

type stagedFile struct {
	tree *staging.Tree
}

// StagedFile resolves "tmpfs:<relative path>" against the staging tree.
// Paths mentioning ".html" are parsed as HTML fragments; anything else must
// be well-formed XML.
func StagedFile(tree *staging.Tree) Resolver {
	return stagedFile{tree: tree}
}

func (stagedFile) Prefix() string { return SchemeStaged }

func (r stagedFile) Resolve(payload string) Result {
	data, err := r.tree.ReadFile(payload)
	if err != nil {
		return empty()
	}
	if strings.Contains(payload, ".html") {
		doc, err := xmltree.ParseHTML(string(data), HTMLRoot)
		if err != nil || len(doc.Children) == 0 {
			return empty()
		}
		return found(doc)
	}
	doc, err := xmltree.ParseStrict(bytes.NewReader(data))
	if err != nil {
		return empty()
	}
	return found(doc)
}

type templateFile struct {
	fsys fs.FS
}

// TemplateFile resolves "pylocal:<path>" to a template source shipped with
// the engine. The document holds a single text node with the file contents.
func TemplateFile(fsys fs.FS) Resolver {
	return templateFile{fsys: fsys}
}

func (templateFile) Prefix() string { return SchemeTemplate }

func (r templateFile) Resolve(payload string) Result {
	name := strings.TrimPrefix(payload, "/")
	if r.fsys == nil || !fs.ValidPath(name) {
		return empty()
	}
	data, err := fs.ReadFile(r.fsys, name)
	if err != nil {
		return empty()
	}
	return found(xmltree.NewElement(fragmentRoot).Append(xmltree.NewText(string(data))))
}

// readJSON decodes a staged manifest. Comments and trailing commas are
// tolerated.
func readJSON(tree *staging.Tree, rel string, v any) error {
	data, err := tree.ReadFile(rel)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonc.ToJSON(data), v)
}

// textFragment wraps text in the generated fragment root.
func textFragment(text string) *xmltree.Node {
	return xmltree.NewElement(fragmentRoot).Append(xmltree.NewText(text))
}

// htmlFragment parses generated HTML under the fragment root.
func htmlFragment(markup string) Result {
	doc, err := xmltree.ParseHTML(markup, fragmentRoot)
	if err != nil {
		return empty()
	}
	return found(doc)
}
