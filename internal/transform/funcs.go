package transform

import (
	"strings"
	"text/template"

	"github.com/gorewood/coursemd/internal/resolve"
	"github.com/gorewood/coursemd/internal/staging"
	"github.com/gorewood/coursemd/internal/xmltree"
)

func (e *Engine) funcs() template.FuncMap {
	return template.FuncMap{
		"document": e.document,
		"expand":   e.expand,
		"attr":     attr,
		"children": children,
		"text":     text,
		"markdown": e.markdown,
		"isEmpty":  isEmpty,
		"heading":  heading,
		"trim":     strings.TrimSpace,
		"indent":   indent,
	}
}

// document resolves a virtual reference. References no resolver claims get
// the host default: an empty document.
func (e *Engine) document(ref string) *xmltree.Node {
	res := e.resolvers.Resolve(ref)
	if res.Kind == resolve.NotMine {
		e.logger.Debug("unhandled document reference", "ref", ref)
	}
	return res.Document()
}

// expand replaces a pointer element such as <chapter url_name="w1"/> with
// the block's own staged document. Blocks without one are returned as is.
func (e *Engine) expand(n *xmltree.Node) *xmltree.Node {
	urlName := n.Attr("url_name")
	if n.IsEmpty() || urlName == "" {
		return n
	}
	doc := e.document(resolve.SchemeStaged + staging.BlockFile(n.Name, urlName))
	if doc.IsEmpty() || doc.Name != n.Name {
		return n
	}
	return doc
}

func (e *Engine) markdown(n *xmltree.Node) string {
	c := &converter{resolveLink: e.rewriteLink}
	return c.convert(n)
}

// rewriteLink turns course-relative static paths into absolute URLs.
func (e *Engine) rewriteLink(href string) string {
	if strings.HasPrefix(href, "/static/") {
		res := e.resolvers.Resolve(resolve.SchemeAssetURL + href)
		if res.Kind == resolve.Found {
			href = strings.TrimSpace(res.Doc.TextContent())
		}
	}
	if strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "//") && e.params.BaseURL != "" {
		return strings.TrimRight(e.params.BaseURL, "/") + href
	}
	return href
}

func attr(n *xmltree.Node, name string) string {
	return n.Attr(name)
}

func children(n *xmltree.Node, names ...string) []*xmltree.Node {
	return n.Elements(names...)
}

func text(n *xmltree.Node) string {
	return strings.TrimSpace(n.TextContent())
}

func isEmpty(n *xmltree.Node) bool {
	return n.IsEmpty()
}

func heading(level int, title string) string {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	return strings.Repeat("#", level) + " " + strings.TrimSpace(title)
}

func indent(spaces int, s string) string {
	pad := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}
