package format

import (
	"context"

	"github.com/gorewood/coursemd/internal/staging"
	"github.com/gorewood/coursemd/internal/xmltree"
)

// MarkdownName is the registry name of the Markdown format.
const MarkdownName = "markdown"

type markdownPlugin struct {
	env Env
}

// NewMarkdown builds the plugin that writes the course as one Markdown
// document.
func NewMarkdown(env Env) Plugin {
	return &markdownPlugin{env: env}
}

func (p *markdownPlugin) Identity() Identity {
	return Identity{Name: MarkdownName, ContentType: "text/markdown; charset=UTF-8", Extension: "md"}
}

func (p *markdownPlugin) PostProcess(ctx context.Context, root *xmltree.Node, tree *staging.Tree) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := renderMarkdown(p.env, root, tree)
	if err != nil {
		return err
	}
	return tree.WriteFile(staging.OutputFile(p.Identity().Extension), []byte(doc))
}
