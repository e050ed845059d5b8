package format

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/resolve"
	"github.com/gorewood/coursemd/internal/staging"
	"github.com/gorewood/coursemd/internal/xmltree"
)

// HTMLName is the registry name of the HTML format.
const HTMLName = "html"

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{ .Title }}</title>
</head>
<body>
{{ .Body }}</body>
</html>
`))

type htmlPlugin struct {
	env Env
	md  goldmark.Markdown
	// inline maps public asset filenames to data URIs.
	inline map[string]string
}

// NewHTML builds the plugin that renders the Markdown document into a
// standalone HTML page.
func NewHTML(env Env) Plugin {
	return &htmlPlugin{
		env: env,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

func (p *htmlPlugin) Identity() Identity {
	return Identity{Name: HTMLName, ContentType: "text/html; charset=UTF-8", Extension: "html"}
}

// ProcessExtra collects staged image assets to inline. With a base URL the
// page links to the LMS instead.
func (p *htmlPlugin) ProcessExtra(c *course.Course, tree *staging.Tree) error {
	if p.env.BaseURL != "" {
		return nil
	}
	p.inline = make(map[string]string)
	for _, a := range c.Assets {
		if a.Filename == "" || a.Locked || resolve.Bucket(a.ContentType) != resolve.BucketImages {
			continue
		}
		data, err := tree.ReadFile(staging.StaticDir + "/" + a.Key)
		if err != nil {
			continue
		}
		p.inline[a.Filename] = "data:" + a.ContentType + ";base64," + base64.StdEncoding.EncodeToString(data)
	}
	return nil
}

func (p *htmlPlugin) PostProcess(ctx context.Context, root *xmltree.Node, tree *staging.Tree) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := renderMarkdown(p.env, root, tree)
	if err != nil {
		return err
	}
	for filename, uri := range p.inline {
		doc = strings.ReplaceAll(doc, "]("+filename+")", "]("+uri+")")
	}

	var body bytes.Buffer
	if err := p.md.Convert([]byte(doc), &body); err != nil {
		return fmt.Errorf("rendering html: %w", err)
	}
	title := root.Attr("display_name")
	if title == "" {
		title = p.env.CourseID
	}

	var out bytes.Buffer
	err = page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{title, template.HTML(body.String())}) //nolint:gosec // goldmark output, raw HTML disabled
	if err != nil {
		return fmt.Errorf("rendering html page: %w", err)
	}
	return tree.WriteFile(staging.OutputFile(p.Identity().Extension), out.Bytes())
}
