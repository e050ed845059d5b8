package transform

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/gorewood/coursemd/internal/xmltree"
)

var (
	spaceRuns  = regexp.MustCompile(`\s+`)
	listMarker = regexp.MustCompile(`^(\* |- |\d+\. )`)
)

// converter renders an HTML subtree as Markdown. Unknown elements are
// transparent: their children are rendered in place.
type converter struct {
	resolveLink func(string) string
}

func (c *converter) convert(n *xmltree.Node) string {
	if n.IsEmpty() {
		return ""
	}
	var out string
	if n.Kind == xmltree.TextNode {
		out = collapse(n.Text)
	} else {
		out = c.children(n)
	}
	return tidy(out)
}

func (c *converter) children(n *xmltree.Node) string {
	var b strings.Builder
	for _, ch := range n.Children {
		b.WriteString(c.node(ch))
	}
	return b.String()
}

func (c *converter) node(n *xmltree.Node) string {
	if n.Kind == xmltree.TextNode {
		return collapse(n.Text)
	}

	name := strings.ToLower(n.Name)
	switch name {
	case "script", "style", "head", "title", "noscript":
		return ""
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level, _ := strconv.Atoi(name[1:])
		title := strings.TrimSpace(strings.ReplaceAll(c.children(n), "\n", " "))
		if title == "" {
			return ""
		}
		return "\n\n" + strings.Repeat("#", level) + " " + title + "\n\n"
	case "p", "div", "section", "article", "header", "footer", "main", "figure",
		"figcaption", "label", "legend", "fieldset", "center", "address", "dl",
		"choicegroup", "checkboxgroup", "optioninput", "solution":
		return block(c.children(n))
	case "dt":
		return block("**" + strings.TrimSpace(c.children(n)) + "**")
	case "dd":
		return block(c.children(n))
	case "br":
		return "\n"
	case "hr":
		return "\n\n---\n\n"
	case "strong", "b":
		return wrap("**", c.children(n))
	case "em", "i":
		return wrap("_", c.children(n))
	case "del", "s", "strike":
		return wrap("~~", c.children(n))
	case "code", "tt", "kbd":
		code := n.TextContent()
		if strings.TrimSpace(code) == "" {
			return ""
		}
		return "`" + strings.TrimSpace(code) + "`"
	case "pre":
		return "\n\n```\n" + strings.Trim(n.TextContent(), "\n") + "\n```\n\n"
	case "a":
		return c.link(n)
	case "img":
		src := n.Attr("src")
		if src == "" {
			return ""
		}
		return "![" + strings.TrimSpace(n.Attr("alt")) + "](" + c.resolveLink(src) + ")"
	case "ul":
		return c.list(n, false)
	case "ol":
		return c.list(n, true)
	case "li", "choice", "option":
		return "\n* " + strings.TrimSpace(c.children(n))
	case "blockquote":
		return quote(tidy(c.children(n)))
	case "table":
		return c.table(n)
	default:
		return c.children(n)
	}
}

func (c *converter) link(n *xmltree.Node) string {
	label := strings.TrimSpace(strings.ReplaceAll(c.children(n), "\n", " "))
	href := n.Attr("href")
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return label
	}
	href = c.resolveLink(href)
	if label == "" {
		label = href
	}
	return "[" + label + "](" + href + ")"
}

func (c *converter) list(n *xmltree.Node, ordered bool) string {
	var b strings.Builder
	b.WriteString("\n\n")
	i := 0
	for _, li := range n.Elements("li") {
		i++
		marker := "* "
		if ordered {
			marker = strconv.Itoa(i) + ". "
		}
		pad := strings.Repeat(" ", len(marker))
		lines := strings.Split(strings.TrimSpace(c.children(li)), "\n")
		b.WriteString(marker + strings.TrimSpace(lines[0]) + "\n")
		for _, line := range lines[1:] {
			if strings.TrimSpace(line) == "" {
				continue
			}
			b.WriteString(pad + line + "\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}

func (c *converter) table(n *xmltree.Node) string {
	var rows [][]string
	var collect func(*xmltree.Node)
	collect = func(el *xmltree.Node) {
		for _, ch := range el.Elements() {
			switch strings.ToLower(ch.Name) {
			case "thead", "tbody", "tfoot":
				collect(ch)
			case "tr":
				var row []string
				for _, cell := range ch.Elements("th", "td") {
					text := strings.TrimSpace(spaceRuns.ReplaceAllString(c.children(cell), " "))
					row = append(row, strings.ReplaceAll(text, "|", `\|`))
				}
				rows = append(rows, row)
			}
		}
	}
	collect(n)
	if len(rows) == 0 {
		return ""
	}

	cols := 0
	for _, row := range rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n")
	for i, row := range rows {
		for len(row) < cols {
			row = append(row, "")
		}
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
		if i == 0 {
			b.WriteString("|" + strings.Repeat(" --- |", cols) + "\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}

func collapse(s string) string {
	return spaceRuns.ReplaceAllString(s, " ")
}

func block(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return "\n\n" + s + "\n\n"
}

// wrap applies an inline marker, keeping surrounding spaces outside it.
func wrap(mark, s string) string {
	inner := strings.TrimSpace(s)
	if inner == "" {
		return s
	}
	lead, trail := "", ""
	if strings.HasPrefix(s, " ") {
		lead = " "
	}
	if strings.HasSuffix(s, " ") {
		trail = " "
	}
	return lead + mark + inner + mark + trail
}

func quote(s string) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = ">"
			continue
		}
		lines[i] = "> " + line
	}
	return "\n\n" + strings.Join(lines, "\n") + "\n\n"
}

// tidy strips stray indentation left by collapsed whitespace, keeping nested
// list items and fenced code intact, and collapses blank line runs.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			lines[i] = trimmed
			continue
		}
		if inFence {
			continue
		}
		if listMarker.MatchString(trimmed) && line != trimmed {
			lines[i] = strings.TrimRight(line, " ")
			continue
		}
		lines[i] = trimmed
	}
	out := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out)
}
