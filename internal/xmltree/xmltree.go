// Package xmltree is a small element tree used to stage course documents and
// to feed them to templates. It parses both well-formed XML and broken HTML
// fragments and can serialize any tree back to XML.
package xmltree

import (
	"bytes"
	"io"
	"strings"
)

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "\n", "&#10;", "\t", "&#9;")
)

// Kind distinguishes element nodes from character data.
type Kind int

// Node kinds.
const (
	ElementNode Kind = iota
	TextNode
)

// Attr is a single attribute. Order is preserved.
type Attr struct {
	Name  string
	Value string
}

// Node is an element or a run of text. The empty document is an element
// node with no name and no children; every method is safe on a nil receiver.
type Node struct {
	Kind     Kind
	Name     string
	Attrs    []Attr
	Children []*Node
	Text     string
}

// Empty returns a fresh empty document.
func Empty() *Node {
	return &Node{Kind: ElementNode}
}

// NewElement returns an element with the given name and attribute pairs
// (name, value, name, value, ...).
func NewElement(name string, attrPairs ...string) *Node {
	n := &Node{Kind: ElementNode, Name: name}
	for i := 0; i+1 < len(attrPairs); i += 2 {
		n.SetAttr(attrPairs[i], attrPairs[i+1])
	}
	return n
}

// NewText returns a text node.
func NewText(text string) *Node {
	return &Node{Kind: TextNode, Text: text}
}

// IsEmpty reports whether n is nil or the empty document.
func (n *Node) IsEmpty() bool {
	return n == nil || (n.Kind == ElementNode && n.Name == "" && len(n.Children) == 0)
}

// Append adds children and returns n.
func (n *Node) Append(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// SetAttr sets or replaces an attribute. Empty values are skipped.
func (n *Node) SetAttr(name, value string) {
	if value == "" {
		return
	}
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// Attr returns the value of the named attribute or "".
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// HasAttr reports whether the attribute is present.
func (n *Node) HasAttr(name string) bool {
	if n == nil {
		return false
	}
	for _, a := range n.Attrs {
		if a.Name == name {
			return true
		}
	}
	return false
}

// Elements returns the child elements, restricted to the given names when
// any are passed.
func (n *Node) Elements(names ...string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Kind != ElementNode {
			continue
		}
		if len(names) == 0 || contains(names, c.Name) {
			out = append(out, c)
		}
	}
	return out
}

// First returns the first child element with the given name, or nil.
func (n *Node) First(name string) *Node {
	for _, c := range n.Elements(name) {
		return c
	}
	return nil
}

// TextContent concatenates all descendant text.
func (n *Node) TextContent() string {
	if n == nil {
		return ""
	}
	if n.Kind == TextNode {
		return n.Text
	}
	var b strings.Builder
	for _, c := range n.Children {
		b.WriteString(c.TextContent())
	}
	return b.String()
}

// String serializes n as XML. The empty document serializes to "".
func (n *Node) String() string {
	var buf bytes.Buffer
	_ = n.Write(&buf)
	return buf.String()
}

// InnerXML serializes n's children only.
func (n *Node) InnerXML() string {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	for _, c := range n.Children {
		_ = c.Write(&buf)
	}
	return buf.String()
}

// Write serializes n as XML to w.
func (n *Node) Write(w io.Writer) error {
	if n == nil {
		return nil
	}
	if n.Kind == TextNode {
		_, err := textEscaper.WriteString(w, n.Text)
		return err
	}
	if n.Name == "" {
		for _, c := range n.Children {
			if err := c.Write(w); err != nil {
				return err
			}
		}
		return nil
	}

	if _, err := io.WriteString(w, "<"+n.Name); err != nil {
		return err
	}
	for _, a := range n.Attrs {
		if _, err := io.WriteString(w, " "+a.Name+`="`); err != nil {
			return err
		}
		if _, err := attrEscaper.WriteString(w, a.Value); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `"`); err != nil {
			return err
		}
	}
	if len(n.Children) == 0 {
		_, err := io.WriteString(w, "/>")
		return err
	}
	if _, err := io.WriteString(w, ">"); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := c.Write(w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "</"+n.Name+">")
	return err
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
