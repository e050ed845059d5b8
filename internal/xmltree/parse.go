package xmltree

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoRoot is returned when input holds no element at all.
var ErrNoRoot = errors.New("no root element")

// Parse reads a document in recovering mode: unknown entities are accepted,
// unclosed HTML-style elements are closed automatically and a syntax error
// ends the document at the point it occurred. Only input that yields no
// element at all is an error.
func Parse(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	root, err := decode(dec, true)
	if root == nil {
		if err == nil {
			err = ErrNoRoot
		}
		return nil, err
	}
	return root, nil
}

// ParseStrict reads a well-formed document. Any syntax error fails the parse.
func ParseStrict(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	dec.Entity = xml.HTMLEntity
	root, err := decode(dec, false)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, ErrNoRoot
	}
	return root, nil
}

func decode(dec *xml.Decoder, lenient bool) (*Node, error) {
	var (
		root  *Node
		stack []*Node
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if lenient {
				return root, nil
			}
			return nil, fmt.Errorf("parsing document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Node{Kind: ElementNode, Name: qualified(t.Name)}
			for _, a := range t.Attr {
				el.Attrs = append(el.Attrs, Attr{Name: qualified(a.Name), Value: a.Value})
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			} else if root == nil {
				root = el
			} else {
				// A second top-level element ends the document.
				if lenient {
					return root, nil
				}
				return nil, errors.New("parsing document: multiple root elements")
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, NewText(string(t)))
		}
	}
	if !lenient && len(stack) > 0 {
		return nil, fmt.Errorf("parsing document: unclosed element <%s>", stack[len(stack)-1].Name)
	}
	return root, nil
}

func qualified(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	// The non-strict decoder leaves unknown prefixes in Space.
	if strings.Contains(name.Space, "/") {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

// ParseHTML parses an HTML fragment the way a browser would parse the body
// of a page and returns it wrapped in an element named rootName. Comments and
// doctypes are dropped.
func ParseHTML(fragment, rootName string) (*Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return nil, fmt.Errorf("parsing html fragment: %w", err)
	}
	root := NewElement(rootName)
	for _, n := range nodes {
		if c := fromHTML(n); c != nil {
			root.Children = append(root.Children, c)
		}
	}
	return root, nil
}

func fromHTML(n *html.Node) *Node {
	switch n.Type {
	case html.TextNode:
		return NewText(n.Data)
	case html.ElementNode:
		el := &Node{Kind: ElementNode, Name: n.Data}
		for _, a := range n.Attr {
			name := a.Key
			if a.Namespace != "" {
				name = a.Namespace + ":" + a.Key
			}
			el.Attrs = append(el.Attrs, Attr{Name: name, Value: a.Val})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if child := fromHTML(c); child != nil {
				el.Children = append(el.Children, child)
			}
		}
		return el
	default:
		return nil
	}
}
