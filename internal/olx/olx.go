// Package olx serializes a course into the staging tree layout: one XML
// document per block plus the JSON and HTML side files the templates read.
package olx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"

	"github.com/gorewood/coursemd/internal/course"
	"github.com/gorewood/coursemd/internal/staging"
	"github.com/gorewood/coursemd/internal/xmltree"
)

var (
	categoryPattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]*$`)
	urlNamePattern  = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)
)

// SerializationError reports course content that cannot be written to the
// staging tree.
type SerializationError struct {
	Category string
	URLName  string
	Reason   string
}

func (e *SerializationError) Error() string {
	if e.Category == "" && e.URLName == "" {
		return "serializing course: " + e.Reason
	}
	return fmt.Sprintf("serializing %s %q: %s", e.Category, e.URLName, e.Reason)
}

// AssetEntry is one value of policies/assets.json.
type AssetEntry struct {
	DisplayName string `json:"displayname"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
	Locked      bool   `json:"locked,omitempty"`
}

// TabEntry is one element of the tabs list in policy.json.
type TabEntry struct {
	Type            string `json:"type"`
	Name            string `json:"name"`
	URLSlug         string `json:"url_slug,omitempty"`
	CourseStaffOnly bool   `json:"course_staff_only,omitempty"`
}

// CoursePolicy is the course section of policy.json.
type CoursePolicy struct {
	DisplayName string     `json:"display_name"`
	Start       string     `json:"start,omitempty"`
	Tabs        []TabEntry `json:"tabs"`
}

// UpdateEntry is one element of info/updates.json.
type UpdateEntry struct {
	ID      int    `json:"id"`
	Date    string `json:"date"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

// PolicyKey returns the key of the course section in policy.json.
func PolicyKey(id course.ID) string {
	return "course/" + id.Run
}

// Write runs the base export pass for c into tree. Static blobs are read
// from repo; a blob the repository does not have is skipped.
func Write(ctx context.Context, repo course.Repository, c *course.Course, tree *staging.Tree) error {
	w := &writer{tree: tree, seen: make(map[string]bool)}

	root := xmltree.NewElement(course.CategoryCourse,
		"url_name", c.ID.Run,
		"org", c.ID.Org,
		"course", c.ID.Number,
		"display_name", c.DisplayName,
		"start", c.Start,
	)
	for _, ch := range c.Chapters {
		ref, err := w.block(ch)
		if err != nil {
			return err
		}
		root.Append(ref)
	}
	if err := w.xml(staging.RootDocument, root); err != nil {
		return err
	}

	if err := writeMetadata(c, tree); err != nil {
		return err
	}
	return writeStatic(ctx, repo, c, tree)
}

type writer struct {
	tree *staging.Tree
	seen map[string]bool
}

// block writes n (and its subtree) and returns the element that refers to
// it from its parent.
func (w *writer) block(n *course.Node) (*xmltree.Node, error) {
	if err := w.check(n); err != nil {
		return nil, err
	}

	el := xmltree.NewElement(n.Category, "url_name", n.URLName, "display_name", n.DisplayName)
	for _, k := range sortedKeys(n.Attrs) {
		el.SetAttr(k, n.Attrs[k])
	}

	switch {
	case len(n.Children) > 0:
		for _, child := range n.Children {
			ref, err := w.block(child)
			if err != nil {
				return nil, err
			}
			el.Append(ref)
		}
		if err := w.xml(staging.BlockFile(n.Category, n.URLName), el); err != nil {
			return nil, err
		}
	case n.Category == course.CategoryHTML:
		el.SetAttr("filename", n.URLName)
		if err := w.tree.WriteFile(n.Category+"/"+n.URLName+".html", []byte(n.Body)); err != nil {
			return nil, err
		}
		if err := w.xml(staging.BlockFile(n.Category, n.URLName), el); err != nil {
			return nil, err
		}
	case n.Body != "":
		// The body is stored as authored; malformed markup is caught when
		// the document is resolved, not here.
		doc := openTag(el) + n.Body + "</" + n.Category + ">"
		if err := w.tree.WriteFile(staging.BlockFile(n.Category, n.URLName), []byte(doc)); err != nil {
			return nil, err
		}
	default:
		// Attribute-only leaves live inline in their parent.
		return el, nil
	}

	// Pointers keep the title so a child that fails to load still has a
	// heading.
	ref := xmltree.NewElement(n.Category, "url_name", n.URLName)
	if n.DisplayName != "" {
		ref.SetAttr("display_name", n.DisplayName)
	}
	return ref, nil
}

func (w *writer) check(n *course.Node) error {
	if n == nil {
		return &SerializationError{Reason: "nil block"}
	}
	if !categoryPattern.MatchString(n.Category) {
		return &SerializationError{Category: n.Category, URLName: n.URLName, Reason: "invalid category"}
	}
	if n.Category == course.CategoryCourse {
		return &SerializationError{Category: n.Category, URLName: n.URLName, Reason: "course block nested in tree"}
	}
	if !urlNamePattern.MatchString(n.URLName) {
		return &SerializationError{Category: n.Category, URLName: n.URLName, Reason: "invalid url_name"}
	}
	key := n.Category + "/" + n.URLName
	if w.seen[key] {
		return &SerializationError{Category: n.Category, URLName: n.URLName, Reason: "duplicate url_name"}
	}
	w.seen[key] = true
	if len(n.Children) > 0 && n.Body != "" {
		return &SerializationError{Category: n.Category, URLName: n.URLName, Reason: "block has both body and children"}
	}
	for k := range n.Attrs {
		if !categoryPattern.MatchString(k) {
			return &SerializationError{Category: n.Category, URLName: n.URLName, Reason: fmt.Sprintf("invalid attribute name %q", k)}
		}
	}
	return nil
}

func (w *writer) xml(rel string, el *xmltree.Node) error {
	return w.tree.WriteFile(rel, []byte(el.String()))
}

func openTag(el *xmltree.Node) string {
	s := el.String()
	// el has no children, so it serialized as <name .../>.
	return s[:len(s)-2] + ">"
}

func writeMetadata(c *course.Course, tree *staging.Tree) error {
	assets := make(map[string]AssetEntry, len(c.Assets))
	for _, a := range c.Assets {
		if a.Key == "" {
			return &SerializationError{Category: "asset", Reason: "asset without key"}
		}
		assets[a.Key] = AssetEntry{
			DisplayName: a.DisplayName,
			ContentType: a.ContentType,
			Filename:    a.Filename,
			Locked:      a.Locked,
		}
	}
	if err := writeJSON(tree, staging.AssetsManifest, assets); err != nil {
		return err
	}

	policy := CoursePolicy{DisplayName: c.DisplayName, Start: c.Start, Tabs: []TabEntry{}}
	for _, tab := range c.Tabs {
		policy.Tabs = append(policy.Tabs, TabEntry{
			Type:            tab.Type,
			Name:            tab.Name,
			URLSlug:         tab.URLSlug,
			CourseStaffOnly: tab.CourseStaffOnly,
		})
		if tab.URLSlug == "" {
			continue
		}
		if !urlNamePattern.MatchString(tab.URLSlug) {
			return &SerializationError{Category: "tab", URLName: tab.URLSlug, Reason: "invalid url_slug"}
		}
		if err := tree.WriteFile(staging.TabFile(tab.URLSlug), []byte(tab.Body)); err != nil {
			return err
		}
	}
	if err := writeJSON(tree, staging.PolicyFile, map[string]CoursePolicy{PolicyKey(c.ID): policy}); err != nil {
		return err
	}

	updates := make([]UpdateEntry, 0, len(c.Updates))
	for _, u := range c.Updates {
		updates = append(updates, UpdateEntry(u))
	}
	if err := writeJSON(tree, staging.UpdatesManifest, updates); err != nil {
		return err
	}

	if c.Handouts != "" {
		if err := tree.WriteFile(staging.HandoutsFile, []byte(c.Handouts)); err != nil {
			return err
		}
	}
	if c.Overview != "" {
		if err := tree.WriteFile(staging.OverviewFile, []byte(c.Overview)); err != nil {
			return err
		}
	}
	return nil
}

func writeStatic(ctx context.Context, repo course.Repository, c *course.Course, tree *staging.Tree) error {
	for _, a := range c.Assets {
		rel := staging.StaticDir + "/" + a.Key
		if _, err := tree.Path(rel); err != nil {
			return &SerializationError{Category: "asset", URLName: a.Key, Reason: "invalid asset key"}
		}
		blob, err := repo.ContentBlob(ctx, c.ID, a.Key)
		if errors.Is(err, course.ErrBlobNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading asset %s: %w", a.Key, err)
		}
		data, err := io.ReadAll(blob)
		_ = blob.Close()
		if err != nil {
			return fmt.Errorf("reading asset %s: %w", a.Key, err)
		}
		if err := tree.WriteFile(rel, data); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeJSON(tree *staging.Tree, rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rel, err)
	}
	return tree.WriteFile(rel, data)
}
