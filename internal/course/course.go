// Package course defines the course content model consumed by the exporter:
// the block tree, its ancillary metadata, the repository that serves it and
// the access check that guards it.
package course

// Leaf and container block categories known to the exporter. Any other
// category is carried through as an opaque leaf.
const (
	CategoryCourse     = "course"
	CategoryChapter    = "chapter"
	CategorySequential = "sequential"
	CategoryVertical   = "vertical"
	CategoryHTML       = "html"
	CategoryProblem    = "problem"
	CategoryVideo      = "video"
	CategoryDiscussion = "discussion"
)

// Update statuses.
const (
	StatusVisible = "visible"
	StatusDeleted = "deleted"
)

// Course is one course run with its block tree and metadata.
type Course struct {
	ID          ID       `yaml:"-"`
	DisplayName string   `yaml:"display_name"`
	Start       string   `yaml:"start,omitempty"`
	Chapters    []*Node  `yaml:"chapters"`
	Assets      []Asset  `yaml:"assets,omitempty"`
	Tabs        []Tab    `yaml:"tabs,omitempty"`
	Updates     []Update `yaml:"updates,omitempty"`
	Handouts    string   `yaml:"handouts,omitempty"`
	Overview    string   `yaml:"overview,omitempty"`
}

// Node is one block in the course tree.
type Node struct {
	Category    string            `yaml:"category"`
	URLName     string            `yaml:"url_name"`
	DisplayName string            `yaml:"display_name,omitempty"`
	Attrs       map[string]string `yaml:"attrs,omitempty"`
	// Body is the raw markup of html and problem leaves.
	Body     string  `yaml:"body,omitempty"`
	Children []*Node `yaml:"children,omitempty"`
}

// Asset is one entry of the course asset catalog.
type Asset struct {
	Key         string `yaml:"key"`
	DisplayName string `yaml:"display_name"`
	ContentType string `yaml:"content_type"`
	// Filename is the public URL path of the asset, e.g. /asset-v1:.../logo.png.
	Filename string `yaml:"filename"`
	Locked   bool   `yaml:"locked,omitempty"`
}

// Tab is a course navigation tab. Static tabs carry a URL slug and a body.
type Tab struct {
	Type            string `yaml:"type"`
	Name            string `yaml:"name"`
	URLSlug         string `yaml:"url_slug,omitempty"`
	CourseStaffOnly bool   `yaml:"course_staff_only,omitempty"`
	Body            string `yaml:"body,omitempty"`
}

// Update is one entry of the course update feed.
type Update struct {
	ID      int    `yaml:"id"`
	Date    string `yaml:"date"`
	Content string `yaml:"content"`
	Status  string `yaml:"status"`
}

// Walk calls fn for every node of the tree in document order, stopping at
// the first error.
func (c *Course) Walk(fn func(parent, node *Node) error) error {
	for _, ch := range c.Chapters {
		if err := walk(nil, ch, fn); err != nil {
			return err
		}
	}
	return nil
}

func walk(parent, node *Node, fn func(parent, node *Node) error) error {
	if err := fn(parent, node); err != nil {
		return err
	}
	for _, child := range node.Children {
		if err := walk(node, child, fn); err != nil {
			return err
		}
	}
	return nil
}
