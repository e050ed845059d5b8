package resolve

import (
	"encoding/json"
	"html"
	"sort"
	"strings"

	"github.com/gorewood/coursemd/internal/staging"
)

// TabsHeading opens the rendered static tab section.
const TabsHeading = "<h1>Additional Course Pages</h1>"

const defaultPolicyKey = "course/course"

type tabEntry struct {
	Name            string `json:"name"`
	URLSlug         string `json:"url_slug"`
	CourseStaffOnly bool   `json:"course_staff_only"`
}

type coursePolicy struct {
	Tabs []tabEntry `json:"tabs"`
}

type tabs struct {
	tree *staging.Tree
}

// Tabs resolves "tabs:<policy path>" to the static tabs visible to learners,
// each rendered as a subheading followed by its staged HTML body.
func Tabs(tree *staging.Tree) Resolver {
	return tabs{tree: tree}
}

func (tabs) Prefix() string { return SchemeTabs }

func (r tabs) Resolve(payload string) Result {
	var policy map[string]json.RawMessage
	if err := readJSON(r.tree, payload, &policy); err != nil {
		return empty()
	}
	raw, ok := selectCoursePolicy(policy)
	if !ok {
		return empty()
	}
	var section coursePolicy
	if err := json.Unmarshal(raw, &section); err != nil {
		return empty()
	}

	var sb strings.Builder
	count := 0
	for _, tab := range section.Tabs {
		if tab.URLSlug == "" || tab.CourseStaffOnly {
			continue
		}
		if count == 0 {
			sb.WriteString(TabsHeading)
		}
		count++
		sb.WriteString("\n<h2>")
		sb.WriteString(html.EscapeString(tab.Name))
		sb.WriteString("</h2>\n")
		if body, err := r.tree.ReadFile(staging.TabFile(tab.URLSlug)); err == nil {
			sb.Write(body)
		}
		sb.WriteString("<hr/>")
	}
	if count == 0 {
		return empty()
	}
	return htmlFragment(sb.String())
}

// selectCoursePolicy picks the "course/course" section, falling back to the
// first "course/<run>" section.
func selectCoursePolicy(policy map[string]json.RawMessage) (json.RawMessage, bool) {
	if raw, ok := policy[defaultPolicyKey]; ok {
		return raw, true
	}
	keys := make([]string, 0, len(policy))
	for k := range policy {
		if strings.HasPrefix(k, "course/") {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, false
	}
	sort.Strings(keys)
	return policy[keys[0]], true
}

type updateEntry struct {
	Date    string `json:"date"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

type updates struct {
	tree *staging.Tree
}

// Updates resolves "updates:<feed path>" to the visible course updates in
// feed order, each under a date heading.
func Updates(tree *staging.Tree) Resolver {
	return updates{tree: tree}
}

func (updates) Prefix() string { return SchemeUpdates }

func (r updates) Resolve(payload string) Result {
	var feed []updateEntry
	if err := readJSON(r.tree, payload, &feed); err != nil {
		return empty()
	}

	var sb strings.Builder
	for _, u := range feed {
		if u.Status != "visible" {
			continue
		}
		sb.WriteString("<h4>")
		sb.WriteString(html.EscapeString(u.Date))
		sb.WriteString("</h4>")
		sb.WriteString(u.Content)
	}
	if sb.Len() == 0 {
		return empty()
	}
	return htmlFragment(sb.String())
}
