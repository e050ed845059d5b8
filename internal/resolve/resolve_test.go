package resolve

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/gorewood/coursemd/internal/staging"
	"github.com/gorewood/coursemd/internal/xmltree"
)

func newTree(t *testing.T, files map[string]string) *staging.Tree {
	t.Helper()
	tree, err := staging.New(t.TempDir(), "course")
	if err != nil {
		t.Fatalf("staging.New: %v", err)
	}
	for rel, content := range files {
		if err := tree.WriteFile(rel, []byte(content)); err != nil {
			t.Fatalf("WriteFile(%s): %v", rel, err)
		}
	}
	return tree
}

type fixed struct {
	prefix string
	result Result
}

func (f fixed) Prefix() string        { return f.prefix }
func (f fixed) Resolve(string) Result { return f.result }

type panicky string

func (p panicky) Prefix() string        { return string(p) }
func (p panicky) Resolve(string) Result { panic("boom") }

func TestSetRegisterRejectsOverlap(t *testing.T) {
	s := NewSet(nil)
	for _, prefix := range []string{"tmpfs:", "py:lib:"} {
		if err := s.Register(fixed{prefix: prefix}); err != nil {
			t.Fatalf("Register(%q): %v", prefix, err)
		}
	}
	// Same prefix, an extension of an existing one, and a prefix of one.
	for _, prefix := range []string{"tmpfs:", "tmpfs:x:", "py:"} {
		if err := s.Register(fixed{prefix: prefix}); !errors.Is(err, ErrOverlappingPrefix) {
			t.Errorf("Register(%q) error = %v, want ErrOverlappingPrefix", prefix, err)
		}
	}
	if err := s.Register(fixed{prefix: "noColon"}); err == nil {
		t.Error("Register accepted prefix without colon")
	}
	// Neither string starts with the other, so these are disjoint.
	for _, prefix := range []string{"assets:", "tmp:"} {
		if err := s.Register(fixed{prefix: prefix}); err != nil {
			t.Errorf("Register(%q) error: %v", prefix, err)
		}
	}
	if got := s.Prefixes(); !slices.Equal(got, []string{"tmpfs:", "py:lib:", "assets:", "tmp:"}) {
		t.Errorf("Prefixes() = %v", got)
	}
}

func TestSetResolveDispatch(t *testing.T) {
	s := NewSet(nil)
	_ = s.Register(fixed{prefix: "a:", result: found(xmltree.NewElement("a"))})
	_ = s.Register(fixed{prefix: "b:", result: Result{Kind: NotMine}})
	_ = s.Register(panicky("c:"))

	if res := s.Resolve("a:x"); res.Kind != Found || res.Doc.Name != "a" {
		t.Errorf("Resolve(a:x) = %+v", res)
	}
	if res := s.Resolve("b:x"); res.Kind != Empty {
		t.Errorf("claimed reference returned %v, want empty", res.Kind)
	}
	if res := s.Resolve("c:x"); res.Kind != Empty {
		t.Errorf("panicking resolver returned %v, want empty", res.Kind)
	}
	if res := s.Resolve("http://example.com"); res.Kind != NotMine {
		t.Errorf("unknown scheme returned %v, want not-mine", res.Kind)
	}
	if !s.Resolve("zzz:").Document().IsEmpty() {
		t.Error("Document() of a miss should be empty")
	}
}

func TestStagedFile(t *testing.T) {
	tree := newTree(t, map[string]string{
		"chapter/w1.xml":  `<chapter url_name="w1" display_name="Week 1"/>`,
		"problem/bad.xml": `<problem><p>unclosed</problem>`,
		"html/a.html":     `<p>Hello <b>world`,
		"html/blank.html": ``,
	})
	s := NewDefaultSet(tree, nil, nil)

	tests := []struct {
		ref      string
		wantKind Kind
		wantName string
	}{
		{"tmpfs:chapter/w1.xml", Found, "chapter"},
		{"tmpfs:chapter/missing.xml", Empty, ""},
		{"tmpfs:problem/bad.xml", Empty, ""},
		{"tmpfs:html/a.html", Found, HTMLRoot},
		{"tmpfs:html/blank.html", Empty, ""},
		{"tmpfs:../../etc/passwd", Empty, ""},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			res := s.Resolve(tt.ref)
			if res.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v", res.Kind, tt.wantKind)
			}
			if tt.wantName != "" && res.Doc.Name != tt.wantName {
				t.Errorf("root = %q, want %q", res.Doc.Name, tt.wantName)
			}
		})
	}

	if got := s.Resolve("tmpfs:html/a.html").Doc.TextContent(); got != "Hello world" {
		t.Errorf("html text = %q", got)
	}
}

func TestTemplateFile(t *testing.T) {
	fsys := fstest.MapFS{"markdown/unit.tmpl": {Data: []byte("{{ . }}")}}
	s := NewDefaultSet(newTree(t, nil), fsys, nil)

	res := s.Resolve("pylocal:markdown/unit.tmpl")
	if res.Kind != Found || res.Doc.TextContent() != "{{ . }}" {
		t.Errorf("Resolve(pylocal) = %+v", res)
	}
	for _, ref := range []string{"pylocal:missing.tmpl", "pylocal:../secret"} {
		if res := s.Resolve(ref); res.Kind != Empty {
			t.Errorf("Resolve(%s) = %v, want empty", ref, res.Kind)
		}
	}
}

func TestAssetCatalog(t *testing.T) {
	tree := newTree(t, map[string]string{
		staging.AssetsManifest: `{
			// comments are tolerated
			"b.png": {"displayname": "b.png", "contentType": "image/png", "filename": "/x/b.png"},
			"a.jpg": {"displayname": "a.jpg", "contentType": "image/jpeg", "filename": "/x/a.jpg"},
			"s.pdf": {"displayname": "syllabus.pdf", "contentType": "application/pdf"},
			"app.js": {"displayname": "app.js", "contentType": "application/javascript"},
			"data.bin": {"displayname": "data.bin", "contentType": "application/octet-stream"},
			"nokind": {"displayname": "mystery"},
		}`,
		"policies/empty.json": `{}`,
	})
	s := NewDefaultSet(tree, nil, nil)

	res := s.Resolve("assets:" + staging.AssetsManifest)
	if res.Kind != Found {
		t.Fatalf("Kind = %v, want found", res.Kind)
	}
	want := "\n\n#### Images\n* a.jpg\n* b.png" +
		"\n\n#### Documents\n* syllabus.pdf" +
		"\n\n#### Code\n* app.js" +
		"\n\n#### Other\n* data.bin\n* mystery"
	if got := res.Doc.TextContent(); got != want {
		t.Errorf("catalog =\n%q\nwant\n%q", got, want)
	}

	for _, ref := range []string{"assets:policies/missing.json", "assets:policies/empty.json"} {
		if res := s.Resolve(ref); res.Kind != Empty {
			t.Errorf("Resolve(%s) = %v, want empty", ref, res.Kind)
		}
	}
}

func TestBucket(t *testing.T) {
	tests := map[string]string{
		"image/png":               BucketImages,
		"IMAGE/GIF":               BucketImages,
		"application/pdf":         BucketDocuments,
		"text/css; charset=utf-8": BucketCode,
		"text/html":               BucketCode,
		"application/zip":         BucketOther,
		"":                        BucketOther,
	}
	for contentType, want := range tests {
		if got := Bucket(contentType); got != want {
			t.Errorf("Bucket(%q) = %q, want %q", contentType, got, want)
		}
	}
}

func TestTabs(t *testing.T) {
	policy := `{"course/2024": {"tabs": [
		{"type": "courseware", "name": "Course"},
		{"type": "static_tab", "name": "Syllabus", "url_slug": "syllabus"},
		{"type": "static_tab", "name": "Staff notes", "url_slug": "staff", "course_staff_only": true},
		{"type": "static_tab", "name": "FAQ", "url_slug": "faq"}
	]}}`
	tree := newTree(t, map[string]string{
		staging.PolicyFile:   policy,
		"tabs/syllabus.html": "<p>Read everything</p>",
		"tabs/staff.html":    "<p>secret</p>",
		"tabs/faq.html":      "<p>Ask away</p>",
	})
	s := NewDefaultSet(tree, nil, nil)

	res := s.Resolve("tabs:" + staging.PolicyFile)
	if res.Kind != Found {
		t.Fatalf("Kind = %v, want found", res.Kind)
	}
	out := res.Doc.String()
	for _, want := range []string{"<h1>Additional Course Pages</h1>", "<h2>Syllabus</h2>", "Read everything", "<h2>FAQ</h2>", "<hr/>"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "secret") || strings.Contains(out, "Staff notes") {
		t.Errorf("staff-only tab leaked:\n%s", out)
	}
	if strings.Index(out, "Syllabus") > strings.Index(out, "FAQ") {
		t.Error("tabs out of policy order")
	}
}

func TestTabsEmpty(t *testing.T) {
	tree := newTree(t, map[string]string{
		"policies/a.json": `{"course/course": {"tabs": [{"type": "courseware", "name": "Course"}]}}`,
		"policies/b.json": `{"other": {}}`,
		"policies/c.json": `not json`,
	})
	s := NewDefaultSet(tree, nil, nil)
	for _, ref := range []string{"tabs:policies/a.json", "tabs:policies/b.json", "tabs:policies/c.json", "tabs:policies/none.json"} {
		if res := s.Resolve(ref); res.Kind != Empty {
			t.Errorf("Resolve(%s) = %v, want empty", ref, res.Kind)
		}
	}
}

func TestUpdates(t *testing.T) {
	tree := newTree(t, map[string]string{
		staging.UpdatesManifest: `[
			{"id": 2, "date": "June 2", "content": "<p>Second</p>", "status": "visible"},
			{"id": 1, "date": "May 1", "content": "<p>Gone</p>", "status": "deleted"},
			{"id": 3, "date": "July 3", "content": "<p>Third", "status": "visible"}
		]`,
		"info/none.json":   `[]`,
		"info/hidden.json": `[{"date": "x", "content": "y", "status": "deleted"}]`,
	})
	s := NewDefaultSet(tree, nil, nil)

	res := s.Resolve("updates:" + staging.UpdatesManifest)
	if res.Kind != Found {
		t.Fatalf("Kind = %v, want found", res.Kind)
	}
	heads := res.Doc.Elements("h4")
	if len(heads) != 2 || heads[0].TextContent() != "June 2" || heads[1].TextContent() != "July 3" {
		t.Errorf("headings = %v", heads)
	}
	if strings.Contains(res.Doc.TextContent(), "Gone") {
		t.Error("deleted update rendered")
	}

	for _, ref := range []string{"updates:info/none.json", "updates:info/hidden.json", "updates:info/missing.json"} {
		if res := s.Resolve(ref); res.Kind != Empty {
			t.Errorf("Resolve(%s) = %v, want empty", ref, res.Kind)
		}
	}
}

func TestAssetURL(t *testing.T) {
	tree := newTree(t, map[string]string{
		staging.AssetsManifest: `{"logo.png": {"displayname": "Logo", "contentType": "image/png", "filename": "/asset-v1:Org+CS101+2024+type@asset+block@logo.png"}}`,
	})
	s := NewDefaultSet(tree, nil, nil)

	for _, ref := range []string{"asseturl:/static/logo.png", "asseturl:static/logo.png"} {
		res := s.Resolve(ref)
		if res.Kind != Found || res.Doc.TextContent() != "/asset-v1:Org+CS101+2024+type@asset+block@logo.png" {
			t.Errorf("Resolve(%s) = %+v", ref, res)
		}
	}
	if res := s.Resolve("asseturl:/static/missing.png"); res.Kind != Empty {
		t.Errorf("missing asset = %v, want empty", res.Kind)
	}
}
