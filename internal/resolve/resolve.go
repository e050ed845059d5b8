// Package resolve maps virtual document references ("scheme:payload") used
// by templates onto documents derived from the staging tree.
//
// Every resolver owns one scheme prefix. A resolver never fails: anything it
// cannot produce degrades to the empty document.
package resolve

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/gorewood/coursemd/internal/staging"
	"github.com/gorewood/coursemd/internal/xmltree"
)

// Kind is the outcome of a resolution.
type Kind int

// Resolution outcomes.
const (
	// NotMine means no registered resolver claims the reference.
	NotMine Kind = iota
	// Empty means the reference was claimed but yields nothing.
	Empty
	// Found means the reference yielded a document.
	Found
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Found:
		return "found"
	default:
		return "not-mine"
	}
}

// Result is the outcome of resolving one reference.
type Result struct {
	Kind Kind
	Doc  *xmltree.Node
}

// Document returns the resolved document, or the empty document for any
// other outcome.
func (r Result) Document() *xmltree.Node {
	if r.Kind != Found || r.Doc == nil {
		return xmltree.Empty()
	}
	return r.Doc
}

func found(doc *xmltree.Node) Result {
	if doc.IsEmpty() {
		return Result{Kind: Empty}
	}
	return Result{Kind: Found, Doc: doc}
}

func empty() Result {
	return Result{Kind: Empty}
}

// Resolver handles references for a single scheme prefix.
type Resolver interface {
	// Prefix returns the scheme including the trailing colon, e.g. "tmpfs:".
	Prefix() string
	// Resolve handles the part of the reference after the prefix.
	Resolve(payload string) Result
}

// ErrOverlappingPrefix is returned when a prefix would shadow or be
// shadowed by an already registered prefix.
var ErrOverlappingPrefix = errors.New("overlapping resolver prefix")

// Set is an ordered chain of resolvers with pairwise disjoint prefixes.
type Set struct {
	resolvers []Resolver
	logger    *slog.Logger
}

// NewSet returns an empty set. A nil logger discards.
func NewSet(logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Set{logger: logger}
}

// NewDefaultSet returns a set with every built-in scheme registered:
// tmpfs, pylocal, assets, tabs, updates and asseturl.
func NewDefaultSet(tree *staging.Tree, templates fs.FS, logger *slog.Logger) *Set {
	s := NewSet(logger)
	for _, r := range []Resolver{
		StagedFile(tree),
		TemplateFile(templates),
		AssetCatalog(tree),
		Tabs(tree),
		Updates(tree),
		AssetURL(tree),
	} {
		// Built-in prefixes are disjoint.
		_ = s.Register(r)
	}
	return s
}

// Register appends r to the chain.
func (s *Set) Register(r Resolver) error {
	prefix := r.Prefix()
	if prefix == "" || !strings.HasSuffix(prefix, ":") {
		return fmt.Errorf("resolver prefix %q must end with ':'", prefix)
	}
	for _, existing := range s.resolvers {
		other := existing.Prefix()
		if strings.HasPrefix(prefix, other) || strings.HasPrefix(other, prefix) {
			return fmt.Errorf("%w: %q conflicts with %q", ErrOverlappingPrefix, prefix, other)
		}
	}
	s.resolvers = append(s.resolvers, r)
	return nil
}

// Prefixes lists registered prefixes in registration order.
func (s *Set) Prefixes() []string {
	out := make([]string, 0, len(s.resolvers))
	for _, r := range s.resolvers {
		out = append(out, r.Prefix())
	}
	return out
}

// Resolve dispatches ref to the resolver owning its prefix.
func (s *Set) Resolve(ref string) Result {
	for _, r := range s.resolvers {
		payload, ok := strings.CutPrefix(ref, r.Prefix())
		if !ok {
			continue
		}
		res := s.safeResolve(r, payload)
		if res.Kind == Empty {
			s.logger.Debug("reference resolved empty", "ref", ref)
		}
		return res
	}
	return Result{Kind: NotMine}
}

func (s *Set) safeResolve(r Resolver, payload string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Warn("resolver panicked", "prefix", r.Prefix(), "payload", payload, "panic", p)
			res = empty()
		}
	}()
	res = r.Resolve(payload)
	if res.Kind == NotMine {
		res = empty()
	}
	return res
}
