package course

import (
	"fmt"
	"strings"
)

const idPrefix = "course-v1:"

// ID identifies a course run. Two textual forms are accepted:
// "course-v1:ORG+NUMBER+RUN" and the legacy "ORG/NUMBER/RUN".
type ID struct {
	Org    string
	Number string
	Run    string
	legacy bool
}

// MalformedIdentifierError reports a course id that could not be parsed.
type MalformedIdentifierError struct {
	Input  string
	Reason string
}

func (e *MalformedIdentifierError) Error() string {
	return fmt.Sprintf("malformed course id %q: %s", e.Input, e.Reason)
}

// ParseID parses a course identifier in either accepted form.
func ParseID(raw string) (ID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ID{}, &MalformedIdentifierError{Input: raw, Reason: "empty"}
	}

	var parts []string
	legacy := false
	switch {
	case strings.HasPrefix(s, idPrefix):
		parts = strings.Split(strings.TrimPrefix(s, idPrefix), "+")
	case strings.Contains(s, "/"):
		parts = strings.Split(s, "/")
		legacy = true
	default:
		return ID{}, &MalformedIdentifierError{Input: raw, Reason: "expected course-v1:ORG+NUMBER+RUN or ORG/NUMBER/RUN"}
	}

	if len(parts) != 3 {
		return ID{}, &MalformedIdentifierError{Input: raw, Reason: fmt.Sprintf("expected 3 segments, got %d", len(parts))}
	}
	for _, part := range parts {
		if err := checkSegment(part); err != "" {
			return ID{}, &MalformedIdentifierError{Input: raw, Reason: err}
		}
	}

	return ID{Org: parts[0], Number: parts[1], Run: parts[2], legacy: legacy}, nil
}

// MustParseID is ParseID for literals known to be valid. It panics on error.
func MustParseID(raw string) ID {
	id, err := ParseID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func checkSegment(segment string) string {
	if segment == "" {
		return "empty segment"
	}
	for _, r := range segment {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '~', r == '-':
		default:
			return fmt.Sprintf("invalid character %q in segment %q", r, segment)
		}
	}
	return ""
}

// String returns the canonical textual form of the id.
func (id ID) String() string {
	if id.legacy {
		return id.Org + "/" + id.Number + "/" + id.Run
	}
	return idPrefix + id.Org + "+" + id.Number + "+" + id.Run
}

// Normalized returns the id with every "/" replaced by "+", safe to use as
// a single filesystem path component.
func (id ID) Normalized() string {
	return strings.ReplaceAll(id.String(), "/", "+")
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id.Org == "" && id.Number == "" && id.Run == ""
}
