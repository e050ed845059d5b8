package course

import "path"

// Principal names the caller requesting an export.
type Principal string

// Anonymous is the principal of unauthenticated callers.
const Anonymous Principal = ""

// AccessChecker decides whether a principal may export a course.
type AccessChecker interface {
	CanExport(p Principal, id ID) bool
}

// AllowAll grants every principal access to every course.
type AllowAll struct{}

// CanExport implements AccessChecker.
func (AllowAll) CanExport(Principal, ID) bool { return true }

// ACL grants principals access to the courses whose normalized id matches
// one of their glob patterns (path.Match syntax). "*" grants everything.
type ACL map[Principal][]string

// CanExport implements AccessChecker.
func (a ACL) CanExport(p Principal, id ID) bool {
	name := id.Normalized()
	for _, pattern := range a[p] {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
