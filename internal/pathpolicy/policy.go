// Package pathpolicy decides where a caller may be sent after logging in or
// after being denied. It performs no I/O.
package pathpolicy

import (
	"net/url"
	"strings"

	"memorialqr/internal/config"
	"memorialqr/internal/session"
)

// Class is the allowlist a path falls into
type Class int

const (
	ClassNone Class = iota
	ClassPublic
	ClassOwner
	ClassAdmin
)

func (c Class) String() string {
	switch c {
	case ClassPublic:
		return "public"
	case ClassOwner:
		return "owner"
	case ClassAdmin:
		return "admin"
	default:
		return "none"
	}
}

// Policy holds three disjoint route-prefix allowlists.
type Policy struct {
	Public []string
	Owner  []string
	Admin  []string
}

// New builds a policy from the configured route classes.
func New(routes config.Routes) Policy {
	return Policy{
		Public: append([]string(nil), routes.PublicRoutes...),
		Owner:  append([]string(nil), routes.OwnerRoutes...),
		Admin:  append([]string(nil), routes.AdminRoutes...),
	}
}

// Safe reports whether p is a same-origin absolute path: a single leading
// slash, no backslash, no CR, LF or NUL, valid percent-escapes, and no "." or
// ".." segment once decoded. Paths that would need resolving are rejected,
// never cleaned.
func Safe(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return false
	}
	if strings.ContainsAny(p, "\\\r\n\x00") {
		return false
	}

	decoded, err := url.PathUnescape(pathOnly(p))
	if err != nil || strings.ContainsAny(decoded, "\\\x00") {
		return false
	}
	for _, seg := range strings.Split(decoded, "/") {
		if seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// Matches reports whether p equals one of prefixes or sits below one of them.
// "/panel" matches "/panel" and "/panel/usuarios" but not "/panelfoo".
// The root "/" matches only itself.
func Matches(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if p == prefix {
			return true
		}
		if prefix != "/" && strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// Classify returns the first allowlist p matches, checked public, admin, owner.
// p is assumed to have passed Safe.
func (pol Policy) Classify(p string) Class {
	p = pathOnly(p)
	switch {
	case Matches(p, pol.Public):
		return ClassPublic
	case Matches(p, pol.Admin):
		return ClassAdmin
	case Matches(p, pol.Owner):
		return ClassOwner
	default:
		return ClassNone
	}
}

// SafeRedirect returns requested when it is a safe path the role may reach,
// otherwise fallback. Public paths are returned for every role; admins reach
// only admin paths and owners only owner paths beyond that. A query string on
// requested is kept but ignored for matching.
func (pol Policy) SafeRedirect(requested string, role session.Role, fallback string) string {
	if requested == "" || !Safe(requested) {
		return fallback
	}

	p := pathOnly(requested)
	if Matches(p, pol.Public) {
		return requested
	}

	switch role {
	case session.RoleAdmin:
		if Matches(p, pol.Admin) {
			return requested
		}
	case session.RoleOwner:
		if Matches(p, pol.Owner) {
			return requested
		}
	}
	return fallback
}

// pathOnly drops any query string or fragment.
func pathOnly(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}
