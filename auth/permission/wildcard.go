// Package permission matches wildcard permissions of the form
// domain:action:instance.
//
// Each ':' separated part of a granted permission is a comma separated list
// of values or "*". A granted permission implies a required one when every
// part of the required permission is covered by the matching granted part.
// Missing trailing parts of the granted permission imply everything, so
// "newsletter" implies "newsletter:edit:13". Extra trailing parts must be
// "*": "newsletter:edit:*" implies "newsletter:edit".
package permission

import "strings"

const (
	Wildcard       = "*"
	partDivider    = ":"
	subpartDivider = ","
)

// Implies reports whether granted covers required. Matching is case
// sensitive.
func Implies(granted, required string) bool {
	if granted == required {
		return granted != ""
	}
	if strings.TrimSpace(granted) == "" || strings.TrimSpace(required) == "" {
		return false
	}

	have := parse(granted)
	want := parse(required)
	for i, part := range want {
		if i >= len(have) {
			return true
		}
		if !have[i].covers(part) {
			return false
		}
	}
	for _, part := range have[len(want):] {
		if !part.wildcard() {
			return false
		}
	}
	return true
}

// ImpliedByAny reports whether any granted permission implies required.
func ImpliedByAny(granted []string, required string) bool {
	for _, g := range granted {
		if Implies(g, required) {
			return true
		}
	}
	return false
}

type part map[string]struct{}

func (p part) wildcard() bool {
	_, ok := p[Wildcard]
	return ok
}

func (p part) covers(other part) bool {
	if p.wildcard() {
		return true
	}
	for v := range other {
		if _, ok := p[v]; !ok {
			return false
		}
	}
	return true
}

func parse(permission string) []part {
	raw := strings.Split(permission, partDivider)
	parts := make([]part, 0, len(raw))
	for _, r := range raw {
		p := part{}
		for _, v := range strings.Split(r, subpartDivider) {
			if v = strings.TrimSpace(v); v != "" {
				p[v] = struct{}{}
			}
		}
		parts = append(parts, p)
	}
	return parts
}
