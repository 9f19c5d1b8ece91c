package model

import (
	"sort"
	"strings"
)

// MinTagLen is the minimum accepted tag length. Reads shorter than this are
// scanner noise and are dropped at the ingest boundary.
const MinTagLen = 8

// NormalizeTag canonicalizes a raw tag read: surrounding whitespace is
// trimmed and hex digits are uppercased. The second return is false when the
// read is not a plausible tag (empty, too short, or non-hex).
func NormalizeTag(raw string) (string, bool) {
	tag := strings.ToUpper(strings.TrimSpace(raw))
	if len(tag) < MinTagLen {
		return "", false
	}
	for _, r := range tag {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') {
			return "", false
		}
	}
	return tag, true
}

// TagSet is a set of normalized tag IDs.
type TagSet map[string]struct{}

// NewTagSet builds a set from the given tags. Tags are taken as-is; callers
// normalize first.
func NewTagSet(tags ...string) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// Contains reports membership.
func (s TagSet) Contains(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Add inserts a tag and reports whether it was new.
func (s TagSet) Add(tag string) bool {
	if _, ok := s[tag]; ok {
		return false
	}
	s[tag] = struct{}{}
	return true
}

// Clone returns an independent copy.
func (s TagSet) Clone() TagSet {
	c := make(TagSet, len(s))
	for t := range s {
		c[t] = struct{}{}
	}
	return c
}

// Sorted returns the members in lexicographic order for stable output.
func (s TagSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
