package scope

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies which variant a Scope holds
type Kind uint8

const (
	// KindNone means the membership is unrestricted
	KindNone Kind = iota
	// KindList is a flat ordered set of tags
	KindList
	// KindCategorized maps a category (trades, floors, areas) to a set of tags
	KindCategorized
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindCategorized:
		return "categorized"
	default:
		return "none"
	}
}

// Common category names used by project memberships
const (
	CategoryTrades = "trades"
	CategoryFloors = "floors"
	CategoryAreas  = "areas"
)

// Scope restricts a membership to a subset of resource tags. The zero value
// is the unrestricted scope.
type Scope struct {
	kind       Kind
	tags       []string
	categories map[string][]string
}

// None returns the unrestricted scope
func None() Scope {
	return Scope{}
}

// List returns a flat scope. Duplicate tags are dropped, order is kept.
// List() with no tags is a restricted scope that matches nothing.
func List(tags ...string) Scope {
	return Scope{kind: KindList, tags: dedupe(tags)}
}

// Categorized returns a scope keyed by category
func Categorized(categories map[string][]string) Scope {
	m := make(map[string][]string, len(categories))
	for k, v := range categories {
		m[k] = dedupe(v)
	}
	return Scope{kind: KindCategorized, categories: m}
}

// Kind returns the variant held by s
func (s Scope) Kind() Kind {
	return s.kind
}

// IsNone reports whether s is unrestricted
func (s Scope) IsNone() bool {
	return s.kind == KindNone
}

// HasLimitations reports whether s narrows access at all. An empty list
// still has limitations: it denies every specific check.
func (s Scope) HasLimitations() bool {
	return s.kind != KindNone
}

// Tags returns a copy of the tags of a list scope
func (s Scope) Tags() []string {
	if s.kind != KindList {
		return nil
	}
	return append([]string(nil), s.tags...)
}

// Categories returns the category names of a categorized scope in sorted order
func (s Scope) Categories() []string {
	if s.kind != KindCategorized {
		return nil
	}
	names := make([]string, 0, len(s.categories))
	for k := range s.categories {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Category returns the tags of a single category
func (s Scope) Category(name string) ([]string, bool) {
	if s.kind != KindCategorized {
		return nil, false
	}
	tags, ok := s.categories[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), tags...), true
}

// Equal reports whether two scopes hold the same variant and tags
func (s Scope) Equal(other Scope) bool {
	if s.kind != other.kind {
		return false
	}
	switch s.kind {
	case KindList:
		return sameSet(s.tags, other.tags)
	case KindCategorized:
		if len(s.categories) != len(other.categories) {
			return false
		}
		for k, v := range s.categories {
			ov, ok := other.categories[k]
			if !ok || !sameSet(v, ov) {
				return false
			}
		}
	}
	return true
}

func (s Scope) String() string {
	switch s.kind {
	case KindList:
		return "[" + strings.Join(s.tags, ",") + "]"
	case KindCategorized:
		parts := make([]string, 0, len(s.categories))
		for _, name := range s.Categories() {
			parts = append(parts, name+"=["+strings.Join(s.categories[name], ",")+"]")
		}
		return "{" + strings.Join(parts, " ") + "}"
	default:
		return "unrestricted"
	}
}

// MarshalJSON encodes None as null, List as an array and Categorized as an object
func (s Scope) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case KindList:
		tags := s.tags
		if tags == nil {
			tags = []string{}
		}
		return json.Marshal(tags)
	case KindCategorized:
		return json.Marshal(s.categories)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes the three JSON shapes. Category values that are not
// arrays of strings are dropped, so checks against them deny.
func (s *Scope) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = None()
		return nil
	}

	switch data[0] {
	case '[':
		var raw []any
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to decode scope list: %w", err)
		}
		*s = List(stringsOnly(raw)...)
		return nil
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to decode scope object: %w", err)
		}
		categories := make(map[string][]string, len(raw))
		for name, value := range raw {
			var items []any
			if err := json.Unmarshal(value, &items); err != nil || items == nil {
				continue
			}
			categories[name] = stringsOnly(items)
		}
		*s = Categorized(categories)
		return nil
	default:
		return fmt.Errorf("unsupported scope value: %s", string(data))
	}
}

// Value implements driver.Valuer; None is stored as NULL
func (s Scope) Value() (driver.Value, error) {
	if s.kind == KindNone {
		return nil, nil
	}
	data, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (s *Scope) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = None()
		return nil
	case []byte:
		return s.UnmarshalJSON(v)
	case string:
		return s.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("cannot scan %T into scope", src)
	}
}

func dedupe(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func stringsOnly(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	for _, t := range b {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

func contains(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
