// Package query holds the list-query value object used by the content store:
// exact-match filters, a free-text search term and an ordering, each checked
// against a fixed allow-list before the store sees them.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

var ErrInvalidField = errors.New("query: field not allowed")

const (
	ParamSearch   = "search"
	ParamOrdering = "ordering"
	ParamLimit    = "limit"
	ParamOffset   = "offset"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Fields is the allow-list for one resource.
type Fields struct {
	Filter       []string
	Search       []string
	Order        []string
	DefaultOrder []string
}

// Spec is a validated list query.
type Spec struct {
	Filters  map[string]string
	Search   string
	Ordering []string // field names, "-" prefix for descending
	Limit    int
	Offset   int
}

// Parse builds a Spec from URL query values. Unknown parameters are rejected.
func Parse(v url.Values, f Fields) (Spec, error) {
	s := Spec{
		Filters: map[string]string{},
		Limit:   DefaultLimit,
	}

	for key, vals := range v {
		if len(vals) == 0 {
			continue
		}
		val := vals[0]
		switch key {
		case ParamSearch:
			s.Search = strings.TrimSpace(val)
		case ParamOrdering:
			for _, o := range strings.Split(val, ",") {
				o = strings.TrimSpace(o)
				if o == "" {
					continue
				}
				if !contains(f.Order, strings.TrimPrefix(o, "-")) {
					return Spec{}, fmt.Errorf("%w: ordering %q", ErrInvalidField, o)
				}
				s.Ordering = append(s.Ordering, o)
			}
		case ParamLimit:
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return Spec{}, fmt.Errorf("%w: limit %q", ErrInvalidField, val)
			}
			if n > MaxLimit {
				n = MaxLimit
			}
			s.Limit = n
		case ParamOffset:
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				return Spec{}, fmt.Errorf("%w: offset %q", ErrInvalidField, val)
			}
			s.Offset = n
		default:
			if !contains(f.Filter, key) {
				return Spec{}, fmt.Errorf("%w: filter %q", ErrInvalidField, key)
			}
			s.Filters[key] = val
		}
	}

	if len(s.Ordering) == 0 {
		s.Ordering = append(s.Ordering, f.DefaultOrder...)
	}
	return s, nil
}

// Accessor returns the sortable string value of a named field of an item.
// Values must compare lexicographically in their natural order.
type Accessor[T any] func(item T, field string) string

// Apply filters, searches, orders and pages items according to s. Search
// splits the term on whitespace and every word must appear (case-insensitive)
// in at least one of searchFields. Ties after the requested ordering are
// broken by "id" descending.
func Apply[T any](items []T, s Spec, searchFields []string, get Accessor[T]) []T {
	terms := strings.Fields(strings.ToLower(s.Search))

	out := make([]T, 0, len(items))
	for _, it := range items {
		if matchesFilters(it, s.Filters, get) && matchesSearch(it, terms, searchFields, get) {
			out = append(out, it)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range s.Ordering {
			field, desc := strings.TrimPrefix(o, "-"), strings.HasPrefix(o, "-")
			a, b := get(out[i], field), get(out[j], field)
			if a == b {
				continue
			}
			if desc {
				return a > b
			}
			return a < b
		}
		return get(out[i], "id") > get(out[j], "id")
	})

	if s.Offset >= len(out) {
		return []T{}
	}
	out = out[s.Offset:]
	if s.Limit > 0 && len(out) > s.Limit {
		out = out[:s.Limit]
	}
	return out
}

func matchesFilters[T any](it T, filters map[string]string, get Accessor[T]) bool {
	for k, v := range filters {
		if get(it, k) != v {
			return false
		}
	}
	return true
}

func matchesSearch[T any](it T, terms, fields []string, get Accessor[T]) bool {
	for _, term := range terms {
		found := false
		for _, f := range fields {
			if strings.Contains(strings.ToLower(get(it, f)), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
