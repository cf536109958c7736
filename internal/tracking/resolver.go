package tracking

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// MaxScanDepth bounds the nested scan of an order.
const MaxScanDepth = 5

// Code is a normalized tracking code: upper-case letters and digits only.
type Code string

// DefaultPrefixes and DefaultCountry describe CTT registered-mail codes.
var (
	DefaultPrefixes = []string{"RT", "RU"}
	DefaultCountry  = "PT"
)

// knownPaths are probed, in priority order, before the nested scan.
var knownPaths = [][]string{
	{"tracking_code"},
	{"trackingCode"},
	{"tracking"},
	{"ctt_code"},
	{"cttCode"},
	{"shipping", "tracking_code"},
	{"shipping", "trackingCode"},
	{"meta", "tracking_code"},
	{"meta", "ctt_code"},
}

// Resolver finds carrier codes in orders of unknown shape.
type Resolver struct {
	pattern *regexp.Regexp
}

// NewResolver builds a resolver for codes made of one of prefixes, nine
// digits and the country suffix. Spaces and dashes are tolerated between the
// groups and matching ignores case.
func NewResolver(prefixes []string, country string) (*Resolver, error) {
	if len(prefixes) == 0 {
		return nil, fmt.Errorf("no tracking code prefixes")
	}
	alts := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("empty tracking code prefix")
		}
		alts = append(alts, regexp.QuoteMeta(p))
	}
	if strings.TrimSpace(country) == "" {
		return nil, fmt.Errorf("empty tracking code country")
	}
	expr := fmt.Sprintf(`(?i)\b(?:%s)[\s-]*\d(?:[\s-]*\d){8}[\s-]*%s\b`,
		strings.Join(alts, "|"), regexp.QuoteMeta(strings.TrimSpace(country)))
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile tracking pattern: %w", err)
	}
	return &Resolver{pattern: re}, nil
}

// DefaultResolver returns a resolver for DefaultPrefixes and DefaultCountry.
func DefaultResolver() *Resolver {
	r, err := NewResolver(DefaultPrefixes, DefaultCountry)
	if err != nil {
		panic(err)
	}
	return r
}

// Find returns the first code-shaped substring of s, normalized.
func (r *Resolver) Find(s string) (Code, bool) {
	m := r.pattern.FindString(s)
	if m == "" {
		return "", false
	}
	return Normalize(m), true
}

// Resolve returns the order's tracking code. Well-known fields are tried
// first; only when none holds a code-shaped string is every string in the
// order scanned, down to MaxScanDepth levels.
func (r *Resolver) Resolve(order Order) (Code, bool) {
	if order == nil {
		return "", false
	}
	for _, path := range knownPaths {
		s, ok := lookup(order, path).(string)
		if !ok || s == "" {
			continue
		}
		if code, ok := r.Find(s); ok {
			return code, true
		}
	}
	return r.scan(map[string]any(order), 0, make(map[visitKey]struct{}))
}

type visitKey struct {
	ptr uintptr
	len int
}

// scan walks v depth-first. Object keys are visited in sorted order so the
// first match is deterministic; containers already on the visited set are
// skipped so cyclic values terminate.
func (r *Resolver) scan(v any, depth int, seen map[visitKey]struct{}) (Code, bool) {
	if depth > MaxScanDepth {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return r.Find(x)
	case Order:
		return r.scan(map[string]any(x), depth, seen)
	case map[string]any:
		if x == nil || !visit(seen, reflect.ValueOf(x).Pointer(), 0) {
			return "", false
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if code, ok := r.scan(x[k], depth+1, seen); ok {
				return code, true
			}
		}
	case []any:
		if len(x) == 0 || !visit(seen, reflect.ValueOf(x).Pointer(), len(x)) {
			return "", false
		}
		for _, item := range x {
			if code, ok := r.scan(item, depth+1, seen); ok {
				return code, true
			}
		}
	case []string:
		for _, s := range x {
			if code, ok := r.Find(s); ok {
				return code, true
			}
		}
	}
	return "", false
}

func visit(seen map[visitKey]struct{}, ptr uintptr, n int) bool {
	k := visitKey{ptr: ptr, len: n}
	if _, ok := seen[k]; ok {
		return false
	}
	seen[k] = struct{}{}
	return true
}

func lookup(order Order, path []string) any {
	var cur any = map[string]any(order)
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func asMap(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case Order:
		return map[string]any(x), true
	default:
		return nil, false
	}
}

// Normalize upper-cases s and drops every character that is not an ASCII
// letter or digit. Normalizing a Code again returns it unchanged.
func Normalize(s string) Code {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range strings.ToUpper(s) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return Code(b.String())
}
