package layout

import (
	"regexp"
	"sort"
	"unicode/utf8"
)

const (
	// MaxTitleLen bounds the text of a status title candidate.
	MaxTitleLen = 120
	// MaxDateLen bounds the text of a left-dated match.
	MaxDateLen = 40
	// LeftTolerance is how far past a title's left edge a match may still end.
	LeftTolerance = 6.0
	// AncestorLevels is how many parents are climbed for the local search scope.
	AncestorLevels = 4
)

var (
	dayMonthRe = regexp.MustCompile(`(?i)\b\d{1,2}\s*(?:Jan|Fev|Mar|Abr|Mai|Jun|Jul|Ago|Set|Out|Nov|Dez)\b`)
	timeRe     = regexp.MustCompile(`(?i)\b(\d{1,2})[:h](\d{2})\b`)
)

// Event is one status title with the date and time found to its left.
// Date and Time are empty when the matched text carried only the other token.
type Event struct {
	Label string  `json:"label"`
	Date  string  `json:"date,omitempty"`
	Time  string  `json:"time,omitempty"`
	Y     float64 `json:"y"`
}

// ParseDate returns the first day-month token in s.
func ParseDate(s string) (string, bool) {
	m := dayMonthRe.FindString(s)
	return m, m != ""
}

// ParseTime returns the first hour:minute token in s as "HH:MM".
// Both "9:05" and "9h05" are accepted.
func ParseTime(s string) (string, bool) {
	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	hour := m[1]
	if len(hour) == 1 {
		hour = "0" + hour
	}
	return hour + ":" + m[2], true
}

// Extract builds the timeline of snap. Bold, visible, short elements are
// title candidates; each keeps the first element in document order that sits
// left of it, overlaps it vertically and carries a date or time. The search
// runs within the descendants of the title's fourth ancestor first and falls
// back to the whole document. Titles without a match are dropped. The result
// is sorted by vertical position and is never nil.
func Extract(snap *Snapshot) []Event {
	events := []Event{}
	if snap == nil || len(snap.Elements) == 0 {
		return events
	}

	elems := snap.Elements
	parents := sanitizeParents(elems)
	ends := subtreeEnds(parents)

	for i, el := range elems {
		if !isTitle(el) {
			continue
		}

		scope := i
		for k := 0; k < AncestorLevels && parents[scope] >= 0; k++ {
			scope = parents[scope]
		}

		date, tm, ok := leftDateFor(elems, el.Box, scope+1, ends[scope])
		if !ok {
			date, tm, ok = leftDateFor(elems, el.Box, 0, len(elems)-1)
		}
		if !ok {
			continue
		}
		events = append(events, Event{Label: el.Text, Date: date, Time: tm, Y: el.Box.Top})
	}

	sort.SliceStable(events, func(a, b int) bool { return events[a].Y < events[b].Y })
	return events
}

func isTitle(el Element) bool {
	if el.Text == "" || utf8.RuneCountInString(el.Text) > MaxTitleLen {
		return false
	}
	if el.Box.Width() == 0 || el.Box.Height() == 0 {
		return false
	}
	return el.Bold()
}

// leftDateFor scans elems[lo..hi] in order for the first left-dated match of title.
func leftDateFor(elems []Element, title Rect, lo, hi int) (date, tm string, ok bool) {
	for j := lo; j <= hi && j < len(elems); j++ {
		n := elems[j]
		if n.Text == "" || utf8.RuneCountInString(n.Text) > MaxDateLen {
			continue
		}
		r := n.Box
		left := r.Right <= title.Left+LeftTolerance
		overlap := !(r.Bottom < title.Top || r.Top > title.Bottom)
		if !left || !overlap {
			continue
		}
		d, hasDate := ParseDate(n.Text)
		t, hasTime := ParseTime(n.Text)
		if hasDate || hasTime {
			return d, t, true
		}
	}
	return "", "", false
}

// sanitizeParents drops parent links that do not point backwards in document
// order, turning those elements into roots.
func sanitizeParents(elems []Element) []int {
	parents := make([]int, len(elems))
	for i, el := range elems {
		p := el.Parent
		if p < 0 || p >= i {
			p = -1
		}
		parents[i] = p
	}
	return parents
}

// subtreeEnds returns, per element, the index of its last descendant (itself
// when it has none).
func subtreeEnds(parents []int) []int {
	ends := make([]int, len(parents))
	for i := range ends {
		ends[i] = i
	}
	for i := len(parents) - 1; i >= 0; i-- {
		if p := parents[i]; p >= 0 && ends[i] > ends[p] {
			ends[p] = ends[i]
		}
	}
	return ends
}
