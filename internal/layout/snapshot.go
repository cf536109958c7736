// Package layout turns a rendered page snapshot into an ordered status timeline
// using only text emphasis and element geometry. It is tuned to carrier tracking
// pages that show short bold status titles with their date and time printed to
// the left; it is not a general layout parser.
package layout

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// Rect is an element's bounding box in page pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Width returns the horizontal extent of the box.
func (r Rect) Width() float64 { return r.Right - r.Left }

// Height returns the vertical extent of the box.
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// Element is one rendered element of a snapshot.
type Element struct {
	// Parent is the index of the parent element, -1 for a root.
	Parent int `json:"parent"`
	// Text is the element's whitespace-collapsed text content.
	Text string `json:"text"`
	Box  Rect   `json:"box"`
	// FontWeight is the computed CSS font-weight ("700", "bold", "normal", ...).
	FontWeight string `json:"fontWeight"`
}

// Bold reports whether the element renders with bold-equivalent emphasis.
func (e Element) Bold() bool { return IsBold(e.FontWeight) }

// Snapshot is a rendered page: every element in document order, so each
// element's descendants directly follow it.
type Snapshot struct {
	URL      string    `json:"url,omitempty"`
	Elements []Element `json:"elements"`
}

// IsBold applies the emphasis rule: a numeric weight counts from 600 up, and a
// non-numeric weight counts only when it is the literal keyword "bold".
func IsBold(weight string) bool {
	w := strings.TrimSpace(weight)
	if n, ok := leadingInt(w); ok {
		return n >= 600
	}
	return w == "bold"
}

// leadingInt parses the integer prefix of s the way parseInt does.
func leadingInt(s string) (int, bool) {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// CollapseText collapses runs of whitespace into single spaces and trims the ends.
func CollapseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// LoadSnapshot decodes a JSON snapshot, as written by SaveSnapshot.
func LoadSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// SaveSnapshot writes snap as indented JSON.
func SaveSnapshot(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}
