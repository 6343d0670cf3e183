// Package analysis defines the analysis modes and the mode-tagged result
// shapes returned by the CBCT analysis service.
package analysis

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode selects what the analysis service computes for an image.
type Mode string

const (
	ModeSegment   Mode = "segment"
	ModeMeasure   Mode = "measure"
	ModeRecommend Mode = "recommend"
)

// DefaultZoom is the scale factor used when the user-entered value is empty or
// not a number.
const DefaultZoom = 0.78

// DefaultZoomText is DefaultZoom as sent on the wire.
const DefaultZoomText = "0.78"

// Modes returns all modes in display order.
func Modes() []Mode {
	return []Mode{ModeSegment, ModeMeasure, ModeRecommend}
}

// ParseMode converts a user or wire string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m.Valid() {
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (use segment, measure or recommend)", s)
}

// Valid reports whether m is one of the three known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeSegment, ModeMeasure, ModeRecommend:
		return true
	}
	return false
}

// Title is the human-readable name shown next to a mode selector.
func (m Mode) Title() string {
	switch m {
	case ModeSegment:
		return "Segmentation"
	case ModeMeasure:
		return "Measurements"
	case ModeRecommend:
		return "Implant Rec."
	}
	return string(m)
}

// Next cycles to the following mode, wrapping around.
func (m Mode) Next() Mode {
	modes := Modes()
	for i, x := range modes {
		if x == m {
			return modes[(i+1)%len(modes)]
		}
	}
	return ModeSegment
}

// FormatZoom renders a zoom factor the way it is sent in the zoom form field.
func FormatZoom(z float64) string {
	return strconv.FormatFloat(z, 'f', -1, 64)
}
