// Package display resolves an analysis result into the fields shown for the
// currently selected mode.
package display

import (
	"math"
	"strconv"

	"github.com/kamilpajak/crestline/pkg/analysis"
)

// Sentinel values shown in place of missing data.
const (
	Missing          = "—"
	NoNerve          = "No nerve"
	Detected         = "Detected"
	NotFound         = "Not found"
	NoImplantMessage = "No suitable implant found for the measured bone dimensions."
)

// Row is one labelled value. Key is stable for styling (bone, nerve, height,
// w2, w6, w8, crest, width, avail_w, avail_h).
type Row struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
	// OK is set on detection rows when the structure was found.
	OK bool `json:"ok,omitempty"`
}

// Fields is everything a front end needs to render a result.
type Fields struct {
	Mode  analysis.Mode `json:"mode"`
	Title string        `json:"title"`
	// Empty is set when there is no result to show.
	Empty    bool   `json:"empty"`
	Image    string `json:"image,omitempty"`
	HasImage bool   `json:"has_image"`
	Rows     []Row  `json:"rows,omitempty"`
	// Implant is the matched catalog entry in recommend mode.
	Implant *analysis.Implant `json:"implant,omitempty"`
	// NoRecommendation marks a recommend result with no fitting implant.
	NoRecommendation bool `json:"no_recommendation"`
	// Mismatch is set when the result was produced under another mode.
	Mismatch bool          `json:"mismatch"`
	Source   analysis.Mode `json:"source,omitempty"`
}

// Present interprets result under mode. It never fails: a nil result yields
// Empty fields and a result of another mode's shape degrades to sentinels.
func Present(result analysis.Result, mode analysis.Mode) Fields {
	f := Fields{Mode: mode, Title: sectionTitle(mode)}
	if result == nil {
		f.Empty = true
		return f
	}

	f.Source = result.Mode()
	f.Mismatch = result.Mode() != mode
	f.Image = result.AnnotatedImage()
	f.HasImage = f.Image != ""

	switch mode {
	case analysis.ModeSegment:
		s, _ := result.(*analysis.SegmentResult)
		if s == nil {
			s = &analysis.SegmentResult{}
		}
		f.Rows = []Row{
			detectionRow("bone", "Bone", s.DetectedBone),
			detectionRow("nerve", "Nerve Canal", s.DetectedNerve),
		}

	case analysis.ModeMeasure:
		m, _ := result.(*analysis.MeasureResult)
		f.Rows = measureRows(m)

	case analysis.ModeRecommend:
		r, ok := result.(*analysis.RecommendResult)
		if !ok {
			f.Rows = recommendRows(nil)
			return f
		}
		f.Rows = recommendRows(r)
		f.Implant = r.Recommendation
		f.NoRecommendation = r.Recommendation == nil
	}
	return f
}

func measureRows(m *analysis.MeasureResult) []Row {
	if m == nil {
		return []Row{
			{Key: "height", Label: "Bone Height", Value: Missing},
			{Key: "w2", Label: "Width @ 2mm", Value: Missing},
			{Key: "w6", Label: "Width @ 6mm", Value: Missing},
			{Key: "w8", Label: "Width @ 8mm", Value: Missing},
			{Key: "crest", Label: "Crest → Nerve", Value: NoNerve},
		}
	}

	crest := NoNerve
	if m.CrestToNerveMM != nil {
		crest = MM(*m.CrestToNerveMM)
	}
	return []Row{
		{Key: "height", Label: "Bone Height", Value: MM(m.HeightMM)},
		{Key: "w2", Label: "Width @ 2mm", Value: optionalMM(m.Widths.W2)},
		{Key: "w6", Label: "Width @ 6mm", Value: optionalMM(m.Widths.W6)},
		{Key: "w8", Label: "Width @ 8mm", Value: optionalMM(m.Widths.W8)},
		{Key: "crest", Label: "Crest → Nerve", Value: crest},
	}
}

func recommendRows(r *analysis.RecommendResult) []Row {
	values := []string{Missing, Missing, Missing, Missing}
	if r != nil {
		values = []string{MM(r.BoneHeightMM), MM(r.BoneWidthMM), MM(r.ImplantWidthMM), MM(r.ImplantHeightMM)}
	}
	return []Row{
		{Key: "height", Label: "Bone Height", Value: values[0]},
		{Key: "width", Label: "Bone Width", Value: values[1]},
		{Key: "avail_w", Label: "Avail. Width", Value: values[2]},
		{Key: "avail_h", Label: "Avail. Height", Value: values[3]},
	}
}

func detectionRow(key, label string, ok bool) Row {
	v := NotFound
	if ok {
		v = Detected
	}
	return Row{Key: key, Label: label, Value: v, OK: ok}
}

func sectionTitle(mode analysis.Mode) string {
	switch mode {
	case analysis.ModeSegment:
		return "Detection"
	case analysis.ModeMeasure:
		return "Measurements"
	case analysis.ModeRecommend:
		return "Bone Data"
	}
	return string(mode)
}

// MM formats a millimetre value rounded to two decimals, e.g. "9.1 mm".
func MM(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " mm"
}

func optionalMM(v *float64) string {
	if v == nil {
		return Missing
	}
	return MM(*v)
}

// Value returns the row value for key, or "" when absent.
func (f Fields) Value(key string) string {
	for _, r := range f.Rows {
		if r.Key == key {
			return r.Value
		}
	}
	return ""
}
