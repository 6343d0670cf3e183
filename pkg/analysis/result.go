package analysis

// Result is the analysis outcome for one request. It is one of
// *SegmentResult, *MeasureResult or *RecommendResult; the variant always
// matches the mode the request was dispatched with.
type Result interface {
	Mode() Mode
	// AnnotatedImage returns the overlay image as a data URL, or "" when the
	// service sent none.
	AnnotatedImage() string
	sealed()
}

// SegmentResult holds the outcome of a segmentation run.
type SegmentResult struct {
	Image         string `json:"image,omitempty"`
	DetectedBone  bool   `json:"detected_bone"`
	DetectedNerve bool   `json:"detected_nerve"`
}

// Widths are bone widths measured at fixed depths below the crest line.
// A nil entry means the service reported no width at that depth.
type Widths struct {
	W2 *float64 `json:"w2mm,omitempty"`
	W6 *float64 `json:"w6mm,omitempty"`
	W8 *float64 `json:"w8mm,omitempty"`
}

// MeasureResult holds bone measurements in millimetres.
type MeasureResult struct {
	Image    string  `json:"image,omitempty"`
	HeightMM float64 `json:"height_mm"`
	Widths   Widths  `json:"widths_mm"`
	// CrestToNerveMM is nil when no nerve canal was detected.
	CrestToNerveMM *float64 `json:"crest_to_nerve_mm"`
}

// Implant is a catalog entry matched to the available bone envelope.
type Implant struct {
	Company    string  `json:"company"`
	DiameterMM float64 `json:"diameter"`
	LengthMM   float64 `json:"length"`
}

// RecommendResult holds the bone envelope and the best-fitting implant.
type RecommendResult struct {
	Image           string  `json:"image,omitempty"`
	BoneHeightMM    float64 `json:"bone_height_mm"`
	BoneWidthMM     float64 `json:"bone_width_mm"`
	ImplantWidthMM  float64 `json:"implant_width_mm"`
	ImplantHeightMM float64 `json:"implant_height_mm"`
	// Recommendation is nil when no catalog entry fits. That is a valid
	// outcome, not an error.
	Recommendation *Implant `json:"recommendation"`
}

func (*SegmentResult) Mode() Mode   { return ModeSegment }
func (*MeasureResult) Mode() Mode   { return ModeMeasure }
func (*RecommendResult) Mode() Mode { return ModeRecommend }

func (r *SegmentResult) AnnotatedImage() string   { return r.Image }
func (r *MeasureResult) AnnotatedImage() string   { return r.Image }
func (r *RecommendResult) AnnotatedImage() string { return r.Image }

func (*SegmentResult) sealed()   {}
func (*MeasureResult) sealed()   {}
func (*RecommendResult) sealed() {}

// Vector returns the measurement vector used to compare analyses:
// height and the widths at 2, 6 and 8 mm. Recommend results contribute
// bone height and width (at 2 mm); segment results have no measurements.
func Vector(r Result) ([]float64, bool) {
	switch v := r.(type) {
	case *MeasureResult:
		return []float64{v.HeightMM, deref(v.Widths.W2), deref(v.Widths.W6), deref(v.Widths.W8)}, true
	case *RecommendResult:
		return []float64{v.BoneHeightMM, v.BoneWidthMM, 0, 0}, true
	}
	return nil, false
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
