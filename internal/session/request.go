package session

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/kamilpajak/crestline/internal/client"
	"github.com/kamilpajak/crestline/internal/intake"
	"github.com/kamilpajak/crestline/pkg/analysis"
)

// ErrInvalidInput is returned when a request is built without a selected
// image. Callers gate on CanRun, so users should never see it.
var ErrInvalidInput = errors.New("invalid input: no image selected")

// Request is an immutable analysis request built at dispatch time.
type Request struct {
	ImageID     uuid.UUID
	ImageName   string
	ContentType string
	image       []byte
	Mode        analysis.Mode
	Zoom        float64
	// ZoomText is the decimal string sent in the zoom field.
	ZoomText string
}

// BuildRequest assembles a request from the staged image, the selected mode
// and the raw zoom text. Empty or unparseable zoom text yields the default.
func BuildRequest(c *intake.Candidate, mode analysis.Mode, rawZoom string) (Request, error) {
	if c == nil {
		return Request{}, ErrInvalidInput
	}

	zoom, text := ParseZoom(rawZoom)
	img := make([]byte, len(c.Data))
	copy(img, c.Data)

	return Request{
		ImageID:     c.ID,
		ImageName:   c.Name,
		ContentType: c.ContentType,
		image:       img,
		Mode:        mode,
		Zoom:        zoom,
		ZoomText:    text,
	}, nil
}

// decimalZoom matches plain decimal notation. ParseFloat alone also accepts
// hex floats, digit separators and inf/nan spellings the service rejects.
var decimalZoom = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// ParseZoom parses user-entered zoom text. Empty, non-decimal, non-finite or
// non-positive input yields analysis.DefaultZoom. The returned text is the
// trimmed input when it was accepted.
func ParseZoom(raw string) (float64, string) {
	s := strings.TrimSpace(raw)
	if !decimalZoom.MatchString(s) {
		return analysis.DefaultZoom, analysis.DefaultZoomText
	}
	z, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(z) || math.IsInf(z, 0) || z <= 0 {
		return analysis.DefaultZoom, analysis.DefaultZoomText
	}
	return z, s
}

// Image returns a copy of the image bytes.
func (r Request) Image() []byte {
	out := make([]byte, len(r.image))
	copy(out, r.image)
	return out
}

// Wire converts the request into the transport form.
func (r Request) Wire() client.Request {
	return client.Request{
		ImageName:   r.ImageName,
		ContentType: r.ContentType,
		Image:       r.image,
		Mode:        r.Mode,
		Zoom:        r.ZoomText,
	}
}
