package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedBody is returned when a success body is not a JSON object of the
// expected shape.
var ErrMalformedBody = errors.New("malformed analysis response")

// Decode parses a success response body for the mode the request was
// dispatched with. Optional fields that are missing or null stay nil.
func Decode(mode Mode, body []byte) (Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrMalformedBody
	}

	var r Result
	switch mode {
	case ModeSegment:
		r = &SegmentResult{}
	case ModeMeasure:
		r = &MeasureResult{}
	case ModeRecommend:
		r = &RecommendResult{}
	default:
		return nil, fmt.Errorf("decode: unknown mode %q", mode)
	}

	if err := json.Unmarshal(trimmed, r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return r, nil
}

// Encode writes r in the service's wire shape, including the mode tag.
func Encode(r Result) ([]byte, error) {
	switch v := r.(type) {
	case *SegmentResult:
		return json.Marshal(struct {
			Mode Mode `json:"mode"`
			*SegmentResult
		}{ModeSegment, v})
	case *MeasureResult:
		return json.Marshal(struct {
			Mode Mode `json:"mode"`
			*MeasureResult
		}{ModeMeasure, v})
	case *RecommendResult:
		return json.Marshal(struct {
			Mode Mode `json:"mode"`
			*RecommendResult
		}{ModeRecommend, v})
	}
	return nil, fmt.Errorf("encode: unsupported result %T", r)
}

// DecodeTagged parses a body written by Encode, using its mode tag.
func DecodeTagged(body []byte) (Result, error) {
	var tag struct {
		Mode Mode `json:"mode"`
	}
	if err := json.Unmarshal(body, &tag); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return Decode(tag.Mode, body)
}
