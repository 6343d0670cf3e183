// Package intake turns user-supplied files, URLs and blobs into image
// candidates that can be previewed and sent for analysis.
package intake

import (
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrNotImage is returned for inputs whose content is not an image. Callers
// treat it as "nothing was selected".
var ErrNotImage = errors.New("not an image")

// Candidate is the currently selected input image. It is replaced wholesale
// whenever the user selects a new image.
type Candidate struct {
	// ID identifies this selection. A request built from the candidate
	// carries the same ID so a late response can be matched against it.
	ID          uuid.UUID
	Name        string
	ContentType string
	Data        []byte
}

// FromBytes builds a candidate from raw bytes. declaredType is the content
// type reported by the source (multipart header, HTTP response); when empty or
// generic the bytes are sniffed instead.
func FromBytes(name, declaredType string, data []byte) (*Candidate, error) {
	if len(data) == 0 {
		return nil, ErrNotImage
	}

	ct := normalizeType(declaredType)
	if ct == "" || ct == "application/octet-stream" {
		ct = mimetype.Detect(data).String()
	}
	ct = normalizeType(ct)
	if !strings.HasPrefix(ct, "image/") {
		return nil, ErrNotImage
	}

	return &Candidate{
		ID:          uuid.New(),
		Name:        name,
		ContentType: ct,
		Data:        data,
	}, nil
}

// Size returns the image size in bytes.
func (c *Candidate) Size() int {
	return len(c.Data)
}

func normalizeType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
