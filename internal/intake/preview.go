package intake

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// thumbnailMax bounds the longer thumbnail edge in pixels.
const thumbnailMax = 256

// Preview is the displayable form of a candidate.
type Preview struct {
	// DataURL embeds the original bytes, like a browser FileReader would.
	DataURL string `json:"data_url"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	// Thumbnail is a PNG data URL of the downscaled image, empty when the
	// bytes could not be decoded.
	Thumbnail string `json:"thumbnail,omitempty"`
}

// DerivePreview computes the preview off the caller's goroutine. The channel
// receives exactly one value and is then closed.
func DerivePreview(c *Candidate) <-chan *Preview {
	ch := make(chan *Preview, 1)
	go func() {
		defer close(ch)
		ch <- BuildPreview(c)
	}()
	return ch
}

// BuildPreview decodes only as much as needed to show the image. Images Go
// cannot decode still get a data URL.
func BuildPreview(c *Candidate) *Preview {
	p := &Preview{DataURL: DataURL(c.ContentType, c.Data)}

	src, _, err := image.Decode(bytes.NewReader(c.Data))
	if err != nil {
		return p
	}
	b := src.Bounds()
	p.Width, p.Height = b.Dx(), b.Dy()

	w, h := fit(p.Width, p.Height, thumbnailMax)
	if w == 0 || h == 0 {
		return p
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err == nil {
		p.Thumbnail = DataURL("image/png", buf.Bytes())
	}
	return p
}

// DataURL encodes data as a base64 data URL.
func DataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// fit scales w x h down so the longer edge is at most limit, keeping aspect.
func fit(w, h, limit int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
