package intake

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.SetGray(x, h/2, color.Gray{Y: 200})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFromBytes_SniffsImage(t *testing.T) {
	c, err := FromBytes("scan.png", "", pngBytes(t, 4, 4))
	require.NoError(t, err)
	assert.Equal(t, "image/png", c.ContentType)
	assert.Equal(t, "scan.png", c.Name)
	assert.NotEqual(t, uuid.Nil, c.ID)
}

func TestFromBytes_RejectsNonImages(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		data     []byte
	}{
		{"text", "", []byte("hello, not an image")},
		{"pdf", "", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")},
		{"declared text", "text/plain", pngBytes(t, 2, 2)},
		{"empty", "image/png", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := FromBytes(tt.name, tt.declared, tt.data)
			assert.ErrorIs(t, err, ErrNotImage)
			assert.Nil(t, c)
		})
	}
}

func TestFromBytes_DeclaredTypeWithParams(t *testing.T) {
	c, err := FromBytes("x", "image/JPEG; charset=binary", []byte{0xff, 0xd8, 0xff})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", c.ContentType)
}

func TestFromBytes_NewIdentityPerSelection(t *testing.T) {
	data := pngBytes(t, 2, 2)
	a, err := FromBytes("a.png", "", data)
	require.NoError(t, err)
	b, err := FromBytes("a.png", "", data)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestBuildPreview_Thumbnail(t *testing.T) {
	c, err := FromBytes("wide.png", "", pngBytes(t, 512, 128))
	require.NoError(t, err)

	p := <-DerivePreview(c)
	require.NotNil(t, p)
	assert.Equal(t, 512, p.Width)
	assert.Equal(t, 128, p.Height)
	assert.True(t, strings.HasPrefix(p.DataURL, "data:image/png;base64,"))
	require.True(t, strings.HasPrefix(p.Thumbnail, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(p.Thumbnail, "data:image/png;base64,"))
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Width)
	assert.Equal(t, 64, cfg.Height)
}

func TestBuildPreview_UndecodableStillHasDataURL(t *testing.T) {
	c := &Candidate{ContentType: "image/x-dicom", Data: []byte("DICM....")}
	p := BuildPreview(c)
	assert.Equal(t, "data:image/x-dicom;base64,"+base64.StdEncoding.EncodeToString(c.Data), p.DataURL)
	assert.Zero(t, p.Width)
	assert.Empty(t, p.Thumbnail)
}

func TestFit(t *testing.T) {
	tests := []struct {
		w, h, wantW, wantH int
	}{
		{100, 50, 100, 50},
		{512, 256, 256, 128},
		{256, 1024, 64, 256},
		{10000, 1, 256, 1},
		{0, 10, 0, 0},
	}
	for _, tt := range tests {
		w, h := fit(tt.w, tt.h, 256)
		assert.Equal(t, tt.wantW, w, "fit(%d,%d)", tt.w, tt.h)
		assert.Equal(t, tt.wantH, h, "fit(%d,%d)", tt.w, tt.h)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slice.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t, 8, 8), 0o600))

	c, err := FileSource{}.Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "slice.png", c.Name)

	_, err = FileSource{}.Open(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestHTTPSource(t *testing.T) {
	img := pngBytes(t, 8, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/scans/a.png":
			assert.Contains(t, r.Header.Get("Accept"), "image/")
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(img)
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource()
	ctx := context.Background()

	c, err := src.Open(ctx, srv.URL+"/scans/a.png")
	require.NoError(t, err)
	assert.Equal(t, "a.png", c.Name)
	assert.Equal(t, img, c.Data)

	_, err = src.Open(ctx, srv.URL+"/page")
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = src.Open(ctx, srv.URL+"/missing")
	assert.ErrorContains(t, err, "status code 404")
}

type fakeBlobClient struct {
	container, blob string
	data            []byte
	contentType     string
}

func (f *fakeBlobClient) DownloadStream(_ context.Context, container, blobName string, _ *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error) {
	f.container, f.blob = container, blobName
	ct := f.contentType
	return azblob.DownloadStreamResponse{
		DownloadResponse: blob.DownloadResponse{
			Body:        io.NopCloser(bytes.NewReader(f.data)),
			ContentType: &ct,
		},
	}, nil
}

func TestBlobSource(t *testing.T) {
	fake := &fakeBlobClient{data: pngBytes(t, 4, 4), contentType: "image/png"}
	src := NewBlobSourceWithClient(fake)

	c, err := src.Open(context.Background(), "azblob://cbct/2024/patient-7/slice-12.png")
	require.NoError(t, err)
	assert.Equal(t, "cbct", fake.container)
	assert.Equal(t, "2024/patient-7/slice-12.png", fake.blob)
	assert.Equal(t, "slice-12.png", c.Name)
}

func TestParseBlobRef(t *testing.T) {
	tests := []struct {
		ref       string
		container string
		blob      string
		wantErr   bool
	}{
		{"azblob://scans/a.png", "scans", "a.png", false},
		{"azblob://scans/dir/a.png", "scans", "dir/a.png", false},
		{"azblob://scans", "", "", true},
		{"https://scans/a.png", "", "", true},
	}
	for _, tt := range tests {
		c, b, err := parseBlobRef(tt.ref)
		if tt.wantErr {
			assert.Error(t, err, tt.ref)
			continue
		}
		require.NoError(t, err, tt.ref)
		assert.Equal(t, tt.container, c)
		assert.Equal(t, tt.blob, b)
	}
}

func TestResolver_BlobWithoutCredentials(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Open(context.Background(), "azblob://scans/a.png")
	assert.ErrorContains(t, err, "AZURE_STORAGE_ACCOUNT")
}
