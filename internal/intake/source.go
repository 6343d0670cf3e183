package intake

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// maxImageBytes caps how much of a source is read into memory.
const maxImageBytes = 64 << 20

// Source loads an image candidate from a reference (path, URL, blob).
type Source interface {
	Open(ctx context.Context, ref string) (*Candidate, error)
}

// FileSource reads images from the local filesystem.
type FileSource struct{}

// Open reads the file at path.
func (FileSource) Open(_ context.Context, path string) (*Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	data, err := readLimited(f)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return FromBytes(filepath.Base(path), "", data)
}

// HTTPSource downloads images over HTTP(S).
type HTTPSource struct {
	Client *http.Client
}

// NewHTTPSource creates an HTTP source with a bounded download timeout.
func NewHTTPSource() *HTTPSource {
	return &HTTPSource{Client: &http.Client{Timeout: 30 * time.Second}}
}

// Open fetches the image at imageURL. There are no retries; a failed
// download is reported to the user, who can select again.
func (s *HTTPSource) Open(ctx context.Context, imageURL string) (*Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/tiff, image/*")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("fetch image: client error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("fetch image: server error: status code %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return FromBytes(nameFromURL(req.URL), resp.Header.Get("Content-Type"), data)
}

// BlobClient is the subset of the azblob client used for image intake.
type BlobClient interface {
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

// BlobSource reads images from Azure Blob Storage references of the form
// azblob://container/path/to/blob.
type BlobSource struct {
	client BlobClient
}

// NewBlobSource creates a blob source authenticated with a shared key.
func NewBlobSource(accountName, accountKey string) (*BlobSource, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}
	return &BlobSource{client: client}, nil
}

// NewBlobSourceWithClient wraps an existing client.
func NewBlobSourceWithClient(c BlobClient) *BlobSource {
	return &BlobSource{client: c}
}

// Open downloads the referenced blob.
func (s *BlobSource) Open(ctx context.Context, ref string) (*Candidate, error) {
	container, blob, err := parseBlobRef(ref)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := readLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}

	var declared string
	if resp.ContentType != nil {
		declared = *resp.ContentType
	}
	return FromBytes(filepath.Base(blob), declared, data)
}

func parseBlobRef(ref string) (container, blob string, err error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "azblob" {
		return "", "", fmt.Errorf("invalid blob reference: %q", ref)
	}
	container = u.Host
	blob = strings.TrimPrefix(u.Path, "/")
	if container == "" || blob == "" {
		return "", "", fmt.Errorf("invalid blob reference: %q (want azblob://container/blob)", ref)
	}
	return container, blob, nil
}

// Resolver dispatches a reference to the source matching its scheme.
type Resolver struct {
	Files FileSource
	HTTP  *HTTPSource
	// Blobs is nil when no Azure credentials are configured.
	Blobs *BlobSource
}

// NewResolver creates a resolver with file and HTTP sources. Pass a blob
// source to enable azblob:// references.
func NewResolver(blobs *BlobSource) *Resolver {
	return &Resolver{HTTP: NewHTTPSource(), Blobs: blobs}
}

// Open loads ref from the matching source.
func (r *Resolver) Open(ctx context.Context, ref string) (*Candidate, error) {
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return r.HTTP.Open(ctx, ref)
	case strings.HasPrefix(ref, "azblob://"):
		if r.Blobs == nil {
			return nil, fmt.Errorf("azblob reference %q requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY", ref)
		}
		return r.Blobs.Open(ctx, ref)
	default:
		return r.Files.Open(ctx, ref)
	}
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return data, nil
}

func nameFromURL(u *url.URL) string {
	base := filepath.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return u.Host
	}
	return base
}
