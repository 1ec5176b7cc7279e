// Package media validates uploaded post images and converts them into data
// URLs that can be stored inline with a post and rendered directly.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/docker/go-units"
)

// MaxImageSize is the largest accepted upload, in bytes.
const MaxImageSize = 1 << 20

// AllowedTypes lists the accepted MIME types.
var AllowedTypes = []string{"image/jpeg", "image/jpg", "image/png"}

// ErrConversion is returned when an image could not be turned into a data URL.
var ErrConversion = errors.New("media: image conversion failed")

// Blob is an uploaded file.
type Blob interface {
	ContentType() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// Result reports every problem found with an upload.
type Result struct {
	Valid  bool     `json:"isValid"`
	Errors []string `json:"errors"`
}

// ValidateImage checks the type and size of b independently, so a caller
// sees all violations at once.
func ValidateImage(b Blob) Result {
	var errs []string
	if !allowedType(b.ContentType()) {
		errs = append(errs, "Only JPG and PNG images are allowed")
	}
	if b.Size() > MaxImageSize {
		errs = append(errs, "Image size must be less than "+units.HumanSizeWithPrecision(float64(MaxImageSize), 1))
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

func allowedType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	for _, t := range AllowedTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// EncodeImage reads b and returns it as a base64 data URL carrying its MIME
// type. It blocks until the read completes or ctx is done.
func EncodeImage(ctx context.Context, b Blob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrConversion, err)
	}
	rc, err := b.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open: %w", ErrConversion, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, contextReader{ctx: ctx, r: rc}); err != nil {
		return "", fmt.Errorf("%w: read: %w", ErrConversion, err)
	}

	ct := b.ContentType()
	if ct == "" {
		ct = http.DetectContentType(buf.Bytes())
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// contextReader stops a copy between reads once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Bytes is an in-memory Blob.
type Bytes struct {
	Type string
	Data []byte
}

// FromBytes wraps data as a Blob of the given MIME type.
func FromBytes(contentType string, data []byte) Bytes {
	return Bytes{Type: contentType, Data: data}
}

func (b Bytes) ContentType() string { return b.Type }
func (b Bytes) Size() int64         { return int64(len(b.Data)) }

func (b Bytes) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

// Upload is a Blob backed by a multipart form file.
type Upload struct {
	header *multipart.FileHeader
}

// FromMultipart wraps a form file header.
func FromMultipart(fh *multipart.FileHeader) Upload {
	return Upload{header: fh}
}

func (u Upload) ContentType() string { return u.header.Header.Get("Content-Type") }
func (u Upload) Size() int64         { return u.header.Size }

func (u Upload) Open() (io.ReadCloser, error) {
	return u.header.Open()
}
