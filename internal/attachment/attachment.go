// Package attachment stores proof-of-transfer and proof-of-purchase files.
// Files are validated before they reach a Sink, and sinks return the public
// reference that is written into the database.
package attachment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sppi/sppi-po/internal/shared"
)

// DefaultMaxBytes bounds a single upload.
const DefaultMaxBytes int64 = 5 << 20

// Folders used by the lifecycle operations.
const (
	FolderTransfers = "transfers"
	FolderShopping  = "shopping"
	FolderInvoices  = "invoices"
)

var allowedTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".pdf":  "application/pdf",
}

// Upload is a validated file ready to be stored.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        []byte
}

// ContentType returns the served content type for a stored file name, or ""
// when the extension is not one attachments accept.
func ContentType(name string) string {
	return allowedTypes[strings.ToLower(path.Ext(name))]
}

// Reader returns a fresh reader over the body.
func (u Upload) Reader() io.Reader {
	return bytes.NewReader(u.Body)
}

// Ext returns the lower-cased file extension including the dot.
func (u Upload) Ext() string {
	return strings.ToLower(filepath.Ext(u.Filename))
}

// Sink persists uploads and returns a public reference to the stored object.
type Sink interface {
	Name() string
	Save(ctx context.Context, folder string, up Upload) (string, error)
}

// Recorder observes sink outcomes.
type Recorder interface {
	ObserveAttachment(sink string, err error)
}

// Validate checks extension, sniffed content type and size.
func Validate(up Upload, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	want, ok := allowedTypes[up.Ext()]
	if !ok {
		return fmt.Errorf("%w: file %q must be jpeg, jpg, png or pdf", shared.ErrValidation, up.Filename)
	}
	if up.Size == 0 || len(up.Body) == 0 {
		return fmt.Errorf("%w: file %q is empty", shared.ErrValidation, up.Filename)
	}
	if up.Size > maxBytes {
		return fmt.Errorf("%w: file %q exceeds %d bytes", shared.ErrValidation, up.Filename, maxBytes)
	}
	sniffed := http.DetectContentType(up.Body)
	if !strings.HasPrefix(sniffed, want) {
		return fmt.Errorf("%w: file %q content is %s, expected %s", shared.ErrValidation, up.Filename, sniffed, want)
	}
	return nil
}

// FromFileHeader reads and validates a multipart file.
func FromFileHeader(fh *multipart.FileHeader, maxBytes int64) (Upload, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if fh.Size > maxBytes {
		return Upload{}, fmt.Errorf("%w: file %q exceeds %d bytes", shared.ErrValidation, fh.Filename, maxBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return Upload{}, fmt.Errorf("attachment: open %q: %w", fh.Filename, err)
	}
	defer f.Close()
	body, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return Upload{}, fmt.Errorf("attachment: read %q: %w", fh.Filename, err)
	}
	up := Upload{
		Filename: fh.Filename,
		Size:     int64(len(body)),
		Body:     body,
	}
	up.ContentType = allowedTypes[up.Ext()]
	if err := Validate(up, maxBytes); err != nil {
		return Upload{}, err
	}
	return up, nil
}

// objectKey builds "<folder>/<uuid><ext>".
func objectKey(folder string, up Upload) string {
	return path.Join(strings.Trim(folder, "/"), uuid.NewString()+up.Ext())
}
