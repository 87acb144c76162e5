// Package capture prepares captured recipe card photos for OCR.
package capture

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrNormalize is wrapped by the error NormalizeAll returns when at least one image failed.
	ErrNormalize = errors.New("failed to process one or more images")
	// ErrOverBudget is returned when an image cannot be compressed under the byte budget.
	ErrOverBudget = errors.New("image cannot be compressed under the size budget")
	// ErrUnsupportedFormat is returned for payloads no decoder recognizes.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// PendingImage is a captured image waiting to be scanned.
type PendingImage struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Index       int    `json:"index"` // capture order, which is also OCR order
	Data        []byte `json:"-"`
}

func (p PendingImage) withPayload(data []byte, contentType string) PendingImage {
	p.Data = data
	p.ContentType = contentType
	return p
}

// ImageError records why a single image in a batch failed.
type ImageError struct {
	Index int
	Name  string
	Err   error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

// BatchResult holds the images that were processed and the ones that failed.
type BatchResult struct {
	Images []PendingImage
	Failed []*ImageError
}

// Processed returns the number of successfully normalized images.
func (r BatchResult) Processed() int {
	return len(r.Images)
}

// FailedCount returns the number of images that could not be normalized.
func (r BatchResult) FailedCount() int {
	return len(r.Failed)
}

// DetectContentType returns a normalized MIME type for an upload, falling
// back to the file extension when the client did not send one.
func DetectContentType(filename, header string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// NewPendingImages turns one uploaded file into pending images starting at
// index next. PDFs expand to one image per page.
func NewPendingImages(name, contentType string, data []byte, next int) ([]PendingImage, error) {
	if contentType == "application/pdf" {
		return FromPDF(name, data, next)
	}
	return []PendingImage{{
		Name:        name,
		ContentType: contentType,
		Index:       next,
		Data:        data,
	}}, nil
}
