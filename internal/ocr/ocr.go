// Package ocr drives an OCR engine over the images of one scan.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zombor/recipescan/internal/capture"
)

// PageSeparator joins the text recognized from consecutive images.
const PageSeparator = "\n\n"

var (
	// ErrNoImages is returned when a scan is requested without images.
	ErrNoImages = errors.New("no images to scan")
	// ErrRecognition is wrapped by every per-image recognition failure.
	ErrRecognition = errors.New("text recognition failed")
)

// Engine recognizes text in images. It is acquired once per scan and
// released when the scan ends.
type Engine interface {
	Recognize(ctx context.Context, img capture.PendingImage) (string, error)
	Release() error
}

// Capability creates OCR engines.
type Capability interface {
	Initialize(ctx context.Context) (Engine, error)
}

// ScanError reports the image that aborted a scan.
type ScanError struct {
	Index int
	Name  string
	Err   error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%v: image %d (%s): %v", ErrRecognition, e.Index, e.Name, e.Err)
}

func (e *ScanError) Unwrap() []error {
	return []error{ErrRecognition, e.Err}
}

// Aggregator turns an ordered batch of images into one block of text.
type Aggregator struct {
	capability Capability
	log        *slog.Logger
}

// NewAggregator creates an Aggregator. A nil logger uses slog.Default.
func NewAggregator(capability Capability, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{capability: capability, log: log}
}

// Scan recognizes each image in order with a single engine instance and
// joins the results with a blank line. Any failure aborts the batch and no
// partial text is returned.
func (a *Aggregator) Scan(ctx context.Context, images []capture.PendingImage) (string, error) {
	if len(images) == 0 {
		return "", ErrNoImages
	}

	engine, err := a.capability.Initialize(ctx)
	if err != nil {
		return "", fmt.Errorf("initializing OCR engine: %w", err)
	}
	defer func() {
		if err := engine.Release(); err != nil {
			a.log.Warn("Failed to release OCR engine", "error", err)
		}
	}()

	parts := make([]string, 0, len(images))
	for _, img := range images {
		text, err := engine.Recognize(ctx, img)
		if err != nil {
			a.log.Error("Failed to recognize image",
				"name", img.Name,
				"index", img.Index,
				"error", err,
			)
			return "", &ScanError{Index: img.Index, Name: img.Name, Err: err}
		}
		parts = append(parts, text)
	}

	a.log.Debug("Scan complete", "images", len(images))
	return strings.Join(parts, PageSeparator), nil
}
