package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

const (
	DefaultMaxBytes     = 2 << 20
	DefaultMaxDimension = 1920

	// images are not shrunk below this while chasing the byte budget
	minDimension = 256
)

var jpegQualities = []int{90, 80, 70, 60, 50, 40}

// Normalizer compresses and resizes captured images so they stay within a
// byte budget and a maximum longest side.
type Normalizer struct {
	maxBytes     int
	maxDimension int
	log          *slog.Logger
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithMaxBytes overrides the byte budget.
func WithMaxBytes(n int) NormalizerOption {
	return func(nz *Normalizer) { nz.maxBytes = n }
}

// WithMaxDimension overrides the longest-side limit.
func WithMaxDimension(px int) NormalizerOption {
	return func(nz *Normalizer) { nz.maxDimension = px }
}

// WithLogger sets the logger used for per-image failures.
func WithLogger(log *slog.Logger) NormalizerOption {
	return func(nz *Normalizer) { nz.log = log }
}

// NewNormalizer creates a Normalizer with a 2 MiB / 1920 px budget.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		maxBytes:     DefaultMaxBytes,
		maxDimension: DefaultMaxDimension,
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize bakes EXIF orientation into the pixels, downsizes the image to
// the dimension limit and re-encodes it under the byte budget. PNG stays
// PNG when it fits; everything else is emitted as JPEG.
func (n *Normalizer) Normalize(img PendingImage) (PendingImage, error) {
	src, err := decodeImage(img.Data, img.ContentType)
	if err != nil {
		return PendingImage{}, err
	}
	src = fitWithin(src, n.maxDimension)

	if img.ContentType == "image/png" {
		data, err := encodeImage(src, imaging.PNG, 0)
		if err != nil {
			return PendingImage{}, err
		}
		if len(data) <= n.maxBytes {
			return img.withPayload(data, "image/png"), nil
		}
	}

	for {
		for _, q := range jpegQualities {
			data, err := encodeImage(src, imaging.JPEG, q)
			if err != nil {
				return PendingImage{}, err
			}
			if len(data) <= n.maxBytes {
				return img.withPayload(data, "image/jpeg"), nil
			}
		}

		next := longestSide(src.Bounds()) * 3 / 4
		if next < minDimension {
			return PendingImage{}, ErrOverBudget
		}
		src = fitWithin(src, next)
	}
}

// NormalizeAll normalizes images in capture order. Images that fail are
// reported in the result and do not discard the ones already processed.
func (n *Normalizer) NormalizeAll(images []PendingImage) (BatchResult, error) {
	ordered := slices.Clone(images)
	slices.SortStableFunc(ordered, func(a, b PendingImage) int { return a.Index - b.Index })

	var (
		result BatchResult
		errs   []error
	)
	for _, img := range ordered {
		out, err := n.Normalize(img)
		if err != nil {
			n.log.Error("Failed to normalize image",
				"name", img.Name,
				"index", img.Index,
				"content_type", img.ContentType,
				"size", len(img.Data),
				"error", err,
			)
			imgErr := &ImageError{Index: img.Index, Name: img.Name, Err: err}
			result.Failed = append(result.Failed, imgErr)
			errs = append(errs, imgErr)
			continue
		}
		result.Images = append(result.Images, out)
	}

	if len(errs) > 0 {
		return result, fmt.Errorf("%w: %d of %d failed: %w", ErrNormalize, len(errs), len(images), errors.Join(errs...))
	}
	return result, nil
}

// Rotate90 rotates an image 90 degrees clockwise, keeping its name, index
// and media type. Formats that cannot be re-encoded become PNG.
func Rotate90(img PendingImage) (PendingImage, error) {
	src, err := decodeImage(img.Data, img.ContentType)
	if err != nil {
		return PendingImage{}, err
	}
	rotated := imaging.Rotate270(src)

	format, contentType := imaging.PNG, "image/png"
	switch img.ContentType {
	case "image/jpeg", "image/jpg":
		format, contentType = imaging.JPEG, img.ContentType
	case "image/gif":
		format, contentType = imaging.GIF, img.ContentType
	}

	data, err := encodeImage(rotated, format, 92)
	if err != nil {
		return PendingImage{}, err
	}
	return img.withPayload(data, contentType), nil
}

func encodeImage(img image.Image, format imaging.Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var opts []imaging.EncodeOption
	if format == imaging.JPEG {
		opts = append(opts, imaging.JPEGQuality(quality))
	}
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// fitWithin scales img down so its longest side is at most limit. It never upscales.
func fitWithin(img image.Image, limit int) image.Image {
	b := img.Bounds()
	longest := longestSide(b)
	if limit <= 0 || longest <= limit {
		return img
	}

	w := max(1, b.Dx()*limit/longest)
	h := max(1, b.Dy()*limit/longest)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func longestSide(r image.Rectangle) int {
	return max(r.Dx(), r.Dy())
}
