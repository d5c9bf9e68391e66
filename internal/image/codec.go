// Package image drives the raster codec: it measures originals, derives the
// breakpoint plan, and materializes one encoded variant file per plan entry.
package image

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// Codec is the external resampling/encoding collaborator. Implementations
// must preserve aspect ratio when resizing to a target width.
type Codec interface {
	// ReadWidth reports the pixel width of an encoded raster.
	ReadWidth(data []byte) (int, error)
	// ResizeEncode resizes data to targetWidth (aspect preserved) and
	// re-encodes it in the format implied by ext ("jpg", "jpeg", "png").
	ResizeEncode(data []byte, targetWidth int, ext string) ([]byte, error)
}

// DefaultQuality is the fixed JPEG quality used for every variant.
const DefaultQuality = 82

// ImagingCodec implements Codec on github.com/disintegration/imaging using
// Lanczos resampling at a fixed quality.
type ImagingCodec struct {
	Quality int
}

// NewImagingCodec returns a codec encoding JPEG output at quality; values
// outside 1..100 fall back to DefaultQuality.
func NewImagingCodec(quality int) *ImagingCodec {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &ImagingCodec{Quality: quality}
}

// ReadWidth implements Codec.
func (c *ImagingCodec) ReadWidth(data []byte) (int, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode raster: %w", err)
	}
	return img.Bounds().Dx(), nil
}

// ResizeEncode implements Codec.
func (c *ImagingCodec) ResizeEncode(data []byte, targetWidth int, ext string) ([]byte, error) {
	if targetWidth <= 0 {
		return nil, fmt.Errorf("target width must be positive, got %d", targetWidth)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode raster: %w", err)
	}

	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return nil, fmt.Errorf("unsupported raster format %q: %w", ext, err)
	}

	resized := img
	if img.Bounds().Dx() != targetWidth {
		resized = imaging.Resize(img, targetWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(c.Quality)); err != nil {
		return nil, fmt.Errorf("encode %s at %dw: %w", ext, targetWidth, err)
	}
	return buf.Bytes(), nil
}
