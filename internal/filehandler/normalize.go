package filehandler

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

// OutputMIMEType is the MIME type of every normalized image.
const OutputMIMEType = "image/jpeg"

// DefaultJPEGQuality is used when no quality is configured.
const DefaultJPEGQuality = 90

// maxDecodePixels rejects images whose header declares more pixels than
// this before any pixel data is allocated.
const maxDecodePixels = 178_956_970

// ErrEmptyImage is wrapped by DecodeError for zero-length input.
var ErrEmptyImage = errors.New("image data is empty")

// DecodeError reports that the input bytes are not a decodable image.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("decode %s image: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Options controls normalization.
type Options struct {
	// Quality is the JPEG quality, clamped to [1, 100].
	Quality int
	// MaxDimension bounds the longer edge. Zero keeps the original size.
	MaxDimension int
}

// NormalizedImage is the opaque JPEG produced from a source image.
type NormalizedImage struct {
	Data         []byte
	Quality      int
	Width        int
	Height       int
	SourceFormat string
	// Flattened reports whether transparency was composited onto white.
	Flattened bool
}

// MIMEType is always image/jpeg.
func (n *NormalizedImage) MIMEType() string {
	return OutputMIMEType
}

// Normalize re-encodes raw as an opaque JPEG at the given quality.
func Normalize(raw []byte, quality int) (*NormalizedImage, error) {
	return NormalizeWith(raw, Options{Quality: quality})
}

// NormalizeWith decodes raw (first frame only for animated formats),
// composites any transparency over white, optionally downscales and
// re-encodes as baseline JPEG. It never panics; decoder panics surface as
// DecodeError.
func NormalizeWith(raw []byte, opts Options) (out *NormalizedImage, err error) {
	if len(raw) == 0 {
		return nil, &DecodeError{Err: ErrEmptyImage}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{Format: format, Err: fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)}
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxDecodePixels {
		return nil, &DecodeError{Format: format, Err: fmt.Errorf("image too large: %dx%d", cfg.Width, cfg.Height)}
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &DecodeError{Format: format, Err: fmt.Errorf("decoder panic: %v", r)}
		}
	}()

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}

	flattened := false
	if !isOpaque(img) {
		img = flattenOnWhite(img)
		flattened = true
	}

	if opts.MaxDimension > 0 {
		b := img.Bounds()
		if b.Dx() > opts.MaxDimension || b.Dy() > opts.MaxDimension {
			img = imaging.Fit(img, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)
		}
	}

	quality := clampQuality(opts.Quality)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode JPEG: %w", err)
	}

	b := img.Bounds()
	log.Debug().
		Str("source_format", format).
		Int("orig_width", cfg.Width).
		Int("orig_height", cfg.Height).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Bool("flattened", flattened).
		Int("quality", quality).
		Int("input_size", len(raw)).
		Int("output_size", buf.Len()).
		Msg("Image normalized")

	return &NormalizedImage{
		Data:         buf.Bytes(),
		Quality:      quality,
		Width:        b.Dx(),
		Height:       b.Dy(),
		SourceFormat: format,
		Flattened:    flattened,
	}, nil
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

// flattenOnWhite computes out = fg*alpha + white*(1-alpha) per pixel.
func flattenOnWhite(img image.Image) image.Image {
	src := imaging.Clone(img)
	b := src.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, src, image.Pt(0, 0), 1.0)
}

func clampQuality(q int) int {
	switch {
	case q < 1:
		return 1
	case q > 100:
		return 100
	default:
		return q
	}
}
