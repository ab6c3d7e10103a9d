// Package imaging decodes user uploads and re-encodes them as PNG for
// transport inside chat-completions requests.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	_ "image/jpeg" // Register JPEG decoder

	"golang.org/x/image/draw"
)

// Format and MIME constants for accepted uploads.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"

	MIMETypePNG = "image/png"
)

var (
	// ErrEmptyImage is returned when no image bytes are supplied.
	ErrEmptyImage = errors.New("empty image data")

	// ErrUnsupportedFormat is returned for anything other than PNG or JPEG.
	ErrUnsupportedFormat = errors.New("unsupported image format: expected png, jpg or jpeg")

	// ErrInvalidDataURI is returned by ParseDataURI for malformed URIs.
	ErrInvalidDataURI = errors.New("invalid data URI")

	// ErrImageTooLarge is returned when the header declares more pixels than
	// the decode limit allows.
	ErrImageTooLarge = errors.New("image has too many pixels")
)

// DefaultMaxPixels bounds decoding when Limits.MaxPixels is zero.
const DefaultMaxPixels = 40_000_000

// Limits bounds the work done on an upload.
type Limits struct {
	// MaxDimension caps the longest side after resizing. Zero keeps the original size.
	MaxDimension int

	// MaxPixels rejects images whose declared width*height exceeds it.
	// Zero uses DefaultMaxPixels.
	MaxPixels int
}

func (l Limits) maxPixels() int64 {
	if l.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return int64(l.MaxPixels)
}

// Decode decodes PNG or JPEG data within DefaultMaxPixels and reports the
// detected format.
func Decode(data []byte) (image.Image, string, error) {
	return decode(data, Limits{})
}

func decode(data []byte, limits Limits) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", ErrUnsupportedFormat
		}
		return nil, "", fmt.Errorf("decode image header: %w", err)
	}
	if format != FormatPNG && format != FormatJPEG {
		return nil, "", ErrUnsupportedFormat
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > limits.maxPixels() {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d", ErrImageTooLarge, cfg.Width, cfg.Height, limits.maxPixels())
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	return img, format, nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Normalize decodes an upload within limits, shrinks it so that its longest
// side is at most limits.MaxDimension and re-encodes it as PNG.
func Normalize(data []byte, limits Limits) ([]byte, error) {
	img, _, err := decode(data, limits)
	if err != nil {
		return nil, err
	}

	if limits.MaxDimension > 0 {
		img = fit(img, limits.MaxDimension)
	}

	return EncodePNG(img)
}

// fit scales img down, preserving aspect ratio, so it fits in a maxDim square.
func fit(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	targetW, targetH := maxDim, maxDim
	if w >= h {
		targetH = max(1, h*maxDim/w)
	} else {
		targetW = max(1, w*maxDim/h)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, targetW, targetH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// DataURI wraps PNG bytes in a base64 data URI.
func DataURI(pngData []byte) string {
	return "data:" + MIMETypePNG + ";base64," + base64.StdEncoding.EncodeToString(pngData)
}

// ParseDataURI splits a base64 data URI into its MIME type and payload.
func ParseDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}

	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}

	return mime, data, nil
}
