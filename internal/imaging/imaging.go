// Package imaging normalizes uploaded images before they are placed on a
// certificate.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// MaxWidth bounds the pixel width of normalized images.
const MaxWidth = 600

// ErrNotImage is returned for data no registered decoder understands.
var ErrNotImage = errors.New("unsupported image format")

// Image is a decoded image re-encoded as PNG.
type Image struct {
	PNG    []byte
	Width  int
	Height int
	// Format is the source format reported by the decoder.
	Format string
}

// Normalize decodes PNG, JPEG, GIF, BMP or WebP data, downscales it to at
// most maxWidth pixels wide keeping its proportions, and re-encodes it as
// PNG. maxWidth <= 0 disables scaling.
func Normalize(data []byte, maxWidth int) (*Image, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrNotImage)
	}

	out := src
	if maxWidth > 0 && b.Dx() > maxWidth {
		h := b.Dy() * maxWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		dst := image.NewNRGBA(image.Rect(0, 0, maxWidth, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, err
	}
	ob := out.Bounds()
	return &Image{PNG: buf.Bytes(), Width: ob.Dx(), Height: ob.Dy(), Format: format}, nil
}
