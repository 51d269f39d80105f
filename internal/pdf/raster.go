package pdf

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"sync"

	"go-certgen/internal/layout"

	"github.com/tsawler/tabula/core"
	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/reader"
)

// raster is an image XObject placed on a page. Pixels are decoded on first
// sample.
type raster struct {
	doc    *Document
	stream *core.Stream
	ctm    model.Matrix

	once sync.Once
	img  image.Image
}

func newRaster(doc *Document, stream *core.Stream, ctm model.Matrix) *raster {
	return &raster{doc: doc, stream: stream, ctm: ctm}
}

// at returns the color of the image at user space point (x, y).
func (r *raster) at(x, y float64) (layout.Color, bool) {
	m := r.ctm
	det := m[0]*m[3] - m[1]*m[2]
	if det == 0 {
		return layout.Color{}, false
	}
	dx, dy := x-m[4], y-m[5]
	u := (m[3]*dx - m[2]*dy) / det
	v := (m[0]*dy - m[1]*dx) / det
	if u < 0 || u > 1 || v < 0 || v > 1 {
		return layout.Color{}, false
	}

	r.once.Do(func() { r.img = r.decode() })
	if r.img == nil {
		return layout.Color{}, false
	}
	b := r.img.Bounds()
	px := b.Min.X + clampIndex(int(u*float64(b.Dx())), b.Dx())
	py := b.Min.Y + clampIndex(int((1-v)*float64(b.Dy())), b.Dy())
	cr, cg, cb, _ := r.img.At(px, py).RGBA()
	return layout.Color{R: float64(cr) / 0xffff, G: float64(cg) / 0xffff, B: float64(cb) / 0xffff}, true
}

func (r *raster) decode() image.Image {
	dict := r.stream.Dict
	if mask, ok := dict.GetBool("ImageMask"); ok && bool(mask) {
		return nil
	}
	if filterName(dict.Get("Filter")) == "DCTDecode" {
		img, err := jpeg.Decode(bytes.NewReader(r.stream.Data))
		if err != nil {
			return nil
		}
		return img
	}

	width, _ := dict.GetInt("Width")
	height, _ := dict.GetInt("Height")
	bpc := 8
	if n, ok := dict.GetInt("BitsPerComponent"); ok {
		bpc = int(n)
	}
	data, err := r.stream.Decode()
	if err != nil || width <= 0 || height <= 0 {
		return nil
	}
	pi := reader.PageImage{
		Width:            int(width),
		Height:           int(height),
		ColorSpace:       r.doc.colorSpace(dict.Get("ColorSpace")),
		BitsPerComponent: bpc,
		Data:             data,
	}
	encoded, err := pi.ToPNG()
	if err != nil {
		return nil
	}
	img, err := png.Decode(bytes.NewReader(encoded))
	if err != nil {
		return nil
	}
	return img
}

// colorSpace names a color space the way tabula's image decoder expects,
// treating ICC profiles by their component count.
func (d *Document) colorSpace(obj core.Object) string {
	resolved, err := d.reader.Resolve(obj)
	if err != nil || resolved == nil {
		return "DeviceGray"
	}
	switch cs := resolved.(type) {
	case core.Name:
		return string(cs)
	case core.Array:
		if len(cs) == 0 {
			return "DeviceGray"
		}
		family := nameOf(cs[0])
		if family != "ICCBased" || len(cs) < 2 {
			return family
		}
		profile, err := d.reader.Resolve(cs[1])
		if err != nil {
			return "DeviceGray"
		}
		if s, ok := profile.(*core.Stream); ok {
			switch n, _ := s.Dict.GetInt("N"); n {
			case 3:
				return "DeviceRGB"
			case 4:
				return "DeviceCMYK"
			}
		}
	}
	return "DeviceGray"
}

func filterName(obj core.Object) string {
	switch f := obj.(type) {
	case core.Name:
		return string(f)
	case core.Array:
		if len(f) > 0 {
			return nameOf(f[len(f)-1])
		}
	}
	return ""
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
