// Package layout defines the document layout capability the certificate
// pipeline is written against.
//
// A Provider parses template bytes into a Document. Each Page exposes its
// positioned text runs grouped into blocks and lines, and accepts the three
// mutations the pipeline needs: redact a region with a solid fill, insert
// text, insert an image. All coordinates are in points with the origin at
// the top-left corner of the page and y growing downwards.
package layout

import (
	"errors"
	"io"
	"math"
)

// Standard fonts every provider must be able to measure and render.
const (
	StandardFont     = "Helvetica"
	StandardBoldFont = "Helvetica-Bold"
)

// ErrUnknownFont is returned when a font identifier was never registered
// with the document and is not a standard font.
var ErrUnknownFont = errors.New("layout: unknown font")

// Rect is an axis-aligned rectangle in page coordinates.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point {
	return Point{X: (r.X0 + r.X1) / 2, Y: (r.Y0 + r.Y1) / 2}
}

// Union returns the smallest rectangle containing both r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		X0: math.Min(r.X0, o.X0),
		Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
	}
}

// Expand grows the rectangle by d points on every side.
func (r Rect) Expand(d float64) Rect {
	return Rect{X0: r.X0 - d, Y0: r.Y0 - d, X1: r.X1 + d, Y1: r.Y1 + d}
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X0 && p.X <= r.X1 && p.Y >= r.Y0 && p.Y <= r.Y1
}

// Point is a position in page coordinates.
type Point struct {
	X, Y float64
}

// Color holds three normalized RGB channels in [0,1].
type Color struct {
	R, G, B float64
}

var (
	White = Color{R: 1, G: 1, B: 1}
	Black = Color{}
)

// Run is a contiguous span of text sharing one font, size and color.
type Run struct {
	Text     string
	BBox     Rect
	FontName string
	FontSize float64
	Color    Color
}

// Line is a sequence of runs sharing a baseline, in reading order.
type Line struct {
	Runs []Run
}

// Block groups lines the provider considers one unit of text.
type Block struct {
	Lines []Line
}

// FontResource is a font referenced by the document. ID is unique per
// underlying font object so callers can deduplicate shared resources.
// Program is nil when the font is not embedded.
type FontResource struct {
	ID       string
	BaseFont string
	Program  []byte
}

// Provider opens template bytes as a Document.
type Provider interface {
	Open(data []byte) (Document, error)
}

// Document is a parsed template. It must be closed by the caller on every
// exit path.
type Document interface {
	PageCount() int
	Page(index int) (Page, error)
	// Fonts lists every font resource referenced anywhere in the document.
	Fonts() ([]FontResource, error)
	// RegisterFont makes a font program available to InsertText and
	// TextWidth under name.
	RegisterFont(name string, program []byte) error
	Serialize(w io.Writer) error
	Close() error
}

// Page is one page of a Document. Layout reflects redactions and
// insertions already applied to the page.
type Page interface {
	Width() float64
	Height() float64
	Layout() ([]Block, error)
	SamplePixel(r Rect) (Color, error)
	Redact(r Rect, fill Color) error
	InsertText(pos Point, text, font string, size float64, color Color) error
	InsertImage(r Rect, img []byte) error
	TextWidth(text, font string, size float64) (float64, error)
}

// Runs flattens a layout tree into its runs in scan order.
func Runs(blocks []Block) []Run {
	var runs []Run
	for _, b := range blocks {
		for _, l := range b.Lines {
			runs = append(runs, l.Runs...)
		}
	}
	return runs
}
