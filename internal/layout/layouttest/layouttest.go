// Package layouttest provides an in-memory layout.Provider for tests.
//
// Pages are described by their text lines and background fills. Text
// widths are deterministic (half an em per rune) so tests can predict
// placement. Redactions remove every visible run whose center falls inside
// the redacted rectangle, including runs inserted earlier, which makes
// ordering mistakes observable.
package layouttest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"go-certgen/internal/layout"
)

// EmWidth is the advance of every rune, as a fraction of the font size.
const EmWidth = 0.5

// Fill is a solid background rectangle painted by the template.
type Fill struct {
	Rect  layout.Rect
	Color layout.Color
}

// PageSpec describes one template page.
type PageSpec struct {
	Width, Height float64
	Lines         [][]layout.Run
	Fills         []Fill
}

// Provider opens a fresh Document built from Pages on every call to Open,
// ignoring the bytes it is given.
type Provider struct {
	Pages []PageSpec
	Fonts []layout.FontResource
	// RejectFonts lists logical names RegisterFont refuses.
	RejectFonts map[string]bool
	// FailText makes InsertText fail for the given strings.
	FailText map[string]error
	FailImages bool
	OpenErr    error

	mu     sync.Mutex
	opened []*Document
}

// Open implements layout.Provider.
func (p *Provider) Open(data []byte) (layout.Document, error) {
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	if len(data) == 0 {
		return nil, errors.New("layouttest: empty document")
	}
	doc := &Document{provider: p, fonts: map[string]bool{}}
	for _, spec := range p.Pages {
		page := &Page{doc: doc, width: spec.Width, height: spec.Height}
		for _, line := range spec.Lines {
			runs := append([]layout.Run(nil), line...)
			page.lines = append(page.lines, &lineState{runs: runs, visible: allTrue(len(runs))})
		}
		for _, f := range spec.Fills {
			page.paints = append(page.paints, paint{fill: &f})
		}
		doc.pages = append(doc.pages, page)
	}
	p.mu.Lock()
	p.opened = append(p.opened, doc)
	p.mu.Unlock()
	return doc, nil
}

// Opened returns every document opened so far.
func (p *Provider) Opened() []*Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Document(nil), p.opened...)
}

// Document is an in-memory layout.Document.
type Document struct {
	provider *Provider
	pages    []*Page
	fonts    map[string]bool
	closed   bool
}

func (d *Document) PageCount() int { return len(d.pages) }

func (d *Document) Page(index int) (layout.Page, error) {
	if index < 0 || index >= len(d.pages) {
		return nil, fmt.Errorf("layouttest: page %d out of range", index)
	}
	return d.pages[index], nil
}

// Pages exposes the concrete pages for assertions.
func (d *Document) Pages() []*Page { return d.pages }

func (d *Document) Fonts() ([]layout.FontResource, error) {
	return append([]layout.FontResource(nil), d.provider.Fonts...), nil
}

func (d *Document) RegisterFont(name string, program []byte) error {
	if len(program) == 0 {
		return errors.New("layouttest: empty font program")
	}
	if d.provider.RejectFonts[name] {
		return fmt.Errorf("layouttest: font %q rejected", name)
	}
	d.fonts[name] = true
	return nil
}

// Registered reports whether name was registered with this document.
func (d *Document) Registered(name string) bool { return d.fonts[name] }

// Serialize writes the visible text of every page as JSON.
func (d *Document) Serialize(w io.Writer) error {
	if d.closed {
		return errors.New("layouttest: document closed")
	}
	out := make([][]string, len(d.pages))
	for i, p := range d.pages {
		for _, r := range p.visibleRuns() {
			out[i] = append(out[i], r.Text)
		}
	}
	return json.NewEncoder(w).Encode(out)
}

func (d *Document) Close() error {
	d.closed = true
	return nil
}

// Closed reports whether Close was called.
func (d *Document) Closed() bool { return d.closed }

// Text is a recorded InsertText call.
type Text struct {
	Pos   layout.Point
	Text  string
	Font  string
	Size  float64
	Color layout.Color
}

// Image is a recorded InsertImage call.
type Image struct {
	Rect layout.Rect
	Data []byte
}

type lineState struct {
	runs    []layout.Run
	visible []bool
}

type paint struct {
	fill   *Fill
	redact bool
}

// Page is an in-memory layout.Page.
type Page struct {
	doc           *Document
	width, height float64
	lines         []*lineState
	inserted      *lineState
	paints        []paint
	texts         []Text
	images        []Image
	// ops records mutations in order: "redact", "text", "image".
	ops []string
}

func (p *Page) Width() float64  { return p.width }
func (p *Page) Height() float64 { return p.height }

func (p *Page) Layout() ([]layout.Block, error) {
	var blocks []layout.Block
	for _, ls := range append(p.lines, p.inserted) {
		if ls == nil {
			continue
		}
		var runs []layout.Run
		for i, r := range ls.runs {
			if ls.visible[i] {
				runs = append(runs, r)
			}
		}
		if len(runs) > 0 {
			blocks = append(blocks, layout.Block{Lines: []layout.Line{{Runs: runs}}})
		}
	}
	return blocks, nil
}

// SamplePixel returns the topmost fill under the rectangle's top-left
// corner, or white. Text does not contribute; see InkAt.
func (p *Page) SamplePixel(r layout.Rect) (layout.Color, error) {
	pt := layout.Point{X: r.X0, Y: r.Y0}
	for i := len(p.paints) - 1; i >= 0; i-- {
		if f := p.paints[i].fill; f != nil && f.Rect.Contains(pt) {
			return f.Color, nil
		}
	}
	return layout.White, nil
}

// InkAt returns the color of the topmost visible text run covering pt.
func (p *Page) InkAt(pt layout.Point) (layout.Color, bool) {
	runs := p.visibleRuns()
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].BBox.Contains(pt) {
			return runs[i].Color, true
		}
	}
	return layout.Color{}, false
}

func (p *Page) Redact(r layout.Rect, fill layout.Color) error {
	for _, ls := range append(p.lines, p.inserted) {
		if ls == nil {
			continue
		}
		for i, run := range ls.runs {
			if r.Contains(run.BBox.Center()) {
				ls.visible[i] = false
			}
		}
	}
	p.paints = append(p.paints, paint{fill: &Fill{Rect: r, Color: fill}, redact: true})
	p.ops = append(p.ops, "redact")
	return nil
}

func (p *Page) InsertText(pos layout.Point, text, font string, size float64, color layout.Color) error {
	if err := p.doc.provider.FailText[text]; err != nil {
		return err
	}
	w, err := p.TextWidth(text, font, size)
	if err != nil {
		return err
	}
	if p.inserted == nil {
		p.inserted = &lineState{}
	}
	top := pos.Y - size*0.78
	p.inserted.runs = append(p.inserted.runs, layout.Run{
		Text:     text,
		BBox:     layout.Rect{X0: pos.X, Y0: top, X1: pos.X + w, Y1: top + size},
		FontName: font,
		FontSize: size,
		Color:    color,
	})
	p.inserted.visible = append(p.inserted.visible, true)
	p.texts = append(p.texts, Text{Pos: pos, Text: text, Font: font, Size: size, Color: color})
	p.ops = append(p.ops, "text")
	return nil
}

func (p *Page) InsertImage(r layout.Rect, img []byte) error {
	if p.doc.provider.FailImages || len(img) == 0 {
		return errors.New("layouttest: image rejected")
	}
	p.images = append(p.images, Image{Rect: r, Data: img})
	p.ops = append(p.ops, "image")
	return nil
}

func (p *Page) TextWidth(text, font string, size float64) (float64, error) {
	if font != layout.StandardFont && font != layout.StandardBoldFont && !p.doc.fonts[font] {
		return 0, fmt.Errorf("%w: %s", layout.ErrUnknownFont, font)
	}
	return float64(utf8.RuneCountInString(text)) * size * EmWidth, nil
}

// Texts returns the recorded InsertText calls.
func (p *Page) Texts() []Text { return p.texts }

// Images returns the recorded InsertImage calls.
func (p *Page) Images() []Image { return p.images }

// Ops returns the mutation log.
func (p *Page) Ops() []string { return p.ops }

// Redactions returns the rectangles and fills of every Redact call.
func (p *Page) Redactions() []Fill {
	var out []Fill
	for _, pt := range p.paints {
		if pt.redact {
			out = append(out, *pt.fill)
		}
	}
	return out
}

func (p *Page) visibleRuns() []layout.Run {
	blocks, _ := p.Layout()
	return layout.Runs(blocks)
}

// NewRun builds a run whose box follows the provider's width rule.
func NewRun(text string, x0, y0, size float64, font string, color layout.Color) layout.Run {
	w := float64(utf8.RuneCountInString(text)) * size * EmWidth
	return layout.Run{
		Text:     text,
		BBox:     layout.Rect{X0: x0, Y0: y0, X1: x0 + w, Y1: y0 + size},
		FontName: font,
		FontSize: size,
		Color:    color,
	}
}

func allTrue(n int) []bool {
	v := make([]bool, n)
	for i := range v {
		v[i] = true
	}
	return v
}
