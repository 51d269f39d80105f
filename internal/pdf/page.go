package pdf

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"go-certgen/internal/layout"

	"github.com/jung-kurt/gofpdf"
	"github.com/tsawler/tabula/core"
	"github.com/tsawler/tabula/pages"
	"go.uber.org/zap"
)

// Page is one page of an open template.
type Page struct {
	doc   *Document
	index int
	box   [4]float64
	src   *pages.Page

	content  *pageContent
	parseErr error
	// mutations share one sequence with the parsed content so later
	// redactions hide earlier text.
	redactions []paint
	inserted   []glyphRun
	seq        int
}

func (p *Page) Width() float64  { return p.box[2] - p.box[0] }
func (p *Page) Height() float64 { return p.box[3] - p.box[1] }

func (p *Page) parse() (*pageContent, error) {
	if p.content != nil || p.parseErr != nil {
		return p.content, p.parseErr
	}
	if p.doc.closed {
		return nil, ErrClosed
	}

	w := newWalker(p.doc, p.box)
	resources, err := p.src.Resources()
	if err != nil {
		resources = core.Dict{}
	}
	streams, err := p.src.Contents()
	if err != nil {
		p.parseErr = fmt.Errorf("error reading page content: %w", err)
		return nil, p.parseErr
	}
	var data []byte
	for _, obj := range streams {
		s, ok := obj.(*core.Stream)
		if !ok {
			continue
		}
		decoded, err := s.Decode()
		if err != nil {
			p.doc.logger.Debug("content stream skipped", zap.Int("page", p.index), zap.Error(err))
			continue
		}
		data = append(data, decoded...)
		data = append(data, '\n')
	}
	ops, err := parseContent(data)
	if err != nil {
		p.parseErr = fmt.Errorf("error parsing page content: %w", err)
		return nil, p.parseErr
	}
	w.walk(ops, resources)

	p.content = w.out
	p.seq = w.seq
	return p.content, nil
}

// Layout returns the visible text of the page, including text inserted
// since the document was opened.
func (p *Page) Layout() ([]layout.Block, error) {
	content, err := p.parse()
	if err != nil {
		return nil, err
	}
	var runs []glyphRun
	for _, r := range append(content.visible(), p.inserted...) {
		if !p.redacted(r) {
			runs = append(runs, r)
		}
	}
	return blocks(runs), nil
}

func (p *Page) redacted(r glyphRun) bool {
	center := r.BBox.Center()
	for _, red := range p.redactions {
		if red.seq > r.seq && red.rect.Contains(center) {
			return true
		}
	}
	return false
}

// SamplePixel returns the color painted at the center of r. Redactions and
// solid fills are exact; images are sampled when tabula can decode them.
// Anything else reads as white paper.
func (p *Page) SamplePixel(r layout.Rect) (layout.Color, error) {
	content, err := p.parse()
	if err != nil {
		return layout.Color{}, err
	}
	c := r.Center()
	for i := len(p.redactions) - 1; i >= 0; i-- {
		if p.redactions[i].rect.Contains(c) {
			return p.redactions[i].color, nil
		}
	}
	for i := len(content.paints) - 1; i >= 0; i-- {
		pt := content.paints[i]
		if !pt.rect.Contains(c) {
			continue
		}
		if pt.image == nil {
			return pt.color, nil
		}
		if color, ok := pt.image.at(c.X+p.box[0], p.box[3]-c.Y); ok {
			return color, nil
		}
	}
	return layout.White, nil
}

// Redact paints r with fill over the imported template. The covered glyphs
// stay in the template's content stream, so the output's text layer still
// holds them; Layout of the re-parsed output hides them.
func (p *Page) Redact(r layout.Rect, fill layout.Color) error {
	out, err := p.mutable()
	if err != nil {
		return err
	}
	out.SetFillColor(channel(fill.R), channel(fill.G), channel(fill.B))
	out.Rect(r.X0, r.Y0, r.Width(), r.Height(), "F")
	if out.Err() {
		err := out.Error()
		out.ClearError()
		return fmt.Errorf("error redacting: %w", err)
	}
	p.seq++
	p.redactions = append(p.redactions, paint{rect: r, color: fill, seq: p.seq})
	return nil
}

// InsertText draws text with its baseline at pos.
func (p *Page) InsertText(pos layout.Point, text, font string, size float64, color layout.Color) (err error) {
	out, err := p.mutable()
	if err != nil {
		return err
	}
	family, style, builtin, err := p.doc.fontFor(font)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error inserting text: %v", r)
		}
	}()

	s := text
	if builtin {
		s = p.doc.tr(text)
	}
	out.SetFont(family, style, size)
	out.SetTextColor(channel(color.R), channel(color.G), channel(color.B))
	width := out.GetStringWidth(s)
	out.Text(pos.X, pos.Y, s)
	if out.Err() {
		err := out.Error()
		out.ClearError()
		return fmt.Errorf("error inserting text: %w", err)
	}

	p.seq++
	p.inserted = append(p.inserted, glyphRun{
		Run: layout.Run{
			Text: text,
			BBox: layout.Rect{
				X0: pos.X,
				Y0: pos.Y - defaultAscent*size,
				X1: pos.X + width,
				Y1: pos.Y - defaultDescent*size,
			},
			FontName: font,
			FontSize: size,
			Color:    color,
		},
		baseline: pos.Y,
		block:    -p.seq,
		seq:      p.seq,
	})
	return nil
}

// InsertImage draws a PNG, JPEG or GIF image stretched to r.
func (p *Page) InsertImage(r layout.Rect, img []byte) (err error) {
	out, err := p.mutable()
	if err != nil {
		return err
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return fmt.Errorf("error reading image: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error inserting image: %v", r)
		}
	}()

	p.doc.images++
	name := fmt.Sprintf("overlay%d", p.doc.images)
	opts := gofpdf.ImageOptions{ImageType: strings.ToUpper(format)}
	out.RegisterImageOptionsReader(name, opts, bytes.NewReader(img))
	out.ImageOptions(name, r.X0, r.Y0, r.Width(), r.Height(), false, opts, 0, "")
	if out.Err() {
		err := out.Error()
		out.ClearError()
		return fmt.Errorf("error inserting image: %w", err)
	}
	return nil
}

func (p *Page) TextWidth(text, font string, size float64) (w float64, err error) {
	out, err := p.doc.writer()
	if err != nil {
		return 0, err
	}
	family, style, builtin, err := p.doc.fontFor(font)
	if err != nil {
		return 0, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error measuring text: %v", r)
		}
	}()
	if builtin {
		text = p.doc.tr(text)
	}
	out.SetFont(family, style, size)
	w = out.GetStringWidth(text)
	if out.Err() {
		err := out.Error()
		out.ClearError()
		return 0, fmt.Errorf("error measuring text: %w", err)
	}
	return w, nil
}

func (p *Page) mutable() (*gofpdf.Fpdf, error) {
	if p.index != 0 {
		return nil, ErrReadOnlyPage
	}
	if _, err := p.parse(); err != nil {
		return nil, err
	}
	return p.doc.writer()
}

func channel(v float64) int {
	return int(math.Round(math.Max(0, math.Min(1, v)) * 255))
}
