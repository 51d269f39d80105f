package pdf

import (
	"math"
	"sync"

	"go-certgen/internal/layout"

	"github.com/tsawler/tabula/contentstream"
	"github.com/tsawler/tabula/core"
	"github.com/tsawler/tabula/graphicsstate"
	"github.com/tsawler/tabula/model"
)

const maxFormDepth = 4

// tabula's content parser keeps its operand stack in a package variable.
var parseMu sync.Mutex

func parseContent(data []byte) ([]contentstream.Operation, error) {
	parseMu.Lock()
	defer parseMu.Unlock()
	return contentstream.NewParser(data).Parse()
}

// glyphRun is a shown string positioned on the page. seq orders it among
// everything else painted on the page.
type glyphRun struct {
	layout.Run
	baseline float64
	block    int
	seq      int
}

// paint is an opaque area drawn on the page: a filled path or an image.
type paint struct {
	rect  layout.Rect
	color layout.Color
	image *raster
	seq   int
}

type pageContent struct {
	runs   []glyphRun
	paints []paint
}

// walker interprets a content stream far enough to recover positioned text,
// solid fills and image placements.
type walker struct {
	doc   *Document
	box   [4]float64
	gs    *graphicsstate.GraphicsState
	font  *fontInfo
	path  []layout.Rect
	block int
	seq   int
	depth int
	out   *pageContent
}

func newWalker(doc *Document, box [4]float64) *walker {
	return &walker{
		doc: doc,
		box: box,
		gs:  graphicsstate.NewGraphicsState(),
		out: &pageContent{},
	}
}

func (w *walker) next() int {
	w.seq++
	return w.seq
}

func (w *walker) walk(ops []contentstream.Operation, resources core.Dict) {
	fonts := make(map[string]*fontInfo)
	ts := &w.gs.Text

	for _, op := range ops {
		args := op.Operands
		switch op.Operator {
		case "q":
			w.gs.Save()
		case "Q":
			_ = w.gs.Restore()
		case "cm":
			if m, ok := matrix(args); ok {
				w.gs.CTM = m.Multiply(w.gs.CTM)
			}

		case "BT":
			w.block++
			ts.TextMatrix = model.Identity()
			ts.TextLineMatrix = model.Identity()
		case "ET":
		case "Tf":
			if len(args) == 2 {
				name := nameOf(args[0])
				size, _ := number(args[1])
				ts.FontName = name
				ts.FontSize = size
				w.font = w.resolveFont(resources, name, fonts)
			}
		case "Tc":
			ts.CharSpacing = firstNumber(args)
		case "Tw":
			ts.WordSpacing = firstNumber(args)
		case "Tz":
			ts.HorizontalScaling = firstNumber(args)
		case "TL":
			ts.Leading = firstNumber(args)
		case "Ts":
			ts.Rise = firstNumber(args)
		case "Tr":
			ts.RenderingMode = int(firstNumber(args))
		case "Tm":
			if m, ok := matrix(args); ok {
				ts.TextMatrix = m
				ts.TextLineMatrix = m
			}
		case "Td", "TD":
			if len(args) == 2 {
				tx, _ := number(args[0])
				ty, _ := number(args[1])
				if op.Operator == "TD" {
					ts.Leading = -ty
				}
				w.moveLine(tx, ty)
			}
		case "T*":
			w.moveLine(0, -ts.Leading)
		case "Tj":
			if len(args) == 1 {
				w.show(args[0])
			}
		case "'":
			if len(args) == 1 {
				w.moveLine(0, -ts.Leading)
				w.show(args[0])
			}
		case "\"":
			if len(args) == 3 {
				ts.WordSpacing, _ = number(args[0])
				ts.CharSpacing, _ = number(args[1])
				w.moveLine(0, -ts.Leading)
				w.show(args[2])
			}
		case "TJ":
			if len(args) == 1 {
				w.showArray(args[0])
			}

		case "g":
			if v, ok := numbers(args, 1); ok {
				w.gs.FillColor = [3]float64{v[0], v[0], v[0]}
			}
		case "rg":
			if v, ok := numbers(args, 3); ok {
				w.gs.FillColor = [3]float64{v[0], v[1], v[2]}
			}
		case "k":
			if v, ok := numbers(args, 4); ok {
				w.gs.FillColor = cmyk(v)
			}
		case "sc", "scn":
			switch v, _ := numbers(args, len(args)); len(v) {
			case 1:
				w.gs.FillColor = [3]float64{v[0], v[0], v[0]}
			case 3:
				w.gs.FillColor = [3]float64{v[0], v[1], v[2]}
			case 4:
				w.gs.FillColor = cmyk(v)
			}
		case "cs":
			w.gs.FillColor = [3]float64{}

		case "re":
			if v, ok := numbers(args, 4); ok {
				w.path = append(w.path, w.toPage(v[0], v[1], v[0]+v[2], v[1]+v[3]))
			}
		case "f", "F", "f*", "B", "B*", "b", "b*":
			color := w.fillColor()
			for _, r := range w.path {
				w.out.paints = append(w.out.paints, paint{rect: r, color: color, seq: w.next()})
			}
			w.path = w.path[:0]
		case "n", "S", "s":
			w.path = w.path[:0]

		case "Do":
			if len(args) == 1 {
				w.drawObject(resources, nameOf(args[0]))
			}
		}
	}
}

func (w *walker) moveLine(tx, ty float64) {
	ts := &w.gs.Text
	ts.TextLineMatrix = model.Translate(tx, ty).Multiply(ts.TextLineMatrix)
	ts.TextMatrix = ts.TextLineMatrix
}

func (w *walker) resolveFont(resources core.Dict, name string, cache map[string]*fontInfo) *fontInfo {
	if f, ok := cache[name]; ok {
		return f
	}
	f := standardFontInfo()
	if dict := w.doc.subDict(resources, "Font"); dict != nil {
		if obj := dict.Get(name); obj != nil {
			f = w.doc.loadFont(obj)
		}
	}
	cache[name] = f
	return f
}

func (w *walker) showArray(obj core.Object) {
	arr, ok := obj.(core.Array)
	if !ok {
		return
	}
	ts := &w.gs.Text
	for _, item := range arr {
		if n, ok := number(item); ok {
			tx := -n / 1000 * ts.FontSize * ts.HorizontalScaling / 100
			ts.TextMatrix = model.Translate(tx, 0).Multiply(ts.TextMatrix)
			continue
		}
		w.show(item)
	}
}

// show positions one string and advances the text matrix past it.
func (w *walker) show(obj core.Object) {
	s, ok := obj.(core.String)
	if !ok {
		return
	}
	if w.font == nil {
		w.font = standardFontInfo()
	}
	data := []byte(s)
	f := w.font
	ts := &w.gs.Text
	fs := ts.FontSize

	step := 1
	if f.twoByte {
		step = 2
	}
	var adv float64
	for i := 0; i+step <= len(data); i += step {
		code := int(data[i])
		if step == 2 {
			code = code<<8 | int(data[i+1])
		}
		adv += f.width(code)/1000*fs + ts.CharSpacing
		if step == 1 && code == ' ' {
			adv += ts.WordSpacing
		}
	}
	adv *= ts.HorizontalScaling / 100

	if text := f.decode(data); text != "" {
		w.emit(text, adv)
	}
	ts.TextMatrix = model.Translate(adv, 0).Multiply(ts.TextMatrix)
}

func (w *walker) emit(text string, adv float64) {
	ts := &w.gs.Text
	f := w.font
	fs := ts.FontSize
	m := ts.TextMatrix.Multiply(w.gs.CTM)

	lo := ts.Rise + f.descent*fs
	hi := ts.Rise + f.ascent*fs
	x0, y0, x1, y1 := math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)
	for _, p := range []model.Point{{X: 0, Y: lo}, {X: adv, Y: lo}, {X: 0, Y: hi}, {X: adv, Y: hi}} {
		q := m.Transform(p)
		x0, x1 = math.Min(x0, q.X), math.Max(x1, q.X)
		y0, y1 = math.Min(y0, q.Y), math.Max(y1, q.Y)
	}
	origin := m.Transform(model.Point{X: 0, Y: ts.Rise})

	w.out.runs = append(w.out.runs, glyphRun{
		Run: layout.Run{
			Text:     text,
			BBox:     w.toPage(x0, y0, x1, y1),
			FontName: f.name,
			FontSize: fs * math.Hypot(m[2], m[3]),
			Color:    w.fillColor(),
		},
		baseline: w.box[3] - origin.Y,
		block:    w.block,
		seq:      w.next(),
	})
}

func (w *walker) drawObject(resources core.Dict, name string) {
	xobjects := w.doc.subDict(resources, "XObject")
	if xobjects == nil {
		return
	}
	obj, err := w.doc.reader.Resolve(xobjects.Get(name))
	if err != nil {
		return
	}
	stream, ok := obj.(*core.Stream)
	if !ok {
		return
	}

	switch nameOf(stream.Dict.Get("Subtype")) {
	case "Image":
		ctm := w.gs.CTM
		var bounds layout.Rect
		for i, p := range []model.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}} {
			q := ctm.Transform(p)
			r := w.toPage(q.X, q.Y, q.X, q.Y)
			if i == 0 {
				bounds = r
			} else {
				bounds = bounds.Union(r)
			}
		}
		w.out.paints = append(w.out.paints, paint{
			rect:  bounds,
			image: newRaster(w.doc, stream, ctm),
			seq:   w.next(),
		})

	case "Form":
		if w.depth >= maxFormDepth {
			return
		}
		data, err := stream.Decode()
		if err != nil {
			return
		}
		ops, err := parseContent(data)
		if err != nil {
			return
		}
		res := resources
		if r := w.doc.dictOf(stream.Dict.Get("Resources")); r != nil {
			res = r
		}

		w.gs.Save()
		if m, ok := matrixFrom(stream.Dict.Get("Matrix")); ok {
			w.gs.CTM = m.Multiply(w.gs.CTM)
		}
		font := w.font
		w.depth++
		w.walk(ops, res)
		w.depth--
		w.font = font
		_ = w.gs.Restore()
	}
}

// toPage converts a user space box to top-left page coordinates.
func (w *walker) toPage(x0, y0, x1, y1 float64) layout.Rect {
	return layout.Rect{
		X0: math.Min(x0, x1) - w.box[0],
		Y0: w.box[3] - math.Max(y0, y1),
		X1: math.Max(x0, x1) - w.box[0],
		Y1: w.box[3] - math.Min(y0, y1),
	}
}

func (w *walker) fillColor() layout.Color {
	c := w.gs.FillColor
	return layout.Color{R: c[0], G: c[1], B: c[2]}
}

// visible drops runs whose center a later opaque paint covers.
func (c *pageContent) visible() []glyphRun {
	var out []glyphRun
	for _, r := range c.runs {
		if !c.covered(r) {
			out = append(out, r)
		}
	}
	return out
}

func (c *pageContent) covered(r glyphRun) bool {
	center := r.BBox.Center()
	for _, p := range c.paints {
		if p.seq > r.seq && p.image == nil && p.rect.Contains(center) {
			return true
		}
	}
	return false
}

// blocks groups runs into lines by baseline and into blocks by text object.
func blocks(runs []glyphRun) []layout.Block {
	var out []layout.Block
	for i, r := range runs {
		var prev *glyphRun
		if i > 0 {
			prev = &runs[i-1]
		}
		newLine := prev == nil ||
			math.Abs(r.baseline-prev.baseline) > math.Max(1, r.FontSize*0.2) ||
			r.BBox.X0 < prev.BBox.X0
		if newLine && (prev == nil || r.block != prev.block) {
			out = append(out, layout.Block{})
		}
		b := &out[len(out)-1]
		if newLine {
			b.Lines = append(b.Lines, layout.Line{})
		}
		l := &b.Lines[len(b.Lines)-1]
		l.Runs = append(l.Runs, r.Run)
	}
	return out
}

func firstNumber(args []core.Object) float64 {
	if len(args) == 0 {
		return 0
	}
	n, _ := number(args[0])
	return n
}

func numbers(args []core.Object, n int) ([]float64, bool) {
	if len(args) != n {
		return nil, false
	}
	out := make([]float64, n)
	for i, a := range args {
		v, ok := number(a)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func matrix(args []core.Object) (model.Matrix, bool) {
	v, ok := numbers(args, 6)
	if !ok {
		return model.Matrix{}, false
	}
	return model.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}, true
}

func matrixFrom(obj core.Object) (model.Matrix, bool) {
	arr, ok := obj.(core.Array)
	if !ok {
		return model.Matrix{}, false
	}
	return matrix(arr)
}

func cmyk(v []float64) [3]float64 {
	return [3]float64{
		(1 - v[0]) * (1 - v[3]),
		(1 - v[1]) * (1 - v[3]),
		(1 - v[2]) * (1 - v[3]),
	}
}
