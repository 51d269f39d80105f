package placeholder

import (
	"testing"

	"go-certgen/internal/layout"
	"go-certgen/internal/layout/layouttest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var blue = layout.Color{B: 1}

func open(t *testing.T, p *layouttest.Provider) *layouttest.Document {
	t.Helper()
	doc, err := p.Open([]byte("%PDF-"))
	require.NoError(t, err)
	return doc.(*layouttest.Document)
}

func page(lines ...[]layout.Run) layouttest.PageSpec {
	return layouttest.PageSpec{Width: 600, Height: 400, Lines: lines}
}

func TestExtractFindsMarkerStyle(t *testing.T) {
	p := &layouttest.Provider{Pages: []layouttest.PageSpec{page(
		[]layout.Run{layouttest.NewRun("Dear {{Name}},", 50, 80, 20, "ABCDEF+Lora-Bold", blue)},
	)}}

	res, err := NewExtractor(nil).Extract(open(t, p))
	require.NoError(t, err)

	require.Contains(t, res.Markers, "name")
	m := res.Markers["name"]
	assert.Equal(t, "name", m.Name)
	assert.Equal(t, 0, m.Page)
	assert.Equal(t, 20.0, m.FontSize)
	assert.Equal(t, blue, m.Color)
	assert.True(t, m.Bold)
	assert.Equal(t, "ABCDEF+Lora-Bold", m.OriginalFont)
	assert.Equal(t, layout.StandardBoldFont, m.Font)
}

func TestExtractJoinsSplitRuns(t *testing.T) {
	open1 := layouttest.NewRun("{{", 100, 50, 12, "Helvetica", layout.Black)
	body := layouttest.NewRun("course", 112, 50, 14, "Times-Bold", blue)
	close1 := layouttest.NewRun("}}", 154, 48, 12, "Helvetica", layout.Black)
	p := &layouttest.Provider{Pages: []layouttest.PageSpec{page([]layout.Run{open1, body, close1})}}

	res, err := NewExtractor(nil).Extract(open(t, p))
	require.NoError(t, err)

	m := res.Markers["course"]
	// Style comes from the first overlapping run, the box from all of them.
	assert.Equal(t, 12.0, m.FontSize)
	assert.Equal(t, layout.Black, m.Color)
	assert.False(t, m.Bold)
	assert.Equal(t, open1.BBox.Union(body.BBox).Union(close1.BBox), m.Rect)
}

func TestExtractKeepsFirstOccurrence(t *testing.T) {
	p := &layouttest.Provider{Pages: []layouttest.PageSpec{
		page(
			[]layout.Run{layouttest.NewRun("{{name}}", 10, 10, 12, "Helvetica", layout.Black)},
			[]layout.Run{layouttest.NewRun("{{NAME}}", 10, 100, 30, "Helvetica", blue)},
		),
		page([]layout.Run{layouttest.NewRun("{{name}} {{date}}", 10, 10, 9, "Helvetica", blue)}),
	}}

	res, err := NewExtractor(nil).Extract(open(t, p))
	require.NoError(t, err)

	assert.Len(t, res.Markers, 2)
	assert.Equal(t, 12.0, res.Markers["name"].FontSize)
	assert.Equal(t, 0, res.Markers["name"].Page)
	assert.Equal(t, 1, res.Markers["date"].Page)
	assert.Equal(t, []string{"name", "date"}, res.Names())
}

func TestExtractIsIdempotent(t *testing.T) {
	p := &layouttest.Provider{Pages: []layouttest.PageSpec{page(
		[]layout.Run{
			layouttest.NewRun("{{name}}", 40, 60, 16, "Helvetica", layout.Black),
			layouttest.NewRun(" completed ", 104, 60, 16, "Helvetica", layout.Black),
			layouttest.NewRun("{{course}}", 192, 60, 16, "Helvetica", layout.Black),
		},
		[]layout.Run{layouttest.NewRun("on {{date}}", 40, 120, 12, "Helvetica", layout.Black)},
	)}}

	first, err := NewExtractor(nil).Extract(open(t, p))
	require.NoError(t, err)
	second, err := NewExtractor(nil).Extract(open(t, p))
	require.NoError(t, err)

	assert.Equal(t, first.Markers, second.Markers)
	assert.Equal(t, []string{"name", "course", "date"}, first.Names())
}

func TestExtractIgnoresMalformedMarkers(t *testing.T) {
	p := &layouttest.Provider{Pages: []layouttest.PageSpec{page(
		[]layout.Run{layouttest.NewRun("{{ name }} {name} {{}} {{first-name}}", 10, 10, 12, "Helvetica", layout.Black)},
	)}}

	_, err := NewExtractor(nil).Extract(open(t, p))
	assert.ErrorIs(t, err, ErrNoMarkers)
}

func TestExtractRegistersEmbeddedFonts(t *testing.T) {
	p := &layouttest.Provider{
		Pages: []layouttest.PageSpec{page(
			[]layout.Run{layouttest.NewRun("{{name}}", 10, 10, 12, "XYZABC+Garamond", layout.Black)},
			[]layout.Run{layouttest.NewRun("{{course}}", 10, 40, 12, "Script", layout.Black)},
		)},
		Fonts: []layout.FontResource{
			{ID: "1", BaseFont: "XYZABC+Garamond", Program: []byte("garamond")},
			{ID: "1", BaseFont: "XYZABC+Garamond", Program: []byte("garamond")},
			{ID: "2", BaseFont: "QRSTUV+Garamond", Program: []byte("garamond-subset")},
			{ID: "3", BaseFont: "Script", Program: []byte("script")},
			{ID: "4", BaseFont: "Courier"},
		},
		RejectFonts: map[string]bool{"Script": true},
	}
	doc := open(t, p)

	res, err := NewExtractor(nil).Extract(doc)
	require.NoError(t, err)

	assert.Equal(t, FontRegistry{"Garamond": []byte("garamond")}, res.Fonts)
	assert.True(t, doc.Registered("Garamond"))
	assert.Equal(t, "Garamond", res.Markers["name"].Font)
	assert.Equal(t, layout.StandardFont, res.Markers["course"].Font)
}

func TestFontRegistryRegister(t *testing.T) {
	p := &layouttest.Provider{RejectFonts: map[string]bool{"Bad": true}}
	doc := open(t, p)

	failed := FontRegistry{"Good": []byte("a"), "Bad": []byte("b")}.Register(doc)

	assert.Equal(t, []string{"Bad"}, failed)
	assert.True(t, doc.Registered("Good"))
}

func TestLogicalName(t *testing.T) {
	assert.Equal(t, "Lora-Bold", LogicalName("ABCDEF+Lora-Bold"))
	assert.Equal(t, "Helvetica", LogicalName("Helvetica"))
	assert.Equal(t, "X+B", LogicalName("A+X+B"))
	assert.Equal(t, "abc+Serif", LogicalName("abc+Serif"))
}
