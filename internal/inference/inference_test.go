package inference

import (
	"errors"
	"testing"

	"go-certgen/internal/layout"
	"go-certgen/internal/layout/layouttest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(text string, x0, y0 float64) layout.Run {
	return layouttest.NewRun(text, x0, y0, 12, layout.StandardFont, layout.Black)
}

func TestMajorityVote(t *testing.T) {
	marker := layout.Rect{X0: 100, Y0: 100, X1: 160, Y1: 112}

	tests := []struct {
		name string
		runs []layout.Run
		want Alignment
	}{
		{"no neighbours", nil, Left},
		{"only markers nearby", []layout.Run{run("{{course}}", 300, 100)}, Left},
		{"aligned neighbour", []layout.Run{run("Awarded to", 103, 80)}, Left},
		{"offset neighbour", []layout.Run{run("Certificate", 40, 80)}, Center},
		{"far away text ignored", []layout.Run{run("Footer", 10, 380)}, Left},
		{
			"majority offset",
			[]layout.Run{run("a", 100, 90), run("b", 20, 110), run("c", 200, 120)},
			Center,
		},
		{
			"enough aligned",
			[]layout.Run{run("a", 100, 90), run("b", 101, 110), run("c", 200, 120)},
			Left,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultAligner().Align(tt.runs, marker, 12))
		})
	}
}

func TestAlignmentString(t *testing.T) {
	assert.Equal(t, "left", Left.String())
	assert.Equal(t, "center", Center.String())
}

type failingPage struct{ layout.Page }

func (failingPage) SamplePixel(layout.Rect) (layout.Color, error) {
	return layout.Color{}, errors.New("no raster")
}

func TestSampleBackground(t *testing.T) {
	green := layout.Color{G: 1}
	p := &layouttest.Provider{Pages: []layouttest.PageSpec{{
		Width: 200, Height: 200,
		Fills: []layouttest.Fill{{Rect: layout.Rect{X0: 0, Y0: 0, X1: 100, Y1: 100}, Color: green}},
	}}}
	doc, err := p.Open([]byte("x"))
	require.NoError(t, err)
	page, err := doc.Page(0)
	require.NoError(t, err)

	assert.Equal(t, green, SampleBackground(page, layout.Rect{X0: 10, Y0: 10, X1: 50, Y1: 30}))
	assert.Equal(t, layout.White, SampleBackground(page, layout.Rect{X0: 150, Y0: 150, X1: 180, Y1: 170}))
	assert.Equal(t, layout.White, SampleBackground(failingPage{page}, layout.Rect{X1: 10, Y1: 10}))
}
