package substitute

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"go-certgen/internal/layout"
	"go-certgen/internal/layout/layouttest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestQRRect(t *testing.T) {
	cases := map[string]layout.Rect{
		"":             {X0: 460, Y0: 260, X1: 580, Y1: 380},
		"bottom-right": {X0: 460, Y0: 260, X1: 580, Y1: 380},
		"bottom-left":  {X0: 20, Y0: 260, X1: 140, Y1: 380},
		"top-right":    {X0: 460, Y0: 20, X1: 580, Y1: 140},
		"top-left":     {X0: 20, Y0: 20, X1: 140, Y1: 140},
		"elsewhere":    {X0: 20, Y0: 20, X1: 140, Y1: 140},
	}
	for position, want := range cases {
		assert.Equal(t, want, QRRect(position, 600, 400), position)
	}
}

func TestSignatureRect(t *testing.T) {
	cases := map[string]layout.Rect{
		"":              {X0: 225, Y0: 310, X1: 375, Y1: 370},
		"bottom-center": {X0: 225, Y0: 310, X1: 375, Y1: 370},
		"bottom-left":   {X0: 30, Y0: 310, X1: 180, Y1: 370},
		"bottom-right":  {X0: 420, Y0: 310, X1: 570, Y1: 370},
	}
	for position, want := range cases {
		assert.Equal(t, want, SignatureRect(position, 600, 400), position)
	}
}

func TestFitKeepsProportions(t *testing.T) {
	box := layout.Rect{X0: 0, Y0: 0, X1: 150, Y1: 60}

	wide := Fit(box, 300, 60)
	assert.Equal(t, layout.Rect{X0: 0, Y0: 15, X1: 150, Y1: 45}, wide)

	tall := Fit(box, 30, 120)
	assert.Equal(t, layout.Rect{X0: 67.5, Y0: 0, X1: 82.5, Y1: 60}, tall)

	assert.Equal(t, box, Fit(box, 0, 10))
}

func TestApplyOverlayStampsQRAndSignature(t *testing.T) {
	_, page := openFirstPage(t, templateProvider(nameMarkerLine()))
	qr := pngOf(t, 120, 120)

	NewEngine().ApplyOverlay(page, Overlay{
		QR:        qr,
		Label:     "abc123",
		Signature: pngOf(t, 300, 60),
	})

	require.Len(t, page.Images(), 2)
	assert.Equal(t, QRRect("", 600, 400), page.Images()[0].Rect)
	assert.Equal(t, qr, page.Images()[0].Data)
	assert.Equal(t, layout.Rect{X0: 225, Y0: 325, X1: 375, Y1: 355}, page.Images()[1].Rect)

	require.Len(t, page.Texts(), 1)
	label := page.Texts()[0]
	assert.Equal(t, "ID: abc123", label.Text)
	assert.Equal(t, layout.StandardFont, label.Font)
	assert.Equal(t, 8.0, label.Size)
	assert.Equal(t, layout.Point{X: 460, Y: 390}, label.Pos)
}

func TestApplyOverlayIsBestEffort(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	engine := NewEngine(WithLogger(zap.New(core)))

	p := templateProvider(nameMarkerLine())
	p.FailImages = true
	_, page := openFirstPage(t, p)

	engine.ApplyOverlay(page, Overlay{QR: pngOf(t, 10, 10), Label: "x", Signature: pngOf(t, 10, 10)})

	assert.Empty(t, page.Images())
	assert.Empty(t, page.Texts())
	assert.Equal(t, 2, logs.Len())
}

func TestApplyOverlaySkipsUnreadableSignature(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	_, page := openFirstPage(t, templateProvider(nameMarkerLine()))

	NewEngine(WithLogger(zap.New(core))).ApplyOverlay(page, Overlay{Signature: []byte("not an image")})

	assert.Empty(t, page.Images())
	assert.Equal(t, 1, logs.FilterMessage("signature not added").Len())
}

func TestApplyOverlayWithoutImagesIsNoop(t *testing.T) {
	_, page := openFirstPage(t, templateProvider(nameMarkerLine()))
	NewEngine().ApplyOverlay(page, Overlay{Label: "abc"})
	assert.Empty(t, page.Ops())
}

var _ layout.Page = (*layouttest.Page)(nil)
