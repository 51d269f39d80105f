package substitute

import (
	"go-certgen/internal/imaging"
	"go-certgen/internal/layout"

	"go.uber.org/zap"
)

const (
	QRSize   = 120.0
	QRMargin = 20.0

	SignatureWidth  = 150.0
	SignatureHeight = 60.0
	SignatureMargin = 30.0

	labelSize = 8.0
	labelGap  = 10.0
)

var labelColor = layout.Color{R: 0.3, G: 0.3, B: 0.3}

// Overlay holds the images stamped on top of a filled certificate.
type Overlay struct {
	// QR is a PNG verification code. Empty disables it.
	QR         []byte
	QRPosition string
	// Label is printed under the code as "ID: <label>".
	Label string
	// Signature is an image in any format imaging.Normalize accepts.
	Signature         []byte
	SignaturePosition string
}

// QRRect returns the QR code box for a page of the given size. Known
// positions are "bottom-right", "bottom-left" and "top-right"; anything
// else is top-left.
func QRRect(position string, w, h float64) layout.Rect {
	far := QRMargin + QRSize
	switch position {
	case "", "bottom-right":
		return layout.Rect{X0: w - far, Y0: h - far, X1: w - QRMargin, Y1: h - QRMargin}
	case "bottom-left":
		return layout.Rect{X0: QRMargin, Y0: h - far, X1: far, Y1: h - QRMargin}
	case "top-right":
		return layout.Rect{X0: w - far, Y0: QRMargin, X1: w - QRMargin, Y1: far}
	default:
		return layout.Rect{X0: QRMargin, Y0: QRMargin, X1: far, Y1: far}
	}
}

// SignatureRect returns the signature box. Known positions are
// "bottom-center" and "bottom-left"; anything else is bottom-right.
func SignatureRect(position string, w, h float64) layout.Rect {
	y0, y1 := h-SignatureMargin-SignatureHeight, h-SignatureMargin
	switch position {
	case "", "bottom-center":
		return layout.Rect{X0: (w - SignatureWidth) / 2, Y0: y0, X1: (w + SignatureWidth) / 2, Y1: y1}
	case "bottom-left":
		return layout.Rect{X0: SignatureMargin, Y0: y0, X1: SignatureMargin + SignatureWidth, Y1: y1}
	default:
		return layout.Rect{X0: w - SignatureMargin - SignatureWidth, Y0: y0, X1: w - SignatureMargin, Y1: y1}
	}
}

// Fit scales an imgW x imgH image into box keeping its proportions and
// centers it.
func Fit(box layout.Rect, imgW, imgH float64) layout.Rect {
	if imgW <= 0 || imgH <= 0 {
		return box
	}
	scale := box.Width() / imgW
	if s := box.Height() / imgH; s < scale {
		scale = s
	}
	w, h := imgW*scale, imgH*scale
	x := box.X0 + (box.Width()-w)/2
	y := box.Y0 + (box.Height()-h)/2
	return layout.Rect{X0: x, Y0: y, X1: x + w, Y1: y + h}
}

// ApplyOverlay stamps o onto page. Overlay failures never fail the
// certificate; they are logged and the overlay is left out.
func (e *Engine) ApplyOverlay(page layout.Page, o Overlay) {
	w, h := page.Width(), page.Height()

	if len(o.QR) > 0 {
		rect := QRRect(o.QRPosition, w, h)
		if err := page.InsertImage(rect, o.QR); err != nil {
			e.logger.Warn("qr code not added", zap.Error(err))
		} else if o.Label != "" {
			pos := layout.Point{X: rect.X0, Y: rect.Y1 + labelGap}
			if err := page.InsertText(pos, "ID: "+o.Label, layout.StandardFont, labelSize, labelColor); err != nil {
				e.logger.Warn("qr label not added", zap.Error(err))
			}
		}
	}

	if len(o.Signature) > 0 {
		img, err := imaging.Normalize(o.Signature, imaging.MaxWidth)
		if err != nil {
			e.logger.Warn("signature not added", zap.Error(err))
			return
		}
		box := SignatureRect(o.SignaturePosition, w, h)
		rect := Fit(box, float64(img.Width), float64(img.Height))
		if err := page.InsertImage(rect, img.PNG); err != nil {
			e.logger.Warn("signature not added", zap.Error(err))
		}
	}
}
