// Package qrcode renders verification URLs as PNG QR codes.
package qrcode

import (
	"fmt"
	"strings"

	qr "github.com/skip2/go-qrcode"
)

// DefaultSize is the edge length, in pixels, of rendered codes.
const DefaultSize = 120

// Render encodes url as a square PNG of size pixels with high error
// recovery.
func Render(url string, size int) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("qrcode: empty content")
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qr.Encode(url, qr.High, size)
	if err != nil {
		return nil, fmt.Errorf("qrcode: %w", err)
	}
	return png, nil
}

// VerifyURL joins the public base URL with the verification path for id.
func VerifyURL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/verify/" + id
}
