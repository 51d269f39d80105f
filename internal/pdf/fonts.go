package pdf

import (
	"fmt"

	"github.com/tsawler/tabula/core"
	"github.com/tsawler/tabula/font"
)

const (
	defaultAscent  = 0.8
	defaultDescent = -0.2
)

// fontInfo is what the content walker needs from a font: how to turn
// shown bytes into text and how far each code advances.
type fontInfo struct {
	name    string
	decode  func([]byte) string
	width   func(code int) float64 // glyph space, 1/1000 em
	twoByte bool
	ascent  float64
	descent float64
}

func (f *fontInfo) setMetrics(fd *font.FontDescriptor) {
	if fd == nil {
		return
	}
	if fd.Ascent > 0 {
		f.ascent = fd.Ascent / 1000
	}
	if fd.Descent < 0 {
		f.descent = fd.Descent / 1000
	}
}

type resolver func(core.IndirectRef) (core.Object, error)

// newFontInfo builds decoding and metrics for a font dictionary. Fonts
// tabula cannot parse fall back to its generic font, which still decodes
// the standard encodings.
func newFontInfo(dict core.Dict, resolve resolver) *fontInfo {
	base := nameOf(dict.Get("BaseFont"))
	subtype := nameOf(dict.Get("Subtype"))
	info := &fontInfo{name: base, ascent: defaultAscent, descent: defaultDescent}

	switch subtype {
	case "Type0":
		if t0, err := font.NewType0Font(dict, resolve); err == nil {
			info.decode = t0.DecodeString
			info.width = func(code int) float64 { return t0.GetWidth(rune(code)) }
			info.twoByte = true
			if t0.DescendantFont != nil {
				info.setMetrics(t0.DescendantFont.FontDescriptor)
			}
			return info
		}
	case "TrueType":
		if tt, err := font.NewTrueTypeFont(dict, resolve); err == nil {
			info.decode = tt.DecodeString
			info.width = func(code int) float64 { return tt.GetWidth(rune(code)) }
			info.setMetrics(tt.FontDescriptor)
			return info
		}
	case "Type1":
		if t1, err := font.NewType1Font(dict, resolve); err == nil {
			if t1.ToUnicode != nil {
				if cmap, err := font.ParseToUnicodeCMap(t1.ToUnicode); err == nil {
					t1.ToUnicodeCMap = cmap
				}
			}
			info.decode = t1.DecodeString
			info.width = func(code int) float64 { return t1.GetWidth(rune(code)) }
			info.setMetrics(t1.FontDescriptor)
			return info
		}
	}

	generic := font.NewFont("", base, subtype)
	info.decode = generic.DecodeString
	info.width = func(code int) float64 { return generic.GetWidth(rune(code)) }
	return info
}

func standardFontInfo() *fontInfo {
	return newFontInfo(core.Dict{
		"BaseFont": core.Name("Helvetica"),
		"Subtype":  core.Name("Type1"),
	}, func(core.IndirectRef) (core.Object, error) {
		return nil, fmt.Errorf("no objects")
	})
}

// fontProgram returns the embedded font file of a font dictionary, looking
// through the descendant font of composite fonts.
func fontProgram(dict core.Dict, resolve func(core.Object) (core.Object, error)) ([]byte, error) {
	if nameOf(dict.Get("Subtype")) == "Type0" {
		obj, err := resolve(dict.Get("DescendantFonts"))
		if err != nil {
			return nil, err
		}
		arr, ok := obj.(core.Array)
		if !ok || len(arr) == 0 {
			return nil, fmt.Errorf("no descendant font")
		}
		desc, err := resolve(arr[0])
		if err != nil {
			return nil, err
		}
		if dict, ok = desc.(core.Dict); !ok {
			return nil, fmt.Errorf("descendant font is %T", desc)
		}
	}

	fdObj := dict.Get("FontDescriptor")
	if fdObj == nil {
		return nil, nil
	}
	obj, err := resolve(fdObj)
	if err != nil {
		return nil, err
	}
	fd, ok := obj.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("font descriptor is %T", obj)
	}
	for _, key := range []string{"FontFile2", "FontFile3", "FontFile"} {
		ref := fd.Get(key)
		if ref == nil {
			continue
		}
		obj, err := resolve(ref)
		if err != nil {
			return nil, err
		}
		stream, ok := obj.(*core.Stream)
		if !ok {
			continue
		}
		return stream.Decode()
	}
	return nil, nil
}

func nameOf(obj core.Object) string {
	if n, ok := obj.(core.Name); ok {
		return string(n)
	}
	return ""
}

func number(obj core.Object) (float64, bool) {
	switch v := obj.(type) {
	case core.Int:
		return float64(v), true
	case core.Real:
		return float64(v), true
	}
	return 0, false
}
