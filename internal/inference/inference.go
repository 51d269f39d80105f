// Package inference guesses layout intent the template does not state
// explicitly: how a marker's text was aligned, and what color lies behind
// it.
package inference

import (
	"math"
	"strings"

	"go-certgen/internal/layout"
)

// Alignment is the horizontal anchoring of replacement text.
type Alignment int

const (
	Left Alignment = iota
	Center
)

func (a Alignment) String() string {
	if a == Center {
		return "center"
	}
	return "left"
}

// Aligner decides how text replacing the marker at rect should be anchored.
type Aligner interface {
	Align(runs []layout.Run, rect layout.Rect, fontSize float64) Alignment
}

// MajorityVote compares the marker's left edge with the left edges of
// static text on nearby lines. When enough of them share the marker's left
// edge the marker is treated as left aligned, otherwise as centered.
//
// This is an approximation tuned on typical certificate templates; a
// centered title sitting above left-aligned body text can fool it.
type MajorityVote struct {
	// Band is the vertical search distance as a multiple of the font size.
	Band float64
	// Tolerance is how far apart, in points, two left edges may be and
	// still count as aligned.
	Tolerance float64
	// Threshold is the share of nearby runs that must align with the
	// marker for a left verdict.
	Threshold float64
}

// DefaultAligner returns the MajorityVote settings used by the engine.
func DefaultAligner() MajorityVote {
	return MajorityVote{Band: 2.5, Tolerance: 5, Threshold: 0.4}
}

func (v MajorityVote) Align(runs []layout.Run, rect layout.Rect, fontSize float64) Alignment {
	centerY := (rect.Y0 + rect.Y1) / 2

	nearby, aligned := 0, 0
	for _, run := range runs {
		if strings.Contains(run.Text, "{{") {
			continue
		}
		runCenter := (run.BBox.Y0 + run.BBox.Y1) / 2
		if math.Abs(runCenter-centerY) >= fontSize*v.Band {
			continue
		}
		nearby++
		if math.Abs(run.BBox.X0-rect.X0) < v.Tolerance {
			aligned++
		}
	}

	if nearby == 0 {
		return Left
	}
	if float64(aligned) > float64(nearby)*v.Threshold {
		return Left
	}
	return Center
}

// SampleBackground reads the color under the center of rect from a 2x2
// point patch. Any sampling failure yields white.
func SampleBackground(page layout.Page, rect layout.Rect) layout.Color {
	c := rect.Center()
	patch := layout.Rect{X0: c.X - 1, Y0: c.Y - 1, X1: c.X + 1, Y1: c.Y + 1}
	color, err := page.SamplePixel(patch)
	if err != nil {
		return layout.White
	}
	return color
}
