// Package substitute replaces template markers with row values on a page,
// keeping the look of the text they replace.
//
// For every marker with a matching column the engine infers alignment and
// background from the current page layout, shrinks the value until it fits,
// redacts the marker and draws the value in its place. The redaction is
// always committed before the new text is inserted.
package substitute

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go-certgen/internal/inference"
	"go-certgen/internal/layout"
	"go-certgen/internal/placeholder"

	"go.uber.org/zap"
)

const (
	// FitRatio is the share of the page width text may extend to.
	FitRatio = 0.85
	// ShrinkFactor scales the font size on each shrink step.
	ShrinkFactor = 0.93
	// MaxShrinkSteps caps the shrink loop; 0.93^30 is about 0.11.
	MaxShrinkSteps = 30
	// BaselineRatio places the baseline below the top of the marker box.
	BaselineRatio = 0.78
	// RedactionPad grows the redacted area to catch antialiased edges.
	RedactionPad = 1.0
)

// MarkerError reports a failed substitution for one marker.
type MarkerError struct {
	Marker string
	Err    error
}

func (e *MarkerError) Error() string {
	return fmt.Sprintf("marker %q: %v", e.Marker, e.Err)
}

func (e *MarkerError) Unwrap() error { return e.Err }

// Engine performs marker substitution.
type Engine struct {
	aligner inference.Aligner
	logger  *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithAligner replaces the alignment strategy.
func WithAligner(a inference.Aligner) Option {
	return func(e *Engine) { e.aligner = a }
}

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		aligner: inference.DefaultAligner(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply substitutes row values into page for every marker whose name
// matches a column. Markers without a column, or whose value is empty or
// "nan", are left untouched. Markers found on other pages than the first
// are skipped since only the first page is rendered. The first failing
// marker stops the run and is returned as a *MarkerError.
func (e *Engine) Apply(page layout.Page, row map[string]string, markers map[string]placeholder.Marker) error {
	lookup := Lookup(row)
	for _, name := range placeholder.SortedNames(markers) {
		m := markers[name]
		value, ok := lookup[name]
		if !ok {
			continue
		}
		value, ok = DisplayValue(value)
		if !ok {
			continue
		}
		if m.Page != 0 {
			e.logger.Warn("marker not on first page skipped",
				zap.String("marker", name),
				zap.Int("page", m.Page+1))
			continue
		}
		if err := e.replace(page, m, value); err != nil {
			return &MarkerError{Marker: name, Err: err}
		}
	}
	return nil
}

func (e *Engine) replace(page layout.Page, m placeholder.Marker, value string) error {
	blocks, err := page.Layout()
	if err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	align := e.aligner.Align(layout.Runs(blocks), m.Rect, m.FontSize)
	bg := inference.SampleBackground(page, m.Rect)

	font := m.Font
	measure := func(size float64) (float64, error) {
		return page.TextWidth(value, font, size)
	}
	if _, err := measure(m.FontSize); err != nil {
		e.logger.Debug("measuring with standard font",
			zap.String("marker", m.Name),
			zap.String("font", font),
			zap.Error(err))
		font = layout.StandardFont
	}

	maxWidth := page.Width()*FitRatio - m.Rect.X0
	size, width, err := ShrinkToFit(measure, m.FontSize, maxWidth)
	if err != nil {
		return fmt.Errorf("measure: %w", err)
	}

	x := Place(align, m.Rect, width, page.Width())
	y := m.Rect.Y0 + size*BaselineRatio

	if err := page.Redact(m.Rect.Expand(RedactionPad), bg); err != nil {
		return fmt.Errorf("redact: %w", err)
	}

	pos := layout.Point{X: x, Y: y}
	err = page.InsertText(pos, value, font, size, m.Color)
	if err != nil && font != layout.StandardFont {
		e.logger.Debug("inserting with standard font",
			zap.String("marker", m.Name),
			zap.String("font", font),
			zap.Error(err))
		err = page.InsertText(pos, value, layout.StandardFont, size, m.Color)
	}
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// ShrinkToFit reduces size by ShrinkFactor until measure reports a width
// within maxWidth, for at most MaxShrinkSteps steps. It never grows the
// size and returns the final size and width.
func ShrinkToFit(measure func(size float64) (float64, error), size, maxWidth float64) (float64, float64, error) {
	width, err := measure(size)
	if err != nil {
		return 0, 0, err
	}
	for i := 0; i < MaxShrinkSteps && width > maxWidth; i++ {
		size *= ShrinkFactor
		if width, err = measure(size); err != nil {
			return 0, 0, err
		}
	}
	return size, width, nil
}

// Place returns the left x of text of the given width. Centered text that
// would leave the page falls back to the marker's left edge.
func Place(align inference.Alignment, rect layout.Rect, width, pageWidth float64) float64 {
	if align != inference.Center {
		return rect.X0
	}
	x := rect.X0 + (rect.Width()-width)/2
	if x < 0 || x+width > pageWidth {
		return rect.X0
	}
	return x
}

// Lookup keys row values by lowercased, trimmed column name. When two
// columns collide the one sorting last wins, so results are stable.
func Lookup(row map[string]string) map[string]string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	out := make(map[string]string, len(row))
	for _, c := range cols {
		out[strings.ToLower(strings.TrimSpace(c))] = row[c]
	}
	return out
}

// DisplayValue trims v and reports whether it should be rendered. Empty
// values and "nan" in any case are not.
func DisplayValue(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "nan") {
		return "", false
	}
	return v, true
}

// IsMarkerError reports whether err came from a marker substitution.
func IsMarkerError(err error) bool {
	var me *MarkerError
	return errors.As(err, &me)
}
