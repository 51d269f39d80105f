// Package placeholder finds {{name}} markers in a template and recovers the
// visual style each one was typeset with.
//
// Extraction walks every text line of every page, concatenating the line's
// runs so markers split across runs (a bold "name" between plain braces,
// say) are still found. The first run overlapping a marker supplies its
// style; the marker's rectangle is the union of all overlapping runs.
package placeholder

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go-certgen/internal/layout"

	"go.uber.org/zap"
)

// ErrNoMarkers is returned when a template contains no usable markers.
var ErrNoMarkers = errors.New("no {{placeholders}} found in the template")

var (
	markerPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)
	subsetTag     = regexp.MustCompile(`^[A-Z]+\+`)
)

// Marker is one placeholder occurrence in the template.
type Marker struct {
	Name     string
	Page     int
	Rect     layout.Rect
	FontSize float64
	// Font is the identifier to render with: a registered embedded font or
	// one of the layout standard fonts.
	Font  string
	Color layout.Color
	Bold  bool
	// OriginalFont is the font name as found in the template.
	OriginalFont string
}

// FontRegistry maps logical font names to font programs that registered
// successfully. Documents opened later from the same template bytes must
// be given the same fonts before rendering with them.
type FontRegistry map[string][]byte

// Register installs every font in the registry on doc. Fonts that fail are
// skipped and reported through the returned slice.
func (r FontRegistry) Register(doc layout.Document) []string {
	var failed []string
	for name, program := range r {
		if err := doc.RegisterFont(name, program); err != nil {
			failed = append(failed, name)
		}
	}
	return failed
}

// Result is the outcome of Extract.
type Result struct {
	Markers map[string]Marker
	Fonts   FontRegistry
}

// Names returns the marker names in template order.
func (r *Result) Names() []string {
	return SortedNames(r.Markers)
}

// SortedNames orders marker names by page, then top to bottom, then left
// to right.
func SortedNames(markers map[string]Marker) []string {
	names := make([]string, 0, len(markers))
	for name := range markers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := markers[names[i]], markers[names[j]]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.Rect.Y0 != b.Rect.Y0 {
			return a.Rect.Y0 < b.Rect.Y0
		}
		return a.Rect.X0 < b.Rect.X0
	})
	return names
}

// Extractor scans documents for markers.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor returns an Extractor logging to logger, or discarding logs
// when logger is nil.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract registers the document's embedded fonts and returns every marker
// it contains. It returns ErrNoMarkers when none is found.
func (e *Extractor) Extract(doc layout.Document) (*Result, error) {
	fonts := e.registerFonts(doc)
	markers := make(map[string]Marker)

	for i := 0; i < doc.PageCount(); i++ {
		page, err := doc.Page(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		blocks, err := page.Layout()
		if err != nil {
			return nil, fmt.Errorf("page %d layout: %w", i+1, err)
		}
		for _, block := range blocks {
			for _, line := range block.Lines {
				e.scanLine(i, line, fonts, markers)
			}
		}
	}

	if len(markers) == 0 {
		return nil, ErrNoMarkers
	}
	return &Result{Markers: markers, Fonts: fonts}, nil
}

type span struct {
	start, end int
	run        layout.Run
}

func (e *Extractor) scanLine(page int, line layout.Line, fonts FontRegistry, markers map[string]Marker) {
	var text strings.Builder
	spans := make([]span, 0, len(line.Runs))
	for _, run := range line.Runs {
		start := text.Len()
		text.WriteString(run.Text)
		spans = append(spans, span{start: start, end: text.Len(), run: run})
	}

	for _, loc := range markerPattern.FindAllStringSubmatchIndex(text.String(), -1) {
		name := strings.ToLower(text.String()[loc[2]:loc[3]])
		if _, seen := markers[name]; seen {
			continue
		}

		var style *layout.Run
		var rect layout.Rect
		for i := range spans {
			s := spans[i]
			if s.end <= loc[0] || s.start >= loc[1] {
				continue
			}
			if style == nil {
				style = &spans[i].run
				rect = s.run.BBox
				continue
			}
			rect = rect.Union(s.run.BBox)
		}
		if style == nil {
			e.logger.Debug("marker without style run dropped", zap.String("marker", name))
			continue
		}

		bold := strings.Contains(strings.ToLower(style.FontName), "bold")
		markers[name] = Marker{
			Name:         name,
			Page:         page,
			Rect:         rect,
			FontSize:     style.FontSize,
			Font:         ResolveFont(style.FontName, bold, fonts),
			Color:        style.Color,
			Bold:         bold,
			OriginalFont: style.FontName,
		}
	}
}

func (e *Extractor) registerFonts(doc layout.Document) FontRegistry {
	registry := make(FontRegistry)
	resources, err := doc.Fonts()
	if err != nil {
		e.logger.Debug("font listing failed", zap.Error(err))
		return registry
	}

	seen := make(map[string]bool)
	for _, res := range resources {
		if seen[res.ID] {
			continue
		}
		seen[res.ID] = true

		name := LogicalName(res.BaseFont)
		if name == "" || len(res.Program) == 0 {
			continue
		}
		if _, ok := registry[name]; ok {
			continue
		}
		if err := doc.RegisterFont(name, res.Program); err != nil {
			e.logger.Debug("embedded font not reusable",
				zap.String("font", name),
				zap.Error(err))
			continue
		}
		registry[name] = res.Program
	}
	return registry
}

// LogicalName strips a subset tag ("ABCDEF+") from a font's base name.
func LogicalName(baseFont string) string {
	return subsetTag.ReplaceAllString(baseFont, "")
}

// ResolveFont picks the font to render a marker with: the embedded font if
// it was registered, otherwise a standard font.
func ResolveFont(fontName string, bold bool, fonts FontRegistry) string {
	if name := LogicalName(fontName); name != "" {
		if _, ok := fonts[name]; ok {
			return name
		}
	}
	if bold {
		return layout.StandardBoldFont
	}
	return layout.StandardFont
}
