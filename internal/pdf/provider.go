package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"go-certgen/internal/layout"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"
	"github.com/tsawler/tabula/core"
	"github.com/tsawler/tabula/reader"
	"go.uber.org/zap"
)

var (
	ErrNotPDF = errors.New("not a PDF document")
	// ErrReadOnlyPage is returned when mutating any page but the first;
	// certificates are rendered from the first page only.
	ErrReadOnlyPage = errors.New("only the first page can be modified")
	ErrClosed       = errors.New("document is closed")
)

// Provider opens PDF templates. Parsing goes through tabula; output is
// rendered with gofpdf over an imported copy of the first page.
type Provider struct {
	tempDir string
	logger  *zap.Logger
}

type Option func(*Provider)

// WithTempDir sets where template copies are kept while a document is open.
func WithTempDir(dir string) Option {
	return func(p *Provider) { p.tempDir = dir }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

func NewProvider(opts ...Option) *Provider {
	p := &Provider{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open parses data. The returned document owns a temporary copy of the
// template until Close.
func (p *Provider) Open(data []byte) (layout.Document, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\r\n\t "), []byte("%PDF-")) {
		return nil, ErrNotPDF
	}

	f, err := os.CreateTemp(p.tempDir, "certgen-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("error creating temp file: %w", err)
	}
	cleanup := func() {
		f.Close()
		os.Remove(f.Name())
	}
	if _, err := f.Write(data); err != nil {
		cleanup()
		return nil, fmt.Errorf("error writing temp file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, fmt.Errorf("error writing temp file: %w", err)
	}

	r, err := reader.NewReader(f)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("error parsing PDF: %w", err)
	}
	n, err := r.PageCount()
	if err != nil || n == 0 {
		r.Close()
		os.Remove(f.Name())
		if err == nil {
			err = errors.New("document has no pages")
		}
		return nil, fmt.Errorf("error reading pages: %w", err)
	}

	doc := &Document{
		path:       f.Name(),
		reader:     r,
		logger:     p.logger,
		fontCache:  make(map[string]*fontInfo),
		registered: make(map[string]bool),
	}
	for i := 0; i < n; i++ {
		pg, err := r.GetPage(i)
		if err != nil {
			doc.Close()
			return nil, fmt.Errorf("error reading page %d: %w", i+1, err)
		}
		box := [4]float64{0, 0, 612, 792}
		if mb, err := pg.MediaBox(); err == nil && len(mb) == 4 {
			box = [4]float64{mb[0], mb[1], mb[2], mb[3]}
		}
		doc.pages = append(doc.pages, &Page{doc: doc, index: i, box: box, src: pg})
	}
	return doc, nil
}

// Document is an open template. It is not safe for concurrent use.
type Document struct {
	path   string
	reader *reader.Reader
	logger *zap.Logger
	pages  []*Page

	fontCache  map[string]*fontInfo
	out        *gofpdf.Fpdf
	tr         func(string) string
	registered map[string]bool
	images     int
	closed     bool
}

func (d *Document) PageCount() int { return len(d.pages) }

func (d *Document) Page(index int) (layout.Page, error) {
	if index < 0 || index >= len(d.pages) {
		return nil, fmt.Errorf("page %d out of range (document has %d)", index, len(d.pages))
	}
	return d.pages[index], nil
}

// Fonts lists the font resources of every page and of the forms they draw.
func (d *Document) Fonts() ([]layout.FontResource, error) {
	if d.closed {
		return nil, ErrClosed
	}
	seen := make(map[string]bool)
	var fonts []layout.FontResource

	var collect func(page int, resources core.Dict, depth int)
	collect = func(page int, resources core.Dict, depth int) {
		if dict := d.subDict(resources, "Font"); dict != nil {
			names := make([]string, 0, len(dict))
			for name := range dict {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				obj := dict[name]
				id := fmt.Sprintf("page%d/%s", page, name)
				if ref, ok := obj.(core.IndirectRef); ok {
					id = ref.String()
				}
				if seen[id] {
					continue
				}
				seen[id] = true
				fd := d.dictOf(obj)
				if fd == nil {
					continue
				}
				program, err := fontProgram(fd, d.reader.Resolve)
				if err != nil {
					d.logger.Debug("font program unreadable", zap.String("font", id), zap.Error(err))
					program = nil
				}
				fonts = append(fonts, layout.FontResource{
					ID:       id,
					BaseFont: nameOf(fd.Get("BaseFont")),
					Program:  program,
				})
			}
		}
		if depth >= maxFormDepth {
			return
		}
		if xobjects := d.subDict(resources, "XObject"); xobjects != nil {
			for _, obj := range xobjects {
				resolved, err := d.reader.Resolve(obj)
				if err != nil {
					continue
				}
				if s, ok := resolved.(*core.Stream); ok && nameOf(s.Dict.Get("Subtype")) == "Form" {
					if res := d.dictOf(s.Dict.Get("Resources")); res != nil {
						collect(page, res, depth+1)
					}
				}
			}
		}
	}

	for _, p := range d.pages {
		resources, err := p.src.Resources()
		if err != nil {
			continue
		}
		collect(p.index, resources, 0)
	}
	return fonts, nil
}

// RegisterFont adds a TrueType program to the output under name.
func (d *Document) RegisterFont(name string, program []byte) (err error) {
	out, err := d.writer()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("font %s: %v", name, r)
		}
	}()
	out.AddUTF8FontFromBytes(name, "", program)
	out.SetFont(name, "", 12)
	if out.Err() {
		err = out.Error()
		out.ClearError()
		return fmt.Errorf("font %s: %w", name, err)
	}
	d.registered[name] = true
	return nil
}

// Serialize writes the certificate: the first page of the template with
// every mutation applied.
func (d *Document) Serialize(w io.Writer) (err error) {
	out, err := d.writer()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error writing PDF: %v", r)
		}
	}()
	return out.Output(w)
}

func (d *Document) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.out = nil
	err := d.reader.Close()
	if rmErr := os.Remove(d.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

// writer returns the output document, importing the template's first page
// as its background on first use.
func (d *Document) writer() (out *gofpdf.Fpdf, err error) {
	if d.closed {
		return nil, ErrClosed
	}
	if d.out != nil {
		return d.out, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error importing template page: %v", r)
		}
	}()

	first := d.pages[0]
	w, h := first.Width(), first.Height()
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	imp := gofpdi.NewImporter()
	tpl := imp.ImportPage(pdf, d.path, 1, "/MediaBox")
	imp.UseImportedTemplate(pdf, tpl, 0, 0, w, h)
	if pdf.Err() {
		return nil, fmt.Errorf("error importing template page: %w", pdf.Error())
	}

	d.out = pdf
	d.tr = pdf.UnicodeTranslatorFromDescriptor("")
	return d.out, nil
}

// fontFor maps a layout font name to a gofpdf family and style.
func (d *Document) fontFor(name string) (family, style string, builtin bool, err error) {
	switch name {
	case layout.StandardFont:
		return "Helvetica", "", true, nil
	case layout.StandardBoldFont:
		return "Helvetica", "B", true, nil
	}
	if d.registered[name] {
		return name, "", false, nil
	}
	return "", "", false, fmt.Errorf("%w: %s", layout.ErrUnknownFont, name)
}

func (d *Document) loadFont(obj core.Object) *fontInfo {
	key := ""
	if ref, ok := obj.(core.IndirectRef); ok {
		key = ref.String()
		if f, ok := d.fontCache[key]; ok {
			return f
		}
	}
	dict := d.dictOf(obj)
	if dict == nil {
		return standardFontInfo()
	}
	f := newFontInfo(dict, d.reader.ResolveReference)
	if key != "" {
		d.fontCache[key] = f
	}
	return f
}

func (d *Document) dictOf(obj core.Object) core.Dict {
	if obj == nil {
		return nil
	}
	resolved, err := d.reader.Resolve(obj)
	if err != nil {
		return nil
	}
	dict, _ := resolved.(core.Dict)
	return dict
}

func (d *Document) subDict(resources core.Dict, key string) core.Dict {
	if resources == nil {
		return nil
	}
	return d.dictOf(resources.Get(key))
}
