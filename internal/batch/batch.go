// Package batch turns a template and a data table into a ZIP archive of
// filled, signed certificates.
//
// Rows are processed in order. A failing row is recorded and skipped; the
// batch only fails as a whole when the template cannot be used, the archive
// cannot be written, or no row succeeds.
package batch

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"go-certgen/internal/dataset"
	"go-certgen/internal/layout"
	"go-certgen/internal/ledger"
	"go-certgen/internal/placeholder"
	"go-certgen/internal/qrcode"
	"go-certgen/internal/signing"
	"go-certgen/internal/substitute"
	"go-certgen/internal/utils"

	"go.uber.org/zap"
)

const (
	combinedName     = "all_certificates"
	maxErrorLen      = 200
	reportedErrors   = 3
	dateLayout       = "2006-01-02"
	unknownFieldText = "Unknown"
)

var (
	nameAliases   = []string{"name", "student", "recipient", "full_name"}
	courseAliases = []string{"course", "subject", "program", "course_name"}
	dateAliases   = []string{"date", "issue_date", "completion_date", "cert_date"}
)

// NoSuccessError is returned when every row of a batch failed.
type NoSuccessError struct {
	Errors []string
}

func (e *NoSuccessError) Error() string {
	msg := "failed to generate any certificates"
	if len(e.Errors) == 0 {
		return msg
	}
	n := len(e.Errors)
	if n > reportedErrors {
		n = reportedErrors
	}
	return msg + ". Errors: " + strings.Join(e.Errors[:n], " | ")
}

// Options are per-batch rendering choices.
type Options struct {
	QRPosition        string
	SignaturePosition string
	// Signature is an optional signature image stamped on every certificate.
	Signature []byte
	// Combined adds one PDF holding every certificate to the archive.
	Combined bool
}

// Issued describes one generated certificate.
type Issued struct {
	Row       int    `json:"row"`
	CertID    string `json:"certId"`
	Name      string `json:"name"`
	Course    string `json:"course"`
	Date      string `json:"date"`
	File      string `json:"file"`
	Signature string `json:"signature"`
}

// Result is the outcome of a batch.
type Result struct {
	Archive      []byte
	Succeeded    int
	Failed       int
	Errors       []string
	Certificates []Issued
}

// PostProcessor rewrites a rendered certificate, for example to stamp
// document properties. Failures keep the unprocessed bytes.
type PostProcessor func(pdf []byte, props map[string]string) ([]byte, error)

// Merger concatenates rendered certificates into one document.
type Merger func(docs [][]byte) ([]byte, error)

// Orchestrator runs batches.
type Orchestrator struct {
	provider  layout.Provider
	extractor *placeholder.Extractor
	engine    *substitute.Engine
	signer    *signing.Signer
	store     ledger.Store
	baseURL   string
	logger    *zap.Logger
	now       func() time.Time
	newID     func() (string, error)
	renderQR  func(url string, size int) ([]byte, error)
	post      PostProcessor
	merge     Merger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithEngine(e *substitute.Engine) Option {
	return func(o *Orchestrator) { o.engine = e }
}

// WithBaseURL sets the public URL verification links point at.
func WithBaseURL(u string) Option {
	return func(o *Orchestrator) { o.baseURL = u }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDs replaces the certificate id generator.
func WithIDs(gen func() (string, error)) Option {
	return func(o *Orchestrator) { o.newID = gen }
}

func WithQRRenderer(render func(url string, size int) ([]byte, error)) Option {
	return func(o *Orchestrator) { o.renderQR = render }
}

func WithPostProcessor(p PostProcessor) Option {
	return func(o *Orchestrator) { o.post = p }
}

func WithMerger(m Merger) Option {
	return func(o *Orchestrator) { o.merge = m }
}

func New(provider layout.Provider, signer *signing.Signer, store ledger.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		signer:   signer,
		store:    store,
		baseURL:  "http://localhost:8080",
		logger:   zap.NewNop(),
		now:      time.Now,
		newID:    signing.NewCertificateID,
		renderQR: qrcode.Render,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.engine == nil {
		o.engine = substitute.NewEngine(substitute.WithLogger(o.logger))
	}
	o.extractor = placeholder.NewExtractor(o.logger)
	return o
}

// Analyze extracts the markers of a template.
func (o *Orchestrator) Analyze(template []byte) (*placeholder.Result, error) {
	doc, err := o.provider.Open(template)
	if err != nil {
		return nil, fmt.Errorf("could not open template: %w", err)
	}
	defer doc.Close()
	return o.extractor.Extract(doc)
}

// Run generates one certificate per row of table.
func (o *Orchestrator) Run(ctx context.Context, template []byte, table *dataset.Table, opts Options) (*Result, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, dataset.ErrNoRows
	}
	markers, err := o.Analyze(template)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	res := &Result{}
	used := make(map[string]bool)
	var rendered [][]byte

	for idx, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		issued, pdf, err := o.renderRow(ctx, template, markers, table, idx, row, opts)
		if err != nil {
			msg := fmt.Sprintf("Row %d: %s", idx+1, truncate(err.Error(), maxErrorLen))
			o.logger.Warn("certificate failed",
				zap.Int("row", idx+1),
				zap.Bool("substitution", substitute.IsMarkerError(err)),
				zap.Error(err))
			res.Errors = append(res.Errors, msg)
			res.Failed++
			continue
		}

		issued.File = archiveName(issued.File, idx+1, used)
		w, err := zw.Create(issued.File)
		if err != nil {
			return nil, fmt.Errorf("could not write archive: %w", err)
		}
		if _, err := w.Write(pdf); err != nil {
			return nil, fmt.Errorf("could not write archive: %w", err)
		}
		res.Certificates = append(res.Certificates, *issued)
		res.Succeeded++
		if opts.Combined {
			rendered = append(rendered, pdf)
		}
	}

	if len(rendered) > 0 {
		if err := o.addCombined(zw, rendered, used); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("could not write archive: %w", err)
	}
	if res.Succeeded == 0 {
		return nil, &NoSuccessError{Errors: res.Errors}
	}
	res.Archive = buf.Bytes()
	o.logger.Info("batch complete",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed))
	return res, nil
}

// addCombined writes the merged print file. A merge failure only costs the
// combined file.
func (o *Orchestrator) addCombined(zw *zip.Writer, docs [][]byte, used map[string]bool) error {
	if o.merge == nil {
		o.logger.Warn("combined file skipped", zap.String("reason", "no merger configured"))
		return nil
	}
	merged, err := o.merge(docs)
	if err != nil {
		o.logger.Warn("combined file skipped", zap.Error(err))
		return nil
	}
	w, err := zw.Create(archiveName(combinedName, 0, used))
	if err != nil {
		return fmt.Errorf("could not write archive: %w", err)
	}
	if _, err := w.Write(merged); err != nil {
		return fmt.Errorf("could not write archive: %w", err)
	}
	return nil
}

func (o *Orchestrator) renderRow(ctx context.Context, template []byte, markers *placeholder.Result, table *dataset.Table, idx int, row dataset.Row, opts Options) (*Issued, []byte, error) {
	certID, err := o.newID()
	if err != nil {
		return nil, nil, fmt.Errorf("certificate id: %w", err)
	}
	tuple := o.fields(table, row, certID)
	signature := o.signer.Sign(tuple)

	pdf, err := o.fill(template, markers, row, certID, opts)
	if err != nil {
		return nil, nil, err
	}
	if o.post != nil {
		props := map[string]string{
			"CertificateID": certID,
			"Recipient":     tuple.Name,
			"Course":        tuple.Course,
			"IssueDate":     tuple.Date,
		}
		if stamped, err := o.post(pdf, props); err != nil {
			o.logger.Warn("post processing skipped", zap.Int("row", idx+1), zap.Error(err))
		} else {
			pdf = stamped
		}
	}

	extra, err := json.Marshal(row)
	if err != nil {
		return nil, nil, err
	}
	rec := &ledger.Record{
		CertID:         certID,
		Name:           tuple.Name,
		Course:         tuple.Course,
		Date:           tuple.Date,
		Signature:      signature,
		ContentHash:    signing.ContentHash(tuple),
		CreatedAt:      o.now().UTC(),
		AdditionalData: extra,
	}
	if err := o.store.Put(ctx, rec); err != nil {
		return nil, nil, fmt.Errorf("ledger: %w", err)
	}

	first := ""
	if values := table.Values(row); len(values) > 0 {
		first = values[0]
	}
	return &Issued{
		Row:       idx + 1,
		CertID:    certID,
		Name:      tuple.Name,
		Course:    tuple.Course,
		Date:      tuple.Date,
		File:      utils.DisplayName(first, idx),
		Signature: signature,
	}, pdf, nil
}

func (o *Orchestrator) fill(template []byte, markers *placeholder.Result, row dataset.Row, certID string, opts Options) ([]byte, error) {
	doc, err := o.provider.Open(template)
	if err != nil {
		return nil, fmt.Errorf("could not open template: %w", err)
	}
	defer doc.Close()

	if failed := markers.Fonts.Register(doc); len(failed) > 0 {
		o.logger.Debug("fonts not re-registered", zap.Strings("fonts", failed))
	}
	page, err := doc.Page(0)
	if err != nil {
		return nil, err
	}
	if err := o.engine.Apply(page, row, markers.Markers); err != nil {
		return nil, err
	}

	overlay := substitute.Overlay{
		QRPosition:        opts.QRPosition,
		Label:             certID,
		Signature:         opts.Signature,
		SignaturePosition: opts.SignaturePosition,
	}
	if qr, err := o.renderQR(qrcode.VerifyURL(o.baseURL, certID), qrcode.DefaultSize); err != nil {
		o.logger.Warn("qr code not rendered", zap.String("cert_id", certID), zap.Error(err))
	} else {
		overlay.QR = qr
	}
	o.engine.ApplyOverlay(page, overlay)

	var out bytes.Buffer
	if err := doc.Serialize(&out); err != nil {
		return nil, fmt.Errorf("could not save certificate: %w", err)
	}
	return out.Bytes(), nil
}

// fields picks the signed name, course and date out of row. Known column
// aliases win, later columns over earlier ones; otherwise the first three
// columns are used in order.
func (o *Orchestrator) fields(table *dataset.Table, row dataset.Row, certID string) signing.Tuple {
	found := make(map[string]string)
	for _, col := range table.Columns {
		key := strings.ToLower(strings.TrimSpace(col))
		switch {
		case slices.Contains(nameAliases, key):
			found["name"] = row[col]
		case slices.Contains(courseAliases, key):
			found["course"] = row[col]
		case slices.Contains(dateAliases, key):
			found["date"] = row[col]
		}
	}
	for i, field := range []string{"name", "course", "date"} {
		if _, ok := found[field]; !ok && len(table.Columns) > i {
			found[field] = row[table.Columns[i]]
		}
	}
	if _, ok := found["date"]; !ok {
		found["date"] = o.now().Format(dateLayout)
	}
	for _, field := range []string{"name", "course"} {
		if _, ok := found[field]; !ok {
			found[field] = unknownFieldText
		}
	}
	return signing.Tuple{
		Name:   found["name"],
		Course: found["course"],
		Date:   found["date"],
		CertID: certID,
	}
}

// archiveName returns a unique entry name for display, suffixing the row
// number on collisions.
func archiveName(display string, row int, used map[string]bool) string {
	name := display + ".pdf"
	if used[name] {
		name = fmt.Sprintf("%s_%d.pdf", display, row)
	}
	used[name] = true
	return name
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
