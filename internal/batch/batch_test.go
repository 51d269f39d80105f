package batch

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"go-certgen/internal/dataset"
	"go-certgen/internal/layout"
	"go-certgen/internal/layout/layouttest"
	"go-certgen/internal/ledger"
	"go-certgen/internal/placeholder"
	"go-certgen/internal/signing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Put(ctx context.Context, rec *ledger.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockStore) Get(ctx context.Context, certID string) (*ledger.Record, error) {
	args := m.Called(ctx, certID)
	if rec, ok := args.Get(0).(*ledger.Record); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

var (
	template = []byte("%PDF-1.4 template")
	fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
)

func certificateProvider() *layouttest.Provider {
	return &layouttest.Provider{
		Pages: []layouttest.PageSpec{{
			Width:  600,
			Height: 400,
			Lines: [][]layout.Run{
				{layouttest.NewRun("{{name}}", 100, 100, 24, "ABCDEF+Lora", layout.Color{R: 1})},
				{layouttest.NewRun("{{course}}", 100, 200, 18, "Helvetica", layout.Black)},
			},
		}},
		Fonts: []layout.FontResource{{ID: "7", BaseFont: "ABCDEF+Lora", Program: []byte("lora")}},
	}
}

func sequentialIDs() func() (string, error) {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("id-%d", n), nil
	}
}

func stubQR(url string, size int) ([]byte, error) {
	return []byte("qr:" + url), nil
}

func newTestOrchestrator(t *testing.T, p layout.Provider, store ledger.Store, opts ...Option) *Orchestrator {
	t.Helper()
	signer, err := signing.NewSigner("secret")
	require.NoError(t, err)
	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDs(sequentialIDs()),
		WithQRRenderer(stubQR),
		WithBaseURL("https://certs.example.org"),
	}, opts...)
	return New(p, signer, store, opts...)
}

func readArchive(t *testing.T, data []byte) map[string][][]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	out := make(map[string][][]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())

		var pages [][]string
		require.NoError(t, json.Unmarshal(body, &pages))
		out[f.Name] = pages
	}
	return out
}

func twoRowTable() *dataset.Table {
	return &dataset.Table{
		Columns: []string{"Name", "Course"},
		Rows: []dataset.Row{
			{"Name": "Ana", "Course": "Math"},
			{"Name": "", "Course": "Bio"},
		},
	}
}

func TestRunScenario(t *testing.T) {
	provider := certificateProvider()
	store := new(mockStore)
	store.On("Put", mock.Anything, mock.MatchedBy(func(r *ledger.Record) bool {
		return r.CertID == "id-1" && r.Name == "Ana" && r.Course == "Math" && r.Date == "2024-05-01"
	})).Return(nil).Once()
	store.On("Put", mock.Anything, mock.MatchedBy(func(r *ledger.Record) bool {
		return r.CertID == "id-2" && r.Name == "" && r.Course == "Bio"
	})).Return(nil).Once()

	o := newTestOrchestrator(t, provider, store)
	res, err := o.Run(context.Background(), template, twoRowTable(), Options{})
	require.NoError(t, err)
	store.AssertExpectations(t)

	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	assert.Empty(t, res.Errors)

	files := readArchive(t, res.Archive)
	assert.Equal(t, map[string][][]string{
		"Ana.pdf":           {{"Ana", "Math", "ID: id-1"}},
		"certificate_2.pdf": {{"{{name}}", "Bio", "ID: id-2"}},
	}, files)

	require.Len(t, res.Certificates, 2)
	assert.Equal(t, "Ana.pdf", res.Certificates[0].File)
	assert.Equal(t, 1, res.Certificates[0].Row)
	assert.Equal(t, "certificate_2.pdf", res.Certificates[1].File)

	for _, doc := range provider.Opened() {
		assert.True(t, doc.Closed())
	}
}

func TestRunSignsAndRecords(t *testing.T) {
	store := ledger.NewMemoryStore()
	o := newTestOrchestrator(t, certificateProvider(), store)

	res, err := o.Run(context.Background(), template, twoRowTable(), Options{})
	require.NoError(t, err)

	signer, err := signing.NewSigner("secret")
	require.NoError(t, err)

	issued := res.Certificates[0]
	tuple := signing.Tuple{Name: "Ana", Course: "Math", Date: "2024-05-01", CertID: issued.CertID}
	assert.True(t, signer.Verify(tuple, issued.Signature))

	rec, err := store.Get(context.Background(), issued.CertID)
	require.NoError(t, err)
	assert.Equal(t, issued.Signature, rec.Signature)
	assert.Equal(t, signing.ContentHash(tuple), rec.ContentHash)
	assert.Equal(t, fixedNow, rec.CreatedAt)
	assert.JSONEq(t, `{"Name":"Ana","Course":"Math"}`, string(rec.AdditionalData))
	assert.Equal(t, 2, store.Len())
}

func TestRunReregistersFonts(t *testing.T) {
	provider := certificateProvider()
	o := newTestOrchestrator(t, provider, ledger.NewMemoryStore())

	_, err := o.Run(context.Background(), template, twoRowTable(), Options{})
	require.NoError(t, err)

	opened := provider.Opened()
	require.Len(t, opened, 3)
	for _, doc := range opened {
		assert.True(t, doc.Registered("Lora"))
	}
	texts := opened[1].Pages()[0].Texts()
	require.NotEmpty(t, texts)
	assert.Equal(t, "Lora", texts[0].Font)
}

func TestRunFieldAliases(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		row     dataset.Row
		want    signing.Tuple
	}{
		{
			name:    "aliases",
			columns: []string{"ID", "Recipient", "Program", "Completion_Date"},
			row:     dataset.Row{"ID": "7", "Recipient": "Ana", "Program": "Math", "Completion_Date": "2023-12-01"},
			want:    signing.Tuple{Name: "Ana", Course: "Math", Date: "2023-12-01"},
		},
		{
			name:    "positional",
			columns: []string{"a", "b", "c"},
			row:     dataset.Row{"a": "Ana", "b": "Math", "c": "2023-01-01"},
			want:    signing.Tuple{Name: "Ana", Course: "Math", Date: "2023-01-01"},
		},
		{
			name:    "defaults",
			columns: []string{"a"},
			row:     dataset.Row{"a": "Ana"},
			want:    signing.Tuple{Name: "Ana", Course: "Unknown", Date: "2024-05-01"},
		},
		{
			name:    "later alias wins",
			columns: []string{"Name", "Student"},
			row:     dataset.Row{"Name": "A", "Student": "B"},
			want:    signing.Tuple{Name: "B", Course: "B", Date: "2024-05-01"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(t, certificateProvider(), ledger.NewMemoryStore())
			table := &dataset.Table{Columns: tt.columns}
			got := o.fields(table, tt.row, "cid")
			tt.want.CertID = "cid"
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunDuplicateDisplayNames(t *testing.T) {
	o := newTestOrchestrator(t, certificateProvider(), ledger.NewMemoryStore())
	table := &dataset.Table{
		Columns: []string{"Name"},
		Rows:    []dataset.Row{{"Name": "Ana"}, {"Name": "Ana"}, {"Name": "Bo"}},
	}

	res, err := o.Run(context.Background(), template, table, Options{})
	require.NoError(t, err)

	files := readArchive(t, res.Archive)
	assert.Len(t, files, 3)
	assert.Contains(t, files, "Ana.pdf")
	assert.Contains(t, files, "Ana_2.pdf")
	assert.Contains(t, files, "Bo.pdf")
}

func TestRunPartialFailure(t *testing.T) {
	store := new(mockStore)
	store.On("Put", mock.Anything, mock.MatchedBy(func(r *ledger.Record) bool { return r.CertID == "id-1" })).Return(nil)
	store.On("Put", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	o := newTestOrchestrator(t, certificateProvider(), store)
	res, err := o.Run(context.Background(), template, twoRowTable(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"Row 2: ledger: connection reset"}, res.Errors)
	assert.Len(t, readArchive(t, res.Archive), 1)
}

func TestRunFlagsSubstitutionFailures(t *testing.T) {
	provider := certificateProvider()
	provider.FailText = map[string]error{"Ana": errors.New("glyph missing")}
	core, logs := observer.New(zapcore.WarnLevel)

	o := newTestOrchestrator(t, provider, ledger.NewMemoryStore(), WithLogger(zap.New(core)))
	res, err := o.Run(context.Background(), template, twoRowTable(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	require.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Errors[0], `Row 1: marker "name"`)

	failed := logs.FilterMessage("certificate failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(1), failed[0].ContextMap()["row"])
	assert.Equal(t, true, failed[0].ContextMap()["substitution"])
}

func TestRunNoSuccess(t *testing.T) {
	provider := certificateProvider()
	store := new(mockStore)
	store.On("Put", mock.Anything, mock.Anything).Return(errors.New("down"))

	table := &dataset.Table{Columns: []string{"Name"}}
	for i := 0; i < 5; i++ {
		table.Rows = append(table.Rows, dataset.Row{"Name": fmt.Sprintf("n%d", i)})
	}

	o := newTestOrchestrator(t, provider, store)
	_, err := o.Run(context.Background(), template, table, Options{})
	require.Error(t, err)

	var nse *NoSuccessError
	require.True(t, errors.As(err, &nse))
	assert.Len(t, nse.Errors, 5)
	assert.Equal(t,
		"failed to generate any certificates. Errors: Row 1: ledger: down | Row 2: ledger: down | Row 3: ledger: down",
		err.Error())

	for _, doc := range provider.Opened() {
		assert.True(t, doc.Closed())
	}
}

func TestRunTruncatesRowErrors(t *testing.T) {
	provider := certificateProvider()
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	provider.FailText = map[string]error{"Ana": errors.New(string(long))}

	o := newTestOrchestrator(t, provider, ledger.NewMemoryStore())
	res, err := o.Run(context.Background(), template, twoRowTable(), Options{})
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	assert.Len(t, res.Errors[0], len("Row 1: ")+200)
}

func TestRunRejectsUnusableInput(t *testing.T) {
	store := ledger.NewMemoryStore()

	_, err := newTestOrchestrator(t, certificateProvider(), store).
		Run(context.Background(), template, &dataset.Table{Columns: []string{"Name"}}, Options{})
	assert.ErrorIs(t, err, dataset.ErrNoRows)

	blank := &layouttest.Provider{Pages: []layouttest.PageSpec{{Width: 600, Height: 400}}}
	_, err = newTestOrchestrator(t, blank, store).Run(context.Background(), template, twoRowTable(), Options{})
	assert.ErrorIs(t, err, placeholder.ErrNoMarkers)

	broken := &layouttest.Provider{OpenErr: errors.New("not a pdf")}
	_, err = newTestOrchestrator(t, broken, store).Run(context.Background(), template, twoRowTable(), Options{})
	assert.ErrorContains(t, err, "could not open template")

	assert.Equal(t, 0, store.Len())
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestOrchestrator(t, certificateProvider(), ledger.NewMemoryStore()).
		Run(ctx, template, twoRowTable(), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunOverlays(t *testing.T) {
	provider := certificateProvider()
	var urls []string
	qr := func(url string, size int) ([]byte, error) {
		urls = append(urls, url)
		if size != 120 {
			return nil, fmt.Errorf("unexpected size %d", size)
		}
		return []byte("png"), nil
	}

	o := newTestOrchestrator(t, provider, ledger.NewMemoryStore(), WithQRRenderer(qr))
	_, err := o.Run(context.Background(), template, twoRowTable(), Options{QRPosition: "top-right"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://certs.example.org/verify/id-1",
		"https://certs.example.org/verify/id-2",
	}, urls)

	page := provider.Opened()[1].Pages()[0]
	require.Len(t, page.Images(), 1)
	assert.Equal(t, layout.Rect{X0: 460, Y0: 20, X1: 580, Y1: 140}, page.Images()[0].Rect)
}

func TestRunQRFailureIsNotFatal(t *testing.T) {
	failing := func(string, int) ([]byte, error) { return nil, errors.New("encoder broke") }

	o := newTestOrchestrator(t, certificateProvider(), ledger.NewMemoryStore(), WithQRRenderer(failing))
	res, err := o.Run(context.Background(), template, twoRowTable(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Succeeded)
	files := readArchive(t, res.Archive)
	assert.Equal(t, [][]string{{"Ana", "Math"}}, files["Ana.pdf"])
}

func TestRunPostProcessor(t *testing.T) {
	var seen []map[string]string
	post := func(pdf []byte, props map[string]string) ([]byte, error) {
		seen = append(seen, props)
		if props["Recipient"] == "" {
			return nil, errors.New("cannot stamp")
		}
		return pdf, nil
	}

	o := newTestOrchestrator(t, certificateProvider(), ledger.NewMemoryStore(), WithPostProcessor(post))
	res, err := o.Run(context.Background(), template, twoRowTable(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Succeeded)
	require.Len(t, seen, 2)
	assert.Equal(t, map[string]string{
		"CertificateID": "id-1",
		"Recipient":     "Ana",
		"Course":        "Math",
		"IssueDate":     "2024-05-01",
	}, seen[0])
}

func TestRunCombinedFile(t *testing.T) {
	var merged int
	merger := func(docs [][]byte) ([]byte, error) {
		merged = len(docs)
		return json.Marshal([][]string{{fmt.Sprintf("%d certificates", len(docs))}})
	}

	o := newTestOrchestrator(t, certificateProvider(), ledger.NewMemoryStore(), WithMerger(merger))
	res, err := o.Run(context.Background(), template, twoRowTable(), Options{Combined: true})
	require.NoError(t, err)

	assert.Equal(t, 2, merged)
	files := readArchive(t, res.Archive)
	assert.Len(t, files, 3)
	assert.Equal(t, [][]string{{"2 certificates"}}, files["all_certificates.pdf"])
}

func TestRunCombinedFileFailureIsNotFatal(t *testing.T) {
	merger := func([][]byte) ([]byte, error) { return nil, errors.New("merge failed") }

	o := newTestOrchestrator(t, certificateProvider(), ledger.NewMemoryStore(), WithMerger(merger))
	res, err := o.Run(context.Background(), template, twoRowTable(), Options{Combined: true})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Succeeded)
	assert.Len(t, readArchive(t, res.Archive), 2)
}
