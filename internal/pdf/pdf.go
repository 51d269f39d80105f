// Package pdf reads certificate templates and renders filled certificates.
//
// Provider implements layout.Provider:
//   - parsing, text positions and font resources come from tabula.
//   - output is written with gofpdf; the template's first page is imported
//     through gofpdi and every redaction, text and image is drawn over it.
//
// The functions in this file post-process finished documents with pdfcpu:
//   - Validate: Checks that bytes form a well-formed PDF.
//   - PageCount: Returns the number of pages.
//   - StampProperties: Writes certificate metadata into the document info.
//   - Merge: Concatenates certificates into one printable file.
package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func Validate(data []byte) error {
	config := model.NewDefaultConfiguration()
	return pdfapi.Validate(bytes.NewReader(data), config)
}

func PageCount(data []byte) (int, error) {
	config := model.NewDefaultConfiguration()
	return pdfapi.PageCount(bytes.NewReader(data), config)
}

// StampProperties returns data with props added to its document info
// dictionary. It matches batch.PostProcessor.
func StampProperties(data []byte, props map[string]string) ([]byte, error) {
	config := model.NewDefaultConfiguration()
	var out bytes.Buffer
	if err := pdfapi.AddProperties(bytes.NewReader(data), &out, props, config); err != nil {
		return nil, fmt.Errorf("failed to add properties: %w", err)
	}
	return out.Bytes(), nil
}

// Merge concatenates docs in order.
func Merge(docs [][]byte) ([]byte, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("nothing to merge")
	}
	dir, err := os.MkdirTemp("", "certgen-merge-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	files := make([]string, len(docs))
	for i, doc := range docs {
		files[i] = filepath.Join(dir, fmt.Sprintf("%04d.pdf", i))
		if err := os.WriteFile(files[i], doc, 0o600); err != nil {
			return nil, err
		}
	}
	outputPath := filepath.Join(dir, "merged.pdf")
	config := model.NewDefaultConfiguration()
	if err := pdfapi.MergeCreateFile(files, outputPath, false, config); err != nil {
		return nil, fmt.Errorf("failed to merge: %w", err)
	}
	return os.ReadFile(outputPath)
}
