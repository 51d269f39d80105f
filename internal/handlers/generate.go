package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go-certgen/internal/batch"
	"go-certgen/internal/dataset"
	"go-certgen/internal/placeholder"
	"go-certgen/internal/session"

	"go.uber.org/zap"
)

const previewRows = 5

type match struct {
	Placeholder string `json:"placeholder"`
	Column      string `json:"column"`
}

type analysisResponse struct {
	SessionID    string              `json:"sessionId"`
	Placeholders []string            `json:"placeholders"`
	Columns      []string            `json:"columns"`
	Matched      []match             `json:"matched"`
	Unmatched    []string            `json:"unmatched"`
	Total        int                 `json:"total"`
	Preview      []map[string]string `json:"preview"`
	HasSignature bool                `json:"hasSignature"`
}

type generateRequest struct {
	QRPosition        string `json:"qrPosition"`
	SignaturePosition string `json:"signaturePosition"`
	Combined          bool   `json:"combined"`
}

type generateResponse struct {
	DownloadURL  string         `json:"downloadUrl"`
	Succeeded    int            `json:"succeeded"`
	Failed       int            `json:"failed"`
	Errors       []string       `json:"errors"`
	Certificates []batch.Issued `json:"certificates"`
}

// matchColumns pairs each placeholder with the column of the same name,
// ignoring case and surrounding space.
func matchColumns(names, columns []string) ([]match, []string) {
	index := make(map[string]string, len(columns))
	for _, c := range columns {
		key := strings.ToLower(strings.TrimSpace(c))
		if _, ok := index[key]; !ok {
			index[key] = c
		}
	}
	matched := []match{}
	unmatched := []string{}
	for _, n := range names {
		if col, ok := index[strings.ToLower(strings.TrimSpace(n))]; ok {
			matched = append(matched, match{Placeholder: n, Column: col})
		} else {
			unmatched = append(unmatched, n)
		}
	}
	return matched, unmatched
}

func preview(table *dataset.Table) []map[string]string {
	n := min(len(table.Rows), previewRows)
	rows := make([]map[string]string, 0, n)
	for _, row := range table.Rows[:n] {
		rows = append(rows, map[string]string(row))
	}
	return rows
}

// Analyze godoc
// @Summary      Analyze the template against the data
// @Description  Lists template placeholders and pairs them with data columns
// @Tags         actions
// @Produce      json
// @Param        sessionID  path  string  true  "Session ID"
// @Success      200  {object}  analysisResponse
// @Failure      400  {string}  string  "Template or data missing"
// @Failure      404  {string}  string  "Session not found"
// @Failure      422  {string}  string  "Template has no placeholders"
// @Router       /api/sessions/{sessionID}/actions/analyze [post]
func (h *APIHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	templatePath, signaturePath, table := session.Inputs()
	if templatePath == "" || table == nil {
		http.Error(w, "Upload a template and a data file first", http.StatusBadRequest)
		return
	}

	template, err := os.ReadFile(templatePath)
	if err != nil {
		h.Logger.Error("failed to read template", zap.String("session", session.ID), zap.Error(err))
		http.Error(w, "Failed to read template", http.StatusInternalServerError)
		return
	}
	res, err := h.Batch.Analyze(template)
	if err != nil {
		if errors.Is(err, placeholder.ErrNoMarkers) {
			http.Error(w, "No placeholders found in template", http.StatusUnprocessableEntity)
			return
		}
		h.Logger.Warn("analysis failed", zap.String("session", session.ID), zap.Error(err))
		http.Error(w, "Failed to analyze template", http.StatusUnprocessableEntity)
		return
	}
	session.SetAnalysis(res)

	names := res.Names()
	matched, unmatched := matchColumns(names, table.Columns)
	writeJSON(w, http.StatusOK, analysisResponse{
		SessionID:    session.ID,
		Placeholders: names,
		Columns:      table.Columns,
		Matched:      matched,
		Unmatched:    unmatched,
		Total:        len(table.Rows),
		Preview:      preview(table),
		HasSignature: signaturePath != "",
	})
}

// Generate godoc
// @Summary      Generate certificates
// @Description  Renders one certificate per data row and packs them into a ZIP archive
// @Tags         actions
// @Accept       json
// @Produce      json
// @Param        sessionID  path  string           true   "Session ID"
// @Param        options    body  generateRequest  false  "Overlay positions"
// @Success      200  {object}  generateResponse
// @Failure      400  {string}  string  "Template or data missing"
// @Failure      404  {string}  string  "Session not found"
// @Failure      409  {string}  string  "Generation already in progress"
// @Failure      422  {string}  string  "No certificate could be generated"
// @Router       /api/sessions/{sessionID}/actions/generate [post]
func (h *APIHandler) Generate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	req := generateRequest{
		QRPosition:        h.Overlay.QRPosition,
		SignaturePosition: h.Overlay.SignaturePosition,
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.QRPosition == "" {
		req.QRPosition = h.Overlay.QRPosition
	}
	if req.SignaturePosition == "" {
		req.SignaturePosition = h.Overlay.SignaturePosition
	}

	sess.Mutex.Lock()
	if sess.Status == session.StatusGenerating {
		sess.Mutex.Unlock()
		http.Error(w, "Generation already in progress", http.StatusConflict)
		return
	}
	templatePath, signaturePath, table := sess.TemplateFile, sess.SignatureFile, sess.Table
	if templatePath == "" || table == nil {
		sess.Mutex.Unlock()
		http.Error(w, "Upload a template and a data file first", http.StatusBadRequest)
		return
	}
	sess.Status = session.StatusGenerating
	sess.Mutex.Unlock()

	status := session.StatusIdle
	defer func() {
		sess.Mutex.Lock()
		sess.Status = status
		sess.Mutex.Unlock()
	}()

	template, err := os.ReadFile(templatePath)
	if err != nil {
		h.Logger.Error("failed to read template", zap.String("session", sess.ID), zap.Error(err))
		http.Error(w, "Failed to read template", http.StatusInternalServerError)
		return
	}
	opts := batch.Options{
		QRPosition:        req.QRPosition,
		SignaturePosition: req.SignaturePosition,
		Combined:          req.Combined,
	}
	if signaturePath != "" {
		if opts.Signature, err = os.ReadFile(signaturePath); err != nil {
			h.Logger.Warn("signature unreadable, continuing without it",
				zap.String("session", sess.ID), zap.Error(err))
		}
	}

	res, err := h.Batch.Run(r.Context(), template, table, opts)
	if err != nil {
		var none *batch.NoSuccessError
		switch {
		case errors.As(err, &none):
			http.Error(w, none.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, placeholder.ErrNoMarkers):
			http.Error(w, "No placeholders found in template", http.StatusUnprocessableEntity)
		case errors.Is(err, dataset.ErrNoRows):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.Logger.Error("generation failed", zap.String("session", sess.ID), zap.Error(err))
			http.Error(w, fmt.Sprintf("Failed to generate certificates: %v", err), http.StatusInternalServerError)
		}
		return
	}

	filename := fmt.Sprintf("certificates-%s.zip", sess.ID)
	outputPath := filepath.Join(h.OutputDir, filename)
	if err := os.WriteFile(outputPath, res.Archive, 0o600); err != nil {
		h.Logger.Error("failed to write archive", zap.String("path", outputPath), zap.Error(err))
		http.Error(w, "Failed to save certificates", http.StatusInternalServerError)
		return
	}
	sess.Mutex.Lock()
	sess.OutputFile = outputPath
	sess.Mutex.Unlock()
	status = session.StatusDone

	errs := res.Errors
	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, http.StatusOK, generateResponse{
		DownloadURL:  fmt.Sprintf("/api/sessions/%s/files/%s", sess.ID, filename),
		Succeeded:    res.Succeeded,
		Failed:       res.Failed,
		Errors:       errs,
		Certificates: res.Certificates,
	})
}
