// Package handlers provides HTTP handlers for the certificate API.
//
// This package contains the HTTP endpoints for session management,
// template, data and signature upload, analysis, generation, download and
// certificate verification.
//
// Example usage:
//
//	h := handlers.NewAPIHandler(sessionManager, uploadDir, outputDir, deps)
//	r := chi.NewRouter()
//	r.Post("/api/sessions/", h.CreateSession)
//
// All handlers are designed to be used with the chi router.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go-certgen/internal/batch"
	"go-certgen/internal/config"
	"go-certgen/internal/dataset"
	"go-certgen/internal/imaging"
	"go-certgen/internal/ledger"
	"go-certgen/internal/pdf"
	"go-certgen/internal/session"
	"go-certgen/internal/signing"
	"go-certgen/internal/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	maxTemplateSize  = 25 * 1024 * 1024
	maxDataSize      = 10 * 1024 * 1024
	maxSignatureSize = 5 * 1024 * 1024
)

// Dependencies are the services handlers delegate to.
type Dependencies struct {
	Batch   *batch.Orchestrator
	Ledger  ledger.Store
	Signer  *signing.Signer
	Overlay config.OverlayConfig
	Logger  *zap.Logger
}

type APIHandler struct {
	SessionManager *session.SessionManager
	UploadDir      string
	OutputDir      string
	Dependencies
}

func NewAPIHandler(sm *session.SessionManager, uploadDir, outputDir string, deps Dependencies) *APIHandler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &APIHandler{SessionManager: sm, UploadDir: uploadDir, OutputDir: outputDir, Dependencies: deps}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *APIHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, exists := h.SessionManager.GetSession(chi.URLParam(r, "sessionID"))
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
	}
	return s, exists
}

// upload reads the multipart file field into memory.
func upload(w http.ResponseWriter, r *http.Request, field string, maxSize int64) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		http.Error(w, "File too large", http.StatusBadRequest)
		return nil, "", false
	}
	file, handler, err := r.FormFile(field)
	if err != nil {
		http.Error(w, "Error retrieving file", http.StatusBadRequest)
		return nil, "", false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusBadRequest)
		return nil, "", false
	}
	return data, handler.Filename, true
}

func (h *APIHandler) save(w http.ResponseWriter, prefix, name string, data []byte) (string, bool) {
	filename := fmt.Sprintf("%s-%s-%s", prefix, utils.GenerateUUID(), utils.SanitizeFilename(name))
	path := filepath.Join(h.UploadDir, filename)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		h.Logger.Error("failed to save upload", zap.String("path", path), zap.Error(err))
		http.Error(w, "Failed to save file", http.StatusInternalServerError)
		return "", false
	}
	return path, true
}

// CreateSession godoc
// @Summary      Create a new session
// @Description  Creates a new certificate session and returns a session ID
// @Tags         sessions
// @Produce      json
// @Success      200  {object}  map[string]string  "{ sessionId: string }"
// @Router       /api/sessions/ [post]
func (h *APIHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	session := h.SessionManager.CreateSession()
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": session.ID})
}

// UploadTemplate godoc
// @Summary      Upload a certificate template
// @Description  Uploads the PDF template whose placeholders will be filled
// @Tags         files
// @Accept       multipart/form-data
// @Produce      json
// @Param        sessionID  path      string  true  "Session ID"
// @Param        template   formData  file    true  "PDF template"
// @Success      200  {object}  map[string]interface{}  "{ filename: string, size: int, pages: int }"
// @Failure      400  {string}  string  "Bad request"
// @Failure      404  {string}  string  "Session not found"
// @Router       /api/sessions/{sessionID}/template [post]
func (h *APIHandler) UploadTemplate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	data, name, ok := upload(w, r, "template", maxTemplateSize)
	if !ok {
		return
	}

	if strings.ToLower(filepath.Ext(name)) != ".pdf" {
		http.Error(w, "Only PDF files are allowed", http.StatusBadRequest)
		return
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		http.Error(w, "Uploaded file is not a valid PDF", http.StatusBadRequest)
		return
	}
	if err := pdf.Validate(data); err != nil {
		h.Logger.Info("template rejected", zap.String("session", session.ID), zap.Error(err))
		http.Error(w, "Uploaded file is not a valid PDF", http.StatusBadRequest)
		return
	}
	pages, err := pdf.PageCount(data)
	if err != nil {
		http.Error(w, "Uploaded file is not a valid PDF", http.StatusBadRequest)
		return
	}

	path, ok := h.save(w, "template", name, data)
	if !ok {
		return
	}
	session.SetTemplate(path)
	writeJSON(w, http.StatusOK, map[string]any{
		"filename": filepath.Base(path),
		"size":     len(data),
		"pages":    pages,
	})
}

// UploadData godoc
// @Summary      Upload recipient data
// @Description  Uploads a CSV or Excel file with one row per certificate
// @Tags         files
// @Accept       multipart/form-data
// @Produce      json
// @Param        sessionID  path      string  true  "Session ID"
// @Param        data       formData  file    true  "CSV or XLSX file"
// @Success      200  {object}  map[string]interface{}  "{ filename: string, rows: int, columns: [string] }"
// @Failure      400  {string}  string  "Bad request"
// @Failure      404  {string}  string  "Session not found"
// @Router       /api/sessions/{sessionID}/data [post]
func (h *APIHandler) UploadData(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	data, name, ok := upload(w, r, "data", maxDataSize)
	if !ok {
		return
	}

	table, err := dataset.Read(bytes.NewReader(data), name)
	switch {
	case errors.Is(err, dataset.ErrUnsupportedFormat):
		http.Error(w, "Only CSV and Excel files are allowed", http.StatusBadRequest)
		return
	case errors.Is(err, dataset.ErrNoRows):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.Logger.Info("data file rejected", zap.String("session", session.ID), zap.Error(err))
		http.Error(w, "Could not read data file", http.StatusBadRequest)
		return
	}

	path, ok := h.save(w, "data", name, data)
	if !ok {
		return
	}
	session.SetData(path, table)
	writeJSON(w, http.StatusOK, map[string]any{
		"filename": filepath.Base(path),
		"rows":     len(table.Rows),
		"columns":  table.Columns,
	})
}

// UploadSignature godoc
// @Summary      Upload a signature image
// @Description  Uploads a signature image (PNG/JPEG) stamped on every certificate
// @Tags         signature
// @Accept       multipart/form-data
// @Produce      json
// @Param        sessionID  path      string  true  "Session ID"
// @Param        signature  formData  file    true  "Signature image file (PNG/JPEG)"
// @Success      200  {object}  map[string]interface{}  "{ filename: string, size: int }"
// @Failure      400  {string}  string  "Bad request - invalid image format"
// @Failure      404  {string}  string  "Session not found"
// @Router       /api/sessions/{sessionID}/signature [post]
func (h *APIHandler) UploadSignature(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	data, name, ok := upload(w, r, "signature", maxSignatureSize)
	if !ok {
		return
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
		http.Error(w, "Only PNG and JPEG images are allowed", http.StatusBadRequest)
		return
	}

	contentType := http.DetectContentType(data)
	validExtensions := map[string][]string{
		"image/jpeg": {".jpg", ".jpeg"},
		"image/png":  {".png"},
	}
	extensions, allowed := validExtensions[contentType]
	if !allowed {
		http.Error(w, "Invalid image format. Only PNG and JPEG images are allowed", http.StatusBadRequest)
		return
	}
	if !slices.Contains(extensions, ext) {
		http.Error(w, "File extension doesn't match content type", http.StatusBadRequest)
		return
	}
	if _, err := imaging.Normalize(data, imaging.MaxWidth); err != nil {
		http.Error(w, "Invalid image format. Only PNG and JPEG images are allowed", http.StatusBadRequest)
		return
	}

	path, ok := h.save(w, "sig", name, data)
	if !ok {
		return
	}
	session.SetSignature(path)
	writeJSON(w, http.StatusOK, map[string]any{
		"filename": filepath.Base(path),
		"size":     len(data),
	})
}

// DownloadFile godoc
// @Summary      Download generated certificates
// @Description  Downloads the ZIP archive generated for the session
// @Tags         files
// @Produce      application/zip
// @Param        sessionID  path      string  true  "Session ID"
// @Param        filename   path      string  true  "Archive filename"
// @Success      200  {file}  file  "ZIP archive download"
// @Failure      403  {string}  string  "Unauthorized access to file"
// @Failure      404  {string}  string  "Session or file not found"
// @Router       /api/sessions/{sessionID}/files/{filename} [get]
func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	filename := chi.URLParam(r, "filename")
	path := filepath.Join(h.OutputDir, filename)

	session.Mutex.Lock()
	owned := session.OutputFile == path
	session.Mutex.Unlock()
	if !owned {
		http.Error(w, "Unauthorized access to file", http.StatusForbidden)
		return
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\"certificates.zip\"")
	w.Header().Set("Content-Type", "application/zip")
	http.ServeFile(w, r, path)
}
