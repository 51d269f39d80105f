package handlers

import (
	"errors"
	"html/template"
	"net/http"
	"time"

	"go-certgen/internal/ledger"
	"go-certgen/internal/signing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type certificateView struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Course    string    `json:"course"`
	IssueDate string    `json:"issueDate"`
	IssuedAt  time.Time `json:"issuedAt"`
}

type verifyResponse struct {
	Found       bool             `json:"found"`
	Valid       bool             `json:"valid"`
	CertID      string           `json:"certId,omitempty"`
	Message     string           `json:"message,omitempty"`
	Certificate *certificateView `json:"certificate,omitempty"`
}

// lookup resolves certID against the ledger and rechecks its signature.
func (h *APIHandler) lookup(r *http.Request, certID string) (verifyResponse, error) {
	rec, err := h.Ledger.Get(r.Context(), certID)
	if errors.Is(err, ledger.ErrNotFound) {
		return verifyResponse{Found: false, CertID: certID, Message: "Certificate not found"}, nil
	}
	if err != nil {
		return verifyResponse{}, err
	}
	valid := h.Signer.Verify(signing.Tuple{
		Name:   rec.Name,
		Course: rec.Course,
		Date:   rec.Date,
		CertID: rec.CertID,
	}, rec.Signature)
	return verifyResponse{
		Found: true,
		Valid: valid,
		Certificate: &certificateView{
			ID:        rec.CertID,
			Recipient: rec.Name,
			Course:    rec.Course,
			IssueDate: rec.Date,
			IssuedAt:  rec.CreatedAt,
		},
	}, nil
}

// VerifyAPI godoc
// @Summary      Verify a certificate
// @Description  Looks up a certificate by id and checks its signature
// @Tags         verify
// @Produce      json
// @Param        certID  path  string  true  "Certificate ID"
// @Success      200  {object}  verifyResponse
// @Failure      404  {object}  verifyResponse
// @Router       /api/verify/{certID} [get]
func (h *APIHandler) VerifyAPI(w http.ResponseWriter, r *http.Request) {
	certID := chi.URLParam(r, "certID")
	res, err := h.lookup(r, certID)
	if err != nil {
		h.Logger.Error("ledger lookup failed", zap.String("cert_id", certID), zap.Error(err))
		http.Error(w, "Verification unavailable", http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if !res.Found {
		status = http.StatusNotFound
	}
	writeJSON(w, status, res)
}

var verifyPage = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Certificate verification</title>
<style>
body { font-family: sans-serif; max-width: 40rem; margin: 3rem auto; padding: 0 1rem; color: #222; }
.status { padding: 1rem; border-radius: 6px; font-weight: bold; }
.ok { background: #e6f4ea; color: #1e7e34; }
.bad { background: #fdecea; color: #b02a37; }
dt { font-weight: bold; margin-top: .75rem; }
</style>
</head>
<body>
<h1>Certificate verification</h1>
{{if not .Found}}
<p class="status bad">No certificate with id {{.CertID}} was issued.</p>
{{else if .Valid}}
<p class="status ok">This certificate is authentic.</p>
{{else}}
<p class="status bad">This certificate record failed its integrity check.</p>
{{end}}
{{with .Certificate}}
<dl>
<dt>Recipient</dt><dd>{{.Recipient}}</dd>
<dt>Course</dt><dd>{{.Course}}</dd>
<dt>Date</dt><dd>{{.IssueDate}}</dd>
<dt>Certificate ID</dt><dd>{{.ID}}</dd>
<dt>Issued</dt><dd>{{.IssuedAt.Format "2006-01-02 15:04 MST"}}</dd>
</dl>
{{end}}
</body>
</html>
`))

// VerifyPage renders the human-readable verification page the QR code
// points at.
func (h *APIHandler) VerifyPage(w http.ResponseWriter, r *http.Request) {
	certID := chi.URLParam(r, "certID")
	res, err := h.lookup(r, certID)
	if err != nil {
		h.Logger.Error("ledger lookup failed", zap.String("cert_id", certID), zap.Error(err))
		http.Error(w, "Verification unavailable", http.StatusInternalServerError)
		return
	}
	if res.CertID == "" {
		res.CertID = certID
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if !res.Found {
		w.WriteHeader(http.StatusNotFound)
	}
	if err := verifyPage.Execute(w, res); err != nil {
		h.Logger.Warn("verify page render failed", zap.Error(err))
	}
}
