package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/nbeldi/medossier/gate"
	"github.com/nbeldi/medossier/httpx"
	"github.com/nbeldi/medossier/internal/export"
	"github.com/nbeldi/medossier/internal/models"
	"github.com/nbeldi/medossier/internal/services"
)

type DossierHandler struct {
	DB      *gorm.DB
	Gate    *gate.Gate[*models.User]
	Svc     *services.WorkflowService
	Atts    *services.AttachmentService
	PDF     *export.PDFBuilder
	Bundler *export.Bundler
}

func NewDossierHandler(db *gorm.DB, g *gate.Gate[*models.User], svc *services.WorkflowService, atts *services.AttachmentService, pdf *export.PDFBuilder, bundler *export.Bundler) *DossierHandler {
	return &DossierHandler{DB: db, Gate: g, Svc: svc, Atts: atts, PDF: pdf, Bundler: bundler}
}

func (h *DossierHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/dossiers", h.list)
	mux.HandleFunc("POST /api/dossiers", h.create)
	mux.HandleFunc("GET /api/dossiers/{id}", h.detail)
	mux.HandleFunc("PUT /api/dossiers/{id}", h.update)
	mux.HandleFunc("DELETE /api/dossiers/{id}", h.delete)
	mux.HandleFunc("POST /api/dossiers/{id}/transition", handleTransition(h.DB, h.Svc, h.load))
	mux.HandleFunc("GET /api/dossiers/{id}/report", h.report)
	mux.HandleFunc("GET /api/dossiers/{id}/bundle", handleBundle(h.DB, h.Gate, models.KindDossier, h.bundle, h.load))
	mux.HandleFunc("GET /api/dossiers/{id}/audit", handleAuditList(h.DB, h.load))
	mux.HandleFunc("GET /api/dossiers/{id}/attachments", handleAttachmentList(h.DB, h.Atts, h.load))
	mux.HandleFunc("POST /api/dossiers/{id}/attachments", handleAttachmentUpload(h.DB, h.Atts, h.load))
	mux.HandleFunc("POST /api/dossiers/{id}/attachments/scan", handleAttachmentScan(h.DB, h.Atts, h.load))
	mux.HandleFunc("GET /api/dossiers/{id}/attachments/{att}", handleAttachmentDownload(h.DB, h.Atts, h.load))
	mux.HandleFunc("DELETE /api/dossiers/{id}/attachments/{att}", handleAttachmentDelete(h.DB, h.Atts, h.load))
}

func (h *DossierHandler) load(r *http.Request, actor *models.User) (models.Record, error) {
	id, ok := pathID(r, "id")
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return h.Svc.GetDossier(r.Context(), id, actor)
}

type dossierReq struct {
	EmployerID    uint   `json:"employer_id"`
	Category      string `json:"category"`
	Department    string `json:"department"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	Doctor        string `json:"doctor"`
	Diagnosis     string `json:"diagnosis"`
	TreatmentPlan string `json:"treatment_plan"`
	Comments      string `json:"comments"`
	Reason        string `json:"reason"`
	Priority      int    `json:"priority"`
	Confidential  bool   `json:"confidential"`
	Status        string `json:"status"`
}

// apply copies the payload onto the model. Dates arrive as 2006-01-02;
// a malformed date is reported as a field violation by leaving the zero
// value for the service to flag.
func (req *dossierReq) apply(d *models.MedicalDossier) map[string]string {
	bad := map[string]string{}

	d.EmployerID = req.EmployerID
	d.Category = models.DossierCategory(strings.ToUpper(req.Category))
	d.Department = strings.TrimSpace(req.Department)
	d.Doctor = strings.TrimSpace(req.Doctor)
	d.Diagnosis = req.Diagnosis
	d.TreatmentPlan = req.TreatmentPlan
	d.Comments = req.Comments
	d.Reason = req.Reason
	d.Priority = req.Priority
	d.Confidential = req.Confidential

	if req.StartDate != "" {
		t, err := parseDate(req.StartDate)
		if err != nil {
			bad["start_date"] = "invalid_date"
		} else {
			d.StartDate = t
		}
	}
	if req.EndDate == "" {
		d.EndDate = nil
	} else {
		t, err := parseDate(req.EndDate)
		if err != nil {
			bad["end_date"] = "invalid_date"
		} else {
			d.EndDate = &t
		}
	}
	return bad
}

// decodeDossierReq reads the payload from JSON or from multipart form
// fields (the latter used when creating with an initial attachment).
func decodeDossierReq(r *http.Request) (*dossierReq, error) {
	var req dossierReq
	if strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, err
		}
		req.EmployerID = formUint(r, "employer_id")
		req.Category = r.FormValue("category")
		req.Department = r.FormValue("department")
		req.StartDate = r.FormValue("start_date")
		req.EndDate = r.FormValue("end_date")
		req.Doctor = r.FormValue("doctor")
		req.Diagnosis = r.FormValue("diagnosis")
		req.TreatmentPlan = r.FormValue("treatment_plan")
		req.Comments = r.FormValue("comments")
		req.Reason = r.FormValue("reason")
		req.Priority, _ = strconv.Atoi(r.FormValue("priority"))
		req.Confidential = r.FormValue("confidential") == "true"
		req.Status = r.FormValue("status")
		return &req, nil
	}
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (h *DossierHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(h.DB, r)
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	items, err := h.Svc.ListDossiers(r.Context(), actor, q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (h *DossierHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(h.DB, r)
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	req, err := decodeDossierReq(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_payload")
		return
	}

	d := &models.MedicalDossier{CreatedByID: actor.ID, Status: models.Status(strings.ToUpper(req.Status))}
	if bad := req.apply(d); len(bad) > 0 {
		httpx.JSONFieldErrors(w, bad)
		return
	}

	// An initial attachment may ride along in the multipart form; it is
	// stored first so its row lands in the same transaction as the record.
	var atts []*models.Attachment
	if f, header, ok := formFile(r, "file"); ok {
		defer f.Close()
		att := &models.Attachment{
			Name: header.Filename,
			Type: models.AttachmentType(strings.ToUpper(r.FormValue("attachment_type"))),
		}
		if att.Type == "" {
			att.Type = models.AttachmentOther
		}
		locator, size, err := h.Atts.Store().Save(r.Context(), att.Name, f)
		if err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		att.Locator = locator
		att.SizeKB = size / 1024
		uid := actor.ID
		att.UploadedByID = &uid
		atts = append(atts, att)
	}

	if err := h.Svc.Create(r.Context(), d, actor, atts); err != nil {
		for _, a := range atts {
			_ = h.Atts.Store().Remove(r.Context(), a.Locator)
		}
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *DossierHandler) detail(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(h.DB, r)
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	rec, err := h.load(r, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *DossierHandler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(h.DB, r)
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	rec, err := h.load(r, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	d := rec.(*models.MedicalDossier)

	req, err := decodeDossierReq(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	if bad := req.apply(d); len(bad) > 0 {
		httpx.JSONFieldErrors(w, bad)
		return
	}
	if err := h.Svc.Update(r.Context(), d, actor); err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *DossierHandler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(h.DB, r)
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	rec, err := h.load(r, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.Svc.Delete(r.Context(), rec, actor); err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *DossierHandler) report(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(h.DB, r)
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.Gate.Can(r.Context(), actor, gate.ActionExport, models.KindDossier, nil) {
		httpx.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	rec, err := h.load(r, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	doc, err := h.PDF.DossierReport(rec.(*models.MedicalDossier))
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "report_failed")
		return
	}
	servePDF(w, rec.GetReference(), doc)
}

func (h *DossierHandler) bundle(r *http.Request, w io.Writer, rec models.Record) error {
	return h.Bundler.Dossier(r.Context(), rec.(*models.MedicalDossier), w)
}

func formUint(r *http.Request, field string) uint {
	n, _ := strconv.ParseUint(r.FormValue(field), 10, 32)
	return uint(n)
}
