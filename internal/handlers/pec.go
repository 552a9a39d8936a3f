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

type PECHandler struct {
	DB      *gorm.DB
	Gate    *gate.Gate[*models.User]
	Svc     *services.WorkflowService
	Atts    *services.AttachmentService
	PDF     *export.PDFBuilder
	Bundler *export.Bundler
}

func NewPECHandler(db *gorm.DB, g *gate.Gate[*models.User], svc *services.WorkflowService, atts *services.AttachmentService, pdf *export.PDFBuilder, bundler *export.Bundler) *PECHandler {
	return &PECHandler{DB: db, Gate: g, Svc: svc, Atts: atts, PDF: pdf, Bundler: bundler}
}

func (h *PECHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/pecs", h.list)
	mux.HandleFunc("POST /api/pecs", h.create)
	mux.HandleFunc("GET /api/pecs/{id}", h.detail)
	mux.HandleFunc("PUT /api/pecs/{id}", h.update)
	mux.HandleFunc("DELETE /api/pecs/{id}", h.delete)
	mux.HandleFunc("POST /api/pecs/{id}/transition", handleTransition(h.DB, h.Svc, h.load))
	mux.HandleFunc("GET /api/pecs/{id}/report", h.report)
	mux.HandleFunc("GET /api/pecs/{id}/bundle", handleBundle(h.DB, h.Gate, models.KindPEC, h.bundle, h.load))
	mux.HandleFunc("GET /api/pecs/{id}/audit", handleAuditList(h.DB, h.load))
	mux.HandleFunc("GET /api/pecs/{id}/attachments", handleAttachmentList(h.DB, h.Atts, h.load))
	mux.HandleFunc("POST /api/pecs/{id}/attachments", handleAttachmentUpload(h.DB, h.Atts, h.load))
	mux.HandleFunc("POST /api/pecs/{id}/attachments/scan", handleAttachmentScan(h.DB, h.Atts, h.load))
	mux.HandleFunc("GET /api/pecs/{id}/attachments/{att}", handleAttachmentDownload(h.DB, h.Atts, h.load))
	mux.HandleFunc("DELETE /api/pecs/{id}/attachments/{att}", handleAttachmentDelete(h.DB, h.Atts, h.load))
}

func (h *PECHandler) load(r *http.Request, actor *models.User) (models.Record, error) {
	id, ok := pathID(r, "id")
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return h.Svc.GetPEC(r.Context(), id, actor)
}

type pecReq struct {
	PatientID          uint    `json:"patient_id"`
	Institution        string  `json:"institution"`
	CareType           string  `json:"care_type"`
	EstimatedCost      float64 `json:"estimated_cost"`
	CoveragePercentage int     `json:"coverage_percentage"`
	Department         string  `json:"department"`
	StartDate          string  `json:"start_date"`
	EndDate            string  `json:"end_date"`
	Diagnosis          string  `json:"diagnosis"`
	Physician          string  `json:"physician"`
	Comments           string  `json:"comments"`
	Priority           int     `json:"priority"`
	Confidential       bool    `json:"confidential"`
	Status             string  `json:"status"`
}

func (req *pecReq) apply(p *models.PriseEnCharge) map[string]string {
	bad := map[string]string{}

	p.PatientID = req.PatientID
	p.Institution = strings.TrimSpace(req.Institution)
	p.CareType = models.CareType(strings.ToUpper(req.CareType))
	p.EstimatedCost = req.EstimatedCost
	p.CoveragePercentage = req.CoveragePercentage
	p.Department = strings.TrimSpace(req.Department)
	p.Diagnosis = req.Diagnosis
	p.Physician = strings.TrimSpace(req.Physician)
	p.Comments = req.Comments
	p.Priority = req.Priority
	p.Confidential = req.Confidential

	if req.StartDate != "" {
		t, err := parseDate(req.StartDate)
		if err != nil {
			bad["start_date"] = "invalid_date"
		} else {
			p.StartDate = t
		}
	}
	if req.EndDate == "" {
		p.EndDate = nil
	} else {
		t, err := parseDate(req.EndDate)
		if err != nil {
			bad["end_date"] = "invalid_date"
		} else {
			p.EndDate = &t
		}
	}
	return bad
}

func decodePECReq(r *http.Request) (*pecReq, error) {
	var req pecReq
	if strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, err
		}
		req.PatientID = formUint(r, "patient_id")
		req.Institution = r.FormValue("institution")
		req.CareType = r.FormValue("care_type")
		req.EstimatedCost, _ = strconv.ParseFloat(r.FormValue("estimated_cost"), 64)
		req.CoveragePercentage, _ = strconv.Atoi(r.FormValue("coverage_percentage"))
		req.Department = r.FormValue("department")
		req.StartDate = r.FormValue("start_date")
		req.EndDate = r.FormValue("end_date")
		req.Diagnosis = r.FormValue("diagnosis")
		req.Physician = r.FormValue("physician")
		req.Comments = r.FormValue("comments")
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

func (h *PECHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(h.DB, r)
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	items, err := h.Svc.ListPECs(r.Context(), actor, q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (h *PECHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(h.DB, r)
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	req, err := decodePECReq(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_payload")
		return
	}

	p := &models.PriseEnCharge{CreatedByID: actor.ID, Status: models.Status(strings.ToUpper(req.Status))}
	if bad := req.apply(p); len(bad) > 0 {
		httpx.JSONFieldErrors(w, bad)
		return
	}

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

	if err := h.Svc.Create(r.Context(), p, actor, atts); err != nil {
		for _, a := range atts {
			_ = h.Atts.Store().Remove(r.Context(), a.Locator)
		}
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *PECHandler) detail(w http.ResponseWriter, r *http.Request) {
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

func (h *PECHandler) update(w http.ResponseWriter, r *http.Request) {
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
	p := rec.(*models.PriseEnCharge)

	req, err := decodePECReq(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	if bad := req.apply(p); len(bad) > 0 {
		httpx.JSONFieldErrors(w, bad)
		return
	}
	if err := h.Svc.Update(r.Context(), p, actor); err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *PECHandler) delete(w http.ResponseWriter, r *http.Request) {
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

func (h *PECHandler) report(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(h.DB, r)
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.Gate.Can(r.Context(), actor, gate.ActionExport, models.KindPEC, nil) {
		httpx.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	rec, err := h.load(r, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	doc, err := h.PDF.PECReport(rec.(*models.PriseEnCharge))
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "report_failed")
		return
	}
	servePDF(w, rec.GetReference(), doc)
}

func (h *PECHandler) bundle(r *http.Request, w io.Writer, rec models.Record) error {
	return h.Bundler.PEC(r.Context(), rec.(*models.PriseEnCharge), w)
}
