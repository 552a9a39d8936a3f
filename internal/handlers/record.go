package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/nbeldi/medossier/gate"
	"github.com/nbeldi/medossier/httpx"
	"github.com/nbeldi/medossier/internal/models"
	"github.com/nbeldi/medossier/internal/services"
)

// Shared plumbing between the dossier and PEC handlers: both expose the
// same sub-resources (transition, attachments, audit trail, exports) on
// top of their own record type.

const maxUploadBytes = 25 << 20

// recordLoader fetches the hydrated record for the actor, already policy
// checked by the workflow service.
type recordLoader func(r *http.Request, actor *models.User) (models.Record, error)

func handleTransition(db *gorm.DB, wf *services.WorkflowService, load recordLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(db, r)
		if !ok {
			httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		rec, err := load(r, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		var req struct {
			Action string `json:"action"`
		}
		if err := decodeJSON(r, &req); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if err := wf.Transition(r.Context(), rec, models.Transition(req.Action), actor); err != nil {
			writeServiceError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, rec)
	}
}

func handleAttachmentUpload(db *gorm.DB, svc *services.AttachmentService, load recordLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(db, r)
		if !ok {
			httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		rec, err := load(r, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_multipart")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			httpx.JSONFieldErrors(w, map[string]string{"file": "required"})
			return
		}
		defer file.Close()

		att := &models.Attachment{
			Name:        header.Filename,
			Type:        models.AttachmentType(strings.ToUpper(r.FormValue("type"))),
			Description: r.FormValue("description"),
		}
		if err := svc.Add(r.Context(), rec, actor, att, file); err != nil {
			writeServiceError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, att)
	}
}

// handleAttachmentScan ingests a scanner upload. The stored copy is always
// typed SCAN and its filename is marked with the Scanned_ prefix, whatever
// the client sent.
func handleAttachmentScan(db *gorm.DB, svc *services.AttachmentService, load recordLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(db, r)
		if !ok {
			httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		rec, err := load(r, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_multipart")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			httpx.JSONFieldErrors(w, map[string]string{"file": "required"})
			return
		}
		defer file.Close()

		att := &models.Attachment{
			Name:        "Scanned_" + header.Filename,
			Type:        models.AttachmentScan,
			Description: r.FormValue("description"),
		}
		if err := svc.Add(r.Context(), rec, actor, att, file); err != nil {
			writeServiceError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, att)
	}
}

func handleAttachmentList(db *gorm.DB, svc *services.AttachmentService, load recordLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(db, r)
		if !ok {
			httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		rec, err := load(r, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		atts, err := svc.ForRecord(r.Context(), rec, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, atts)
	}
}

func handleAttachmentDownload(db *gorm.DB, svc *services.AttachmentService, load recordLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(db, r)
		if !ok {
			httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		rec, err := load(r, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		attID, ok := pathID(r, "att")
		if !ok {
			httpx.JSONError(w, http.StatusNotFound, "not_found")
			return
		}
		att, rc, err := svc.Open(r.Context(), rec, actor, attID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Name))
		_, _ = io.Copy(w, rc)
	}
}

func handleAttachmentDelete(db *gorm.DB, svc *services.AttachmentService, load recordLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(db, r)
		if !ok {
			httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		rec, err := load(r, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		attID, ok := pathID(r, "att")
		if !ok {
			httpx.JSONError(w, http.StatusNotFound, "not_found")
			return
		}
		if err := svc.Remove(r.Context(), rec, actor, attID); err != nil {
			writeServiceError(w, err)
			return
		}
		httpx.NoContent(w)
	}
}

// handleAuditList serves a record's trail. Reviewer roles only; the trail
// names other users and pre-approval history.
func handleAuditList(db *gorm.DB, load recordLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(db, r)
		if !ok {
			httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !actor.Role.CanReview() {
			httpx.JSONError(w, http.StatusForbidden, "forbidden")
			return
		}
		rec, err := load(r, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		var entries []models.AuditLog
		err = db.WithContext(r.Context()).
			Preload("User").
			Where("record_kind = ? AND record_id = ?", rec.Kind(), rec.GetID()).
			Order("id DESC").Find(&entries).Error
		if err != nil {
			writeServiceError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, entries)
	}
}

func handleBundle(db *gorm.DB, g *gate.Gate[*models.User], kind string, bundle func(r *http.Request, w io.Writer, rec models.Record) error, load recordLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(db, r)
		if !ok {
			httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !g.Can(r.Context(), actor, gate.ActionExport, kind, nil) {
			httpx.JSONError(w, http.StatusForbidden, "forbidden")
			return
		}
		rec, err := load(r, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.GetReference()+".zip"))
		if err := bundle(r, w, rec); err != nil {
			// Headers are gone; nothing useful left to send.
			return
		}
	}
}

func servePDF(w http.ResponseWriter, reference string, doc []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reference+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	_, _ = w.Write(doc)
}

// parseDate reads the 2006-01-02 wire format used by record payloads.
func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// formFile pulls the named upload out of an already-parsed
// multipart form, if present.
func formFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, bool) {
	if r.MultipartForm == nil {
		return nil, nil, false
	}
	f, h, err := r.FormFile(field)
	if err != nil {
		return nil, nil, false
	}
	return f, h, true
}
