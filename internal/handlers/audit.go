package handlers

import (
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/nbeldi/medossier/httpx"
	"github.com/nbeldi/medossier/internal/models"
)

// AuditHandler serves the cross-record audit trail. Reviewer roles only;
// the per-record trails live under the record handlers.
type AuditHandler struct {
	DB *gorm.DB
}

func NewAuditHandler(db *gorm.DB) *AuditHandler {
	return &AuditHandler{DB: db}
}

func (h *AuditHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/audit", h.list)
}

const defaultAuditPageSize = 200

func (h *AuditHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(h.DB, r)
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !actor.Role.CanReview() {
		httpx.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}

	limit := defaultAuditPageSize
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			httpx.JSONFieldErrors(w, map[string]string{"limit": "out_of_range"})
			return
		}
		limit = n
	}

	var entries []models.AuditLog
	err := h.DB.WithContext(r.Context()).
		Preload("User").
		Order("id DESC").Limit(limit).
		Find(&entries).Error
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries, "total": len(entries)})
}
