package handlers

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/nbeldi/medossier/httpx"
	"github.com/nbeldi/medossier/internal/services"
)

type StatsHandler struct {
	DB  *gorm.DB
	Svc *services.StatsService
}

func NewStatsHandler(db *gorm.DB, svc *services.StatsService) *StatsHandler {
	return &StatsHandler{DB: db, Svc: svc}
}

func (h *StatsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stats", h.global)
}

func (h *StatsHandler) global(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(h.DB, r)
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	stats, err := h.Svc.Global(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
