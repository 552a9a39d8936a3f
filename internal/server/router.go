// Package server assembles the HTTP routing tree: public auth and health
// endpoints at the root, everything under /api/ behind the session check.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/nbeldi/medossier/auth"
	"github.com/nbeldi/medossier/httpx"
	"github.com/nbeldi/medossier/internal/export"
	"github.com/nbeldi/medossier/internal/handlers"
	"github.com/nbeldi/medossier/internal/models"
	"github.com/nbeldi/medossier/internal/policy"
	"github.com/nbeldi/medossier/internal/services"
	"github.com/nbeldi/medossier/internal/storage"
)

// Deps carries the wired collaborators the router hands to its handlers.
type Deps struct {
	DB       *gorm.DB
	Assigner services.ControllerAssigner
	Store    storage.FileStore
}

// New constructs the root http.Handler with all routes and middleware
// applied.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()

	// RequireAuth re-checks that the session's user still exists and is
	// active, so a deactivated account dies at the door.
	verify := func(_ context.Context, uid uint) bool {
		var count int64
		err := d.DB.Model(&models.User{}).Where("id = ? AND active = ?", uid, true).
			Limit(1).Count(&count).Error
		return err == nil && count > 0
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := d.DB.Exec("SELECT 1").Error; err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	handlers.NewAuthHandler(d.DB).Register(mux)

	g := policy.NewGate()
	wf := services.NewWorkflowService(d.DB, g, d.Assigner, d.Store)
	atts := services.NewAttachmentService(d.DB, g, d.Store)
	stats := services.NewStatsService(d.DB)
	pdf := export.NewPDFBuilder()
	bundler := export.NewBundler(pdf, d.Store)

	protected := http.NewServeMux()
	handlers.NewDossierHandler(d.DB, g, wf, atts, pdf, bundler).Register(protected)
	handlers.NewPECHandler(d.DB, g, wf, atts, pdf, bundler).Register(protected)
	handlers.NewStatsHandler(d.DB, stats).Register(protected)
	handlers.NewUserHandler(d.DB).Register(protected)
	handlers.NewAuditHandler(d.DB).Register(protected)

	// /api/auth/* stays public via the more specific patterns above; the
	// rest of /api/ requires a valid session.
	mux.Handle("/api/", auth.RequireAuth(verify, protected))

	return auth.Middleware(withLogging(mux))
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
