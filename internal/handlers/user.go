package handlers

import (
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/nbeldi/medossier/httpx"
	"github.com/nbeldi/medossier/internal/models"
)

// UserHandler is the admin surface for user management: listing accounts,
// granting roles, and activating/deactivating.
type UserHandler struct{ DB *gorm.DB }

func NewUserHandler(db *gorm.DB) *UserHandler { return &UserHandler{DB: db} }

func (h *UserHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users", h.list)
	mux.HandleFunc("PATCH /api/users/{id}", h.update)
}

func (h *UserHandler) admin(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	actor, ok := currentUser(h.DB, r)
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	if actor.Role != models.RoleAdmin {
		httpx.JSONError(w, http.StatusForbidden, "forbidden")
		return nil, false
	}
	return actor, true
}

func (h *UserHandler) list(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.admin(w, r); !ok {
		return
	}
	dbq := h.DB.WithContext(r.Context()).Order("id")
	if role := strings.ToUpper(r.URL.Query().Get("role")); role != "" {
		dbq = dbq.Where("role = ?", role)
	}
	var users []models.User
	if err := dbq.Find(&users).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": users, "total": len(users)})
}

type userUpdateReq struct {
	Role       *string `json:"role"`
	Active     *bool   `json:"active"`
	Department *string `json:"department"`
}

func (h *UserHandler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.admin(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, "not_found")
		return
	}
	var req userUpdateReq
	if err := decodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	var u models.User
	if err := h.DB.First(&u, id).Error; err != nil {
		httpx.JSONError(w, http.StatusNotFound, "not_found")
		return
	}

	if req.Role != nil {
		role := models.Role(strings.ToUpper(*req.Role))
		if !role.Valid() {
			httpx.JSONFieldErrors(w, map[string]string{"role": "invalid_value"})
			return
		}
		u.Role = role
	}
	if req.Active != nil {
		// An admin cannot deactivate their own account.
		if !*req.Active && u.ID == actor.ID {
			httpx.JSONFieldErrors(w, map[string]string{"active": "cannot_deactivate_self"})
			return
		}
		u.Active = *req.Active
	}
	if req.Department != nil {
		u.Department = strings.TrimSpace(*req.Department)
	}

	if err := h.DB.Save(&u).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}
