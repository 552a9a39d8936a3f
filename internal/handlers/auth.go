package handlers

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/nbeldi/medossier/auth"
	"github.com/nbeldi/medossier/httpx"
	"github.com/nbeldi/medossier/internal/models"
	"github.com/nbeldi/medossier/validation"
)

type AuthHandler struct{ DB *gorm.DB }

func NewAuthHandler(db *gorm.DB) *AuthHandler { return &AuthHandler{DB: db} }

func (h *AuthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/signup", h.signup)
	mux.HandleFunc("POST /api/auth/login", h.login)
	mux.HandleFunc("POST /api/auth/logout", h.logout)
	mux.HandleFunc("GET /api/auth/me", h.me)
}

type signupReq struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FullName   string `json:"full_name"`
	EmployeeID string `json:"employee_id"`
	Department string `json:"department"`
}

// signup self-registers a NORMAL user. Staff roles are granted by an
// admin afterwards, never chosen at signup.
func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupReq
	if err := decodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	v := make(validation.Violations)
	validation.Required("email", req.Email, v)
	validation.Required("full_name", req.FullName, v)
	if len(req.Password) < 8 {
		v["password"] = "too_short"
	}
	if !v.Empty() {
		httpx.JSONFieldErrors(w, v)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	u := models.User{
		Email:      req.Email,
		Password:   string(hash),
		FullName:   strings.TrimSpace(req.FullName),
		Department: strings.TrimSpace(req.Department),
		Role:       models.RoleNormal,
		Active:     true,
	}
	if req.EmployeeID != "" {
		eid := strings.TrimSpace(req.EmployeeID)
		u.EmployeeID = &eid
	}
	if err := h.DB.Create(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			httpx.JSONError(w, http.StatusConflict, "email_or_employee_id_taken")
			return
		}
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	auth.CreateSession(w, u.ID)
	httpx.JSON(w, http.StatusCreated, u)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	var u models.User
	err := h.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&u).Error
	// Same response for unknown email, wrong password, and deactivated
	// account.
	if err != nil || !u.Active ||
		bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)) != nil {
		httpx.JSONError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	auth.CreateSession(w, u.ID)
	httpx.JSON(w, http.StatusOK, u)
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSession(w)
	httpx.NoContent(w)
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(h.DB, r)
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}
