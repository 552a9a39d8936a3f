// Package handlers exposes the JSON API. Each handler resolves the acting
// user from the session, delegates to the services layer, and maps the
// service errors onto HTTP statuses in one place.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/nbeldi/medossier/auth"
	"github.com/nbeldi/medossier/gate"
	"github.com/nbeldi/medossier/httpx"
	"github.com/nbeldi/medossier/internal/models"
	"github.com/nbeldi/medossier/internal/services"
)

// currentUser loads the session's user. Handlers behind RequireAuth can
// still lose the race against deactivation, so inactive users are
// rejected here too.
func currentUser(db *gorm.DB, r *http.Request) (*models.User, bool) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return nil, false
	}
	var u models.User
	if err := db.First(&u, uid).Error; err != nil || !u.Active {
		return nil, false
	}
	return &u, true
}

// pathID parses a numeric path segment registered as {name} in the mux
// pattern.
func pathID(r *http.Request, name string) (uint, bool) {
	n, err := strconv.ParseUint(r.PathValue(name), 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeServiceError translates a services-layer error into its HTTP
// shape. Out-of-scope records already arrive as ErrRecordNotFound, so a
// 404 here never confirms existence.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.JSONFieldErrors(w, verr.Violations)
	case errors.Is(err, gorm.ErrRecordNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, gate.ErrUnauthorized):
		httpx.JSONError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, services.ErrRecordLocked):
		httpx.JSONError(w, http.StatusLocked, "record_locked")
	case errors.Is(err, services.ErrConflictingTransition):
		httpx.JSONError(w, http.StatusConflict, "conflicting_transition")
	case errors.Is(err, services.ErrInvalidTransition):
		httpx.JSONError(w, http.StatusUnprocessableEntity, "invalid_transition")
	default:
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error")
	}
}
