package policy

import (
	"gorm.io/gorm"

	"github.com/nbeldi/medossier/internal/models"
)

// ScopeQuery narrows a listing query to the rows u is allowed to see.
// The filter is applied at the query layer so row counts and existence
// never leak through pagination or totals.
//
// Agents list dossiers of their own department and PECs they created or
// are the patient of; normal users list subject records only.
func ScopeQuery(q *gorm.DB, u *models.User, kind string) *gorm.DB {
	subjectCol := "employer_id"
	if kind == models.KindPEC {
		subjectCol = "patient_id"
	}
	switch u.Role {
	case models.RoleAdmin, models.RoleController:
		return q
	case models.RoleAgent:
		if kind == models.KindDossier {
			// Qualified: listing queries may join users, which also has
			// a department column.
			return q.Where("medical_dossiers.department = ?", u.Department)
		}
		return q.Where("created_by_id = ? OR "+subjectCol+" = ?", u.ID, u.ID)
	case models.RoleNormal:
		return q.Where(subjectCol+" = ?", u.ID)
	}
	return q.Where("1 = 0")
}
