// Package policy computes, per (role, record, acting user), whether view,
// edit, and lifecycle actions are permitted, and scopes listing queries so
// a role never sees rows outside its visibility (filtered at the query,
// not after an unrestricted fetch).
package policy

import (
	"context"

	"github.com/nbeldi/medossier/gate"
	"github.com/nbeldi/medossier/internal/models"
)

// roleActions is the role × action permission table. Record-level checks
// (ownership, approval lock) come on top of it.
var roleActions = map[models.Role]map[gate.Action]bool{
	models.RoleAdmin: {
		gate.ActionView: true, gate.ActionCreate: true, gate.ActionUpdate: true,
		gate.ActionDelete: true, gate.ActionList: true, gate.ActionExport: true,
		gate.ActionSubmit: true, gate.ActionReview: true, gate.ActionApprove: true,
		gate.ActionReject: true, gate.ActionArchive: true,
	},
	models.RoleController: {
		gate.ActionView: true, gate.ActionCreate: true, gate.ActionUpdate: true,
		gate.ActionList: true, gate.ActionExport: true,
		gate.ActionSubmit: true, gate.ActionReview: true, gate.ActionApprove: true,
		gate.ActionReject: true, gate.ActionArchive: true,
	},
	models.RoleAgent: {
		gate.ActionView: true, gate.ActionCreate: true, gate.ActionUpdate: true,
		gate.ActionDelete: true, gate.ActionList: true, gate.ActionExport: true,
		gate.ActionSubmit: true,
	},
	models.RoleNormal: {
		gate.ActionView: true, gate.ActionList: true,
	},
}

// RoleAllows consults the permission table only, ignoring any specific record.
func RoleAllows(role models.Role, action gate.Action) bool {
	return roleActions[role][action]
}

// CanView reports whether u may see rec.
// Admins and controllers see everything; agents see records they created
// or where they are the subject; normal users see subject records only.
func CanView(u *models.User, rec models.Record) bool {
	if u == nil {
		return false
	}
	switch u.Role {
	case models.RoleAdmin, models.RoleController:
		return true
	case models.RoleAgent:
		return rec.GetCreatedByID() == u.ID || rec.GetSubjectID() == u.ID
	case models.RoleNormal:
		return rec.GetSubjectID() == u.ID
	}
	return false
}

// CanEdit reports whether u may mutate rec's content. Approved records are
// locked for everyone except admins.
func CanEdit(u *models.User, rec models.Record) bool {
	if u == nil {
		return false
	}
	switch u.Role {
	case models.RoleAdmin:
		return true
	case models.RoleController:
		return rec.GetStatus() != models.StatusApproved
	case models.RoleAgent:
		owns := rec.GetCreatedByID() == u.ID || rec.GetSubjectID() == u.ID
		return owns && rec.GetStatus() != models.StatusApproved
	}
	return false
}

// Locked reports whether an edit by u fails specifically because the
// record is approved, as opposed to u lacking rights on it altogether.
func Locked(u *models.User, rec models.Record) bool {
	if u == nil || u.Role == models.RoleAdmin {
		return false
	}
	return rec.GetStatus() == models.StatusApproved && CanView(u, rec) && RoleAllows(u.Role, gate.ActionUpdate)
}

// RecordPolicy implements gate.Policy for dossiers and PECs.
type RecordPolicy struct{}

// Can combines the role table with record-level view/edit rules.
// A nil resource is a subject-only check (create/list).
func (RecordPolicy) Can(_ context.Context, u *models.User, action gate.Action, resource any) bool {
	if u == nil || !RoleAllows(u.Role, action) {
		return false
	}
	rec, ok := resource.(models.Record)
	if !ok {
		return resource == nil
	}
	switch action {
	case gate.ActionView, gate.ActionList, gate.ActionExport:
		return CanView(u, rec)
	case gate.ActionUpdate:
		return CanEdit(u, rec)
	case gate.ActionDelete:
		// Deletion is tighter than editing: the creator or an admin only.
		return u.Role == models.RoleAdmin || rec.GetCreatedByID() == u.ID
	case gate.ActionSubmit:
		return CanView(u, rec)
	case gate.ActionReview, gate.ActionApprove, gate.ActionReject, gate.ActionArchive:
		// Table already restricts these to reviewers, who see everything.
		return true
	}
	return false
}

// NewGate builds the application gate with record policies registered.
func NewGate() *gate.Gate[*models.User] {
	g := gate.New[*models.User]()
	g.Register(models.KindDossier, RecordPolicy{})
	g.Register(models.KindPEC, RecordPolicy{})
	return g
}
