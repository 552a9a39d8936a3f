package models

import "time"

// Status is the lifecycle state shared by dossiers and PECs.
type Status string

const (
	StatusDraft       Status = "DRAFT"
	StatusSubmitted   Status = "SUBMITTED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusArchived    Status = "ARCHIVED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected, StatusArchived:
		return true
	}
	return false
}

// StatusLabels maps a status to its display label, as shown in reports.
var StatusLabels = map[Status]string{
	StatusDraft:       "Brouillon",
	StatusSubmitted:   "Soumis",
	StatusUnderReview: "En révision",
	StatusApproved:    "Approuvé",
	StatusRejected:    "Rejeté",
	StatusArchived:    "Archivé",
}

// Label returns the display label for s, falling back to the raw value.
func (s Status) Label() string {
	if l, ok := StatusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Transition is a named status change on a record.
type Transition string

const (
	TransitionSubmit  Transition = "submit"
	TransitionReview  Transition = "review"
	TransitionApprove Transition = "approve"
	TransitionReject  Transition = "reject"
	TransitionArchive Transition = "archive"
)

// transitionTable enumerates the legal status changes.
var transitionTable = map[Transition]struct {
	from []Status
	to   Status
}{
	TransitionSubmit:  {from: []Status{StatusDraft}, to: StatusSubmitted},
	TransitionReview:  {from: []Status{StatusSubmitted}, to: StatusUnderReview},
	TransitionApprove: {from: []Status{StatusSubmitted, StatusUnderReview}, to: StatusApproved},
	TransitionReject:  {from: []Status{StatusSubmitted, StatusUnderReview}, to: StatusRejected},
	TransitionArchive: {from: []Status{StatusApproved, StatusRejected}, to: StatusArchived},
}

// Valid reports whether t is a known transition.
func (t Transition) Valid() bool {
	_, ok := transitionTable[t]
	return ok
}

// Apply returns the resulting status when t is taken from current.
// ok is false when the transition is not defined from current.
func (t Transition) Apply(current Status) (next Status, ok bool) {
	entry, known := transitionTable[t]
	if !known {
		return "", false
	}
	for _, s := range entry.from {
		if s == current {
			return entry.to, true
		}
	}
	return "", false
}

// Record kinds used for polymorphic attachment/audit references and for
// routing policy decisions.
const (
	KindDossier = "dossier"
	KindPEC     = "pec"
)

// Record is the shared lifecycle trait of MedicalDossier and PriseEnCharge.
// The workflow engine, policies, reference generator, and audit logger all
// operate on this interface rather than on the two concrete types.
type Record interface {
	Kind() string
	ReferencePrefix() string

	GetID() uint
	GetReference() string
	SetReference(ref string)
	GetStatus() Status
	SetStatus(s Status)

	GetCreatedByID() uint
	// GetSubjectID is the employer (dossier) or patient (PEC).
	GetSubjectID() uint
	GetControllerID() *uint
	SetControllerID(id *uint)

	GetDepartment() string
	SetDepartment(d string)
	GetDateRange() (start time.Time, end *time.Time)
}
