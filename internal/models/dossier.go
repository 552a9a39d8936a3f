package models

import "time"

// DossierCategory classifies a medical dossier.
type DossierCategory string

const (
	CategoryGeneral      DossierCategory = "GENERAL"
	CategoryOptique      DossierCategory = "OPTIQUE"
	CategoryCardiologie  DossierCategory = "CARDIOLOGIE"
	CategoryDentaire     DossierCategory = "DENTAIRE"
	CategoryORL          DossierCategory = "ORL"
	CategoryDermatologie DossierCategory = "DERMATOLOGIE"
	CategoryAutre        DossierCategory = "AUTRE"
)

// DossierCategories lists the accepted values, for input validation.
var DossierCategories = []string{
	string(CategoryGeneral), string(CategoryOptique), string(CategoryCardiologie),
	string(CategoryDentaire), string(CategoryORL), string(CategoryDermatologie),
	string(CategoryAutre),
}

// Priority levels for dossiers, 1 (low) to 4 (critical).
const (
	PriorityLow      = 1
	PriorityMedium   = 2
	PriorityHigh     = 3
	PriorityCritical = 4
)

// PriorityLabels maps a priority level to its display label.
var PriorityLabels = map[int]string{
	PriorityLow:      "Low",
	PriorityMedium:   "Medium",
	PriorityHigh:     "High",
	PriorityCritical: "Critical",
}

// MedicalDossier tracks an employee's treatment/approval workflow.
type MedicalDossier struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Reference string `gorm:"size:50;uniqueIndex;not null" json:"reference"`
	Status    Status `gorm:"size:20;not null;default:'DRAFT'" json:"status"`

	CreatedByID uint  `gorm:"index;not null" json:"created_by_id"`
	CreatedBy   *User `gorm:"foreignKey:CreatedByID;constraint:OnDelete:RESTRICT" json:"created_by,omitempty"`

	// EmployerID is the subject employee. The row cannot be deleted while
	// a dossier references it.
	EmployerID uint  `gorm:"index;not null" json:"employer_id"`
	Employer   *User `gorm:"foreignKey:EmployerID;constraint:OnDelete:RESTRICT" json:"employer,omitempty"`

	ControllerID *uint `gorm:"index" json:"controller_id,omitempty"`
	Controller   *User `gorm:"foreignKey:ControllerID;constraint:OnDelete:SET NULL" json:"controller,omitempty"`

	Category   DossierCategory `gorm:"size:50;not null;default:'GENERAL'" json:"category"`
	Department string          `gorm:"size:100" json:"department"`

	StartDate time.Time  `gorm:"not null" json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	Doctor        string `gorm:"size:100" json:"doctor"`
	Diagnosis     string `gorm:"type:text" json:"diagnosis"`
	TreatmentPlan string `gorm:"type:text" json:"treatment_plan"`
	Comments      string `gorm:"type:text" json:"comments,omitempty"`
	Reason        string `gorm:"size:255" json:"reason,omitempty"`

	Priority     int  `gorm:"not null;default:2" json:"priority"`
	Confidential bool `gorm:"not null;default:false" json:"confidential"`

	Attachments []Attachment `gorm:"polymorphicType:RecordKind;polymorphicId:RecordID;polymorphicValue:dossier" json:"attachments,omitempty"`
}

func (d *MedicalDossier) Kind() string            { return KindDossier }
func (d *MedicalDossier) ReferencePrefix() string { return "DM" }

func (d *MedicalDossier) GetID() uint             { return d.ID }
func (d *MedicalDossier) GetReference() string    { return d.Reference }
func (d *MedicalDossier) SetReference(ref string) { d.Reference = ref }
func (d *MedicalDossier) GetStatus() Status       { return d.Status }
func (d *MedicalDossier) SetStatus(s Status)      { d.Status = s }

func (d *MedicalDossier) GetCreatedByID() uint      { return d.CreatedByID }
func (d *MedicalDossier) GetSubjectID() uint        { return d.EmployerID }
func (d *MedicalDossier) GetControllerID() *uint    { return d.ControllerID }
func (d *MedicalDossier) SetControllerID(id *uint)  { d.ControllerID = id }
func (d *MedicalDossier) GetDepartment() string     { return d.Department }
func (d *MedicalDossier) SetDepartment(dept string) { d.Department = dept }

func (d *MedicalDossier) GetDateRange() (time.Time, *time.Time) {
	return d.StartDate, d.EndDate
}
