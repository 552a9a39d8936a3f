package models

import "time"

// CareType classifies the care expense of a prise en charge.
type CareType string

const (
	CareConsultation    CareType = "CONSULTATION"
	CareHospitalization CareType = "HOSPITALIZATION"
	CarePharmacy        CareType = "PHARMACY"
	CareLaboratory      CareType = "LABORATORY"
	CareSurgery         CareType = "SURGERY"
	CareDental          CareType = "DENTAL"
	CareOptical         CareType = "OPTICAL"
	CareOther           CareType = "OTHER"
)

// CareTypes lists the accepted values, for input validation.
var CareTypes = []string{
	string(CareConsultation), string(CareHospitalization), string(CarePharmacy),
	string(CareLaboratory), string(CareSurgery), string(CareDental),
	string(CareOptical), string(CareOther),
}

// PriseEnCharge is a cost-coverage request for a care expense.
type PriseEnCharge struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Reference string `gorm:"size:50;uniqueIndex;not null" json:"reference"`
	Status    Status `gorm:"size:20;not null;default:'DRAFT'" json:"status"`

	CreatedByID uint  `gorm:"index;not null" json:"created_by_id"`
	CreatedBy   *User `gorm:"foreignKey:CreatedByID;constraint:OnDelete:RESTRICT" json:"created_by,omitempty"`

	// PatientID is the covered employee. The row cannot be deleted while
	// a PEC references it.
	PatientID uint  `gorm:"index;not null" json:"patient_id"`
	Patient   *User `gorm:"foreignKey:PatientID;constraint:OnDelete:RESTRICT" json:"patient,omitempty"`

	ControllerID *uint `gorm:"index" json:"controller_id,omitempty"`
	Controller   *User `gorm:"foreignKey:ControllerID;constraint:OnDelete:SET NULL" json:"controller,omitempty"`

	Institution string   `gorm:"size:200;not null" json:"institution"`
	CareType    CareType `gorm:"size:50;not null;default:'CONSULTATION'" json:"care_type"`

	// EstimatedCost is the projected expense; CoveragePercentage is the
	// share covered, 0-100.
	EstimatedCost      float64 `gorm:"type:decimal(12,2);not null" json:"estimated_cost"`
	CoveragePercentage int     `gorm:"not null;default:100" json:"coverage_percentage"`

	Department string     `gorm:"size:100" json:"department"`
	StartDate  time.Time  `gorm:"not null" json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`

	Diagnosis string `gorm:"type:text" json:"diagnosis"`
	Physician string `gorm:"size:100" json:"physician"`
	Comments  string `gorm:"type:text" json:"comments,omitempty"`

	Priority     int  `gorm:"not null;default:2" json:"priority"`
	Confidential bool `gorm:"not null;default:false" json:"confidential"`

	Attachments []Attachment `gorm:"polymorphicType:RecordKind;polymorphicId:RecordID;polymorphicValue:pec" json:"attachments,omitempty"`
}

// Remainder is the cost share left to the patient after coverage.
func (p *PriseEnCharge) Remainder() float64 {
	return p.EstimatedCost * (1 - float64(p.CoveragePercentage)/100)
}

func (p *PriseEnCharge) Kind() string            { return KindPEC }
func (p *PriseEnCharge) ReferencePrefix() string { return "PEC" }

func (p *PriseEnCharge) GetID() uint             { return p.ID }
func (p *PriseEnCharge) GetReference() string    { return p.Reference }
func (p *PriseEnCharge) SetReference(ref string) { p.Reference = ref }
func (p *PriseEnCharge) GetStatus() Status       { return p.Status }
func (p *PriseEnCharge) SetStatus(s Status)      { p.Status = s }

func (p *PriseEnCharge) GetCreatedByID() uint      { return p.CreatedByID }
func (p *PriseEnCharge) GetSubjectID() uint        { return p.PatientID }
func (p *PriseEnCharge) GetControllerID() *uint    { return p.ControllerID }
func (p *PriseEnCharge) SetControllerID(id *uint)  { p.ControllerID = id }
func (p *PriseEnCharge) GetDepartment() string     { return p.Department }
func (p *PriseEnCharge) SetDepartment(dept string) { p.Department = dept }

func (p *PriseEnCharge) GetDateRange() (time.Time, *time.Time) {
	return p.StartDate, p.EndDate
}
