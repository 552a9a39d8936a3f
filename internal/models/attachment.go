package models

import "time"

// AttachmentType tags the nature of an attached document.
type AttachmentType string

const (
	AttachmentPrescription AttachmentType = "PRESCRIPTION"
	AttachmentCertificate  AttachmentType = "CERTIFICATE"
	AttachmentScan         AttachmentType = "SCAN"
	AttachmentTest         AttachmentType = "TEST"
	AttachmentReport       AttachmentType = "REPORT"
	AttachmentOther        AttachmentType = "OTHER"
)

// AttachmentTypes lists the accepted values, for input validation.
var AttachmentTypes = []string{
	string(AttachmentPrescription), string(AttachmentCertificate),
	string(AttachmentScan), string(AttachmentTest),
	string(AttachmentReport), string(AttachmentOther),
}

// Attachment is a file attached to exactly one record (dossier or PEC).
// It has no access policy of its own: visibility always delegates to the
// owning record. SizeKB is derived from the stored blob at save time,
// never trusted from input.
type Attachment struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Polymorphic owner: RecordKind is "dossier" or "pec".
	RecordKind string `gorm:"size:20;not null;index:idx_attachments_record" json:"record_kind"`
	RecordID   uint   `gorm:"not null;index:idx_attachments_record" json:"record_id"`

	Name        string         `gorm:"size:255;not null" json:"name"`
	Locator     string         `gorm:"size:255;not null" json:"-"` // file-store key, opaque to clients
	Type        AttachmentType `gorm:"size:20;not null;default:'OTHER'" json:"type"`
	Description string         `gorm:"type:text" json:"description,omitempty"`
	SizeKB      int64          `gorm:"not null" json:"size_kb"`

	UploadedByID *uint `gorm:"index" json:"uploaded_by_id,omitempty"`
	UploadedBy   *User `gorm:"foreignKey:UploadedByID;constraint:OnDelete:SET NULL" json:"uploaded_by,omitempty"`

	UploadedAt time.Time `gorm:"autoCreateTime" json:"uploaded_at"`
}
