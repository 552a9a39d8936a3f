package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditAction tags a mutating action on a record.
type AuditAction string

const (
	AuditCreate           AuditAction = "CREATE"
	AuditUpdate           AuditAction = "UPDATE"
	AuditStatusChange     AuditAction = "STATUS_CHANGE"
	AuditAttachmentAdd    AuditAction = "ATTACHMENT_ADD"
	AuditAttachmentRemove AuditAction = "ATTACHMENT_REMOVE"
	AuditControllerAssign AuditAction = "CONTROLLER_ASSIGN"
)

// AuditLog is an immutable, append-only trail entry. Entries reference the
// record by kind+id (no foreign key), so they survive record deletion; the
// acting user is a nullable FK set to NULL when that user is removed.
// Entries are never updated or deleted.
type AuditLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	RecordKind string `gorm:"size:20;not null;index:idx_audit_record" json:"record_kind"`
	RecordID   uint   `gorm:"not null;index:idx_audit_record" json:"record_id"`
	Reference  string `gorm:"size:50;index" json:"reference"`

	Action AuditAction `gorm:"size:20;not null" json:"action"`

	UserID *uint `gorm:"index" json:"user_id,omitempty"`
	User   *User `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"user,omitempty"`

	Details   datatypes.JSONMap `json:"details"`
	CreatedAt time.Time         `json:"created_at"`
}
