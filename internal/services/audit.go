package services

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/nbeldi/medossier/internal/models"
)

// audit appends an immutable trail entry inside the caller's transaction,
// so the entry commits or rolls back atomically with the mutation it
// describes. actorID 0 records an entry with no acting user.
func audit(tx *gorm.DB, rec models.Record, action models.AuditAction, actorID uint, details map[string]any) error {
	entry := models.AuditLog{
		RecordKind: rec.Kind(),
		RecordID:   rec.GetID(),
		Reference:  rec.GetReference(),
		Action:     action,
		Details:    datatypes.JSONMap(details),
	}
	if actorID != 0 {
		entry.UserID = &actorID
	}
	return tx.Create(&entry).Error
}
