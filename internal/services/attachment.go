package services

import (
	"context"
	"io"

	"gorm.io/gorm"

	"github.com/nbeldi/medossier/gate"
	"github.com/nbeldi/medossier/internal/models"
	"github.com/nbeldi/medossier/internal/policy"
	"github.com/nbeldi/medossier/internal/storage"
	"github.com/nbeldi/medossier/validation"
)

// AttachmentService manages the files attached to a record. Adding and
// removing follow the same permission rules as content edits, including
// the approval lock; downloads only require view access.
type AttachmentService struct {
	db    *gorm.DB
	g     *gate.Gate[*models.User]
	store storage.FileStore
}

func NewAttachmentService(db *gorm.DB, g *gate.Gate[*models.User], store storage.FileStore) *AttachmentService {
	return &AttachmentService{db: db, g: g, store: store}
}

// Store exposes the backing FileStore for callers that stage blobs
// themselves, such as create-with-attachment requests.
func (s *AttachmentService) Store() storage.FileStore { return s.store }

// Add stores the blob and creates the attachment row with its audit entry.
// The recorded size comes from the store, not from the client.
func (s *AttachmentService) Add(ctx context.Context, rec models.Record, actor *models.User, att *models.Attachment, body io.Reader) error {
	if err := s.editGuard(ctx, rec, actor); err != nil {
		return err
	}

	v := make(validation.Violations)
	validation.Required("name", att.Name, v)
	if att.Type == "" {
		att.Type = models.AttachmentOther
	}
	validation.OneOf("type", string(att.Type), models.AttachmentTypes, v)
	if !v.Empty() {
		return &ValidationError{Violations: v}
	}

	locator, size, err := s.store.Save(ctx, att.Name, body)
	if err != nil {
		return err
	}
	att.Locator = locator
	att.SizeKB = size / 1024
	att.RecordKind = rec.Kind()
	att.RecordID = rec.GetID()
	if actor != nil {
		id := actor.ID
		att.UploadedByID = &id
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(att).Error; err != nil {
			return err
		}
		return audit(tx, rec, models.AuditAttachmentAdd, actor.ID, map[string]any{
			"filename": att.Name,
			"size_kb":  att.SizeKB,
			"type":     string(att.Type),
		})
	})
	if err != nil {
		// Row never landed; drop the orphaned blob.
		_ = s.store.Remove(ctx, locator)
		return err
	}
	return nil
}

// Remove deletes the attachment row and its audit entry in one
// transaction, then removes the blob best-effort.
func (s *AttachmentService) Remove(ctx context.Context, rec models.Record, actor *models.User, attID uint) error {
	if err := s.editGuard(ctx, rec, actor); err != nil {
		return err
	}

	att, err := s.find(ctx, rec, attID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Attachment{}, att.ID).Error; err != nil {
			return err
		}
		return audit(tx, rec, models.AuditAttachmentRemove, actor.ID, map[string]any{
			"filename": att.Name,
		})
	})
	if err != nil {
		return err
	}
	_ = s.store.Remove(ctx, att.Locator)
	return nil
}

// Open returns the attachment metadata and its blob for download. View
// access to the owning record is required.
func (s *AttachmentService) Open(ctx context.Context, rec models.Record, actor *models.User, attID uint) (*models.Attachment, io.ReadCloser, error) {
	if !s.g.Can(ctx, actor, gate.ActionView, rec.Kind(), rec) {
		return nil, nil, gorm.ErrRecordNotFound
	}
	att, err := s.find(ctx, rec, attID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(ctx, att.Locator)
	if err != nil {
		return nil, nil, err
	}
	return att, rc, nil
}

// ForRecord lists a record's attachments, newest first.
func (s *AttachmentService) ForRecord(ctx context.Context, rec models.Record, actor *models.User) ([]models.Attachment, error) {
	if !s.g.Can(ctx, actor, gate.ActionView, rec.Kind(), rec) {
		return nil, gorm.ErrRecordNotFound
	}
	var out []models.Attachment
	err := s.db.WithContext(ctx).
		Where("record_kind = ? AND record_id = ?", rec.Kind(), rec.GetID()).
		Order("uploaded_at DESC").Find(&out).Error
	return out, err
}

func (s *AttachmentService) find(ctx context.Context, rec models.Record, attID uint) (*models.Attachment, error) {
	var att models.Attachment
	err := s.db.WithContext(ctx).
		Where("id = ? AND record_kind = ? AND record_id = ?", attID, rec.Kind(), rec.GetID()).
		First(&att).Error
	if err != nil {
		return nil, err
	}
	return &att, nil
}

func (s *AttachmentService) editGuard(ctx context.Context, rec models.Record, actor *models.User) error {
	if actor == nil {
		return gate.ErrUnauthorized
	}
	if !s.g.Can(ctx, actor, gate.ActionView, rec.Kind(), rec) {
		return gorm.ErrRecordNotFound
	}
	if !s.g.Can(ctx, actor, gate.ActionUpdate, rec.Kind(), rec) {
		if policy.Locked(actor, rec) {
			return ErrRecordLocked
		}
		return gate.ErrUnauthorized
	}
	return nil
}
