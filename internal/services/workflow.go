package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nbeldi/medossier/gate"
	"github.com/nbeldi/medossier/internal/models"
	"github.com/nbeldi/medossier/internal/policy"
	"github.com/nbeldi/medossier/internal/refs"
	"github.com/nbeldi/medossier/internal/storage"
	"github.com/nbeldi/medossier/validation"
)

// WorkflowService drives the shared record lifecycle: creation with
// reference assignment, content updates under the approval lock, and
// status transitions with their audit trail. All multi-step mutations run
// in a single transaction so the audit entry commits with the change it
// describes.
type WorkflowService struct {
	db       *gorm.DB
	g        *gate.Gate[*models.User]
	assigner ControllerAssigner
	store    storage.FileStore
	now      func() time.Time
}

func NewWorkflowService(db *gorm.DB, g *gate.Gate[*models.User], assigner ControllerAssigner, store storage.FileStore) *WorkflowService {
	return &WorkflowService{db: db, g: g, assigner: assigner, store: store, now: time.Now}
}

// Create validates rec, assigns its reference, persists it together with
// any pre-stored attachments, and writes the CREATE audit entry. rec's
// status must be DRAFT or SUBMITTED (both are legal entry points); when
// an agent submits directly without a controller, one is auto-assigned.
func (s *WorkflowService) Create(ctx context.Context, rec models.Record, actor *models.User, atts []*models.Attachment) error {
	if !s.g.Can(ctx, actor, gate.ActionCreate, rec.Kind(), nil) {
		return gate.ErrUnauthorized
	}
	if rec.GetStatus() == "" {
		rec.SetStatus(models.StatusDraft)
	}
	if st := rec.GetStatus(); st != models.StatusDraft && st != models.StatusSubmitted {
		return &ValidationError{Violations: validation.Violations{"status": "invalid_initial_status"}}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.normalize(tx, rec); err != nil {
			return err
		}

		var assigned *models.User
		if rec.GetStatus() == models.StatusSubmitted && rec.GetControllerID() == nil && actor.Role == models.RoleAgent {
			c, err := s.assigner.Assign(tx, rec)
			if err != nil {
				return err
			}
			if c != nil {
				assigned = c
				id := c.ID
				rec.SetControllerID(&id)
			}
		}

		if err := s.insertWithReference(tx, rec); err != nil {
			return err
		}

		if err := audit(tx, rec, models.AuditCreate, actor.ID, map[string]any{
			"reference": rec.GetReference(),
			"status":    string(rec.GetStatus()),
		}); err != nil {
			return err
		}
		if assigned != nil {
			if err := audit(tx, rec, models.AuditControllerAssign, actor.ID, map[string]any{
				"controller_id": assigned.ID,
				"controller":    assigned.FullName,
			}); err != nil {
				return err
			}
		}

		for _, att := range atts {
			att.RecordKind = rec.Kind()
			att.RecordID = rec.GetID()
			if err := tx.Create(att).Error; err != nil {
				return err
			}
			if err := audit(tx, rec, models.AuditAttachmentAdd, actor.ID, map[string]any{
				"filename": att.Name,
				"size_kb":  att.SizeKB,
				"type":     string(att.Type),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// insertWithReference generates the reference and inserts the row. The
// unique constraint on reference backstops concurrent creations under the
// same date prefix: one duplicate-key failure re-queries the suffix inside
// a savepoint and retries; a second one is ErrReferenceGeneration.
func (s *WorkflowService) insertWithReference(tx *gorm.DB, rec models.Record) error {
	for attempt := 0; attempt < 2; attempt++ {
		err := tx.Transaction(func(sp *gorm.DB) error {
			ref, err := refs.Next(sp, rec, rec.ReferencePrefix(), s.now())
			if err != nil {
				return err
			}
			rec.SetReference(ref)
			return sp.Create(rec).Error
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	return ErrReferenceGeneration
}

// Update persists a content mutation. The reference, creator, and status
// never change through this path; approved records reject non-admin edits
// with ErrRecordLocked.
func (s *WorkflowService) Update(ctx context.Context, rec models.Record, actor *models.User) error {
	if actor == nil {
		return gate.ErrUnauthorized
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The stored row is authoritative for the immutable fields; the
		// policy checks run against it, not against caller-supplied values.
		var stored struct {
			Reference   string
			CreatedByID uint
			Status      models.Status
		}
		if err := tx.Model(rec).Where("id = ?", rec.GetID()).
			Select("reference", "created_by_id", "status").Scan(&stored).Error; err != nil {
			return err
		}
		if stored.Reference == "" {
			return gorm.ErrRecordNotFound
		}
		restoreImmutable(rec, stored.Reference, stored.CreatedByID, stored.Status)

		if !s.g.Can(ctx, actor, gate.ActionView, rec.Kind(), rec) {
			return gorm.ErrRecordNotFound
		}
		if !s.g.Can(ctx, actor, gate.ActionUpdate, rec.Kind(), rec) {
			if policy.Locked(actor, rec) {
				return ErrRecordLocked
			}
			return gate.ErrUnauthorized
		}

		if err := s.normalize(tx, rec); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(rec).Error; err != nil {
			return err
		}
		return audit(tx, rec, models.AuditUpdate, actor.ID, map[string]any{
			"reference": rec.GetReference(),
		})
	})
}

// Transition applies a named status change. Reviewer-only transitions are
// rejected for agents; a concurrent status change on the same record makes
// the loser fail with ErrConflictingTransition (guarded update, no silent
// overwrite). Rejected transitions write no audit entry; applied ones
// write exactly one STATUS_CHANGE.
func (s *WorkflowService) Transition(ctx context.Context, rec models.Record, t models.Transition, actor *models.User) error {
	if actor == nil {
		return gate.ErrUnauthorized
	}
	if !s.g.Can(ctx, actor, gate.ActionView, rec.Kind(), rec) {
		return gorm.ErrRecordNotFound
	}
	if !t.Valid() {
		return ErrInvalidTransition
	}
	if !s.g.Can(ctx, actor, gate.Action(t), rec.Kind(), rec) {
		return gate.ErrUnauthorized
	}

	oldStatus := rec.GetStatus()
	next, ok := t.Apply(oldStatus)
	if !ok {
		return ErrInvalidTransition
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"status": next}

		var assigned *models.User
		if t == models.TransitionSubmit && rec.GetControllerID() == nil {
			var creator models.User
			if err := tx.First(&creator, rec.GetCreatedByID()).Error; err != nil {
				return err
			}
			if creator.Role == models.RoleAgent {
				c, err := s.assigner.Assign(tx, rec)
				if err != nil {
					return err
				}
				if c != nil {
					assigned = c
					updates["controller_id"] = c.ID
				}
			}
		}

		res := tx.Model(rec).Where("id = ? AND status = ?", rec.GetID(), oldStatus).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflictingTransition
		}
		rec.SetStatus(next)
		if assigned != nil {
			id := assigned.ID
			rec.SetControllerID(&id)
		}

		if err := audit(tx, rec, models.AuditStatusChange, actor.ID, map[string]any{
			"old_status": string(oldStatus),
			"new_status": string(next),
		}); err != nil {
			return err
		}
		if assigned != nil {
			return audit(tx, rec, models.AuditControllerAssign, actor.ID, map[string]any{
				"controller_id": assigned.ID,
				"controller":    assigned.FullName,
			})
		}
		return nil
	})
}

// Delete removes a record with its attachments. Only admins and the
// creator may delete. Attachment blobs are removed best-effort after the
// rows are gone; audit entries are kept (they reference by kind+id, not FK).
func (s *WorkflowService) Delete(ctx context.Context, rec models.Record, actor *models.User) error {
	if actor == nil {
		return gate.ErrUnauthorized
	}
	if !s.g.Can(ctx, actor, gate.ActionView, rec.Kind(), rec) {
		return gorm.ErrRecordNotFound
	}
	if !s.g.Can(ctx, actor, gate.ActionDelete, rec.Kind(), rec) {
		return gate.ErrUnauthorized
	}

	var locators []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var atts []models.Attachment
		if err := tx.Where("record_kind = ? AND record_id = ?", rec.Kind(), rec.GetID()).Find(&atts).Error; err != nil {
			return err
		}
		for _, a := range atts {
			locators = append(locators, a.Locator)
		}
		if err := tx.Where("record_kind = ? AND record_id = ?", rec.Kind(), rec.GetID()).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(rec).Error
	})
	if err != nil {
		return err
	}
	for _, loc := range locators {
		_ = s.store.Remove(ctx, loc)
	}
	return nil
}

// GetDossier loads a dossier with its relations; records outside the
// actor's view scope surface as not-found, indistinguishable from
// missing rows.
func (s *WorkflowService) GetDossier(ctx context.Context, id uint, actor *models.User) (*models.MedicalDossier, error) {
	var d models.MedicalDossier
	err := s.db.WithContext(ctx).
		Preload("CreatedBy").Preload("Employer").Preload("Controller").Preload("Attachments").
		First(&d, id).Error
	if err != nil {
		return nil, err
	}
	if !s.g.Can(ctx, actor, gate.ActionView, models.KindDossier, &d) {
		return nil, gorm.ErrRecordNotFound
	}
	return &d, nil
}

// GetPEC is the PEC counterpart of GetDossier.
func (s *WorkflowService) GetPEC(ctx context.Context, id uint, actor *models.User) (*models.PriseEnCharge, error) {
	var p models.PriseEnCharge
	err := s.db.WithContext(ctx).
		Preload("CreatedBy").Preload("Patient").Preload("Controller").Preload("Attachments").
		First(&p, id).Error
	if err != nil {
		return nil, err
	}
	if !s.g.Can(ctx, actor, gate.ActionView, models.KindPEC, &p) {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

// ListDossiers returns the dossiers in the actor's scope, most urgent
// first, optionally filtered on reference or employer name.
func (s *WorkflowService) ListDossiers(ctx context.Context, actor *models.User, q string) ([]models.MedicalDossier, error) {
	if !s.g.Can(ctx, actor, gate.ActionList, models.KindDossier, nil) {
		return nil, gate.ErrUnauthorized
	}
	dbq := policy.ScopeQuery(s.db.WithContext(ctx).Model(&models.MedicalDossier{}), actor, models.KindDossier)
	if q != "" {
		like := "%" + q + "%"
		dbq = dbq.Joins("LEFT JOIN users employers ON employers.id = medical_dossiers.employer_id").
			Where("medical_dossiers.reference LIKE ? OR employers.full_name LIKE ?", like, like)
	}
	var out []models.MedicalDossier
	err := dbq.Preload("Employer").Preload("Controller").
		Order("priority DESC, created_at DESC").Find(&out).Error
	return out, err
}

// ListPECs returns the PECs in the actor's scope, newest first,
// optionally filtered on reference, patient name, or institution.
func (s *WorkflowService) ListPECs(ctx context.Context, actor *models.User, q string) ([]models.PriseEnCharge, error) {
	if !s.g.Can(ctx, actor, gate.ActionList, models.KindPEC, nil) {
		return nil, gate.ErrUnauthorized
	}
	dbq := policy.ScopeQuery(s.db.WithContext(ctx).Model(&models.PriseEnCharge{}), actor, models.KindPEC)
	if q != "" {
		like := "%" + q + "%"
		dbq = dbq.Joins("LEFT JOIN users patients ON patients.id = prise_en_charges.patient_id").
			Where("prise_en_charges.reference LIKE ? OR patients.full_name LIKE ? OR prise_en_charges.institution LIKE ?", like, like, like)
	}
	var out []models.PriseEnCharge
	err := dbq.Preload("Patient").Preload("Controller").
		Order("created_at DESC").Find(&out).Error
	return out, err
}

// normalize enforces the field-level invariants shared by every save:
// required fields, date ordering, bounded priority/coverage, and the
// department default taken from the subject user when left blank.
func (s *WorkflowService) normalize(tx *gorm.DB, rec models.Record) error {
	v := make(validation.Violations)

	subjectField := "employer_id"
	if rec.Kind() == models.KindPEC {
		subjectField = "patient_id"
	}
	validation.RequiredID(subjectField, rec.GetSubjectID(), v)
	validation.RequiredID("created_by_id", rec.GetCreatedByID(), v)

	start, end := rec.GetDateRange()
	if start.IsZero() {
		v["start_date"] = "required"
	}
	validation.DateOrder("end_date", start, end, v)

	switch r := rec.(type) {
	case *models.MedicalDossier:
		if r.Category == "" {
			r.Category = models.CategoryGeneral
		}
		if r.Priority == 0 {
			r.Priority = models.PriorityMedium
		}
		validation.Required("doctor", r.Doctor, v)
		validation.Required("diagnosis", r.Diagnosis, v)
		validation.Required("treatment_plan", r.TreatmentPlan, v)
		validation.RangeInt("priority", r.Priority, models.PriorityLow, models.PriorityCritical, v)
		validation.OneOf("category", string(r.Category), models.DossierCategories, v)
	case *models.PriseEnCharge:
		if r.CareType == "" {
			r.CareType = models.CareConsultation
		}
		if r.Priority == 0 {
			r.Priority = models.PriorityMedium
		}
		validation.Required("institution", r.Institution, v)
		validation.Required("diagnosis", r.Diagnosis, v)
		validation.NonNegativeFloat("estimated_cost", r.EstimatedCost, v)
		validation.RangeInt("coverage_percentage", r.CoveragePercentage, 0, 100, v)
		validation.RangeInt("priority", r.Priority, models.PriorityLow, models.PriorityCritical, v)
		validation.OneOf("care_type", string(r.CareType), models.CareTypes, v)
	}
	if !v.Empty() {
		return &ValidationError{Violations: v}
	}

	if rec.GetDepartment() == "" {
		var subject models.User
		if err := tx.First(&subject, rec.GetSubjectID()).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return &ValidationError{Violations: validation.Violations{subjectField: "unknown_user"}}
			}
			return err
		}
		dept := subject.Department
		if dept == "" {
			dept = "Non spécifié"
		}
		rec.SetDepartment(dept)
	}
	return nil
}

func restoreImmutable(rec models.Record, ref string, creator uint, status models.Status) {
	rec.SetReference(ref)
	rec.SetStatus(status)
	switch r := rec.(type) {
	case *models.MedicalDossier:
		r.CreatedByID = creator
	case *models.PriseEnCharge:
		r.CreatedByID = creator
	}
}
