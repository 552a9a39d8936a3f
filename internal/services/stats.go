package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/nbeldi/medossier/gate"
	"github.com/nbeldi/medossier/internal/models"
)

// GlobalStats aggregates the dashboard numbers shown to reviewers.
type GlobalStats struct {
	DossierTotal       int64            `json:"dossier_total"`
	PECTotal           int64            `json:"pec_total"`
	DossiersByStatus   map[string]int64 `json:"dossiers_by_status"`
	PECsByStatus       map[string]int64 `json:"pecs_by_status"`
	DossiersByPriority map[int]int64    `json:"dossiers_by_priority"`
	ByDepartment       map[string]int64 `json:"dossiers_by_department"`
	PECsByCareType     map[string]int64 `json:"pecs_by_care_type"`
	EstimatedCostTotal float64          `json:"estimated_cost_total"`

	CriticalDossiers []models.MedicalDossier `json:"critical_dossiers"`
	RecentPECs       []models.PriseEnCharge  `json:"recent_pecs"`
}

// StatsService computes global aggregates. Reviewer roles only; the
// numbers span every department, so scoped roles never see them.
type StatsService struct {
	db *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{db: db}
}

func (s *StatsService) Global(ctx context.Context, actor *models.User) (*GlobalStats, error) {
	if actor == nil || !actor.Role.CanReview() {
		return nil, gate.ErrUnauthorized
	}
	db := s.db.WithContext(ctx)

	out := &GlobalStats{
		DossiersByStatus:   map[string]int64{},
		PECsByStatus:       map[string]int64{},
		DossiersByPriority: map[int]int64{},
		ByDepartment:       map[string]int64{},
		PECsByCareType:     map[string]int64{},
	}

	if err := db.Model(&models.MedicalDossier{}).Count(&out.DossierTotal).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.PriseEnCharge{}).Count(&out.PECTotal).Error; err != nil {
		return nil, err
	}

	type statusRow struct {
		Status string
		N      int64
	}
	var rows []statusRow
	if err := db.Model(&models.MedicalDossier{}).
		Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out.DossiersByStatus[r.Status] = r.N
	}
	rows = rows[:0]
	if err := db.Model(&models.PriseEnCharge{}).
		Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out.PECsByStatus[r.Status] = r.N
	}

	type priorityRow struct {
		Priority int
		N        int64
	}
	var prios []priorityRow
	if err := db.Model(&models.MedicalDossier{}).
		Select("priority, COUNT(*) AS n").Group("priority").Scan(&prios).Error; err != nil {
		return nil, err
	}
	for _, r := range prios {
		out.DossiersByPriority[r.Priority] = r.N
	}

	type deptRow struct {
		Department string
		N          int64
	}
	var depts []deptRow
	if err := db.Model(&models.MedicalDossier{}).
		Select("department, COUNT(*) AS n").Group("department").Scan(&depts).Error; err != nil {
		return nil, err
	}
	for _, r := range depts {
		out.ByDepartment[r.Department] = r.N
	}

	type careRow struct {
		CareType string
		N        int64
	}
	var cares []careRow
	if err := db.Model(&models.PriseEnCharge{}).
		Select("care_type, COUNT(*) AS n").Group("care_type").Scan(&cares).Error; err != nil {
		return nil, err
	}
	for _, r := range cares {
		out.PECsByCareType[r.CareType] = r.N
	}

	if err := db.Model(&models.PriseEnCharge{}).
		Select("COALESCE(SUM(estimated_cost), 0)").Scan(&out.EstimatedCostTotal).Error; err != nil {
		return nil, err
	}

	if err := db.Where("priority >= ? AND status NOT IN ?", models.PriorityHigh,
		[]models.Status{models.StatusArchived, models.StatusRejected}).
		Order("priority DESC, created_at DESC").Limit(5).
		Preload("Employer").Find(&out.CriticalDossiers).Error; err != nil {
		return nil, err
	}
	if err := db.Order("created_at DESC").Limit(5).
		Preload("Patient").Find(&out.RecentPECs).Error; err != nil {
		return nil, err
	}

	return out, nil
}
