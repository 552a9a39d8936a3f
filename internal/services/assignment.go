package services

import (
	"sync"

	"gorm.io/gorm"

	"github.com/nbeldi/medossier/internal/models"
)

// ControllerAssigner picks the reviewing controller for a record submitted
// by an agent without one. Injected so the selection rule can change
// without touching the workflow engine.
type ControllerAssigner interface {
	Assign(tx *gorm.DB, rec models.Record) (*models.User, error)
}

// FirstAvailableAssigner picks the active controller with the lowest ID.
// This mirrors the historical behavior; prefer RoundRobinAssigner for a
// fairer spread.
type FirstAvailableAssigner struct{}

func (FirstAvailableAssigner) Assign(tx *gorm.DB, _ models.Record) (*models.User, error) {
	var c models.User
	err := tx.Where("role = ? AND active = ?", models.RoleController, true).
		Order("id").First(&c).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// RoundRobinAssigner cycles through active controllers in ID order,
// remembering the last pick in memory. State is per-process; after a
// restart the cycle begins again at the lowest ID.
type RoundRobinAssigner struct {
	mu   sync.Mutex
	last uint
}

func NewRoundRobinAssigner() *RoundRobinAssigner { return &RoundRobinAssigner{} }

func (a *RoundRobinAssigner) Assign(tx *gorm.DB, _ models.Record) (*models.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var c models.User
	err := tx.Where("role = ? AND active = ? AND id > ?", models.RoleController, true, a.last).
		Order("id").First(&c).Error
	if err == gorm.ErrRecordNotFound {
		// Wrap around to the lowest ID.
		err = tx.Where("role = ? AND active = ?", models.RoleController, true).
			Order("id").First(&c).Error
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
	}
	if err != nil {
		return nil, err
	}
	a.last = c.ID
	return &c, nil
}
