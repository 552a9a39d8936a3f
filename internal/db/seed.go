package db

import (
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/nbeldi/medossier/internal/models"
)

// Seed creates the default users when they are missing. Intended for
// development and first-run setups (DB_SEED=1).
func Seed(db *gorm.DB) error {
	defaults := []struct {
		Email      string
		FullName   string
		Role       models.Role
		Department string
		Password   string
	}{
		{"admin@medossier.local", "Administrateur", models.RoleAdmin, "", "admin123"},
		{"controle@medossier.local", "Contrôle Qualité", models.RoleController, "", "controle123"},
	}
	for _, d := range defaults {
		var existing models.User
		err := db.Where("email = ?", d.Email).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(d.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		u := models.User{
			Email:      d.Email,
			FullName:   d.FullName,
			Password:   string(hash),
			Role:       d.Role,
			Department: d.Department,
			Active:     true,
		}
		if err := db.Create(&u).Error; err != nil {
			return err
		}
	}
	return nil
}
