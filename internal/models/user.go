package models

import "time"

// Role is the closed set of authorization roles. It drives policy
// decisions only and is never used as business data.
type Role string

const (
	RoleAgent      Role = "AGENT"
	RoleController Role = "CONTROLLER"
	RoleAdmin      Role = "ADMIN"
	// RoleNormal is the employer/patient-facing variant: subject-only
	// visibility, no edit rights.
	RoleNormal Role = "NORMAL"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAgent, RoleController, RoleAdmin, RoleNormal:
		return true
	}
	return false
}

// CanReview reports whether the role may review/approve/reject/archive.
func (r Role) CanReview() bool {
	return r == RoleController || r == RoleAdmin
}

// User represents an account in the system. Users create records, review
// them (controllers), or appear as the subject (employer/patient) of one.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Email    string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	FullName string `gorm:"size:255;not null" json:"full_name"`
	Password string `gorm:"size:255;not null" json:"-"` // bcrypt hash, never exposed

	// EmployeeID is the optional organization-wide identifier.
	// Pointer so multiple rows may leave it unset under the unique index.
	EmployeeID *string `gorm:"uniqueIndex;size:50" json:"employee_id,omitempty"`
	Department string  `gorm:"size:100" json:"department,omitempty"`

	Role   Role `gorm:"size:20;not null;default:'AGENT'" json:"role"`
	Active bool `gorm:"not null;default:true" json:"active"`
}
