package models

import (
	"gorm.io/gorm"
)

// User describes an account holder. Deletion is soft: the row stays, the
// email is suffixed to free the unique index, and every lookup filters on
// deleted_at being null.
type User struct {
	BaseModel

	Name         string     `gorm:"type:varchar(100)" json:"name"`
	Email        string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Role         GlobalRole `gorm:"type:varchar(20);not null;default:'member'" json:"role"`

	Memberships     []TeamMembership `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
	InvitationsSent []Invitation     `gorm:"foreignKey:InvitedByID" json:"-"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
