package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TeamMembership links a user to a team with a per-team role. The composite
// unique index is the guard against duplicate-membership races: concurrent
// accept flows rely on the constraint violation as their idempotency signal.
type TeamMembership struct {
	ID       string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_team" json:"user_id"`
	TeamID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_team" json:"team_id"`
	Role     TeamRole  `gorm:"type:varchar(50);not null" json:"role"`
	JoinedAt time.Time `gorm:"not null" json:"joined_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Team *Team `gorm:"foreignKey:TeamID" json:"team,omitempty"`
}

func (m *TeamMembership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	return nil
}
