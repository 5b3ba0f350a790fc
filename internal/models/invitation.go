package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Invitation is an offer for an email address to join a team with a given
// per-team role. It is created pending, becomes accepted exactly once, and
// may be hard-deleted only while still pending.
type Invitation struct {
	ID          string           `gorm:"primaryKey;type:uuid" json:"id"`
	TeamID      string           `gorm:"type:uuid;not null;index" json:"team_id"`
	Email       string           `gorm:"type:varchar(255);not null;index" json:"email"`
	Role        TeamRole         `gorm:"type:varchar(50);not null" json:"role"`
	InvitedByID string           `gorm:"type:uuid;not null" json:"invited_by"`
	InvitedAt   time.Time        `gorm:"not null" json:"invited_at"`
	Status      InvitationStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`

	Team      *Team `gorm:"foreignKey:TeamID" json:"team,omitempty"`
	InvitedBy *User `gorm:"foreignKey:InvitedByID" json:"inviter,omitempty"`
}

func (i *Invitation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.InvitedAt.IsZero() {
		i.InvitedAt = time.Now()
	}
	if i.Status == "" {
		i.Status = InvitationPending
	}
	return nil
}
