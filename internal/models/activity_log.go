package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityType enumerates the security-relevant actions recorded in the log.
type ActivityType string

const (
	ActivitySignUp           ActivityType = "SIGN_UP"
	ActivitySignIn           ActivityType = "SIGN_IN"
	ActivitySignOut          ActivityType = "SIGN_OUT"
	ActivityUpdatePassword   ActivityType = "UPDATE_PASSWORD"
	ActivityDeleteAccount    ActivityType = "DELETE_ACCOUNT"
	ActivityUpdateAccount    ActivityType = "UPDATE_ACCOUNT"
	ActivityCreateTeam       ActivityType = "CREATE_TEAM"
	ActivityRemoveTeamMember ActivityType = "REMOVE_TEAM_MEMBER"
	ActivityInviteTeamMember ActivityType = "INVITE_TEAM_MEMBER"
	ActivityAcceptInvitation ActivityType = "ACCEPT_INVITATION"
	ActivityDeleteInvitation ActivityType = "DELETE_INVITATION"
	ActivityUpdateOrgName    ActivityType = "UPDATE_ORG_NAME"
	ActivitySwitchTeam       ActivityType = "SWITCH_TEAM"
)

// ActivityLog is an append-only fact. Rows are never updated or deleted by
// the core; the maintenance cleaner may prune aged rows on a retention
// schedule.
type ActivityLog struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	TeamID    string         `gorm:"type:uuid;not null;index" json:"team_id"`
	UserID    *string        `gorm:"type:uuid;index" json:"user_id"`
	Action    ActivityType   `gorm:"type:text;not null;index" json:"action"`
	Timestamp time.Time      `gorm:"not null;index" json:"timestamp"`
	IPAddress string         `gorm:"type:varchar(45)" json:"ip_address"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`

	Team *Team `gorm:"foreignKey:TeamID" json:"team,omitempty"`
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	return nil
}
