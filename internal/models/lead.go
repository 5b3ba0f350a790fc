package models

import "time"

// Lead is a CRM entry. Always scoped to a team; every query filters by the
// resolved active team.
type Lead struct {
	BaseModel

	TeamID string `gorm:"type:uuid;not null;index" json:"team_id"`

	ContactName     string     `gorm:"type:varchar(255);not null" json:"contact_name"`
	EmailAddress    string     `gorm:"type:varchar(255)" json:"email_address,omitempty"`
	PhoneNumber     string     `gorm:"type:varchar(50)" json:"phone_number,omitempty"`
	LeadSource      string     `gorm:"type:varchar(100)" json:"lead_source,omitempty"`
	ServiceInterest string     `gorm:"type:varchar(100)" json:"service_interest,omitempty"`
	LeadStatus      string     `gorm:"type:varchar(50);not null;default:'New'" json:"lead_status"`
	PotentialValue  *int       `json:"potential_value,omitempty"`
	DateReceived    time.Time  `gorm:"not null" json:"date_received"`
	FollowUpDate    *time.Time `json:"follow_up_date,omitempty"`
	Notes           string     `gorm:"type:text" json:"notes,omitempty"`

	Team *Team `gorm:"foreignKey:TeamID" json:"team,omitempty"`
}
