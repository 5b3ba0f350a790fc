package models

// Team is the tenant boundary. Billing fields are opaque pass-through values
// managed by the payments integration, not by the core.
type Team struct {
	BaseModel

	Name string `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`

	StripeCustomerID     *string `gorm:"uniqueIndex" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string `gorm:"uniqueIndex" json:"stripe_subscription_id,omitempty"`
	StripeProductID      *string `json:"stripe_product_id,omitempty"`
	PlanName             string  `gorm:"type:varchar(50)" json:"plan_name,omitempty"`
	SubscriptionStatus   string  `gorm:"type:varchar(20)" json:"subscription_status,omitempty"`

	Members     []TeamMembership `gorm:"foreignKey:TeamID" json:"members,omitempty"`
	Invitations []Invitation     `gorm:"foreignKey:TeamID" json:"-"`
}
