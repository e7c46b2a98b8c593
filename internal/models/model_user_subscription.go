package models

import (
	"time"
)

// UserSubscription mirrors a provider subscription. Status and period bounds
// are copied verbatim from the provider; this row is never the source of truth.
type UserSubscription struct {
	ID                 string     `gorm:"column:id;type:varchar(255);primaryKey" json:"id"`
	UserID             string     `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	CustomerID         string     `gorm:"column:customer_id;type:varchar(255)" json:"customer_id"`
	Status             string     `gorm:"column:status;type:varchar(32);not null" json:"status"`
	Tier               string     `gorm:"column:tier;type:varchar(64);not null" json:"tier"`
	CurrentPeriodStart *time.Time `gorm:"column:current_period_start" json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `gorm:"column:current_period_end" json:"current_period_end"`
	CancelAtPeriodEnd  bool       `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	EndedAt            *time.Time `gorm:"column:ended_at" json:"ended_at"`
	Livemode           bool       `gorm:"column:livemode;not null;default:false" json:"livemode"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (UserSubscription) TableName() string { return "user_subscription" }

// Entitled reports whether the subscription currently grants access.
// "trialing" and "past_due" keep access until the provider cancels.
func (s *UserSubscription) Entitled(t time.Time) bool {
	if s == nil || s.EndedAt != nil {
		return false
	}
	switch s.Status {
	case "active", "trialing", "past_due":
	default:
		return false
	}
	return s.CurrentPeriodEnd == nil || s.CurrentPeriodEnd.After(t)
}
