package models

import "time"

// CheckoutSession is created by the checkout flow. Reconciliation only flips
// the completion fields.
type CheckoutSession struct {
	ID          string     `gorm:"column:id;type:varchar(255);primaryKey" json:"id"`
	UserID      *string    `gorm:"column:user_id;type:varchar(64);index" json:"user_id"`
	Completed   bool       `gorm:"column:completed;not null;default:false" json:"completed"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (CheckoutSession) TableName() string { return "checkout_session" }
