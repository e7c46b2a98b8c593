package models

import (
	"github.com/fatflowers/coursepay/pkg/types"
	"time"

	"gorm.io/datatypes"
)

// SubscriptionLog records changes to user subscriptions.
// Use case: troubleshooting out-of-order provider events.
type SubscriptionLog struct {
	ID             string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID string `gorm:"column:subscription_id;type:varchar(255);index;not null"`
	// EventID is the provider event that caused the change.
	EventID string                         `gorm:"column:event_id;type:varchar(255);index"`
	Reason  types.SubscriptionChangeReason `gorm:"column:reason;type:varchar(64);not null"`
	// Before stores subscription data before the change in JSON format.
	Before datatypes.JSONType[*UserSubscription] `gorm:"column:before;type:jsonb;default:'null'"`
	// After stores subscription data after the change in JSON format.
	After     datatypes.JSONType[*UserSubscription] `gorm:"column:after;type:jsonb;default:'null'"`
	CreatedAt time.Time
}

func (SubscriptionLog) TableName() string {
	return "subscription_log"
}
