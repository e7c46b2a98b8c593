package models

import (
	"time"

	"github.com/fatflowers/coursepay/pkg/types"

	"gorm.io/datatypes"
)

// AnalyticsEvent is an append-only business fact.
type AnalyticsEvent struct {
	ID         string                   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID     string                   `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	EventName  types.AnalyticsEventName `gorm:"column:event_name;type:varchar(64);not null;index" json:"event_name"`
	Properties datatypes.JSONMap        `gorm:"column:properties;type:jsonb;default:'{}'" json:"properties"`
	CreatedAt  time.Time                `json:"created_at"`
}

func (AnalyticsEvent) TableName() string { return "analytics_event" }
