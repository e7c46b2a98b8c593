package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent is the idempotency ledger row for one provider event.
// ID is the provider-assigned event ID; there is exactly one row per event.
// Processed flips to true at most once, in the same database transaction as
// the event's side effects.
type WebhookEvent struct {
	ID             string         `gorm:"column:id;type:varchar(255);primaryKey" json:"id"`
	EventType      string         `gorm:"column:event_type;type:varchar(128);not null;index" json:"event_type"`
	SessionID      *string        `gorm:"column:session_id;type:varchar(255);index" json:"session_id"`
	SubscriptionID *string        `gorm:"column:subscription_id;type:varchar(255);index" json:"subscription_id"`
	Livemode       bool           `gorm:"column:livemode;not null;default:false" json:"livemode"`
	Payload        datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Processed      bool           `gorm:"column:processed;not null;default:false;index" json:"processed"`
	ProcessedAt    *time.Time     `gorm:"column:processed_at" json:"processed_at"`
	// ErrorMessage holds the last failure. It may be set on a processed row when
	// the failure was permanent (malformed metadata) and retrying cannot help.
	ErrorMessage *string   `gorm:"column:error_message;type:text" json:"error_message"`
	RetryCount   int       `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (WebhookEvent) TableName() string { return "webhook_event" }

// Retryable reports whether the event failed and is still waiting for a replay.
func (e *WebhookEvent) Retryable() bool {
	return e != nil && !e.Processed && e.ErrorMessage != nil
}
