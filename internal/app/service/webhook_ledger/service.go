package webhook_ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/coursepay/internal/models"
	"github.com/fatflowers/coursepay/pkg/logctx"
	"github.com/fatflowers/coursepay/pkg/types"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrEventNotFound = errors.New("webhook event not found")

// ScanFields are the columns admin filters may reference.
var ScanFields = []string{
	"id", "event_type", "session_id", "subscription_id", "livemode",
	"processed", "processed_at", "error_message", "retry_count", "created_at",
}

const maxScanLimit = 200

// RecordInput describes one verified delivery.
type RecordInput struct {
	ID             string
	EventType      string
	SessionID      *string
	SubscriptionID *string
	Livemode       bool
	Payload        []byte
}

type ScanRequest struct {
	Filters []*types.CommonFilter `json:"filters"`
	Offset  int                   `json:"offset"`
	Limit   int                   `json:"limit"`
}

type ScanResult struct {
	Items []*models.WebhookEvent `json:"items"`
	Total int64                  `json:"total"`
}

// Service is the idempotency ledger. Its own writes (Record, RecordError) are
// best effort from the caller's point of view; MarkProcessed runs inside the
// caller's transaction.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// IsProcessed reports whether id was already fully reconciled. An unknown id
// is not processed.
func (s *Service) IsProcessed(ctx context.Context, id string) (bool, error) {
	var ev models.WebhookEvent
	err := s.db.WithContext(ctx).Select("id", "processed").Where("id = ?", id).Take(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load webhook event: %w", err)
	}
	return ev.Processed, nil
}

// Record inserts the ledger row. A redelivery of an unprocessed event hits the
// primary key and leaves the existing row (and its retry count) alone.
func (s *Service) Record(ctx context.Context, in *RecordInput) error {
	ev := &models.WebhookEvent{
		ID:             in.ID,
		EventType:      in.EventType,
		SessionID:      in.SessionID,
		SubscriptionID: in.SubscriptionID,
		Livemode:       in.Livemode,
		Payload:        datatypes.JSON(in.Payload),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(ev)
	if res.Error != nil {
		return fmt.Errorf("failed to record webhook event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		logctx.FromCtx(ctx, s.log).Infow("webhook event already recorded", "event_id", in.ID)
	}
	return nil
}

// MarkProcessed flips the processed flag in tx. It returns false when another
// delivery already marked the event, in which case the caller rolls back.
// A missing row (Record failed earlier) is not a conflict.
func (s *Service) MarkProcessed(ctx context.Context, tx *gorm.DB, id string, at time.Time) (bool, error) {
	res := tx.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ? AND processed = ?", id, false).
		Updates(map[string]any{"processed": true, "processed_at": at})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark webhook event processed: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	var n int64
	if err := tx.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check webhook event: %w", err)
	}
	if n == 0 {
		logctx.FromCtx(ctx, s.log).Warnw("webhook event missing from ledger; processed flag not stored", "event_id", id)
		return true, nil
	}
	return false, nil
}

// RecordError attaches msg to the event. A retryable failure bumps the retry
// counter and leaves the event unprocessed; a permanent one closes it.
func (s *Service) RecordError(ctx context.Context, id, msg string, retryable bool, at time.Time) error {
	updates := map[string]any{"error_message": msg}
	if retryable {
		updates["retry_count"] = gorm.Expr("retry_count + 1")
	} else {
		updates["processed"] = true
		updates["processed_at"] = at
	}
	res := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ? AND processed = ?", id, false).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to record webhook event error: %w", res.Error)
	}
	return nil
}

// SetSubscriptionID stores the provider subscription an event created, so a
// later replay reuses it instead of creating another one.
func (s *Service) SetSubscriptionID(ctx context.Context, id, subscriptionID string) error {
	err := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Update("subscription_id", subscriptionID).Error
	if err != nil {
		return fmt.Errorf("failed to store subscription id on webhook event: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.WebhookEvent, error) {
	var ev models.WebhookEvent
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook event: %w", err)
	}
	return &ev, nil
}

// Scan lists ledger rows newest first. The raw payload is omitted.
func (s *Service) Scan(ctx context.Context, req *ScanRequest) (*ScanResult, error) {
	for _, f := range req.Filters {
		if err := f.Validate(ScanFields); err != nil {
			return nil, err
		}
	}
	limit := req.Limit
	if limit <= 0 || limit > maxScanLimit {
		limit = maxScanLimit
	}
	where := clause.Where{Exprs: []clause.Expression{types.FiltersAnd(req.Filters)}}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where(where).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count webhook events: %w", err)
	}
	var items []*models.WebhookEvent
	err := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Omit("payload").
		Where(where).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true}).
		Offset(req.Offset).Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan webhook events: %w", err)
	}
	return &ScanResult{Items: items, Total: total}, nil
}

// ListRetryable returns failed, unprocessed events with fewer than maxRetries
// attempts, oldest first.
func (s *Service) ListRetryable(ctx context.Context, maxRetries, limit int) ([]*models.WebhookEvent, error) {
	var items []*models.WebhookEvent
	err := s.db.WithContext(ctx).
		Where("processed = ? AND error_message IS NOT NULL AND retry_count < ?", false, maxRetries).
		Order("created_at").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable webhook events: %w", err)
	}
	return items, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
