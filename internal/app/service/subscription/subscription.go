package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/coursepay/internal/app/service/analytics"
	models "github.com/fatflowers/coursepay/internal/models"
	"github.com/fatflowers/coursepay/pkg/logctx"
	"github.com/fatflowers/coursepay/pkg/tool"
	types "github.com/fatflowers/coursepay/pkg/types"

	"github.com/stripe/stripe-go/v84"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSubscriptionNotFound = errors.New("user subscription not found")

type Service struct {
	db        *gorm.DB
	analytics *analytics.Service
	log       *zap.SugaredLogger
}

func NewService(db *gorm.DB, analytics *analytics.Service, log *zap.SugaredLogger) *Service {
	return &Service{db: db, analytics: analytics, log: log}
}

type UpsertInput struct {
	UserID          string
	Tier            types.SubscriptionTier
	BillingInterval types.BillingInterval
	IsUpgrade       bool
	Source          string
	EventID         string
	Subscription    *stripe.Subscription
}

// periodBounds reads the current period from the first subscription item.
func periodBounds(sub *stripe.Subscription) (*time.Time, *time.Time) {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0] == nil {
		return nil, nil
	}
	item := sub.Items.Data[0]
	return unixPtr(item.CurrentPeriodStart), unixPtr(item.CurrentPeriodEnd)
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func customerID(sub *stripe.Subscription) string {
	if sub.Customer == nil {
		return ""
	}
	return sub.Customer.ID
}

func (s *Service) load(ctx context.Context, tx *gorm.DB, id string) (*models.UserSubscription, error) {
	var m models.UserSubscription
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription %s: %w", id, err)
	}
	return &m, nil
}

// Upsert writes the provider's view of a subscription for a user. Analytics
// are recorded when the row is new, or when an upgrade changes the tier.
func (s *Service) Upsert(ctx context.Context, tx *gorm.DB, in *UpsertInput) (*models.UserSubscription, error) {
	sub := in.Subscription
	if sub == nil || sub.ID == "" {
		return nil, fmt.Errorf("invalid params: subscription required")
	}
	original, err := s.load(ctx, tx, sub.ID)
	if err != nil {
		return nil, err
	}

	start, end := periodBounds(sub)
	m := &models.UserSubscription{
		ID:                 sub.ID,
		UserID:             in.UserID,
		CustomerID:         customerID(sub),
		Status:             string(sub.Status),
		Tier:               string(in.Tier),
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		EndedAt:            unixPtr(sub.EndedAt),
		Livemode:           sub.Livemode,
	}
	var before *models.UserSubscription
	if original != nil {
		cp := *original
		before = &cp
		m.CreatedAt = original.CreatedAt
	}

	if err := tx.WithContext(ctx).Save(m).Error; err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}

	reason := types.SubscriptionChangeReasonPurchase
	name := types.AnalyticsEventSubscriptionPurchase
	if in.IsUpgrade {
		reason = types.SubscriptionChangeReasonUpgrade
		name = types.AnalyticsEventSubscriptionUpgrade
	}
	if err := s.writeLog(ctx, tx, in.EventID, reason, before, m); err != nil {
		return nil, err
	}

	if before == nil || (in.IsUpgrade && before.Tier != m.Tier) {
		if err := s.analytics.Record(ctx, tx, in.UserID, name, map[string]any{
			"subscriptionId":  m.ID,
			"tier":            m.Tier,
			"billingInterval": string(in.BillingInterval),
			"status":          m.Status,
			"source":          in.Source,
		}); err != nil {
			return nil, err
		}
	}

	logctx.FromCtx(ctx, s.log).Infow("subscription upserted", "subscription_id", m.ID, "user_id", m.UserID, "status", m.Status, "reason", reason)
	return m, nil
}

// ApplyUpdate copies status, period and cancel flag from the provider. An
// unknown subscription is skipped; the purchase flow writes the full row.
func (s *Service) ApplyUpdate(ctx context.Context, tx *gorm.DB, sub *stripe.Subscription, eventID string) (bool, error) {
	original, err := s.load(ctx, tx, sub.ID)
	if err != nil {
		return false, err
	}
	if original == nil {
		logctx.FromCtx(ctx, s.log).Warnw("subscription update for unknown subscription", "subscription_id", sub.ID)
		return false, nil
	}
	before := *original

	start, end := periodBounds(sub)
	m := original
	m.Status = string(sub.Status)
	m.CurrentPeriodStart = start
	m.CurrentPeriodEnd = end
	m.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if ended := unixPtr(sub.EndedAt); ended != nil {
		m.EndedAt = ended
	}
	if err := tx.WithContext(ctx).Save(m).Error; err != nil {
		return false, fmt.Errorf("failed to update subscription: %w", err)
	}
	if err := s.writeLog(ctx, tx, eventID, types.SubscriptionChangeReasonUpdate, &before, m); err != nil {
		return false, err
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription updated", "subscription_id", m.ID, "status", m.Status, "cancel_at_period_end", m.CancelAtPeriodEnd)
	return true, nil
}

// MarkDeleted records that the provider ended the subscription.
func (s *Service) MarkDeleted(ctx context.Context, tx *gorm.DB, id string, at time.Time, eventID string) (bool, error) {
	original, err := s.load(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if original == nil {
		logctx.FromCtx(ctx, s.log).Warnw("subscription deletion for unknown subscription", "subscription_id", id)
		return false, nil
	}
	before := *original

	m := original
	m.Status = types.SubscriptionStatusCanceled
	m.CancelAtPeriodEnd = false
	m.EndedAt = &at
	if err := tx.WithContext(ctx).Save(m).Error; err != nil {
		return false, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	if err := s.writeLog(ctx, tx, eventID, types.SubscriptionChangeReasonDelete, &before, m); err != nil {
		return false, err
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription canceled", "subscription_id", m.ID, "user_id", m.UserID)
	return true, nil
}

// GetByUser returns the user's most recently updated subscription.
func (s *Service) GetByUser(ctx context.Context, userID string) (*models.UserSubscription, error) {
	var m models.UserSubscription
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("updated_at desc").Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user=%s", ErrSubscriptionNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &m, nil
}

func (s *Service) writeLog(ctx context.Context, tx *gorm.DB, eventID string, reason types.SubscriptionChangeReason, before, after *models.UserSubscription) error {
	log := &models.SubscriptionLog{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: after.ID,
		EventID:        eventID,
		Reason:         reason,
		Before:         datatypes.NewJSONType(before),
		After:          datatypes.NewJSONType(after),
	}
	if err := tx.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to save subscription log: %w", err)
	}
	return nil
}
