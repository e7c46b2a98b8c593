package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/coursepay/internal/app/service/checkout_session"
	"github.com/fatflowers/coursepay/internal/app/service/enrollment"
	"github.com/fatflowers/coursepay/internal/app/service/subscription"
	"github.com/fatflowers/coursepay/internal/app/service/webhook_ledger"
	"github.com/fatflowers/coursepay/internal/platform/redis"
	"github.com/fatflowers/coursepay/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/coursepay/pkg/config"
	"github.com/fatflowers/coursepay/pkg/logctx"
	"github.com/fatflowers/coursepay/pkg/metrics"
	"github.com/fatflowers/coursepay/pkg/response"

	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type EventVerifier interface {
	Verify(payload []byte, header string) (*stripe.Event, error)
}

type SubscriptionProvider interface {
	GetSubscription(ctx context.Context, livemode bool, id string) (*stripe.Subscription, error)
	CreateSubscription(ctx context.Context, livemode bool, p stripe_api.CreateSubscriptionParams) (*stripe.Subscription, error)
}

type Outcome string

const (
	OutcomeProcessed        Outcome = "processed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeFailedPermanent  Outcome = "failed_permanent"
	OutcomeFailedRetryable  Outcome = "failed_retryable"
	outcomeRejected         Outcome = "rejected"
)

// Result describes how one delivery was reconciled. A failed branch is still
// acknowledged to the provider; the failure lives in the ledger.
type Result struct {
	EventID   string  `json:"event_id"`
	EventType string  `json:"event_type"`
	Action    string  `json:"action,omitempty"`
	Outcome   Outcome `json:"outcome"`
	Error     string  `json:"error,omitempty"`
}

// Ack is the provider-facing body for r.
func (r *Result) Ack() *response.WebhookAck {
	if r.Outcome == OutcomeAlreadyProcessed {
		return &response.WebhookAck{Received: true, Processed: lo.ToPtr(false), Reason: string(OutcomeAlreadyProcessed)}
	}
	return &response.WebhookAck{Received: true}
}

type Reconciler struct {
	cfg           *config.Config
	db            *gorm.DB
	verifier      EventVerifier
	classifier    *Classifier
	ledger        *webhook_ledger.Service
	enrollments   *enrollment.Service
	subscriptions *subscription.Service
	sessions      *checkout_session.Service
	provider      SubscriptionProvider
	claims        redis.ClaimGuard
	metrics       *metrics.ReconcileMetrics
	log           *zap.SugaredLogger
	now           func() time.Time
}

func New(
	cfg *config.Config,
	db *gorm.DB,
	verifier EventVerifier,
	classifier *Classifier,
	ledger *webhook_ledger.Service,
	enrollments *enrollment.Service,
	subscriptions *subscription.Service,
	sessions *checkout_session.Service,
	provider SubscriptionProvider,
	claims redis.ClaimGuard,
	m *metrics.ReconcileMetrics,
	log *zap.SugaredLogger,
) *Reconciler {
	return &Reconciler{
		cfg:           cfg,
		db:            db,
		verifier:      verifier,
		classifier:    classifier,
		ledger:        ledger,
		enrollments:   enrollments,
		subscriptions: subscriptions,
		sessions:      sessions,
		provider:      provider,
		claims:        claims,
		metrics:       m,
		log:           log,
		now:           time.Now,
	}
}

// HandleDelivery verifies and reconciles one raw delivery. The returned error
// is non-nil only when the delivery must be rejected (bad signature, missing
// secret, malformed envelope, concurrent delivery in flight).
func (r *Reconciler) HandleDelivery(ctx context.Context, payload []byte, header string) (*Result, error) {
	start := time.Now()
	event, err := r.verifier.Verify(payload, header)
	if err != nil {
		r.metrics.Observe("unknown", string(outcomeRejected), start)
		logctx.FromCtx(ctx, r.log).Warnw("webhook delivery rejected", "err", err)
		return nil, err
	}
	ctx = logctx.WithEvent(ctx, r.log, event.ID, string(event.Type))
	lg := logctx.FromCtx(ctx, r.log)
	lg.Infow("webhook event received", "livemode", event.Livemode)

	processed, err := r.ledger.IsProcessed(ctx, event.ID)
	if err != nil {
		lg.Errorw("ledger lookup failed; reconciling anyway", "err", err)
	}
	if processed {
		return r.finish(ctx, event, start, &Result{Outcome: OutcomeAlreadyProcessed}), nil
	}

	release, err := r.claim(ctx, event.ID)
	if err != nil {
		r.metrics.Observe(string(event.Type), "in_flight", start)
		return nil, err
	}
	defer release()

	sessionID, subscriptionID := ledgerRefs(event)
	if err := r.ledger.Record(ctx, &webhook_ledger.RecordInput{
		ID:             event.ID,
		EventType:      string(event.Type),
		SessionID:      sessionID,
		SubscriptionID: subscriptionID,
		Livemode:       event.Livemode,
		Payload:        payload,
	}); err != nil {
		lg.Errorw("failed to record webhook event", "err", err)
	}

	return r.finish(ctx, event, start, r.process(ctx, event)), nil
}

// Replay re-runs a stored event. The payload was verified when it was first
// received.
func (r *Reconciler) Replay(ctx context.Context, eventID string) (*Result, error) {
	start := time.Now()
	stored, err := r.ledger.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ctx = logctx.WithEvent(ctx, r.log, stored.ID, stored.EventType)
	var event stripe.Event
	if err := json.Unmarshal(stored.Payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode stored event %s: %w", eventID, err)
	}
	if stored.Processed {
		return r.finish(ctx, &event, start, &Result{Outcome: OutcomeAlreadyProcessed}), nil
	}

	release, err := r.claim(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	logctx.FromCtx(ctx, r.log).Infow("replaying webhook event", "retry_count", stored.RetryCount)
	return r.finish(ctx, &event, start, r.process(ctx, &event)), nil
}

// Replay batch bounds.
const (
	DefaultReplayMaxRetries = 5
	DefaultReplayLimit      = 50
	maxReplayLimit          = 200
)

// ReplayRetryable replays unprocessed events that failed with a retryable
// error and have fewer than maxRetries attempts, oldest first. An event that
// cannot be replayed is reported in its Result and does not stop the batch.
func (r *Reconciler) ReplayRetryable(ctx context.Context, maxRetries, limit int) ([]*Result, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultReplayMaxRetries
	}
	if limit <= 0 {
		limit = DefaultReplayLimit
	}
	limit = min(limit, maxReplayLimit)

	events, err := r.ledger.ListRetryable(ctx, maxRetries, limit)
	if err != nil {
		return nil, err
	}
	results := make([]*Result, 0, len(events))
	for _, ev := range events {
		res, err := r.Replay(ctx, ev.ID)
		if err != nil {
			logctx.FromCtx(ctx, r.log).Warnw("webhook event replay rejected", "event_id", ev.ID, "err", err)
			res = &Result{EventID: ev.ID, EventType: ev.EventType, Outcome: outcomeRejected, Error: err.Error()}
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Reconciler) claim(ctx context.Context, eventID string) (func(), error) {
	lg := logctx.FromCtx(ctx, r.log)
	ok, err := r.claims.Claim(ctx, eventID)
	if err != nil {
		lg.Warnw("in-flight claim unavailable", "err", err)
		return func() {}, nil
	}
	if !ok {
		lg.Infow("webhook event already in flight")
		return nil, ErrEventInFlight
	}
	return func() {
		// The request context may already be canceled.
		if err := r.claims.Release(context.WithoutCancel(ctx), eventID); err != nil {
			lg.Warnw("failed to release in-flight claim", "err", err)
		}
	}, nil
}

func (r *Reconciler) finish(ctx context.Context, event *stripe.Event, start time.Time, res *Result) *Result {
	res.EventID = event.ID
	res.EventType = string(event.Type)
	r.metrics.Observe(res.EventType, string(res.Outcome), start)
	logctx.FromCtx(ctx, r.log).Infow("webhook event reconciled", "outcome", res.Outcome, "action", res.Action, "dur_ms", metrics.MillisecondsSince(start))
	return res
}

// process classifies and applies event. Every failure is written to the
// ledger and turned into a Result.
func (r *Reconciler) process(ctx context.Context, event *stripe.Event) *Result {
	action, err := r.classifier.Classify(event)
	if err != nil {
		return r.fail(ctx, event, "", err)
	}
	res := &Result{Action: action.action(), Outcome: OutcomeProcessed}
	if u, ok := action.(*Unhandled); ok {
		logctx.FromCtx(ctx, r.log).Infow("webhook event not handled", "reason", u.Reason)
		res.Outcome = OutcomeIgnored
	}

	var sub *stripe.Subscription
	switch a := action.(type) {
	case *CheckoutSubscription:
		sub, err = r.provider.GetSubscription(ctx, event.Livemode, a.SubscriptionID)
	case *PaymentIntentSubscription:
		sub, err = r.createSubscription(ctx, event, a)
	}
	if err != nil {
		return r.fail(ctx, event, res.Action, err)
	}

	now := r.now()
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.apply(ctx, tx, event, action, sub, now); err != nil {
			return err
		}
		marked, err := r.ledger.MarkProcessed(ctx, tx, event.ID, now)
		if err != nil {
			return err
		}
		if !marked {
			return errAlreadyProcessed
		}
		return nil
	})
	if errors.Is(err, errAlreadyProcessed) {
		res.Outcome = OutcomeAlreadyProcessed
		return res
	}
	if err != nil {
		return r.fail(ctx, event, res.Action, err)
	}
	return res
}

// createSubscription creates the provider subscription a payment intent paid
// for. The created ID is stored on the ledger before the local transaction, so
// a replay after a failed transaction retrieves it instead of creating another.
func (r *Reconciler) createSubscription(ctx context.Context, event *stripe.Event, a *PaymentIntentSubscription) (*stripe.Subscription, error) {
	lg := logctx.FromCtx(ctx, r.log)
	stored, err := r.ledger.Get(ctx, event.ID)
	if err != nil && !errors.Is(err, webhook_ledger.ErrEventNotFound) {
		return nil, err
	}
	if stored != nil && stored.SubscriptionID != nil && *stored.SubscriptionID != "" {
		lg.Infow("reusing subscription created by an earlier attempt", "subscription_id", *stored.SubscriptionID)
		return r.provider.GetSubscription(ctx, event.Livemode, *stored.SubscriptionID)
	}

	price, err := r.cfg.GetSubscriptionPrice(a.Tier, a.BillingInterval, event.Livemode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceNotConfigured, err)
	}
	sub, err := r.provider.CreateSubscription(ctx, event.Livemode, stripe_api.CreateSubscriptionParams{
		CustomerID:      a.CustomerID,
		PriceID:         price.PriceID,
		PaymentMethodID: a.PaymentMethodID,
		PaymentIntentID: a.PaymentIntentID,
		Metadata: map[string]string{
			MetaUserID:          a.UserID,
			MetaTier:            string(a.Tier),
			MetaBillingInterval: string(a.BillingInterval),
			MetaSource:          a.Source,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := r.ledger.SetSubscriptionID(ctx, event.ID, sub.ID); err != nil {
		lg.Errorw("failed to store created subscription on ledger", "subscription_id", sub.ID, "err", err)
	}
	return sub, nil
}

func (r *Reconciler) apply(ctx context.Context, tx *gorm.DB, event *stripe.Event, action Action, sub *stripe.Subscription, now time.Time) error {
	switch a := action.(type) {
	case *NewEnrollment:
		if err := r.markSession(ctx, tx, a.SessionID, a.UserID, now); err != nil {
			return err
		}
		_, err := r.enrollments.Create(ctx, tx, &enrollment.NewEnrollmentInput{
			UserID: a.UserID, CourseID: a.CourseID, DaysOfAccess: a.DaysOfAccess,
			PaymentID: a.PaymentID, Livemode: event.Livemode, Source: a.Source, Now: now,
		})
		return err
	case *EnrollmentRenewal:
		if err := r.markSession(ctx, tx, a.SessionID, a.UserID, now); err != nil {
			return err
		}
		_, err := r.enrollments.Renew(ctx, tx, &enrollment.RenewalInput{
			UserID: a.UserID, CourseID: a.CourseID, DaysOfAccess: a.DaysOfAccess,
			PaymentID: a.PaymentID, Source: a.Source, Now: now,
		})
		return err
	case *CheckoutSubscription:
		if err := r.markSession(ctx, tx, a.SessionID, a.UserID, now); err != nil {
			return err
		}
		_, err := r.subscriptions.Upsert(ctx, tx, &subscription.UpsertInput{
			UserID: a.UserID, Tier: a.Tier, BillingInterval: a.BillingInterval,
			IsUpgrade: a.IsUpgrade, Source: a.Source, EventID: event.ID, Subscription: sub,
		})
		return err
	case *PaymentIntentSubscription:
		_, err := r.subscriptions.Upsert(ctx, tx, &subscription.UpsertInput{
			UserID: a.UserID, Tier: a.Tier, BillingInterval: a.BillingInterval,
			IsUpgrade: a.IsUpgrade, Source: a.Source, EventID: event.ID, Subscription: sub,
		})
		return err
	case *SubscriptionUpdate:
		_, err := r.subscriptions.ApplyUpdate(ctx, tx, a.Subscription, event.ID)
		return err
	case *SubscriptionDeletion:
		_, err := r.subscriptions.MarkDeleted(ctx, tx, a.SubscriptionID, now, event.ID)
		return err
	case *Unhandled:
		return nil
	default:
		return fmt.Errorf("unknown action %T", action)
	}
}

func (r *Reconciler) markSession(ctx context.Context, tx *gorm.DB, sessionID, userID string, now time.Time) error {
	if sessionID == "" {
		return nil
	}
	return r.sessions.MarkCompleted(ctx, tx, sessionID, lo.ToPtr(userID), now)
}

func (r *Reconciler) fail(ctx context.Context, event *stripe.Event, action string, err error) *Result {
	permanent := isPermanent(err)
	res := &Result{Action: action, Outcome: OutcomeFailedRetryable, Error: err.Error()}
	if permanent {
		res.Outcome = OutcomeFailedPermanent
	}
	lg := logctx.FromCtx(ctx, r.log)
	lg.Errorw("webhook event failed", "outcome", res.Outcome, "err", err)
	if rerr := r.ledger.RecordError(ctx, event.ID, err.Error(), !permanent, r.now()); rerr != nil {
		lg.Errorw("failed to record webhook event error", "err", rerr)
	}
	return res
}

// ledgerRefs extracts the session and subscription IDs stored on the ledger row.
func ledgerRefs(event *stripe.Event) (sessionID, subscriptionID *string) {
	if event.Data == nil || event.Data.Object == nil {
		return nil, nil
	}
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		sessionID = lo.EmptyableToPtr(event.GetObjectValue("id"))
		subscriptionID = lo.EmptyableToPtr(event.GetObjectValue("subscription"))
	case stripe.EventTypeCustomerSubscriptionUpdated, stripe.EventTypeCustomerSubscriptionDeleted:
		subscriptionID = lo.EmptyableToPtr(event.GetObjectValue("id"))
	}
	return sessionID, subscriptionID
}
