package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fatflowers/coursepay/internal/app/service/analytics"
	"github.com/fatflowers/coursepay/internal/app/service/checkout_session"
	"github.com/fatflowers/coursepay/internal/app/service/enrollment"
	"github.com/fatflowers/coursepay/internal/app/service/subscription"
	"github.com/fatflowers/coursepay/internal/app/service/webhook_ledger"
	"github.com/fatflowers/coursepay/internal/models"
	"github.com/fatflowers/coursepay/internal/platform/db/dbtest"
	"github.com/fatflowers/coursepay/internal/platform/redis"
	"github.com/fatflowers/coursepay/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/coursepay/internal/platform/stripe/stripe_webhook"
	"github.com/fatflowers/coursepay/pkg/config"
	"github.com/fatflowers/coursepay/pkg/response"
	"github.com/fatflowers/coursepay/pkg/types"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "whsec_reconciler"

type stubProvider struct {
	subs    map[string]*stripe.Subscription
	created []stripe_api.CreateSubscriptionParams
	err     error
}

func (p *stubProvider) GetSubscription(_ context.Context, _ bool, id string) (*stripe.Subscription, error) {
	if p.err != nil {
		return nil, p.err
	}
	sub, ok := p.subs[id]
	if !ok {
		return nil, errors.New("no such subscription: " + id)
	}
	return sub, nil
}

func (p *stubProvider) CreateSubscription(_ context.Context, _ bool, params stripe_api.CreateSubscriptionParams) (*stripe.Subscription, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.created = append(p.created, params)
	sub := &stripe.Subscription{
		ID:       "sub_created_" + params.PaymentIntentID,
		Status:   stripe.SubscriptionStatusActive,
		Customer: &stripe.Customer{ID: params.CustomerID},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{
			{CurrentPeriodStart: 1767225600, CurrentPeriodEnd: 1769904000},
		}},
	}
	p.subs[sub.ID] = sub
	return sub, nil
}

type busyGuard struct{}

func (busyGuard) Claim(context.Context, string) (bool, error) { return false, nil }
func (busyGuard) Release(context.Context, string) error       { return nil }

type harness struct {
	r        *Reconciler
	db       *gorm.DB
	cfg      *config.Config
	provider *stubProvider
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	db := dbtest.Open(t)
	cfg := &config.Config{}
	cfg.Stripe.Test.WebhookSecret = testSecret
	cfg.Stripe.SignatureTolerance = 5 * time.Minute
	cfg.Stripe.Prices = []*types.SubscriptionPrice{
		{Tier: types.SubscriptionTierUnlimited, Interval: types.BillingIntervalMonth, PriceID: "price_month_test"},
	}
	log := zap.NewNop().Sugar()
	an := analytics.New(db)
	h := &harness{
		db:       db,
		cfg:      cfg,
		provider: &stubProvider{subs: map[string]*stripe.Subscription{}},
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	h.r = New(cfg, db, stripe_webhook.NewVerifier(cfg), NewClassifier(cfg.DaysOfAccessOrDefault()),
		webhook_ledger.New(db, log), enrollment.New(db, an, log), subscription.NewService(db, an, log),
		checkout_session.New(), h.provider, redis.NoopClaimGuard(), nil, log)
	h.r.now = func() time.Time { return h.now }
	return h
}

func event(id string, eventType stripe.EventType, object map[string]any) map[string]any {
	return map[string]any{
		"id":          id,
		"object":      "event",
		"type":        string(eventType),
		"livemode":    false,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	}
}

func checkoutCompleted(id, sessionID, paymentIntent string, metadata map[string]string) map[string]any {
	obj := map[string]any{"id": sessionID, "object": "checkout.session", "metadata": metadata}
	if paymentIntent != "" {
		obj["payment_intent"] = paymentIntent
	}
	return event(id, stripe.EventTypeCheckoutSessionCompleted, obj)
}

func (h *harness) signed(t *testing.T, evt map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testSecret, Timestamp: time.Now()})
	return payload, sp.Header
}

func (h *harness) deliver(t *testing.T, evt map[string]any) *Result {
	t.Helper()
	payload, header := h.signed(t, evt)
	res, err := h.r.HandleDelivery(context.Background(), payload, header)
	require.NoError(t, err)
	return res
}

func (h *harness) enrollments(t *testing.T) []models.CourseEnrollment {
	t.Helper()
	var items []models.CourseEnrollment
	require.NoError(t, h.db.Order("enrolled_at").Find(&items).Error)
	return items
}

func (h *harness) ledger(t *testing.T, id string) *models.WebhookEvent {
	t.Helper()
	var ev models.WebhookEvent
	require.NoError(t, h.db.Where("id = ?", id).Take(&ev).Error)
	return &ev
}

func (h *harness) analyticsCount(t *testing.T, name types.AnalyticsEventName) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.AnalyticsEvent{}).Where("event_name = ?", name).Count(&n).Error)
	return n
}

func TestHandleDelivery_DuplicateDeliveryIsIdempotent(t *testing.T) {
	h := newHarness(t)
	evt := checkoutCompleted("evt_1", "cs_1", "pi_1", map[string]string{
		"userId": "u1", "courseId": "c1", "daysOfAccess": "30",
	})

	res := h.deliver(t, evt)
	require.Equal(t, OutcomeProcessed, res.Outcome)
	require.Equal(t, "new_enrollment", res.Action)
	require.Equal(t, &response.WebhookAck{Received: true}, res.Ack())

	items := h.enrollments(t)
	require.Len(t, items, 1)
	require.Equal(t, "u1", items[0].UserID)
	require.Equal(t, "c1", items[0].CourseID)
	require.Equal(t, types.EnrollmentStatusActive, items[0].Status)
	require.Equal(t, "pi_1", items[0].PaymentID)
	firstUpdatedAt := items[0].UpdatedAt
	require.EqualValues(t, 1, h.analyticsCount(t, types.AnalyticsEventCoursePurchase))

	ev := h.ledger(t, "evt_1")
	require.True(t, ev.Processed)
	require.Nil(t, ev.ErrorMessage)
	require.Equal(t, "cs_1", *ev.SessionID)

	var cs models.CheckoutSession
	require.NoError(t, h.db.Where("id = ?", "cs_1").Take(&cs).Error)
	require.True(t, cs.Completed)

	h.now = h.now.Add(time.Hour)
	res = h.deliver(t, evt)
	require.Equal(t, OutcomeAlreadyProcessed, res.Outcome)
	ack := res.Ack()
	require.True(t, ack.Received)
	require.NotNil(t, ack.Processed)
	require.False(t, *ack.Processed)
	require.Equal(t, "already_processed", ack.Reason)

	items = h.enrollments(t)
	require.Len(t, items, 1)
	require.True(t, firstUpdatedAt.Equal(items[0].UpdatedAt))
	require.EqualValues(t, 1, h.analyticsCount(t, types.AnalyticsEventCoursePurchase))
}

func TestHandleDelivery_MissingCourseIDRecordsError(t *testing.T) {
	h := newHarness(t)
	res := h.deliver(t, checkoutCompleted("evt_1", "cs_1", "pi_1", map[string]string{"userId": "u1"}))

	require.Equal(t, OutcomeFailedPermanent, res.Outcome)
	require.True(t, res.Ack().Received)
	require.Empty(t, h.enrollments(t))

	ev := h.ledger(t, "evt_1")
	require.NotNil(t, ev.ErrorMessage)
	require.Contains(t, *ev.ErrorMessage, "neither a course nor a subscription")
	require.Contains(t, *ev.ErrorMessage, "missing metadata: courseId, subscription")
	require.True(t, ev.Processed)
	require.Zero(t, ev.RetryCount)
}

func TestHandleDelivery_MissingUserIDRecordsError(t *testing.T) {
	h := newHarness(t)
	res := h.deliver(t, checkoutCompleted("evt_1", "cs_1", "pi_1", map[string]string{"courseId": "c1"}))

	require.Equal(t, OutcomeFailedPermanent, res.Outcome)
	require.Empty(t, h.enrollments(t))
	require.Contains(t, *h.ledger(t, "evt_1").ErrorMessage, "missing metadata: userId")
}

func TestHandleDelivery_DaysOfAccess(t *testing.T) {
	h := newHarness(t)

	h.deliver(t, checkoutCompleted("evt_1", "cs_1", "pi_1", map[string]string{"userId": "u1", "courseId": "c1", "daysOfAccess": "30"}))
	h.deliver(t, checkoutCompleted("evt_2", "cs_2", "pi_2", map[string]string{"userId": "u1", "courseId": "c2"}))
	h.deliver(t, checkoutCompleted("evt_3", "cs_3", "pi_3", map[string]string{"userId": "u1", "courseId": "c3", "daysOfAccess": "365"}))

	items := h.enrollments(t)
	require.Len(t, items, 3)
	byCourse := map[string]models.CourseEnrollment{}
	for _, e := range items {
		byCourse[e.CourseID] = e
	}
	require.True(t, h.now.AddDate(0, 0, 30).Equal(byCourse["c1"].ExpiresAt))
	require.True(t, h.now.AddDate(0, 0, 30).Equal(byCourse["c2"].ExpiresAt))
	require.True(t, h.now.AddDate(0, 0, 365).Equal(byCourse["c3"].ExpiresAt))
}

func TestHandleDelivery_InvalidDaysOfAccessIsPermanent(t *testing.T) {
	h := newHarness(t)
	res := h.deliver(t, checkoutCompleted("evt_1", "cs_1", "pi_1", map[string]string{"userId": "u1", "courseId": "c1", "daysOfAccess": "thirty"}))

	require.Equal(t, OutcomeFailedPermanent, res.Outcome)
	require.Contains(t, *h.ledger(t, "evt_1").ErrorMessage, "invalid metadata: daysOfAccess")
	require.Empty(t, h.enrollments(t))
}

func TestHandleDelivery_OversizedDaysOfAccessIsPermanent(t *testing.T) {
	h := newHarness(t)
	res := h.deliver(t, checkoutCompleted("evt_1", "cs_1", "pi_1", map[string]string{"userId": "u1", "courseId": "c1", "daysOfAccess": "999999999"}))

	require.Equal(t, OutcomeFailedPermanent, res.Outcome)
	ev := h.ledger(t, "evt_1")
	require.True(t, ev.Processed)
	require.Zero(t, ev.RetryCount)
	require.Contains(t, *ev.ErrorMessage, "invalid metadata: daysOfAccess")
	require.Empty(t, h.enrollments(t))
}

func TestHandleDelivery_RenewalExtendsFromRenewalTime(t *testing.T) {
	h := newHarness(t)
	h.deliver(t, checkoutCompleted("evt_1", "cs_1", "pi_1", map[string]string{"userId": "u1", "courseId": "c1", "daysOfAccess": "30"}))

	h.now = h.now.AddDate(0, 0, 25)
	res := h.deliver(t, checkoutCompleted("evt_2", "cs_2", "pi_2", map[string]string{
		"userId": "u1", "courseId": "c1", "daysOfAccess": "30", "isRenewal": "true",
	}))
	require.Equal(t, OutcomeProcessed, res.Outcome)
	require.Equal(t, "enrollment_renewal", res.Action)

	items := h.enrollments(t)
	require.Len(t, items, 1)
	e := items[0]
	require.Equal(t, 1, e.RenewalCount)
	require.True(t, h.now.AddDate(0, 0, 30).Equal(e.ExpiresAt))
	require.Equal(t, "pi_2", *e.RenewalPaymentID)
	require.EqualValues(t, 1, h.analyticsCount(t, types.AnalyticsEventCourseRenewal))
}

func TestHandleDelivery_LatePaymentIntentForEarlierRenewalIsNoop(t *testing.T) {
	h := newHarness(t)
	h.deliver(t, checkoutCompleted("evt_buy", "cs_1", "pi_1", map[string]string{"userId": "u1", "courseId": "c1", "daysOfAccess": "30"}))

	renewal := map[string]string{"userId": "u1", "courseId": "c1", "daysOfAccess": "30", "isRenewal": "true"}
	h.now = h.now.AddDate(0, 0, 25)
	require.Equal(t, OutcomeProcessed, h.deliver(t, checkoutCompleted("evt_x", "cs_x", "pi_x", renewal)).Outcome)
	h.now = h.now.AddDate(0, 0, 25)
	require.Equal(t, OutcomeProcessed, h.deliver(t, checkoutCompleted("evt_y", "cs_y", "pi_y", renewal)).Outcome)
	expiresAfterY := h.now.AddDate(0, 0, 30)

	h.now = h.now.Add(time.Hour)
	res := h.deliver(t, event("evt_pi_x", stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id": "pi_x", "object": "payment_intent", "metadata": renewal,
	}))
	require.Equal(t, OutcomeProcessed, res.Outcome)
	require.Equal(t, "enrollment_renewal", res.Action)

	items := h.enrollments(t)
	require.Len(t, items, 1)
	require.Equal(t, 2, items[0].RenewalCount)
	require.Equal(t, "pi_y", *items[0].RenewalPaymentID)
	require.True(t, expiresAfterY.Equal(items[0].ExpiresAt))
	require.EqualValues(t, 2, h.analyticsCount(t, types.AnalyticsEventCourseRenewal))
}

func TestHandleDelivery_RenewalWithoutEnrollmentIsPermanent(t *testing.T) {
	h := newHarness(t)
	res := h.deliver(t, checkoutCompleted("evt_1", "cs_1", "pi_1", map[string]string{
		"userId": "u1", "courseId": "c1", "isRenewal": "true",
	}))
	require.Equal(t, OutcomeFailedPermanent, res.Outcome)
	ev := h.ledger(t, "evt_1")
	require.True(t, ev.Processed)
	require.Contains(t, *ev.ErrorMessage, "course enrollment not found")

	// The session flag rolled back with the failed branch.
	var n int64
	require.NoError(t, h.db.Model(&models.CheckoutSession{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestHandleDelivery_CheckoutAndPaymentIntentShareOneEnrollment(t *testing.T) {
	h := newHarness(t)
	md := map[string]string{"userId": "u1", "courseId": "c1"}

	h.deliver(t, checkoutCompleted("evt_1", "cs_1", "pi_1", md))
	res := h.deliver(t, event("evt_2", stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id": "pi_1", "object": "payment_intent", "metadata": md,
	}))
	require.Equal(t, OutcomeProcessed, res.Outcome)

	require.Len(t, h.enrollments(t), 1)
	require.EqualValues(t, 1, h.analyticsCount(t, types.AnalyticsEventCoursePurchase))
}

func TestHandleDelivery_CheckoutSubscription(t *testing.T) {
	h := newHarness(t)
	h.provider.subs["sub_1"] = &stripe.Subscription{
		ID:       "sub_1",
		Status:   stripe.SubscriptionStatusActive,
		Customer: &stripe.Customer{ID: "cus_1"},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{
			{CurrentPeriodStart: 1772355600, CurrentPeriodEnd: 1775034000},
		}},
	}
	res := h.deliver(t, event("evt_1", stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id": "cs_1", "object": "checkout.session", "subscription": "sub_1",
		"metadata": map[string]string{"userId": "u1", "billingInterval": "month", "isUpgrade": "true"},
	}))
	require.Equal(t, OutcomeProcessed, res.Outcome)
	require.Equal(t, "checkout_subscription", res.Action)

	var sub models.UserSubscription
	require.NoError(t, h.db.Where("id = ?", "sub_1").Take(&sub).Error)
	require.Equal(t, "u1", sub.UserID)
	require.Equal(t, "active", sub.Status)
	require.Equal(t, "unlimited", sub.Tier)
	require.EqualValues(t, 1, h.analyticsCount(t, types.AnalyticsEventSubscriptionUpgrade))
	require.Equal(t, "sub_1", *h.ledger(t, "evt_1").SubscriptionID)
}

func TestHandleDelivery_ProviderFailureIsRetryableThenReplayed(t *testing.T) {
	h := newHarness(t)
	h.provider.err = errors.New("stripe unavailable")
	h.provider.subs["sub_1"] = &stripe.Subscription{ID: "sub_1", Status: stripe.SubscriptionStatusActive}

	res := h.deliver(t, event("evt_1", stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id": "cs_1", "object": "checkout.session", "subscription": "sub_1",
		"metadata": map[string]string{"userId": "u1"},
	}))
	require.Equal(t, OutcomeFailedRetryable, res.Outcome)
	require.True(t, res.Ack().Received)

	ev := h.ledger(t, "evt_1")
	require.False(t, ev.Processed)
	require.Equal(t, 1, ev.RetryCount)
	require.NotNil(t, ev.ErrorMessage)

	h.provider.err = nil
	res, err := h.r.Replay(context.Background(), "evt_1")
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, res.Outcome)
	require.True(t, h.ledger(t, "evt_1").Processed)

	res, err = h.r.Replay(context.Background(), "evt_1")
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyProcessed, res.Outcome)

	_, err = h.r.Replay(context.Background(), "evt_missing")
	require.ErrorIs(t, err, webhook_ledger.ErrEventNotFound)
}

func TestReplayRetryable(t *testing.T) {
	h := newHarness(t)
	h.provider.err = errors.New("stripe unavailable")
	h.provider.subs["sub_1"] = &stripe.Subscription{ID: "sub_1", Status: stripe.SubscriptionStatusActive}
	h.deliver(t, event("evt_1", stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id": "cs_1", "object": "checkout.session", "subscription": "sub_1",
		"metadata": map[string]string{"userId": "u1"},
	}))
	h.deliver(t, checkoutCompleted("evt_2", "cs_2", "pi_2", map[string]string{"userId": "u2"}))
	h.deliver(t, checkoutCompleted("evt_3", "cs_3", "pi_3", map[string]string{"userId": "u3", "courseId": "c3"}))

	results, err := h.r.ReplayRetryable(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "evt_1", results[0].EventID)
	require.Equal(t, OutcomeFailedRetryable, results[0].Outcome)
	require.Equal(t, 2, h.ledger(t, "evt_1").RetryCount)

	// Events at the retry ceiling are left alone.
	results, err = h.r.ReplayRetryable(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Empty(t, results)

	h.provider.err = nil
	results, err = h.r.ReplayRetryable(context.Background(), 5, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, OutcomeProcessed, results[0].Outcome)
	require.True(t, h.ledger(t, "evt_1").Processed)

	results, err = h.r.ReplayRetryable(context.Background(), 5, 10)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestHandleDelivery_PaymentIntentCreatesSubscription(t *testing.T) {
	h := newHarness(t)
	pi := event("evt_1", stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id": "pi_9", "object": "payment_intent", "customer": "cus_9", "payment_method": "pm_9",
		"metadata": map[string]string{"userId": "u9", "tier": "unlimited", "billingInterval": "month"},
	})
	res := h.deliver(t, pi)
	require.Equal(t, OutcomeProcessed, res.Outcome)
	require.Equal(t, "payment_intent_subscription", res.Action)

	require.Len(t, h.provider.created, 1)
	created := h.provider.created[0]
	require.Equal(t, "cus_9", created.CustomerID)
	require.Equal(t, "pm_9", created.PaymentMethodID)
	require.Equal(t, "price_month_test", created.PriceID)
	require.Equal(t, "pi_9", created.PaymentIntentID)

	var sub models.UserSubscription
	require.NoError(t, h.db.Where("user_id = ?", "u9").Take(&sub).Error)
	require.Equal(t, "sub_created_pi_9", sub.ID)
	require.EqualValues(t, 1, h.analyticsCount(t, types.AnalyticsEventSubscriptionPurchase))
}

func TestHandleDelivery_ReplayAfterFailedCommitReusesCreatedSubscription(t *testing.T) {
	h := newHarness(t)
	pi := event("evt_1", stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id": "pi_9", "object": "payment_intent", "customer": "cus_9",
		"metadata": map[string]string{"userId": "u9", "tier": "unlimited", "billingInterval": "month"},
	})

	// The provider call succeeds but the local transaction cannot commit.
	require.NoError(t, h.db.Migrator().DropTable(&models.SubscriptionLog{}))
	res := h.deliver(t, pi)
	require.Equal(t, OutcomeFailedRetryable, res.Outcome)
	require.Len(t, h.provider.created, 1)
	ev := h.ledger(t, "evt_1")
	require.False(t, ev.Processed)
	require.Equal(t, "sub_created_pi_9", *ev.SubscriptionID)

	require.NoError(t, h.db.AutoMigrate(&models.SubscriptionLog{}))
	h.now = h.now.Add(48 * time.Hour)
	res, err := h.r.Replay(context.Background(), "evt_1")
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, res.Outcome)
	require.Len(t, h.provider.created, 1)

	var subs []models.UserSubscription
	require.NoError(t, h.db.Where("user_id = ?", "u9").Find(&subs).Error)
	require.Len(t, subs, 1)
	require.Equal(t, "sub_created_pi_9", subs[0].ID)
}

func TestHandleDelivery_PaymentIntentUnknownPriceIsRetryable(t *testing.T) {
	h := newHarness(t)
	res := h.deliver(t, event("evt_1", stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id": "pi_9", "object": "payment_intent", "customer": "cus_9",
		"metadata": map[string]string{"userId": "u9", "tier": "unlimited", "billingInterval": "year"},
	}))
	require.Equal(t, OutcomeFailedRetryable, res.Outcome)
	require.Contains(t, res.Error, ErrPriceNotConfigured.Error())
	require.Empty(t, h.provider.created)

	ev := h.ledger(t, "evt_1")
	require.False(t, ev.Processed)
	require.Equal(t, 1, ev.RetryCount)
}

func TestHandleDelivery_PaymentIntentWithoutMetadataIsIgnored(t *testing.T) {
	h := newHarness(t)
	res := h.deliver(t, event("evt_1", stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id": "pi_inv", "object": "payment_intent",
	}))
	require.Equal(t, OutcomeIgnored, res.Outcome)
	ev := h.ledger(t, "evt_1")
	require.True(t, ev.Processed)
	require.Nil(t, ev.ErrorMessage)
}

func subscriptionObject(id, status string, cancelAtPeriodEnd bool) map[string]any {
	return map[string]any{
		"id": id, "object": "subscription", "status": status, "customer": "cus_1",
		"cancel_at_period_end": cancelAtPeriodEnd,
		"items": map[string]any{"object": "list", "data": []map[string]any{
			{"id": "si_1", "object": "subscription_item", "current_period_start": 1772355600, "current_period_end": 1775034000},
		}},
	}
}

func seedSubscription(t *testing.T, h *harness, id string) {
	t.Helper()
	require.NoError(t, h.db.Create(&models.UserSubscription{
		ID: id, UserID: "u1", CustomerID: "cus_1", Status: "active", Tier: "unlimited", CancelAtPeriodEnd: true,
	}).Error)
}

func TestHandleDelivery_SubscriptionUpdated(t *testing.T) {
	h := newHarness(t)
	seedSubscription(t, h, "sub_1")

	res := h.deliver(t, event("evt_1", stripe.EventTypeCustomerSubscriptionUpdated, subscriptionObject("sub_1", "past_due", false)))
	require.Equal(t, OutcomeProcessed, res.Outcome)

	var sub models.UserSubscription
	require.NoError(t, h.db.Where("id = ?", "sub_1").Take(&sub).Error)
	require.Equal(t, "past_due", sub.Status)
	require.False(t, sub.CancelAtPeriodEnd)
	require.EqualValues(t, 1775034000, sub.CurrentPeriodEnd.Unix())
	require.Equal(t, "sub_1", *h.ledger(t, "evt_1").SubscriptionID)
}

func TestHandleDelivery_SubscriptionUpdatedUnknownCreatesNothing(t *testing.T) {
	h := newHarness(t)
	res := h.deliver(t, event("evt_1", stripe.EventTypeCustomerSubscriptionUpdated, subscriptionObject("sub_x", "active", false)))
	require.Equal(t, OutcomeProcessed, res.Outcome)

	var n int64
	require.NoError(t, h.db.Model(&models.UserSubscription{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestHandleDelivery_SubscriptionDeleted(t *testing.T) {
	h := newHarness(t)
	seedSubscription(t, h, "sub_1")

	res := h.deliver(t, event("evt_1", stripe.EventTypeCustomerSubscriptionDeleted, subscriptionObject("sub_1", "canceled", false)))
	require.Equal(t, OutcomeProcessed, res.Outcome)

	var sub models.UserSubscription
	require.NoError(t, h.db.Where("id = ?", "sub_1").Take(&sub).Error)
	require.Equal(t, "canceled", sub.Status)
	require.False(t, sub.CancelAtPeriodEnd)
	require.NotNil(t, sub.EndedAt)
	require.True(t, h.now.Equal(*sub.EndedAt))
}

func TestHandleDelivery_UnhandledTypeAcknowledged(t *testing.T) {
	h := newHarness(t)
	res := h.deliver(t, event("evt_1", "invoice.paid", map[string]any{"id": "in_1", "object": "invoice"}))
	require.Equal(t, OutcomeIgnored, res.Outcome)
	require.True(t, res.Ack().Received)

	ev := h.ledger(t, "evt_1")
	require.True(t, ev.Processed)
	require.Nil(t, ev.ErrorMessage)
}

func TestHandleDelivery_BadSignatureWritesNothing(t *testing.T) {
	h := newHarness(t)
	payload, _ := h.signed(t, checkoutCompleted("evt_1", "cs_1", "pi_1", map[string]string{"userId": "u1", "courseId": "c1"}))
	forged := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: "whsec_wrong", Timestamp: time.Now()})

	_, err := h.r.HandleDelivery(context.Background(), payload, forged.Header)
	require.ErrorIs(t, err, stripe_webhook.ErrInvalidSignature)

	_, err = h.r.HandleDelivery(context.Background(), payload, "")
	require.ErrorIs(t, err, stripe_webhook.ErrMissingSignature)

	var n int64
	require.NoError(t, h.db.Model(&models.WebhookEvent{}).Count(&n).Error)
	require.Zero(t, n)
	require.Empty(t, h.enrollments(t))
}

func TestHandleDelivery_InFlightClaimRejects(t *testing.T) {
	h := newHarness(t)
	h.r.claims = busyGuard{}

	payload, header := h.signed(t, checkoutCompleted("evt_1", "cs_1", "pi_1", map[string]string{"userId": "u1", "courseId": "c1"}))
	_, err := h.r.HandleDelivery(context.Background(), payload, header)
	require.ErrorIs(t, err, ErrEventInFlight)

	var n int64
	require.NoError(t, h.db.Model(&models.WebhookEvent{}).Count(&n).Error)
	require.Zero(t, n)
}
