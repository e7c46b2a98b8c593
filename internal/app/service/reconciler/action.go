package reconciler

import (
	"encoding/json"
	"fmt"

	"github.com/fatflowers/coursepay/pkg/types"

	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v84"
)

// Action is the decision the router takes for one event. The set of
// implementations is closed.
type Action interface {
	action() string
}

// NewEnrollment grants first access to a course.
type NewEnrollment struct {
	UserID       string `meta:"userId" validate:"required"`
	CourseID     string `meta:"courseId" validate:"required"`
	DaysOfAccess int    `meta:"daysOfAccess" validate:"gt=0,lte=3650"`
	PaymentID    string `meta:"paymentId" validate:"required"`
	SessionID    string `meta:"-"`
	Source       string `meta:"source"`
}

// EnrollmentRenewal extends an existing course enrollment.
type EnrollmentRenewal struct {
	UserID       string `meta:"userId" validate:"required"`
	CourseID     string `meta:"courseId" validate:"required"`
	DaysOfAccess int    `meta:"daysOfAccess" validate:"gt=0,lte=3650"`
	PaymentID    string `meta:"paymentId" validate:"required"`
	SessionID    string `meta:"-"`
	Source       string `meta:"source"`
}

// CheckoutSubscription mirrors a subscription started by a checkout session.
type CheckoutSubscription struct {
	UserID          string                 `meta:"userId" validate:"required"`
	SessionID       string                 `meta:"sessionId" validate:"required"`
	SubscriptionID  string                 `meta:"subscription" validate:"required"`
	Tier            types.SubscriptionTier `meta:"tier" validate:"required"`
	BillingInterval types.BillingInterval  `meta:"billingInterval" validate:"omitempty,oneof=month year"`
	IsUpgrade       bool                   `meta:"isUpgrade"`
	Source          string                 `meta:"source"`
}

// PaymentIntentSubscription creates the provider subscription a succeeded
// payment intent paid for, then mirrors it.
type PaymentIntentSubscription struct {
	UserID          string                 `meta:"userId" validate:"required"`
	PaymentIntentID string                 `meta:"paymentIntent" validate:"required"`
	CustomerID      string                 `meta:"customer" validate:"required"`
	PaymentMethodID string                 `meta:"paymentMethod"`
	Tier            types.SubscriptionTier `meta:"tier" validate:"required"`
	BillingInterval types.BillingInterval  `meta:"billingInterval" validate:"required,oneof=month year"`
	IsUpgrade       bool                   `meta:"isUpgrade"`
	Source          string                 `meta:"source"`
}

// SubscriptionUpdate copies a provider-side subscription change.
type SubscriptionUpdate struct {
	SubscriptionID string               `meta:"subscription" validate:"required"`
	Subscription   *stripe.Subscription `meta:"-" validate:"-"`
}

// SubscriptionDeletion records that the provider ended a subscription.
type SubscriptionDeletion struct {
	SubscriptionID string `meta:"subscription" validate:"required"`
}

// Unhandled events are logged and acknowledged.
type Unhandled struct {
	EventType string
	Reason    string
}

func (*NewEnrollment) action() string             { return "new_enrollment" }
func (*EnrollmentRenewal) action() string         { return "enrollment_renewal" }
func (*CheckoutSubscription) action() string      { return "checkout_subscription" }
func (*PaymentIntentSubscription) action() string { return "payment_intent_subscription" }
func (*SubscriptionUpdate) action() string        { return "subscription_update" }
func (*SubscriptionDeletion) action() string      { return "subscription_deletion" }
func (*Unhandled) action() string                 { return "unhandled" }

// Classifier routes verified events to actions.
type Classifier struct {
	validate    *validator.Validate
	defaultDays int
}

func NewClassifier(defaultDays int) *Classifier {
	if defaultDays <= 0 {
		defaultDays = types.DefaultDaysOfAccess
	}
	return &Classifier{validate: newValidator(), defaultDays: defaultDays}
}

// Classify decodes the event object and picks the action. Errors are
// permanent: the same event will always classify the same way.
func (c *Classifier) Classify(event *stripe.Event) (Action, error) {
	if event.Data == nil {
		return nil, undecodable(string(event.Type), fmt.Errorf("event has no data"))
	}
	var (
		a   Action
		err error
	)
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		a, err = c.classifyCheckoutSession(event.Data.Raw)
	case stripe.EventTypePaymentIntentSucceeded:
		a, err = c.classifyPaymentIntent(event.Data.Raw)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, undecodable("subscription", err)
		}
		a = &SubscriptionUpdate{SubscriptionID: sub.ID, Subscription: &sub}
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, undecodable("subscription", err)
		}
		a = &SubscriptionDeletion{SubscriptionID: sub.ID}
	default:
		return &Unhandled{EventType: string(event.Type), Reason: "unsupported event type"}, nil
	}
	if err != nil {
		return nil, err
	}
	if _, ok := a.(*Unhandled); ok {
		return a, nil
	}
	if err := validateAction(c.validate, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (c *Classifier) classifyCheckoutSession(raw json.RawMessage) (Action, error) {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, undecodable("checkout session", err)
	}
	md, err := parseMetadata(cs.Metadata, c.defaultDays)
	if err != nil {
		return nil, err
	}

	// The payment intent ID is shared with the payment_intent.succeeded event
	// of the same purchase, so both deliveries hit the same enrollment row.
	paymentID := cs.ID
	if cs.PaymentIntent != nil && cs.PaymentIntent.ID != "" {
		paymentID = cs.PaymentIntent.ID
	}

	switch {
	case md.hasCourse() && md.IsRenewal:
		return &EnrollmentRenewal{
			UserID: md.UserID, CourseID: md.CourseID, DaysOfAccess: md.DaysOfAccess,
			PaymentID: paymentID, SessionID: cs.ID, Source: md.Source,
		}, nil
	case md.hasCourse():
		return &NewEnrollment{
			UserID: md.UserID, CourseID: md.CourseID, DaysOfAccess: md.DaysOfAccess,
			PaymentID: paymentID, SessionID: cs.ID, Source: md.Source,
		}, nil
	case cs.Subscription != nil && cs.Subscription.ID != "":
		return &CheckoutSubscription{
			UserID: md.UserID, SessionID: cs.ID, SubscriptionID: cs.Subscription.ID,
			Tier: md.Tier, BillingInterval: md.BillingInterval, IsUpgrade: md.IsUpgrade, Source: md.Source,
		}, nil
	default:
		return nil, &MetadataError{
			Missing: []string{MetaCourseID, MetaSubscription},
			Reason:  "checkout session carries neither a course nor a subscription",
		}
	}
}

func (c *Classifier) classifyPaymentIntent(raw json.RawMessage) (Action, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(raw, &pi); err != nil {
		return nil, undecodable("payment intent", err)
	}
	md, err := parseMetadata(pi.Metadata, c.defaultDays)
	if err != nil {
		return nil, err
	}

	switch {
	case md.hasCourse() && md.IsRenewal:
		return &EnrollmentRenewal{
			UserID: md.UserID, CourseID: md.CourseID, DaysOfAccess: md.DaysOfAccess,
			PaymentID: pi.ID, Source: md.Source,
		}, nil
	case md.hasCourse():
		return &NewEnrollment{
			UserID: md.UserID, CourseID: md.CourseID, DaysOfAccess: md.DaysOfAccess,
			PaymentID: pi.ID, Source: md.Source,
		}, nil
	case hasSubscriptionIntent(pi.Metadata):
		a := &PaymentIntentSubscription{
			UserID: md.UserID, PaymentIntentID: pi.ID,
			Tier: md.Tier, BillingInterval: md.BillingInterval, IsUpgrade: md.IsUpgrade, Source: md.Source,
		}
		if pi.Customer != nil {
			a.CustomerID = pi.Customer.ID
		}
		if pi.PaymentMethod != nil {
			a.PaymentMethodID = pi.PaymentMethod.ID
		}
		return a, nil
	default:
		// Invoice and other off-session intents carry no purchase metadata.
		return &Unhandled{EventType: string(stripe.EventTypePaymentIntentSucceeded), Reason: "payment intent without purchase metadata"}, nil
	}
}
