package stripe_api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/fatflowers/coursepay/pkg/config"
)

var ErrAPIKeyNotConfigured = errors.New("stripe api key is not configured")

// MetadataPaymentIntent tags a created subscription with the payment intent
// that paid for it.
const MetadataPaymentIntent = "paymentIntent"

type CreateSubscriptionParams struct {
	CustomerID      string
	PriceID         string
	PaymentMethodID string
	// PaymentIntentID scopes the idempotency key and tags the subscription's
	// metadata, so a redelivered payment_intent.succeeded never creates a
	// second subscription, even after the key has expired.
	PaymentIntentID string
	Metadata        map[string]string
}

// Client talks to the provider API with the key of the event's mode.
type Client struct {
	clients map[bool]*stripe.Client
	logger  *zap.SugaredLogger
}

func NewClient(cfg *cfgpkg.Config, logger *zap.SugaredLogger) *Client {
	c := &Client{clients: map[bool]*stripe.Client{}, logger: logger}
	for _, livemode := range []bool{true, false} {
		key := strings.TrimSpace(cfg.Stripe.Mode(livemode).SecretKey)
		if key == "" {
			logger.Warnw("stripe api key missing; provider calls will fail", "livemode", livemode)
			continue
		}
		c.clients[livemode] = stripe.NewClient(key)
	}
	return c
}

func (c *Client) api(livemode bool) (*stripe.Client, error) {
	api, ok := c.clients[livemode]
	if !ok {
		return nil, fmt.Errorf("%w: livemode=%t", ErrAPIKeyNotConfigured, livemode)
	}
	return api, nil
}

func (c *Client) GetSubscription(ctx context.Context, livemode bool, id string) (*stripe.Subscription, error) {
	api, err := c.api(livemode)
	if err != nil {
		return nil, err
	}
	sub, err := api.V1Subscriptions.Retrieve(ctx, id, &stripe.SubscriptionRetrieveParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription %s: %w", id, err)
	}
	return sub, nil
}

// CreateSubscription returns the subscription already created for
// p.PaymentIntentID when one exists, and creates it otherwise.
func (c *Client) CreateSubscription(ctx context.Context, livemode bool, p CreateSubscriptionParams) (*stripe.Subscription, error) {
	api, err := c.api(livemode)
	if err != nil {
		return nil, err
	}
	if p.PaymentIntentID != "" {
		existing, err := c.findByPaymentIntent(ctx, api, p.PaymentIntentID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			c.logger.Infow("reusing subscription created for payment intent", "subscription_id", existing.ID, "payment_intent", p.PaymentIntentID)
			return existing, nil
		}
	}

	params := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(p.CustomerID),
		Items: []*stripe.SubscriptionCreateItemParams{
			{Price: stripe.String(p.PriceID)},
		},
		Metadata: subscriptionMetadata(p),
	}
	if p.PaymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(p.PaymentMethodID)
	}
	if key := IdempotencyKey(p.PaymentIntentID); key != "" {
		params.SetIdempotencyKey(key)
	}
	sub, err := api.V1Subscriptions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription for customer %s: %w", p.CustomerID, err)
	}
	return sub, nil
}

func (c *Client) findByPaymentIntent(ctx context.Context, api *stripe.Client, paymentIntentID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionSearchParams{
		SearchParams: stripe.SearchParams{Query: PaymentIntentQuery(paymentIntentID), Limit: stripe.Int64(1)},
	}
	for sub, err := range api.V1Subscriptions.Search(ctx, params) {
		if err != nil {
			return nil, fmt.Errorf("failed to search subscriptions for payment intent %s: %w", paymentIntentID, err)
		}
		return sub, nil
	}
	return nil, nil
}

func subscriptionMetadata(p CreateSubscriptionParams) map[string]string {
	md := make(map[string]string, len(p.Metadata)+1)
	for k, v := range p.Metadata {
		md[k] = v
	}
	if p.PaymentIntentID != "" {
		md[MetadataPaymentIntent] = p.PaymentIntentID
	}
	return md
}

// PaymentIntentQuery is the search query matching subscriptions tagged with
// paymentIntentID.
func PaymentIntentQuery(paymentIntentID string) string {
	return fmt.Sprintf("metadata['%s']:'%s'", MetadataPaymentIntent, strings.ReplaceAll(paymentIntentID, "'", `\'`))
}

// IdempotencyKey derives the create-subscription key from a payment intent.
func IdempotencyKey(paymentIntentID string) string {
	if paymentIntentID == "" {
		return ""
	}
	return "coursepay-sub-" + paymentIntentID
}

var Module = fx.Options(
	fx.Provide(NewClient),
)
