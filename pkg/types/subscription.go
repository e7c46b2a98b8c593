package types

type SubscriptionTier string

const (
	SubscriptionTierUnlimited SubscriptionTier = "unlimited"
)

type BillingInterval string

const (
	BillingIntervalMonth BillingInterval = "month"
	BillingIntervalYear  BillingInterval = "year"
)

// SubscriptionStatusCanceled is the only status written locally; every other
// status is copied verbatim from the payment provider.
const SubscriptionStatusCanceled = "canceled"

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonPurchase SubscriptionChangeReason = "purchase"
	SubscriptionChangeReasonUpgrade  SubscriptionChangeReason = "upgrade"
	SubscriptionChangeReasonUpdate   SubscriptionChangeReason = "update"
	SubscriptionChangeReasonDelete   SubscriptionChangeReason = "delete"
)

// SubscriptionPrice maps a sellable tier/interval to a provider price ID.
// Live and test mode use different price IDs for the same product.
type SubscriptionPrice struct {
	Tier     SubscriptionTier `json:"tier" mapstructure:"tier"`
	Interval BillingInterval  `json:"interval" mapstructure:"interval"`
	Livemode bool             `json:"livemode" mapstructure:"livemode"`
	PriceID  string           `json:"price_id" mapstructure:"price_id"`
}

func (p *SubscriptionPrice) Matches(tier SubscriptionTier, interval BillingInterval, livemode bool) bool {
	return p != nil && p.Tier == tier && p.Interval == interval && p.Livemode == livemode
}
