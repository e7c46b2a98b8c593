package config

import (
	"testing"

	"github.com/fatflowers/coursepay/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestGetSubscriptionPrice_SelectsByMode(t *testing.T) {
	cfg := &Config{Stripe: StripeConfig{Prices: []*types.SubscriptionPrice{
		{Tier: types.SubscriptionTierUnlimited, Interval: types.BillingIntervalMonth, Livemode: false, PriceID: "price_test_month"},
		{Tier: types.SubscriptionTierUnlimited, Interval: types.BillingIntervalMonth, Livemode: true, PriceID: "price_live_month"},
	}}}

	p, err := cfg.GetSubscriptionPrice(types.SubscriptionTierUnlimited, types.BillingIntervalMonth, true)
	require.NoError(t, err)
	require.Equal(t, "price_live_month", p.PriceID)

	p, err = cfg.GetSubscriptionPrice(types.SubscriptionTierUnlimited, types.BillingIntervalMonth, false)
	require.NoError(t, err)
	require.Equal(t, "price_test_month", p.PriceID)

	_, err = cfg.GetSubscriptionPrice(types.SubscriptionTierUnlimited, types.BillingIntervalYear, false)
	require.Error(t, err)
}

func TestStripeConfig_Mode(t *testing.T) {
	c := StripeConfig{
		Live: StripeModeConfig{WebhookSecret: "whsec_live"},
		Test: StripeModeConfig{WebhookSecret: "whsec_test"},
	}
	require.Equal(t, "whsec_live", c.Mode(true).WebhookSecret)
	require.Equal(t, "whsec_test", c.Mode(false).WebhookSecret)
}

func TestDaysOfAccessOrDefault(t *testing.T) {
	require.Equal(t, types.DefaultDaysOfAccess, (&Config{}).DaysOfAccessOrDefault())
	require.Equal(t, 45, (&Config{Enrollment: EnrollmentConfig{DefaultDaysOfAccess: 45}}).DaysOfAccessOrDefault())
}

func TestNew_ReadsEnvSecrets(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")
	t.Setenv("APP_STRIPE_TEST_WEBHOOK_SECRET", "whsec_from_env")

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, "whsec_from_env", cfg.Stripe.Test.WebhookSecret)
	require.Equal(t, 8888, cfg.Server.Port)
	require.Equal(t, types.DefaultDaysOfAccess, cfg.Enrollment.DefaultDaysOfAccess)
}
