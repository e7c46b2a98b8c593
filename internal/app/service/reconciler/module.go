package reconciler

import (
	"github.com/fatflowers/coursepay/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/coursepay/internal/platform/stripe/stripe_webhook"
	"github.com/fatflowers/coursepay/pkg/config"
	"github.com/fatflowers/coursepay/pkg/metrics"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(
		func(v *stripe_webhook.Verifier) EventVerifier { return v },
		func(c *stripe_api.Client) SubscriptionProvider { return c },
		func(cfg *config.Config) *Classifier { return NewClassifier(cfg.DaysOfAccessOrDefault()) },
		metrics.NewDefaultReconcileMetrics,
		New,
	),
)
