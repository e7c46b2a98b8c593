package app

import (
	"time"

	"github.com/fatflowers/coursepay/internal/app/api/server"
	"github.com/fatflowers/coursepay/internal/app/service/analytics"
	"github.com/fatflowers/coursepay/internal/app/service/checkout_session"
	"github.com/fatflowers/coursepay/internal/app/service/enrollment"
	"github.com/fatflowers/coursepay/internal/app/service/reconciler"
	"github.com/fatflowers/coursepay/internal/app/service/statistics"
	"github.com/fatflowers/coursepay/internal/app/service/subscription"
	"github.com/fatflowers/coursepay/internal/app/service/webhook_ledger"
	"github.com/fatflowers/coursepay/internal/platform/db"
	"github.com/fatflowers/coursepay/internal/platform/redis"
	"github.com/fatflowers/coursepay/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/coursepay/internal/platform/stripe/stripe_webhook"
	"github.com/fatflowers/coursepay/pkg/config"
	"github.com/fatflowers/coursepay/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	redis.Module,
	stripe_webhook.Module,
	stripe_api.Module,
	server.Module,
	webhook_ledger.Module,
	analytics.Module,
	checkout_session.Module,
	enrollment.Module,
	subscription.Module,
	statistics.Module,
	reconciler.Module,
)
