package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/fatflowers/coursepay/pkg/config"
)

const (
	claimKeyPrefix  = "coursepay:webhook:inflight:"
	defaultClaimTTL = 2 * time.Minute
)

// ClaimGuard marks an event as being processed by one delivery. It narrows
// the window where two concurrent deliveries of the same event both run the
// mutators; the durable ledger stays the source of truth.
type ClaimGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Cmdable is the subset of the go-redis client the guard needs.
type Cmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

type redisClaimGuard struct {
	client Cmdable
	ttl    time.Duration
}

func NewClaimGuardWithClient(client Cmdable, ttl time.Duration) ClaimGuard {
	if ttl <= 0 {
		ttl = defaultClaimTTL
	}
	return &redisClaimGuard{client: client, ttl: ttl}
}

func claimKey(eventID string) string { return claimKeyPrefix + eventID }

func (g *redisClaimGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	ok, err := g.client.SetNX(ctx, claimKey(eventID), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return ok, nil
}

func (g *redisClaimGuard) Release(ctx context.Context, eventID string) error {
	if err := g.client.Del(ctx, claimKey(eventID)).Err(); err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	return nil
}

type noopClaimGuard struct{}

func (noopClaimGuard) Claim(context.Context, string) (bool, error) { return true, nil }
func (noopClaimGuard) Release(context.Context, string) error       { return nil }

// NoopClaimGuard always grants the claim.
func NoopClaimGuard() ClaimGuard { return noopClaimGuard{} }

// NewClaimGuard returns a Redis-backed guard, or a no-op guard when no Redis
// address is configured.
func NewClaimGuard(lc fx.Lifecycle, cfg *cfgpkg.Config, l *zap.SugaredLogger) ClaimGuard {
	if cfg.Redis.Addr == "" {
		l.Infow("redis address empty; in-flight claim guard disabled")
		return NoopClaimGuard()
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				// Deliveries still reconcile correctly without the guard.
				l.Warnw("redis ping failed", "addr", cfg.Redis.Addr, "err", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			l.Infow("closing redis client")
			return client.Close()
		},
	})
	return NewClaimGuardWithClient(client, cfg.Redis.ClaimTTL)
}

var Module = fx.Options(
	fx.Provide(NewClaimGuard),
)
