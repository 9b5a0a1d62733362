package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/classfund/classfund/internal/config"
)

const refundLockTTL = 30 * time.Second

// PublicLimiter throttles the unauthenticated surfaces. Donation creation is
// limited per client IP and webhook ingestion per provider, both through a
// shared redis token bucket so every API instance counts against the same
// budget. It also guards refunds against double submission with a short
// redis lock.
type PublicLimiter struct {
	bucket *TokenBucket
	locker *Locker
	cfg    config.RateLimitConfig
	log    *zap.Logger
}

// NewPublicLimiter returns nil when rate limiting is disabled. Callers treat
// a nil limiter as allow-all.
func NewPublicLimiter(cfg config.Config, log *zap.Logger) (*PublicLimiter, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
		DB:       cfg.RateLimit.RedisDB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("rate limit redis: %w", err)
	}

	return &PublicLimiter{
		bucket: NewTokenBucket(client),
		locker: NewLocker(client),
		cfg:    cfg.RateLimit,
		log:    log.Named("ratelimit"),
	}, nil
}

func (p *PublicLimiter) Enabled() bool {
	return p != nil && p.bucket != nil
}

// AllowDonation reports whether the client IP may create another donation.
// Redis errors fail open so a cache outage never blocks giving.
func (p *PublicLimiter) AllowDonation(ctx context.Context, clientIP string) *RateLimitResult {
	if !p.Enabled() || clientIP == "" {
		return &RateLimitResult{Allowed: true}
	}
	key := fmt.Sprintf("ratelimit:donate:ip:%s", clientIP)
	res, err := p.bucket.Allow(ctx, key, p.cfg.DonationRate, p.cfg.DonationBurst)
	if err != nil {
		p.log.Warn("donation rate limit check failed", zap.String("client_ip", clientIP), zap.Error(err))
		return &RateLimitResult{Allowed: true}
	}
	return res
}

// AllowWebhook reports whether another webhook from the provider may be
// ingested. Fails open on redis errors.
func (p *PublicLimiter) AllowWebhook(ctx context.Context, provider string) *RateLimitResult {
	if !p.Enabled() || provider == "" {
		return &RateLimitResult{Allowed: true}
	}
	key := fmt.Sprintf("ratelimit:webhook:provider:%s", provider)
	res, err := p.bucket.Allow(ctx, key, p.cfg.WebhookRate, p.cfg.WebhookBurst)
	if err != nil {
		p.log.Warn("webhook rate limit check failed", zap.String("provider", provider), zap.Error(err))
		return &RateLimitResult{Allowed: true}
	}
	return res
}

// TryLockRefund takes a short lock keyed by donation so two concurrent refund
// requests for the same donation cannot both reach the payment provider.
func (p *PublicLimiter) TryLockRefund(ctx context.Context, donationID string) (string, bool) {
	if !p.Enabled() {
		return "", true
	}
	key := fmt.Sprintf("ratelimit:refund:lock:%s", donationID)
	token, ok, err := p.locker.TryLock(ctx, key, refundLockTTL)
	if err != nil {
		p.log.Warn("refund lock failed", zap.String("donation_id", donationID), zap.Error(err))
		return "", true
	}
	return token, ok
}

func (p *PublicLimiter) ReleaseRefund(ctx context.Context, donationID, token string) {
	if !p.Enabled() || token == "" {
		return
	}
	key := fmt.Sprintf("ratelimit:refund:lock:%s", donationID)
	if err := p.locker.Release(ctx, key, token); err != nil {
		p.log.Warn("refund lock release failed", zap.String("donation_id", donationID), zap.Error(err))
	}
}
