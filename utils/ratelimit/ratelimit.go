// Package ratelimit implements fixed-window counters in Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/osslararemellan/ole/config"
)

// Scope names a family of limited actions.
type Scope string

const (
	ScopeMessage Scope = "message"
	ScopeAPI     Scope = "api"
)

// Rule allows Limit hits per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Rules maps each scope to its rule using the ratelimit config section.
func Rules(cfg config.RateLimitConfig) map[Scope]Rule {
	return map[Scope]Rule{
		ScopeMessage: {Limit: cfg.MessagePerMinute, Window: time.Minute},
		ScopeAPI:     {Limit: cfg.APIPerMinute, Window: time.Minute},
	}
}

// Limiter decides whether the subject may perform one more action in scope.
type Limiter interface {
	Allow(ctx context.Context, scope Scope, subject string) (bool, error)
}

// WindowLimiter counts hits per (scope, subject, window) bucket. A rule with
// Limit <= 0 disables limiting for its scope.
type WindowLimiter struct {
	rdb      *redis.Client
	rules    map[Scope]Rule
	logger   *zap.Logger
	failOpen bool
	now      func() time.Time
}

func NewWindowLimiter(rdb *redis.Client, rules map[Scope]Rule, logger *zap.Logger, failOpen bool) *WindowLimiter {
	return &WindowLimiter{
		rdb:      rdb,
		rules:    rules,
		logger:   logger,
		failOpen: failOpen,
		now:      time.Now,
	}
}

var ErrUnknownScope = errors.New("ratelimit: unknown scope")

func (l *WindowLimiter) Allow(ctx context.Context, scope Scope, subject string) (bool, error) {
	rule, ok := l.rules[scope]
	if !ok {
		return false, ErrUnknownScope
	}
	if rule.Limit <= 0 {
		return true, nil
	}

	key := bucketKey(scope, subject, l.now(), rule.Window)
	pipe := l.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rule.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		if l.failOpen {
			l.logger.Warn("rate limit check failed, allowing",
				zap.String("key", key), zap.Error(err))
			return true, nil
		}
		return false, fmt.Errorf("rate limit check: %w", err)
	}

	if count := incr.Val(); count > int64(rule.Limit) {
		l.logger.Info("rate limit exceeded",
			zap.String("scope", string(scope)),
			zap.String("subject", subject),
			zap.Int64("count", count),
			zap.Int("limit", rule.Limit))
		return false, nil
	}
	return true, nil
}

// Remaining reports how many hits are left in the current window.
func (l *WindowLimiter) Remaining(ctx context.Context, scope Scope, subject string) (int, error) {
	rule, ok := l.rules[scope]
	if !ok {
		return 0, ErrUnknownScope
	}
	n, err := l.rdb.Get(ctx, bucketKey(scope, subject, l.now(), rule.Window)).Int()
	if errors.Is(err, redis.Nil) {
		return rule.Limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rate limit remaining: %w", err)
	}
	return max(rule.Limit-n, 0), nil
}

func bucketKey(scope Scope, subject string, now time.Time, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", scope, subject, now.UnixMilli()/window.Milliseconds())
}
