// Package quota enforces free-tier usage limits per user and feature.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"astro_bot/internal/config"
	"astro_bot/internal/domain"
	"astro_bot/internal/logging"
	"astro_bot/internal/metrics"
)

// Denial reasons.
const (
	ReasonQuotaExceeded = "quota_exceeded"
	ReasonPremiumOnly   = "premium_only"
)

type usageStore interface {
	ConsumeUsage(ctx context.Context, userID int64, feature domain.Feature, limit int, window time.Duration, now time.Time) (domain.UsageWindow, bool, error)
	ReleaseUsage(ctx context.Context, userID int64, feature domain.Feature, now time.Time) error
	IncrementUsage(ctx context.Context, userID int64, feature domain.Feature) (int64, error)
}

// Policy is the free-tier allowance of one feature. A zero Limit makes the
// feature premium only.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Verdict is the outcome of CheckAndConsume.
type Verdict struct {
	Allowed bool
	Reason  string
	ResetAt time.Time
	// Count is the number of units used in the current window after this call.
	Count int
	// Consumed is set when a free-tier unit was taken and may be released.
	Consumed bool
}

// Err returns domain.ErrQuotaExceeded for denied verdicts.
func (v Verdict) Err() error {
	if v.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s until %s", domain.ErrQuotaExceeded, v.Reason, v.ResetAt.Format(time.RFC3339))
}

// Limiter decides whether a profile may use a feature right now.
type Limiter struct {
	store    usageStore
	policies map[domain.Feature]Policy
	metrics  *metrics.Metrics
	logger   *logrus.Entry
}

// NewLimiter constructs a Limiter with one policy per feature.
func NewLimiter(store usageStore, policies map[domain.Feature]Policy, m *metrics.Metrics, logger *logrus.Entry) *Limiter {
	return &Limiter{
		store:    store,
		policies: policies,
		metrics:  m,
		logger:   logging.Component(logger, "quota"),
	}
}

// PoliciesFromConfig maps the configured quotas onto features.
func PoliciesFromConfig(q config.QuotaConfig) map[domain.Feature]Policy {
	return map[domain.Feature]Policy{
		domain.FeatureHoroscope:  {Limit: q.Horoscope.Limit, Window: q.Horoscope.Window},
		domain.FeatureTarot:      {Limit: q.Tarot.Limit, Window: q.Tarot.Window},
		domain.FeatureChat:       {Limit: q.Chat.Limit, Window: q.Chat.Window},
		domain.FeatureNumerology: {Limit: q.Numerology.Limit, Window: q.Numerology.Window},
		domain.FeatureNatal:      {Limit: q.Natal.Limit, Window: q.Natal.Window},
	}
}

// Policy returns the policy of feature.
func (l *Limiter) Policy(feature domain.Feature) (Policy, bool) {
	if l == nil {
		return Policy{}, false
	}
	p, ok := l.policies[feature]
	return p, ok
}

// CheckAndConsume takes one unit of feature for profile. Active premium
// profiles are always allowed and only counted. For free profiles the check
// and the consumption are one atomic store operation.
func (l *Limiter) CheckAndConsume(ctx context.Context, profile domain.Profile, feature domain.Feature, now time.Time) (Verdict, error) {
	if l == nil || l.store == nil {
		return Verdict{}, errors.New("quota limiter is not initialized")
	}

	policy, ok := l.policies[feature]
	if !ok {
		return Verdict{}, fmt.Errorf("no quota policy for feature %q", feature)
	}

	log := logging.Enrich(l.logger, logging.Context{UserID: profile.UserID, Feature: string(feature)})

	if profile.IsPremium(now) {
		if _, err := l.store.IncrementUsage(ctx, profile.UserID, feature); err != nil {
			// Analytics only; never block a paying user on it.
			log.WithError(err).WithField("event", "usage_count_failed").Warn("failed to count premium usage")
		}
		l.metrics.QuotaDecision(string(feature), "premium")
		return Verdict{Allowed: true}, nil
	}

	if policy.Limit <= 0 {
		l.metrics.QuotaDecision(string(feature), "premium_only")
		return Verdict{Allowed: false, Reason: ReasonPremiumOnly}, nil
	}

	window, allowed, err := l.store.ConsumeUsage(ctx, profile.UserID, feature, policy.Limit, policy.Window, now)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	if !allowed {
		l.metrics.QuotaDecision(string(feature), "denied")
		log.WithFields(logging.Fields{
			"event":    "quota_denied",
			"reset_at": window.ResetAt,
			"count":    window.Count,
		}).Info("quota exceeded")
		return Verdict{Reason: ReasonQuotaExceeded, ResetAt: window.ResetAt, Count: window.Count}, nil
	}

	l.metrics.QuotaDecision(string(feature), "allowed")
	return Verdict{Allowed: true, ResetAt: window.ResetAt, Count: window.Count, Consumed: true}, nil
}

// Release returns the unit taken by an allowed verdict, used when the work it
// paid for failed.
func (l *Limiter) Release(ctx context.Context, profile domain.Profile, feature domain.Feature, verdict Verdict, now time.Time) error {
	if l == nil || l.store == nil {
		return errors.New("quota limiter is not initialized")
	}
	if !verdict.Consumed {
		return nil
	}

	if err := l.store.ReleaseUsage(ctx, profile.UserID, feature, now); err != nil {
		return fmt.Errorf("release quota: %w", err)
	}

	l.metrics.QuotaDecision(string(feature), "released")
	return nil
}
