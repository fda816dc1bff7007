package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// Stats is a point-in-time summary of the profile population.
type Stats struct {
	Profiles int64
	Ready    int64
	Premium  int64
}

// StatsProvider exposes profile counts for the owner /stats command without
// leaking MongoDB internals to callers.
type StatsProvider struct {
	profiles countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the profiles collection.
func NewStatsProvider(profiles countCollection) *StatsProvider {
	return &StatsProvider{profiles: profiles}
}

// CountProfiles returns the number of stored profiles.
func (p *StatsProvider) CountProfiles(ctx context.Context) (int64, error) {
	return p.count(ctx, "profiles", bson.D{})
}

// CountReady returns the number of profiles that finished onboarding.
func (p *StatsProvider) CountReady(ctx context.Context) (int64, error) {
	return p.count(ctx, "ready profiles", bson.D{{Key: "stage", Value: "ready"}})
}

// CountPremium returns the number of profiles with an active premium tier at now.
func (p *StatsProvider) CountPremium(ctx context.Context, now time.Time) (int64, error) {
	filter := bson.D{
		{Key: "tier", Value: "premium"},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "tier_expiry", Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{{Key: "tier_expiry", Value: nil}},
			bson.D{{Key: "tier_expiry", Value: bson.D{{Key: "$gt", Value: now.UTC()}}}},
		}},
	}
	return p.count(ctx, "premium profiles", filter)
}

// Snapshot collects all counts.
func (p *StatsProvider) Snapshot(ctx context.Context, now time.Time) (Stats, error) {
	total, err := p.CountProfiles(ctx)
	if err != nil {
		return Stats{}, err
	}
	ready, err := p.CountReady(ctx)
	if err != nil {
		return Stats{}, err
	}
	premium, err := p.CountPremium(ctx, now)
	if err != nil {
		return Stats{}, err
	}

	return Stats{Profiles: total, Ready: ready, Premium: premium}, nil
}

func (p *StatsProvider) count(ctx context.Context, what string, filter bson.D) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.profiles == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.profiles.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", what, err)
	}

	return count, nil
}
