package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for delivery bookkeeping.
const DateLayout = "2006-01-02"

// Profile is the persistent per-user record of language, onboarding progress
// and subscription state.
type Profile struct {
	UserID           int64                   `bson:"user_id" json:"user_id"`
	ChatID           int64                   `bson:"chat_id" json:"chat_id"`
	FirstName        string                  `bson:"first_name,omitempty" json:"first_name,omitempty"`
	Version          int64                   `bson:"version" json:"version"`
	Language         Language                `bson:"language,omitempty" json:"language,omitempty"`
	Stage            Stage                   `bson:"stage" json:"stage"`
	BirthDate        *time.Time              `bson:"birth_date,omitempty" json:"birth_date,omitempty"`
	BirthTime        *string                 `bson:"birth_time,omitempty" json:"birth_time,omitempty"`
	BirthPlace       *string                 `bson:"birth_place,omitempty" json:"birth_place,omitempty"`
	Tier             Tier                    `bson:"tier" json:"tier"`
	TierExpiry       *time.Time              `bson:"tier_expiry,omitempty" json:"tier_expiry,omitempty"`
	Owner            bool                    `bson:"owner,omitempty" json:"owner,omitempty"`
	Usage            map[Feature]UsageWindow `bson:"usage,omitempty" json:"usage,omitempty"`
	DeliveryTime     string                  `bson:"delivery_time" json:"delivery_time"`
	LastDeliveryDate string                  `bson:"last_delivery_date,omitempty" json:"last_delivery_date,omitempty"`
	CreatedAt        time.Time               `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time               `bson:"updated_at" json:"updated_at"`
	LastSeenAt       time.Time               `bson:"last_seen_at" json:"last_seen_at"`
}

// UsageWindow is a fixed usage window for one feature. Count is reset when a
// new window opens; Total is never reset.
type UsageWindow struct {
	Count   int       `bson:"count" json:"count"`
	ResetAt time.Time `bson:"reset_at" json:"reset_at"`
	Total   int64     `bson:"total" json:"total"`
}

// Identity is what the chat platform tells us about a user on every event.
type Identity struct {
	UserID    int64
	ChatID    int64
	FirstName string
}

// NewProfile returns the default state for a first contact.
func NewProfile(id Identity, deliveryTime string, now time.Time) Profile {
	now = now.UTC().Truncate(time.Millisecond)
	return Profile{
		UserID:       id.UserID,
		ChatID:       id.ChatID,
		FirstName:    id.FirstName,
		Stage:        StageNew,
		Tier:         TierFree,
		DeliveryTime: deliveryTime,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSeenAt:   now,
	}
}

// IsPremium reports whether the profile has an active premium subscription.
// A premium tier without expiry never lapses.
func (p Profile) IsPremium(now time.Time) bool {
	if p.Tier != TierPremium {
		return false
	}
	return p.TierExpiry == nil || p.TierExpiry.After(now)
}

// IsLifetime reports whether the profile holds premium that never expires.
func (p Profile) IsLifetime() bool {
	return p.Tier == TierPremium && p.TierExpiry == nil
}

// Lang returns the profile language or the default when none was chosen.
func (p Profile) Lang() Language {
	if lang, ok := ParseLanguage(string(p.Language)); ok {
		return lang
	}
	return DefaultLanguage
}

// UsageFor returns the usage window of f, zero when the feature was never used.
func (p Profile) UsageFor(f Feature) UsageWindow {
	if p.Usage == nil {
		return UsageWindow{}
	}
	return p.Usage[f]
}

// HasBirthData reports whether all birth fields were collected.
func (p Profile) HasBirthData() bool {
	return p.BirthDate != nil && p.BirthTime != nil && p.BirthPlace != nil
}

// CheckConsistency returns an error wrapping ErrStateCorruption when the stored
// stage disagrees with the data that stage implies.
func (p Profile) CheckConsistency() error {
	if !p.Stage.Valid() {
		return fmt.Errorf("%w: unknown stage %q", ErrStateCorruption, p.Stage)
	}
	if p.Stage.Rank() >= StageLanguageSelected.Rank() {
		if _, ok := ParseLanguage(string(p.Language)); !ok {
			return fmt.Errorf("%w: stage %s without language", ErrStateCorruption, p.Stage)
		}
	}
	if p.Stage == StageCollectingBirthData && p.BirthDate == nil {
		return fmt.Errorf("%w: collecting birth data without birth date", ErrStateCorruption)
	}
	if p.TierExpiry != nil && p.Tier != TierPremium {
		return fmt.Errorf("%w: tier expiry set on %s tier", ErrStateCorruption, p.Tier)
	}
	return nil
}

// ExtendPremium returns the patch that extends the subscription by d, counting
// from the later of now and the current expiry. Lifetime premium is left as is.
func (p Profile) ExtendPremium(now time.Time, d time.Duration) Patch {
	if p.IsLifetime() {
		return Patch{}
	}

	start := now.UTC()
	if p.IsPremium(now) && p.TierExpiry.After(start) {
		start = p.TierExpiry.UTC()
	}
	expiry := start.Add(d).Truncate(time.Millisecond)

	return Patch{Tier: Ptr(TierPremium), TierExpiry: &expiry}
}
