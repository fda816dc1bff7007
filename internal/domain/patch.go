package domain

import (
	"fmt"
	"time"
)

// Patch is a partial profile update. Nil fields are left untouched.
type Patch struct {
	ChatID       *int64
	FirstName    *string
	Stage        *Stage
	Language     *Language
	BirthDate    *time.Time
	BirthTime    *string
	BirthPlace   *string
	Tier         *Tier
	TierExpiry   *time.Time
	DeliveryTime *string

	// ClearBirthData unsets birth date, time and place.
	ClearBirthData bool
	// ClearTierExpiry unsets the expiry, making premium lifetime.
	ClearTierExpiry bool
	// Reset allows the stage to move backwards. Only the corruption recovery
	// path sets it.
	Reset bool
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.ChatID == nil && p.FirstName == nil && p.Stage == nil && p.Language == nil &&
		p.BirthDate == nil && p.BirthTime == nil && p.BirthPlace == nil &&
		p.Tier == nil && p.TierExpiry == nil && p.DeliveryTime == nil &&
		!p.ClearBirthData && !p.ClearTierExpiry && !p.Reset
}

// ApplyTo writes the patch onto profile in place.
func (p Patch) ApplyTo(profile *Profile) {
	if profile == nil {
		return
	}
	if p.ChatID != nil {
		profile.ChatID = *p.ChatID
	}
	if p.FirstName != nil {
		profile.FirstName = *p.FirstName
	}
	if p.Stage != nil {
		profile.Stage = *p.Stage
	}
	if p.Language != nil {
		profile.Language = *p.Language
	}
	if p.ClearBirthData {
		profile.BirthDate = nil
		profile.BirthTime = nil
		profile.BirthPlace = nil
	}
	if p.BirthDate != nil {
		date := *p.BirthDate
		profile.BirthDate = &date
	}
	if p.BirthTime != nil {
		value := *p.BirthTime
		profile.BirthTime = &value
	}
	if p.BirthPlace != nil {
		value := *p.BirthPlace
		profile.BirthPlace = &value
	}
	if p.Tier != nil {
		profile.Tier = *p.Tier
	}
	if p.ClearTierExpiry {
		profile.TierExpiry = nil
	}
	if p.TierExpiry != nil {
		expiry := *p.TierExpiry
		profile.TierExpiry = &expiry
	}
	if p.DeliveryTime != nil {
		profile.DeliveryTime = *p.DeliveryTime
	}
}

// CheckTransition validates the patch against the current profile: stages only
// advance unless Reset is set, a stage past New needs a language, and an expiry
// needs the premium tier.
func (p Patch) CheckTransition(current Profile) error {
	next := current
	p.ApplyTo(&next)

	if p.Stage != nil {
		if !p.Stage.Valid() {
			return fmt.Errorf("%w: unknown stage %q", ErrValidation, *p.Stage)
		}
		if !p.Reset && current.Stage.Valid() && p.Stage.Rank() < current.Stage.Rank() {
			return fmt.Errorf("%w: stage %s cannot move back to %s", ErrValidation, current.Stage, *p.Stage)
		}
	}
	if next.Stage.Rank() >= StageLanguageSelected.Rank() {
		if _, ok := ParseLanguage(string(next.Language)); !ok {
			return fmt.Errorf("%w: stage %s requires a language", ErrValidation, next.Stage)
		}
	}
	if next.TierExpiry != nil && next.Tier != TierPremium {
		return fmt.Errorf("%w: tier expiry requires premium tier", ErrValidation)
	}
	return nil
}

// Ptr returns a pointer to v; handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
