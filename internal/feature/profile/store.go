// Package profile persists per-user profiles in MongoDB. Every mutation is a
// single-document atomic operation so concurrent events for one user, and the
// delivery batch, never lose updates.
package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"astro_bot/internal/domain"
	"astro_bot/internal/logging"
)

const maxConsumeAttempts = 3

var errNotInitialized = errors.New("profile store is not initialized")

type profileCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// Store reads and writes profiles.
type Store struct {
	profiles            profileCollection
	defaultDeliveryTime string
	now                 func() time.Time
	logger              *logrus.Entry
}

// NewStore constructs a Store. deliveryTime is assigned to profiles on first
// contact.
func NewStore(profiles profileCollection, deliveryTime string, logger *logrus.Entry) *Store {
	return &Store{
		profiles:            profiles,
		defaultDeliveryTime: deliveryTime,
		now:                 time.Now,
		logger:              logging.Component(logger, "profile_store"),
	}
}

// GetOrCreate returns the profile of id, creating it with default state on
// first contact. last_seen_at and the chat identity are refreshed on every call.
func (s *Store) GetOrCreate(ctx context.Context, id domain.Identity) (domain.Profile, error) {
	if err := s.check(ctx, id.UserID); err != nil {
		return domain.Profile{}, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	defaults := domain.NewProfile(id, s.defaultDeliveryTime, now)

	set := bson.M{"last_seen_at": now}
	if id.ChatID != 0 {
		set["chat_id"] = id.ChatID
	}
	if id.FirstName != "" {
		set["first_name"] = id.FirstName
	}

	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"user_id":       id.UserID,
			"version":       int64(0),
			"stage":         defaults.Stage,
			"tier":          defaults.Tier,
			"delivery_time": defaults.DeliveryTime,
			"created_at":    now,
			"updated_at":    now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	profile, err := s.decodeOne(s.profiles.FindOneAndUpdate(ctx, bson.M{"user_id": id.UserID}, update, opts))
	if mongo.IsDuplicateKeyError(err) {
		// Lost an insert race on the unique index; the row exists now.
		profile, err = s.decodeOne(s.profiles.FindOneAndUpdate(ctx, bson.M{"user_id": id.UserID}, update, opts))
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get or create profile: %w", err)
	}

	if profile.CreatedAt.Equal(now) {
		s.logger.WithFields(logging.Fields{
			"event":   "profile_created",
			"user_id": id.UserID,
		}).Info("created profile")
	}

	return profile, nil
}

// Get returns the stored profile or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, userID int64) (domain.Profile, error) {
	if err := s.check(ctx, userID); err != nil {
		return domain.Profile{}, err
	}

	profile, err := s.decodeOne(s.profiles.FindOne(ctx, bson.M{"user_id": userID}))
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile %d: %w", userID, err)
	}

	return profile, nil
}

// Update applies patch unconditionally and returns the new profile.
func (s *Store) Update(ctx context.Context, userID int64, patch domain.Patch) (domain.Profile, error) {
	if err := s.check(ctx, userID); err != nil {
		return domain.Profile{}, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	profile, err := s.decodeOne(s.profiles.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID},
		patchUpdate(patch, s.now()),
		opts,
	))
	if err != nil {
		return domain.Profile{}, fmt.Errorf("update profile %d: %w", userID, err)
	}

	return profile, nil
}

// Apply writes patch only if the stored version still equals version. It
// returns domain.ErrVersionConflict when another writer got there first.
func (s *Store) Apply(ctx context.Context, userID, version int64, patch domain.Patch) (domain.Profile, error) {
	if err := s.check(ctx, userID); err != nil {
		return domain.Profile{}, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	profile, err := s.decodeOne(s.profiles.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID, "version": version},
		patchUpdate(patch, s.now()),
		opts,
	))
	if errors.Is(err, domain.ErrNotFound) {
		if _, getErr := s.Get(ctx, userID); getErr != nil {
			return domain.Profile{}, getErr
		}
		return domain.Profile{}, fmt.Errorf("apply profile %d at version %d: %w", userID, version, domain.ErrVersionConflict)
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("apply profile %d: %w", userID, err)
	}

	return profile, nil
}

// ExtendPremium extends the subscription of userID by d, retrying on version
// conflicts. Lifetime premium profiles are returned unchanged.
func (s *Store) ExtendPremium(ctx context.Context, userID int64, d time.Duration, now time.Time) (domain.Profile, error) {
	for attempt := 0; ; attempt++ {
		current, err := s.Get(ctx, userID)
		if err != nil {
			return domain.Profile{}, err
		}

		patch := current.ExtendPremium(now, d)
		if patch.IsEmpty() {
			return current, nil
		}

		updated, err := s.Apply(ctx, userID, current.Version, patch)
		if errors.Is(err, domain.ErrVersionConflict) && attempt < maxConsumeAttempts {
			continue
		}
		if err != nil {
			return domain.Profile{}, err
		}

		s.logger.WithFields(logging.Fields{
			"event":       "premium_extended",
			"user_id":     userID,
			"tier_expiry": updated.TierExpiry,
		}).Info("extended premium")

		return updated, nil
	}
}

// IncrementUsage adds one to the lifetime total of feature and returns it.
func (s *Store) IncrementUsage(ctx context.Context, userID int64, feature domain.Feature) (int64, error) {
	if err := s.check(ctx, userID); err != nil {
		return 0, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	profile, err := s.decodeOne(s.profiles.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID},
		bson.M{"$inc": bson.M{usageField(feature, "total"): 1}},
		opts,
	))
	if err != nil {
		return 0, fmt.Errorf("increment %s usage: %w", feature, err)
	}

	return profile.UsageFor(feature).Total, nil
}

// ConsumeUsage takes one unit of feature if the current window still has room,
// opening a new window of length window when the previous one expired. The
// quota check lives in the update filter so concurrent callers can never take
// more than limit units per window. When denied the current window is returned
// so callers can report its reset time.
func (s *Store) ConsumeUsage(ctx context.Context, userID int64, feature domain.Feature, limit int, window time.Duration, now time.Time) (domain.UsageWindow, bool, error) {
	if err := s.check(ctx, userID); err != nil {
		return domain.UsageWindow{}, false, err
	}
	if limit <= 0 {
		return domain.UsageWindow{}, false, nil
	}

	now = now.UTC().Truncate(time.Millisecond)
	countKey := usageField(feature, "count")
	resetKey := usageField(feature, "reset_at")
	totalKey := usageField(feature, "total")
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var current domain.UsageWindow
	for attempt := 0; attempt < maxConsumeAttempts; attempt++ {
		profile, err := s.decodeOne(s.profiles.FindOneAndUpdate(ctx,
			bson.M{
				"user_id": userID,
				resetKey:  bson.M{"$gt": now},
				countKey:  bson.M{"$lt": limit},
			},
			bson.M{"$inc": bson.M{countKey: 1, totalKey: 1}},
			opts,
		))
		if err == nil {
			return profile.UsageFor(feature), true, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.UsageWindow{}, false, fmt.Errorf("consume %s usage: %w", feature, err)
		}

		profile, err = s.decodeOne(s.profiles.FindOneAndUpdate(ctx,
			bson.M{
				"user_id": userID,
				"$or": bson.A{
					bson.M{resetKey: bson.M{"$exists": false}},
					bson.M{resetKey: bson.M{"$lte": now}},
				},
			},
			bson.M{
				"$set": bson.M{countKey: 1, resetKey: now.Add(window)},
				"$inc": bson.M{totalKey: 1},
			},
			opts,
		))
		if err == nil {
			return profile.UsageFor(feature), true, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.UsageWindow{}, false, fmt.Errorf("open %s window: %w", feature, err)
		}

		profile, err = s.Get(ctx, userID)
		if err != nil {
			return domain.UsageWindow{}, false, err
		}
		current = profile.UsageFor(feature)
		if current.ResetAt.After(now) && current.Count >= limit {
			return current, false, nil
		}
		// The window moved between the two updates; try again.
	}

	s.logger.WithFields(logging.Fields{
		"event":   "usage_contention",
		"user_id": userID,
		"feature": feature,
	}).Warn("usage window kept changing, denying")

	return current, false, nil
}

// ReleaseUsage gives back one unit of the current window. Counts never drop
// below zero and an expired window is left alone.
func (s *Store) ReleaseUsage(ctx context.Context, userID int64, feature domain.Feature, now time.Time) error {
	if err := s.check(ctx, userID); err != nil {
		return err
	}

	countKey := usageField(feature, "count")
	_, err := s.profiles.UpdateOne(ctx,
		bson.M{
			"user_id":                         userID,
			countKey:                          bson.M{"$gt": 0},
			usageField(feature, "reset_at"): bson.M{"$gt": now.UTC()},
		},
		bson.M{"$inc": bson.M{countKey: -1}},
	)
	if err != nil {
		return fmt.Errorf("release %s usage: %w", feature, err)
	}

	return nil
}

// ListDue returns ready profiles whose delivery time is at or before clock
// (HH:MM, UTC) and who have not received a delivery on date.
func (s *Store) ListDue(ctx context.Context, clock, date string) ([]domain.Profile, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if s == nil || s.profiles == nil {
		return nil, errNotInitialized
	}

	cursor, err := s.profiles.Find(ctx, bson.M{
		"stage":              domain.StageReady,
		"delivery_time":      bson.M{"$gt": "", "$lte": clock},
		"last_delivery_date": bson.M{"$ne": date},
	}, options.Find().SetSort(bson.D{{Key: "delivery_time", Value: 1}, {Key: "user_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list due profiles: %w", err)
	}
	defer cursor.Close(ctx)

	var profiles []domain.Profile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, fmt.Errorf("decode due profiles: %w", err)
	}

	return profiles, nil
}

// ClaimDelivery marks date as delivered for userID unless it already was. It
// returns the previous last_delivery_date and whether this caller won the claim.
func (s *Store) ClaimDelivery(ctx context.Context, userID int64, date string) (string, bool, error) {
	if err := s.check(ctx, userID); err != nil {
		return "", false, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	before, err := s.decodeOne(s.profiles.FindOneAndUpdate(ctx,
		bson.M{
			"user_id":            userID,
			"stage":              domain.StageReady,
			"last_delivery_date": bson.M{"$ne": date},
		},
		bson.M{"$set": bson.M{"last_delivery_date": date}},
		opts,
	))
	if errors.Is(err, domain.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("claim delivery: %w", err)
	}

	return before.LastDeliveryDate, true, nil
}

// ReleaseDelivery undoes a claim made for date, restoring previous, so the
// next batch retries the profile.
func (s *Store) ReleaseDelivery(ctx context.Context, userID int64, date, previous string) error {
	if err := s.check(ctx, userID); err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{"last_delivery_date": previous}}
	if previous == "" {
		update = bson.M{"$unset": bson.M{"last_delivery_date": ""}}
	}

	if _, err := s.profiles.UpdateOne(ctx, bson.M{"user_id": userID, "last_delivery_date": date}, update); err != nil {
		return fmt.Errorf("release delivery: %w", err)
	}

	return nil
}

func (s *Store) check(ctx context.Context, userID int64) error {
	if s == nil || s.profiles == nil {
		return errNotInitialized
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if userID == 0 {
		return errors.New("user id is required")
	}
	return nil
}

func (s *Store) decodeOne(result *mongo.SingleResult) (domain.Profile, error) {
	if result == nil {
		return domain.Profile{}, errors.New("profile query returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Profile{}, domain.ErrNotFound
		}
		return domain.Profile{}, err
	}

	var profile domain.Profile
	if err := result.Decode(&profile); err != nil {
		return domain.Profile{}, fmt.Errorf("decode profile: %w", err)
	}

	return profile, nil
}

func usageField(feature domain.Feature, field string) string {
	return "usage." + string(feature) + "." + field
}

// patchUpdate renders patch as a MongoDB update that also bumps version.
func patchUpdate(patch domain.Patch, now time.Time) bson.M {
	set := bson.M{"updated_at": now.UTC().Truncate(time.Millisecond)}
	unset := bson.M{}

	if patch.ChatID != nil {
		set["chat_id"] = *patch.ChatID
	}
	if patch.FirstName != nil {
		set["first_name"] = *patch.FirstName
	}
	if patch.Stage != nil {
		set["stage"] = *patch.Stage
	}
	if patch.Language != nil {
		if *patch.Language == "" {
			unset["language"] = ""
		} else {
			set["language"] = *patch.Language
		}
	}
	if patch.ClearBirthData {
		unset["birth_date"] = ""
		unset["birth_time"] = ""
		unset["birth_place"] = ""
	}
	if patch.BirthDate != nil {
		set["birth_date"] = patch.BirthDate.UTC()
		delete(unset, "birth_date")
	}
	if patch.BirthTime != nil {
		set["birth_time"] = *patch.BirthTime
		delete(unset, "birth_time")
	}
	if patch.BirthPlace != nil {
		set["birth_place"] = *patch.BirthPlace
		delete(unset, "birth_place")
	}
	if patch.Tier != nil {
		set["tier"] = *patch.Tier
	}
	if patch.ClearTierExpiry {
		unset["tier_expiry"] = ""
	}
	if patch.TierExpiry != nil {
		set["tier_expiry"] = patch.TierExpiry.UTC()
		delete(unset, "tier_expiry")
	}
	if patch.DeliveryTime != nil {
		set["delivery_time"] = *patch.DeliveryTime
	}

	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": int64(1)},
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	return update
}
