// Package owner provides startup helpers for ensuring the configured bot owner
// has a profile flagged as owner with lifetime premium.
package owner

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

type profileCollection interface {
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Registrar bootstraps the configured bot owner profile.
type Registrar struct {
	profiles     profileCollection
	deliveryTime string
	logger       *logrus.Entry
}

// NewRegistrar constructs a Registrar for the provided profiles collection.
// deliveryTime is used when the owner profile has to be created.
func NewRegistrar(profiles profileCollection, deliveryTime string, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		profiles:     profiles,
		deliveryTime: deliveryTime,
		logger:       logger,
	}
}

// EnsureOwner upserts the configured owner profile with owner=true and
// lifetime premium, and clears the owner flag from any previous owner.
// Previous owners keep whatever tier they had.
func (r *Registrar) EnsureOwner(ctx context.Context, ownerID int64) error {
	if r == nil || r.profiles == nil {
		return errors.New("owner registrar is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if ownerID == 0 {
		return errors.New("owner id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)

	demoteResult, err := r.profiles.UpdateMany(ctx,
		bson.M{"owner": true, "user_id": bson.M{"$ne": ownerID}},
		bson.M{
			"$set":   bson.M{"updated_at": now},
			"$unset": bson.M{"owner": ""},
			"$inc":   bson.M{"version": int64(1)},
		},
	)
	if err != nil {
		return fmt.Errorf("demote previous owners: %w", err)
	}

	upsertResult, err := r.profiles.UpdateOne(ctx,
		bson.M{"user_id": ownerID},
		bson.M{
			"$set": bson.M{
				"owner":      true,
				"tier":       domain.TierPremium,
				"updated_at": now,
			},
			"$unset": bson.M{"tier_expiry": ""},
			"$inc":   bson.M{"version": int64(1)},
			"$setOnInsert": bson.M{
				"user_id":       ownerID,
				"stage":         domain.StageNew,
				"delivery_time": r.deliveryTime,
				"created_at":    now,
				"last_seen_at":  now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ensure owner: %w", err)
	}

	r.logger.WithFields(logging.Fields{
		"event":          "owner_bootstrap",
		"owner_id":       ownerID,
		"demoted_owners": modifiedCount(demoteResult),
		"matched_owner":  matchedCount(upsertResult),
		"upserted_owner": upsertedCount(upsertResult),
	}).Info("ensured bot owner")

	return nil
}

func modifiedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.ModifiedCount
}

func matchedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.MatchedCount
}

func upsertedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.UpsertedCount
}
