package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ Store = &MongoStore{}

// MongoStore is a MongoDB-backed implementation of Store.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates a new store backed by the given DB.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection("provider_integrations")}
}

// EnsureIndexes creates the unique (user_id, provider) index backing the
// one-record-per-integration invariant. Call once at startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "provider", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

type recordDoc struct {
	ID                     string    `bson:"id"`
	UserID                 string    `bson:"user_id"`
	Provider               string    `bson:"provider"`
	Status                 string    `bson:"status"`
	ProviderUserID         string    `bson:"provider_user_id,omitempty"`
	Scopes                 []string  `bson:"scopes,omitempty"`
	AccessTokenCiphertext  string    `bson:"access_token_ciphertext,omitempty"`
	RefreshTokenCiphertext string    `bson:"refresh_token_ciphertext,omitempty"`
	TokenExpiresAt         time.Time `bson:"token_expires_at,omitempty"`
	ErrorReason            string    `bson:"error_reason,omitempty"`
	CreatedAt              time.Time `bson:"created_at"`
	UpdatedAt              time.Time `bson:"updated_at"`
}

func (d *recordDoc) toRecord() *Record {
	return &Record{
		ID:                     d.ID,
		UserID:                 d.UserID,
		Provider:               d.Provider,
		Status:                 Status(d.Status),
		ProviderUserID:         d.ProviderUserID,
		Scopes:                 d.Scopes,
		AccessTokenCiphertext:  d.AccessTokenCiphertext,
		RefreshTokenCiphertext: d.RefreshTokenCiphertext,
		TokenExpiresAt:         d.TokenExpiresAt.UTC(),
		ErrorReason:            d.ErrorReason,
		CreatedAt:              d.CreatedAt.UTC(),
		UpdatedAt:              d.UpdatedAt.UTC(),
	}
}

// Get fetches one (user, provider) record.
func (s *MongoStore) Get(ctx context.Context, userID, provider string) (*Record, error) {
	var doc recordDoc
	err := s.coll.FindOne(ctx, bson.M{"user_id": userID, "provider": provider}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	return doc.toRecord(), nil
}

// UpsertConnected writes a freshly granted connection, creating the record on
// first connect and overwriting it on reconnect. The pipeline derives the new
// updated_at from the stored one, so a reconnect always advances the version
// even within the same millisecond and stale in-flight writers lose their
// compare-and-write.
func (s *MongoStore) UpsertConnected(ctx context.Context, userID, provider string, in Connection) (*Record, error) {
	now := nextVersion(time.Time{})
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"id":                       bson.M{"$ifNull": bson.A{"$id", uuid.New().String()}},
			"created_at":               bson.M{"$ifNull": bson.A{"$created_at", now}},
			"status":                   string(StatusConnected),
			"provider_user_id":         in.ProviderUserID,
			"scopes":                   bson.M{"$literal": in.Scopes},
			"access_token_ciphertext":  in.AccessTokenCiphertext,
			"refresh_token_ciphertext": in.RefreshTokenCiphertext,
			"token_expires_at":         in.ExpiresAt,
			"error_reason":             "",
			"updated_at": bson.M{"$cond": bson.A{
				bson.M{"$gte": bson.A{"$updated_at", now}},
				bson.M{"$add": bson.A{"$updated_at", 1}},
				now,
			}},
		}}},
	}
	opts := options.Update().SetUpsert(true)
	_, err := s.coll.UpdateOne(ctx, bson.M{"user_id": userID, "provider": provider}, update, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert integration: %w", err)
	}
	return s.Get(ctx, userID, provider)
}

// UpdateTokens performs the optimistic compare-and-write: the filter pins the
// updated_at version read with the record, so a concurrent writer makes the
// update match nothing and the caller gets ErrConflict.
func (s *MongoStore) UpdateTokens(ctx context.Context, userID, provider string, version time.Time, upd TokenUpdate) (*Record, error) {
	set := bson.M{
		"access_token_ciphertext": upd.AccessTokenCiphertext,
		"token_expires_at":        upd.ExpiresAt,
		"updated_at":              nextVersion(version),
	}
	if upd.RefreshTokenCiphertext != "" {
		set["refresh_token_ciphertext"] = upd.RefreshTokenCiphertext
	}
	filter := bson.M{
		"user_id":    userID,
		"provider":   provider,
		"status":     string(StatusConnected),
		"updated_at": version,
	}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return nil, fmt.Errorf("failed to update tokens: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := s.Get(ctx, userID, provider); err != nil {
			return nil, err
		}
		return nil, ErrConflict
	}
	return s.Get(ctx, userID, provider)
}

// MarkError flags the grant as terminally unusable until the user reconnects.
func (s *MongoStore) MarkError(ctx context.Context, userID, provider, reason string) error {
	update := bson.M{"$set": bson.M{
		"status":       string(StatusError),
		"error_reason": reason,
		"updated_at":   nextVersion(time.Time{}),
	}}
	res, err := s.coll.UpdateOne(ctx, bson.M{"user_id": userID, "provider": provider}, update)
	if err != nil {
		return fmt.Errorf("failed to mark integration errored: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Disconnect clears token material and scopes. A missing record counts as
// already disconnected.
func (s *MongoStore) Disconnect(ctx context.Context, userID, provider string) error {
	update := bson.M{
		"$set": bson.M{
			"status":       string(StatusDisconnected),
			"error_reason": "",
			"updated_at":   nextVersion(time.Time{}),
		},
		"$unset": bson.M{
			"provider_user_id":         "",
			"scopes":                   "",
			"access_token_ciphertext":  "",
			"refresh_token_ciphertext": "",
			"token_expires_at":         "",
		},
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"user_id": userID, "provider": provider}, update)
	if err != nil {
		return fmt.Errorf("failed to disconnect integration: %w", err)
	}
	return nil
}
