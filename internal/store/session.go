package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// SessionData is the state held server-side for one client session.
type SessionData struct {
	// UserID references the logged-in user. Zero means anonymous.
	UserID bson.ObjectID `bson:"uid,omitempty"`

	// LoggedIn tells whether the session passed a login.
	LoggedIn bool `bson:"in"`

	// Flash holds one-shot messages, drained on first read.
	Flash []string `bson:"flash,omitempty"`

	// Values holds free-form string state written by handlers.
	Values map[string]string `bson:"vals,omitempty"`
}

// sessionDoc is the persisted form of a session.
type sessionDoc struct {
	ID      string      `bson:"_id"`
	Data    SessionData `bson:"data"`
	Updated time.Time   `bson:"u"`
	Expires time.Time   `bson:"expires_at"`
}

// Sessions is the session store behind the request pipeline.
// Expiry is owned by the store (TTL), not by callers.
type Sessions interface {
	// Load returns the data of the given session, with ok=false if the
	// session does not exist or has expired.
	Load(ctx context.Context, id string) (data SessionData, ok bool, err error)

	// Save stores the data under the given session id, resetting its TTL.
	Save(ctx context.Context, id string, data SessionData) error

	// Delete destroys the given session. Deleting an absent session is a no-op.
	Delete(ctx context.Context, id string) error
}

// MongoSessions is the MongoDB implementation of Sessions.
// It's safe for concurrent use.
type MongoSessions struct {
	c   *mongo.Collection
	ttl time.Duration
}

// NewMongoSessions returns a MongoSessions with the given session lifetime.
func NewMongoSessions(db *mongo.Database, ttl time.Duration) *MongoSessions {
	return &MongoSessions{c: db.Collection(DefaultSessionsCollectionName), ttl: ttl}
}

// EnsureIndexes creates the TTL index that expires sessions.
func (s *MongoSessions) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("create session indexes: %w", err)
	}
	return nil
}

func (s *MongoSessions) Load(ctx context.Context, id string) (SessionData, bool, error) {
	var doc sessionDoc
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return SessionData{}, false, nil
		}
		return SessionData{}, false, fmt.Errorf("load session: %w", err)
	}
	// Mongo's TTL monitor only runs periodically; treat an expired but not
	// yet reaped document as absent.
	if !doc.Expires.After(time.Now()) {
		return SessionData{}, false, nil
	}
	return doc.Data, true, nil
}

func (s *MongoSessions) Save(ctx context.Context, id string, data SessionData) error {
	now := time.Now()
	doc := sessionDoc{ID: id, Data: data, Updated: now, Expires: now.Add(s.ttl)}
	_, err := s.c.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *MongoSessions) Delete(ctx context.Context, id string) error {
	if _, err := s.c.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
