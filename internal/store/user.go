package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// User represents a registered user.
// Cart and catalog data is carried opaquely; only identity and the
// pending-notification flag are interpreted here.
type User struct {
	// ID of the user.
	ID bson.ObjectID `bson:"_id,omitempty"`

	// Case-sensitive email of the user.
	Email string `bson:"email"`

	// Lowercased email, used for lookups.
	LoweredEmail string `bson:"lemail"`

	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash string `bson:"phash"`

	// Pending tells whether a signup notification is still owed to the user.
	Pending bool `bson:"pending"`

	// Cart is opaque cart data owned by the catalog layer.
	Cart bson.Raw `bson:"cart,omitempty"`

	// User creation timestamp.
	Created time.Time `bson:"c"`
}

// Users is the user store consumed by the identity resolver, the signup
// handlers and the notification dispatcher.
type Users interface {
	// FindByID returns the user with the given id, or ErrNotFound.
	FindByID(ctx context.Context, id bson.ObjectID) (*User, error)

	// FindByEmail returns the user with the given email (case-insensitive),
	// or ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Insert stores a new user and fills in its ID.
	Insert(ctx context.Context, u *User) error

	// FindPending returns all users whose pending flag is set.
	FindPending(ctx context.Context) ([]*User, error)

	// SetPending sets or clears the pending flag of one user.
	SetPending(ctx context.Context, id bson.ObjectID, pending bool) error

	// ClearAllPending clears the pending flag on every user it is currently
	// set on, returning how many were cleared.
	ClearAllPending(ctx context.Context) (int64, error)

	// Count returns the total number of users.
	Count(ctx context.Context) (int64, error)
}

func lowerEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MongoUsers is the MongoDB implementation of Users.
// It's safe for concurrent use.
type MongoUsers struct {
	c *mongo.Collection
}

// NewMongoUsers returns a MongoUsers over the given database.
func NewMongoUsers(db *mongo.Database) *MongoUsers {
	return &MongoUsers{c: db.Collection(DefaultUsersCollectionName)}
}

// EnsureIndexes creates the unique email index.
func (s *MongoUsers) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "lemail", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (s *MongoUsers) FindByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	var u User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *MongoUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	if err := s.c.FindOne(ctx, bson.M{"lemail": lowerEmail(email)}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &u, nil
}

func (s *MongoUsers) Insert(ctx context.Context, u *User) error {
	if u.ID.IsZero() {
		u.ID = bson.NewObjectID()
	}
	u.LoweredEmail = lowerEmail(u.Email)
	if u.Created.IsZero() {
		u.Created = time.Now()
	}
	if _, err := s.c.InsertOne(ctx, u); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *MongoUsers) FindPending(ctx context.Context) ([]*User, error) {
	cur, err := s.c.Find(ctx, bson.M{"pending": true})
	if err != nil {
		return nil, fmt.Errorf("find pending users: %w", err)
	}
	var users []*User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode pending users: %w", err)
	}
	return users, nil
}

func (s *MongoUsers) SetPending(ctx context.Context, id bson.ObjectID, pending bool) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"pending": pending}})
	if err != nil {
		return fmt.Errorf("set pending: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoUsers) ClearAllPending(ctx context.Context) (int64, error) {
	// The filter is evaluated at clear time, so flags set after the caller's
	// snapshot are cleared too. See the dispatcher for the consequences.
	res, err := s.c.UpdateMany(ctx,
		bson.M{"pending": true},
		bson.M{"$set": bson.M{"pending": false}},
	)
	if err != nil {
		return 0, fmt.Errorf("clear pending: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoUsers) Count(ctx context.Context) (int64, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
