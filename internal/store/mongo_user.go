package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoUserCollection is the collection holding user documents.
const MongoUserCollection = "users"

// MongoUserRepository handles persistence for users in MongoDB.
// Each operation touches a single document.
type MongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(coll *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{coll: coll}
}

// EnsureIndexes creates the unique email index.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_key"),
	})
	return err
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (types.User, error) {
	opts := options.FindOne().SetProjection(bson.M{"avatar": 0})
	var user types.User
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	if user.Tokens == nil {
		user.Tokens = []string{}
	}
	return user, nil
}

func (r *MongoUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Tokens == nil {
		user.Tokens = []string{}
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Avatar = nil

	if _, err := r.coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *MongoUserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now().UTC()
	err := r.updateOne(ctx, user.ID, bson.M{"$set": bson.M{
		"name":       user.Name,
		"email":      user.Email,
		"age":        user.Age,
		"password":   user.PasswordHash,
		"updated_at": user.UpdatedAt,
	}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *MongoUserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoUserRepository) AddToken(ctx context.Context, id, token string) error {
	return r.updateOne(ctx, id, bson.M{
		"$push": bson.M{"tokens": token},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

func (r *MongoUserRepository) RemoveToken(ctx context.Context, id, token string) error {
	return r.updateOne(ctx, id, bson.M{
		"$pull": bson.M{"tokens": token},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

func (r *MongoUserRepository) ClearTokens(ctx context.Context, id string) error {
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{"tokens": []string{}, "updated_at": time.Now().UTC()},
	})
}

// SetAvatar stores data on the user document. Empty data unsets the field.
func (r *MongoUserRepository) SetAvatar(ctx context.Context, id string, data []byte) error {
	now := time.Now().UTC()
	if len(data) == 0 {
		return r.updateOne(ctx, id, bson.M{
			"$unset": bson.M{"avatar": ""},
			"$set":   bson.M{"updated_at": now},
		})
	}
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{"avatar": data, "updated_at": now},
	})
}

// GetAvatar returns nil data when the user exists without an avatar.
func (r *MongoUserRepository) GetAvatar(ctx context.Context, id string) ([]byte, error) {
	opts := options.FindOne().SetProjection(bson.M{"avatar": 1})
	var doc struct {
		Avatar []byte `bson:"avatar"`
	}
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.Avatar, nil
}

func (r *MongoUserRepository) updateOne(ctx context.Context, id string, update bson.M) error {
	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
