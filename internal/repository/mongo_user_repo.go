package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/carlosssgaalvez/reviews-examen/internal/model"
)

// MongoUserRepo はMongoDBを使用したユーザーリポジトリ。
type MongoUserRepo struct {
	collection *mongo.Collection
}

// NewMongoUserRepo はMongoUserRepoを生成する。
func NewMongoUserRepo(collection *mongo.Collection) *MongoUserRepo {
	return &MongoUserRepo{collection: collection}
}

// FindByEmail は指定emailのユーザーを取得する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user := &model.User{}
	err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// UpsertOnFirstLogin は初回ログイン時のfind-or-create操作。
// emailユニークインデックスを前提に、$setOnInsertを使ったアトミックなupsertを行う。
// 既存レコードがある場合は$setOnInsertが何も変更しないため、既存フィールドは保持される。
// upsert同士の競合でユニークインデックス違反が起きた場合は検索にフォールバックする。
func (r *MongoUserRepo) UpsertOnFirstLogin(ctx context.Context, email, name, picture string) (*model.User, error) {
	update := bson.M{
		"$setOnInsert": bson.M{
			"email":      email,
			"name":       name,
			"picture":    picture,
			"created_at": time.Now(),
			"visits":     []model.Visit{},
			"markers":    []model.Marker{},
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	user := &model.User{}
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"email": email}, update, opts).Decode(user)
	if err != nil {
		// 同時upsertの片方がユニークインデックス違反で失敗した場合、
		// もう片方が作成済みのレコードを検索して返す。
		if mongo.IsDuplicateKeyError(err) {
			existing, findErr := r.FindByEmail(ctx, email)
			if findErr != nil {
				return nil, fmt.Errorf("failed to recover from upsert conflict: %w", findErr)
			}
			if existing == nil {
				return nil, fmt.Errorf("upsert conflict for %s: %w", email, model.NewUserNotFoundError())
			}
			return existing, nil
		}
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return user, nil
}

// compile-time interface check
var _ UserRepository = (*MongoUserRepo)(nil)
