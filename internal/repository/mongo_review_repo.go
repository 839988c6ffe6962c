package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/carlosssgaalvez/reviews-examen/internal/model"
)

// MongoReviewRepo はMongoDBを使用したレビューリポジトリ。
type MongoReviewRepo struct {
	collection *mongo.Collection
}

// NewMongoReviewRepo はMongoReviewRepoを生成する。
func NewMongoReviewRepo(collection *mongo.Collection) *MongoReviewRepo {
	return &MongoReviewRepo{collection: collection}
}

// Create はレビューを作成する。
func (r *MongoReviewRepo) Create(ctx context.Context, review *model.Review) error {
	if _, err := r.collection.InsertOne(ctx, review); err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}
	return nil
}

// FindByID は指定IDのレビューを取得する。見つからない場合はnilを返す。
func (r *MongoReviewRepo) FindByID(ctx context.Context, id string) (*model.Review, error) {
	review := &model.Review{}
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(review)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find review by ID: %w", err)
	}
	return review, nil
}

// ListAll は全レビューを作成日時の降順で返す。
func (r *MongoReviewRepo) ListAll(ctx context.Context) ([]*model.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer cursor.Close(ctx)

	var reviews []*model.Review
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, fmt.Errorf("failed to decode reviews: %w", err)
	}

	return reviews, nil
}

// compile-time interface check
var _ ReviewRepository = (*MongoReviewRepo)(nil)
