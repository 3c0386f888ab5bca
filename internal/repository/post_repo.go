package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/social-go-api/internal/models"
)

// PostFilter narrows post listings.
type PostFilter struct {
	AuthorID string
	Limit    int
	Skip     int
}

// PostRepository loads and saves whole post documents.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	FindByID(ctx context.Context, id string) (models.Post, error)
	List(ctx context.Context, filter PostFilter) ([]models.Post, error)
	Save(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id string) error
}

type postRepository struct {
	collection *mongo.Collection
}

// NewPostRepository constructs a repository backed by the posts collection.
func NewPostRepository(db *mongo.Database) PostRepository {
	return &postRepository{collection: db.Collection(PostsCollection)}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	if post.Likes == nil {
		post.Likes = make(models.UserSet)
	}
	if post.Comments == nil {
		post.Comments = []models.Comment{}
	}
	post.AssignIDs()

	_, err := r.collection.InsertOne(ctx, post)
	return err
}

func (r *postRepository) FindByID(ctx context.Context, id string) (models.Post, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return models.Post{}, err
	}

	var post models.Post
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&post); err != nil {
		return models.Post{}, translateError(err)
	}
	return post, nil
}

func (r *postRepository) List(ctx context.Context, filter PostFilter) ([]models.Post, error) {
	limit, skip := normalizePage(filter.Limit, filter.Skip, 50)

	query := bson.M{}
	if filter.AuthorID != "" {
		query["author.user_id"] = filter.AuthorID
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(skip)

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	posts := make([]models.Post, 0)
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Save replaces the stored document with the in-memory aggregate. Concurrent
// saves of the same post are last-writer-wins.
func (r *postRepository) Save(ctx context.Context, post *models.Post) error {
	post.AssignIDs()
	post.UpdatedAt = time.Now().UTC()

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": post.ID}, post)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id string) error {
	oid, err := parseObjectID(id)
	if err != nil {
		return err
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
