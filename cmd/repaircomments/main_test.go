package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/social-go-api/internal/models"
	"github.com/noah-isme/social-go-api/internal/repository"
)

type staticSource struct {
	docs []interface{}
}

func (s staticSource) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	return mongo.NewCursorFromDocuments(s.docs, nil, nil)
}

type savingPosts struct {
	saved []models.Post
	err   error
}

func (r *savingPosts) Create(ctx context.Context, post *models.Post) error { return nil }

func (r *savingPosts) FindByID(ctx context.Context, id string) (models.Post, error) {
	return models.Post{}, repository.ErrNotFound
}

func (r *savingPosts) List(ctx context.Context, filter repository.PostFilter) ([]models.Post, error) {
	return nil, nil
}

func (r *savingPosts) Save(ctx context.Context, post *models.Post) error {
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, *post)
	return nil
}

func (r *savingPosts) Delete(ctx context.Context, id string) error { return nil }

func storedPosts(brokenID primitive.ObjectID) []interface{} {
	at := time.Date(2023, 5, 2, 8, 0, 0, 0, time.UTC)
	clean := models.Post{
		ID:          primitive.NewObjectID(),
		Author:      models.AuthorSnapshot{UserID: "ana", FirstName: "Ana", LastName: "Ruiz"},
		Description: "sunrise",
		Likes:       models.NewUserSet("ben"),
		Comments: []models.Comment{{CommentNode: models.CommentNode{
			ID:        primitive.NewObjectID(),
			Author:    models.AuthorSnapshot{UserID: "ben", FirstName: "Ben", LastName: "Ito"},
			Content:   "lovely",
			Likes:     models.NewUserSet(),
			CreatedAt: at,
			UpdatedAt: at,
		}}},
		CreatedAt: at,
		UpdatedAt: at,
	}
	broken := bson.M{
		"_id":         brokenID,
		"description": "legacy",
		"comments": bson.A{
			bson.M{"content": "", "author": bson.M{"user_id": "cid"}},
		},
	}
	undecodable := bson.M{"_id": primitive.NewObjectID(), "likes": "everyone"}
	return []interface{}{clean, broken, undecodable}
}

func TestRepairDryRunDoesNotWrite(t *testing.T) {
	posts := &savingPosts{}
	scanned, repaired, err := repair(context.Background(), staticSource{docs: storedPosts(primitive.NewObjectID())}, posts, true, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 2, scanned)
	require.Equal(t, 1, repaired)
	require.Empty(t, posts.saved)
}

func TestRepairSavesNormalizedPosts(t *testing.T) {
	brokenID := primitive.NewObjectID()
	posts := &savingPosts{}
	scanned, repaired, err := repair(context.Background(), staticSource{docs: storedPosts(brokenID)}, posts, false, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 2, scanned)
	require.Equal(t, 1, repaired)
	require.Len(t, posts.saved, 1)

	saved := posts.saved[0]
	require.Equal(t, brokenID, saved.ID)
	require.NotNil(t, saved.Likes)
	require.Len(t, saved.Comments, 1)
	comment := saved.Comments[0]
	require.False(t, comment.ID.IsZero())
	require.Equal(t, "Unknown", comment.Author.FirstName)
	require.Equal(t, "User", comment.Author.LastName)
	require.Equal(t, "[No content]", comment.Content)
	require.NotNil(t, comment.Likes)
	require.False(t, comment.CreatedAt.IsZero())
}

func TestRepairStopsOnSaveError(t *testing.T) {
	posts := &savingPosts{err: errors.New("write conflict")}
	_, repaired, err := repair(context.Background(), staticSource{docs: storedPosts(primitive.NewObjectID())}, posts, false, zerolog.Nop())
	require.EqualError(t, err, "write conflict")
	require.Equal(t, 1, repaired)
}
