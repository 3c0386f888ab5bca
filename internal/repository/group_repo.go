package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/social-go-api/internal/models"
)

// GroupRepository loads and saves whole group documents.
type GroupRepository interface {
	Create(ctx context.Context, group *models.Group) error
	FindByID(ctx context.Context, id string) (models.Group, error)
	ListByMember(ctx context.Context, userID string, limit int) ([]models.Group, error)
	Save(ctx context.Context, group *models.Group) error
	Delete(ctx context.Context, id string) error
}

type groupRepository struct {
	collection *mongo.Collection
}

// NewGroupRepository constructs a repository backed by the groups collection.
func NewGroupRepository(db *mongo.Database) GroupRepository {
	return &groupRepository{collection: db.Collection(GroupsCollection)}
}

func (r *groupRepository) Create(ctx context.Context, group *models.Group) error {
	now := time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	if group.LastMessageAt.IsZero() {
		group.LastMessageAt = now
	}
	group.UpdatedAt = now
	if group.Typing == nil {
		group.Typing = map[string]bool{}
	}
	group.AssignIDs()

	_, err := r.collection.InsertOne(ctx, group)
	return err
}

func (r *groupRepository) FindByID(ctx context.Context, id string) (models.Group, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return models.Group{}, err
	}

	var group models.Group
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&group); err != nil {
		return models.Group{}, translateError(err)
	}
	return group, nil
}

func (r *groupRepository) ListByMember(ctx context.Context, userID string, limit int) ([]models.Group, error) {
	size, _ := normalizePage(limit, 0, 50)

	opts := options.Find().
		SetSort(bson.D{{Key: "last_message_at", Value: -1}}).
		SetLimit(size)

	cursor, err := r.collection.Find(ctx, bson.M{"members": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	groups := make([]models.Group, 0)
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *groupRepository) Save(ctx context.Context, group *models.Group) error {
	group.AssignIDs()
	group.UpdatedAt = time.Now().UTC()

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": group.ID}, group)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *groupRepository) Delete(ctx context.Context, id string) error {
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
