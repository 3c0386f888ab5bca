package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/social-go-api/internal/models"
)

// ConversationRepository loads and saves whole conversation documents.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	FindByID(ctx context.Context, id string) (models.Conversation, error)
	FindBetween(ctx context.Context, userA, userB string) (models.Conversation, error)
	ListByParticipant(ctx context.Context, userID string, limit int) ([]models.Conversation, error)
	Save(ctx context.Context, conversation *models.Conversation) error
	Delete(ctx context.Context, id string) error
}

type conversationRepository struct {
	collection *mongo.Collection
}

// NewConversationRepository constructs a repository backed by the conversations collection.
func NewConversationRepository(db *mongo.Database) ConversationRepository {
	return &conversationRepository{collection: db.Collection(ConversationsCollection)}
}

func (r *conversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	now := time.Now().UTC()
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = now
	}
	if conversation.LastMessageAt.IsZero() {
		conversation.LastMessageAt = now
	}
	conversation.UpdatedAt = now
	if conversation.Messages == nil {
		conversation.Messages = []models.Message{}
	}
	if conversation.Presence == nil {
		conversation.Presence = map[string]models.Presence{}
	}
	conversation.AssignIDs()

	_, err := r.collection.InsertOne(ctx, conversation)
	return err
}

func (r *conversationRepository) FindByID(ctx context.Context, id string) (models.Conversation, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return models.Conversation{}, err
	}

	var conversation models.Conversation
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&conversation); err != nil {
		return models.Conversation{}, translateError(err)
	}
	return conversation, nil
}

func (r *conversationRepository) FindBetween(ctx context.Context, userA, userB string) (models.Conversation, error) {
	filter := bson.M{"participants": bson.M{"$all": bson.A{userA, userB}}}

	var conversation models.Conversation
	if err := r.collection.FindOne(ctx, filter).Decode(&conversation); err != nil {
		return models.Conversation{}, translateError(err)
	}
	return conversation, nil
}

func (r *conversationRepository) ListByParticipant(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	size, _ := normalizePage(limit, 0, 50)

	opts := options.Find().
		SetSort(bson.D{{Key: "last_message_at", Value: -1}}).
		SetLimit(size)

	cursor, err := r.collection.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	conversations := make([]models.Conversation, 0)
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *conversationRepository) Save(ctx context.Context, conversation *models.Conversation) error {
	conversation.AssignIDs()
	conversation.UpdatedAt = time.Now().UTC()

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": conversation.ID}, conversation)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *conversationRepository) Delete(ctx context.Context, id string) error {
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
