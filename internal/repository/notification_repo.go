package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/social-go-api/internal/models"
)

// NotificationFilter narrows a recipient's feed. Dismissed rows are always excluded.
type NotificationFilter struct {
	RecipientID string
	Category    string
	Priority    string
	Read        *bool
	Limit       int
	Skip        int
}

// DuplicateKey identifies notifications that coalesce inside the dedup window.
// A nil SenderID or RelatedPost matches stored rows where the field is null.
type DuplicateKey struct {
	RecipientID string
	SenderID    *string
	Type        string
	RelatedPost *string
}

// NotificationUpdate lists the status flags to set; nil fields are left untouched.
type NotificationUpdate struct {
	Read      *bool
	Clicked   *bool
	Dismissed *bool
}

// NotificationRepository handles persistence for notification documents.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	FindDuplicate(ctx context.Context, key DuplicateKey, since time.Time) (models.Notification, error)
	Refresh(ctx context.Context, id string, message string, at time.Time) error
	List(ctx context.Context, filter NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	CategoryCounts(ctx context.Context, recipientID string) (map[string]int64, error)
	Update(ctx context.Context, id, recipientID string, update NotificationUpdate) (models.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, id, recipientID string) error
}

type notificationRepository struct {
	collection *mongo.Collection
}

// NewNotificationRepository constructs a repository backed by the notifications collection.
func NewNotificationRepository(db *mongo.Database) NotificationRepository {
	return &notificationRepository{collection: db.Collection(NotificationsCollection)}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	now := time.Now().UTC()
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = now
	}
	notification.UpdatedAt = now
	if notification.ID.IsZero() {
		notification.ID = primitive.NewObjectID()
	}

	_, err := r.collection.InsertOne(ctx, notification)
	return err
}

func (r *notificationRepository) FindDuplicate(ctx context.Context, key DuplicateKey, since time.Time) (models.Notification, error) {
	filter := bson.M{
		"recipient_id": key.RecipientID,
		"sender_id":    key.SenderID,
		"type":         key.Type,
		"related_post": key.RelatedPost,
		"read":         false,
		"created_at":   bson.M{"$gte": since},
	}

	var notification models.Notification
	if err := r.collection.FindOne(ctx, filter).Decode(&notification); err != nil {
		return models.Notification{}, translateError(err)
	}
	return notification, nil
}

func (r *notificationRepository) Refresh(ctx context.Context, id string, message string, at time.Time) error {
	oid, err := parseObjectID(id)
	if err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{
		"message":    message,
		"created_at": at,
		"updated_at": at,
	}}
	result, err := r.collection.UpdateByID(ctx, oid, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepository) List(ctx context.Context, filter NotificationFilter) ([]models.Notification, error) {
	limit, skip := normalizePage(filter.Limit, filter.Skip, 20)

	query := bson.M{
		"recipient_id": filter.RecipientID,
		"dismissed":    false,
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Priority != "" {
		query["priority"] = filter.Priority
	}
	if filter.Read != nil {
		query["read"] = *filter.Read
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "priority_rank", Value: -1}, {Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(skip)

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	notifications := make([]models.Notification, 0)
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{
		"recipient_id": recipientID,
		"read":         false,
		"dismissed":    false,
	})
}

func (r *notificationRepository) CategoryCounts(ctx context.Context, recipientID string) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"recipient_id": recipientID, "read": false, "dismissed": false}}},
		{{Key: "$group", Value: bson.M{"_id": "$category", "count": bson.M{"$sum": 1}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Category string `bson:"_id"`
		Count    int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Category] = row.Count
	}
	return counts, nil
}

func (r *notificationRepository) Update(ctx context.Context, id, recipientID string, update NotificationUpdate) (models.Notification, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return models.Notification{}, err
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if update.Read != nil {
		set["read"] = *update.Read
	}
	if update.Clicked != nil {
		set["clicked"] = *update.Clicked
	}
	if update.Dismissed != nil {
		set["dismissed"] = *update.Dismissed
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var notification models.Notification
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "recipient_id": recipientID},
		bson.M{"$set": set},
		opts,
	).Decode(&notification)
	if err != nil {
		return models.Notification{}, translateError(err)
	}
	return notification, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{"recipient_id": recipientID, "read": false},
		bson.M{"$set": bson.M{"read": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (r *notificationRepository) Delete(ctx context.Context, id, recipientID string) error {
	oid, err := parseObjectID(id)
	if err != nil {
		return err
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid, "recipient_id": recipientID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
