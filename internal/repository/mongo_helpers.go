package repository

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ErrNotFound is returned when the requested aggregate does not exist.
var ErrNotFound = errors.New("record not found")

// Collection names shared by the Mongo repositories and their index setup.
const (
	PostsCollection         = "posts"
	ConversationsCollection = "conversations"
	GroupsCollection        = "groups"
	NotificationsCollection = "notifications"
)

func parseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return oid, nil
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments), errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	default:
		return err
	}
}

func normalizePage(limit, skip, fallback int) (int64, int64) {
	if limit <= 0 || limit > 100 {
		limit = fallback
	}
	if skip < 0 {
		skip = 0
	}
	return int64(limit), int64(skip)
}
