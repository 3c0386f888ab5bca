package service

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/noah-isme/social-go-api/internal/models"
)

const (
	messagePreviewRunes   = 100
	deletedMessageContent = "This message was deleted"
	imagePreview          = "📷 Image"
	stickerPreview        = "Sticker"
)

// messagePreview renders the last_message text shown in conversation and group lists.
func messagePreview(message models.Message) string {
	switch message.Type {
	case models.MessageTypeImage:
		return imagePreview
	case models.MessageTypeSticker:
		return stickerPreview
	case models.MessageTypeEmoji, models.MessageTypeSystem:
		return message.Content
	default:
		return truncateRunes(message.Content, messagePreviewRunes)
	}
}

func parseMessageType(value string) models.MessageType {
	switch models.MessageType(strings.ToLower(strings.TrimSpace(value))) {
	case models.MessageTypeSticker:
		return models.MessageTypeSticker
	case models.MessageTypeEmoji:
		return models.MessageTypeEmoji
	default:
		return models.MessageTypeText
	}
}

func parseReplyTo(value string) (*primitive.ObjectID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	oid, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid reply_to id", ErrValidation)
	}
	return &oid, nil
}

// findMessage returns the index of messageID inside messages.
func findMessage(messages []models.Message, messageID string) (int, error) {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return -1, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	for i := range messages {
		if messages[i].ID == oid {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
}

// editMessage applies an edit by the sender.
func editMessage(message *models.Message, userID, content string, at time.Time) error {
	if message.SenderID != userID {
		return fmt.Errorf("%w: message belongs to another user", ErrForbidden)
	}
	if message.Deleted {
		return fmt.Errorf("%w: message was deleted", ErrValidation)
	}
	if content == "" {
		return fmt.Errorf("%w: message content is required", ErrValidation)
	}
	message.Content = content
	message.Edited = true
	message.EditedAt = &at
	message.UpdatedAt = at
	return nil
}

// tombstoneMessage replaces the content of a message deleted by its sender.
func tombstoneMessage(message *models.Message, userID string, at time.Time) error {
	if message.SenderID != userID {
		return fmt.Errorf("%w: message belongs to another user", ErrForbidden)
	}
	message.Deleted = true
	message.Content = deletedMessageContent
	message.ImageURL = ""
	message.UpdatedAt = at
	return nil
}
