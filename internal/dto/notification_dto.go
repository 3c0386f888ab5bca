package dto

import (
	"time"

	"github.com/noah-isme/social-go-api/internal/models"
)

// NotificationListQuery captures the feed filters and pagination.
type NotificationListQuery struct {
	Category string `query:"category" validate:"omitempty,oneof=social system security promotion suggestion achievement message group"`
	Priority string `query:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Read     *bool  `query:"read"`
	Limit    int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Skip     int    `query:"skip" validate:"omitempty,min=0"`
}

// NotificationBulkRequest sends one system notification to many recipients.
type NotificationBulkRequest struct {
	UserIDs  []string               `json:"user_ids" validate:"required,min=1,max=1000,dive,required,max=64"`
	Type     string                 `json:"type" validate:"required,max=64"`
	Metadata map[string]interface{} `json:"metadata"`
}

// NotificationBulkResponse reports how many recipients received the notification.
type NotificationBulkResponse struct {
	Requested int `json:"requested"`
	Delivered int `json:"delivered"`
}

// NotificationActionResponse is a rendered action button.
type NotificationActionResponse struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	Value  string `json:"value,omitempty"`
	Style  string `json:"style"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID             string                       `json:"id"`
	RecipientID    string                       `json:"recipient_id"`
	SenderID       *string                      `json:"sender_id"`
	Category       string                       `json:"category"`
	Type           string                       `json:"type"`
	Priority       string                       `json:"priority"`
	Title          string                       `json:"title,omitempty"`
	Message        string                       `json:"message"`
	Image          string                       `json:"image,omitempty"`
	Icon           string                       `json:"icon,omitempty"`
	Link           string                       `json:"link,omitempty"`
	Actions        []NotificationActionResponse `json:"actions"`
	RelatedPost    *string                      `json:"related_post,omitempty"`
	RelatedComment *string                      `json:"related_comment,omitempty"`
	RelatedUser    *string                      `json:"related_user,omitempty"`
	Metadata       map[string]interface{}       `json:"metadata,omitempty"`
	Read           bool                         `json:"read"`
	Clicked        bool                         `json:"clicked"`
	Dismissed      bool                         `json:"dismissed"`
	ExpiresAt      *time.Time                   `json:"expires_at,omitempty"`
	CreatedAt      time.Time                    `json:"created_at"`
	UpdatedAt      time.Time                    `json:"updated_at"`
}

// NotificationFeedResponse is the filtered feed plus badge counters.
type NotificationFeedResponse struct {
	Notifications  []NotificationResponse `json:"notifications"`
	UnreadCount    int64                  `json:"unread_count"`
	CategoryCounts map[string]int64       `json:"category_counts"`
	Limit          int                    `json:"limit"`
	Skip           int                    `json:"skip"`
}

// CountResponse wraps a single counter.
type CountResponse struct {
	Count int64 `json:"count"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	actions := make([]NotificationActionResponse, 0, len(model.Actions))
	for _, action := range model.Actions {
		actions = append(actions, NotificationActionResponse{
			Label:  action.Label,
			Action: action.Action,
			Value:  action.Value,
			Style:  action.Style,
		})
	}

	return NotificationResponse{
		ID:             model.ID.Hex(),
		RecipientID:    model.RecipientID,
		SenderID:       model.SenderID,
		Category:       string(model.Category),
		Type:           model.Type,
		Priority:       string(model.Priority),
		Title:          model.Title,
		Message:        model.Message,
		Image:          model.Image,
		Icon:           model.Icon,
		Link:           model.Link,
		Actions:        actions,
		RelatedPost:    model.RelatedPost,
		RelatedComment: model.RelatedComment,
		RelatedUser:    model.RelatedUser,
		Metadata:       model.Metadata,
		Read:           model.Read,
		Clicked:        model.Clicked,
		Dismissed:      model.Dismissed,
		ExpiresAt:      model.ExpiresAt,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}
