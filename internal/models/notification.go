package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationCategory is the closed set of notification groupings.
type NotificationCategory string

const (
	CategorySocial      NotificationCategory = "social"
	CategorySystem      NotificationCategory = "system"
	CategorySecurity    NotificationCategory = "security"
	CategoryPromotion   NotificationCategory = "promotion"
	CategorySuggestion  NotificationCategory = "suggestion"
	CategoryAchievement NotificationCategory = "achievement"
	CategoryMessage     NotificationCategory = "message"
	CategoryGroup       NotificationCategory = "group"
)

// Valid reports whether the category belongs to the closed set.
func (c NotificationCategory) Valid() bool {
	switch c {
	case CategorySocial, CategorySystem, CategorySecurity, CategoryPromotion,
		CategorySuggestion, CategoryAchievement, CategoryMessage, CategoryGroup:
		return true
	}
	return false
}

// NotificationPriority orders notifications in the feed.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// Rank maps the priority onto a sortable number.
func (p NotificationPriority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	default:
		return 0
	}
}

// NotificationAction is a button rendered with a notification.
type NotificationAction struct {
	Label  string `bson:"label" json:"label"`
	Action string `bson:"action" json:"action"`
	Value  string `bson:"value,omitempty" json:"value,omitempty"`
	Style  string `bson:"style" json:"style"`
}

// Metadata is the free-form payload a notification is rendered from.
type Metadata map[string]interface{}

// String returns the value at key rendered as a string, or "" when absent.
func (m Metadata) String(key string) string {
	value, ok := m[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the numeric value at key, or fallback when absent or not numeric.
func (m Metadata) Int(key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

// Notification is a rendered, persisted notification for one recipient.
type Notification struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	RecipientID    string               `bson:"recipient_id" json:"recipient_id"`
	SenderID       *string              `bson:"sender_id" json:"sender_id,omitempty"`
	Category       NotificationCategory `bson:"category" json:"category"`
	Type           string               `bson:"type" json:"type"`
	Priority       NotificationPriority `bson:"priority" json:"priority"`
	PriorityRank   int                  `bson:"priority_rank" json:"-"`
	Title          string               `bson:"title,omitempty" json:"title,omitempty"`
	Message        string               `bson:"message" json:"message"`
	Image          string               `bson:"image,omitempty" json:"image,omitempty"`
	Icon           string               `bson:"icon,omitempty" json:"icon,omitempty"`
	Link           string               `bson:"link,omitempty" json:"link,omitempty"`
	Actions        []NotificationAction `bson:"actions,omitempty" json:"actions,omitempty"`
	RelatedPost    *string              `bson:"related_post" json:"related_post,omitempty"`
	RelatedComment *string              `bson:"related_comment,omitempty" json:"related_comment,omitempty"`
	RelatedUser    *string              `bson:"related_user,omitempty" json:"related_user,omitempty"`
	Metadata       Metadata             `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Read           bool                 `bson:"read" json:"read"`
	Clicked        bool                 `bson:"clicked" json:"clicked"`
	Dismissed      bool                 `bson:"dismissed" json:"dismissed"`
	ExpiresAt      *time.Time           `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	CreatedAt      time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time            `bson:"updated_at" json:"updated_at"`
}
