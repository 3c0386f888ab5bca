package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessageType enumerates the kinds of entries in a conversation or group log.
type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypeImage   MessageType = "image"
	MessageTypeSticker MessageType = "sticker"
	MessageTypeEmoji   MessageType = "emoji"
	MessageTypeSystem  MessageType = "system"
)

// ReadReceipt records when a group member read a message.
type ReadReceipt struct {
	UserID string    `bson:"user_id" json:"user_id"`
	ReadAt time.Time `bson:"read_at" json:"read_at"`
}

// Message is an entry in a conversation or group log.
type Message struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	SenderID    string              `bson:"sender_id" json:"sender_id"`
	Content     string              `bson:"content" json:"content"`
	Type        MessageType         `bson:"type" json:"type"`
	ImageURL    string              `bson:"image_url,omitempty" json:"image_url,omitempty"`
	Read        bool                `bson:"read" json:"read"`
	ReadAt      *time.Time          `bson:"read_at,omitempty" json:"read_at,omitempty"`
	Delivered   bool                `bson:"delivered" json:"delivered"`
	DeliveredAt *time.Time          `bson:"delivered_at,omitempty" json:"delivered_at,omitempty"`
	Deleted     bool                `bson:"deleted" json:"deleted"`
	Edited      bool                `bson:"edited" json:"edited"`
	EditedAt    *time.Time          `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	ReplyTo     *primitive.ObjectID `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	ReadBy      []ReadReceipt       `bson:"read_by,omitempty" json:"read_by,omitempty"`
	CreatedAt   time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `bson:"updated_at" json:"updated_at"`
}

// ReadByUser reports whether the user holds a read receipt for the message.
func (m Message) ReadByUser(userID string) bool {
	for _, receipt := range m.ReadBy {
		if receipt.UserID == userID {
			return true
		}
	}
	return false
}

// Presence is a participant's typing, last seen and mute state.
type Presence struct {
	Typing   bool       `bson:"typing" json:"typing"`
	LastSeen *time.Time `bson:"last_seen,omitempty" json:"last_seen,omitempty"`
	Muted    bool       `bson:"muted" json:"muted"`
}

// Conversation is a direct message thread between exactly two users.
type Conversation struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Participants  []string            `bson:"participants" json:"participants"`
	Messages      []Message           `bson:"messages" json:"messages"`
	LastMessage   string              `bson:"last_message" json:"last_message"`
	LastMessageAt time.Time           `bson:"last_message_at" json:"last_message_at"`
	Presence      map[string]Presence `bson:"presence" json:"presence"`
	CreatedAt     time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `bson:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	for _, id := range c.Participants {
		if id != userID {
			return id
		}
	}
	return ""
}

// AssignIDs gives the conversation and its messages ids where missing.
func (c *Conversation) AssignIDs() {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	assignMessageIDs(c.Messages)
}

// Group is a multi-member chat with a single admin.
type Group struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Description   string             `bson:"description,omitempty" json:"description,omitempty"`
	Image         string             `bson:"image,omitempty" json:"image,omitempty"`
	AdminID       string             `bson:"admin_id" json:"admin_id"`
	Members       []string           `bson:"members" json:"members"`
	Messages      []Message          `bson:"messages" json:"messages"`
	LastMessage   string             `bson:"last_message" json:"last_message"`
	LastMessageAt time.Time          `bson:"last_message_at" json:"last_message_at"`
	Typing        map[string]bool    `bson:"typing" json:"typing"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsMember reports whether userID belongs to the group.
func (g *Group) IsMember(userID string) bool {
	for _, id := range g.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether userID administers the group.
func (g *Group) IsAdmin(userID string) bool {
	return g.AdminID != "" && g.AdminID == userID
}

// AssignIDs gives the group and its messages ids where missing.
func (g *Group) AssignIDs() {
	if g.ID.IsZero() {
		g.ID = primitive.NewObjectID()
	}
	assignMessageIDs(g.Messages)
}

func assignMessageIDs(messages []Message) {
	for i := range messages {
		if messages[i].ID.IsZero() {
			messages[i].ID = primitive.NewObjectID()
		}
	}
}
