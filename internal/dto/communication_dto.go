package dto

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/noah-isme/social-go-api/internal/models"
)

// MessageSendRequest is the payload for appending a message to a conversation or group.
type MessageSendRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
	Type    string `json:"type" validate:"omitempty,oneof=text sticker emoji"`
	ReplyTo string `json:"reply_to" validate:"omitempty,len=24,hexadecimal"`
}

// MessageUpdateRequest replaces the content of an existing message.
type MessageUpdateRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

// TypingRequest toggles the caller's typing indicator.
type TypingRequest struct {
	Typing bool `json:"typing"`
}

// MuteRequest toggles notifications for a conversation.
type MuteRequest struct {
	Muted bool `json:"muted"`
}

// GroupCreateRequest describes a new group. Members exclude the creator.
type GroupCreateRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=100"`
	Description string   `json:"description" validate:"omitempty,max=500"`
	Image       string   `json:"image" validate:"omitempty,url"`
	Members     []string `json:"members" validate:"required,min=2,max=256,dive,required,max=64"`
}

// GroupUpdateRequest updates the group's descriptive fields.
type GroupUpdateRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Image       *string `json:"image" validate:"omitempty,url"`
}

// GroupMemberRequest adds a member to a group.
type GroupMemberRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

// ReadReceiptResponse records when a member read a group message.
type ReadReceiptResponse struct {
	UserID string    `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// MessageResponse is the serialized representation of a message.
type MessageResponse struct {
	ID          string                `json:"id"`
	SenderID    string                `json:"sender_id"`
	Content     string                `json:"content"`
	Type        string                `json:"type"`
	ImageURL    string                `json:"image_url,omitempty"`
	Read        bool                  `json:"read"`
	ReadAt      *time.Time            `json:"read_at,omitempty"`
	Delivered   bool                  `json:"delivered"`
	DeliveredAt *time.Time            `json:"delivered_at,omitempty"`
	Deleted     bool                  `json:"deleted"`
	Edited      bool                  `json:"edited"`
	EditedAt    *time.Time            `json:"edited_at,omitempty"`
	ReplyTo     string                `json:"reply_to,omitempty"`
	ReadBy      []ReadReceiptResponse `json:"read_by,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// NewMessageResponse converts a model into a DTO.
func NewMessageResponse(message models.Message) MessageResponse {
	response := MessageResponse{
		ID:          message.ID.Hex(),
		SenderID:    message.SenderID,
		Content:     message.Content,
		Type:        string(message.Type),
		ImageURL:    message.ImageURL,
		Read:        message.Read,
		ReadAt:      message.ReadAt,
		Delivered:   message.Delivered,
		DeliveredAt: message.DeliveredAt,
		Deleted:     message.Deleted,
		Edited:      message.Edited,
		EditedAt:    message.EditedAt,
		CreatedAt:   message.CreatedAt,
		UpdatedAt:   message.UpdatedAt,
	}
	if message.ReplyTo != nil {
		response.ReplyTo = message.ReplyTo.Hex()
	}
	for _, receipt := range message.ReadBy {
		response.ReadBy = append(response.ReadBy, ReadReceiptResponse{UserID: receipt.UserID, ReadAt: receipt.ReadAt})
	}
	return response
}

// NewMessageResponseSlice converts a slice of models into DTOs.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// PresenceResponse is a participant's presence state.
type PresenceResponse struct {
	Typing   bool       `json:"typing"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
	Muted    bool       `json:"muted"`
}

// ConversationResponse is a full conversation including its log.
type ConversationResponse struct {
	ID            string                      `json:"id"`
	Participants  []string                    `json:"participants"`
	Messages      []MessageResponse           `json:"messages"`
	LastMessage   string                      `json:"last_message"`
	LastMessageAt time.Time                   `json:"last_message_at"`
	Presence      map[string]PresenceResponse `json:"presence"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}

// NewConversationResponse converts a conversation model to DTO.
func NewConversationResponse(conversation models.Conversation) ConversationResponse {
	presence := make(map[string]PresenceResponse, len(conversation.Presence))
	for userID, state := range conversation.Presence {
		presence[userID] = PresenceResponse{Typing: state.Typing, LastSeen: state.LastSeen, Muted: state.Muted}
	}
	return ConversationResponse{
		ID:            conversation.ID.Hex(),
		Participants:  conversation.Participants,
		Messages:      NewMessageResponseSlice(conversation.Messages),
		LastMessage:   conversation.LastMessage,
		LastMessageAt: conversation.LastMessageAt,
		Presence:      presence,
		CreatedAt:     conversation.CreatedAt,
		UpdatedAt:     conversation.UpdatedAt,
	}
}

// ConversationSummaryResponse is a conversation list row.
type ConversationSummaryResponse struct {
	ID            string       `json:"id"`
	Participant   UserResponse `json:"participant"`
	Typing        bool         `json:"typing"`
	LastMessage   string       `json:"last_message"`
	LastMessageAt time.Time    `json:"last_message_at"`
	UnreadCount   int          `json:"unread_count"`
	Muted         bool         `json:"muted"`
}

// GroupResponse is a full group including its log.
type GroupResponse struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	Image         string            `json:"image,omitempty"`
	AdminID       string            `json:"admin_id"`
	Members       []string          `json:"members"`
	Messages      []MessageResponse `json:"messages"`
	LastMessage   string            `json:"last_message"`
	LastMessageAt time.Time         `json:"last_message_at"`
	Typing        []string          `json:"typing"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// NewGroupResponse converts a group model to DTO.
func NewGroupResponse(group models.Group) GroupResponse {
	typing := make([]string, 0)
	for userID, active := range group.Typing {
		if active {
			typing = append(typing, userID)
		}
	}
	sort.Strings(typing)
	return GroupResponse{
		ID:            group.ID.Hex(),
		Name:          group.Name,
		Description:   group.Description,
		Image:         group.Image,
		AdminID:       group.AdminID,
		Members:       group.Members,
		Messages:      NewMessageResponseSlice(group.Messages),
		LastMessage:   group.LastMessage,
		LastMessageAt: group.LastMessageAt,
		Typing:        typing,
		CreatedAt:     group.CreatedAt,
		UpdatedAt:     group.UpdatedAt,
	}
}

// GroupSummaryResponse is a group list row.
type GroupSummaryResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Image         string    `json:"image,omitempty"`
	AdminID       string    `json:"admin_id"`
	MemberCount   int       `json:"member_count"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int       `json:"unread_count"`
}

// MarkReadResponse reports how many messages were newly marked read.
type MarkReadResponse struct {
	Marked int `json:"marked"`
}

// RealtimeEvent is a room event pushed to websocket clients and relayed across nodes.
type RealtimeEvent struct {
	Type     string          `json:"type"`
	Room     string          `json:"room"`
	SenderID string          `json:"sender_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	SentAt   time.Time       `json:"sent_at"`
}
