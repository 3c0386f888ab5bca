package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/social-go-api/internal/dto"
	"github.com/noah-isme/social-go-api/internal/models"
	"github.com/noah-isme/social-go-api/internal/observability"
	"github.com/noah-isme/social-go-api/internal/repository"
)

const conversationListLimit = 50

// ConversationService manages direct message threads between two users.
type ConversationService interface {
	GetOrCreate(ctx context.Context, userID, otherUserID string) (dto.ConversationResponse, error)
	List(ctx context.Context, userID string) ([]dto.ConversationSummaryResponse, error)
	TotalUnread(ctx context.Context, userID string) (int, error)
	Send(ctx context.Context, conversationID, userID string, payload dto.MessageSendRequest) (dto.MessageResponse, error)
	SendImage(ctx context.Context, conversationID, userID string, file *multipart.FileHeader) (dto.MessageResponse, error)
	MarkRead(ctx context.Context, conversationID, userID string) (dto.MarkReadResponse, error)
	EditMessage(ctx context.Context, conversationID, messageID, userID string, payload dto.MessageUpdateRequest) (dto.MessageResponse, error)
	DeleteMessage(ctx context.Context, conversationID, messageID, userID string) (dto.MessageResponse, error)
	SetTyping(ctx context.Context, conversationID, userID string, typing bool) (dto.PresenceResponse, error)
	UpdateLastSeen(ctx context.Context, conversationID, userID string) (dto.PresenceResponse, error)
	SetMuted(ctx context.Context, conversationID, userID string, muted bool) (dto.PresenceResponse, error)
	Delete(ctx context.Context, conversationID, userID string) error
}

type conversationService struct {
	repo          repository.ConversationRepository
	users         UserDirectory
	notifications NotificationDispatcher
	rooms         RoomPublisher
	media         MediaService
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewConversationService constructs the direct messaging service.
func NewConversationService(repo repository.ConversationRepository, users UserDirectory, notifications NotificationDispatcher, rooms RoomPublisher, media MediaService, validate *validator.Validate, logger zerolog.Logger) ConversationService {
	return &conversationService{
		repo:          repo,
		users:         users,
		notifications: notifications,
		rooms:         rooms,
		media:         media,
		validator:     validate,
		sanitizer:     bluemonday.StrictPolicy(),
		logger:        logger.With().Str("component", "conversation_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/social-go-api/internal/service/conversation"),
		now:           time.Now,
	}
}

func (s *conversationService) GetOrCreate(ctx context.Context, userID, otherUserID string) (dto.ConversationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.get_or_create", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("other_user.id", otherUserID),
	))
	defer span.End()

	otherUserID = strings.TrimSpace(otherUserID)
	if otherUserID == "" || otherUserID == userID {
		return dto.ConversationResponse{}, fmt.Errorf("%w: a conversation needs another participant", ErrValidation)
	}

	existing, err := s.repo.FindBetween(ctx, userID, otherUserID)
	if err == nil {
		return dto.NewConversationResponse(existing), nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return dto.ConversationResponse{}, err
	}

	for _, id := range []string{userID, otherUserID} {
		if _, err := s.users.Snapshot(ctx, id); err != nil {
			return dto.ConversationResponse{}, err
		}
	}

	conversation := models.Conversation{
		Participants: []string{userID, otherUserID},
		Messages:     []models.Message{},
		Presence:     map[string]models.Presence{},
	}
	if err := s.repo.Create(ctx, &conversation); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return dto.ConversationResponse{}, err
	}

	s.logger.Info().Str("conversation_id", conversation.ID.Hex()).Msg("conversation created")
	return dto.NewConversationResponse(conversation), nil
}

func (s *conversationService) List(ctx context.Context, userID string) ([]dto.ConversationSummaryResponse, error) {
	conversations, err := s.repo.ListByParticipant(ctx, userID, conversationListLimit)
	if err != nil {
		return nil, err
	}

	summaries := make([]dto.ConversationSummaryResponse, 0, len(conversations))
	for _, conversation := range conversations {
		otherID := conversation.OtherParticipant(userID)
		participant := dto.UserResponse{ID: otherID}
		if snapshot, err := s.users.Snapshot(ctx, otherID); err == nil {
			participant = dto.NewUserResponse(snapshot)
		} else {
			s.logger.Warn().Err(err).Str("user_id", otherID).Msg("failed to resolve conversation participant")
		}
		if presence, ok := conversation.Presence[otherID]; ok && presence.LastSeen != nil {
			participant.LastActive = presence.LastSeen
		}

		summaries = append(summaries, dto.ConversationSummaryResponse{
			ID:            conversation.ID.Hex(),
			Participant:   participant,
			Typing:        conversation.Presence[otherID].Typing,
			LastMessage:   conversation.LastMessage,
			LastMessageAt: conversation.LastMessageAt,
			UnreadCount:   unreadInConversation(conversation, userID),
			Muted:         conversation.Presence[userID].Muted,
		})
	}
	return summaries, nil
}

func (s *conversationService) TotalUnread(ctx context.Context, userID string) (int, error) {
	conversations, err := s.repo.ListByParticipant(ctx, userID, conversationListLimit)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, conversation := range conversations {
		total += unreadInConversation(conversation, userID)
	}
	return total, nil
}

func unreadInConversation(conversation models.Conversation, userID string) int {
	count := 0
	for _, message := range conversation.Messages {
		if !message.Read && !message.Deleted && message.SenderID != userID {
			count++
		}
	}
	return count
}

func (s *conversationService) Send(ctx context.Context, conversationID, userID string, payload dto.MessageSendRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, err
	}

	replyTo, err := parseReplyTo(payload.ReplyTo)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	content := sanitizeText(s.sanitizer, payload.Content)
	if content == "" {
		return dto.MessageResponse{}, fmt.Errorf("%w: message content is required", ErrValidation)
	}

	return s.append(ctx, conversationID, userID, models.Message{
		Content: content,
		Type:    parseMessageType(payload.Type),
		ReplyTo: replyTo,
	})
}

func (s *conversationService) SendImage(ctx context.Context, conversationID, userID string, file *multipart.FileHeader) (dto.MessageResponse, error) {
	if s.media == nil {
		return dto.MessageResponse{}, ErrMediaUnavailable
	}

	conversation, err := s.load(ctx, conversationID, userID)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	url, err := s.media.UploadImage(ctx, file, MediaPurposeMessage)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	return s.appendTo(ctx, &conversation, userID, models.Message{Type: models.MessageTypeImage, ImageURL: url})
}

func (s *conversationService) append(ctx context.Context, conversationID, userID string, message models.Message) (dto.MessageResponse, error) {
	conversation, err := s.load(ctx, conversationID, userID)
	if err != nil {
		return dto.MessageResponse{}, err
	}
	return s.appendTo(ctx, &conversation, userID, message)
}

func (s *conversationService) appendTo(ctx context.Context, conversation *models.Conversation, userID string, message models.Message) (dto.MessageResponse, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.send", trace.WithAttributes(
		attribute.String("conversation.id", conversation.ID.Hex()),
		attribute.String("message.type", string(message.Type)),
	))
	defer span.End()

	at := s.now().UTC()
	message.SenderID = userID
	message.Delivered = true
	message.DeliveredAt = &at
	message.CreatedAt = at
	message.UpdatedAt = at

	conversation.Messages = append(conversation.Messages, message)
	conversation.LastMessage = messagePreview(message)
	conversation.LastMessageAt = at
	setPresence(conversation, userID, func(p *models.Presence) { p.Typing = false })

	if err := s.repo.Save(ctx, conversation); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return dto.MessageResponse{}, mapRepoError(err)
	}

	stored := conversation.Messages[len(conversation.Messages)-1]
	response := dto.NewMessageResponse(stored)
	observability.MessagesSent().WithLabelValues("conversation", string(stored.Type)).Inc()

	s.rooms.Publish(ctx, ConversationRoom(conversation.ID.Hex()), EventMessageCreated, userID, response)

	recipientID := conversation.OtherParticipant(userID)
	if !conversation.Presence[recipientID].Muted {
		s.notifications.Dispatch(ctx, "message", userID, recipientID, models.Metadata{
			"conversationId": conversation.ID.Hex(),
			"messagePreview": conversation.LastMessage,
		})
	}

	return response, nil
}

func (s *conversationService) MarkRead(ctx context.Context, conversationID, userID string) (dto.MarkReadResponse, error) {
	conversation, err := s.load(ctx, conversationID, userID)
	if err != nil {
		return dto.MarkReadResponse{}, err
	}

	at := s.now().UTC()
	marked := 0
	for i := range conversation.Messages {
		message := &conversation.Messages[i]
		if message.Read || message.Deleted || message.SenderID == userID {
			continue
		}
		message.Read = true
		message.ReadAt = &at
		marked++
	}

	if marked == 0 {
		return dto.MarkReadResponse{Marked: 0}, nil
	}

	if err := s.repo.Save(ctx, &conversation); err != nil {
		return dto.MarkReadResponse{}, mapRepoError(err)
	}

	s.rooms.Publish(ctx, ConversationRoom(conversationID), EventMessagesRead, userID, map[string]interface{}{
		"user_id": userID,
		"marked":  marked,
		"read_at": at,
	})
	return dto.MarkReadResponse{Marked: marked}, nil
}

func (s *conversationService) EditMessage(ctx context.Context, conversationID, messageID, userID string, payload dto.MessageUpdateRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, err
	}

	return s.mutateMessage(ctx, conversationID, messageID, userID, EventMessageUpdated, func(message *models.Message, at time.Time) error {
		return editMessage(message, userID, sanitizeText(s.sanitizer, payload.Content), at)
	})
}

func (s *conversationService) DeleteMessage(ctx context.Context, conversationID, messageID, userID string) (dto.MessageResponse, error) {
	return s.mutateMessage(ctx, conversationID, messageID, userID, EventMessageDeleted, func(message *models.Message, at time.Time) error {
		return tombstoneMessage(message, userID, at)
	})
}

func (s *conversationService) mutateMessage(ctx context.Context, conversationID, messageID, userID, event string, mutate func(*models.Message, time.Time) error) (dto.MessageResponse, error) {
	conversation, err := s.load(ctx, conversationID, userID)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	index, err := findMessage(conversation.Messages, messageID)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	message := &conversation.Messages[index]
	if err := mutate(message, s.now().UTC()); err != nil {
		return dto.MessageResponse{}, err
	}
	if index == len(conversation.Messages)-1 {
		conversation.LastMessage = messagePreview(*message)
	}

	if err := s.repo.Save(ctx, &conversation); err != nil {
		return dto.MessageResponse{}, mapRepoError(err)
	}

	response := dto.NewMessageResponse(*message)
	s.rooms.Publish(ctx, ConversationRoom(conversationID), event, userID, response)
	return response, nil
}

func (s *conversationService) SetTyping(ctx context.Context, conversationID, userID string, typing bool) (dto.PresenceResponse, error) {
	presence, err := s.updatePresence(ctx, conversationID, userID, func(p *models.Presence) { p.Typing = typing })
	if err != nil {
		return dto.PresenceResponse{}, err
	}
	s.rooms.Publish(ctx, ConversationRoom(conversationID), EventTyping, userID, map[string]interface{}{
		"user_id": userID,
		"typing":  typing,
	})
	return presence, nil
}

func (s *conversationService) UpdateLastSeen(ctx context.Context, conversationID, userID string) (dto.PresenceResponse, error) {
	at := s.now().UTC()
	return s.updatePresence(ctx, conversationID, userID, func(p *models.Presence) { p.LastSeen = &at })
}

func (s *conversationService) SetMuted(ctx context.Context, conversationID, userID string, muted bool) (dto.PresenceResponse, error) {
	return s.updatePresence(ctx, conversationID, userID, func(p *models.Presence) { p.Muted = muted })
}

func (s *conversationService) updatePresence(ctx context.Context, conversationID, userID string, apply func(*models.Presence)) (dto.PresenceResponse, error) {
	conversation, err := s.load(ctx, conversationID, userID)
	if err != nil {
		return dto.PresenceResponse{}, err
	}

	presence := setPresence(&conversation, userID, apply)
	if err := s.repo.Save(ctx, &conversation); err != nil {
		return dto.PresenceResponse{}, mapRepoError(err)
	}
	return dto.PresenceResponse{Typing: presence.Typing, LastSeen: presence.LastSeen, Muted: presence.Muted}, nil
}

func (s *conversationService) Delete(ctx context.Context, conversationID, userID string) error {
	if _, err := s.load(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, conversationID); err != nil {
		return mapRepoError(err)
	}

	s.rooms.CloseRoom(ctx, ConversationRoom(conversationID))
	s.logger.Info().Str("conversation_id", conversationID).Str("user_id", userID).Msg("conversation deleted")
	return nil
}

// load fetches the conversation and checks that userID takes part in it.
func (s *conversationService) load(ctx context.Context, conversationID, userID string) (models.Conversation, error) {
	conversation, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, mapRepoError(err)
	}
	if !conversation.HasParticipant(userID) {
		return models.Conversation{}, fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
	}
	return conversation, nil
}

func setPresence(conversation *models.Conversation, userID string, apply func(*models.Presence)) models.Presence {
	if conversation.Presence == nil {
		conversation.Presence = map[string]models.Presence{}
	}
	presence := conversation.Presence[userID]
	apply(&presence)
	conversation.Presence[userID] = presence
	return presence
}
