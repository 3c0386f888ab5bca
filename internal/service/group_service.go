package service

import (
	"context"
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

const (
	groupListLimit     = 50
	groupMinMembers    = 2
	groupCreatedNotice = "Group created"
)

// Membership actions carried by group.membership events.
const (
	MembershipAdded   = "added"
	MembershipRemoved = "removed"
	MembershipLeft    = "left"
)

// GroupService manages group chats administered by a single admin.
type GroupService interface {
	Create(ctx context.Context, adminID string, payload dto.GroupCreateRequest) (dto.GroupResponse, error)
	List(ctx context.Context, userID string) ([]dto.GroupSummaryResponse, error)
	Get(ctx context.Context, groupID, userID string) (dto.GroupResponse, error)
	Send(ctx context.Context, groupID, userID string, payload dto.MessageSendRequest) (dto.MessageResponse, error)
	SendImage(ctx context.Context, groupID, userID string, file *multipart.FileHeader) (dto.MessageResponse, error)
	MarkRead(ctx context.Context, groupID, userID string) (dto.MarkReadResponse, error)
	EditMessage(ctx context.Context, groupID, messageID, userID string, payload dto.MessageUpdateRequest) (dto.MessageResponse, error)
	DeleteMessage(ctx context.Context, groupID, messageID, userID string) (dto.MessageResponse, error)
	SetTyping(ctx context.Context, groupID, userID string, typing bool) error
	AddMember(ctx context.Context, groupID, adminID string, payload dto.GroupMemberRequest) (dto.GroupResponse, error)
	RemoveMember(ctx context.Context, groupID, adminID, memberID string) (dto.GroupResponse, error)
	Leave(ctx context.Context, groupID, userID string) error
	Update(ctx context.Context, groupID, adminID string, payload dto.GroupUpdateRequest) (dto.GroupResponse, error)
	Delete(ctx context.Context, groupID, adminID string) error
}

type groupService struct {
	repo          repository.GroupRepository
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

// NewGroupService constructs the group messaging service.
func NewGroupService(repo repository.GroupRepository, users UserDirectory, notifications NotificationDispatcher, rooms RoomPublisher, media MediaService, validate *validator.Validate, logger zerolog.Logger) GroupService {
	return &groupService{
		repo:          repo,
		users:         users,
		notifications: notifications,
		rooms:         rooms,
		media:         media,
		validator:     validate,
		sanitizer:     bluemonday.StrictPolicy(),
		logger:        logger.With().Str("component", "group_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/social-go-api/internal/service/group"),
		now:           time.Now,
	}
}

func (s *groupService) Create(ctx context.Context, adminID string, payload dto.GroupCreateRequest) (dto.GroupResponse, error) {
	ctx, span := s.tracer.Start(ctx, "group.create", trace.WithAttributes(attribute.String("user.id", adminID)))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.GroupResponse{}, err
	}

	name := sanitizeText(s.sanitizer, payload.Name)
	if name == "" {
		return dto.GroupResponse{}, fmt.Errorf("%w: group name is required", ErrValidation)
	}

	members := []string{adminID}
	seen := map[string]struct{}{adminID: {}}
	for _, id := range payload.Members {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	if len(members)-1 < groupMinMembers {
		return dto.GroupResponse{}, fmt.Errorf("%w: at least %d members are required besides the admin", ErrValidation, groupMinMembers)
	}

	for _, id := range members {
		if _, err := s.users.Snapshot(ctx, id); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "member lookup failed")
			return dto.GroupResponse{}, err
		}
	}

	at := s.now().UTC()
	group := models.Group{
		Name:        name,
		Description: sanitizeText(s.sanitizer, payload.Description),
		Image:       strings.TrimSpace(payload.Image),
		AdminID:     adminID,
		Members:     members,
		Messages: []models.Message{{
			SenderID:  adminID,
			Content:   groupCreatedNotice,
			Type:      models.MessageTypeSystem,
			ReadBy:    []models.ReadReceipt{},
			CreatedAt: at,
			UpdatedAt: at,
		}},
		LastMessage:   groupCreatedNotice,
		LastMessageAt: at,
		Typing:        map[string]bool{},
		CreatedAt:     at,
	}

	if err := s.repo.Create(ctx, &group); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return dto.GroupResponse{}, err
	}

	for _, memberID := range members[1:] {
		s.notifications.Dispatch(ctx, "group_invite", adminID, memberID, models.Metadata{
			"groupId":   group.ID.Hex(),
			"groupName": group.Name,
		})
	}

	s.logger.Info().Str("group_id", group.ID.Hex()).Int("members", len(members)).Msg("group created")
	return dto.NewGroupResponse(group), nil
}

func (s *groupService) List(ctx context.Context, userID string) ([]dto.GroupSummaryResponse, error) {
	groups, err := s.repo.ListByMember(ctx, userID, groupListLimit)
	if err != nil {
		return nil, err
	}

	summaries := make([]dto.GroupSummaryResponse, 0, len(groups))
	for _, group := range groups {
		summaries = append(summaries, dto.GroupSummaryResponse{
			ID:            group.ID.Hex(),
			Name:          group.Name,
			Image:         group.Image,
			AdminID:       group.AdminID,
			MemberCount:   len(group.Members),
			LastMessage:   group.LastMessage,
			LastMessageAt: group.LastMessageAt,
			UnreadCount:   unreadInGroup(group, userID),
		})
	}
	return summaries, nil
}

func unreadInGroup(group models.Group, userID string) int {
	count := 0
	for _, message := range group.Messages {
		if message.Type == models.MessageTypeSystem || message.SenderID == userID {
			continue
		}
		if !message.ReadByUser(userID) {
			count++
		}
	}
	return count
}

func (s *groupService) Get(ctx context.Context, groupID, userID string) (dto.GroupResponse, error) {
	group, err := s.loadForMember(ctx, groupID, userID)
	if err != nil {
		return dto.GroupResponse{}, err
	}
	return dto.NewGroupResponse(group), nil
}

func (s *groupService) Send(ctx context.Context, groupID, userID string, payload dto.MessageSendRequest) (dto.MessageResponse, error) {
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

	group, err := s.loadForMember(ctx, groupID, userID)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	return s.appendTo(ctx, &group, userID, models.Message{
		Content: content,
		Type:    parseMessageType(payload.Type),
		ReplyTo: replyTo,
	})
}

func (s *groupService) SendImage(ctx context.Context, groupID, userID string, file *multipart.FileHeader) (dto.MessageResponse, error) {
	if s.media == nil {
		return dto.MessageResponse{}, ErrMediaUnavailable
	}

	group, err := s.loadForMember(ctx, groupID, userID)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	url, err := s.media.UploadImage(ctx, file, MediaPurposeMessage)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	return s.appendTo(ctx, &group, userID, models.Message{Type: models.MessageTypeImage, ImageURL: url})
}

func (s *groupService) appendTo(ctx context.Context, group *models.Group, userID string, message models.Message) (dto.MessageResponse, error) {
	ctx, span := s.tracer.Start(ctx, "group.send", trace.WithAttributes(
		attribute.String("group.id", group.ID.Hex()),
		attribute.String("message.type", string(message.Type)),
	))
	defer span.End()

	at := s.now().UTC()
	message.SenderID = userID
	message.Delivered = true
	message.DeliveredAt = &at
	message.ReadBy = []models.ReadReceipt{{UserID: userID, ReadAt: at}}
	message.CreatedAt = at
	message.UpdatedAt = at

	group.Messages = append(group.Messages, message)
	group.LastMessage = messagePreview(message)
	group.LastMessageAt = at
	if group.Typing == nil {
		group.Typing = map[string]bool{}
	}
	group.Typing[userID] = false

	if err := s.repo.Save(ctx, group); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return dto.MessageResponse{}, mapRepoError(err)
	}

	stored := group.Messages[len(group.Messages)-1]
	response := dto.NewMessageResponse(stored)
	observability.MessagesSent().WithLabelValues("group", string(stored.Type)).Inc()

	s.rooms.Publish(ctx, GroupRoom(group.ID.Hex()), EventMessageCreated, userID, response)

	for _, memberID := range group.Members {
		if memberID == userID {
			continue
		}
		s.notifications.Dispatch(ctx, "group_message", userID, memberID, models.Metadata{
			"groupId":   group.ID.Hex(),
			"groupName": group.Name,
		})
	}

	return response, nil
}

func (s *groupService) MarkRead(ctx context.Context, groupID, userID string) (dto.MarkReadResponse, error) {
	group, err := s.loadForMember(ctx, groupID, userID)
	if err != nil {
		return dto.MarkReadResponse{}, err
	}

	at := s.now().UTC()
	marked := 0
	for i := range group.Messages {
		message := &group.Messages[i]
		if message.Type == models.MessageTypeSystem || message.SenderID == userID || message.ReadByUser(userID) {
			continue
		}
		message.ReadBy = append(message.ReadBy, models.ReadReceipt{UserID: userID, ReadAt: at})
		marked++
	}

	if marked == 0 {
		return dto.MarkReadResponse{Marked: 0}, nil
	}

	if err := s.repo.Save(ctx, &group); err != nil {
		return dto.MarkReadResponse{}, mapRepoError(err)
	}

	s.rooms.Publish(ctx, GroupRoom(groupID), EventMessagesRead, userID, map[string]interface{}{
		"user_id": userID,
		"marked":  marked,
		"read_at": at,
	})
	return dto.MarkReadResponse{Marked: marked}, nil
}

func (s *groupService) EditMessage(ctx context.Context, groupID, messageID, userID string, payload dto.MessageUpdateRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, err
	}

	return s.mutateMessage(ctx, groupID, messageID, userID, EventMessageUpdated, func(message *models.Message, at time.Time) error {
		return editMessage(message, userID, sanitizeText(s.sanitizer, payload.Content), at)
	})
}

func (s *groupService) DeleteMessage(ctx context.Context, groupID, messageID, userID string) (dto.MessageResponse, error) {
	return s.mutateMessage(ctx, groupID, messageID, userID, EventMessageDeleted, func(message *models.Message, at time.Time) error {
		return tombstoneMessage(message, userID, at)
	})
}

func (s *groupService) mutateMessage(ctx context.Context, groupID, messageID, userID, event string, mutate func(*models.Message, time.Time) error) (dto.MessageResponse, error) {
	group, err := s.loadForMember(ctx, groupID, userID)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	index, err := findMessage(group.Messages, messageID)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	message := &group.Messages[index]
	if message.Type == models.MessageTypeSystem {
		return dto.MessageResponse{}, fmt.Errorf("%w: system entries cannot be changed", ErrForbidden)
	}
	if err := mutate(message, s.now().UTC()); err != nil {
		return dto.MessageResponse{}, err
	}
	if index == len(group.Messages)-1 {
		group.LastMessage = messagePreview(*message)
	}

	if err := s.repo.Save(ctx, &group); err != nil {
		return dto.MessageResponse{}, mapRepoError(err)
	}

	response := dto.NewMessageResponse(*message)
	s.rooms.Publish(ctx, GroupRoom(groupID), event, userID, response)
	return response, nil
}

func (s *groupService) SetTyping(ctx context.Context, groupID, userID string, typing bool) error {
	group, err := s.loadForMember(ctx, groupID, userID)
	if err != nil {
		return err
	}

	if group.Typing == nil {
		group.Typing = map[string]bool{}
	}
	group.Typing[userID] = typing
	if err := s.repo.Save(ctx, &group); err != nil {
		return mapRepoError(err)
	}

	s.rooms.Publish(ctx, GroupRoom(groupID), EventTyping, userID, map[string]interface{}{
		"user_id": userID,
		"typing":  typing,
	})
	return nil
}

func (s *groupService) AddMember(ctx context.Context, groupID, adminID string, payload dto.GroupMemberRequest) (dto.GroupResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GroupResponse{}, err
	}

	group, err := s.loadForAdmin(ctx, groupID, adminID, "add members")
	if err != nil {
		return dto.GroupResponse{}, err
	}

	memberID := strings.TrimSpace(payload.UserID)
	if group.IsMember(memberID) {
		return dto.GroupResponse{}, fmt.Errorf("%w: user is already a member", ErrConflict)
	}

	member, err := s.users.Snapshot(ctx, memberID)
	if err != nil {
		return dto.GroupResponse{}, err
	}

	group.Members = append(group.Members, memberID)
	s.appendSystem(&group, adminID, fmt.Sprintf("%s was added to the group", fullName(member)))

	if err := s.repo.Save(ctx, &group); err != nil {
		return dto.GroupResponse{}, mapRepoError(err)
	}

	s.publishMembership(ctx, group, adminID, memberID, MembershipAdded)
	s.notifications.Dispatch(ctx, "group_invite", adminID, memberID, models.Metadata{
		"groupId":   group.ID.Hex(),
		"groupName": group.Name,
	})

	return dto.NewGroupResponse(group), nil
}

func (s *groupService) RemoveMember(ctx context.Context, groupID, adminID, memberID string) (dto.GroupResponse, error) {
	group, err := s.loadForAdmin(ctx, groupID, adminID, "remove members")
	if err != nil {
		return dto.GroupResponse{}, err
	}

	if memberID == adminID {
		return dto.GroupResponse{}, fmt.Errorf("%w: admin cannot remove themselves", ErrConflict)
	}
	if !group.IsMember(memberID) {
		return dto.GroupResponse{}, fmt.Errorf("%w: member %s", ErrNotFound, memberID)
	}

	group.Members = withoutMember(group.Members, memberID)
	delete(group.Typing, memberID)
	s.appendSystem(&group, adminID, fmt.Sprintf("%s was removed from the group", s.memberName(ctx, memberID)))

	if err := s.repo.Save(ctx, &group); err != nil {
		return dto.GroupResponse{}, mapRepoError(err)
	}

	s.publishMembership(ctx, group, adminID, memberID, MembershipRemoved)
	return dto.NewGroupResponse(group), nil
}

func (s *groupService) Leave(ctx context.Context, groupID, userID string) error {
	group, err := s.loadForMember(ctx, groupID, userID)
	if err != nil {
		return err
	}

	if group.IsAdmin(userID) {
		return fmt.Errorf("%w: admin cannot leave the group", ErrConflict)
	}

	group.Members = withoutMember(group.Members, userID)
	delete(group.Typing, userID)
	s.appendSystem(&group, userID, fmt.Sprintf("%s left the group", s.memberName(ctx, userID)))

	if err := s.repo.Save(ctx, &group); err != nil {
		return mapRepoError(err)
	}

	s.publishMembership(ctx, group, userID, userID, MembershipLeft)
	return nil
}

func (s *groupService) Update(ctx context.Context, groupID, adminID string, payload dto.GroupUpdateRequest) (dto.GroupResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GroupResponse{}, err
	}

	group, err := s.loadForAdmin(ctx, groupID, adminID, "update the group")
	if err != nil {
		return dto.GroupResponse{}, err
	}

	if payload.Name != nil {
		name := sanitizeText(s.sanitizer, *payload.Name)
		if name == "" {
			return dto.GroupResponse{}, fmt.Errorf("%w: group name is required", ErrValidation)
		}
		group.Name = name
	}
	if payload.Description != nil {
		group.Description = sanitizeText(s.sanitizer, *payload.Description)
	}
	if payload.Image != nil {
		group.Image = strings.TrimSpace(*payload.Image)
	}

	if err := s.repo.Save(ctx, &group); err != nil {
		return dto.GroupResponse{}, mapRepoError(err)
	}
	return dto.NewGroupResponse(group), nil
}

func (s *groupService) Delete(ctx context.Context, groupID, adminID string) error {
	if _, err := s.loadForAdmin(ctx, groupID, adminID, "delete the group"); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, groupID); err != nil {
		return mapRepoError(err)
	}

	s.rooms.CloseRoom(ctx, GroupRoom(groupID))
	s.logger.Info().Str("group_id", groupID).Msg("group deleted")
	return nil
}

func (s *groupService) load(ctx context.Context, groupID string) (models.Group, error) {
	group, err := s.repo.FindByID(ctx, groupID)
	if err != nil {
		return models.Group{}, mapRepoError(err)
	}
	return group, nil
}

func (s *groupService) loadForMember(ctx context.Context, groupID, userID string) (models.Group, error) {
	group, err := s.load(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if !group.IsMember(userID) {
		return models.Group{}, fmt.Errorf("%w: not a member of this group", ErrForbidden)
	}
	return group, nil
}

func (s *groupService) loadForAdmin(ctx context.Context, groupID, userID, action string) (models.Group, error) {
	group, err := s.load(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if !group.IsAdmin(userID) {
		return models.Group{}, fmt.Errorf("%w: only the admin can %s", ErrForbidden, action)
	}
	return group, nil
}

func (s *groupService) appendSystem(group *models.Group, actorID, content string) {
	at := s.now().UTC()
	group.Messages = append(group.Messages, models.Message{
		SenderID:  actorID,
		Content:   content,
		Type:      models.MessageTypeSystem,
		ReadBy:    []models.ReadReceipt{},
		CreatedAt: at,
		UpdatedAt: at,
	})
	group.LastMessage = content
	group.LastMessageAt = at
}

func (s *groupService) publishMembership(ctx context.Context, group models.Group, actorID, memberID, action string) {
	s.rooms.Publish(ctx, GroupRoom(group.ID.Hex()), EventMembership, actorID, map[string]interface{}{
		"action":  action,
		"user_id": memberID,
		"members": group.Members,
	})
	if action == MembershipRemoved || action == MembershipLeft {
		s.rooms.Evict(ctx, GroupRoom(group.ID.Hex()), memberID)
	}
}

func (s *groupService) memberName(ctx context.Context, userID string) string {
	snapshot, err := s.users.Snapshot(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to resolve member name")
		return "A member"
	}
	return fullName(snapshot)
}

func fullName(snapshot models.UserSnapshot) string {
	return strings.TrimSpace(snapshot.FirstName + " " + snapshot.LastName)
}

func withoutMember(members []string, userID string) []string {
	out := make([]string, 0, len(members))
	for _, id := range members {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}
