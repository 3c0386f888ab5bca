package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/social-go-api/internal/dto"
	"github.com/noah-isme/social-go-api/internal/models"
)

type groupFixture struct {
	svc           GroupService
	repo          *memoryGroupRepo
	notifications *recordingDispatcher
	rooms         *recordingRooms
	clock         time.Time
}

func newGroupFixture() *groupFixture {
	users := newMemoryUsers(
		models.UserSnapshot{ID: "a", FirstName: "Amir", LastName: "Haddad"},
		models.UserSnapshot{ID: "b", FirstName: "Bea", LastName: "Lind"},
		models.UserSnapshot{ID: "c", FirstName: "Chen", LastName: "Wu"},
		models.UserSnapshot{ID: "d", FirstName: "Dara", LastName: "Quinn"},
	)
	fx := &groupFixture{
		repo:          newMemoryGroupRepo(),
		notifications: &recordingDispatcher{},
		rooms:         &recordingRooms{},
		clock:         time.Date(2024, 8, 12, 10, 0, 0, 0, time.UTC),
	}
	svc := NewGroupService(fx.repo, users, fx.notifications, fx.rooms, nil, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	svc.(*groupService).now = func() time.Time { return fx.clock }
	fx.svc = svc
	return fx
}

func (fx *groupFixture) create(t *testing.T) dto.GroupResponse {
	t.Helper()
	group, err := fx.svc.Create(context.Background(), "a", dto.GroupCreateRequest{
		Name:    "Climbers",
		Members: []string{"b", "c", "b", "a"},
	})
	require.NoError(t, err)
	return group
}

func systemEntries(group dto.GroupResponse) []dto.MessageResponse {
	var out []dto.MessageResponse
	for _, message := range group.Messages {
		if message.Type == string(models.MessageTypeSystem) {
			out = append(out, message)
		}
	}
	return out
}

func TestGroupCreate(t *testing.T) {
	fx := newGroupFixture()

	group := fx.create(t)
	require.Equal(t, "a", group.AdminID)
	require.Equal(t, []string{"a", "b", "c"}, group.Members)
	require.Len(t, group.Messages, 1)
	require.Equal(t, "Group created", group.Messages[0].Content)
	require.Equal(t, "Group created", group.LastMessage)

	invites := fx.notifications.ofType("group_invite")
	require.Len(t, invites, 2)
	require.Equal(t, "b", invites[0].RecipientID)
	require.Equal(t, "Climbers", invites[0].Meta["groupName"])
}

func TestGroupCreateValidation(t *testing.T) {
	fx := newGroupFixture()
	ctx := context.Background()

	_, err := fx.svc.Create(ctx, "a", dto.GroupCreateRequest{Name: "Pair", Members: []string{"b", "a"}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = fx.svc.Create(ctx, "a", dto.GroupCreateRequest{Name: "Ghosts", Members: []string{"b", "ghost"}})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = fx.svc.Create(ctx, "a", dto.GroupCreateRequest{Name: "<b></b>", Members: []string{"b", "c"}})
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, fx.repo.groups)
}

func TestGroupMembershipScenario(t *testing.T) {
	fx := newGroupFixture()
	ctx := context.Background()
	group := fx.create(t)

	updated, err := fx.svc.RemoveMember(ctx, group.ID, "a", "b")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, updated.Members)

	entries := systemEntries(updated)
	require.Len(t, entries, 2)
	require.Equal(t, "Bea Lind was removed from the group", entries[1].Content)
	require.Equal(t, EventMembership, fx.rooms.last().Type)
	require.Equal(t, []roomEviction{{Room: GroupRoom(group.ID), UserID: "b"}}, fx.rooms.evicted())

	_, err = fx.svc.RemoveMember(ctx, group.ID, "b", "c")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = fx.svc.Get(ctx, group.ID, "b")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestGroupMembershipConflicts(t *testing.T) {
	fx := newGroupFixture()
	ctx := context.Background()
	group := fx.create(t)

	_, err := fx.svc.AddMember(ctx, group.ID, "a", dto.GroupMemberRequest{UserID: "b"})
	require.ErrorIs(t, err, ErrConflict)

	_, err = fx.svc.AddMember(ctx, group.ID, "b", dto.GroupMemberRequest{UserID: "d"})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = fx.svc.RemoveMember(ctx, group.ID, "a", "a")
	require.ErrorIs(t, err, ErrConflict)

	_, err = fx.svc.RemoveMember(ctx, group.ID, "a", "d")
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, fx.svc.Leave(ctx, group.ID, "a"), ErrConflict)
}

func TestGroupAddMemberAndLeave(t *testing.T) {
	fx := newGroupFixture()
	ctx := context.Background()
	group := fx.create(t)

	updated, err := fx.svc.AddMember(ctx, group.ID, "a", dto.GroupMemberRequest{UserID: "d"})
	require.NoError(t, err)
	require.Contains(t, updated.Members, "d")
	require.Equal(t, "Dara Quinn was added to the group", updated.LastMessage)
	require.Len(t, fx.notifications.ofType("group_invite"), 3)

	require.NoError(t, fx.svc.Leave(ctx, group.ID, "c"))
	require.Equal(t, []roomEviction{{Room: GroupRoom(group.ID), UserID: "c"}}, fx.rooms.evicted())

	stored, err := fx.svc.Get(ctx, group.ID, "a")
	require.NoError(t, err)
	require.NotContains(t, stored.Members, "c")
	require.Equal(t, "Chen Wu left the group", stored.LastMessage)
}

func TestGroupMessagingAndUnread(t *testing.T) {
	fx := newGroupFixture()
	ctx := context.Background()
	group := fx.create(t)

	fx.clock = fx.clock.Add(time.Minute)
	message, err := fx.svc.Send(ctx, group.ID, "b", dto.MessageSendRequest{Content: "first pitch at 9", Type: "text"})
	require.NoError(t, err)
	require.Len(t, message.ReadBy, 1)
	require.Equal(t, "b", message.ReadBy[0].UserID)

	notified := fx.notifications.ofType("group_message")
	require.Len(t, notified, 2)

	summaries, err := fx.svc.List(ctx, "c")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, 1, summaries[0].UnreadCount)
	require.Equal(t, 3, summaries[0].MemberCount)

	result, err := fx.svc.MarkRead(ctx, group.ID, "c")
	require.NoError(t, err)
	require.Equal(t, 1, result.Marked)

	result, err = fx.svc.MarkRead(ctx, group.ID, "c")
	require.NoError(t, err)
	require.Equal(t, 0, result.Marked)

	_, err = fx.svc.Send(ctx, group.ID, "d", dto.MessageSendRequest{Content: "hi"})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestGroupSystemEntriesAreImmutable(t *testing.T) {
	fx := newGroupFixture()
	ctx := context.Background()
	group := fx.create(t)
	systemID := group.Messages[0].ID

	_, err := fx.svc.EditMessage(ctx, group.ID, systemID, "a", dto.MessageUpdateRequest{Content: "rewritten"})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = fx.svc.DeleteMessage(ctx, group.ID, systemID, "a")
	require.ErrorIs(t, err, ErrForbidden)

	message, err := fx.svc.Send(ctx, group.ID, "c", dto.MessageSendRequest{Content: "typo"})
	require.NoError(t, err)

	deleted, err := fx.svc.DeleteMessage(ctx, group.ID, message.ID, "c")
	require.NoError(t, err)
	require.True(t, deleted.Deleted)
}

func TestGroupTypingUpdateAndDelete(t *testing.T) {
	fx := newGroupFixture()
	ctx := context.Background()
	group := fx.create(t)

	require.NoError(t, fx.svc.SetTyping(ctx, group.ID, "c", true))
	stored, err := fx.svc.Get(ctx, group.ID, "a")
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, stored.Typing)

	name := "Boulderers"
	updated, err := fx.svc.Update(ctx, group.ID, "a", dto.GroupUpdateRequest{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Boulderers", updated.Name)

	_, err = fx.svc.Update(ctx, group.ID, "b", dto.GroupUpdateRequest{Name: &name})
	require.ErrorIs(t, err, ErrForbidden)

	require.ErrorIs(t, fx.svc.Delete(ctx, group.ID, "b"), ErrForbidden)
	require.Empty(t, fx.rooms.evicted())
	require.NoError(t, fx.svc.Delete(ctx, group.ID, "a"))
	require.Equal(t, []roomEviction{{Room: GroupRoom(group.ID)}}, fx.rooms.evicted())
	_, err = fx.svc.Get(ctx, group.ID, "a")
	require.ErrorIs(t, err, ErrNotFound)
}
