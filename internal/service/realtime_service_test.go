package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/social-go-api/internal/dto"
	"github.com/noah-isme/social-go-api/internal/models"
)

type realtimeFixture struct {
	svc           *realtimeService
	conversations *memoryConversationRepo
	groups        *memoryGroupRepo
}

func newRealtimeFixture(t *testing.T, client *redis.Client) realtimeFixture {
	t.Helper()
	conversations := newMemoryConversationRepo()
	groups := newMemoryGroupRepo()
	svc := NewRealtimeService(conversations, groups, client, "social", nil, zerolog.Nop()).(*realtimeService)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	return realtimeFixture{svc: svc, conversations: conversations, groups: groups}
}

func (f realtimeFixture) join(room, userID string) *roomClient {
	client := &roomClient{
		send:    make(chan dto.RealtimeEvent, realtimeSendBufferSize),
		options: RealtimeConnectionOptions{UserID: userID, Room: room},
		service: f.svc,
		closed:  make(chan struct{}),
	}
	f.svc.hub.register(client)
	return client
}

func TestRealtimeAuthorizeChecksMembership(t *testing.T) {
	ctx := context.Background()
	f := newRealtimeFixture(t, nil)

	conversation := &models.Conversation{Participants: []string{"ana", "ben"}}
	require.NoError(t, f.conversations.Create(ctx, conversation))
	group := &models.Group{Name: "Hikers", AdminID: "ana", Members: []string{"ana", "ben", "cid"}}
	require.NoError(t, f.groups.Create(ctx, group))

	require.NoError(t, f.svc.Authorize(ctx, "ben", ConversationRoom(conversation.ID.Hex())))
	require.NoError(t, f.svc.Authorize(ctx, "cid", GroupRoom(group.ID.Hex())))

	require.ErrorIs(t, f.svc.Authorize(ctx, "cid", ConversationRoom(conversation.ID.Hex())), ErrForbidden)
	require.ErrorIs(t, f.svc.Authorize(ctx, "dan", GroupRoom(group.ID.Hex())), ErrForbidden)
	require.ErrorIs(t, f.svc.Authorize(ctx, "ana", GroupRoom("650000000000000000000000")), ErrNotFound)
	require.ErrorIs(t, f.svc.Authorize(ctx, "ana", "conversation:"), ErrValidation)
	require.ErrorIs(t, f.svc.Authorize(ctx, "ana", "lobby:1"), ErrValidation)
	require.ErrorIs(t, f.svc.Authorize(ctx, "ana", "plain"), ErrValidation)
}

func TestRealtimePublishReachesOnlyRoomMembers(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	inRoom := f.join("group:g1", "ana")
	otherRoom := f.join("group:g2", "ben")

	f.svc.Publish(context.Background(), "group:g1", EventTyping, "ana", map[string]interface{}{"typing": true})

	select {
	case event := <-inRoom.send:
		require.Equal(t, EventTyping, event.Type)
		require.Equal(t, "group:g1", event.Room)
		require.Equal(t, "ana", event.SenderID)
		require.JSONEq(t, `{"typing":true}`, string(event.Payload))
		require.Equal(t, f.svc.now(), event.SentAt)
	default:
		t.Fatal("room member did not receive event")
	}
	require.Empty(t, otherRoom.send)
}

func TestRealtimeHubDropsEventsForSlowClients(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	slow := f.join("conversation:c1", "ana")

	for i := 0; i < realtimeSendBufferSize+5; i++ {
		f.svc.Publish(context.Background(), "conversation:c1", EventMessageCreated, "ben", nil)
	}
	require.Len(t, slow.send, realtimeSendBufferSize)
}

func TestRealtimeUnregisterRemovesEmptyRooms(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	client := f.join("conversation:c1", "ana")

	f.svc.hub.unregister(client)
	f.svc.hub.unregister(client)

	f.svc.hub.mu.RLock()
	defer f.svc.hub.mu.RUnlock()
	require.NotContains(t, f.svc.hub.rooms, "conversation:c1")
}

func TestRealtimeEnvelopeFromSameNodeIsIgnored(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	client := f.join("group:g1", "ana")

	own, err := json.Marshal(roomEnvelope{Source: f.svc.nodeID, Event: dto.RealtimeEvent{Type: EventMessageCreated, Room: "group:g1"}})
	require.NoError(t, err)
	f.svc.handleEnvelope(own, "redis")
	require.Empty(t, client.send)

	foreign, err := json.Marshal(roomEnvelope{Source: "other-node", Event: dto.RealtimeEvent{Type: EventMessageDeleted, Room: "group:g1"}})
	require.NoError(t, err)
	f.svc.handleEnvelope(foreign, "nats")
	require.Len(t, client.send, 1)

	f.svc.handleEnvelope([]byte("not json"), "redis")
	require.Len(t, client.send, 1)
}

func TestRealtimeEventsRelayAcrossNodesThroughRedis(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA := newRealtimeFixture(t, redis.NewClient(&redis.Options{Addr: mini.Addr()}))
	nodeB := newRealtimeFixture(t, redis.NewClient(&redis.Options{Addr: mini.Addr()}))
	nodeB.svc.Start(ctx)

	require.Eventually(t, func() bool {
		return mini.PubSubNumSub("social:rooms")["social:rooms"] == 1
	}, 2*time.Second, 20*time.Millisecond)

	remote := nodeB.join("conversation:c1", "ben")
	nodeA.svc.Publish(ctx, "conversation:c1", EventMessagesRead, "ana", map[string]int{"marked": 2})

	select {
	case event := <-remote.send:
		require.Equal(t, EventMessagesRead, event.Type)
		require.JSONEq(t, `{"marked":2}`, string(event.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("room event was not relayed through redis")
	}
}

func requireClosed(t *testing.T, client *roomClient) {
	t.Helper()
	select {
	case <-client.closed:
	default:
		t.Fatalf("client %s is still connected", client.options.UserID)
	}
}

func requireOpen(t *testing.T, client *roomClient) {
	t.Helper()
	select {
	case <-client.closed:
		t.Fatalf("client %s was disconnected", client.options.UserID)
	default:
	}
}

func TestRealtimeEvictDisconnectsOnlyThatUser(t *testing.T) {
	ctx := context.Background()
	f := newRealtimeFixture(t, nil)
	ana := f.join("group:g1", "ana")
	ben := f.join("group:g1", "ben")
	benElsewhere := f.join("group:g2", "ben")

	f.svc.Evict(ctx, "group:g1", "ben")
	requireClosed(t, ben)
	requireOpen(t, ana)
	requireOpen(t, benElsewhere)

	f.svc.Publish(ctx, "group:g1", EventMessageCreated, "ana", nil)
	require.Len(t, ana.send, 1)
	require.Empty(t, ben.send)

	f.svc.Evict(ctx, "group:g1", "")
	requireOpen(t, ana)
}

func TestRealtimeCloseRoomDisconnectsEveryone(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	ana := f.join("conversation:c1", "ana")
	ben := f.join("conversation:c1", "ben")
	other := f.join("conversation:c2", "ana")

	f.svc.CloseRoom(context.Background(), "conversation:c1")
	requireClosed(t, ana)
	requireClosed(t, ben)
	requireOpen(t, other)

	f.svc.hub.mu.RLock()
	defer f.svc.hub.mu.RUnlock()
	require.NotContains(t, f.svc.hub.rooms, "conversation:c1")
	require.Contains(t, f.svc.hub.rooms, "conversation:c2")
}

func TestRealtimeEvictionEnvelopeFromOtherNode(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	ben := f.join("group:g1", "ben")

	own, err := json.Marshal(roomEnvelope{Source: f.svc.nodeID, Evict: &roomEviction{Room: "group:g1", UserID: "ben"}})
	require.NoError(t, err)
	f.svc.handleEnvelope(own, "redis")
	requireOpen(t, ben)

	foreign, err := json.Marshal(roomEnvelope{Source: "other-node", Evict: &roomEviction{Room: "group:g1", UserID: "ben"}})
	require.NoError(t, err)
	f.svc.handleEnvelope(foreign, "nats")
	requireClosed(t, ben)
	require.Empty(t, ben.send)
}

func TestRealtimeEvictionRelaysAcrossNodesThroughRedis(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA := newRealtimeFixture(t, redis.NewClient(&redis.Options{Addr: mini.Addr()}))
	nodeB := newRealtimeFixture(t, redis.NewClient(&redis.Options{Addr: mini.Addr()}))
	nodeB.svc.Start(ctx)

	require.Eventually(t, func() bool {
		return mini.PubSubNumSub("social:rooms")["social:rooms"] == 1
	}, 2*time.Second, 20*time.Millisecond)

	removed := nodeB.join("group:g1", "ben")
	staying := nodeB.join("group:g1", "cid")
	nodeA.svc.Evict(ctx, "group:g1", "ben")

	require.Eventually(t, func() bool {
		select {
		case <-removed.closed:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
	requireOpen(t, staying)
}

func TestRemovedGroupMemberStopsReceivingRoomEvents(t *testing.T) {
	ctx := context.Background()
	f := newRealtimeFixture(t, nil)
	users := newMemoryUsers(
		models.UserSnapshot{ID: "ana", FirstName: "Ana", LastName: "Ruiz"},
		models.UserSnapshot{ID: "ben", FirstName: "Ben", LastName: "Ito"},
		models.UserSnapshot{ID: "cid", FirstName: "Cid", LastName: "Moss"},
	)
	groups := NewGroupService(f.groups, users, &recordingDispatcher{}, f.svc, nil, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())

	group, err := groups.Create(ctx, "ana", dto.GroupCreateRequest{Name: "Hikers", Members: []string{"ben", "cid"}})
	require.NoError(t, err)
	room := GroupRoom(group.ID)
	require.NoError(t, f.svc.Authorize(ctx, "ben", room))
	ben := f.join(room, "ben")
	cid := f.join(room, "cid")

	_, err = groups.RemoveMember(ctx, group.ID, "ana", "ben")
	require.NoError(t, err)
	requireClosed(t, ben)
	require.ErrorIs(t, f.svc.Authorize(ctx, "ben", room), ErrForbidden)

	drain := len(ben.send)
	_, err = groups.Send(ctx, group.ID, "cid", dto.MessageSendRequest{Content: "summit at noon"})
	require.NoError(t, err)
	require.Len(t, ben.send, drain)
	require.NotEmpty(t, cid.send)

	require.NoError(t, groups.Delete(ctx, group.ID, "ana"))
	requireClosed(t, cid)
}
