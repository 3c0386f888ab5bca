package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/social-go-api/internal/dto"
	"github.com/noah-isme/social-go-api/internal/observability"
	"github.com/noah-isme/social-go-api/internal/repository"
)

const (
	realtimeSendBufferSize = 32
	realtimePingInterval   = 30 * time.Second

	roomKindConversation = "conversation"
	roomKindGroup        = "group"
)

// Realtime event types pushed to room subscribers.
const (
	EventMessageCreated = "message.created"
	EventMessageUpdated = "message.updated"
	EventMessageDeleted = "message.deleted"
	EventMessagesRead   = "messages.read"
	EventTyping         = "typing"
	EventMembership     = "group.membership"
)

// ConversationRoom names the realtime room of a conversation.
func ConversationRoom(id string) string {
	return roomKindConversation + ":" + id
}

// GroupRoom names the realtime room of a group.
func GroupRoom(id string) string {
	return roomKindGroup + ":" + id
}

// RoomPublisher pushes events to everyone watching a room. Delivery is best-effort.
// Evict disconnects one user from a room and CloseRoom disconnects everyone, on
// every node.
type RoomPublisher interface {
	Publish(ctx context.Context, room, eventType, senderID string, payload interface{})
	Evict(ctx context.Context, room, userID string)
	CloseRoom(ctx context.Context, room string)
}

// RealtimeConnectionOptions wraps metadata extracted during the HTTP upgrade.
type RealtimeConnectionOptions struct {
	UserID        string
	Room          string
	CorrelationID string
	Context       context.Context
}

// RealtimeService manages websocket room connections for conversations and groups.
type RealtimeService interface {
	RoomPublisher
	Authorize(ctx context.Context, userID, room string) error
	ServeConnection(conn *websocket.Conn, opts RealtimeConnectionOptions)
	Start(ctx context.Context)
}

type realtimeService struct {
	conversations repository.ConversationRepository
	groups        repository.GroupRepository
	redis         *redis.Client
	redisStream   string
	nats          *nats.Conn
	natsSubject   string
	logger        zerolog.Logger
	tracer        trace.Tracer
	hub           *roomHub
	nodeID        string
	now           func() time.Time
}

type roomHub struct {
	mu    sync.RWMutex
	rooms map[string]map[*roomClient]struct{}
	log   zerolog.Logger
}

type roomClient struct {
	conn    *websocket.Conn
	send    chan dto.RealtimeEvent
	options RealtimeConnectionOptions
	service *realtimeService
	closed  chan struct{}
	once    sync.Once
}

type roomEnvelope struct {
	Source string            `json:"source"`
	Event  dto.RealtimeEvent `json:"event"`
	Evict  *roomEviction     `json:"evict,omitempty"`
}

// roomEviction removes UserID from Room, or every client when UserID is empty.
type roomEviction struct {
	Room   string `json:"room"`
	UserID string `json:"user_id,omitempty"`
}

type clientFrame struct {
	Type   string `json:"type"`
	Typing bool   `json:"typing"`
}

// NewRealtimeService creates the websocket room hub.
func NewRealtimeService(conversations repository.ConversationRepository, groups repository.GroupRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) RealtimeService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":rooms"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".rooms"
	}

	return &realtimeService{
		conversations: conversations,
		groups:        groups,
		redis:         redisClient,
		redisStream:   stream,
		nats:          natsConn,
		natsSubject:   subject,
		logger:        logger.With().Str("component", "realtime_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/social-go-api/internal/service/realtime"),
		hub: &roomHub{
			rooms: make(map[string]map[*roomClient]struct{}),
			log:   logger.With().Str("component", "room_hub").Logger(),
		},
		nodeID: uuid.NewString(),
		now:    time.Now,
	}
}

func (s *realtimeService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// Authorize checks that userID participates in the conversation or group behind room.
func (s *realtimeService) Authorize(ctx context.Context, userID, room string) error {
	kind, id, ok := strings.Cut(room, ":")
	if !ok || id == "" {
		return fmt.Errorf("%w: room must be conversation:<id> or group:<id>", ErrValidation)
	}

	switch kind {
	case roomKindConversation:
		conversation, err := s.conversations.FindByID(ctx, id)
		if err != nil {
			return mapRepoError(err)
		}
		if !conversation.HasParticipant(userID) {
			return fmt.Errorf("%w: not a participant", ErrForbidden)
		}
	case roomKindGroup:
		group, err := s.groups.FindByID(ctx, id)
		if err != nil {
			return mapRepoError(err)
		}
		if !group.IsMember(userID) {
			return fmt.Errorf("%w: not a member", ErrForbidden)
		}
	default:
		return fmt.Errorf("%w: unknown room kind %q", ErrValidation, kind)
	}
	return nil
}

func (s *realtimeService) ServeConnection(conn *websocket.Conn, opts RealtimeConnectionOptions) {
	if opts.Context == nil {
		opts.Context = context.Background()
	}

	client := &roomClient{
		conn:    conn,
		send:    make(chan dto.RealtimeEvent, realtimeSendBufferSize),
		options: opts,
		service: s,
		closed:  make(chan struct{}),
	}

	s.hub.register(client)

	go client.writer()
	client.reader()
}

func (s *realtimeService) Publish(ctx context.Context, room, eventType, senderID string, payload interface{}) {
	_, span := s.tracer.Start(ctx, "realtime.publish", trace.WithAttributes(
		attribute.String("realtime.room", room),
		attribute.String("realtime.event", eventType),
	))
	defer span.End()

	event := dto.RealtimeEvent{
		Type:     eventType,
		Room:     room,
		SenderID: senderID,
		SentAt:   s.now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			span.RecordError(err)
			s.logger.Warn().Err(err).Str("room", room).Msg("failed to encode realtime payload")
			return
		}
		event.Payload = raw
	}

	s.deliver(event, "local")
	if err := s.relay(ctx, roomEnvelope{Source: s.nodeID, Event: event}); err != nil {
		s.logger.Warn().Err(err).Str("room", room).Msg("failed to relay realtime event")
	}
}

func (s *realtimeService) Evict(ctx context.Context, room, userID string) {
	if userID == "" {
		return
	}
	s.evict(ctx, roomEviction{Room: room, UserID: userID})
}

func (s *realtimeService) CloseRoom(ctx context.Context, room string) {
	s.evict(ctx, roomEviction{Room: room})
}

func (s *realtimeService) evict(ctx context.Context, eviction roomEviction) {
	removed := s.hub.evict(eviction)
	if removed > 0 {
		s.logger.Info().Str("room", eviction.Room).Str("user_id", eviction.UserID).Int("clients", removed).Msg("realtime clients evicted")
	}
	if err := s.relay(ctx, roomEnvelope{Source: s.nodeID, Evict: &eviction}); err != nil {
		s.logger.Warn().Err(err).Str("room", eviction.Room).Msg("failed to relay realtime eviction")
	}
}

func (s *realtimeService) deliver(event dto.RealtimeEvent, source string) {
	s.hub.broadcast(event.Room, event)
	observability.RealtimeEvents().WithLabelValues(event.Type, source).Inc()
}

func (s *realtimeService) relay(ctx context.Context, envelope roomEnvelope) error {
	if (s.redis == nil || s.redisStream == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *realtimeService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("realtime redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload), "redis")
	}
}

func (s *realtimeService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data, "nats")
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats rooms subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain realtime nats subscription")
		}
	}()
}

func (s *realtimeService) handleEnvelope(data []byte, source string) {
	var envelope roomEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid realtime envelope")
		return
	}

	if envelope.Source == s.nodeID {
		return
	}

	if envelope.Evict != nil {
		s.hub.evict(*envelope.Evict)
		return
	}
	s.deliver(envelope.Event, source)
}

func (h *roomHub) register(client *roomClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := client.options.Room
	if _, exists := h.rooms[room]; !exists {
		h.rooms[room] = make(map[*roomClient]struct{})
	}
	h.rooms[room][client] = struct{}{}
	observability.RealtimeConnectionsActive().Inc()
	h.log.Debug().Str("room", room).Str("user_id", client.options.UserID).Msg("realtime client connected")
}

func (h *roomHub) unregister(client *roomClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := client.options.Room
	if clients, ok := h.rooms[room]; ok {
		if _, present := clients[client]; !present {
			return
		}
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
		observability.RealtimeConnectionsActive().Dec()
	}
	h.log.Debug().Str("room", room).Str("user_id", client.options.UserID).Msg("realtime client disconnected")
}

// evict closes the matching clients of a room and returns how many were closed.
func (h *roomHub) evict(eviction roomEviction) int {
	h.mu.RLock()
	var targets []*roomClient
	for client := range h.rooms[eviction.Room] {
		if eviction.UserID == "" || client.options.UserID == eviction.UserID {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	// close unregisters, which takes the write lock.
	for _, client := range targets {
		client.close()
	}
	return len(targets)
}

func (h *roomHub) broadcast(room string, event dto.RealtimeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[room] {
		select {
		case client.send <- event:
		default:
			h.log.Warn().Str("room", room).Str("user_id", client.options.UserID).Msg("dropping realtime event for slow client")
		}
	}
}

func (c *roomClient) reader() {
	defer c.close()

	for {
		var frame clientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.service.logger.Debug().Err(err).Msg("realtime read loop ended")
			return
		}

		select {
		case <-c.closed:
			return
		default:
		}

		switch frame.Type {
		case EventTyping:
			c.service.Publish(c.options.Context, c.options.Room, EventTyping, c.options.UserID, map[string]interface{}{
				"user_id": c.options.UserID,
				"typing":  frame.Typing,
			})
		default:
			c.service.logger.Debug().Str("type", frame.Type).Msg("ignoring realtime client frame")
		}
	}
}

func (c *roomClient) writer() {
	defer c.close()

	ticker := time.NewTicker(realtimePingInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-c.send:
			if err := c.conn.WriteJSON(event); err != nil {
				c.service.logger.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("realtime ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *roomClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.hub.unregister(c)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
