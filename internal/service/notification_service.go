package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
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
	notificationBufferSize         = 16
	defaultNotificationDedupWindow = 24 * time.Hour
)

// UserDirectory resolves user ids to snapshots.
type UserDirectory interface {
	Snapshot(ctx context.Context, userID string) (models.UserSnapshot, error)
}

// NotificationDispatcher creates notifications as a side effect of other
// actions. Dispatch never fails the caller: it returns nil when nothing was
// delivered and logs the cause.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, notificationType, senderID, recipientID string, meta models.Metadata) *dto.NotificationResponse
	DispatchFrom(ctx context.Context, notificationType string, sender models.UserSnapshot, recipientID string, meta models.Metadata) *dto.NotificationResponse
	DispatchSystem(ctx context.Context, notificationType, recipientID string, meta models.Metadata) *dto.NotificationResponse
}

// NotificationService manages the notification feed and streams new entries to subscribers via SSE.
type NotificationService interface {
	NotificationDispatcher
	BulkDispatch(ctx context.Context, payload dto.NotificationBulkRequest) (dto.NotificationBulkResponse, error)
	List(ctx context.Context, recipientID string, query dto.NotificationListQuery) (dto.NotificationFeedResponse, error)
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, id, recipientID string) (dto.NotificationResponse, error)
	MarkClicked(ctx context.Context, id, recipientID string) (dto.NotificationResponse, error)
	Dismiss(ctx context.Context, id, recipientID string) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, id, recipientID string) error
	Subscribe(userID string) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

type notificationService struct {
	repo        repository.NotificationRepository
	users       UserDirectory
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	dedupWindow time.Duration
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	broker      *notificationBroker
	nodeID      string
	now         func() time.Time
}

type notificationEvent struct {
	Source       string                   `json:"source"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

type notificationBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan dto.NotificationResponse]struct{}
}

// NewNotificationService constructs a notification service. A zero dedupWindow uses 24 hours.
func NewNotificationService(repo repository.NotificationRepository, users UserDirectory, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, dedupWindow time.Duration, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":notifications"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".notifications"
	}
	if dedupWindow <= 0 {
		dedupWindow = defaultNotificationDedupWindow
	}

	return &notificationService{
		repo:        repo,
		users:       users,
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		dedupWindow: dedupWindow,
		validator:   validate,
		logger:      logger.With().Str("component", "notification_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/social-go-api/internal/service/notification"),
		broker: &notificationBroker{
			subscribers: make(map[string]map[chan dto.NotificationResponse]struct{}),
		},
		nodeID: uuid.NewString(),
		now:    time.Now,
	}
}

func (s *notificationService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *notificationService) Dispatch(ctx context.Context, notificationType, senderID, recipientID string, meta models.Metadata) *dto.NotificationResponse {
	if senderID == "" {
		s.logger.Warn().Str("type", notificationType).Str("recipient_id", recipientID).Msg("notification skipped: empty sender id")
		observability.NotificationsDispatched().WithLabelValues(notificationType, "failed").Inc()
		return nil
	}
	if senderID == recipientID {
		observability.NotificationsDispatched().WithLabelValues(notificationType, "skipped").Inc()
		return nil
	}

	sender, err := s.users.Snapshot(ctx, senderID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("type", notificationType).
			Str("sender_id", senderID).
			Str("recipient_id", recipientID).
			Msg("notification skipped: sender not resolved")
		observability.NotificationsDispatched().WithLabelValues(notificationType, "failed").Inc()
		return nil
	}

	return s.dispatch(ctx, notificationType, &sender, recipientID, meta)
}

func (s *notificationService) DispatchFrom(ctx context.Context, notificationType string, sender models.UserSnapshot, recipientID string, meta models.Metadata) *dto.NotificationResponse {
	return s.dispatch(ctx, notificationType, &sender, recipientID, meta)
}

func (s *notificationService) DispatchSystem(ctx context.Context, notificationType, recipientID string, meta models.Metadata) *dto.NotificationResponse {
	return s.dispatch(ctx, notificationType, nil, recipientID, meta)
}

func (s *notificationService) dispatch(ctx context.Context, notificationType string, sender *models.UserSnapshot, recipientID string, meta models.Metadata) *dto.NotificationResponse {
	if sender != nil && sender.ID == recipientID {
		observability.NotificationsDispatched().WithLabelValues(notificationType, "skipped").Inc()
		return nil
	}

	attrs := []attribute.KeyValue{
		attribute.String("notification.type", notificationType),
		attribute.String("notification.recipient_id", recipientID),
	}
	spanCtx, span := s.tracer.Start(ctx, "notifications.dispatch", trace.WithAttributes(attrs...))
	defer span.End()

	logger := s.logger.With().Str("type", notificationType).Str("recipient_id", recipientID).Logger()

	now := s.now().UTC()
	candidate, err := BuildNotification(notificationType, sender, recipientID, meta, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		logger.Warn().Err(err).Msg("notification not built")
		observability.NotificationsDispatched().WithLabelValues(notificationType, "failed").Inc()
		return nil
	}

	key := repository.DuplicateKey{
		RecipientID: recipientID,
		SenderID:    candidate.SenderID,
		Type:        notificationType,
		RelatedPost: candidate.RelatedPost,
	}

	outcome := "created"
	existing, err := s.repo.FindDuplicate(spanCtx, key, now.Add(-s.dedupWindow))
	switch {
	case err == nil:
		if err := s.repo.Refresh(spanCtx, existing.ID.Hex(), candidate.Message, now); err != nil {
			span.RecordError(err)
			logger.Warn().Err(err).Msg("failed to refresh duplicate notification")
			observability.NotificationsDispatched().WithLabelValues(notificationType, "failed").Inc()
			return nil
		}
		existing.Message = candidate.Message
		existing.CreatedAt = now
		existing.UpdatedAt = now
		candidate = existing
		outcome = "coalesced"
	case errors.Is(err, repository.ErrNotFound):
		if err := s.repo.Create(spanCtx, &candidate); err != nil {
			span.RecordError(err)
			logger.Warn().Err(err).Msg("failed to persist notification")
			observability.NotificationsDispatched().WithLabelValues(notificationType, "failed").Inc()
			return nil
		}
	default:
		span.RecordError(err)
		logger.Warn().Err(err).Msg("duplicate lookup failed")
		observability.NotificationsDispatched().WithLabelValues(notificationType, "failed").Inc()
		return nil
	}

	response := dto.NewNotificationResponse(candidate)
	s.broadcast(response, "local")
	if err := s.publish(spanCtx, response); err != nil {
		logger.Warn().Err(err).Msg("failed to publish notification to broker")
	}

	observability.NotificationsDispatched().WithLabelValues(notificationType, outcome).Inc()
	span.SetAttributes(attribute.String("notification.outcome", outcome))

	return &response
}

func (s *notificationService) BulkDispatch(ctx context.Context, payload dto.NotificationBulkRequest) (dto.NotificationBulkResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationBulkResponse{}, err
	}
	tmpl, ok := notificationTemplates[payload.Type]
	if !ok {
		return dto.NotificationBulkResponse{}, fmt.Errorf("%w: %s", ErrUnknownNotificationType, payload.Type)
	}
	if !tmpl.senderOptional {
		return dto.NotificationBulkResponse{}, fmt.Errorf("%w: %s requires a sender and cannot be sent in bulk", ErrInvalidSender, payload.Type)
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.bulk_dispatch", trace.WithAttributes(
		attribute.String("notification.type", payload.Type),
		attribute.Int("notification.recipients", len(payload.UserIDs)),
	))
	defer span.End()

	seen := make(map[string]struct{}, len(payload.UserIDs))
	result := dto.NotificationBulkResponse{}
	for _, recipientID := range payload.UserIDs {
		if _, dup := seen[recipientID]; dup {
			continue
		}
		seen[recipientID] = struct{}{}
		result.Requested++

		if s.DispatchSystem(spanCtx, payload.Type, recipientID, models.Metadata(payload.Metadata)) != nil {
			result.Delivered++
		}
	}

	s.logger.Info().
		Str("type", payload.Type).
		Int("requested", result.Requested).
		Int("delivered", result.Delivered).
		Msg("bulk notification dispatched")

	return result, nil
}

func (s *notificationService) List(ctx context.Context, recipientID string, query dto.NotificationListQuery) (dto.NotificationFeedResponse, error) {
	if strings.TrimSpace(recipientID) == "" {
		return dto.NotificationFeedResponse{}, fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if err := s.validator.Struct(query); err != nil {
		return dto.NotificationFeedResponse{}, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.list", trace.WithAttributes(
		attribute.String("notification.recipient_id", recipientID),
	))
	defer span.End()

	items, err := s.repo.List(spanCtx, repository.NotificationFilter{
		RecipientID: recipientID,
		Category:    query.Category,
		Priority:    query.Priority,
		Read:        query.Read,
		Limit:       limit,
		Skip:        query.Skip,
	})
	if err != nil {
		span.RecordError(err)
		return dto.NotificationFeedResponse{}, err
	}

	unread, err := s.repo.CountUnread(spanCtx, recipientID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationFeedResponse{}, err
	}

	counts, err := s.repo.CategoryCounts(spanCtx, recipientID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationFeedResponse{}, err
	}

	return dto.NotificationFeedResponse{
		Notifications:  dto.NewNotificationResponseSlice(items),
		UnreadCount:    unread,
		CategoryCounts: counts,
		Limit:          limit,
		Skip:           query.Skip,
	}, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	return s.repo.CountUnread(ctx, recipientID)
}

func (s *notificationService) MarkRead(ctx context.Context, id, recipientID string) (dto.NotificationResponse, error) {
	read := true
	return s.update(ctx, "notifications.mark_read", id, recipientID, repository.NotificationUpdate{Read: &read})
}

func (s *notificationService) MarkClicked(ctx context.Context, id, recipientID string) (dto.NotificationResponse, error) {
	flag := true
	return s.update(ctx, "notifications.mark_clicked", id, recipientID, repository.NotificationUpdate{Read: &flag, Clicked: &flag})
}

func (s *notificationService) Dismiss(ctx context.Context, id, recipientID string) (dto.NotificationResponse, error) {
	flag := true
	return s.update(ctx, "notifications.dismiss", id, recipientID, repository.NotificationUpdate{Read: &flag, Dismissed: &flag})
}

func (s *notificationService) update(ctx context.Context, spanName, id, recipientID string, update repository.NotificationUpdate) (dto.NotificationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("notification.id", id),
		attribute.String("notification.recipient_id", recipientID),
	))
	defer span.End()

	notification, err := s.repo.Update(spanCtx, id, recipientID, update)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, mapRepoError(err)
	}
	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, recipientID)
}

func (s *notificationService) Delete(ctx context.Context, id, recipientID string) error {
	return mapRepoError(s.repo.Delete(ctx, id, recipientID))
}

func (s *notificationService) Subscribe(userID string) (<-chan dto.NotificationResponse, func()) {
	channel := make(chan dto.NotificationResponse, notificationBufferSize)

	s.broker.subscribe(userID, channel)
	observability.SSEClientsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.broker.unsubscribe(userID, channel)
			observability.SSEClientsActive().Dec()
		})
	}

	return channel, cleanup
}

func (s *notificationService) broadcast(notification dto.NotificationResponse, source string) {
	if s.broker.broadcast(notification.RecipientID, notification) > 0 {
		observability.NotificationsFannedOut().WithLabelValues(source).Inc()
	}
}

func (s *notificationService) publish(ctx context.Context, notification dto.NotificationResponse) error {
	if (s.redis == nil || s.redisStream == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	event := notificationEvent{
		Source:       s.nodeID,
		Notification: notification,
		SentAt:       s.now().UTC(),
	}

	payload, err := json.Marshal(event)
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

func (s *notificationService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("notification redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload), "redis")
	}
}

func (s *notificationService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data, "nats")
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats notifications subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain notification nats subscription")
		}
	}()
}

func (s *notificationService) handleEvent(payload []byte, source string) {
	var event notificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification event payload")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	s.broadcast(event.Notification, source)
}

func (b *notificationBroker) subscribe(userID string, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[userID]; !exists {
		b.subscribers[userID] = make(map[chan dto.NotificationResponse]struct{})
	}
	b.subscribers[userID][ch] = struct{}{}
}

func (b *notificationBroker) unsubscribe(userID string, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[userID]; ok {
		if _, present := subscribers[ch]; !present {
			return
		}
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, userID)
		}
	}
}

// broadcast delivers without blocking and returns the number of subscribers reached.
func (b *notificationBroker) broadcast(userID string, notification dto.NotificationResponse) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for ch := range b.subscribers[userID] {
		select {
		case ch <- notification:
			delivered++
		default:
		}
	}
	return delivered
}
