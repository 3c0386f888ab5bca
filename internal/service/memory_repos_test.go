package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/noah-isme/social-go-api/internal/dto"
	"github.com/noah-isme/social-go-api/internal/models"
	"github.com/noah-isme/social-go-api/internal/repository"
)

// clone round-trips a document through BSON so stored state never aliases
// the caller's slices and maps.
func clone[T any](in T) T {
	raw, err := bson.Marshal(in)
	if err != nil {
		panic(err)
	}
	var out T
	if err := bson.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

type memoryUsers struct {
	users map[string]models.UserSnapshot
}

func newMemoryUsers(users ...models.UserSnapshot) *memoryUsers {
	dir := &memoryUsers{users: make(map[string]models.UserSnapshot)}
	for _, user := range users {
		dir.users[user.ID] = user
	}
	return dir
}

func (m *memoryUsers) Snapshot(ctx context.Context, userID string) (models.UserSnapshot, error) {
	user, ok := m.users[userID]
	if !ok {
		return models.UserSnapshot{}, ErrNotFound
	}
	return user, nil
}

type dispatchCall struct {
	Type        string
	SenderID    string
	RecipientID string
	Meta        models.Metadata
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (r *recordingDispatcher) record(notificationType, senderID, recipientID string, meta models.Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, dispatchCall{Type: notificationType, SenderID: senderID, RecipientID: recipientID, Meta: meta})
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, notificationType, senderID, recipientID string, meta models.Metadata) *dto.NotificationResponse {
	r.record(notificationType, senderID, recipientID, meta)
	return nil
}

func (r *recordingDispatcher) DispatchFrom(ctx context.Context, notificationType string, sender models.UserSnapshot, recipientID string, meta models.Metadata) *dto.NotificationResponse {
	r.record(notificationType, sender.ID, recipientID, meta)
	return nil
}

func (r *recordingDispatcher) DispatchSystem(ctx context.Context, notificationType, recipientID string, meta models.Metadata) *dto.NotificationResponse {
	r.record(notificationType, "", recipientID, meta)
	return nil
}

func (r *recordingDispatcher) ofType(notificationType string) []dispatchCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dispatchCall
	for _, call := range r.calls {
		if call.Type == notificationType {
			out = append(out, call)
		}
	}
	return out
}

type publishedEvent struct {
	Room     string
	Type     string
	SenderID string
	Payload  interface{}
}

type recordingRooms struct {
	mu        sync.Mutex
	events    []publishedEvent
	evictions []roomEviction
}

func (r *recordingRooms) Publish(ctx context.Context, room, eventType, senderID string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, publishedEvent{Room: room, Type: eventType, SenderID: senderID, Payload: payload})
}

func (r *recordingRooms) Evict(ctx context.Context, room, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictions = append(r.evictions, roomEviction{Room: room, UserID: userID})
}

func (r *recordingRooms) CloseRoom(ctx context.Context, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictions = append(r.evictions, roomEviction{Room: room})
}

func (r *recordingRooms) evicted() []roomEviction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]roomEviction(nil), r.evictions...)
}

func (r *recordingRooms) last() publishedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return publishedEvent{}
	}
	return r.events[len(r.events)-1]
}

type memoryPostRepo struct {
	posts map[primitive.ObjectID]models.Post
	saves int
}

func newMemoryPostRepo() *memoryPostRepo {
	return &memoryPostRepo{posts: make(map[primitive.ObjectID]models.Post)}
}

func (r *memoryPostRepo) Create(ctx context.Context, post *models.Post) error {
	if post.Likes == nil {
		post.Likes = make(models.UserSet)
	}
	if post.Comments == nil {
		post.Comments = []models.Comment{}
	}
	post.AssignIDs()
	r.posts[post.ID] = clone(*post)
	return nil
}

func (r *memoryPostRepo) FindByID(ctx context.Context, id string) (models.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.Post{}, repository.ErrNotFound
	}
	post, ok := r.posts[oid]
	if !ok {
		return models.Post{}, repository.ErrNotFound
	}
	return clone(post), nil
}

func (r *memoryPostRepo) List(ctx context.Context, filter repository.PostFilter) ([]models.Post, error) {
	out := make([]models.Post, 0, len(r.posts))
	for _, post := range r.posts {
		if filter.AuthorID != "" && post.Author.UserID != filter.AuthorID {
			continue
		}
		out = append(out, clone(post))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryPostRepo) Save(ctx context.Context, post *models.Post) error {
	if _, ok := r.posts[post.ID]; !ok {
		return repository.ErrNotFound
	}
	post.AssignIDs()
	r.posts[post.ID] = clone(*post)
	r.saves++
	return nil
}

func (r *memoryPostRepo) Delete(ctx context.Context, id string) error {
	oid, _ := primitive.ObjectIDFromHex(id)
	if _, ok := r.posts[oid]; !ok {
		return repository.ErrNotFound
	}
	delete(r.posts, oid)
	return nil
}

type memoryConversationRepo struct {
	conversations map[primitive.ObjectID]models.Conversation
	saves         int
}

func newMemoryConversationRepo() *memoryConversationRepo {
	return &memoryConversationRepo{conversations: make(map[primitive.ObjectID]models.Conversation)}
}

func (r *memoryConversationRepo) Create(ctx context.Context, conversation *models.Conversation) error {
	if conversation.Presence == nil {
		conversation.Presence = map[string]models.Presence{}
	}
	if conversation.Messages == nil {
		conversation.Messages = []models.Message{}
	}
	conversation.AssignIDs()
	r.conversations[conversation.ID] = clone(*conversation)
	return nil
}

func (r *memoryConversationRepo) FindByID(ctx context.Context, id string) (models.Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.Conversation{}, repository.ErrNotFound
	}
	conversation, ok := r.conversations[oid]
	if !ok {
		return models.Conversation{}, repository.ErrNotFound
	}
	return clone(conversation), nil
}

func (r *memoryConversationRepo) FindBetween(ctx context.Context, userA, userB string) (models.Conversation, error) {
	for _, conversation := range r.conversations {
		if conversation.HasParticipant(userA) && conversation.HasParticipant(userB) {
			return clone(conversation), nil
		}
	}
	return models.Conversation{}, repository.ErrNotFound
}

func (r *memoryConversationRepo) ListByParticipant(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	out := make([]models.Conversation, 0)
	for _, conversation := range r.conversations {
		if conversation.HasParticipant(userID) {
			out = append(out, clone(conversation))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (r *memoryConversationRepo) Save(ctx context.Context, conversation *models.Conversation) error {
	if _, ok := r.conversations[conversation.ID]; !ok {
		return repository.ErrNotFound
	}
	conversation.AssignIDs()
	r.conversations[conversation.ID] = clone(*conversation)
	r.saves++
	return nil
}

func (r *memoryConversationRepo) Delete(ctx context.Context, id string) error {
	oid, _ := primitive.ObjectIDFromHex(id)
	if _, ok := r.conversations[oid]; !ok {
		return repository.ErrNotFound
	}
	delete(r.conversations, oid)
	return nil
}

type memoryGroupRepo struct {
	groups map[primitive.ObjectID]models.Group
}

func newMemoryGroupRepo() *memoryGroupRepo {
	return &memoryGroupRepo{groups: make(map[primitive.ObjectID]models.Group)}
}

func (r *memoryGroupRepo) Create(ctx context.Context, group *models.Group) error {
	group.AssignIDs()
	r.groups[group.ID] = clone(*group)
	return nil
}

func (r *memoryGroupRepo) FindByID(ctx context.Context, id string) (models.Group, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.Group{}, repository.ErrNotFound
	}
	group, ok := r.groups[oid]
	if !ok {
		return models.Group{}, repository.ErrNotFound
	}
	return clone(group), nil
}

func (r *memoryGroupRepo) ListByMember(ctx context.Context, userID string, limit int) ([]models.Group, error) {
	out := make([]models.Group, 0)
	for _, group := range r.groups {
		if group.IsMember(userID) {
			out = append(out, clone(group))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (r *memoryGroupRepo) Save(ctx context.Context, group *models.Group) error {
	if _, ok := r.groups[group.ID]; !ok {
		return repository.ErrNotFound
	}
	group.AssignIDs()
	r.groups[group.ID] = clone(*group)
	return nil
}

func (r *memoryGroupRepo) Delete(ctx context.Context, id string) error {
	oid, _ := primitive.ObjectIDFromHex(id)
	if _, ok := r.groups[oid]; !ok {
		return repository.ErrNotFound
	}
	delete(r.groups, oid)
	return nil
}

type memoryNotificationRepo struct {
	mu    sync.Mutex
	items []models.Notification
}

func sameOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *memoryNotificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if notification.ID.IsZero() {
		notification.ID = primitive.NewObjectID()
	}
	r.items = append(r.items, *notification)
	return nil
}

func (r *memoryNotificationRepo) FindDuplicate(ctx context.Context, key repository.DuplicateKey, since time.Time) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.RecipientID == key.RecipientID && item.Type == key.Type && !item.Read &&
			sameOptional(item.SenderID, key.SenderID) && sameOptional(item.RelatedPost, key.RelatedPost) &&
			!item.CreatedAt.Before(since) {
			return item, nil
		}
	}
	return models.Notification{}, repository.ErrNotFound
}

func (r *memoryNotificationRepo) Refresh(ctx context.Context, id string, message string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID.Hex() == id {
			r.items[i].Message = message
			r.items[i].CreatedAt = at
			r.items[i].UpdatedAt = at
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memoryNotificationRepo) List(ctx context.Context, filter repository.NotificationFilter) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Notification, 0)
	for _, item := range r.items {
		if item.RecipientID != filter.RecipientID || item.Dismissed {
			continue
		}
		if filter.Category != "" && string(item.Category) != filter.Category {
			continue
		}
		if filter.Priority != "" && string(item.Priority) != filter.Priority {
			continue
		}
		if filter.Read != nil && item.Read != *filter.Read {
			continue
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PriorityRank != out[j].PriorityRank {
			return out[i].PriorityRank > out[j].PriorityRank
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Skip >= len(out) {
		return []models.Notification{}, nil
	}
	out = out[filter.Skip:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, item := range r.items {
		if item.RecipientID == recipientID && !item.Read && !item.Dismissed {
			count++
		}
	}
	return count, nil
}

func (r *memoryNotificationRepo) CategoryCounts(ctx context.Context, recipientID string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int64)
	for _, item := range r.items {
		if item.RecipientID == recipientID && !item.Read && !item.Dismissed {
			counts[string(item.Category)]++
		}
	}
	return counts, nil
}

func (r *memoryNotificationRepo) Update(ctx context.Context, id, recipientID string, update repository.NotificationUpdate) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		item := &r.items[i]
		if item.ID.Hex() != id || item.RecipientID != recipientID {
			continue
		}
		if update.Read != nil {
			item.Read = *update.Read
		}
		if update.Clicked != nil {
			item.Clicked = *update.Clicked
		}
		if update.Dismissed != nil {
			item.Dismissed = *update.Dismissed
		}
		return *item, nil
	}
	return models.Notification{}, repository.ErrNotFound
}

func (r *memoryNotificationRepo) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for i := range r.items {
		if r.items[i].RecipientID == recipientID && !r.items[i].Read {
			r.items[i].Read = true
			count++
		}
	}
	return count, nil
}

func (r *memoryNotificationRepo) Delete(ctx context.Context, id, recipientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID.Hex() == id && r.items[i].RecipientID == recipientID {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memoryNotificationRepo) all() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.items...)
}
