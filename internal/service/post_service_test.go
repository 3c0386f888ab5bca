package service

import (
	"context"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/social-go-api/internal/dto"
	"github.com/noah-isme/social-go-api/internal/models"
)

type postFixture struct {
	svc           PostService
	repo          *memoryPostRepo
	notifications *recordingDispatcher
}

func newPostFixture() *postFixture {
	users := newMemoryUsers(
		models.UserSnapshot{ID: "u1", FirstName: "Una", LastName: "One", Location: "Lisbon"},
		models.UserSnapshot{ID: "u2", FirstName: "Tomas", LastName: "Two"},
		models.UserSnapshot{ID: "u3", FirstName: "Thea", LastName: "Three"},
	)
	fx := &postFixture{repo: newMemoryPostRepo(), notifications: &recordingDispatcher{}}
	fx.svc = NewPostService(fx.repo, users, fx.notifications, nil, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	return fx
}

func (fx *postFixture) createPost(t *testing.T, userID string) dto.PostResponse {
	t.Helper()
	post, err := fx.svc.Create(context.Background(), userID, dto.PostCreateRequest{Description: "<b>Sunset</b> over the bay"}, nil)
	require.NoError(t, err)
	return post
}

func TestPostServiceCreateSnapshotsAuthor(t *testing.T) {
	fx := newPostFixture()

	post := fx.createPost(t, "u1")
	require.Equal(t, "Sunset over the bay", post.Description)
	require.Equal(t, "Una", post.Author.FirstName)
	require.Equal(t, "Lisbon", post.Location)
	require.Empty(t, post.Likes)
	require.Empty(t, post.Comments)

	_, err := fx.svc.Create(context.Background(), "ghost", dto.PostCreateRequest{Description: "hello"}, nil)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = fx.svc.Create(context.Background(), "u1", dto.PostCreateRequest{Description: "   "}, nil)
	require.ErrorIs(t, err, ErrValidation)

	feed, err := fx.svc.Feed(context.Background(), dto.PostListQuery{})
	require.NoError(t, err)
	require.Len(t, feed, 1)

	mine, err := fx.svc.ListByUser(context.Background(), "u2", dto.PostListQuery{})
	require.NoError(t, err)
	require.Empty(t, mine)
}

func TestPostServiceToggleLikeNotifiesOnlyOnLike(t *testing.T) {
	fx := newPostFixture()
	post := fx.createPost(t, "u1")
	ctx := context.Background()

	liked, err := fx.svc.ToggleLike(ctx, post.ID, "u2")
	require.NoError(t, err)
	require.True(t, liked.Liked)
	require.Equal(t, 1, liked.LikeCount)

	unliked, err := fx.svc.ToggleLike(ctx, post.ID, "u2")
	require.NoError(t, err)
	require.False(t, unliked.Liked)
	require.Equal(t, 0, unliked.LikeCount)

	calls := fx.notifications.ofType("like")
	require.Len(t, calls, 1)
	require.Equal(t, "u2", calls[0].SenderID)
	require.Equal(t, "u1", calls[0].RecipientID)
	require.Equal(t, post.ID, calls[0].Meta["postId"])
	require.Equal(t, "post", calls[0].Meta["postType"])

	_, err = fx.svc.ToggleLike(ctx, "0123456789abcdef01234567", "u2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostServiceCommentAndReplyNotifications(t *testing.T) {
	fx := newPostFixture()
	post := fx.createPost(t, "u1")
	ctx := context.Background()

	long := strings.Repeat("é", 80)
	comment, err := fx.svc.AddComment(ctx, post.ID, "u2", dto.CommentCreateRequest{Content: long})
	require.NoError(t, err)
	require.NotEmpty(t, comment.ID)
	require.Equal(t, "u2", comment.Author.UserID)

	commentCalls := fx.notifications.ofType("comment")
	require.Len(t, commentCalls, 1)
	require.Equal(t, "u1", commentCalls[0].RecipientID)
	require.Equal(t, comment.ID, commentCalls[0].Meta["commentId"])
	require.Equal(t, strings.Repeat("é", 50), commentCalls[0].Meta["commentPreview"])

	reply, err := fx.svc.Reply(ctx, post.ID, comment.ID, "u3", dto.CommentCreateRequest{Content: "agreed"})
	require.NoError(t, err)

	replyCalls := fx.notifications.ofType("reply")
	require.Len(t, replyCalls, 1)
	require.Equal(t, "u3", replyCalls[0].SenderID)
	require.Equal(t, "u2", replyCalls[0].RecipientID)
	require.Equal(t, reply.ID, replyCalls[0].Meta["replyId"])

	stored, err := fx.svc.Get(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.CommentCount)
	require.Len(t, stored.Comments[0].Replies, 1)
}

func TestPostServiceCommentThreadScenario(t *testing.T) {
	fx := newPostFixture()
	post := fx.createPost(t, "u1")
	ctx := context.Background()

	comment, err := fx.svc.AddComment(ctx, post.ID, "u2", dto.CommentCreateRequest{Content: "hi"})
	require.NoError(t, err)

	reply, err := fx.svc.Reply(ctx, post.ID, comment.ID, "u1", dto.CommentCreateRequest{Content: "thanks"})
	require.NoError(t, err)

	_, err = fx.svc.Reply(ctx, post.ID, reply.ID, "u3", dto.CommentCreateRequest{Content: "me too"})
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, fx.svc.DeleteComment(ctx, post.ID, comment.ID, "u3"), ErrNotFound)
	require.NoError(t, fx.svc.DeleteComment(ctx, post.ID, comment.ID, "u2"))

	stored, err := fx.svc.Get(ctx, post.ID)
	require.NoError(t, err)
	require.Empty(t, stored.Comments)
	require.Equal(t, 0, stored.CommentCount)
}

func TestPostServiceEditAndLikeComment(t *testing.T) {
	fx := newPostFixture()
	post := fx.createPost(t, "u1")
	ctx := context.Background()

	comment, err := fx.svc.AddComment(ctx, post.ID, "u2", dto.CommentCreateRequest{Content: "first"})
	require.NoError(t, err)

	_, err = fx.svc.EditComment(ctx, post.ID, comment.ID, "u3", dto.CommentUpdateRequest{Content: "hijack"})
	require.ErrorIs(t, err, ErrForbidden)

	edited, err := fx.svc.EditComment(ctx, post.ID, comment.ID, "u2", dto.CommentUpdateRequest{Content: "first, edited"})
	require.NoError(t, err)
	require.True(t, edited.Edited)
	require.Equal(t, "first, edited", edited.Content)

	like, err := fx.svc.ToggleCommentLike(ctx, post.ID, comment.ID, "u3")
	require.NoError(t, err)
	require.True(t, like.Liked)
	require.Equal(t, 1, like.LikeCount)

	like, err = fx.svc.ToggleCommentLike(ctx, post.ID, comment.ID, "u3")
	require.NoError(t, err)
	require.False(t, like.Liked)
	require.Equal(t, 0, like.LikeCount)
}

func TestPostServiceCreateWithPictureNeedsStorage(t *testing.T) {
	fx := newPostFixture()

	_, err := fx.svc.Create(context.Background(), "u1", dto.PostCreateRequest{}, imageHeader(t, "photo.png", pngBytes))
	require.ErrorIs(t, err, ErrMediaUnavailable)
}
