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

const commentPreviewRunes = 50

// PostService publishes posts and maintains their likes and comment trees.
type PostService interface {
	Create(ctx context.Context, userID string, payload dto.PostCreateRequest, picture *multipart.FileHeader) (dto.PostResponse, error)
	Feed(ctx context.Context, query dto.PostListQuery) ([]dto.PostResponse, error)
	ListByUser(ctx context.Context, userID string, query dto.PostListQuery) ([]dto.PostResponse, error)
	Get(ctx context.Context, postID string) (dto.PostResponse, error)
	ToggleLike(ctx context.Context, postID, userID string) (dto.LikeResponse, error)
	AddComment(ctx context.Context, postID, userID string, payload dto.CommentCreateRequest) (dto.CommentResponse, error)
	Reply(ctx context.Context, postID, commentID, userID string, payload dto.CommentCreateRequest) (dto.ReplyResponse, error)
	EditComment(ctx context.Context, postID, commentID, userID string, payload dto.CommentUpdateRequest) (dto.ReplyResponse, error)
	DeleteComment(ctx context.Context, postID, commentID, userID string) error
	ToggleCommentLike(ctx context.Context, postID, commentID, userID string) (dto.LikeResponse, error)
}

type postService struct {
	repo          repository.PostRepository
	users         UserDirectory
	notifications NotificationDispatcher
	media         MediaService
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewPostService constructs the post service. media may be nil when image
// storage is not configured.
func NewPostService(repo repository.PostRepository, users UserDirectory, notifications NotificationDispatcher, media MediaService, validate *validator.Validate, logger zerolog.Logger) PostService {
	return &postService{
		repo:          repo,
		users:         users,
		notifications: notifications,
		media:         media,
		validator:     validate,
		sanitizer:     bluemonday.StrictPolicy(),
		logger:        logger.With().Str("component", "post_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/social-go-api/internal/service/post"),
		now:           time.Now,
	}
}

func (s *postService) Create(ctx context.Context, userID string, payload dto.PostCreateRequest, picture *multipart.FileHeader) (dto.PostResponse, error) {
	ctx, span := s.tracer.Start(ctx, "post.create", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.PostResponse{}, err
	}

	author, err := s.users.Snapshot(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "author lookup failed")
		return dto.PostResponse{}, err
	}

	description := sanitizeText(s.sanitizer, payload.Description)
	if description == "" && picture == nil {
		return dto.PostResponse{}, fmt.Errorf("%w: description or picture is required", ErrValidation)
	}

	post := models.Post{
		Author:      author.Author(),
		Location:    author.Location,
		Description: description,
		Likes:       make(models.UserSet),
		Comments:    []models.Comment{},
		CreatedAt:   s.now().UTC(),
	}

	if picture != nil {
		if s.media == nil {
			return dto.PostResponse{}, ErrMediaUnavailable
		}
		url, err := s.media.UploadImage(ctx, picture, MediaPurposePost)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "picture upload failed")
			return dto.PostResponse{}, err
		}
		post.PicturePath = url
	}

	if err := s.repo.Create(ctx, &post); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return dto.PostResponse{}, err
	}

	span.SetAttributes(attribute.String("post.id", post.ID.Hex()))
	s.logger.Info().Str("post_id", post.ID.Hex()).Str("user_id", userID).Msg("post created")

	return dto.NewPostResponse(post), nil
}

func (s *postService) Feed(ctx context.Context, query dto.PostListQuery) ([]dto.PostResponse, error) {
	return s.list(ctx, repository.PostFilter{Limit: query.Limit, Skip: query.Skip}, query)
}

func (s *postService) ListByUser(ctx context.Context, userID string, query dto.PostListQuery) ([]dto.PostResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return s.list(ctx, repository.PostFilter{AuthorID: userID, Limit: query.Limit, Skip: query.Skip}, query)
}

func (s *postService) list(ctx context.Context, filter repository.PostFilter, query dto.PostListQuery) ([]dto.PostResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}
	posts, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return dto.NewPostResponseSlice(posts), nil
}

func (s *postService) Get(ctx context.Context, postID string) (dto.PostResponse, error) {
	post, err := s.repo.FindByID(ctx, postID)
	if err != nil {
		return dto.PostResponse{}, mapRepoError(err)
	}
	return dto.NewPostResponse(post), nil
}

func (s *postService) ToggleLike(ctx context.Context, postID, userID string) (dto.LikeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "post.toggle_like", trace.WithAttributes(
		attribute.String("post.id", postID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	post, err := s.repo.FindByID(ctx, postID)
	if err != nil {
		return dto.LikeResponse{}, s.fail(span, mapRepoError(err))
	}

	liked := post.Likes.Toggle(userID)
	if err := s.repo.Save(ctx, &post); err != nil {
		return dto.LikeResponse{}, s.fail(span, mapRepoError(err))
	}

	if liked {
		s.notifications.Dispatch(ctx, "like", userID, post.Author.UserID, models.Metadata{
			"postId":   post.ID.Hex(),
			"postType": "post",
		})
	}

	return dto.LikeResponse{Liked: liked, LikeCount: post.Likes.Len()}, nil
}

func (s *postService) AddComment(ctx context.Context, postID, userID string, payload dto.CommentCreateRequest) (dto.CommentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "post.add_comment", trace.WithAttributes(attribute.String("post.id", postID)))
	defer span.End()

	post, author, ref, err := s.insert(ctx, postID, nil, userID, payload)
	if err != nil {
		s.recordMutation("create", err)
		return dto.CommentResponse{}, s.fail(span, err)
	}
	s.recordMutation("create", nil)

	comment := post.Comments[ref.Index]
	s.notifications.DispatchFrom(ctx, "comment", author, post.Author.UserID, models.Metadata{
		"postId":         post.ID.Hex(),
		"commentId":      comment.ID.Hex(),
		"commentPreview": truncateRunes(comment.Content, commentPreviewRunes),
	})

	return dto.NewCommentResponse(comment), nil
}

func (s *postService) Reply(ctx context.Context, postID, commentID, userID string, payload dto.CommentCreateRequest) (dto.ReplyResponse, error) {
	ctx, span := s.tracer.Start(ctx, "post.reply", trace.WithAttributes(
		attribute.String("post.id", postID),
		attribute.String("comment.id", commentID),
	))
	defer span.End()

	post, author, ref, err := s.insert(ctx, postID, &commentID, userID, payload)
	if err != nil {
		s.recordMutation("reply", err)
		return dto.ReplyResponse{}, s.fail(span, err)
	}
	s.recordMutation("reply", nil)

	parent := post.Comments[ref.Index]
	reply := parent.Replies[ref.ReplyIndex]
	s.notifications.DispatchFrom(ctx, "reply", author, parent.Author.UserID, models.Metadata{
		"postId":    post.ID.Hex(),
		"commentId": parent.ID.Hex(),
		"replyId":   reply.ID.Hex(),
	})

	return dto.NewReplyResponse(reply.CommentNode), nil
}

// insert loads the post, appends the node and saves. The returned ref points
// at the node, which carries its id once saved.
func (s *postService) insert(ctx context.Context, postID string, parentID *string, userID string, payload dto.CommentCreateRequest) (models.Post, models.UserSnapshot, CommentRef, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Post{}, models.UserSnapshot{}, CommentRef{}, err
	}

	author, err := s.users.Snapshot(ctx, userID)
	if err != nil {
		return models.Post{}, models.UserSnapshot{}, CommentRef{}, err
	}

	post, err := s.repo.FindByID(ctx, postID)
	if err != nil {
		return models.Post{}, models.UserSnapshot{}, CommentRef{}, mapRepoError(err)
	}

	tree := NewCommentTree(&post, s.now)
	ref, err := tree.Insert(parentID, author.Author(), sanitizeText(s.sanitizer, payload.Content))
	if err != nil {
		return models.Post{}, models.UserSnapshot{}, CommentRef{}, err
	}

	if err := s.repo.Save(ctx, &post); err != nil {
		return models.Post{}, models.UserSnapshot{}, CommentRef{}, mapRepoError(err)
	}
	return post, author, ref, nil
}

func (s *postService) EditComment(ctx context.Context, postID, commentID, userID string, payload dto.CommentUpdateRequest) (dto.ReplyResponse, error) {
	ctx, span := s.tracer.Start(ctx, "post.edit_comment", trace.WithAttributes(attribute.String("comment.id", commentID)))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		s.recordMutation("edit", err)
		return dto.ReplyResponse{}, err
	}

	post, err := s.repo.FindByID(ctx, postID)
	if err != nil {
		return dto.ReplyResponse{}, s.fail(span, mapRepoError(err))
	}

	node, err := NewCommentTree(&post, s.now).Edit(commentID, userID, sanitizeText(s.sanitizer, payload.Content))
	if err != nil {
		s.recordMutation("edit", err)
		return dto.ReplyResponse{}, s.fail(span, err)
	}

	if err := s.repo.Save(ctx, &post); err != nil {
		return dto.ReplyResponse{}, s.fail(span, mapRepoError(err))
	}
	s.recordMutation("edit", nil)

	return dto.NewReplyResponse(*node), nil
}

func (s *postService) DeleteComment(ctx context.Context, postID, commentID, userID string) error {
	ctx, span := s.tracer.Start(ctx, "post.delete_comment", trace.WithAttributes(attribute.String("comment.id", commentID)))
	defer span.End()

	post, err := s.repo.FindByID(ctx, postID)
	if err != nil {
		return s.fail(span, mapRepoError(err))
	}

	if err := NewCommentTree(&post, s.now).Delete(commentID, userID); err != nil {
		s.recordMutation("delete", err)
		return s.fail(span, err)
	}

	if err := s.repo.Save(ctx, &post); err != nil {
		return s.fail(span, mapRepoError(err))
	}
	s.recordMutation("delete", nil)

	s.logger.Info().Str("post_id", postID).Str("comment_id", commentID).Msg("comment deleted")
	return nil
}

func (s *postService) ToggleCommentLike(ctx context.Context, postID, commentID, userID string) (dto.LikeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "post.toggle_comment_like", trace.WithAttributes(attribute.String("comment.id", commentID)))
	defer span.End()

	post, err := s.repo.FindByID(ctx, postID)
	if err != nil {
		return dto.LikeResponse{}, s.fail(span, mapRepoError(err))
	}

	liked, node, err := NewCommentTree(&post, s.now).ToggleLike(commentID, userID)
	if err != nil {
		s.recordMutation("like", err)
		return dto.LikeResponse{}, s.fail(span, err)
	}

	if err := s.repo.Save(ctx, &post); err != nil {
		return dto.LikeResponse{}, s.fail(span, mapRepoError(err))
	}
	s.recordMutation("like", nil)

	return dto.LikeResponse{Liked: liked, LikeCount: node.Likes.Len()}, nil
}

func (s *postService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (s *postService) recordMutation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.CommentMutations().WithLabelValues(operation, result).Inc()
}
