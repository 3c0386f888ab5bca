package dto

import (
	"time"

	"github.com/noah-isme/social-go-api/internal/models"
)

// PostCreateRequest is the payload for publishing a post.
type PostCreateRequest struct {
	Description string `json:"description" form:"description" validate:"omitempty,max=5000"`
}

// PostListQuery paginates post listings.
type PostListQuery struct {
	Limit int `query:"limit" validate:"omitempty,min=1,max=100"`
	Skip  int `query:"skip" validate:"omitempty,min=0"`
}

// CommentCreateRequest adds a comment or a reply.
type CommentCreateRequest struct {
	Content string `json:"content" validate:"required,min=1,max=2000"`
}

// CommentUpdateRequest edits a comment.
type CommentUpdateRequest struct {
	Content string `json:"content" validate:"required,min=1,max=2000"`
}

// AuthorResponse is the author snapshot stored with posts and comments.
type AuthorResponse struct {
	UserID      string `json:"user_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PicturePath string `json:"picture_path,omitempty"`
}

func newAuthorResponse(author models.AuthorSnapshot) AuthorResponse {
	return AuthorResponse{
		UserID:      author.UserID,
		FirstName:   author.FirstName,
		LastName:    author.LastName,
		PicturePath: author.PicturePath,
	}
}

// ReplyResponse is a serialized reply.
type ReplyResponse struct {
	ID        string         `json:"id"`
	Author    AuthorResponse `json:"author"`
	Content   string         `json:"content"`
	Likes     []string       `json:"likes"`
	LikeCount int            `json:"like_count"`
	Edited    bool           `json:"edited"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewReplyResponse converts a comment node into a DTO.
func NewReplyResponse(node models.CommentNode) ReplyResponse {
	return ReplyResponse{
		ID:        node.ID.Hex(),
		Author:    newAuthorResponse(node.Author),
		Content:   node.Content,
		Likes:     node.Likes.IDs(),
		LikeCount: node.Likes.Len(),
		Edited:    node.Edited,
		CreatedAt: node.CreatedAt,
		UpdatedAt: node.UpdatedAt,
	}
}

// CommentResponse is a serialized top-level comment with its replies.
type CommentResponse struct {
	ReplyResponse
	Replies []ReplyResponse `json:"replies"`
}

// NewCommentResponse converts a top-level comment into a DTO.
func NewCommentResponse(comment models.Comment) CommentResponse {
	replies := make([]ReplyResponse, 0, len(comment.Replies))
	for _, reply := range comment.Replies {
		replies = append(replies, NewReplyResponse(reply.CommentNode))
	}
	return CommentResponse{
		ReplyResponse: NewReplyResponse(comment.CommentNode),
		Replies:       replies,
	}
}

// PostResponse is a serialized post with its comment tree.
type PostResponse struct {
	ID           string            `json:"id"`
	Author       AuthorResponse    `json:"author"`
	Location     string            `json:"location,omitempty"`
	Description  string            `json:"description"`
	PicturePath  string            `json:"picture_path,omitempty"`
	Likes        []string          `json:"likes"`
	LikeCount    int               `json:"like_count"`
	Comments     []CommentResponse `json:"comments"`
	CommentCount int               `json:"comment_count"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewPostResponse converts a post aggregate into a DTO.
func NewPostResponse(post models.Post) PostResponse {
	comments := make([]CommentResponse, 0, len(post.Comments))
	total := 0
	for _, comment := range post.Comments {
		comments = append(comments, NewCommentResponse(comment))
		total += 1 + len(comment.Replies)
	}
	return PostResponse{
		ID:           post.ID.Hex(),
		Author:       newAuthorResponse(post.Author),
		Location:     post.Location,
		Description:  post.Description,
		PicturePath:  post.PicturePath,
		Likes:        post.Likes.IDs(),
		LikeCount:    post.Likes.Len(),
		Comments:     comments,
		CommentCount: total,
		CreatedAt:    post.CreatedAt,
		UpdatedAt:    post.UpdatedAt,
	}
}

// NewPostResponseSlice converts posts into DTOs.
func NewPostResponseSlice(posts []models.Post) []PostResponse {
	out := make([]PostResponse, 0, len(posts))
	for _, post := range posts {
		out = append(out, NewPostResponse(post))
	}
	return out
}

// LikeResponse reports the caller's like state after a toggle.
type LikeResponse struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"like_count"`
}
