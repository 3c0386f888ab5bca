package service

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/noah-isme/social-go-api/internal/models"
)

// CommentLevel tells which list of the two-tier tree holds a comment.
type CommentLevel int

const (
	// CommentLevelTop addresses post.Comments.
	CommentLevelTop CommentLevel = iota
	// CommentLevelReply addresses post.Comments[i].Replies.
	CommentLevelReply
)

// CommentRef points at a node inside a post's comment tree.
type CommentRef struct {
	Level      CommentLevel
	Index      int
	ReplyIndex int
}

// CommentTree mutates the comment forest of one loaded post in place. The
// caller persists the post afterwards; new nodes get their ids on save.
type CommentTree struct {
	post *models.Post
	now  func() time.Time
}

// NewCommentTree wraps a loaded post.
func NewCommentTree(post *models.Post, now func() time.Time) *CommentTree {
	if now == nil {
		now = time.Now
	}
	return &CommentTree{post: post, now: now}
}

// Insert appends a comment to the post, or a reply to the top-level comment
// parentID. Replies cannot be parents.
func (t *CommentTree) Insert(parentID *string, author models.AuthorSnapshot, content string) (CommentRef, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return CommentRef{}, fmt.Errorf("%w: comment content is required", ErrValidation)
	}

	at := t.now().UTC()
	node := models.CommentNode{
		Author:    author,
		Content:   content,
		Likes:     make(models.UserSet),
		CreatedAt: at,
		UpdatedAt: at,
	}

	if parentID == nil {
		t.post.Comments = append(t.post.Comments, models.Comment{CommentNode: node, Replies: []models.Reply{}})
		return CommentRef{Level: CommentLevelTop, Index: len(t.post.Comments) - 1, ReplyIndex: -1}, nil
	}

	ref, ok := t.Locate(*parentID)
	if !ok || ref.Level != CommentLevelTop {
		return CommentRef{}, fmt.Errorf("%w: parent comment %s", ErrNotFound, *parentID)
	}

	parent := &t.post.Comments[ref.Index]
	parent.Replies = append(parent.Replies, models.Reply{CommentNode: node})
	return CommentRef{Level: CommentLevelReply, Index: ref.Index, ReplyIndex: len(parent.Replies) - 1}, nil
}

// Locate searches the top level first and then one level of replies.
func (t *CommentTree) Locate(commentID string) (CommentRef, bool) {
	oid, err := primitive.ObjectIDFromHex(commentID)
	if err != nil || oid.IsZero() {
		return CommentRef{}, false
	}

	for i := range t.post.Comments {
		if t.post.Comments[i].ID == oid {
			return CommentRef{Level: CommentLevelTop, Index: i, ReplyIndex: -1}, true
		}
	}
	for i := range t.post.Comments {
		for j := range t.post.Comments[i].Replies {
			if t.post.Comments[i].Replies[j].ID == oid {
				return CommentRef{Level: CommentLevelReply, Index: i, ReplyIndex: j}, true
			}
		}
	}
	return CommentRef{}, false
}

// Node returns the shared fields of the referenced comment.
func (t *CommentTree) Node(ref CommentRef) *models.CommentNode {
	if ref.Level == CommentLevelReply {
		return &t.post.Comments[ref.Index].Replies[ref.ReplyIndex].CommentNode
	}
	return &t.post.Comments[ref.Index].CommentNode
}

// Parent returns the top-level comment holding a reply, or the comment itself.
func (t *CommentTree) Parent(ref CommentRef) *models.Comment {
	return &t.post.Comments[ref.Index]
}

// Edit replaces the content of a comment owned by authorID.
func (t *CommentTree) Edit(commentID, authorID, content string) (*models.CommentNode, error) {
	ref, ok := t.Locate(commentID)
	if !ok {
		return nil, fmt.Errorf("%w: comment %s", ErrNotFound, commentID)
	}

	node := t.Node(ref)
	if node.Author.UserID != authorID {
		return nil, fmt.Errorf("%w: comment belongs to another user", ErrForbidden)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: comment content is required", ErrValidation)
	}

	node.Content = content
	node.UpdatedAt = t.now().UTC()
	node.Edited = true
	return node, nil
}

// Delete removes a comment only when both the id and the author match.
// Removing a top-level comment removes its replies with it.
func (t *CommentTree) Delete(commentID, authorID string) error {
	ref, ok := t.Locate(commentID)
	if !ok || t.Node(ref).Author.UserID != authorID {
		return fmt.Errorf("%w: comment %s", ErrNotFound, commentID)
	}

	if ref.Level == CommentLevelTop {
		t.post.Comments = append(t.post.Comments[:ref.Index], t.post.Comments[ref.Index+1:]...)
		return nil
	}

	parent := &t.post.Comments[ref.Index]
	parent.Replies = append(parent.Replies[:ref.ReplyIndex], parent.Replies[ref.ReplyIndex+1:]...)
	return nil
}

// ToggleLike flips userID's membership in the comment's like set and reports
// whether the user now likes it.
func (t *CommentTree) ToggleLike(commentID, userID string) (bool, *models.CommentNode, error) {
	ref, ok := t.Locate(commentID)
	if !ok {
		return false, nil, fmt.Errorf("%w: comment %s", ErrNotFound, commentID)
	}

	node := t.Node(ref)
	liked := node.Likes.Toggle(userID)
	return liked, node, nil
}
