package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuthorSnapshot is a copy of the author's profile taken when content is created.
type AuthorSnapshot struct {
	UserID      string `bson:"user_id" json:"user_id"`
	FirstName   string `bson:"first_name" json:"first_name"`
	LastName    string `bson:"last_name" json:"last_name"`
	PicturePath string `bson:"picture_path,omitempty" json:"picture_path,omitempty"`
}

// Post is the aggregate root holding likes and the two-tier comment tree.
type Post struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Author      AuthorSnapshot     `bson:"author" json:"author"`
	Location    string             `bson:"location,omitempty" json:"location,omitempty"`
	Description string             `bson:"description" json:"description"`
	PicturePath string             `bson:"picture_path,omitempty" json:"picture_path,omitempty"`
	Likes       UserSet            `bson:"likes" json:"likes"`
	Comments    []Comment          `bson:"comments" json:"comments"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// CommentNode holds the fields shared by top-level comments and replies.
type CommentNode struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Author    AuthorSnapshot     `bson:"author" json:"author"`
	Content   string             `bson:"content" json:"content"`
	Likes     UserSet            `bson:"likes" json:"likes"`
	Edited    bool               `bson:"edited" json:"edited"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Comment is a top-level comment on a post.
type Comment struct {
	CommentNode `bson:",inline"`
	Replies     []Reply `bson:"replies" json:"replies"`
}

// Reply is a comment attached to a top-level comment. Replies cannot hold replies.
type Reply struct {
	CommentNode `bson:",inline"`
}

// AssignIDs gives every node without an id a fresh one. Stores call it on save.
func (p *Post) AssignIDs() {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	for i := range p.Comments {
		if p.Comments[i].ID.IsZero() {
			p.Comments[i].ID = primitive.NewObjectID()
		}
		for j := range p.Comments[i].Replies {
			if p.Comments[i].Replies[j].ID.IsZero() {
				p.Comments[i].Replies[j].ID = primitive.NewObjectID()
			}
		}
	}
}

// Normalize repairs legacy documents: nil like sets, missing author names,
// missing timestamps and missing ids. It reports whether anything changed.
func (p *Post) Normalize(now time.Time) bool {
	changed := false
	if p.Likes == nil {
		p.Likes = make(UserSet)
		changed = true
	}
	fix := func(node *CommentNode) {
		if node.Likes == nil {
			node.Likes = make(UserSet)
			changed = true
		}
		if node.Author.FirstName == "" {
			node.Author.FirstName = "Unknown"
			changed = true
		}
		if node.Author.LastName == "" {
			node.Author.LastName = "User"
			changed = true
		}
		if node.Content == "" {
			node.Content = "[No content]"
			changed = true
		}
		if node.CreatedAt.IsZero() {
			node.CreatedAt = now
			changed = true
		}
		if node.UpdatedAt.IsZero() {
			node.UpdatedAt = node.CreatedAt
			changed = true
		}
		if node.ID.IsZero() {
			node.ID = primitive.NewObjectID()
			changed = true
		}
	}
	for i := range p.Comments {
		fix(&p.Comments[i].CommentNode)
		for j := range p.Comments[i].Replies {
			fix(&p.Comments[i].Replies[j].CommentNode)
		}
	}
	return changed
}
