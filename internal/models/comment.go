package models

import (
	"time"
)

// Comment is one node of a post's comment tree. Replies are ordered by the
// server and nest recursively.
type Comment struct {
	ID             int        `json:"id"`
	PostID         int        `json:"post"`
	ParentID       *int       `json:"parent"` // nil for top-level comments
	AuthorID       int        `json:"author"`
	AuthorUsername string     `json:"author_username"`
	Text           string     `json:"text"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at"`
	IsEdited       bool       `json:"is_edited"`
	Votes          int        `json:"votes"`
	UserVote       VoteValue  `json:"user_vote"`
	Replies        []*Comment `json:"replies"`
}

// CommentInput is the body of comments/ (create) and comments/{id}/ (edit)
type CommentInput struct {
	PostID   int    `json:"post,omitempty"`
	Text     string `json:"text"`
	ParentID *int   `json:"parent"`
}
