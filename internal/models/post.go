package models

import (
	"time"
)

// Post is a Katha as served by posts/ and posts/{id}/.
type Post struct {
	ID             int        `json:"id"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	AuthorID       int        `json:"author"`
	AuthorUsername string     `json:"author_username"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at"`
	IsEdited       bool       `json:"is_edited"`
	Votes          int        `json:"votes"`
	UserVote       VoteValue  `json:"user_vote"`
	CommentCount   int        `json:"comment_count"` // Top-level comments only
	Comments       []*Comment `json:"comments,omitempty"`
	IsSaved        bool       `json:"is_saved"`
}

// PostInput is the body for creating or editing a post
type PostInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// SaveResult is returned by posts/{id}/save/
type SaveResult struct {
	IsSaved bool  `json:"is_saved"`
	Post    *Post `json:"post,omitempty"`
}

// Sort orders understood by the posts/ listing
const (
	SortNewest       = "newest"
	SortOldest       = "oldest"
	SortMostVoted    = "most_voted"
	SortMostComments = "most_comments"
	SortTrending     = "trending"
)

// PostQuery carries the optional filters of the posts/ listing
type PostQuery struct {
	Sort     string
	Author   string
	DateFrom string // ISO date or timestamp, passed through verbatim
	DateTo   string
}

// ValidSort reports whether s is one of the server's sort keys.
func ValidSort(s string) bool {
	switch s {
	case SortNewest, SortOldest, SortMostVoted, SortMostComments, SortTrending:
		return true
	}
	return false
}
