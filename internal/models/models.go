package models

import (
	"time"
)

// Notification is an entry of notifications/
type Notification struct {
	ID               int       `json:"id"`
	NotificationType string    `json:"notification_type"`
	PostID           *int      `json:"post_id"`
	PostTitle        string    `json:"post_title"`
	CommentID        *int      `json:"comment_id"`
	CommentText      string    `json:"comment_text"`
	ActorUsername    string    `json:"actor_username"`
	Read             bool      `json:"read"`
	CreatedAt        time.Time `json:"created_at"`
}

// Notification types emitted by the server
const (
	NotificationComment = "comment"
	NotificationReply   = "reply"
)

// UnreadCount is returned by notifications/unread_count/
type UnreadCount struct {
	Count int `json:"count"`
}

// Feedback is the body of feedback/
type Feedback struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
}

// Feedback types accepted by feedback/
var FeedbackTypes = []string{"general", "bug", "feature", "improvement", "other"}

// Draft is an unsent post kept only on this machine
type Draft struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (d Draft) Empty() bool {
	return d.Title == "" && d.Content == ""
}
