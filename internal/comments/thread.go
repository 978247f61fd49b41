package comments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"katha/internal/confirm"
	"katha/internal/models"
	"katha/internal/utils"
)

// API is the slice of *api.Client a thread needs.
type API interface {
	CreateComment(ctx context.Context, in models.CommentInput) (*models.Comment, error)
	UpdateComment(ctx context.Context, id int, text string) (*models.Comment, error)
	DeleteComment(ctx context.Context, id int) error
}

// Auth reports whether a session is active.
type Auth interface {
	IsLoggedIn() bool
}

// Refetcher reloads the post that owns the tree.
type Refetcher interface {
	Refetch(ctx context.Context) error
}

// RefetchFunc adapts a function to Refetcher.
type RefetchFunc func(ctx context.Context) error

func (f RefetchFunc) Refetch(ctx context.Context) error { return f(ctx) }

// Thread runs comment mutations for one post. Each successful mutation
// triggers exactly one refetch; a failed one triggers none.
type Thread struct {
	postID  int
	api     API
	auth    Auth
	guard   *confirm.Guard
	refetch Refetcher
	logger  *slog.Logger
}

func NewThread(postID int, api API, auth Auth, guard *confirm.Guard, refetch Refetcher, logger *slog.Logger) *Thread {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Thread{
		postID:  postID,
		api:     api,
		auth:    auth,
		guard:   guard,
		refetch: refetch,
		logger:  logger.With("post", postID),
	}
}

// Add posts a top-level comment.
func (t *Thread) Add(ctx context.Context, text string) error {
	return t.create(ctx, text, nil)
}

// Reply posts a reply under parentID.
func (t *Thread) Reply(ctx context.Context, parentID int, text string) error {
	return t.create(ctx, text, &parentID)
}

func (t *Thread) create(ctx context.Context, text string, parent *int) error {
	if !t.auth.IsLoggedIn() {
		if parent != nil {
			return utils.NewNotLoggedInError("reply")
		}
		return utils.NewNotLoggedInError("comment")
	}
	if strings.TrimSpace(text) == "" {
		return utils.NewEmptyTextError("Comment")
	}

	c, err := t.api.CreateComment(ctx, models.CommentInput{PostID: t.postID, Text: text, ParentID: parent})
	if err != nil {
		t.logger.Warn("adding comment failed", "parent", parent, "error", err)
		return err
	}
	t.logger.Debug("comment added", "comment", c.ID)
	return t.refetch.Refetch(ctx)
}

// Edit replaces the text of comment id. On failure the caller keeps the old text.
func (t *Thread) Edit(ctx context.Context, id int, text string) error {
	if !t.auth.IsLoggedIn() {
		return utils.NewNotLoggedInError("edit comments")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return utils.NewEmptyTextError("Comment")
	}

	if _, err := t.api.UpdateComment(ctx, id, text); err != nil {
		t.logger.Warn("editing comment failed", "comment", id, "error", err)
		return err
	}
	return t.refetch.Refetch(ctx)
}

// Delete removes comment id after confirmation.
func (t *Thread) Delete(ctx context.Context, id int) error {
	if !t.auth.IsLoggedIn() {
		return utils.NewNotLoggedInError("delete comments")
	}
	prompt := fmt.Sprintf("Delete comment #%d? This cannot be undone.", id)
	return t.guard.Run(ctx, prompt, func(ctx context.Context) error {
		if err := t.api.DeleteComment(ctx, id); err != nil {
			t.logger.Warn("deleting comment failed", "comment", id, "error", err)
			return err
		}
		return t.refetch.Refetch(ctx)
	})
}
