// Package feed lists, searches and edits posts.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"katha/internal/api"
	"katha/internal/confirm"
	"katha/internal/models"
	"katha/internal/utils"
)

// Auth is the slice of the session the feed needs.
type Auth interface {
	IsLoggedIn() bool
	User() *models.Identity
}

// DraftStore keeps the unsent post.
type DraftStore interface {
	Draft() models.Draft
	SaveDraft(models.Draft) error
	DiscardDraft() error
}

type Feed struct {
	client *api.Client
	auth   Auth
	drafts DraftStore
	guard  *confirm.Guard
	logger *slog.Logger

	mu     sync.Mutex
	saving map[int]struct{}
}

func New(client *api.Client, auth Auth, drafts DraftStore, guard *confirm.Guard, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Feed{
		client: client,
		auth:   auth,
		drafts: drafts,
		guard:  guard,
		logger: logger,
		saving: make(map[int]struct{}),
	}
}

// List fetches posts/ with q's sort and filters. An empty sort means newest.
func (f *Feed) List(ctx context.Context, q models.PostQuery) ([]*models.Post, error) {
	if q.Sort != "" && !models.ValidSort(q.Sort) {
		return nil, utils.NewAppError(utils.ErrInvalidInput,
			fmt.Sprintf("Unknown sort %q (newest, oldest, most_voted, most_comments, trending)", q.Sort), nil)
	}
	return f.client.ListPosts(ctx, q)
}

// Search keeps the posts whose title, content or author contains term,
// ignoring case. An empty term keeps everything.
func Search(posts []*models.Post, term string) []*models.Post {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return posts
	}
	var out []*models.Post
	for _, p := range posts {
		if strings.Contains(strings.ToLower(p.Title), needle) ||
			strings.Contains(strings.ToLower(p.Content), needle) ||
			strings.Contains(strings.ToLower(p.AuthorUsername), needle) {
			out = append(out, p)
		}
	}
	return out
}

func (f *Feed) Get(ctx context.Context, id int) (*models.Post, error) {
	return f.client.GetPost(ctx, id)
}

// Create publishes a post and discards the local draft.
func (f *Feed) Create(ctx context.Context, title, content string) (*models.Post, error) {
	if !f.auth.IsLoggedIn() {
		return nil, utils.NewNotLoggedInError("create a post")
	}
	in, err := postInput(title, content)
	if err != nil {
		return nil, err
	}

	post, err := f.client.CreatePost(ctx, in)
	if err != nil {
		f.logger.Warn("creating post failed", "error", err)
		return nil, err
	}
	if f.drafts != nil {
		if err := f.drafts.DiscardDraft(); err != nil {
			f.logger.Error("discarding draft", "error", err)
		}
	}
	f.logger.Info("post created", "post", post.ID)
	return post, nil
}

// Edit replaces title and content of post id.
func (f *Feed) Edit(ctx context.Context, id int, title, content string) (*models.Post, error) {
	if !f.auth.IsLoggedIn() {
		return nil, utils.NewNotLoggedInError("edit posts")
	}
	in, err := postInput(title, content)
	if err != nil {
		return nil, err
	}
	return f.client.UpdatePost(ctx, id, in)
}

// Delete removes post id after confirmation. Its comments go with it.
func (f *Feed) Delete(ctx context.Context, id int) error {
	if !f.auth.IsLoggedIn() {
		return utils.NewNotLoggedInError("delete posts")
	}
	prompt := fmt.Sprintf("Delete post #%d? This action cannot be undone.", id)
	return f.guard.Run(ctx, prompt, func(ctx context.Context) error {
		if err := f.client.DeletePost(ctx, id); err != nil {
			f.logger.Warn("deleting post failed", "post", id, "error", err)
			return err
		}
		f.logger.Info("post deleted", "post", id)
		return nil
	})
}

// ToggleSave flips the saved flag of post id and returns the server's new
// value. A second toggle of the same post while one is pending fails with
// SAVE_IN_FLIGHT.
func (f *Feed) ToggleSave(ctx context.Context, id int) (bool, error) {
	if !f.auth.IsLoggedIn() {
		return false, utils.NewNotLoggedInError("save posts")
	}
	if !f.acquireSave(id) {
		return false, utils.NewAppError(utils.ErrSaveInFlight, "Already saving this post", nil)
	}
	defer f.releaseSave(id)

	res, err := f.client.SavePost(ctx, id)
	if err != nil {
		return false, err
	}
	return res.IsSaved, nil
}

func (f *Feed) Saved(ctx context.Context) ([]*models.Post, error) {
	if !f.auth.IsLoggedIn() {
		return nil, utils.NewNotLoggedInError("see saved posts")
	}
	return f.client.SavedPosts(ctx)
}

// MyPosts returns the posts written by username, or by the logged-in user
// when username is empty.
func (f *Feed) MyPosts(ctx context.Context, username string) ([]*models.Post, error) {
	if username == "" {
		user := f.auth.User()
		if user == nil {
			return nil, utils.NewNotLoggedInError("see your posts")
		}
		username = user.Username
	}
	posts, err := f.client.ListPosts(ctx, models.PostQuery{})
	if err != nil {
		return nil, err
	}
	var mine []*models.Post
	for _, p := range posts {
		if p.AuthorUsername == username {
			mine = append(mine, p)
		}
	}
	return mine, nil
}

// DiscardDraft drops the local draft after confirmation.
func (f *Feed) DiscardDraft(ctx context.Context) error {
	return f.guard.Run(ctx, "Clear draft and start fresh?", func(context.Context) error {
		return f.drafts.DiscardDraft()
	})
}

func (f *Feed) acquireSave(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.saving[id]; busy {
		return false
	}
	f.saving[id] = struct{}{}
	return true
}

func (f *Feed) releaseSave(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.saving, id)
}

func postInput(title, content string) (models.PostInput, error) {
	in := models.PostInput{Title: strings.TrimSpace(title), Content: strings.TrimSpace(content)}
	if in.Title == "" {
		return in, utils.NewEmptyTextError("Title")
	}
	if in.Content == "" {
		return in, utils.NewEmptyTextError("Content")
	}
	return in, nil
}
