package feed

import (
	"context"
	"log/slog"
	"sync"

	"katha/internal/comments"
	"katha/internal/confirm"
	"katha/internal/models"
	"katha/internal/utils"
	"katha/internal/vote"
)

// PostView is an open post with its comment tree. Comment mutations made
// through Thread reload it.
type PostView struct {
	id     int
	feed   *Feed
	logger *slog.Logger

	mu       sync.RWMutex
	post     *models.Post
	refetchN int
}

// Open fetches post id and its comments.
func (f *Feed) Open(ctx context.Context, id int) (*PostView, error) {
	pv := &PostView{id: id, feed: f, logger: f.logger.With("post", id)}
	if err := pv.Refetch(ctx); err != nil {
		return nil, err
	}
	return pv, nil
}

// Refetch reloads the post and replaces the comment tree wholesale.
func (pv *PostView) Refetch(ctx context.Context) error {
	post, err := pv.feed.client.GetPost(ctx, pv.id)
	if err != nil {
		pv.logger.Warn("reloading post failed", "error", err)
		return err
	}
	pv.mu.Lock()
	pv.post = post
	pv.refetchN++
	pv.mu.Unlock()
	return nil
}

// Post returns a copy of the last loaded post. The copy shares the comment
// tree, whose scores VoteComment updates in place.
func (pv *PostView) Post() *models.Post {
	pv.mu.RLock()
	defer pv.mu.RUnlock()
	if pv.post == nil {
		return nil
	}
	p := *pv.post
	return &p
}

// Comments returns the last loaded comment tree.
func (pv *PostView) Comments() []*models.Comment {
	pv.mu.RLock()
	defer pv.mu.RUnlock()
	if pv.post == nil {
		return nil
	}
	return pv.post.Comments
}

// Loads reports how many times the post has been fetched.
func (pv *PostView) Loads() int {
	pv.mu.RLock()
	defer pv.mu.RUnlock()
	return pv.refetchN
}

// Thread returns the comment mutator bound to this post.
func (pv *PostView) Thread(guard *confirm.Guard) *comments.Thread {
	return comments.NewThread(pv.id, pv.feed.client, pv.feed.auth, guard, pv, pv.logger)
}

// VotePost votes on the post itself. Score changes are applied under the
// view's lock, so readers see either the old or the new score.
func (pv *PostView) VotePost(ctx context.Context, r *vote.Reconciler, dir models.VoteValue) error {
	pv.mu.RLock()
	post := pv.post
	current := vote.PostState(post)
	pv.mu.RUnlock()

	_, err := r.Vote(ctx, vote.Key{Kind: models.PostVote, ID: post.ID}, current, dir, func(s vote.State) {
		pv.mu.Lock()
		post.Votes, post.UserVote = s.Votes, s.UserVote
		pv.mu.Unlock()
	})
	return err
}

// VoteComment votes on one comment of the tree.
func (pv *PostView) VoteComment(ctx context.Context, r *vote.Reconciler, commentID int, dir models.VoteValue) error {
	c := comments.Find(pv.Comments(), commentID)
	if c == nil {
		return utils.NewAppError(utils.ErrNotFound, "Comment not found on this post", nil)
	}
	pv.mu.RLock()
	current := vote.CommentState(c)
	pv.mu.RUnlock()

	_, err := r.Vote(ctx, vote.Key{Kind: models.CommentVote, ID: c.ID}, current, dir, func(s vote.State) {
		pv.mu.Lock()
		c.Votes, c.UserVote = s.Votes, s.UserVote
		pv.mu.Unlock()
	})
	return err
}
