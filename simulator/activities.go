package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"katha/internal/comments"
	"katha/internal/models"
)

// action performs one step for user and returns the error of its request.
type action func(ctx context.Context, user *SimulatedUser) error

// simulateActivity offers every connected user to a pool of workers once per
// tick; each worker acts with probability frequency/hour scaled to the tick.
func (s *Simulator) simulateActivity(ctx context.Context, name string, frequency float64, act action) {
	s.logger.Info("Starting activity", "activity", name, "per_user_per_hour", frequency)

	probability := frequency / 3600.0 * s.config.TickInterval.Seconds()
	if probability <= 0 {
		return
	}

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	jobs := make(chan *SimulatedUser, s.config.NumUsers)
	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for user := range jobs {
				if !s.chance(probability) || !user.busy.TryLock() {
					continue
				}
				if user.IsConnected {
					start := time.Now()
					err := act(ctx, user)
					switch {
					case errors.Is(err, errNothingToDo), ctx.Err() != nil:
						// Skipped, or cut off by the end of the run.
					default:
						s.recordRequestMetrics(start, err)
						if err != nil {
							s.logger.Warn("Activity failed",
								"activity", name,
								"worker", workerID,
								"username", user.Username,
								"error", err,
							)
						}
						user.LastActive = time.Now()
					}
				}
				user.busy.Unlock()
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case <-ticker.C:
			for _, user := range s.snapshotUsers() {
				select {
				case jobs <- user:
				default: // Don't block if the workers are behind
				}
			}
		}
	}
}

// errNothingToDo marks a step skipped because there is nothing to act on yet.
var errNothingToDo = errors.New("nothing to do")

func (s *Simulator) createPost(ctx context.Context, user *SimulatedUser) error {
	post, err := user.feed.Create(ctx,
		fmt.Sprintf("Post by %s at %d", user.Username, time.Now().UnixNano()),
		fmt.Sprintf("Content from %s: %s", user.Username, time.Now().Format(time.RFC3339)),
	)
	if err != nil {
		return err
	}

	user.Posts = append(user.Posts, post.ID)
	s.mu.Lock()
	s.posts = append(s.posts, post.ID)
	s.mu.Unlock()

	s.stats.mu.Lock()
	s.stats.TotalPosts++
	s.stats.mu.Unlock()
	s.logger.Debug("Created post", "username", user.Username, "post", post.ID)
	return nil
}

// createComment opens a popular post and comments on it, replying to one of
// its comments ReplyPercentage of the time. The thread reloads the post
// after the comment lands, as the terminal client does.
func (s *Simulator) createComment(ctx context.Context, user *SimulatedUser) error {
	postID, ok := s.pickPost()
	if !ok {
		return errNothingToDo
	}
	pv, err := user.feed.Open(ctx, postID)
	if err != nil {
		return err
	}

	var ids []int
	comments.Walk(pv.Comments(), func(c *models.Comment, _ int) bool {
		ids = append(ids, c.ID)
		return true
	})

	text := fmt.Sprintf("Comment from %s at %s", user.Username, time.Now().Format(time.RFC3339Nano))
	thread := pv.Thread(nil)
	reply := len(ids) > 0 && s.chance(s.config.ReplyPercentage)
	if reply {
		err = thread.Reply(ctx, ids[s.intn(len(ids))], text)
	} else {
		err = thread.Add(ctx, text)
	}
	if err != nil {
		return err
	}

	s.stats.mu.Lock()
	s.stats.TotalComments++
	if reply {
		s.stats.TotalReplies++
	}
	s.stats.mu.Unlock()
	return nil
}

// castVote fetches a popular post and votes on it through the reconciler.
// Voting the same way twice withdraws the vote.
func (s *Simulator) castVote(ctx context.Context, user *SimulatedUser) error {
	postID, ok := s.pickPost()
	if !ok {
		return errNothingToDo
	}
	post, err := user.feed.Get(ctx, postID)
	if err != nil {
		return err
	}

	dir := models.VoteDown
	if s.chance(s.config.UpvoteRatio) {
		dir = models.VoteUp
	}
	if err := user.votes.VotePost(ctx, post, dir); err != nil {
		return err
	}

	user.VotedPosts[postID] = post.UserVote != models.VoteNone
	s.stats.mu.Lock()
	s.stats.TotalVotes++
	s.stats.mu.Unlock()
	return nil
}

// pickPost draws a post with Zipf-skewed popularity: the earliest posts get
// most of the traffic.
func (s *Simulator) pickPost() (int, bool) {
	s.mu.RLock()
	n := len(s.posts)
	s.mu.RUnlock()
	if n == 0 {
		return 0, false
	}

	var rank uint64
	if n > 1 {
		s.rngMu.Lock()
		zipf := rand.NewZipf(s.rng, s.config.ZipfS, 1, uint64(n-1))
		rank = zipf.Uint64()
		s.rngMu.Unlock()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.posts[rank], true
}
