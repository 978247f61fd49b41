package vote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"katha/internal/models"
	"katha/internal/utils"
)

// Voter sends a vote. *api.Client implements it.
type Voter interface {
	Vote(ctx context.Context, kind models.VoteContentType, id int, value models.VoteValue) (*models.VoteResult, error)
}

// Auth reports whether a session is active. *session.Session implements it.
type Auth interface {
	IsLoggedIn() bool
}

// Key identifies a vote target.
type Key struct {
	Kind models.VoteContentType
	ID   int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Kind, k.ID)
}

type Phase string

const (
	PhaseOptimistic Phase = "optimistic"
	PhaseCommitted  Phase = "committed"
	PhaseRolledBack Phase = "rolled_back"
)

// Transition is one state change of a target, delivered to observers.
type Transition struct {
	Key   Key
	Phase Phase
	State State
}

type Observer func(Transition)

// Reconciler runs votes. At most one vote per target is in flight; votes on
// different targets proceed independently.
type Reconciler struct {
	voter   Voter
	auth    Auth
	logger  *slog.Logger
	metrics *utils.MetricsCollector

	mu        sync.Mutex
	inFlight  map[Key]struct{}
	observers []Observer
}

func NewReconciler(voter Voter, auth Auth, logger *slog.Logger, metrics *utils.MetricsCollector) *Reconciler {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Reconciler{
		voter:    voter,
		auth:     auth,
		logger:   logger,
		metrics:  metrics,
		inFlight: make(map[Key]struct{}),
	}
}

// Observe registers fn for every transition of every target.
func (r *Reconciler) Observe(fn Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// InFlight reports whether a vote on key is waiting for the server.
func (r *Reconciler) InFlight(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inFlight[key]
	return ok
}

// Vote votes dir (up or down) on key whose displayed state is current.
// apply, when non-nil, receives the optimistic state before the request is
// sent and the final state after it returns. The returned state is the final
// one: the server's on success, current on failure.
//
// Logged out, the call fails with NOT_LOGGED_IN; with a vote on key already
// in flight it fails with VOTE_IN_FLIGHT. Neither sends a request nor calls
// apply.
func (r *Reconciler) Vote(ctx context.Context, key Key, current State, dir models.VoteValue, apply func(State)) (State, error) {
	if dir != models.VoteUp && dir != models.VoteDown {
		return current, utils.NewAppError(utils.ErrInvalidInput, "Vote must be up or down", nil)
	}
	if r.auth != nil && !r.auth.IsLoggedIn() {
		r.metrics.IncrementVote(string(key.Kind), "not_logged_in")
		return current, utils.NewNotLoggedInError("vote")
	}
	if !r.acquire(key) {
		r.metrics.IncrementVote(string(key.Kind), "in_flight")
		return current, utils.NewAppError(utils.ErrVoteInFlight, "A vote is already being sent", nil)
	}
	defer r.release(key)

	snapshot := current
	optimistic := Predict(snapshot, dir)
	r.emit(key, PhaseOptimistic, optimistic, apply)

	res, err := r.voter.Vote(ctx, key.Kind, key.ID, optimistic.UserVote)
	if err != nil {
		restored := Rollback(optimistic, snapshot)
		r.emit(key, PhaseRolledBack, restored, apply)
		r.metrics.IncrementVote(string(key.Kind), "rolled_back")
		r.logger.Warn("vote rolled back", "target", key.String(), "error", err)
		return restored, err
	}

	final := Commit(optimistic, *res)
	r.emit(key, PhaseCommitted, final, apply)
	r.metrics.IncrementVote(string(key.Kind), "committed")
	if final != optimistic {
		r.logger.Debug("vote reconciled to server state",
			"target", key.String(),
			"predicted", optimistic.Votes,
			"server", final.Votes,
		)
	}
	return final, nil
}

// VotePost votes on p and keeps its score and user vote current.
func (r *Reconciler) VotePost(ctx context.Context, p *models.Post, dir models.VoteValue) error {
	_, err := r.Vote(ctx, Key{Kind: models.PostVote, ID: p.ID}, PostState(p), dir, func(s State) {
		p.Votes, p.UserVote = s.Votes, s.UserVote
	})
	return err
}

// VoteComment votes on c and keeps its score and user vote current.
func (r *Reconciler) VoteComment(ctx context.Context, c *models.Comment, dir models.VoteValue) error {
	_, err := r.Vote(ctx, Key{Kind: models.CommentVote, ID: c.ID}, CommentState(c), dir, func(s State) {
		c.Votes, c.UserVote = s.Votes, s.UserVote
	})
	return err
}

func (r *Reconciler) acquire(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[key]; busy {
		return false
	}
	r.inFlight[key] = struct{}{}
	return true
}

func (r *Reconciler) release(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, key)
}

func (r *Reconciler) emit(key Key, phase Phase, s State, apply func(State)) {
	if apply != nil {
		apply(s)
	}
	r.mu.Lock()
	observers := append([]Observer(nil), r.observers...)
	r.mu.Unlock()

	t := Transition{Key: key, Phase: phase, State: s}
	for _, fn := range observers {
		fn(t)
	}
}
