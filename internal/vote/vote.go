// Package vote applies votes optimistically and reconciles them with the
// server's answer.
//
// A vote runs in three phases. Predict computes the state the server is
// expected to reach and is shown immediately; Commit replaces it with what
// the server actually returned; Rollback restores the snapshot taken before
// Predict when the request fails.
package vote

import (
	"katha/internal/models"
)

// State is the part of a post or comment a vote changes.
type State struct {
	Votes    int
	UserVote models.VoteValue
}

// Predict returns the state after the caller votes dir on s. Voting the
// current direction again withdraws the vote; the opposite direction
// replaces it.
func Predict(s State, dir models.VoteValue) State {
	next := dir
	if s.UserVote == dir {
		next = models.VoteNone
	}
	return State{
		Votes:    s.Votes - int(s.UserVote) + int(next),
		UserVote: next,
	}
}

// Commit replaces the optimistic state with the server's result.
func Commit(_ State, res models.VoteResult) State {
	return State{Votes: res.Votes, UserVote: res.UserVote}
}

// Rollback discards the optimistic state and returns the snapshot.
func Rollback(_ State, snapshot State) State {
	return snapshot
}

func PostState(p *models.Post) State {
	return State{Votes: p.Votes, UserVote: p.UserVote}
}

func CommentState(c *models.Comment) State {
	return State{Votes: c.Votes, UserVote: c.UserVote}
}
