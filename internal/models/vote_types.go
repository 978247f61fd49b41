package models

import "fmt"

// VoteValue is the caller's vote on a post or comment.
type VoteValue int

const (
	VoteDown VoteValue = -1
	VoteNone VoteValue = 0 // Used to indicate vote removal
	VoteUp   VoteValue = 1
)

func (v VoteValue) Valid() bool {
	return v == VoteDown || v == VoteNone || v == VoteUp
}

func (v VoteValue) String() string {
	switch v {
	case VoteUp:
		return "up"
	case VoteDown:
		return "down"
	case VoteNone:
		return "none"
	default:
		return fmt.Sprintf("VoteValue(%d)", int(v))
	}
}

// ParseDirection accepts "up"/"down" (or "+1"/"-1") as typed on the command line.
func ParseDirection(s string) (VoteValue, error) {
	switch s {
	case "up", "+1", "1", "upvote":
		return VoteUp, nil
	case "down", "-1", "downvote":
		return VoteDown, nil
	}
	return VoteNone, fmt.Errorf("unknown vote direction %q (want up or down)", s)
}

// VoteContentType names the kind of content being voted on.
type VoteContentType string

const (
	PostVote    VoteContentType = "post"
	CommentVote VoteContentType = "comment"
)

// VoteRequest is the body of posts/{id}/vote/ and comments/{id}/vote/
type VoteRequest struct {
	Value VoteValue `json:"value"`
}

// VoteResult holds the two fields the client reads back from a vote response.
type VoteResult struct {
	Votes    int       `json:"votes"`
	UserVote VoteValue `json:"user_vote"`
}
