package devserver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/asynkron/protoactor-go/actor"

	"katha/internal/models"
	"katha/internal/utils"
)

// Message types for forum operations. UserID is the authenticated caller, 0
// for anonymous reads.
type (
	RegisterMsg struct {
		Username     string
		Email        string
		PasswordHash []byte
	}

	AccountByNameMsg struct {
		Username string
	}

	AccountByIDMsg struct {
		UserID int
	}

	AccountByEmailMsg struct {
		Email string
	}

	UpdateAccountMsg struct {
		UserID   int
		Username *string
		Email    *string
	}

	ListPostsMsg struct {
		UserID int
		Filter ListFilter
	}

	GetPostMsg struct {
		UserID int
		PostID int
	}

	CreatePostMsg struct {
		UserID  int
		Title   string
		Content string
	}

	UpdatePostMsg struct {
		UserID  int
		PostID  int
		Title   string
		Content string
	}

	DeletePostMsg struct {
		UserID int
		PostID int
	}

	VoteMsg struct {
		UserID   int
		Kind     models.VoteContentType
		TargetID int
		Value    models.VoteValue
	}

	ToggleSaveMsg struct {
		UserID int
		PostID int
	}

	SavedPostsMsg struct {
		UserID int
	}

	CreateCommentMsg struct {
		UserID   int
		PostID   int
		ParentID *int
		Text     string
	}

	UpdateCommentMsg struct {
		UserID    int
		CommentID int
		Text      string
	}

	DeleteCommentMsg struct {
		UserID    int
		CommentID int
	}

	ListNotificationsMsg struct {
		UserID int
	}

	UnreadCountMsg struct {
		UserID int
	}

	MarkReadMsg struct {
		UserID         int
		NotificationID int
	}

	MarkAllReadMsg struct {
		UserID int
	}

	FeedbackMsg struct {
		UserID   int
		Feedback models.Feedback
	}

	GetCountsMsg struct{}

	// Done acknowledges a mutation that has no body to return.
	Done struct{}
)

// ForumActor owns the forum state; every read and mutation is a message, so
// the state is never shared between goroutines.
type ForumActor struct {
	state   *forum
	logger  *slog.Logger
	metrics *utils.MetricsCollector
}

// NewForumActor creates an empty forum. now may be nil.
func NewForumActor(logger *slog.Logger, metrics *utils.MetricsCollector, now func() time.Time) actor.Actor {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &ForumActor{
		state:   newForum(now),
		logger:  logger,
		metrics: metrics,
	}
}

// Receive handles incoming messages. Results are responded as values and
// failures as *utils.AppError.
func (a *ForumActor) Receive(context actor.Context) {
	reply := answer(context)
	switch msg := context.Message().(type) {
	case *actor.Started:
		a.logger.Info("ForumActor started")
	case *actor.Stopping:
		a.logger.Info("ForumActor stopping")
	case *actor.Restarting:
		a.logger.Warn("ForumActor restarting")

	case *RegisterMsg:
		reply(a.state.register(msg.Username, msg.Email, msg.PasswordHash))
	case *AccountByNameMsg:
		reply(a.state.accountByName(msg.Username))
	case *AccountByIDMsg:
		reply(a.state.account(msg.UserID))
	case *AccountByEmailMsg:
		context.Respond(a.state.accountByEmail(msg.Email))
	case *UpdateAccountMsg:
		reply(a.state.updateAccount(msg.UserID, msg.Username, msg.Email))

	case *ListPostsMsg:
		context.Respond(a.state.listPosts(msg.UserID, msg.Filter))
	case *GetPostMsg:
		reply(a.state.getPost(msg.UserID, msg.PostID))
	case *CreatePostMsg:
		a.logger.Debug("ForumActor: creating post", "author", msg.UserID)
		reply(a.state.createPost(msg.UserID, msg.Title, msg.Content))
	case *UpdatePostMsg:
		reply(a.state.updatePost(msg.UserID, msg.PostID, msg.Title, msg.Content))
	case *DeletePostMsg:
		respondDone(context, a.state.deletePost(msg.UserID, msg.PostID))

	case *VoteMsg:
		a.handleVote(context, msg)
	case *ToggleSaveMsg:
		reply(a.state.toggleSave(msg.UserID, msg.PostID))
	case *SavedPostsMsg:
		context.Respond(a.state.savedPosts(msg.UserID))

	case *CreateCommentMsg:
		reply(a.state.createComment(msg.UserID, msg.PostID, msg.ParentID, msg.Text))
	case *UpdateCommentMsg:
		reply(a.state.updateComment(msg.UserID, msg.CommentID, msg.Text))
	case *DeleteCommentMsg:
		respondDone(context, a.state.deleteComment(msg.UserID, msg.CommentID))

	case *ListNotificationsMsg:
		context.Respond(a.state.notificationsFor(msg.UserID))
	case *UnreadCountMsg:
		context.Respond(&models.UnreadCount{Count: a.state.unreadCount(msg.UserID)})
	case *MarkReadMsg:
		reply(a.state.markRead(msg.UserID, msg.NotificationID))
	case *MarkAllReadMsg:
		a.state.markAllRead(msg.UserID)
		context.Respond(&Done{})

	case *FeedbackMsg:
		respondDone(context, a.state.addFeedback(msg.UserID, msg.Feedback))
	case *GetCountsMsg:
		context.Respond(a.state.counts())

	default:
		a.logger.Warn("ForumActor: unknown message type", "type", fmt.Sprintf("%T", msg))
	}
}

func (a *ForumActor) handleVote(context actor.Context, msg *VoteMsg) {
	var (
		result any
		err    error
	)
	if msg.Kind == models.CommentVote {
		result, err = a.state.voteComment(msg.UserID, msg.TargetID, msg.Value)
	} else {
		result, err = a.state.votePost(msg.UserID, msg.TargetID, msg.Value)
	}
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	a.metrics.IncrementVote(string(msg.Kind), outcome)
	answer(context)(result, err)
}

// answer returns a responder for (result, err) pairs so state calls can be
// passed straight through.
func answer(context actor.Context) func(any, error) {
	return func(result any, err error) {
		if err != nil {
			context.Respond(err)
			return
		}
		context.Respond(result)
	}
}

func respondDone(context actor.Context, err error) {
	if err != nil {
		context.Respond(err)
		return
	}
	context.Respond(&Done{})
}
