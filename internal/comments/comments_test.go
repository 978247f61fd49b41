package comments

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katha/internal/confirm"
	"katha/internal/models"
	"katha/internal/utils"
)

func intPtr(i int) *int { return &i }

// sampleTree:
//
//	1 maria
//	  2 jose
//	    3 maria
//	  7 andres
//	4 gabriela
func sampleTree() []*models.Comment {
	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	return []*models.Comment{
		{ID: 1, AuthorUsername: "maria", Text: "Magandang umaga", CreatedAt: at, Votes: 3, Replies: []*models.Comment{
			{ID: 2, ParentID: intPtr(1), AuthorUsername: "jose", Text: "Salamat", CreatedAt: at, Replies: []*models.Comment{
				{ID: 3, ParentID: intPtr(2), AuthorUsername: "maria", Text: "Walang anuman", CreatedAt: at, IsEdited: true},
			}},
			{ID: 7, ParentID: intPtr(1), AuthorUsername: "andres", Text: "Mabuhay", CreatedAt: at},
		}},
		{ID: 4, AuthorUsername: "gabriela", Text: "Hello", CreatedAt: at, UserVote: models.VoteDown, Votes: -1},
	}
}

func TestWalk_OrderAndDepth(t *testing.T) {
	var ids, depths []int
	Walk(sampleTree(), func(c *models.Comment, depth int) bool {
		ids = append(ids, c.ID)
		depths = append(depths, depth)
		return true
	})
	assert.Equal(t, []int{1, 2, 3, 7, 4}, ids)
	assert.Equal(t, []int{0, 1, 2, 1, 0}, depths)
}

func TestWalk_SkipReplies(t *testing.T) {
	var ids []int
	Walk(sampleTree(), func(c *models.Comment, _ int) bool {
		ids = append(ids, c.ID)
		return c.ID != 2
	})
	assert.Equal(t, []int{1, 2, 7, 4}, ids)
}

func TestFindCountDepth(t *testing.T) {
	tree := sampleTree()
	require.NotNil(t, Find(tree, 3))
	assert.Equal(t, "Walang anuman", Find(tree, 3).Text)
	assert.Nil(t, Find(tree, 99))
	assert.Equal(t, 5, Count(tree))
	assert.Equal(t, 0, Count(nil))
	assert.Equal(t, 2, Depth(tree, 3))
	assert.Equal(t, 0, Depth(tree, 4))
	assert.Equal(t, -1, Depth(tree, 99))
}

func TestIsAuthor(t *testing.T) {
	c := &models.Comment{AuthorUsername: "maria"}
	assert.True(t, IsAuthor(c, &models.Identity{Username: "maria"}))
	assert.False(t, IsAuthor(c, &models.Identity{Username: "jose"}))
	assert.False(t, IsAuthor(c, nil))
}

func TestRender_NestsReplies(t *testing.T) {
	out := Render(sampleTree())

	for _, want := range []string{"maria", "Magandang umaga", "Walang anuman", "(edited)", "#7", "gabriela"} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "Salamat"), strings.Index(out, "Walang anuman"))
	assert.Less(t, strings.Index(out, "Mabuhay"), strings.Index(out, "Hello"))

	// Top-level comments start at column 0, replies are indented.
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Salamat") || strings.Contains(line, "Mabuhay") {
			assert.True(t, strings.HasPrefix(line, " "), "reply line %q not indented", line)
		}
		if strings.Contains(line, "Hello") {
			assert.Equal(t, "Hello", strings.TrimRight(line, " "))
		}
	}
}

func TestScore(t *testing.T) {
	assert.Contains(t, Score(5, models.VoteUp), "▲ +5")
	assert.Contains(t, Score(-2, models.VoteDown), "▼ -2")
	assert.Equal(t, "· +0", Score(0, models.VoteNone))
}

type loggedIn bool

func (l loggedIn) IsLoggedIn() bool { return bool(l) }

type fakeAPI struct {
	mu      sync.Mutex
	created []models.CommentInput
	updated map[int]string
	deleted []int
	err     error
}

func (f *fakeAPI) CreateComment(_ context.Context, in models.CommentInput) (*models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, in)
	return &models.Comment{ID: 100 + len(f.created), PostID: in.PostID, ParentID: in.ParentID, Text: in.Text}, nil
}

func (f *fakeAPI) UpdateComment(_ context.Context, id int, text string) (*models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.updated == nil {
		f.updated = make(map[int]string)
	}
	f.updated[id] = text
	return &models.Comment{ID: id, Text: text, IsEdited: true}, nil
}

func (f *fakeAPI) DeleteComment(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type refetchCounter struct {
	n int
}

func (r *refetchCounter) Refetch(context.Context) error {
	r.n++
	return nil
}

func newThread(api *fakeAPI, confirmer confirm.Confirmer) (*Thread, *refetchCounter) {
	rc := &refetchCounter{}
	return NewThread(1, api, loggedIn(true), confirm.NewGuard(confirmer, nil), rc, nil), rc
}

func TestThread_ReplyRefetchesOnce(t *testing.T) {
	api := &fakeAPI{}
	th, rc := newThread(api, confirm.NewScripted())

	require.NoError(t, th.Reply(context.Background(), 7, "Tama ka"))
	assert.Equal(t, 1, rc.n)
	require.Len(t, api.created, 1)
	assert.Equal(t, models.CommentInput{PostID: 1, Text: "Tama ka", ParentID: intPtr(7)}, api.created[0])
}

func TestThread_FailedReplyDoesNotRefetch(t *testing.T) {
	api := &fakeAPI{err: utils.NewAppError(utils.ErrServer, "Failed to post reply", nil)}
	th, rc := newThread(api, confirm.NewScripted())

	err := th.Reply(context.Background(), 7, "Tama ka")
	assert.True(t, utils.IsErrorCode(err, utils.ErrServer))
	assert.Equal(t, 0, rc.n)
}

func TestThread_AddTopLevel(t *testing.T) {
	api := &fakeAPI{}
	th, rc := newThread(api, confirm.NewScripted())

	require.NoError(t, th.Add(context.Background(), "Unang komento"))
	assert.Nil(t, api.created[0].ParentID)
	assert.Equal(t, 1, rc.n)
}

func TestThread_EmptyTextRejectedLocally(t *testing.T) {
	api := &fakeAPI{}
	th, rc := newThread(api, confirm.NewScripted())

	assert.True(t, utils.IsErrorCode(th.Add(context.Background(), "   \n"), utils.ErrEmptyText))
	assert.True(t, utils.IsErrorCode(th.Edit(context.Background(), 3, " "), utils.ErrEmptyText))
	assert.Empty(t, api.created)
	assert.Empty(t, api.updated)
	assert.Equal(t, 0, rc.n)
}

func TestThread_NotLoggedIn(t *testing.T) {
	api := &fakeAPI{}
	rc := &refetchCounter{}
	th := NewThread(1, api, loggedIn(false), confirm.NewGuard(confirm.AutoApprove{}, nil), rc, nil)

	assert.True(t, utils.IsErrorCode(th.Reply(context.Background(), 2, "hi"), utils.ErrNotLoggedIn))
	assert.True(t, utils.IsErrorCode(th.Delete(context.Background(), 2), utils.ErrNotLoggedIn))
	assert.Empty(t, api.created)
	assert.Empty(t, api.deleted)
}

func TestThread_EditTrims(t *testing.T) {
	api := &fakeAPI{}
	th, rc := newThread(api, confirm.NewScripted())

	require.NoError(t, th.Edit(context.Background(), 3, "  updated  "))
	assert.Equal(t, "updated", api.updated[3])
	assert.Equal(t, 1, rc.n)
}

func TestThread_EditFailureDoesNotRefetch(t *testing.T) {
	api := &fakeAPI{err: utils.NewAppError(utils.ErrForbidden, "You can only edit your own comments.", nil)}
	th, rc := newThread(api, confirm.NewScripted())

	err := th.Edit(context.Background(), 3, "Ibang bersyon")
	require.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrForbidden))
	assert.Equal(t, "You can only edit your own comments.", utils.UserMessage(err))
	assert.Equal(t, 0, rc.n)
	assert.Empty(t, api.updated)
}

func TestThread_DeleteRequiresConfirmation(t *testing.T) {
	api := &fakeAPI{}
	sc := confirm.NewScripted(false, true)
	th, rc := newThread(api, sc)

	err := th.Delete(context.Background(), 3)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotConfirmed))
	assert.Empty(t, api.deleted)
	assert.Equal(t, 0, rc.n)

	require.NoError(t, th.Delete(context.Background(), 3))
	assert.Equal(t, []int{3}, api.deleted)
	assert.Equal(t, 1, rc.n)
	assert.Len(t, sc.Prompts(), 2)
}

func TestThread_DeleteFailureKeepsComment(t *testing.T) {
	api := &fakeAPI{err: errors.New("connection reset")}
	th, rc := newThread(api, confirm.AutoApprove{})

	require.Error(t, th.Delete(context.Background(), 3))
	assert.Equal(t, 0, rc.n)
}
