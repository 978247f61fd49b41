package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katha/internal/api"
	"katha/internal/confirm"
	"katha/internal/database"
	"katha/internal/models"
	"katha/internal/utils"
	"katha/internal/vote"
)

type fakeAuth struct {
	user *models.Identity
}

func (a fakeAuth) IsLoggedIn() bool        { return a.user != nil }
func (a fakeAuth) User() *models.Identity { return a.user }

// forum is a tiny stand-in for the REST API.
type forum struct {
	mu        sync.Mutex
	posts     map[int]*models.Post
	gets      map[int]int
	creates   int
	deletes   []int
	saved     map[int]bool
	failReply bool
	lastQuery string
	lastBody  map[string]any
}

func newForum() *forum {
	at := time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC)
	return &forum{
		posts: map[int]*models.Post{
			1: {ID: 1, Title: "Adobo recipe", Content: "Soy sauce and vinegar", AuthorUsername: "maria", Votes: 10, CreatedAt: at,
				Comments: []*models.Comment{{ID: 7, PostID: 1, AuthorUsername: "jose", Text: "Yum", CreatedAt: at}}},
			2: {ID: 2, Title: "Jeepney routes", Content: "Cubao to Quiapo", AuthorUsername: "jose", CreatedAt: at},
			3: {ID: 3, Title: "Tagalog idioms", Content: "Bahala na", AuthorUsername: "Maria_C", CreatedAt: at},
		},
		gets:  make(map[int]int),
		saved: make(map[int]bool),
	}
}

func (f *forum) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
	if r.Body != nil {
		f.lastBody = nil
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
	}

	switch {
	case path == "posts/" && r.Method == http.MethodGet:
		f.lastQuery = r.URL.RawQuery
		out := []*models.Post{f.posts[1], f.posts[2], f.posts[3]}
		_ = json.NewEncoder(w).Encode(out)
	case path == "posts/" && r.Method == http.MethodPost:
		f.creates++
		p := &models.Post{ID: 10, Title: f.lastBody["title"].(string), Content: f.lastBody["content"].(string)}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(p)
	case path == "posts/saved/":
		var out []*models.Post
		for id, on := range f.saved {
			if on {
				out = append(out, f.posts[id])
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	case path == "posts/1/" && r.Method == http.MethodGet:
		f.gets[1]++
		_ = json.NewEncoder(w).Encode(f.posts[1])
	case path == "posts/1/" && r.Method == http.MethodPut:
		p := *f.posts[1]
		p.Title = f.lastBody["title"].(string)
		p.Content = f.lastBody["content"].(string)
		p.IsEdited = true
		_ = json.NewEncoder(w).Encode(&p)
	case path == "posts/1/" && r.Method == http.MethodDelete:
		f.deletes = append(f.deletes, 1)
		w.WriteHeader(http.StatusNoContent)
	case path == "posts/1/save/":
		f.saved[1] = !f.saved[1]
		_ = json.NewEncoder(w).Encode(models.SaveResult{IsSaved: f.saved[1]})
	case path == "posts/1/vote/":
		p := f.posts[1]
		v := models.VoteValue(f.lastBody["value"].(float64))
		p.Votes += int(v) - int(p.UserVote)
		p.UserVote = v
		_ = json.NewEncoder(w).Encode(p)
	case path == "comments/":
		if f.failReply {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Failed to post reply"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":8,"post":1,"parent":7,"text":"reply"}`))
	case path == "feedback/":
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Not found."}`))
	}
}

func (f *forum) getCount(id int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets[id]
}

type env struct {
	feed   *Feed
	forum  *forum
	store  *database.Store
	client *api.Client
}

func newEnv(t *testing.T, user *models.Identity, confirmer confirm.Confirmer) *env {
	t.Helper()
	fm := newForum()
	srv := httptest.NewServer(fm)
	t.Cleanup(srv.Close)

	store, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	client := api.NewClient(api.NewGateway(srv.URL+"/api/v1/", database.NewTokenStore(store)))
	f := New(client, fakeAuth{user: user}, store, confirm.NewGuard(confirmer, nil), nil)
	return &env{feed: f, forum: fm, store: store, client: client}
}

var maria = &models.Identity{Username: "maria", Email: "maria@example.com"}

func TestList_PassesFilters(t *testing.T) {
	e := newEnv(t, nil, confirm.NewScripted())

	posts, err := e.feed.List(context.Background(), models.PostQuery{Sort: models.SortTrending, Author: "jose", DateTo: "2025-02-01"})
	require.NoError(t, err)
	assert.Len(t, posts, 3)
	assert.Equal(t, "author=jose&date_to=2025-02-01&sort=trending", e.forum.lastQuery)

	_, err = e.feed.List(context.Background(), models.PostQuery{Sort: "hot"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
}

func TestSearch(t *testing.T) {
	posts := []*models.Post{
		{ID: 1, Title: "Adobo recipe", Content: "Soy sauce", AuthorUsername: "maria"},
		{ID: 2, Title: "Jeepney", Content: "Cubao", AuthorUsername: "jose"},
		{ID: 3, Title: "Idioms", Content: "bahala na", AuthorUsername: "MARIA_C"},
	}
	ids := func(ps []*models.Post) []int {
		var out []int
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	assert.Equal(t, []int{1, 2, 3}, ids(Search(posts, "  ")))
	assert.Equal(t, []int{1, 3}, ids(Search(posts, "Maria")))
	assert.Equal(t, []int{2}, ids(Search(posts, "cubao")))
	assert.Equal(t, []int{3}, ids(Search(posts, " BAHALA ")))
	assert.Empty(t, Search(posts, "sinigang"))
}

func TestCreate_ClearsDraft(t *testing.T) {
	e := newEnv(t, maria, confirm.NewScripted())
	require.NoError(t, e.store.SaveDraft(models.Draft{Title: "Adobo", Content: "draft"}))

	_, err := e.feed.Create(context.Background(), " ", "body")
	assert.True(t, utils.IsErrorCode(err, utils.ErrEmptyText))
	assert.False(t, e.store.Draft().Empty())

	post, err := e.feed.Create(context.Background(), "  Sinigang ", " Sampalok ")
	require.NoError(t, err)
	assert.Equal(t, "Sinigang", post.Title)
	assert.Equal(t, "Sampalok", post.Content)
	assert.True(t, e.store.Draft().Empty())
	assert.Equal(t, 1, e.forum.creates)
}

func TestCreate_RequiresLogin(t *testing.T) {
	e := newEnv(t, nil, confirm.NewScripted())
	_, err := e.feed.Create(context.Background(), "t", "c")
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotLoggedIn))
	assert.Equal(t, 0, e.forum.creates)
}

func TestEdit(t *testing.T) {
	e := newEnv(t, maria, confirm.NewScripted())
	post, err := e.feed.Edit(context.Background(), 1, "Adobo (updated)", " More garlic ")
	require.NoError(t, err)
	assert.True(t, post.IsEdited)
	assert.Equal(t, "More garlic", post.Content)
}

func TestDelete_Gated(t *testing.T) {
	e := newEnv(t, maria, confirm.NewScripted(false, true))

	err := e.feed.Delete(context.Background(), 1)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotConfirmed))
	assert.Empty(t, e.forum.deletes)

	require.NoError(t, e.feed.Delete(context.Background(), 1))
	assert.Equal(t, []int{1}, e.forum.deletes)
}

func TestDelete_NonInteractiveRefuses(t *testing.T) {
	e := newEnv(t, maria, confirm.NonInteractive{})
	err := e.feed.Delete(context.Background(), 1)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotConfirmed))
	assert.Empty(t, e.forum.deletes)
}

func TestToggleSave(t *testing.T) {
	e := newEnv(t, maria, confirm.NewScripted())

	saved, err := e.feed.ToggleSave(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, saved)

	list, err := e.feed.Saved(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].ID)

	saved, err = e.feed.ToggleSave(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, saved)
}

func TestToggleSave_InFlight(t *testing.T) {
	e := newEnv(t, maria, confirm.NewScripted())
	require.True(t, e.feed.acquireSave(1))

	_, err := e.feed.ToggleSave(context.Background(), 1)
	assert.True(t, utils.IsErrorCode(err, utils.ErrSaveInFlight))

	e.feed.releaseSave(1)
	_, err = e.feed.ToggleSave(context.Background(), 1)
	assert.NoError(t, err)
}

func TestMyPosts_ExactAuthor(t *testing.T) {
	e := newEnv(t, maria, confirm.NewScripted())

	mine, err := e.feed.MyPosts(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, 1, mine[0].ID)

	theirs, err := e.feed.MyPosts(context.Background(), "jose")
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, 2, theirs[0].ID)

	anon := newEnv(t, nil, confirm.NewScripted())
	_, err = anon.feed.MyPosts(context.Background(), "")
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotLoggedIn))
}

func TestDiscardDraft_Confirmed(t *testing.T) {
	e := newEnv(t, maria, confirm.NewScripted(false, true))
	require.NoError(t, e.store.SaveDraft(models.Draft{Title: "t"}))

	assert.Error(t, e.feed.DiscardDraft(context.Background()))
	assert.False(t, e.store.Draft().Empty())

	require.NoError(t, e.feed.DiscardDraft(context.Background()))
	assert.True(t, e.store.Draft().Empty())
}

func TestPostView_ReplyRefetchesExactlyOnce(t *testing.T) {
	e := newEnv(t, maria, confirm.NewScripted())

	pv, err := e.feed.Open(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, e.forum.getCount(1))
	require.Len(t, pv.Comments(), 1)

	thread := pv.Thread(confirm.NewGuard(confirm.NewScripted(), nil))
	require.NoError(t, thread.Reply(context.Background(), 7, "Sarap!"))
	assert.Equal(t, 2, e.forum.getCount(1))
	assert.Equal(t, 2, pv.Loads())

	e.forum.mu.Lock()
	e.forum.failReply = true
	e.forum.mu.Unlock()
	require.Error(t, thread.Reply(context.Background(), 7, "Again"))
	assert.Equal(t, 2, e.forum.getCount(1))
}

func TestPostView_VoteScenario(t *testing.T) {
	e := newEnv(t, maria, confirm.NewScripted())
	pv, err := e.feed.Open(context.Background(), 1)
	require.NoError(t, err)

	r := vote.NewReconciler(e.client, fakeAuth{user: maria}, nil, nil)
	var optimistic []vote.State
	r.Observe(func(tr vote.Transition) {
		if tr.Phase == vote.PhaseOptimistic {
			optimistic = append(optimistic, tr.State)
		}
	})

	require.NoError(t, pv.VotePost(context.Background(), r, models.VoteUp))
	assert.Equal(t, 11, pv.Post().Votes)
	assert.Equal(t, models.VoteUp, pv.Post().UserVote)

	require.NoError(t, pv.VotePost(context.Background(), r, models.VoteUp))
	assert.Equal(t, 10, pv.Post().Votes)
	assert.Equal(t, models.VoteNone, pv.Post().UserVote)

	assert.Equal(t, []vote.State{{Votes: 11, UserVote: models.VoteUp}, {Votes: 10, UserVote: models.VoteNone}}, optimistic)

	err = pv.VoteComment(context.Background(), r, 99, models.VoteUp)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}

func TestPostView_VoteDoesNotTouchHandedOutPosts(t *testing.T) {
	e := newEnv(t, maria, confirm.NewScripted())
	pv, err := e.feed.Open(context.Background(), 1)
	require.NoError(t, err)
	r := vote.NewReconciler(e.client, fakeAuth{user: maria}, nil, nil)

	before := pv.Post()
	done := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-done:
				return
			default:
				p := pv.Post()
				_ = p.Votes + int(p.UserVote)
			}
		}
	}()

	require.NoError(t, pv.VotePost(context.Background(), r, models.VoteUp))
	close(done)
	readers.Wait()

	assert.Equal(t, 10, before.Votes)
	assert.Equal(t, models.VoteNone, before.UserVote)
	assert.Equal(t, 11, pv.Post().Votes)
	assert.Equal(t, models.VoteUp, pv.Post().UserVote)
}

func TestSendFeedback(t *testing.T) {
	anon := newEnv(t, nil, confirm.NewScripted())
	err := anon.feed.SendFeedback(context.Background(), "bug", "", "  ", "")
	assert.True(t, utils.IsErrorCode(err, utils.ErrEmptyText))

	err = anon.feed.SendFeedback(context.Background(), "rant", "", "msg", "")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	require.NoError(t, anon.feed.SendFeedback(context.Background(), "", "", " Broken link ", "a@example.com"))
	assert.Equal(t, "general", anon.forum.lastBody["type"])
	assert.Equal(t, "General Feedback", anon.forum.lastBody["subject"])
	assert.Equal(t, "Broken link", anon.forum.lastBody["message"])
	assert.Equal(t, "a@example.com", anon.forum.lastBody["email"])

	in := newEnv(t, maria, confirm.NewScripted())
	require.NoError(t, in.feed.SendFeedback(context.Background(), "feature", strings.Repeat("x", 150), "Dark mode", "other@example.com"))
	assert.Equal(t, "maria@example.com", in.forum.lastBody["email"])
	assert.Len(t, in.forum.lastBody["subject"], 100)
}

func TestRenderDetail(t *testing.T) {
	fm := newForum()
	out := RenderDetail(fm.posts[1])
	assert.Contains(t, out, "Adobo recipe")
	assert.Contains(t, out, "1 comments")
	assert.Contains(t, out, "Yum")

	list := RenderList(nil, "No posts yet.")
	assert.Contains(t, list, "No posts yet.")
}
