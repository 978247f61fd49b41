package devserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katha/internal/api"
	"katha/internal/config"
	"katha/internal/database"
	"katha/internal/models"
	"katha/internal/session"
	"katha/internal/utils"
	"katha/internal/vote"
)

const testPassword = "Tala#2024"

type testEnv struct {
	t      *testing.T
	server *Server
	http   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.DefaultServerConfig()
	cfg.JWTSecret = "test-secret"
	s := NewServer(cfg, nil, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return &testEnv{t: t, server: s, http: srv}
}

type testClient struct {
	session *session.Session
	client  *api.Client
	tokens  *database.TokenStore
	metrics *utils.MetricsCollector
}

func (e *testEnv) client() *testClient {
	e.t.Helper()
	store, err := database.OpenInMemory()
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = store.Close() })

	tokens := database.NewTokenStore(store)
	mc := utils.NewMetricsCollector()
	c := api.NewClient(api.NewGateway(e.http.URL+"/api/v1/", tokens, api.WithMetrics(mc)))
	return &testClient{session: session.New(c, store, nil), client: c, tokens: tokens, metrics: mc}
}

// user registers and logs in a fresh client.
func (e *testEnv) user(name string) *testClient {
	e.t.Helper()
	tc := e.client()
	ctx := context.Background()
	require.NoError(e.t, tc.session.Register(ctx, name, name+"@example.com", testPassword))
	require.NoError(e.t, tc.session.Login(ctx, name, testPassword))
	return tc
}

func TestServer_RegisterLoginProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	maria := env.client()

	require.NoError(t, maria.session.Register(ctx, "maria", "maria@example.com", testPassword))
	assert.False(t, maria.session.IsLoggedIn())

	err := maria.session.Login(ctx, "maria", "wrong-Pass#1")
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnauthorized))

	require.NoError(t, maria.session.Login(ctx, "maria", testPassword))
	require.NotNil(t, maria.session.User())
	assert.Equal(t, "maria", maria.session.User().Username)
	assert.Equal(t, "maria@example.com", maria.session.User().Email)

	me, err := maria.client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "maria", me.Username)

	updated, err := maria.session.UpdateProfile(ctx, "maria_clara", "")
	require.NoError(t, err)
	assert.Equal(t, "maria_clara", updated.Username)
	assert.Equal(t, "maria@example.com", updated.Email)
}

func TestServer_RegisterReportsFieldErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.client().client

	require.NoError(t, c.Register(ctx, models.Registration{Username: "jose", Password: testPassword}))

	err := c.Register(ctx, models.Registration{Username: "jose", Password: testPassword})
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, utils.ErrValidation, appErr.Code)
	assert.Equal(t, []string{"This username is already taken."}, appErr.Fields["username"])

	err = c.Register(ctx, models.Registration{Username: "andres", Password: "andres2024"})
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields["password"], "The password is too similar to the username.")
}

func TestServer_ExpiredAccessTokenIsRefreshed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	maria := env.user("maria")
	before := maria.tokens.AccessToken()
	oldRefresh := maria.tokens.RefreshToken()

	env.server.ExpireAccessTokens()

	posts, err := maria.client.ListPosts(ctx, models.PostQuery{})
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.NotEqual(t, before, maria.tokens.AccessToken())
	assert.NotEqual(t, oldRefresh, maria.tokens.RefreshToken())
	assert.Equal(t, float64(1), maria.metrics.RefreshCount("ok"))
	assert.True(t, maria.session.IsLoggedIn())
}

func TestServer_RejectedRefreshEndsSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	maria := env.user("maria")
	require.NoError(t, maria.tokens.SetTokens(maria.tokens.AccessToken(), "not-a-token"))

	env.server.ExpireAccessTokens()

	_, err := maria.client.ListPosts(ctx, models.PostQuery{})
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnauthorized))
	assert.False(t, maria.session.IsLoggedIn())
	assert.Equal(t, float64(1), maria.metrics.RefreshCount("rejected"))
}

func TestServer_AnonymousCanReadButNotWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	maria := env.user("maria")
	p, err := maria.client.CreatePost(ctx, models.PostInput{Title: "Bukas", Content: "Para sa lahat"})
	require.NoError(t, err)

	anon := env.client().client
	got, err := anon.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "maria", got.AuthorUsername)

	_, err = anon.CreatePost(ctx, models.PostInput{Title: "x", Content: "y"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnauthorized))

	_, err = anon.GetPost(ctx, 404)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}

func TestServer_VoteThroughReconciler(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	maria := env.user("maria")
	p, err := maria.client.CreatePost(ctx, models.PostInput{Title: "Botohan", Content: "Pumili"})
	require.NoError(t, err)

	r := vote.NewReconciler(maria.client, maria.session, nil, maria.metrics)
	require.NoError(t, r.VotePost(ctx, p, models.VoteUp))
	assert.Equal(t, 1, p.Votes)
	assert.Equal(t, models.VoteUp, p.UserVote)

	require.NoError(t, r.VotePost(ctx, p, models.VoteDown))
	assert.Equal(t, -1, p.Votes)

	require.NoError(t, r.VotePost(ctx, p, models.VoteDown))
	assert.Equal(t, 0, p.Votes)
	assert.Equal(t, models.VoteNone, p.UserVote)

	fresh, err := maria.client.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.Votes)
	assert.Equal(t, models.VoteNone, fresh.UserVote)
}

func TestServer_AuthorOnlyEdit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	maria, jose := env.user("maria"), env.user("jose")
	p, err := maria.client.CreatePost(ctx, models.PostInput{Title: "Akin", Content: "Lamang"})
	require.NoError(t, err)

	_, err = jose.client.UpdatePost(ctx, p.ID, models.PostInput{Title: "Akin na", Content: "Ngayon"})
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, utils.ErrForbidden, appErr.Code)
	assert.Equal(t, "You can only edit your own posts.", appErr.Message)

	require.NoError(t, maria.client.DeletePost(ctx, p.ID))
}

func TestServer_CommentsAndNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	maria, jose := env.user("maria"), env.user("jose")
	p, err := maria.client.CreatePost(ctx, models.PostInput{Title: "Kwentuhan", Content: "Tara"})
	require.NoError(t, err)

	top, err := jose.client.CreateComment(ctx, models.CommentInput{PostID: p.ID, Text: "Nandito ako"})
	require.NoError(t, err)
	_, err = maria.client.CreateComment(ctx, models.CommentInput{PostID: p.ID, Text: "Salamat", ParentID: &top.ID})
	require.NoError(t, err)

	count, err := maria.client.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	list, err := jose.client.Notifications(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.NotificationReply, list[0].NotificationType)
	assert.Equal(t, "maria", list[0].ActorUsername)

	require.NoError(t, jose.client.MarkNotificationRead(ctx, list[0].ID))
	require.NoError(t, maria.client.MarkAllNotificationsRead(ctx))
	count, err = maria.client.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	detail, err := jose.client.GetPost(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, detail.Comments, 1)
	require.Len(t, detail.Comments[0].Replies, 1)

	_, err = jose.client.UpdateComment(ctx, top.ID, "Nandito pa rin")
	require.NoError(t, err)
	require.NoError(t, jose.client.DeleteComment(ctx, top.ID))

	detail, err = jose.client.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Comments)
}

func TestServer_SaveToggle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	maria := env.user("maria")
	p, err := maria.client.CreatePost(ctx, models.PostInput{Title: "Itago", Content: "Mamaya"})
	require.NoError(t, err)

	res, err := maria.client.SavePost(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, res.IsSaved)

	saved, err := maria.client.SavedPosts(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.True(t, saved[0].IsSaved)

	res, err = maria.client.SavePost(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, res.IsSaved)
}

func TestServer_FeedbackIsOpenToAnyone(t *testing.T) {
	env := newTestEnv(t)
	anon := env.client().client
	err := anon.SendFeedback(context.Background(), models.Feedback{Type: "bug", Subject: "Sira", Message: "Hindi gumagana"})
	require.NoError(t, err)

	err = anon.SendFeedback(context.Background(), models.Feedback{Type: "complaint", Message: "x"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrValidation))
}

func TestServer_InjectedFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	anon := env.client().client

	env.server.FailNext("/api/v1/posts/", 1, http.StatusServiceUnavailable)
	_, err := anon.ListPosts(ctx, models.PostQuery{})
	assert.True(t, utils.IsErrorCode(err, utils.ErrServer))

	_, err = anon.ListPosts(ctx, models.PostQuery{})
	assert.NoError(t, err)
}

func TestServer_GoogleLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tc := env.client()

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":   "https://accounts.google.com",
		"email": "gabriela.silang@gmail.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("google-does-not-share"))
	require.NoError(t, err)

	require.NoError(t, tc.session.OAuthLogin(ctx, "google", idToken))
	assert.Equal(t, "gabriela_silang", tc.session.User().Username)

	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "evil.example.com", "email": "x@example.com",
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	err = env.client().session.OAuthLogin(ctx, "google", bad)
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnauthorized))
}

func TestServer_MetricsAndHealth(t *testing.T) {
	env := newTestEnv(t)
	anon := env.client().client
	_, err := anon.ListPosts(context.Background(), models.PostQuery{})
	require.NoError(t, err)

	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `katha_requests_total{operation="/api/v1/posts/",status="2xx"} 1`))

	resp, err = http.Get(env.http.URL + "/health")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `"status":"healthy"`)
}

func TestServer_DevHooksOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	maria := env.user("maria")
	before := maria.tokens.AccessToken()

	resp, err := http.Post(env.http.URL+"/__dev/expire-tokens", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = maria.client.Me(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, maria.tokens.AccessToken())

	resp, err = http.Post(env.http.URL+"/__dev/fail", "application/json",
		strings.NewReader(`{"path":"/api/v1/user/me/","count":1,"status":500}`))
	require.NoError(t, err)
	resp.Body.Close()
	_, err = maria.client.Me(ctx)
	assert.True(t, utils.IsErrorCode(err, utils.ErrServer))
}

func TestCORS_Preflight(t *testing.T) {
	cfg := config.DefaultServerConfig()
	cfg.AllowedOrigins = []string{"http://localhost:5173"}
	s := NewServer(cfg, nil, nil)
	t.Cleanup(s.Close)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/posts/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/posts/", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
