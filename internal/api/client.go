package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"katha/internal/models"
	"katha/internal/utils"
)

// Client wraps a Gateway with one method per REST endpoint. Methods decode
// 2xx bodies and turn any other status into an *utils.AppError.
type Client struct {
	gw *Gateway
}

func NewClient(gw *Gateway) *Client {
	return &Client{gw: gw}
}

// Gateway returns the underlying gateway.
func (c *Client) Gateway() *Gateway {
	return c.gw
}

func (c *Client) call(ctx context.Context, method, endpoint string, body, out any, fallback string) error {
	resp, err := c.gw.Send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if err := resp.Err(fallback); err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.Decode(out)
}

// Auth

// ObtainToken posts credentials to token/ on the auth root.
func (c *Client) ObtainToken(ctx context.Context, creds models.Credentials) (*models.TokenPair, error) {
	resp, err := c.gw.SendAuth(ctx, "token/", creds)
	if err != nil {
		return nil, err
	}
	if err := resp.Err("Login failed. Check your username and password."); err != nil {
		return nil, err
	}
	var pair models.TokenPair
	if err := resp.Decode(&pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

func (c *Client) Register(ctx context.Context, reg models.Registration) error {
	return c.call(ctx, http.MethodPost, "register/", reg, nil, "Registration failed")
}

// OAuthLogin exchanges a provider access token for a Katha token pair.
func (c *Client) OAuthLogin(ctx context.Context, provider, accessToken string) (*models.TokenPair, error) {
	var pair models.TokenPair
	endpoint := fmt.Sprintf("auth/%s/", url.PathEscape(provider))
	body := map[string]string{"access_token": accessToken}
	if err := c.call(ctx, http.MethodPost, endpoint, body, &pair, provider+" login failed"); err != nil {
		return nil, err
	}
	return &pair, nil
}

func (c *Client) Me(ctx context.Context) (*models.Profile, error) {
	var p models.Profile
	if err := c.call(ctx, http.MethodGet, "user/me/", nil, &p, "Could not load profile"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdateMe(ctx context.Context, upd models.ProfileUpdate) (*models.Profile, error) {
	var p models.Profile
	if err := c.call(ctx, http.MethodPatch, "user/me/", upd, &p, "Could not update profile"); err != nil {
		return nil, err
	}
	return &p, nil
}

// Posts

// ListPosts fetches posts/ with the query's filters.
func (c *Client) ListPosts(ctx context.Context, q models.PostQuery) ([]*models.Post, error) {
	var posts []*models.Post
	if err := c.call(ctx, http.MethodGet, PostsEndpoint(q), nil, &posts, "Could not load posts"); err != nil {
		return nil, err
	}
	return posts, nil
}

// PostsEndpoint builds posts/ with its query string; empty filters are omitted.
func PostsEndpoint(q models.PostQuery) string {
	v := url.Values{}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if q.Author != "" {
		v.Set("author", q.Author)
	}
	if q.DateFrom != "" {
		v.Set("date_from", q.DateFrom)
	}
	if q.DateTo != "" {
		v.Set("date_to", q.DateTo)
	}
	if len(v) == 0 {
		return "posts/"
	}
	return "posts/?" + v.Encode()
}

func (c *Client) GetPost(ctx context.Context, id int) (*models.Post, error) {
	var p models.Post
	if err := c.call(ctx, http.MethodGet, postPath(id), nil, &p, "Post not found"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) CreatePost(ctx context.Context, in models.PostInput) (*models.Post, error) {
	var p models.Post
	if err := c.call(ctx, http.MethodPost, "posts/", in, &p, "Could not create post"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdatePost(ctx context.Context, id int, in models.PostInput) (*models.Post, error) {
	var p models.Post
	if err := c.call(ctx, http.MethodPut, postPath(id), in, &p, "Could not update post"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) DeletePost(ctx context.Context, id int) error {
	return c.call(ctx, http.MethodDelete, postPath(id), nil, nil, "Could not delete post")
}

func (c *Client) SavePost(ctx context.Context, id int) (*models.SaveResult, error) {
	var res models.SaveResult
	if err := c.call(ctx, http.MethodPost, postPath(id)+"save/", nil, &res, "Could not save post"); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) SavedPosts(ctx context.Context) ([]*models.Post, error) {
	var posts []*models.Post
	if err := c.call(ctx, http.MethodGet, "posts/saved/", nil, &posts, "Could not load saved posts"); err != nil {
		return nil, err
	}
	return posts, nil
}

// Votes

// Vote posts {value} to the target's vote endpoint and returns the server's
// score and the caller's vote. A success without a body is DECODE_FAILED:
// there is nothing to commit.
func (c *Client) Vote(ctx context.Context, kind models.VoteContentType, id int, value models.VoteValue) (*models.VoteResult, error) {
	resp, err := c.gw.Send(ctx, http.MethodPost, VoteEndpoint(kind, id), models.VoteRequest{Value: value})
	if err != nil {
		return nil, err
	}
	if err := resp.Err("Vote failed"); err != nil {
		return nil, err
	}
	var res models.VoteResult
	if err := resp.Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

func VoteEndpoint(kind models.VoteContentType, id int) string {
	if kind == models.CommentVote {
		return commentPath(id) + "vote/"
	}
	return postPath(id) + "vote/"
}

// Comments

func (c *Client) CreateComment(ctx context.Context, in models.CommentInput) (*models.Comment, error) {
	var cm models.Comment
	if err := c.call(ctx, http.MethodPost, "comments/", in, &cm, "Could not add comment"); err != nil {
		return nil, err
	}
	return &cm, nil
}

func (c *Client) UpdateComment(ctx context.Context, id int, text string) (*models.Comment, error) {
	var cm models.Comment
	body := map[string]string{"text": text}
	if err := c.call(ctx, http.MethodPut, commentPath(id), body, &cm, "Could not update comment"); err != nil {
		return nil, err
	}
	return &cm, nil
}

func (c *Client) DeleteComment(ctx context.Context, id int) error {
	return c.call(ctx, http.MethodDelete, commentPath(id), nil, nil, "Could not delete comment")
}

// Notifications

func (c *Client) Notifications(ctx context.Context) ([]*models.Notification, error) {
	var list []*models.Notification
	if err := c.call(ctx, http.MethodGet, "notifications/", nil, &list, "Could not load notifications"); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var uc models.UnreadCount
	if err := c.call(ctx, http.MethodGet, "notifications/unread_count/", nil, &uc, "Could not load unread count"); err != nil {
		return 0, err
	}
	return uc.Count, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id int) error {
	endpoint := fmt.Sprintf("notifications/%d/mark_read/", id)
	return c.call(ctx, http.MethodPost, endpoint, nil, nil, "Could not mark notification read")
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "notifications/mark_all_read/", nil, nil, "Could not mark notifications read")
}

// Feedback

func (c *Client) SendFeedback(ctx context.Context, fb models.Feedback) error {
	if fb.Message == "" {
		return utils.NewAppError(utils.ErrInvalidInput, "Feedback message is required", nil)
	}
	return c.call(ctx, http.MethodPost, "feedback/", fb, nil, "Could not send feedback")
}

func postPath(id int) string {
	return fmt.Sprintf("posts/%d/", id)
}

func commentPath(id int) string {
	return fmt.Sprintf("comments/%d/", id)
}
