package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katha/internal/models"
	"katha/internal/utils"
)

func TestPostsEndpoint(t *testing.T) {
	assert.Equal(t, "posts/", PostsEndpoint(models.PostQuery{}))
	assert.Equal(t,
		"posts/?author=maria&date_from=2024-01-01&sort=most_voted",
		PostsEndpoint(models.PostQuery{Sort: models.SortMostVoted, Author: "maria", DateFrom: "2024-01-01"}),
	)
}

func TestVoteEndpoint(t *testing.T) {
	assert.Equal(t, "posts/7/vote/", VoteEndpoint(models.PostVote, 7))
	assert.Equal(t, "comments/9/vote/", VoteEndpoint(models.CommentVote, 9))
}

func TestClient_VoteSendsValue(t *testing.T) {
	var got models.VoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/comments/9/vote/", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":9,"votes":4,"user_vote":-1,"text":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(NewGateway(srv.URL+"/api/v1/", &memTokens{access: "a"}))
	res, err := c.Vote(context.Background(), models.CommentVote, 9, models.VoteDown)
	require.NoError(t, err)
	assert.Equal(t, models.VoteDown, got.Value)
	assert.Equal(t, 4, res.Votes)
	assert.Equal(t, models.VoteDown, res.UserVote)
}

func TestClient_DeleteAccepts204(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(NewGateway(srv.URL+"/api/v1/", &memTokens{access: "a"}))
	assert.NoError(t, c.DeleteComment(context.Background(), 3))
	assert.NoError(t, c.DeletePost(context.Background(), 3))
}

func TestClient_RegisterFieldErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"username":["A user with that username already exists."]}`))
	}))
	defer srv.Close()

	c := NewClient(NewGateway(srv.URL+"/api/v1/", &memTokens{}))
	err := c.Register(context.Background(), models.Registration{Username: "maria", Password: "x"})
	require.Error(t, err)

	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, utils.ErrValidation, appErr.Code)
	assert.Equal(t, []string{"A user with that username already exists."}, appErr.Fields["username"])
}

func TestClient_ObtainTokenFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/token/", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))
	}))
	defer srv.Close()

	c := NewClient(NewGateway(srv.URL+"/api/v1/", &memTokens{}))
	_, err := c.ObtainToken(context.Background(), models.Credentials{Username: "a", Password: "b"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnauthorized))
	assert.Contains(t, err.Error(), "No active account")
}

func TestClient_SendFeedbackRequiresMessage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"type":"bug"`)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(NewGateway(srv.URL+"/api/v1/", &memTokens{}))
	err := c.SendFeedback(context.Background(), models.Feedback{Type: "bug"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
	assert.Equal(t, 0, calls)

	require.NoError(t, c.SendFeedback(context.Background(), models.Feedback{Type: "bug", Message: "Broken link"}))
	assert.Equal(t, 1, calls)
}
