package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromResponse_ErrorKey(t *testing.T) {
	appErr := FromResponse(http.StatusForbidden, []byte(`{"error":"You can only edit your own posts."}`), "Failed to update post")

	assert.Equal(t, ErrForbidden, appErr.Code)
	assert.Equal(t, "You can only edit your own posts.", appErr.Message)
	assert.Nil(t, appErr.Fields)
}

func TestFromResponse_DetailKey(t *testing.T) {
	appErr := FromResponse(http.StatusUnauthorized, []byte(`{"detail":"No active account found with the given credentials"}`), "Login failed")

	assert.Equal(t, ErrUnauthorized, appErr.Code)
	assert.Equal(t, "No active account found with the given credentials", appErr.Message)
}

func TestFromResponse_FieldErrors(t *testing.T) {
	body := []byte(`{"username":["This username is already taken."],"password":["This password is too short.","This password is too common."]}`)
	appErr := FromResponse(http.StatusBadRequest, body, "Registration failed")

	require.Equal(t, ErrValidation, appErr.Code)
	assert.Equal(t, []string{"This username is already taken."}, appErr.Fields["username"])
	assert.Len(t, appErr.Fields["password"], 2)
	assert.Equal(t, "password: This password is too short. This password is too common.; username: This username is already taken.", appErr.Message)
}

func TestFromResponse_UnparsableBody(t *testing.T) {
	appErr := FromResponse(http.StatusInternalServerError, []byte("<html>oops</html>"), "Failed to vote")

	assert.Equal(t, ErrServer, appErr.Code)
	assert.Equal(t, "Failed to vote", appErr.Message)
}

func TestIsErrorCode_Wrapped(t *testing.T) {
	base := NewNetworkError("vote", errors.New("connection refused"))
	wrapped := fmt.Errorf("casting vote: %w", base)

	assert.True(t, IsErrorCode(wrapped, ErrNetwork))
	assert.False(t, IsErrorCode(wrapped, ErrNotFound))
	assert.False(t, IsAuthError(wrapped))
	assert.True(t, IsAuthError(NewNotLoggedInError("vote")))
	assert.Equal(t, "Network error during vote: connection refused", base.Error())
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Please log in to vote", UserMessage(NewNotLoggedInError("vote")))
	assert.Equal(t, "Your session has expired. Please log in again.", UserMessage(NewAppError(ErrUnauthorized, "401", nil)))
	assert.Equal(t, "boom", UserMessage(errors.New("boom")))
	assert.Empty(t, UserMessage(nil))
}

func TestUserMessage_ShowsUsageAndConfigErrors(t *testing.T) {
	assert.Equal(t, "accepts 1 arg(s), received 0", UserMessage(errors.New("accepts 1 arg(s), received 0")))

	bad := fmt.Errorf("--api-url: %w", errors.New(`unsupported scheme "ftp"`))
	assert.Equal(t, `--api-url: unsupported scheme "ftp"`, UserMessage(bad))

	wrapped := fmt.Errorf("loading feed: %w", NewAppError(ErrNotFound, "Post not found", nil))
	assert.Equal(t, "Post not found", UserMessage(wrapped))
}
