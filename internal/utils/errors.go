package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any

	// Field-level messages reported by the server, keyed by field name
	Fields map[string][]string
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// Standard error codes for the client
const (
	// Transport errors
	ErrNetwork = "NETWORK_ERROR"
	ErrDecode  = "DECODE_FAILED"
	ErrServer  = "SERVER_ERROR"

	// Resource errors
	ErrNotFound     = "NOT_FOUND"
	ErrInvalidInput = "INVALID_INPUT"
	ErrValidation   = "VALIDATION_FAILED"

	// Authentication/Authorization errors
	ErrUnauthorized = "UNAUTHORIZED"
	ErrForbidden    = "FORBIDDEN" // Authenticated but not the owner
	ErrNotLoggedIn  = "NOT_LOGGED_IN"

	// Local guards, raised before any request leaves the client
	ErrVoteInFlight = "VOTE_IN_FLIGHT"
	ErrSaveInFlight = "SAVE_IN_FLIGHT"
	ErrNotConfirmed = "NOT_CONFIRMED"
	ErrEmptyText    = "EMPTY_TEXT"

	// Rate limiting
	ErrTooManyRequests = "TOO_MANY_REQUESTS"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewNetworkError(op string, err error) *AppError {
	return &AppError{
		Code:    ErrNetwork,
		Message: "Network error during " + op,
		Origin:  err,
	}
}

func NewNotLoggedInError(action string) *AppError {
	return &AppError{
		Code:    ErrNotLoggedIn,
		Message: "Please log in to " + action,
	}
}

func NewEmptyTextError(what string) *AppError {
	return &AppError{
		Code:    ErrEmptyText,
		Message: what + " cannot be empty",
	}
}

func NewNotConfirmedError(action string) *AppError {
	return &AppError{
		Code:    ErrNotConfirmed,
		Message: "Cancelled: " + action,
	}
}

// IsErrorCode reports whether err (or anything it wraps) is an AppError with the given code.
func IsErrorCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Helper method to check if an error is related to authentication
func IsAuthError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrUnauthorized ||
			appErr.Code == ErrForbidden ||
			appErr.Code == ErrNotLoggedIn
	}
	return false
}

// HTTPStatusToAppErrorCode maps a non-2xx HTTP status to an AppError code.
func HTTPStatusToAppErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrInvalidInput
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrTooManyRequests
	default:
		return ErrServer
	}
}

// FromResponse builds an AppError out of a failed response body. The server
// reports errors as {"error": "..."}, {"detail": "..."} or a map of field
// names to message lists; anything else falls back to fallback.
func FromResponse(status int, body []byte, fallback string) *AppError {
	appErr := &AppError{
		Code:    HTTPStatusToAppErrorCode(status),
		Message: fallback,
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) == 0 {
		return appErr
	}

	for _, key := range []string{"error", "detail", "message"} {
		if v, ok := raw[key]; ok {
			var msg string
			if json.Unmarshal(v, &msg) == nil && msg != "" {
				appErr.Message = msg
				return appErr
			}
		}
	}

	fields := make(map[string][]string)
	for key, v := range raw {
		var list []string
		if json.Unmarshal(v, &list) == nil && len(list) > 0 {
			fields[key] = list
			continue
		}
		var single string
		if json.Unmarshal(v, &single) == nil && single != "" {
			fields[key] = []string{single}
		}
	}
	if len(fields) > 0 {
		appErr.Fields = fields
		if appErr.Code == ErrInvalidInput {
			appErr.Code = ErrValidation
		}
		appErr.Message = summarizeFields(fields)
	}
	return appErr
}

func summarizeFields(fields map[string][]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(fields[k], " ")))
	}
	return strings.Join(parts, "; ")
}

// UserMessage renders err the way it should be shown to a person. Errors
// that are not AppErrors (usage, config and local store failures) are shown
// as they are.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return err.Error()
	}
	switch appErr.Code {
	case ErrNetwork:
		return appErr.Message + ". Check your connection and try again."
	case ErrUnauthorized:
		return "Your session has expired. Please log in again."
	case ErrDecode:
		return "The server sent an unexpected response."
	default:
		return appErr.Message
	}
}
