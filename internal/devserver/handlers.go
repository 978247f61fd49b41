package devserver

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"katha/internal/models"
	"katha/internal/utils"
)

// Auth

func (s *Server) HandleObtainToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds models.Credentials
		if err := decodeBody(r, &creds); err != nil {
			writeError(w, err)
			return
		}
		if fields := requireFields(map[string]string{"username": creds.Username, "password": creds.Password}); fields != nil {
			writeError(w, fields)
			return
		}

		result, err := s.ask(&AccountByNameMsg{Username: creds.Username})
		var acc *Account
		if err == nil {
			acc = result.(*Account)
		}
		if acc == nil || len(acc.PasswordHash) == 0 ||
			bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(creds.Password)) != nil {
			writeError(w, utils.NewAppError(utils.ErrUnauthorized, "No active account found with the given credentials", nil))
			return
		}
		s.writeTokenPair(w, *acc, false)
	}
}

// HandleRefreshToken exchanges a refresh token for a new access token. The
// refresh token is rotated on every exchange.
func (s *Server) HandleRefreshToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Refresh string `json:"refresh"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, err)
			return
		}
		if fields := requireFields(map[string]string{"refresh": body.Refresh}); fields != nil {
			writeError(w, fields)
			return
		}

		claims, err := s.Tokens.Validate(body.Refresh, tokenRefresh)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Token is invalid or expired",
				"code":   "token_not_valid",
			})
			return
		}
		result, err := s.ask(&AccountByIDMsg{UserID: claims.UserID})
		if err != nil {
			writeError(w, err)
			return
		}
		s.writeTokenPair(w, *result.(*Account), false)
	}
}

func (s *Server) writeTokenPair(w http.ResponseWriter, acc Account, withIdentity bool) {
	access, refresh, err := s.Tokens.Pair(acc)
	if err != nil {
		writeError(w, utils.NewAppError(utils.ErrServer, "Could not sign token", err))
		return
	}
	pair := models.TokenPair{Access: access, Refresh: refresh}
	if withIdentity {
		pair.Username, pair.Email = acc.Username, acc.Email
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) HandleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reg models.Registration
		if err := decodeBody(r, &reg); err != nil {
			writeError(w, err)
			return
		}
		reg.Username = strings.TrimSpace(reg.Username)
		if fields := requireFields(map[string]string{"username": reg.Username}); fields != nil {
			writeError(w, fields)
			return
		}
		if msgs := ValidateUsername(reg.Username); msgs != nil {
			writeError(w, fieldError("username", msgs...))
			return
		}
		if msgs := ValidatePassword(reg.Password, reg.Username); msgs != nil {
			writeError(w, fieldError("password", msgs...))
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.MinCost)
		if err != nil {
			writeError(w, utils.NewAppError(utils.ErrServer, "Could not hash password", err))
			return
		}
		result, err := s.ask(&RegisterMsg{Username: reg.Username, Email: strings.TrimSpace(reg.Email), PasswordHash: hash})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result.(*Account).Profile())
	}
}

// HandleOAuth accepts a provider token and signs the user in, creating the
// account on first use. Only Google ID tokens are understood.
func (s *Server) HandleOAuth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("provider") != "google" {
			writeError(w, utils.NewAppError(utils.ErrNotFound, "Unsupported provider", nil))
			return
		}
		var body struct {
			IDToken     string `json:"id_token"`
			Credential  string `json:"credential"`
			AccessToken string `json:"access_token"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, err)
			return
		}
		token := firstNonEmpty(body.IDToken, body.Credential, body.AccessToken)
		if token == "" {
			writeError(w, utils.NewAppError(utils.ErrInvalidInput, "ID token or credential required", nil))
			return
		}

		email, err := GoogleEmail(token)
		if err != nil {
			writeError(w, err)
			return
		}
		result, err := s.ask(&AccountByEmailMsg{Email: email})
		if err != nil {
			writeError(w, err)
			return
		}
		s.writeTokenPair(w, *result.(*Account), true)
	}
}

// User

func (s *Server) HandleGetMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.ask(&AccountByIDMsg{UserID: UserIDFromContext(r.Context())})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result.(*Account).Profile())
	}
}

func (s *Server) HandleUpdateMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username *string `json:"username"`
			Email    *string `json:"email"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, err)
			return
		}
		result, err := s.ask(&UpdateAccountMsg{
			UserID:   UserIDFromContext(r.Context()),
			Username: body.Username,
			Email:    body.Email,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result.(*Account).Profile())
	}
}

// Posts

func (s *Server) HandleListPosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			Sort:     q.Get("sort"),
			Author:   q.Get("author"),
			DateFrom: parseISO(q.Get("date_from")),
			DateTo:   parseISO(q.Get("date_to")),
		}
		result, err := s.ask(&ListPostsMsg{UserID: UserIDFromContext(r.Context()), Filter: filter})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleGetPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		result, err := s.ask(&GetPostMsg{UserID: UserIDFromContext(r.Context()), PostID: id})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleCreatePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in models.PostInput
		if err := decodeBody(r, &in); err != nil {
			writeError(w, err)
			return
		}
		result, err := s.ask(&CreatePostMsg{
			UserID:  UserIDFromContext(r.Context()),
			Title:   in.Title,
			Content: in.Content,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

func (s *Server) HandleUpdatePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var in models.PostInput
		if err := decodeBody(r, &in); err != nil {
			writeError(w, err)
			return
		}
		result, err := s.ask(&UpdatePostMsg{
			UserID:  UserIDFromContext(r.Context()),
			PostID:  id,
			Title:   in.Title,
			Content: in.Content,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleDeletePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if _, err := s.ask(&DeletePostMsg{UserID: UserIDFromContext(r.Context()), PostID: id}); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleVote sets the caller's vote on a post or comment and answers with the
// updated object.
func (s *Server) HandleVote(kind models.VoteContentType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var body struct {
			Value *models.VoteValue `json:"value"`
		}
		if err := decodeBody(r, &body); err != nil || body.Value == nil {
			writeError(w, errVoteValue)
			return
		}
		result, err := s.ask(&VoteMsg{
			UserID:   UserIDFromContext(r.Context()),
			Kind:     kind,
			TargetID: id,
			Value:    *body.Value,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleToggleSave() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		result, err := s.ask(&ToggleSaveMsg{UserID: UserIDFromContext(r.Context()), PostID: id})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleSavedPosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.ask(&SavedPostsMsg{UserID: UserIDFromContext(r.Context())})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// Comments

func (s *Server) HandleCreateComment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in models.CommentInput
		if err := decodeBody(r, &in); err != nil {
			writeError(w, err)
			return
		}
		if in.PostID == 0 {
			writeError(w, fieldError("post", "This field is required."))
			return
		}
		result, err := s.ask(&CreateCommentMsg{
			UserID:   UserIDFromContext(r.Context()),
			PostID:   in.PostID,
			ParentID: in.ParentID,
			Text:     in.Text,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

func (s *Server) HandleUpdateComment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var in models.CommentInput
		if err := decodeBody(r, &in); err != nil {
			writeError(w, err)
			return
		}
		result, err := s.ask(&UpdateCommentMsg{UserID: UserIDFromContext(r.Context()), CommentID: id, Text: in.Text})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleDeleteComment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if _, err := s.ask(&DeleteCommentMsg{UserID: UserIDFromContext(r.Context()), CommentID: id}); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Notifications

func (s *Server) HandleListNotifications() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.ask(&ListNotificationsMsg{UserID: UserIDFromContext(r.Context())})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleUnreadCount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.ask(&UnreadCountMsg{UserID: UserIDFromContext(r.Context())})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		result, err := s.ask(&MarkReadMsg{UserID: UserIDFromContext(r.Context()), NotificationID: id})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleMarkAllRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.ask(&MarkAllReadMsg{UserID: UserIDFromContext(r.Context())}); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "All notifications marked as read."})
	}
}

// Feedback

func (s *Server) HandleFeedback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fb models.Feedback
		if err := decodeBody(r, &fb); err != nil {
			writeError(w, err)
			return
		}
		if _, err := s.ask(&FeedbackMsg{UserID: UserIDFromContext(r.Context()), Feedback: fb}); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, fb)
	}
}

// Health

func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.ask(&GetCountsMsg{})
		if err != nil {
			writeError(w, err)
			return
		}
		counts := result.(Counts)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "healthy",
			"counts":      counts,
			"server_time": time.Now(),
		})
	}
}

// helpers

// requireFields reports every blank field as "This field is required.".
func requireFields(fields map[string]string) error {
	missing := map[string][]string{}
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing[name] = []string{"This field is required."}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &utils.AppError{Code: utils.ErrValidation, Message: "Missing fields", Fields: missing}
}

// parseISO accepts the date and timestamp forms the posts/ filters allow.
// Unparseable values disable the filter.
func parseISO(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
