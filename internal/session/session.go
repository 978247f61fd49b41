// Package session owns the logged-in identity and the current view.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"katha/internal/api"
	"katha/internal/models"
	"katha/internal/utils"
)

// SearchStore persists the last search term.
type SearchStore interface {
	SearchTerm() string
	SetSearchTerm(term string) (string, error)
}

// Session is passed explicitly to every component that needs to know who is
// logged in. It is safe for concurrent use.
type Session struct {
	client *api.Client
	tokens api.TokenStore
	search SearchStore
	logger *slog.Logger

	mu         sync.RWMutex
	user       *models.Identity
	view       View
	searchTerm string
	onLogout   []func()
}

func New(client *api.Client, search SearchStore, logger *slog.Logger) *Session {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	s := &Session{
		client: client,
		tokens: client.Gateway().Tokens(),
		search: search,
		logger: logger,
		view:   View{Name: ViewFeed},
	}
	if search != nil {
		s.searchTerm = search.SearchTerm()
	}
	return s
}

// Client returns the API client bound to this session.
func (s *Session) Client() *api.Client {
	return s.client
}

// IsLoggedIn reports whether an access token is held. The server decides
// whether it is still valid.
func (s *Session) IsLoggedIn() bool {
	return s.tokens.AccessToken() != ""
}

// User returns the displayed identity, or nil when logged out. Before
// RefreshUser has run it is decoded from the access token.
func (s *Session) User() *models.Identity {
	access := s.tokens.AccessToken()
	if access == "" {
		return nil
	}
	s.mu.RLock()
	user := s.user
	s.mu.RUnlock()
	if user != nil {
		return user
	}
	return DecodeIdentity(access)
}

// Login exchanges credentials for a token pair and stores it.
func (s *Session) Login(ctx context.Context, username, password string) error {
	pair, err := s.client.ObtainToken(ctx, models.Credentials{Username: username, Password: password})
	if err != nil {
		s.logger.Info("login failed", "username", username, "error", err)
		return err
	}
	return s.establish(pair)
}

// OAuthLogin exchanges a provider access token for a token pair.
func (s *Session) OAuthLogin(ctx context.Context, provider, accessToken string) error {
	pair, err := s.client.OAuthLogin(ctx, provider, accessToken)
	if err != nil {
		return err
	}
	return s.establish(pair)
}

func (s *Session) establish(pair *models.TokenPair) error {
	if pair.Access == "" {
		return utils.NewAppError(utils.ErrDecode, "Login response carried no token", nil)
	}
	if err := s.tokens.SetTokens(pair.Access, pair.Refresh); err != nil {
		return fmt.Errorf("storing tokens: %w", err)
	}

	user := DecodeIdentity(pair.Access)
	if pair.Username != "" {
		user = &models.Identity{Username: pair.Username, Email: pair.Email}
	}
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()

	if user != nil {
		s.logger.Info("logged in", "username", user.Username)
	}
	return nil
}

// Register creates an account. It does not log in.
func (s *Session) Register(ctx context.Context, username, email, password string) error {
	if strings.TrimSpace(username) == "" {
		return &utils.AppError{
			Code:    utils.ErrValidation,
			Message: "Username is required",
			Fields:  map[string][]string{"username": {"This field may not be blank."}},
		}
	}
	if err := CheckPassword(password); err != nil {
		return err
	}

	err := s.client.Register(ctx, models.Registration{Username: username, Email: email, Password: password})
	if err != nil {
		return registrationError(err)
	}
	s.logger.Info("registered", "username", username)
	return nil
}

// Logout forgets both tokens and the identity, then runs the logout hooks.
func (s *Session) Logout() error {
	err := s.tokens.ClearTokens()

	s.mu.Lock()
	s.user = nil
	hooks := append([]func(){}, s.onLogout...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return err
}

// OnLogout registers fn to run after every Logout.
func (s *Session) OnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

// RefreshUser reloads the identity from user/me/, falling back to the claims
// of the access token when the request fails. It reports whether the server
// answered.
func (s *Session) RefreshUser(ctx context.Context) (*models.Identity, bool) {
	access := s.tokens.AccessToken()
	if access == "" {
		s.mu.Lock()
		s.user = nil
		s.mu.Unlock()
		return nil, false
	}

	claims := DecodeIdentity(access)
	profile, err := s.client.Me(ctx)
	if err != nil {
		s.logger.Warn("loading profile failed, using token claims", "error", err)
		s.mu.Lock()
		s.user = claims
		s.mu.Unlock()
		return claims, false
	}

	user := &models.Identity{Username: profile.Username, Email: profile.Email}
	if claims != nil {
		if user.Username == "" {
			user.Username = claims.Username
		}
		if user.Email == "" {
			user.Email = claims.Email
		}
	}
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return user, true
}

// UpdateProfile changes username and/or email and refreshes the identity.
func (s *Session) UpdateProfile(ctx context.Context, username, email string) (*models.Profile, error) {
	if !s.IsLoggedIn() {
		return nil, utils.NewNotLoggedInError("update your profile")
	}
	upd := models.ProfileUpdate{
		Username: strings.TrimSpace(username),
		Email:    strings.TrimSpace(email),
	}
	if upd.Username == "" && upd.Email == "" {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "Nothing to update", nil)
	}
	profile, err := s.client.UpdateMe(ctx, upd)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.user = &models.Identity{Username: profile.Username, Email: profile.Email}
	s.mu.Unlock()
	return profile, nil
}

// SearchTerm returns the current feed filter.
func (s *Session) SearchTerm() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searchTerm
}

// SetSearchTerm trims and persists term; an empty term removes it.
func (s *Session) SetSearchTerm(term string) error {
	trimmed := strings.TrimSpace(term)
	if s.search != nil {
		var err error
		if trimmed, err = s.search.SetSearchTerm(term); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.searchTerm = trimmed
	s.mu.Unlock()
	return nil
}

// DecodeIdentity reads username (or user_id) and email from an access token
// without verifying its signature. It returns nil for anything unreadable.
func DecodeIdentity(token string) *models.Identity {
	if token == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}

	id := &models.Identity{}
	if u, ok := claims["username"].(string); ok && u != "" {
		id.Username = u
	} else if uid, ok := claims["user_id"]; ok && uid != nil {
		id.Username = claimString(uid)
	}
	if e, ok := claims["email"].(string); ok {
		id.Email = e
	}
	return id
}

func claimString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%.0f", x)
	default:
		return fmt.Sprint(x)
	}
}
