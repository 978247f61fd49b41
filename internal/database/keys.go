package database

// Keys of the local store. The token keys carry no prefix so a state dir can
// be inspected next to a browser profile of the web client.
const (
	KeyAccessToken  = "access"
	KeyRefreshToken = "refresh"
	KeyTheme        = "katha:theme"
	KeySidebarOpen  = "katha:sidebar-open"
	KeySearch       = "katha:search"
	KeyDraft        = "katha:draft"
)

// TokenStore keeps the access/refresh pair in the local store.
type TokenStore struct {
	store *Store
}

func NewTokenStore(store *Store) *TokenStore {
	return &TokenStore{store: store}
}

func (t *TokenStore) AccessToken() string {
	return t.store.GetString(KeyAccessToken)
}

func (t *TokenStore) RefreshToken() string {
	return t.store.GetString(KeyRefreshToken)
}

// SetTokens persists both tokens, as after a login.
func (t *TokenStore) SetTokens(access, refresh string) error {
	if err := t.store.Set(KeyAccessToken, access); err != nil {
		return err
	}
	return t.store.Set(KeyRefreshToken, refresh)
}

// SetAccessToken persists only the access token, as after a refresh.
func (t *TokenStore) SetAccessToken(access string) error {
	return t.store.Set(KeyAccessToken, access)
}

// ClearTokens removes both tokens.
func (t *TokenStore) ClearTokens() error {
	return t.store.Delete(KeyAccessToken, KeyRefreshToken)
}
