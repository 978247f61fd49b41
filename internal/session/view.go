package session

// View names of the client.
const (
	ViewFeed          = "feed"
	ViewLogin         = "login"
	ViewRegister      = "register"
	ViewCreate        = "create"
	ViewDetail        = "detail"
	ViewProfile       = "profile"
	ViewSettings      = "settings"
	ViewMyPosts       = "myPosts"
	ViewSaved         = "saved"
	ViewFeedback      = "feedback"
	ViewNotifications = "notifications"
)

// View is what the client is currently showing. PostID is set for the detail
// view, Username for per-user listings.
type View struct {
	Name     string
	PostID   int
	Username string
}

// SetView switches the current view. Unknown names fall back to the feed.
func (s *Session) SetView(name string, postID int, username string) View {
	if !knownView(name) {
		name = ViewFeed
	}
	v := View{Name: name, PostID: postID, Username: username}
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
	return v
}

func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

func knownView(name string) bool {
	switch name {
	case ViewFeed, ViewLogin, ViewRegister, ViewCreate, ViewDetail, ViewProfile,
		ViewSettings, ViewMyPosts, ViewSaved, ViewFeedback, ViewNotifications:
		return true
	}
	return false
}
