package devserver

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"katha/internal/models"
	"katha/internal/utils"
)

// Account is a registered user. PasswordHash is a bcrypt hash, empty for
// accounts created through OAuth.
type Account struct {
	ID           int
	Username     string
	Email        string
	PasswordHash []byte
	DateJoined   time.Time
}

// snapshot copies the account so it can leave the actor.
func (a *Account) snapshot() *Account {
	cp := *a
	return &cp
}

func (a Account) Profile() *models.Profile {
	return &models.Profile{ID: a.ID, Username: a.Username, Email: a.Email, DateJoined: a.DateJoined}
}

type post struct {
	id        int
	title     string
	content   string
	authorID  int
	createdAt time.Time
	editedAt  *time.Time
	votes     int
	topLevel  []int
}

type comment struct {
	id        int
	postID    int
	parentID  *int
	authorID  int
	text      string
	createdAt time.Time
	editedAt  *time.Time
	votes     int
	replies   []int
}

type notification struct {
	id        int
	userID    int
	kind      string
	postID    int
	commentID int
	actorID   int
	read      bool
	createdAt time.Time
}

type savedEntry struct {
	postID  int
	savedAt time.Time
}

// forum is the whole in-memory state. It is owned by a single ForumActor and
// never touched concurrently.
type forum struct {
	now func() time.Time

	accounts   map[int]*Account
	byUsername map[string]int

	posts         map[int]*post
	comments      map[int]*comment
	postVotes     map[int]map[int]models.VoteValue // post -> user -> value
	commentVotes  map[int]map[int]models.VoteValue // comment -> user -> value
	saved         map[int][]savedEntry             // user -> saved posts
	notifications map[int]*notification
	feedback      []models.Feedback

	nextID map[string]int
}

func newForum(now func() time.Time) *forum {
	if now == nil {
		now = time.Now
	}
	return &forum{
		now:           now,
		accounts:      make(map[int]*Account),
		byUsername:    make(map[string]int),
		posts:         make(map[int]*post),
		comments:      make(map[int]*comment),
		postVotes:     make(map[int]map[int]models.VoteValue),
		commentVotes:  make(map[int]map[int]models.VoteValue),
		saved:         make(map[int][]savedEntry),
		notifications: make(map[int]*notification),
		nextID:        make(map[string]int),
	}
}

func (f *forum) id(kind string) int {
	f.nextID[kind]++
	return f.nextID[kind]
}

// Accounts

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidateUsername returns the username field messages the server reports.
func ValidateUsername(name string) []string {
	switch {
	case len(name) < 3:
		return []string{"Username must be at least 3 characters long."}
	case len(name) > 30:
		return []string{"Username must be 30 characters or less."}
	case !usernamePattern.MatchString(name):
		return []string{"Username can only contain letters, numbers, and underscores."}
	case strings.Trim(name, "0123456789") == "":
		return []string{"Username cannot be just numbers."}
	}
	return nil
}

func fieldError(field string, messages ...string) *utils.AppError {
	return &utils.AppError{
		Code:    utils.ErrValidation,
		Message: fmt.Sprintf("%s: %s", field, strings.Join(messages, " ")),
		Fields:  map[string][]string{field: messages},
	}
}

func (f *forum) usernameTaken(name string, except int) bool {
	id, ok := f.byUsername[strings.ToLower(name)]
	return ok && id != except
}

func (f *forum) register(username, email string, hash []byte) (*Account, error) {
	if msgs := ValidateUsername(username); msgs != nil {
		return nil, fieldError("username", msgs...)
	}
	if f.usernameTaken(username, 0) {
		return nil, fieldError("username", "This username is already taken.")
	}
	acc := &Account{
		ID:           f.id("user"),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		DateJoined:   f.now(),
	}
	f.accounts[acc.ID] = acc
	f.byUsername[strings.ToLower(username)] = acc.ID
	return acc.snapshot(), nil
}

func (f *forum) accountByName(username string) (*Account, error) {
	id, ok := f.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, utils.NewAppError(utils.ErrNotFound, "No such account", nil)
	}
	return f.accounts[id].snapshot(), nil
}

func (f *forum) account(id int) (*Account, error) {
	acc, ok := f.accounts[id]
	if !ok {
		return nil, utils.NewAppError(utils.ErrUnauthorized, "User not found", nil)
	}
	return acc.snapshot(), nil
}

// accountByEmail returns the account with the given email, creating one with
// a username derived from the address when none exists.
func (f *forum) accountByEmail(email string) *Account {
	for _, acc := range f.accounts {
		if strings.EqualFold(acc.Email, email) {
			return acc.snapshot()
		}
	}

	base := strings.Map(func(r rune) rune {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, strings.SplitN(email, "@", 2)[0])
	if len(base) < 3 || strings.Trim(base, "0123456789") == "" {
		base = "user_" + base
	}
	if len(base) > 24 {
		base = base[:24]
	}
	name := base
	for n := 1; f.usernameTaken(name, 0); n++ {
		name = fmt.Sprintf("%s%d", base, n)
	}

	acc := &Account{ID: f.id("user"), Username: name, Email: email, DateJoined: f.now()}
	f.accounts[acc.ID] = acc
	f.byUsername[strings.ToLower(name)] = acc.ID
	return acc.snapshot()
}

func (f *forum) updateAccount(id int, username, email *string) (*Account, error) {
	acc, ok := f.accounts[id]
	if !ok {
		return nil, utils.NewAppError(utils.ErrUnauthorized, "User not found", nil)
	}
	if username != nil && *username != acc.Username {
		if msgs := ValidateUsername(*username); msgs != nil {
			return nil, fieldError("username", msgs...)
		}
		if f.usernameTaken(*username, id) {
			return nil, fieldError("username", "This username is already taken.")
		}
		delete(f.byUsername, strings.ToLower(acc.Username))
		acc.Username = *username
		f.byUsername[strings.ToLower(acc.Username)] = id
	}
	if email != nil {
		acc.Email = *email
	}
	return acc.snapshot(), nil
}

func (f *forum) username(id int) string {
	if acc, ok := f.accounts[id]; ok {
		return acc.Username
	}
	return ""
}

// Posts

// ListFilter is the parsed query of posts/.
type ListFilter struct {
	Sort     string
	Author   string
	DateFrom *time.Time
	DateTo   *time.Time
}

func (f *forum) listPosts(viewer int, flt ListFilter) []*models.Post {
	list := make([]*post, 0, len(f.posts))
	for _, p := range f.posts {
		if flt.Author != "" && !strings.Contains(strings.ToLower(f.username(p.authorID)), strings.ToLower(flt.Author)) {
			continue
		}
		if flt.DateFrom != nil && p.createdAt.Before(*flt.DateFrom) {
			continue
		}
		if flt.DateTo != nil && p.createdAt.After(*flt.DateTo) {
			continue
		}
		list = append(list, p)
	}

	weekAgo := f.now().Add(-7 * 24 * time.Hour)
	trending := func(p *post) int {
		score := p.votes*2 + len(p.topLevel)*3
		if !p.createdAt.Before(weekAgo) {
			score += 5
		}
		return score
	}
	newest := func(a, b *post) bool {
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.After(b.createdAt)
		}
		return a.id > b.id
	}

	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch flt.Sort {
		case models.SortOldest:
			return newest(b, a)
		case models.SortMostVoted:
			if a.votes != b.votes {
				return a.votes > b.votes
			}
		case models.SortMostComments:
			if len(a.topLevel) != len(b.topLevel) {
				return len(a.topLevel) > len(b.topLevel)
			}
		case models.SortTrending:
			if sa, sb := trending(a), trending(b); sa != sb {
				return sa > sb
			}
		}
		return newest(a, b)
	})

	out := make([]*models.Post, 0, len(list))
	for _, p := range list {
		out = append(out, f.postView(p, viewer, false))
	}
	return out
}

func (f *forum) post(id int) (*post, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, utils.NewAppError(utils.ErrNotFound, "Not found.", nil)
	}
	return p, nil
}

func (f *forum) getPost(viewer, id int) (*models.Post, error) {
	p, err := f.post(id)
	if err != nil {
		return nil, err
	}
	return f.postView(p, viewer, true), nil
}

func validatePostInput(title, content string) error {
	fields := map[string][]string{}
	switch {
	case title == "":
		fields["title"] = []string{"This field may not be blank."}
	case len([]rune(title)) > 200:
		fields["title"] = []string{"Ensure this field has no more than 200 characters."}
	}
	if content == "" {
		fields["content"] = []string{"This field may not be blank."}
	}
	if len(fields) == 0 {
		return nil
	}
	return &utils.AppError{Code: utils.ErrValidation, Message: "Invalid post", Fields: fields}
}

func (f *forum) createPost(author int, title, content string) (*models.Post, error) {
	title, content = strings.TrimSpace(title), strings.TrimSpace(content)
	if err := validatePostInput(title, content); err != nil {
		return nil, err
	}
	p := &post{
		id:        f.id("post"),
		title:     title,
		content:   content,
		authorID:  author,
		createdAt: f.now(),
	}
	f.posts[p.id] = p
	return f.postView(p, author, true), nil
}

func (f *forum) updatePost(user, id int, title, content string) (*models.Post, error) {
	p, err := f.post(id)
	if err != nil {
		return nil, err
	}
	if p.authorID != user {
		return nil, utils.NewAppError(utils.ErrForbidden, "You can only edit your own posts.", nil)
	}
	title, content = strings.TrimSpace(title), strings.TrimSpace(content)
	if err := validatePostInput(title, content); err != nil {
		return nil, err
	}
	now := f.now()
	p.title, p.content, p.editedAt = title, content, &now
	return f.postView(p, user, true), nil
}

func (f *forum) deletePost(user, id int) error {
	p, err := f.post(id)
	if err != nil {
		return err
	}
	if p.authorID != user {
		return utils.NewAppError(utils.ErrForbidden, "You can only delete your own posts.", nil)
	}
	for _, cid := range append([]int(nil), p.topLevel...) {
		f.dropComment(cid)
	}
	delete(f.posts, id)
	delete(f.postVotes, id)
	for uid, entries := range f.saved {
		f.saved[uid] = removeSaved(entries, id)
	}
	for nid, n := range f.notifications {
		if n.postID == id {
			delete(f.notifications, nid)
		}
	}
	return nil
}

func (f *forum) postView(p *post, viewer int, withComments bool) *models.Post {
	out := &models.Post{
		ID:             p.id,
		Title:          p.title,
		Content:        p.content,
		AuthorID:       p.authorID,
		AuthorUsername: f.username(p.authorID),
		CreatedAt:      p.createdAt,
		EditedAt:       p.editedAt,
		IsEdited:       p.editedAt != nil,
		Votes:          p.votes,
		UserVote:       f.postVotes[p.id][viewer],
		CommentCount:   len(p.topLevel),
		IsSaved:        f.isSaved(viewer, p.id),
	}
	if withComments {
		out.Comments = make([]*models.Comment, 0, len(p.topLevel))
		for _, cid := range p.topLevel {
			out.Comments = append(out.Comments, f.commentView(f.comments[cid], viewer))
		}
	}
	return out
}

// Votes

var errVoteValue = utils.NewAppError(utils.ErrInvalidInput,
	"Invalid vote value. Must be 1 (upvote), -1 (downvote), or 0 (remove vote).", nil)

// applyVote records the user's vote in ledger and returns the score delta.
// A zero value removes the vote; any other value replaces the previous one.
func applyVote(ledger map[int]models.VoteValue, user int, value models.VoteValue) int {
	old := ledger[user]
	if value == models.VoteNone {
		delete(ledger, user)
	} else {
		ledger[user] = value
	}
	return int(value) - int(old)
}

func (f *forum) votePost(user, id int, value models.VoteValue) (*models.Post, error) {
	if !value.Valid() {
		return nil, errVoteValue
	}
	p, err := f.post(id)
	if err != nil {
		return nil, err
	}
	if f.postVotes[id] == nil {
		f.postVotes[id] = make(map[int]models.VoteValue)
	}
	p.votes += applyVote(f.postVotes[id], user, value)
	return f.postView(p, user, true), nil
}

func (f *forum) voteComment(user, id int, value models.VoteValue) (*models.Comment, error) {
	if !value.Valid() {
		return nil, errVoteValue
	}
	c, err := f.comment(id)
	if err != nil {
		return nil, err
	}
	if f.commentVotes[id] == nil {
		f.commentVotes[id] = make(map[int]models.VoteValue)
	}
	c.votes += applyVote(f.commentVotes[id], user, value)
	return f.commentView(c, user), nil
}

// Saved posts

func (f *forum) isSaved(user, postID int) bool {
	for _, e := range f.saved[user] {
		if e.postID == postID {
			return true
		}
	}
	return false
}

func removeSaved(entries []savedEntry, postID int) []savedEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.postID != postID {
			out = append(out, e)
		}
	}
	return out
}

func (f *forum) toggleSave(user, id int) (*models.SaveResult, error) {
	p, err := f.post(id)
	if err != nil {
		return nil, err
	}
	saved := !f.isSaved(user, id)
	if saved {
		f.saved[user] = append(f.saved[user], savedEntry{postID: id, savedAt: f.now()})
	} else {
		f.saved[user] = removeSaved(f.saved[user], id)
	}
	return &models.SaveResult{IsSaved: saved, Post: f.postView(p, user, true)}, nil
}

func (f *forum) savedPosts(user int) []*models.Post {
	out := make([]*models.Post, 0, len(f.saved[user]))
	// Most recently saved first.
	for i := len(f.saved[user]) - 1; i >= 0; i-- {
		if p, ok := f.posts[f.saved[user][i].postID]; ok {
			out = append(out, f.postView(p, user, false))
		}
	}
	return out
}

// Comments

func (f *forum) comment(id int) (*comment, error) {
	c, ok := f.comments[id]
	if !ok {
		return nil, utils.NewAppError(utils.ErrNotFound, "Not found.", nil)
	}
	return c, nil
}

func (f *forum) createComment(user, postID int, parentID *int, text string) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fieldError("text", "This field may not be blank.")
	}
	p, ok := f.posts[postID]
	if !ok {
		return nil, fieldError("post", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", postID))
	}
	var parent *comment
	if parentID != nil {
		parent = f.comments[*parentID]
		if parent == nil || parent.postID != postID {
			return nil, fieldError("parent", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", *parentID))
		}
	}

	c := &comment{
		id:        f.id("comment"),
		postID:    postID,
		authorID:  user,
		text:      text,
		createdAt: f.now(),
	}
	f.comments[c.id] = c

	if parent != nil {
		pid := parent.id
		c.parentID = &pid
		parent.replies = append(parent.replies, c.id)
		if parent.authorID != user {
			f.notify(parent.authorID, models.NotificationReply, p.id, c.id, user)
		}
	} else {
		p.topLevel = append(p.topLevel, c.id)
		if p.authorID != user {
			f.notify(p.authorID, models.NotificationComment, p.id, c.id, user)
		}
	}
	return f.commentView(c, user), nil
}

func (f *forum) updateComment(user, id int, text string) (*models.Comment, error) {
	c, err := f.comment(id)
	if err != nil {
		return nil, err
	}
	if c.authorID != user {
		return nil, utils.NewAppError(utils.ErrForbidden, "You can only edit your own comments.", nil)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fieldError("text", "This field may not be blank.")
	}
	now := f.now()
	c.text, c.editedAt = text, &now
	return f.commentView(c, user), nil
}

func (f *forum) deleteComment(user, id int) error {
	c, err := f.comment(id)
	if err != nil {
		return err
	}
	if c.authorID != user {
		return utils.NewAppError(utils.ErrForbidden, "You can only delete your own comments.", nil)
	}
	if c.parentID != nil {
		if parent, ok := f.comments[*c.parentID]; ok {
			parent.replies = removeID(parent.replies, id)
		}
	} else if p, ok := f.posts[c.postID]; ok {
		p.topLevel = removeID(p.topLevel, id)
	}
	f.dropComment(id)
	return nil
}

// dropComment deletes a comment with its whole subtree, votes and notifications.
func (f *forum) dropComment(id int) {
	c, ok := f.comments[id]
	if !ok {
		return
	}
	for _, child := range c.replies {
		f.dropComment(child)
	}
	delete(f.comments, id)
	delete(f.commentVotes, id)
	for nid, n := range f.notifications {
		if n.commentID == id {
			delete(f.notifications, nid)
		}
	}
}

func removeID(ids []int, id int) []int {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (f *forum) commentView(c *comment, viewer int) *models.Comment {
	out := &models.Comment{
		ID:             c.id,
		PostID:         c.postID,
		ParentID:       c.parentID,
		AuthorID:       c.authorID,
		AuthorUsername: f.username(c.authorID),
		Text:           c.text,
		CreatedAt:      c.createdAt,
		EditedAt:       c.editedAt,
		IsEdited:       c.editedAt != nil,
		Votes:          c.votes,
		UserVote:       f.commentVotes[c.id][viewer],
		Replies:        make([]*models.Comment, 0, len(c.replies)),
	}
	for _, rid := range c.replies {
		out.Replies = append(out.Replies, f.commentView(f.comments[rid], viewer))
	}
	return out
}

// Notifications

func (f *forum) notify(user int, kind string, postID, commentID, actor int) {
	n := &notification{
		id:        f.id("notification"),
		userID:    user,
		kind:      kind,
		postID:    postID,
		commentID: commentID,
		actorID:   actor,
		createdAt: f.now(),
	}
	f.notifications[n.id] = n
}

func (f *forum) notificationsFor(user int) []*models.Notification {
	var mine []*notification
	for _, n := range f.notifications {
		if n.userID == user {
			mine = append(mine, n)
		}
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].id > mine[j].id })

	out := make([]*models.Notification, 0, len(mine))
	for _, n := range mine {
		out = append(out, f.notificationView(n))
	}
	return out
}

func (f *forum) notificationView(n *notification) *models.Notification {
	out := &models.Notification{
		ID:               n.id,
		NotificationType: n.kind,
		ActorUsername:    f.username(n.actorID),
		Read:             n.read,
		CreatedAt:        n.createdAt,
	}
	if p, ok := f.posts[n.postID]; ok {
		id := p.id
		out.PostID, out.PostTitle = &id, p.title
	}
	if c, ok := f.comments[n.commentID]; ok {
		id := c.id
		out.CommentID, out.CommentText = &id, c.text
	}
	return out
}

func (f *forum) unreadCount(user int) int {
	count := 0
	for _, n := range f.notifications {
		if n.userID == user && !n.read {
			count++
		}
	}
	return count
}

func (f *forum) markRead(user, id int) (*models.Notification, error) {
	n, ok := f.notifications[id]
	if !ok || n.userID != user {
		return nil, utils.NewAppError(utils.ErrNotFound, "Not found.", nil)
	}
	n.read = true
	return f.notificationView(n), nil
}

func (f *forum) markAllRead(user int) {
	for _, n := range f.notifications {
		if n.userID == user {
			n.read = true
		}
	}
}

// Feedback

func (f *forum) addFeedback(user int, fb models.Feedback) error {
	fb.Message = strings.TrimSpace(fb.Message)
	if fb.Message == "" {
		return fieldError("message", "This field may not be blank.")
	}
	if fb.Type == "" {
		fb.Type = "general"
	}
	valid := false
	for _, t := range models.FeedbackTypes {
		valid = valid || t == fb.Type
	}
	if !valid {
		return fieldError("type", fmt.Sprintf("\"%s\" is not a valid choice.", fb.Type))
	}
	if len([]rune(fb.Subject)) > 120 {
		return fieldError("subject", "Ensure this field has no more than 120 characters.")
	}
	if acc, ok := f.accounts[user]; ok && acc.Email != "" {
		fb.Email = acc.Email
	}
	f.feedback = append(f.feedback, fb)
	return nil
}

// Counts summarizes the forum for the health endpoint.
type Counts struct {
	Users         int `json:"user_count"`
	Posts         int `json:"post_count"`
	Comments      int `json:"comment_count"`
	Notifications int `json:"notification_count"`
	Feedback      int `json:"feedback_count"`
}

func (f *forum) counts() Counts {
	return Counts{
		Users:         len(f.accounts),
		Posts:         len(f.posts),
		Comments:      len(f.comments),
		Notifications: len(f.notifications),
		Feedback:      len(f.feedback),
	}
}
