package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"example.com/engagefeed/internal/models"
	"example.com/engagefeed/internal/query"
	"github.com/google/uuid"
)

var errMemoryFail = errors.New("memory store: simulated failure")

type likeKey struct{ account, post string }

// MemoryStore keeps everything in maps behind one mutex. Every conditional
// write checks and mutates under the write lock, which gives it the same
// insert-if-absent guarantee as the Cassandra LWTs.
type MemoryStore struct {
	mu sync.RWMutex

	Accounts      map[string]models.Account
	Usernames     map[string]string
	Follows       map[string]map[string]time.Time // follower -> followee -> created
	Posts         map[string]models.Post
	Comments      map[string]models.Comment
	Likes         map[likeKey]time.Time
	Notifications map[string]models.Notification

	ShouldFail bool // flag to simulate failures
}

// NewMemory initializes an empty in-memory store
func NewMemory() *MemoryStore {
	return &MemoryStore{
		Accounts:      make(map[string]models.Account),
		Usernames:     make(map[string]string),
		Follows:       make(map[string]map[string]time.Time),
		Posts:         make(map[string]models.Post),
		Comments:      make(map[string]models.Comment),
		Likes:         make(map[likeKey]time.Time),
		Notifications: make(map[string]models.Notification),
	}
}

func (m *MemoryStore) Close() {}

// SetFail toggles simulated failures.
func (m *MemoryStore) SetFail(fail bool) {
	m.mu.Lock()
	m.ShouldFail = fail
	m.mu.Unlock()
}

// --- Accounts ---

func (m *MemoryStore) CreateAccount(_ context.Context, username, passwordHash string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return models.Account{}, errMemoryFail
	}
	if _, taken := m.Usernames[username]; taken {
		return models.Account{}, ErrConflict
	}
	acc := models.Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		Created:      time.Now().UTC(),
	}
	m.Accounts[acc.ID] = acc
	m.Usernames[username] = acc.ID
	return acc, nil
}

func (m *MemoryStore) GetAccount(_ context.Context, id string) (models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ShouldFail {
		return models.Account{}, errMemoryFail
	}
	acc, ok := m.Accounts[id]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return acc, nil
}

func (m *MemoryStore) GetAccountByUsername(_ context.Context, username string) (models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ShouldFail {
		return models.Account{}, errMemoryFail
	}
	id, ok := m.Usernames[username]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return m.Accounts[id], nil
}

// --- Follow graph ---

func (m *MemoryStore) CreateFollowIfAbsent(_ context.Context, followerID, followeeID string) (WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return 0, errMemoryFail
	}
	edges := m.Follows[followerID]
	if edges == nil {
		edges = make(map[string]time.Time)
		m.Follows[followerID] = edges
	}
	if _, ok := edges[followeeID]; ok {
		return AlreadyExists, nil
	}
	edges[followeeID] = time.Now().UTC()
	return Created, nil
}

func (m *MemoryStore) DeleteFollowIfPresent(_ context.Context, followerID, followeeID string) (WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return 0, errMemoryFail
	}
	if _, ok := m.Follows[followerID][followeeID]; !ok {
		return NotPresent, nil
	}
	delete(m.Follows[followerID], followeeID)
	return Deleted, nil
}

func (m *MemoryStore) Following(_ context.Context, accountID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ShouldFail {
		return nil, errMemoryFail
	}
	res := make([]string, 0, len(m.Follows[accountID]))
	for id := range m.Follows[accountID] {
		res = append(res, id)
	}
	sort.Strings(res)
	return res, nil
}

func (m *MemoryStore) Followers(_ context.Context, accountID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ShouldFail {
		return nil, errMemoryFail
	}
	var res []string
	for follower, edges := range m.Follows {
		if _, ok := edges[accountID]; ok {
			res = append(res, follower)
		}
	}
	sort.Strings(res)
	return res, nil
}

// --- Posts ---

func (m *MemoryStore) CreatePost(_ context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMemoryFail
	}
	m.Posts[post.ID] = post
	return nil
}

func (m *MemoryStore) GetPost(_ context.Context, id string) (models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ShouldFail {
		return models.Post{}, errMemoryFail
	}
	p, ok := m.Posts[id]
	if !ok {
		return models.Post{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) UpdatePost(_ context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMemoryFail
	}
	cur, ok := m.Posts[post.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Title, cur.Body, cur.Updated = post.Title, post.Body, post.Updated
	m.Posts[post.ID] = cur
	return nil
}

// DeletePost cascades to the post's comments and likes.
func (m *MemoryStore) DeletePost(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMemoryFail
	}
	if _, ok := m.Posts[id]; !ok {
		return ErrNotFound
	}
	delete(m.Posts, id)
	for cid, c := range m.Comments {
		if c.PostID == id {
			delete(m.Comments, cid)
		}
	}
	for k := range m.Likes {
		if k.post == id {
			delete(m.Likes, k)
		}
	}
	return nil
}

func (m *MemoryStore) ListPosts(_ context.Context, spec query.Spec) ([]models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ShouldFail {
		return nil, errMemoryFail
	}
	all := make([]models.Post, 0, len(m.Posts))
	for _, p := range m.Posts {
		all = append(all, p)
	}
	return applyPostSpec(all, spec), nil
}

func (m *MemoryStore) PostsByAuthors(_ context.Context, authorIDs []string, before *Cursor, limit int) ([]models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ShouldFail {
		return nil, errMemoryFail
	}
	authors := make(map[string]bool, len(authorIDs))
	for _, a := range authorIDs {
		authors[a] = true
	}

	res := []models.Post{}
	for _, p := range m.Posts {
		if authors[p.AuthorID] && before.After(p) {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Before(res[j]) })
	if limit >= 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// --- Comments ---

func (m *MemoryStore) CreateComment(_ context.Context, c models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMemoryFail
	}
	m.Comments[c.ID] = c
	return nil
}

func (m *MemoryStore) GetComment(_ context.Context, id string) (models.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ShouldFail {
		return models.Comment{}, errMemoryFail
	}
	c, ok := m.Comments[id]
	if !ok {
		return models.Comment{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) UpdateComment(_ context.Context, c models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMemoryFail
	}
	cur, ok := m.Comments[c.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Body, cur.Updated = c.Body, c.Updated
	m.Comments[c.ID] = cur
	return nil
}

func (m *MemoryStore) DeleteComment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMemoryFail
	}
	if _, ok := m.Comments[id]; !ok {
		return ErrNotFound
	}
	delete(m.Comments, id)
	return nil
}

func (m *MemoryStore) CommentsByPost(_ context.Context, postID string) ([]models.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ShouldFail {
		return nil, errMemoryFail
	}
	res := []models.Comment{}
	for _, c := range m.Comments {
		if c.PostID == postID {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Created.Equal(res[j].Created) {
			return res[i].Created.Before(res[j].Created)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

// --- Likes ---

func (m *MemoryStore) CreateLikeIfAbsent(_ context.Context, accountID, postID string) (WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return 0, errMemoryFail
	}
	k := likeKey{accountID, postID}
	if _, ok := m.Likes[k]; ok {
		return AlreadyExists, nil
	}
	m.Likes[k] = time.Now().UTC()
	return Created, nil
}

func (m *MemoryStore) DeleteLikeIfPresent(_ context.Context, accountID, postID string) (WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return 0, errMemoryFail
	}
	k := likeKey{accountID, postID}
	if _, ok := m.Likes[k]; !ok {
		return NotPresent, nil
	}
	delete(m.Likes, k)
	return Deleted, nil
}

func (m *MemoryStore) HasLiked(_ context.Context, accountID, postID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ShouldFail {
		return false, errMemoryFail
	}
	_, ok := m.Likes[likeKey{accountID, postID}]
	return ok, nil
}

func (m *MemoryStore) CountLikes(_ context.Context, postID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ShouldFail {
		return 0, errMemoryFail
	}
	n := 0
	for k := range m.Likes {
		if k.post == postID {
			n++
		}
	}
	return n, nil
}

// --- Notifications ---

func (m *MemoryStore) AppendNotification(_ context.Context, n models.Notification) (WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return 0, errMemoryFail
	}
	if _, ok := m.Notifications[n.ID]; ok {
		return AlreadyExists, nil
	}
	m.Notifications[n.ID] = n
	return Created, nil
}

func (m *MemoryStore) NotificationsFor(_ context.Context, recipientID string, unreadOnly bool) ([]models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ShouldFail {
		return nil, errMemoryFail
	}
	res := []models.Notification{}
	for _, n := range m.Notifications {
		if n.RecipientID != recipientID || (unreadOnly && n.Read) {
			continue
		}
		res = append(res, n)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Timestamp.Equal(res[j].Timestamp) {
			return res[i].Timestamp.After(res[j].Timestamp)
		}
		return res[i].ID > res[j].ID
	})
	return res, nil
}

func (m *MemoryStore) GetNotification(_ context.Context, id string) (models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ShouldFail {
		return models.Notification{}, errMemoryFail
	}
	n, ok := m.Notifications[id]
	if !ok {
		return models.Notification{}, ErrNotFound
	}
	return n, nil
}

func (m *MemoryStore) MarkNotificationRead(_ context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMemoryFail
	}
	cur, ok := m.Notifications[n.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Read = true
	m.Notifications[n.ID] = cur
	return nil
}

// NotificationCount returns the number of stored notifications.
func (m *MemoryStore) NotificationCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Notifications)
}
