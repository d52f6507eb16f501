package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	config "example.com/engagefeed/internal/init"
	"example.com/engagefeed/internal/logger"
	"example.com/engagefeed/internal/models"
	"example.com/engagefeed/internal/query"
)

var logg = logger.New()

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

// WriteResult is the outcome of an atomic conditional write.
type WriteResult int

const (
	Created WriteResult = iota + 1
	AlreadyExists
	Deleted
	NotPresent
)

func (r WriteResult) String() string {
	switch r {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	case Deleted:
		return "deleted"
	case NotPresent:
		return "not_present"
	}
	return "unknown"
}

// Cursor is a keyset position in a (created desc, id desc) listing.
type Cursor struct {
	Created time.Time
	ID      string
}

// After reports whether p is listed strictly after the cursor position.
func (c *Cursor) After(p models.Post) bool {
	if c == nil {
		return true
	}
	return models.Post{ID: c.ID, Created: c.Created}.Before(p)
}

// PostFields is the allow-list for post list queries.
var PostFields = query.Fields{
	Filter:       []string{"author", "title"},
	Search:       []string{"title", "body"},
	Order:        []string{"created_at", "title"},
	DefaultOrder: []string{"-created_at"},
}

// --- Interfaces ---

type AccountStore interface {
	// CreateAccount fails with ErrConflict when the username is taken.
	CreateAccount(ctx context.Context, username, passwordHash string) (models.Account, error)
	GetAccount(ctx context.Context, id string) (models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (models.Account, error)
}

type GraphStore interface {
	CreateFollowIfAbsent(ctx context.Context, followerID, followeeID string) (WriteResult, error)
	DeleteFollowIfPresent(ctx context.Context, followerID, followeeID string) (WriteResult, error)
	Following(ctx context.Context, accountID string) ([]string, error)
	Followers(ctx context.Context, accountID string) ([]string, error)
}

// ContentStore holds posts and comments. DeletePost cascades: the post's
// comments and likes are removed with it. Notifications are left alone.
type ContentStore interface {
	CreatePost(ctx context.Context, post models.Post) error
	GetPost(ctx context.Context, id string) (models.Post, error)
	UpdatePost(ctx context.Context, post models.Post) error
	DeletePost(ctx context.Context, id string) error
	ListPosts(ctx context.Context, spec query.Spec) ([]models.Post, error)
	PostsByAuthors(ctx context.Context, authorIDs []string, before *Cursor, limit int) ([]models.Post, error)

	CreateComment(ctx context.Context, c models.Comment) error
	GetComment(ctx context.Context, id string) (models.Comment, error)
	UpdateComment(ctx context.Context, c models.Comment) error
	DeleteComment(ctx context.Context, id string) error
	CommentsByPost(ctx context.Context, postID string) ([]models.Comment, error)
}

type LikeStore interface {
	CreateLikeIfAbsent(ctx context.Context, accountID, postID string) (WriteResult, error)
	DeleteLikeIfPresent(ctx context.Context, accountID, postID string) (WriteResult, error)
	HasLiked(ctx context.Context, accountID, postID string) (bool, error)
	CountLikes(ctx context.Context, postID string) (int, error)
}

// NotificationStore appends are idempotent on Notification.ID.
type NotificationStore interface {
	AppendNotification(ctx context.Context, n models.Notification) (WriteResult, error)
	NotificationsFor(ctx context.Context, recipientID string, unreadOnly bool) ([]models.Notification, error)
	GetNotification(ctx context.Context, id string) (models.Notification, error)
	MarkNotificationRead(ctx context.Context, n models.Notification) error
}

type StoreInterface interface {
	AccountStore
	GraphStore
	ContentStore
	LikeStore
	NotificationStore
	Close()
}

// Open returns the store selected by cfg.StoreBackend.
func Open(cfg *config.Config) (StoreInterface, error) {
	switch cfg.StoreBackend {
	case "memory":
		logg.Info("store", "Using in-memory store")
		return NewMemory(), nil
	case "cassandra", "":
		st, err := New(cfg)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}

func postField(p models.Post, field string) string {
	switch field {
	case "id":
		return p.ID
	case "author":
		return p.AuthorID
	case "title":
		return p.Title
	case "body":
		return p.Body
	case "created_at":
		return p.Created.UTC().Format("2006-01-02T15:04:05.000000000")
	}
	return ""
}

// applyPostSpec is the store-side translation of a post list query.
func applyPostSpec(posts []models.Post, spec query.Spec) []models.Post {
	return query.Apply(posts, spec, PostFields.Search, postField)
}

var (
	_ StoreInterface = (*Store)(nil)
	_ StoreInterface = (*MemoryStore)(nil)
)
