package models

import "time"

// Verbs recorded on notifications.
const (
	VerbLikedPost = "liked your post"
	VerbFollowed  = "started following you"
)

// Notification target kinds.
const (
	TargetPost    = "post"
	TargetAccount = "account"
)

type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Created      time.Time `json:"created"`
}

type Post struct {
	ID       string    `json:"id"`
	AuthorID string    `json:"author_id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

func (p Post) OwnerID() string { return p.AuthorID }

type Comment struct {
	ID       string    `json:"id"`
	PostID   string    `json:"post_id"`
	AuthorID string    `json:"author_id"`
	Body     string    `json:"body"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

func (c Comment) OwnerID() string { return c.AuthorID }

type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	ActorID     string    `json:"actor_id"`
	Verb        string    `json:"verb"`
	TargetType  string    `json:"target_type"`
	TargetID    string    `json:"target_id"`
	Timestamp   time.Time `json:"timestamp"`
	Read        bool      `json:"read"`
}

// Before reports whether p is listed ahead of q in a reverse-chronological
// feed: newer first, higher ID first on equal timestamps.
func (p Post) Before(q Post) bool {
	if !p.Created.Equal(q.Created) {
		return p.Created.After(q.Created)
	}
	return p.ID > q.ID
}
