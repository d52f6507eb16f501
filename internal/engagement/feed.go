package engagement

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"example.com/engagefeed/internal/models"
	"example.com/engagefeed/internal/store"
)

// FeedPage asks for Limit posts after the opaque Before cursor.
type FeedPage struct {
	Limit  int
	Before string
}

type FeedResult struct {
	Posts []models.Post `json:"results"`
	Next  string        `json:"next,omitempty"`
}

// Feed returns posts authored by accounts the caller follows, newest first,
// ties broken by ID descending. It reads the graph on every call.
func (e *Engine) Feed(ctx context.Context, caller string, page FeedPage) (FeedResult, error) {
	if caller == "" {
		return FeedResult{}, ErrUnauthenticated
	}

	cursor, err := DecodeCursor(page.Before)
	if err != nil {
		return FeedResult{}, err
	}

	limit := page.Limit
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	if limit > e.maxLimit {
		limit = e.maxLimit
	}

	following, err := e.store.Following(ctx, caller)
	if err != nil {
		return FeedResult{}, fmt.Errorf("load following: %w", err)
	}
	if len(following) == 0 {
		return FeedResult{Posts: []models.Post{}}, nil
	}

	posts, err := e.store.PostsByAuthors(ctx, following, cursor, limit)
	if err != nil {
		return FeedResult{}, fmt.Errorf("load feed posts: %w", err)
	}

	res := FeedResult{Posts: posts}
	if len(posts) == limit {
		last := posts[len(posts)-1]
		res.Next = EncodeCursor(store.Cursor{Created: last.Created, ID: last.ID})
	}
	return res, nil
}

// EncodeCursor renders a keyset position as a URL-safe token.
func EncodeCursor(c store.Cursor) string {
	raw := strconv.FormatInt(c.Created.UnixNano(), 10) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token from EncodeCursor. An empty token means the
// first page and yields a nil cursor.
func DecodeCursor(token string) (*store.Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", ErrInvalidInput)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: malformed cursor", ErrInvalidInput)
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", ErrInvalidInput)
	}
	return &store.Cursor{Created: time.Unix(0, nanos).UTC(), ID: id}, nil
}
