// Package engagement computes follow-graph feeds and runs the like, follow
// and notification flows on top of the stores. It owns no state of its own.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/engagefeed/internal/logger"
	"example.com/engagefeed/internal/models"
	"example.com/engagefeed/internal/store"
	"github.com/google/uuid"
)

var logg = logger.New()

var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("you do not have permission to modify this object")
	ErrSelfFollow         = errors.New("you cannot follow yourself")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already taken")
)

// Outcome tags the result of an idempotent action. The "already"/"not"
// variants are successful no-ops, not errors.
type Outcome string

const (
	OutcomeLiked            Outcome = "liked"
	OutcomeAlreadyLiked     Outcome = "already_liked"
	OutcomeUnliked          Outcome = "unliked"
	OutcomeNotLiked         Outcome = "not_liked"
	OutcomeFollowed         Outcome = "followed"
	OutcomeAlreadyFollowing Outcome = "already_following"
	OutcomeUnfollowed       Outcome = "unfollowed"
	OutcomeNotFollowing     Outcome = "not_following"
)

// Changed reports whether the action changed state.
func (o Outcome) Changed() bool {
	switch o {
	case OutcomeLiked, OutcomeUnliked, OutcomeFollowed, OutcomeUnfollowed:
		return true
	}
	return false
}

// Notifier delivers a notification. Delivery is best-effort from the
// engine's point of view: a failure is logged and never undoes the write
// that triggered it.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// StoreNotifier appends notifications straight to the notification store.
type StoreNotifier struct {
	Store store.NotificationStore
}

func (s StoreNotifier) Notify(ctx context.Context, n models.Notification) error {
	_, err := s.Store.AppendNotification(ctx, n)
	return err
}

const (
	DefaultFeedLimit = 50
	defaultMaxLimit  = 200
)

type Engine struct {
	store    store.StoreInterface
	notifier Notifier
	now      func() time.Time
	newID    func() string
	maxLimit int
}

type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDs overrides the ID generator.
func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithMaxFeedLimit caps the page size a caller may request.
func WithMaxFeedLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxLimit = n
		}
	}
}

func New(st store.StoreInterface, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		notifier: notifier,
		now:      time.Now,
		newID:    uuid.NewString,
		maxLimit: defaultMaxLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = StoreNotifier{Store: st}
	}
	return e
}

// timestamp is millisecond-precise UTC, the resolution Cassandra keeps, so
// cursors built from returned values match stored rows exactly.
func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

// emit sends one notification unless actor and recipient are the same
// account. Errors are logged and dropped.
func (e *Engine) emit(ctx context.Context, recipient, actor, verb, targetType, targetID string) {
	if recipient == actor {
		logg.Debug("engagement", "Skipping self-notification")
		return
	}
	n := models.Notification{
		ID:          e.newID(),
		RecipientID: recipient,
		ActorID:     actor,
		Verb:        verb,
		TargetType:  targetType,
		TargetID:    targetID,
		Timestamp:   e.timestamp(),
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		logg.Error("engagement", "Notification delivery failed for recipient_id="+recipient, err)
		return
	}
	logg.Debug("engagement", "Notification emitted: "+verb)
}

// notFound maps store.ErrNotFound to ErrNotFound and wraps anything else.
func notFound(what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
