package store

import (
	"context"
	"errors"
	"time"

	"example.com/engagefeed/internal/models"
	"github.com/gocql/gocql"
)

// --- Like operations ---

// CreateLikeIfAbsent is a single LWT insert; under concurrent callers exactly
// one sees Created.
func (s *Store) CreateLikeIfAbsent(ctx context.Context, accountID, postID string) (WriteResult, error) {
	applied, err := cas(s.Session.Query(`
		INSERT INTO likes (post_id, user_id, created_at)
		VALUES (?, ?, ?) IF NOT EXISTS`,
		postID, accountID, time.Now().UTC(),
	).WithContext(ctx))
	if err != nil {
		logg.Error("store", "Failed to create like", err)
		return 0, err
	}
	if !applied {
		return AlreadyExists, nil
	}
	return Created, nil
}

func (s *Store) DeleteLikeIfPresent(ctx context.Context, accountID, postID string) (WriteResult, error) {
	applied, err := cas(s.Session.Query(
		`DELETE FROM likes WHERE post_id = ? AND user_id = ? IF EXISTS`,
		postID, accountID,
	).WithContext(ctx))
	if err != nil {
		logg.Error("store", "Failed to delete like", err)
		return 0, err
	}
	if !applied {
		return NotPresent, nil
	}
	return Deleted, nil
}

func (s *Store) HasLiked(ctx context.Context, accountID, postID string) (bool, error) {
	var uid string
	err := s.Session.Query(
		`SELECT user_id FROM likes WHERE post_id = ? AND user_id = ?`,
		postID, accountID,
	).WithContext(ctx).Scan(&uid)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) CountLikes(ctx context.Context, postID string) (int, error) {
	var n int64
	if err := s.Session.Query(
		`SELECT COUNT(*) FROM likes WHERE post_id = ?`,
		postID,
	).WithContext(ctx).Scan(&n); err != nil {
		logg.Error("store", "Failed to count likes", err)
		return 0, err
	}
	return int(n), nil
}

// --- Notification operations ---

// AppendNotification claims the notification ID with a CAS insert, then
// upserts the recipient's row. The upsert leaves the read flag alone, so
// replaying an event repairs a half-written append without un-reading it.
func (s *Store) AppendNotification(ctx context.Context, n models.Notification) (WriteResult, error) {
	applied, err := cas(s.Session.Query(`
		INSERT INTO notifications (notification_id, recipient_id, created_at)
		VALUES (?, ?, ?) IF NOT EXISTS`,
		n.ID, n.RecipientID, n.Timestamp,
	).WithContext(ctx))
	if err != nil {
		logg.Error("store", "Failed to claim notification id", err)
		return 0, err
	}
	res := Created
	if !applied {
		res = AlreadyExists
	}

	if err := s.Session.Query(`
		INSERT INTO notifications_by_recipient
		(recipient_id, created_at, notification_id, actor_id, verb, target_type, target_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.RecipientID, n.Timestamp, n.ID, n.ActorID, n.Verb, n.TargetType, n.TargetID,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to append notification", err)
		return 0, err
	}

	logg.Debug("store", "Notification appended (IDs anonymized)")
	return res, nil
}

func (s *Store) NotificationsFor(ctx context.Context, recipientID string, unreadOnly bool) ([]models.Notification, error) {
	iter := s.Session.Query(`
		SELECT notification_id, created_at, actor_id, verb, target_type, target_id, read
		FROM notifications_by_recipient WHERE recipient_id = ?`,
		recipientID,
	).WithContext(ctx).Iter()

	res := []models.Notification{}
	n := models.Notification{RecipientID: recipientID}
	for iter.Scan(&n.ID, &n.Timestamp, &n.ActorID, &n.Verb, &n.TargetType, &n.TargetID, &n.Read) {
		if unreadOnly && n.Read {
			continue
		}
		res = append(res, n)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list notifications", err)
		return nil, err
	}
	return res, nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (models.Notification, error) {
	n := models.Notification{ID: id}
	err := s.Session.Query(
		`SELECT recipient_id, created_at FROM notifications WHERE notification_id = ?`,
		id,
	).WithContext(ctx).Scan(&n.RecipientID, &n.Timestamp)
	if err == nil {
		err = s.Session.Query(`
			SELECT actor_id, verb, target_type, target_id, read
			FROM notifications_by_recipient
			WHERE recipient_id = ? AND created_at = ? AND notification_id = ?`,
			n.RecipientID, n.Timestamp, id,
		).WithContext(ctx).Scan(&n.ActorID, &n.Verb, &n.TargetType, &n.TargetID, &n.Read)
	}
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.Notification{}, ErrNotFound
		}
		logg.Error("store", "Failed to get notification", err)
		return models.Notification{}, err
	}
	return n, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, n models.Notification) error {
	if err := s.Session.Query(`
		UPDATE notifications_by_recipient SET read = true
		WHERE recipient_id = ? AND created_at = ? AND notification_id = ?`,
		n.RecipientID, n.Timestamp, n.ID,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to mark notification read", err)
		return err
	}
	return nil
}
