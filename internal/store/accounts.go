package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/engagefeed/internal/models"
	"github.com/gocql/gocql"
)

// cas runs a lightweight transaction and reports whether it was applied.
func cas(q *gocql.Query) (bool, error) {
	return q.MapScanCAS(make(map[string]interface{}))
}

// undoClaim reverses a CAS claim whose follow-up write failed, so a retry
// can start over. The undo runs even if ctx was canceled; its own failure
// is returned alongside err.
func undoClaim(ctx context.Context, err error, undo func(context.Context) error) error {
	if uerr := undo(context.WithoutCancel(ctx)); uerr != nil {
		logg.Error("store", "Failed to roll back claim", uerr)
		return errors.Join(err, fmt.Errorf("roll back: %w", uerr))
	}
	return err
}

// --- Account operations ---

// CreateAccount claims the username with a CAS insert, so two concurrent
// registrations of the same name cannot both succeed.
func (s *Store) CreateAccount(ctx context.Context, username, passwordHash string) (models.Account, error) {
	acc := models.Account{
		ID:           gocql.TimeUUID().String(),
		Username:     username,
		PasswordHash: passwordHash,
		Created:      time.Now().UTC().Truncate(time.Millisecond),
	}

	applied, err := cas(s.Session.Query(`
		INSERT INTO users_by_username (username, user_id)
		VALUES (?, ?) IF NOT EXISTS`,
		username, acc.ID,
	).WithContext(ctx))
	if err != nil {
		logg.Error("store", "Failed to create username entry", err)
		return models.Account{}, err
	}
	if !applied {
		return models.Account{}, ErrConflict
	}

	if err := s.Session.Query(`
		INSERT INTO users (user_id, username, password_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		acc.ID, acc.Username, acc.PasswordHash, acc.Created,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to create user in main table", err)
		// Free the username, but only if the claim is still ours.
		return models.Account{}, undoClaim(ctx, err, func(ctx context.Context) error {
			_, derr := cas(s.Session.Query(
				`DELETE FROM users_by_username WHERE username = ? IF user_id = ?`,
				username, acc.ID,
			).WithContext(ctx))
			return derr
		})
	}

	logg.Info("store", "User created successfully (username anonymized)")
	return acc, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (models.Account, error) {
	acc := models.Account{ID: id}
	err := s.Session.Query(
		`SELECT username, password_hash, created_at FROM users WHERE user_id = ?`,
		id,
	).WithContext(ctx).Scan(&acc.Username, &acc.PasswordHash, &acc.Created)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.Account{}, ErrNotFound
		}
		logg.Error("store", "Failed to query user", err)
		return models.Account{}, err
	}
	return acc, nil
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (models.Account, error) {
	var id string
	err := s.Session.Query(
		`SELECT user_id FROM users_by_username WHERE username = ?`,
		username,
	).WithContext(ctx).Scan(&id)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.Account{}, ErrNotFound
		}
		logg.Error("store", "Failed to query user by username", err)
		return models.Account{}, err
	}
	return s.GetAccount(ctx, id)
}

// --- Follow operations ---

// CreateFollowIfAbsent writes the edge with a CAS insert on follows, which
// is the source of truth for Following. followers_by_followee is the
// reverse index and is written only when the edge is new.
func (s *Store) CreateFollowIfAbsent(ctx context.Context, followerID, followeeID string) (WriteResult, error) {
	applied, err := cas(s.Session.Query(`
		INSERT INTO follows (user_id, followee_id, created_at)
		VALUES (?, ?, ?) IF NOT EXISTS`,
		followerID, followeeID, time.Now().UTC(),
	).WithContext(ctx))
	if err != nil {
		logg.Error("store", "Failed to create follow relationship", err)
		return 0, err
	}
	if !applied {
		return AlreadyExists, nil
	}

	if err := s.Session.Query(
		`INSERT INTO followers_by_followee (followee_id, user_id) VALUES (?, ?)`,
		followeeID, followerID,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to index follower", err)
		// Drop the edge so a retry creates it again and notifies the followee.
		return 0, undoClaim(ctx, fmt.Errorf("index follower: %w", err), func(ctx context.Context) error {
			_, derr := cas(s.Session.Query(
				`DELETE FROM follows WHERE user_id = ? AND followee_id = ? IF EXISTS`,
				followerID, followeeID,
			).WithContext(ctx))
			return derr
		})
	}

	logg.Info("store", "Follow relationship created (user IDs anonymized)")
	return Created, nil
}

func (s *Store) DeleteFollowIfPresent(ctx context.Context, followerID, followeeID string) (WriteResult, error) {
	applied, err := cas(s.Session.Query(
		`DELETE FROM follows WHERE user_id = ? AND followee_id = ? IF EXISTS`,
		followerID, followeeID,
	).WithContext(ctx))
	if err != nil {
		logg.Error("store", "Failed to delete follow relationship", err)
		return 0, err
	}
	if !applied {
		return NotPresent, nil
	}

	if err := s.Session.Query(
		`DELETE FROM followers_by_followee WHERE followee_id = ? AND user_id = ?`,
		followeeID, followerID,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to unindex follower", err)
		return 0, fmt.Errorf("unindex follower: %w", err)
	}

	logg.Info("store", "Follow relationship removed (user IDs anonymized)")
	return Deleted, nil
}

func (s *Store) Following(ctx context.Context, accountID string) ([]string, error) {
	return s.scanIDs(ctx, `SELECT followee_id FROM follows WHERE user_id = ?`, accountID)
}

func (s *Store) Followers(ctx context.Context, accountID string) ([]string, error) {
	return s.scanIDs(ctx, `SELECT user_id FROM followers_by_followee WHERE followee_id = ?`, accountID)
}

func (s *Store) scanIDs(ctx context.Context, stmt string, key string) ([]string, error) {
	iter := s.Session.Query(stmt, key).WithContext(ctx).Iter()

	var id string
	var res []string
	for iter.Scan(&id) {
		res = append(res, id)
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to read follow graph", err)
		return nil, err
	}
	return res, nil
}
