package engagement

import (
	"context"
	"fmt"

	"example.com/engagefeed/internal/models"
	"example.com/engagefeed/internal/store"
)

// Follow adds the caller -> target edge. A new edge notifies the target;
// an existing one reports OutcomeAlreadyFollowing.
func (e *Engine) Follow(ctx context.Context, caller, targetID string) (Outcome, error) {
	if caller == "" {
		return "", ErrUnauthenticated
	}
	if caller == targetID {
		return "", ErrSelfFollow
	}
	if _, err := e.store.GetAccount(ctx, targetID); err != nil {
		return "", notFound("account", err)
	}

	res, err := e.store.CreateFollowIfAbsent(ctx, caller, targetID)
	if err != nil {
		return "", fmt.Errorf("create follow: %w", err)
	}
	if res == store.AlreadyExists {
		return OutcomeAlreadyFollowing, nil
	}

	e.emit(ctx, targetID, caller, models.VerbFollowed, models.TargetAccount, caller)
	return OutcomeFollowed, nil
}

// Unfollow removes the edge. Feeds reflect it on the next read; earlier
// notifications are kept.
func (e *Engine) Unfollow(ctx context.Context, caller, targetID string) (Outcome, error) {
	if caller == "" {
		return "", ErrUnauthenticated
	}
	if _, err := e.store.GetAccount(ctx, targetID); err != nil {
		return "", notFound("account", err)
	}

	res, err := e.store.DeleteFollowIfPresent(ctx, caller, targetID)
	if err != nil {
		return "", fmt.Errorf("delete follow: %w", err)
	}
	if res == store.NotPresent {
		return OutcomeNotFollowing, nil
	}
	return OutcomeUnfollowed, nil
}

// Following lists the accounts the given account follows.
func (e *Engine) Following(ctx context.Context, accountID string) ([]string, error) {
	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		return nil, notFound("account", err)
	}
	return e.store.Following(ctx, accountID)
}

// Followers lists the accounts following the given account.
func (e *Engine) Followers(ctx context.Context, accountID string) ([]string, error) {
	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		return nil, notFound("account", err)
	}
	return e.store.Followers(ctx, accountID)
}
