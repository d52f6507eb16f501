package engagement

import (
	"context"
	"fmt"

	"example.com/engagefeed/internal/models"
	"example.com/engagefeed/internal/store"
)

// Like moves (caller, post) from NotLiked to Liked. The store's conditional
// insert decides the winner; only the winner notifies the post's author.
// A losing or repeated call reports OutcomeAlreadyLiked.
func (e *Engine) Like(ctx context.Context, caller, postID string) (Outcome, error) {
	if caller == "" {
		return "", ErrUnauthenticated
	}
	post, err := e.store.GetPost(ctx, postID)
	if err != nil {
		return "", notFound("post", err)
	}

	res, err := e.store.CreateLikeIfAbsent(ctx, caller, post.ID)
	if err != nil {
		return "", fmt.Errorf("create like: %w", err)
	}
	if res == store.AlreadyExists {
		return OutcomeAlreadyLiked, nil
	}

	e.emit(ctx, post.AuthorID, caller, models.VerbLikedPost, models.TargetPost, post.ID)
	return OutcomeLiked, nil
}

// Unlike moves (caller, post) from Liked to NotLiked. It never notifies.
func (e *Engine) Unlike(ctx context.Context, caller, postID string) (Outcome, error) {
	if caller == "" {
		return "", ErrUnauthenticated
	}
	post, err := e.store.GetPost(ctx, postID)
	if err != nil {
		return "", notFound("post", err)
	}

	res, err := e.store.DeleteLikeIfPresent(ctx, caller, post.ID)
	if err != nil {
		return "", fmt.Errorf("delete like: %w", err)
	}
	if res == store.NotPresent {
		return OutcomeNotLiked, nil
	}
	return OutcomeUnliked, nil
}

// LikeCount returns how many accounts currently like the post.
func (e *Engine) LikeCount(ctx context.Context, postID string) (int, error) {
	if _, err := e.store.GetPost(ctx, postID); err != nil {
		return 0, notFound("post", err)
	}
	return e.store.CountLikes(ctx, postID)
}
