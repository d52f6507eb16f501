package engagement

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"example.com/engagefeed/internal/models"
	"example.com/engagefeed/internal/query"
)

const (
	maxTitleLen   = 200
	maxBodyLen    = 5000
	maxCommentLen = 2000
)

func checkLen(field, s string, max int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if n == 0 || n > max {
		return fmt.Errorf("%w: %s must be 1-%d characters", ErrInvalidInput, field, max)
	}
	return nil
}

// --- Posts ---

func (e *Engine) CreatePost(ctx context.Context, caller, title, body string) (models.Post, error) {
	if caller == "" {
		return models.Post{}, ErrUnauthenticated
	}
	if err := checkLen("title", title, maxTitleLen); err != nil {
		return models.Post{}, err
	}
	if err := checkLen("body", body, maxBodyLen); err != nil {
		return models.Post{}, err
	}

	now := e.timestamp()
	post := models.Post{
		ID:       e.newID(),
		AuthorID: caller,
		Title:    title,
		Body:     body,
		Created:  now,
		Updated:  now,
	}
	if err := e.store.CreatePost(ctx, post); err != nil {
		return models.Post{}, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

func (e *Engine) GetPost(ctx context.Context, id string) (models.Post, error) {
	post, err := e.store.GetPost(ctx, id)
	if err != nil {
		return models.Post{}, notFound("post", err)
	}
	return post, nil
}

// ListPosts passes the validated query straight to the content store.
func (e *Engine) ListPosts(ctx context.Context, spec query.Spec) ([]models.Post, error) {
	return e.store.ListPosts(ctx, spec)
}

func (e *Engine) UpdatePost(ctx context.Context, caller, id, title, body string) (models.Post, error) {
	post, err := e.store.GetPost(ctx, id)
	if err != nil {
		return models.Post{}, notFound("post", err)
	}
	if err := authorize(caller, post); err != nil {
		return models.Post{}, err
	}
	if err := checkLen("title", title, maxTitleLen); err != nil {
		return models.Post{}, err
	}
	if err := checkLen("body", body, maxBodyLen); err != nil {
		return models.Post{}, err
	}

	post.Title, post.Body, post.Updated = title, body, e.timestamp()
	if err := e.store.UpdatePost(ctx, post); err != nil {
		return models.Post{}, fmt.Errorf("update post: %w", err)
	}
	return post, nil
}

// DeletePost removes the post; the store cascades to its comments and likes.
func (e *Engine) DeletePost(ctx context.Context, caller, id string) error {
	post, err := e.store.GetPost(ctx, id)
	if err != nil {
		return notFound("post", err)
	}
	if err := authorize(caller, post); err != nil {
		return err
	}
	if err := e.store.DeletePost(ctx, id); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// --- Comments ---

func (e *Engine) CreateComment(ctx context.Context, caller, postID, body string) (models.Comment, error) {
	if caller == "" {
		return models.Comment{}, ErrUnauthenticated
	}
	if _, err := e.store.GetPost(ctx, postID); err != nil {
		return models.Comment{}, notFound("post", err)
	}
	if err := checkLen("body", body, maxCommentLen); err != nil {
		return models.Comment{}, err
	}

	now := e.timestamp()
	c := models.Comment{
		ID:       e.newID(),
		PostID:   postID,
		AuthorID: caller,
		Body:     body,
		Created:  now,
		Updated:  now,
	}
	if err := e.store.CreateComment(ctx, c); err != nil {
		return models.Comment{}, fmt.Errorf("create comment: %w", err)
	}
	return c, nil
}

func (e *Engine) GetComment(ctx context.Context, id string) (models.Comment, error) {
	c, err := e.store.GetComment(ctx, id)
	if err != nil {
		return models.Comment{}, notFound("comment", err)
	}
	return c, nil
}

func (e *Engine) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	if _, err := e.store.GetPost(ctx, postID); err != nil {
		return nil, notFound("post", err)
	}
	return e.store.CommentsByPost(ctx, postID)
}

func (e *Engine) UpdateComment(ctx context.Context, caller, id, body string) (models.Comment, error) {
	c, err := e.store.GetComment(ctx, id)
	if err != nil {
		return models.Comment{}, notFound("comment", err)
	}
	if err := authorize(caller, c); err != nil {
		return models.Comment{}, err
	}
	if err := checkLen("body", body, maxCommentLen); err != nil {
		return models.Comment{}, err
	}

	c.Body, c.Updated = body, e.timestamp()
	if err := e.store.UpdateComment(ctx, c); err != nil {
		return models.Comment{}, fmt.Errorf("update comment: %w", err)
	}
	return c, nil
}

func (e *Engine) DeleteComment(ctx context.Context, caller, id string) error {
	c, err := e.store.GetComment(ctx, id)
	if err != nil {
		return notFound("comment", err)
	}
	if err := authorize(caller, c); err != nil {
		return err
	}
	if err := e.store.DeleteComment(ctx, id); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}
