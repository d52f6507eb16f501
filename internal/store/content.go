package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"example.com/engagefeed/internal/models"
	"example.com/engagefeed/internal/query"
	"github.com/gocql/gocql"
)

// authorFanoutLimit bounds concurrent per-author partition reads in a feed query.
const authorFanoutLimit = 20

// --- Post operations ---

func (s *Store) CreatePost(ctx context.Context, post models.Post) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO posts (post_id, author_id, title, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		post.ID, post.AuthorID, post.Title, post.Body, post.Created, post.Updated)
	batch.Query(`
		INSERT INTO posts_by_author (author_id, created_at, post_id, title, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		post.AuthorID, post.Created, post.ID, post.Title, post.Body, post.Updated)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}

	logg.Info("store", "Post added (post content anonymized)")
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (models.Post, error) {
	p := models.Post{ID: id}
	err := s.Session.Query(`
		SELECT author_id, title, body, created_at, updated_at
		FROM posts WHERE post_id = ?`,
		id,
	).WithContext(ctx).Scan(&p.AuthorID, &p.Title, &p.Body, &p.Created, &p.Updated)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.Post{}, ErrNotFound
		}
		logg.Error("store", "Failed to get post", err)
		return models.Post{}, err
	}
	return p, nil
}

// UpdatePost rewrites title, body and updated_at. Author and creation time
// are immutable.
func (s *Store) UpdatePost(ctx context.Context, post models.Post) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`UPDATE posts SET title = ?, body = ?, updated_at = ? WHERE post_id = ?`,
		post.Title, post.Body, post.Updated, post.ID)
	batch.Query(`
		UPDATE posts_by_author SET title = ?, body = ?, updated_at = ?
		WHERE author_id = ? AND created_at = ? AND post_id = ?`,
		post.Title, post.Body, post.Updated, post.AuthorID, post.Created, post.ID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to update post", err)
		return err
	}
	return nil
}

// DeletePost removes the post, its comments and its likes in one logged batch.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	post, err := s.GetPost(ctx, id)
	if err != nil {
		return err
	}
	comments, err := s.CommentsByPost(ctx, id)
	if err != nil {
		return err
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM posts WHERE post_id = ?`, id)
	batch.Query(`DELETE FROM posts_by_author WHERE author_id = ? AND created_at = ? AND post_id = ?`,
		post.AuthorID, post.Created, id)
	batch.Query(`DELETE FROM likes WHERE post_id = ?`, id)
	batch.Query(`DELETE FROM comments_by_post WHERE post_id = ?`, id)
	for _, c := range comments {
		batch.Query(`DELETE FROM comments WHERE comment_id = ?`, c.ID)
	}

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete post", err)
		return err
	}

	logg.Info("store", "Post deleted with its comments and likes")
	return nil
}

// ListPosts reads a single author partition when the query filters on
// author, and the whole posts table otherwise.
func (s *Store) ListPosts(ctx context.Context, spec query.Spec) ([]models.Post, error) {
	var iter *gocql.Iter
	if author, ok := spec.Filters["author"]; ok {
		iter = s.Session.Query(`
			SELECT post_id, author_id, title, body, created_at, updated_at
			FROM posts_by_author WHERE author_id = ?`,
			author,
		).WithContext(ctx).Iter()
	} else {
		iter = s.Session.Query(`
			SELECT post_id, author_id, title, body, created_at, updated_at FROM posts`,
		).WithContext(ctx).Iter()
	}

	posts, err := scanPosts(iter)
	if err != nil {
		logg.Error("store", "Failed to list posts", err)
		return nil, err
	}
	return applyPostSpec(posts, spec), nil
}

// PostsByAuthors reads each author's partition (already clustered newest
// first) in parallel and merges the heads.
func (s *Store) PostsByAuthors(ctx context.Context, authorIDs []string, before *Cursor, limit int) ([]models.Post, error) {
	if len(authorIDs) == 0 || limit <= 0 {
		return []models.Post{}, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		merged   []models.Post
		firstErr error
	)
	semaphore := make(chan struct{}, authorFanoutLimit)

	for _, aid := range authorIDs {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(author string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			var q *gocql.Query
			if before != nil {
				q = s.Session.Query(`
					SELECT post_id, author_id, title, body, created_at, updated_at
					FROM posts_by_author
					WHERE author_id = ? AND (created_at, post_id) < (?, ?)
					LIMIT ?`,
					author, before.Created, before.ID, limit)
			} else {
				q = s.Session.Query(`
					SELECT post_id, author_id, title, body, created_at, updated_at
					FROM posts_by_author WHERE author_id = ? LIMIT ?`,
					author, limit)
			}

			posts, err := scanPosts(q.WithContext(ctx).Iter())

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			merged = append(merged, posts...)
		}(aid)
	}
	wg.Wait()

	if firstErr != nil {
		logg.Error("store", "Failed to read author partitions", firstErr)
		return nil, firstErr
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Before(merged[j]) })
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func scanPosts(iter *gocql.Iter) ([]models.Post, error) {
	res := []models.Post{}
	var p models.Post
	for iter.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Body, &p.Created, &p.Updated) {
		res = append(res, p)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return res, nil
}

// --- Comment operations ---

func (s *Store) CreateComment(ctx context.Context, c models.Comment) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO comments (comment_id, post_id, author_id, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.PostID, c.AuthorID, c.Body, c.Created, c.Updated)
	batch.Query(`
		INSERT INTO comments_by_post (post_id, created_at, comment_id, author_id, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.PostID, c.Created, c.ID, c.AuthorID, c.Body, c.Updated)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to add comment", err)
		return err
	}
	return nil
}

func (s *Store) GetComment(ctx context.Context, id string) (models.Comment, error) {
	c := models.Comment{ID: id}
	err := s.Session.Query(`
		SELECT post_id, author_id, body, created_at, updated_at
		FROM comments WHERE comment_id = ?`,
		id,
	).WithContext(ctx).Scan(&c.PostID, &c.AuthorID, &c.Body, &c.Created, &c.Updated)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.Comment{}, ErrNotFound
		}
		logg.Error("store", "Failed to get comment", err)
		return models.Comment{}, err
	}
	return c, nil
}

func (s *Store) UpdateComment(ctx context.Context, c models.Comment) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`UPDATE comments SET body = ?, updated_at = ? WHERE comment_id = ?`,
		c.Body, c.Updated, c.ID)
	batch.Query(`
		UPDATE comments_by_post SET body = ?, updated_at = ?
		WHERE post_id = ? AND created_at = ? AND comment_id = ?`,
		c.Body, c.Updated, c.PostID, c.Created, c.ID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to update comment", err)
		return err
	}
	return nil
}

func (s *Store) DeleteComment(ctx context.Context, id string) error {
	c, err := s.GetComment(ctx, id)
	if err != nil {
		return err
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM comments WHERE comment_id = ?`, id)
	batch.Query(`DELETE FROM comments_by_post WHERE post_id = ? AND created_at = ? AND comment_id = ?`,
		c.PostID, c.Created, id)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete comment", err)
		return err
	}
	return nil
}

func (s *Store) CommentsByPost(ctx context.Context, postID string) ([]models.Comment, error) {
	iter := s.Session.Query(`
		SELECT comment_id, author_id, body, created_at, updated_at
		FROM comments_by_post WHERE post_id = ?`,
		postID,
	).WithContext(ctx).Iter()

	res := []models.Comment{}
	c := models.Comment{PostID: postID}
	for iter.Scan(&c.ID, &c.AuthorID, &c.Body, &c.Created, &c.Updated) {
		res = append(res, c)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list comments", err)
		return nil, err
	}
	return res, nil
}
