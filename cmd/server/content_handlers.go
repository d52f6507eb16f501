package server

import (
	"net/http"

	"example.com/engagefeed/internal/models"
	"example.com/engagefeed/internal/query"
	"example.com/engagefeed/internal/store"
)

type postRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type commentRequest struct {
	Body string `json:"body"`
}

// postView is a post with its current like count.
type postView struct {
	models.Post
	Likes int `json:"likes"`
}

// --- Posts ---

// listPostsHandler supports ?author=&title=&search=&ordering=&limit=&offset=
func (s *Server) listPostsHandler(w http.ResponseWriter, r *http.Request) {
	spec, err := query.Parse(r.URL.Query(), store.PostFields)
	if err != nil {
		writeError(w, "http/posts", err)
		return
	}
	posts, err := s.engine.ListPosts(r.Context(), spec)
	if err != nil {
		writeError(w, "http/posts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": posts})
}

func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	var body postRequest
	if !decodeJSON(w, r, "http/posts", &body) {
		return
	}

	post, err := s.engine.CreatePost(r.Context(), caller(r), body.Title, body.Body)
	if err != nil {
		writeError(w, "http/posts", err)
		return
	}
	logg.Info("http/posts", "Post created successfully by user_id="+post.AuthorID)
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) getPostHandler(w http.ResponseWriter, r *http.Request) {
	post, err := s.engine.GetPost(r.Context(), pathID(r))
	if err != nil {
		writeError(w, "http/posts", err)
		return
	}
	likes, err := s.engine.LikeCount(r.Context(), post.ID)
	if err != nil {
		writeError(w, "http/posts", err)
		return
	}
	writeJSON(w, http.StatusOK, postView{Post: post, Likes: likes})
}

func (s *Server) updatePostHandler(w http.ResponseWriter, r *http.Request) {
	var body postRequest
	if !decodeJSON(w, r, "http/posts", &body) {
		return
	}

	post, err := s.engine.UpdatePost(r.Context(), caller(r), pathID(r), body.Title, body.Body)
	if err != nil {
		writeError(w, "http/posts", err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) deletePostHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeletePost(r.Context(), caller(r), pathID(r)); err != nil {
		writeError(w, "http/posts", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Likes ---

func (s *Server) likeHandler(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Like(r.Context(), caller(r), pathID(r))
	if err != nil {
		writeError(w, "http/likes", err)
		return
	}
	writeOutcome(w, out)
}

func (s *Server) unlikeHandler(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Unlike(r.Context(), caller(r), pathID(r))
	if err != nil {
		writeError(w, "http/likes", err)
		return
	}
	writeOutcome(w, out)
}

// --- Comments ---

func (s *Server) listCommentsHandler(w http.ResponseWriter, r *http.Request) {
	comments, err := s.engine.ListComments(r.Context(), pathID(r))
	if err != nil {
		writeError(w, "http/comments", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": comments})
}

func (s *Server) createCommentHandler(w http.ResponseWriter, r *http.Request) {
	var body commentRequest
	if !decodeJSON(w, r, "http/comments", &body) {
		return
	}

	c, err := s.engine.CreateComment(r.Context(), caller(r), pathID(r), body.Body)
	if err != nil {
		writeError(w, "http/comments", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) getCommentHandler(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.GetComment(r.Context(), pathID(r))
	if err != nil {
		writeError(w, "http/comments", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) updateCommentHandler(w http.ResponseWriter, r *http.Request) {
	var body commentRequest
	if !decodeJSON(w, r, "http/comments", &body) {
		return
	}

	c, err := s.engine.UpdateComment(r.Context(), caller(r), pathID(r), body.Body)
	if err != nil {
		writeError(w, "http/comments", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteComment(r.Context(), caller(r), pathID(r)); err != nil {
		writeError(w, "http/comments", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
