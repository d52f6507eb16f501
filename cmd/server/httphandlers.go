package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"example.com/engagefeed/internal/engagement"
	"example.com/engagefeed/internal/middleware"
	"example.com/engagefeed/internal/query"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logg.Error("http", "Failed to encode response", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, module string, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		logg.Info(module, "Invalid request body")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps engine and query errors to HTTP statuses. Anything
// unrecognised is a store failure.
func writeError(w http.ResponseWriter, module string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engagement.ErrUnauthenticated), errors.Is(err, engagement.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, engagement.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, engagement.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engagement.ErrUsernameTaken):
		status = http.StatusConflict
	case errors.Is(err, engagement.ErrSelfFollow),
		errors.Is(err, engagement.ErrInvalidInput),
		errors.Is(err, query.ErrInvalidField):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		logg.Error(module, "Request failed", err)
		http.Error(w, "internal error", status)
		return
	}
	logg.Debug(module, "Request rejected: "+err.Error())
	http.Error(w, err.Error(), status)
}

var outcomeDetail = map[engagement.Outcome]string{
	engagement.OutcomeLiked:            "Post liked.",
	engagement.OutcomeAlreadyLiked:     "You have already liked this post.",
	engagement.OutcomeUnliked:          "Post unliked.",
	engagement.OutcomeNotLiked:         "You have not liked this post.",
	engagement.OutcomeFollowed:         "Account followed.",
	engagement.OutcomeAlreadyFollowing: "You are already following this account.",
	engagement.OutcomeUnfollowed:       "Account unfollowed.",
	engagement.OutcomeNotFollowing:     "You are not following this account.",
}

// writeOutcome answers 200 for a state change and 409 for a no-op. The
// outcome field tells the two no-op kinds apart.
func writeOutcome(w http.ResponseWriter, o engagement.Outcome) {
	status := http.StatusOK
	if !o.Changed() {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{
		"detail":  outcomeDetail[o],
		"outcome": string(o),
	})
}

func caller(r *http.Request) string {
	id, _ := middleware.UserIDFromContext(r.Context())
	return id
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

// --- HTTP Handlers ---

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) tokenResponse(w http.ResponseWriter, status int, userID string) {
	token, err := s.auth.IssueToken(userID)
	if err != nil {
		logg.Error("http/auth", "Failed to generate token", err)
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, map[string]string{
		"user_id": userID,
		"token":   token,
	})
}

// registerHandler creates an account.
// Expects JSON body: {"username": "alice", "password": "..."}
// Returns JSON response: {"user_id": <id>, "token": <jwt>}
func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if !decodeJSON(w, r, "http/users", &body) {
		return
	}

	acc, err := s.engine.Register(r.Context(), body.Username, body.Password)
	if err != nil {
		writeError(w, "http/users", err)
		return
	}
	logg.Info("http/users", "User created successfully with user_id="+acc.ID)
	s.tokenResponse(w, http.StatusCreated, acc.ID)
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if !decodeJSON(w, r, "http/login", &body) {
		return
	}

	acc, err := s.engine.Authenticate(r.Context(), body.Username, body.Password)
	if err != nil {
		writeError(w, "http/login", err)
		return
	}
	s.tokenResponse(w, http.StatusOK, acc.ID)
}

// getUserHandler returns the public view of an account.
func (s *Server) getUserHandler(w http.ResponseWriter, r *http.Request) {
	acc, err := s.engine.Account(r.Context(), pathID(r))
	if err != nil {
		writeError(w, "http/users", err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) followingHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := s.engine.Following(r.Context(), pathID(r))
	if err != nil {
		writeError(w, "http/users", err)
		return
	}
	writeIDs(w, ids)
}

func (s *Server) followersHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := s.engine.Followers(r.Context(), pathID(r))
	if err != nil {
		writeError(w, "http/users", err)
		return
	}
	writeIDs(w, ids)
}

func writeIDs(w http.ResponseWriter, ids []string) {
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": ids})
}

// followHandler makes the caller follow the account in the path.
func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Follow(r.Context(), caller(r), pathID(r))
	if err != nil {
		writeError(w, "http/follow", err)
		return
	}
	writeOutcome(w, out)
}

func (s *Server) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Unfollow(r.Context(), caller(r), pathID(r))
	if err != nil {
		writeError(w, "http/follow", err)
		return
	}
	writeOutcome(w, out)
}

// feedHandler returns posts by followed accounts.
// Query parameters: ?limit=50&before=<cursor>
func (s *Server) feedHandler(w http.ResponseWriter, r *http.Request) {
	page := engagement.FeedPage{Before: r.URL.Query().Get("before")}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		page.Limit = l
	}

	feed, err := s.engine.Feed(r.Context(), caller(r), page)
	if err != nil {
		writeError(w, "http/feed", err)
		return
	}
	logg.Debug("http/feed", "Feed retrieved for user_id="+caller(r)+" with "+strconv.Itoa(len(feed.Posts))+" posts")
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) listNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	unreadOnly := false
	if v := r.URL.Query().Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "unread must be a boolean", http.StatusBadRequest)
			return
		}
		unreadOnly = b
	}

	list, err := s.engine.Notifications(r.Context(), caller(r), unreadOnly)
	if err != nil {
		writeError(w, "http/notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": list})
}

func (s *Server) markReadHandler(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.MarkRead(r.Context(), caller(r), pathID(r))
	if err != nil {
		writeError(w, "http/notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}
