package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"example.com/engagefeed/internal/engagement"
	config "example.com/engagefeed/internal/init"
	"example.com/engagefeed/internal/logger"
	"example.com/engagefeed/internal/middleware"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

type Server struct {
	engine *engagement.Engine
	auth   *middleware.Authenticator
}

var logg = logger.New()

func New(engine *engagement.Engine, auth *middleware.Authenticator) *Server {
	return &Server{engine: engine, auth: auth}
}

// Routes builds the HTTP handler. Reads accept anonymous callers; writes
// require a bearer token.
func (s *Server) Routes(corsOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.Use(logRequests)

	optional := func(h http.HandlerFunc) http.Handler { return s.auth.Optional(h) }
	required := func(h http.HandlerFunc) http.Handler { return s.auth.Require(h) }

	// Public endpoints
	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/users", s.registerHandler).Methods(http.MethodPost)
	r.HandleFunc("/login", s.loginHandler).Methods(http.MethodPost)

	// Accounts, graph and feed
	r.Handle("/users/{id}", optional(s.getUserHandler)).Methods(http.MethodGet)
	r.Handle("/users/{id}/following", optional(s.followingHandler)).Methods(http.MethodGet)
	r.Handle("/users/{id}/followers", optional(s.followersHandler)).Methods(http.MethodGet)
	r.Handle("/follow/{id}", required(s.followHandler)).Methods(http.MethodPost)
	r.Handle("/unfollow/{id}", required(s.unfollowHandler)).Methods(http.MethodPost)
	r.Handle("/feed", required(s.feedHandler)).Methods(http.MethodGet)

	// Posts
	r.Handle("/posts", optional(s.listPostsHandler)).Methods(http.MethodGet)
	r.Handle("/posts", required(s.createPostHandler)).Methods(http.MethodPost)
	r.Handle("/posts/{id}", optional(s.getPostHandler)).Methods(http.MethodGet)
	r.Handle("/posts/{id}", required(s.updatePostHandler)).Methods(http.MethodPut, http.MethodPatch)
	r.Handle("/posts/{id}", required(s.deletePostHandler)).Methods(http.MethodDelete)
	r.Handle("/posts/{id}/like", required(s.likeHandler)).Methods(http.MethodPost)
	r.Handle("/posts/{id}/unlike", required(s.unlikeHandler)).Methods(http.MethodPost)

	// Comments
	r.Handle("/posts/{id}/comments", optional(s.listCommentsHandler)).Methods(http.MethodGet)
	r.Handle("/posts/{id}/comments", required(s.createCommentHandler)).Methods(http.MethodPost)
	r.Handle("/comments/{id}", optional(s.getCommentHandler)).Methods(http.MethodGet)
	r.Handle("/comments/{id}", required(s.updateCommentHandler)).Methods(http.MethodPut, http.MethodPatch)
	r.Handle("/comments/{id}", required(s.deleteCommentHandler)).Methods(http.MethodDelete)

	// Notifications
	r.Handle("/notifications", required(s.listNotificationsHandler)).Methods(http.MethodGet)
	r.Handle("/notifications/{id}/read", required(s.markReadHandler)).Methods(http.MethodPost)

	if len(corsOrigins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}).Handler(r)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logg.Debug("http", r.Method+" "+r.URL.Path+" in "+time.Since(start).String())
	})
}

// Run serves until ctx is canceled, then shuts down gracefully. TLS is used
// when both a certificate and a key are configured.
func Run(ctx context.Context, s *Server, cfg *config.Config) error {
	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      s.Routes(cfg.CORSOrigins),
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSCert != "" && cfg.TLSKey != "" {
			logg.Info("server", "Starting HTTPS server on "+cfg.ServerAddr)
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			logg.Warn("server", "TLS not configured, starting plain HTTP server on "+cfg.ServerAddr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("server", "Server stopped unexpectedly", err)
			errCh <- err
		}
		close(errCh)
	}()

	// --- Graceful shutdown ---
	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
		return err
	}
	logg.Info("server", "Server stopped gracefully")
	return nil
}
