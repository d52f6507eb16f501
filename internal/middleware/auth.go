package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const UserCtxKey = contextKey("user_id")

var (
	errMissingHeader = errors.New("missing Authorization header")
	errBadHeader     = errors.New("invalid Authorization header")
	errBadToken      = errors.New("invalid token")
	errBadUserID     = errors.New("invalid user_id in token")
)

// Authenticator issues and verifies HS256 bearer tokens carrying a user_id claim.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueToken signs a token for userID that expires after the configured TTL.
func (a *Authenticator) IssueToken(userID string) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(a.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken validates a raw token and returns its user_id.
func (a *Authenticator) ParseToken(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return "", errBadToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errBadToken
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errBadUserID
	}
	return userID, nil
}

func (a *Authenticator) fromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errMissingHeader
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errBadHeader
	}
	return a.ParseToken(parts[1])
}

// Require rejects requests without a valid bearer token.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.fromRequest(r)
		if err != nil {
			unauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// Optional lets anonymous requests through but still rejects a token that
// is present and invalid.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.fromRequest(r)
		switch {
		case errors.Is(err, errMissingHeader):
			next.ServeHTTP(w, r)
		case err != nil:
			unauthorized(w, err)
		default:
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		}
	})
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, err.Error(), http.StatusUnauthorized)
}

// WithUserID stores the authenticated account ID on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserCtxKey, userID)
}

// Extracting user_id in handler
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserCtxKey).(string)
	return id, ok
}
