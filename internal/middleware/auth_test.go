package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		if !ok {
			id = "anonymous"
		}
		_, _ = w.Write([]byte(id))
	})
}

func do(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIssueAndParseToken(t *testing.T) {
	a := NewAuthenticator("secret", time.Hour)

	token, err := a.IssueToken("user-1")
	require.NoError(t, err)

	id, err := a.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)

	_, err = NewAuthenticator("other-secret", time.Hour).ParseToken(token)
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	a := NewAuthenticator("secret", time.Minute)
	a.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := a.IssueToken("user-1")
	require.NoError(t, err)

	a.now = time.Now
	_, err = a.ParseToken(token)
	assert.Error(t, err)
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	a := NewAuthenticator("secret", time.Hour)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "user-1"})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = a.ParseToken(raw)
	assert.Error(t, err)
}

func TestParseToken_MissingUserID(t *testing.T) {
	a := NewAuthenticator("secret", time.Hour)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = a.ParseToken(raw)
	assert.ErrorIs(t, err, errBadUserID)
}

func TestRequire(t *testing.T) {
	a := NewAuthenticator("secret", time.Hour)
	token, err := a.IssueToken("user-1")
	require.NoError(t, err)
	h := a.Require(echoUser())

	rr := do(h, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user-1", rr.Body.String())

	for _, header := range []string{"", "Token " + token, "Bearer", "Bearer garbage"} {
		rr := do(h, header)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "header %q", header)
		assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
	}
}

func TestOptional(t *testing.T) {
	a := NewAuthenticator("secret", time.Hour)
	token, err := a.IssueToken("user-1")
	require.NoError(t, err)
	h := a.Optional(echoUser())

	rr := do(h, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "anonymous", rr.Body.String())

	rr = do(h, "Bearer "+token)
	assert.Equal(t, "user-1", rr.Body.String())

	rr = do(h, "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
