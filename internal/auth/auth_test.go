package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"groupchatgo/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	tok, err := GenerateToken("u1", store.RoleTeacher, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, store.RoleTeacher, claims.Role)
	assert.Equal(t, "u1", claims.Subject)
}

func TestParseToken_WrongSecret(t *testing.T) {
	tok, err := GenerateToken("u1", store.RoleStudent, testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(tok, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_Expired(t *testing.T) {
	tok, err := GenerateToken("u1", store.RoleStudent, testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(tok, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_Garbage(t *testing.T) {
	_, err := ParseToken("not-a-jwt", testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.True(t, VerifyPassword(hash, "s3cret"))
	assert.False(t, VerifyPassword(hash, "wrong"))
}

type middlewareStore struct {
	store.Store
	users map[string]*store.User
}

func (s *middlewareStore) FindUser(_ context.Context, id string) (*store.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func newAuthRouter(st store.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Middleware(testSecret, st), func(c *gin.Context) {
		u := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"id": u.ID, "role": u.Role})
	})
	return r
}

func TestMiddleware_LoadsLiveUser(t *testing.T) {
	st := &middlewareStore{users: map[string]*store.User{
		"u1": {ID: "u1", Role: store.RoleMentor, Name: "Alice"},
	}}
	r := newAuthRouter(st)

	// Token was issued while the user was still a student; the request sees
	// the role currently in the store.
	tok, err := GenerateToken("u1", store.RoleStudent, testSecret, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"u1","role":"mentor"}`, w.Body.String())
}

func TestMiddleware_Rejections(t *testing.T) {
	st := &middlewareStore{users: map[string]*store.User{}}
	r := newAuthRouter(st)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"bad token", "Bearer garbage"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestMiddleware_DeletedUser(t *testing.T) {
	st := &middlewareStore{users: map[string]*store.User{}}
	r := newAuthRouter(st)

	tok, err := GenerateToken("gone", store.RoleAdmin, testSecret, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code, "valid token of a removed user is rejected")
}
