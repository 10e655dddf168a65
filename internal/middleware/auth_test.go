package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"waterworks/internal/apperr"
	"waterworks/internal/logger"
	"waterworks/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type stubResolver struct {
	actors map[uuid.UUID]*service.Actor
	err    error
}

func (r stubResolver) ResolveActor(_ context.Context, id uuid.UUID) (*service.Actor, error) {
	if r.err != nil {
		return nil, r.err
	}
	actor, ok := r.actors[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return actor, nil
}

func issueToken(secret []byte, userID uuid.UUID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}).SignedString(secret)
}

func newRouter(resolver ActorResolver, handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append([]gin.HandlerFunc{TokenFromQuery(), Authenticate(testSecret, resolver, logger.Discard())}, handlers...)
	chain = append(chain, func(c *gin.Context) {
		actor := ActorFrom(c)
		fromCtx := service.ActorFromContext(c.Request.Context())
		if actor == nil || fromCtx != actor {
			c.Status(http.StatusTeapot)
			return
		}
		c.String(http.StatusOK, actor.Email)
	})
	r.GET("/probe", chain...)
	return r
}

func do(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	actor := &service.Actor{ID: uuid.New(), Email: "crew@example.com"}
	resolver := stubResolver{actors: map[uuid.UUID]*service.Actor{actor.ID: actor}}
	r := newRouter(resolver)

	token, err := issueToken(testSecret, actor.ID, actor.Email, time.Hour)
	require.NoError(t, err)
	foreign, err := issueToken([]byte("other"), actor.ID, actor.Email, time.Hour)
	require.NoError(t, err)
	expired, err := issueToken(testSecret, actor.ID, actor.Email, -time.Minute)
	require.NoError(t, err)
	stranger, err := issueToken(testSecret, uuid.New(), "who@example.com", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "access_token", Value: token}) }, http.StatusOK},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=" + token }, http.StatusOK},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", token) }, http.StatusUnauthorized},
		{"wrong secret", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+foreign) }, http.StatusUnauthorized},
		{"expired", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) }, http.StatusUnauthorized},
		{"unknown user", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+stranger) }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			tt.setup(req)
			w := do(r, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, actor.Email, w.Body.String())
			}
		})
	}
}

func TestAuthenticateResolverFailure(t *testing.T) {
	r := newRouter(stubResolver{err: errors.New("db down")})
	token, err := issueToken(testSecret, uuid.New(), "x@example.com", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusInternalServerError, do(r, req).Code)
}

func TestParseSubjectRejectsNonUUIDSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "admin"}).SignedString(testSecret)
	require.NoError(t, err)

	_, err = ParseSubject(token, testSecret)
	assert.ErrorIs(t, err, errInvalidSubject)
}

func TestRequireAccess(t *testing.T) {
	actor := &service.Actor{ID: uuid.New(), Email: "crew@example.com"}
	resolver := stubResolver{actors: map[uuid.UUID]*service.Actor{actor.ID: actor}}
	token, err := issueToken(testSecret, actor.ID, actor.Email, time.Hour)
	require.NoError(t, err)

	allow := func(_ context.Context, a *service.Actor, page string) (bool, error) {
		return a != nil && page == "valves", nil
	}
	broken := func(context.Context, *service.Actor, string) (bool, error) {
		return false, errors.New("lookup failed")
	}

	tests := []struct {
		name   string
		guard  service.Guard
		page   string
		status int
	}{
		{"allowed", allow, "valves", http.StatusOK},
		{"denied", allow, "roles", http.StatusForbidden},
		{"lookup error", broken, "valves", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(resolver, RequireAccess(tt.guard, tt.page))
			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			assert.Equal(t, tt.status, do(r, req).Code)
		})
	}
}
