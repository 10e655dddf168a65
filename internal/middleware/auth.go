package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"waterworks/internal/apperr"
	"waterworks/internal/service"
	"waterworks/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const actorKey = "actor"

// ActorResolver turns a token subject into the principal requests run as.
type ActorResolver interface {
	ResolveActor(ctx context.Context, id uuid.UUID) (*service.Actor, error)
}

var errInvalidSubject = errors.New("token subject is not a user id")

// ParseSubject validates tokenString and returns the user id it was issued for.
func ParseSubject(tokenString string, secret []byte) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	if !token.Valid {
		return uuid.Nil, jwt.ErrTokenSignatureInvalid
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, errInvalidSubject
	}
	return id, nil
}

// Authenticate validates the JWT from the access_token cookie or the Authorization header
// and stores the resolved actor on both the gin and the request context.
func Authenticate(secret []byte, resolver ActorResolver, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Try cookie first, fallback to Authorization header
		tokenString, cookieErr := c.Cookie("access_token")
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
				return
			}
			tokenString = parts[1]
		}

		userID, err := ParseSubject(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
			return
		}

		actor, err := resolver.ResolveActor(c.Request.Context(), userID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Unknown user"))
			return
		case err != nil:
			if log != nil {
				log.WithError(err).WithField("user_id", userID).Error("resolve actor failed")
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to resolve user"))
			return
		}

		c.Set(actorKey, actor)
		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// ActorFrom returns the actor stored by Authenticate, or nil.
func ActorFrom(c *gin.Context) *service.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	actor, _ := v.(*service.Actor)
	return actor
}

// RequireAccess aborts with 403 unless guard admits the actor on page.
// A failed permission lookup is a 500, never an implicit grant.
func RequireAccess(guard service.Guard, page string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := guard(c.Request.Context(), ActorFrom(c), page)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}
		c.Next()
	}
}

// TokenFromQuery promotes a ?token= parameter to a Bearer header for clients,
// such as browser WebSockets, that cannot set headers.
func TokenFromQuery() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := c.Query("token"); token != "" && c.GetHeader("Authorization") == "" {
			c.Request.Header.Set("Authorization", "Bearer "+token)
		}
		c.Next()
	}
}
