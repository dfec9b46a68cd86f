package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

const (
	// AuthorizationHeader is the header key for the JWT token
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for the JWT token
	BearerPrefix = "Bearer "
	// UserIDKey is the context key for the user ID
	UserIDKey = "userID"
	// PrincipalKey is the context key for the resolved caller
	PrincipalKey = "principal"
)

// PrincipalResolver turns a bearer token into the caller's identity and roles
type PrincipalResolver interface {
	ValidateAccessToken(tokenString string) (uuid.UUID, error)
	ResolvePrincipal(ctx context.Context, userID uuid.UUID) (domain.Principal, error)
}

// AuthMiddleware requires a valid access token and loads the caller's roles once per request
func AuthMiddleware(resolver PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeader)
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header is required",
			})
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Token is required",
			})
			return
		}

		userID, err := resolver.ValidateAccessToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		principal, err := resolver.ResolvePrincipal(c.Request.Context(), userID)
		if err != nil {
			message := "Invalid or expired token"
			switch {
			case errors.Is(err, domain.ErrAccountLocked):
				message = domain.ErrAccountLocked.Error()
			case errors.Is(err, domain.ErrAccountInactive):
				message = domain.ErrAccountInactive.Error()
			case !errors.Is(err, domain.ErrInvalidToken) && !errors.Is(err, domain.ErrUserNotFound):
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to resolve user",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
			return
		}

		c.Set(UserIDKey, principal.UserID)
		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// RequireRoles rejects callers holding none of the given roles. It must run after AuthMiddleware.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}
		if !principal.HasAnyRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}
		c.Next()
	}
}

// GetUserID extracts the user ID from the gin context
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := userID.(uuid.UUID)
	return id, ok
}

// GetPrincipal extracts the resolved caller from the gin context
func GetPrincipal(c *gin.Context) (domain.Principal, bool) {
	value, exists := c.Get(PrincipalKey)
	if !exists {
		return domain.Principal{}, false
	}
	principal, ok := value.(domain.Principal)
	return principal, ok
}

// RequirePrincipal returns the caller or aborts with 401
func RequirePrincipal(c *gin.Context) (domain.Principal, bool) {
	principal, ok := GetPrincipal(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Authentication required",
		})
		return domain.Principal{}, false
	}
	return principal, true
}
