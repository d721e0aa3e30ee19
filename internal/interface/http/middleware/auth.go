package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/xiebiao/freshmart/pkg/errors"
	"github.com/xiebiao/freshmart/pkg/jwt"
	"github.com/xiebiao/freshmart/pkg/response"
)

// Context keys set by RequireAuth
const (
	ContextOperatorID = "operator_id"
	ContextRole       = "role"
	ContextStoreID    = "store_id"
	ContextClaims     = "claims"
	ContextToken      = "token"
)

// Roles allowed to manage batches and other people's orders
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Blacklist revoked tokens (redis.SessionStore)
type Blacklist interface {
	IsInBlacklist(ctx context.Context, token string) (bool, error)
	AddToBlacklist(ctx context.Context, token string, ttl time.Duration) error
}

// AuthMiddleware JWT authentication
//
// Design notes:
//  1. token from "Authorization: Bearer <token>"
//  2. revoked tokens are rejected before the signature is even checked
//  3. operator, role and store are put into the gin context
type AuthMiddleware struct {
	jwtManager *jwt.Manager
	blacklist  Blacklist
}

// NewAuthMiddleware creates the middleware
func NewAuthMiddleware(jwtManager *jwt.Manager, blacklist Blacklist) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
		blacklist:  blacklist,
	}
}

// RequireAuth rejects requests without a valid token
//
//	authorized := r.Group("/api/v1")
//	authorized.Use(authMiddleware.RequireAuth())
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			response.Error(c, apperrors.ErrInvalidToken.WithMessage("malformed Authorization header"))
			c.Abort()
			return
		}
		tokenString := parts[1]

		revoked, err := m.blacklist.IsInBlacklist(c.Request.Context(), tokenString)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if revoked {
			response.Error(c, apperrors.ErrTokenExpired.WithMessage("token has been revoked"))
			c.Abort()
			return
		}

		claims, err := m.jwtManager.ParseToken(tokenString)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextOperatorID, claims.OperatorID())
		c.Set(ContextRole, claims.Role)
		c.Set(ContextStoreID, claims.StoreID)
		c.Set(ContextClaims, claims)
		c.Set(ContextToken, tokenString)
		c.Next()
	}
}

// RequireRole must run after RequireAuth
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		response.Error(c, apperrors.ErrForbidden)
		c.Abort()
	}
}

// Revoke blacklists the current token until it would have expired
func (m *AuthMiddleware) Revoke(c *gin.Context) error {
	claims, ok := c.Get(ContextClaims)
	if !ok {
		return apperrors.ErrUnauthorized
	}
	ttl := claims.(*jwt.Claims).RemainingTTL(time.Now())
	return m.blacklist.AddToBlacklist(c.Request.Context(), c.GetString(ContextToken), ttl)
}

// GetOperatorID authenticated operator, "" when anonymous
func GetOperatorID(c *gin.Context) string {
	return c.GetString(ContextOperatorID)
}

// GetRole role claim of the token
func GetRole(c *gin.Context) string {
	return c.GetString(ContextRole)
}

// IsPrivileged staff and admins act on any store's orders
func IsPrivileged(c *gin.Context) bool {
	role := GetRole(c)
	return role == RoleStaff || role == RoleAdmin
}
