package middleware

import (
	"errors"
	"strings"

	"telemed-server/internal/apperr"
	"telemed-server/internal/config"
	"telemed-server/internal/models"
	"telemed-server/internal/services"
	"telemed-server/internal/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	userIDKey     = "userID"
	userRoleKey   = "userRole"
	userStatusKey = "userStatus"
)

// AuthMiddleware creates a middleware for JWT authentication. The user is
// reloaded on every request so status changes apply immediately.
func AuthMiddleware(cfg *config.Config, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			utils.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		authenticate(c, cfg, db, parts[1])
	}
}

// WebSocketAuthMiddleware also accepts the token as a query parameter, since
// browsers cannot set headers on a WebSocket handshake.
func WebSocketAuthMiddleware(cfg *config.Config, db *gorm.DB) gin.HandlerFunc {
	header := AuthMiddleware(cfg, db)
	return func(c *gin.Context) {
		if token := c.Query("token"); token != "" && c.GetHeader("Authorization") == "" {
			authenticate(c, cfg, db, token)
			return
		}
		header(c)
	}
}

func authenticate(c *gin.Context, cfg *config.Config, db *gorm.DB, token string) {
	claims, err := utils.ValidateToken(token, cfg.JWTSecret)
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			utils.Unauthorized(c, "Token expired")
		} else {
			utils.Unauthorized(c, "Invalid token")
		}
		c.Abort()
		return
	}

	var user models.User
	err = db.WithContext(c.Request.Context()).
		Select("id", "role", "status").
		First(&user, "id = ?", claims.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Unauthorized(c, "User no longer exists")
		c.Abort()
		return
	}
	if err != nil {
		utils.RespondError(c, apperr.FromStore(err, "user not found"))
		return
	}
	if user.Status == models.UserStatusRejected || user.Status == models.UserStatusSuspended {
		utils.Forbidden(c, "Account is "+string(user.Status))
		c.Abort()
		return
	}

	// Set user information in context for downstream handlers
	c.Set(userIDKey, user.ID)
	c.Set(userRoleKey, user.Role)
	c.Set(userStatusKey, user.Status)

	c.Next()
}

// RoleAuthMiddleware creates a middleware for role-based authorization.
// It should be used *after* AuthMiddleware.
func RoleAuthMiddleware(allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetUserRoleFromContext(c)
		if !ok {
			utils.InternalServerError(c, "User role not found in context. AuthMiddleware might be missing.")
			c.Abort()
			return
		}

		for _, allowedRole := range allowedRoles {
			if role == allowedRole {
				c.Next()
				return
			}
		}

		utils.Forbidden(c, "You do not have permission to access this resource.")
		c.Abort()
	}
}

// GetUserIDFromContext returns the authenticated user's id.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID, exists := c.Get(userIDKey)
	if !exists {
		return "", false
	}
	idStr, ok := userID.(string)
	return idStr, ok && idStr != ""
}

// GetUserRoleFromContext returns the authenticated user's role.
func GetUserRoleFromContext(c *gin.Context) (models.Role, bool) {
	userRole, exists := c.Get(userRoleKey)
	if !exists {
		return "", false
	}
	role, ok := userRole.(models.Role)
	return role, ok
}

// PrincipalFromContext assembles the principal set by AuthMiddleware.
func PrincipalFromContext(c *gin.Context) (services.Principal, bool) {
	id, ok := GetUserIDFromContext(c)
	if !ok {
		return services.Principal{}, false
	}
	role, ok := GetUserRoleFromContext(c)
	if !ok {
		return services.Principal{}, false
	}
	status, _ := c.Get(userStatusKey)
	s, _ := status.(models.UserStatus)
	return services.Principal{ID: id, Role: role, Status: s}, true
}
