package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/sharebox/config"
	"github.com/cppla/sharebox/models"
	"github.com/cppla/sharebox/services"
	"github.com/cppla/sharebox/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextEmailKey stores the email inside Gin context.
	ContextEmailKey = "email"
	// ContextRoleKey stores the role carried by the token.
	ContextRoleKey = "role"
	// ContextTokenKey stores the raw token so logout can revoke it.
	ContextTokenKey = "token"
	// ContextTokenExpiryKey stores the token expiry.
	ContextTokenExpiryKey = "token_expires_at"
)

// Unauthorized writes the single response used for every authentication failure.
func Unauthorized(ctx *gin.Context) {
	utils.Error(ctx, http.StatusUnauthorized, 40101, "unauthorized")
}

// TokenFromRequest returns the bearer token, or the auth cookie when no
// Authorization header is present.
func TokenFromRequest(ctx *gin.Context) string {
	if h := ctx.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	name := config.Get().AuthCookieName
	if name == "" {
		name = "auth"
	}
	cookie, err := ctx.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie)
}

// AuthRequired ensures the request is authenticated via JWT.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenString := TokenFromRequest(ctx)
		if tokenString == "" {
			Unauthorized(ctx)
			return
		}

		if utils.IsTokenBlacklisted(ctx.Request.Context(), tokenString) {
			Unauthorized(ctx)
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			Unauthorized(ctx)
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextEmailKey, claims.Email)
		ctx.Set(ContextRoleKey, claims.Role)
		ctx.Set(ContextTokenKey, tokenString)
		if claims.ExpiresAt != nil {
			ctx.Set(ContextTokenExpiryKey, claims.ExpiresAt.Time)
		}
		ctx.Next()
	}
}

// CurrentUserID returns the authenticated user id, or 0.
func CurrentUserID(ctx *gin.Context) uint {
	return ctx.GetUint(ContextUserIDKey)
}

// CurrentToken returns the raw token and its expiry.
func CurrentToken(ctx *gin.Context) (string, time.Time) {
	return ctx.GetString(ContextTokenKey), ctx.GetTime(ContextTokenExpiryKey)
}

// UserLoader looks users up by id.
type UserLoader interface {
	Get(ctx context.Context, userID uint) (*models.User, error)
}

// AdminRequired reloads the caller and rejects anyone who is not an admin
// right now, whatever role the token was issued with.
func AdminRequired(users UserLoader) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		userID := CurrentUserID(ctx)
		if userID == 0 {
			Unauthorized(ctx)
			return
		}
		user, err := users.Get(ctx.Request.Context(), userID)
		if errors.Is(err, services.ErrNotFound) {
			Unauthorized(ctx)
			return
		}
		if err != nil {
			utils.L().Error("admin check failed", zap.Uint("user_id", userID), zap.Error(err))
			utils.Error(ctx, http.StatusInternalServerError, 50001, "internal server error")
			return
		}
		if user.Role != models.RoleAdmin {
			utils.Error(ctx, http.StatusForbidden, 40301, "admin privileges required")
			return
		}
		ctx.Next()
	}
}
