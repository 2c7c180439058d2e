package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/sharebox/middleware"
	"github.com/cppla/sharebox/models"
	"github.com/cppla/sharebox/services"
	"github.com/cppla/sharebox/utils"
)

// respondError maps a service error onto the HTTP error taxonomy. Persistence
// failures are logged and answered with a generic message.
func respondError(ctx *gin.Context, op string, err error) {
	var quota *services.QuotaExceededError
	switch {
	case errors.As(err, &quota):
		utils.ErrorWithDetails(ctx, http.StatusBadRequest, 40013, quotaMessage(quota), map[string]interface{}{
			"currentUsed": quota.CurrentUsed,
			"limit":       quota.Limit,
			"available":   quota.Available,
			"fileSize":    quota.FileSize,
		})
	case errors.Is(err, services.ErrUnauthenticated):
		middleware.Unauthorized(ctx)
	case errors.Is(err, services.ErrForbidden):
		utils.Error(ctx, http.StatusForbidden, 40301, "forbidden")
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40401, "not found")
	case errors.Is(err, services.ErrInvalidInput):
		utils.Error(ctx, http.StatusBadRequest, 40001, invalidMessage(err))
	case errors.Is(err, services.ErrConflict):
		utils.Error(ctx, http.StatusConflict, 40901, "already exists")
	default:
		status, code := http.StatusInternalServerError, 50001
		if errors.Is(err, services.ErrPersistence) && isAuthRoute(ctx) {
			status, code = http.StatusServiceUnavailable, 50301
		}
		utils.L().Error("request failed",
			zap.String("route", ctx.FullPath()),
			zap.Uint("user_id", middleware.CurrentUserID(ctx)),
			zap.String("op", op),
			zap.Error(err))
		if status == http.StatusServiceUnavailable {
			utils.Error(ctx, status, code, "service temporarily unavailable")
			return
		}
		utils.Error(ctx, status, code, "internal server error")
	}
}

func isAuthRoute(ctx *gin.Context) bool {
	return strings.Contains(ctx.FullPath(), "/auth/")
}

// invalidMessage strips the category prefix from a validation error.
func invalidMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, services.ErrInvalidInput.Error()+": "); i >= 0 {
		return msg[i+len(services.ErrInvalidInput.Error())+2:]
	}
	return "invalid request"
}

func quotaMessage(q *services.QuotaExceededError) string {
	return fmt.Sprintf("storage quota exceeded: file is %s but only %s of %s is available",
		humanize.IBytes(uint64(max(q.FileSize, 0))),
		humanize.IBytes(uint64(max(q.Available, 0))),
		humanize.IBytes(uint64(max(q.Limit, 0))))
}

// userSummary is the account view shared by auth and listing responses.
func userSummary(u models.User, used int64) gin.H {
	return gin.H{
		"id":           u.ID,
		"email":        u.Email,
		"role":         u.Role,
		"storageLimit": u.StorageLimitBytes,
		"storageUsed":  used,
		"isUnlimited":  u.IsUnlimited(),
	}
}

// requestOrigin returns scheme://host for building absolute links.
func requestOrigin(ctx *gin.Context) string {
	scheme := "http"
	if ctx.Request.TLS != nil {
		scheme = "https"
	}
	if p := ctx.GetHeader("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + ctx.Request.Host
}
