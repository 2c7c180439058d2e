package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/sharebox/config"
	"github.com/cppla/sharebox/middleware"
	"github.com/cppla/sharebox/models"
	"github.com/cppla/sharebox/services"
	"github.com/cppla/sharebox/utils"
)

// AuthController handles registration, login and account endpoints.
type AuthController struct {
	accounts *services.AccountService
	quota    *services.QuotaAccountant
}

// NewAuthController creates a new AuthController.
func NewAuthController(accounts *services.AccountService, quota *services.QuotaAccountant) *AuthController {
	return &AuthController{accounts: accounts, quota: quota}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func tokenTTL() time.Duration {
	hours := config.Get().TokenTTLHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func cookieName() string {
	if name := config.Get().AuthCookieName; name != "" {
		return name
	}
	return "auth"
}

// issueSession signs a token for user, sets the auth cookie and writes the session body.
func (a *AuthController) issueSession(ctx *gin.Context, user *models.User) {
	ttl := tokenTTL()
	token, err := utils.GenerateToken(user.ID, user.Email, string(user.Role), ttl)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to generate token")
		return
	}

	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(cookieName(), token, int(ttl.Seconds()), "/", "", ctx.Request.TLS != nil, true)
	utils.Success(ctx, gin.H{
		"token":        token,
		"id":           user.ID,
		"email":        user.Email,
		"role":         user.Role,
		"storageLimit": user.StorageLimitBytes,
		"isUnlimited":  user.IsUnlimited(),
	})
}

// Register creates an account and signs the caller in.
func (a *AuthController) Register(ctx *gin.Context) {
	var req credentialsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "email and password are required")
		return
	}

	// Anti-abuse: cooldown and per-IP daily limit
	ip := ctx.ClientIP()
	rctx := ctx.Request.Context()
	if !utils.RegistrationCooldownTry(rctx, ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42910, "too many registration attempts, try again later")
		return
	}
	if !utils.RegistrationDailyLimitCheck(rctx, ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42921, "daily registration limit reached")
		return
	}

	user, err := a.accounts.Register(rctx, req.Email, req.Password)
	if err != nil {
		respondError(ctx, "register", err)
		return
	}
	utils.RegistrationDailyIncrement(rctx, ip)
	a.issueSession(ctx, user)
}

// Login verifies credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	var req credentialsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "email and password are required")
		return
	}

	user, err := a.accounts.Authenticate(ctx.Request.Context(), req.Email, req.Password)
	if errors.Is(err, services.ErrUnauthenticated) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid email or password")
		return
	}
	if err != nil {
		respondError(ctx, "login", err)
		return
	}
	a.issueSession(ctx, user)
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	token, expiresAt := middleware.CurrentToken(ctx)
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(tokenTTL())
	}
	utils.BlacklistToken(ctx.Request.Context(), token, expiresAt)

	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(cookieName(), "", -1, "/", "", ctx.Request.TLS != nil, true)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current user with fresh role, ceiling and usage.
func (a *AuthController) Me(ctx *gin.Context) {
	rctx := ctx.Request.Context()
	user, err := a.accounts.Get(rctx, middleware.CurrentUserID(ctx))
	if errors.Is(err, services.ErrNotFound) {
		middleware.Unauthorized(ctx)
		return
	}
	if err != nil {
		respondError(ctx, "get user", err)
		return
	}
	used, err := a.quota.CurrentUsage(rctx, user.ID)
	if err != nil {
		respondError(ctx, "usage", err)
		return
	}
	utils.Success(ctx, userSummary(*user, used))
}

// SetAdmin promotes another account to admin with unlimited storage.
func (a *AuthController) SetAdmin(ctx *gin.Context) {
	type request struct {
		Email string `json:"email" binding:"required"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "email is required")
		return
	}

	rctx := ctx.Request.Context()
	user, err := a.accounts.Promote(rctx, req.Email)
	if err != nil {
		respondError(ctx, "promote", err)
		return
	}
	used, err := a.quota.CurrentUsage(rctx, user.ID)
	if err != nil {
		respondError(ctx, "usage", err)
		return
	}
	utils.Success(ctx, gin.H{
		"message": user.Email + " is now an admin with unlimited storage",
		"user":    userSummary(*user, used),
	})
}
