package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/sharebox/config"
	"github.com/cppla/sharebox/controllers"
	"github.com/cppla/sharebox/middleware"
	"github.com/cppla/sharebox/services"
	"github.com/cppla/sharebox/utils"
)

const apiPrefix = "/api/v1"

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, svc *services.Services) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	gl := accessLogger(cfg)
	r.Use(ginzap.Ginzap(gl, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(gl, true))
	r.Use(cors.New(corsConfig(cfg)))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(svc.Accounts, svc.Quota)
	fileController := controllers.NewFileController(svc.Files, cfg)
	shareController := controllers.NewShareController(svc.Files)
	statsController := controllers.NewStatsController(db)

	api := r.Group(apiPrefix)

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimit(cfg.RateLimitPerMinute))
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.POST("/set-admin", middleware.AuthRequired(), middleware.AdminRequired(svc.Accounts), authController.SetAdmin)

	filesGroup := api.Group("/files")
	filesGroup.Use(middleware.AuthRequired(), middleware.RateLimit(cfg.RateLimitPerMinute))
	filesGroup.POST("/upload", fileController.Upload)
	filesGroup.GET("", fileController.List)
	filesGroup.POST("/rename", fileController.Rename)
	filesGroup.DELETE("", fileController.Delete)
	filesGroup.POST("/create-link", fileController.CreateLink)
	filesGroup.GET("/:id/download", fileController.Download)

	// Share links are public. They are served under the API and under the
	// configured public prefix that issued links point at.
	shareGroups := []*gin.RouterGroup{api.Group("/share")}
	if public := strings.TrimSuffix(cfg.SharePathPrefix, "/"); public != "" && public != apiPrefix+"/share" {
		shareGroups = append(shareGroups, r.Group(public))
	}
	for _, g := range shareGroups {
		g.GET("/:code", middleware.ShareAccessRecorder(db), shareController.Fetch)
		g.HEAD("/:code", shareController.Fetch)
		g.GET("/:code/info", shareController.Info)
	}

	adminGroup := api.Group("/admin")
	adminGroup.Use(middleware.AuthRequired(), middleware.AdminRequired(svc.Accounts))
	adminGroup.GET("/stats", statsController.GetStats)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}

// accessLogger writes the HTTP access log to its own rolling file, or to the
// application logger when no file is configured.
func accessLogger(cfg config.AppConfig) *zap.Logger {
	if cfg.GinPath == "" {
		return utils.L()
	}
	return utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
}

func corsConfig(cfg config.AppConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "HEAD", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Range"},
		ExposeHeaders:    []string{"Content-Length", "Content-Range", "Accept-Ranges", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		c.AllowAllOrigins = true
		// credentials cannot be combined with a wildcard origin
		c.AllowCredentials = false
	} else {
		c.AllowOrigins = cfg.AllowedOrigins
	}
	return c
}
