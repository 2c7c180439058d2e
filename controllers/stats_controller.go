package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/sharebox/middleware"
	"github.com/cppla/sharebox/models"
	"github.com/cppla/sharebox/utils"
)

// StatsController provides service statistics for admins.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// GetStats returns aggregate counts. A failing query reports 0 instead of
// failing the whole endpoint.
func (s *StatsController) GetStats(ctx *gin.Context) {
	db := s.db.WithContext(ctx.Request.Context())
	var userCount, fileCount, storedBytes, shareHits int64

	if err := db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		statsFailed("user_count", err)
		userCount = 0
	}

	ready := db.Model(&models.File{}).Where("status = ?", models.FileStatusReady)
	if err := ready.Session(&gorm.Session{}).Count(&fileCount).Error; err != nil {
		statsFailed("file_count", err)
		fileCount = 0
	}
	if err := ready.Session(&gorm.Session{}).Select("COALESCE(SUM(size_bytes), 0)").Scan(&storedBytes).Error; err != nil {
		statsFailed("stored_bytes", err)
		storedBytes = 0
	}

	if err := db.Model(&models.ShareAccess{}).
		Where("day = ?", middleware.ShareDay(time.Now())).
		Select("COALESCE(SUM(hits), 0)").
		Scan(&shareHits).Error; err != nil {
		statsFailed("share_hits_today", err)
		shareHits = 0
	}

	utils.Success(ctx, gin.H{
		"userCount":      userCount,
		"fileCount":      fileCount,
		"storedBytes":    storedBytes,
		"shareHitsToday": shareHits,
	})
}

func statsFailed(metric string, err error) {
	utils.L().Warn("stats query failed", zap.String("metric", metric), zap.Error(err))
}
