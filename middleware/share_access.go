package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/sharebox/models"
	"github.com/cppla/sharebox/utils"
)

// ShareDay is the bucket a share access is counted under.
func ShareDay(t time.Time) string {
	return t.In(time.Local).Format("2006-01-02")
}

// ShareAccessRecorder counts successful share content fetches per day and code.
func ShareAccessRecorder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != http.MethodGet {
			return
		}
		status := c.Writer.Status()
		if status != http.StatusOK && status != http.StatusPartialContent {
			return
		}
		code := c.Param("code")
		if code == "" {
			return
		}

		now := time.Now()
		// Atomic upsert to avoid duplicate key errors under concurrency
		err := db.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "day"}, {Name: "share_code"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"hits": gorm.Expr("share_accesses.hits + 1"), "updated_at": now}),
		}).Create(&models.ShareAccess{Day: ShareDay(now), ShareCode: code, Hits: 1, CreatedAt: now, UpdatedAt: now}).Error
		if err != nil {
			utils.L().Warn("record share access failed", zap.String("share_code", code), zap.Error(err))
		}
	}
}
