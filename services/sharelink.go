package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/sharebox/models"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// ErrCodeSpaceExhausted is returned when every generated code collided.
var ErrCodeSpaceExhausted = errors.New("share code collisions exhausted retries")

// Link is an issued share link.
type Link struct {
	LinkID    string
	ShareCode string
}

// ShareRegistry issues and resolves share codes.
type ShareRegistry struct {
	db          *gorm.DB
	log         *zap.Logger
	codeLength  int
	maxAttempts int
	newCode     func(n int) (string, error)
}

// NewShareRegistry returns a registry issuing codes of codeLength characters,
// regenerating up to maxAttempts times on collision.
func NewShareRegistry(db *gorm.DB, log *zap.Logger, codeLength, maxAttempts int) *ShareRegistry {
	if codeLength <= 0 {
		codeLength = 8
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &ShareRegistry{
		db:          db,
		log:         log,
		codeLength:  codeLength,
		maxAttempts: maxAttempts,
		newCode:     randomCode,
	}
}

// WithDB returns a copy bound to tx.
func (r *ShareRegistry) WithDB(tx *gorm.DB) *ShareRegistry {
	cp := *r
	cp.db = tx
	return &cp
}

// Issue creates a new share link for fileID. The caller is responsible for
// ownership checks. Each call produces a distinct code.
func (r *ShareRegistry) Issue(ctx context.Context, fileID string) (Link, error) {
	db := r.db.WithContext(ctx)
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		code, err := r.newCode(r.codeLength)
		if err != nil {
			return Link{}, fmt.Errorf("generate share code: %w", err)
		}

		var taken int64
		if err := db.Model(&models.ShareLink{}).Where("share_code = ?", code).Count(&taken).Error; err != nil {
			return Link{}, persistence("check share code", err)
		}
		if taken > 0 {
			r.log.Debug("share code collision", zap.Int("attempt", attempt))
			continue
		}

		link := models.ShareLink{
			ID:        uuid.NewString(),
			FileID:    fileID,
			ShareCode: code,
			CreatedAt: time.Now(),
		}
		// savepoint inside an outer transaction, so a duplicate does not abort it
		err = db.Transaction(func(tx *gorm.DB) error {
			return tx.Create(&link).Error
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			r.log.Debug("share code collision on insert", zap.Int("attempt", attempt))
			continue
		}
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return Link{}, ErrNotFound
		}
		if err != nil {
			return Link{}, persistence("insert share link", err)
		}
		return Link{LinkID: link.ID, ShareCode: code}, nil
	}
	return Link{}, persistence("issue share link", ErrCodeSpaceExhausted)
}

// Resolve returns the file id a code points at.
func (r *ShareRegistry) Resolve(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", ErrNotFound
	}
	var link models.ShareLink
	res := r.db.WithContext(ctx).Where("share_code = ?", code).Limit(1).Find(&link)
	if res.Error != nil {
		return "", persistence("resolve share code", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", ErrNotFound
	}
	return link.FileID, nil
}

func randomCode(n int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[idx.Int64()]
	}
	return string(b), nil
}
