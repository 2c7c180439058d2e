package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/sharebox/models"
)

// Catalog is the owner-scoped view over file metadata.
// Lookups that miss and lookups of another user's file both return ErrNotFound.
type Catalog struct {
	db *gorm.DB
}

// NewCatalog returns a Catalog.
func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// WithDB returns a copy bound to tx.
func (c *Catalog) WithDB(tx *gorm.DB) *Catalog {
	return &Catalog{db: tx}
}

// Create records a new file row in the given status.
func (c *Catalog) Create(ctx context.Context, f *models.File) error {
	if f.UploadTimestamp.IsZero() {
		f.UploadTimestamp = time.Now()
	}
	f.UpdatedAt = f.UploadTimestamp
	if err := c.db.WithContext(ctx).Create(f).Error; err != nil {
		return persistence("insert file", err)
	}
	return nil
}

// MarkReady flips a pending file to ready.
func (c *Catalog) MarkReady(ctx context.Context, fileID string) error {
	res := c.db.WithContext(ctx).Model(&models.File{}).
		Where("id = ? AND status = ?", fileID, models.FileStatusPending).
		Updates(map[string]interface{}{"status": models.FileStatusReady, "updated_at": time.Now()})
	if res.Error != nil {
		return persistence("mark file ready", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForUser returns the user's ready files, newest upload first. Each file
// carries its share links oldest first.
func (c *Catalog) ListForUser(ctx context.Context, userID uint) ([]models.File, error) {
	var files []models.File
	err := c.db.WithContext(ctx).
		Preload("Links", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("user_id = ? AND status = ?", userID, models.FileStatusReady).
		Order("upload_timestamp DESC").Order("id DESC").
		Find(&files).Error
	if err != nil {
		return nil, persistence("list files", err)
	}
	return files, nil
}

// Get returns a ready file owned by userID.
func (c *Catalog) Get(ctx context.Context, fileID string, userID uint) (*models.File, error) {
	var f models.File
	err := c.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND status = ?", fileID, userID, models.FileStatusReady).
		Take(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistence("get file", err)
	}
	return &f, nil
}

// ByID returns a ready file regardless of owner, for share resolution.
func (c *Catalog) ByID(ctx context.Context, fileID string) (*models.File, error) {
	var f models.File
	err := c.db.WithContext(ctx).
		Where("id = ? AND status = ?", fileID, models.FileStatusReady).
		Take(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistence("get file", err)
	}
	return &f, nil
}

// Rename changes the display name of a file owned by userID.
func (c *Catalog) Rename(ctx context.Context, fileID string, userID uint, name string) (*models.File, error) {
	res := c.db.WithContext(ctx).Model(&models.File{}).
		Where("id = ? AND user_id = ? AND status = ?", fileID, userID, models.FileStatusReady).
		Updates(map[string]interface{}{"original_filename": name, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, persistence("rename file", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return c.Get(ctx, fileID, userID)
}

// Delete removes a file owned by userID together with its share links and
// returns the removed row.
func (c *Catalog) Delete(ctx context.Context, fileID string, userID uint) (*models.File, error) {
	db := c.db.WithContext(ctx)

	var f models.File
	err := db.Where("id = ? AND user_id = ?", fileID, userID).Take(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistence("get file", err)
	}

	if err := db.Where("file_id = ?", fileID).Delete(&models.ShareLink{}).Error; err != nil {
		return nil, persistence("delete share links", err)
	}
	res := db.Where("id = ? AND user_id = ?", fileID, userID).Delete(&models.File{})
	if res.Error != nil {
		return nil, persistence("delete file", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &f, nil
}

// DeletePending removes a pending row left by a failed or abandoned upload.
func (c *Catalog) DeletePending(ctx context.Context, fileID string) error {
	err := c.db.WithContext(ctx).
		Where("id = ? AND status = ?", fileID, models.FileStatusPending).
		Delete(&models.File{}).Error
	if err != nil {
		return persistence("delete pending file", err)
	}
	return nil
}

// StalePending lists pending rows older than cutoff.
func (c *Catalog) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.File, error) {
	var files []models.File
	err := c.db.WithContext(ctx).
		Where("status = ? AND upload_timestamp < ?", models.FileStatusPending, cutoff).
		Order("upload_timestamp ASC").
		Limit(limit).
		Find(&files).Error
	if err != nil {
		return nil, persistence("list stale uploads", err)
	}
	return files, nil
}
