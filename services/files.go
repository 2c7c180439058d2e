package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/sharebox/models"
	"github.com/cppla/sharebox/rangereq"
	"github.com/cppla/sharebox/storage"
)

// UploadInput describes one file received from a client.
type UploadInput struct {
	UserID   uint
	Filename string
	MimeType string
	Size     int64
	Body     io.Reader
}

// UploadResult is a stored file and the share link issued for it.
type UploadResult struct {
	File models.File
	Link Link
}

// Listing is a user's files with their quota summary.
type Listing struct {
	Files []models.File
	User  models.User
	Used  int64
}

// FileService coordinates the catalog, the blob store, the quota accountant
// and the share registry.
type FileService struct {
	db      *gorm.DB
	store   storage.Store
	quota   *QuotaAccountant
	catalog *Catalog
	links   *ShareRegistry
	log     *zap.Logger
}

// NewFileService wires a FileService.
func NewFileService(db *gorm.DB, store storage.Store, quota *QuotaAccountant, catalog *Catalog, links *ShareRegistry, log *zap.Logger) *FileService {
	return &FileService{db: db, store: store, quota: quota, catalog: catalog, links: links, log: log}
}

// bodyReader remembers whether a read failure came from the client side.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		b.err = err
	}
	return n, err
}

// seekableBody keeps io.Seeker visible to stores that sign payloads.
type seekableBody struct {
	*bodyReader
	io.Seeker
}

func wrapBody(r io.Reader) (io.Reader, *bodyReader) {
	br := &bodyReader{r: r}
	if s, ok := r.(io.Seeker); ok {
		return seekableBody{bodyReader: br, Seeker: s}, br
	}
	return br, br
}

// Upload admits, stores and catalogs a file, then issues its share link.
func (s *FileService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if strings.TrimSpace(in.Filename) == "" {
		return nil, invalid("file name is required")
	}
	if in.Body == nil || in.Size < 0 {
		return nil, invalid("no file uploaded")
	}
	if in.MimeType == "" {
		in.MimeType = "application/octet-stream"
	}
	if s.store.Transactional() {
		return s.uploadAtomic(ctx, in)
	}
	return s.uploadTwoPhase(ctx, in)
}

// admit loads the uploader fresh so role changes apply immediately.
func (s *FileService) admit(ctx context.Context, tx *gorm.DB, in UploadInput) error {
	var user models.User
	err := tx.WithContext(ctx).Select("id", "role", "storage_limit_bytes").Take(&user, in.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUnauthenticated
	}
	if err != nil {
		return persistence("get uploader", err)
	}
	adm, err := s.quota.WithDB(tx).CanAdmit(ctx, user.ID, user.Role, user.StorageLimitBytes, in.Size)
	if err != nil {
		return err
	}
	if !adm.Allowed {
		return &QuotaExceededError{
			CurrentUsed: adm.CurrentUsed,
			Limit:       user.StorageLimitBytes,
			Available:   adm.Available,
			FileSize:    in.Size,
		}
	}
	return nil
}

func newFileRow(in UploadInput, status models.FileStatus) models.File {
	return models.File{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		OriginalFilename: in.Filename,
		MimeType:         in.MimeType,
		SizeBytes:        in.Size,
		BlobKey:          storage.NewKey(),
		Status:           status,
	}
}

func (s *FileService) putBlob(ctx context.Context, tx *gorm.DB, f models.File, body io.Reader) error {
	wrapped, br := wrapBody(body)
	n, err := s.store.Put(ctx, tx, f.BlobKey, wrapped, f.SizeBytes)
	if br.err != nil {
		return invalid("upload body could not be read")
	}
	if err != nil {
		return persistence("store blob", err)
	}
	if n != f.SizeBytes {
		return invalid("uploaded size does not match declared size")
	}
	return nil
}

// uploadAtomic writes metadata, blob and link in one transaction.
func (s *FileService) uploadAtomic(ctx context.Context, in UploadInput) (*UploadResult, error) {
	var res UploadResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.admit(ctx, tx, in); err != nil {
			return err
		}
		f := newFileRow(in, models.FileStatusReady)
		if err := s.catalog.WithDB(tx).Create(ctx, &f); err != nil {
			return err
		}
		if err := s.putBlob(ctx, tx, f, in.Body); err != nil {
			return err
		}
		link, err := s.links.WithDB(tx).Issue(ctx, f.ID)
		if err != nil {
			return err
		}
		res = UploadResult{File: f, Link: link}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("file uploaded",
		zap.Uint("user_id", in.UserID), zap.String("file_id", res.File.ID), zap.Int64("size", in.Size))
	return &res, nil
}

// uploadTwoPhase reserves a pending row, writes the blob outside the
// transaction, then marks the row ready. Failures remove what was written.
func (s *FileService) uploadTwoPhase(ctx context.Context, in UploadInput) (*UploadResult, error) {
	f := newFileRow(in, models.FileStatusPending)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.admit(ctx, tx, in); err != nil {
			return err
		}
		return s.catalog.WithDB(tx).Create(ctx, &f)
	})
	if err != nil {
		return nil, err
	}

	if err := s.putBlob(ctx, nil, f, in.Body); err != nil {
		s.discard(f)
		return nil, err
	}

	var link Link
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.catalog.WithDB(tx).MarkReady(ctx, f.ID); err != nil {
			return err
		}
		var err error
		link, err = s.links.WithDB(tx).Issue(ctx, f.ID)
		return err
	})
	if err != nil {
		s.discard(f)
		return nil, err
	}

	f.Status = models.FileStatusReady
	s.log.Info("file uploaded",
		zap.Uint("user_id", in.UserID), zap.String("file_id", f.ID), zap.Int64("size", in.Size))
	return &UploadResult{File: f, Link: link}, nil
}

// discard rolls back a two-phase upload. It runs detached from the request
// context so a cancelled client still gets cleaned up.
func (s *FileService) discard(f models.File) {
	ctx := context.Background()
	if err := s.store.Delete(ctx, nil, f.BlobKey); err != nil {
		s.log.Warn("discard blob failed", zap.String("file_id", f.ID), zap.Error(err))
	}
	if err := s.catalog.DeletePending(ctx, f.ID); err != nil {
		s.log.Warn("discard pending row failed", zap.String("file_id", f.ID), zap.Error(err))
	}
}

// List returns the user's files and quota summary.
func (s *FileService) List(ctx context.Context, userID uint) (*Listing, error) {
	var user models.User
	err := s.db.WithContext(ctx).Take(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, persistence("get user", err)
	}
	files, err := s.catalog.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	used, err := s.quota.CurrentUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Listing{Files: files, User: user, Used: used}, nil
}

// Rename changes a file's display name.
func (s *FileService) Rename(ctx context.Context, fileID string, userID uint, name string) (*models.File, error) {
	if fileID == "" || strings.TrimSpace(name) == "" {
		return nil, invalid("file id and new file name are required")
	}
	return s.catalog.Rename(ctx, fileID, userID, name)
}

// Delete removes a file, its links and its blob.
func (s *FileService) Delete(ctx context.Context, fileID string, userID uint) error {
	if fileID == "" {
		return invalid("file id is required")
	}
	var removed *models.File
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := s.catalog.WithDB(tx).Delete(ctx, fileID, userID)
		if err != nil {
			return err
		}
		removed = f
		if s.store.Transactional() {
			if err := s.store.Delete(ctx, tx, f.BlobKey); err != nil {
				return persistence("delete blob", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !s.store.Transactional() {
		if err := s.store.Delete(ctx, nil, removed.BlobKey); err != nil {
			s.log.Warn("blob left behind after file delete",
				zap.String("file_id", fileID), zap.String("blob_key", removed.BlobKey), zap.Error(err))
		}
	}
	s.log.Info("file deleted", zap.Uint("user_id", userID), zap.String("file_id", fileID))
	return nil
}

// CreateLink issues another share link for a file the user owns.
func (s *FileService) CreateLink(ctx context.Context, fileID string, userID uint) (Link, error) {
	if fileID == "" {
		return Link{}, invalid("file id is required")
	}
	if _, err := s.catalog.Get(ctx, fileID, userID); err != nil {
		return Link{}, err
	}
	return s.links.Issue(ctx, fileID)
}

// Owned returns a file the user owns.
func (s *FileService) Owned(ctx context.Context, fileID string, userID uint) (*models.File, error) {
	return s.catalog.Get(ctx, fileID, userID)
}

// Shared resolves a share code to its file.
func (s *FileService) Shared(ctx context.Context, code string) (*models.File, error) {
	fileID, err := s.links.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.catalog.ByID(ctx, fileID)
}

// Content opens the bytes a plan calls for.
func (s *FileService) Content(ctx context.Context, f *models.File, plan rangereq.Plan) (io.ReadCloser, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	if plan.Partial {
		rc, err = s.store.OpenRange(ctx, f.BlobKey, plan.Start, plan.End)
	} else {
		rc, err = s.store.Open(ctx, f.BlobKey)
	}
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Error("catalog entry without blob", zap.String("file_id", f.ID), zap.String("blob_key", f.BlobKey))
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistence("open blob", err)
	}
	return rc, nil
}

// SweepPending removes pending uploads older than cutoff, returning how many
// were removed.
func (s *FileService) SweepPending(ctx context.Context, cutoff time.Time, batch int) (int, error) {
	stale, err := s.catalog.StalePending(ctx, cutoff, batch)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range stale {
		if err := s.store.Delete(ctx, nil, f.BlobKey); err != nil {
			s.log.Warn("sweep: blob delete failed", zap.String("file_id", f.ID), zap.Error(err))
			continue
		}
		if err := s.catalog.DeletePending(ctx, f.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
