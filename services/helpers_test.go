package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/cppla/sharebox/dbtest"
	"github.com/cppla/sharebox/models"
	"github.com/cppla/sharebox/storage"
)

const mb = int64(1024 * 1024)

type fixture struct {
	db       *gorm.DB
	store    storage.Store
	quota    *QuotaAccountant
	catalog  *Catalog
	links    *ShareRegistry
	files    *FileService
	accounts *AccountService
}

func newFixture(t *testing.T, store func(db *gorm.DB) storage.Store) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	log := zaptest.NewLogger(t)

	st := storage.Store(storage.NewDBStore(db))
	if store != nil {
		st = store(db)
	}
	f := &fixture{
		db:       db,
		store:    st,
		quota:    NewQuotaAccountant(db, false),
		catalog:  NewCatalog(db),
		links:    NewShareRegistry(db, log, 8, 5),
		accounts: NewAccountService(db, log, NewRolePolicy(nil), 100*mb),
	}
	f.files = NewFileService(db, st, f.quota, f.catalog, f.links, log)
	return f
}

func (f *fixture) user(t *testing.T, email string, role models.Role, limit int64) *models.User {
	t.Helper()
	u := &models.User{Email: email, PasswordHash: "x", Role: role, StorageLimitBytes: limit}
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func (f *fixture) upload(t *testing.T, userID uint, name, mime string, data []byte) *UploadResult {
	t.Helper()
	res, err := f.files.Upload(context.Background(), UploadInput{
		UserID:   userID,
		Filename: name,
		MimeType: mime,
		Size:     int64(len(data)),
		Body:     bytes.NewReader(data),
	})
	require.NoError(t, err)
	return res
}

// memStore is a non-transactional store with failure injection.
type memStore struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	putErr    error
	deleteErr error
	deleted   []string
}

func newMemStore() *memStore {
	return &memStore{blobs: map[string][]byte{}}
}

func (m *memStore) Transactional() bool { return false }

func (m *memStore) Put(_ context.Context, _ *gorm.DB, key string, r io.Reader, size int64) (int64, error) {
	if m.putErr != nil {
		return 0, m.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.blobs[key] = b
	m.mu.Unlock()
	return int64(len(b)), nil
}

func (m *memStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) OpenRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if start < 0 || end < start || end >= int64(len(b)) {
		return nil, storage.ErrInvalidRange
	}
	return io.NopCloser(bytes.NewReader(b[start : end+1])), nil
}

func (m *memStore) Delete(_ context.Context, _ *gorm.DB, key string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	delete(m.blobs, key)
	m.deleted = append(m.deleted, key)
	m.mu.Unlock()
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

// failingReader returns data then a non-EOF error.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

var errClientGone = errors.New("client disconnected")

func bytesOf(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 256)
	}
	return b
}
