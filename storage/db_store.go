package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/sharebox/models"
)

// DefaultChunkSize is the size of each file_blob_chunks row. It stays well
// under MySQL's default max_allowed_packet.
const DefaultChunkSize = 4 << 20

// DBStore keeps blobs next to the catalog, split into fixed-size chunk rows
// so that neither writes nor reads hold a whole file in memory.
type DBStore struct {
	db        *gorm.DB
	chunkSize int
}

// NewDBStore returns a Store backed by db.
func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db, chunkSize: DefaultChunkSize}
}

func (s *DBStore) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// Transactional reports true: blobs share the catalog's transaction.
func (s *DBStore) Transactional() bool { return true }

// Put streams r into chunk rows under key. At most size+1 bytes are read so
// the caller can detect an oversized body.
func (s *DBStore) Put(ctx context.Context, tx *gorm.DB, key string, r io.Reader, size int64) (int64, error) {
	if size >= 0 {
		r = io.LimitReader(r, size+1)
	}
	var written int64
	err := s.conn(ctx, tx).Transaction(func(tx *gorm.DB) error {
		head := models.FileBlob{BlobKey: key, ChunkSize: s.chunkSize, CreatedAt: time.Now()}
		if err := tx.Create(&head).Error; err != nil {
			return fmt.Errorf("insert blob: %w", err)
		}

		buf := make([]byte, s.chunkSize)
		for seq := int64(0); ; seq++ {
			n, err := io.ReadFull(r, buf)
			if n > 0 {
				chunk := models.FileBlobChunk{BlobKey: key, Seq: seq, Data: buf[:n]}
				if err := tx.Create(&chunk).Error; err != nil {
					return fmt.Errorf("insert blob chunk %d: %w", seq, err)
				}
				written += int64(n)
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("read upload: %w", err)
			}
		}

		if err := tx.Model(&head).Update("size_bytes", written).Error; err != nil {
			return fmt.Errorf("update blob size: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func (s *DBStore) header(ctx context.Context, key string) (models.FileBlob, error) {
	var head models.FileBlob
	res := s.db.WithContext(ctx).Where("blob_key = ?", key).Limit(1).Find(&head)
	if res.Error != nil {
		return head, fmt.Errorf("select blob: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return head, ErrNotFound
	}
	if head.ChunkSize <= 0 {
		return head, fmt.Errorf("blob %s: invalid chunk size %d", key, head.ChunkSize)
	}
	return head, nil
}

// Open returns a reader over the whole blob. Chunks are fetched as the
// reader advances.
func (s *DBStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	head, err := s.header(ctx, key)
	if err != nil {
		return nil, err
	}
	return newChunkReader(ctx, s.db, head, 0, head.SizeBytes), nil
}

// OpenRange returns bytes start..end inclusive, touching only the chunks
// that overlap the range.
func (s *DBStore) OpenRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	head, err := s.header(ctx, key)
	if err != nil {
		return nil, err
	}
	if end >= head.SizeBytes {
		return nil, fmt.Errorf("%w: %d-%d of %d", ErrInvalidRange, start, end, head.SizeBytes)
	}
	return newChunkReader(ctx, s.db, head, start, end-start+1), nil
}

// Delete removes the blob; a missing key is not an error.
func (s *DBStore) Delete(ctx context.Context, tx *gorm.DB, key string) error {
	return s.conn(ctx, tx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("blob_key = ?", key).Delete(&models.FileBlobChunk{}).Error; err != nil {
			return fmt.Errorf("delete blob chunks: %w", err)
		}
		if err := tx.Where("blob_key = ?", key).Delete(&models.FileBlob{}).Error; err != nil {
			return fmt.Errorf("delete blob: %w", err)
		}
		return nil
	})
}

// chunkReader yields length bytes starting at an offset, loading one chunk
// row at a time.
type chunkReader struct {
	ctx       context.Context
	db        *gorm.DB
	key       string
	seq       int64
	skip      int64
	remaining int64
	buf       []byte
}

func newChunkReader(ctx context.Context, db *gorm.DB, head models.FileBlob, offset, length int64) *chunkReader {
	size := int64(head.ChunkSize)
	return &chunkReader{
		ctx:       ctx,
		db:        db,
		key:       head.BlobKey,
		seq:       offset / size,
		skip:      offset % size,
		remaining: length,
	}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if len(r.buf) == 0 {
		if err := r.load(); err != nil {
			return 0, err
		}
	}
	b := r.buf
	if int64(len(b)) > r.remaining {
		b = b[:r.remaining]
	}
	n := copy(p, b)
	r.buf = r.buf[n:]
	r.remaining -= int64(n)
	return n, nil
}

func (r *chunkReader) load() error {
	var chunk models.FileBlobChunk
	res := r.db.WithContext(r.ctx).Where("blob_key = ? AND seq = ?", r.key, r.seq).Limit(1).Find(&chunk)
	if res.Error != nil {
		return fmt.Errorf("select blob chunk %d: %w", r.seq, res.Error)
	}
	if res.RowsAffected == 0 || int64(len(chunk.Data)) <= r.skip {
		return fmt.Errorf("blob %s chunk %d: %w", r.key, r.seq, io.ErrUnexpectedEOF)
	}
	r.buf = chunk.Data[r.skip:]
	r.skip = 0
	r.seq++
	return nil
}

func (r *chunkReader) Close() error {
	r.remaining = 0
	r.buf = nil
	return nil
}
