package models

import "time"

// FileStatus tracks whether a file's blob has been fully written.
type FileStatus string

const (
	FileStatusPending FileStatus = "pending"
	FileStatusReady   FileStatus = "ready"
)

// File is the catalog record for an uploaded blob.
type File struct {
	ID               string      `gorm:"primaryKey;size:36" json:"id"`
	UserID           uint        `gorm:"not null;index:idx_files_user_uploaded,priority:1" json:"userId"`
	OriginalFilename string      `gorm:"size:255;not null" json:"fileName"`
	MimeType         string      `gorm:"size:255;not null" json:"mimeType"`
	SizeBytes        int64       `gorm:"not null" json:"sizeBytes"`
	BlobKey          string      `gorm:"size:128;not null;uniqueIndex" json:"-"`
	Status           FileStatus  `gorm:"size:16;not null;default:pending" json:"-"`
	UploadTimestamp  time.Time   `gorm:"not null;index:idx_files_user_uploaded,priority:2" json:"uploadTimestamp"`
	UpdatedAt        time.Time   `json:"-"`
	Links            []ShareLink `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// FileBlob is the header of a blob kept in the relational store. The
// content lives in FileBlobChunk rows of ChunkSize bytes, the last one
// possibly shorter.
type FileBlob struct {
	BlobKey   string `gorm:"primaryKey;size:128"`
	SizeBytes int64  `gorm:"not null"`
	ChunkSize int    `gorm:"not null"`
	CreatedAt time.Time
}

// FileBlobChunk is one slice of a blob, numbered from zero.
type FileBlobChunk struct {
	BlobKey string `gorm:"primaryKey;size:128"`
	Seq     int64  `gorm:"primaryKey;autoIncrement:false"`
	Data    []byte `gorm:"not null"`
}

// ShareLink maps a public share code to a file.
type ShareLink struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	FileID    string    `gorm:"size:36;not null;index" json:"fileId"`
	ShareCode string    `gorm:"size:32;not null;uniqueIndex" json:"shareCode"`
	CreatedAt time.Time `json:"createdAt"`
}
