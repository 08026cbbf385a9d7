package metadata

import (
	"time"
)

// FileMetadata records one stored file. Chunk accounting lives here so an
// interrupted upload can be detected: a record with IsComplete false and
// ChunksReceived < TotalChunks is a partial upload.
type FileMetadata struct {
	// ID is the unique identifier for the file (UUID).
	ID string `json:"id"`

	// UserID is the owning user. Every operation on the record must come
	// from this user.
	UserID string `json:"userId"`

	// FileName is the sanitized display name.
	FileName string `json:"fileName"`

	// FileSize is the declared size in bytes.
	FileSize int64 `json:"fileSize"`

	// ContentType is the MIME type reported by the client.
	ContentType string `json:"contentType,omitempty"`

	// FilePath is the absolute path of the content file on disk.
	FilePath string `json:"filePath"`

	// IsComplete is set when the final chunk has been flushed.
	IsComplete bool `json:"isComplete"`

	// ChunksReceived counts chunks accepted so far. Never exceeds
	// TotalChunks.
	ChunksReceived int `json:"chunksReceived"`

	// TotalChunks is the expected chunk count derived from FileSize.
	TotalChunks int `json:"totalChunks"`

	// DirectoryID is the containing directory, or empty for the root.
	DirectoryID string `json:"directoryId,omitempty"`

	// CreatedAt is when the upload was initialized.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is when the record was last modified.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy so callers cannot mutate store-owned state.
func (f *FileMetadata) Clone() *FileMetadata {
	c := *f
	return &c
}

// Validate checks the record's internal consistency.
func (f *FileMetadata) Validate() error {
	if f.ID == "" {
		return NewInvalidArgumentError("file id is required")
	}
	if f.UserID == "" {
		return NewInvalidArgumentError("file owner is required")
	}
	if f.FileSize < 0 {
		return NewInvalidArgumentError("file size cannot be negative")
	}
	if f.ChunksReceived < 0 || f.ChunksReceived > f.TotalChunks {
		return NewInvalidArgumentError("chunks received out of range")
	}
	if f.IsComplete && f.ChunksReceived != f.TotalChunks {
		return NewInvalidArgumentError("complete file must have received every chunk")
	}
	return nil
}
