package files

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cubbyfs/cubby/internal/logger"
	"github.com/cubbyfs/cubby/pkg/metadata"
	"github.com/cubbyfs/cubby/pkg/protocol"
	"github.com/cubbyfs/cubby/pkg/storage"
)

// Service orchestrates file transfers. Uploads write chunk by chunk at
// fixed offsets into a pre-created file; metadata tracks progress so an
// interrupted transfer is detectable and restartable from scratch.
type Service struct {
	files       *metadata.FileStore
	dirs        *metadata.DirectoryStore
	storage     *storage.Storage
	storageRoot string
	log         *slog.Logger
}

// NewService creates a file Service storing content under storageRoot.
func NewService(files *metadata.FileStore, dirs *metadata.DirectoryStore, store *storage.Storage, storageRoot string, log *slog.Logger) *Service {
	return &Service{
		files:       files,
		dirs:        dirs,
		storage:     store,
		storageRoot: storageRoot,
		log:         log,
	}
}

// TotalChunks returns the chunk count for a file of the given size.
func TotalChunks(fileSize int64) int {
	return int((fileSize + protocol.ChunkSize - 1) / protocol.ChunkSize)
}

// contentPath derives the on-disk location for a new upload. Files in the
// root land directly under the user's storage directory; files in a
// directory follow its path.
func (s *Service) contentPath(userID, fileID, fileName string, dir *metadata.DirectoryMetadata) string {
	parts := []string{s.storageRoot, userID}
	if dir != nil {
		rel := strings.Trim(dir.DirectoryPath, "/")
		if rel != "" {
			parts = append(parts, filepath.FromSlash(rel))
		}
	}
	parts = append(parts, fileID+"_"+fileName)
	return filepath.Join(parts...)
}

// InitializeUpload validates the target directory, creates the empty
// content file, and persists the initial metadata record. If metadata
// persistence fails the content file is removed again.
func (s *Service) InitializeUpload(userID, fileName string, fileSize int64, contentType, directoryID string) (*metadata.FileMetadata, error) {
	if fileSize < 1 {
		return nil, ErrInvalidFileSize
	}

	var dir *metadata.DirectoryMetadata
	if directoryID != "" {
		var err error
		dir, err = s.dirs.GetByID(userID, directoryID)
		if err != nil {
			return nil, err
		}
	}

	sanitized := SanitizeFileName(fileName)
	now := time.Now().UTC()
	meta := &metadata.FileMetadata{
		ID:          uuid.New().String(),
		UserID:      userID,
		FileName:    sanitized,
		FileSize:    fileSize,
		ContentType: contentType,
		DirectoryID: directoryID,
		TotalChunks: TotalChunks(fileSize),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	meta.FilePath = s.contentPath(userID, meta.ID, sanitized, dir)

	if err := s.storage.CreateEmpty(meta.FilePath); err != nil {
		return nil, err
	}
	if err := s.files.Add(meta); err != nil {
		if cleanupErr := s.storage.DeleteFile(meta.FilePath); cleanupErr != nil {
			s.log.Error("failed to clean up content file after metadata failure",
				logger.KeyPath, meta.FilePath,
				logger.Err(cleanupErr))
		}
		return nil, err
	}

	s.log.Info("upload initialized",
		logger.KeyUserID, userID,
		logger.KeyFileID, meta.ID,
		logger.KeyFileName, sanitized,
		logger.KeySize, fileSize,
		logger.KeyTotalChunks, meta.TotalChunks)
	return meta.Clone(), nil
}

// ProcessChunk writes one chunk at its offset and advances the progress
// counter. Chunks must arrive in strictly increasing order starting at 0;
// any other index fails with ErrChunkOutOfOrder and leaves metadata
// untouched.
func (s *Service) ProcessChunk(userID, fileID string, chunkIndex int, isLastChunk bool, data []byte) error {
	meta, err := s.files.GetByID(userID, fileID)
	if err != nil {
		return err
	}
	if meta.IsComplete {
		return ErrUploadAlreadyComplete
	}
	if chunkIndex != meta.ChunksReceived {
		return fmt.Errorf("%w: got %d, expected %d", ErrChunkOutOfOrder, chunkIndex, meta.ChunksReceived)
	}

	finalIndex := chunkIndex == meta.TotalChunks-1
	if isLastChunk && !finalIndex {
		return fmt.Errorf("%w: chunk %d of %d", ErrUnexpectedLastChunk, chunkIndex, meta.TotalChunks)
	}

	offset := int64(chunkIndex) * protocol.ChunkSize
	want := meta.FileSize - offset
	if want > protocol.ChunkSize {
		want = protocol.ChunkSize
	}
	if int64(len(data)) != want {
		return fmt.Errorf("%w: got %d bytes, expected %d", ErrChunkSizeMismatch, len(data), want)
	}

	if err := s.storage.WriteChunk(meta.FilePath, data, offset); err != nil {
		return err
	}

	meta.ChunksReceived++
	if isLastChunk {
		meta.IsComplete = true
	}
	meta.UpdatedAt = time.Now().UTC()
	if err := s.files.Update(meta); err != nil {
		return err
	}

	s.log.Debug("chunk written",
		logger.KeyUserID, userID,
		logger.KeyFileID, fileID,
		logger.KeyChunkIndex, chunkIndex,
		logger.KeySize, len(data))
	return nil
}

// FinalizeUpload flushes the content file to durable storage and marks the
// upload complete. Finalizing an already complete file flushes again but
// changes no metadata, so the call is idempotent.
func (s *Service) FinalizeUpload(userID, fileID string) error {
	meta, err := s.files.GetByID(userID, fileID)
	if err != nil {
		return err
	}

	if err := s.storage.Flush(meta.FilePath); err != nil {
		return err
	}

	if size, err := s.storage.FileSize(meta.FilePath); err == nil && size != meta.FileSize {
		s.log.Warn("finalized file size does not match declared size",
			logger.KeyFileID, fileID,
			slog.Int64("declared", meta.FileSize),
			slog.Int64("on_disk", size))
	}

	if meta.IsComplete {
		return nil
	}

	if meta.ChunksReceived < meta.TotalChunks {
		s.log.Warn("finalizing upload with missing chunks",
			logger.KeyFileID, fileID,
			slog.Int("received", meta.ChunksReceived),
			logger.KeyTotalChunks, meta.TotalChunks)
	}

	meta.IsComplete = true
	meta.ChunksReceived = meta.TotalChunks
	meta.UpdatedAt = time.Now().UTC()
	return s.files.Update(meta)
}

// InitializeDownload checks that the file is complete and present on disk,
// returning its metadata for the chunk loop.
func (s *Service) InitializeDownload(userID, fileID string) (*metadata.FileMetadata, error) {
	meta, err := s.files.GetByID(userID, fileID)
	if err != nil {
		return nil, err
	}
	if !meta.IsComplete {
		return nil, ErrFileNotComplete
	}
	if !s.storage.Exists(meta.FilePath) {
		return nil, metadata.NewNotFoundError("file content", fileID)
	}
	return meta, nil
}

// GetChunk reads one chunk for a download. The final chunk is short when
// the file size is not a multiple of the chunk size.
func (s *Service) GetChunk(userID, fileID string, chunkIndex int) (data []byte, isLastChunk bool, err error) {
	meta, err := s.files.GetByID(userID, fileID)
	if err != nil {
		return nil, false, err
	}
	if !meta.IsComplete {
		return nil, false, ErrFileNotComplete
	}

	offset := int64(chunkIndex) * protocol.ChunkSize
	if chunkIndex < 0 || offset >= meta.FileSize {
		return nil, false, ErrOffsetOutOfRange
	}

	length := meta.FileSize - offset
	if length > protocol.ChunkSize {
		length = protocol.ChunkSize
	}

	data, err = s.storage.ReadChunk(meta.FilePath, offset, length)
	if err != nil {
		return nil, false, err
	}
	return data, chunkIndex == meta.TotalChunks-1, nil
}

// DeleteFile removes the content bytes first and the metadata second, so a
// failure can never leave bytes on disk without a record pointing at them.
func (s *Service) DeleteFile(userID, fileID string) error {
	meta, err := s.files.GetByID(userID, fileID)
	if err != nil {
		return err
	}

	if err := s.storage.DeleteFile(meta.FilePath); err != nil {
		s.log.Error("failed to delete content file",
			logger.KeyFileID, fileID,
			logger.KeyPath, meta.FilePath,
			logger.Err(err))
		return err
	}
	if err := s.files.Delete(userID, fileID); err != nil {
		return err
	}

	s.log.Info("file deleted",
		logger.KeyUserID, userID,
		logger.KeyFileID, fileID,
		logger.KeyFileName, meta.FileName)
	return nil
}

// ListFiles returns all of the user's files.
func (s *Service) ListFiles(userID string) ([]*metadata.FileMetadata, error) {
	return s.files.ListByUser(userID)
}

// ListFilesByDirectory returns the user's files in one directory (empty
// directoryID means the root).
func (s *Service) ListFilesByDirectory(userID, directoryID string) ([]*metadata.FileMetadata, error) {
	return s.files.ListByDirectory(userID, directoryID)
}

// GetFile returns one file record.
func (s *Service) GetFile(userID, fileID string) (*metadata.FileMetadata, error) {
	return s.files.GetByID(userID, fileID)
}

// MoveFilesToDirectory repoints files at a new directory. The batch is
// best-effort per file and reports true only when every file moved. The
// content bytes stay where they are; directory membership is purely a
// metadata relationship after upload.
func (s *Service) MoveFilesToDirectory(userID string, fileIDs []string, targetDirectoryID string) (bool, error) {
	if targetDirectoryID != "" {
		if _, err := s.dirs.GetByID(userID, targetDirectoryID); err != nil {
			return false, err
		}
	}

	moved, failed, err := s.files.MoveMany(userID, fileIDs, targetDirectoryID)
	if err != nil {
		return false, err
	}

	if len(failed) > 0 {
		s.log.Warn("some files could not be moved",
			logger.KeyUserID, userID,
			logger.KeyDirectoryID, targetDirectoryID,
			slog.Int("moved", len(moved)),
			slog.Any("failed", failed))
	} else {
		s.log.Info("files moved",
			logger.KeyUserID, userID,
			logger.KeyDirectoryID, targetDirectoryID,
			slog.Int("moved", len(moved)))
	}
	return len(failed) == 0, nil
}
