package files

import (
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/cubbyfs/cubby/internal/logger"
	"github.com/cubbyfs/cubby/pkg/metadata"
)

// DirectoryService manages the per-user directory tree. Directories are a
// metadata construct: creating one records it in the store, and the
// physical path only materializes when a file is uploaded into it.
type DirectoryService struct {
	dirs  *metadata.DirectoryStore
	files *metadata.FileStore
	log   *slog.Logger
}

// NewDirectoryService creates a DirectoryService.
func NewDirectoryService(dirs *metadata.DirectoryStore, files *metadata.FileStore, log *slog.Logger) *DirectoryService {
	return &DirectoryService{
		dirs:  dirs,
		files: files,
		log:   log,
	}
}

// CreateDirectory creates a directory under parentID (empty for the root).
// Fails with AlreadyExists on a sibling name clash and NotFound if the
// parent does not exist for this user.
func (s *DirectoryService) CreateDirectory(userID, name, parentID string) (*metadata.DirectoryMetadata, error) {
	dirPath := "/" + name
	if parentID != "" {
		parent, err := s.dirs.GetByID(userID, parentID)
		if err != nil {
			return nil, err
		}
		dirPath = path.Join(parent.DirectoryPath, name)
	}

	now := time.Now().UTC()
	dir := &metadata.DirectoryMetadata{
		ID:                uuid.New().String(),
		UserID:            userID,
		Name:              name,
		ParentDirectoryID: parentID,
		DirectoryPath:     dirPath,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.dirs.Add(dir); err != nil {
		return nil, err
	}

	s.log.Info("directory created",
		logger.KeyUserID, userID,
		logger.KeyDirectoryID, dir.ID,
		logger.KeyPath, dirPath)
	return dir.Clone(), nil
}

// DeleteDirectory removes an empty directory. A directory that still holds
// files or subdirectories is rejected with NotEmpty.
func (s *DirectoryService) DeleteDirectory(userID, dirID string) error {
	dir, err := s.dirs.GetByID(userID, dirID)
	if err != nil {
		return err
	}

	contained, err := s.files.ListByDirectory(userID, dirID)
	if err != nil {
		return err
	}
	if len(contained) > 0 {
		return metadata.NewNotEmptyError(dir.Name)
	}

	if err := s.dirs.Delete(userID, dirID); err != nil {
		return err
	}

	s.log.Info("directory deleted",
		logger.KeyUserID, userID,
		logger.KeyDirectoryID, dirID,
		logger.KeyPath, dir.DirectoryPath)
	return nil
}

// GetDirectory returns one directory record.
func (s *DirectoryService) GetDirectory(userID, dirID string) (*metadata.DirectoryMetadata, error) {
	return s.dirs.GetByID(userID, dirID)
}

// GetContents returns the subdirectories and files directly inside dirID
// (empty for the user root).
func (s *DirectoryService) GetContents(userID, dirID string) ([]*metadata.DirectoryMetadata, []*metadata.FileMetadata, error) {
	if dirID != "" {
		if _, err := s.dirs.GetByID(userID, dirID); err != nil {
			return nil, nil, err
		}
	}

	subdirs, err := s.dirs.ListByParent(userID, dirID)
	if err != nil {
		return nil, nil, err
	}
	contained, err := s.files.ListByDirectory(userID, dirID)
	if err != nil {
		return nil, nil, err
	}
	return subdirs, contained, nil
}
