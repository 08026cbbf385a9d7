package metadata

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const filesDocName = "files.json"

// fileDocument is the on-disk shape of a user's file catalog.
type fileDocument struct {
	Files []*FileMetadata `json:"files"`
}

// fileDoc is the in-memory state for one user's catalog.
type fileDoc struct {
	mu     sync.Mutex
	loaded bool
	files  map[string]*FileMetadata
}

// FileStore persists FileMetadata records, one JSON document per user at
// <root>/<userId>/files.json. Documents are loaded lazily on first access;
// every mutator holds the user's lock across the read-modify-write so
// concurrent handlers on the same user serialize cleanly.
type FileStore struct {
	root string
	log  *slog.Logger

	mu    sync.Mutex
	users map[string]*fileDoc
}

// NewFileStore creates a FileStore rooted at root.
func NewFileStore(root string, log *slog.Logger) *FileStore {
	return &FileStore{
		root:  root,
		log:   log,
		users: make(map[string]*fileDoc),
	}
}

func (s *FileStore) docPath(userID string) string {
	return filepath.Join(s.root, userID, filesDocName)
}

func (s *FileStore) doc(userID string) *fileDoc {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.users[userID]
	if !ok {
		d = &fileDoc{files: make(map[string]*FileMetadata)}
		s.users[userID] = d
	}
	return d
}

// withDoc runs fn with the user's document locked and loaded.
func (s *FileStore) withDoc(userID string, fn func(d *fileDoc) error) error {
	if userID == "" {
		return NewInvalidArgumentError("user id is required")
	}

	d := s.doc(userID)
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		var file fileDocument
		if err := loadDocument(s.docPath(userID), &file, s.log); err != nil {
			return err
		}
		for _, f := range file.Files {
			d.files[f.ID] = f
		}
		d.loaded = true
	}
	return fn(d)
}

// save persists the user's catalog. Callers must hold the document lock.
func (s *FileStore) save(userID string, d *fileDoc) error {
	file := fileDocument{Files: make([]*FileMetadata, 0, len(d.files))}
	for _, f := range d.files {
		file.Files = append(file.Files, f)
	}
	sort.Slice(file.Files, func(i, j int) bool {
		return file.Files[i].ID < file.Files[j].ID
	})
	return saveDocument(s.docPath(userID), &file)
}

// Add inserts a new record. Fails with AlreadyExists if the id is taken and
// InvalidArgument if the record violates its invariants.
func (s *FileStore) Add(f *FileMetadata) error {
	if err := f.Validate(); err != nil {
		return err
	}
	return s.withDoc(f.UserID, func(d *fileDoc) error {
		if _, exists := d.files[f.ID]; exists {
			return NewAlreadyExistsError("file " + f.ID + " already exists")
		}
		d.files[f.ID] = f.Clone()
		if err := s.save(f.UserID, d); err != nil {
			delete(d.files, f.ID)
			return err
		}
		return nil
	})
}

// Update replaces an existing record by id. The owner is immutable: an
// update that changes UserID cannot reach the original record and fails
// with NotFound.
func (s *FileStore) Update(f *FileMetadata) error {
	if err := f.Validate(); err != nil {
		return err
	}
	return s.withDoc(f.UserID, func(d *fileDoc) error {
		prev, exists := d.files[f.ID]
		if !exists {
			return NewNotFoundError("file", f.ID)
		}
		d.files[f.ID] = f.Clone()
		if err := s.save(f.UserID, d); err != nil {
			d.files[f.ID] = prev
			return err
		}
		return nil
	})
}

// GetByID returns the record, or NotFound.
func (s *FileStore) GetByID(userID, fileID string) (*FileMetadata, error) {
	var out *FileMetadata
	err := s.withDoc(userID, func(d *fileDoc) error {
		f, exists := d.files[fileID]
		if !exists {
			return NewNotFoundError("file", fileID)
		}
		out = f.Clone()
		return nil
	})
	return out, err
}

// ListByUser returns all of the user's files sorted by name.
func (s *FileStore) ListByUser(userID string) ([]*FileMetadata, error) {
	return s.list(userID, func(*FileMetadata) bool { return true })
}

// ListByDirectory returns the user's files in the given directory. An empty
// directoryID selects the root.
func (s *FileStore) ListByDirectory(userID, directoryID string) ([]*FileMetadata, error) {
	return s.list(userID, func(f *FileMetadata) bool {
		return f.DirectoryID == directoryID
	})
}

func (s *FileStore) list(userID string, keep func(*FileMetadata) bool) ([]*FileMetadata, error) {
	var out []*FileMetadata
	err := s.withDoc(userID, func(d *fileDoc) error {
		for _, f := range d.files {
			if keep(f) {
				out = append(out, f.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		ni, nj := strings.ToLower(out[i].FileName), strings.ToLower(out[j].FileName)
		if ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes the record, or NotFound.
func (s *FileStore) Delete(userID, fileID string) error {
	return s.withDoc(userID, func(d *fileDoc) error {
		prev, exists := d.files[fileID]
		if !exists {
			return NewNotFoundError("file", fileID)
		}
		delete(d.files, fileID)
		if err := s.save(userID, d); err != nil {
			d.files[fileID] = prev
			return err
		}
		return nil
	})
}

// MoveMany repoints the given files at targetDirectoryID (empty means the
// user root). The batch is best-effort per file: unknown ids are skipped
// and reported in failed. The document is written once for the whole batch.
func (s *FileStore) MoveMany(userID string, fileIDs []string, targetDirectoryID string) (moved, failed []string, err error) {
	err = s.withDoc(userID, func(d *fileDoc) error {
		now := time.Now().UTC()
		prev := make(map[string]*FileMetadata, len(fileIDs))

		for _, id := range fileIDs {
			f, exists := d.files[id]
			if !exists {
				failed = append(failed, id)
				continue
			}
			prev[id] = f
			c := f.Clone()
			c.DirectoryID = targetDirectoryID
			c.UpdatedAt = now
			d.files[id] = c
			moved = append(moved, id)
		}

		if len(moved) == 0 {
			return nil
		}
		if saveErr := s.save(userID, d); saveErr != nil {
			for id, f := range prev {
				d.files[id] = f
			}
			failed = append(failed, moved...)
			moved = nil
			return saveErr
		}
		return nil
	})
	return moved, failed, err
}
