package metadata

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const directoriesDocName = "directories.json"

// directoryDocument is the on-disk shape of a user's directory tree.
type directoryDocument struct {
	Directories []*DirectoryMetadata `json:"directories"`
}

type directoryDoc struct {
	mu     sync.Mutex
	loaded bool
	dirs   map[string]*DirectoryMetadata
}

// DirectoryStore persists DirectoryMetadata records, one JSON document per
// user at <root>/<userId>/directories.json, with the same lazy-load and
// atomic-write strategy as FileStore.
type DirectoryStore struct {
	root string
	log  *slog.Logger

	mu    sync.Mutex
	users map[string]*directoryDoc
}

// NewDirectoryStore creates a DirectoryStore rooted at root.
func NewDirectoryStore(root string, log *slog.Logger) *DirectoryStore {
	return &DirectoryStore{
		root:  root,
		log:   log,
		users: make(map[string]*directoryDoc),
	}
}

func (s *DirectoryStore) docPath(userID string) string {
	return filepath.Join(s.root, userID, directoriesDocName)
}

func (s *DirectoryStore) doc(userID string) *directoryDoc {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.users[userID]
	if !ok {
		d = &directoryDoc{dirs: make(map[string]*DirectoryMetadata)}
		s.users[userID] = d
	}
	return d
}

func (s *DirectoryStore) withDoc(userID string, fn func(d *directoryDoc) error) error {
	if userID == "" {
		return NewInvalidArgumentError("user id is required")
	}

	d := s.doc(userID)
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		var file directoryDocument
		if err := loadDocument(s.docPath(userID), &file, s.log); err != nil {
			return err
		}
		for _, dir := range file.Directories {
			d.dirs[dir.ID] = dir
		}
		d.loaded = true
	}
	return fn(d)
}

func (s *DirectoryStore) save(userID string, d *directoryDoc) error {
	file := directoryDocument{Directories: make([]*DirectoryMetadata, 0, len(d.dirs))}
	for _, dir := range d.dirs {
		file.Directories = append(file.Directories, dir)
	}
	sort.Slice(file.Directories, func(i, j int) bool {
		return file.Directories[i].ID < file.Directories[j].ID
	})
	return saveDocument(s.docPath(userID), &file)
}

// sameName compares directory names the way uniqueness is defined.
func sameName(a, b string) bool {
	return strings.EqualFold(a, b)
}

// checkPlacement enforces the structural invariants for placing dir under
// its parent: the parent must exist in the same user's tree, no sibling may
// carry the same name, and the parent chain must not pass through dir
// itself. Callers hold the document lock.
func checkPlacement(d *directoryDoc, dir *DirectoryMetadata) error {
	if dir.ParentDirectoryID != "" {
		parent, exists := d.dirs[dir.ParentDirectoryID]
		if !exists {
			return NewNotFoundError("parent directory", dir.ParentDirectoryID)
		}
		// Walk up from the parent. Hitting dir.ID would make a cycle.
		for cur := parent; cur != nil; {
			if cur.ID == dir.ID {
				return NewInvalidArgumentError("directory cannot be placed under its own subtree")
			}
			if cur.ParentDirectoryID == "" {
				break
			}
			cur = d.dirs[cur.ParentDirectoryID]
		}
	}

	for _, sibling := range d.dirs {
		if sibling.ID == dir.ID {
			continue
		}
		if sibling.ParentDirectoryID == dir.ParentDirectoryID && sameName(sibling.Name, dir.Name) {
			return NewAlreadyExistsError("directory " + dir.Name + " already exists here")
		}
	}
	return nil
}

// Add inserts a new directory. Fails with AlreadyExists on a sibling name
// clash and NotFound if the parent does not exist in the user's tree.
func (s *DirectoryStore) Add(dir *DirectoryMetadata) error {
	if err := dir.Validate(); err != nil {
		return err
	}
	return s.withDoc(dir.UserID, func(d *directoryDoc) error {
		if _, exists := d.dirs[dir.ID]; exists {
			return NewAlreadyExistsError("directory " + dir.ID + " already exists")
		}
		if err := checkPlacement(d, dir); err != nil {
			return err
		}
		d.dirs[dir.ID] = dir.Clone()
		if err := s.save(dir.UserID, d); err != nil {
			delete(d.dirs, dir.ID)
			return err
		}
		return nil
	})
}

// Update replaces an existing directory, re-checking placement so a move
// cannot introduce a cycle or a duplicate sibling name.
func (s *DirectoryStore) Update(dir *DirectoryMetadata) error {
	if err := dir.Validate(); err != nil {
		return err
	}
	return s.withDoc(dir.UserID, func(d *directoryDoc) error {
		prev, exists := d.dirs[dir.ID]
		if !exists {
			return NewNotFoundError("directory", dir.ID)
		}
		if err := checkPlacement(d, dir); err != nil {
			return err
		}
		d.dirs[dir.ID] = dir.Clone()
		if err := s.save(dir.UserID, d); err != nil {
			d.dirs[dir.ID] = prev
			return err
		}
		return nil
	})
}

// GetByID returns the directory, or NotFound.
func (s *DirectoryStore) GetByID(userID, dirID string) (*DirectoryMetadata, error) {
	var out *DirectoryMetadata
	err := s.withDoc(userID, func(d *directoryDoc) error {
		dir, exists := d.dirs[dirID]
		if !exists {
			return NewNotFoundError("directory", dirID)
		}
		out = dir.Clone()
		return nil
	})
	return out, err
}

// ListByParent returns the directories directly under parentID (empty means
// the user root), sorted by name.
func (s *DirectoryStore) ListByParent(userID, parentID string) ([]*DirectoryMetadata, error) {
	var out []*DirectoryMetadata
	err := s.withDoc(userID, func(d *directoryDoc) error {
		for _, dir := range d.dirs {
			if dir.ParentDirectoryID == parentID {
				out = append(out, dir.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		ni, nj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ExistsWithName reports whether parentID already has a child named name
// (case-insensitive).
func (s *DirectoryStore) ExistsWithName(userID, parentID, name string) (bool, error) {
	var found bool
	err := s.withDoc(userID, func(d *directoryDoc) error {
		for _, dir := range d.dirs {
			if dir.ParentDirectoryID == parentID && sameName(dir.Name, name) {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

// ListDescendants returns the ids of every directory below dirID,
// breadth-first. dirID itself is not included.
func (s *DirectoryStore) ListDescendants(userID, dirID string) ([]string, error) {
	var out []string
	err := s.withDoc(userID, func(d *directoryDoc) error {
		children := make(map[string][]string, len(d.dirs))
		for _, dir := range d.dirs {
			children[dir.ParentDirectoryID] = append(children[dir.ParentDirectoryID], dir.ID)
		}
		for _, ids := range children {
			sort.Strings(ids)
		}

		queue := append([]string(nil), children[dirID]...)
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			out = append(out, id)
			queue = append(queue, children[id]...)
		}
		return nil
	})
	return out, err
}

// Delete removes an empty directory. Fails with NotEmpty if any child
// directory exists; contained files are the caller's concern.
func (s *DirectoryStore) Delete(userID, dirID string) error {
	return s.withDoc(userID, func(d *directoryDoc) error {
		dir, exists := d.dirs[dirID]
		if !exists {
			return NewNotFoundError("directory", dirID)
		}
		for _, child := range d.dirs {
			if child.ParentDirectoryID == dirID {
				return NewNotEmptyError(dir.Name)
			}
		}
		delete(d.dirs, dirID)
		if err := s.save(userID, d); err != nil {
			d.dirs[dirID] = dir
			return err
		}
		return nil
	})
}
