package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// Storage reads and writes content files under a fixed set of permissions.
// The zero value is not usable; construct with New.
type Storage struct {
	dirMode  os.FileMode
	fileMode os.FileMode
}

// New creates a Storage with standard permissions (0750 directories, 0640
// files).
func New() *Storage {
	return &Storage{
		dirMode:  0o750,
		fileMode: 0o640,
	}
}

// CreateEmpty creates a zero-length file at path, making parent directories
// as needed. Fails if the file already exists: content paths are expected
// to be unique per upload.
func (s *Storage) CreateEmpty(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), s.dirMode); err != nil {
		return newError("create", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, s.fileMode)
	if err != nil {
		return newError("create", path, err)
	}
	if err := f.Close(); err != nil {
		return newError("create", path, err)
	}
	return nil
}

// WriteChunk writes data at the given byte offset. The file must already
// exist. A successful return means the bytes are handed to the kernel;
// durability requires a later Flush.
func (s *Storage) WriteChunk(path string, data []byte, offset int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, s.fileMode)
	if err != nil {
		return newError("write", path, err)
	}
	defer f.Close()

	if _, err := f.WriteAt(data, offset); err != nil {
		return newError("write", path, err)
	}
	return nil
}

// ReadChunk reads exactly length bytes starting at offset. A chunk that
// runs past the end of the file is an error; callers size the final chunk
// from the recorded file size.
func (s *Storage) ReadChunk(path string, offset, length int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError("read", path, err)
	}
	defer f.Close()

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, offset); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, newError("read", path, io.ErrUnexpectedEOF)
		}
		return nil, newError("read", path, err)
	}
	return buf, nil
}

// Flush forces the file's contents to durable storage.
func (s *Storage) Flush(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, s.fileMode)
	if err != nil {
		return newError("flush", path, err)
	}
	defer f.Close()

	if err := f.Sync(); err != nil {
		return newError("flush", path, err)
	}
	return nil
}

// DeleteFile removes the file at path. Deleting a file that does not exist
// is not an error: delete is used for cleanup after partial failures.
func (s *Storage) DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return newError("delete", path, err)
	}
	return nil
}

// MoveFile renames a content file, creating the destination's parent
// directories as needed.
func (s *Storage) MoveFile(oldPath, newPath string) error {
	if err := os.MkdirAll(filepath.Dir(newPath), s.dirMode); err != nil {
		return newError("move", newPath, err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return newError("move", oldPath, err)
	}
	return nil
}

// CreateDirectory creates a directory (and parents) at path.
func (s *Storage) CreateDirectory(path string) error {
	if err := os.MkdirAll(path, s.dirMode); err != nil {
		return newError("mkdir", path, err)
	}
	return nil
}

// FileSize returns the current on-disk size of the file.
func (s *Storage) FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, newError("stat", path, err)
	}
	return info.Size(), nil
}

// Exists reports whether a regular file exists at path.
func (s *Storage) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
