package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/cubbyfs/cubby/internal/logger"
)

// loadDocument reads a JSON document into v, a non-nil pointer. A missing
// file leaves v untouched (empty document). A file that no longer parses is
// renamed to a timestamped backup so the store can keep operating; the data
// loss is logged, not silently swallowed.
//
// Decoding goes through a scratch value so a parse failure can never leave
// v half populated; v is written only once the whole document decodes.
func loadDocument(path string, v any, log *slog.Logger) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return NewIOError("read metadata document", err)
	}

	scratch := reflect.New(reflect.TypeOf(v).Elem())
	if err := json.Unmarshal(data, scratch.Interface()); err != nil {
		backup := fmt.Sprintf("%s.backup_%d", path, time.Now().Unix())
		if renameErr := os.Rename(path, backup); renameErr != nil {
			return NewIOError("metadata document corrupt and backup failed", renameErr)
		}
		log.Error("metadata document corrupt, moved aside",
			logger.KeyPath, path,
			slog.String("backup", backup),
			logger.Err(err))
		return nil
	}

	reflect.ValueOf(v).Elem().Set(scratch.Elem())
	return nil
}

// saveDocument writes a JSON document through a temp file and an atomic
// rename. The parent directory is created on demand so the first write for
// a new user succeeds.
func saveDocument(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return NewIOError("create metadata directory", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return NewIOError("encode metadata document", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return NewIOError("write metadata document", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return NewIOError("replace metadata document", err)
	}
	return nil
}
