package metadata

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newFileRecord(userID, name string) *FileMetadata {
	now := time.Now().UTC()
	return &FileMetadata{
		ID:          uuid.New().String(),
		UserID:      userID,
		FileName:    name,
		FileSize:    1024,
		ContentType: "text/plain",
		FilePath:    "/storage/" + name,
		TotalChunks: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestFileStoreAddGet(t *testing.T) {
	store := NewFileStore(t.TempDir(), testLog())

	f := newFileRecord("user-1", "report.pdf")
	require.NoError(t, store.Add(f))

	t.Run("GetByID", func(t *testing.T) {
		got, err := store.GetByID("user-1", f.ID)
		require.NoError(t, err)
		assert.Equal(t, "report.pdf", got.FileName)
	})

	t.Run("DuplicateIDRejected", func(t *testing.T) {
		err := store.Add(f)
		assert.Equal(t, ErrAlreadyExists, CodeOf(err))
	})

	t.Run("UnknownFileIsNotFound", func(t *testing.T) {
		_, err := store.GetByID("user-1", "missing")
		assert.True(t, IsNotFound(err))
	})

	t.Run("OtherUserCannotSeeIt", func(t *testing.T) {
		_, err := store.GetByID("user-2", f.ID)
		assert.True(t, IsNotFound(err))
	})

	t.Run("InvalidRecordRejected", func(t *testing.T) {
		bad := newFileRecord("user-1", "bad.bin")
		bad.ChunksReceived = 5 // beyond TotalChunks
		err := store.Add(bad)
		assert.Equal(t, ErrInvalidArgument, CodeOf(err))
	})
}

func TestFileStoreListing(t *testing.T) {
	store := NewFileStore(t.TempDir(), testLog())

	inRoot := newFileRecord("user-1", "b.txt")
	inDir := newFileRecord("user-1", "a.txt")
	inDir.DirectoryID = "dir-1"
	otherUser := newFileRecord("user-2", "c.txt")

	require.NoError(t, store.Add(inRoot))
	require.NoError(t, store.Add(inDir))
	require.NoError(t, store.Add(otherUser))

	t.Run("ListByUserSortedByName", func(t *testing.T) {
		files, err := store.ListByUser("user-1")
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "a.txt", files[0].FileName)
		assert.Equal(t, "b.txt", files[1].FileName)
	})

	t.Run("ListByDirectory", func(t *testing.T) {
		files, err := store.ListByDirectory("user-1", "dir-1")
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, inDir.ID, files[0].ID)

		root, err := store.ListByDirectory("user-1", "")
		require.NoError(t, err)
		require.Len(t, root, 1)
		assert.Equal(t, inRoot.ID, root[0].ID)
	})
}

func TestFileStoreUpdateDelete(t *testing.T) {
	store := NewFileStore(t.TempDir(), testLog())

	f := newFileRecord("user-1", "upload.bin")
	f.TotalChunks = 3
	require.NoError(t, store.Add(f))

	t.Run("ChunkProgress", func(t *testing.T) {
		f.ChunksReceived = 1
		require.NoError(t, store.Update(f))
		f.ChunksReceived = 3
		f.IsComplete = true
		require.NoError(t, store.Update(f))

		got, err := store.GetByID("user-1", f.ID)
		require.NoError(t, err)
		assert.True(t, got.IsComplete)
		assert.Equal(t, 3, got.ChunksReceived)
	})

	t.Run("CompleteWithMissingChunksRejected", func(t *testing.T) {
		f.IsComplete = true
		f.ChunksReceived = 1
		err := store.Update(f)
		assert.Equal(t, ErrInvalidArgument, CodeOf(err))

		// The stored record keeps its consistent state.
		got, err := store.GetByID("user-1", f.ID)
		require.NoError(t, err)
		assert.True(t, got.IsComplete)
		assert.Equal(t, 3, got.ChunksReceived)
		f.ChunksReceived = 3
	})

	t.Run("UpdateUnknownIsNotFound", func(t *testing.T) {
		ghost := newFileRecord("user-1", "ghost.txt")
		assert.True(t, IsNotFound(store.Update(ghost)))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete("user-1", f.ID))
		_, err := store.GetByID("user-1", f.ID)
		assert.True(t, IsNotFound(err))
		assert.True(t, IsNotFound(store.Delete("user-1", f.ID)))
	})
}

func TestFileStoreMoveMany(t *testing.T) {
	store := NewFileStore(t.TempDir(), testLog())

	a := newFileRecord("user-1", "a.txt")
	b := newFileRecord("user-1", "b.txt")
	require.NoError(t, store.Add(a))
	require.NoError(t, store.Add(b))

	t.Run("BestEffortBatch", func(t *testing.T) {
		moved, failed, err := store.MoveMany("user-1", []string{a.ID, "missing", b.ID}, "dir-9")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{a.ID, b.ID}, moved)
		assert.Equal(t, []string{"missing"}, failed)

		got, err := store.GetByID("user-1", a.ID)
		require.NoError(t, err)
		assert.Equal(t, "dir-9", got.DirectoryID)
	})

	t.Run("MoveBackToRoot", func(t *testing.T) {
		moved, failed, err := store.MoveMany("user-1", []string{a.ID}, "")
		require.NoError(t, err)
		assert.Len(t, moved, 1)
		assert.Empty(t, failed)

		got, err := store.GetByID("user-1", a.ID)
		require.NoError(t, err)
		assert.Empty(t, got.DirectoryID)
	})
}

func TestFileStorePersistence(t *testing.T) {
	t.Run("SurvivesReopen", func(t *testing.T) {
		root := t.TempDir()
		store := NewFileStore(root, testLog())

		f := newFileRecord("user-1", "keep.txt")
		require.NoError(t, store.Add(f))

		reopened := NewFileStore(root, testLog())
		got, err := reopened.GetByID("user-1", f.ID)
		require.NoError(t, err)
		assert.Equal(t, "keep.txt", got.FileName)
	})

	t.Run("CorruptDocumentMovedAside", func(t *testing.T) {
		root := t.TempDir()
		store := NewFileStore(root, testLog())
		require.NoError(t, store.Add(newFileRecord("user-1", "lost.txt")))

		path := filepath.Join(root, "user-1", filesDocName)
		require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

		reopened := NewFileStore(root, testLog())
		files, err := reopened.ListByUser("user-1")
		require.NoError(t, err)
		assert.Empty(t, files)

		backups, err := filepath.Glob(path + ".backup_*")
		require.NoError(t, err)
		assert.NotEmpty(t, backups)
	})

	t.Run("HalfDecodedDocumentDiscarded", func(t *testing.T) {
		root := t.TempDir()
		store := NewFileStore(root, testLog())
		require.NoError(t, store.Add(newFileRecord("user-1", "first.txt")))

		// Valid leading record followed by a type error mid-array. The
		// catalog must come up empty, not with the half-decoded prefix.
		doc := `{"files":[{"id":"f1","userId":"user-1","fileName":"first.txt","fileSize":1,"totalChunks":1},{"id":123}]}`
		path := filepath.Join(root, "user-1", filesDocName)
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

		reopened := NewFileStore(root, testLog())
		files, err := reopened.ListByUser("user-1")
		require.NoError(t, err)
		assert.Empty(t, files)

		backups, err := filepath.Glob(path + ".backup_*")
		require.NoError(t, err)
		assert.NotEmpty(t, backups)
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		store := NewFileStore(t.TempDir(), testLog())
		f := newFileRecord("user-1", "orig.txt")
		require.NoError(t, store.Add(f))

		got, err := store.GetByID("user-1", f.ID)
		require.NoError(t, err)
		got.FileName = "tampered"

		again, err := store.GetByID("user-1", f.ID)
		require.NoError(t, err)
		assert.Equal(t, "orig.txt", again.FileName)
	})
}
