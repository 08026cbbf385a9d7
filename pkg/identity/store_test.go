package identity

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := NewStore(root, log)
	require.NoError(t, err)
	return store, root
}

func TestStoreBootstrap(t *testing.T) {
	t.Run("CreatesAdminOnEmptyStore", func(t *testing.T) {
		store, _ := newTestStore(t)

		admin, err := store.GetUserByUsername(AdminUsername)
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, admin.Role)
		assert.NotEmpty(t, admin.PasswordHash)
	})

	t.Run("AdminPasswordFromEnvironment", func(t *testing.T) {
		t.Setenv(EnvAdminInitialPassword, "env-admin-pass")
		store, _ := newTestStore(t)

		admin, err := store.Authenticate(AdminUsername, "env-admin-pass")
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, admin.Role)
	})

	t.Run("NoBootstrapWhenUsersExist", func(t *testing.T) {
		store, root := newTestStore(t)
		_, err := store.CreateUser("alice", "password123", "alice@example.com")
		require.NoError(t, err)

		log := slog.New(slog.NewTextHandler(os.Stderr, nil))
		reopened, err := NewStore(root, log)
		require.NoError(t, err)

		users := reopened.ListUsers()
		assert.Len(t, users, 2) // admin + alice, no second admin
	})
}

func TestStoreCreateUser(t *testing.T) {
	t.Run("RegisterAndFetch", func(t *testing.T) {
		store, _ := newTestStore(t)

		user, err := store.CreateUser("Alice", "password123", "alice@example.com")
		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "Alice", user.Username)
		assert.Equal(t, RoleUser, user.Role)
		assert.False(t, user.CreatedAt.IsZero())

		byID, err := store.GetUser(user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.ID, byID.ID)
	})

	t.Run("UsernameUniquenessIsCaseInsensitive", func(t *testing.T) {
		store, _ := newTestStore(t)

		_, err := store.CreateUser("alice", "password123", "")
		require.NoError(t, err)

		_, err = store.CreateUser("ALICE", "password456", "")
		assert.ErrorIs(t, err, ErrDuplicateUser)
	})

	t.Run("PreservesUsernameCaseOnLookup", func(t *testing.T) {
		store, _ := newTestStore(t)

		_, err := store.CreateUser("Alice", "password123", "")
		require.NoError(t, err)

		user, err := store.GetUserByUsername("aLiCe")
		require.NoError(t, err)
		assert.Equal(t, "Alice", user.Username)
	})

	t.Run("RejectsWeakPassword", func(t *testing.T) {
		store, _ := newTestStore(t)

		_, err := store.CreateUser("bob", "short", "")
		assert.ErrorIs(t, err, ErrPasswordTooShort)
	})
}

func TestStoreAuthenticate(t *testing.T) {
	store, _ := newTestStore(t)
	created, err := store.CreateUser("alice", "password123", "")
	require.NoError(t, err)
	require.True(t, created.LastLoginAt.IsZero())

	t.Run("ValidCredentials", func(t *testing.T) {
		user, err := store.Authenticate("alice", "password123")
		require.NoError(t, err)
		assert.Equal(t, created.ID, user.ID)
		assert.False(t, user.LastLoginAt.IsZero())
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := store.Authenticate("alice", "password124")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := store.Authenticate("mallory", "password123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestStorePersistence(t *testing.T) {
	t.Run("SurvivesReopen", func(t *testing.T) {
		store, root := newTestStore(t)
		created, err := store.CreateUser("alice", "password123", "alice@example.com")
		require.NoError(t, err)

		log := slog.New(slog.NewTextHandler(os.Stderr, nil))
		reopened, err := NewStore(root, log)
		require.NoError(t, err)

		user, err := reopened.GetUser(created.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, "alice@example.com", user.Email)

		_, err = reopened.Authenticate("alice", "password123")
		require.NoError(t, err)
	})

	t.Run("CorruptDatabaseMovedAside", func(t *testing.T) {
		store, root := newTestStore(t)
		_, err := store.CreateUser("alice", "password123", "")
		require.NoError(t, err)

		path := filepath.Join(root, usersDirName, usersFileName)
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
		reopened, err := NewStore(root, log)
		require.NoError(t, err)

		// Old data is gone but preserved in a backup file.
		_, err = reopened.GetUserByUsername("alice")
		assert.ErrorIs(t, err, ErrUserNotFound)

		backups, err := filepath.Glob(path + ".backup_*")
		require.NoError(t, err)
		assert.NotEmpty(t, backups)
	})

	t.Run("ReturnedUsersAreCopies", func(t *testing.T) {
		store, _ := newTestStore(t)
		created, err := store.CreateUser("alice", "password123", "")
		require.NoError(t, err)

		created.Username = "tampered"

		user, err := store.GetUser(created.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
	})
}
