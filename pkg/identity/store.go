package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cubbyfs/cubby/internal/logger"
)

// Common errors for Store operations.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("username already taken")
)

const (
	// AdminUsername is the reserved username for the bootstrap administrator.
	AdminUsername = "admin"

	// EnvAdminInitialPassword overrides the generated admin password on
	// first start. Ignored once the store contains any user.
	EnvAdminInitialPassword = "CUBBY_ADMIN_INITIAL_PASSWORD"

	usersDirName  = "users"
	usersFileName = "users.json"
)

// storeFile is the on-disk shape of the user database.
type storeFile struct {
	Users []*User `json:"users"`
}

// Store is a JSON-file-backed user database.
//
// All users live in a single file under <root>/users/users.json. Writes go
// through a temp file followed by an atomic rename, so a crash mid-write
// never leaves a truncated database behind. Methods are safe for concurrent
// use from multiple connection handlers.
type Store struct {
	mu   sync.RWMutex
	path string
	log  *slog.Logger

	// byID and byUsername index the same *User values. Username keys are
	// normalized so uniqueness is case-insensitive.
	byID       map[string]*User
	byUsername map[string]*User
}

// NewStore opens (or creates) the user database rooted at root.
//
// If the store comes up empty, a default admin account is bootstrapped with
// a random password, which is logged at warning level exactly once. Set
// EnvAdminInitialPassword to choose the password instead.
func NewStore(root string, log *slog.Logger) (*Store, error) {
	dir := filepath.Join(root, usersDirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create users directory: %w", err)
	}

	s := &Store{
		path:       filepath.Join(dir, usersFileName),
		log:        log,
		byID:       make(map[string]*User),
		byUsername: make(map[string]*User),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	if len(s.byID) == 0 {
		if err := s.bootstrapAdmin(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// load reads the database file into the in-memory indexes. A missing file is
// an empty store; an unparsable file is moved aside to a timestamped backup
// so the server can still start.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read user database: %w", err)
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		backup := fmt.Sprintf("%s.backup_%d", s.path, time.Now().Unix())
		if renameErr := os.Rename(s.path, backup); renameErr != nil {
			return fmt.Errorf("user database corrupt and backup failed: %w", renameErr)
		}
		s.log.Error("user database corrupt, moved aside",
			logger.KeyPath, s.path,
			slog.String("backup", backup),
			logger.Err(err))
		return nil
	}

	for _, u := range file.Users {
		if err := u.Validate(); err != nil {
			return fmt.Errorf("user database entry invalid: %w", err)
		}
		s.byID[u.ID] = u
		s.byUsername[NormalizeUsername(u.Username)] = u
	}
	return nil
}

// save persists the current state. Callers must hold s.mu for writing.
func (s *Store) save() error {
	file := storeFile{Users: make([]*User, 0, len(s.byID))}
	for _, u := range s.byID {
		file.Users = append(file.Users, u)
	}

	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user database: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write user database: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace user database: %w", err)
	}
	return nil
}

func (s *Store) bootstrapAdmin() error {
	password := os.Getenv(EnvAdminInitialPassword)
	generated := password == ""
	if generated {
		var err error
		password, err = GeneratePassword(18)
		if err != nil {
			return err
		}
	}

	admin, err := s.CreateUser(AdminUsername, password, "")
	if err != nil {
		return fmt.Errorf("bootstrap admin account: %w", err)
	}

	s.mu.Lock()
	if stored, ok := s.byID[admin.ID]; ok {
		stored.Role = RoleAdmin
	}
	err = s.save()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if generated {
		s.log.Warn("bootstrapped default admin account with generated password",
			logger.KeyUsername, AdminUsername,
			slog.String("password", password))
	} else {
		s.log.Info("bootstrapped default admin account from environment",
			logger.KeyUsername, AdminUsername)
	}
	return nil
}

// CreateUser registers a new account. Returns ErrDuplicateUser if the
// username is already taken (case-insensitively) and ErrPasswordTooShort if
// the password does not meet the minimum length.
func (s *Store) CreateUser(username, password, email string) (*User, error) {
	normalized := NormalizeUsername(username)
	if normalized == "" {
		return nil, fmt.Errorf("username is required")
	}

	hash, salt, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[normalized]; exists {
		return nil, ErrDuplicateUser
	}

	now := time.Now().UTC()
	user := &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		Role:         RoleUser,
		PasswordSalt: salt,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.byID[user.ID] = user
	s.byUsername[normalized] = user
	if err := s.save(); err != nil {
		delete(s.byID, user.ID)
		delete(s.byUsername, normalized)
		return nil, err
	}

	s.log.Info("user registered",
		logger.KeyUserID, user.ID,
		logger.KeyUsername, user.Username)
	return copyUser(user), nil
}

// Authenticate verifies a username/password pair and records the login time.
// Returns ErrInvalidCredentials for an unknown username or a wrong password;
// the two cases are indistinguishable to the caller.
func (s *Store) Authenticate(username, password string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byUsername[NormalizeUsername(username)]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !VerifyPassword(password, user.PasswordHash, user.PasswordSalt) {
		return nil, ErrInvalidCredentials
	}

	user.LastLoginAt = time.Now().UTC()
	if err := s.save(); err != nil {
		// The login itself succeeded. Losing the timestamp is recoverable.
		s.log.Error("failed to persist last login time",
			logger.KeyUserID, user.ID,
			logger.Err(err))
	}
	return copyUser(user), nil
}

// GetUser returns a user by ID. Returns ErrUserNotFound if absent.
func (s *Store) GetUser(id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(user), nil
}

// GetUserByUsername returns a user by username (case-insensitive).
// Returns ErrUserNotFound if absent.
func (s *Store) GetUserByUsername(username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byUsername[NormalizeUsername(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(user), nil
}

// SetPassword replaces a user's password. Returns ErrUserNotFound if the
// username is unknown.
func (s *Store) SetPassword(username, newPassword string) error {
	hash, salt, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byUsername[NormalizeUsername(username)]
	if !ok {
		return ErrUserNotFound
	}

	prevHash, prevSalt := user.PasswordHash, user.PasswordSalt
	user.PasswordHash = hash
	user.PasswordSalt = salt
	user.UpdatedAt = time.Now().UTC()
	if err := s.save(); err != nil {
		user.PasswordHash = prevHash
		user.PasswordSalt = prevSalt
		return err
	}

	s.log.Info("password changed",
		logger.KeyUserID, user.ID,
		logger.KeyUsername, user.Username)
	return nil
}

// DeleteUser removes an account. The user's files and metadata are not
// touched; cleaning those up is an operator decision.
func (s *Store) DeleteUser(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := NormalizeUsername(username)
	user, ok := s.byUsername[normalized]
	if !ok {
		return ErrUserNotFound
	}

	delete(s.byID, user.ID)
	delete(s.byUsername, normalized)
	if err := s.save(); err != nil {
		s.byID[user.ID] = user
		s.byUsername[normalized] = user
		return err
	}

	s.log.Info("user deleted",
		logger.KeyUserID, user.ID,
		logger.KeyUsername, user.Username)
	return nil
}

// ListUsers returns all users.
func (s *Store) ListUsers() []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*User, 0, len(s.byID))
	for _, u := range s.byID {
		users = append(users, copyUser(u))
	}
	return users
}

// copyUser returns a shallow copy so callers cannot mutate indexed state.
func copyUser(u *User) *User {
	c := *u
	return &c
}
