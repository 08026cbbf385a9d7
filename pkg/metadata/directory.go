package metadata

import (
	"time"
)

// DirectoryMetadata records one user directory. Directories form a forest
// per user: ParentDirectoryID empty means the directory hangs off the root.
type DirectoryMetadata struct {
	// ID is the unique identifier for the directory (UUID).
	ID string `json:"id"`

	// UserID is the owning user. Parent and child always share an owner.
	UserID string `json:"userId"`

	// Name is the directory name. Unique among siblings,
	// case-insensitively.
	Name string `json:"name"`

	// ParentDirectoryID is the parent, or empty for the root.
	ParentDirectoryID string `json:"parentDirectoryId,omitempty"`

	// DirectoryPath is the slash-joined path from the root, kept for
	// display purposes.
	DirectoryPath string `json:"directoryPath"`

	// CreatedAt is when the directory was created.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is when the record was last modified.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy so callers cannot mutate store-owned state.
func (d *DirectoryMetadata) Clone() *DirectoryMetadata {
	c := *d
	return &c
}

// Validate checks the record's internal consistency.
func (d *DirectoryMetadata) Validate() error {
	if d.ID == "" {
		return NewInvalidArgumentError("directory id is required")
	}
	if d.UserID == "" {
		return NewInvalidArgumentError("directory owner is required")
	}
	if d.Name == "" {
		return NewInvalidArgumentError("directory name is required")
	}
	if d.ParentDirectoryID == d.ID {
		return NewInvalidArgumentError("directory cannot be its own parent")
	}
	return nil
}
