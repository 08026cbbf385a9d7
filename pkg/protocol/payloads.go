package protocol

import (
	"encoding/json"
	"time"
)

// Metadata keys used by requests and responses.
const (
	MetaSuccess     = "Success"
	MetaMessage     = "Message"
	MetaFileID      = "FileId"
	MetaChunkIndex  = "ChunkIndex"
	MetaIsLastChunk = "IsLastChunk"
	MetaDirectoryID = "DirectoryId"
)

// Structured payloads are UTF-8 JSON documents with fixed field names, so the
// wire format does not change when fields are added. Unknown fields are
// ignored on read and never echoed on write.

// LoginPayload is the LOGIN_REQUEST payload.
type LoginPayload struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
}

// CreateAccountPayload is the CREATE_ACCOUNT_REQUEST payload.
type CreateAccountPayload struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
	Email    string `json:"Email"`
}

// StatusPayload is the generic success/failure response payload
// (LOGIN_RESPONSE, LOGOUT_RESPONSE, and most error responses).
type StatusPayload struct {
	Success bool   `json:"Success"`
	Message string `json:"Message"`
}

// CreateAccountResultPayload is the CREATE_ACCOUNT_RESPONSE payload.
type CreateAccountResultPayload struct {
	Success bool   `json:"Success"`
	Message string `json:"Message"`
	UserID  string `json:"UserId"`
}

// UploadInitPayload is the FILE_UPLOAD_INIT_REQUEST payload. The optional
// target directory travels in metadata under MetaDirectoryID.
type UploadInitPayload struct {
	FileName    string `json:"FileName"`
	FileSize    int64  `json:"FileSize"`
	ContentType string `json:"ContentType"`
}

// UploadInitResultPayload is the FILE_UPLOAD_INIT_RESPONSE payload.
type UploadInitResultPayload struct {
	Success bool   `json:"Success"`
	FileID  string `json:"FileId"`
	Message string `json:"Message"`
}

// DownloadInitPayload is the FILE_DOWNLOAD_INIT_REQUEST payload.
type DownloadInitPayload struct {
	FileID string `json:"FileId"`
}

// DownloadInitResultPayload is the FILE_DOWNLOAD_INIT_RESPONSE payload.
type DownloadInitResultPayload struct {
	Success     bool   `json:"Success"`
	FileID      string `json:"FileId"`
	FileName    string `json:"FileName"`
	FileSize    int64  `json:"FileSize"`
	ContentType string `json:"ContentType"`
	TotalChunks int    `json:"TotalChunks"`
	Message     string `json:"Message"`
}

// FileEntry describes one file in a listing.
type FileEntry struct {
	FileID      string    `json:"FileId"`
	FileName    string    `json:"FileName"`
	FileSize    int64     `json:"FileSize"`
	ContentType string    `json:"ContentType"`
	DirectoryID string    `json:"DirectoryId,omitempty"`
	IsComplete  bool      `json:"IsComplete"`
	CreatedAt   time.Time `json:"CreatedAt"`
}

// DirectoryEntry describes one directory in a listing.
type DirectoryEntry struct {
	DirectoryID       string    `json:"DirectoryId"`
	Name              string    `json:"Name"`
	ParentDirectoryID string    `json:"ParentDirectoryId,omitempty"`
	CreatedAt         time.Time `json:"CreatedAt"`
}

// FileListResultPayload is the FILE_LIST_RESPONSE payload.
type FileListResultPayload struct {
	Success bool        `json:"Success"`
	Files   []FileEntry `json:"Files"`
	Message string      `json:"Message"`
}

// FileDeletePayload is the FILE_DELETE_REQUEST payload.
type FileDeletePayload struct {
	FileID string `json:"FileId"`
}

// FileMovePayload is the FILE_MOVE_REQUEST payload. An empty
// TargetDirectoryID means the user root.
type FileMovePayload struct {
	FileIDs           []string `json:"FileIds"`
	TargetDirectoryID string   `json:"TargetDirectoryId,omitempty"`
}

// DirectoryContentsPayload is the DIRECTORY_CONTENTS_REQUEST payload.
// An empty DirectoryID means the user root.
type DirectoryContentsPayload struct {
	DirectoryID string `json:"DirectoryId,omitempty"`
}

// DirectoryContentsResultPayload is the DIRECTORY_CONTENTS_RESPONSE payload.
type DirectoryContentsResultPayload struct {
	Success     bool             `json:"Success"`
	Directories []DirectoryEntry `json:"Directories"`
	Files       []FileEntry      `json:"Files"`
	Message     string           `json:"Message"`
}

// DirectoryCreatePayload is the DIRECTORY_CREATE_REQUEST payload.
type DirectoryCreatePayload struct {
	Name              string `json:"Name"`
	ParentDirectoryID string `json:"ParentDirectoryId,omitempty"`
}

// DirectoryCreateResultPayload is the DIRECTORY_CREATE_RESPONSE payload.
type DirectoryCreateResultPayload struct {
	Success     bool   `json:"Success"`
	DirectoryID string `json:"DirectoryId"`
	Message     string `json:"Message"`
}

// DirectoryDeletePayload is the DIRECTORY_DELETE_REQUEST payload.
type DirectoryDeletePayload struct {
	DirectoryID string `json:"DirectoryId"`
}

// MarshalPayload encodes a structured payload as JSON bytes.
func MarshalPayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

// UnmarshalPayload decodes a JSON payload into v. Unknown fields are ignored.
func UnmarshalPayload(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
