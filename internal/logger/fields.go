package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that log
// aggregation and querying stay uniform across the codebase.
const (
	// Session & connection
	KeySessionID = "session_id" // Server-assigned session identifier
	KeyClientIP  = "client_ip"  // Client IP address (without port)
	KeyState     = "state"      // Session state name

	// Protocol
	KeyCommand  = "command"   // Command name (LOGIN_REQUEST, FILE_UPLOAD_CHUNK_REQUEST, ...)
	KeyPacketID = "packet_id" // Packet identifier

	// Identity
	KeyUserID   = "user_id"
	KeyUsername = "username"

	// Files & directories
	KeyFileID      = "file_id"
	KeyFileName    = "file_name"
	KeyDirectoryID = "directory_id"
	KeyPath        = "path"
	KeySize        = "size"

	// Chunk transfer
	KeyChunkIndex   = "chunk_index"
	KeyTotalChunks  = "total_chunks"
	KeyOffset       = "offset"
	KeyBytesRead    = "bytes_read"
	KeyBytesWritten = "bytes_written"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// SessionID returns a slog.Attr for a session identifier.
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// ClientIP returns a slog.Attr for the client IP address.
func ClientIP(ip string) slog.Attr {
	return slog.String(KeyClientIP, ip)
}

// State returns a slog.Attr for a session state name.
func State(name string) slog.Attr {
	return slog.String(KeyState, name)
}

// Command returns a slog.Attr for a command name.
func Command(name string) slog.Attr {
	return slog.String(KeyCommand, name)
}

// UserID returns a slog.Attr for a user identifier.
func UserID(id string) slog.Attr {
	return slog.String(KeyUserID, id)
}

// Username returns a slog.Attr for a username.
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// FileID returns a slog.Attr for a file identifier.
func FileID(id string) slog.Attr {
	return slog.String(KeyFileID, id)
}

// FileName returns a slog.Attr for a file name.
func FileName(name string) slog.Attr {
	return slog.String(KeyFileName, name)
}

// DirectoryID returns a slog.Attr for a directory identifier.
func DirectoryID(id string) slog.Attr {
	return slog.String(KeyDirectoryID, id)
}

// Path returns a slog.Attr for a filesystem path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Size returns a slog.Attr for a byte size.
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// ChunkIndex returns a slog.Attr for a chunk index.
func ChunkIndex(i int) slog.Attr {
	return slog.Int(KeyChunkIndex, i)
}

// TotalChunks returns a slog.Attr for a chunk count.
func TotalChunks(n int) slog.Attr {
	return slog.Int(KeyTotalChunks, n)
}

// Offset returns a slog.Attr for a file offset.
func Offset(off int64) slog.Attr {
	return slog.Int64(KeyOffset, off)
}

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error. Returns an empty Attr for nil errors.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
