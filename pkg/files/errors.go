package files

import (
	"errors"
)

// Service-level errors. Handlers map these onto response messages; anything
// else that surfaces is a metadata StoreError or a storage.StorageError.
var (
	// ErrChunkOutOfOrder is returned when a chunk index does not match the
	// next expected index. The transfer cannot continue.
	ErrChunkOutOfOrder = errors.New("chunk index out of order")

	// ErrUnexpectedLastChunk is returned when the last-chunk flag is set on
	// a chunk before the final index. Accepting it would mark the file
	// complete with chunks still missing.
	ErrUnexpectedLastChunk = errors.New("last chunk flag set before the final chunk")

	// ErrChunkSizeMismatch is returned when a chunk payload is not the size
	// its slot requires: a full chunk for every index but the last, the
	// file-size remainder for the last.
	ErrChunkSizeMismatch = errors.New("chunk payload size mismatch")

	// ErrUploadAlreadyComplete is returned when a chunk arrives for a file
	// that has already been finalized.
	ErrUploadAlreadyComplete = errors.New("upload already complete")

	// ErrFileNotComplete is returned when a download is requested for a
	// file whose upload never finished.
	ErrFileNotComplete = errors.New("file upload is not complete")

	// ErrOffsetOutOfRange is returned when a download chunk index points
	// past the end of the file.
	ErrOffsetOutOfRange = errors.New("chunk offset out of range")

	// ErrInvalidFileSize is returned when an upload declares a
	// non-positive size.
	ErrInvalidFileSize = errors.New("file size must be at least 1 byte")
)
