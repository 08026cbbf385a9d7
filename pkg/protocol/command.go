package protocol

import "fmt"

// Command identifies the operation a packet carries. Values are fixed on the
// wire as 32-bit little-endian signed integers.
type Command int32

// Command codes, grouped by range.
const (
	// Authentication (100-199)
	LoginRequest          Command = 100
	LoginResponse         Command = 101
	LogoutRequest         Command = 102
	LogoutResponse        Command = 103
	CreateAccountRequest  Command = 110
	CreateAccountResponse Command = 111

	// File operations (200-249)
	FileListRequest              Command = 200
	FileListResponse             Command = 201
	FileUploadInitRequest        Command = 210
	FileUploadInitResponse       Command = 211
	FileUploadChunkRequest       Command = 212
	FileUploadChunkResponse      Command = 213
	FileUploadCompleteRequest    Command = 214
	FileUploadCompleteResponse   Command = 215
	FileDownloadInitRequest      Command = 220
	FileDownloadInitResponse     Command = 221
	FileDownloadChunkRequest     Command = 222
	FileDownloadChunkResponse    Command = 223
	FileDownloadCompleteRequest  Command = 224
	FileDownloadCompleteResponse Command = 225
	FileDeleteRequest            Command = 230
	FileDeleteResponse           Command = 231
	FileMoveRequest              Command = 240
	FileMoveResponse             Command = 241

	// Directory operations (250-299)
	DirectoryContentsRequest  Command = 250
	DirectoryContentsResponse Command = 251
	DirectoryCreateRequest    Command = 252
	DirectoryCreateResponse   Command = 253
	DirectoryDeleteRequest    Command = 254
	DirectoryDeleteResponse   Command = 255

	// Status (300-399)
	Success      Command = 300
	Error        Command = 301
	Unauthorized Command = 302
)

// responsePairs maps each request command to its canonical response.
var responsePairs = map[Command]Command{
	LoginRequest:                 LoginResponse,
	LogoutRequest:                LogoutResponse,
	CreateAccountRequest:         CreateAccountResponse,
	FileListRequest:              FileListResponse,
	FileUploadInitRequest:        FileUploadInitResponse,
	FileUploadChunkRequest:       FileUploadChunkResponse,
	FileUploadCompleteRequest:    FileUploadCompleteResponse,
	FileDownloadInitRequest:      FileDownloadInitResponse,
	FileDownloadChunkRequest:     FileDownloadChunkResponse,
	FileDownloadCompleteRequest:  FileDownloadCompleteResponse,
	FileDeleteRequest:            FileDeleteResponse,
	FileMoveRequest:              FileMoveResponse,
	DirectoryContentsRequest:     DirectoryContentsResponse,
	DirectoryCreateRequest:       DirectoryCreateResponse,
	DirectoryDeleteRequest:       DirectoryDeleteResponse,
}

var commandNames = map[Command]string{
	LoginRequest:                 "LOGIN_REQUEST",
	LoginResponse:                "LOGIN_RESPONSE",
	LogoutRequest:                "LOGOUT_REQUEST",
	LogoutResponse:               "LOGOUT_RESPONSE",
	CreateAccountRequest:         "CREATE_ACCOUNT_REQUEST",
	CreateAccountResponse:        "CREATE_ACCOUNT_RESPONSE",
	FileListRequest:              "FILE_LIST_REQUEST",
	FileListResponse:             "FILE_LIST_RESPONSE",
	FileUploadInitRequest:        "FILE_UPLOAD_INIT_REQUEST",
	FileUploadInitResponse:       "FILE_UPLOAD_INIT_RESPONSE",
	FileUploadChunkRequest:       "FILE_UPLOAD_CHUNK_REQUEST",
	FileUploadChunkResponse:      "FILE_UPLOAD_CHUNK_RESPONSE",
	FileUploadCompleteRequest:    "FILE_UPLOAD_COMPLETE_REQUEST",
	FileUploadCompleteResponse:   "FILE_UPLOAD_COMPLETE_RESPONSE",
	FileDownloadInitRequest:      "FILE_DOWNLOAD_INIT_REQUEST",
	FileDownloadInitResponse:     "FILE_DOWNLOAD_INIT_RESPONSE",
	FileDownloadChunkRequest:     "FILE_DOWNLOAD_CHUNK_REQUEST",
	FileDownloadChunkResponse:    "FILE_DOWNLOAD_CHUNK_RESPONSE",
	FileDownloadCompleteRequest:  "FILE_DOWNLOAD_COMPLETE_REQUEST",
	FileDownloadCompleteResponse: "FILE_DOWNLOAD_COMPLETE_RESPONSE",
	FileDeleteRequest:            "FILE_DELETE_REQUEST",
	FileDeleteResponse:           "FILE_DELETE_RESPONSE",
	FileMoveRequest:              "FILE_MOVE_REQUEST",
	FileMoveResponse:             "FILE_MOVE_RESPONSE",
	DirectoryContentsRequest:     "DIRECTORY_CONTENTS_REQUEST",
	DirectoryContentsResponse:    "DIRECTORY_CONTENTS_RESPONSE",
	DirectoryCreateRequest:       "DIRECTORY_CREATE_REQUEST",
	DirectoryCreateResponse:      "DIRECTORY_CREATE_RESPONSE",
	DirectoryDeleteRequest:       "DIRECTORY_DELETE_REQUEST",
	DirectoryDeleteResponse:      "DIRECTORY_DELETE_RESPONSE",
	Success:                      "SUCCESS",
	Error:                        "ERROR",
	Unauthorized:                 "UNAUTHORIZED",
}

// String returns the display name for the command, for logs.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int32(c))
}

// IsKnown reports whether the command code is part of the taxonomy.
func (c Command) IsKnown() bool {
	_, ok := commandNames[c]
	return ok
}

// IsRequest reports whether the command is a request code.
func (c Command) IsRequest() bool {
	_, ok := responsePairs[c]
	return ok
}

// ResponseFor returns the canonical response command for a request.
// Commands that are not requests map to the Error sentinel.
func ResponseFor(request Command) Command {
	if resp, ok := responsePairs[request]; ok {
		return resp
	}
	return Error
}

// Commands returns the full set of known command codes.
func Commands() []Command {
	out := make([]Command, 0, len(commandNames))
	for c := range commandNames {
		out = append(out, c)
	}
	return out
}
