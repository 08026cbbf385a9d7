package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandCodes(t *testing.T) {
	// The wire values are fixed; a renumbering would break every deployed client.
	assert.EqualValues(t, 100, LoginRequest)
	assert.EqualValues(t, 101, LoginResponse)
	assert.EqualValues(t, 110, CreateAccountRequest)
	assert.EqualValues(t, 200, FileListRequest)
	assert.EqualValues(t, 212, FileUploadChunkRequest)
	assert.EqualValues(t, 225, FileDownloadCompleteResponse)
	assert.EqualValues(t, 240, FileMoveRequest)
	assert.EqualValues(t, 255, DirectoryDeleteResponse)
	assert.EqualValues(t, 300, Success)
	assert.EqualValues(t, 301, Error)
	assert.EqualValues(t, 302, Unauthorized)
}

func TestResponseFor(t *testing.T) {
	t.Run("RequestsMapToResponses", func(t *testing.T) {
		assert.Equal(t, LoginResponse, ResponseFor(LoginRequest))
		assert.Equal(t, FileUploadChunkResponse, ResponseFor(FileUploadChunkRequest))
		assert.Equal(t, DirectoryDeleteResponse, ResponseFor(DirectoryDeleteRequest))
	})

	t.Run("EveryRequestHasAResponse", func(t *testing.T) {
		for _, cmd := range Commands() {
			if !cmd.IsRequest() {
				continue
			}
			resp := ResponseFor(cmd)
			assert.NotEqual(t, Error, resp, "request %s has no response pair", cmd)
			assert.Equal(t, int32(cmd)+1, int32(resp), "response code for %s is not request+1", cmd)
		}
	})

	t.Run("NonRequestsMapToError", func(t *testing.T) {
		assert.Equal(t, Error, ResponseFor(LoginResponse))
		assert.Equal(t, Error, ResponseFor(Success))
		assert.Equal(t, Error, ResponseFor(Command(9999)))
	})
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "LOGIN_REQUEST", LoginRequest.String())
	assert.Equal(t, "FILE_UPLOAD_CHUNK_REQUEST", FileUploadChunkRequest.String())
	assert.Equal(t, "UNKNOWN(9999)", Command(9999).String())
	assert.False(t, Command(9999).IsKnown())
	assert.True(t, Unauthorized.IsKnown())
}
