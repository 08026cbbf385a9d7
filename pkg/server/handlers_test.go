package server

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubbyfs/cubby/internal/logger"
	"github.com/cubbyfs/cubby/pkg/files"
	"github.com/cubbyfs/cubby/pkg/identity"
	"github.com/cubbyfs/cubby/pkg/metadata"
	"github.com/cubbyfs/cubby/pkg/protocol"
	"github.com/cubbyfs/cubby/pkg/storage"
)

func newTestHandlers(t *testing.T) (*Handlers, *identity.Store) {
	t.Helper()
	root := t.TempDir()
	log := logger.With()

	users, err := identity.NewStore(root, log)
	require.NoError(t, err)

	fileStore := metadata.NewFileStore(root+"/metadata", log)
	dirStore := metadata.NewDirectoryStore(root+"/metadata", log)
	fileSvc := files.NewService(fileStore, dirStore, storage.New(), root+"/storage", log)
	dirSvc := files.NewDirectoryService(dirStore, fileStore, log)

	return NewHandlers(users, fileSvc, dirSvc, nil, log), users
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return NewSession(server, protocol.DefaultMaxPacketSize, 0, logger.With())
}

func login(t *testing.T, h *Handlers, sess *Session, username, password string) *protocol.Packet {
	t.Helper()
	req, err := protocol.NewRequest(protocol.LoginRequest, "", &protocol.LoginPayload{
		Username: username,
		Password: password,
	})
	require.NoError(t, err)

	resp, herr := h.Handle(sess, req)
	require.NoError(t, herr)
	require.NotNil(t, resp)
	return resp
}

func TestStateMachineSafety(t *testing.T) {
	h, _ := newTestHandlers(t)
	sess := newTestSession(t)

	// Every non-authentication command must yield UNAUTHORIZED and nothing
	// else while the session is unauthenticated.
	for _, cmd := range []protocol.Command{
		protocol.LogoutRequest,
		protocol.FileListRequest,
		protocol.FileUploadInitRequest,
		protocol.FileUploadChunkRequest,
		protocol.FileUploadCompleteRequest,
		protocol.FileDownloadInitRequest,
		protocol.FileDeleteRequest,
		protocol.FileMoveRequest,
		protocol.DirectoryContentsRequest,
		protocol.DirectoryCreateRequest,
		protocol.DirectoryDeleteRequest,
	} {
		req := protocol.NewPacket(cmd, "")
		resp, err := h.Handle(sess, req)
		require.NoError(t, err, cmd.String())
		assert.Equal(t, protocol.Unauthorized, resp.Command, cmd.String())
		assert.Equal(t, StateAuthRequired, sess.State())
	}
}

func TestLoginSuccess(t *testing.T) {
	h, users := newTestHandlers(t)
	user, err := users.CreateUser("alice", "Secret1!", "alice@example.com")
	require.NoError(t, err)

	sess := newTestSession(t)
	resp := login(t, h, sess, "alice", "Secret1!")

	assert.True(t, protocol.IsSuccess(resp))
	assert.Equal(t, protocol.LoginResponse, resp.Command)
	assert.Equal(t, user.ID, resp.UserID)
	assert.Equal(t, StateAuthenticated, sess.State())
	assert.Equal(t, user.ID, sess.UserID())
}

func TestLoginFailureLimit(t *testing.T) {
	h, users := newTestHandlers(t)
	_, err := users.CreateUser("alice", "Secret1!", "")
	require.NoError(t, err)

	sess := newTestSession(t)
	req, err := protocol.NewRequest(protocol.LoginRequest, "", &protocol.LoginPayload{
		Username: "alice",
		Password: "wrong",
	})
	require.NoError(t, err)

	for i := 1; i < MaxFailedLoginAttempts; i++ {
		resp, herr := h.Handle(sess, req)
		require.NoError(t, herr)
		assert.False(t, protocol.IsSuccess(resp))
	}

	// The fifth failure carries the disconnect signal.
	resp, herr := h.Handle(sess, req)
	assert.ErrorIs(t, herr, errCloseSession)
	assert.Contains(t, resp.Meta(protocol.MetaMessage), "too many failed login attempts")
}

func TestCreateAccountDuplicate(t *testing.T) {
	h, _ := newTestHandlers(t)
	sess := newTestSession(t)

	req, err := protocol.NewRequest(protocol.CreateAccountRequest, "", &protocol.CreateAccountPayload{
		Username: "bob",
		Password: "Secret1!",
	})
	require.NoError(t, err)

	resp, herr := h.Handle(sess, req)
	require.NoError(t, herr)
	assert.True(t, protocol.IsSuccess(resp))

	var result protocol.CreateAccountResultPayload
	require.NoError(t, protocol.UnmarshalPayload(resp.Payload, &result))
	assert.NotEmpty(t, result.UserID)

	// Account creation does not authenticate the session.
	assert.Equal(t, StateAuthRequired, sess.State())

	resp, herr = h.Handle(sess, req)
	require.NoError(t, herr)
	assert.False(t, protocol.IsSuccess(resp))
	assert.Contains(t, resp.Meta(protocol.MetaMessage), "taken")
}

func TestUserIDMismatchRejected(t *testing.T) {
	h, users := newTestHandlers(t)
	_, err := users.CreateUser("alice", "Secret1!", "")
	require.NoError(t, err)

	sess := newTestSession(t)
	login(t, h, sess, "alice", "Secret1!")

	req := protocol.NewPacket(protocol.FileListRequest, "someone-else")
	resp, herr := h.Handle(sess, req)
	require.NoError(t, herr)
	assert.False(t, protocol.IsSuccess(resp))
	assert.Contains(t, resp.Meta(protocol.MetaMessage), "does not match")
}

func TestLogoutClosesSession(t *testing.T) {
	h, users := newTestHandlers(t)
	_, err := users.CreateUser("alice", "Secret1!", "")
	require.NoError(t, err)

	sess := newTestSession(t)
	login(t, h, sess, "alice", "Secret1!")

	resp, herr := h.Handle(sess, protocol.NewPacket(protocol.LogoutRequest, ""))
	assert.ErrorIs(t, herr, errCloseSession)
	assert.True(t, protocol.IsSuccess(resp))
	assert.Equal(t, protocol.LogoutResponse, resp.Command)
}

func uploadInit(t *testing.T, h *Handlers, sess *Session, name string, size int64) string {
	t.Helper()
	req, err := protocol.NewRequest(protocol.FileUploadInitRequest, "", &protocol.UploadInitPayload{
		FileName: name,
		FileSize: size,
	})
	require.NoError(t, err)

	resp, herr := h.Handle(sess, req)
	require.NoError(t, herr)
	require.True(t, protocol.IsSuccess(resp))

	var result protocol.UploadInitResultPayload
	require.NoError(t, protocol.UnmarshalPayload(resp.Payload, &result))
	require.NotEmpty(t, result.FileID)
	return result.FileID
}

func TestUploadLifecycleThroughHandlers(t *testing.T) {
	h, users := newTestHandlers(t)
	_, err := users.CreateUser("alice", "Secret1!", "")
	require.NoError(t, err)

	sess := newTestSession(t)
	login(t, h, sess, "alice", "Secret1!")

	content := bytes.Repeat([]byte{0xAB}, protocol.ChunkSize+512)
	fileID := uploadInit(t, h, sess, "data.bin", int64(len(content)))
	assert.Equal(t, StateTransferUpload, sess.State())

	chunks := [][]byte{content[:protocol.ChunkSize], content[protocol.ChunkSize:]}
	for i, chunk := range chunks {
		req := protocol.NewUploadChunkRequest("", fileID, i, i == len(chunks)-1, chunk)
		resp, herr := h.Handle(sess, req)
		require.NoError(t, herr)
		require.True(t, protocol.IsSuccess(resp), "chunk %d", i)
		assert.Equal(t, protocol.FileUploadChunkResponse, resp.Command)
	}

	resp, herr := h.Handle(sess, protocol.NewPacket(protocol.FileUploadCompleteRequest, ""))
	require.NoError(t, herr)
	assert.True(t, protocol.IsSuccess(resp))
	assert.Equal(t, StateAuthenticated, sess.State())

	listResp, herr := h.Handle(sess, protocol.NewPacket(protocol.FileListRequest, ""))
	require.NoError(t, herr)
	var listing protocol.FileListResultPayload
	require.NoError(t, protocol.UnmarshalPayload(listResp.Payload, &listing))
	require.Len(t, listing.Files, 1)
	assert.True(t, listing.Files[0].IsComplete)
	assert.Equal(t, int64(len(content)), listing.Files[0].FileSize)
}

func TestChunkFileIDMismatchReturnsToAuthenticated(t *testing.T) {
	h, users := newTestHandlers(t)
	_, err := users.CreateUser("alice", "Secret1!", "")
	require.NoError(t, err)

	sess := newTestSession(t)
	login(t, h, sess, "alice", "Secret1!")
	uploadInit(t, h, sess, "data.bin", 100)

	req := protocol.NewUploadChunkRequest("", "wrong-file-id", 0, true, []byte("x"))
	resp, herr := h.Handle(sess, req)
	require.NoError(t, herr)
	assert.False(t, protocol.IsSuccess(resp))
	assert.Equal(t, StateAuthenticated, sess.State())
}

func TestOutOfOrderChunkAbortsTransfer(t *testing.T) {
	h, users := newTestHandlers(t)
	_, err := users.CreateUser("alice", "Secret1!", "")
	require.NoError(t, err)

	sess := newTestSession(t)
	login(t, h, sess, "alice", "Secret1!")
	fileID := uploadInit(t, h, sess, "data.bin", 3*protocol.ChunkSize)

	req := protocol.NewUploadChunkRequest("", fileID, 1, false, bytes.Repeat([]byte{1}, protocol.ChunkSize))
	resp, herr := h.Handle(sess, req)
	require.NoError(t, herr)
	assert.False(t, protocol.IsSuccess(resp))
	assert.Equal(t, StateAuthenticated, sess.State())

	// The aborted upload stays incomplete.
	listResp, herr := h.Handle(sess, protocol.NewPacket(protocol.FileListRequest, ""))
	require.NoError(t, herr)
	var listing protocol.FileListResultPayload
	require.NoError(t, protocol.UnmarshalPayload(listResp.Payload, &listing))
	require.Len(t, listing.Files, 1)
	assert.False(t, listing.Files[0].IsComplete)
}

func TestEarlyLastChunkAbortsTransfer(t *testing.T) {
	h, users := newTestHandlers(t)
	_, err := users.CreateUser("alice", "Secret1!", "")
	require.NoError(t, err)

	sess := newTestSession(t)
	login(t, h, sess, "alice", "Secret1!")
	fileID := uploadInit(t, h, sess, "data.bin", 3*protocol.ChunkSize)

	// Chunk 0 of 3 claiming to be the last must not mark the file complete.
	req := protocol.NewUploadChunkRequest("", fileID, 0, true, bytes.Repeat([]byte{1}, protocol.ChunkSize))
	resp, herr := h.Handle(sess, req)
	require.NoError(t, herr)
	assert.False(t, protocol.IsSuccess(resp))
	assert.Equal(t, StateAuthenticated, sess.State())

	listResp, herr := h.Handle(sess, protocol.NewPacket(protocol.FileListRequest, ""))
	require.NoError(t, herr)
	var listing protocol.FileListResultPayload
	require.NoError(t, protocol.UnmarshalPayload(listResp.Payload, &listing))
	require.Len(t, listing.Files, 1)
	assert.False(t, listing.Files[0].IsComplete)

	// And it is not downloadable.
	initReq, err := protocol.NewRequest(protocol.FileDownloadInitRequest, "", &protocol.DownloadInitPayload{FileID: fileID})
	require.NoError(t, err)
	dlResp, herr := h.Handle(sess, initReq)
	require.NoError(t, herr)
	assert.False(t, protocol.IsSuccess(dlResp))
	assert.Equal(t, StateAuthenticated, sess.State())
}

func TestUnexpectedCommandKeepsTransferState(t *testing.T) {
	h, users := newTestHandlers(t)
	_, err := users.CreateUser("alice", "Secret1!", "")
	require.NoError(t, err)

	sess := newTestSession(t)
	login(t, h, sess, "alice", "Secret1!")
	uploadInit(t, h, sess, "data.bin", 100)

	resp, herr := h.Handle(sess, protocol.NewPacket(protocol.FileListRequest, ""))
	require.NoError(t, herr)
	assert.False(t, protocol.IsSuccess(resp))
	assert.Contains(t, resp.Meta(protocol.MetaMessage), "Transfer(upload)")
	assert.Equal(t, StateTransferUpload, sess.State())
}

func TestDownloadFlowThroughHandlers(t *testing.T) {
	h, users := newTestHandlers(t)
	_, err := users.CreateUser("alice", "Secret1!", "")
	require.NoError(t, err)

	sess := newTestSession(t)
	login(t, h, sess, "alice", "Secret1!")

	content := []byte("small file body")
	fileID := uploadInit(t, h, sess, "note.txt", int64(len(content)))
	chunkReq := protocol.NewUploadChunkRequest("", fileID, 0, true, content)
	_, herr := h.Handle(sess, chunkReq)
	require.NoError(t, herr)
	_, herr = h.Handle(sess, protocol.NewPacket(protocol.FileUploadCompleteRequest, ""))
	require.NoError(t, herr)

	initReq, err := protocol.NewRequest(protocol.FileDownloadInitRequest, "", &protocol.DownloadInitPayload{FileID: fileID})
	require.NoError(t, err)
	initResp, herr := h.Handle(sess, initReq)
	require.NoError(t, herr)
	require.True(t, protocol.IsSuccess(initResp))
	assert.Equal(t, StateTransferDownload, sess.State())

	var meta protocol.DownloadInitResultPayload
	require.NoError(t, protocol.UnmarshalPayload(initResp.Payload, &meta))
	assert.Equal(t, "note.txt", meta.FileName)
	assert.Equal(t, 1, meta.TotalChunks)

	getReq := protocol.NewPacket(protocol.FileDownloadChunkRequest, "")
	getReq.SetMeta(protocol.MetaFileID, fileID)
	getReq.SetMeta(protocol.MetaChunkIndex, "0")
	getResp, herr := h.Handle(sess, getReq)
	require.NoError(t, herr)
	require.True(t, protocol.IsSuccess(getResp))
	assert.Equal(t, content, getResp.Payload)
	assert.Equal(t, "true", getResp.Meta(protocol.MetaIsLastChunk))

	doneResp, herr := h.Handle(sess, protocol.NewPacket(protocol.FileDownloadCompleteRequest, ""))
	require.NoError(t, herr)
	assert.True(t, protocol.IsSuccess(doneResp))
	assert.Equal(t, StateAuthenticated, sess.State())
}

func TestDisconnectingRejectsEverything(t *testing.T) {
	h, _ := newTestHandlers(t)
	sess := newTestSession(t)
	sess.SetDisconnecting()

	resp, herr := h.Handle(sess, protocol.NewPacket(protocol.LoginRequest, ""))
	require.NoError(t, herr)
	assert.False(t, protocol.IsSuccess(resp))
	assert.Contains(t, resp.Meta(protocol.MetaMessage), "disconnecting")
}

func TestCrossUserDeleteThroughHandlers(t *testing.T) {
	h, users := newTestHandlers(t)
	_, err := users.CreateUser("alice", "Secret1!", "")
	require.NoError(t, err)
	_, err = users.CreateUser("bob", "Secret2!", "")
	require.NoError(t, err)

	alice := newTestSession(t)
	login(t, h, alice, "alice", "Secret1!")
	content := []byte("alice's data")
	fileID := uploadInit(t, h, alice, "a.txt", int64(len(content)))
	_, herr := h.Handle(alice, protocol.NewUploadChunkRequest("", fileID, 0, true, content))
	require.NoError(t, herr)
	_, herr = h.Handle(alice, protocol.NewPacket(protocol.FileUploadCompleteRequest, ""))
	require.NoError(t, herr)

	bob := newTestSession(t)
	login(t, h, bob, "bob", "Secret2!")

	delReq, err := protocol.NewRequest(protocol.FileDeleteRequest, "", &protocol.FileDeletePayload{FileID: fileID})
	require.NoError(t, err)
	resp, herr := h.Handle(bob, delReq)
	require.NoError(t, herr)
	assert.False(t, protocol.IsSuccess(resp))
	assert.Equal(t, "resource not found", resp.Meta(protocol.MetaMessage))

	// Alice still sees her file.
	listResp, herr := h.Handle(alice, protocol.NewPacket(protocol.FileListRequest, ""))
	require.NoError(t, herr)
	var listing protocol.FileListResultPayload
	require.NoError(t, protocol.UnmarshalPayload(listResp.Payload, &listing))
	assert.Len(t, listing.Files, 1)
}
