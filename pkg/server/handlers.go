package server

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cubbyfs/cubby/internal/logger"
	"github.com/cubbyfs/cubby/pkg/files"
	"github.com/cubbyfs/cubby/pkg/identity"
	"github.com/cubbyfs/cubby/pkg/metadata"
	"github.com/cubbyfs/cubby/pkg/metrics"
	"github.com/cubbyfs/cubby/pkg/protocol"
)

// errCloseSession signals the connection loop to close the session after the
// current response has been written. It marks an orderly end of conversation
// (logout, login-failure limit), not a failure.
var errCloseSession = errors.New("close session")

// Handlers dispatches request packets against the session state machine and
// the domain services. One Handlers instance is shared by every connection.
type Handlers struct {
	users   *identity.Store
	files   *files.Service
	dirs    *files.DirectoryService
	metrics *metrics.ServerMetrics
	log     *slog.Logger
}

// NewHandlers creates the shared request dispatcher.
func NewHandlers(users *identity.Store, fileSvc *files.Service, dirSvc *files.DirectoryService, m *metrics.ServerMetrics, log *slog.Logger) *Handlers {
	return &Handlers{
		users:   users,
		files:   fileSvc,
		dirs:    dirSvc,
		metrics: m,
		log:     log,
	}
}

// Handle routes one request through the session's current state. The
// response is never nil. A returned error of errCloseSession asks the loop
// to close the connection after writing the response; any other error is
// fatal to the connection.
func (h *Handlers) Handle(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	state := sess.State()

	switch state {
	case StateAuthRequired:
		switch req.Command {
		case protocol.LoginRequest:
			return h.handleLogin(sess, req)
		case protocol.CreateAccountRequest:
			return h.handleCreateAccount(sess, req)
		default:
			return protocol.NewUnauthorizedResponse(req, "authentication required"), nil
		}

	case StateAuthenticated:
		if resp := h.checkUserID(sess, req); resp != nil {
			return resp, nil
		}
		switch req.Command {
		case protocol.LogoutRequest:
			return h.handleLogout(sess, req)
		case protocol.FileListRequest:
			return h.handleFileList(sess, req)
		case protocol.FileUploadInitRequest:
			return h.handleUploadInit(sess, req)
		case protocol.FileDownloadInitRequest:
			return h.handleDownloadInit(sess, req)
		case protocol.FileDeleteRequest:
			return h.handleFileDelete(sess, req)
		case protocol.FileMoveRequest:
			return h.handleFileMove(sess, req)
		case protocol.DirectoryContentsRequest:
			return h.handleDirectoryContents(sess, req)
		case protocol.DirectoryCreateRequest:
			return h.handleDirectoryCreate(sess, req)
		case protocol.DirectoryDeleteRequest:
			return h.handleDirectoryDelete(sess, req)
		default:
			return h.unexpectedCommand(state, req), nil
		}

	case StateTransferUpload:
		if resp := h.checkUserID(sess, req); resp != nil {
			return resp, nil
		}
		switch req.Command {
		case protocol.FileUploadChunkRequest:
			return h.handleUploadChunk(sess, req)
		case protocol.FileUploadCompleteRequest:
			return h.handleUploadComplete(sess, req)
		default:
			return h.unexpectedCommand(state, req), nil
		}

	case StateTransferDownload:
		if resp := h.checkUserID(sess, req); resp != nil {
			return resp, nil
		}
		switch req.Command {
		case protocol.FileDownloadChunkRequest:
			return h.handleDownloadChunk(sess, req)
		case protocol.FileDownloadCompleteRequest:
			return h.handleDownloadComplete(sess, req)
		default:
			return h.unexpectedCommand(state, req), nil
		}

	default: // StateDisconnecting
		return protocol.NewErrorResponse(req, "session is disconnecting"), nil
	}
}

// checkUserID rejects packets whose user id names a different user than the
// session. Empty ids on either side are allowed; clients may omit the field.
func (h *Handlers) checkUserID(sess *Session, req *protocol.Packet) *protocol.Packet {
	sessionUser := sess.UserID()
	if req.UserID == "" || sessionUser == "" || req.UserID == sessionUser {
		return nil
	}
	h.log.Warn("packet user id does not match session",
		logger.SessionID(sess.ID),
		logger.UserID(sessionUser),
		slog.String("packet_user_id", req.UserID))
	return protocol.NewErrorResponse(req, "packet user id does not match session user")
}

func (h *Handlers) unexpectedCommand(state State, req *protocol.Packet) *protocol.Packet {
	return protocol.NewErrorResponse(req,
		fmt.Sprintf("command %s not valid in state %s", req.Command, state))
}

func (h *Handlers) handleLogin(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	var payload protocol.LoginPayload
	if err := protocol.UnmarshalPayload(req.Payload, &payload); err != nil {
		return protocol.NewErrorResponse(req, "malformed login payload"), nil
	}
	if payload.Username == "" || payload.Password == "" {
		return protocol.NewErrorResponse(req, "username and password are required"), nil
	}

	user, err := h.users.Authenticate(payload.Username, payload.Password)
	if err != nil {
		h.metrics.AuthFailure()
		attempts, limitReached := sess.RecordLoginFailure()
		sess.log.Warn("login failed",
			logger.Username(payload.Username),
			slog.Int("attempts", attempts))

		if limitReached {
			resp := protocol.NewErrorResponse(req, "too many failed login attempts, disconnecting")
			return resp, errCloseSession
		}
		return protocol.NewErrorResponse(req, "invalid username or password"), nil
	}

	sess.Authenticate(user.ID, user.Username)
	sess.log.Info("login successful",
		logger.UserID(user.ID),
		logger.Username(user.Username))

	resp, err := protocol.NewResponse(req, true, "login successful",
		&protocol.StatusPayload{Success: true, Message: "login successful"})
	if err != nil {
		return nil, err
	}
	resp.UserID = user.ID
	return resp, nil
}

func (h *Handlers) handleCreateAccount(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	var payload protocol.CreateAccountPayload
	if err := protocol.UnmarshalPayload(req.Payload, &payload); err != nil {
		return protocol.NewErrorResponse(req, "malformed account payload"), nil
	}
	if payload.Username == "" || payload.Password == "" {
		return protocol.NewErrorResponse(req, "username and password are required"), nil
	}

	user, err := h.users.CreateUser(payload.Username, payload.Password, payload.Email)
	if err != nil {
		return h.accountFailure(req, err), nil
	}

	sess.log.Info("account created",
		logger.UserID(user.ID),
		logger.Username(user.Username))

	resp, err := protocol.NewResponse(req, true, "account created",
		&protocol.CreateAccountResultPayload{Success: true, Message: "account created", UserID: user.ID})
	return resp, err
}

func (h *Handlers) accountFailure(req *protocol.Packet, err error) *protocol.Packet {
	msg := "could not create account"
	switch {
	case errors.Is(err, identity.ErrDuplicateUser):
		msg = "username is already taken"
	case errors.Is(err, identity.ErrPasswordTooShort):
		msg = fmt.Sprintf("password must be at least %d characters", identity.MinPasswordLength)
	}
	resp, _ := protocol.NewResponse(req, false, msg,
		&protocol.CreateAccountResultPayload{Success: false, Message: msg})
	return resp
}

func (h *Handlers) handleLogout(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	sess.log.Info("logout", logger.UserID(sess.UserID()))
	resp, err := protocol.NewResponse(req, true, "logged out",
		&protocol.StatusPayload{Success: true, Message: "logged out"})
	if err != nil {
		return nil, err
	}
	return resp, errCloseSession
}

func (h *Handlers) handleFileList(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	records, err := h.files.ListFiles(sess.UserID())
	if err != nil {
		return h.failure(req, err), nil
	}

	entries := make([]protocol.FileEntry, 0, len(records))
	for _, f := range records {
		entries = append(entries, fileEntry(f))
	}
	return protocol.NewResponse(req, true, "",
		&protocol.FileListResultPayload{Success: true, Files: entries})
}

func (h *Handlers) handleUploadInit(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	var payload protocol.UploadInitPayload
	if err := protocol.UnmarshalPayload(req.Payload, &payload); err != nil {
		return protocol.NewErrorResponse(req, "malformed upload init payload"), nil
	}
	if payload.FileName == "" {
		return protocol.NewErrorResponse(req, "file name is required"), nil
	}

	directoryID := req.Meta(protocol.MetaDirectoryID)
	meta, err := h.files.InitializeUpload(sess.UserID(), payload.FileName, payload.FileSize, payload.ContentType, directoryID)
	if err != nil {
		resp, _ := protocol.NewResponse(req, false, failureMessage(err),
			&protocol.UploadInitResultPayload{Success: false, Message: failureMessage(err)})
		return resp, nil
	}

	sess.BeginTransfer(StateTransferUpload, meta)
	resp, rerr := protocol.NewResponse(req, true, "upload initialized",
		&protocol.UploadInitResultPayload{Success: true, FileID: meta.ID, Message: "upload initialized"})
	if rerr != nil {
		return nil, rerr
	}
	resp.SetMeta(protocol.MetaFileID, meta.ID)
	return resp, nil
}

func (h *Handlers) handleUploadChunk(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	fileID, chunkIndex, isLast, err := protocol.ChunkMeta(req)
	if err != nil {
		sess.EndTransfer()
		return protocol.NewErrorResponse(req, err.Error()), nil
	}

	transfer := sess.TransferFile()
	if transfer == nil || transfer.ID != fileID {
		sess.EndTransfer()
		return protocol.NewErrorResponse(req, "chunk file id does not match active transfer"), nil
	}

	if err := h.files.ProcessChunk(sess.UserID(), fileID, chunkIndex, isLast, req.Payload); err != nil {
		sess.EndTransfer()
		return protocol.NewErrorResponse(req, failureMessage(err)), nil
	}

	h.metrics.AddUploadBytes(len(req.Payload))
	return protocol.NewChunkAck(req, fileID, chunkIndex), nil
}

func (h *Handlers) handleUploadComplete(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	transfer := sess.TransferFile()
	sess.EndTransfer()
	if transfer == nil {
		return protocol.NewErrorResponse(req, "no active upload"), nil
	}

	if err := h.files.FinalizeUpload(sess.UserID(), transfer.ID); err != nil {
		return protocol.NewErrorResponse(req, failureMessage(err)), nil
	}

	resp, err := protocol.NewResponse(req, true, "upload complete",
		&protocol.StatusPayload{Success: true, Message: "upload complete"})
	if err != nil {
		return nil, err
	}
	resp.SetMeta(protocol.MetaFileID, transfer.ID)
	return resp, nil
}

func (h *Handlers) handleDownloadInit(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	var payload protocol.DownloadInitPayload
	if err := protocol.UnmarshalPayload(req.Payload, &payload); err != nil {
		return protocol.NewErrorResponse(req, "malformed download init payload"), nil
	}
	if payload.FileID == "" {
		return protocol.NewErrorResponse(req, "file id is required"), nil
	}

	meta, err := h.files.InitializeDownload(sess.UserID(), payload.FileID)
	if err != nil {
		msg := failureMessage(err)
		resp, _ := protocol.NewResponse(req, false, msg,
			&protocol.DownloadInitResultPayload{Success: false, FileID: payload.FileID, Message: msg})
		return resp, nil
	}

	sess.BeginTransfer(StateTransferDownload, meta)
	return protocol.NewResponse(req, true, "",
		&protocol.DownloadInitResultPayload{
			Success:     true,
			FileID:      meta.ID,
			FileName:    meta.FileName,
			FileSize:    meta.FileSize,
			ContentType: meta.ContentType,
			TotalChunks: meta.TotalChunks,
		})
}

func (h *Handlers) handleDownloadChunk(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	fileID, chunkIndex, _, err := protocol.ChunkMeta(req)
	if err != nil {
		sess.EndTransfer()
		return protocol.NewErrorResponse(req, err.Error()), nil
	}

	transfer := sess.TransferFile()
	if transfer == nil || transfer.ID != fileID {
		sess.EndTransfer()
		return protocol.NewErrorResponse(req, "chunk file id does not match active transfer"), nil
	}

	data, isLast, err := h.files.GetChunk(sess.UserID(), fileID, chunkIndex)
	if err != nil {
		sess.EndTransfer()
		return protocol.NewErrorResponse(req, failureMessage(err)), nil
	}

	h.metrics.AddDownloadBytes(len(data))
	return protocol.NewDownloadChunkResponse(req, fileID, chunkIndex, isLast, data), nil
}

func (h *Handlers) handleDownloadComplete(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	transfer := sess.TransferFile()
	sess.EndTransfer()
	if transfer == nil {
		return protocol.NewErrorResponse(req, "no active download"), nil
	}

	sess.log.Debug("download complete",
		logger.UserID(sess.UserID()),
		logger.FileID(transfer.ID))
	return protocol.NewResponse(req, true, "download complete",
		&protocol.StatusPayload{Success: true, Message: "download complete"})
}

func (h *Handlers) handleFileDelete(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	var payload protocol.FileDeletePayload
	if err := protocol.UnmarshalPayload(req.Payload, &payload); err != nil {
		return protocol.NewErrorResponse(req, "malformed delete payload"), nil
	}
	if payload.FileID == "" {
		return protocol.NewErrorResponse(req, "file id is required"), nil
	}

	if err := h.files.DeleteFile(sess.UserID(), payload.FileID); err != nil {
		return protocol.NewErrorResponse(req, failureMessage(err)), nil
	}
	return protocol.NewResponse(req, true, "file deleted",
		&protocol.StatusPayload{Success: true, Message: "file deleted"})
}

func (h *Handlers) handleFileMove(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	var payload protocol.FileMovePayload
	if err := protocol.UnmarshalPayload(req.Payload, &payload); err != nil {
		return protocol.NewErrorResponse(req, "malformed move payload"), nil
	}
	if len(payload.FileIDs) == 0 {
		return protocol.NewErrorResponse(req, "at least one file id is required"), nil
	}

	allMoved, err := h.files.MoveFilesToDirectory(sess.UserID(), payload.FileIDs, payload.TargetDirectoryID)
	if err != nil {
		return protocol.NewErrorResponse(req, failureMessage(err)), nil
	}
	if !allMoved {
		return protocol.NewErrorResponse(req, "one or more files could not be moved"), nil
	}
	return protocol.NewResponse(req, true, "files moved",
		&protocol.StatusPayload{Success: true, Message: "files moved"})
}

func (h *Handlers) handleDirectoryContents(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	var payload protocol.DirectoryContentsPayload
	if len(req.Payload) > 0 {
		if err := protocol.UnmarshalPayload(req.Payload, &payload); err != nil {
			return protocol.NewErrorResponse(req, "malformed directory contents payload"), nil
		}
	}

	subdirs, contained, err := h.dirs.GetContents(sess.UserID(), payload.DirectoryID)
	if err != nil {
		return protocol.NewErrorResponse(req, failureMessage(err)), nil
	}

	dirEntries := make([]protocol.DirectoryEntry, 0, len(subdirs))
	for _, d := range subdirs {
		dirEntries = append(dirEntries, protocol.DirectoryEntry{
			DirectoryID:       d.ID,
			Name:              d.Name,
			ParentDirectoryID: d.ParentDirectoryID,
			CreatedAt:         d.CreatedAt,
		})
	}
	fileEntries := make([]protocol.FileEntry, 0, len(contained))
	for _, f := range contained {
		fileEntries = append(fileEntries, fileEntry(f))
	}
	return protocol.NewResponse(req, true, "",
		&protocol.DirectoryContentsResultPayload{
			Success:     true,
			Directories: dirEntries,
			Files:       fileEntries,
		})
}

func (h *Handlers) handleDirectoryCreate(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	var payload protocol.DirectoryCreatePayload
	if err := protocol.UnmarshalPayload(req.Payload, &payload); err != nil {
		return protocol.NewErrorResponse(req, "malformed directory create payload"), nil
	}
	if payload.Name == "" {
		return protocol.NewErrorResponse(req, "directory name is required"), nil
	}

	dir, err := h.dirs.CreateDirectory(sess.UserID(), payload.Name, payload.ParentDirectoryID)
	if err != nil {
		msg := failureMessage(err)
		resp, _ := protocol.NewResponse(req, false, msg,
			&protocol.DirectoryCreateResultPayload{Success: false, Message: msg})
		return resp, nil
	}

	resp, rerr := protocol.NewResponse(req, true, "directory created",
		&protocol.DirectoryCreateResultPayload{Success: true, DirectoryID: dir.ID, Message: "directory created"})
	if rerr != nil {
		return nil, rerr
	}
	resp.SetMeta(protocol.MetaDirectoryID, dir.ID)
	return resp, nil
}

func (h *Handlers) handleDirectoryDelete(sess *Session, req *protocol.Packet) (*protocol.Packet, error) {
	var payload protocol.DirectoryDeletePayload
	if err := protocol.UnmarshalPayload(req.Payload, &payload); err != nil {
		return protocol.NewErrorResponse(req, "malformed directory delete payload"), nil
	}
	if payload.DirectoryID == "" {
		return protocol.NewErrorResponse(req, "directory id is required"), nil
	}

	if err := h.dirs.DeleteDirectory(sess.UserID(), payload.DirectoryID); err != nil {
		return protocol.NewErrorResponse(req, failureMessage(err)), nil
	}
	return protocol.NewResponse(req, true, "directory deleted",
		&protocol.StatusPayload{Success: true, Message: "directory deleted"})
}

func (h *Handlers) failure(req *protocol.Packet, err error) *protocol.Packet {
	return protocol.NewErrorResponse(req, failureMessage(err))
}

func fileEntry(f *metadata.FileMetadata) protocol.FileEntry {
	return protocol.FileEntry{
		FileID:      f.ID,
		FileName:    f.FileName,
		FileSize:    f.FileSize,
		ContentType: f.ContentType,
		DirectoryID: f.DirectoryID,
		IsComplete:  f.IsComplete,
		CreatedAt:   f.CreatedAt,
	}
}

// failureMessage maps service errors to the human-readable text carried in
// failure responses. Ownership failures surface as plain not-found so the
// text never confirms that a foreign resource exists.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, files.ErrChunkOutOfOrder):
		return err.Error()
	case errors.Is(err, files.ErrUnexpectedLastChunk):
		return err.Error()
	case errors.Is(err, files.ErrChunkSizeMismatch):
		return err.Error()
	case errors.Is(err, files.ErrUploadAlreadyComplete):
		return "upload is already complete"
	case errors.Is(err, files.ErrFileNotComplete):
		return "file upload is not complete"
	case errors.Is(err, files.ErrOffsetOutOfRange):
		return "chunk index out of range"
	case errors.Is(err, files.ErrInvalidFileSize):
		return "file size must be at least 1 byte"
	}

	switch metadata.CodeOf(err) {
	case metadata.ErrNotFound, metadata.ErrAccessDenied:
		return "resource not found"
	case metadata.ErrAlreadyExists:
		return err.Error()
	case metadata.ErrNotEmpty:
		return err.Error()
	case metadata.ErrInvalidArgument:
		return err.Error()
	case metadata.ErrIOError:
		return "internal storage error"
	}
	return err.Error()
}
