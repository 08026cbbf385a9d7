package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cubbyfs/cubby/pkg/protocol"
)

// ProgressFunc is invoked after each completed chunk of a transfer.
type ProgressFunc func(completedChunks, totalChunks int)

// ListFiles returns every file owned by the logged-in user.
func (c *Client) ListFiles(ctx context.Context) ([]protocol.FileEntry, error) {
	resp, err := c.request(ctx, protocol.FileListRequest, nil)
	if err != nil {
		return nil, err
	}

	var result protocol.FileListResultPayload
	if err := protocol.UnmarshalPayload(resp.Payload, &result); err != nil {
		return nil, err
	}
	return result.Files, nil
}

// DeleteFile removes a file and its content.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	_, err := c.request(ctx, protocol.FileDeleteRequest, &protocol.FileDeletePayload{FileID: fileID})
	return err
}

// MoveFiles repoints files at a target directory. An empty target means the
// user root.
func (c *Client) MoveFiles(ctx context.Context, fileIDs []string, targetDirectoryID string) error {
	_, err := c.request(ctx, protocol.FileMoveRequest, &protocol.FileMovePayload{
		FileIDs:           fileIDs,
		TargetDirectoryID: targetDirectoryID,
	})
	return err
}

// UploadFile streams a local file to the server in fixed-size chunks and
// returns the server-assigned file id. directoryID targets a directory;
// empty means the user root. progress may be nil.
//
// The connection is held for the whole transfer: the protocol allows no
// interleaved requests while a transfer is active.
func (c *Client) UploadFile(ctx context.Context, localPath, directoryID string, progress ProgressFunc) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", localPath, err)
	}

	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	fileID, totalChunks, err := c.initUpload(ctx, filepath.Base(localPath), info.Size(), directoryID)
	if err != nil {
		return "", err
	}

	buf := make([]byte, protocol.ChunkSize)
	for idx := 0; idx < totalChunks; idx++ {
		n, err := io.ReadFull(f, buf)
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			err = nil
		}
		if err != nil {
			return "", fmt.Errorf("read chunk %d: %w", idx, err)
		}

		isLast := idx == totalChunks-1
		req := protocol.NewUploadChunkRequest(c.UserID(), fileID, idx, isLast, buf[:n])
		resp, err := c.roundTrip(ctx, req)
		if err != nil {
			return "", err
		}
		if !protocol.IsSuccess(resp) {
			return "", responseError(resp)
		}
		if progress != nil {
			progress(idx+1, totalChunks)
		}
	}

	completeReq, err := protocol.NewRequest(protocol.FileUploadCompleteRequest, c.UserID(), nil)
	if err != nil {
		return "", err
	}
	completeReq.SetMeta(protocol.MetaFileID, fileID)

	resp, err := c.roundTrip(ctx, completeReq)
	if err != nil {
		return "", err
	}
	if !protocol.IsSuccess(resp) {
		return "", responseError(resp)
	}
	return fileID, nil
}

func (c *Client) initUpload(ctx context.Context, fileName string, fileSize int64, directoryID string) (fileID string, totalChunks int, err error) {
	contentType := mime.TypeByExtension(filepath.Ext(fileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req, err := protocol.NewRequest(protocol.FileUploadInitRequest, c.UserID(), &protocol.UploadInitPayload{
		FileName:    fileName,
		FileSize:    fileSize,
		ContentType: contentType,
	})
	if err != nil {
		return "", 0, err
	}
	if directoryID != "" {
		req.SetMeta(protocol.MetaDirectoryID, directoryID)
	}

	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return "", 0, err
	}
	if !protocol.IsSuccess(resp) {
		return "", 0, responseError(resp)
	}

	var result protocol.UploadInitResultPayload
	if err := protocol.UnmarshalPayload(resp.Payload, &result); err != nil {
		return "", 0, err
	}
	if result.FileID == "" {
		return "", 0, fmt.Errorf("upload init response carries no file id")
	}

	total := int((fileSize + protocol.ChunkSize - 1) / protocol.ChunkSize)
	return result.FileID, total, nil
}

// DownloadFile streams a file from the server into destPath, overwriting any
// existing file. progress may be nil.
func (c *Client) DownloadFile(ctx context.Context, fileID, destPath string, progress ProgressFunc) error {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	meta, err := c.initDownload(ctx, fileID)
	if err != nil {
		return err
	}

	dest, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	defer func() { _ = dest.Close() }()

	var written int64
	for idx := 0; idx < meta.TotalChunks; idx++ {
		req := protocol.NewPacket(protocol.FileDownloadChunkRequest, c.UserID())
		req.SetMeta(protocol.MetaFileID, fileID)
		req.SetMeta(protocol.MetaChunkIndex, strconv.Itoa(idx))

		resp, err := c.roundTrip(ctx, req)
		if err != nil {
			return err
		}
		if !protocol.IsSuccess(resp) {
			return responseError(resp)
		}

		if _, err := dest.Write(resp.Payload); err != nil {
			return fmt.Errorf("write chunk %d: %w", idx, err)
		}
		written += int64(len(resp.Payload))
		if progress != nil {
			progress(idx+1, meta.TotalChunks)
		}
	}

	completeReq, err := protocol.NewRequest(protocol.FileDownloadCompleteRequest, c.UserID(), nil)
	if err != nil {
		return err
	}
	completeReq.SetMeta(protocol.MetaFileID, fileID)
	if _, err := c.roundTrip(ctx, completeReq); err != nil {
		return err
	}

	if written != meta.FileSize {
		return fmt.Errorf("downloaded %d bytes, expected %d", written, meta.FileSize)
	}
	return dest.Sync()
}

func (c *Client) initDownload(ctx context.Context, fileID string) (*protocol.DownloadInitResultPayload, error) {
	req, err := protocol.NewRequest(protocol.FileDownloadInitRequest, c.UserID(), &protocol.DownloadInitPayload{FileID: fileID})
	if err != nil {
		return nil, err
	}

	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	if !protocol.IsSuccess(resp) {
		return nil, responseError(resp)
	}

	var result protocol.DownloadInitResultPayload
	if err := protocol.UnmarshalPayload(resp.Payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
