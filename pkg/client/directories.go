package client

import (
	"context"

	"github.com/cubbyfs/cubby/pkg/protocol"
)

// CreateDirectory creates a directory under parentID (empty for the root)
// and returns the new directory id.
func (c *Client) CreateDirectory(ctx context.Context, name, parentID string) (string, error) {
	resp, err := c.request(ctx, protocol.DirectoryCreateRequest, &protocol.DirectoryCreatePayload{
		Name:              name,
		ParentDirectoryID: parentID,
	})
	if err != nil {
		return "", err
	}

	var result protocol.DirectoryCreateResultPayload
	if err := protocol.UnmarshalPayload(resp.Payload, &result); err != nil {
		return "", err
	}
	return result.DirectoryID, nil
}

// DeleteDirectory removes an empty directory.
func (c *Client) DeleteDirectory(ctx context.Context, directoryID string) error {
	_, err := c.request(ctx, protocol.DirectoryDeleteRequest, &protocol.DirectoryDeletePayload{
		DirectoryID: directoryID,
	})
	return err
}

// DirectoryContents lists the subdirectories and files directly inside a
// directory (empty id for the user root).
func (c *Client) DirectoryContents(ctx context.Context, directoryID string) ([]protocol.DirectoryEntry, []protocol.FileEntry, error) {
	resp, err := c.request(ctx, protocol.DirectoryContentsRequest, &protocol.DirectoryContentsPayload{
		DirectoryID: directoryID,
	})
	if err != nil {
		return nil, nil, err
	}

	var result protocol.DirectoryContentsResultPayload
	if err := protocol.UnmarshalPayload(resp.Payload, &result); err != nil {
		return nil, nil, err
	}
	return result.Directories, result.Files, nil
}
