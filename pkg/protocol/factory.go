package protocol

import (
	"fmt"
	"strconv"
)

// NewRequest builds a request packet with a JSON payload. A nil payload
// leaves the packet payload empty.
func NewRequest(cmd Command, userID string, payload any) (*Packet, error) {
	p := NewPacket(cmd, userID)
	if payload != nil {
		data, err := MarshalPayload(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", cmd, err)
		}
		p.Payload = data
	}
	return p, nil
}

// NewResponse builds the canonical response packet for a request, carrying
// Success/Message metadata and an optional JSON payload. The response keeps
// the request's user id so handlers can correlate packets in logs.
func NewResponse(req *Packet, success bool, message string, payload any) (*Packet, error) {
	p := NewPacket(ResponseFor(req.Command), req.UserID)
	p.SetMeta(MetaSuccess, strconv.FormatBool(success))
	if message != "" {
		p.SetMeta(MetaMessage, message)
	}
	if payload != nil {
		data, err := MarshalPayload(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", p.Command, err)
		}
		p.Payload = data
	}
	return p, nil
}

// NewErrorResponse builds a failure response with a StatusPayload body.
// It never fails: the StatusPayload always marshals.
func NewErrorResponse(req *Packet, message string) *Packet {
	p, _ := NewResponse(req, false, message, &StatusPayload{Success: false, Message: message})
	return p
}

// NewUnauthorizedResponse builds an UNAUTHORIZED response for commands sent
// before authentication.
func NewUnauthorizedResponse(req *Packet, message string) *Packet {
	p := NewPacket(Unauthorized, req.UserID)
	p.SetMeta(MetaSuccess, "false")
	p.SetMeta(MetaMessage, message)
	data, _ := MarshalPayload(&StatusPayload{Success: false, Message: message})
	p.Payload = data
	return p
}

// NewUploadChunkRequest builds a FILE_UPLOAD_CHUNK_REQUEST. The payload is
// the raw chunk bytes; FileId, ChunkIndex, and IsLastChunk travel in metadata.
func NewUploadChunkRequest(userID, fileID string, chunkIndex int, isLast bool, data []byte) *Packet {
	p := NewPacket(FileUploadChunkRequest, userID)
	setChunkMeta(p, fileID, chunkIndex, isLast)
	p.Payload = data
	return p
}

// NewDownloadChunkResponse builds a FILE_DOWNLOAD_CHUNK_RESPONSE carrying
// the raw chunk bytes and chunk metadata.
func NewDownloadChunkResponse(req *Packet, fileID string, chunkIndex int, isLast bool, data []byte) *Packet {
	p := NewPacket(FileDownloadChunkResponse, req.UserID)
	p.SetMeta(MetaSuccess, "true")
	setChunkMeta(p, fileID, chunkIndex, isLast)
	p.Payload = data
	return p
}

// NewChunkAck builds the FILE_UPLOAD_CHUNK_RESPONSE acknowledging a chunk.
func NewChunkAck(req *Packet, fileID string, chunkIndex int) *Packet {
	p := NewPacket(FileUploadChunkResponse, req.UserID)
	p.SetMeta(MetaSuccess, "true")
	p.SetMeta(MetaFileID, fileID)
	p.SetMeta(MetaChunkIndex, strconv.Itoa(chunkIndex))
	return p
}

func setChunkMeta(p *Packet, fileID string, chunkIndex int, isLast bool) {
	p.SetMeta(MetaFileID, fileID)
	p.SetMeta(MetaChunkIndex, strconv.Itoa(chunkIndex))
	p.SetMeta(MetaIsLastChunk, strconv.FormatBool(isLast))
}

// ChunkMeta extracts FileId, ChunkIndex, and IsLastChunk from a packet's
// metadata. Returns an error naming the missing or malformed field.
func ChunkMeta(p *Packet) (fileID string, chunkIndex int, isLast bool, err error) {
	fileID, ok := p.MetaOK(MetaFileID)
	if !ok || fileID == "" {
		return "", 0, false, fmt.Errorf("missing %s metadata", MetaFileID)
	}
	idxStr, ok := p.MetaOK(MetaChunkIndex)
	if !ok {
		return "", 0, false, fmt.Errorf("missing %s metadata", MetaChunkIndex)
	}
	chunkIndex, err = strconv.Atoi(idxStr)
	if err != nil {
		return "", 0, false, fmt.Errorf("malformed %s metadata %q", MetaChunkIndex, idxStr)
	}
	if lastStr, ok := p.MetaOK(MetaIsLastChunk); ok {
		isLast, err = strconv.ParseBool(lastStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("malformed %s metadata %q", MetaIsLastChunk, lastStr)
		}
	}
	return fileID, chunkIndex, isLast, nil
}

// IsSuccess reports whether a response packet carries Success=true metadata.
func IsSuccess(p *Packet) bool {
	return p.Meta(MetaSuccess) == "true"
}
