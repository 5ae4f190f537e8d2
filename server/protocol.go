package snipeserv

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	StatusRejected byte = 0x00
	StatusOK       byte = 0x01

	maxHeaderSize   = 64 << 10
	MaxArtifactSize = 1 << 30
)

var ErrRejected = errors.New("upload rejected by server")

// UploadHeader precedes every artifact on the wire, framed by a 4-byte
// big-endian length.
type UploadHeader struct {
	SessionID     string `json:"sessionId"`
	QuestionIndex int    `json:"questionIndex"`
	FileName      string `json:"fileName"`
	MimeType      string `json:"mimeType"`
	Size          int64  `json:"size"`
}

func (h UploadHeader) Validate() error {
	if _, err := uuid.Parse(h.SessionID); err != nil {
		return fmt.Errorf("invalid session id %q: %w", h.SessionID, err)
	}
	if h.QuestionIndex < 0 {
		return fmt.Errorf("invalid question index %d", h.QuestionIndex)
	}
	name := filepath.Base(h.FileName)
	if name != h.FileName || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid file name %q", h.FileName)
	}
	if h.Size < 0 || h.Size > MaxArtifactSize {
		return fmt.Errorf("invalid size %d", h.Size)
	}
	return nil
}

// Handshake sends the token and reads back the connection id.
func Handshake(rw io.ReadWriter, token string) (uuid.UUID, error) {
	var id uuid.UUID
	if _, err := rw.Write([]byte(token)); err != nil {
		return id, fmt.Errorf("failed to send token: %w", err)
	}
	if _, err := io.ReadFull(rw, id[:]); err != nil {
		return id, fmt.Errorf("failed to read connection id: %w", err)
	}
	return id, nil
}

// WriteUpload frames h and copies h.Size bytes of data after it.
func WriteUpload(w io.Writer, h UploadHeader, data io.Reader) error {
	header, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to encode upload header: %w", err)
	}

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(header)))
	if _, err := w.Write(length[:]); err != nil {
		return fmt.Errorf("failed to write header length: %w", err)
	}
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write upload header: %w", err)
	}
	if _, err := io.CopyN(w, data, h.Size); err != nil {
		return fmt.Errorf("failed to write upload data: %w", err)
	}
	return nil
}

// ReadStatus reads the server's reply to one upload.
func ReadStatus(r io.Reader) error {
	var status [1]byte
	if _, err := io.ReadFull(r, status[:]); err != nil {
		return fmt.Errorf("failed to read upload status: %w", err)
	}
	if status[0] != StatusOK {
		return ErrRejected
	}
	return nil
}

func readHeader(r io.Reader) (UploadHeader, error) {
	var h UploadHeader

	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return h, err
	}
	size := binary.BigEndian.Uint32(length[:])
	if size == 0 || size > maxHeaderSize {
		return h, fmt.Errorf("invalid header length %d", size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return h, fmt.Errorf("failed to read upload header: %w", err)
	}
	if err := json.Unmarshal(buf, &h); err != nil {
		return h, fmt.Errorf("failed to decode upload header: %w", err)
	}
	return h, nil
}
