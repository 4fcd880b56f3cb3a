// internal/protocol/framing.go
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxPayloadSize bounds a single frame. Every legal message is a handful of bytes,
// so anything larger means the stream is misaligned or hostile.
const MaxPayloadSize = 1024

const headerSize = 4

var (
	// ErrConnectionClosed signals end-of-stream: the peer went away before a full frame arrived.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrMalformedMessage signals a frame or payload that violates the framing contract.
	ErrMalformedMessage = errors.New("malformed message")
)

// WriteFrame writes payload prefixed by its 4-byte big-endian length in a single Write call.
func WriteFrame(w io.Writer, payload string) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrMalformedMessage, len(payload), MaxPayloadSize)
	}
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf[:headerSize], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return nil
}

// ReadFrame reads exactly one frame and returns its payload.
// A short read at any point is reported as ErrConnectionClosed.
func ReadFrame(r io.Reader) (string, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", fmt.Errorf("%w: reading header: %v", ErrConnectionClosed, err)
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxPayloadSize {
		return "", fmt.Errorf("%w: declared length %d exceeds %d", ErrMalformedMessage, size, MaxPayloadSize)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", fmt.Errorf("%w: reading %d byte payload: %v", ErrConnectionClosed, size, err)
	}
	if !utf8.Valid(payload) {
		return "", fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedMessage)
	}
	return string(payload), nil
}
