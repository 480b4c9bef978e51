package discord

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const (
	OpHandshake int32 = 0
	OpFrame     int32 = 1

	headerSize = 8

	// MaxFrameSize bounds the payload a peer may declare. Activity payloads are a
	// few kilobytes at most.
	MaxFrameSize = 1 << 20
)

var ErrInvalidFrameLength = errors.New("invalid discord ipc frame length")

// WriteFrame writes one IPC frame: a little endian int32 opcode, a little endian
// int32 payload length and then the payload itself.
func WriteFrame(w io.Writer, opcode int32, payload []byte) error {
	frame := make([]byte, headerSize, headerSize+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(opcode))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(int32(len(payload))))
	frame = append(frame, payload...)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write ipc frame: %w", err)
	}
	return nil
}

func ReadFrame(r io.Reader) (int32, []byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, fmt.Errorf("failed to read ipc frame header: %w", err)
	}
	opcode := int32(binary.LittleEndian.Uint32(header[0:4]))
	length := int32(binary.LittleEndian.Uint32(header[4:8]))
	if length < 0 || length > MaxFrameSize {
		return 0, nil, fmt.Errorf("%w: %d", ErrInvalidFrameLength, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("failed to read ipc frame payload: %w", err)
	}

	if opcode != OpFrame && opcode != OpHandshake {
		slog.Warn("Unexpected discord ipc opcode", slog.Int("opcode", int(opcode)))
	}
	return opcode, payload, nil
}
