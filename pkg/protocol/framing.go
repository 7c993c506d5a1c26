package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Framing selects how frames are delimited on a connection.
type Framing string

const (
	// FramingDelivery writes bare frames. Readers rely on frame shape and on
	// each successful GET response arriving in one read.
	FramingDelivery Framing = "delivery"

	// FramingLengthPrefixed puts a 4-byte big-endian length before every
	// frame in both directions. Both ends must be configured for it.
	FramingLengthPrefixed Framing = "length-prefixed"
)

// FramingModes lists every supported Framing value.
var FramingModes = []Framing{FramingDelivery, FramingLengthPrefixed}

const (
	frameHeaderSize = 4

	// MaxFrameSize bounds a length-prefixed frame.
	MaxFrameSize = 64 * 1024 * 1024
)

// WriteFrame writes one frame to w with a single Write call, adding the
// length header when framing is FramingLengthPrefixed.
func WriteFrame(w io.Writer, frame []byte, framing Framing) error {
	if framing != FramingLengthPrefixed {
		_, err := w.Write(frame)
		return err
	}

	if len(frame) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(frame))
	}
	buf := make([]byte, 0, frameHeaderSize+len(frame))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(frame)))
	buf = append(buf, frame...)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame from r.
// Includes protection against oversized frames.
func ReadFrame(r io.Reader) ([]byte, error) {
	lengthBuf := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lengthBuf)
	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame too large: %d bytes", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	return data, nil
}
