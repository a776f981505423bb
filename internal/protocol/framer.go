package protocol

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize caps the declared length of a single frame. A larger value is
// a protocol violation: the stream can no longer be trusted to be aligned.
const MaxFrameSize = 1 << 21

// NoCompression marks the threshold of a connection that has not negotiated
// compression.
const NoCompression = -1

// ErrProtocolViolation marks a framing-level inconsistency (impossible
// length, garbage compression header). Unlike decode-local errors it is not
// recoverable: the session owning the stream must be torn down.
var ErrProtocolViolation = errors.New("protocol: stream violation")

// Framer incrementally splits one direction's byte stream into frames. Bytes
// are appended as they arrive off the socket; complete frames are popped as
// they become available. The framer never blocks, so the relay loop can feed
// it inline without affecting forwarding.
type Framer struct {
	buf       bytes.Buffer
	threshold int
}

// NewFramer returns a framer with compression disabled.
func NewFramer() *Framer {
	return &Framer{threshold: NoCompression}
}

// SetThreshold records the negotiated compression threshold. Frames longer
// than the threshold carry an inner uncompressed-length varint and a zlib
// body. A negative value disables compression handling.
func (f *Framer) SetThreshold(threshold int) {
	f.threshold = threshold
}

// Threshold returns the current compression threshold.
func (f *Framer) Threshold() int { return f.threshold }

// Feed appends raw (already decrypted) stream bytes.
func (f *Framer) Feed(p []byte) {
	f.buf.Write(p)
}

// Pending returns the number of buffered bytes not yet consumed by Next.
func (f *Framer) Pending() int { return f.buf.Len() }

// Drain removes and returns every buffered byte not yet consumed by Next.
// Used when a cipher boundary lands mid-buffer: bytes behind the boundary
// were fed before the transform existed and must be re-fed through it.
func (f *Framer) Drain() []byte {
	out := make([]byte, f.buf.Len())
	copy(out, f.buf.Bytes())
	f.buf.Reset()
	return out
}

// Next pops one complete frame and returns its plaintext payload (packet id
// plus body). It returns (nil, nil) when no complete frame is buffered yet.
// ErrProtocolViolation means the stream is unrecoverable; any other error is
// scoped to the returned frame.
func (f *Framer) Next() ([]byte, error) {
	data := f.buf.Bytes()

	length, lenSize, err := peekVarInt(data)
	if err != nil {
		if errors.Is(err, errVarIntIncomplete) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: bad frame length: %v", ErrProtocolViolation, err)
	}
	if length < 0 || length > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame length %d", ErrProtocolViolation, length)
	}
	if len(data) < lenSize+int(length) {
		return nil, nil
	}

	frame := make([]byte, length)
	copy(frame, data[lenSize:lenSize+int(length)])
	f.buf.Next(lenSize + int(length))

	// Once compression is negotiated every frame carries the inner
	// uncompressed-length varint, zero marking a plain body.
	if f.threshold >= 0 {
		return inflateFrame(frame)
	}
	return frame, nil
}

// inflateFrame strips the inner uncompressed-length varint and inflates the
// zlib body to exactly that many bytes.
func inflateFrame(frame []byte) ([]byte, error) {
	b := NewBuffer(frame)
	uncompressed, err := b.VarInt()
	if err != nil {
		return nil, fmt.Errorf("%w: missing uncompressed length: %v", ErrProtocolViolation, err)
	}
	if uncompressed == 0 {
		// Length zero declares the body already plain.
		return b.Rest(), nil
	}
	if uncompressed < 0 || uncompressed > MaxFrameSize {
		return nil, fmt.Errorf("%w: uncompressed length %d", ErrProtocolViolation, uncompressed)
	}

	zr, err := zlib.NewReader(bytes.NewReader(b.Rest()))
	if err != nil {
		return nil, fmt.Errorf("%w: bad zlib header: %v", ErrProtocolViolation, err)
	}
	defer zr.Close()

	out := make([]byte, uncompressed)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("%w: inflate: %v", ErrTruncated, err)
	}
	return out, nil
}

var errVarIntIncomplete = errors.New("protocol: varint incomplete")

// peekVarInt decodes a varint from the head of data without consuming it,
// returning the value and its encoded size.
func peekVarInt(data []byte) (int32, int, error) {
	var result uint32
	for i := 0; i < 5; i++ {
		if i >= len(data) {
			return 0, 0, errVarIntIncomplete
		}
		result |= uint32(data[i]&0x7F) << (7 * i)
		if data[i]&0x80 == 0 {
			return int32(result), i + 1, nil
		}
	}
	return 0, 0, errors.New("protocol: varint exceeds 5 bytes")
}

// EncodeFrame builds a wire frame around a plaintext payload, honoring the
// threshold rule Next applies on the read side. Used by tests and by the
// capture replay tooling; the proxy itself never re-encodes traffic.
func EncodeFrame(payload []byte, threshold int) ([]byte, error) {
	body := payload
	if threshold >= 0 {
		if len(payload) > threshold {
			var inner bytes.Buffer
			inner.Write(AppendVarInt(nil, int32(len(payload))))
			zw := zlib.NewWriter(&inner)
			if _, err := zw.Write(payload); err != nil {
				return nil, err
			}
			if err := zw.Close(); err != nil {
				return nil, err
			}
			body = inner.Bytes()
		} else {
			body = append(AppendVarInt(nil, 0), payload...)
		}
	}
	out := AppendVarInt(nil, int32(len(body)))
	return append(out, body...), nil
}
