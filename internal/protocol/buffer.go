// Package protocol implements the wire layer of the proxied block game
// protocol: variable-length integers, frame splitting with optional zlib
// compression, the per-direction stream cipher, and the phase/version-keyed
// packet id registry. All multi-byte values are big-endian.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/n90p/minecraft-world-downloader/internal/nbt"
)

// ErrTruncated is returned when a packet body ends before a declared value.
// It is scoped to the unit being decoded; the surrounding stream stays valid.
var ErrTruncated = errors.New("protocol: truncated data")

// maxStringLen bounds string reads so a corrupt length prefix cannot force
// a huge allocation.
const maxStringLen = 1 << 16

// Buffer is a cursor over one packet body. All reads fail with ErrTruncated
// rather than panicking when the body is exhausted.
type Buffer struct {
	data []byte
	off  int
}

// NewBuffer wraps a packet body. The buffer does not copy data.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int { return len(b.data) - b.off }

// Position returns the read offset.
func (b *Buffer) Position() int { return b.off }

// Skip advances the cursor n bytes.
func (b *Buffer) Skip(n int) error {
	if n < 0 || b.off+n > len(b.data) {
		return fmt.Errorf("%w: skip %d with %d remaining", ErrTruncated, n, b.Remaining())
	}
	b.off += n
	return nil
}

// Bytes reads n raw bytes.
func (b *Buffer) Bytes(n int) ([]byte, error) {
	if n < 0 || b.off+n > len(b.data) {
		return nil, fmt.Errorf("%w: read %d with %d remaining", ErrTruncated, n, b.Remaining())
	}
	out := b.data[b.off : b.off+n]
	b.off += n
	return out, nil
}

// Rest returns everything after the cursor without consuming it.
func (b *Buffer) Rest() []byte { return b.data[b.off:] }

func (b *Buffer) Byte() (byte, error) {
	if b.off >= len(b.data) {
		return 0, ErrTruncated
	}
	v := b.data[b.off]
	b.off++
	return v, nil
}

func (b *Buffer) Bool() (bool, error) {
	v, err := b.Byte()
	return v != 0, err
}

func (b *Buffer) Short() (int16, error) {
	raw, err := b.Bytes(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(raw)), nil
}

func (b *Buffer) UShort() (uint16, error) {
	raw, err := b.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(raw), nil
}

func (b *Buffer) Int() (int32, error) {
	raw, err := b.Bytes(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(raw)), nil
}

func (b *Buffer) Long() (int64, error) {
	raw, err := b.Bytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

// VarInt reads a 7-bit-per-byte variable-length integer of at most 5 bytes.
func (b *Buffer) VarInt() (int32, error) {
	var result uint32
	for shift := 0; shift < 35; shift += 7 {
		v, err := b.Byte()
		if err != nil {
			return 0, err
		}
		result |= uint32(v&0x7F) << shift
		if v&0x80 == 0 {
			return int32(result), nil
		}
	}
	return 0, errors.New("protocol: varint exceeds 5 bytes")
}

// VarLong reads a variable-length integer of at most 10 bytes.
func (b *Buffer) VarLong() (int64, error) {
	var result uint64
	for shift := 0; shift < 70; shift += 7 {
		v, err := b.Byte()
		if err != nil {
			return 0, err
		}
		result |= uint64(v&0x7F) << shift
		if v&0x80 == 0 {
			return int64(result), nil
		}
	}
	return 0, errors.New("protocol: varlong exceeds 10 bytes")
}

// String reads a varint-prefixed UTF-8 string.
func (b *Buffer) String() (string, error) {
	n, err := b.VarInt()
	if err != nil {
		return "", err
	}
	if n < 0 || n > maxStringLen {
		return "", fmt.Errorf("protocol: string length %d out of range", n)
	}
	raw, err := b.Bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// LongArray reads a varint-prefixed array of 64-bit words, the backing
// storage of bit-packed section data.
func (b *Buffer) LongArray() ([]uint64, error) {
	n, err := b.VarInt()
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n)*8 > b.Remaining() {
		return nil, fmt.Errorf("%w: long array of %d words with %d bytes remaining",
			ErrTruncated, n, b.Remaining())
	}
	out := make([]uint64, n)
	for i := range out {
		v, err := b.Long()
		if err != nil {
			return nil, err
		}
		out[i] = uint64(v)
	}
	return out, nil
}

// NBT reads one typed-tree root. network selects the nameless framing used
// since 1.20.2.
func (b *Buffer) NBT(network bool) (nbt.Tag, error) {
	r := bytes.NewReader(b.data[b.off:])
	before := r.Len()

	var tag nbt.Tag
	var err error
	if network {
		tag, err = nbt.ReadNetwork(r)
	} else {
		_, tag, err = nbt.Read(r)
	}
	if err != nil {
		return nil, err
	}
	b.off += before - r.Len()
	return tag, nil
}

// AppendVarInt appends the varint encoding of v to dst.
func AppendVarInt(dst []byte, v int32) []byte {
	u := uint32(v)
	for {
		if u&^0x7F == 0 {
			return append(dst, byte(u))
		}
		dst = append(dst, byte(u&0x7F|0x80))
		u >>= 7
	}
}

// VarIntLen returns the encoded size of v in bytes.
func VarIntLen(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}
