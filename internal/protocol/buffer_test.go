package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/n90p/minecraft-world-downloader/internal/nbt"
)

func TestVarIntRoundTrip(t *testing.T) {
	tests := []struct {
		value int32
		size  int
	}{
		{0, 1},
		{1, 1},
		{127, 1},
		{128, 2},
		{255, 2},
		{16383, 2},
		{16384, 3},
		{2097151, 3},
		{2147483647, 5},
		{-1, 5},
		{-2147483648, 5},
	}

	for _, tt := range tests {
		raw := AppendVarInt(nil, tt.value)
		if len(raw) != tt.size {
			t.Errorf("AppendVarInt(%d) encoded %d bytes, want %d", tt.value, len(raw), tt.size)
		}
		if got := VarIntLen(tt.value); got != tt.size {
			t.Errorf("VarIntLen(%d) = %d, want %d", tt.value, got, tt.size)
		}

		got, err := NewBuffer(raw).VarInt()
		if err != nil {
			t.Fatalf("VarInt(%d): %v", tt.value, err)
		}
		if got != tt.value {
			t.Errorf("VarInt = %d, want %d", got, tt.value)
		}
	}
}

func TestVarIntRejectsOverlong(t *testing.T) {
	_, err := NewBuffer([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}).VarInt()
	if err == nil {
		t.Error("6 byte varint accepted")
	}
}

func TestVarIntTruncated(t *testing.T) {
	_, err := NewBuffer([]byte{0x80}).VarInt()
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestVarLong(t *testing.T) {
	tests := []int64{0, 1, 127, 128, 1 << 40, -1, -9223372036854775808}

	for _, want := range tests {
		// Encode by hand, low 7 bits first.
		var raw []byte
		u := uint64(want)
		for {
			if u&^0x7F == 0 {
				raw = append(raw, byte(u))
				break
			}
			raw = append(raw, byte(u&0x7F|0x80))
			u >>= 7
		}

		got, err := NewBuffer(raw).VarLong()
		if err != nil {
			t.Fatalf("VarLong(%d): %v", want, err)
		}
		if got != want {
			t.Errorf("VarLong = %d, want %d", got, want)
		}
	}
}

func TestFixedWidthReads(t *testing.T) {
	raw := []byte{
		0x01,       // byte
		0x00,       // bool false
		0xFF, 0xFE, // short -2
		0x80, 0x00, // ushort 32768
		0xFF, 0xFF, 0xFF, 0xFF, // int -1
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, // long 256
	}
	b := NewBuffer(raw)

	if v, err := b.Byte(); err != nil || v != 1 {
		t.Errorf("Byte = %d, %v", v, err)
	}
	if v, err := b.Bool(); err != nil || v {
		t.Errorf("Bool = %v, %v", v, err)
	}
	if v, err := b.Short(); err != nil || v != -2 {
		t.Errorf("Short = %d, %v", v, err)
	}
	if v, err := b.UShort(); err != nil || v != 32768 {
		t.Errorf("UShort = %d, %v", v, err)
	}
	if v, err := b.Int(); err != nil || v != -1 {
		t.Errorf("Int = %d, %v", v, err)
	}
	if v, err := b.Long(); err != nil || v != 256 {
		t.Errorf("Long = %d, %v", v, err)
	}
	if b.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", b.Remaining())
	}

	if _, err := b.Byte(); !errors.Is(err, ErrTruncated) {
		t.Errorf("read past end = %v, want ErrTruncated", err)
	}
}

func TestString(t *testing.T) {
	raw := AppendVarInt(nil, 5)
	raw = append(raw, "hello"...)

	got, err := NewBuffer(raw).String()
	if err != nil || got != "hello" {
		t.Errorf("String = %q, %v", got, err)
	}

	// Declared longer than the body.
	raw = AppendVarInt(nil, 10)
	raw = append(raw, "short"...)
	if _, err := NewBuffer(raw).String(); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}

	// Absurd declared length fails before allocating.
	raw = AppendVarInt(nil, 1<<24)
	if _, err := NewBuffer(raw).String(); err == nil {
		t.Error("oversized string length accepted")
	}
}

func TestLongArray(t *testing.T) {
	want := []uint64{0, 1, 1<<63 | 5}

	raw := AppendVarInt(nil, int32(len(want)))
	for _, v := range want {
		raw = append(raw,
			byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
			byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}

	got, err := NewBuffer(raw).LongArray()
	if err != nil {
		t.Fatalf("LongArray: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("word %d = %d, want %d", i, got[i], want[i])
		}
	}

	// Count larger than the remaining bytes fails up front.
	raw = AppendVarInt(nil, 1000)
	if _, err := NewBuffer(raw).LongArray(); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestSkipAndRest(t *testing.T) {
	b := NewBuffer([]byte{1, 2, 3, 4, 5})

	if err := b.Skip(2); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if b.Position() != 2 {
		t.Errorf("Position = %d, want 2", b.Position())
	}
	if !bytes.Equal(b.Rest(), []byte{3, 4, 5}) {
		t.Errorf("Rest = %v, want [3 4 5]", b.Rest())
	}
	// Rest does not consume.
	if b.Remaining() != 3 {
		t.Errorf("Remaining = %d, want 3", b.Remaining())
	}

	if err := b.Skip(4); !errors.Is(err, ErrTruncated) {
		t.Errorf("Skip past end = %v, want ErrTruncated", err)
	}
}

func TestBufferNBT(t *testing.T) {
	c := nbt.NewCompound()
	c.Set("height", nbt.Int(42))

	var enc bytes.Buffer
	if err := nbt.Write(&enc, "", c); err != nil {
		t.Fatalf("encode: %v", err)
	}
	trailer := []byte{0xAB, 0xCD}
	raw := append(enc.Bytes(), trailer...)

	b := NewBuffer(raw)
	tag, err := b.NBT(false)
	if err != nil {
		t.Fatalf("NBT: %v", err)
	}
	if !nbt.Equal(tag, c) {
		t.Errorf("tag = %s, want %s", nbt.Canonical(tag), nbt.Canonical(c))
	}
	// The cursor must land exactly on the first byte after the tree.
	if !bytes.Equal(b.Rest(), trailer) {
		t.Errorf("Rest = %v, want %v", b.Rest(), trailer)
	}
}
