package nbt

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func sampleCompound() *Compound {
	c := NewCompound()
	c.Set("name", String("stone"))
	c.Set("count", Int(64))
	c.Set("weight", Double(0.5))
	c.Set("flags", ByteArray{1, 0, 1})
	c.Set("heights", LongArray{-1, 0, 1 << 40})

	inner := NewCompound()
	inner.Set("facing", String("north"))
	inner.Set("waterlogged", Byte(0))
	c.Set("properties", inner)

	c.Set("tags", &List{ElementType: TagString, Elems: []Tag{String("a"), String("b")}})
	return c
}

func TestNamedRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := sampleCompound()

	if err := Write(&buf, "root", want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	name, got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if name != "root" {
		t.Errorf("root name = %q, want %q", name, "root")
	}
	if !Equal(want, got) {
		t.Errorf("round trip mismatch:\n got %s\nwant %s", Canonical(got), Canonical(want))
	}
}

func TestNetworkRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := sampleCompound()

	if err := WriteNetwork(&buf, want); err != nil {
		t.Fatalf("WriteNetwork: %v", err)
	}

	got, err := ReadNetwork(&buf)
	if err != nil {
		t.Fatalf("ReadNetwork: %v", err)
	}
	if !Equal(want, got) {
		t.Errorf("round trip mismatch:\n got %s\nwant %s", Canonical(got), Canonical(want))
	}
}

func TestNetworkFramingOmitsRootName(t *testing.T) {
	c := NewCompound()
	c.Set("k", Byte(1))

	var named, network bytes.Buffer
	if err := Write(&named, "", c); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := WriteNetwork(&network, c); err != nil {
		t.Fatalf("WriteNetwork: %v", err)
	}

	// Named framing carries a two-byte length for the (empty) root name.
	if named.Len() != network.Len()+2 {
		t.Errorf("named len = %d, network len = %d, want a 2 byte difference",
			named.Len(), network.Len())
	}
}

func TestNilRootEncodesAsEnd(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "ignored", nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0}) {
		t.Errorf("nil root = %v, want single end byte", buf.Bytes())
	}

	_, tag, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if tag != nil {
		t.Errorf("Read of end root = %v, want nil", tag)
	}
}

func TestEqualIgnoresCompoundKeyOrder(t *testing.T) {
	a := NewCompound()
	a.Set("x", Int(1))
	a.Set("y", Int(2))

	b := NewCompound()
	b.Set("y", Int(2))
	b.Set("x", Int(1))

	if !Equal(a, b) {
		t.Error("Equal = false for same entries in different insertion order")
	}
	if Canonical(a) != Canonical(b) {
		t.Errorf("Canonical differs for equal compounds: %s vs %s", Canonical(a), Canonical(b))
	}
}

func TestEqualDistinguishes(t *testing.T) {
	tests := []struct {
		name string
		a, b Tag
	}{
		{"value", Int(1), Int(2)},
		{"variant", Int(1), Long(1)},
		{"array content", IntArray{1, 2}, IntArray{1, 3}},
		{"array length", LongArray{1}, LongArray{1, 2}},
		{
			"list order",
			&List{ElementType: TagInt, Elems: []Tag{Int(1), Int(2)}},
			&List{ElementType: TagInt, Elems: []Tag{Int(2), Int(1)}},
		},
	}

	for _, tt := range tests {
		if Equal(tt.a, tt.b) {
			t.Errorf("%s: Equal = true, want false", tt.name)
		}
	}
}

func TestSetReplacesInPlace(t *testing.T) {
	c := NewCompound()
	c.Set("a", Int(1))
	c.Set("b", Int(2))
	c.Set("a", Int(3))

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	keys := c.Keys()
	if keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys = %v, want [a b]", keys)
	}
	if v, _ := c.Get("a"); v != Int(3) {
		t.Errorf("Get(a) = %v, want 3", v)
	}
}

func TestReadRejectsDuplicateKeys(t *testing.T) {
	c := NewCompound()
	c.Set("k", Int(1))
	var buf bytes.Buffer
	if err := Write(&buf, "", c); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Duplicate the entry by splicing the payload before the closing end tag.
	raw := buf.Bytes()
	entry := raw[3 : len(raw)-1]
	forged := append([]byte{}, raw[:len(raw)-1]...)
	forged = append(forged, entry...)
	forged = append(forged, 0)

	if _, _, err := Read(bytes.NewReader(forged)); err == nil {
		t.Error("Read accepted a compound with duplicate keys")
	}
}

func TestReadRejectsInvalidTagType(t *testing.T) {
	_, _, err := Read(bytes.NewReader([]byte{0x7F}))
	if !errors.Is(err, ErrInvalidTagType) {
		t.Errorf("err = %v, want ErrInvalidTagType", err)
	}
}

func TestReadRejectsExcessiveDepth(t *testing.T) {
	// type byte + empty name, then nested "a" compounds well past the limit.
	raw := []byte{byte(TagCompound), 0, 0}
	for i := 0; i < maxDepth+2; i++ {
		raw = append(raw, byte(TagCompound), 0, 1, 'a')
	}

	_, _, err := Read(bytes.NewReader(raw))
	if !errors.Is(err, ErrTooDeep) {
		t.Errorf("err = %v, want ErrTooDeep", err)
	}
}

func TestReadTruncatedInput(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "root", sampleCompound()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	raw := buf.Bytes()

	for _, cut := range []int{1, 5, len(raw) / 2, len(raw) - 1} {
		if _, _, err := Read(bytes.NewReader(raw[:cut])); err == nil {
			t.Errorf("Read of %d/%d bytes succeeded, want error", cut, len(raw))
		}
	}
}

func TestEmptyListRoundTrip(t *testing.T) {
	c := NewCompound()
	c.Set("empty", &List{ElementType: TagEnd})

	var buf bytes.Buffer
	if err := Write(&buf, "", c); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !Equal(c, got) {
		t.Errorf("empty list mismatch: got %s", Canonical(got))
	}
}

func TestReadStopsAtRootEnd(t *testing.T) {
	c := NewCompound()
	c.Set("k", Int(7))

	var buf bytes.Buffer
	if err := Write(&buf, "", c); err != nil {
		t.Fatalf("Write: %v", err)
	}
	trailing := []byte{0xDE, 0xAD}
	buf.Write(trailing)

	r := bytes.NewReader(buf.Bytes())
	if _, _, err := Read(r); err != nil {
		t.Fatalf("Read: %v", err)
	}
	rest, _ := io.ReadAll(r)
	if !bytes.Equal(rest, trailing) {
		t.Errorf("reader consumed past root end: rest = %v, want %v", rest, trailing)
	}
}
