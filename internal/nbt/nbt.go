// Package nbt implements the typed data tree used by the block game protocol
// for structured metadata: heightmaps, block entities, and block state
// property sets. Tags form a closed set of variants so every decode path can
// switch exhaustively over TagType.
package nbt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
)

// TagType identifies the variant of a Tag as encoded on the wire.
type TagType byte

const (
	TagEnd TagType = iota
	TagByte
	TagShort
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagByteArray
	TagString
	TagList
	TagCompound
	TagIntArray
	TagLongArray
)

// maxDepth bounds nesting of lists/compounds so a malformed packet cannot
// drive the reader into unbounded recursion.
const maxDepth = 64

var (
	ErrInvalidTagType = errors.New("nbt: invalid tag type")
	ErrTooDeep        = errors.New("nbt: nesting exceeds maximum depth")
)

// Tag is one node of the typed data tree.
type Tag interface {
	Type() TagType
}

type Byte int8
type Short int16
type Int int32
type Long int64
type Float float32
type Double float64
type String string
type ByteArray []byte
type IntArray []int32
type LongArray []int64

func (Byte) Type() TagType      { return TagByte }
func (Short) Type() TagType     { return TagShort }
func (Int) Type() TagType       { return TagInt }
func (Long) Type() TagType      { return TagLong }
func (Float) Type() TagType     { return TagFloat }
func (Double) Type() TagType    { return TagDouble }
func (String) Type() TagType    { return TagString }
func (ByteArray) Type() TagType { return TagByteArray }
func (IntArray) Type() TagType  { return TagIntArray }
func (LongArray) Type() TagType { return TagLongArray }

// List is a homogeneous sequence of tags. ElementType is authoritative;
// an empty list may carry TagEnd as its element type.
type List struct {
	ElementType TagType
	Elems       []Tag
}

func (*List) Type() TagType { return TagList }

// Compound is a named mapping of tags. Keys are unique; insertion order is
// preserved for deterministic encoding but is not part of identity.
type Compound struct {
	keys   []string
	values map[string]Tag
}

func (*Compound) Type() TagType { return TagCompound }

// NewCompound returns an empty compound.
func NewCompound() *Compound {
	return &Compound{values: make(map[string]Tag)}
}

// Set stores a tag under key, replacing any existing entry in place.
func (c *Compound) Set(key string, tag Tag) {
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = tag
}

// Get returns the tag stored under key.
func (c *Compound) Get(key string) (Tag, bool) {
	t, ok := c.values[key]
	return t, ok
}

// GetCompound returns the child compound under key, or nil if absent or of
// a different variant.
func (c *Compound) GetCompound(key string) *Compound {
	if t, ok := c.values[key]; ok {
		if cc, ok := t.(*Compound); ok {
			return cc
		}
	}
	return nil
}

// GetString returns the string value under key, or "" if absent.
func (c *Compound) GetString(key string) string {
	if t, ok := c.values[key]; ok {
		if s, ok := t.(String); ok {
			return string(s)
		}
	}
	return ""
}

// Keys returns the keys in insertion order.
func (c *Compound) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of entries.
func (c *Compound) Len() int { return len(c.keys) }

// Equal reports deep equality of two tags. Compound comparison ignores key
// order; list comparison does not.
func Equal(a, b Tag) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Type() != b.Type() {
		return false
	}
	switch at := a.(type) {
	case Byte, Short, Int, Long, Float, Double, String:
		return a == b
	case ByteArray:
		bt := b.(ByteArray)
		if len(at) != len(bt) {
			return false
		}
		for i := range at {
			if at[i] != bt[i] {
				return false
			}
		}
		return true
	case IntArray:
		bt := b.(IntArray)
		if len(at) != len(bt) {
			return false
		}
		for i := range at {
			if at[i] != bt[i] {
				return false
			}
		}
		return true
	case LongArray:
		bt := b.(LongArray)
		if len(at) != len(bt) {
			return false
		}
		for i := range at {
			if at[i] != bt[i] {
				return false
			}
		}
		return true
	case *List:
		bt := b.(*List)
		if len(at.Elems) != len(bt.Elems) {
			return false
		}
		for i := range at.Elems {
			if !Equal(at.Elems[i], bt.Elems[i]) {
				return false
			}
		}
		return true
	case *Compound:
		bt := b.(*Compound)
		if len(at.keys) != len(bt.keys) {
			return false
		}
		for k, v := range at.values {
			bv, ok := bt.values[k]
			if !ok || !Equal(v, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// Canonical renders a tag as a stable string usable as a map key: compound
// keys are emitted sorted, so equal tags always render identically.
func Canonical(t Tag) string {
	var sb strings.Builder
	writeCanonical(&sb, t)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, t Tag) {
	switch v := t.(type) {
	case Byte:
		fmt.Fprintf(sb, "%db", v)
	case Short:
		fmt.Fprintf(sb, "%ds", v)
	case Int:
		fmt.Fprintf(sb, "%d", v)
	case Long:
		fmt.Fprintf(sb, "%dl", v)
	case Float:
		fmt.Fprintf(sb, "%gf", v)
	case Double:
		fmt.Fprintf(sb, "%gd", v)
	case String:
		fmt.Fprintf(sb, "%q", string(v))
	case ByteArray:
		fmt.Fprintf(sb, "[B;%d]", len(v))
	case IntArray:
		fmt.Fprintf(sb, "[I;%d]", len(v))
	case LongArray:
		fmt.Fprintf(sb, "[L;%d]", len(v))
	case *List:
		sb.WriteByte('[')
		for i, e := range v.Elems {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, e)
		}
		sb.WriteByte(']')
	case *Compound:
		keys := make([]string, len(v.keys))
		copy(keys, v.keys)
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(sb, "%q:", k)
			writeCanonical(sb, v.values[k])
		}
		sb.WriteByte('}')
	}
}

// Read decodes a named root tag (the classic wire framing: type byte, name,
// payload). A TagEnd root yields a nil tag.
func Read(r io.Reader) (string, Tag, error) {
	tt, err := readTagType(r)
	if err != nil {
		return "", nil, err
	}
	if tt == TagEnd {
		return "", nil, nil
	}
	name, err := readString(r)
	if err != nil {
		return "", nil, err
	}
	tag, err := readPayload(r, tt, 0)
	return name, tag, err
}

// ReadNetwork decodes a nameless root tag, the framing used on the wire
// since game version 1.20.2.
func ReadNetwork(r io.Reader) (Tag, error) {
	tt, err := readTagType(r)
	if err != nil {
		return nil, err
	}
	if tt == TagEnd {
		return nil, nil
	}
	return readPayload(r, tt, 0)
}

// Write encodes a named root tag.
func Write(w io.Writer, name string, tag Tag) error {
	if tag == nil {
		_, err := w.Write([]byte{byte(TagEnd)})
		return err
	}
	if _, err := w.Write([]byte{byte(tag.Type())}); err != nil {
		return err
	}
	if err := writeString(w, name); err != nil {
		return err
	}
	return writePayload(w, tag)
}

// WriteNetwork encodes a nameless root tag.
func WriteNetwork(w io.Writer, tag Tag) error {
	if tag == nil {
		_, err := w.Write([]byte{byte(TagEnd)})
		return err
	}
	if _, err := w.Write([]byte{byte(tag.Type())}); err != nil {
		return err
	}
	return writePayload(w, tag)
}

func readTagType(r io.Reader) (TagType, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return TagEnd, err
	}
	if b[0] > byte(TagLongArray) {
		return TagEnd, fmt.Errorf("%w: 0x%02x", ErrInvalidTagType, b[0])
	}
	return TagType(b[0]), nil
}

func readPayload(r io.Reader, tt TagType, depth int) (Tag, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	switch tt {
	case TagByte:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		return Byte(b[0]), nil
	case TagShort:
		var v int16
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return Short(v), nil
	case TagInt:
		var v int32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return Int(v), nil
	case TagLong:
		var v int64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return Long(v), nil
	case TagFloat:
		var v uint32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return Float(math.Float32frombits(v)), nil
	case TagDouble:
		var v uint64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return Double(math.Float64frombits(v)), nil
	case TagString:
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case TagByteArray:
		n, err := readLength(r)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return ByteArray(buf), nil
	case TagIntArray:
		n, err := readLength(r)
		if err != nil {
			return nil, err
		}
		out := make(IntArray, n)
		for i := range out {
			var v int32
			if err := binary.Read(r, binary.BigEndian, &v); err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case TagLongArray:
		n, err := readLength(r)
		if err != nil {
			return nil, err
		}
		out := make(LongArray, n)
		for i := range out {
			var v int64
			if err := binary.Read(r, binary.BigEndian, &v); err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case TagList:
		et, err := readTagType(r)
		if err != nil {
			return nil, err
		}
		n, err := readLength(r)
		if err != nil {
			return nil, err
		}
		if et == TagEnd && n > 0 {
			return nil, fmt.Errorf("nbt: non-empty list of end tags")
		}
		list := &List{ElementType: et, Elems: make([]Tag, 0, n)}
		for i := 0; i < n; i++ {
			elem, err := readPayload(r, et, depth+1)
			if err != nil {
				return nil, err
			}
			list.Elems = append(list.Elems, elem)
		}
		return list, nil
	case TagCompound:
		c := NewCompound()
		for {
			et, err := readTagType(r)
			if err != nil {
				return nil, err
			}
			if et == TagEnd {
				return c, nil
			}
			name, err := readString(r)
			if err != nil {
				return nil, err
			}
			child, err := readPayload(r, et, depth+1)
			if err != nil {
				return nil, err
			}
			if _, dup := c.values[name]; dup {
				return nil, fmt.Errorf("nbt: duplicate compound key %q", name)
			}
			c.Set(name, child)
		}
	}
	return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidTagType, byte(tt))
}

func writePayload(w io.Writer, t Tag) error {
	switch v := t.(type) {
	case Byte:
		_, err := w.Write([]byte{byte(v)})
		return err
	case Short:
		return binary.Write(w, binary.BigEndian, int16(v))
	case Int:
		return binary.Write(w, binary.BigEndian, int32(v))
	case Long:
		return binary.Write(w, binary.BigEndian, int64(v))
	case Float:
		return binary.Write(w, binary.BigEndian, math.Float32bits(float32(v)))
	case Double:
		return binary.Write(w, binary.BigEndian, math.Float64bits(float64(v)))
	case String:
		return writeString(w, string(v))
	case ByteArray:
		if err := binary.Write(w, binary.BigEndian, int32(len(v))); err != nil {
			return err
		}
		_, err := w.Write(v)
		return err
	case IntArray:
		if err := binary.Write(w, binary.BigEndian, int32(len(v))); err != nil {
			return err
		}
		for _, e := range v {
			if err := binary.Write(w, binary.BigEndian, e); err != nil {
				return err
			}
		}
		return nil
	case LongArray:
		if err := binary.Write(w, binary.BigEndian, int32(len(v))); err != nil {
			return err
		}
		for _, e := range v {
			if err := binary.Write(w, binary.BigEndian, e); err != nil {
				return err
			}
		}
		return nil
	case *List:
		et := v.ElementType
		if len(v.Elems) == 0 && et == 0 {
			et = TagEnd
		}
		if _, err := w.Write([]byte{byte(et)}); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, int32(len(v.Elems))); err != nil {
			return err
		}
		for _, e := range v.Elems {
			if err := writePayload(w, e); err != nil {
				return err
			}
		}
		return nil
	case *Compound:
		for _, k := range v.keys {
			child := v.values[k]
			if _, err := w.Write([]byte{byte(child.Type())}); err != nil {
				return err
			}
			if err := writeString(w, k); err != nil {
				return err
			}
			if err := writePayload(w, child); err != nil {
				return err
			}
		}
		_, err := w.Write([]byte{byte(TagEnd)})
		return err
	}
	return fmt.Errorf("%w: %T", ErrInvalidTagType, t)
}

func readLength(r io.Reader) (int, error) {
	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("nbt: negative length %d", n)
	}
	return int(n), nil
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}
