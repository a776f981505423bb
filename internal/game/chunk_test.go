package game

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/rs/zerolog"

	"github.com/n90p/minecraft-world-downloader/internal/nbt"
	"github.com/n90p/minecraft-world-downloader/internal/protocol"
)

// wire builds synthetic packet bodies for decoder tests.
type wire struct {
	buf bytes.Buffer
}

func (w *wire) varint(v int32) { w.buf.Write(protocol.AppendVarInt(nil, v)) }
func (w *wire) int32(v int32)  { binary.Write(&w.buf, binary.BigEndian, v) }
func (w *wire) short(v int16)  { binary.Write(&w.buf, binary.BigEndian, v) }
func (w *wire) byte(v byte)    { w.buf.WriteByte(v) }
func (w *wire) raw(p []byte)   { w.buf.Write(p) }
func (w *wire) zeros(n int)    { w.buf.Write(make([]byte, n)) }
func (w *wire) bytes() []byte  { return w.buf.Bytes() }

func (w *wire) words(words []uint64) {
	w.varint(int32(len(words)))
	for _, v := range words {
		binary.Write(&w.buf, binary.BigEndian, v)
	}
}

func (w *wire) namedNBT(t *testing.T, tag nbt.Tag) {
	t.Helper()
	if err := nbt.Write(&w.buf, "", tag); err != nil {
		t.Fatalf("encode nbt: %v", err)
	}
}

func heightmaps() *nbt.Compound {
	c := nbt.NewCompound()
	c.Set("MOTION_BLOCKING", nbt.LongArray{0, 0})
	return c
}

func TestDecodeMaskedChunk(t *testing.T) {
	global := testGlobal(t)
	d := NewChunkDecoder(404, global, zerolog.Nop()) // 1.13.2

	var data wire
	// One section: single-value palette of stone, then the inline block
	// and sky light arrays of the pre-1.14 format.
	data.byte(0)
	data.varint(1)
	data.varint(0)
	data.zeros(2048 + 2048)
	// Full columns trail a 256 entry biome grid before 1.15.
	for i := 0; i < 256; i++ {
		data.int32(7)
	}

	var p wire
	p.int32(3)  // x
	p.int32(-2) // z
	p.byte(1)   // full
	p.varint(1) // section mask, bit 0
	p.varint(int32(len(data.bytes())))
	p.raw(data.bytes())
	p.varint(0) // block entities

	c, err := d.Decode(p.bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c.X != 3 || c.Z != -2 || !c.Full {
		t.Errorf("header = (%d, %d, %v), want (3, -2, true)", c.X, c.Z, c.Full)
	}
	if len(c.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(c.Sections))
	}

	s := c.Sections[0]
	if s.Y != 0 {
		t.Errorf("section Y = %d, want 0", s.Y)
	}
	if len(s.Blocks) != 4096 {
		t.Fatalf("blocks = %d, want 4096", len(s.Blocks))
	}
	if s.Blocks[0] == nil || s.Blocks[0].Name != "minecraft:stone" {
		t.Errorf("block 0 = %v, want minecraft:stone", s.Blocks[0])
	}
	// No count on the wire before 1.14; the decoder derives it.
	if s.BlockCount != 4096 {
		t.Errorf("BlockCount = %d, want 4096", s.BlockCount)
	}

	if len(c.Biomes) != 256 || c.Biomes[0] != 7 {
		t.Errorf("biomes = %d entries first %d, want 256 entries of 7", len(c.Biomes), c.Biomes[0])
	}
}

func TestDecodeMaskedChunkSkipsAbsentSections(t *testing.T) {
	global := testGlobal(t)
	d := NewChunkDecoder(404, global, zerolog.Nop())

	var data wire
	for i := 0; i < 2; i++ {
		data.byte(0)
		data.varint(0) // air
		data.varint(0)
		data.zeros(2048 + 2048)
	}
	for i := 0; i < 256; i++ {
		data.int32(0)
	}

	var p wire
	p.int32(0)
	p.int32(0)
	p.byte(1)
	p.varint(1<<2 | 1<<9) // sections 2 and 9 present
	p.varint(int32(len(data.bytes())))
	p.raw(data.bytes())
	p.varint(0)

	c, err := d.Decode(p.bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(c.Sections))
	}
	if c.Sections[0].Y != 2 || c.Sections[1].Y != 9 {
		t.Errorf("section Ys = %d, %d, want 2, 9", c.Sections[0].Y, c.Sections[1].Y)
	}
	if c.Sections[0].BlockCount != 0 {
		t.Errorf("air section BlockCount = %d, want 0", c.Sections[0].BlockCount)
	}
}

func TestDecodeHeightScaledChunk(t *testing.T) {
	global := testGlobal(t)
	d := NewChunkDecoder(758, global, zerolog.Nop()) // 1.18.2

	var data wire
	// Section 1: all stone, biome 5.
	data.short(4096)
	data.byte(0)
	data.varint(1)
	data.varint(0)
	data.byte(0)
	data.varint(5)
	data.varint(0)
	// Section 2: indirect palette air/stone with block 0 set to stone.
	indices := make([]int, 4096)
	indices[0] = 1
	data.short(1)
	data.byte(4)
	data.varint(2)
	data.varint(0)
	data.varint(1)
	data.words(WriteBitArray(indices, 4, PackingPadded))
	data.byte(0)
	data.varint(5)
	data.varint(0)

	var p wire
	p.int32(-7)
	p.int32(12)
	p.namedNBT(t, heightmaps())
	p.varint(int32(len(data.bytes())))
	p.raw(data.bytes())
	p.varint(0)

	c, err := d.Decode(p.bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c.X != -7 || c.Z != 12 {
		t.Errorf("position = (%d, %d), want (-7, 12)", c.X, c.Z)
	}
	if c.Heightmaps == nil {
		t.Error("heightmaps not decoded")
	}
	if len(c.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(c.Sections))
	}

	// 1.18 worlds start at section -4.
	if c.Sections[0].Y != -4 || c.Sections[1].Y != -3 {
		t.Errorf("section Ys = %d, %d, want -4, -3", c.Sections[0].Y, c.Sections[1].Y)
	}

	s := c.Sections[1]
	if s.Blocks[0] == nil || s.Blocks[0].Name != "minecraft:stone" {
		t.Errorf("block 0 = %v, want minecraft:stone", s.Blocks[0])
	}
	if s.Blocks[1] == nil || !s.Blocks[1].IsAir() {
		t.Errorf("block 1 = %v, want air", s.Blocks[1])
	}

	for _, s := range c.Sections {
		if len(s.Biomes) != 64 {
			t.Fatalf("biomes = %d, want 64", len(s.Biomes))
		}
		if s.Biomes[0] != 5 || s.Biomes[63] != 5 {
			t.Errorf("biome ids = %d, %d, want 5", s.Biomes[0], s.Biomes[63])
		}
	}
}

func TestDecodeKeepsPartialChunkOnTruncatedSection(t *testing.T) {
	global := testGlobal(t)
	d := NewChunkDecoder(758, global, zerolog.Nop())

	var data wire
	data.short(4096)
	data.byte(0)
	data.varint(1)
	data.varint(0)
	data.byte(0)
	data.varint(5)
	data.varint(0)
	// A second section that breaks off inside the palette.
	data.short(10)
	data.byte(0)

	var p wire
	p.int32(0)
	p.int32(0)
	p.namedNBT(t, heightmaps())
	p.varint(int32(len(data.bytes())))
	p.raw(data.bytes())
	p.varint(0)

	c, err := d.Decode(p.bytes())
	if err != nil {
		t.Fatalf("Decode: %v, want partial chunk", err)
	}
	if len(c.Sections) != 1 {
		t.Errorf("sections = %d, want the 1 decoded before the cut", len(c.Sections))
	}
}

func TestDecodeRejectsTruncatedHeader(t *testing.T) {
	global := testGlobal(t)
	d := NewChunkDecoder(758, global, zerolog.Nop())

	var p wire
	p.int32(0) // x only

	if _, err := d.Decode(p.bytes()); err == nil {
		t.Fatal("truncated header accepted")
	}
}

func TestDecodePackedBlockEntities(t *testing.T) {
	global := testGlobal(t)
	d := NewChunkDecoder(758, global, zerolog.Nop())

	entityData := nbt.NewCompound()
	entityData.Set("id", nbt.String("minecraft:chest"))

	var p wire
	p.int32(2)
	p.int32(-1)
	p.namedNBT(t, heightmaps())
	p.varint(0) // no section data
	p.varint(1) // one block entity
	p.byte(3<<4 | 5)
	p.short(-60)
	p.varint(9)
	p.namedNBT(t, entityData)

	c, err := d.Decode(p.bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.BlockEntities) != 1 {
		t.Fatalf("block entities = %d, want 1", len(c.BlockEntities))
	}

	e := c.BlockEntities[0]
	if e.X != 2*16+3 || e.Z != -1*16+5 || e.Y != -60 {
		t.Errorf("position = (%d, %d, %d), want (35, -60, -11)", e.X, e.Y, e.Z)
	}
	if e.TypeID != 9 {
		t.Errorf("TypeID = %d, want 9", e.TypeID)
	}
	if e.Data == nil || e.Data.GetString("id") != "minecraft:chest" {
		t.Errorf("Data = %v, want the chest tree", e.Data)
	}
}

func TestSetDimensionChangesSectionOrigin(t *testing.T) {
	global := testGlobal(t)
	d := NewChunkDecoder(758, global, zerolog.Nop())
	d.SetDimension(false, 0) // nether-shaped world

	var data wire
	data.short(0)
	data.byte(0)
	data.varint(0)
	data.varint(0)
	data.byte(0)
	data.varint(0)
	data.varint(0)

	var p wire
	p.int32(0)
	p.int32(0)
	p.namedNBT(t, heightmaps())
	p.varint(int32(len(data.bytes())))
	p.raw(data.bytes())
	p.varint(0)

	c, err := d.Decode(p.bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.Sections) != 1 || c.Sections[0].Y != 0 {
		t.Errorf("section Y = %d, want 0 after SetDimension", c.Sections[0].Y)
	}
}

func TestParseUnloadChunk(t *testing.T) {
	tests := []struct {
		protocol     int
		wantX, wantZ int32
	}{
		{758, 10, 20}, // x then z
		{764, 20, 10}, // 1.20.2 swapped the order
	}

	for _, tt := range tests {
		var p wire
		p.int32(10)
		p.int32(20)

		x, z, err := ParseUnloadChunk(protocol.NewBuffer(p.bytes()), tt.protocol)
		if err != nil {
			t.Fatalf("protocol %d: %v", tt.protocol, err)
		}
		if x != tt.wantX || z != tt.wantZ {
			t.Errorf("protocol %d: (%d, %d), want (%d, %d)", tt.protocol, x, z, tt.wantX, tt.wantZ)
		}
	}

	if _, _, err := ParseUnloadChunk(protocol.NewBuffer([]byte{0, 0}), 758); err == nil {
		t.Error("truncated unload body accepted")
	}
}

func TestChunkTree(t *testing.T) {
	global := testGlobal(t)
	d := NewChunkDecoder(758, global, zerolog.Nop())

	var data wire
	indices := make([]int, 4096)
	indices[100] = 1
	data.short(1)
	data.byte(4)
	data.varint(2)
	data.varint(0)
	data.varint(1)
	data.words(WriteBitArray(indices, 4, PackingPadded))
	data.byte(0)
	data.varint(0)
	data.varint(0)

	var p wire
	p.int32(4)
	p.int32(9)
	p.namedNBT(t, heightmaps())
	p.varint(int32(len(data.bytes())))
	p.raw(data.bytes())
	p.varint(0)

	c, err := d.Decode(p.bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	tree := c.Tree()
	if v, _ := tree.Get("xPos"); v != nbt.Int(4) {
		t.Errorf("xPos = %v, want 4", v)
	}
	if v, _ := tree.Get("zPos"); v != nbt.Int(9) {
		t.Errorf("zPos = %v, want 9", v)
	}
	if v, _ := tree.Get("yPos"); v != nbt.Int(-4) {
		t.Errorf("yPos = %v, want -4", v)
	}

	sections, ok := tree.Get("sections")
	if !ok {
		t.Fatal("tree has no sections list")
	}
	list, ok := sections.(*nbt.List)
	if !ok || len(list.Elems) != 1 {
		t.Fatalf("sections = %T with %d entries, want list of 1", sections, len(list.Elems))
	}

	blockStates := list.Elems[0].(*nbt.Compound).GetCompound("block_states")
	if blockStates == nil {
		t.Fatal("section tree has no block_states")
	}
	palette, _ := blockStates.Get("palette")
	if pl, ok := palette.(*nbt.List); !ok || len(pl.Elems) != 2 {
		t.Errorf("palette = %v, want 2 deduplicated entries", palette)
	}

	// The whole tree must serialize cleanly for storage.
	var buf bytes.Buffer
	if err := nbt.Write(&buf, "", tree); err != nil {
		t.Fatalf("serialize tree: %v", err)
	}
	_, got, err := nbt.Read(&buf)
	if err != nil {
		t.Fatalf("reread tree: %v", err)
	}
	if !nbt.Equal(tree, got) {
		t.Error("tree round trip mismatch")
	}
}
