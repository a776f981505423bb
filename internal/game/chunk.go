package game

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/n90p/minecraft-world-downloader/internal/nbt"
	"github.com/n90p/minecraft-world-downloader/internal/protocol"
)

const (
	// sectionBlocks is the number of blocks in one 16x16x16 section.
	sectionBlocks = 4096
	// sectionBiomes is the number of 4x4x4 biome cells per section (1.18+).
	sectionBiomes = 64
	// biomeIndirectMax is the widest per-section biome palette; wider widths
	// index the biome registry directly.
	biomeIndirectMax = 3
	// maxSections caps the sections decoded from one column so a corrupt
	// payload cannot loop the decoder.
	maxSections = 64
	// legacySections is the fixed column height of bitmask-era chunks.
	legacySections = 16
)

// Section is one decoded 16x16x16 slice of a chunk column. Blocks holds the
// 4096 resolved states in YZX order. Biomes is only populated from 1.18 on,
// where biomes became per-section paletted data; it holds raw registry ids.
type Section struct {
	Y          int
	BlockCount int
	Palette    *SectionPalette
	Blocks     []*BlockState
	Biomes     []int
}

// BlockEntity is one tile entity record attached to a chunk. Older versions
// carry the identity inside the data tree; 1.18+ moved position and type out
// into packed header fields.
type BlockEntity struct {
	X, Y, Z int
	Type    string
	TypeID  int32
	Data    *nbt.Compound
}

// Chunk is one decoded column. Biomes holds the column-wide biome grid of
// pre-1.18 formats; later versions carry biomes per section instead.
type Chunk struct {
	X, Z          int32
	Full          bool
	Protocol      int
	Heightmaps    nbt.Tag
	Sections      []*Section
	Biomes        []int
	BlockEntities []*BlockEntity
}

// ChunkDecoder turns chunk-data packet bodies into Chunk values for one
// session. It is not safe for concurrent use; each session owns one.
type ChunkDecoder struct {
	protocol    int
	global      *GlobalPalette
	hasSkyLight bool
	minSectionY int
	logger      zerolog.Logger
}

// NewChunkDecoder builds a decoder for one protocol version. Dimension
// context defaults to an overworld-shaped world until SetDimension is called
// with values from the join or respawn packet.
func NewChunkDecoder(protocolVersion int, global *GlobalPalette, logger zerolog.Logger) *ChunkDecoder {
	d := &ChunkDecoder{
		protocol:    protocolVersion,
		global:      global,
		hasSkyLight: true,
		logger:      logger,
	}
	if protocolVersion >= protocol.VersionHeightScaled {
		d.minSectionY = -4
	}
	return d
}

// SetDimension updates the dimension-dependent decode parameters.
func (d *ChunkDecoder) SetDimension(hasSkyLight bool, minSectionY int) {
	d.hasSkyLight = hasSkyLight
	d.minSectionY = minSectionY
}

// Decode parses one chunk-data packet body. A truncated section aborts the
// remainder of the column but keeps everything decoded before it; only
// structural errors ahead of the section data fail the whole chunk.
func (d *ChunkDecoder) Decode(payload []byte) (*Chunk, error) {
	b := protocol.NewBuffer(payload)
	if d.protocol >= protocol.VersionHeightScaled {
		return d.decodeHeightScaled(b)
	}
	return d.decodeMasked(b)
}

// decodeMasked handles the bitmask era (1.13 through 1.17): the column is a
// fixed 16 sections and a mask announces which of them are present.
func (d *ChunkDecoder) decodeMasked(b *protocol.Buffer) (*Chunk, error) {
	c := &Chunk{Protocol: d.protocol}

	var err error
	if c.X, err = b.Int(); err != nil {
		return nil, fmt.Errorf("chunk x: %w", err)
	}
	if c.Z, err = b.Int(); err != nil {
		return nil, fmt.Errorf("chunk z: %w", err)
	}
	if c.Full, err = b.Bool(); err != nil {
		return nil, fmt.Errorf("chunk full flag: %w", err)
	}
	// 1.16 only: a flag telling the client to discard old light data.
	if d.protocol >= protocol.VersionPaddedBits && d.protocol < 751 {
		if _, err := b.Bool(); err != nil {
			return nil, err
		}
	}

	mask, err := d.readSectionMask(b)
	if err != nil {
		return nil, fmt.Errorf("section mask: %w", err)
	}

	if d.protocol >= protocol.VersionBlockCount {
		if c.Heightmaps, err = b.NBT(false); err != nil {
			return nil, fmt.Errorf("heightmaps: %w", err)
		}
	}

	if c.Full && d.protocol >= 573 {
		if c.Biomes, err = d.readColumnBiomes(b); err != nil {
			return nil, fmt.Errorf("biomes: %w", err)
		}
	}

	data, err := d.readDataBuffer(b)
	if err != nil {
		return nil, err
	}

	for y := 0; y < legacySections; y++ {
		if mask&(1<<y) == 0 {
			continue
		}
		section, err := d.readMaskedSection(data, y)
		if err != nil {
			if isTruncated(err) {
				d.logger.Warn().Err(err).Int32("x", c.X).Int32("z", c.Z).Int("section", y).
					Msg("section data truncated, keeping partial chunk")
				break
			}
			return nil, fmt.Errorf("section %d: %w", y, err)
		}
		c.Sections = append(c.Sections, section)
	}

	// Before 1.15 the column biome grid trails the section data.
	if c.Full && d.protocol < 573 {
		if biomes, err := readInts(data, 256); err == nil {
			c.Biomes = biomes
		} else {
			d.logger.Warn().Err(err).Int32("x", c.X).Int32("z", c.Z).Msg("biome grid truncated")
		}
	}

	d.readLegacyBlockEntities(b, c)
	return c, nil
}

// decodeHeightScaled handles 1.18+: no mask, the data buffer holds one block
// and one biome container per section for the whole world height.
func (d *ChunkDecoder) decodeHeightScaled(b *protocol.Buffer) (*Chunk, error) {
	c := &Chunk{Protocol: d.protocol, Full: true}

	var err error
	if c.X, err = b.Int(); err != nil {
		return nil, fmt.Errorf("chunk x: %w", err)
	}
	if c.Z, err = b.Int(); err != nil {
		return nil, fmt.Errorf("chunk z: %w", err)
	}
	network := d.protocol >= protocol.VersionConfigPhase
	if c.Heightmaps, err = b.NBT(network); err != nil {
		return nil, fmt.Errorf("heightmaps: %w", err)
	}

	data, err := d.readDataBuffer(b)
	if err != nil {
		return nil, err
	}

	for i := 0; data.Remaining() > 0 && i < maxSections; i++ {
		section, err := d.readScaledSection(data, d.minSectionY+i)
		if err != nil {
			if isTruncated(err) {
				d.logger.Warn().Err(err).Int32("x", c.X).Int32("z", c.Z).Int("section", i).
					Msg("section data truncated, keeping partial chunk")
				break
			}
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
		c.Sections = append(c.Sections, section)
	}

	d.readPackedBlockEntities(b, c, network)
	return c, nil
}

// readSectionMask reads the present-sections mask. 1.16.2 replaced the plain
// varint with a varint-prefixed bitset; a 16-section column always fits the
// first word.
func (d *ChunkDecoder) readSectionMask(b *protocol.Buffer) (uint64, error) {
	if d.protocol >= 751 {
		words, err := b.LongArray()
		if err != nil {
			return 0, err
		}
		if len(words) == 0 {
			return 0, nil
		}
		return words[0], nil
	}
	v, err := b.VarInt()
	if err != nil {
		return 0, err
	}
	return uint64(uint32(v)), nil
}

// readColumnBiomes reads the pre-section biome grid of 1.15 through 1.17:
// 1024 plain ints, varint-prefixed varints from 1.16.2.
func (d *ChunkDecoder) readColumnBiomes(b *protocol.Buffer) ([]int, error) {
	if d.protocol >= 751 {
		n, err := b.VarInt()
		if err != nil {
			return nil, err
		}
		if n < 0 || int(n) > b.Remaining() {
			return nil, fmt.Errorf("%w: biome array of %d entries", ErrTruncated, n)
		}
		out := make([]int, n)
		for i := range out {
			v, err := b.VarInt()
			if err != nil {
				return nil, err
			}
			out[i] = int(v)
		}
		return out, nil
	}
	return readInts(b, 1024)
}

// readDataBuffer pops the varint-sized section data blob into its own cursor.
func (d *ChunkDecoder) readDataBuffer(b *protocol.Buffer) (*protocol.Buffer, error) {
	size, err := b.VarInt()
	if err != nil {
		return nil, fmt.Errorf("data size: %w", err)
	}
	raw, err := b.Bytes(int(size))
	if err != nil {
		return nil, fmt.Errorf("section data: %w", err)
	}
	return protocol.NewBuffer(raw), nil
}

// readMaskedSection reads one bitmask-era section: optional block count,
// paletted block array, and on pre-1.14 versions the inline light arrays.
func (d *ChunkDecoder) readMaskedSection(b *protocol.Buffer, y int) (*Section, error) {
	s := &Section{Y: y, BlockCount: -1}

	if d.protocol >= protocol.VersionBlockCount {
		count, err := b.Short()
		if err != nil {
			return nil, err
		}
		s.BlockCount = int(count)
	}

	if err := d.readBlockContainer(b, s); err != nil {
		return nil, err
	}

	if d.protocol < protocol.VersionBlockCount {
		if err := b.Skip(2048); err != nil {
			return nil, err
		}
		if d.hasSkyLight {
			if err := b.Skip(2048); err != nil {
				return nil, err
			}
		}
		s.BlockCount = countNonAir(s.Blocks)
	}
	return s, nil
}

// readScaledSection reads one 1.18+ section: block count, block container,
// biome container.
func (d *ChunkDecoder) readScaledSection(b *protocol.Buffer, y int) (*Section, error) {
	s := &Section{Y: y}

	count, err := b.Short()
	if err != nil {
		return nil, err
	}
	s.BlockCount = int(count)

	if err := d.readBlockContainer(b, s); err != nil {
		return nil, err
	}

	if s.Biomes, err = d.readBiomeContainer(b); err != nil {
		return nil, err
	}
	return s, nil
}

// readBlockContainer reads bits-per-block, the section palette and the packed
// index array, then resolves every index to a state.
func (d *ChunkDecoder) readBlockContainer(b *protocol.Buffer, s *Section) error {
	bits, err := b.Byte()
	if err != nil {
		return err
	}
	palette, err := ReadSectionPalette(b, int(bits), d.global)
	if err != nil {
		return err
	}
	words, err := b.LongArray()
	if err != nil {
		return err
	}

	packing := PackingSplit
	if d.protocol >= protocol.VersionPaddedBits {
		packing = PackingPadded
	}
	indices, err := ReadBitArray(words, sectionBlocks, int(bits), packing)
	if err != nil {
		return err
	}

	s.Palette = palette
	s.Blocks = make([]*BlockState, len(indices))
	for i, idx := range indices {
		s.Blocks[i] = palette.Resolve(idx, d.logger)
	}
	return nil
}

// readBiomeContainer reads a 1.18+ per-section biome container and returns
// the 64 raw registry ids. Biome palettes top out at 3 bits before switching
// to direct registry indices.
func (d *ChunkDecoder) readBiomeContainer(b *protocol.Buffer) ([]int, error) {
	bits, err := b.Byte()
	if err != nil {
		return nil, err
	}

	var ids []int
	switch {
	case bits == 0:
		v, err := b.VarInt()
		if err != nil {
			return nil, err
		}
		ids = []int{int(v)}
	case int(bits) <= biomeIndirectMax:
		n, err := b.VarInt()
		if err != nil {
			return nil, err
		}
		if n < 0 || int(n) > b.Remaining() {
			return nil, fmt.Errorf("%w: biome palette of %d entries", ErrTruncated, n)
		}
		ids = make([]int, n)
		for i := range ids {
			v, err := b.VarInt()
			if err != nil {
				return nil, err
			}
			ids[i] = int(v)
		}
	}

	words, err := b.LongArray()
	if err != nil {
		return nil, err
	}
	indices, err := ReadBitArray(words, sectionBiomes, int(bits), PackingPadded)
	if err != nil {
		return nil, err
	}

	out := make([]int, len(indices))
	for i, idx := range indices {
		switch {
		case bits == 0:
			out[i] = ids[0]
		case int(bits) <= biomeIndirectMax:
			if idx >= 0 && idx < len(ids) {
				out[i] = ids[idx]
			}
		default:
			out[i] = idx
		}
	}
	return out, nil
}

// readLegacyBlockEntities reads the trailing full-tree tile entity list.
// Failures here drop the entities but never the chunk.
func (d *ChunkDecoder) readLegacyBlockEntities(b *protocol.Buffer, c *Chunk) {
	n, err := b.VarInt()
	if err != nil {
		return
	}
	for i := int32(0); i < n; i++ {
		tag, err := b.NBT(false)
		if err != nil {
			d.logger.Warn().Err(err).Int32("x", c.X).Int32("z", c.Z).
				Msg("block entity list truncated")
			return
		}
		data, ok := tag.(*nbt.Compound)
		if !ok {
			continue
		}
		e := &BlockEntity{Type: data.GetString("id"), Data: data}
		if v, ok := data.Get("x"); ok {
			if x, ok := v.(nbt.Int); ok {
				e.X = int(x)
			}
		}
		if v, ok := data.Get("y"); ok {
			if y, ok := v.(nbt.Int); ok {
				e.Y = int(y)
			}
		}
		if v, ok := data.Get("z"); ok {
			if z, ok := v.(nbt.Int); ok {
				e.Z = int(z)
			}
		}
		c.BlockEntities = append(c.BlockEntities, e)
	}
}

// readPackedBlockEntities reads the 1.18+ tile entity records, which move
// position and type out of the data tree into packed header fields.
func (d *ChunkDecoder) readPackedBlockEntities(b *protocol.Buffer, c *Chunk, network bool) {
	n, err := b.VarInt()
	if err != nil {
		return
	}
	for i := int32(0); i < n; i++ {
		packed, err := b.Byte()
		if err != nil {
			d.logger.Warn().Err(err).Int32("x", c.X).Int32("z", c.Z).
				Msg("block entity list truncated")
			return
		}
		y, err := b.Short()
		if err != nil {
			return
		}
		typ, err := b.VarInt()
		if err != nil {
			return
		}
		tag, err := b.NBT(network)
		if err != nil {
			d.logger.Warn().Err(err).Int32("x", c.X).Int32("z", c.Z).
				Msg("block entity tree unreadable")
			return
		}
		e := &BlockEntity{
			X:      int(c.X)*16 + int(packed>>4),
			Y:      int(y),
			Z:      int(c.Z)*16 + int(packed&0x0F),
			TypeID: typ,
		}
		if data, ok := tag.(*nbt.Compound); ok {
			e.Data = data
		}
		c.BlockEntities = append(c.BlockEntities, e)
	}
}

// ParseUnloadChunk decodes an unload-chunk packet body. 1.20.2 swapped the
// coordinate order to match the packed chunk position encoding.
func ParseUnloadChunk(b *protocol.Buffer, protocolVersion int) (x, z int32, err error) {
	first, err := b.Int()
	if err != nil {
		return 0, 0, err
	}
	second, err := b.Int()
	if err != nil {
		return 0, 0, err
	}
	if protocolVersion >= protocol.VersionConfigPhase {
		return second, first, nil
	}
	return first, second, nil
}

// Tree renders the chunk as a typed tree for storage: position, version and
// per-section palettes with re-packed index data. The layout mirrors the
// on-disk region schema so exported columns can be inspected with standard
// tooling.
func (c *Chunk) Tree() *nbt.Compound {
	root := nbt.NewCompound()
	root.Set("xPos", nbt.Int(c.X))
	root.Set("zPos", nbt.Int(c.Z))
	root.Set("yPos", nbt.Int(c.lowestSectionY()))
	root.Set("Status", nbt.String("minecraft:full"))

	sections := &nbt.List{ElementType: nbt.TagCompound}
	for _, s := range c.Sections {
		sections.Elems = append(sections.Elems, s.tree())
	}
	root.Set("sections", sections)

	if len(c.BlockEntities) > 0 {
		entities := &nbt.List{ElementType: nbt.TagCompound}
		for _, e := range c.BlockEntities {
			if e.Data != nil {
				entities.Elems = append(entities.Elems, e.Data)
			}
		}
		root.Set("block_entities", entities)
	}
	return root
}

func (c *Chunk) lowestSectionY() int32 {
	if len(c.Sections) == 0 {
		return 0
	}
	lowest := c.Sections[0].Y
	for _, s := range c.Sections {
		if s.Y < lowest {
			lowest = s.Y
		}
	}
	return int32(lowest)
}

// tree renders one section in region-file shape: a deduplicated description
// palette plus a padded index array.
func (s *Section) tree() *nbt.Compound {
	c := nbt.NewCompound()
	c.Set("Y", nbt.Byte(s.Y))

	indexByKey := make(map[string]int)
	var states []*BlockState
	indices := make([]int, len(s.Blocks))
	for i, block := range s.Blocks {
		if block == nil {
			block = NewBlockState("minecraft:air", 0, nil)
		}
		key := block.Key()
		idx, ok := indexByKey[key]
		if !ok {
			idx = len(states)
			indexByKey[key] = idx
			states = append(states, block)
		}
		indices[i] = idx
	}

	palette := &nbt.List{ElementType: nbt.TagCompound}
	for _, state := range states {
		palette.Elems = append(palette.Elems, state.Description())
	}

	blockStates := nbt.NewCompound()
	blockStates.Set("palette", palette)
	if bits := bitsFor(len(states) - 1); bits > 0 {
		words := WriteBitArray(indices, bits, PackingPadded)
		data := make(nbt.LongArray, len(words))
		for i, w := range words {
			data[i] = int64(w)
		}
		blockStates.Set("data", data)
	}
	c.Set("block_states", blockStates)
	return c
}

// countNonAir totals the blocks that are not an air variant, for versions
// whose wire format predates the explicit count.
func countNonAir(blocks []*BlockState) int {
	n := 0
	for _, b := range blocks {
		if b != nil && !b.IsAir() {
			n++
		}
	}
	return n
}

// readInts reads count big-endian 32-bit values.
func readInts(b *protocol.Buffer, count int) ([]int, error) {
	out := make([]int, count)
	for i := range out {
		v, err := b.Int()
		if err != nil {
			return nil, err
		}
		out[i] = int(v)
	}
	return out, nil
}

// isTruncated matches the recoverable length errors of both decode layers.
func isTruncated(err error) bool {
	return errors.Is(err, ErrTruncated) || errors.Is(err, protocol.ErrTruncated)
}
