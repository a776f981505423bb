package game

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/n90p/minecraft-world-downloader/internal/nbt"
	"github.com/n90p/minecraft-world-downloader/internal/protocol"
)

// PaletteKind is how one section's block indices map to global state ids.
type PaletteKind int

const (
	// PaletteSingle: the whole section is one implicit value, no index
	// storage on the wire.
	PaletteSingle PaletteKind = iota
	// PaletteIndirect: indices point into a small per-section list of global
	// ids read from the packet.
	PaletteIndirect
	// PaletteDirect: indices are global state ids themselves ("use global").
	PaletteDirect
	// PaletteDescribed: entries are explicit {Name, Properties} descriptions
	// resolved against the global table.
	PaletteDescribed
)

// SectionPalette is the palette scoped to one chunk section's decode. It is
// built from packet bytes, used to resolve that section's block array, and
// discarded; it is never shared across sections or goroutines.
type SectionPalette struct {
	kind   PaletteKind
	single int
	ids    []int
	states []*BlockState
	global *GlobalPalette
}

// ReadSectionPalette reads a section palette given the bits-per-block value
// from the section header. Width zero is the single-value case, widths up to
// eight are indirect, anything wider falls through to the global table.
func ReadSectionPalette(b *protocol.Buffer, bits int, global *GlobalPalette) (*SectionPalette, error) {
	p := &SectionPalette{global: global}

	switch {
	case bits == 0:
		v, err := b.VarInt()
		if err != nil {
			return nil, fmt.Errorf("single-value palette: %w", err)
		}
		p.kind = PaletteSingle
		p.single = int(v)
	case bits <= 8:
		n, err := b.VarInt()
		if err != nil {
			return nil, fmt.Errorf("palette length: %w", err)
		}
		if n < 0 || int(n) > b.Remaining() {
			return nil, fmt.Errorf("%w: palette of %d entries", ErrTruncated, n)
		}
		p.kind = PaletteIndirect
		p.ids = make([]int, n)
		for i := range p.ids {
			id, err := b.VarInt()
			if err != nil {
				return nil, fmt.Errorf("palette entry %d: %w", i, err)
			}
			p.ids[i] = int(id)
		}
	default:
		p.kind = PaletteDirect
	}
	return p, nil
}

// NewDescribedPalette builds a palette from explicit state descriptions, as
// carried by packets that encode states textually rather than by id.
func NewDescribedPalette(global *GlobalPalette, descriptions []*nbt.Compound) *SectionPalette {
	p := &SectionPalette{kind: PaletteDescribed, global: global}
	p.states = make([]*BlockState, len(descriptions))
	for i, desc := range descriptions {
		if s, ok := global.StateByTree(desc); ok {
			p.states[i] = s
		}
	}
	return p
}

// Kind returns the palette mode.
func (p *SectionPalette) Kind() PaletteKind { return p.kind }

// Size returns the entry count of list-backed palettes, 1 for single-value,
// and the global table size for direct mode.
func (p *SectionPalette) Size() int {
	switch p.kind {
	case PaletteSingle:
		return 1
	case PaletteIndirect:
		return len(p.ids)
	case PaletteDescribed:
		return len(p.states)
	default:
		return p.global.Size()
	}
}

// Resolve maps a decoded section index to a block state. A miss at any level
// (unknown local index, unknown global id) resolves to the global default
// state: a single corrupt block must not abort the rest of the section.
func (p *SectionPalette) Resolve(index int, logger zerolog.Logger) *BlockState {
	id, known := p.stateID(index)
	if !known {
		logger.Debug().Int("index", index).Msg("palette index out of range, using default state")
		return p.global.DefaultState()
	}
	if p.kind == PaletteDescribed {
		return p.states[index]
	}
	state, ok := p.global.StateByID(id)
	if !ok {
		logger.Debug().Int("state_id", id).Msg("unknown global state id, using default state")
		return p.global.DefaultState()
	}
	return state
}

// stateID maps a section index to a global state id without resolving it.
func (p *SectionPalette) stateID(index int) (int, bool) {
	switch p.kind {
	case PaletteSingle:
		if index != 0 {
			return 0, false
		}
		return p.single, true
	case PaletteIndirect:
		if index < 0 || index >= len(p.ids) {
			return 0, false
		}
		return p.ids[index], true
	case PaletteDescribed:
		if index < 0 || index >= len(p.states) || p.states[index] == nil {
			return 0, false
		}
		return p.states[index].ID, true
	default:
		return index, true
	}
}
