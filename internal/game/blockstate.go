// Package game implements the world-data model for the proxied block game:
// block states, the global and per-section palettes, bit-packed index arrays
// and the chunk decoding pipeline.
package game

import (
	"github.com/n90p/minecraft-world-downloader/internal/nbt"
)

// BlockState is an immutable block identity: a namespaced type name plus its
// property set (e.g. facing, waterlogged). Two states are equal iff name and
// properties are equal; the numeric id is an attribute of a particular
// palette table, not part of identity, because the same logical state can
// carry different ids across table sources.
type BlockState struct {
	Name       string
	ID         int
	Properties *nbt.Compound
}

// NewBlockState constructs a state. A nil property set is normalized to an
// empty compound so equality and rendering never special-case it.
func NewBlockState(name string, id int, properties *nbt.Compound) *BlockState {
	if properties == nil {
		properties = nbt.NewCompound()
	}
	return &BlockState{Name: name, ID: id, Properties: properties}
}

// Equal reports identity equality: name plus full property mapping.
func (s *BlockState) Equal(o *BlockState) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Name == o.Name && nbt.Equal(s.Properties, o.Properties)
}

// Key renders the identity as a stable string, usable as a map key.
func (s *BlockState) Key() string {
	return stateKey(s.Name, s.Properties)
}

func stateKey(name string, properties *nbt.Compound) string {
	if properties == nil {
		properties = nbt.NewCompound()
	}
	return name + "|" + nbt.Canonical(properties)
}

// IsAir reports whether the state is one of the air variants. Air does not
// count toward a section's non-air block total.
func (s *BlockState) IsAir() bool {
	switch s.Name {
	case "minecraft:air", "minecraft:cave_air", "minecraft:void_air":
		return true
	}
	return false
}

// Description renders the state as a typed-tree compound of the shape the
// wire protocol uses ({Name, Properties}), for writer output and for
// description-based lookups.
func (s *BlockState) Description() *nbt.Compound {
	c := nbt.NewCompound()
	c.Set("Name", nbt.String(s.Name))
	if s.Properties.Len() > 0 {
		c.Set("Properties", s.Properties)
	}
	return c
}
