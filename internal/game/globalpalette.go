package game

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/n90p/minecraft-world-downloader/internal/nbt"
)

// GlobalPalette is the version-wide table mapping numeric state ids to block
// states, loaded once from a reference dataset generated by the game server
// jar. After construction it is read-only and safe for concurrent lookups
// across all sessions without locking.
type GlobalPalette struct {
	version      string
	states       map[int]*BlockState
	descriptions map[string]*BlockState
	defaultState *BlockState
	requiredBits int
}

// jsonBlockType mirrors one entry of blocks-<version>.json:
// block name -> {"states": [{"id": n, "properties": {...}}, ...]}.
type jsonBlockType struct {
	States []jsonBlockState `json:"states"`
}

type jsonBlockState struct {
	ID         int                        `json:"id"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// LoadGlobalPalette reads <resourceRoot>/blocks-<version>.json. A missing or
// unreadable file is not an error: the result is an empty palette whose
// lookups all miss, so chunk decoding still proceeds structurally for
// versions we have no dataset for.
func LoadGlobalPalette(resourceRoot, version string) *GlobalPalette {
	p := &GlobalPalette{
		version:      version,
		states:       make(map[int]*BlockState),
		descriptions: make(map[string]*BlockState),
	}

	path := filepath.Join(resourceRoot, "blocks-"+version+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Str("version", version).Str("path", path).
			Msg("no block dataset for this version, states will resolve as unknown")
		return p
	}

	var table map[string]jsonBlockType
	if err := json.Unmarshal(data, &table); err != nil {
		log.Error().Err(err).Str("path", path).Msg("malformed block dataset, using empty palette")
		return p
	}

	for name, typ := range table {
		for _, js := range typ.States {
			state := NewBlockState(name, js.ID, propertiesToTree(js.Properties))
			p.states[js.ID] = state
			p.descriptions[state.Key()] = state
		}
	}

	p.defaultState = p.lowestState()
	p.requiredBits = bitsFor(len(p.states) - 1)

	log.Info().Str("version", version).Int("states", len(p.states)).
		Int("bits", p.requiredBits).Msg("global palette loaded")
	return p
}

// propertiesToTree converts a JSON property set to its typed-tree form:
// booleans become bytes, numbers become ints, everything else a string.
func propertiesToTree(props map[string]json.RawMessage) *nbt.Compound {
	c := nbt.NewCompound()
	for key, raw := range props {
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			if b {
				c.Set(key, nbt.Byte(1))
			} else {
				c.Set(key, nbt.Byte(0))
			}
			continue
		}
		var n int32
		if err := json.Unmarshal(raw, &n); err == nil {
			c.Set(key, nbt.Int(n))
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			c.Set(key, nbt.String(s))
			continue
		}
		c.Set(key, nbt.String(string(raw)))
	}
	return c
}

// lowestState picks the state with the lowest numeric id. Iteration order of
// the table is arbitrary, so the default must be chosen explicitly to stay
// deterministic across runs. In every known dataset the lowest id is air.
func (p *GlobalPalette) lowestState() *BlockState {
	var best *BlockState
	for id, s := range p.states {
		if best == nil || id < best.ID {
			best = s
		}
	}
	return best
}

// Version returns the game version the palette was loaded for.
func (p *GlobalPalette) Version() string { return p.version }

// Size returns the number of loaded states.
func (p *GlobalPalette) Size() int { return len(p.states) }

// StateByID resolves a global numeric state id.
func (p *GlobalPalette) StateByID(id int) (*BlockState, bool) {
	s, ok := p.states[id]
	return s, ok
}

// StateByDescription resolves a state by exact (name, properties) match, as
// used by packets that carry textual state descriptions instead of ids.
func (p *GlobalPalette) StateByDescription(name string, properties *nbt.Compound) (*BlockState, bool) {
	s, ok := p.descriptions[stateKey(name, properties)]
	return s, ok
}

// StateByTree resolves a {Name, Properties} compound as found in wire or
// dataset metadata.
func (p *GlobalPalette) StateByTree(desc *nbt.Compound) (*BlockState, bool) {
	if desc == nil {
		return nil, false
	}
	return p.StateByDescription(desc.GetString("Name"), desc.GetCompound("Properties"))
}

// DefaultState returns the deterministic fallback state used to replace
// unresolvable entries: the state with the lowest numeric id. Nil only for
// an empty palette.
func (p *GlobalPalette) DefaultState() *BlockState { return p.defaultState }

// RequiredBits returns the width needed to index every loaded state directly,
// i.e. the bits required for index size-1. Sizes 0 and 1 need no storage.
func (p *GlobalPalette) RequiredBits() int { return p.requiredBits }

// paletteRegistry caches loaded palettes per (resource root, version). The
// guard covers first load only; steady-state lookups hit the immutable
// palette without synchronization beyond the map read lock.
type paletteRegistry struct {
	mu       sync.Mutex
	palettes map[string]*GlobalPalette
}

var registry = paletteRegistry{palettes: make(map[string]*GlobalPalette)}

// PaletteFor returns the process-wide palette for a version, loading it on
// first use. Concurrent callers for the same version share one instance.
func PaletteFor(resourceRoot, version string) *GlobalPalette {
	key := fmt.Sprintf("%s|%s", resourceRoot, version)

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if p, ok := registry.palettes[key]; ok {
		return p
	}
	p := LoadGlobalPalette(resourceRoot, version)
	registry.palettes[key] = p
	return p
}
