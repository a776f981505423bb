package game

import (
	"os"
	"path/filepath"
	"testing"
)

const testDataset = `{
	"minecraft:air": {"states": [{"id": 0}]},
	"minecraft:stone": {"states": [{"id": 1}]},
	"minecraft:grass_block": {"states": [
		{"id": 2, "properties": {"snowy": true}},
		{"id": 3, "properties": {"snowy": false}}
	]},
	"minecraft:note_block": {"states": [
		{"id": 4, "properties": {"note": 0, "instrument": "harp"}}
	]}
}`

func writeDataset(t *testing.T, version, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "blocks-"+version+".json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return dir
}

func TestLoadGlobalPalette(t *testing.T) {
	dir := writeDataset(t, "1.18.2", testDataset)
	p := LoadGlobalPalette(dir, "1.18.2")

	if p.Size() != 5 {
		t.Fatalf("Size = %d, want 5", p.Size())
	}
	if p.Version() != "1.18.2" {
		t.Errorf("Version = %q, want 1.18.2", p.Version())
	}

	stone, ok := p.StateByID(1)
	if !ok {
		t.Fatal("StateByID(1) missed")
	}
	if stone.Name != "minecraft:stone" {
		t.Errorf("state 1 = %q, want minecraft:stone", stone.Name)
	}

	snowy, ok := p.StateByID(2)
	if !ok {
		t.Fatal("StateByID(2) missed")
	}
	if snowy.Name != "minecraft:grass_block" || snowy.Properties.Len() != 1 {
		t.Errorf("state 2 = %q with %d properties, want grass_block with 1",
			snowy.Name, snowy.Properties.Len())
	}

	if _, ok := p.StateByID(99); ok {
		t.Error("StateByID(99) hit, want miss")
	}
}

func TestDefaultStateIsLowestID(t *testing.T) {
	dir := writeDataset(t, "1.18.2", testDataset)
	p := LoadGlobalPalette(dir, "1.18.2")

	def := p.DefaultState()
	if def == nil {
		t.Fatal("DefaultState = nil")
	}
	if def.ID != 0 || def.Name != "minecraft:air" {
		t.Errorf("DefaultState = %s (id %d), want minecraft:air (id 0)", def.Name, def.ID)
	}
}

func TestStateByDescription(t *testing.T) {
	dir := writeDataset(t, "1.18.2", testDataset)
	p := LoadGlobalPalette(dir, "1.18.2")

	base, _ := p.StateByID(3)
	got, ok := p.StateByDescription(base.Name, base.Properties)
	if !ok {
		t.Fatal("StateByDescription missed a loaded state")
	}
	if got.ID != 3 {
		t.Errorf("resolved id = %d, want 3", got.ID)
	}

	if got, ok := p.StateByTree(base.Description()); !ok || got.ID != 3 {
		t.Errorf("StateByTree = (%v, %v), want state 3", got, ok)
	}

	if _, ok := p.StateByDescription("minecraft:bedrock", nil); ok {
		t.Error("unknown description resolved")
	}
}

func TestMissingDatasetYieldsEmptyPalette(t *testing.T) {
	p := LoadGlobalPalette(t.TempDir(), "0.0.0")

	if p.Size() != 0 {
		t.Errorf("Size = %d, want 0", p.Size())
	}
	if p.DefaultState() != nil {
		t.Error("DefaultState of empty palette is not nil")
	}
	if _, ok := p.StateByID(0); ok {
		t.Error("empty palette resolved an id")
	}
}

func TestMalformedDatasetYieldsEmptyPalette(t *testing.T) {
	dir := writeDataset(t, "1.18.2", "{not json")
	p := LoadGlobalPalette(dir, "1.18.2")
	if p.Size() != 0 {
		t.Errorf("Size = %d, want 0", p.Size())
	}
}

func TestRequiredBits(t *testing.T) {
	dir := writeDataset(t, "1.18.2", testDataset)
	p := LoadGlobalPalette(dir, "1.18.2")

	// 5 states index 0..4, so 3 bits.
	if got := p.RequiredBits(); got != 3 {
		t.Errorf("RequiredBits = %d, want 3", got)
	}
}

func TestPaletteForCaches(t *testing.T) {
	dir := writeDataset(t, "1.18.2", testDataset)

	a := PaletteFor(dir, "1.18.2")
	b := PaletteFor(dir, "1.18.2")
	if a != b {
		t.Error("PaletteFor returned distinct instances for the same key")
	}
	if a.Size() != 5 {
		t.Errorf("cached palette Size = %d, want 5", a.Size())
	}
}

func TestBlockStateIdentity(t *testing.T) {
	dir := writeDataset(t, "1.18.2", testDataset)
	p := LoadGlobalPalette(dir, "1.18.2")

	a, _ := p.StateByID(2)
	b, _ := p.StateByID(3)
	if a.Equal(b) {
		t.Error("states with different properties compare equal")
	}

	clone := NewBlockState(a.Name, 1000, a.Properties)
	if !a.Equal(clone) {
		t.Error("identity equality depends on the numeric id")
	}
	if a.Key() != clone.Key() {
		t.Errorf("Key differs for equal states: %q vs %q", a.Key(), clone.Key())
	}
}

func TestIsAir(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"minecraft:air", true},
		{"minecraft:cave_air", true},
		{"minecraft:void_air", true},
		{"minecraft:stone", false},
		{"minecraft:airship", false},
	}

	for _, tt := range tests {
		s := NewBlockState(tt.name, 0, nil)
		if got := s.IsAir(); got != tt.want {
			t.Errorf("IsAir(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
