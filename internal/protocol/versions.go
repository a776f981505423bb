package protocol

// Protocol numbers at which the wire format changed in a way the decoder
// must account for.
const (
	// VersionFlattening (1.13): block states become entries of a version-wide
	// global palette instead of id<<4|meta pairs.
	VersionFlattening = 393
	// VersionBlockCount (1.14): sections carry a non-air block count.
	VersionBlockCount = 477
	// VersionPaddedBits (1.16): bit-packed section entries stop straddling
	// 64-bit words; the tail bits of each word are padding.
	VersionPaddedBits = 735
	// VersionHeightScaled (1.18): section count derives from world height
	// instead of a section bitmask, and biomes become paletted containers.
	VersionHeightScaled = 757
	// VersionConfigPhase (1.20.2): a configuration phase sits between login
	// and play, and typed-tree roots on the wire lose their name.
	VersionConfigPhase = 764
)

// gameVersions maps protocol numbers to the release names used to locate
// the bundled block datasets (blocks-<name>.json). Sorted ascending; a
// protocol between two entries uses the older name.
var gameVersions = []struct {
	protocol int
	name     string
}{
	{335, "1.12"},
	{340, "1.12.2"},
	{393, "1.13"},
	{404, "1.13.2"},
	{477, "1.14"},
	{498, "1.14.4"},
	{573, "1.15"},
	{578, "1.15.2"},
	{735, "1.16"},
	{751, "1.16.2"},
	{754, "1.16.5"},
	{755, "1.17"},
	{757, "1.18"},
	{758, "1.18.2"},
	{759, "1.19"},
	{761, "1.19.3"},
	{762, "1.19.4"},
	{763, "1.20.1"},
	{764, "1.20.2"},
	{766, "1.20.6"},
	{767, "1.21"},
}

// GameVersionName returns the release name for a protocol number, or "" when
// the protocol predates every known release.
func GameVersionName(protocol int) string {
	name := ""
	for _, v := range gameVersions {
		if v.protocol > protocol {
			break
		}
		name = v.name
	}
	return name
}

// ProtocolForName returns the protocol number for an exact release name, or
// 0 when unknown.
func ProtocolForName(name string) int {
	for _, v := range gameVersions {
		if v.name == name {
			return v.protocol
		}
	}
	return 0
}

// KnownVersions lists every release name with a protocol mapping, oldest
// first.
func KnownVersions() []string {
	out := make([]string, len(gameVersions))
	for i, v := range gameVersions {
		out[i] = v.name
	}
	return out
}
