package game

import (
	"fmt"

	"github.com/n90p/minecraft-world-downloader/internal/protocol"
)

// Vanilla dimension identifiers. Servers may define more; identifiers read
// off the wire are used as-is.
const (
	DimensionOverworld = "minecraft:overworld"
	DimensionNether    = "minecraft:the_nether"
	DimensionEnd       = "minecraft:the_end"
)

// ParseWorldChange extracts the target dimension from a join-game or respawn
// packet body, positioned after the packet id. The encoding shifted several
// times: a numeric id before 1.16, an identifier string in 1.16, a property
// compound followed by the world name through 1.18.2, and a type/name
// identifier pair since 1.19, the type collapsing to a registry index in
// 1.20.5. Fields past the dimension are left unread.
func ParseWorldChange(b *protocol.Buffer, protocolVersion int, respawn bool) (string, error) {
	switch {
	case protocolVersion < protocol.VersionPaddedBits:
		return parseNumericDimension(b, respawn)
	case protocolVersion < 751: // 1.16, 1.16.1
		if !respawn {
			if err := skipJoinPreamble(b, protocolVersion); err != nil {
				return "", err
			}
		}
		return b.String()
	case protocolVersion < 759: // 1.16.2 through 1.18.2
		if !respawn {
			if err := skipJoinPreamble(b, protocolVersion); err != nil {
				return "", err
			}
		}
		// A compound of dimension properties precedes the world name.
		if _, err := b.NBT(false); err != nil {
			return "", fmt.Errorf("dimension properties: %w", err)
		}
		return b.String()
	default: // 1.19+
		if !respawn {
			if err := skipJoinPreamble(b, protocolVersion); err != nil {
				return "", err
			}
		}
		// Dimension type, then the dimension name the chunks belong to.
		if protocolVersion >= 766 {
			if _, err := b.VarInt(); err != nil {
				return "", fmt.Errorf("dimension type: %w", err)
			}
		} else {
			if _, err := b.String(); err != nil {
				return "", fmt.Errorf("dimension type: %w", err)
			}
		}
		return b.String()
	}
}

// parseNumericDimension handles the pre-1.16 encoding: a signed 32-bit id,
// the third join-game field and the first respawn field.
func parseNumericDimension(b *protocol.Buffer, respawn bool) (string, error) {
	if !respawn {
		if _, err := b.Int(); err != nil { // entity id
			return "", err
		}
		if _, err := b.Byte(); err != nil { // gamemode
			return "", err
		}
	}
	id, err := b.Int()
	if err != nil {
		return "", err
	}
	switch id {
	case -1:
		return DimensionNether, nil
	case 1:
		return DimensionEnd, nil
	default:
		return DimensionOverworld, nil
	}
}

// skipJoinPreamble consumes the join-game fields ahead of the dimension for
// the identifier eras.
func skipJoinPreamble(b *protocol.Buffer, protocolVersion int) error {
	if _, err := b.Int(); err != nil { // entity id
		return err
	}
	if protocolVersion >= 751 {
		if _, err := b.Bool(); err != nil { // is hardcore
			return err
		}
	}

	if protocolVersion >= protocol.VersionConfigPhase {
		// 1.20.2 moved registry data to the configuration phase; the join
		// packet keeps only the world list and a few scalars up front.
		count, err := b.VarInt()
		if err != nil {
			return err
		}
		if count < 0 || count > maxWorldNames {
			return fmt.Errorf("%w: %d world names", protocol.ErrTruncated, count)
		}
		for i := int32(0); i < count; i++ {
			if _, err := b.String(); err != nil {
				return err
			}
		}
		if _, err := b.VarInt(); err != nil { // max players
			return err
		}
		if _, err := b.VarInt(); err != nil { // view distance
			return err
		}
		if _, err := b.VarInt(); err != nil { // simulation distance
			return err
		}
		for i := 0; i < 3; i++ { // reduced debug, respawn screen, limited crafting
			if _, err := b.Bool(); err != nil {
				return err
			}
		}
		return nil
	}

	if _, err := b.Byte(); err != nil { // gamemode
		return err
	}
	if _, err := b.Byte(); err != nil { // previous gamemode
		return err
	}
	count, err := b.VarInt()
	if err != nil {
		return err
	}
	if count < 0 || count > maxWorldNames {
		return fmt.Errorf("%w: %d world names", protocol.ErrTruncated, count)
	}
	for i := int32(0); i < count; i++ {
		if _, err := b.String(); err != nil {
			return err
		}
	}
	// Registry codec compound.
	if _, err := b.NBT(false); err != nil {
		return fmt.Errorf("registry codec: %w", err)
	}
	return nil
}

// maxWorldNames bounds the world list so a corrupt count cannot loop the
// parser.
const maxWorldNames = 256
