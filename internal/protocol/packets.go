package protocol

import "fmt"

// Phase is the connection phase of the proxied protocol. The same numeric
// packet id means different things in different phases (and versions), so
// classification always keys on (phase, version, id).
type Phase int

const (
	PhaseHandshake Phase = iota
	PhaseStatus
	PhaseLogin
	PhaseConfiguration
	PhasePlay
)

var phaseNames = map[Phase]string{
	PhaseHandshake:     "handshake",
	PhaseStatus:        "status",
	PhaseLogin:         "login",
	PhaseConfiguration: "configuration",
	PhasePlay:          "play",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

// PacketKind names the packets the inspection path needs to understand.
// Everything else passes through as opaque bytes.
type PacketKind int

const (
	PacketUnknown PacketKind = iota

	// Serverbound
	PacketHandshake
	PacketLoginStart
	PacketEncryptionResponse
	PacketLoginAcknowledged
	PacketConfigurationAck

	// Clientbound
	PacketEncryptionRequest
	PacketLoginSuccess
	PacketSetCompression
	PacketFinishConfiguration
	PacketJoinGame
	PacketRespawn
	PacketChunkData
	PacketUnloadChunk
)

var packetKindNames = map[PacketKind]string{
	PacketUnknown:             "unknown",
	PacketHandshake:           "handshake",
	PacketLoginStart:          "login_start",
	PacketEncryptionResponse:  "encryption_response",
	PacketLoginAcknowledged:   "login_acknowledged",
	PacketConfigurationAck:    "configuration_ack",
	PacketEncryptionRequest:   "encryption_request",
	PacketLoginSuccess:        "login_success",
	PacketSetCompression:      "set_compression",
	PacketFinishConfiguration: "finish_configuration",
	PacketJoinGame:            "join_game",
	PacketRespawn:             "respawn",
	PacketChunkData:           "chunk_data",
	PacketUnloadChunk:         "unload_chunk",
}

func (k PacketKind) String() string {
	if s, ok := packetKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// playIDs holds the clientbound play-phase ids the core tracks, for one
// protocol range. Ids drift between releases; ranges are sorted ascending
// and the highest entry not above the protocol applies.
type playIDs struct {
	minProtocol int
	chunkData   int32
	unloadChunk int32
	joinGame    int32
	respawn     int32
}

var clientboundPlay = []playIDs{
	{minProtocol: 393, chunkData: 0x22, unloadChunk: 0x1F, joinGame: 0x25, respawn: 0x38},
	{minProtocol: 477, chunkData: 0x21, unloadChunk: 0x1D, joinGame: 0x25, respawn: 0x3A},
	{minProtocol: 573, chunkData: 0x22, unloadChunk: 0x1E, joinGame: 0x26, respawn: 0x3B},
	{minProtocol: 735, chunkData: 0x21, unloadChunk: 0x1D, joinGame: 0x25, respawn: 0x3A},
	{minProtocol: 751, chunkData: 0x20, unloadChunk: 0x1C, joinGame: 0x24, respawn: 0x39},
	{minProtocol: 755, chunkData: 0x22, unloadChunk: 0x1D, joinGame: 0x26, respawn: 0x3D},
	{minProtocol: 759, chunkData: 0x1F, unloadChunk: 0x1A, joinGame: 0x23, respawn: 0x3B},
	{minProtocol: 762, chunkData: 0x24, unloadChunk: 0x1E, joinGame: 0x28, respawn: 0x41},
	{minProtocol: 764, chunkData: 0x25, unloadChunk: 0x1F, joinGame: 0x29, respawn: 0x43},
	{minProtocol: 767, chunkData: 0x27, unloadChunk: 0x21, joinGame: 0x2B, respawn: 0x47},
}

func playIDsFor(protocol int) playIDs {
	ids := clientboundPlay[0]
	for _, entry := range clientboundPlay {
		if entry.minProtocol > protocol {
			break
		}
		ids = entry
	}
	return ids
}

// ClassifyClientbound maps a (phase, protocol, id) triple from the
// server-to-client direction to a packet kind.
func ClassifyClientbound(phase Phase, protocol int, id int32) PacketKind {
	switch phase {
	case PhaseLogin:
		switch id {
		case 0x01:
			return PacketEncryptionRequest
		case 0x02:
			return PacketLoginSuccess
		case 0x03:
			return PacketSetCompression
		}
	case PhaseConfiguration:
		// 1.20.5 reshuffled the configuration registry ids.
		finish := int32(0x02)
		if protocol >= 766 {
			finish = 0x03
		}
		if id == finish {
			return PacketFinishConfiguration
		}
	case PhasePlay:
		ids := playIDsFor(protocol)
		switch id {
		case ids.chunkData:
			return PacketChunkData
		case ids.unloadChunk:
			return PacketUnloadChunk
		case ids.joinGame:
			return PacketJoinGame
		case ids.respawn:
			return PacketRespawn
		}
	}
	return PacketUnknown
}

// ClassifyServerbound maps a (phase, protocol, id) triple from the
// client-to-server direction to a packet kind.
func ClassifyServerbound(phase Phase, protocol int, id int32) PacketKind {
	switch phase {
	case PhaseHandshake:
		if id == 0x00 {
			return PacketHandshake
		}
	case PhaseLogin:
		switch id {
		case 0x00:
			return PacketLoginStart
		case 0x01:
			return PacketEncryptionResponse
		case 0x03:
			if protocol >= VersionConfigPhase {
				return PacketLoginAcknowledged
			}
		}
	case PhaseConfiguration:
		ack := int32(0x02)
		if protocol >= 766 {
			ack = 0x03
		}
		if id == ack {
			return PacketConfigurationAck
		}
	}
	return PacketUnknown
}

// Handshake is the first serverbound packet: it announces the protocol
// version and the phase the client wants next.
type Handshake struct {
	Protocol  int
	Address   string
	Port      uint16
	NextPhase Phase
}

// ParseHandshake decodes a handshake packet body.
func ParseHandshake(b *Buffer) (*Handshake, error) {
	proto, err := b.VarInt()
	if err != nil {
		return nil, err
	}
	addr, err := b.String()
	if err != nil {
		return nil, err
	}
	port, err := b.UShort()
	if err != nil {
		return nil, err
	}
	next, err := b.VarInt()
	if err != nil {
		return nil, err
	}

	h := &Handshake{Protocol: int(proto), Address: addr, Port: port}
	switch next {
	case 1:
		h.NextPhase = PhaseStatus
	case 2, 3: // 3 is the transfer intent added in 1.20.5
		h.NextPhase = PhaseLogin
	default:
		return nil, fmt.Errorf("%w: handshake next state %d", ErrProtocolViolation, next)
	}
	return h, nil
}
