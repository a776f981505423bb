// Package events defines event types and enumerations for the downloader
// event system.
package events

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Session lifecycle events
	EventSessionStarted EventType = "session_started"
	EventSessionClosed  EventType = "session_closed"
	EventPhaseChanged   EventType = "phase_changed"

	// Stream negotiation events
	EventCompressionSet    EventType = "compression_set"
	EventEncryptionEnabled EventType = "encryption_enabled"

	// World events
	EventChunkDecoded     EventType = "chunk_decoded"
	EventChunkUnloaded    EventType = "chunk_unloaded"
	EventDimensionChanged EventType = "dimension_changed"

	// System events
	EventConfigChanged EventType = "config_changed"
	EventNotifyMQTT    EventType = "notify_mqtt"
	EventShutdown      EventType = "shutdown"
)

// SessionStatus represents the current state of one proxied connection.
type SessionStatus int

const (
	SessionStatusUnknown SessionStatus = iota
	SessionStatusHandshaking
	SessionStatusPinging
	SessionStatusLoggingIn
	SessionStatusConfiguring
	SessionStatusPlaying
	SessionStatusBlind
	SessionStatusClosed
)

// sessionStatusStrings maps SessionStatus values to their lowercase JSON
// string representation.
var sessionStatusStrings = map[SessionStatus]string{
	SessionStatusUnknown:     "unknown",
	SessionStatusHandshaking: "handshaking",
	SessionStatusPinging:     "pinging",
	SessionStatusLoggingIn:   "logging_in",
	SessionStatusConfiguring: "configuring",
	SessionStatusPlaying:     "playing",
	SessionStatusBlind:       "blind",
	SessionStatusClosed:      "closed",
}

// String returns the string representation of SessionStatus.
func (s SessionStatus) String() string {
	if str, ok := sessionStatusStrings[s]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes SessionStatus as a JSON string (e.g. "playing").
func (s SessionStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// SessionPayload identifies one proxied connection.
type SessionPayload struct {
	SessionID  uint64
	RemoteAddr string
	Protocol   int
	Version    string
	Status     SessionStatus
}

// ChunkPayload is emitted for every decoded or unloaded chunk column.
type ChunkPayload struct {
	SessionID uint64
	Dimension string
	X, Z      int32
	Sections  int
	Blocks    int
}

// DimensionPayload is emitted when a session joins a world or respawns into
// another dimension.
type DimensionPayload struct {
	SessionID uint64
	Dimension string
}

// CompressionPayload records the threshold negotiated on a session.
type CompressionPayload struct {
	SessionID uint64
	Threshold int
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string
	Key     string
	Value   interface{}
}
