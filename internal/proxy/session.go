// Package proxy implements the transparent intermediary between a game
// client and the real server. Each accepted connection becomes one Session
// with two relay goroutines, one per direction; relayed bytes are forwarded
// unmodified while a copy feeds the inspection path that decodes the world
// data flowing past.
package proxy

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/n90p/minecraft-world-downloader/internal/config"
	"github.com/n90p/minecraft-world-downloader/internal/events"
	"github.com/n90p/minecraft-world-downloader/internal/game"
	"github.com/n90p/minecraft-world-downloader/internal/protocol"
	"github.com/n90p/minecraft-world-downloader/internal/world"
)

const relayBufSize = 32 * 1024

type direction int

const (
	serverbound direction = iota // client -> server
	clientbound                  // server -> client
)

func (d direction) String() string {
	if d == serverbound {
		return "serverbound"
	}
	return "clientbound"
}

// Snapshot is a point-in-time copy of a session's observable state, for the
// API and CLI surfaces.
type Snapshot struct {
	ID             uint64               `json:"id"`
	RemoteAddr     string               `json:"remote_addr"`
	Status         events.SessionStatus `json:"status"`
	Protocol       int                  `json:"protocol"`
	Version        string               `json:"version"`
	Dimension      string               `json:"dimension"`
	Compression    int                  `json:"compression_threshold"`
	Encrypted      bool                 `json:"encrypted"`
	ChunksDecoded  uint64               `json:"chunks_decoded"`
	ChunksUnloaded uint64               `json:"chunks_unloaded"`
	BytesUp        uint64               `json:"bytes_up"`
	BytesDown      uint64               `json:"bytes_down"`
	StartedAt      time.Time            `json:"started_at"`
}

// Session relays one client connection to the remote server. The relay path
// is a plain byte copy; the inspection path runs inline on the relaying
// goroutine after the forward write, so a slow decode never reorders traffic.
//
// Negotiated stream state (phase, compression, ciphers) is guarded by mu
// because both directions read it and the clientbound direction mutates it.
type Session struct {
	id     uint64
	cfg    *config.Config
	bus    *events.EventBus
	store  *world.Store
	logger zerolog.Logger

	client net.Conn
	server net.Conn

	mu        sync.Mutex
	phase     protocol.Phase
	proto     int
	version   string
	dimension string
	status    events.SessionStatus
	framers   [2]*protocol.Framer
	ciphers   [2]*protocol.StreamCipher
	palette   *game.GlobalPalette
	decoder   *game.ChunkDecoder
	secret    []byte
	encrypted bool

	// blind is set when the stream becomes uninspectable: encryption with an
	// unknown secret, or a framing violation. Relaying continues regardless.
	blind atomic.Bool

	closed atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup

	chunksDecoded  atomic.Uint64
	chunksUnloaded atomic.Uint64
	bytesUp        atomic.Uint64
	bytesDown      atomic.Uint64
	startedAt      time.Time
}

// NewSession wires one accepted client connection to a dialed server
// connection.
func NewSession(id uint64, cfg *config.Config, bus *events.EventBus, store *world.Store,
	client, server net.Conn) *Session {

	s := &Session{
		id:        id,
		cfg:       cfg,
		bus:       bus,
		store:     store,
		client:    client,
		server:    server,
		phase:     protocol.PhaseHandshake,
		dimension: "minecraft:overworld",
		status:    events.SessionStatusHandshaking,
		startedAt: time.Now(),
		logger: log.With().
			Str("component", "session").
			Uint64("session", id).
			Str("remote", client.RemoteAddr().String()).
			Logger(),
	}
	s.framers[serverbound] = protocol.NewFramer()
	s.framers[clientbound] = protocol.NewFramer()
	return s
}

// Run starts both relay directions and blocks until the session ends.
func (s *Session) Run(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	s.bus.Emit(ctx, events.Event{
		Type:    events.EventSessionStarted,
		Source:  s.source(),
		Payload: events.SessionPayload{SessionID: s.id, RemoteAddr: s.client.RemoteAddr().String()},
	})

	s.wg.Add(2)
	go s.relay(ctx, s.client, s.server, serverbound)
	go s.relay(ctx, s.server, s.client, clientbound)

	go func() {
		<-ctx.Done()
		s.client.Close()
		s.server.Close()
	}()

	s.wg.Wait()
	s.finish(ctx)
}

// Close tears the session down. Safe to call from any goroutine.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// relay copies src to dst until either side fails, feeding each forwarded
// slice to the inspection path.
func (s *Session) relay(ctx context.Context, src, dst net.Conn, dir direction) {
	defer s.wg.Done()
	defer s.Close()

	timeout := time.Duration(s.cfg.GetProxyData().SessionTimeout) * time.Second
	buf := make([]byte, relayBufSize)

	for {
		if timeout > 0 {
			src.SetReadDeadline(time.Now().Add(timeout))
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				if !s.closed.Load() {
					s.logger.Debug().Err(werr).Stringer("direction", dir).Msg("relay write failed")
				}
				return
			}
			if dir == serverbound {
				s.bytesUp.Add(uint64(n))
			} else {
				s.bytesDown.Add(uint64(n))
			}
			s.inspect(ctx, dir, buf[:n])
		}
		if err != nil {
			if !s.closed.Load() && ctx.Err() == nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					s.logger.Warn().Stringer("direction", dir).Msg("session timed out")
				} else {
					s.logger.Debug().Err(err).Stringer("direction", dir).Msg("relay ended")
				}
			}
			return
		}
	}
}

// inspect feeds forwarded bytes into the direction's framer and handles every
// complete frame. A framing violation stops inspection and ends the session:
// once the stream is misaligned nothing downstream of it can be trusted.
func (s *Session) inspect(ctx context.Context, dir direction, data []byte) {
	if s.blind.Load() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.ciphers[dir]; c != nil {
		plain := make([]byte, len(data))
		c.XORKeyStream(plain, data)
		data = plain
	}

	framer := s.framers[dir]
	framer.Feed(data)
	for {
		frame, err := framer.Next()
		if err != nil {
			s.logger.Error().Err(err).Stringer("direction", dir).
				Msg("stream violation, closing session")
			s.blind.Store(true)
			s.setStatusLocked(events.SessionStatusBlind)
			s.Close()
			return
		}
		if frame == nil {
			return
		}
		s.handleFrame(ctx, dir, frame)
		if s.blind.Load() {
			return
		}
	}
}

// handleFrame classifies and processes one plaintext frame. Called with mu
// held.
func (s *Session) handleFrame(ctx context.Context, dir direction, frame []byte) {
	b := protocol.NewBuffer(frame)
	id, err := b.VarInt()
	if err != nil {
		s.logger.Debug().Stringer("direction", dir).Msg("frame without packet id")
		return
	}

	var kind protocol.PacketKind
	if dir == serverbound {
		kind = protocol.ClassifyServerbound(s.phase, s.proto, id)
	} else {
		kind = protocol.ClassifyClientbound(s.phase, s.proto, id)
	}
	if kind == protocol.PacketUnknown {
		return
	}

	switch kind {
	case protocol.PacketHandshake:
		s.handleHandshake(ctx, b)
	case protocol.PacketLoginAcknowledged:
		s.phase = protocol.PhaseConfiguration
		s.setStatusLocked(events.SessionStatusConfiguring)
	case protocol.PacketConfigurationAck:
		s.phase = protocol.PhasePlay
		s.setStatusLocked(events.SessionStatusPlaying)
	case protocol.PacketSetCompression:
		s.handleSetCompression(ctx, b)
	case protocol.PacketEncryptionRequest:
		s.handleEncryptionRequest(ctx)
	case protocol.PacketEncryptionResponse:
		s.handleEncryptionResponse()
	case protocol.PacketLoginSuccess:
		if s.proto >= protocol.VersionConfigPhase {
			s.phase = protocol.PhaseConfiguration
			s.setStatusLocked(events.SessionStatusConfiguring)
		} else {
			s.phase = protocol.PhasePlay
			s.setStatusLocked(events.SessionStatusPlaying)
		}
	case protocol.PacketFinishConfiguration:
		// Phase flips on the serverbound acknowledgement.
	case protocol.PacketJoinGame, protocol.PacketRespawn:
		s.handleWorldChange(ctx, kind, b)
	case protocol.PacketChunkData:
		s.handleChunkData(ctx, b.Rest())
	case protocol.PacketUnloadChunk:
		s.handleUnloadChunk(ctx, b)
	}
}

func (s *Session) handleHandshake(ctx context.Context, b *protocol.Buffer) {
	h, err := protocol.ParseHandshake(b)
	if err != nil {
		s.logger.Error().Err(err).Msg("bad handshake, closing session")
		s.Close()
		return
	}

	s.proto = h.Protocol
	s.version = protocol.GameVersionName(h.Protocol)
	if configured := s.cfg.GetProxyData().GameVersion; configured != "" && configured != "auto" {
		s.version = configured
		s.proto = protocol.ProtocolForName(configured)
	}
	s.phase = h.NextPhase

	if h.NextPhase == protocol.PhaseStatus {
		s.setStatusLocked(events.SessionStatusPinging)
		return
	}

	if s.proto < protocol.VersionFlattening {
		s.logger.Warn().Int("protocol", h.Protocol).
			Msg("protocol predates flattened block states, world capture disabled")
		s.blind.Store(true)
		s.setStatusLocked(events.SessionStatusBlind)
		return
	}

	s.setStatusLocked(events.SessionStatusLoggingIn)
	s.palette = game.PaletteFor(s.cfg.GetProxyData().ResourceDirectory, s.version)
	s.decoder = game.NewChunkDecoder(s.proto, s.palette, s.logger)

	s.logger.Info().Int("protocol", s.proto).Str("version", s.version).
		Str("target", h.Address).Msg("client logging in")
	s.bus.Emit(ctx, events.Event{
		Type:   events.EventPhaseChanged,
		Source: s.source(),
		Payload: events.SessionPayload{
			SessionID: s.id, RemoteAddr: s.client.RemoteAddr().String(),
			Protocol: s.proto, Version: s.version, Status: s.status,
		},
	})
}

func (s *Session) handleSetCompression(ctx context.Context, b *protocol.Buffer) {
	threshold, err := b.VarInt()
	if err != nil {
		s.logger.Warn().Err(err).Msg("unreadable compression threshold")
		return
	}
	s.framers[serverbound].SetThreshold(int(threshold))
	s.framers[clientbound].SetThreshold(int(threshold))
	s.logger.Info().Int32("threshold", threshold).Msg("compression enabled")
	s.bus.Emit(ctx, events.Event{
		Type:    events.EventCompressionSet,
		Source:  s.source(),
		Payload: events.CompressionPayload{SessionID: s.id, Threshold: int(threshold)},
	})
}

// handleEncryptionRequest reacts to the server starting cipher negotiation.
// The shared secret travels encrypted with the server's public key, so a
// passive intermediary never sees it; unless one was provided out of band the
// session keeps relaying but stops inspecting.
//
// The two directions turn ciphered at different points: everything the server
// sends after this request is encrypted, but the client's next packet, the
// encryption response, is still plaintext. Only the clientbound decrypter is
// armed here; the serverbound one waits for the response to pass.
func (s *Session) handleEncryptionRequest(ctx context.Context) {
	s.encrypted = true
	s.bus.Emit(ctx, events.Event{
		Type:    events.EventEncryptionEnabled,
		Source:  s.source(),
		Payload: events.SessionPayload{SessionID: s.id, Protocol: s.proto, Version: s.version},
	})

	if len(s.secret) == 0 {
		s.logger.Warn().Msg("server requires encryption and no shared secret is known, world capture disabled")
		s.blind.Store(true)
		s.setStatusLocked(events.SessionStatusBlind)
		return
	}

	if err := s.armCipherLocked(clientbound); err != nil {
		s.logger.Error().Err(err).Msg("bad shared secret, world capture disabled")
		s.blind.Store(true)
		s.setStatusLocked(events.SessionStatusBlind)
		return
	}
	s.logger.Info().Msg("stream encryption enabled, inspecting with provided secret")
}

// handleEncryptionResponse marks the client's cipher boundary: the response
// itself is the last plaintext serverbound packet, so the serverbound
// decrypter starts right behind it.
func (s *Session) handleEncryptionResponse() {
	if !s.encrypted || len(s.secret) == 0 || s.blind.Load() {
		return
	}
	if err := s.armCipherLocked(serverbound); err != nil {
		s.logger.Error().Err(err).Msg("bad shared secret, world capture disabled")
		s.blind.Store(true)
		s.setStatusLocked(events.SessionStatusBlind)
	}
}

// armCipherLocked installs the inspection decrypter for one direction. Bytes
// already buffered in the direction's framer arrived before the transform
// existed; they sit behind the cipher boundary and are re-fed through it so
// the stream position stays aligned. Called with mu held.
func (s *Session) armCipherLocked(dir direction) error {
	c, err := protocol.NewDecrypter(s.secret)
	if err != nil {
		return err
	}
	if rest := s.framers[dir].Drain(); len(rest) > 0 {
		c.XORKeyStream(rest, rest)
		s.framers[dir].Feed(rest)
	}
	s.ciphers[dir] = c
	return nil
}

// handleWorldChange tracks the dimension the following chunks belong to and
// resets the per-dimension decode context. Vanilla nether and end have no sky
// light and start at section zero; everything else is treated as
// overworld-shaped, including custom dimensions.
func (s *Session) handleWorldChange(ctx context.Context, kind protocol.PacketKind, b *protocol.Buffer) {
	if kind == protocol.PacketJoinGame {
		s.setStatusLocked(events.SessionStatusPlaying)
		s.phase = protocol.PhasePlay
	}

	dim, err := game.ParseWorldChange(b, s.proto, kind == protocol.PacketRespawn)
	if err != nil {
		s.logger.Warn().Err(err).Stringer("packet", kind).
			Str("dimension", s.dimension).Msg("unreadable dimension, keeping previous")
	} else if dim != "" {
		s.dimension = dim
	}

	if s.decoder != nil {
		skyLight := true
		minY := 0
		switch s.dimension {
		case game.DimensionNether, game.DimensionEnd:
			skyLight = false
		default:
			if s.proto >= protocol.VersionHeightScaled {
				minY = -4
			}
		}
		s.decoder.SetDimension(skyLight, minY)
	}
	s.bus.Emit(ctx, events.Event{
		Type:    events.EventDimensionChanged,
		Source:  s.source(),
		Payload: events.DimensionPayload{SessionID: s.id, Dimension: s.dimension},
	})
}

func (s *Session) handleChunkData(ctx context.Context, body []byte) {
	if s.decoder == nil {
		return
	}
	chunk, err := s.decoder.Decode(body)
	if err != nil {
		s.logger.Warn().Err(err).Msg("chunk decode failed, column skipped")
		return
	}

	if err := s.store.Put(chunk, s.dimension, s.version); err != nil {
		s.logger.Error().Err(err).Int32("x", chunk.X).Int32("z", chunk.Z).
			Msg("failed to store chunk")
		return
	}
	s.chunksDecoded.Add(1)

	blocks := 0
	for _, section := range chunk.Sections {
		blocks += section.BlockCount
	}
	s.logger.Debug().Int32("x", chunk.X).Int32("z", chunk.Z).
		Int("sections", len(chunk.Sections)).Int("blocks", blocks).Msg("chunk captured")
	s.bus.Emit(ctx, events.Event{
		Type:   events.EventChunkDecoded,
		Source: s.source(),
		Payload: events.ChunkPayload{
			SessionID: s.id, Dimension: s.dimension,
			X: chunk.X, Z: chunk.Z, Sections: len(chunk.Sections), Blocks: blocks,
		},
	})
}

func (s *Session) handleUnloadChunk(ctx context.Context, b *protocol.Buffer) {
	x, z, err := game.ParseUnloadChunk(b, s.proto)
	if err != nil {
		s.logger.Debug().Err(err).Msg("unreadable unload packet")
		return
	}
	s.store.Delete(x, z, s.dimension)
	s.chunksUnloaded.Add(1)
	s.bus.Emit(ctx, events.Event{
		Type:    events.EventChunkUnloaded,
		Source:  s.source(),
		Payload: events.ChunkPayload{SessionID: s.id, Dimension: s.dimension, X: x, Z: z},
	})
}

// SetSecret provides the shared secret for streams whose encryption key is
// known out of band, so inspection can survive cipher negotiation.
func (s *Session) SetSecret(secret []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = append([]byte(nil), secret...)
}

func (s *Session) setStatusLocked(status events.SessionStatus) {
	s.status = status
}

func (s *Session) source() string {
	return fmt.Sprintf("session:%d", s.id)
}

func (s *Session) finish(ctx context.Context) {
	s.mu.Lock()
	s.status = events.SessionStatusClosed
	s.mu.Unlock()

	s.logger.Info().
		Uint64("chunks", s.chunksDecoded.Load()).
		Uint64("bytes_up", s.bytesUp.Load()).
		Uint64("bytes_down", s.bytesDown.Load()).
		Dur("duration", time.Since(s.startedAt)).
		Msg("session closed")

	s.bus.Emit(ctx, events.Event{
		Type:   events.EventSessionClosed,
		Source: s.source(),
		Payload: events.SessionPayload{
			SessionID: s.id, RemoteAddr: s.client.RemoteAddr().String(),
			Protocol: s.proto, Version: s.version, Status: events.SessionStatusClosed,
		},
	})
}

// Snapshot copies the session's observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:             s.id,
		RemoteAddr:     s.client.RemoteAddr().String(),
		Status:         s.status,
		Protocol:       s.proto,
		Version:        s.version,
		Dimension:      s.dimension,
		Compression:    s.framers[clientbound].Threshold(),
		Encrypted:      s.encrypted,
		ChunksDecoded:  s.chunksDecoded.Load(),
		ChunksUnloaded: s.chunksUnloaded.Load(),
		BytesUp:        s.bytesUp.Load(),
		BytesDown:      s.bytesDown.Load(),
		StartedAt:      s.startedAt,
	}
}
