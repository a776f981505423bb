package proxy

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/n90p/minecraft-world-downloader/internal/config"
	"github.com/n90p/minecraft-world-downloader/internal/events"
	"github.com/n90p/minecraft-world-downloader/internal/world"
)

const dialTimeout = 5 * time.Second

// Listener accepts game clients and pairs each with a connection to the real
// server. Every pair becomes a Session running in its own goroutines.
type Listener struct {
	cfg   *config.Config
	bus   *events.EventBus
	store *world.Store

	listener net.Listener
	stopped  atomic.Bool
	wg       sync.WaitGroup

	mu       sync.RWMutex
	sessions map[uint64]*Session
	nextID   atomic.Uint64
}

// NewListener creates the proxy listener.
func NewListener(cfg *config.Config, bus *events.EventBus, store *world.Store) *Listener {
	return &Listener{
		cfg:      cfg,
		bus:      bus,
		store:    store,
		sessions: make(map[uint64]*Session),
	}
}

// Start binds the listen port and accepts clients until the context ends.
func (l *Listener) Start(ctx context.Context) error {
	proxyCfg := l.cfg.GetProxyData()
	addr := fmt.Sprintf("%s:%d", proxyCfg.ListenAddress, proxyCfg.ListenPort)

	// SO_REUSEADDR allows immediate rebinding after restart
	lc := ReuseAddrListenConfig()
	var err error
	l.listener, err = lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start proxy listener on %s: %w", addr, err)
	}

	log.Info().Str("addr", addr).
		Str("remote", fmt.Sprintf("%s:%d", proxyCfg.RemoteHost, proxyCfg.RemotePort)).
		Msg("proxy listener started")

	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Info().Msg("proxy listener stopping")
				l.wg.Wait()
				return nil
			default:
				if l.stopped.Load() {
					l.wg.Wait()
					return nil
				}
				log.Error().Err(err).Msg("failed to accept connection")
				continue
			}
		}

		if l.SessionCount() >= proxyCfg.MaxSessions {
			log.Warn().Str("remote", conn.RemoteAddr().String()).
				Msg("max sessions reached, dropping connection")
			conn.Close()
			continue
		}

		log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("new client connection")

		l.wg.Add(1)
		go func(client net.Conn) {
			defer l.wg.Done()
			l.handleClient(ctx, client)
		}(conn)
	}
}

// handleClient dials the real server and runs the session to completion.
func (l *Listener) handleClient(ctx context.Context, client net.Conn) {
	defer client.Close()

	proxyCfg := l.cfg.GetProxyData()
	target := fmt.Sprintf("%s:%d", proxyCfg.RemoteHost, proxyCfg.RemotePort)
	server, err := net.DialTimeout("tcp", target, dialTimeout)
	if err != nil {
		log.Error().Err(err).Str("target", target).
			Str("remote", client.RemoteAddr().String()).
			Msg("failed to reach remote server, dropping client")
		return
	}
	defer server.Close()

	session := NewSession(l.nextID.Add(1), l.cfg, l.bus, l.store, client, server)

	l.mu.Lock()
	l.sessions[session.id] = session
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.sessions, session.id)
		l.mu.Unlock()
	}()

	session.Run(ctx)
}

// Stop closes the listener and every live session.
func (l *Listener) Stop() {
	if l.stopped.Swap(true) {
		return
	}
	if l.listener != nil {
		l.listener.Close()
	}

	l.mu.RLock()
	for _, s := range l.sessions {
		s.Close()
	}
	l.mu.RUnlock()

	l.wg.Wait()
	log.Info().Msg("proxy listener stopped")
}

// SessionCount returns the number of live sessions.
func (l *Listener) SessionCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sessions)
}

// Session returns one live session by id.
func (l *Listener) Session(id uint64) (*Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.sessions[id]
	return s, ok
}

// Snapshots copies the observable state of every live session, ordered by id.
func (l *Listener) Snapshots() []Snapshot {
	l.mu.RLock()
	sessions := make([]*Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		sessions = append(sessions, s)
	}
	l.mu.RUnlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
