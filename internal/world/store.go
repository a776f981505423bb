// Package world implements the persistent chunk store. Decoded columns are
// serialized to their typed-tree form and buffered in memory; a background
// flush writes them to a SQLite database so a crash loses at most one flush
// interval of progress.
package world

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/n90p/minecraft-world-downloader/internal/game"
	"github.com/n90p/minecraft-world-downloader/internal/nbt"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	x          INTEGER NOT NULL,
	z          INTEGER NOT NULL,
	dimension  TEXT    NOT NULL,
	version    TEXT    NOT NULL,
	sections   INTEGER NOT NULL,
	blocks     INTEGER NOT NULL,
	data       BLOB    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (x, z, dimension)
);
CREATE INDEX IF NOT EXISTS idx_chunks_updated ON chunks(updated_at);
`

type chunkKey struct {
	x, z      int32
	dimension string
}

type pendingChunk struct {
	key      chunkKey
	version  string
	sections int
	blocks   int
	data     []byte
	deleted  bool
}

// ChunkInfo describes one stored column, for the API and CLI surfaces.
type ChunkInfo struct {
	X         int32     `json:"x"`
	Z         int32     `json:"z"`
	Dimension string    `json:"dimension"`
	Version   string    `json:"version"`
	Sections  int       `json:"sections"`
	Blocks    int       `json:"blocks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the SQLite-backed chunk archive. Puts and deletes land in an
// in-memory buffer; Flush moves the buffer to disk in one transaction.
type Store struct {
	mu      sync.Mutex
	db      *sql.DB
	path    string
	pending map[chunkKey]*pendingChunk
	written uint64
}

// Open opens or creates the chunk database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create world directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open world database %s: %w", dbPath, err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// WAL mode for better read concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Warn().Err(err).Msg("failed to enable WAL mode")
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create world schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("world database ping failed: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("world database opened")

	return &Store{
		db:      db,
		path:    dbPath,
		pending: make(map[chunkKey]*pendingChunk),
	}, nil
}

// Close flushes outstanding chunks and closes the database.
func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		log.Error().Err(err).Msg("final flush failed")
	}
	return s.db.Close()
}

// Put buffers one decoded column for the next flush. A later Put for the
// same position replaces the earlier one, so redelivered chunks cost one
// row, not two.
func (s *Store) Put(c *game.Chunk, dimension, version string) error {
	var buf bytes.Buffer
	if err := nbt.Write(&buf, "", c.Tree()); err != nil {
		return fmt.Errorf("failed to serialize chunk (%d, %d): %w", c.X, c.Z, err)
	}

	blocks := 0
	for _, section := range c.Sections {
		blocks += section.BlockCount
	}

	key := chunkKey{x: c.X, z: c.Z, dimension: dimension}
	s.mu.Lock()
	s.pending[key] = &pendingChunk{
		key:      key,
		version:  version,
		sections: len(c.Sections),
		blocks:   blocks,
		data:     buf.Bytes(),
	}
	s.mu.Unlock()
	return nil
}

// Delete buffers the removal of one column. Unload packets arrive when the
// player walks away; removal keeps the archive limited to terrain the
// session actually held, unless the row was already flushed and never
// re-sent.
func (s *Store) Delete(x, z int32, dimension string) {
	key := chunkKey{x: x, z: z, dimension: dimension}
	s.mu.Lock()
	s.pending[key] = &pendingChunk{key: key, deleted: true}
	s.mu.Unlock()
}

// Flush writes the buffered puts and deletes in one transaction.
func (s *Store) Flush() error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.pending
	s.pending = make(map[chunkKey]*pendingChunk)
	s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		s.requeue(batch)
		return fmt.Errorf("failed to begin flush transaction: %w", err)
	}

	now := time.Now().Unix()
	for _, p := range batch {
		if p.deleted {
			_, err = tx.Exec(`DELETE FROM chunks WHERE x = ? AND z = ? AND dimension = ?`,
				p.key.x, p.key.z, p.key.dimension)
		} else {
			_, err = tx.Exec(`
				INSERT INTO chunks (x, z, dimension, version, sections, blocks, data, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (x, z, dimension) DO UPDATE SET
					version = excluded.version,
					sections = excluded.sections,
					blocks = excluded.blocks,
					data = excluded.data,
					updated_at = excluded.updated_at`,
				p.key.x, p.key.z, p.key.dimension, p.version, p.sections, p.blocks, p.data, now)
		}
		if err != nil {
			tx.Rollback()
			s.requeue(batch)
			return fmt.Errorf("failed to write chunk (%d, %d): %w", p.key.x, p.key.z, err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.requeue(batch)
		return fmt.Errorf("failed to commit flush: %w", err)
	}

	s.mu.Lock()
	s.written += uint64(len(batch))
	s.mu.Unlock()

	log.Debug().Int("chunks", len(batch)).Msg("world flush complete")
	return nil
}

// requeue puts a failed batch back without clobbering newer buffered writes.
func (s *Store) requeue(batch map[chunkKey]*pendingChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range batch {
		if _, exists := s.pending[key]; !exists {
			s.pending[key] = p
		}
	}
}

// Pending returns the number of buffered, unflushed chunk operations.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Written returns the total chunk operations flushed since open.
func (s *Store) Written() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Count returns the stored column count per dimension.
func (s *Store) Count() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT dimension, COUNT(*) FROM chunks GROUP BY dimension`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var dim string
		var n int
		if err := rows.Scan(&dim, &n); err != nil {
			return nil, err
		}
		counts[dim] = n
	}
	return counts, rows.Err()
}

// Recent returns the most recently updated columns, newest first.
func (s *Store) Recent(limit int) ([]ChunkInfo, error) {
	rows, err := s.db.Query(`
		SELECT x, z, dimension, version, sections, blocks, updated_at
		FROM chunks ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChunkInfo
	for rows.Next() {
		var info ChunkInfo
		var updated int64
		if err := rows.Scan(&info.X, &info.Z, &info.Dimension, &info.Version,
			&info.Sections, &info.Blocks, &updated); err != nil {
			return nil, err
		}
		info.UpdatedAt = time.Unix(updated, 0)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Get loads one stored column's serialized tree.
func (s *Store) Get(x, z int32, dimension string) (nbt.Tag, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM chunks WHERE x = ? AND z = ? AND dimension = ?`,
		x, z, dimension).Scan(&data)
	if err != nil {
		return nil, err
	}
	_, tag, err := nbt.Read(bytes.NewReader(data))
	return tag, err
}
