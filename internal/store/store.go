// Package store persists the durable subset of the player state in SQLite.
// Only the whitelisted fields cross this boundary; transport, time and A/B
// comparison state never reach disk so a restart can't resume into a stale
// playing state.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tonewiki/pkg/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// schemaVersion is written alongside every saved state. It is not yet
// interpreted on load; it exists so a future shape change can migrate
// instead of discarding the listener's queue.
const schemaVersion = 1

// Store wraps a *sql.DB holding a single-row player_state table. Safe for
// concurrent use because the underlying *sql.DB is concurrency-safe.
type Store struct {
	conn   *sql.DB
	logger *logrus.Logger

	saveStmt *sql.Stmt
	loadStmt *sql.Stmt
}

// NewStore opens (or creates) a SQLite database at the provided path and
// ensures the state table exists. Caller should Close() it when finished.
func NewStore(dbPath string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// A single-row table needs no pool to speak of.
	conn.SetMaxOpenConns(2)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=memory;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	s := &Store{conn: conn, logger: logger}

	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("State store initialized")
	return s, nil
}

// createTables creates the state table if it does not already exist. The
// CHECK constraint pins the table to one row; saves are upserts against it.
func (s *Store) createTables() error {
	stateTable := `
	CREATE TABLE IF NOT EXISTS player_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL,
		volume REAL NOT NULL,
		is_muted BOOLEAN NOT NULL,
		repeat_mode TEXT NOT NULL,
		is_shuffled BOOLEAN NOT NULL,
		playlist TEXT NOT NULL,
		current_index INTEGER NOT NULL,
		current_track TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	_, err := s.conn.Exec(stateTable)
	return err
}

func (s *Store) prepareStatements() error {
	var err error

	s.saveStmt, err = s.conn.Prepare(`
		INSERT INTO player_state (id, schema_version, volume, is_muted, repeat_mode, is_shuffled, playlist, current_index, current_track, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			volume = excluded.volume,
			is_muted = excluded.is_muted,
			repeat_mode = excluded.repeat_mode,
			is_shuffled = excluded.is_shuffled,
			playlist = excluded.playlist,
			current_index = excluded.current_index,
			current_track = excluded.current_track,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.loadStmt, err = s.conn.Prepare(`
		SELECT volume, is_muted, repeat_mode, is_shuffled, playlist, current_index, current_track
		FROM player_state WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	return nil
}

// Save writes the persisted state, replacing whatever was stored before.
func (s *Store) Save(ps models.PersistedState) error {
	playlist, err := json.Marshal(ps.Playlist)
	if err != nil {
		return fmt.Errorf("failed to encode playlist: %w", err)
	}

	var currentTrack sql.NullString
	if ps.CurrentTrack != nil {
		raw, err := json.Marshal(ps.CurrentTrack)
		if err != nil {
			return fmt.Errorf("failed to encode current track: %w", err)
		}
		currentTrack = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = s.saveStmt.Exec(schemaVersion, ps.Volume, ps.IsMuted, string(ps.RepeatMode),
		ps.IsShuffled, string(playlist), ps.CurrentIndex, currentTrack)
	if err != nil {
		return fmt.Errorf("failed to save player state: %w", err)
	}
	return nil
}

// Load reads the persisted state. A store that has never been saved to
// returns (nil, nil); callers start from defaults.
func (s *Store) Load() (*models.PersistedState, error) {
	var (
		ps           models.PersistedState
		repeatMode   string
		playlistRaw  string
		currentTrack sql.NullString
	)

	err := s.loadStmt.QueryRow().Scan(&ps.Volume, &ps.IsMuted, &repeatMode,
		&ps.IsShuffled, &playlistRaw, &ps.CurrentIndex, &currentTrack)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load player state: %w", err)
	}

	ps.RepeatMode = models.RepeatMode(repeatMode)
	if err := json.Unmarshal([]byte(playlistRaw), &ps.Playlist); err != nil {
		return nil, fmt.Errorf("failed to decode playlist: %w", err)
	}
	if currentTrack.Valid {
		var track models.MediaTrack
		if err := json.Unmarshal([]byte(currentTrack.String), &track); err != nil {
			return nil, fmt.Errorf("failed to decode current track: %w", err)
		}
		ps.CurrentTrack = &track
	}

	return &ps, nil
}

// Close releases the prepared statements and the connection.
func (s *Store) Close() error {
	if s.saveStmt != nil {
		s.saveStmt.Close()
	}
	if s.loadStmt != nil {
		s.loadStmt.Close()
	}
	return s.conn.Close()
}
