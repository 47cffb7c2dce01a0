package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// ============================================================================
// SQLITE STORE
// ============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS session_bindings (
	session_id    TEXT PRIMARY KEY,
	agent         TEXT NOT NULL DEFAULT '',
	remote        TEXT NOT NULL DEFAULT '{}',
	last_activity INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_bindings_agent
	ON session_bindings (agent);
`

// SQLStore persists bindings in SQLite so stickiness survives restarts.
// Idle bindings are evicted lazily on read and opportunistically on write.
type SQLStore struct {
	db          *sql.DB
	idleTimeout time.Duration
	logger      *slog.Logger
}

// NewSQLStore opens (or creates) the database at path. Use ":memory:" for
// an in-memory database in tests.
func NewSQLStore(path string, idleTimeout time.Duration, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create session db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}
	// Single writer; also keeps ":memory:" on one connection so every
	// query sees the same database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session schema: %w", err)
	}

	logger.Info("session store opened", "path", path)
	return &SQLStore{db: db, idleTimeout: idleTimeout, logger: logger}, nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, sessionID string) (*Binding, bool, error) {
	var (
		agent      string
		remoteJSON string
		lastUnix   int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT agent, remote, last_activity FROM session_bindings WHERE session_id = ?",
		sessionID).Scan(&agent, &remoteJSON, &lastUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session binding: %w", err)
	}

	b := &Binding{
		SessionID:    sessionID,
		Agent:        agent,
		Remote:       make(map[string]string),
		LastActivity: time.Unix(lastUnix, 0),
	}
	if err := json.Unmarshal([]byte(remoteJSON), &b.Remote); err != nil {
		return nil, false, fmt.Errorf("failed to decode remote session ids: %w", err)
	}

	if s.idleTimeout > 0 && time.Since(b.LastActivity) > s.idleTimeout {
		if err := s.Delete(ctx, sessionID); err != nil {
			s.logger.Warn("failed to evict expired session", "session", sessionID, "error", err)
		}
		return nil, false, nil
	}
	return b, true, nil
}

// Put implements Store.
func (s *SQLStore) Put(ctx context.Context, b *Binding) error {
	remoteJSON, err := json.Marshal(b.Remote)
	if err != nil {
		return fmt.Errorf("failed to encode remote session ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_bindings (session_id, agent, remote, last_activity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			agent = excluded.agent,
			remote = excluded.remote,
			last_activity = excluded.last_activity`,
		b.SessionID, b.Agent, string(remoteJSON), b.LastActivity.Unix())
	if err != nil {
		return fmt.Errorf("failed to store session binding: %w", err)
	}
	s.evictStale(ctx)
	return nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM session_bindings WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session binding: %w", err)
	}
	return nil
}

// ReleaseAgent implements Store.
func (s *SQLStore) ReleaseAgent(ctx context.Context, agent string) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE session_bindings SET agent = '' WHERE agent = ?", agent); err != nil {
		return fmt.Errorf("failed to release sessions for agent %s: %w", agent, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Count returns the number of stored bindings.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM session_bindings").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count session bindings: %w", err)
	}
	return n, nil
}

// evictStale drops idle rows. Best effort; failures only log.
func (s *SQLStore) evictStale(ctx context.Context) {
	if s.idleTimeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.idleTimeout).Unix()
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM session_bindings WHERE last_activity < ?", cutoff); err != nil {
		s.logger.Warn("failed to evict stale sessions", "error", err)
	}
}
