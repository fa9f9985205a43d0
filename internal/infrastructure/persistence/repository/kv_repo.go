package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/koe-workflow/internal/application/port"
)

// KVStore implements port.KeyValueStore over the kv_store table
type KVStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewKVStore creates a new key-value store
func NewKVStore(db *sql.DB, logger *zap.Logger) *KVStore {
	return &KVStore{
		db:     db,
		logger: logger,
	}
}

// Get returns the value for key; ok is false when absent
func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := executorFor(ctx, s.db).QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		s.logger.Error("Failed to read key", zap.String("key", key), zap.Error(err))
		return "", false, fmt.Errorf("failed to read key: %w", err)
	}
	return value, true, nil
}

// Set stores value under key
func (s *KVStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := executorFor(ctx, s.db).ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		s.logger.Error("Failed to write key", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

// Remove deletes key; removing an absent key is not an error
func (s *KVStore) Remove(ctx context.Context, key string) error {
	if _, err := executorFor(ctx, s.db).ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to remove key: %w", err)
	}
	return nil
}

// Keys lists keys starting with prefix in lexical order
func (s *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := `SELECT key FROM kv_store WHERE key LIKE ? ESCAPE '\' ORDER BY key`
	return queryKeys(ctx, executorFor(ctx, s.db), query, likePrefix(prefix))
}

// SessionStore implements port.SessionStore over the session_kv table
type SessionStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSessionStore creates a new session store
func NewSessionStore(db *sql.DB, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		db:     db,
		logger: logger,
	}
}

// Scope returns the key-value store of one session
func (s *SessionStore) Scope(sessionID string) port.KeyValueStore {
	return &sessionScope{store: s, sessionID: sessionID}
}

// Purge deletes sessions not written since the cutoff
func (s *SessionStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM session_kv WHERE session_id IN (
			SELECT session_id FROM session_kv GROUP BY session_id HAVING MAX(updated_at) < ?
		)
	`
	res, err := executorFor(ctx, s.db).ExecContext(ctx, query, before.UTC())
	if err != nil {
		s.logger.Error("Failed to purge sessions", zap.Error(err))
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.RowsAffected()
}

type sessionScope struct {
	store     *SessionStore
	sessionID string
}

func (s *sessionScope) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	query := `SELECT value FROM session_kv WHERE session_id = ? AND key = ?`
	err := executorFor(ctx, s.store.db).QueryRowContext(ctx, query, s.sessionID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		s.store.logger.Error("Failed to read session key", zap.String("key", key), zap.Error(err))
		return "", false, fmt.Errorf("failed to read session key: %w", err)
	}
	return value, true, nil
}

func (s *sessionScope) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO session_kv (session_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := executorFor(ctx, s.store.db).ExecContext(ctx, query, s.sessionID, key, value, time.Now().UTC()); err != nil {
		s.store.logger.Error("Failed to write session key", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to write session key: %w", err)
	}
	return nil
}

func (s *sessionScope) Remove(ctx context.Context, key string) error {
	query := `DELETE FROM session_kv WHERE session_id = ? AND key = ?`
	if _, err := executorFor(ctx, s.store.db).ExecContext(ctx, query, s.sessionID, key); err != nil {
		return fmt.Errorf("failed to remove session key: %w", err)
	}
	return nil
}

func (s *sessionScope) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := `SELECT key FROM session_kv WHERE session_id = ? AND key LIKE ? ESCAPE '\' ORDER BY key`
	return queryKeys(ctx, executorFor(ctx, s.store.db), query, s.sessionID, likePrefix(prefix))
}

func queryKeys(ctx context.Context, exec executor, query string, args ...any) ([]string, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

// Verify interface compliance
var (
	_ port.KeyValueStore = (*KVStore)(nil)
	_ port.SessionStore  = (*SessionStore)(nil)
)
