package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mikey/llm-harassment-filter/internal/core"
	"go.uber.org/zap"
)

// MySQLStore is a MySQL implementation of the KeyValueStore interface
type MySQLStore struct {
	db          *sql.DB
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewMySQLStore creates a new MySQL store
func NewMySQLStore(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_store (
			` + "`key`" + ` VARCHAR(255) PRIMARY KEY,
			value TEXT,
			expires_at TIMESTAMP NULL,
			INDEX idx_kv_expires_at (expires_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	s := &MySQLStore{
		db:          db,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	go s.startCleanupTask()

	return s, nil
}

// Get retrieves a value by key
func (s *MySQLStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE `key` = ? AND (expires_at IS NULL OR expires_at > NOW())", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", core.ErrKeyNotFound
		}
		return "", fmt.Errorf("failed to query key %q: %w", key, err)
	}
	return value, nil
}

// Set stores a value under a key. A zero ttl means no expiry.
func (s *MySQLStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	var expiresAt interface{}
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_store (`+"`key`"+`, value, expires_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE value = VALUES(value), expires_at = VALUES(expires_at)
	`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert key %q: %w", key, err)
	}
	return nil
}

// Increment adds delta to an integer value, creating it at delta when absent
func (s *MySQLStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current := int64(0)
	var value string
	err = tx.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE `key` = ? AND (expires_at IS NULL OR expires_at > NOW()) FOR UPDATE", key).Scan(&value)
	if err == nil {
		current, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %q is not an integer: %w", key, err)
		}
	} else if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to query key %q: %w", key, err)
	}

	current += delta
	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv_store (`+"`key`"+`, value, expires_at)
		VALUES (?, ?, NULL)
		ON DUPLICATE KEY UPDATE value = VALUES(value), expires_at = NULL
	`, key, strconv.FormatInt(current, 10))
	if err != nil {
		return 0, fmt.Errorf("failed to update key %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit increment: %w", err)
	}
	return current, nil
}

// Expire sets the expiry on an existing key
func (s *MySQLStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	var expiresAt interface{}
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	result, err := s.db.ExecContext(ctx, "UPDATE kv_store SET expires_at = ? WHERE `key` = ?", expiresAt, key)
	if err != nil {
		return fmt.Errorf("failed to expire key %q: %w", key, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return core.ErrKeyNotFound
	}
	return nil
}

// Delete removes a key
func (s *MySQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv_store WHERE `key` = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// Cleanup removes expired entries
func (s *MySQLStore) Cleanup(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM kv_store
		WHERE expires_at IS NOT NULL AND expires_at <= NOW()
	`)
	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		s.logger.Debug("Cleaned up expired store entries", zap.Int64("expired_count", rowsAffected))
	}
	return nil
}

// startCleanupTask starts a background task to clean up expired entries
func (s *MySQLStore) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Cleanup(context.Background()); err != nil {
				s.logger.Error("Failed to clean up store", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task and closes the database connection
func (s *MySQLStore) Stop() {
	close(s.stopCh)
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close MySQL database", zap.Error(err))
	}
}
