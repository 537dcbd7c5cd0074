package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS caption_cache (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
)`

// SQLiteStore 单机 SQLite 缓存存储；expires_at 为 unix 毫秒，0 表示不过期
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 打开（或创建）数据库文件并建表
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// 单写者，避免 database is locked
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create caption_cache table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Set upsert 一条缓存
func (s *SQLiteStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	var expiresAt int64
	if expiration > 0 {
		expiresAt = time.Now().Add(expiration).UnixMilli()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO caption_cache (key, value, expires_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, string(data), expiresAt)
	return err
}

// Get 获取未过期的缓存
func (s *SQLiteStore) Get(ctx context.Context, key string, dest interface{}) error {
	var data string
	err := s.db.QueryRowContext(ctx, `
SELECT value FROM caption_cache WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, time.Now().UnixMilli()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// Delete 删除缓存
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM caption_cache WHERE key = ?`, key)
	return err
}

// Exists 检查缓存是否存在
func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(1) FROM caption_cache WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, time.Now().UnixMilli()).Scan(&n)
	return n > 0, err
}

// Clear 清空表
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM caption_cache`)
	return err
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
