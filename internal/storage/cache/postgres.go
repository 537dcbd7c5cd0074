// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS caption_cache (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	expires_at TIMESTAMPTZ
)`

// PostgresStore PostgreSQL 缓存存储（caption_cache 表）
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 建立连接池、Ping 并建表
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create caption_cache table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Set upsert 一条缓存
func (s *PostgresStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	var expiresAt *time.Time
	if expiration > 0 {
		t := time.Now().Add(expiration)
		expiresAt = &t
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO caption_cache (key, value, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, data, expiresAt)
	return err
}

// Get 获取未过期的缓存
func (s *PostgresStore) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	err := s.pool.QueryRow(ctx, `
SELECT value FROM caption_cache
WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// Delete 删除缓存
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM caption_cache WHERE key = $1`, key)
	return err
}

// Exists 检查缓存是否存在
func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM caption_cache
WHERE key = $1 AND (expires_at IS NULL OR expires_at > now()))`, key).Scan(&ok)
	return ok, err
}

// Clear 清空表
func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM caption_cache`)
	return err
}

// Close 关闭连接池
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
