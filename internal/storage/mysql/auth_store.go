package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"OpenAssist/internal/auth"
)

// SQLTokenStore persists access tokens in MySQL.
type SQLTokenStore struct {
	db *sql.DB
}

// NewSQLTokenStore creates the store using the provided connection settings.
func NewSQLTokenStore(ctx context.Context, cfg Config) (*SQLTokenStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLTokenStore{db: db}, nil
}

// Close releases the underlying database connection pool.
func (s *SQLTokenStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LookupToken implements auth.Store.
func (s *SQLTokenStore) LookupToken(ctx context.Context, token string) (*auth.Subject, error) {
	const query = `SELECT subject_id, subject_name, disabled FROM auth_tokens WHERE token = ?`
	row := s.db.QueryRowContext(ctx, query, strings.TrimSpace(token))
	var subject auth.Subject
	var disabled int
	if err := row.Scan(&subject.ID, &subject.Name, &disabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrInvalidToken
		}
		return nil, fmt.Errorf("查询令牌失败: %w", err)
	}
	if disabled == 1 {
		return nil, auth.ErrSubjectRevoked
	}
	return &subject, nil
}

// ApplySeed upserts pre-provisioned tokens.
func (s *SQLTokenStore) ApplySeed(ctx context.Context, seeds []auth.Seed) error {
	const stmt = `INSERT INTO auth_tokens (token, subject_id, subject_name, disabled, created_at)
VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE subject_id = VALUES(subject_id), subject_name = VALUES(subject_name), disabled = VALUES(disabled)`
	now := time.Now().Unix()
	for _, seed := range seeds {
		token := strings.TrimSpace(seed.Token)
		if token == "" {
			continue
		}
		disabled := 0
		if seed.Disabled {
			disabled = 1
		}
		if _, err := s.db.ExecContext(ctx, stmt, token, seed.ID, seed.Name, disabled, now); err != nil {
			return fmt.Errorf("保存令牌失败: %w", err)
		}
	}
	return nil
}
