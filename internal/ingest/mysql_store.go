package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	xerrors "OpenAssist/internal/errors"
	"github.com/go-sql-driver/mysql"
)

// MySQLStore 使用 MySQL 持久化文档的入库状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建 MySQLStore 并初始化表结构。
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS ingest_documents (
        id VARCHAR(64) PRIMARY KEY,
        filename VARCHAR(255) NOT NULL,
        content MEDIUMTEXT NOT NULL,
        metadata TEXT,
        status VARCHAR(32) NOT NULL,
        attempts INT NOT NULL DEFAULT 0,
        max_retries INT NOT NULL DEFAULT 3,
        last_error TEXT,
        error_code VARCHAR(64) DEFAULT '',
        chunks INT NOT NULL DEFAULT 0,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_doc_status (status),
        INDEX idx_doc_updated (updated_at)
)`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 ingest_documents 表失败")
	}
	return nil
}

// Create 插入新的文档记录。
func (s *MySQLStore) Create(ctx context.Context, doc *Document) error {
	if doc == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "document 不能为空")
	}
	if strings.TrimSpace(doc.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "文档 ID 不能为空")
	}

	now := time.Now().Unix()
	if doc.CreatedAt == 0 {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	metadataValue, err := marshalDocMetadata(doc.Metadata)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码文档 metadata 失败")
	}

	const stmt = `INSERT INTO ingest_documents
        (id, filename, content, metadata, status, attempts, max_retries, last_error, error_code, chunks, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, '', '', 0, ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		doc.ID,
		doc.Filename,
		doc.Content,
		metadataValue,
		doc.Status,
		doc.Attempts,
		doc.MaxRetries,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrDocumentConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入文档失败")
	}
	return nil
}

// Get 查询指定文档。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Document, error) {
	const stmt = `SELECT id, filename, content, metadata, status, attempts, max_retries, last_error, error_code, chunks, created_at, updated_at
        FROM ingest_documents WHERE id = ?`

	row := s.db.QueryRowContext(ctx, stmt, id)
	doc, err := scanDocument(row.Scan)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

// Claim 将文档标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Document, error) {
	const updateStmt = `UPDATE ingest_documents SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, updateStmt,
		StatusRunning,
		now,
		id,
		StatusPending,
		StatusFailed,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新文档状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		doc, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		switch doc.Status {
		case StatusSucceeded:
			return doc, ErrDocumentCompleted
		case StatusRunning:
			return doc, ErrDocumentConflict
		default:
			if doc.Attempts >= doc.MaxRetries {
				return doc, ErrDocumentExhausted
			}
			return doc, ErrDocumentConflict
		}
	}
	return s.Get(ctx, id)
}

// MarkSucceeded 记录入库成功与分片数量。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, chunks int) error {
	const stmt = `UPDATE ingest_documents SET status = ?, chunks = ?, updated_at = ?, last_error = '', error_code = '' WHERE id = ?`

	res, err := s.db.ExecContext(ctx, stmt, StatusSucceeded, chunks, time.Now().Unix(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记文档成功失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// MarkFailed 记录失败原因；非终态失败回到 pending 等待重新认领。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	const stmt = `UPDATE ingest_documents SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`

	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	res, err := s.db.ExecContext(ctx, stmt, status, lastError, string(code), time.Now().Unix(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记文档失败失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// List 返回最近更新的文档。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Document, error) {
	opts.applyDefaults()

	query := `SELECT id, filename, content, metadata, status, attempts, max_retries, last_error, error_code, chunks, created_at, updated_at
        FROM ingest_documents`

	args := make([]any, 0, len(opts.Statuses)+1)
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for _, status := range opts.Statuses {
			placeholders = append(placeholders, "?")
			args = append(args, status)
		}
		query += fmt.Sprintf(" WHERE status IN (%s)", strings.Join(placeholders, ","))
	}
	query += " ORDER BY updated_at DESC, created_at DESC, id ASC LIMIT ?"
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询文档列表失败")
	}
	defer rows.Close()

	docs := make([]*Document, 0, opts.Limit)
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历文档失败")
	}
	return docs, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanDocument(scan func(dest ...any) error) (*Document, error) {
	var doc Document
	var metadata sql.NullString
	var lastError sql.NullString

	if err := scan(
		&doc.ID,
		&doc.Filename,
		&doc.Content,
		&metadata,
		&doc.Status,
		&doc.Attempts,
		&doc.MaxRetries,
		&lastError,
		&doc.ErrorCode,
		&doc.Chunks,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析文档记录失败")
	}
	doc.LastError = lastError.String

	decoded, err := unmarshalDocMetadata(metadata)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析文档 metadata 失败")
	}
	doc.Metadata = decoded
	return &doc, nil
}

func marshalDocMetadata(metadata map[string]any) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}

func unmarshalDocMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

var _ Store = (*MySQLStore)(nil)
