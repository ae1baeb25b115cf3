package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"OpenAssist/internal/vector"
)

// SQLVectorIndex 把文本块与嵌入向量存进 MySQL，检索时在进程内
// 用余弦相似度排序。嵌入维度较低，全量拉取候选行的代价可以接受。
type SQLVectorIndex struct {
	db *sql.DB
}

// NewSQLVectorIndex 创建连接池并执行迁移。
func NewSQLVectorIndex(ctx context.Context, cfg Config) (*SQLVectorIndex, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLVectorIndex{db: db}, nil
}

// Ingest 写入文档块，已存在的 ID 覆盖旧内容。
func (s *SQLVectorIndex) Ingest(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	const stmt = `INSERT INTO vector_chunks (chunk_id, chunk_text, embedding, metadata, created_at)
VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE chunk_text = VALUES(chunk_text), embedding = VALUES(embedding), metadata = VALUES(metadata)`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启写入事务失败: %w", err)
	}
	now := time.Now().Unix()
	for _, doc := range docs {
		embedding, err := json.Marshal(vector.Embed(doc.Text))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("序列化嵌入向量失败: %w", err)
		}
		metadata, err := json.Marshal(doc.Metadata)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("序列化元数据失败: %w", err)
		}
		if _, err := tx.ExecContext(ctx, stmt, doc.ID, doc.Text, embedding, metadata, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("写入文档块失败: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交写入事务失败: %w", err)
	}
	return nil
}

// Query 按余弦相似度降序返回 topK 条匹配结果。
func (s *SQLVectorIndex) Query(ctx context.Context, text string, topK int, filters map[string]string) ([]vector.Result, error) {
	if topK <= 0 {
		topK = 3
	}
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, chunk_text, embedding, metadata FROM vector_chunks`)
	if err != nil {
		return nil, fmt.Errorf("查询文档块失败: %w", err)
	}
	defer rows.Close()

	queryVec := vector.Embed(text)
	var results []vector.Result
	for rows.Next() {
		var chunkID, chunkText string
		var embeddingRaw, metadataRaw []byte
		if err := rows.Scan(&chunkID, &chunkText, &embeddingRaw, &metadataRaw); err != nil {
			return nil, fmt.Errorf("解析文档块失败: %w", err)
		}
		var metadata map[string]string
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &metadata); err != nil {
				continue
			}
		}
		if !vector.MatchesFilters(metadata, filters) {
			continue
		}
		var embedding []float64
		if err := json.Unmarshal(embeddingRaw, &embedding); err != nil {
			continue
		}
		results = append(results, vector.Result{
			Chunk:    chunkText,
			Score:    vector.Cosine(queryVec, embedding),
			DocID:    chunkID,
			Metadata: metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历文档块失败: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Close 关闭底层数据库连接。
func (s *SQLVectorIndex) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
