package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSource SQLite 快照源
//
// 基于 SQLite 的持久化快照存储。每个快照是一组带序号的元素行，
// 写入一次后只读。
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource 创建 SQLite 快照源
func NewSQLiteSource(dbPath string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	source := &SQLiteSource{db: db}

	if err := source.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return source, nil
}

// initSchema 初始化表结构
func (s *SQLiteSource) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS elements (
		snapshot_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		aliases TEXT,
		summary TEXT,
		traits TEXT,
		visible INTEGER NOT NULL,
		last_referenced_at INTEGER NOT NULL,
		reference_count INTEGER NOT NULL,
		PRIMARY KEY (snapshot_id, id),
		FOREIGN KEY (snapshot_id) REFERENCES snapshots(id)
	);
	CREATE INDEX IF NOT EXISTS idx_elements_snapshot ON elements(snapshot_id, position);
	`

	_, err := s.db.Exec(query)
	return err
}

// GetElements 返回快照内的全部元素，按写入顺序排列
func (s *SQLiteSource) GetElements(ctx context.Context, snapshotID string) ([]*StoryKnowledgeElement, error) {
	ok, err := s.HasSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSnapshotNotFound
	}

	query := `
	SELECT id, kind, name, aliases, summary, traits, visible, last_referenced_at, reference_count
	FROM elements WHERE snapshot_id = ? ORDER BY position
	`

	rows, err := s.db.QueryContext(ctx, query, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var elements []*StoryKnowledgeElement
	for rows.Next() {
		var e StoryKnowledgeElement
		var kind, aliasesStr, traitsStr string
		var visible int
		var lastReferencedAt int64

		err := rows.Scan(&e.ID, &kind, &e.Name, &aliasesStr, &e.Summary,
			&traitsStr, &visible, &lastReferencedAt, &e.Usage.ReferenceCount)
		if err != nil {
			return nil, err
		}

		e.Kind = ElementKind(kind)
		e.Visible = visible != 0
		if lastReferencedAt > 0 {
			e.Usage.LastReferencedAt = time.UnixMilli(lastReferencedAt)
		}
		if aliasesStr != "" {
			if err := json.Unmarshal([]byte(aliasesStr), &e.Aliases); err != nil {
				return nil, fmt.Errorf("failed to unmarshal aliases: %w", err)
			}
		}
		if traitsStr != "" {
			if err := json.Unmarshal([]byte(traitsStr), &e.Traits); err != nil {
				return nil, fmt.Errorf("failed to unmarshal traits: %w", err)
			}
		}

		elements = append(elements, &e)
	}

	return elements, rows.Err()
}

// HasSnapshot 判断快照是否存在
func (s *SQLiteSource) HasSnapshot(ctx context.Context, snapshotID string) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM snapshots WHERE id = ?`, snapshotID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PutSnapshot 写入一个完整快照
func (s *SQLiteSource) PutSnapshot(ctx context.Context, snapshotID string, elements []*StoryKnowledgeElement) error {
	if snapshotID == "" {
		return ErrInvalidElement
	}
	for _, e := range elements {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, created_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		snapshotID, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSnapshotExists
	}

	insert := `
	INSERT INTO elements (snapshot_id, position, id, kind, name, aliases, summary, traits, visible, last_referenced_at, reference_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for i, e := range elements {
		aliases, err := json.Marshal(e.Aliases)
		if err != nil {
			return fmt.Errorf("failed to marshal aliases: %w", err)
		}
		traits, err := json.Marshal(e.Traits)
		if err != nil {
			return fmt.Errorf("failed to marshal traits: %w", err)
		}

		visible := 0
		if e.Visible {
			visible = 1
		}
		var lastReferencedAt int64
		if !e.Usage.LastReferencedAt.IsZero() {
			lastReferencedAt = e.Usage.LastReferencedAt.UnixMilli()
		}

		_, err = tx.ExecContext(ctx, insert, snapshotID, i, e.ID, string(e.Kind), e.Name,
			string(aliases), e.Summary, string(traits), visible, lastReferencedAt, e.Usage.ReferenceCount)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteSnapshot 删除快照
func (s *SQLiteSource) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, snapshotID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSnapshotNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM elements WHERE snapshot_id = ?`, snapshotID); err != nil {
		return err
	}

	return tx.Commit()
}

// Close 关闭连接
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// 编译时接口检查
var _ Source = (*SQLiteSource)(nil)
var _ Writer = (*SQLiteSource)(nil)
