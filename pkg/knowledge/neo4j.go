package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jSource Neo4j 快照源
//
// 面向跨项目共享知识库（同一系列的多个作品）的部署形态，
// 元素存为带 snapshot_id 属性的节点。
type Neo4jSource struct {
	driver neo4j.DriverWithContext
}

// Neo4jConfig Neo4j 配置
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
}

// NewNeo4jSource 创建 Neo4j 快照源
func NewNeo4jSource(config Neo4jConfig) (*Neo4jSource, error) {
	if config.URI == "" {
		config.URI = "bolt://localhost:7687"
	}

	auth := neo4j.NoAuth()
	if config.Username != "" && config.Password != "" {
		auth = neo4j.BasicAuth(config.Username, config.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(config.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	source := &Neo4jSource{driver: driver}

	if err := source.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return source, nil
}

// createIndexes 创建索引
func (s *Neo4jSource) createIndexes(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	indexes := []string{
		"CREATE INDEX element_snapshot IF NOT EXISTS FOR (e:StoryElement) ON (e.snapshot_id)",
		"CREATE INDEX snapshot_id IF NOT EXISTS FOR (s:Snapshot) ON (s.id)",
	}

	for _, idx := range indexes {
		if _, err := session.Run(ctx, idx, nil); err != nil {
			if !strings.Contains(err.Error(), "already exists") {
				return err
			}
		}
	}

	return nil
}

// GetElements 返回快照内的全部元素，按写入顺序排列
func (s *Neo4jSource) GetElements(ctx context.Context, snapshotID string) ([]*StoryKnowledgeElement, error) {
	ok, err := s.HasSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSnapshotNotFound
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
	MATCH (e:StoryElement {snapshot_id: $snapshot_id})
	RETURN e.id, e.kind, e.name, e.aliases, e.summary, e.traits,
	       e.visible, e.last_referenced_at, e.reference_count
	ORDER BY e.position
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"snapshot_id": snapshotID})
	if err != nil {
		return nil, err
	}

	var elements []*StoryKnowledgeElement
	for result.Next(ctx) {
		record := result.Record()
		e := &StoryKnowledgeElement{
			ID:      asString(record.Values[0]),
			Kind:    ElementKind(asString(record.Values[1])),
			Name:    asString(record.Values[2]),
			Summary: asString(record.Values[4]),
		}

		if aliasesStr := asString(record.Values[3]); aliasesStr != "" {
			if err := json.Unmarshal([]byte(aliasesStr), &e.Aliases); err != nil {
				return nil, fmt.Errorf("failed to unmarshal aliases: %w", err)
			}
		}
		if traitsStr := asString(record.Values[5]); traitsStr != "" {
			if err := json.Unmarshal([]byte(traitsStr), &e.Traits); err != nil {
				return nil, fmt.Errorf("failed to unmarshal traits: %w", err)
			}
		}
		if visible, ok := record.Values[6].(bool); ok {
			e.Visible = visible
		}
		if ts, ok := record.Values[7].(int64); ok && ts > 0 {
			e.Usage.LastReferencedAt = time.UnixMilli(ts)
		}
		if count, ok := record.Values[8].(int64); ok {
			e.Usage.ReferenceCount = int(count)
		}

		elements = append(elements, e)
	}

	return elements, result.Err()
}

// HasSnapshot 判断快照是否存在
func (s *Neo4jSource) HasSnapshot(ctx context.Context, snapshotID string) (bool, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (s:Snapshot {id: $id}) RETURN s.id LIMIT 1`,
		map[string]interface{}{"id": snapshotID})
	if err != nil {
		return false, err
	}

	return result.Next(ctx), result.Err()
}

// PutSnapshot 写入一个完整快照
func (s *Neo4jSource) PutSnapshot(ctx context.Context, snapshotID string, elements []*StoryKnowledgeElement) error {
	if snapshotID == "" {
		return ErrInvalidElement
	}
	for _, e := range elements {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	exists, err := s.HasSnapshot(ctx, snapshotID)
	if err != nil {
		return err
	}
	if exists {
		return ErrSnapshotExists
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err = session.Run(ctx,
		`CREATE (s:Snapshot {id: $id, created_at: $now})`,
		map[string]interface{}{"id": snapshotID, "now": time.Now().UnixMilli()})
	if err != nil {
		return err
	}

	insert := `
	CREATE (e:StoryElement {
		snapshot_id: $snapshot_id, position: $position,
		id: $id, kind: $kind, name: $name, aliases: $aliases,
		summary: $summary, traits: $traits, visible: $visible,
		last_referenced_at: $last_referenced_at, reference_count: $reference_count
	})
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

		var lastReferencedAt int64
		if !e.Usage.LastReferencedAt.IsZero() {
			lastReferencedAt = e.Usage.LastReferencedAt.UnixMilli()
		}

		_, err = session.Run(ctx, insert, map[string]interface{}{
			"snapshot_id":        snapshotID,
			"position":           i,
			"id":                 e.ID,
			"kind":               string(e.Kind),
			"name":               e.Name,
			"aliases":            string(aliases),
			"summary":            e.Summary,
			"traits":             string(traits),
			"visible":            e.Visible,
			"last_referenced_at": lastReferencedAt,
			"reference_count":    e.Usage.ReferenceCount,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// DeleteSnapshot 删除快照及其全部元素
func (s *Neo4jSource) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	exists, err := s.HasSnapshot(ctx, snapshotID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrSnapshotNotFound
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	params := map[string]interface{}{"id": snapshotID}
	if _, err := session.Run(ctx, `MATCH (e:StoryElement {snapshot_id: $id}) DELETE e`, params); err != nil {
		return err
	}
	_, err = session.Run(ctx, `MATCH (s:Snapshot {id: $id}) DELETE s`, params)
	return err
}

// Close 关闭连接
func (s *Neo4jSource) Close() error {
	return s.driver.Close(context.Background())
}

// asString 从 Neo4j 记录值提取字符串
func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// 编译时接口检查
var _ Source = (*Neo4jSource)(nil)
var _ Writer = (*Neo4jSource)(nil)
