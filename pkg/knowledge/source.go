// Package knowledge provides the story knowledge base read API.
//
// This package defines the snapshot source interface consumed by the
// saliency engine, plus in-memory, SQLite and Neo4j backed implementations.
package knowledge

import (
	"context"
)

// Source 知识库快照读取接口
//
// 引擎侧只读：每次请求针对一个不可变快照，
// 底层知识库的并发编辑不会被请求中途观察到。
type Source interface {
	// GetElements 返回快照内的全部元素，保持作者定义的顺序
	GetElements(ctx context.Context, snapshotID string) ([]*StoryKnowledgeElement, error)

	// HasSnapshot 判断快照是否存在
	HasSnapshot(ctx context.Context, snapshotID string) (bool, error)

	// Close 关闭连接
	Close() error
}

// Writer 快照写入接口
//
// 由拥有知识库的持久化协作方使用，引擎自身从不写入。
type Writer interface {
	// PutSnapshot 写入一个完整快照。快照不可变，重复写入同一 ID 返回错误
	PutSnapshot(ctx context.Context, snapshotID string, elements []*StoryKnowledgeElement) error

	// DeleteSnapshot 删除快照
	DeleteSnapshot(ctx context.Context, snapshotID string) error
}

// SourceType 存储类型
type SourceType string

const (
	// SourceTypeMemory 内存存储
	SourceTypeMemory SourceType = "memory"
	// SourceTypeSQLite SQLite 存储
	SourceTypeSQLite SourceType = "sqlite"
	// SourceTypeNeo4j Neo4j 存储
	SourceTypeNeo4j SourceType = "neo4j"
)

// Config 存储配置
type Config struct {
	// Type 存储类型
	Type SourceType `json:"type" koanf:"type"`

	// SQLite 配置
	SQLitePath string `json:"sqlite_path,omitempty" koanf:"sqlite_path"`

	// Neo4j 配置
	Neo4jURI      string `json:"neo4j_uri,omitempty" koanf:"neo4j_uri"`
	Neo4jUsername string `json:"neo4j_username,omitempty" koanf:"neo4j_username"`
	Neo4jPassword string `json:"neo4j_password,omitempty" koanf:"neo4j_password"`
}

// DefaultConfig 返回默认配置（内存存储）
func DefaultConfig() *Config {
	return &Config{
		Type: SourceTypeMemory,
	}
}

// NewSource 根据配置创建快照源
func NewSource(config *Config) (Source, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Type {
	case SourceTypeSQLite:
		return NewSQLiteSource(config.SQLitePath)
	case SourceTypeNeo4j:
		return NewNeo4jSource(Neo4jConfig{
			URI:      config.Neo4jURI,
			Username: config.Neo4jUsername,
			Password: config.Neo4jPassword,
		})
	case SourceTypeMemory:
		fallthrough
	default:
		return NewMemorySource(), nil
	}
}
