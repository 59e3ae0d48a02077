package config

import "time"

// SaliencyConfig 显著性引擎配置
//
// 权重常数是可调配置而非固定规则，默认值 0.3/0.4/0.2/0.1
// 未经验证不应假定为最优。
type SaliencyConfig struct {
	// LexicalWeight 词法提及频率信号权重
	LexicalWeight float64 `koanf:"lexical_weight"`
	// SemanticWeight 摘要语义相似度信号权重
	SemanticWeight float64 `koanf:"semantic_weight"`
	// TraitWeight 可见属性语义相似度信号权重
	TraitWeight float64 `koanf:"trait_weight"`
	// RecencyWeight 新近性/熟悉度信号权重
	RecencyWeight float64 `koanf:"recency_weight"`

	// RecencyTau 新近性指数衰减的时间常数
	RecencyTau time.Duration `koanf:"recency_tau"`

	// MinScore 候选进入选择的最低分数，0 表示不过滤
	MinScore float64 `koanf:"min_score"`

	// MaxDPCells 精确背包求解的 DP 表规模上限（候选数 × 预算）。
	// 超出后切换为贪心近似
	MaxDPCells int `koanf:"max_dp_cells"`

	// CacheSize 嵌入缓存容量（条目数）
	CacheSize int `koanf:"cache_size"`

	// TokenModel Token 计数使用的模型名
	TokenModel string `koanf:"token_model"`
}

// EmbeddingConfig 嵌入提供商配置
type EmbeddingConfig struct {
	// APIKey API 密钥
	APIKey string `koanf:"api_key"`
	// BaseURL 自定义端点
	BaseURL string `koanf:"base_url"`
	// Model 嵌入模型
	Model string `koanf:"model"`
	// MaxRetries 最大重试次数
	MaxRetries int `koanf:"max_retries"`
	// RetryDelay 重试间隔基数
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// StoreConfig 知识库存储配置
type StoreConfig struct {
	// Type 存储类型: memory、sqlite、neo4j
	Type string `koanf:"type"`
	// SQLitePath SQLite 数据库路径
	SQLitePath string `koanf:"sqlite_path"`
	// Neo4jURI Neo4j 连接地址
	Neo4jURI string `koanf:"neo4j_uri"`
	// Neo4jUsername Neo4j 用户名
	Neo4jUsername string `koanf:"neo4j_username"`
	// Neo4jPassword Neo4j 密码
	Neo4jPassword string `koanf:"neo4j_password"`
}

// Validate 验证配置
func (c *Config) Validate() error {
	s := c.Saliency
	if s.LexicalWeight < 0 || s.SemanticWeight < 0 || s.TraitWeight < 0 || s.RecencyWeight < 0 {
		return ErrInvalidWeights
	}
	if s.LexicalWeight+s.SemanticWeight+s.TraitWeight+s.RecencyWeight <= 0 {
		return ErrInvalidWeights
	}
	if s.MinScore < 0 || s.MinScore > 1 {
		return ErrInvalidThreshold
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		return ErrInvalidSampleRate
	}
	return nil
}
