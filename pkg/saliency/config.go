package saliency

import "time"

// Config 保存引擎的评分与优化配置。
type Config struct {
	// LexicalWeight 词法提及频率信号的权重。
	LexicalWeight float64

	// SemanticWeight 摘要语义相似度信号的权重。
	SemanticWeight float64

	// TraitWeight 可见属性语义相似度信号的权重。
	TraitWeight float64

	// RecencyWeight 新近性/熟悉度信号的权重。
	RecencyWeight float64

	// RecencyTau 新近性指数衰减的时间常数。
	RecencyTau time.Duration

	// MinScore 候选进入选择的最低综合分数，0 表示不过滤。
	MinScore float64

	// MaxDPCells 精确背包求解的 DP 表规模上限（候选数 × (预算+1)）。
	// 超出后优化器切换为按分数密度的贪心近似，
	// 这是有意的精度/延迟权衡。
	MaxDPCells int

	// TokenCounter 使用的 Token 计数器。
	TokenCounter TokenCounter
}

// ConfigOption 配置 Config。
type ConfigOption func(*Config)

// WithWeights 设置四个评分信号的权重。
func WithWeights(lexical, semantic, trait, recency float64) ConfigOption {
	return func(c *Config) {
		c.LexicalWeight = lexical
		c.SemanticWeight = semantic
		c.TraitWeight = trait
		c.RecencyWeight = recency
	}
}

// WithRecencyTau 设置新近性衰减的时间常数。
func WithRecencyTau(tau time.Duration) ConfigOption {
	return func(c *Config) {
		c.RecencyTau = tau
	}
}

// WithMinScore 设置最低分数阈值。
func WithMinScore(threshold float64) ConfigOption {
	return func(c *Config) {
		c.MinScore = threshold
	}
}

// WithMaxDPCells 设置精确求解的 DP 表规模上限。
func WithMaxDPCells(cells int) ConfigOption {
	return func(c *Config) {
		c.MaxDPCells = cells
	}
}

// WithTokenCounter 设置 Token 计数器。
func WithTokenCounter(counter TokenCounter) ConfigOption {
	return func(c *Config) {
		c.TokenCounter = counter
	}
}

// DefaultConfig 返回具有合理默认值的 Config。
//
// 权重默认值 0.3/0.4/0.2/0.1 来自经验而非推导，应视为可调参数。
func DefaultConfig() *Config {
	return &Config{
		LexicalWeight:  0.3,
		SemanticWeight: 0.4,
		TraitWeight:    0.2,
		RecencyWeight:  0.1,
		RecencyTau:     24 * time.Hour,
		MinScore:       0,
		MaxDPCells:     1 << 22,
		TokenCounter:   nil, // 需要时使用 DefaultTokenCounter()
	}
}

// NewConfig 使用给定的选项创建新的 Config。
func NewConfig(opts ...ConfigOption) *Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetTokenCounter 返回配置的 Token 计数器或默认计数器。
func (c *Config) GetTokenCounter() TokenCounter {
	if c.TokenCounter != nil {
		return c.TokenCounter
	}
	return DefaultTokenCounter()
}
