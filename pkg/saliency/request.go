package saliency

import (
	"github.com/storyweaver/saliency-go/pkg/core/errors"
	"github.com/storyweaver/saliency-go/pkg/knowledge"
)

// Mode 上下文装配模式
//
// 模式由调用方声明（生成功能或扩展集成点的外部配置），
// 不是引擎策略。
type Mode string

const (
	// ModeOptimized 优化模式：评分 + 预算内子集选择
	ModeOptimized Mode = "optimized"
	// ModeRaw 原始模式：绕过评分与预算，返回全部可见元素。
	// 可见性过滤照常执行
	ModeRaw Mode = "raw"
)

// Valid 判断模式是否合法
func (m Mode) Valid() bool {
	switch m {
	case ModeOptimized, ModeRaw:
		return true
	default:
		return false
	}
}

// ContextRequest 上下文装配请求
type ContextRequest struct {
	// SourceText 当前正在生成的文本
	SourceText string `json:"source_text"`
	// SnapshotID 知识库快照标识
	SnapshotID string `json:"snapshot_id"`
	// TokenBudget Token 预算。优化模式下严格遵守；
	// 原始模式下仅供调用方做成本估算参考
	TokenBudget int `json:"token_budget"`
	// Mode 装配模式
	Mode Mode `json:"mode"`
}

// Validate 验证请求
//
// 预算为负、模式未知或快照 ID 为空时快速失败，不做任何部分工作。
func (r *ContextRequest) Validate() error {
	if r.TokenBudget < 0 {
		return errors.ErrInvalidRequest
	}
	if r.SnapshotID == "" {
		return errors.ErrInvalidRequest
	}
	if !r.Mode.Valid() {
		return errors.ErrUnknownMode
	}
	return nil
}

// Signals 单个候选的评分信号分解，用于 explain 诊断视图
type Signals struct {
	// Lexical 词法提及频率信号 [0,1]
	Lexical float64 `json:"lexical"`
	// Summary 摘要语义相似度信号 [0,1]
	Summary float64 `json:"summary"`
	// Traits 可见属性语义相似度信号 [0,1]
	Traits float64 `json:"traits"`
	// Recency 新近性/熟悉度信号 [0,1]
	Recency float64 `json:"recency"`
	// Degraded 语义信号是否因嵌入不可用而降级为零
	Degraded bool `json:"degraded"`
}

// ScoredCandidate 带分数的候选元素
type ScoredCandidate struct {
	// Element 可见性裁剪后的元素副本
	Element *knowledge.StoryKnowledgeElement `json:"element"`
	// Score 综合相关性分数，名义区间 [0,1]
	Score float64 `json:"score"`
	// TokenCost 元素可见文本表面的 Token 成本
	TokenCost int `json:"token_cost"`
	// Selected 是否被优化器选中
	Selected bool `json:"selected"`
	// Signals 信号分解
	Signals Signals `json:"signals"`
}

// ContextBundle 装配结果
//
// 每次请求构造、不可变、调用方消费后即弃，引擎自身从不持久化。
type ContextBundle struct {
	// ID 本次装配的标识
	ID string `json:"id"`
	// SnapshotID 请求对应的快照
	SnapshotID string `json:"snapshot_id"`
	// Mode 装配模式
	Mode Mode `json:"mode"`
	// Elements 选中元素的有序序列（已裁剪为仅含可见属性）
	Elements []*knowledge.StoryKnowledgeElement `json:"elements"`
	// TotalTokens 选中元素的总 Token 成本
	TotalTokens int `json:"total_tokens"`
	// Degraded 本次装配是否在嵌入不可用的降级模式下完成
	Degraded bool `json:"degraded"`
}
