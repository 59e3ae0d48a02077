package saliency

import (
	"context"

	"github.com/google/uuid"

	"github.com/storyweaver/saliency-go/pkg/core/errors"
	"github.com/storyweaver/saliency-go/pkg/knowledge"
)

// ContextAssemblyStrategy 上下文装配策略接口
//
// 模式作为策略抽象而非散落在编排器中的条件分支，
// 新模式的加入不触碰过滤器与优化器。
// 传入的 visible 已经过可见性过滤——策略永远看不到隐藏内容。
type ContextAssemblyStrategy interface {
	// Assemble 从可见元素装配上下文
	Assemble(ctx context.Context, req *ContextRequest, visible []*knowledge.StoryKnowledgeElement) (*ContextBundle, error)
}

// OptimizedStrategy 优化模式策略：评分 + 预算内背包选择
type OptimizedStrategy struct {
	calculator *Calculator
	optimizer  Optimizer
	config     *Config
}

// NewOptimizedStrategy 创建优化模式策略。
func NewOptimizedStrategy(calculator *Calculator, optimizer Optimizer, config *Config) *OptimizedStrategy {
	if config == nil {
		config = DefaultConfig()
	}
	return &OptimizedStrategy{
		calculator: calculator,
		optimizer:  optimizer,
		config:     config,
	}
}

// Assemble 评分全部可见候选并在预算内选择最优子集。
//
// 返回的元素按分数降序（同分按 ID 升序）排列，
// 总 Token 成本严格不超过预算。
func (s *OptimizedStrategy) Assemble(ctx context.Context, req *ContextRequest, visible []*knowledge.StoryKnowledgeElement) (*ContextBundle, error) {
	candidates, degraded, err := s.calculator.ScoreAll(ctx, req, visible)
	if err != nil {
		return nil, err
	}

	selected, err := selectWithinBudget(ctx, s.optimizer, s.config, candidates, req.TokenBudget)
	if err != nil {
		return nil, err
	}

	bundle := &ContextBundle{
		ID:         uuid.New().String(),
		SnapshotID: req.SnapshotID,
		Mode:       ModeOptimized,
		Elements:   make([]*knowledge.StoryKnowledgeElement, 0, len(selected)),
		Degraded:   degraded,
	}

	// candidates 已按分数降序排列，升序下标即保持该顺序
	for _, idx := range selected {
		bundle.Elements = append(bundle.Elements, candidates[idx].Element)
		bundle.TotalTokens += candidates[idx].TokenCost
	}

	return bundle, nil
}

// selectWithinBudget 对已评分候选做阈值过滤后在预算内选择
//
// 装配与诊断路径共用同一段选择逻辑，保证两者结论一致。
// 返回入选候选在 candidates 中的下标，升序排列。
func selectWithinBudget(ctx context.Context, optimizer Optimizer, config *Config, candidates []ScoredCandidate, budget int) ([]int, error) {
	idx := make([]int, 0, len(candidates))
	eligible := make([]ScoredCandidate, 0, len(candidates))
	for i, c := range candidates {
		if config.MinScore > 0 && c.Score < config.MinScore {
			continue
		}
		idx = append(idx, i)
		eligible = append(eligible, c)
	}

	selected, err := optimizer.Select(ctx, eligible, budget)
	if err != nil {
		return nil, err
	}

	out := make([]int, 0, len(selected))
	for _, si := range selected {
		out = append(out, idx[si])
	}
	return out, nil
}

// RawStrategy 原始模式策略
//
// 绕过评分与预算，把全部可见元素原样放行；
// 仍报告总 Token 成本供调用方做成本估算，但不截断。
type RawStrategy struct {
	config *Config
}

// NewRawStrategy 创建原始模式策略。
func NewRawStrategy(config *Config) *RawStrategy {
	if config == nil {
		config = DefaultConfig()
	}
	return &RawStrategy{config: config}
}

// Assemble 返回全部可见元素，保持快照顺序。
func (s *RawStrategy) Assemble(ctx context.Context, req *ContextRequest, visible []*knowledge.StoryKnowledgeElement) (*ContextBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrCancelled
	}

	counter := s.config.GetTokenCounter()
	bundle := &ContextBundle{
		ID:         uuid.New().String(),
		SnapshotID: req.SnapshotID,
		Mode:       ModeRaw,
		Elements:   visible,
	}
	for _, e := range visible {
		bundle.TotalTokens += counter.CountElement(e)
	}

	return bundle, nil
}

// 编译时接口检查
var _ ContextAssemblyStrategy = (*OptimizedStrategy)(nil)
var _ ContextAssemblyStrategy = (*RawStrategy)(nil)
