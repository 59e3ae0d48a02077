package saliency

import (
	"context"
	"sort"

	"github.com/storyweaver/saliency-go/pkg/core/errors"
)

// Optimizer 预算内子集选择接口。
type Optimizer interface {
	// Select 从已评分候选中选出预算内总分最大的子集，
	// 返回所选候选在输入切片中的下标（升序）。
	Select(ctx context.Context, candidates []ScoredCandidate, budget int) ([]int, error)
}

// KnapsackOptimizer 0/1 背包优化器
//
// 每个候选不可分割：要么整体入选，要么整体放弃，
// 单个成本超出预算的候选直接跳过。
// 候选规模允许时采用精确动态规划保证确定性；
// DP 表超出上限后退化为按分数密度的贪心近似，
// 这是有意的精度/延迟权衡而非缺陷。
type KnapsackOptimizer struct {
	// MaxDPCells DP 表规模上限（候选数 × (预算+1)）
	MaxDPCells int
}

// NewKnapsackOptimizer 创建背包优化器。
func NewKnapsackOptimizer(maxDPCells int) *KnapsackOptimizer {
	if maxDPCells <= 0 {
		maxDPCells = 1 << 22
	}
	return &KnapsackOptimizer{MaxDPCells: maxDPCells}
}

// Select 选出预算内总分最大的子集。
func (o *KnapsackOptimizer) Select(ctx context.Context, candidates []ScoredCandidate, budget int) ([]int, error) {
	if budget <= 0 || len(candidates) == 0 {
		return nil, nil
	}

	// 仅保留单体成本不超预算的候选
	viable := make([]int, 0, len(candidates))
	for i, c := range candidates {
		if c.TokenCost <= budget && c.Score > 0 {
			viable = append(viable, i)
		}
	}
	if len(viable) == 0 {
		return nil, nil
	}

	if len(viable)*(budget+1) <= o.MaxDPCells {
		return o.selectExact(ctx, candidates, viable, budget)
	}
	return o.selectGreedy(candidates, viable, budget), nil
}

// selectExact 精确动态规划求解
func (o *KnapsackOptimizer) selectExact(ctx context.Context, candidates []ScoredCandidate, viable []int, budget int) ([]int, error) {
	n := len(viable)
	dp := make([]float64, budget+1)
	keep := make([][]bool, n)

	for i, idx := range viable {
		if err := ctx.Err(); err != nil {
			return nil, errors.ErrCancelled
		}

		cost := candidates[idx].TokenCost
		score := candidates[idx].Score
		keep[i] = make([]bool, budget+1)

		for w := budget; w >= cost; w-- {
			// 严格大于才替换：同值时弃选，保证结果确定
			if dp[w-cost]+score > dp[w] {
				dp[w] = dp[w-cost] + score
				keep[i][w] = true
			}
		}
	}

	// 回溯重建所选子集
	selected := make([]int, 0, n)
	w := budget
	for i := n - 1; i >= 0; i-- {
		if keep[i][w] {
			selected = append(selected, viable[i])
			w -= candidates[viable[i]].TokenCost
		}
	}

	sort.Ints(selected)
	return selected, nil
}

// selectGreedy 按分数密度的贪心近似
func (o *KnapsackOptimizer) selectGreedy(candidates []ScoredCandidate, viable []int, budget int) []int {
	order := make([]int, len(viable))
	copy(order, viable)

	// 密度降序，同密度按 ID 升序
	sort.Slice(order, func(a, b int) bool {
		da := density(candidates[order[a]])
		db := density(candidates[order[b]])
		if da != db {
			return da > db
		}
		return candidates[order[a]].Element.ID < candidates[order[b]].Element.ID
	})

	selected := make([]int, 0, len(order))
	remaining := budget
	for _, idx := range order {
		if candidates[idx].TokenCost > remaining {
			continue
		}
		selected = append(selected, idx)
		remaining -= candidates[idx].TokenCost
	}

	sort.Ints(selected)
	return selected
}

// density 分数密度。零成本候选视为无穷密度，始终优先
func density(c ScoredCandidate) float64 {
	if c.TokenCost <= 0 {
		return c.Score * 1e9
	}
	return c.Score / float64(c.TokenCost)
}

// 编译时接口检查
var _ Optimizer = (*KnapsackOptimizer)(nil)
