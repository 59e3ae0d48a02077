package saliency

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/storyweaver/saliency-go/pkg/core/embedding"
	"github.com/storyweaver/saliency-go/pkg/core/errors"
	"github.com/storyweaver/saliency-go/pkg/knowledge"
)

// VectorSource 计算器所需的向量获取接口，由 embedding.Cache 实现。
type VectorSource interface {
	Get(ctx context.Context, key, text string) ([]float32, error)
}

// Calculator 相关性计算器
//
// 对每个可见候选元素计算四个信号的加权和：
// 词法提及频率、摘要语义相似度、可见属性语义相似度、新近性加成。
// 嵌入提供商不可用时进入降级模式：语义项记零，
// 权重在词法与新近性之间重新归一化，请求照常成功。
type Calculator struct {
	vectors VectorSource
	config  *Config
	now     func() time.Time
}

// CalculatorOption 配置 Calculator。
type CalculatorOption func(*Calculator)

// WithClock 设置时间源（用于可复现测试）。
func WithClock(now func() time.Time) CalculatorOption {
	return func(c *Calculator) {
		c.now = now
	}
}

// NewCalculator 创建相关性计算器。
//
// vectors 为 nil 时引擎始终以降级模式评分。
func NewCalculator(vectors VectorSource, config *Config, opts ...CalculatorOption) *Calculator {
	if config == nil {
		config = DefaultConfig()
	}
	c := &Calculator{
		vectors: vectors,
		config:  config,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ScoreAll 对全部可见候选评分
//
// 返回按分数降序、同分按 ID 升序排列的候选列表。
// degraded 返回值表示本次请求的语义信号整体不可用。
func (c *Calculator) ScoreAll(ctx context.Context, req *ContextRequest, elements []*knowledge.StoryKnowledgeElement) ([]ScoredCandidate, bool, error) {
	counter := c.config.GetTokenCounter()
	now := c.now()

	// 先嵌入当前生成文本；失败（非取消）则整个请求降级
	var contextVec []float32
	degraded := c.vectors == nil
	if !degraded {
		key := embedding.Key(req.SnapshotID, "", "source\x00"+req.SourceText)
		vec, err := c.vectors.Get(ctx, key, req.SourceText)
		switch {
		case err == nil:
			contextVec = vec
		case errors.IsCancelled(err):
			return nil, false, errors.ErrCancelled
		default:
			degraded = true
		}
	}

	candidates := make([]ScoredCandidate, 0, len(elements))
	for _, e := range elements {
		if err := ctx.Err(); err != nil {
			return nil, false, errors.ErrCancelled
		}

		signals := Signals{
			Lexical: lexicalScore(req.SourceText, e),
			Recency: recencyScore(e.Usage, now, c.config.RecencyTau),
		}

		elementDegraded := degraded
		if !elementDegraded {
			summary, traits, err := c.semanticScores(ctx, req.SnapshotID, contextVec, e)
			switch {
			case err == nil:
				signals.Summary = summary
				signals.Traits = traits
			case errors.IsCancelled(err):
				return nil, false, errors.ErrCancelled
			default:
				elementDegraded = true
			}
		}
		signals.Degraded = elementDegraded

		candidates = append(candidates, ScoredCandidate{
			Element:   e,
			Score:     c.combine(signals),
			TokenCost: counter.CountElement(e),
			Signals:   signals,
		})
	}

	// 确定性排序：分数降序，同分按 ID 升序
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Element.ID < candidates[j].Element.ID
	})

	return candidates, degraded, nil
}

// semanticScores 计算摘要与可见属性的语义相似度信号
func (c *Calculator) semanticScores(ctx context.Context, snapshotID string, contextVec []float32, e *knowledge.StoryKnowledgeElement) (float64, float64, error) {
	var summary float64
	if e.Summary != "" {
		key := embedding.Key(snapshotID, e.ID, "summary\x00"+e.Summary)
		vec, err := c.vectors.Get(ctx, key, e.Summary)
		if err != nil {
			return 0, 0, err
		}
		summary = clamp01(float64(cosineSimilarity(contextVec, vec)))
	}

	visible := e.VisibleTraits()
	if len(visible) == 0 {
		return summary, 0, nil
	}

	var total float64
	for _, t := range visible {
		text := t.Name + ": " + t.Value
		key := embedding.Key(snapshotID, e.ID, "trait\x00"+text)
		vec, err := c.vectors.Get(ctx, key, text)
		if err != nil {
			return 0, 0, err
		}
		total += clamp01(float64(cosineSimilarity(contextVec, vec)))
	}

	return summary, total / float64(len(visible)), nil
}

// combine 计算加权综合分数
//
// 降级时语义权重从分母中剔除，剩余信号重新归一化，
// 保证降级模式下分数仍落在 [0,1]。
func (c *Calculator) combine(s Signals) float64 {
	wl, ws, wt, wr := c.config.LexicalWeight, c.config.SemanticWeight, c.config.TraitWeight, c.config.RecencyWeight

	if s.Degraded {
		denom := wl + wr
		if denom <= 0 {
			return 0
		}
		return (wl*s.Lexical + wr*s.Recency) / denom
	}

	denom := wl + ws + wt + wr
	if denom <= 0 {
		return 0
	}
	return (wl*s.Lexical + ws*s.Summary + wt*s.Traits + wr*s.Recency) / denom
}

// lexicalScore 词法提及频率信号
//
// 统计名称与别名在源文本中的大小写不敏感整词出现次数，
// 归一化为 min(1, count/3)。
func lexicalScore(sourceText string, e *knowledge.StoryKnowledgeElement) float64 {
	if sourceText == "" {
		return 0
	}

	lower := strings.ToLower(sourceText)
	count := countMentions(lower, e.Name)
	for _, alias := range e.Aliases {
		count += countMentions(lower, alias)
	}

	return math.Min(1.0, float64(count)/3.0)
}

// countMentions 统计整词出现次数（文本须已转为小写）
func countMentions(lowerText, name string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return 0
	}

	count := 0
	offset := 0
	for {
		i := strings.Index(lowerText[offset:], name)
		if i < 0 {
			break
		}
		start := offset + i
		end := start + len(name)
		if boundaryBefore(lowerText, start) && boundaryAfter(lowerText, end) {
			count++
		}
		offset = end
	}
	return count
}

// boundaryBefore 判断字节下标 i 之前是否为词边界
//
// 按 UTF-8 解码完整 rune 判断，多字节字符的延续字节
// 不会被误认为边界。
func boundaryBefore(text string, i int) bool {
	if i <= 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

// boundaryAfter 判断字节下标 i 处是否为词边界
func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// recencyScore 新近性/熟悉度信号
//
// 对引用次数单调递增且饱和，对距上次引用的时间指数衰减。
func recencyScore(usage knowledge.UsageStats, now time.Time, tau time.Duration) float64 {
	if usage.ReferenceCount <= 0 {
		return 0
	}

	familiarity := 1 - math.Exp(-float64(usage.ReferenceCount)/5.0)

	var decay float64
	if !usage.LastReferencedAt.IsZero() && tau > 0 {
		elapsed := now.Sub(usage.LastReferencedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		decay = math.Exp(-elapsed.Seconds() / tau.Seconds())
	}

	return 0.5*familiarity + 0.5*familiarity*decay
}

// cosineSimilarity 计算两个向量的余弦相似度
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// clamp01 将值截断到 [0,1]
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
