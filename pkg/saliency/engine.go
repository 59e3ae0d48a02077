package saliency

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/storyweaver/saliency-go/pkg/core/errors"
	"github.com/storyweaver/saliency-go/pkg/knowledge"
	"github.com/storyweaver/saliency-go/pkg/otel"
)

// Engine 显著性引擎
//
// 按请求装配上下文包：可见性过滤 → 按模式分派策略 →
// （优化模式）相关性评分与预算内子集选择。
// Engine 无跨请求状态，可被多个 goroutine 并发使用；
// 唯一共享的可变状态是嵌入缓存，其并发安全由缓存自身保证。
type Engine struct {
	source     knowledge.Source
	calculator *Calculator
	optimizer  Optimizer
	strategies map[Mode]ContextAssemblyStrategy
	config     *Config
	logger     otel.Logger
	metrics    otel.Metrics
	tracer     trace.Tracer
}

// EngineOption 配置 Engine。
type EngineOption func(*Engine)

// WithLogger 设置日志器。
func WithLogger(logger otel.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics 设置指标收集器。
func WithMetrics(metrics otel.Metrics) EngineOption {
	return func(e *Engine) {
		if metrics != nil {
			e.metrics = metrics
		}
	}
}

// WithTracer 设置追踪器。
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithConfig 设置引擎配置。
func WithConfig(config *Config) EngineOption {
	return func(e *Engine) {
		if config != nil {
			e.config = config
		}
	}
}

// WithStrategy 注册或覆盖某个模式的装配策略。
//
// 在 NewEngine 的默认策略构建之后应用，可用于替换内置模式
// 或挂接新模式。
func WithStrategy(mode Mode, strategy ContextAssemblyStrategy) EngineOption {
	return func(e *Engine) {
		if strategy != nil {
			e.strategies[mode] = strategy
		}
	}
}

// NewEngine 创建显著性引擎。
//
// vectors 为嵌入向量来源（通常是 *embedding.Cache）；
// 传 nil 时引擎始终以降级模式评分，仍可正常服务请求。
func NewEngine(source knowledge.Source, vectors VectorSource, opts ...EngineOption) *Engine {
	e := &Engine{
		source:     source,
		strategies: make(map[Mode]ContextAssemblyStrategy),
		config:     DefaultConfig(),
		logger:     otel.GetLogger(),
		metrics:    otel.GetMetrics(),
		tracer:     otel.GetTracer(),
	}

	// 先应用配置类选项，策略依赖最终配置
	for _, opt := range opts {
		opt(e)
	}

	e.calculator = NewCalculator(vectors, e.config)
	e.optimizer = NewKnapsackOptimizer(e.config.MaxDPCells)

	if _, ok := e.strategies[ModeOptimized]; !ok {
		e.strategies[ModeOptimized] = NewOptimizedStrategy(e.calculator, e.optimizer, e.config)
	}
	if _, ok := e.strategies[ModeRaw]; !ok {
		e.strategies[ModeRaw] = NewRawStrategy(e.config)
	}

	return e
}

// AssembleContext 装配一次上下文包
//
// 流程：请求验证 → 快照加载 → 可见性过滤 → 策略装配。
// 知识库读取失败对本次请求是致命的，不会静默回退为空结果；
// 嵌入失败不致命，优化模式自动降级。
func (e *Engine) AssembleContext(ctx context.Context, req *ContextRequest) (*ContextBundle, error) {
	// 畸形请求快速失败，不产生任何局部工作
	if req == nil {
		return nil, errors.ErrInvalidRequest
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "saliency.assemble",
		trace.WithAttributes(
			attribute.String("saliency.mode", string(req.Mode)),
			attribute.String("saliency.snapshot_id", req.SnapshotID),
			attribute.Int("saliency.token_budget", req.TokenBudget),
		))
	defer span.End()

	e.metrics.Counter(otel.MetricAssembleTotal).Add(ctx, 1,
		otel.NewAttr("mode", string(req.Mode)))

	bundle, err := e.assemble(ctx, req)
	if err != nil {
		span.RecordError(err)
		e.metrics.Counter(otel.MetricAssembleErrors).Add(ctx, 1,
			otel.NewAttr("mode", string(req.Mode)))
		if !errors.IsCancelled(err) {
			e.logger.WithContext(ctx).Error("context assembly failed",
				"snapshot_id", req.SnapshotID,
				"mode", string(req.Mode),
				"error", err)
		}
		return nil, err
	}

	elapsed := time.Since(start)
	e.metrics.Histogram(otel.MetricAssembleDuration).Record(ctx,
		float64(elapsed.Milliseconds()),
		otel.NewAttr("mode", string(req.Mode)))
	e.metrics.Histogram(otel.MetricBundleTokens).Record(ctx, float64(bundle.TotalTokens))
	e.metrics.Histogram(otel.MetricElementsSelected).Record(ctx, float64(len(bundle.Elements)))

	log := e.logger.WithContext(ctx)
	if bundle.Degraded {
		e.metrics.Counter(otel.MetricAssembleDegraded).Add(ctx, 1)
		log.Warn("embedding unavailable, assembled in degraded mode",
			"snapshot_id", req.SnapshotID,
			"bundle_id", bundle.ID)
	}
	log.Info("context assembled",
		"bundle_id", bundle.ID,
		"mode", string(bundle.Mode),
		"elements", len(bundle.Elements),
		"total_tokens", bundle.TotalTokens,
		"duration_ms", elapsed.Milliseconds())

	return bundle, nil
}

func (e *Engine) assemble(ctx context.Context, req *ContextRequest) (*ContextBundle, error) {
	strategy, ok := e.strategies[req.Mode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownMode, req.Mode)
	}

	elements, err := e.loadSnapshot(ctx, req.SnapshotID)
	if err != nil {
		return nil, err
	}

	visible := FilterVisible(elements)
	e.metrics.Histogram(otel.MetricElementsVisible).Record(ctx, float64(len(visible)))

	return strategy.Assemble(ctx, req, visible)
}

// loadSnapshot 读取快照并归类错误
func (e *Engine) loadSnapshot(ctx context.Context, snapshotID string) ([]*knowledge.StoryKnowledgeElement, error) {
	elements, err := e.source.GetElements(ctx, snapshotID)
	if err != nil {
		if errors.IsCancelled(err) {
			return nil, errors.ErrCancelled
		}
		if stderrors.Is(err, knowledge.ErrSnapshotNotFound) {
			return nil, fmt.Errorf("%w: %s", errors.ErrSnapshotNotFound, snapshotID)
		}
		return nil, errors.WrapError(errors.ErrPersistenceUnavailable, err.Error())
	}
	return elements, nil
}

// Explain 返回可见候选的完整评分分解，用于诊断为何某元素入选或落选
//
// 与 AssembleContext 共享同一条过滤、评分与选择管线，
// 额外标注每个候选的 Selected 状态。原始模式下全部可见候选视为入选。
func (e *Engine) Explain(ctx context.Context, req *ContextRequest) ([]ScoredCandidate, error) {
	if req == nil {
		return nil, errors.ErrInvalidRequest
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "saliency.explain",
		trace.WithAttributes(
			attribute.String("saliency.snapshot_id", req.SnapshotID),
		))
	defer span.End()

	elements, err := e.loadSnapshot(ctx, req.SnapshotID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	visible := FilterVisible(elements)
	candidates, _, err := e.calculator.ScoreAll(ctx, req, visible)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if req.Mode == ModeRaw {
		for i := range candidates {
			candidates[i].Selected = true
		}
		return candidates, nil
	}

	selected, err := selectWithinBudget(ctx, e.optimizer, e.config, candidates, req.TokenBudget)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for _, i := range selected {
		candidates[i].Selected = true
	}

	return candidates, nil
}

// Close 释放引擎持有的资源
func (e *Engine) Close() error {
	if e.source != nil {
		return e.source.Close()
	}
	return nil
}
