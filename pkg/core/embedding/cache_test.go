package embedding_test

import (
	"context"
	stderrors "errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/storyweaver/saliency-go/pkg/core/embedding"
	"github.com/storyweaver/saliency-go/pkg/core/errors"
	"github.com/storyweaver/saliency-go/pkg/otel"
)

// countingProvider returns a fixed vector and counts Embed calls
type countingProvider struct {
	calls atomic.Int64
	err   error
	gate  chan struct{} // when set, Embed blocks until the gate closes
}

func (p *countingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.calls.Add(1)
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{1, 2, 3}
	}
	return result, nil
}

func (p *countingProvider) Name() string { return "counting" }
func (p *countingProvider) Close() error { return nil }

func TestCache_MissThenHit(t *testing.T) {
	provider := &countingProvider{}
	cache := embedding.NewCache(provider, 16)
	ctx := context.Background()

	key := embedding.Key("snap", "elem", "some text")

	first, err := cache.Get(ctx, key, "some text")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	second, err := cache.Get(ctx, key, "some text")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if len(first) != 3 || len(second) != 3 {
		t.Fatal("unexpected vector length")
	}
	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("expected a single provider call, got %d", got)
	}

	stats := cache.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("expected 1 hit / 1 miss, got %d / %d", stats.Hits, stats.Misses)
	}
}

func TestCache_KeyScopedBySnapshot(t *testing.T) {
	// 同一文本在不同快照下必须使用不同的键，防止过期向量跨快照泄漏
	a := embedding.Key("snap-1", "elem", "same text")
	b := embedding.Key("snap-2", "elem", "same text")
	if a == b {
		t.Fatal("keys must differ across snapshots")
	}

	c := embedding.Key("snap-1", "other", "same text")
	if a == c {
		t.Fatal("keys must differ across elements")
	}

	d := embedding.Key("snap-1", "elem", "same text")
	if a != d {
		t.Fatal("identical inputs must produce identical keys")
	}
}

func TestCache_KeyDelimiterInjection(t *testing.T) {
	// 字段间使用 NUL 分隔，拼接歧义不应产生相同键
	a := embedding.Key("ab", "c", "text")
	b := embedding.Key("a", "bc", "text")
	if a == b {
		t.Fatal("field boundaries must be unambiguous")
	}
}

func TestCache_EvictsBeyondCapacity(t *testing.T) {
	provider := &countingProvider{}
	cache := embedding.NewCache(provider, 2)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		if _, err := cache.Get(ctx, embedding.Key("snap", "", text), text); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}

	if got := cache.Size(); got != 2 {
		t.Fatalf("expected capacity-bounded size 2, got %d", got)
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	provider := &countingProvider{}
	cache := embedding.NewCache(provider, 2)
	ctx := context.Background()

	keyOne := embedding.Key("snap", "", "one")
	keyTwo := embedding.Key("snap", "", "two")

	cache.Get(ctx, keyOne, "one")
	cache.Get(ctx, keyTwo, "two")
	// 触碰 one，使 two 成为最久未访问
	cache.Get(ctx, keyOne, "one")
	cache.Get(ctx, embedding.Key("snap", "", "three"), "three")

	before := provider.calls.Load()
	cache.Get(ctx, keyOne, "one")
	if provider.calls.Load() != before {
		t.Fatal("recently used entry should have survived eviction")
	}
	cache.Get(ctx, keyTwo, "two")
	if provider.calls.Load() != before+1 {
		t.Fatal("least recently used entry should have been evicted")
	}
}

func TestCache_CoalescesConcurrentMisses(t *testing.T) {
	provider := &countingProvider{gate: make(chan struct{})}
	cache := embedding.NewCache(provider, 16)
	ctx := context.Background()

	key := embedding.Key("snap", "elem", "shared text")

	const waiters = 8
	var wg sync.WaitGroup
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.Get(ctx, key, "shared text")
		}(i)
	}

	// 等待首个未命中抵达提供商，再放行
	for provider.calls.Load() == 0 {
		runtime.Gosched()
	}
	close(provider.gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("waiter %d failed: %v", i, err)
		}
	}
	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("concurrent misses should coalesce into one call, got %d", got)
	}
}

func TestCache_OwnerCancellationNotInherited(t *testing.T) {
	// 发起在途调用的请求被取消时，合并等待的独立请求不得
	// 连带失败，而应接管提供商调用自行重试
	provider := &countingProvider{gate: make(chan struct{})}
	cache := embedding.NewCache(provider, 16)

	key := embedding.Key("snap", "elem", "shared text")

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	var wg sync.WaitGroup
	var errA, errB error
	var vecB []float32

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errA = cache.Get(ctxA, key, "shared text")
	}()

	// 等 A 成为发起方并阻塞在提供商调用上
	for provider.calls.Load() == 0 {
		runtime.Gosched()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		vecB, errB = cache.Get(context.Background(), key, "shared text")
	}()

	cancelA()

	// A 返回取消后，B 必须发起自己的提供商调用
	for provider.calls.Load() < 2 {
		runtime.Gosched()
	}
	close(provider.gate)
	wg.Wait()

	if !errors.IsCancelled(errA) {
		t.Fatalf("cancelled owner should observe cancellation, got %v", errA)
	}
	if errB != nil {
		t.Fatalf("independent request must not inherit owner cancellation: %v", errB)
	}
	if len(vecB) != 3 {
		t.Fatal("independent request should receive a vector")
	}
}

func TestCache_RecordsMetrics(t *testing.T) {
	provider := &countingProvider{}
	metrics := otel.NewInMemoryMetrics()
	cache := embedding.NewCache(provider, 16, embedding.WithMetrics(metrics))
	ctx := context.Background()

	key := embedding.Key("snap", "elem", "text")
	cache.Get(ctx, key, "text")
	cache.Get(ctx, key, "text")

	if got := metrics.GetCounterValue(otel.MetricCacheMisses); got != 1 {
		t.Fatalf("expected 1 recorded miss, got %d", got)
	}
	if got := metrics.GetCounterValue(otel.MetricCacheHits); got != 1 {
		t.Fatalf("expected 1 recorded hit, got %d", got)
	}
	if got := metrics.GetGaugeValue(otel.MetricCacheSize); got != 1 {
		t.Fatalf("expected cache size gauge 1, got %v", got)
	}
}

func TestCache_ProviderErrorNotCached(t *testing.T) {
	provider := &countingProvider{err: errors.ErrEmbeddingUnavailable}
	cache := embedding.NewCache(provider, 16)
	ctx := context.Background()

	key := embedding.Key("snap", "elem", "text")

	_, err := cache.Get(ctx, key, "text")
	if !stderrors.Is(err, errors.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}

	// 错误不缓存，提供商恢复后重试成功
	provider.err = nil
	if _, err := cache.Get(ctx, key, "text"); err != nil {
		t.Fatalf("retry after recovery failed: %v", err)
	}
	if got := provider.calls.Load(); got != 2 {
		t.Fatalf("expected 2 provider calls, got %d", got)
	}
}

func TestCache_Purge(t *testing.T) {
	provider := &countingProvider{}
	cache := embedding.NewCache(provider, 16)
	ctx := context.Background()

	cache.Get(ctx, embedding.Key("snap", "", "one"), "one")
	cache.Purge()

	if got := cache.Size(); got != 0 {
		t.Fatalf("expected empty cache after purge, got %d entries", got)
	}

	cache.Get(ctx, embedding.Key("snap", "", "one"), "one")
	if got := provider.calls.Load(); got != 2 {
		t.Fatalf("purged entry should miss again, got %d calls", got)
	}
}

func TestCache_Cancellation(t *testing.T) {
	provider := &countingProvider{}
	cache := embedding.NewCache(provider, 16)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cache.Get(ctx, embedding.Key("snap", "", "text"), "text")
	if !stderrors.Is(err, errors.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if got := provider.calls.Load(); got != 0 {
		t.Fatalf("cancelled request must not reach the provider, got %d calls", got)
	}
}
