package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"

	"github.com/storyweaver/saliency-go/pkg/core/errors"
	"github.com/storyweaver/saliency-go/pkg/otel"
)

// Cache 共享嵌入向量缓存
//
// 按内容哈希键控：相同文本永不重复计算。这是引擎全局唯一的
// 跨请求状态，生命周期显式（构造一次、容量有界、可清空）。
//
// 并发约束：读取仅持读锁，互不阻塞；未命中时的提供商调用在
// 任何缓存锁之外执行，同键并发未命中会合并为一次调用。
type Cache struct {
	provider Provider
	maxSize  int
	metrics  otel.Metrics

	mu      sync.RWMutex
	entries map[string]*cacheEntry

	inflightMu sync.Mutex
	inflight   map[string]*inflightCall

	hits   atomic.Int64
	misses atomic.Int64
	clock  atomic.Int64
}

type cacheEntry struct {
	vector     []float32
	lastAccess atomic.Int64
}

type inflightCall struct {
	done   chan struct{}
	vector []float32
	err    error
}

// DefaultCacheSize 默认缓存容量（条目数）
const DefaultCacheSize = 4096

// CacheOption 配置 Cache。
type CacheOption func(*Cache)

// WithMetrics 设置缓存的指标收集器。
func WithMetrics(metrics otel.Metrics) CacheOption {
	return func(c *Cache) {
		if metrics != nil {
			c.metrics = metrics
		}
	}
}

// NewCache 创建嵌入缓存
//
// maxSize <= 0 时使用 DefaultCacheSize。
func NewCache(provider Provider, maxSize int, opts ...CacheOption) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	c := &Cache{
		provider: provider,
		maxSize:  maxSize,
		metrics:  otel.GetMetrics(),
		entries:  make(map[string]*cacheEntry),
		inflight: make(map[string]*inflightCall),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key 计算缓存键
//
// 快照 ID 与元素 ID 参与哈希，保证编辑后不会跨快照
// 泄漏过期向量。
func Key(snapshotID, elementID, text string) string {
	h := sha256.New()
	h.Write([]byte(snapshotID))
	h.Write([]byte{0})
	h.Write([]byte(elementID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Get 返回文本对应的嵌入向量
//
// 命中时直接返回；未命中时调用提供商，同键并发调用合并。
// 取消隔离：发起方请求被取消不会传染给合并等待的其他请求，
// 存活的等待方会接管提供商调用重试。
// 提供商失败以 ErrEmbeddingUnavailable 族错误返回，不会崩溃。
func (c *Cache) Get(ctx context.Context, key, text string) ([]float32, error) {
	missCounted := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.ErrCancelled
		}

		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()

		if ok {
			entry.lastAccess.Store(c.clock.Add(1))
			c.hits.Add(1)
			c.metrics.Counter(otel.MetricCacheHits).Add(ctx, 1)
			return entry.vector, nil
		}

		if !missCounted {
			c.misses.Add(1)
			c.metrics.Counter(otel.MetricCacheMisses).Add(ctx, 1)
			missCounted = true
		}

		// 同键未命中合并为一次提供商调用
		c.inflightMu.Lock()
		if call, ok := c.inflight[key]; ok {
			c.inflightMu.Unlock()
			select {
			case <-call.done:
				// 发起方自身被取消产生的错误不属于本请求：
				// 回到循环顶部，由存活请求接管重试
				if call.err != nil && errors.IsCancelled(call.err) {
					continue
				}
				if call.err != nil {
					return nil, call.err
				}
				return call.vector, nil
			case <-ctx.Done():
				return nil, errors.ErrCancelled
			}
		}

		call := &inflightCall{done: make(chan struct{})}
		c.inflight[key] = call
		c.inflightMu.Unlock()

		// 提供商调用不持有任何缓存锁
		vectors, err := c.provider.Embed(ctx, []string{text})
		if err == nil && len(vectors) != 1 {
			err = errors.ErrInvalidResponse
		}

		if err == nil {
			call.vector = vectors[0]
			c.put(key, vectors[0])
		}
		call.err = err

		// 先摘除 inflight 再唤醒等待方，确保接管重试时不会
		// 再次挂到这次已完成的调用上
		c.inflightMu.Lock()
		delete(c.inflight, key)
		c.inflightMu.Unlock()
		close(call.done)

		if err != nil {
			return nil, err
		}
		return call.vector, nil
	}
}

// put 写入缓存并按需逐出最久未访问的条目
func (c *Cache) put(key string, vector []float32) {
	entry := &cacheEntry{vector: vector}
	entry.lastAccess.Store(c.clock.Add(1))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry
	for len(c.entries) > c.maxSize {
		var oldestKey string
		oldest := int64(-1)
		for k, e := range c.entries {
			if access := e.lastAccess.Load(); oldest < 0 || access < oldest {
				oldest = access
				oldestKey = k
			}
		}
		delete(c.entries, oldestKey)
	}
	c.metrics.Gauge(otel.MetricCacheSize).Set(context.Background(), float64(len(c.entries)))
}

// Purge 清空缓存
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.metrics.Gauge(otel.MetricCacheSize).Set(context.Background(), 0)
}

// Size 返回当前条目数
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats 缓存统计
type Stats struct {
	// Hits 命中次数
	Hits int64 `json:"hits"`
	// Misses 未命中次数
	Misses int64 `json:"misses"`
	// Size 当前条目数
	Size int `json:"size"`
}

// GetStats 返回缓存统计信息
func (c *Cache) GetStats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.Size(),
	}
}
