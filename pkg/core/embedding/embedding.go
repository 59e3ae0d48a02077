// Package embedding 提供文本嵌入能力的统一接口
//
// 包含外部嵌入服务的适配器，以及按内容哈希键控的共享向量缓存。
package embedding

import (
	"context"
	"time"
)

// Provider 嵌入提供商接口
type Provider interface {
	// Embed 将文本列表转换为向量列表
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Name 返回提供商名称
	Name() string

	// Close 关闭客户端连接
	Close() error
}

// Option 配置选项函数
type Option func(*Options)

// Options 嵌入客户端配置选项
type Options struct {
	// APIKey API 密钥
	APIKey string
	// BaseURL 自定义 API 端点
	BaseURL string
	// Model 嵌入模型
	Model string
	// MaxRetries 最大重试次数
	MaxRetries int
	// RetryDelay 重试间隔基数
	RetryDelay time.Duration
}

// DefaultOptions 返回默认选项
func DefaultOptions() *Options {
	return &Options{
		Model:      "text-embedding-3-small",
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// WithAPIKey 设置 API 密钥
func WithAPIKey(key string) Option {
	return func(o *Options) {
		o.APIKey = key
	}
}

// WithBaseURL 设置自定义端点
func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.BaseURL = url
	}
}

// WithModel 设置嵌入模型
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithMaxRetries 设置最大重试次数
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// WithRetryDelay 设置重试间隔
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) {
		o.RetryDelay = d
	}
}
