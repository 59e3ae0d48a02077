// Package errors 定义显著性引擎的通用错误类型
package errors

import (
	"context"
	"errors"
	"fmt"
)

// 通用错误
var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrCancelled 请求被协作取消（用户中止或超时）
	ErrCancelled = errors.New("request cancelled")
)

// 请求相关错误
var (
	// ErrInvalidRequest 上下文请求格式错误
	ErrInvalidRequest = errors.New("invalid context request")
	// ErrUnknownMode 未知的装配模式
	ErrUnknownMode = errors.New("unknown assembly mode")
)

// 嵌入提供商相关错误
var (
	// ErrEmbeddingUnavailable 嵌入服务不可用（可恢复，触发降级评分）
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrRateLimited 请求被限速
	ErrRateLimited = errors.New("rate limited")
	// ErrTimeout 请求超时
	ErrTimeout = errors.New("request timeout")
	// ErrInvalidAPIKey API 密钥无效
	ErrInvalidAPIKey = errors.New("invalid API key")
	// ErrInvalidResponse 嵌入响应无效
	ErrInvalidResponse = errors.New("invalid embedding response")
)

// 知识库相关错误
var (
	// ErrPersistenceUnavailable 知识库读取失败（对该请求致命，不做静默空结果回退）
	ErrPersistenceUnavailable = errors.New("knowledge base unavailable")
	// ErrSnapshotNotFound 快照不存在
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// WrapError 包装错误并添加上下文信息
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrEmbeddingUnavailable)
}

// IsFatal 判断错误是否为致命错误（不可恢复）
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInvalidAPIKey) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrPersistenceUnavailable) ||
		errors.Is(err, ErrInvalidConfig)
}

// IsCancelled 判断错误是否为取消结果
//
// 调用方据此区分"用户中止"与"真正的失败"。
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
