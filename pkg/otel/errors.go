package otel

import "errors"

// 可观测性相关错误
var (
	// ErrInvalidSampleRate 采样率超出 [0, 1] 范围
	ErrInvalidSampleRate = errors.New("otel: sample rate must be between 0 and 1")
	// ErrUnknownExporter 未知的导出器类型
	ErrUnknownExporter = errors.New("otel: unknown exporter type")
	// ErrNotInitialized 提供者未初始化
	ErrNotInitialized = errors.New("otel: provider not initialized")
)
