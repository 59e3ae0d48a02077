package config

import "errors"

// 配置相关错误
var (
	// ErrInvalidWeights 评分权重无效（存在负值或全部为零）
	ErrInvalidWeights = errors.New("invalid scoring weights")
	// ErrInvalidThreshold 分数阈值越界
	ErrInvalidThreshold = errors.New("invalid score threshold")
	// ErrInvalidSampleRate 采样率越界
	ErrInvalidSampleRate = errors.New("invalid sample rate")
)
