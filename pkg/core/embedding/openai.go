package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/storyweaver/saliency-go/pkg/core/errors"
)

// OpenAIProvider OpenAI 嵌入客户端
type OpenAIProvider struct {
	client  *openai.Client
	options *Options
}

// NewOpenAI 创建 OpenAI 嵌入客户端
func NewOpenAI(opts ...Option) (*OpenAIProvider, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if options.APIKey == "" {
		return nil, errors.ErrInvalidAPIKey
	}

	config := openai.DefaultConfig(options.APIKey)
	if options.BaseURL != "" {
		config.BaseURL = options.BaseURL
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(config),
		options: options,
	}, nil
}

// Name 返回提供商名称
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Close 关闭客户端连接
func (p *OpenAIProvider) Close() error {
	return nil
}

// Embed 生成文本嵌入向量
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.options.Model),
	}

	var resp openai.EmbeddingResponse
	var err error

	err = retry(ctx, p.options.MaxRetries, p.options.RetryDelay, func() error {
		resp, err = p.client.CreateEmbeddings(ctx, req)
		return mapOpenAIError(err)
	})

	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, errors.ErrInvalidResponse
	}

	result := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		result[i] = data.Embedding
	}

	return result, nil
}

// mapOpenAIError 将 OpenAI 错误映射为框架错误
func mapOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	apiErr, ok := err.(*openai.APIError)
	if !ok {
		return fmt.Errorf("%w: %v", errors.ErrEmbeddingUnavailable, err)
	}

	switch apiErr.HTTPStatusCode {
	case 401:
		return errors.ErrInvalidAPIKey
	case 429:
		return errors.ErrRateLimited
	case 500, 502, 503:
		return errors.ErrEmbeddingUnavailable
	default:
		return fmt.Errorf("openai error (code=%d): %w", apiErr.HTTPStatusCode, err)
	}
}

// 编译时接口检查
var _ Provider = (*OpenAIProvider)(nil)
