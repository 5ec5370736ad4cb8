package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rupiah-scanner/src/core/image"
	"rupiah-scanner/src/core/providers/vlllm"
	"rupiah-scanner/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

// Provider 兼容OpenAI chat completions 接口的视觉模型
type Provider struct {
	*vlllm.BaseProvider
	client *openai.Client
}

// NewProvider 创建OpenAI VLLLM提供者实例
func NewProvider(config *vlllm.Config, logger *utils.Logger) (vlllm.Provider, error) {
	return &Provider{BaseProvider: vlllm.NewBaseProvider(config, logger)}, nil
}

func (p *Provider) Initialize() error {
	config := p.Config()
	if config.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	if config.ModelName == "" {
		return fmt.Errorf("model_name is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	}
	clientConfig.HTTPClient = p.HTTPClient()
	p.client = openai.NewClientWithConfig(clientConfig)

	p.Logger().Debug("OpenAI VLLLM Provider初始化成功", map[string]interface{}{
		"model_name": config.ModelName,
		"base_url":   clientConfig.BaseURL,
	})
	return nil
}

// BuildRequest 构造只含一条用户消息的请求：固定提示词加一张data URI图片
func (p *Provider) BuildRequest(img image.ImageData, prompt string) openai.ChatCompletionRequest {
	config := p.Config()
	request := openai.ChatCompletionRequest{
		Model: config.ModelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: img.DataURI(),
						},
					},
				},
			},
		},
		Temperature: float32(config.Temperature),
		TopP:        float32(config.TopP),
	}

	// o系列推理模型只接受 max_completion_tokens
	if isReasoningModel(config.ModelName) {
		request.MaxCompletionTokens = config.MaxTokens
	} else {
		request.MaxTokens = config.MaxTokens
	}
	return request
}

func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// Recognize 发送识别请求并返回 choices[0].message.content 原文
func (p *Provider) Recognize(ctx context.Context, img image.ImageData, prompt string) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("provider not initialized")
	}

	p.Logger().Debug("开始调用OpenAI Vision API", map[string]interface{}{
		"model_name": p.Config().ModelName,
		"image_size": len(img.Data),
	})

	response, err := p.client.CreateChatCompletion(ctx, p.BuildRequest(img, prompt))
	if err != nil {
		err = classify(err)
		p.Logger().Error(fmt.Sprintf("OpenAI Vision API调用失败: %v", err))
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", vlllm.ErrEmptyResponse
	}
	content := response.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("%w: missing message.content", vlllm.ErrParse)
	}

	p.Logger().Info("OpenAI Vision API调用成功", map[string]interface{}{
		"content": content,
	})
	return content, nil
}

// classify 把go-openai的状态码错误转成 StatusError
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &vlllm.StatusError{
			StatusCode: apiErr.HTTPStatusCode,
			Status:     apiErr.HTTPStatus,
			Message:    apiErr.Message,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &vlllm.StatusError{
			StatusCode: reqErr.HTTPStatusCode,
			Status:     reqErr.HTTPStatus,
			Message:    strings.TrimSpace(string(reqErr.Body)),
		}
	}

	return vlllm.ClassifyError(err)
}

// init 注册OpenAI VLLLM提供者
func init() {
	vlllm.Register("openai", NewProvider)
}
