package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"rupiah-scanner/src/core/image"
	"rupiah-scanner/src/core/providers/vlllm"
	"rupiah-scanner/src/core/utils"
)

// DefaultBaseURL 本地Ollama默认地址
const DefaultBaseURL = "http://localhost:11434"

// 错误响应体最多读取的字节数
const maxErrorBody = 4096

// Request Ollama /api/chat 请求结构
type Request struct {
	Model    string                 `json:"model"`
	Messages []Message              `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// Message Ollama消息结构
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // 纯base64，不带data URI前缀
}

// Response Ollama /api/chat 非流式响应
type Response struct {
	Model     string   `json:"model"`
	CreatedAt string   `json:"created_at"`
	Message   *Message `json:"message"`
	Done      bool     `json:"done"`
	Error     string   `json:"error,omitempty"`
}

// Provider 本地Ollama视觉模型
type Provider struct {
	*vlllm.BaseProvider
}

// NewProvider 创建Ollama VLLLM提供者实例
func NewProvider(config *vlllm.Config, logger *utils.Logger) (vlllm.Provider, error) {
	return &Provider{BaseProvider: vlllm.NewBaseProvider(config, logger)}, nil
}

func (p *Provider) Initialize() error {
	config := p.Config()
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.ModelName == "" {
		return fmt.Errorf("model_name is required")
	}
	p.Logger().Debug("Ollama VLLLM初始化成功", map[string]interface{}{
		"base_url": config.BaseURL,
		"model":    config.ModelName,
	})
	return nil
}

func (p *Provider) buildRequest(img image.ImageData, prompt string) Request {
	config := p.Config()
	options := map[string]interface{}{}
	if config.MaxTokens > 0 {
		options["num_predict"] = config.MaxTokens
	}
	if config.Temperature > 0 {
		options["temperature"] = config.Temperature
	}
	if config.TopP > 0 {
		options["top_p"] = config.TopP
	}

	return Request{
		Model: config.ModelName,
		Messages: []Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []string{img.Data},
			},
		},
		Stream:  false,
		Options: options,
	}
}

// Recognize 发送非流式 /api/chat 请求并返回 message.content 原文
func (p *Provider) Recognize(ctx context.Context, img image.ImageData, prompt string) (string, error) {
	requestBody, err := json.Marshal(p.buildRequest(img, prompt))
	if err != nil {
		return "", fmt.Errorf("请求序列化失败: %v", err)
	}

	url := strings.TrimSuffix(p.Config().BaseURL, "/") + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTPClient().Do(req)
	if err != nil {
		err = vlllm.ClassifyError(err)
		p.Logger().Error(fmt.Sprintf("Ollama API调用失败: %v", err))
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &vlllm.StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    strings.TrimSpace(string(body)),
		}
		var errResp Response
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			statusErr.Message = errResp.Error
		}
		p.Logger().Error(fmt.Sprintf("Ollama API返回错误: %v", statusErr))
		return "", statusErr
	}

	var response Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", vlllm.ClassifyError(err)
	}
	if response.Message == nil || response.Message.Content == "" {
		return "", fmt.Errorf("%w: missing message.content", vlllm.ErrParse)
	}

	p.Logger().Info("Ollama Vision API调用成功", map[string]interface{}{
		"content": response.Message.Content,
	})
	return response.Message.Content, nil
}

// init 注册Ollama VLLLM提供者
func init() {
	vlllm.Register("ollama", NewProvider)
}
