package vlllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"rupiah-scanner/src/core/image"
	"rupiah-scanner/src/core/providers"
	"rupiah-scanner/src/core/utils"
)

// DefaultTimeout 连接、读、写超时的默认值
const DefaultTimeout = 40 * time.Second

var (
	// ErrNetwork 连接、TLS或超时等网络层失败
	ErrNetwork = errors.New("network failure")
	// ErrEmptyResponse 响应中 choices 为空
	ErrEmptyResponse = errors.New("empty response from recognition service")
	// ErrParse 响应体不是预期的JSON结构
	ErrParse = errors.New("failed to parse response")
)

// StatusError 服务端返回非2xx状态码，响应体不会被当作识别结果解析
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Timeouts 连接/读/写超时
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
}

// Config VLLLM配置结构
type Config struct {
	Type        string
	ModelName   string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	TopP        float64
	Timeouts    Timeouts
	Data        map[string]interface{}
}

// Provider 视觉语言模型识别接口，每次调用只发送一张图片，不重试
type Provider interface {
	providers.Provider
	Recognize(ctx context.Context, img image.ImageData, prompt string) (string, error)
}

// BaseProvider 各类型共用的配置、日志和HTTP客户端
type BaseProvider struct {
	config     *Config
	logger     *utils.Logger
	httpClient *http.Client
}

func NewBaseProvider(config *Config, logger *utils.Logger) *BaseProvider {
	return &BaseProvider{
		config:     config,
		logger:     logger,
		httpClient: NewHTTPClient(config.Timeouts),
	}
}

func (p *BaseProvider) Config() *Config {
	return p.config
}

func (p *BaseProvider) Logger() *utils.Logger {
	return p.logger
}

func (p *BaseProvider) HTTPClient() *http.Client {
	return p.httpClient
}

// Cleanup 释放空闲连接
func (p *BaseProvider) Cleanup() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// ClassifyError 把传输层和解码错误归入识别失败分类；上下文取消原样返回
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// 超时上下文与读写超时不同，交由调用方判断
		return err
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return err
	}
	if errors.Is(err, ErrNetwork) || errors.Is(err, ErrParse) || errors.Is(err, ErrEmptyResponse) {
		return err
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}

	// 其余均为建连、TLS或读写超时
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
