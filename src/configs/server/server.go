package server

import (
	"context"
	"net/http"

	"rupiah-scanner/src/configs"
	"rupiah-scanner/src/core/utils"

	"github.com/gin-gonic/gin"
)

type DefaultCfgService struct {
	logger *utils.Logger
	config *configs.Config
}

// NewDefaultCfgService 构造函数
func NewDefaultCfgService(config *configs.Config, logger *utils.Logger) (*DefaultCfgService, error) {
	service := &DefaultCfgService{
		logger: logger,
		config: config,
	}

	return service, nil
}

// Start 实现 CfgService 接口，注册所有 Cfg 相关路由
func (s *DefaultCfgService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.GET("/cfg", s.handleGet)
	apiGroup.OPTIONS("/cfg", s.handleOptions)

	s.logger.Info("Cfg HTTP服务路由注册完成")
	return nil
}

// CfgView 对外展示的运行配置，不包含密钥
type CfgView struct {
	SelectedModule map[string]string `json:"selected_module"`
	Locale         string            `json:"locale"`
	Prompt         string            `json:"prompt"`
	CycleTimeout   string            `json:"cycle_timeout"`
	Auth           bool              `json:"auth"`
	MCP            bool              `json:"mcp"`
	Recognizer     *RecognizerView   `json:"recognizer,omitempty"`
	Voice          string            `json:"voice,omitempty"`
}

// RecognizerView 识别服务配置，APIKey 只显示是否已设置
type RecognizerView struct {
	Type        string  `json:"type"`
	ModelName   string  `json:"model_name"`
	BaseURL     string  `json:"url"`
	APIKeySet   bool    `json:"api_key_set"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
}

// View 生成脱敏后的配置
func View(config *configs.Config) CfgView {
	view := CfgView{
		SelectedModule: config.SelectedModule,
		Locale:         config.Scanner.Locale,
		Prompt:         config.Scanner.Prompt,
		CycleTimeout:   config.CycleTimeout().String(),
		Auth:           config.Server.Auth.Enabled,
		MCP:            config.MCP.Enabled,
	}
	if v, ok := config.VLLLM[config.SelectedModule["VLLLM"]]; ok {
		view.Recognizer = &RecognizerView{
			Type:        v.Type,
			ModelName:   v.ModelName,
			BaseURL:     v.BaseURL,
			APIKeySet:   v.APIKey != "",
			Temperature: v.Temperature,
			MaxTokens:   v.MaxTokens,
			TopP:        v.TopP,
		}
	}
	if t, ok := config.TTS[config.SelectedModule["TTS"]]; ok {
		view.Voice = t.Voice
	}
	return view
}

func (s *DefaultCfgService) handleGet(c *gin.Context) {
	s.addCORSHeaders(c)
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"config": View(s.config),
	})
}

func (s *DefaultCfgService) handleOptions(c *gin.Context) {
	s.addCORSHeaders(c)
	c.Status(http.StatusNoContent)
}

func (s *DefaultCfgService) addCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
}
