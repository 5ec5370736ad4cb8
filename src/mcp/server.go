package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rupiah-scanner/src/core/auth"
	"rupiah-scanner/src/core/scanner"
	"rupiah-scanner/src/core/utils"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ToolScanBanknotes = "scan_banknotes"
	ToolScannerStatus = "scanner_status"

	// 工具调用的默认等待时间
	defaultScanTimeout = 90 * time.Second
	maxScanTimeout     = 300
)

// Scanner MCP工具背后的扫描控制器
type Scanner interface {
	Scan(ctx context.Context) (string, error)
	Status() scanner.Status
}

// Server 通过SSE对外提供扫描工具，供外部智能体调用
type Server struct {
	logger  *utils.Logger
	scanner Scanner
	mcp     *server.MCPServer
	sse     *server.SSEServer

	authToken      *auth.AuthToken
	allowedDevices []string
}

// NewServer 创建MCP服务，baseURL 为客户端可访问的地址，如 http://192.168.1.10:8000
func NewServer(sc Scanner, baseURL, version string, logger *utils.Logger) *Server {
	s := &Server{
		logger:  logger,
		scanner: sc,
	}

	s.mcp = server.NewMCPServer(
		"rupiah-scanner",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.mcp.AddTool(mcp.NewTool(ToolScanBanknotes,
		mcp.WithDescription("拍摄一张照片并识别其中的印尼盾纸币面额与总额，返回识别文本"),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("等待识别结果的最长秒数"),
			mcp.Min(1),
			mcp.Max(maxScanTimeout),
		),
	), s.handleScan)
	s.mcp.AddTool(mcp.NewTool(ToolScannerStatus,
		mcp.WithDescription("查询相机是否就绪以及是否有扫描正在进行"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleStatus)

	s.sse = server.NewSSEServer(s.mcp, server.WithBaseURL(baseURL))
	return s
}

// RequireAuth 要求 /sse 与 /message 携带设备token，需在 Start 之前调用
func (s *Server) RequireAuth(authToken *auth.AuthToken, allowedDevices []string) {
	s.authToken = authToken
	s.allowedDevices = allowedDevices
}

// Start 注册 /sse 与 /message 路由
func (s *Server) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	group := engine.Group("")
	if s.authToken != nil {
		group.Use(s.authToken.Middleware(s.allowedDevices, func(c *gin.Context, err error) {
			s.logger.Warn(fmt.Sprintf("MCP请求认证失败: %v", err), map[string]interface{}{
				"path":      c.Request.URL.Path,
				"remote_ip": c.ClientIP(),
			})
		}))
	}
	group.GET("/sse", gin.WrapH(s.sse.SSEHandler()))
	group.POST("/message", gin.WrapH(s.sse.MessageHandler()))
	s.logger.Info("MCP服务路由注册完成", map[string]interface{}{"auth": s.authToken != nil})
	return nil
}

// MCPServer 返回底层的 MCP 服务
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) handleScan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	timeout := defaultScanTimeout
	if seconds := request.GetInt("timeout_seconds", 0); seconds > 0 {
		timeout = time.Duration(min(seconds, maxScanTimeout)) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info(fmt.Sprintf("MCP请求扫描，超时 %v", timeout))
	text, err := s.scanner.Scan(ctx)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("MCP扫描失败: %v", err))
		return mcp.NewToolResultError(scanner.FailureMessage(err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(s.scanner.Status())
	if err != nil {
		return nil, fmt.Errorf("序列化状态失败: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
