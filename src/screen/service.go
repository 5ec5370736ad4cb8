package screen

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"rupiah-scanner/src/configs"
	"rupiah-scanner/src/core/auth"
	"rupiah-scanner/src/core/scanner"
	"rupiah-scanner/src/core/utils"

	"github.com/gin-gonic/gin"
)

type DefaultScreenService struct {
	logger     *utils.Logger
	config     *configs.Config
	screen     *Screen
	hub        *Hub
	upgrader   Upgrader
	scanner    Scanner
	permission PermissionState
	authToken  *auth.AuthToken
}

// NewDefaultScreenService 构造函数；启用认证时 authToken 不能为空
func NewDefaultScreenService(config *configs.Config, logger *utils.Logger, screen *Screen, hub *Hub,
	scanner Scanner, permission PermissionState, authToken *auth.AuthToken) (*DefaultScreenService, error) {
	if config.Server.Auth.Enabled && authToken == nil {
		return nil, fmt.Errorf("启用认证时需要配置 server.token")
	}
	return &DefaultScreenService{
		logger:     logger,
		config:     config,
		screen:     screen,
		hub:        hub,
		upgrader:   NewDefaultUpgrader(),
		scanner:    scanner,
		permission: permission,
		authToken:  authToken,
	}, nil
}

// Start 实现 ScreenService 接口，注册屏幕相关路由
func (s *DefaultScreenService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	group := apiGroup.Group("")
	group.Use(s.corsMiddleware())
	if s.config.Server.Auth.Enabled {
		group.Use(s.authToken.Middleware(s.config.Server.Auth.AllowedDevices, func(c *gin.Context, err error) {
			s.logger.Warn(fmt.Sprintf("屏幕接口认证失败: %v", err))
		}))
	}

	group.GET("/screen", s.handleScreen)
	group.POST("/capture", s.handleCapture)
	group.DELETE("/capture", s.handleCancel)
	group.POST("/permission", s.handlePermission)
	group.GET("/preview", s.handlePreview)
	for _, path := range []string{"/screen", "/capture", "/permission", "/preview"} {
		group.OPTIONS(path, s.handleOptions)
	}

	engine.GET("/ws", s.handleWebSocket)
	if dir := s.config.Server.StaticDir; dir != "" {
		engine.Static("/ui", dir)
	}

	go func() {
		<-ctx.Done()
		s.hub.CloseAll()
	}()

	s.logger.Info("屏幕HTTP服务路由注册完成")
	return nil
}

func (s *DefaultScreenService) addCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Device-Id")
}

// corsMiddleware 预检请求在认证之前直接返回
func (s *DefaultScreenService) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.addCORSHeaders(c)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *DefaultScreenService) handleOptions(c *gin.Context) {
	s.addCORSHeaders(c)
	c.Status(http.StatusNoContent)
}

func (s *DefaultScreenService) respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

func (s *DefaultScreenService) handleScreen(c *gin.Context) {
	state, err := s.screen.Snapshot()
	if err != nil {
		s.respondError(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"screen":     state,
		"scanner":    s.scanner.Status(),
		"permission": s.permission.State(),
	})
}

// handleCapture 对应屏幕上的拍照按钮
func (s *DefaultScreenService) handleCapture(c *gin.Context) {
	cycle, err := s.capture()
	if err != nil {
		s.respondError(c, captureStatus(err), scanner.FailureMessage(err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success":  true,
		"cycle_id": cycle.ID,
	})
}

func (s *DefaultScreenService) capture() (*scanner.Cycle, error) {
	cycle, err := s.scanner.Capture()
	if err != nil {
		s.logger.Warn(fmt.Sprintf("拍照请求被拒绝: %v", err))
	}
	return cycle, err
}

func captureStatus(err error) int {
	switch {
	case errors.Is(err, scanner.ErrCycleInFlight):
		return http.StatusConflict
	case errors.Is(err, scanner.ErrCameraNotReady), errors.Is(err, scanner.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *DefaultScreenService) handleCancel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"cancelled": s.scanner.Cancel(),
	})
}

type permissionRequest struct {
	Granted *bool `json:"granted" binding:"required"`
}

func (s *DefaultScreenService) handlePermission(c *gin.Context) {
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, "请求体需要包含 granted 字段")
		return
	}
	if !s.screen.Answer(*req.Granted) {
		s.respondError(c, http.StatusConflict, "没有待处理的权限请求")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"permission": s.permission.State(),
	})
}

func (s *DefaultScreenService) handlePreview(c *gin.Context) {
	frame := s.screen.Preview()
	if len(frame) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/jpeg", frame)
}

// handleWebSocket 屏幕事件通道；浏览器无法设置请求头，认证信息通过查询参数传递
func (s *DefaultScreenService) handleWebSocket(c *gin.Context) {
	if s.config.Server.Auth.Enabled {
		_, err := s.authToken.VerifyDevice(c.Query("token"), c.Query("device-id"), s.config.Server.Auth.AllowedDevices)
		if err != nil {
			s.logger.Warn(fmt.Sprintf("屏幕连接认证失败: %v", err))
			s.respondError(c, http.StatusUnauthorized, err.Error())
			return
		}
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("WebSocket升级失败: %v", err))
		return
	}
	s.hub.Serve(conn, s.screen.Hello(), s.handleClientMessage)
}

func (s *DefaultScreenService) handleClientMessage(msg ClientMessage) {
	switch msg.Type {
	case "capture":
		s.capture()
	case "cancel":
		s.scanner.Cancel()
	case "permission":
		s.screen.Answer(msg.Granted)
	case "ping":
	default:
		s.logger.Debug(fmt.Sprintf("未知的屏幕消息类型: %s", msg.Type))
	}
}
