package vision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rupiah-scanner/src/configs"
	"rupiah-scanner/src/core/auth"
	"rupiah-scanner/src/core/image"
	"rupiah-scanner/src/core/providers/vlllm"
	"rupiah-scanner/src/core/utils"

	"github.com/gin-gonic/gin"
)

const (
	// 最大文件大小为5MB
	MAX_FILE_SIZE = 5 * 1024 * 1024
)

// DefaultVisionService 上传照片识别：与拍照流程共用同一个识别服务和编码方式
type DefaultVisionService struct {
	logger     *utils.Logger
	config     *configs.Config
	recognizer Recognizer
	authToken  *auth.AuthToken
	uploadDir  string
	timeout    time.Duration
}

// NewDefaultVisionService 构造函数
func NewDefaultVisionService(config *configs.Config, logger *utils.Logger, recognizer Recognizer, authToken *auth.AuthToken) (*DefaultVisionService, error) {
	if recognizer == nil {
		return nil, fmt.Errorf("没有可用的识别服务")
	}
	if config.Server.Auth.Enabled && authToken == nil {
		return nil, fmt.Errorf("启用认证时需要配置 server.token")
	}
	return &DefaultVisionService{
		logger:     logger,
		config:     config,
		recognizer: recognizer,
		authToken:  authToken,
		uploadDir:  filepath.Join(config.Scanner.CaptureDir, "uploads"),
		timeout:    config.CycleTimeout(),
	}, nil
}

// Start 实现 VisionService 接口，注册所有 Vision 相关路由
func (s *DefaultVisionService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.GET("/vision", s.handleGet)
	apiGroup.OPTIONS("/vision", s.handleOptions)

	handlers := []gin.HandlerFunc{}
	if s.config.Server.Auth.Enabled {
		handlers = append(handlers, s.authToken.Middleware(s.config.Server.Auth.AllowedDevices, func(c *gin.Context, err error) {
			s.addCORSHeaders(c)
			s.logger.Warn(fmt.Sprintf("Vision认证失败: %v", err))
		}))
	}
	handlers = append(handlers, s.handlePost)
	apiGroup.POST("/vision", handlers...)

	s.logger.Info("Vision HTTP服务路由注册完成")
	return nil
}

func (s *DefaultVisionService) handleOptions(c *gin.Context) {
	s.addCORSHeaders(c)
	c.Status(http.StatusOK)
}

func (s *DefaultVisionService) handleGet(c *gin.Context) {
	s.addCORSHeaders(c)
	c.String(http.StatusOK, "Vision 接口运行正常，上传字段 file 为图片，question 为可选提示词")
}

// handlePost 识别上传的图片
func (s *DefaultVisionService) handlePost(c *gin.Context) {
	s.addCORSHeaders(c)

	req, err := s.parseMultipartRequest(c)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err.Error())
		s.logger.Warn(fmt.Sprintf("Vision请求解析失败: %v", err))
		return
	}

	s.logger.Debug("收到Vision识别请求", map[string]interface{}{
		"device_id":  req.DeviceID,
		"format":     req.Format,
		"image_size": len(req.Image),
		"image_path": req.ImagePath,
	})

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	result, err := s.processVisionRequest(ctx, req)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("Vision请求处理失败: %v", err))
		s.respondError(c, statusFor(err), err.Error())
		return
	}

	s.logger.Info(fmt.Sprintf("Vision识别结果: %s", result))
	c.JSON(http.StatusOK, VisionResponse{
		Success: true,
		Result:  result,
	})
}

func statusFor(err error) int {
	var statusErr *vlllm.StatusError
	switch {
	case errors.Is(err, image.ErrUnknownFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &statusErr), errors.Is(err, vlllm.ErrNetwork),
		errors.Is(err, vlllm.ErrParse), errors.Is(err, vlllm.ErrEmptyResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *DefaultVisionService) parseMultipartRequest(c *gin.Context) (*VisionRequest, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MAX_FILE_SIZE+1024*1024)
	if err := c.Request.ParseMultipartForm(MAX_FILE_SIZE); err != nil {
		return nil, fmt.Errorf("解析multipart表单失败: %v", err)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("缺少图片文件: %v", err)
	}
	defer file.Close()

	if header.Size > MAX_FILE_SIZE {
		return nil, fmt.Errorf("图片大小超过限制，最大允许%dMB", MAX_FILE_SIZE/1024/1024)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取图片数据失败: %v", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("图片数据为空")
	}

	format := image.DetectFormat(data)
	if format == "" {
		return nil, fmt.Errorf("不支持的文件格式，请上传有效的图片文件（支持JPEG、PNG、GIF、BMP、WEBP格式）")
	}

	deviceID := c.GetString("device_id")
	if deviceID == "" {
		deviceID = c.GetHeader("Device-Id")
	}

	path, err := s.saveImageToFile(data, deviceID, format)
	if err != nil {
		return nil, err
	}

	question := strings.TrimSpace(c.Request.FormValue("question"))
	if question == "" {
		question = s.config.Scanner.Prompt
	}

	return &VisionRequest{
		Question:  question,
		Image:     data,
		Format:    format,
		DeviceID:  deviceID,
		ImagePath: path,
	}, nil
}

func (s *DefaultVisionService) saveImageToFile(data []byte, deviceID, format string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return "", fmt.Errorf("创建上传目录失败: %v", err)
	}

	prefix := "upload"
	if deviceID != "" {
		prefix = strings.NewReplacer(":", "_", "/", "_").Replace(deviceID)
	}
	path := filepath.Join(s.uploadDir, fmt.Sprintf("%s_%d.%s", prefix, time.Now().UnixMilli(), format))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("保存图片文件失败: %v", err)
	}
	s.logger.Info(fmt.Sprintf("图片已保存到: %s", path))
	return path, nil
}

// processVisionRequest 解码并重新压缩为JPEG后识别，与拍照流程的请求体一致
func (s *DefaultVisionService) processVisionRequest(ctx context.Context, req *VisionRequest) (string, error) {
	img, _, err := image.DecodeBytes(req.Image)
	if err != nil {
		return "", err
	}
	encoded, err := image.Encode(img)
	if err != nil {
		return "", err
	}
	return s.recognizer.Recognize(ctx, image.ImageData{Data: encoded, Format: "jpeg"}, req.Question)
}

func (s *DefaultVisionService) addCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Headers", "content-type, device-id, authorization")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

func (s *DefaultVisionService) respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, VisionResponse{
		Success: false,
		Message: message,
	})
}
