package health

import (
	"context"
	"errors"
	"fmt"
	stdimage "image"
	"image/color"
	"os"
	"sort"
	"sync"
	"time"

	"rupiah-scanner/src/configs"
	"rupiah-scanner/src/core/camera"
	"rupiah-scanner/src/core/image"
	"rupiah-scanner/src/core/providers/tts"
	"rupiah-scanner/src/core/providers/vlllm"
	"rupiah-scanner/src/core/utils"
)

// CheckMode 检查模式
type CheckMode int

const (
	// BasicCheck 基础连通性检查（只创建并初始化组件）
	BasicCheck CheckMode = iota
	// FunctionalCheck 功能性检查（拍一帧、识别一张测试图、合成一句话）
	FunctionalCheck
)

func (m CheckMode) String() string {
	if m == FunctionalCheck {
		return "功能性"
	}
	return "基础连通性"
}

// CheckResult 检查结果
type CheckResult struct {
	Component string                 `json:"component"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details"`
	Duration  time.Duration          `json:"duration"`
	Timestamp time.Time              `json:"timestamp"`
	Mode      CheckMode              `json:"mode"`
}

// Config 连通性检查配置
type Config struct {
	Enabled       bool
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	TTSTestText   string
}

// ConfigFromYAML 从YAML配置创建连通性检查配置
func ConfigFromYAML(yamlConfig *configs.ConnectivityCheckConfig) *Config {
	if yamlConfig == nil {
		return DefaultConfig()
	}
	config := &Config{
		Enabled:       yamlConfig.Enabled,
		Timeout:       configs.ParseDuration(yamlConfig.Timeout, 30*time.Second),
		RetryAttempts: yamlConfig.RetryAttempts,
		RetryDelay:    configs.ParseDuration(yamlConfig.RetryDelay, 5*time.Second),
		TTSTestText:   yamlConfig.TTSTestText,
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 3
	}
	if config.TTSTestText == "" {
		config.TTSTestText = "Tes suara"
	}
	return config
}

// DefaultConfig 默认连通性检查配置
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    5 * time.Second,
		TTSTestText:   "Tes suara",
	}
}

// CheckFunc 检查一个组件，返回附加信息
type CheckFunc func(ctx context.Context, mode CheckMode) (map[string]interface{}, error)

type check struct {
	name string
	fn   CheckFunc
}

// Checker 检查所选的相机、识别服务和TTS是否可用
type Checker struct {
	connConfig *Config
	logger     *utils.Logger
	checks     []check

	mu      sync.Mutex
	results map[string]*CheckResult
}

// NewChecker 根据 selected_module 注册相机、VLLLM和TTS检查
func NewChecker(config *configs.Config, connConfig *Config, logger *utils.Logger) *Checker {
	hc := NewEmptyChecker(connConfig, logger)

	if name := config.SelectedModule["Camera"]; name != "" {
		cameraConfig, ok := config.Camera[name]
		hc.Add("Camera", func(ctx context.Context, mode CheckMode) (map[string]interface{}, error) {
			if !ok {
				return nil, fmt.Errorf("找不到相机配置: %s", name)
			}
			return hc.checkCamera(ctx, &cameraConfig, mode)
		})
	}
	if name := config.SelectedModule["VLLLM"]; name != "" {
		vlllmConfig, ok := config.VLLLM[name]
		hc.Add("VLLLM", func(ctx context.Context, mode CheckMode) (map[string]interface{}, error) {
			if !ok {
				return nil, fmt.Errorf("找不到VLLLM配置: %s", name)
			}
			return hc.checkVLLLM(ctx, &vlllmConfig, config.Scanner.Prompt, mode)
		})
	}
	if name := config.SelectedModule["TTS"]; name != "" {
		ttsConfig, ok := config.TTS[name]
		hc.Add("TTS", func(ctx context.Context, mode CheckMode) (map[string]interface{}, error) {
			if !ok {
				return nil, fmt.Errorf("找不到TTS配置: %s", name)
			}
			return hc.checkTTS(&ttsConfig, config.Scanner.Locale, mode)
		})
	}
	return hc
}

// NewEmptyChecker 创建没有任何检查项的检查器
func NewEmptyChecker(connConfig *Config, logger *utils.Logger) *Checker {
	if connConfig == nil {
		connConfig = DefaultConfig()
	}
	return &Checker{
		connConfig: connConfig,
		logger:     logger,
		results:    make(map[string]*CheckResult),
	}
}

// Add 注册一个检查项
func (hc *Checker) Add(name string, fn CheckFunc) {
	hc.checks = append(hc.checks, check{name: name, fn: fn})
}

// CheckAll 依次执行所有检查，任一失败时返回汇总错误
func (hc *Checker) CheckAll(ctx context.Context, mode CheckMode) error {
	if !hc.connConfig.Enabled {
		hc.logger.Info("连通性检查已禁用，跳过检查")
		return nil
	}
	hc.logger.Info(fmt.Sprintf("开始执行%s检查...", mode))

	var allErrors []error
	for _, c := range hc.checks {
		if err := hc.run(ctx, c, mode); err != nil {
			allErrors = append(allErrors, fmt.Errorf("%s%s检查失败: %w", c.name, mode, err))
		}
	}

	if len(allErrors) > 0 {
		for _, err := range allErrors {
			hc.logger.Error(err.Error())
		}
		return fmt.Errorf("%s检查失败: %d个组件不可用: %w", mode, len(allErrors), errors.Join(allErrors...))
	}
	hc.logger.Info(fmt.Sprintf("所有组件%s检查通过", mode))
	return nil
}

func (hc *Checker) run(ctx context.Context, c check, mode CheckMode) error {
	start := time.Now()
	result := &CheckResult{
		Component: c.name,
		Timestamp: start,
		Mode:      mode,
		Details:   make(map[string]interface{}),
	}

	err := hc.withRetry(ctx, func() error {
		checkCtx, cancel := context.WithTimeout(ctx, hc.connConfig.Timeout)
		defer cancel()
		details, err := c.fn(checkCtx, mode)
		for k, v := range details {
			result.Details[k] = v
		}
		return err
	})

	result.Duration = time.Since(start)
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
	}

	hc.mu.Lock()
	hc.results[c.name] = result
	hc.mu.Unlock()
	return err
}

// withRetry 失败后等待 RetryDelay 重试，ctx 取消时立即返回
func (hc *Checker) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < hc.connConfig.RetryAttempts; attempt++ {
		if attempt > 0 {
			hc.logger.Info(fmt.Sprintf("连接重试 %d/%d", attempt+1, hc.connConfig.RetryAttempts))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(hc.connConfig.RetryDelay):
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
		hc.logger.Warn(fmt.Sprintf("检查尝试 %d/%d 失败: %v", attempt+1, hc.connConfig.RetryAttempts, lastErr))
	}
	return fmt.Errorf("重试 %d 次后仍然失败: %w", hc.connConfig.RetryAttempts, lastErr)
}

func (hc *Checker) checkCamera(ctx context.Context, cameraConfig *configs.CameraConfig, mode CheckMode) (map[string]interface{}, error) {
	driver, _, err := camera.Create(cameraConfig.Type, cameraConfig)
	if err != nil {
		return nil, err
	}
	if err := driver.Open(ctx); err != nil {
		return nil, fmt.Errorf("打开相机失败: %w", err)
	}
	defer driver.Close()

	details := map[string]interface{}{"driver": cameraConfig.Type}
	if mode == FunctionalCheck {
		frame, err := driver.Grab(ctx)
		if err != nil {
			return details, fmt.Errorf("抓取测试帧失败: %w", err)
		}
		format := image.DetectFormat(frame)
		if format == "" {
			return details, image.ErrUnknownFormat
		}
		details["frame_format"] = format
		details["frame_size"] = len(frame)
	}
	return details, nil
}

func (hc *Checker) checkVLLLM(ctx context.Context, vlllmConfig *configs.VLLMConfig, prompt string, mode CheckMode) (map[string]interface{}, error) {
	provider, err := vlllm.Create(vlllmConfig.Type, vlllmConfig, hc.logger)
	if err != nil {
		return nil, err
	}
	defer provider.Cleanup()

	details := map[string]interface{}{"type": vlllmConfig.Type, "model": vlllmConfig.ModelName}
	if mode == FunctionalCheck {
		encoded, err := image.Encode(testImage())
		if err != nil {
			return details, err
		}
		text, err := provider.Recognize(ctx, image.ImageData{Data: encoded, Format: "jpeg"}, prompt)
		if err != nil {
			return details, fmt.Errorf("识别测试图片失败: %w", err)
		}
		details["response_length"] = len(text)
	}
	return details, nil
}

func (hc *Checker) checkTTS(ttsConfig *configs.TTSConfig, locale string, mode CheckMode) (map[string]interface{}, error) {
	provider, err := tts.Create(ttsConfig.Type, &tts.Config{
		Type:      ttsConfig.Type,
		OutputDir: ttsConfig.OutputDir,
		Voice:     ttsConfig.Voice,
		Voices:    ttsConfig.Voices,
		Format:    ttsConfig.Format,
	}, true)
	if err != nil {
		return nil, err
	}

	voice, ok := provider.VoiceFor(locale)
	details := map[string]interface{}{"type": ttsConfig.Type, "locale": locale}
	if !ok {
		return details, fmt.Errorf("没有 %s 的音色", locale)
	}
	details["voice"] = voice

	if mode == FunctionalCheck {
		if err := provider.SetVoice(voice); err != nil {
			return details, err
		}
		audioPath, err := provider.ToTTS(hc.connConfig.TTSTestText)
		if err != nil {
			return details, fmt.Errorf("TTS合成测试失败: %w", err)
		}
		defer os.Remove(audioPath)
		duration, err := utils.MP3Duration(audioPath)
		if err != nil {
			return details, fmt.Errorf("TTS响应验证失败: %w", err)
		}
		details["audio_duration"] = duration.String()
	}
	return details, nil
}

// testImage 生成一张渐变测试图
func testImage() stdimage.Image {
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 64, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 8), B: 160, A: 255})
		}
	}
	return img
}

// Results 按组件名排序返回检查结果
func (hc *Checker) Results() []*CheckResult {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	results := make([]*CheckResult, 0, len(hc.results))
	for _, r := range hc.results {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Component < results[j].Component })
	return results
}

// PrintReport 打印检查报告
func (hc *Checker) PrintReport() {
	hc.logger.Info("=== 连通性检查报告 ===")
	for _, result := range hc.Results() {
		status := "✓ 通过"
		if !result.Success {
			status = "✗ 失败"
		}
		hc.logger.Info(fmt.Sprintf("%s (%s): %s (耗时: %v)", result.Component, result.Mode, status, result.Duration), result.Details)
		if result.Error != "" {
			hc.logger.Error(fmt.Sprintf("  错误: %s", result.Error))
		}
	}
	hc.logger.Info("=== 检查报告结束 ===")
}
