package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rupiah-scanner/src/core/utils"
)

// State 相机会话状态
type State string

const (
	StateUnbound State = "unbound"
	StateBinding State = "binding"
	StateBound   State = "bound"
	StateFailed  State = "failed"
)

// PreviewSink 接收实时预览帧
type PreviewSink interface {
	PreviewFrame(frame []byte)
}

// Session 把预览输出和拍照单元绑定到屏幕的可见生命周期
type Session struct {
	driver Driver
	config *Config
	logger *utils.Logger

	device sync.Mutex // 串行化对设备的访问

	mu            sync.Mutex
	state         State
	generation    int
	previewCancel context.CancelFunc
	previewDone   chan struct{}
}

func NewSession(driver Driver, config *Config, logger *utils.Logger) *Session {
	if config == nil {
		config = &Config{}
	}
	return &Session{
		driver: driver,
		config: config,
		logger: logger,
		state:  StateUnbound,
	}
}

// Start 异步获取相机并绑定预览与拍照；重复调用会先解除之前的绑定。onBound 在绑定结束后回调
func (s *Session) Start(ctx context.Context, sink PreviewSink, onBound func(err error)) {
	s.unbindAll()

	s.mu.Lock()
	s.generation++
	generation := s.generation
	s.state = StateBinding
	s.mu.Unlock()

	go func() {
		err := s.bind(ctx, generation, sink)
		if onBound != nil {
			onBound(err)
		}
	}()
}

func (s *Session) bind(ctx context.Context, generation int, sink PreviewSink) error {
	s.device.Lock()
	err := s.driver.Open(ctx)
	s.device.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		// 期间已被新的 Start 或 Stop 取代
		return fmt.Errorf("%w: superseded", ErrBindFailed)
	}
	if err != nil {
		s.state = StateFailed
		s.logger.Error(fmt.Sprintf("相机绑定失败: %v", err))
		return fmt.Errorf("%w: %v", ErrBindFailed, err)
	}

	if s.config.PreviewInterval > 0 && sink != nil {
		previewCtx, cancel := context.WithCancel(ctx)
		s.previewCancel = cancel
		s.previewDone = make(chan struct{})
		go s.runPreview(previewCtx, sink, s.previewDone)
	}

	s.state = StateBound
	s.logger.Info("相机已绑定")
	return nil
}

// runPreview 周期性抓取预览帧；拍照占用设备时跳过本次
func (s *Session) runPreview(ctx context.Context, sink PreviewSink, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.PreviewInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !s.device.TryLock() {
			continue
		}
		frame, err := s.driver.Grab(ctx)
		s.device.Unlock()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			if failures == 1 || failures%50 == 0 {
				s.logger.Warn(fmt.Sprintf("预览帧获取失败(%d次): %v", failures, err))
			}
			continue
		}
		failures = 0
		sink.PreviewFrame(frame)
	}
}

// Capture 拍摄一张照片写入 destination，成功时返回文件路径
func (s *Session) Capture(ctx context.Context, destination string) (string, error) {
	if !s.Ready() {
		return "", ErrNotBound
	}

	s.device.Lock()
	frame, err := s.driver.Grab(ctx)
	s.device.Unlock()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if len(frame) == 0 {
		return "", fmt.Errorf("%w: empty frame", ErrCaptureFailed)
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return "", fmt.Errorf("%w: 创建目录失败: %v", ErrCaptureFailed, err)
	}
	if err := os.WriteFile(destination, frame, 0644); err != nil {
		return "", fmt.Errorf("%w: 写入图片失败: %v", ErrCaptureFailed, err)
	}

	s.logger.Info(fmt.Sprintf("照片已保存到: %s", destination))
	return destination, nil
}

// Ready 是否已完成绑定
func (s *Session) Ready() bool {
	return s.State() == StateBound
}

// State 返回当前状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// unbindAll 停止预览并回到未绑定状态
func (s *Session) unbindAll() {
	s.mu.Lock()
	cancel, done := s.previewCancel, s.previewDone
	s.previewCancel, s.previewDone = nil, nil
	s.generation++
	s.state = StateUnbound
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Stop 解除绑定并释放相机
func (s *Session) Stop() error {
	s.unbindAll()

	s.device.Lock()
	defer s.device.Unlock()
	if err := s.driver.Close(); err != nil {
		return fmt.Errorf("关闭相机失败: %w", err)
	}
	s.logger.Info("相机已释放")
	return nil
}

var (
	lastCaptureMu sync.Mutex
	lastCapture   int64
)

// NewCapturePath 以毫秒时间戳命名拍照文件，同一进程内保证唯一
func NewCapturePath(dir string) string {
	lastCaptureMu.Lock()
	defer lastCaptureMu.Unlock()

	millis := time.Now().UnixMilli()
	if millis <= lastCapture {
		millis = lastCapture + 1
	}
	lastCapture = millis
	return filepath.Join(dir, fmt.Sprintf("%d.jpg", millis))
}
