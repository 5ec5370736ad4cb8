package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"rupiah-scanner/src/core/camera"
	"rupiah-scanner/src/core/image"
	"rupiah-scanner/src/core/utils"
	"rupiah-scanner/src/task"
)

// 拍照识别流程的任务类型
const TaskScanCycle task.TaskType = "scan_cycle"

// DefaultCycleTimeout 单次流程的最长耗时
const DefaultCycleTimeout = 2 * time.Minute

// Presenter 屏幕：标签替换和短暂提示
type Presenter interface {
	SetLabel(text string) error
	Toast(message string)
}

// Speaker 朗读引擎
type Speaker interface {
	Init(onInit func(err error))
	Speak(text string) error
	Shutdown()
}

// Recognizer 视觉语言模型识别
type Recognizer interface {
	Recognize(ctx context.Context, img image.ImageData, prompt string) (string, error)
}

// CameraSession 相机会话
type CameraSession interface {
	Start(ctx context.Context, sink camera.PreviewSink, onBound func(err error))
	Ready() bool
	Capture(ctx context.Context, destination string) (string, error)
	Stop() error
}

// PermissionGate 相机权限检查
type PermissionGate interface {
	HasRequiredPermissions(ctx context.Context) bool
	RequestPermissions(ctx context.Context, onResult func(granted bool))
}

// Config 控制器配置
type Config struct {
	Prompt       string
	CaptureDir   string
	CycleTimeout time.Duration
}

// Deps 控制器依赖的外部协作者
type Deps struct {
	Gate       PermissionGate
	Camera     CameraSession
	Recognizer Recognizer
	Presenter  Presenter
	Speaker    Speaker
	Preview    camera.PreviewSink
}

// Status 控制器当前状态
type Status struct {
	Busy             bool   `json:"busy"`
	CycleID          string `json:"cycle_id,omitempty"`
	CameraReady      bool   `json:"camera_ready"`
	PermissionDenied bool   `json:"permission_denied"`
	LastError        string `json:"last_error,omitempty"`
}

// Controller 把点击拍照串联为 拍照→解码→编码→识别→显示→朗读，同一时间只允许一个流程
type Controller struct {
	config Config
	deps   Deps
	logger *utils.Logger

	tasks *task.TaskManager
	busy  atomic.Bool

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu               sync.Mutex
	current          *Cycle
	opened           bool
	closed           bool
	permissionDenied bool
	lastError        string
}

// New 创建控制器；需调用 Open 获取权限、启动相机和朗读引擎
func New(config Config, deps Deps, logger *utils.Logger) *Controller {
	if config.CycleTimeout <= 0 {
		config.CycleTimeout = DefaultCycleTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		config:     config,
		deps:       deps,
		logger:     logger,
		tasks:      task.NewTaskManager(task.ResourceConfig{MaxWorkers: 1, QueueSize: 1}),
		rootCtx:    ctx,
		rootCancel: cancel,
	}
	c.tasks.RegisterExecutor(TaskScanCycle, c.runCycle)
	return c
}

// Open 启动后台执行器和朗读引擎，检查相机权限后异步启动相机
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.opened {
		c.mu.Unlock()
		return nil
	}
	c.opened = true
	c.mu.Unlock()

	c.tasks.Start()
	c.logger.Info("拍照执行器已启动")

	c.deps.Speaker.Init(func(err error) {
		if err != nil {
			c.deps.Presenter.Toast("Text to speech initialization failed")
			c.logger.Error(fmt.Sprintf("Text to speech initialization failed: %v", err))
		}
	})

	if c.deps.Gate.HasRequiredPermissions(ctx) {
		c.startCamera()
		return nil
	}

	c.logger.Info("请求相机权限")
	c.deps.Gate.RequestPermissions(ctx, func(granted bool) {
		if granted {
			c.startCamera()
			return
		}
		c.mu.Lock()
		c.permissionDenied = true
		c.mu.Unlock()
		c.deps.Presenter.Toast("Camera permission denied")
		c.logger.Warn("相机权限被拒绝，相机不会启动")
	})
	return nil
}

// CameraStateListener 可选：Presenter 实现后会收到相机状态变化
type CameraStateListener interface {
	SetCameraState(state string)
}

func (c *Controller) cameraState(state camera.State) {
	if listener, ok := c.deps.Presenter.(CameraStateListener); ok {
		listener.SetCameraState(string(state))
	}
}

func (c *Controller) startCamera() {
	c.cameraState(camera.StateBinding)
	c.deps.Camera.Start(c.rootCtx, c.deps.Preview, func(err error) {
		if err == nil {
			c.cameraState(camera.StateBound)
			c.logger.Info("相机已绑定到屏幕生命周期")
			return
		}
		if c.rootCtx.Err() != nil {
			return
		}
		c.cameraState(camera.StateFailed)
		c.deps.Presenter.Toast("Use case binding failed: " + err.Error())
		c.logger.Error(fmt.Sprintf("Use case binding failed: %v", err))
	})
}

// Capture 处理一次点击：相机未就绪或已有流程在进行时提示并返回错误，否则提交新流程
func (c *Controller) Capture() (*Cycle, error) {
	c.mu.Lock()
	closed, denied := c.closed, c.permissionDenied
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	if !c.deps.Camera.Ready() {
		if denied {
			c.deps.Presenter.Toast("Camera permission denied")
		} else {
			c.deps.Presenter.Toast(FailureMessage(ErrCameraNotReady))
		}
		c.logger.Warn("相机未就绪，忽略拍照请求")
		return nil, ErrCameraNotReady
	}

	if !c.busy.CompareAndSwap(false, true) {
		c.deps.Presenter.Toast(FailureMessage(ErrCycleInFlight))
		c.logger.Warn("已有拍照识别在进行，忽略本次点击")
		return nil, ErrCycleInFlight
	}

	cycle := newCycle(c.rootCtx, c.config.CycleTimeout)
	t, _ := task.NewTask(cycle.ctx, TaskScanCycle, cycle)
	t.Callback = task.NewCallBack(
		func(result interface{}) {
			text, _ := result.(string)
			c.finish(cycle, text, nil)
		},
		func(err error) {
			c.finish(cycle, "", err)
		},
	)

	c.mu.Lock()
	c.current = cycle
	c.mu.Unlock()

	if err := c.tasks.SubmitTask(t); err != nil {
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
		c.busy.Store(false)
		cycle.complete("", err)
		c.logger.Error(fmt.Sprintf("提交拍照任务失败: %v", err))
		return nil, err
	}

	c.logger.Info("拍照请求已提交", map[string]interface{}{"cycle_id": cycle.ID})
	return cycle, nil
}

// runCycle 在唯一的后台工作者上执行完整流程
func (c *Controller) runCycle(t *task.Task) error {
	cycle := t.Params.(*Cycle)
	ctx := t.Context

	request := &CaptureRequest{
		Path:  camera.NewCapturePath(c.config.CaptureDir),
		State: RequestPending,
	}
	cycle.setRequest(request)

	path, err := c.deps.Camera.Capture(ctx, request.Path)
	if err != nil {
		cycle.setRequestState(RequestFailed)
		return &StageError{Stage: StageCapture, Err: err}
	}
	cycle.setRequestState(RequestSucceeded)
	c.logger.Debug("照片已拍摄", map[string]interface{}{"path": path})

	img, _, err := image.Decode(path)
	if err != nil {
		return &StageError{Stage: StageDecode, Err: err}
	}
	encoded, err := image.Encode(img)
	if err != nil {
		return &StageError{Stage: StageDecode, Err: err}
	}

	text, err := c.deps.Recognizer.Recognize(ctx, image.ImageData{Data: encoded, Format: "jpeg"}, c.config.Prompt)
	if err != nil {
		return &StageError{Stage: StageRecognize, Err: err}
	}
	if !cycle.commit() {
		if err := ctx.Err(); err != nil {
			return err
		}
		return context.Canceled
	}

	// 已提交：显示和朗读不再受取消或超时影响
	if err := c.deps.Presenter.SetLabel(text); err != nil {
		return &StageError{Stage: StagePresent, Err: err}
	}
	if err := c.deps.Speaker.Speak(text); err != nil {
		// 朗读失败只记录，不影响本次结果
		c.logger.Warn(fmt.Sprintf("朗读识别结果失败: %v", err))
	}

	c.logger.Info("识别结果已显示并朗读", map[string]interface{}{"text": text})
	t.Result = text
	return nil
}

func (c *Controller) finish(cycle *Cycle, text string, err error) {
	switch {
	case err == nil:
	case Cancelled(err):
		c.logger.Info("拍照识别已取消", map[string]interface{}{"cycle_id": cycle.ID})
	default:
		message := FailureMessage(err)
		c.deps.Presenter.Toast(message)
		c.logger.Error(message, map[string]interface{}{"cycle_id": cycle.ID})
	}

	c.mu.Lock()
	if c.current == cycle {
		c.current = nil
	}
	if err != nil && !Cancelled(err) {
		c.lastError = FailureMessage(err)
	} else if err == nil {
		c.lastError = ""
	}
	c.mu.Unlock()

	c.busy.Store(false)
	cycle.complete(text, err)
}

// Cancel 取消正在进行的流程；没有流程或结果已开始显示时返回false
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	cycle := c.current
	c.mu.Unlock()
	if cycle == nil {
		return false
	}
	return cycle.Cancel()
}

// Scan 执行一次完整流程并等待结果
func (c *Controller) Scan(ctx context.Context) (string, error) {
	cycle, err := c.Capture()
	if err != nil {
		return "", err
	}
	text, err := cycle.Wait(ctx)
	if ctx.Err() != nil {
		cycle.Cancel()
	}
	return text, err
}

// Status 返回当前状态
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := Status{
		Busy:             c.busy.Load(),
		CameraReady:      c.deps.Camera.Ready(),
		PermissionDenied: c.permissionDenied,
		LastError:        c.lastError,
	}
	if c.current != nil {
		status.CycleID = c.current.ID
	}
	return status
}

// Close 取消进行中的流程，停止执行器、相机和朗读引擎
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.rootCancel()
	c.tasks.Stop()

	var errs []error
	if err := c.deps.Camera.Stop(); err != nil {
		errs = append(errs, err)
	}
	c.cameraState(camera.StateUnbound)
	c.deps.Speaker.Shutdown()
	c.logger.Info("拍照控制器已关闭")
	return errors.Join(errs...)
}
