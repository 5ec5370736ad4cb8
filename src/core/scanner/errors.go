package scanner

import (
	"context"
	"errors"
	"fmt"

	"rupiah-scanner/src/core/providers/vlllm"
	"rupiah-scanner/src/task"
)

var (
	// ErrCameraNotReady 相机尚未绑定（权限未授予或仍在绑定中）
	ErrCameraNotReady = errors.New("camera is not ready")
	// ErrCycleInFlight 已有一次拍照识别在进行
	ErrCycleInFlight = errors.New("a scan is already in progress")
	// ErrClosed 控制器已关闭
	ErrClosed = errors.New("scanner is closed")
)

// Stage 拍照识别流程中的步骤
type Stage string

const (
	StageCapture   Stage = "capture"
	StageDecode    Stage = "decode"
	StageRecognize Stage = "recognize"
	StagePresent   Stage = "present"
)

// StageError 记录失败发生在哪一步
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Cancelled 用户取消或控制器关闭导致的结束，不提示用户
func Cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, task.ErrStopped)
}

// FailureMessage 把失败转换为展示给用户的简短提示
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrCameraNotReady):
		return "Camera is not ready yet"
	case errors.Is(err, ErrCycleInFlight):
		return "A scan is already in progress"
	case errors.Is(err, vlllm.ErrEmptyResponse):
		return "Empty response from recognition service"
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return "Scan timed out"
		}
		return err.Error()
	}

	cause := stageErr.Err
	switch stageErr.Stage {
	case StageCapture:
		return "Capture failed: " + cause.Error()
	case StageDecode:
		return "Failed to decode photo: " + cause.Error()
	case StageRecognize:
		if errors.Is(cause, vlllm.ErrParse) {
			return "Failed to parse response: " + cause.Error()
		}
		return "Failed to recognize notation: " + cause.Error()
	case StagePresent:
		return "Failed to display result: " + cause.Error()
	}
	return err.Error()
}
