package screen

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"rupiah-scanner/src/core/utils"

	"github.com/gorilla/websocket"
)

// 保留的最近提示条数
const maxToasts = 20

// Screen 唯一的屏幕：识别结果标签、提示、权限询问、语音播放和相机预览
type Screen struct {
	ui     *Dispatcher
	hub    *Hub
	logger *utils.Logger

	// 以下字段只在UI循环中读写
	label             string
	toasts            []Toast
	cameraState       string
	ttsState          string
	permissionPending bool
	permissions       []string
	answer            func(granted bool)

	previewMu sync.RWMutex
	preview   []byte
}

func New(ui *Dispatcher, hub *Hub, logger *utils.Logger) *Screen {
	return &Screen{
		ui:          ui,
		hub:         hub,
		logger:      logger,
		cameraState: "unbound",
		ttsState:    "idle",
	}
}

func event(eventType string) Event {
	return Event{Type: eventType, Time: time.Now().UnixMilli()}
}

// SetLabel 替换标签内容，等待UI循环完成
func (s *Screen) SetLabel(text string) error {
	return s.ui.Call(func() error {
		s.label = text
		e := event(EventLabel)
		e.Text = text
		s.hub.BroadcastEvent(e)
		return nil
	})
}

// Toast 显示一条短暂提示
func (s *Screen) Toast(message string) {
	err := s.ui.Post(func() {
		s.toasts = append(s.toasts, Toast{Message: message, Time: time.Now()})
		if len(s.toasts) > maxToasts {
			s.toasts = s.toasts[len(s.toasts)-maxToasts:]
		}
		e := event(EventToast)
		e.Text = message
		s.hub.BroadcastEvent(e)
	})
	if err != nil {
		s.logger.Warn(fmt.Sprintf("屏幕已关闭，丢弃提示: %s", message))
	}
}

// SetCameraState 更新相机状态
func (s *Screen) SetCameraState(state string) {
	s.ui.Post(func() {
		s.cameraState = state
		e := event(EventCamera)
		e.State = state
		s.hub.BroadcastEvent(e)
	})
}

// Prompt 在屏幕上询问授权，Answer 给出结果
func (s *Screen) Prompt(ctx context.Context, permissions []string, answer func(granted bool)) {
	s.ui.Post(func() {
		s.permissionPending = true
		s.permissions = permissions
		s.answer = answer
		e := event(EventPermission)
		e.State = "requesting"
		e.Permissions = permissions
		s.hub.BroadcastEvent(e)
	})
}

// Answer 回答待处理的授权询问，没有待处理询问时返回false
func (s *Screen) Answer(granted bool) bool {
	var answer func(bool)
	s.ui.Call(func() error {
		if !s.permissionPending {
			return nil
		}
		answer = s.answer
		s.permissionPending = false
		s.answer = nil
		e := event(EventPermission)
		if granted {
			e.State = "granted"
		} else {
			e.State = "denied"
		}
		e.Permissions = s.permissions
		s.hub.BroadcastEvent(e)
		return nil
	})
	if answer == nil {
		return false
	}
	answer(granted)
	return true
}

// Play 把mp3发送给屏幕客户端播放，按音频时长保持占用直到播放结束或 ctx 取消
func (s *Screen) Play(ctx context.Context, text string, audioPath string) error {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("读取音频文件失败: %w", err)
	}
	duration, err := utils.MP3DurationFromBytes(data)
	if err != nil {
		return fmt.Errorf("解析音频时长失败: %w", err)
	}

	s.setTTSState("start", text)
	defer s.setTTSState("stop", "")

	s.hub.Broadcast(websocket.BinaryMessage, data)

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Screen) setTTSState(state, text string) {
	s.ui.Post(func() {
		if state == "start" {
			s.ttsState = "speaking"
		} else {
			s.ttsState = "idle"
		}
		e := event(EventTTS)
		e.State = state
		e.Text = text
		s.hub.BroadcastEvent(e)
	})
}

// PreviewFrame 保存最新的预览帧
func (s *Screen) PreviewFrame(frame []byte) {
	s.previewMu.Lock()
	s.preview = frame
	s.previewMu.Unlock()
}

// Preview 返回最新的预览帧，没有时为nil
func (s *Screen) Preview() []byte {
	s.previewMu.RLock()
	defer s.previewMu.RUnlock()
	return s.preview
}

// Snapshot 返回屏幕当前内容
func (s *Screen) Snapshot() (State, error) {
	var state State
	err := s.ui.Call(func() error {
		state = State{
			Label:             s.label,
			Toasts:            append([]Toast(nil), s.toasts...),
			Camera:            s.cameraState,
			TTS:               s.ttsState,
			PermissionPending: s.permissionPending,
			Permissions:       s.permissions,
			Clients:           s.hub.Count(),
		}
		return nil
	})
	return state, err
}

// Hello 新连接收到的第一条事件，携带当前标签、相机状态和待回答的授权询问
func (s *Screen) Hello() Event {
	e := event(EventHello)
	s.ui.Call(func() error {
		e.Text = s.label
		e.State = s.cameraState
		if s.permissionPending {
			e.PermissionPending = true
			e.Permissions = s.permissions
		}
		return nil
	})
	return e
}
