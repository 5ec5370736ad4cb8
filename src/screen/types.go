package screen

import "time"

// 推送给屏幕客户端的事件类型
const (
	EventLabel      = "label"
	EventToast      = "toast"
	EventPermission = "permission"
	EventCamera     = "camera"
	EventTTS        = "tts"
	EventHello      = "hello"
)

// Event 文本帧中的屏幕事件
type Event struct {
	Type        string   `json:"type"`
	Text        string   `json:"text,omitempty"`
	State       string   `json:"state,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Time        int64    `json:"time"`

	// PermissionPending 仅 hello 事件使用：连接时是否有待回答的授权询问
	PermissionPending bool `json:"permission_pending,omitempty"`
}

// ClientMessage 屏幕客户端发来的操作
type ClientMessage struct {
	Type    string `json:"type"` // capture / cancel / permission
	Granted bool   `json:"granted,omitempty"`
}

// Toast 一条短暂提示
type Toast struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// State 屏幕当前内容
type State struct {
	Label             string   `json:"label"`
	Toasts            []Toast  `json:"toasts"`
	Camera            string   `json:"camera"`
	TTS               string   `json:"tts"`
	PermissionPending bool     `json:"permission_pending"`
	Permissions       []string `json:"permissions,omitempty"`
	Clients           int      `json:"clients"`
}
