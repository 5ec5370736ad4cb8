package screen

import (
	"encoding/json"
	"fmt"
	"sync"

	"rupiah-scanner/src/core/utils"

	"github.com/gorilla/websocket"
)

// MessageHandler 处理客户端发来的文本消息
type MessageHandler func(msg ClientMessage)

// Hub 管理所有已连接的屏幕客户端并广播事件
type Hub struct {
	logger *utils.Logger

	mu      sync.RWMutex
	clients map[Conn]struct{}
}

func NewHub(logger *utils.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[Conn]struct{}),
	}
}

// Serve 注册连接并阻塞读取客户端消息，连接断开后注销
func (h *Hub) Serve(conn Conn, hello Event, handler MessageHandler) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info(fmt.Sprintf("屏幕客户端已连接，当前 %d 个", count))

	defer func() {
		h.remove(conn)
		conn.Close()
	}()

	if data, err := json.Marshal(hello); err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn(fmt.Sprintf("无法解析屏幕消息: %v", err))
			continue
		}
		if handler != nil {
			handler(msg)
		}
	}
}

func (h *Hub) remove(conn Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info(fmt.Sprintf("屏幕客户端已断开，当前 %d 个", count))
}

// BroadcastEvent 向所有客户端发送一个文本事件
func (h *Hub) BroadcastEvent(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error(fmt.Sprintf("事件序列化失败: %v", err))
		return
	}
	h.Broadcast(websocket.TextMessage, data)
}

// Broadcast 向所有客户端发送原始帧，写失败的连接会被关闭
func (h *Hub) Broadcast(messageType int, data []byte) {
	h.mu.RLock()
	clients := make([]Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.RUnlock()

	for _, conn := range clients {
		if err := conn.WriteMessage(messageType, data); err != nil {
			h.logger.Warn(fmt.Sprintf("发送屏幕消息失败: %v", err))
			conn.Close()
		}
	}
}

// Count 当前连接数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll 关闭所有连接
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[Conn]struct{})
	h.mu.Unlock()

	for conn := range clients {
		conn.Close()
	}
}
