package screen

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrConnectionClosed = errors.New("websocket connection is closed")
)

// Upgrader WebSocket升级器接口
type Upgrader interface {
	Upgrade(w http.ResponseWriter, r *http.Request) (Conn, error)
}

// Conn WebSocket连接接口
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// defaultUpgrader 默认的WebSocket升级器实现
type defaultUpgrader struct {
	wsUpgrader *websocket.Upgrader
}

// NewDefaultUpgrader 创建默认的WebSocket升级器
func NewDefaultUpgrader() Upgrader {
	return &defaultUpgrader{
		wsUpgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 屏幕页面可能来自静态目录以外的来源
			},
		},
	}
}

func (u *defaultUpgrader) Upgrade(w http.ResponseWriter, r *http.Request) (Conn, error) {
	conn, err := u.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &websocketConn{conn: conn}, nil
}

// websocketConn 封装gorilla/websocket的连接实现
type websocketConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // 写操作互斥锁
	closed  int32      // 0=open, 1=closed
}

func (w *websocketConn) ReadMessage() (messageType int, p []byte, err error) {
	if atomic.LoadInt32(&w.closed) == 1 {
		return 0, nil, ErrConnectionClosed
	}

	// 客户端会定期发送心跳
	w.conn.SetReadDeadline(time.Now().Add(5 * time.Minute))

	messageType, p, err = w.conn.ReadMessage()
	if err != nil {
		atomic.StoreInt32(&w.closed, 1)
		return 0, nil, err
	}
	return messageType, p, nil
}

func (w *websocketConn) WriteMessage(messageType int, data []byte) error {
	if atomic.LoadInt32(&w.closed) == 1 {
		return ErrConnectionClosed
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if atomic.LoadInt32(&w.closed) == 1 {
		return ErrConnectionClosed
	}

	w.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	if err := w.conn.WriteMessage(messageType, data); err != nil {
		atomic.StoreInt32(&w.closed, 1)
		return err
	}
	return nil
}

func (w *websocketConn) Close() error {
	if !atomic.CompareAndSwapInt32(&w.closed, 0, 1) {
		return nil
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	// 关闭帧发送失败不影响关闭
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "screen closed")
	w.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	w.conn.WriteMessage(websocket.CloseMessage, closeMsg)

	return w.conn.Close()
}
