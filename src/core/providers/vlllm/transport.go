package vlllm

import (
	"context"
	"net"
	"net/http"
	"time"
)

// NewHTTPClient 按连接/读/写三个超时构造HTTP客户端；读写超时作用于每一次socket操作
func NewHTTPClient(timeouts Timeouts) *http.Client {
	if timeouts.Connect <= 0 {
		timeouts.Connect = DefaultTimeout
	}
	if timeouts.Read <= 0 {
		timeouts.Read = DefaultTimeout
	}
	if timeouts.Write <= 0 {
		timeouts.Write = DefaultTimeout
	}

	dialer := &net.Dialer{
		Timeout:   timeouts.Connect,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: conn, read: timeouts.Read, write: timeouts.Write}, nil
		},
		TLSHandshakeTimeout: timeouts.Connect,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &http.Client{Transport: transport}
}

// deadlineConn 在每次读写前刷新截止时间；写入后同时顺延正在等待中的读，复用的空闲连接不会沿用旧的读截止时间
type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
		return 0, err
	}
	n, err := c.Conn.Write(b)
	if err == nil {
		err = c.Conn.SetReadDeadline(time.Now().Add(c.read))
	}
	return n, err
}
