package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"rupiah-scanner/src/core/camera"
)

// 单帧大小上限
const maxFrameSize = 20 * 1024 * 1024

// Driver 从网络摄像头的抓图地址获取静态图片
type Driver struct {
	url        string
	httpClient *http.Client
}

func NewDriver(config *camera.Config) (*Driver, error) {
	if config.URL == "" {
		return nil, errors.New("snapshot 相机需要配置 url")
	}
	if _, err := url.ParseRequestURI(config.URL); err != nil {
		return nil, fmt.Errorf("无效的抓图地址: %w", err)
	}
	return &Driver{
		url:        config.URL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Open 抓取一帧确认摄像头可达
func (d *Driver) Open(ctx context.Context) error {
	_, err := d.Grab(ctx)
	return err
}

func (d *Driver) Grab(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %v", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("抓图请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("抓图响应错误: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
	if err != nil {
		return nil, fmt.Errorf("读取图片失败: %w", err)
	}
	return data, nil
}

func (d *Driver) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}

func init() {
	camera.Register("snapshot", func(config *camera.Config) (camera.Driver, error) {
		return NewDriver(config)
	})
}
