package camera

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rupiah-scanner/src/configs"
)

var (
	// ErrNotBound 相机尚未完成绑定
	ErrNotBound = errors.New("camera session is not bound")
	// ErrBindFailed 获取或绑定相机失败
	ErrBindFailed = errors.New("camera binding failed")
	// ErrCaptureFailed 拍照失败
	ErrCaptureFailed = errors.New("capture failed")
)

// Driver 相机硬件抽象，Grab 返回一帧已编码的图片（通常为JPEG）
type Driver interface {
	// Open 获取相机句柄，可能阻塞直到设备就绪
	Open(ctx context.Context) error
	Grab(ctx context.Context) ([]byte, error)
	Close() error
}

// Config 相机驱动配置
type Config struct {
	Type            string
	Command         string
	InputFormat     string
	Device          string
	Dir             string
	URL             string
	PreviewInterval time.Duration
	Data            map[string]interface{}
}

// Factory 相机驱动工厂函数类型
type Factory func(config *Config) (Driver, error)

var (
	factories = make(map[string]Factory)
)

// Register 注册相机驱动工厂
func Register(name string, factory Factory) {
	factories[name] = factory
}

// Create 根据配置创建相机驱动
func Create(name string, cameraConfig *configs.CameraConfig) (Driver, *Config, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, nil, fmt.Errorf("未知的相机驱动: %s", name)
	}

	config := &Config{
		Type:            cameraConfig.Type,
		Command:         cameraConfig.Command,
		InputFormat:     cameraConfig.InputFormat,
		Device:          cameraConfig.Device,
		Dir:             cameraConfig.Dir,
		URL:             cameraConfig.URL,
		PreviewInterval: configs.ParseDuration(cameraConfig.PreviewInterval, 0),
		Data:            cameraConfig.Extra,
	}

	driver, err := factory(config)
	if err != nil {
		return nil, nil, fmt.Errorf("创建相机驱动失败: %v", err)
	}
	return driver, config, nil
}

// GetRegisteredDrivers 获取已注册的驱动列表
func GetRegisteredDrivers() []string {
	var drivers []string
	for name := range factories {
		drivers = append(drivers, name)
	}
	return drivers
}
