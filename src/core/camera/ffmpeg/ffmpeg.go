package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"rupiah-scanner/src/core/camera"
)

// Driver 通过 ffmpeg 从采集设备抓取单帧JPEG
type Driver struct {
	command     string
	inputFormat string
	device      string
}

func NewDriver(config *camera.Config) (*Driver, error) {
	d := &Driver{
		command:     config.Command,
		inputFormat: config.InputFormat,
		device:      config.Device,
	}
	if d.command == "" {
		d.command = "ffmpeg"
	}
	if d.inputFormat == "" {
		d.inputFormat = "v4l2"
	}
	if d.device == "" {
		d.device = "/dev/video0"
	}
	return d, nil
}

// Open 检查 ffmpeg 与采集设备是否可用
func (d *Driver) Open(ctx context.Context) error {
	path, err := exec.LookPath(d.command)
	if err != nil {
		return fmt.Errorf("找不到 ffmpeg: %w", err)
	}
	d.command = path

	if strings.HasPrefix(d.device, "/dev/") {
		if _, err := os.Stat(d.device); err != nil {
			return fmt.Errorf("采集设备不可用: %w", err)
		}
	}
	return nil
}

// Args 构造抓取单帧的 ffmpeg 参数
func (d *Driver) Args() []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", d.inputFormat,
		"-i", d.device,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "1",
		"-",
	}
}

func (d *Driver) Grab(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx, d.command, d.Args()...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg 抓帧失败: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, errors.New("ffmpeg 未输出图像数据")
	}
	return stdout.Bytes(), nil
}

func (d *Driver) Close() error {
	return nil
}

func init() {
	camera.Register("ffmpeg", func(config *camera.Config) (camera.Driver, error) {
		return NewDriver(config)
	})
}
