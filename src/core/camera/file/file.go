package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"rupiah-scanner/src/core/camera"
)

var supportedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

// Driver 按文件名顺序循环回放目录中的图片，用于演示和测试
type Driver struct {
	dir string

	mu    sync.Mutex
	files []string
	next  int
}

func NewDriver(config *camera.Config) (*Driver, error) {
	if config.Dir == "" {
		return nil, errors.New("file 相机需要配置 dir")
	}
	return &Driver{dir: config.Dir}, nil
}

func (d *Driver) Open(ctx context.Context) error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("读取图片目录失败: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !supportedExt[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		files = append(files, filepath.Join(d.dir, entry.Name()))
	}
	if len(files) == 0 {
		return fmt.Errorf("目录 %s 中没有图片", d.dir)
	}
	sort.Strings(files)

	d.mu.Lock()
	d.files = files
	d.next = 0
	d.mu.Unlock()
	return nil
}

func (d *Driver) Grab(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if len(d.files) == 0 {
		d.mu.Unlock()
		return nil, errors.New("相机未打开")
	}
	path := d.files[d.next]
	d.next = (d.next + 1) % len(d.files)
	d.mu.Unlock()

	return os.ReadFile(path)
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files = nil
	return nil
}

func init() {
	camera.Register("file", func(config *camera.Config) (camera.Driver, error) {
		return NewDriver(config)
	})
}
