package tts

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeFilename = regexp.MustCompile(`[<>:"/\\|?*\s,.]+`)

// AudioCache 按 文本+提供者+音色 缓存合成结果，重复的识别结果不再重新合成
type AudioCache struct {
	dir      string
	provider string
	format   string
}

func NewAudioCache(dir, provider, format string) *AudioCache {
	if format == "" {
		format = "mp3"
	}
	return &AudioCache{dir: dir, provider: provider, format: format}
}

// Find 返回已缓存的音频路径，没有时为空字符串
func (c *AudioCache) Find(voice, text string) string {
	path := filepath.Join(c.dir, c.filename(voice, text))
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path
	}
	return ""
}

// Save 把 source 复制进缓存并返回缓存路径，已存在时直接返回
func (c *AudioCache) Save(voice, text, source string) (string, error) {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", fmt.Errorf("创建缓存目录失败: %v", err)
	}
	target := filepath.Join(c.dir, c.filename(voice, text))
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}

	src, err := os.Open(source)
	if err != nil {
		return "", fmt.Errorf("打开源文件失败: %v", err)
	}
	defer src.Close()

	// 先写临时文件再改名，避免并发读到半个文件
	tmp, err := os.CreateTemp(c.dir, ".audio-*")
	if err != nil {
		return "", fmt.Errorf("创建缓存文件失败: %v", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("复制文件内容失败: %v", err)
	}
	tmp.Close()
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("保存缓存文件失败: %v", err)
	}
	return target, nil
}

// IsCached 判断路径是否位于缓存目录中
func (c *AudioCache) IsCached(path string) bool {
	return path != "" && filepath.Clean(filepath.Dir(path)) == filepath.Clean(c.dir)
}

// filename 格式: 文本前缀_提供者_音色_摘要.格式
func (c *AudioCache) filename(voice, text string) string {
	safe := strings.Trim(unsafeFilename.ReplaceAllString(text, "_"), "_")
	if len(safe) > 40 {
		safe = strings.ToValidUTF8(safe[:40], "")
	}
	if safe == "" {
		safe = "speech"
	}
	sum := sha1.Sum([]byte(c.provider + "\x00" + voice + "\x00" + text))
	return fmt.Sprintf("%s_%s_%s_%s.%s", safe, c.provider, voice, hex.EncodeToString(sum[:4]), c.format)
}
