package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"rupiah-scanner/src/core/providers"
)

// Config TTS配置结构
type Config struct {
	Type      string            `yaml:"type"`
	OutputDir string            `yaml:"output_dir"`
	Voice     string            `yaml:"voice,omitempty"`
	Voices    map[string]string `yaml:"voices,omitempty"` // 语言区域 -> 音色
	Format    string            `yaml:"format,omitempty"`
}

// Provider TTS提供者接口
type Provider interface {
	providers.TTSProvider

	// VoiceFor 返回语言区域对应的音色，不支持时返回false
	VoiceFor(locale string) (string, bool)
}

// BaseProvider TTS基础实现
type BaseProvider struct {
	config     *Config
	deleteFile bool

	mu    sync.RWMutex
	voice string
}

// Config 获取配置
func (p *BaseProvider) Config() *Config {
	return p.config
}

// DeleteFile 获取是否删除文件标志
func (p *BaseProvider) DeleteFile() bool {
	return p.deleteFile
}

// NewBaseProvider 创建TTS基础提供者
func NewBaseProvider(config *Config, deleteFile bool) *BaseProvider {
	return &BaseProvider{
		config:     config,
		deleteFile: deleteFile,
		voice:      config.Voice,
	}
}

// Voice 当前使用的音色
func (p *BaseProvider) Voice() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.voice
}

// SetVoice 切换音色
func (p *BaseProvider) SetVoice(voice string) error {
	if voice == "" {
		return fmt.Errorf("音色不能为空")
	}
	p.mu.Lock()
	p.voice = voice
	p.mu.Unlock()
	return nil
}

// VoiceFor 先查 voices 映射，再看默认音色是否属于该语言区域
func (p *BaseProvider) VoiceFor(locale string) (string, bool) {
	if voice, ok := p.config.Voices[locale]; ok && voice != "" {
		return voice, true
	}
	if p.config.Voice != "" && strings.HasPrefix(strings.ToLower(p.config.Voice), strings.ToLower(locale)+"-") {
		return p.config.Voice, true
	}
	return "", false
}

// OutputPath 生成一个新的音频文件路径
func (p *BaseProvider) OutputPath(prefix, ext string) (string, error) {
	outputDir := p.config.OutputDir
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建输出目录失败 '%s': %v", outputDir, err)
	}
	file, err := os.CreateTemp(outputDir, prefix+"_*."+ext)
	if err != nil {
		return "", fmt.Errorf("创建音频文件失败: %v", err)
	}
	name := file.Name()
	file.Close()
	return name, nil
}

// Initialize 初始化提供者
func (p *BaseProvider) Initialize() error {
	if p.config.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(p.config.OutputDir, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %v", err)
	}
	return nil
}

// Cleanup 清理资源
func (p *BaseProvider) Cleanup() error {
	if !p.deleteFile || p.config.OutputDir == "" {
		return nil
	}
	for _, ext := range []string{"mp3", "wav", "opus"} {
		matches, err := filepath.Glob(filepath.Join(p.config.OutputDir, "*."+ext))
		if err != nil {
			return fmt.Errorf("查找临时文件失败: %v", err)
		}
		for _, file := range matches {
			if err := os.Remove(file); err != nil {
				return fmt.Errorf("删除临时文件失败: %v", err)
			}
		}
	}
	return nil
}

// Factory TTS工厂函数类型
type Factory func(config *Config, deleteFile bool) (Provider, error)

var (
	factories = make(map[string]Factory)
)

// Register 注册TTS提供者工厂
func Register(name string, factory Factory) {
	factories[name] = factory
}

// Create 创建TTS提供者实例
func Create(name string, config *Config, deleteFile bool) (Provider, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("未知的TTS提供者: %s", name)
	}

	provider, err := factory(config, deleteFile)
	if err != nil {
		return nil, fmt.Errorf("创建TTS提供者失败: %v", err)
	}

	if err := provider.Initialize(); err != nil {
		return nil, fmt.Errorf("初始化TTS提供者失败: %v", err)
	}

	return provider, nil
}
