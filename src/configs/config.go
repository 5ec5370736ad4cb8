package configs

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPrompt 默认识别提示词（印尼语），要求模型简短回答面额与总额
	DefaultPrompt = "Notasi uang rupiah berapa yang ada di foto? Jika ada lebih dari satu lembar, berapa jumlahnya? singkat padat jelas contoh Ada selembar 1000 rupiah dan 2000 rupiah, total 3000 rupiah"
	// DefaultLocale 默认朗读语言
	DefaultLocale = "id-ID"
)

// Config 主配置结构
type Config struct {
	Server struct {
		IP        string `yaml:"ip"`
		Port      int    `yaml:"port"`
		Token     string `yaml:"token"` // JWT签名密钥
		StaticDir string `yaml:"static_dir"`
		Auth      struct {
			Enabled        bool     `yaml:"enabled"`
			AllowedDevices []string `yaml:"allowed_devices"`
		} `yaml:"auth"`
	} `yaml:"server"`

	Log struct {
		LogFormat string `yaml:"log_format"`
		LogLevel  string `yaml:"log_level"`
		LogDir    string `yaml:"log_dir"`
		LogFile   string `yaml:"log_file"`
	} `yaml:"log"`

	Permission struct {
		AutoGrant bool `yaml:"auto_grant"`
	} `yaml:"permission"`

	Scanner ScannerConfig `yaml:"scanner"`

	MCP struct {
		Enabled bool   `yaml:"enabled"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"mcp"`

	ConnectivityCheck ConnectivityCheckConfig `yaml:"connectivity_check"`

	DeleteAudio bool `yaml:"delete_audio"`

	SelectedModule map[string]string `yaml:"selected_module"`

	Camera map[string]CameraConfig `yaml:"Camera"`
	TTS    map[string]TTSConfig    `yaml:"TTS"`
	VLLLM  map[string]VLLMConfig   `yaml:"VLLLM"`
}

// ScannerConfig 扫描流程配置
type ScannerConfig struct {
	Prompt       string `yaml:"prompt"`
	Locale       string `yaml:"locale"`
	CaptureDir   string `yaml:"capture_dir"`
	CycleTimeout string `yaml:"cycle_timeout"`
}

// ConnectivityCheckConfig 启动时的连通性检查配置
type ConnectivityCheckConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Timeout       string `yaml:"timeout"`
	RetryAttempts int    `yaml:"retry_attempts"`
	RetryDelay    string `yaml:"retry_delay"`
	TTSTestText   string `yaml:"tts_test_text"`
}

// CameraConfig 相机驱动配置
type CameraConfig struct {
	Type            string                 `yaml:"type"`
	Command         string                 `yaml:"command"`      // ffmpeg可执行文件
	InputFormat     string                 `yaml:"input_format"` // ffmpeg -f 参数，如 v4l2
	Device          string                 `yaml:"device"`       // 设备路径，如 /dev/video0
	Dir             string                 `yaml:"dir"`          // file驱动的图片目录
	URL             string                 `yaml:"url"`          // snapshot驱动的抓图地址
	PreviewInterval string                 `yaml:"preview_interval"`
	Extra           map[string]interface{} `yaml:",inline"`
}

// TTSConfig TTS配置结构
type TTSConfig struct {
	Type      string            `yaml:"type"`
	Voice     string            `yaml:"voice"`
	Voices    map[string]string `yaml:"voices"` // 语言区域 -> 音色
	Format    string            `yaml:"format"`
	OutputDir string            `yaml:"output_dir"`
	CacheDir  string            `yaml:"cache_dir"` // 非空时缓存合成结果
}

// TimeoutConfig 连接/读/写超时，均为 time.ParseDuration 格式
type TimeoutConfig struct {
	Connect string `yaml:"connect"`
	Read    string `yaml:"read"`
	Write   string `yaml:"write"`
}

// VLLMConfig VLLLM配置结构（视觉语言大模型）
type VLLMConfig struct {
	Type        string                 `yaml:"type"`        // API类型: openai / ollama
	ModelName   string                 `yaml:"model_name"`  // 模型名称，使用支持视觉的模型
	BaseURL     string                 `yaml:"url"`         // API地址
	APIKey      string                 `yaml:"api_key"`     // API密钥，建议写成 ${OPENAI_API_KEY}
	Temperature float64                `yaml:"temperature"` // 温度参数
	MaxTokens   int                    `yaml:"max_tokens"`  // 最大令牌数
	TopP        float64                `yaml:"top_p"`       // TopP参数
	Timeouts    TimeoutConfig          `yaml:"timeouts"`    // 超时配置
	Extra       map[string]interface{} `yaml:",inline"`     // 额外配置
}

// LoadConfig 从文件加载配置
func LoadConfig() (*Config, string, error) {
	path := ".config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "config.yaml"
	}
	config, err := LoadConfigFile(path)
	return config, path, err
}

// LoadConfigFile 读取指定路径的配置，展开其中的环境变量并补齐默认值
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	config.applyDefaults()

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Log.LogDir == "" {
		c.Log.LogDir = "logs"
	}
	if c.Log.LogFile == "" {
		c.Log.LogFile = "server.log"
	}
	if c.Log.LogLevel == "" {
		c.Log.LogLevel = "info"
	}
	if c.Scanner.Prompt == "" {
		c.Scanner.Prompt = DefaultPrompt
	}
	if c.Scanner.Locale == "" {
		c.Scanner.Locale = DefaultLocale
	}
	if c.Scanner.CaptureDir == "" {
		c.Scanner.CaptureDir = "captures"
	}
	if c.SelectedModule == nil {
		c.SelectedModule = map[string]string{}
	}
	for name, v := range c.VLLLM {
		if v.MaxTokens == 0 {
			v.MaxTokens = 64
		}
		c.VLLLM[name] = v
	}
}

// CycleTimeout 单次扫描流程的超时时间，默认2分钟
func (c *Config) CycleTimeout() time.Duration {
	return ParseDuration(c.Scanner.CycleTimeout, 2*time.Minute)
}

// ParseDuration 解析时长字符串，为空或非法时返回默认值
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
