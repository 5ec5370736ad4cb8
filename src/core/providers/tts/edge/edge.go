package edge

import (
	"fmt"
	"os"
	"time"

	"rupiah-scanner/src/core/providers/tts"
	"rupiah-scanner/src/core/utils"

	"github.com/wujunwei928/edge-tts-go/edge_tts"
)

// DefaultVoices 未配置 voices 时使用的各语言区域音色
var DefaultVoices = map[string]string{
	"id-ID": "id-ID-GadisNeural",
	"en-US": "en-US-AriaNeural",
	"zh-CN": "zh-CN-XiaoxiaoNeural",
}

// Provider Edge TTS提供者实现
type Provider struct {
	*tts.BaseProvider
}

// NewProvider 创建Edge TTS提供者
func NewProvider(config *tts.Config, deleteFile bool) (*Provider, error) {
	if len(config.Voices) == 0 {
		config.Voices = DefaultVoices
	}
	if config.Voice == "" {
		config.Voice = DefaultVoices["id-ID"]
	}
	return &Provider{
		BaseProvider: tts.NewBaseProvider(config, deleteFile),
	}, nil
}

// ToTTS 将文本合成为mp3文件并返回文件路径，edge 输出为24k采样率
func (p *Provider) ToTTS(text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("合成文本为空")
	}

	conn, err := edge_tts.NewCommunicate(text, edge_tts.SetVoice(p.Voice()))
	if err != nil {
		return "", fmt.Errorf("创建 edge-tts-go Communicate 失败: %v", err)
	}

	audioData, err := conn.Stream()
	if err != nil {
		return "", fmt.Errorf("edge-tts-go 获取音频流失败: %v", err)
	}
	if _, err := utils.MP3DurationFromBytes(audioData); err != nil {
		return "", fmt.Errorf("edge-tts-go 返回的音频无效: %v", err)
	}

	tempFile, err := p.OutputPath(fmt.Sprintf("edge_tts_%d", time.Now().UnixMilli()), "mp3")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(tempFile, audioData, 0644); err != nil {
		return "", fmt.Errorf("写入音频文件 '%s' 失败: %v", tempFile, err)
	}
	return tempFile, nil
}

func init() {
	// 注册Edge TTS提供者
	tts.Register("edge", func(config *tts.Config, deleteFile bool) (tts.Provider, error) {
		return NewProvider(config, deleteFile)
	})
}
