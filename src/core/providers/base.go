package providers

// Provider 所有提供者的基础接口
type Provider interface {
	Initialize() error
	Cleanup() error
}

// TTSProvider 语音合成提供者接口
type TTSProvider interface {
	Provider

	// 合成音频并返回文件路径
	ToTTS(text string) (string, error)

	SetVoice(voice string) error
}
