package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
server:
  port: 9100
selected_module:
  Camera: usb
  VLLLM: openai
  TTS: edge
Camera:
  usb:
    type: ffmpeg
    device: /dev/video0
VLLLM:
  openai:
    type: openai
    model_name: gpt-4o
    api_key: ${SCANNER_TEST_KEY}
    timeouts:
      connect: 5s
TTS:
  edge:
    type: edge
    voices:
      id-ID: id-ID-GadisNeural
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFileExpandsEnvironment(t *testing.T) {
	t.Setenv("SCANNER_TEST_KEY", "sk-from-env")

	config, err := LoadConfigFile(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	vl := config.VLLLM[config.SelectedModule["VLLLM"]]
	if vl.APIKey != "sk-from-env" {
		t.Fatalf("api key = %q, want value from environment", vl.APIKey)
	}
	if vl.Timeouts.Connect != "5s" {
		t.Fatalf("connect timeout = %q", vl.Timeouts.Connect)
	}
	if config.TTS["edge"].Voices["id-ID"] != "id-ID-GadisNeural" {
		t.Fatalf("voice map not loaded: %v", config.TTS["edge"].Voices)
	}
	if config.Server.Port != 9100 {
		t.Fatalf("port = %d", config.Server.Port)
	}
}

func TestLoadConfigFileDefaults(t *testing.T) {
	config, err := LoadConfigFile(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if config.Scanner.Prompt != DefaultPrompt {
		t.Fatalf("prompt default not applied")
	}
	if config.Scanner.Locale != "id-ID" {
		t.Fatalf("locale = %q", config.Scanner.Locale)
	}
	if config.VLLLM["openai"].MaxTokens != 64 {
		t.Fatalf("max tokens = %d, want 64", config.VLLLM["openai"].MaxTokens)
	}
	if config.CycleTimeout() != 2*time.Minute {
		t.Fatalf("cycle timeout = %v", config.CycleTimeout())
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "空值", value: "", want: time.Second},
		{name: "合法值", value: "40s", want: 40 * time.Second},
		{name: "非法值", value: "forty", want: time.Second},
		{name: "负值", value: "-3s", want: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDuration(tt.value, time.Second); got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestRepositorySampleConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-sample")
	config, err := LoadConfigFile(filepath.Join("..", "..", "config.yaml"))
	if err != nil {
		t.Fatalf("load sample config: %v", err)
	}

	vlllmName := config.SelectedModule["VLLLM"]
	if vlllmName == "" {
		t.Fatalf("sample config must select a VLLLM")
	}
	if got := config.VLLLM["OpenAIVLLM"].ModelName; got != "gpt-4o" {
		t.Fatalf("OpenAIVLLM model = %q, want gpt-4o", got)
	}
	for name, tts := range config.TTS {
		if tts.CacheDir != "" {
			t.Fatalf("TTS %s enables cache_dir by default", name)
		}
	}
}
