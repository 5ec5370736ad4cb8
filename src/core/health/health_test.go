package health

import (
	"context"
	"encoding/json"
	"errors"
	stdimage "image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"rupiah-scanner/src/configs"
	"rupiah-scanner/src/core/utils"

	_ "rupiah-scanner/src/core/camera/file"
	_ "rupiah-scanner/src/core/providers/vlllm/ollama"
)

func testConfig(retries int) *Config {
	return &Config{
		Enabled:       true,
		Timeout:       2 * time.Second,
		RetryAttempts: retries,
		RetryDelay:    time.Millisecond,
		TTSTestText:   "Tes suara",
	}
}

func TestConfigFromYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    *configs.ConnectivityCheckConfig
		timeout time.Duration
		retries int
		text    string
	}{
		{name: "空配置", yaml: nil, timeout: 30 * time.Second, retries: 3, text: "Tes suara"},
		{name: "默认值", yaml: &configs.ConnectivityCheckConfig{Enabled: true}, timeout: 30 * time.Second, retries: 3, text: "Tes suara"},
		{
			name:    "自定义",
			yaml:    &configs.ConnectivityCheckConfig{Enabled: true, Timeout: "5s", RetryAttempts: 1, RetryDelay: "1s", TTSTestText: "Halo"},
			timeout: 5 * time.Second,
			retries: 1,
			text:    "Halo",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConfigFromYAML(tt.yaml)
			if got.Timeout != tt.timeout || got.RetryAttempts != tt.retries || got.TTSTestText != tt.text {
				t.Fatalf("unexpected config %+v", got)
			}
		})
	}
}

func TestCheckAllRetries(t *testing.T) {
	hc := NewEmptyChecker(testConfig(3), utils.NewConsoleLogger("error"))
	var calls int32
	hc.Add("flaky", func(ctx context.Context, mode CheckMode) (map[string]interface{}, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("not yet")
		}
		return map[string]interface{}{"ok": true}, nil
	})

	if err := hc.CheckAll(context.Background(), BasicCheck); err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	results := hc.Results()
	if len(results) != 1 || !results[0].Success || results[0].Details["ok"] != true {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestCheckAllReportsFailures(t *testing.T) {
	hc := NewEmptyChecker(testConfig(2), utils.NewConsoleLogger("error"))
	hc.Add("B", func(ctx context.Context, mode CheckMode) (map[string]interface{}, error) {
		return nil, errors.New("unreachable")
	})
	hc.Add("A", func(ctx context.Context, mode CheckMode) (map[string]interface{}, error) {
		return nil, nil
	})

	err := hc.CheckAll(context.Background(), FunctionalCheck)
	if err == nil || !strings.Contains(err.Error(), "unreachable") {
		t.Fatalf("expected aggregated failure, got %v", err)
	}
	results := hc.Results()
	if len(results) != 2 || results[0].Component != "A" || results[1].Success {
		t.Fatalf("unexpected results %+v", results)
	}
	if results[1].Mode != FunctionalCheck || results[1].Error == "" {
		t.Fatalf("failure not recorded: %+v", results[1])
	}
	hc.PrintReport()
}

func TestCheckAllDisabled(t *testing.T) {
	cfg := testConfig(1)
	cfg.Enabled = false
	hc := NewEmptyChecker(cfg, utils.NewConsoleLogger("error"))
	hc.Add("never", func(ctx context.Context, mode CheckMode) (map[string]interface{}, error) {
		t.Fatalf("disabled checker must not run checks")
		return nil, nil
	})
	if err := hc.CheckAll(context.Background(), BasicCheck); err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	cfg := testConfig(5)
	cfg.RetryDelay = time.Hour
	hc := NewEmptyChecker(cfg, utils.NewConsoleLogger("error"))

	ctx, cancel := context.WithCancel(context.Background())
	err := hc.withRetry(ctx, func() error {
		cancel()
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFunctionalCheckWithFileCameraAndOllama(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "0001.png"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(f, stdimage.NewRGBA(stdimage.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("png: %v", err)
	}
	f.Close()

	var gotImages int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Images []string `json:"images"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		for _, m := range req.Messages {
			gotImages += len(m.Images)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"llava","message":{"role":"assistant","content":"bukan uang"},"done":true}`))
	}))
	defer srv.Close()

	config := &configs.Config{
		SelectedModule: map[string]string{"Camera": "Replay", "VLLLM": "OllamaVLLM"},
		Camera:         map[string]configs.CameraConfig{"Replay": {Type: "file", Dir: dir}},
		VLLLM:          map[string]configs.VLLMConfig{"OllamaVLLM": {Type: "ollama", ModelName: "llava", BaseURL: srv.URL}},
	}
	config.Scanner.Prompt = "What is the notation of this rupiah?"

	hc := NewChecker(config, testConfig(1), utils.NewConsoleLogger("error"))
	if err := hc.CheckAll(context.Background(), FunctionalCheck); err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if gotImages != 1 {
		t.Fatalf("expected one image sent to the model, got %d", gotImages)
	}

	results := hc.Results()
	if len(results) != 2 {
		t.Fatalf("expected camera and VLLLM results, got %d", len(results))
	}
	if results[0].Component != "Camera" || results[0].Details["frame_format"] != "png" {
		t.Fatalf("unexpected camera result %+v", results[0])
	}
	if results[1].Component != "VLLLM" || results[1].Details["response_length"] != len("bukan uang") {
		t.Fatalf("unexpected VLLLM result %+v", results[1])
	}
}

func TestMissingModuleConfig(t *testing.T) {
	config := &configs.Config{
		SelectedModule: map[string]string{"TTS": "Missing"},
	}
	hc := NewChecker(config, testConfig(1), utils.NewConsoleLogger("error"))
	if err := hc.CheckAll(context.Background(), BasicCheck); err == nil {
		t.Fatalf("expected failure for missing TTS config")
	}
}
