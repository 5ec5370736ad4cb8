package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"rupiah-scanner/src/configs"
	"rupiah-scanner/src/core/image"
	"rupiah-scanner/src/core/providers/vlllm"
	"rupiah-scanner/src/core/utils"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) vlllm.Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	provider, err := vlllm.Create("ollama", &configs.VLLMConfig{
		Type:      "ollama",
		ModelName: "llava",
		BaseURL:   srv.URL,
		MaxTokens: 64,
	}, utils.NewConsoleLogger("error"))
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	return provider
}

func TestRecognizeSuccess(t *testing.T) {
	var got Request
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"model":"llava","message":{"role":"assistant","content":"Ada selembar 5000 rupiah"},"done":true}`)
	})

	text, err := provider.Recognize(context.Background(), image.ImageData{Data: "QUJD"}, "prompt")
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if text != "Ada selembar 5000 rupiah" {
		t.Fatalf("text = %q", text)
	}
	if got.Stream {
		t.Errorf("request must not stream")
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Images) != 1 || got.Messages[0].Images[0] != "QUJD" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
	if got.Options["num_predict"] != float64(64) {
		t.Errorf("num_predict = %v", got.Options["num_predict"])
	}
}

func TestRecognizeFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{
			name:   "模型不存在",
			status: http.StatusNotFound,
			body:   `{"error":"model \"llava\" not found"}`,
			check: func(err error) bool {
				var statusErr *vlllm.StatusError
				return errors.As(err, &statusErr) && statusErr.StatusCode == 404 && statusErr.Message == `model "llava" not found`
			},
		},
		{
			name:   "非法JSON",
			status: http.StatusOK,
			body:   `not json`,
			check:  func(err error) bool { return errors.Is(err, vlllm.ErrParse) },
		},
		{
			name:   "缺少message",
			status: http.StatusOK,
			body:   `{"done":true}`,
			check:  func(err error) bool { return errors.Is(err, vlllm.ErrParse) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			_, err := provider.Recognize(context.Background(), image.ImageData{Data: "QUJD"}, "prompt")
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
