package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rupiah-scanner/src/configs"
	"rupiah-scanner/src/core/utils"

	"github.com/gin-gonic/gin"
)

func testConfig() *configs.Config {
	config := &configs.Config{
		SelectedModule: map[string]string{"VLLLM": "OpenAIVLLM", "TTS": "EdgeTTS"},
		VLLLM: map[string]configs.VLLMConfig{
			"OpenAIVLLM": {Type: "openai", ModelName: "gpt-4o-mini", APIKey: "sk-secret", MaxTokens: 64},
		},
		TTS: map[string]configs.TTSConfig{
			"EdgeTTS": {Type: "edge", Voice: "id-ID-GadisNeural"},
		},
	}
	config.Scanner.Locale = configs.DefaultLocale
	return config
}

func TestViewHidesSecrets(t *testing.T) {
	view := View(testConfig())
	if view.Recognizer == nil || !view.Recognizer.APIKeySet || view.Recognizer.ModelName != "gpt-4o-mini" {
		t.Fatalf("unexpected recognizer view %+v", view.Recognizer)
	}
	if view.Voice != "id-ID-GadisNeural" || view.CycleTimeout != "2m0s" {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestCfgEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service, _ := NewDefaultCfgService(testConfig(), utils.NewConsoleLogger("error"))
	engine := gin.New()
	service.Start(context.Background(), engine, engine.Group("/api"))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cfg", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if strings.Contains(body, "sk-secret") {
		t.Fatalf("API key leaked: %s", body)
	}
	if !strings.Contains(body, `"api_key_set":true`) {
		t.Fatalf("missing api_key_set: %s", body)
	}
}
