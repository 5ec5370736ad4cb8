package tts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAudioCache(t *testing.T) {
	dir := t.TempDir()
	cache := NewAudioCache(filepath.Join(dir, "cache"), "edge", "")

	text := "Ada selembar 1000 rupiah dan 2000 rupiah, total 3000 rupiah"
	if got := cache.Find("id-ID-GadisNeural", text); got != "" {
		t.Fatalf("expected miss, got %s", got)
	}

	source := filepath.Join(dir, "tts.mp3")
	if err := os.WriteFile(source, []byte("ID3 fake audio"), 0644); err != nil {
		t.Fatal(err)
	}
	saved, err := cache.Save("id-ID-GadisNeural", text, source)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !cache.IsCached(saved) || !strings.HasSuffix(saved, ".mp3") {
		t.Fatalf("unexpected cache path %s", saved)
	}
	if got := cache.Find("id-ID-GadisNeural", text); got != saved {
		t.Fatalf("Find() = %q, want %q", got, saved)
	}

	tests := []struct {
		name  string
		voice string
		text  string
	}{
		{name: "不同音色", voice: "en-US-AriaNeural", text: text},
		{name: "相同前缀不同文本", voice: "id-ID-GadisNeural", text: text + " lagi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cache.Find(tt.voice, tt.text); got != "" {
				t.Fatalf("expected miss, got %s", got)
			}
		})
	}

	if cache.IsCached(source) {
		t.Fatalf("source file is not part of the cache")
	}
}
