package edge

import (
	"testing"

	"rupiah-scanner/src/core/providers/tts"
)

func TestProviderDefaultsToIndonesianVoice(t *testing.T) {
	provider, err := tts.Create("edge", &tts.Config{Type: "edge", OutputDir: t.TempDir()}, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	voice, ok := provider.VoiceFor("id-ID")
	if !ok || voice != "id-ID-GadisNeural" {
		t.Fatalf("VoiceFor(id-ID) = %q, %v", voice, ok)
	}
	if _, ok := provider.VoiceFor("ja-JP"); ok {
		t.Fatalf("ja-JP should not be supported by default")
	}
}

func TestToTTSRejectsEmptyText(t *testing.T) {
	p, _ := NewProvider(&tts.Config{OutputDir: t.TempDir()}, false)
	if _, err := p.ToTTS(""); err == nil {
		t.Fatalf("expected error for empty text")
	}
}
