package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rupiah-scanner/src/core/providers/tts"
	"rupiah-scanner/src/core/utils"
)

type fakeProvider struct {
	mu        sync.Mutex
	initErr   error
	initWait  chan struct{}
	voices    map[string]string
	voice     string
	texts     []string
	cleanedUp bool
	dir       string // 非空时真正写出音频文件
}

func (p *fakeProvider) Initialize() error {
	if p.initWait != nil {
		<-p.initWait
	}
	return p.initErr
}

func (p *fakeProvider) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleanedUp = true
	return nil
}

func (p *fakeProvider) ToTTS(text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, text)
	if p.dir == "" {
		return "/tmp/" + text + ".mp3", nil
	}
	path := filepath.Join(p.dir, fmt.Sprintf("tts-%d.mp3", len(p.texts)))
	return path, os.WriteFile(path, []byte(text), 0644)
}

func (p *fakeProvider) SetVoice(voice string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voice = voice
	return nil
}

func (p *fakeProvider) VoiceFor(locale string) (string, bool) {
	voice, ok := p.voices[locale]
	return voice, ok
}

type playback struct {
	text      string
	cancelled bool
}

type fakePlayer struct {
	hold   time.Duration
	played chan playback
}

func newFakePlayer(hold time.Duration) *fakePlayer {
	return &fakePlayer{hold: hold, played: make(chan playback, 8)}
}

func (p *fakePlayer) Play(ctx context.Context, text string, audioPath string) error {
	select {
	case <-time.After(p.hold):
		p.played <- playback{text: text}
		return nil
	case <-ctx.Done():
		p.played <- playback{text: text, cancelled: true}
		return ctx.Err()
	}
}

func indonesian() map[string]string {
	return map[string]string{"id-ID": "id-ID-GadisNeural"}
}

func initAndWait(t *testing.T, e *Engine) error {
	t.Helper()
	done := make(chan error, 1)
	e.Init(func(err error) { done <- err })
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("init callback not invoked")
		return nil
	}
}

func expectPlayback(t *testing.T, player *fakePlayer) playback {
	t.Helper()
	select {
	case pb := <-player.played:
		return pb
	case <-time.After(2 * time.Second):
		t.Fatalf("nothing was played")
		return playback{}
	}
}

func TestSpeakAfterReady(t *testing.T) {
	provider := &fakeProvider{voices: indonesian()}
	player := newFakePlayer(0)
	e := NewEngine(provider, player, "id-ID", false, utils.NewConsoleLogger("error"))
	defer e.Shutdown()

	if err := initAndWait(t, e); err != nil {
		t.Fatalf("init: %v", err)
	}
	if e.State() != StateReady {
		t.Fatalf("state = %s", e.State())
	}

	text := "Ada selembar 1000 rupiah dan 2000 rupiah, total 3000 rupiah"
	if err := e.Speak(text); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if pb := expectPlayback(t, player); pb.text != text || pb.cancelled {
		t.Fatalf("unexpected playback %+v", pb)
	}
	provider.mu.Lock()
	defer provider.mu.Unlock()
	if provider.voice != "id-ID-GadisNeural" {
		t.Fatalf("voice = %q", provider.voice)
	}
}

func TestSpeakFlushesPrevious(t *testing.T) {
	provider := &fakeProvider{voices: indonesian()}
	player := newFakePlayer(300 * time.Millisecond)
	e := NewEngine(provider, player, "id-ID", false, utils.NewConsoleLogger("error"))
	defer e.Shutdown()
	initAndWait(t, e)

	e.Speak("pertama")
	time.Sleep(50 * time.Millisecond)
	e.Speak("kedua")

	first := expectPlayback(t, player)
	if first.text != "pertama" || !first.cancelled {
		t.Fatalf("first utterance should be cancelled, got %+v", first)
	}
	second := expectPlayback(t, player)
	if second.text != "kedua" || second.cancelled {
		t.Fatalf("second utterance should play, got %+v", second)
	}
}

func TestSpeakBeforeReadyKeepsLatest(t *testing.T) {
	provider := &fakeProvider{voices: indonesian(), initWait: make(chan struct{})}
	player := newFakePlayer(0)
	e := NewEngine(provider, player, "id-ID", false, utils.NewConsoleLogger("error"))
	defer e.Shutdown()

	done := make(chan error, 1)
	e.Init(func(err error) { done <- err })

	e.Speak("lama")
	e.Speak("baru")
	close(provider.initWait)
	<-done

	if pb := expectPlayback(t, player); pb.text != "baru" {
		t.Fatalf("expected only the latest pending utterance, got %+v", pb)
	}
	select {
	case pb := <-player.played:
		t.Fatalf("unexpected extra playback %+v", pb)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSpeakUnsupportedLocale(t *testing.T) {
	provider := &fakeProvider{voices: map[string]string{"en-US": "en-US-AriaNeural"}}
	player := newFakePlayer(0)
	e := NewEngine(provider, player, "id-ID", false, utils.NewConsoleLogger("error"))
	defer e.Shutdown()
	initAndWait(t, e)

	if err := e.Speak("halo"); !errors.Is(err, ErrLangNotSupported) {
		t.Fatalf("expected ErrLangNotSupported, got %v", err)
	}
	select {
	case pb := <-player.played:
		t.Fatalf("nothing should be played, got %+v", pb)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInitFailure(t *testing.T) {
	provider := &fakeProvider{voices: indonesian(), initErr: errors.New("no engine")}
	e := NewEngine(provider, newFakePlayer(0), "id-ID", false, utils.NewConsoleLogger("error"))
	defer e.Shutdown()

	if err := initAndWait(t, e); !errors.Is(err, ErrInitFailed) {
		t.Fatalf("expected ErrInitFailed, got %v", err)
	}
	if e.State() != StateFailed {
		t.Fatalf("state = %s", e.State())
	}
	if err := e.Speak("halo"); !errors.Is(err, ErrInitFailed) {
		t.Fatalf("expected speak to be dropped, got %v", err)
	}
}

func TestShutdown(t *testing.T) {
	provider := &fakeProvider{voices: indonesian()}
	player := newFakePlayer(time.Minute)
	e := NewEngine(provider, player, "id-ID", false, utils.NewConsoleLogger("error"))
	initAndWait(t, e)

	e.Speak("halo")
	time.Sleep(20 * time.Millisecond)
	e.Shutdown()

	if pb := expectPlayback(t, player); !pb.cancelled {
		t.Fatalf("shutdown should cancel playback")
	}
	if err := e.Speak("lagi"); !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected ErrShutdown, got %v", err)
	}
	if !provider.cleanedUp {
		t.Fatalf("expected provider cleanup")
	}
}

func TestSpeakUsesCache(t *testing.T) {
	dir := t.TempDir()
	provider := &fakeProvider{voices: indonesian(), dir: dir}
	player := newFakePlayer(0)
	e := NewEngine(provider, player, "id-ID", true, utils.NewConsoleLogger("error"))
	e.SetCache(tts.NewAudioCache(filepath.Join(dir, "cache"), "fake", "mp3"))
	defer e.Shutdown()

	if err := initAndWait(t, e); err != nil {
		t.Fatalf("init: %v", err)
	}

	text := "Ada selembar **5000** rupiah"
	for i := 0; i < 2; i++ {
		if err := e.Speak(text); err != nil {
			t.Fatalf("speak: %v", err)
		}
		if pb := expectPlayback(t, player); pb.text != text {
			t.Fatalf("unexpected playback %+v", pb)
		}
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.texts) != 1 {
		t.Fatalf("synthesized %d times, want 1", len(provider.texts))
	}
	if provider.texts[0] != "Ada selembar 5000 rupiah" {
		t.Fatalf("synthesized %q, markdown should be stripped", provider.texts[0])
	}
	if _, err := os.Stat(filepath.Join(dir, "tts-1.mp3")); !os.IsNotExist(err) {
		t.Fatalf("temporary audio should be deleted once cached")
	}
}
