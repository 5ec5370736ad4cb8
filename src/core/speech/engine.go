package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"rupiah-scanner/src/core/providers/tts"
	"rupiah-scanner/src/core/utils"
)

// State 语音引擎状态
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateFailed        State = "failed"
	StateShutdown      State = "shutdown"
)

var (
	// ErrLangNotSupported 合成器没有该语言区域的音色
	ErrLangNotSupported = errors.New("language not supported")
	// ErrInitFailed 引擎初始化失败后不再朗读
	ErrInitFailed = errors.New("text to speech initialization failed")
	// ErrShutdown 引擎已关闭
	ErrShutdown = errors.New("text to speech engine is shut down")
)

// Player 播放一段已合成的音频，ctx 取消时应尽快返回
type Player interface {
	Play(ctx context.Context, text string, audioPath string) error
}

// Engine 固定语言区域的朗读引擎；新的朗读会打断正在合成或播放的上一条
type Engine struct {
	provider    tts.Provider
	player      Player
	locale      string
	deleteAudio bool
	cache       *tts.AudioCache
	logger      *utils.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
	playMu     sync.Mutex

	mu       sync.Mutex
	state    State
	pending  *string
	cancel   context.CancelFunc
	current  uint64
	speaking bool
}

// NewEngine 创建朗读引擎，需调用 Init 后才会真正出声
func NewEngine(provider tts.Provider, player Player, locale string, deleteAudio bool, logger *utils.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		provider:    provider,
		player:      player,
		locale:      locale,
		deleteAudio: deleteAudio,
		logger:      logger,
		rootCtx:     ctx,
		rootCancel:  cancel,
		state:       StateUninitialized,
	}
}

// SetCache 启用合成结果缓存，需在 Init 之前调用
func (e *Engine) SetCache(cache *tts.AudioCache) {
	e.cache = cache
}

// Init 异步初始化合成器，结束后回调 onInit；只有第一次调用生效
func (e *Engine) Init(onInit func(err error)) {
	e.mu.Lock()
	if e.state != StateUninitialized {
		e.mu.Unlock()
		return
	}
	e.state = StateInitializing
	e.mu.Unlock()

	go func() {
		err := e.provider.Initialize()
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrInitFailed, err)
		}

		e.mu.Lock()
		if e.state == StateShutdown {
			e.mu.Unlock()
			if onInit != nil {
				onInit(ErrShutdown)
			}
			return
		}
		var flushErr error
		if err != nil {
			e.state = StateFailed
			if e.pending != nil {
				e.logger.Warn("语音引擎初始化失败，丢弃待朗读文本")
			}
			e.pending = nil
		} else {
			e.state = StateReady
			if pending := e.pending; pending != nil {
				e.pending = nil
				flushErr = e.speakLocked(*pending)
			}
		}
		e.mu.Unlock()

		if err != nil {
			e.logger.Error(fmt.Sprintf("语音引擎初始化失败: %v", err))
		} else {
			e.logger.Info("语音引擎已就绪", map[string]interface{}{"locale": e.locale})
		}
		if flushErr != nil {
			e.logger.Warn(fmt.Sprintf("朗读缓存文本失败: %v", flushErr))
		}

		if onInit != nil {
			onInit(err)
		}
	}()
}

// Speak 朗读文本。就绪前只保留最新的一条，就绪后立即播放并打断之前的朗读
func (e *Engine) Speak(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateUninitialized, StateInitializing:
		e.pending = &text
		e.logger.Debug("语音引擎未就绪，缓存待朗读文本")
		return nil
	case StateFailed:
		e.logger.Warn("语音引擎初始化失败，忽略朗读请求")
		return ErrInitFailed
	case StateShutdown:
		return ErrShutdown
	}
	return e.speakLocked(text)
}

func (e *Engine) speakLocked(text string) error {
	voice, ok := e.provider.VoiceFor(e.locale)
	if !ok {
		e.logger.Warn(fmt.Sprintf("语音引擎不支持语言区域 %s", e.locale))
		return fmt.Errorf("%w: %s", ErrLangNotSupported, e.locale)
	}

	e.flushLocked()
	e.current++
	id := e.current
	ctx, cancel := context.WithCancel(e.rootCtx)
	e.cancel = cancel
	e.speaking = true

	e.wg.Add(1)
	go e.utter(ctx, id, voice, text)
	return nil
}

func (e *Engine) utter(ctx context.Context, id uint64, voice, text string) {
	defer e.wg.Done()
	defer e.finish(id)

	if err := e.provider.SetVoice(voice); err != nil {
		e.logger.Error(fmt.Sprintf("设置音色失败: %v", err))
		return
	}

	audioPath, err := e.synthesize(voice, text)
	if err != nil {
		e.logger.Error(fmt.Sprintf("语音合成失败: %v", err))
		return
	}
	if e.deleteAudio && !e.cachedPath(audioPath) {
		defer os.Remove(audioPath)
	}
	if ctx.Err() != nil {
		// 合成期间已被新的朗读打断
		return
	}

	e.playMu.Lock()
	defer e.playMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if err := e.player.Play(ctx, text, audioPath); err != nil && ctx.Err() == nil {
		e.logger.Error(fmt.Sprintf("播放语音失败: %v", err))
	}
}

// synthesize 优先使用缓存；合成成功后写入缓存，缓存失败只记录日志
func (e *Engine) synthesize(voice, text string) (string, error) {
	if e.cache != nil {
		if path := e.cache.Find(voice, text); path != "" {
			e.logger.Debug(fmt.Sprintf("命中语音缓存: %s", path))
			return path, nil
		}
	}

	audioPath, err := e.provider.ToTTS(utils.SpeechText(text))
	if err != nil {
		return "", err
	}
	if e.cache == nil {
		return audioPath, nil
	}

	cached, err := e.cache.Save(voice, text, audioPath)
	if err != nil {
		e.logger.Warn(fmt.Sprintf("保存语音缓存失败: %v", err))
		return audioPath, nil
	}
	if e.deleteAudio {
		os.Remove(audioPath)
	}
	return cached, nil
}

func (e *Engine) cachedPath(path string) bool {
	return e.cache != nil && e.cache.IsCached(path)
}

func (e *Engine) finish(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == id {
		e.speaking = false
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
	}
}

func (e *Engine) flushLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.speaking = false
}

// Stop 打断当前朗读并清空缓存
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = nil
	e.flushLocked()
}

// Shutdown 停止朗读并释放合成器，之后的朗读请求返回 ErrShutdown
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.state == StateShutdown {
		e.mu.Unlock()
		return
	}
	e.state = StateShutdown
	e.pending = nil
	e.flushLocked()
	e.mu.Unlock()

	e.rootCancel()
	e.wg.Wait()

	if err := e.provider.Cleanup(); err != nil {
		e.logger.Warn(fmt.Sprintf("清理语音合成器失败: %v", err))
	}
}

// State 返回引擎状态
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Speaking 是否正在合成或播放
func (e *Engine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}
