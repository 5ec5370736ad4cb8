package permission

import (
	"context"
	"fmt"
	"sync"

	"rupiah-scanner/src/core/utils"
)

// Camera 相机访问权限
const Camera = "camera"

// State 权限门状态
type State string

const (
	StateUnknown    State = "unknown"
	StateRequesting State = "requesting"
	StateGranted    State = "granted"
	StateDenied     State = "denied"
)

// Prompter 向用户发起授权询问，answer 只能被调用一次
type Prompter interface {
	Prompt(ctx context.Context, permissions []string, answer func(granted bool))
}

// PrompterFunc 函数形式的 Prompter
type PrompterFunc func(ctx context.Context, permissions []string, answer func(granted bool))

func (f PrompterFunc) Prompt(ctx context.Context, permissions []string, answer func(granted bool)) {
	f(ctx, permissions, answer)
}

// AutoGrant 无人值守部署使用的自动授权
var AutoGrant Prompter = PrompterFunc(func(ctx context.Context, permissions []string, answer func(granted bool)) {
	answer(true)
})

// Gate 启动时检查必需权限，缺失时发起一次异步授权请求
type Gate struct {
	store    Store
	prompter Prompter
	logger   *utils.Logger
	required []string

	mu    sync.Mutex
	state State
}

func NewGate(store Store, prompter Prompter, logger *utils.Logger) *Gate {
	return &Gate{
		store:    store,
		prompter: prompter,
		logger:   logger,
		required: []string{Camera},
		state:    StateUnknown,
	}
}

// HasRequiredPermissions 检查所有必需权限是否已授予
func (g *Gate) HasRequiredPermissions(ctx context.Context) bool {
	for _, permission := range g.required {
		granted, err := g.store.Granted(ctx, permission)
		if err != nil {
			g.logger.Warn(fmt.Sprintf("读取权限 %s 失败: %v", permission, err))
			return false
		}
		if !granted {
			return false
		}
	}

	g.mu.Lock()
	g.state = StateGranted
	g.mu.Unlock()
	return true
}

// RequestPermissions 异步请求必需权限，结果通过 onResult 回调；拒绝后本实例不再重复询问
func (g *Gate) RequestPermissions(ctx context.Context, onResult func(granted bool)) {
	g.mu.Lock()
	switch g.state {
	case StateDenied:
		g.mu.Unlock()
		g.logger.Info("相机权限已被拒绝，不再重复请求")
		onResult(false)
		return
	case StateRequesting:
		g.mu.Unlock()
		g.logger.Debug("权限请求进行中，忽略重复请求")
		return
	}
	g.state = StateRequesting
	g.mu.Unlock()

	g.logger.Info(fmt.Sprintf("请求权限: %v", g.required))

	var once sync.Once
	g.prompter.Prompt(ctx, g.required, func(granted bool) {
		once.Do(func() {
			g.resolve(ctx, granted, onResult)
		})
	})
}

func (g *Gate) resolve(ctx context.Context, granted bool, onResult func(granted bool)) {
	for _, permission := range g.required {
		if err := g.store.Save(ctx, permission, granted); err != nil {
			g.logger.Warn(fmt.Sprintf("保存权限 %s 失败: %v", permission, err))
		}
	}

	g.mu.Lock()
	if granted {
		g.state = StateGranted
	} else {
		g.state = StateDenied
	}
	g.mu.Unlock()

	if granted {
		g.logger.Info("相机权限已授予")
	} else {
		g.logger.Warn("相机权限被拒绝，相机不会启动")
	}
	onResult(granted)
}

// State 返回当前状态
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
