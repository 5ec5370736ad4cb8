package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// RequestState 拍照请求状态
type RequestState string

const (
	RequestPending   RequestState = "pending"
	RequestSucceeded RequestState = "succeeded"
	RequestFailed    RequestState = "failed"
)

// CaptureRequest 一次用户发起的拍照
type CaptureRequest struct {
	Path  string
	State RequestState
}

// 流程阶段：进入显示阶段后结果不可撤回
const (
	phaseRunning int32 = iota
	phaseCommitted
	phaseAborted
)

// Cycle 从点击到显示结果（或报告失败）的一次完整流程
type Cycle struct {
	ID        string
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	phase  atomic.Int32

	mu      sync.Mutex
	request *CaptureRequest
	text    string
	err     error
}

func newCycle(parent context.Context, timeout time.Duration) *Cycle {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return &Cycle{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Done 流程结束时关闭
func (c *Cycle) Done() <-chan struct{} {
	return c.done
}

// Result 流程结束后返回识别文本或失败原因
func (c *Cycle) Result() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, c.err
}

// Request 本次流程的拍照请求，拍照开始前为nil
func (c *Cycle) Request() *CaptureRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.request == nil {
		return nil
	}
	request := *c.request
	return &request
}

// Wait 等待流程结束或 ctx 取消
func (c *Cycle) Wait(ctx context.Context) (string, error) {
	select {
	case <-c.done:
		return c.Result()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Cancel 取消流程，结果为 context.Canceled；识别结果已开始显示时不生效并返回false
func (c *Cycle) Cancel() bool {
	if c.phase.CompareAndSwap(phaseRunning, phaseAborted) || c.phase.Load() == phaseAborted {
		c.cancel()
		return true
	}
	return false
}

// commit 进入显示阶段，之后的取消和超时都被忽略；流程已取消或超时时返回false
func (c *Cycle) commit() bool {
	if c.ctx.Err() != nil {
		c.phase.CompareAndSwap(phaseRunning, phaseAborted)
		return false
	}
	return c.phase.CompareAndSwap(phaseRunning, phaseCommitted)
}

// Committed 识别结果是否已开始显示
func (c *Cycle) Committed() bool {
	return c.phase.Load() == phaseCommitted
}

func (c *Cycle) setRequest(request *CaptureRequest) {
	c.mu.Lock()
	c.request = request
	c.mu.Unlock()
}

func (c *Cycle) setRequestState(state RequestState) {
	c.mu.Lock()
	if c.request != nil {
		c.request.State = state
	}
	c.mu.Unlock()
}

func (c *Cycle) complete(text string, err error) {
	c.mu.Lock()
	c.text, c.err = text, err
	c.mu.Unlock()
	c.cancel()
	close(c.done)
}
