package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrDispatcherStopped UI循环已停止
var ErrDispatcherStopped = errors.New("ui dispatcher is stopped")

// Dispatcher 屏幕的UI循环，所有屏幕状态只在这个goroutine中修改
type Dispatcher struct {
	queue    chan func()
	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

func NewDispatcher(size int) *Dispatcher {
	if size <= 0 {
		size = 64
	}
	return &Dispatcher{
		queue:   make(chan func(), size),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run 执行UI循环直到 ctx 取消或 Stop 被调用
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			d.Stop()
			return
		case <-d.stopped:
			return
		case fn := <-d.queue:
			d.invoke(fn)
		}
	}
}

func (d *Dispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("UI任务 panic: %v\n", r)
		}
	}()
	fn()
}

// Post 把 fn 投递到UI循环，不等待执行
func (d *Dispatcher) Post(fn func()) error {
	select {
	case <-d.stopped:
		return ErrDispatcherStopped
	default:
	}

	select {
	case d.queue <- fn:
		return nil
	case <-d.stopped:
		return ErrDispatcherStopped
	}
}

// Call 在UI循环中执行 fn 并等待其返回
func (d *Dispatcher) Call(fn func() error) error {
	result := make(chan error, 1)
	err := d.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("ui task panicked: %v", r)
			}
		}()
		result <- fn()
	})
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-d.stopped:
		// 停止前已入队的任务可能不会再执行
		select {
		case err := <-result:
			return err
		default:
			return ErrDispatcherStopped
		}
	}
}

// Stop 停止UI循环
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopped)
	})
}

// Done UI循环退出后关闭
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}
