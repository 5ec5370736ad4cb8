package task

import (
	"context"
	"fmt"
	"sync"
)

// WorkerPool 固定数量的工作者从同一队列取任务执行
type WorkerPool struct {
	config    ResourceConfig
	registry  *TaskRegistry
	workers   []*Worker
	taskQueue chan *Task
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	stopped   bool
}

// Worker 任务执行者
type Worker struct {
	id     string
	mu     sync.Mutex
	status WorkerStatus
	pool   *WorkerPool
}

// NewWorkerPool 创建工作池
func NewWorkerPool(config ResourceConfig, registry *TaskRegistry) *WorkerPool {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.MaxWorkers * 2
	}
	wp := &WorkerPool{
		config:    config,
		registry:  registry,
		taskQueue: make(chan *Task, config.QueueSize),
		stopChan:  make(chan struct{}),
	}
	wp.workers = make([]*Worker, config.MaxWorkers)
	for i := 0; i < config.MaxWorkers; i++ {
		wp.workers[i] = &Worker{
			id:     fmt.Sprintf("worker-%d", i),
			status: WorkerStatusIdle,
			pool:   wp,
		}
	}
	return wp
}

// Start 启动所有工作者
func (wp *WorkerPool) Start() {
	for _, worker := range wp.workers {
		wp.wg.Add(1)
		go worker.start()
	}
}

// Stop 停止工作池，队列中未执行的任务以 ErrStopped 结束
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.stopChan)
	wp.mu.Unlock()

	wp.wg.Wait()

	for {
		select {
		case task := <-wp.taskQueue:
			task.complete(ErrStopped)
		default:
			return
		}
	}
}

// Submit 非阻塞地提交任务
func (wp *WorkerPool) Submit(task *Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrStopped
	}

	select {
	case wp.taskQueue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Busy 正在执行任务的工作者数量
func (wp *WorkerPool) Busy() int {
	busy := 0
	for _, worker := range wp.workers {
		if worker.Status() == WorkerStatusBusy {
			busy++
		}
	}
	return busy
}

func (w *Worker) start() {
	defer w.pool.wg.Done()
	for {
		select {
		case <-w.pool.stopChan:
			w.setStatus(WorkerStatusStopped)
			return
		case task := <-w.pool.taskQueue:
			w.executeTask(task)
		}
	}
}

// Status 工作者状态
func (w *Worker) Status() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Worker) setStatus(status WorkerStatus) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
}

// executeTask 在超时限制内执行任务；任务只在执行函数返回后结束，同一工作者不会并发执行两个任务
func (w *Worker) executeTask(task *Task) {
	w.setStatus(WorkerStatusBusy)
	defer w.setStatus(WorkerStatusIdle)

	executor, exists := w.pool.registry.get(task.Type)
	if !exists {
		task.complete(fmt.Errorf("%w: %v", ErrNotRegistered, task.Type))
		return
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if w.pool.config.TaskTimeout > 0 {
		ctx, cancel = context.WithTimeout(task.Context, w.pool.config.TaskTimeout)
	} else {
		ctx, cancel = context.WithCancel(task.Context)
	}
	defer cancel()
	task.Context = ctx

	task.Execute(executor)
}
