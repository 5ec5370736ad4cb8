package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskType 任务类型
type TaskType string

// TaskStatus 任务当前状态
type TaskStatus string

// TaskExecutor 任务执行函数
type TaskExecutor func(t *Task) error

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusComplete TaskStatus = "complete"
	TaskStatusFailed   TaskStatus = "failed"
)

var (
	ErrNotRegistered = errors.New("task type is not registered")
	ErrQueueFull     = errors.New("task queue is full")
	ErrStopped       = errors.New("task manager is stopped")
)

// TaskRegistry 任务类型到执行函数的映射，每个 TaskManager 持有一份
type TaskRegistry struct {
	executors map[TaskType]TaskExecutor
	mu        sync.RWMutex
}

func newTaskRegistry() *TaskRegistry {
	return &TaskRegistry{executors: make(map[TaskType]TaskExecutor)}
}

func (r *TaskRegistry) register(taskType TaskType, executor TaskExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[taskType] = executor
}

func (r *TaskRegistry) get(taskType TaskType) (TaskExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	executor, exists := r.executors[taskType]
	return executor, exists
}

func (r *TaskRegistry) types() []TaskType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]TaskType, 0, len(r.executors))
	for taskType := range r.executors {
		types = append(types, taskType)
	}
	return types
}

// Task 一个异步任务及其回调
type Task struct {
	ID        string
	Type      TaskType
	Params    interface{}
	Result    interface{}
	Callback  TaskCallback
	CreatedAt time.Time
	Context   context.Context

	mu        sync.Mutex
	status    TaskStatus
	err       error
	updatedAt time.Time
	finish    sync.Once
}

func NewTask(ctx context.Context, taskType TaskType, params interface{}) (task *Task, id string) {
	if ctx == nil {
		ctx = context.Background()
	}
	id = uuid.New().String()
	return &Task{
		ID:        id,
		Type:      taskType,
		Params:    params,
		CreatedAt: time.Now(),
		Context:   ctx,
		status:    TaskStatusPending,
	}, id
}

// Status 返回任务状态
func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Err 返回任务失败原因
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) setRunning() {
	t.mu.Lock()
	t.status = TaskStatusRunning
	t.updatedAt = time.Now()
	t.mu.Unlock()
}

// complete 记录最终结果并触发回调，多次调用只有第一次生效
func (t *Task) complete(err error) {
	t.finish.Do(func() {
		t.mu.Lock()
		t.err = err
		t.updatedAt = time.Now()
		if err != nil {
			t.status = TaskStatusFailed
		} else {
			t.status = TaskStatusComplete
		}
		t.mu.Unlock()

		if t.Callback == nil {
			return
		}
		if err != nil {
			t.Callback.OnError(err)
		} else {
			t.Callback.OnComplete(t.Result)
		}
	})
}

// Execute 使用给定的执行函数运行任务并回调结果
func (t *Task) Execute(executor TaskExecutor) {
	defer func() {
		if r := recover(); r != nil {
			t.complete(fmt.Errorf("task panicked: %v", r))
		}
	}()

	if err := t.Context.Err(); err != nil {
		t.complete(err)
		return
	}

	t.setRunning()
	err := executor(t)
	if err != nil && t.Context.Err() != nil {
		// 执行函数因取消或超时失败时，以上下文错误结束
		err = t.Context.Err()
	}
	t.complete(err)
}

// TaskCallback 任务完成回调
type TaskCallback interface {
	OnComplete(result interface{})
	OnError(err error)
}

// WorkerStatus 工作者状态
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// ResourceConfig 任务执行资源限制
type ResourceConfig struct {
	MaxWorkers  int
	QueueSize   int
	TaskTimeout time.Duration
}
