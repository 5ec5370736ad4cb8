package task

import (
	"fmt"
)

// TaskManager 管理异步任务的注册与执行
type TaskManager struct {
	registry   *TaskRegistry
	workerPool *WorkerPool
}

// NewTaskManager 创建任务管理器
func NewTaskManager(config ResourceConfig) *TaskManager {
	registry := newTaskRegistry()
	return &TaskManager{
		registry:   registry,
		workerPool: NewWorkerPool(config, registry),
	}
}

// RegisterExecutor 注册任务类型的执行函数
func (tm *TaskManager) RegisterExecutor(taskType TaskType, executor TaskExecutor) {
	tm.registry.register(taskType, executor)
}

// RegisteredTypes 返回已注册的任务类型
func (tm *TaskManager) RegisteredTypes() []TaskType {
	return tm.registry.types()
}

// Start 启动工作池
func (tm *TaskManager) Start() {
	tm.workerPool.Start()
}

// Stop 停止工作池
func (tm *TaskManager) Stop() {
	tm.workerPool.Stop()
}

// SubmitTask 提交任务立即执行
func (tm *TaskManager) SubmitTask(task *Task) error {
	if _, exists := tm.registry.get(task.Type); !exists {
		return fmt.Errorf("%w: %v", ErrNotRegistered, task.Type)
	}
	return tm.workerPool.Submit(task)
}

// Busy 正在执行的任务数
func (tm *TaskManager) Busy() int {
	return tm.workerPool.Busy()
}
