package store

import "fmt"

// NotFoundError 操作目标闹钟不存在，且缺失属于调用方错误（仅 Update 使用）
// Delete/Snooze/Dismiss 对缺失 id 容忍为空操作，不走此错误
type NotFoundError struct {
	AlarmID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("alarm not found: %s", e.AlarmID)
}

// StorageError 持久化 I/O 失败，始终向调用方传播，核心不做内部重试
type StorageError struct {
	Op  string // "load" 或 "save"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
