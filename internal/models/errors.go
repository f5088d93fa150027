package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("not found")
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotActive 会话不是 active 状态
	ErrSessionNotActive = errors.New("session is not active")
	// ErrActiveSessionExists 用户已有 active 会话
	ErrActiveSessionExists = errors.New("user already has an active session")
)

// ValidationError 在任何副作用发生前拒绝的帧
type ValidationError struct {
	SessionID int64
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("session %d rejected: %v", e.SessionID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
