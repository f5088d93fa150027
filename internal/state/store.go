package state

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMiss 表示键不存在或已过期
var ErrMiss = errors.New("state miss")

// Store 按键隔离、支持 TTL 的临时状态存储（连击起点、冷却标记）
// 所有实现必须保证单键操作的原子性；SetIfAbsent 是冷却标记的 check-and-set。
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// SetWithTTL ttl <= 0 表示不过期
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// SetIfAbsent 仅当键不存在时写入，返回是否写入成功
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// Touch 刷新已存在键的 TTL，返回键是否存在；ttl <= 0 时不做修改
	Touch(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Keys 会话状态键构造器
type Keys struct {
	Prefix string // 如 "session:"
}

// StreakKey 连击起点键：session:{id}:slouch_start
func (k Keys) StreakKey(sessionID int64) string {
	return fmt.Sprintf("%s%d:slouch_start", k.Prefix, sessionID)
}

// CooldownKey 冷却标记键：session:{id}:alert_cooldown
func (k Keys) CooldownKey(sessionID int64) string {
	return fmt.Sprintf("%s%d:alert_cooldown", k.Prefix, sessionID)
}
