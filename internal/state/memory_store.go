package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 进程内状态存储（单实例部署和测试使用）
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]memoryItem
	now  func() time.Time
}

type memoryItem struct {
	value   string
	expires time.Time // zero = no ttl
}

// NewMemoryStore 创建内存状态存储；now 为 nil 时使用 time.Now
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		data: make(map[string]memoryItem),
		now:  now,
	}
}

// lookup 调用方必须持有锁；过期项在读取时清除
func (m *MemoryStore) lookup(key string) (memoryItem, bool) {
	item, ok := m.data[key]
	if !ok {
		return memoryItem{}, false
	}
	if !item.expires.IsZero() && m.now().After(item.expires) {
		delete(m.data, key)
		return memoryItem{}, false
	}
	return item, true
}

func (m *MemoryStore) item(value string, ttl time.Duration) memoryItem {
	var exp time.Time
	if ttl > 0 {
		exp = m.now().Add(ttl)
	}
	return memoryItem{value: value, expires: exp}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.lookup(key)
	if !ok {
		return "", ErrMiss
	}
	return item.value, nil
}

func (m *MemoryStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = m.item(value, ttl)
	return nil
}

func (m *MemoryStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(key); ok {
		return false, nil
	}
	m.data[key] = m.item(value, ttl)
	return true, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Touch(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.lookup(key)
	if !ok {
		return false, nil
	}
	if ttl > 0 {
		item.expires = m.now().Add(ttl)
		m.data[key] = item
	}
	return true, nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.lookup(key)
	return ok, nil
}
