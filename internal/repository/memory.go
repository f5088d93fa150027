package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"posture-monitor/internal/models"
)

// MemoryStore 内存实现（DB 关闭或测试时使用），实现全部存储接口
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	users    map[int64]models.User
	sessions map[int64]models.Session
	logs     map[int64][]models.PostureLogEntry // sessionID -> logs（按写入顺序）
	settings map[int64]models.UserSettings
	alerts   map[int64][]models.Alert
	nextID   int64
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:      now,
		users:    map[int64]models.User{},
		sessions: map[int64]models.Session{},
		logs:     map[int64][]models.PostureLogEntry{},
		settings: map[int64]models.UserSettings{},
		alerts:   map[int64][]models.Alert{},
	}
}

var (
	_ SessionsRepo     = (*MemoryStore)(nil)
	_ PostureLogsRepo  = (*MemoryStore)(nil)
	_ UserSettingsRepo = (*MemoryStore)(nil)
	_ AlertsRepo       = (*MemoryStore)(nil)
	_ UsersRepo        = (*MemoryStore)(nil)
)

// id 调用方持有写锁
func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// --- sessions ---

func (m *MemoryStore) StartSession(_ context.Context, userID int64, at time.Time) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.UserID == userID && s.IsActive() {
			return nil, models.ErrActiveSessionExists
		}
	}
	s := models.Session{
		ID:        m.id(),
		UserID:    userID,
		StartedAt: at,
		Status:    models.SessionActive,
	}
	m.sessions[s.ID] = s
	return &s, nil
}

func (m *MemoryStore) StopSession(_ context.Context, id int64, at time.Time) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	if !s.IsActive() {
		return nil, models.ErrSessionNotActive
	}
	duration := int(at.Sub(s.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}
	ended := at
	s.EndedAt = &ended
	s.TotalDurationSeconds = &duration
	s.Status = models.SessionCompleted
	m.sessions[id] = s
	return &s, nil
}

func (m *MemoryStore) GetSession(_ context.Context, id int64) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return &s, nil
}

func (m *MemoryStore) ListUserSessions(_ context.Context, userID int64, status string, skip, limit int) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := []models.Session{}
	for _, s := range m.sessions {
		if s.UserID != userID {
			continue
		}
		if status != "" && !strings.EqualFold(s.Status, status) {
			continue
		}
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].StartedAt.After(all[j].StartedAt)
	})
	return page(all, skip, limit), nil
}

func (m *MemoryStore) GetActiveSession(_ context.Context, userID int64) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.UserID == userID && s.IsActive() {
			return &s, nil
		}
	}
	return nil, models.ErrNotFound
}

// --- posture logs ---

func (m *MemoryStore) InsertLog(_ context.Context, entry *models.PostureLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.ID = m.id()
	m.logs[entry.SessionID] = append(m.logs[entry.SessionID], *entry)
	return nil
}

// sortedLogs 升序副本，调用方持有读锁
func (m *MemoryStore) sortedLogs(sessionID int64) []models.PostureLogEntry {
	src := m.logs[sessionID]
	out := make([]models.PostureLogEntry, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (m *MemoryStore) ListLogs(_ context.Context, sessionID int64, from, to *time.Time) ([]models.PostureLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.PostureLogEntry{}
	for _, e := range m.sortedLogs(sessionID) {
		if from != nil && e.Timestamp.Before(*from) {
			continue
		}
		if to != nil && e.Timestamp.After(*to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryStore) LatestLog(_ context.Context, sessionID int64) (*models.PostureLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	logs := m.sortedLogs(sessionID)
	if len(logs) == 0 {
		return nil, models.ErrNotFound
	}
	e := logs[len(logs)-1]
	return &e, nil
}

func (m *MemoryStore) History(_ context.Context, sessionID int64, skip, limit int) ([]models.PostureLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	logs := m.sortedLogs(sessionID)
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	return page(logs, skip, limit), nil
}

// --- settings ---

func (m *MemoryStore) GetUserSettings(_ context.Context, userID int64) (*models.UserSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.settings[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) UpsertUserSettings(_ context.Context, settings *models.UserSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings.UpdatedAt = m.now()
	m.settings[settings.UserID] = *settings
	return nil
}

// --- alerts ---

func (m *MemoryStore) InsertAlert(_ context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert.ID = m.id()
	m.alerts[alert.SessionID] = append(m.alerts[alert.SessionID], *alert)
	return nil
}

func (m *MemoryStore) ListAlerts(_ context.Context, sessionID int64) ([]models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Alert, len(m.alerts[sessionID]))
	copy(out, m.alerts[sessionID])
	return out, nil
}

// --- users ---

func (m *MemoryStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrEmailTaken
		}
	}
	user.ID = m.id()
	user.CreatedAt = m.now()
	m.users[user.ID] = *user
	return nil
}

// ListUsers 按 id 升序分页
func (m *MemoryStore) ListUsers(_ context.Context, skip, limit int) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, skip, limit), nil
}

// SeedDefaultUser 写入默认用户（已存在则跳过）
func (m *MemoryStore) SeedDefaultUser() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[models.DefaultUserID]; ok {
		return
	}
	m.users[models.DefaultUserID] = models.User{
		ID:        models.DefaultUserID,
		Email:     models.DefaultUserEmail,
		Name:      models.DefaultUserName,
		CreatedAt: m.now(),
	}
	if m.nextID < models.DefaultUserID {
		m.nextID = models.DefaultUserID
	}
}

func page[T any](all []T, skip, limit int) []T {
	skip, limit = normalizePage(skip, limit)
	if skip > len(all) {
		skip = len(all)
	}
	end := skip + limit
	if end > len(all) {
		end = len(all)
	}
	return all[skip:end]
}
