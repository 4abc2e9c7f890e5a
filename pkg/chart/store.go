package chart

import (
	"sort"
	"sync"
	"time"
)

// Snapshot 图表状态快照
type Snapshot struct {
	Key       string      `json:"key"`
	Result    ChartResult `json:"result"`
	IsLoading bool        `json:"isLoading"`
	Error     string      `json:"error,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Store 图表加载状态存储，只能通过方法修改
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Snapshot
	now     func() time.Time
}

// NewStore 创建状态存储
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*Snapshot),
		now:     time.Now,
	}
}

// Begin 标记开始加载，已在加载中时返回 false。
// 之前的结果保留到新结果写入为止。
func (s *Store) Begin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if ok && entry.IsLoading {
		return false
	}
	if !ok {
		entry = &Snapshot{Key: key}
		s.entries[key] = entry
	}
	entry.IsLoading = true
	entry.Result.IsLoading = true
	entry.Error = ""
	entry.UpdatedAt = s.now()
	return true
}

// Complete 写入加载结果
func (s *Store) Complete(key string, result ChartResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result.IsLoading = false
	s.entries[key] = &Snapshot{
		Key:       key,
		Result:    result,
		UpdatedAt: s.now(),
	}
}

// Fail 记录加载失败
func (s *Store) Fail(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		entry = &Snapshot{Key: key}
		s.entries[key] = entry
	}
	entry.IsLoading = false
	entry.Result.IsLoading = false
	if err != nil {
		entry.Error = err.Error()
	}
	entry.UpdatedAt = s.now()
}

// Get 返回快照副本
func (s *Store) Get(key string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return Snapshot{}, false
	}
	return *entry, true
}

// Delete 删除状态
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Keys 返回排序后的全部键
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
