package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// MemoryStore хранилище задач в памяти процесса. Используется в тестах и когда Redis недоступен.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string][]byte
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string][]byte),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (m *MemoryStore) Save(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[taskKey(task.ID)] = data
	m.evictLocked()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Task, error) {
	m.mu.RLock()
	data, ok := m.tasks[taskKey(id)]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if expired(&task, m.ttl, m.now()) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return &task, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskKey(id))
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = make(map[string][]byte)
	return nil
}

// Len число хранимых задач
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}

// evictLocked удаляет задачи с истекшим TTL
func (m *MemoryStore) evictLocked() {
	if m.ttl <= 0 {
		return
	}
	now := m.now()
	for key, data := range m.tasks {
		var task Task
		if err := json.Unmarshal(data, &task); err != nil || expired(&task, m.ttl, now) {
			delete(m.tasks, key)
		}
	}
}
