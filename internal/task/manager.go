// Package task фоновые задачи конвертации загруженных RINEX-файлов.
package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Krimson/gnss-quality/internal/logging"
	"github.com/Krimson/gnss-quality/internal/metrics"
	"github.com/Krimson/gnss-quality/internal/rinex"
)

// Manager управляет задачами конвертации (Application Layer)
type Manager struct {
	store Store
	log   zerolog.Logger

	mu        sync.RWMutex
	notifiers []Notifier
}

// NewManager создает новый менеджер задач
func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		log:   logging.Component("task"),
	}
}

// Subscribe добавляет получателя событий
func (m *Manager) Subscribe(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// Create регистрирует новую задачу в статусе pending
func (m *Manager) Create(ctx context.Context, header *rinex.StationHeader, filename string) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		Filename:  filename,
		Station:   header,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	m.log.Info().Str("task_id", task.ID).Str("file", filename).Msg("Created background task")
	m.publish(task)
	return task, nil
}

// Get возвращает задачу по ID
func (m *Manager) Get(ctx context.Context, id string) (*Task, error) {
	return m.store.Get(ctx, id)
}

// SetStatus меняет статус задачи
func (m *Manager) SetStatus(ctx context.Context, id string, status Status) (*Task, error) {
	return m.update(ctx, id, func(t *Task) {
		t.Status = status
	})
}

// Complete помечает задачу выполненной с путем к результату
func (m *Manager) Complete(ctx context.Context, id, result string) (*Task, error) {
	return m.update(ctx, id, func(t *Task) {
		t.Status = StatusCompleted
		t.Result = result
		t.Error = ""
	})
}

// Fail помечает задачу проваленной
func (m *Manager) Fail(ctx context.Context, id string, cause error) (*Task, error) {
	return m.update(ctx, id, func(t *Task) {
		t.Status = StatusFailed
		if cause != nil {
			t.Error = cause.Error()
		}
	})
}

func (m *Manager) update(ctx context.Context, id string, apply func(*Task)) (*Task, error) {
	task, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if task.Status.Finished() {
		return nil, fmt.Errorf("task %s is already %s", id, task.Status)
	}

	apply(task)
	task.UpdatedAt = time.Now().UTC()

	if err := m.store.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	event := m.log.Info()
	if task.Status == StatusFailed {
		event = m.log.Warn().Str("error", task.Error)
	}
	event.Str("task_id", id).Str("status", string(task.Status)).Msg("Task status changed")

	m.publish(task)
	return task, nil
}

// Wait ждет завершения задачи, опрашивая хранилище с интервалом interval.
// Для проваленной задачи возвращает ErrTaskFailed.
func (m *Manager) Wait(ctx context.Context, id string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := m.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		switch task.Status {
		case StatusCompleted:
			return task, nil
		case StatusFailed:
			return task, fmt.Errorf("%w: %s", ErrTaskFailed, task.Error)
		}

		m.log.Debug().Str("task_id", id).Str("status", string(task.Status)).Msg("Waiting for task")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) publish(task *Task) {
	metrics.RecordTaskStatus(string(task.Status))

	m.mu.RLock()
	defer m.mu.RUnlock()

	event := Event{TaskID: task.ID, Status: task.Status, Error: task.Error}
	for _, n := range m.notifiers {
		n.Notify(event)
	}
}
