package task

import (
	"context"
	"time"
)

// Store хранилище задач
type Store interface {
	Save(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// Notifier получает события о смене статуса задач
type Notifier interface {
	Notify(event Event)
}

func taskKey(id string) string {
	return "task:" + id
}

func expired(t *Task, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(t.UpdatedAt) > ttl
}
