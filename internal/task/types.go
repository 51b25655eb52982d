package task

import (
	"errors"
	"time"

	"github.com/Krimson/gnss-quality/internal/rinex"
)

// Status статус фоновой конвертации
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Finished задача больше не изменится
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrTaskNotFound задача не найдена или истек срок хранения
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskFailed конвертация завершилась ошибкой
	ErrTaskFailed = errors.New("task processing failed")
)

// Task загруженный RINEX-файл и состояние его конвертации
type Task struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	// Result путь к zip-архиву с файлами спутников
	Result    string               `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
	Filename  string               `json:"filename"`
	Station   *rinex.StationHeader `json:"station,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Event уведомление о смене статуса
type Event struct {
	TaskID string `json:"task_id"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}
