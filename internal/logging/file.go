package logging

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

const filePerm = 0644

// File файл логов с удалением записей старше RetentionDays
type File struct {
	path      string
	retention time.Duration

	mu sync.Mutex
	f  *os.File
}

// OpenFile открывает файл логов на дозапись
func OpenFile(path string, retentionDays int) (*File, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &File{
		path:      path,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		f:         f,
	}, nil
}

// Write реализует io.Writer
func (l *File) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return 0, os.ErrClosed
	}
	return l.f.Write(p)
}

// Close закрывает файл
func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// Prune удаляет из начала файла записи старше срока хранения.
// Все строки после первой свежей записи сохраняются.
func (l *File) Prune(now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	src, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer src.Close()

	tmpPath := l.path + ".tmp"
	dst, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp log file: %w", err)
	}

	var (
		removed int
		fresh   bool
	)
	cutoff := now.Add(-l.retention)
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	w := bufio.NewWriter(dst)

	for scanner.Scan() {
		line := scanner.Bytes()
		if !fresh {
			if ts, ok := lineTime(line); ok && !ts.Before(cutoff) {
				fresh = true
			}
		}
		if !fresh {
			removed++
			continue
		}
		w.Write(line)
		w.WriteByte('\n')
	}

	if err := scanner.Err(); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to read log file: %w", err)
	}
	if err := w.Flush(); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to write temp log file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp log file: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		return 0, fmt.Errorf("failed to replace log file: %w", err)
	}

	// старый дескриптор указывает на удаленный файл
	if l.f != nil {
		l.f.Close()
		l.f, err = os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
		if err != nil {
			return removed, fmt.Errorf("failed to reopen log file: %w", err)
		}
	}

	return removed, nil
}

// StartCleanup запускает периодическую очистку до отмены контекста
func (l *File) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				removed, err := l.Prune(now)
				if err != nil {
					Error().Err(err).Str("file", l.path).Msg("Log cleanup failed")
					continue
				}
				if removed > 0 {
					Info().Int("removed", removed).Str("file", l.path).Msg("Old log records removed")
				}
			}
		}
	}()
}

func lineTime(line []byte) (time.Time, bool) {
	var rec struct {
		Time string `json:"time"`
	}
	if err := json.Unmarshal(line, &rec); err != nil || rec.Time == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, rec.Time)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
