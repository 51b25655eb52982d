// Package logging глобальный zerolog-логгер сервиса.
//
// Консольный вывод настраивается форматом (json или console), дополнительно
// логи можно писать в файл, из которого периодически удаляются старые записи.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config настройки логирования
type Config struct {
	// Level trace, debug, info, warn, error
	Level string
	// Format json или console
	Format string
	// File путь к файлу логов, пустая строка отключает запись в файл
	File string
	// RetentionDays сколько дней хранить записи в файле
	RetentionDays int
	// CleanupInterval период очистки файла
	CleanupInterval time.Duration
	// Output консольный вывод, по умолчанию os.Stderr
	Output io.Writer
}

// DefaultConfig настройки по умолчанию
func DefaultConfig() Config {
	return Config{
		Level:           "info",
		Format:          "json",
		RetentionDays:   30,
		CleanupInterval: 24 * time.Hour,
		Output:          os.Stderr,
	}
}

var (
	log  zerolog.Logger
	file *File
	mu   sync.RWMutex
)

func init() {
	initLogger(DefaultConfig(), nil)
}

// Init настраивает глобальный логгер. При заданном File возвращает открытый файл
// логов, который нужно закрыть при остановке сервиса.
func Init(cfg Config) (*File, error) {
	var f *File
	if cfg.File != "" {
		var err error
		f, err = OpenFile(cfg.File, cfg.RetentionDays)
		if err != nil {
			return nil, err
		}
	}

	mu.Lock()
	defer mu.Unlock()
	initLogger(cfg, f)
	return f, nil
}

func initLogger(cfg Config, f *File) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"

	var console io.Writer = cfg.Output
	if cfg.Format == "console" {
		console = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	output := console
	if f != nil {
		// в файл всегда пишем json, по полю time работает очистка
		output = zerolog.MultiLevelWriter(console, f)
	}

	log = zerolog.New(output).With().Timestamp().Logger()
	file = f
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Logger текущий глобальный логгер
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// SetLogger подменяет глобальный логгер (для тестов)
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// With дочерний логгер с дополнительными полями
func With() zerolog.Context {
	mu.RLock()
	defer mu.RUnlock()
	return log.With()
}

// Component логгер компонента
func Component(name string) zerolog.Logger {
	return With().Str("component", name).Logger()
}

func Debug() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Debug()
}

func Info() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Info()
}

func Warn() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Warn()
}

func Error() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Error()
}

func Fatal() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Fatal()
}
