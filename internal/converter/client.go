// Package converter клиент удаленного сервиса rinex-to-csv, который режет
// RINEX-файл на суточные файлы по спутникам.
package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/Krimson/gnss-quality/internal/archive"
	"github.com/Krimson/gnss-quality/internal/config"
	"github.com/Krimson/gnss-quality/internal/logging"
	"github.com/Krimson/gnss-quality/internal/metrics"
	"github.com/Krimson/gnss-quality/internal/rinex"
)

// Пути сервиса конвертации
const (
	pathUploadRinex = "/upload_rinex"
	pathUploadNav   = "/upload_nav"
	pathRun         = "/run"
	pathResult      = "/get_result"

	formField = "rinex"
)

var (
	// ErrConverterUnavailable сервис конвертации недоступен (разомкнут предохранитель)
	ErrConverterUnavailable = errors.New("converter unavailable")

	// errNotReady результат еще не готов, не считается отказом
	errNotReady = errors.New("result not ready")
)

// StatusError неуспешный HTTP-ответ сервиса
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("converter %s: unexpected status %d", e.Op, e.Code)
}

// Client общий для всех конвертаций: предохранитель и ограничение частоты запросов
type Client struct {
	cfg     config.ConverterConfig
	base    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     zerolog.Logger
}

// New создает клиента сервиса конвертации
func New(cfg config.ConverterConfig) *Client {
	c := &Client{
		cfg:     cfg,
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		log:     logging.Component("converter"),
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "rinex-to-csv",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNotReady) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return c
}

// BreakerState состояние предохранителя
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Session сеанс конвертации. Сервис связывает загруженные файлы и результат через cookie.
type Session struct {
	client *Client
	http   *http.Client
}

// NewSession открывает новый сеанс с отдельным хранилищем cookie
func (c *Client) NewSession() (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &Session{
		client: c,
		http:   &http.Client{Jar: jar},
	}, nil
}

// UploadRinex загружает файл наблюдений
func (s *Session) UploadRinex(ctx context.Context, path string) error {
	return s.upload(ctx, "upload_rinex", pathUploadRinex, path)
}

// UploadNav загружает навигационный файл
func (s *Session) UploadNav(ctx context.Context, path string) error {
	return s.upload(ctx, "upload_nav", pathUploadNav, path)
}

// Run запускает конвертацию загруженных файлов
func (s *Session) Run(ctx context.Context) error {
	_, err := s.do(ctx, "run", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodPost, s.client.base+pathRun, nil)
	})
	return err
}

// FetchResult опрашивает сервис, пока не придет zip с результатом, и сохраняет его в dest
func (s *Session) FetchResult(ctx context.Context, dest string) error {
	interval := s.client.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	for attempt := 1; ; attempt++ {
		body, err := s.do(ctx, "get_result", func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, s.client.base+pathResult, nil)
		})
		switch {
		case err == nil && archive.IsZip(body):
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return fmt.Errorf("failed to create result directory: %w", err)
			}
			if err := os.WriteFile(dest, body, 0644); err != nil {
				return fmt.Errorf("failed to save result: %w", err)
			}
			return nil
		case err == nil, errors.Is(err, errNotReady):
			s.client.log.Debug().Int("attempt", attempt).Msg("Conversion result not ready")
		default:
			return err
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("waiting for conversion result: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func (s *Session) upload(ctx context.Context, op, path, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(file), err)
	}

	_, err = s.do(ctx, op, func() (*http.Request, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile(formField, filepath.Base(file))
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.base+path, &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	})
	return err
}

// do выполняет запрос через ограничитель частоты и предохранитель
func (s *Session) do(ctx context.Context, op string, build func() (*http.Request, error)) ([]byte, error) {
	return s.client.execute(ctx, op, func() ([]byte, error) {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to build %s request: %w", op, err)
		}
		return readResponse(s.http, req, op)
	})
}

func (c *Client) execute(ctx context.Context, op string, fn func() ([]byte, error)) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("converter %s: %w", op, ctxErr)
		}
		// ожидание не укладывается в срок контекста
		return nil, fmt.Errorf("converter %s: %w: %v", op, context.DeadlineExceeded, err)
	}

	body, err := c.breaker.Execute(fn)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordConverterRequest(op, "breaker_open")
		return nil, fmt.Errorf("%w: %v", ErrConverterUnavailable, err)
	case err != nil && !errors.Is(err, errNotReady):
		metrics.RecordConverterRequest(op, "error")
		return nil, err
	}
	metrics.RecordConverterRequest(op, "ok")
	return body, err
}

func readResponse(client *http.Client, req *http.Request, op string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("converter %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("converter %s: failed to read body: %w", op, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && op == "get_result",
		resp.StatusCode == http.StatusAccepted,
		resp.StatusCode == http.StatusTooEarly:
		return nil, errNotReady
	case resp.StatusCode >= http.StatusMultipleChoices:
		return nil, &StatusError{Op: op, Code: resp.StatusCode}
	}
	return body, nil
}

// NavFileName имя суточного навигационного файла
func (c *Client) NavFileName(year, yday int) string {
	return expand(c.cfg.NavNameTemplate, year, yday, "")
}

// NavURL ссылка на навигационный файл в архиве
func (c *Client) NavURL(year, yday int) string {
	return expand(c.cfg.NavURLTemplate, year, yday, c.NavFileName(year, yday))
}

// DownloadNav скачивает и распаковывает навигационный файл в dir
func (c *Client) DownloadNav(ctx context.Context, year, yday int, dir string) (string, error) {
	name := c.NavFileName(year, yday)
	url := c.NavURL(year, yday)

	httpClient := &http.Client{}
	body, err := c.execute(ctx, "download_nav", func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		return readResponse(httpClient, req, "download_nav")
	})
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	gzPath := filepath.Join(dir, name)
	if err := os.WriteFile(gzPath, body, 0644); err != nil {
		return "", fmt.Errorf("failed to save navigation file: %w", err)
	}

	if !strings.HasSuffix(name, ".gz") {
		return gzPath, nil
	}
	return archive.Gunzip(gzPath, dir)
}

// Convert загружает RINEX и навигационный файл, запускает конвертацию и
// сохраняет zip с файлами спутников в workDir. Возвращает путь к архиву.
func (c *Client) Convert(ctx context.Context, rinexPath string, header *rinex.StationHeader, workDir string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()

	year, yday := header.Year(), header.DayOfYear()
	log := c.log.With().Str("file", filepath.Base(rinexPath)).Int("year", year).Int("yday", yday).Logger()

	session, err := c.NewSession()
	if err != nil {
		return "", err
	}

	if err := session.UploadRinex(ctx, rinexPath); err != nil {
		return "", fmt.Errorf("failed to upload rinex: %w", err)
	}

	navDir := filepath.Join(workDir, "downloaded_files", strconv.Itoa(year), fmt.Sprintf("%03d", yday))
	navPath, err := c.DownloadNav(ctx, year, yday, navDir)
	if err != nil {
		return "", fmt.Errorf("failed to download navigation file: %w", err)
	}
	if err := session.UploadNav(ctx, navPath); err != nil {
		return "", fmt.Errorf("failed to upload navigation file: %w", err)
	}

	if err := session.Run(ctx); err != nil {
		return "", fmt.Errorf("failed to start conversion: %w", err)
	}

	dest := filepath.Join(workDir, "results", strings.TrimSuffix(filepath.Base(rinexPath), filepath.Ext(rinexPath))+".zip")
	if err := session.FetchResult(ctx, dest); err != nil {
		return "", fmt.Errorf("failed to fetch conversion result: %w", err)
	}

	metrics.ConverterDuration.Observe(time.Since(start).Seconds())
	log.Info().Dur("elapsed", time.Since(start)).Str("result", dest).Msg("Conversion completed")
	return dest, nil
}

func expand(template string, year, yday int, name string) string {
	return strings.NewReplacer(
		"{year}", strconv.Itoa(year),
		"{yy}", fmt.Sprintf("%02d", year%100),
		"{yday}", fmt.Sprintf("%03d", yday),
		"{name}", name,
	).Replace(template)
}
