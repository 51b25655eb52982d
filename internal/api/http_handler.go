// Package api HTTP-интерфейс сервиса качества наблюдений.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Krimson/gnss-quality/internal/archive"
	"github.com/Krimson/gnss-quality/internal/converter"
	"github.com/Krimson/gnss-quality/internal/holes"
	"github.com/Krimson/gnss-quality/internal/logging"
	"github.com/Krimson/gnss-quality/internal/quality"
	"github.com/Krimson/gnss-quality/internal/rinex"
	"github.com/Krimson/gnss-quality/internal/storage"
	"github.com/Krimson/gnss-quality/internal/task"
)

const (
	uploadField        = "rinexFile"
	defaultMaxUploadMB = 200
)

// Options ограничения и значения по умолчанию обработчика
type Options struct {
	MaxUploadMB          int64
	DefaultPeriodMinutes int
	// Reports сохраненные отчеты, nil отключает маршруты /stations
	Reports ReportReader
}

// ReportReader чтение сохраненных отчетов
type ReportReader interface {
	GetReport(ctx context.Context, key storage.ReportKey) (*storage.StationReport, error)
	ListStationDays(ctx context.Context, station string) ([]time.Time, error)
}

// QualityService операции сервиса, доступные через HTTP
type QualityService interface {
	Upload(ctx context.Context, filename string, data []byte) (*quality.UploadResult, error)
	FindHoles(ctx context.Context, taskID string, periodMinutes int) ([]quality.SatelliteHoles, error)
	SatelliteInfo(ctx context.Context, taskID, satellite string) (*quality.SatelliteInfo, error)
}

// TaskReader чтение задач
type TaskReader interface {
	Get(ctx context.Context, id string) (*task.Task, error)
}

// StatusStreamer подписка на статус задачи по WebSocket
type StatusStreamer interface {
	Serve(w http.ResponseWriter, r *http.Request, taskID string, initial *task.Event)
}

// HTTPHandler обрабатывает HTTP запросы (Presentation Layer)
type HTTPHandler struct {
	service   QualityService
	tasks     TaskReader
	streamer  StatusStreamer
	reports   ReportReader
	maxUpload int64
	period    int
	log       zerolog.Logger
}

// NewHTTPHandler создает новый HTTP обработчик
func NewHTTPHandler(service QualityService, tasks TaskReader, streamer StatusStreamer, opts Options) *HTTPHandler {
	if opts.DefaultPeriodMinutes <= 0 {
		opts.DefaultPeriodMinutes = holes.DefaultPeriodMinutes
	}
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = defaultMaxUploadMB
	}
	return &HTTPHandler{
		service:   service,
		tasks:     tasks,
		streamer:  streamer,
		reports:   opts.Reports,
		maxUpload: opts.MaxUploadMB << 20,
		period:    opts.DefaultPeriodMinutes,
		log:       logging.Component("api"),
	}
}

// RegisterRoutes регистрирует маршруты в роутере
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Root).Methods(http.MethodGet)
	router.HandleFunc("/upload_data", h.UploadData).Methods(http.MethodPost)
	router.HandleFunc("/find_holes_in_data", h.FindHoles).Methods(http.MethodPost)
	router.HandleFunc("/fetch_satellite_info", h.FetchSatelliteInfo).Methods(http.MethodPost)
	router.HandleFunc("/tasks/{id}", h.GetTask).Methods(http.MethodGet)
	if h.streamer != nil {
		router.HandleFunc("/ws/tasks/{id}", h.WatchTask).Methods(http.MethodGet)
	}
	if h.reports != nil {
		router.HandleFunc("/stations/{station}/days", h.ListStationDays).Methods(http.MethodGet)
		router.HandleFunc("/stations/{station}/days/{date}/{satellite}", h.GetReport).Methods(http.MethodGet)
	}
}

// Root проверка доступности
// @Summary Проверка доступности
// @Tags Service
// @Produce json
// @Success 200 {object} map[string]string
// @Router / [get]
func (h *HTTPHandler) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UploadData загружает RINEX-файл и запускает конвертацию
// @Summary Загрузить RINEX-файл
// @Description Принимает файл наблюдений (или zip с одним файлом), разбирает заголовок и запускает конвертацию в фоне
// @Tags Quality
// @Accept multipart/form-data
// @Produce json
// @Param rinexFile formData file true "Файл наблюдений RINEX"
// @Success 200 {object} quality.UploadResult
// @Failure 400 {object} map[string]interface{} "Неверный файл"
// @Failure 500 {object} map[string]interface{} "Ошибка обработки"
// @Router /upload_data [post]
func (h *HTTPHandler) UploadData(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, fh, err := r.FormFile(uploadField)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		respondError(w, http.StatusRequestEntityTooLarge, "Uploaded file is too large")
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "File field '"+uploadField+"' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	result, err := h.service.Upload(r.Context(), fh.Filename, data)
	if err != nil {
		h.fail(w, "upload", err)
		return
	}

	h.log.Info().Str("task_id", result.TaskID).Str("filename", fh.Filename).Int("size", len(data)).Msg("RINEX uploaded")
	respondJSON(w, http.StatusOK, result)
}

// FindHoles считает пропуски для всех спутников задачи
// @Summary Подсчитать пропуски
// @Description Ждет окончания конвертации и возвращает число пропущенных эпох по периодам суток
// @Tags Quality
// @Accept x-www-form-urlencoded
// @Produce json
// @Param task_id formData string true "ID задачи"
// @Param data_period formData int false "Длина периода, минуты" default(15)
// @Success 200 {array} quality.SatelliteHoles
// @Failure 400 {object} map[string]interface{} "Неверные параметры"
// @Failure 404 {object} map[string]interface{} "Задача не найдена"
// @Failure 500 {object} map[string]interface{} "Ошибка обработки"
// @Router /find_holes_in_data [post]
func (h *HTTPHandler) FindHoles(w http.ResponseWriter, r *http.Request) {
	taskID := r.FormValue("task_id")
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	period := h.period
	if raw := r.FormValue("data_period"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "data_period must be an integer")
			return
		}
		period = value
	}

	result, err := h.service.FindHoles(r.Context(), taskID, period)
	if err != nil {
		h.fail(w, "find_holes", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// FetchSatelliteInfo возвращает ряды наблюдений спутника
// @Summary Данные спутника
// @Description Очищенные ряды наблюдений спутника. Для спутника без данных возвращается строка "Empty satellite"
// @Tags Quality
// @Accept x-www-form-urlencoded
// @Produce json
// @Param task_id formData string true "ID задачи"
// @Param satellite formData string true "Спутник, например G05"
// @Success 200 {object} quality.SatelliteInfo
// @Failure 400 {object} map[string]interface{} "Неверные параметры"
// @Failure 404 {object} map[string]interface{} "Задача или спутник не найдены"
// @Router /fetch_satellite_info [post]
func (h *HTTPHandler) FetchSatelliteInfo(w http.ResponseWriter, r *http.Request) {
	taskID := r.FormValue("task_id")
	sat := r.FormValue("satellite")
	if taskID == "" || sat == "" {
		respondError(w, http.StatusBadRequest, "task_id and satellite are required")
		return
	}

	info, err := h.service.SatelliteInfo(r.Context(), taskID, sat)
	if errors.Is(err, quality.ErrEmptySatellite) {
		respondJSON(w, http.StatusOK, "Empty satellite")
		return
	}
	if err != nil {
		h.fail(w, "satellite_info", err)
		return
	}

	respondJSON(w, http.StatusOK, info)
}

// GetTask статус задачи
// @Summary Статус задачи
// @Tags Tasks
// @Produce json
// @Param id path string true "ID задачи"
// @Success 200 {object} task.Task
// @Failure 404 {object} map[string]interface{} "Задача не найдена"
// @Router /tasks/{id} [get]
func (h *HTTPHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, "get_task", err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// WatchTask подписка на изменения статуса задачи
// GET /ws/tasks/{id}
func (h *HTTPHandler) WatchTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, "watch_task", err)
		return
	}

	h.streamer.Serve(w, r, t.ID, &task.Event{TaskID: t.ID, Status: t.Status, Error: t.Error})
}

// ListStationDays дни, за которые сохранены отчеты станции
// @Summary Дни станции
// @Tags Reports
// @Produce json
// @Param station path string true "Маркер станции"
// @Success 200 {array} string
// @Router /stations/{station}/days [get]
func (h *HTTPHandler) ListStationDays(w http.ResponseWriter, r *http.Request) {
	station := strings.ToLower(mux.Vars(r)["station"])

	days, err := h.reports.ListStationDays(r.Context(), station)
	if err != nil {
		h.fail(w, "list_station_days", err)
		return
	}

	dates := make([]string, 0, len(days))
	for _, d := range days {
		dates = append(dates, d.Format(time.DateOnly))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"station": station,
		"days":    dates,
	})
}

// GetReport сохраненный отчет о пропусках спутника
// @Summary Отчет о пропусках
// @Tags Reports
// @Produce json
// @Param station path string true "Маркер станции"
// @Param date path string true "Дата YYYY-MM-DD"
// @Param satellite path string true "Спутник"
// @Param data_period query int false "Длина периода, минуты" default(15)
// @Success 200 {object} storage.StationReport
// @Failure 404 {object} map[string]interface{} "Отчет не найден"
// @Router /stations/{station}/days/{date}/{satellite} [get]
func (h *HTTPHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	date, err := time.Parse(time.DateOnly, vars["date"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	period := h.period
	if raw := r.URL.Query().Get("data_period"); raw != "" {
		if period, err = strconv.Atoi(raw); err != nil {
			respondError(w, http.StatusBadRequest, "data_period must be an integer")
			return
		}
	}

	report, err := h.reports.GetReport(r.Context(), storage.ReportKey{
		Station:       strings.ToLower(vars["station"]),
		Date:          date,
		Satellite:     vars["satellite"],
		PeriodMinutes: period,
	})
	if err != nil {
		h.fail(w, "get_report", err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// fail отображает ошибку сервиса в HTTP-статус
func (h *HTTPHandler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	event := h.log.Warn()
	if status >= http.StatusInternalServerError {
		event = h.log.Error()
	}
	event.Err(err).Str("op", op).Int("status", status).Msg("Request failed")

	respondError(w, status, err.Error())
}

func statusFor(err error) int {
	var (
		headerErr *rinex.HeaderParseError
		maxErr    *http.MaxBytesError
	)

	switch {
	case errors.As(err, &headerErr),
		errors.Is(err, quality.ErrIncompleteHeader),
		errors.Is(err, quality.ErrInvalidSatellite),
		errors.Is(err, holes.ErrInvalidParams),
		errors.Is(err, archive.ErrEmptyArchive),
		errors.Is(err, archive.ErrMultipleFiles),
		errors.Is(err, archive.ErrUnsafePath):
		return http.StatusBadRequest
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, quality.ErrSatelliteNotFound),
		errors.Is(err, storage.ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, converter.ErrConverterUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// ===== Утилиты =====

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":  message,
		"status": status,
	})
}
