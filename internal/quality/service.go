// Package quality сервис оценки качества RINEX-наблюдений: загрузка файла,
// фоновая конвертация и подсчет пропусков по спутникам.
package quality

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Krimson/gnss-quality/internal/archive"
	"github.com/Krimson/gnss-quality/internal/config"
	"github.com/Krimson/gnss-quality/internal/holes"
	"github.com/Krimson/gnss-quality/internal/logging"
	"github.com/Krimson/gnss-quality/internal/metrics"
	"github.com/Krimson/gnss-quality/internal/rinex"
	"github.com/Krimson/gnss-quality/internal/satellite"
	"github.com/Krimson/gnss-quality/internal/storage"
	"github.com/Krimson/gnss-quality/internal/task"
)

var satelliteIDRe = regexp.MustCompile(`^[A-Za-z][0-9]{1,3}$`)

// Converter превращает RINEX-файл в zip с суточными файлами спутников
type Converter interface {
	Convert(ctx context.Context, rinexPath string, header *rinex.StationHeader, workDir string) (string, error)
}

// Service бизнес-логика сервиса (Application Layer)
type Service struct {
	cfg       config.QualityConfig
	tasks     *task.Manager
	converter Converter
	reports   storage.Repository
	log       zerolog.Logger

	// ctx фоновых конвертаций, отменяется в Shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService создает сервис
func NewService(cfg config.QualityConfig, tasks *task.Manager, converter Converter, reports storage.Repository) *Service {
	if reports == nil {
		reports = storage.NopRepository{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:       cfg,
		tasks:     tasks,
		converter: converter,
		reports:   reports,
		log:       logging.Component("quality"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Shutdown отменяет фоновые конвертации и ждет их завершения
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Upload сохраняет загруженный RINEX (или zip с одним файлом), разбирает заголовок,
// создает задачу и запускает фоновую конвертацию.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (*UploadResult, error) {
	path, err := archive.ExtractSingle(data, filepath.Base(filename), filepath.Join(s.cfg.BasePath, "unzipped_files"))
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	header, err := readHeader(path)
	if err != nil {
		return nil, err
	}
	if header.SamplingInterval <= 0 || header.FirstObservation.IsZero() || header.MarkerName == "" {
		return nil, fmt.Errorf("%w: INTERVAL, TIME OF FIRST OBS and MARKER NAME are required", ErrIncompleteHeader)
	}

	t, err := s.tasks.Create(ctx, header, filepath.Base(path))
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.process(t.ID, path, header)

	return &UploadResult{
		TaskID:    t.ID,
		GraphData: GraphData(header.Signals),
	}, nil
}

func (s *Service) process(taskID, path string, header *rinex.StationHeader) {
	defer s.wg.Done()

	// статусы пишем даже после отмены конвертации
	bg := context.WithoutCancel(s.ctx)
	log := s.log.With().Str("task_id", taskID).Logger()

	if _, err := s.tasks.SetStatus(bg, taskID, task.StatusProcessing); err != nil {
		log.Error().Err(err).Msg("Failed to mark task as processing")
		return
	}

	result, err := s.converter.Convert(s.ctx, path, header, s.cfg.BasePath)
	if err != nil {
		log.Error().Err(err).Msg("Conversion failed")
		if _, ferr := s.tasks.Fail(bg, taskID, err); ferr != nil {
			log.Error().Err(ferr).Msg("Failed to mark task as failed")
		}
		return
	}

	if _, err := s.tasks.Complete(bg, taskID, result); err != nil {
		log.Error().Err(err).Msg("Failed to mark task as completed")
	}
}

func readHeader(path string) (*rinex.StationHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rinex file: %w", err)
	}
	defer f.Close()

	return rinex.ReadHeader(f)
}

// GraphData начальные данные графика: все сигналы каждой системы помечены как полные
func GraphData(signals map[string][]string) []GraphSeries {
	keys := make([]string, 0, len(signals))
	for key := range signals {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	graph := make([]GraphSeries, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		series := GraphSeries{
			ID:   strings.ToUpper(key[:1]),
			Data: make([]GraphPoint, 0, len(signals[key])),
		}
		for _, code := range signals[key] {
			series.Data = append(series.Data, GraphPoint{X: code, Y: CompleteMark})
		}
		graph = append(graph, series)
	}
	return graph
}

// FindHoles ждет завершения конвертации и считает пропуски для каждого спутника
func (s *Service) FindHoles(ctx context.Context, taskID string, periodMinutes int) ([]SatelliteHoles, error) {
	t, err := s.tasks.Wait(ctx, taskID, s.cfg.WaitInterval)
	if err != nil {
		return nil, err
	}
	header := t.Station

	params := holes.Params{
		PeriodMinutes:   periodMinutes,
		TimestepSeconds: header.SamplingInterval,
		ElevationMask:   s.cfg.ElevationMask,
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	files, err := archive.ExtractAll(t.Result, s.satelliteDir(header))
	if err != nil {
		return nil, fmt.Errorf("failed to extract satellite files: %w", err)
	}
	sort.Strings(files)

	log := s.log.With().Str("task_id", taskID).Int("period", periodMinutes).Logger()
	log.Debug().Int("files", len(files)).Msg("Counting holes")

	results := make([]SatelliteHoles, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())

	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.countFile(gctx, file, header, params)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	log.Info().Int("satellites", len(results)).Msg("Holes counted")
	return results, nil
}

func (s *Service) countFile(ctx context.Context, path string, header *rinex.StationHeader, params holes.Params) (SatelliteHoles, error) {
	obs, err := satellite.LoadFile(path)
	if err != nil {
		metrics.RecordSatellite("unknown", "error", 0, 0, nil)
		return SatelliteHoles{}, err
	}

	id := obs.Satellite
	if id == "" {
		id = satelliteFromFilename(obs.Filename)
	}

	start := time.Now()
	cleaned := satellite.Normalize(obs, params.ElevationMask)
	result, err := holes.Count(cleaned, params)
	if err != nil {
		return SatelliteHoles{}, err
	}

	gaps := 0
	out := SatelliteHoles{ID: id, Data: make([]SignalHoles, 0, len(result.Signals))}
	for _, sig := range result.Signals {
		out.Data = append(out.Data, SignalHoles{X: sig, Y: result.Holes[sig]})
		gaps += result.GapEpochs(sig)
	}

	status := "ok"
	if cleaned.Empty() {
		status = "empty"
	}
	metrics.RecordSatellite(constellation(id), status, time.Since(start), gaps, result.Stats.RuleHits())

	report := &storage.StationReport{
		Station:       strings.ToLower(header.MarkerName),
		Date:          header.FirstObservation,
		Satellite:     id,
		PeriodMinutes: params.PeriodMinutes,
		Signals:       result.Signals,
		Holes:         result.Holes,
		GapEpochs:     gaps,
	}
	if err := s.reports.SaveReport(ctx, report); err != nil {
		s.log.Warn().Err(err).Str("satellite", id).Msg("Failed to save report")
	}

	return out, nil
}

// SatelliteInfo возвращает очищенные ряды наблюдений спутника за день задачи
func (s *Service) SatelliteInfo(ctx context.Context, taskID, sat string) (*SatelliteInfo, error) {
	if !satelliteIDRe.MatchString(sat) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSatellite, sat)
	}

	t, err := s.tasks.Wait(ctx, taskID, s.cfg.WaitInterval)
	if err != nil {
		return nil, err
	}
	header := t.Station

	path := filepath.Join(s.satelliteDir(header), SatelliteFileName(header, sat))
	obs, err := satellite.LoadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSatelliteNotFound, filepath.Base(path))
		}
		return nil, err
	}

	cleaned := satellite.Normalize(obs, s.cfg.ElevationMask)
	if cleaned.Empty() {
		s.log.Debug().Str("satellite", sat).Msg("Satellite file is empty")
		return nil, ErrEmptySatellite
	}

	n := len(cleaned.Epochs)
	info := &SatelliteInfo{
		Tsn:       make([]int, n),
		Seconds:   make([]int, n),
		Elevation: make([]float64, n),
		Signals:   cleaned.Signals(),
		Data:      make([][]float64, len(cleaned.Active)),
		Timestep:  header.SamplingInterval,
	}
	for j := range info.Data {
		info.Data[j] = make([]float64, n)
	}
	for i, e := range cleaned.Epochs {
		info.Tsn[i] = e.Seq
		info.Seconds[i] = e.Seconds
		info.Elevation[i] = e.Elevation
		for j, v := range e.Signals {
			if j < len(info.Data) {
				info.Data[j][i] = v
			}
		}
	}
	return info, nil
}

// SatelliteFileName имя суточного файла спутника: {marker}_{sat}_{yday}_{yy}.dat
func SatelliteFileName(header *rinex.StationHeader, sat string) string {
	return fmt.Sprintf("%s_%s_%03d_%02d.dat",
		strings.ToLower(header.MarkerName), sat, header.DayOfYear(), header.Year()%100)
}

func (s *Service) satelliteDir(header *rinex.StationHeader) string {
	return filepath.Join(s.cfg.BasePath, "satellite", strconv.Itoa(header.Year()), fmt.Sprintf("%03d", header.DayOfYear()))
}

func (s *Service) workers() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return 1
}

// satelliteFromFilename достает спутник из имени novm_G05_075_24.dat
func satelliteFromFilename(name string) string {
	parts := strings.Split(strings.TrimSuffix(name, filepath.Ext(name)), "_")
	if len(parts) >= 2 {
		return parts[1]
	}
	return name
}

func constellation(id string) string {
	if id == "" {
		return "unknown"
	}
	return strings.ToUpper(id[:1])
}
