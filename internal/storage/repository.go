// Package storage хранение рассчитанных отчетов о пропусках.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrReportNotFound отчета нет в хранилище
var ErrReportNotFound = errors.New("report not found")

// StationReport пропуски одного спутника за сутки
type StationReport struct {
	Station       string           `json:"station"`
	Date          time.Time        `json:"date"`
	Satellite     string           `json:"satellite"`
	PeriodMinutes int              `json:"period_minutes"`
	Signals       []string         `json:"signals"`
	Holes         map[string][]int `json:"holes"`
	GapEpochs     int              `json:"gap_epochs"`
	CreatedAt     time.Time        `json:"created_at"`
}

// ReportKey ключ отчета
type ReportKey struct {
	Station       string
	Date          time.Time
	Satellite     string
	PeriodMinutes int
}

func (r *StationReport) key() ReportKey {
	return ReportKey{
		Station:       r.Station,
		Date:          dateOnly(r.Date),
		Satellite:     r.Satellite,
		PeriodMinutes: r.PeriodMinutes,
	}
}

// Repository определяет интерфейс хранилища отчетов (Domain Layer)
type Repository interface {
	SaveReport(ctx context.Context, report *StationReport) error
	GetReport(ctx context.Context, key ReportKey) (*StationReport, error)
	ListStationDays(ctx context.Context, station string) ([]time.Time, error)
	Close() error
}

// NopRepository ничего не сохраняет, используется при выключенном PostgreSQL
type NopRepository struct{}

func (NopRepository) SaveReport(ctx context.Context, report *StationReport) error { return nil }

func (NopRepository) GetReport(ctx context.Context, key ReportKey) (*StationReport, error) {
	return nil, ErrReportNotFound
}

func (NopRepository) ListStationDays(ctx context.Context, station string) ([]time.Time, error) {
	return nil, nil
}

func (NopRepository) Close() error { return nil }

// MemoryRepository заглушка PostgreSQL для тестов
type MemoryRepository struct {
	mu      sync.RWMutex
	reports map[ReportKey]StationReport
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{reports: make(map[ReportKey]StationReport)}
}

func (m *MemoryRepository) SaveReport(ctx context.Context, report *StationReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.key()] = *report
	return nil
}

func (m *MemoryRepository) GetReport(ctx context.Context, key ReportKey) (*StationReport, error) {
	key.Date = dateOnly(key.Date)

	m.mu.RLock()
	defer m.mu.RUnlock()
	report, ok := m.reports[key]
	if !ok {
		return nil, ErrReportNotFound
	}
	return &report, nil
}

func (m *MemoryRepository) ListStationDays(ctx context.Context, station string) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[time.Time]bool)
	var days []time.Time
	for key := range m.reports {
		if key.Station == station && !seen[key.Date] {
			seen[key.Date] = true
			days = append(days, key.Date)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })
	return days, nil
}

func (m *MemoryRepository) Close() error { return nil }

// Len число сохраненных отчетов
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reports)
}

func dateOnly(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
