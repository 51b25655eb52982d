package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS hole_reports (
	station        TEXT        NOT NULL,
	obs_date       DATE        NOT NULL,
	satellite      TEXT        NOT NULL,
	period_minutes INTEGER     NOT NULL,
	signals        JSONB       NOT NULL,
	holes          JSONB       NOT NULL,
	gap_epochs     INTEGER     NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (station, obs_date, satellite, period_minutes)
);
CREATE INDEX IF NOT EXISTS idx_hole_reports_station ON hole_reports (station, obs_date DESC);
`

// PostgresRepository реализует Repository для PostgreSQL (Infrastructure Layer)
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository создает новый экземпляр PostgresRepository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// NewPostgresRepositoryFromDSN создает репозиторий из строки подключения
func NewPostgresRepositoryFromDSN(ctx context.Context, dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepository{db: db}, nil
}

// EnsureSchema создает таблицу отчетов при ее отсутствии
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping проверяет соединение
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close закрывает соединение с БД
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// SaveReport сохраняет или заменяет отчет спутника
func (r *PostgresRepository) SaveReport(ctx context.Context, report *StationReport) error {
	signalsJSON, err := json.Marshal(report.Signals)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}
	holesJSON, err := json.Marshal(report.Holes)
	if err != nil {
		return fmt.Errorf("failed to marshal holes: %w", err)
	}

	query := `
		INSERT INTO hole_reports (station, obs_date, satellite, period_minutes, signals, holes, gap_epochs)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (station, obs_date, satellite, period_minutes) DO UPDATE SET
			signals = EXCLUDED.signals,
			holes = EXCLUDED.holes,
			gap_epochs = EXCLUDED.gap_epochs,
			created_at = NOW()
	`

	_, err = r.db.ExecContext(ctx, query,
		report.Station,
		dateOnly(report.Date),
		report.Satellite,
		report.PeriodMinutes,
		signalsJSON,
		holesJSON,
		report.GapEpochs,
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// GetReport возвращает отчет по ключу
func (r *PostgresRepository) GetReport(ctx context.Context, key ReportKey) (*StationReport, error) {
	query := `
		SELECT station, obs_date, satellite, period_minutes, signals, holes, gap_epochs, created_at
		FROM hole_reports
		WHERE station = $1 AND obs_date = $2 AND satellite = $3 AND period_minutes = $4
	`

	var (
		report      StationReport
		signalsJSON []byte
		holesJSON   []byte
	)
	err := r.db.QueryRowContext(ctx, query, key.Station, dateOnly(key.Date), key.Satellite, key.PeriodMinutes).Scan(
		&report.Station,
		&report.Date,
		&report.Satellite,
		&report.PeriodMinutes,
		&signalsJSON,
		&holesJSON,
		&report.GapEpochs,
		&report.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	if err := json.Unmarshal(signalsJSON, &report.Signals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signals: %w", err)
	}
	if err := json.Unmarshal(holesJSON, &report.Holes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal holes: %w", err)
	}
	return &report, nil
}

// ListStationDays дни, за которые у станции есть отчеты, от новых к старым
func (r *PostgresRepository) ListStationDays(ctx context.Context, station string) ([]time.Time, error) {
	query := `
		SELECT DISTINCT obs_date
		FROM hole_reports
		WHERE station = $1
		ORDER BY obs_date DESC
	`

	rows, err := r.db.QueryContext(ctx, query, station)
	if err != nil {
		return nil, fmt.Errorf("failed to list station days: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan day: %w", err)
		}
		days = append(days, dateOnly(day))
	}
	return days, rows.Err()
}
