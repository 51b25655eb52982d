package storage

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"
)

func sampleReport(sat string, day int) *StationReport {
	return &StationReport{
		Station:       "novm",
		Date:          time.Date(2024, 3, day, 13, 45, 0, 0, time.UTC),
		Satellite:     sat,
		PeriodMinutes: 15,
		Signals:       []string{"C1C", "S5Q"},
		Holes:         map[string][]int{"C1C": {0, 3, -1}, "S5Q": {-1, -1, -1}},
		GapEpochs:     3,
	}
}

func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()

	if err := repo.SaveReport(ctx, sampleReport("G05", 15)); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	updated := sampleReport("G05", 15)
	updated.Holes["C1C"] = []int{0, 0, -1}
	updated.GapEpochs = 0
	if err := repo.SaveReport(ctx, updated); err != nil {
		t.Fatalf("SaveReport upsert failed: %v", err)
	}
	if err := repo.SaveReport(ctx, sampleReport("R01", 14)); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	got, err := repo.GetReport(ctx, ReportKey{
		Station:       "novm",
		Date:          time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Satellite:     "G05",
		PeriodMinutes: 15,
	})
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if got.GapEpochs != 0 || !reflect.DeepEqual(got.Holes["C1C"], []int{0, 0, -1}) {
		t.Errorf("Expected replaced report, got %+v", got)
	}

	_, err = repo.GetReport(ctx, ReportKey{Station: "novm", Date: time.Now(), Satellite: "G05", PeriodMinutes: 15})
	if !errors.Is(err, ErrReportNotFound) {
		t.Errorf("Expected ErrReportNotFound, got %v", err)
	}

	days, err := repo.ListStationDays(ctx, "novm")
	if err != nil {
		t.Fatalf("ListStationDays failed: %v", err)
	}
	if len(days) != 2 || days[0].Day() != 15 || days[1].Day() != 14 {
		t.Errorf("Unexpected days: %v", days)
	}
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	exerciseRepository(t, repo)
	if repo.Len() != 2 {
		t.Errorf("Expected 2 reports, got %d", repo.Len())
	}
}

func TestNopRepository(t *testing.T) {
	var repo Repository = NopRepository{}
	if err := repo.SaveReport(context.Background(), sampleReport("G05", 15)); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if _, err := repo.GetReport(context.Background(), ReportKey{}); !errors.Is(err, ErrReportNotFound) {
		t.Errorf("Expected ErrReportNotFound, got %v", err)
	}
}

// Требует запущенный PostgreSQL: POSTGRES_TEST_DSN=postgres://...
func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx := context.Background()
	repo, err := NewPostgresRepositoryFromDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM hole_reports WHERE station = 'novm'`); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	exerciseRepository(t, repo)
}
