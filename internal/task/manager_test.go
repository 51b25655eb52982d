package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Krimson/gnss-quality/internal/rinex"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Status)
	}
	return out
}

func testHeader() *rinex.StationHeader {
	return &rinex.StationHeader{
		SamplingInterval: 30,
		MarkerName:       "NOVM",
		FirstObservation: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Signals:          map[string][]string{"g_signals": {"C1C", "L1C"}},
	}
}

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(time.Hour))
	rec := &recorder{}
	m.Subscribe(rec)

	created, err := m.Create(ctx, testHeader(), "novm0750.24o")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Status != StatusPending || created.ID == "" {
		t.Errorf("Unexpected new task: %+v", created)
	}

	if _, err := m.SetStatus(ctx, created.ID, StatusProcessing); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	done, err := m.Complete(ctx, created.ID, "/tmp/result.zip")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if done.Result != "/tmp/result.zip" {
		t.Errorf("Expected result path, got %q", done.Result)
	}

	got, err := m.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Station == nil || got.Station.MarkerName != "NOVM" || got.Station.DayOfYear() != 75 {
		t.Errorf("Station header not preserved: %+v", got.Station)
	}

	want := []Status{StatusPending, StatusProcessing, StatusCompleted}
	if s := rec.statuses(); len(s) != 3 || s[0] != want[0] || s[1] != want[1] || s[2] != want[2] {
		t.Errorf("Expected events %v, got %v", want, s)
	}

	if _, err := m.Fail(ctx, created.ID, errors.New("late")); err == nil {
		t.Error("Finished task must not change status")
	}
}

func TestManager_GetUnknown(t *testing.T) {
	m := NewManager(NewMemoryStore(0))
	if _, err := m.Get(context.Background(), "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestManager_WaitCompletes(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(time.Hour))
	created, _ := m.Create(ctx, testHeader(), "a.24o")

	go func() {
		time.Sleep(20 * time.Millisecond)
		m.SetStatus(ctx, created.ID, StatusProcessing)
		time.Sleep(20 * time.Millisecond)
		m.Complete(ctx, created.ID, "result.zip")
	}()

	// ожидание начинается еще в статусе pending
	task, err := m.Wait(ctx, created.ID, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if task.Status != StatusCompleted {
		t.Errorf("Expected completed, got %s", task.Status)
	}
}

func TestManager_WaitFailed(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(time.Hour))
	created, _ := m.Create(ctx, testHeader(), "a.24o")
	m.Fail(ctx, created.ID, errors.New("converter unavailable"))

	_, err := m.Wait(ctx, created.ID, time.Millisecond)
	if !errors.Is(err, ErrTaskFailed) {
		t.Errorf("Expected ErrTaskFailed, got %v", err)
	}
}

func TestManager_WaitContextCancelled(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Hour))
	created, _ := m.Create(context.Background(), testHeader(), "a.24o")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := m.Wait(ctx, created.ID, time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Save(ctx, &Task{ID: "old", Status: StatusCompleted, UpdatedAt: now.Add(-2 * time.Minute)})
	store.Save(ctx, &Task{ID: "new", Status: StatusPending, UpdatedAt: now})

	if _, err := store.Get(ctx, "old"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expired task must not be returned, got %v", err)
	}
	if _, err := store.Get(ctx, "new"); err != nil {
		t.Errorf("Fresh task must be returned, got %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Expected expired task evicted, got %d tasks", store.Len())
	}
}
