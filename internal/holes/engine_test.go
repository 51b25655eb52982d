package holes

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/Krimson/gnss-quality/internal/satellite"
)

const epochsPerDay = 2880

func testParams() Params {
	return DefaultParams(30)
}

// day строит суточный ряд эпох 1..2880; fn задает возвышение и сигналы эпохи
func day(fn func(seq int) (float64, []float64)) []satellite.Epoch {
	epochs := make([]satellite.Epoch, 0, epochsPerDay)
	for seq := 1; seq <= epochsPerDay; seq++ {
		elevation, signals := fn(seq)
		epochs = append(epochs, satellite.Epoch{
			Seq:       seq,
			Seconds:   (seq - 1) * 30,
			Elevation: elevation,
			Signals:   signals,
		})
	}
	return epochs
}

func cleaned(epochs []satellite.Epoch, active ...string) *satellite.Cleaned {
	return &satellite.Cleaned{Satellite: "G05", Active: active, Epochs: epochs}
}

func countNoData(series []int) int {
	n := 0
	for _, v := range series {
		if v == NoData {
			n++
		}
	}
	return n
}

func mustCount(t *testing.T, c *satellite.Cleaned, p Params) *Result {
	t.Helper()
	result, err := Count(c, p)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	for _, name := range result.Signals {
		if len(result.Holes[name]) != p.PeriodsPerDay() {
			t.Fatalf("Signal %s: expected %d periods, got %d", name, p.PeriodsPerDay(), len(result.Holes[name]))
		}
	}
	return result
}

func TestParams(t *testing.T) {
	p := testParams()
	if p.PeriodRecords() != 30 {
		t.Errorf("Expected 30 records per period, got %d", p.PeriodRecords())
	}
	if p.PeriodsPerDay() != 96 {
		t.Errorf("Expected 96 periods per day, got %d", p.PeriodsPerDay())
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Expected valid params, got %v", err)
	}

	invalid := []Params{
		{PeriodMinutes: 0, TimestepSeconds: 30},
		{PeriodMinutes: 15, TimestepSeconds: 0},
		{PeriodMinutes: 1, TimestepSeconds: 120},
		{PeriodMinutes: 2000, TimestepSeconds: 30},
	}
	for _, p := range invalid {
		if err := p.Validate(); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("Params %+v: expected ErrInvalidParams, got %v", p, err)
		}
	}
}

func TestCount_InvalidParams(t *testing.T) {
	_, err := Count(cleaned(nil, "C1C"), Params{PeriodMinutes: 15})
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams, got %v", err)
	}
}

func TestCount_FullDayWithoutGaps(t *testing.T) {
	epochs := day(func(int) (float64, []float64) {
		return 45, []float64{1, 2}
	})

	result := mustCount(t, cleaned(epochs, "C1C", "L1C"), testParams())
	for _, name := range []string{"C1C", "L1C"} {
		for i, v := range result.Holes[name] {
			if v != 0 {
				t.Fatalf("Signal %s period %d: expected 0, got %d", name, i, v)
			}
		}
	}
	if result.Stats.Rows != epochsPerDay {
		t.Errorf("Expected %d rows, got %d", epochsPerDay, result.Stats.Rows)
	}
}

func TestCount_SinglePass(t *testing.T) {
	// спутник виден на эпохах 16..55
	epochs := day(func(seq int) (float64, []float64) {
		if seq >= 16 && seq <= 55 {
			return 45, []float64{5}
		}
		return 2, []float64{0}
	})

	result := mustCount(t, cleaned(epochs, "C1C"), testParams())
	series := result.Holes["C1C"]

	if series[0] != 0 || series[1] != 0 {
		t.Errorf("Expected first two periods covered, got %v", series[:2])
	}
	if n := countNoData(series); n != 94 {
		t.Errorf("Expected 94 periods without expectation, got %d", n)
	}
}

func TestCount_InvisibleDay(t *testing.T) {
	epochs := day(func(int) (float64, []float64) {
		return 3, []float64{0}
	})

	result := mustCount(t, cleaned(epochs, "C1C"), testParams())
	if n := countNoData(result.Holes["C1C"]); n != 96 {
		t.Errorf("Expected every period to be -1, got %d", n)
	}
}

func TestCount_SingleDropoutChargesOneSignal(t *testing.T) {
	epochs := day(func(seq int) (float64, []float64) {
		if seq == 100 {
			return 45, []float64{0, 5}
		}
		return 45, []float64{5, 5}
	})

	result := mustCount(t, cleaned(epochs, "C1C", "L1C"), testParams())

	// эпоха 100 попадает в период 3 (эпохи 91..120)
	if got := result.Holes["C1C"][3]; got != 1 {
		t.Errorf("Expected one hole in period 3 for C1C, got %d", got)
	}
	if result.GapEpochs("C1C") != 1 {
		t.Errorf("Expected one hole in total for C1C, got %d", result.GapEpochs("C1C"))
	}
	if result.GapEpochs("L1C") != 0 {
		t.Errorf("L1C must stay untouched, got %v", result.Holes["L1C"])
	}
}

func TestCount_SilentRunConfirmedByData(t *testing.T) {
	epochs := day(func(seq int) (float64, []float64) {
		if seq >= 100 && seq <= 104 {
			return 45, []float64{0, 0}
		}
		return 45, []float64{5, 5}
	})

	result := mustCount(t, cleaned(epochs, "C1C", "L1C"), testParams())
	for _, name := range []string{"C1C", "L1C"} {
		if got := result.Holes[name][3]; got != 5 {
			t.Errorf("Signal %s: expected 5 holes in period 3, got %d", name, got)
		}
	}
}

func TestCount_SilentRunDiscardedOnSet(t *testing.T) {
	epochs := day(func(seq int) (float64, []float64) {
		switch {
		case seq <= 100:
			return 45, []float64{5}
		case seq <= 105:
			return 45, []float64{0}
		default:
			return 2, []float64{0}
		}
	})

	result := mustCount(t, cleaned(epochs, "C1C"), testParams())
	series := result.Holes["C1C"]

	want := []int{0, 0, 0, 0}
	if !reflect.DeepEqual(series[:4], want) {
		t.Errorf("Expected %v, got %v", want, series[:4])
	}
	if n := countNoData(series); n != 92 {
		t.Errorf("Expected 92 periods without expectation, got %d", n)
	}
}

func TestCount_SetBeforeDataInOpenedPeriod(t *testing.T) {
	// период 3 открыт при слежении, но спутник зашел до первых данных в нем
	epochs := day(func(seq int) (float64, []float64) {
		if seq >= 31 && seq <= 90 {
			return 45, []float64{1}
		}
		return 2, []float64{0}
	})

	result := mustCount(t, cleaned(epochs, "C1C"), testParams())
	series := result.Holes["C1C"]

	if !reflect.DeepEqual(series[:5], []int{NoData, 0, 0, NoData, NoData}) {
		t.Errorf("Expected [-1 0 0 -1 -1], got %v", series[:5])
	}
	if countNoData(series) != 94 {
		t.Errorf("Expected 94 periods without data, got %d", countNoData(series))
	}
	if result.Stats.Rules[ruleSet] != 1 {
		t.Errorf("Expected one set row, got %d", result.Stats.Rules[ruleSet])
	}
}

func TestCount_PendingHolesCommittedAtEndOfDay(t *testing.T) {
	epochs := day(func(seq int) (float64, []float64) {
		if seq > epochsPerDay-5 {
			return 45, []float64{0}
		}
		return 45, []float64{5}
	})

	result := mustCount(t, cleaned(epochs, "C1C"), testParams())
	if got := result.Holes["C1C"][95]; got != 5 {
		t.Errorf("Expected 5 holes in the last period, got %d", got)
	}
}

func TestCount_SequenceGapWhileTracking(t *testing.T) {
	var epochs []satellite.Epoch
	for _, e := range day(func(int) (float64, []float64) { return 45, []float64{5, 5} }) {
		if e.Seq >= 51 && e.Seq <= 53 {
			continue
		}
		epochs = append(epochs, e)
	}

	result := mustCount(t, cleaned(epochs, "C1C", "L1C"), testParams())
	for _, name := range []string{"C1C", "L1C"} {
		if got := result.Holes[name][1]; got != 3 {
			t.Errorf("Signal %s: expected 3 holes in period 1, got %d", name, got)
		}
		if result.GapEpochs(name) != 3 {
			t.Errorf("Signal %s: expected 3 holes in total, got %d", name, result.GapEpochs(name))
		}
	}
	if result.Stats.SkippedEpochs != 3 {
		t.Errorf("Expected 3 skipped epochs, got %d", result.Stats.SkippedEpochs)
	}
}

func TestCount_SequenceGapSpansPeriods(t *testing.T) {
	var epochs []satellite.Epoch
	for _, e := range day(func(int) (float64, []float64) { return 45, []float64{5} }) {
		// пропуск 26..35 пересекает границу периодов 0 и 1
		if e.Seq >= 26 && e.Seq <= 35 {
			continue
		}
		epochs = append(epochs, e)
	}

	result := mustCount(t, cleaned(epochs, "C1C"), testParams())
	series := result.Holes["C1C"]
	if series[0] != 5 || series[1] != 5 {
		t.Errorf("Expected 5 holes in each of the first two periods, got %v", series[:3])
	}
	if series[2] != 0 {
		t.Errorf("Expected period 2 covered, got %d", series[2])
	}
}

func TestCount_IdleGapKeepsPeriodsAligned(t *testing.T) {
	var epochs []satellite.Epoch
	for _, e := range day(func(seq int) (float64, []float64) {
		if seq >= 41 && seq <= 70 {
			return 45, []float64{5}
		}
		return 2, []float64{0}
	}) {
		if e.Seq >= 11 && e.Seq <= 40 {
			continue
		}
		epochs = append(epochs, e)
	}

	result := mustCount(t, cleaned(epochs, "C1C"), testParams())
	series := result.Holes["C1C"]

	want := []int{NoData, 0, 0, NoData}
	if !reflect.DeepEqual(series[:4], want) {
		t.Errorf("Expected %v, got %v", want, series[:4])
	}
}

func TestCount_DroppedSignalsHaveNoData(t *testing.T) {
	epochs := day(func(int) (float64, []float64) { return 45, []float64{5} })
	c := cleaned(epochs, "C1C")
	c.Dropped = []string{"C2W", "S5Q"}

	result := mustCount(t, c, testParams())

	if !reflect.DeepEqual(result.Signals, []string{"C1C", "C2W", "S5Q"}) {
		t.Errorf("Unexpected signal order: %v", result.Signals)
	}
	for _, name := range c.Dropped {
		if n := countNoData(result.Holes[name]); n != 96 {
			t.Errorf("Dropped signal %s: expected all -1, got %v", name, result.Holes[name])
		}
	}
}

func TestCount_EmptyCleaned(t *testing.T) {
	c := &satellite.Cleaned{Active: []string{}, Dropped: []string{"C1C", "L1C"}}

	result := mustCount(t, c, testParams())
	if len(result.Holes) != 2 {
		t.Fatalf("Expected 2 signals, got %d", len(result.Holes))
	}
	for name, series := range result.Holes {
		if countNoData(series) != 96 {
			t.Errorf("Signal %s: expected all -1", name)
		}
	}
}

func TestCount_DimensionMismatch(t *testing.T) {
	epochs := day(func(int) (float64, []float64) { return 45, []float64{5} })
	c := cleaned(epochs, "C1C", "L1C")
	c.Dropped = []string{"S5Q"}

	result := mustCount(t, c, testParams())

	if !reflect.DeepEqual(result.Signals, []string{"C1C", "L1C", "S5Q"}) {
		t.Errorf("Unexpected signal order: %v", result.Signals)
	}
	if result.GapEpochs("C1C") != 0 || countNoData(result.Holes["C1C"]) != 0 {
		t.Errorf("C1C must be fully covered, got %v", result.Holes["C1C"])
	}
	if countNoData(result.Holes["L1C"]) != 96 {
		t.Errorf("L1C without values must be all -1, got %v", result.Holes["L1C"])
	}
}

func TestCount_RowsNarrowerThanColumns(t *testing.T) {
	var b strings.Builder
	b.WriteString("# site: novm\n# satellite: G05\n# columns: tsn hour el flag C1C L1C S5Q\n")
	b.WriteString("tsn hour el flag C1C L1C\n")
	for seq := 1; seq <= epochsPerDay; seq++ {
		fmt.Fprintf(&b, "%d %.7f 45.0 0 21000000.5 110000000.5\n", seq, float64(seq-1)/120)
	}

	obs, err := satellite.Load(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	result := mustCount(t, satellite.Normalize(obs, DefaultElevationMask), testParams())

	if !reflect.DeepEqual(result.Signals, []string{"C1C", "L1C", "S5Q"}) {
		t.Fatalf("Unexpected signal order: %v", result.Signals)
	}
	for _, name := range []string{"C1C", "L1C"} {
		for i, v := range result.Holes[name] {
			if v != 0 {
				t.Fatalf("Signal %s period %d: expected 0, got %d", name, i, v)
			}
		}
	}
	if countNoData(result.Holes["S5Q"]) != 96 {
		t.Errorf("Signal without data columns must be all -1, got %v", result.Holes["S5Q"])
	}
}

func TestCount_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	epochs := day(func(int) (float64, []float64) {
		return rng.Float64() * 60, []float64{float64(rng.Intn(2)), float64(rng.Intn(3))}
	})
	c := cleaned(epochs, "C1C", "L1C")

	first := mustCount(t, c, testParams())
	second := mustCount(t, c, testParams())
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Repeated counting must give the same result")
	}
}

func TestCount_HolesBoundedByVisibleMisses(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	obs := &satellite.Observation{
		Headers: []string{"tsn", "hour", "el", "flag", "C1C", "L1C", "S5Q"},
	}
	elevation := 0.0
	for seq := 1; seq <= epochsPerDay; seq++ {
		elevation += rng.Float64()*2 - 0.9
		if elevation < 0 {
			elevation = 0
		}
		row := []float64{float64(seq), float64(seq-1) / 120, elevation, 0}
		for j := 0; j < 3; j++ {
			v := 0.0
			if rng.Intn(10) > 1 {
				v = 1 + rng.Float64()
			}
			row = append(row, v)
		}
		obs.Rows = append(obs.Rows, row)
	}

	p := testParams()
	c := satellite.Normalize(obs, p.ElevationMask)
	result := mustCount(t, c, p)

	for i, name := range c.Active {
		visibleMisses := 0
		for _, e := range c.Epochs {
			if e.Elevation > p.ElevationMask && e.Signals[i] <= 0 {
				visibleMisses++
			}
		}
		if got := result.GapEpochs(name); got > visibleMisses {
			t.Errorf("Signal %s: %d holes exceed %d visible misses", name, got, visibleMisses)
		}
	}
	if result.Stats.Rows != epochsPerDay {
		t.Errorf("Expected %d rows, got %d", epochsPerDay, result.Stats.Rows)
	}
}

func TestStats_RuleHits(t *testing.T) {
	epochs := day(func(seq int) (float64, []float64) {
		switch {
		case seq <= 10:
			return 2, []float64{0, 0}
		case seq == 20:
			return 45, []float64{0, 5}
		default:
			return 45, []float64{5, 5}
		}
	})

	result := mustCount(t, cleaned(epochs, "C1C", "L1C"), testParams())
	hits := result.Stats.RuleHits()

	if hits["idle_skip"] != 10 {
		t.Errorf("Expected 10 idle rows, got %d", hits["idle_skip"])
	}
	if hits["acquire"] != 1 {
		t.Errorf("Expected one acquisition, got %d", hits["acquire"])
	}
	if hits["partial"] != 1 {
		t.Errorf("Expected one partial row, got %d", hits["partial"])
	}
	if hits["full"] != epochsPerDay-12 {
		t.Errorf("Expected %d full rows, got %d", epochsPerDay-12, hits["full"])
	}
}
