// Package holes считает пропуски наблюдений по периодам суток для каждого сигнала спутника.
//
// Значения в отчете: -1 - данных не ожидалось (спутник под маской),
// 0 - период покрыт полностью, k > 0 - k подтвержденных пропущенных эпох.
package holes

import (
	"errors"
	"fmt"

	"github.com/Krimson/gnss-quality/internal/satellite"
)

const (
	minutesPerDay = 24 * 60

	// DefaultPeriodMinutes длина периода по умолчанию
	DefaultPeriodMinutes = 15
	// DefaultElevationMask маска возвышения по умолчанию, градусы
	DefaultElevationMask = 10.0
)

// ErrInvalidParams некорректные параметры подсчета
var ErrInvalidParams = errors.New("invalid hole counting parameters")

// Params параметры разбиения суток на периоды
type Params struct {
	PeriodMinutes   int
	TimestepSeconds float64
	ElevationMask   float64
}

// DefaultParams параметры по умолчанию для заданного шага наблюдений
func DefaultParams(timestep float64) Params {
	return Params{
		PeriodMinutes:   DefaultPeriodMinutes,
		TimestepSeconds: timestep,
		ElevationMask:   DefaultElevationMask,
	}
}

// PeriodRecords число эпох в одном периоде
func (p Params) PeriodRecords() int {
	if p.TimestepSeconds <= 0 {
		return 0
	}
	return int(float64(p.PeriodMinutes*60) / p.TimestepSeconds)
}

// PeriodsPerDay число периодов в сутках
func (p Params) PeriodsPerDay() int {
	if p.PeriodMinutes <= 0 {
		return 0
	}
	return minutesPerDay / p.PeriodMinutes
}

// Validate проверяет параметры
func (p Params) Validate() error {
	if p.PeriodMinutes <= 0 || p.PeriodMinutes > minutesPerDay {
		return fmt.Errorf("%w: period %d minutes", ErrInvalidParams, p.PeriodMinutes)
	}
	if p.TimestepSeconds <= 0 {
		return fmt.Errorf("%w: timestep %v seconds", ErrInvalidParams, p.TimestepSeconds)
	}
	if p.PeriodRecords() < 1 {
		return fmt.Errorf("%w: period of %d minutes is shorter than timestep %v s",
			ErrInvalidParams, p.PeriodMinutes, p.TimestepSeconds)
	}
	return nil
}

// Stats счетчики одного прохода
type Stats struct {
	Rows          int
	SkippedEpochs int
	Rules         [ruleCount]int
}

// RuleHits число срабатываний каждого правила
func (s Stats) RuleHits() map[string]int {
	hits := make(map[string]int, len(s.Rules))
	for r, n := range s.Rules {
		if n > 0 {
			hits[rule(r).String()] = n
		}
	}
	return hits
}

// Report сигнал -> пропуски по периодам
type Report map[string][]int

// Result результат подсчета для одного спутника за сутки
type Result struct {
	// Signals порядок вывода: активные, затем отброшенные
	Signals []string
	Holes   Report
	Stats   Stats
}

// GapEpochs сумма подтвержденных пропусков сигнала
func (r *Result) GapEpochs(signal string) int {
	total := 0
	for _, v := range r.Holes[signal] {
		if v > 0 {
			total += v
		}
	}
	return total
}

// Count проходит по очищенным эпохам и возвращает массив пропусков длиной
// PeriodsPerDay для каждого сигнала. Сигналы без данных получают только -1.
func Count(c *satellite.Cleaned, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	days := p.PeriodsPerDay()
	active, dropped := splitSignals(c)

	result := &Result{
		Signals: make([]string, 0, len(active)+len(dropped)),
		Holes:   make(Report, len(active)+len(dropped)),
	}

	if c.Empty() || len(active) == 0 {
		for _, name := range append(append([]string(nil), active...), dropped...) {
			result.Signals = append(result.Signals, name)
			result.Holes[name] = noDataSeries(days)
		}
		return result, nil
	}

	s := newState(len(active))
	for _, epoch := range c.Epochs {
		s.step(epoch, p)
	}
	// остаток потенциальных дыр на конец суток считается подтвержденным
	s.holes.commit()

	for i, name := range active {
		result.Signals = append(result.Signals, name)
		result.Holes[name] = fit(s.holes.actual[i], days)
	}
	for _, name := range dropped {
		result.Signals = append(result.Signals, name)
		result.Holes[name] = noDataSeries(days)
	}
	result.Stats = s.stats

	return result, nil
}

// splitSignals усекает список активных сигналов до фактической ширины строк,
// лишние сигналы считаются отброшенными
func splitSignals(c *satellite.Cleaned) ([]string, []string) {
	active := c.Active
	dropped := c.Dropped

	if len(c.Epochs) == 0 {
		return active, dropped
	}

	width := len(c.Epochs[0].Signals)
	for _, e := range c.Epochs[1:] {
		if len(e.Signals) < width {
			width = len(e.Signals)
		}
	}

	if width < len(active) {
		excess := active[width:]
		active = active[:width]
		dropped = append(append([]string(nil), excess...), dropped...)
	}
	return active, dropped
}

// fit дополняет массив отметками NoData или обрезает до нужной длины
func fit(series []int, n int) []int {
	out := make([]int, n)
	copied := copy(out, series)
	for i := copied; i < n; i++ {
		out[i] = NoData
	}
	return out
}

func noDataSeries(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = NoData
	}
	return out
}
