package satellite

import "math"

// Epoch одна строка очищенных данных
type Epoch struct {
	Seq       int       `json:"tsn"`
	Seconds   int       `json:"seconds"`
	Elevation float64   `json:"elevation"`
	Reserved  float64   `json:"reserved"`
	Signals   []float64 `json:"signals"`
}

// Cleaned результат нормализации колонок
type Cleaned struct {
	Filename  string
	Site      string
	Satellite string

	// Active сигналы, у которых за сутки было хотя бы одно наблюдение
	Active []string
	// Dropped сигналы, не наблюдавшиеся ни разу
	Dropped []string
	// Epochs nil, если активных сигналов нет
	Epochs []Epoch
}

// Empty сообщает об отсутствии пригодных данных за сутки
func (c *Cleaned) Empty() bool {
	return c.Epochs == nil
}

// Signals активные и отброшенные сигналы в порядке вывода
func (c *Cleaned) Signals() []string {
	out := make([]string, 0, len(c.Active)+len(c.Dropped))
	out = append(out, c.Active...)
	return append(out, c.Dropped...)
}

// Normalize применяет маску возвышения, отделяет никогда не наблюдавшиеся сигналы
// и переводит время из долей часа в секунды. Исходные данные не изменяются.
func Normalize(obs *Observation, elevationMask float64) *Cleaned {
	cleaned := &Cleaned{
		Filename:  obs.Filename,
		Site:      obs.Site,
		Satellite: obs.Satellite,
	}

	signals := obs.Signals()
	if obs.Empty() {
		// без строк все сигналы считаются отброшенными
		cleaned.Active = []string{}
		cleaned.Dropped = append(append([]string(nil), obs.Missing...), signals...)
		return cleaned
	}

	// 1. строки ниже маски считаются ненаблюдаемыми
	masked := make([][]float64, len(obs.Rows))
	for i, row := range obs.Rows {
		values := make([]float64, len(signals))
		if row[ColElevation] > elevationMask {
			copy(values, row[FirstSignalColumn:])
		}
		masked[i] = values
	}

	// 2-3. разделяем колонки на активные и пустые с сохранением порядка
	var activeIdx, droppedIdx []int
	for j := range signals {
		if columnAllZero(masked, j) {
			droppedIdx = append(droppedIdx, j)
		} else {
			activeIdx = append(activeIdx, j)
		}
	}

	cleaned.Active = make([]string, 0, len(activeIdx))
	for _, j := range activeIdx {
		cleaned.Active = append(cleaned.Active, signals[j])
	}
	// сигналы без колонок в данных идут первыми
	cleaned.Dropped = make([]string, 0, len(obs.Missing)+len(droppedIdx))
	cleaned.Dropped = append(cleaned.Dropped, obs.Missing...)
	for _, j := range droppedIdx {
		cleaned.Dropped = append(cleaned.Dropped, signals[j])
	}

	if len(activeIdx) == 0 {
		return cleaned
	}

	// 4-6. переставляем колонки, отрезаем пустые, переводим часы в секунды
	epochs := make([]Epoch, len(obs.Rows))
	for i, row := range obs.Rows {
		values := make([]float64, len(activeIdx))
		for k, j := range activeIdx {
			values[k] = masked[i][j]
		}
		epochs[i] = Epoch{
			Seq:       int(row[ColSequence]),
			Seconds:   HoursToSeconds(row[ColHour]),
			Elevation: row[ColElevation],
			Reserved:  row[ColReserved],
			Signals:   values,
		}
	}
	cleaned.Epochs = epochs

	return cleaned
}

// HoursToSeconds переводит доли часа в целые секунды с банковским округлением
func HoursToSeconds(hour float64) int {
	return int(math.RoundToEven(hour * 3600))
}

// columnAllZero нет ни одного наблюдения (значения > 0) в колонке
func columnAllZero(rows [][]float64, col int) bool {
	for _, row := range rows {
		if row[col] > 0 {
			return false
		}
	}
	return true
}
