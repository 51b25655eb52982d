package quality

import "errors"

var (
	// ErrEmptySatellite у спутника нет пригодных данных за сутки
	ErrEmptySatellite = errors.New("empty satellite")
	// ErrSatelliteNotFound нет файла спутника за день задачи
	ErrSatelliteNotFound = errors.New("satellite file not found")
	// ErrIncompleteHeader в заголовке RINEX нет полей, нужных для подсчета
	ErrIncompleteHeader = errors.New("incomplete rinex header")
	// ErrInvalidSatellite недопустимый идентификатор спутника
	ErrInvalidSatellite = errors.New("invalid satellite id")
)

// CompleteMark значение y в данных графика до подсчета пропусков
const CompleteMark = "Complete"

// GraphPoint точка графика сигналов системы
type GraphPoint struct {
	X string `json:"x"`
	Y string `json:"y"`
}

// GraphSeries сигналы одной спутниковой системы
type GraphSeries struct {
	ID   string       `json:"id"`
	Data []GraphPoint `json:"data"`
}

// UploadResult ответ на загрузку RINEX
type UploadResult struct {
	TaskID    string        `json:"task_id"`
	GraphData []GraphSeries `json:"graph_data"`
}

// SignalHoles пропуски сигнала по периодам
type SignalHoles struct {
	X string `json:"x"`
	Y []int  `json:"y"`
}

// SatelliteHoles пропуски всех сигналов спутника
type SatelliteHoles struct {
	ID   string        `json:"id"`
	Data []SignalHoles `json:"data"`
}

// SatelliteInfo очищенные ряды спутника для графиков
type SatelliteInfo struct {
	Tsn       []int       `json:"tsn"`
	Seconds   []int       `json:"seconds"`
	Elevation []float64   `json:"elevation"`
	Signals   []string    `json:"signals"`
	Data      [][]float64 `json:"data"`
	Timestep  float64     `json:"timestep"`
}
