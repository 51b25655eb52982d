package rinex

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EpochMarker отделяет заголовок от блока данных
const EpochMarker = '>'

const (
	labelInterval   = "INTERVAL"
	labelPosition   = "APPROX POSITION XYZ"
	labelMarkerName = "MARKER NAME"
	labelObsTypes   = "SYS / # / OBS TYPES"
	labelFirstObs   = "TIME OF FIRST OBS"
)

var (
	intervalRe   = regexp.MustCompile(`(\d+\.\d+)\s+` + labelInterval)
	positionRe   = regexp.MustCompile(`(.*)\s+` + labelPosition)
	markerNameRe = regexp.MustCompile(`(.*)\s+` + labelMarkerName)
	obsTypesRe   = regexp.MustCompile(`(.*)\s+` + regexp.QuoteMeta(labelObsTypes))
	firstObsRe   = regexp.MustCompile(`(.*)\s+` + labelFirstObs)
)

// Position приблизительные координаты приемника (ECEF, метры)
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// StationHeader метаданные станции из заголовка файла наблюдений
type StationHeader struct {
	SamplingInterval float64             `json:"sampling_interval"`
	FirstObservation time.Time           `json:"first_observation"`
	MarkerName       string              `json:"marker_name,omitempty"`
	Position         *Position           `json:"position,omitempty"`
	Signals          map[string][]string `json:"signals"`
}

// Year год первого наблюдения
func (h *StationHeader) Year() int {
	return h.FirstObservation.Year()
}

// DayOfYear день года первого наблюдения
func (h *StationHeader) DayOfYear() int {
	return h.FirstObservation.YearDay()
}

// Constellations возвращает ключи сигналов в отсортированном порядке
func (h *StationHeader) Constellations() []string {
	keys := make([]string, 0, len(h.Signals))
	for key := range h.Signals {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// SignalsKey строит ключ созвездия: "G" -> "g_signals"
func SignalsKey(system string) string {
	return strings.ToLower(system + "_signals")
}

// ReadHeader читает строки до первого маркера эпохи и извлекает заголовок
func ReadHeader(r io.Reader) (*StationHeader, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > 0 && line[0] == EpochMarker {
			break
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	return Extract(JoinContinuations(lines))
}

// Extract разбирает строки заголовка. Обработка останавливается на первой строке,
// начинающейся с '>'. Ошибка в числовом поле распознанной строки прерывает разбор целиком.
// Строки-продолжения SYS / # / OBS TYPES должны быть заранее склеены через
// JoinContinuations, иначе первый сигнал продолжения читается как число сигналов.
func Extract(lines []string) (*StationHeader, error) {
	header := &StationHeader{
		Signals: make(map[string][]string),
	}

	var (
		haveInterval bool
		haveMarker   bool
		haveDate     bool
	)

	for i, line := range lines {
		if len(line) > 0 && line[0] == EpochMarker {
			break
		}
		lineNo := i + 1

		if !haveInterval {
			if m := intervalRe.FindStringSubmatch(line); m != nil {
				value, err := strconv.ParseFloat(m[1], 64)
				if err != nil {
					return nil, newHeaderParseError(lineNo, line, labelInterval, err)
				}
				header.SamplingInterval = value
				haveInterval = true
			}
		}

		if header.Position == nil {
			if m := positionRe.FindStringSubmatch(line); m != nil {
				pos, err := parsePosition(m[1])
				if err != nil {
					return nil, newHeaderParseError(lineNo, line, labelPosition, err)
				}
				header.Position = pos
			}
		}

		if !haveMarker {
			if m := markerNameRe.FindStringSubmatch(line); m != nil {
				header.MarkerName = strings.TrimSpace(m[1])
				haveMarker = true
			}
		}

		if m := obsTypesRe.FindStringSubmatch(line); m != nil {
			system, signals, err := parseObsTypes(m[1])
			if err != nil {
				return nil, newHeaderParseError(lineNo, line, labelObsTypes, err)
			}
			// повторное объявление системы перезаписывает предыдущее
			header.Signals[SignalsKey(system)] = signals
		}

		if !haveDate {
			if m := firstObsRe.FindStringSubmatch(line); m != nil {
				date, err := parseDate(m[1])
				if err != nil {
					return nil, newHeaderParseError(lineNo, line, labelFirstObs, err)
				}
				header.FirstObservation = date
				haveDate = true
			}
		}
	}

	return header, nil
}

// JoinContinuations склеивает строки-продолжения "SYS / # / OBS TYPES" (пустая колонка системы)
// с предыдущим объявлением, чтобы длинные списки сигналов не терялись.
func JoinContinuations(lines []string) []string {
	result := make([]string, 0, len(lines))
	last := -1

	for _, line := range lines {
		m := obsTypesRe.FindStringSubmatchIndex(line)
		if m == nil {
			result = append(result, line)
			continue
		}

		content := line[m[2]:m[3]]
		continuation := len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
		if continuation && last >= 0 {
			prev := result[last]
			pm := obsTypesRe.FindStringSubmatchIndex(prev)
			joined := strings.TrimRight(prev[pm[2]:pm[3]], " \t") + " " + strings.TrimSpace(content)
			result[last] = joined + "  " + labelObsTypes
			continue
		}

		result = append(result, line)
		last = len(result) - 1
	}

	return result
}

func parsePosition(field string) (*Position, error) {
	parts := strings.Fields(field)
	if len(parts) < 3 {
		return nil, fmt.Errorf("expected 3 coordinates, got %d", len(parts))
	}

	var xyz [3]float64
	for i := 0; i < 3; i++ {
		value, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return nil, err
		}
		xyz[i] = value
	}

	return &Position{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

func parseObsTypes(field string) (string, []string, error) {
	parts := strings.Fields(field)
	if len(parts) < 2 {
		return "", nil, fmt.Errorf("expected system code and signal count, got %q", field)
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		return "", nil, fmt.Errorf("invalid signal count %q: %w", parts[1], err)
	}

	signals := make([]string, len(parts)-2)
	copy(signals, parts[2:])
	return parts[0], signals, nil
}

func parseDate(field string) (time.Time, error) {
	parts := strings.Fields(field)
	if len(parts) < 3 {
		return time.Time{}, fmt.Errorf("expected year, month and day, got %q", field)
	}

	var ymd [3]int
	for i := 0; i < 3; i++ {
		value, err := strconv.Atoi(parts[i])
		if err != nil {
			return time.Time{}, err
		}
		ymd[i] = value
	}

	if ymd[1] < 1 || ymd[1] > 12 || ymd[2] < 1 || ymd[2] > 31 {
		return time.Time{}, fmt.Errorf("date out of range: %d-%d-%d", ymd[0], ymd[1], ymd[2])
	}

	return time.Date(ymd[0], time.Month(ymd[1]), ymd[2], 0, 0, 0, 0, time.UTC), nil
}
