package satellite

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Индексы служебных колонок суточного файла спутника
const (
	ColSequence  = 0
	ColHour      = 1
	ColElevation = 2
	ColReserved  = 3

	// FirstSignalColumn первая колонка с сигналом
	FirstSignalColumn = 4
)

const commentMarker = '#'

// Observation сырые данные одного спутника за сутки
type Observation struct {
	Filename  string
	Site      string
	Satellite string
	Headers   []string
	// Missing сигналы из columns:, для которых в строках данных нет колонок
	Missing []string
	Rows    [][]float64
}

// Empty сообщает, что после строки схемы не осталось данных
func (o *Observation) Empty() bool {
	return len(o.Rows) == 0
}

// Signals возвращает имена колонок сигналов
func (o *Observation) Signals() []string {
	if len(o.Headers) <= FirstSignalColumn {
		return nil
	}
	return o.Headers[FirstSignalColumn:]
}

// LoadFile открывает и разбирает файл спутника
func LoadFile(path string) (*Observation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open satellite file %s: %w", path, err)
	}
	defer file.Close()

	obs, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	obs.Filename = filepath.Base(path)
	return obs, nil
}

// Load разбирает суточный файл спутника: строки с '#' несут метаданные
// (site:, satellite:, columns:), остальные строки - числовые данные.
// Первая строка данных считается строкой схемы и отбрасывается.
// Если строки уже, чем columns:, лишние сигналы попадают в Missing.
func Load(r io.Reader) (*Observation, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	obs := &Observation{}
	var (
		dataLines [][]string
		lineNos   []int
		lineNo    int
	)

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if len(line) > 0 && line[0] == commentMarker {
			parseMetadata(obs, line)
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		dataLines = append(dataLines, fields)
		lineNos = append(lineNos, lineNo)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read satellite file: %w", err)
	}

	if obs.Headers == nil {
		return nil, &ParseError{Reason: "missing columns: metadata"}
	}
	if len(obs.Headers) < FirstSignalColumn {
		return nil, &ParseError{Reason: fmt.Sprintf("columns: declares %d columns, need at least %d", len(obs.Headers), FirstSignalColumn)}
	}

	if len(dataLines) <= 1 {
		return obs, nil
	}

	// все строки данных одной ширины, не больше объявленной;
	// сигналы сверх фактической ширины считаются отсутствующими
	width := len(dataLines[1])
	if width > len(obs.Headers) || width < FirstSignalColumn {
		return nil, &ParseError{
			Line:   lineNos[1],
			Reason: fmt.Sprintf("expected %d to %d values, got %d", FirstSignalColumn, len(obs.Headers), width),
		}
	}

	rows := make([][]float64, 0, len(dataLines)-1)
	for i, fields := range dataLines[1:] {
		no := lineNos[i+1]
		if len(fields) != width {
			return nil, &ParseError{
				Line:   no,
				Reason: fmt.Sprintf("expected %d values, got %d", width, len(fields)),
			}
		}

		row := make([]float64, width)
		for j, field := range fields {
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, &ParseError{Line: no, Reason: fmt.Sprintf("column %s", obs.Headers[j]), Err: err}
			}
			row[j] = value
		}
		rows = append(rows, row)
	}

	if width < len(obs.Headers) {
		obs.Missing = append([]string(nil), obs.Headers[width:]...)
		obs.Headers = obs.Headers[:width]
	}
	obs.Rows = rows
	return obs, nil
}

func parseMetadata(obs *Observation, line string) {
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return
	}

	switch strings.ToLower(fields[0]) {
	case "site:":
		if len(fields) > 1 {
			obs.Site = fields[1]
		}
	case "satellite:":
		if len(fields) > 1 {
			obs.Satellite = fields[1]
		}
	case "columns:":
		headers := make([]string, len(fields)-1)
		copy(headers, fields[1:])
		obs.Headers = headers
	}
}
